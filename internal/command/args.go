package command

import (
	"strconv"
	"strings"

	kverrors "github.com/alxayo/go-kv/internal/errors"
)

func parseInt64(op string, s []byte) (int64, error) {
	n, err := strconv.ParseInt(string(s), 10, 64)
	if err != nil {
		return 0, kverrors.NewInvalidArgument(op, err)
	}
	return n, nil
}

func parseFloat64(op string, s []byte) (float64, error) {
	f, err := strconv.ParseFloat(string(s), 64)
	if err != nil {
		return 0, kverrors.NewInvalidArgument(op, err)
	}
	return f, nil
}

// ttlMsFromOpts parses the trailing "[PX ms | EX s]" option pair SET
// accepts, returning a TTL in milliseconds (0 = no expiry).
func ttlMsFromOpts(op string, opts [][]byte) (int64, error) {
	if len(opts) == 0 {
		return 0, nil
	}
	if len(opts) != 2 {
		return 0, kverrors.NewInvalidArgument(op, nil)
	}
	n, err := parseInt64(op, opts[1])
	if err != nil {
		return 0, err
	}
	switch strings.ToUpper(string(opts[0])) {
	case "PX":
		return n, nil
	case "EX":
		return n * 1000, nil
	default:
		return 0, kverrors.NewInvalidArgument(op, nil)
	}
}
