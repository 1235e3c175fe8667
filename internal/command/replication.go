package command

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/alxayo/go-kv/internal/resp"
)

func init() {
	register(Spec{Name: "INFO", MinArgc: 1, Parse: parseInfo})
	register(Spec{Name: "REPLCONF", MinArgc: 2, Parse: parseReplConf})
	register(Spec{Name: "PSYNC", MinArgc: 3, Parse: parsePSync})
	register(Spec{Name: "WAIT", MinArgc: 3, Parse: parseWait})
}

type InfoCmd struct{ Section string }

func parseInfo(argv [][]byte) (Cmd, error) {
	section := ""
	if len(argv) > 1 {
		section = strings.ToLower(string(argv[1]))
	}
	return &InfoCmd{Section: section}, nil
}

func (c *InfoCmd) Exec(env *Env) Reply {
	var b strings.Builder
	b.WriteString("# Replication\r\n")
	b.WriteString("role:" + env.Repl.Role() + "\r\n")
	if !env.Repl.IsReplica() {
		b.WriteString("master_replid:" + env.Repl.Replid() + "\r\n")
		b.WriteString("master_repl_offset:" + strconv.FormatInt(env.Repl.Offset(), 10) + "\r\n")
	}
	return one(resp.BulkValue([]byte(b.String())))
}

// ReplConfCmd implements REPLCONF listening-port p | capa ... | GETACK *.
// Only GETACK produces a reply content that depends on live offset state;
// the others are configuration acknowledgements.
type ReplConfCmd struct {
	Sub  string
	Args [][]byte
}

func parseReplConf(argv [][]byte) (Cmd, error) {
	return &ReplConfCmd{Sub: strings.ToUpper(string(argv[1])), Args: argv[2:]}, nil
}

func (c *ReplConfCmd) Exec(env *Env) Reply {
	switch c.Sub {
	case "GETACK":
		// Offset() must be read before the caller (the replica's frame-
		// apply loop) advances its cumulative count past this frame —
		// see internal/replication's offset bookkeeping.
		offset := env.Repl.Offset()
		return one(resp.BulkStringsFromText("REPLCONF", "ACK", strconv.FormatInt(offset, 10)))
	case "ACK":
		// Sent by a replica back to its master over the same promoted
		// connection; recorded for WAIT's quorum accounting, no reply.
		if len(c.Args) > 0 {
			if n, err := strconv.ParseInt(string(c.Args[0]), 10, 64); err == nil {
				env.Repl.RecordAck(env.Sess.ID(), n)
			}
		}
		return Reply{Silent: true}
	default:
		return ok()
	}
}

// PSyncCmd implements PSYNC ? -1: the master replies a FULLRESYNC header
// frame followed by a raw-bulk snapshot, then promotes the connection to
// a replica channel.
type PSyncCmd struct{}

func parsePSync(argv [][]byte) (Cmd, error) { return &PSyncCmd{}, nil }

func (c *PSyncCmd) Exec(env *Env) Reply {
	header := resp.SimpleStringValue("FULLRESYNC " + env.Repl.Replid() + " 0")
	snapshot := resp.RawBulkValue(env.Repl.SnapshotBytes())
	env.Repl.RegisterReplica(env.Sess.ID(), env.Sess)
	env.Sess.PromoteToReplica()
	return Reply{Values: []resp.Value{header, snapshot}}
}

// WaitCmd implements WAIT numreplicas timeout_ms.
type WaitCmd struct {
	NumReplicas int
	TimeoutMs   int64
}

func parseWait(argv [][]byte) (Cmd, error) {
	n, err := parseInt64("WAIT", argv[1])
	if err != nil {
		return nil, err
	}
	t, err := parseInt64("WAIT", argv[2])
	if err != nil {
		return nil, err
	}
	return &WaitCmd{NumReplicas: int(n), TimeoutMs: t}, nil
}

func (c *WaitCmd) Exec(env *Env) Reply {
	if !env.Repl.NeedAck() {
		return one(resp.IntValue(int64(env.Repl.ReplicaCount())))
	}
	ctx := env.Ctx
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, time.Duration(c.TimeoutMs)*time.Millisecond)
	defer cancel()
	acked := env.Repl.Wait(ctx, c.NumReplicas, int(c.TimeoutMs))
	env.Repl.SetNeedAck(false)
	return one(resp.IntValue(int64(acked)))
}
