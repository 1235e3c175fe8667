package command

import (
	"strings"

	"github.com/alxayo/go-kv/internal/resp"
)

func init() {
	register(Spec{Name: "TYPE", MinArgc: 2, Parse: parseType})
	register(Spec{Name: "KEYS", MinArgc: 2, Parse: parseKeys})
	register(Spec{Name: "CONFIG", MinArgc: 3, Parse: parseConfig})
	register(Spec{Name: "ZADD", MinArgc: 4, Parse: parseZAdd})
}

type TypeCmd struct{ Key []byte }

func parseType(argv [][]byte) (Cmd, error) { return &TypeCmd{Key: argv[1]}, nil }

func (c *TypeCmd) Exec(env *Env) Reply {
	k, ok := env.Store.Type(string(c.Key))
	if !ok {
		return one(resp.SimpleStringValue("none"))
	}
	return one(resp.SimpleStringValue(k.String()))
}

// KeysCmd implements KEYS pattern. Only the "*" (match-all) pattern is
// required by the core command set; any other pattern is treated as a
// literal key filter, matching spec.md §4.4's "pattern matching beyond
// * is not required" note.
type KeysCmd struct{ Pattern string }

func parseKeys(argv [][]byte) (Cmd, error) { return &KeysCmd{Pattern: string(argv[1])}, nil }

func (c *KeysCmd) Exec(env *Env) Reply {
	all := env.Store.Keys()
	if c.Pattern == "*" {
		vs := make([]resp.Value, len(all))
		for i, k := range all {
			vs[i] = resp.BulkValue([]byte(k))
		}
		return one(resp.ArrayValue(vs...))
	}
	var vs []resp.Value
	for _, k := range all {
		if k == c.Pattern {
			vs = append(vs, resp.BulkValue([]byte(k)))
		}
	}
	return one(resp.ArrayValue(vs...))
}

// configValues holds the CONFIG GET items this server knows about,
// populated at startup from the server's --dir/--dbfilename flags.
var configValues = map[string]string{
	"dir":        "",
	"dbfilename": "",
}

// SetConfigValue is called at startup (by kvserver.New) to populate
// CONFIG GET's known values from the parsed flags.
func SetConfigValue(key, value string) { configValues[key] = value }

type ConfigCmd struct {
	Sub  string
	Keys []string
}

func parseConfig(argv [][]byte) (Cmd, error) {
	sub := strings.ToUpper(string(argv[1]))
	keys := make([]string, len(argv)-2)
	for i, k := range argv[2:] {
		keys[i] = string(k)
	}
	return &ConfigCmd{Sub: sub, Keys: keys}, nil
}

func (c *ConfigCmd) Exec(env *Env) Reply {
	if c.Sub != "GET" {
		return one(resp.ArrayValue())
	}
	var vs []resp.Value
	for _, k := range c.Keys {
		if v, ok := configValues[k]; ok {
			vs = append(vs, resp.BulkValue([]byte(k)), resp.BulkValue([]byte(v)))
		}
	}
	return one(resp.ArrayValue(vs...))
}

type ZAddCmd struct {
	Key    []byte
	Score  float64
	Member []byte
}

func parseZAdd(argv [][]byte) (Cmd, error) {
	score, err := parseFloat64("ZADD", argv[2])
	if err != nil {
		return nil, err
	}
	return &ZAddCmd{Key: argv[1], Score: score, Member: argv[3]}, nil
}

func (c *ZAddCmd) Exec(env *Env) Reply {
	isNew, err := env.Store.ZAdd(string(c.Key), string(c.Member), c.Score)
	if err != nil {
		return errReply(err)
	}
	if isNew {
		return one(resp.IntValue(1))
	}
	return one(resp.IntValue(0))
}
