package command

import (
	"time"

	"github.com/alxayo/go-kv/internal/resp"
)

func init() {
	register(Spec{Name: "LPUSH", MinArgc: 3, Parse: parsePush(true)})
	register(Spec{Name: "RPUSH", MinArgc: 3, Parse: parsePush(false)})
	register(Spec{Name: "LPOP", MinArgc: 2, Parse: parseLPop})
	register(Spec{Name: "BLPOP", MinArgc: 3, Parse: parseBLPop})
}

type PushCmd struct {
	Key    []byte
	Values [][]byte
	Left   bool
}

func parsePush(left bool) ParseFunc {
	return func(argv [][]byte) (Cmd, error) {
		return &PushCmd{Key: argv[1], Values: argv[2:], Left: left}, nil
	}
}

func (c *PushCmd) Exec(env *Env) Reply {
	var n int
	var err error
	if c.Left {
		n, err = env.Store.LPush(string(c.Key), c.Values...)
	} else {
		n, err = env.Store.RPush(string(c.Key), c.Values...)
	}
	if err != nil {
		return errReply(err)
	}
	return one(resp.IntValue(int64(n)))
}

// LPopCmd implements LPOP key [n]: with no count, pops a single element
// and replies a bulk (or null); with a count, replies an array.
type LPopCmd struct {
	Key   []byte
	Count int
	HasN  bool
}

func parseLPop(argv [][]byte) (Cmd, error) {
	c := &LPopCmd{Key: argv[1]}
	if len(argv) > 2 {
		n, err := parseInt64("LPOP", argv[2])
		if err != nil {
			return nil, err
		}
		c.Count = int(n)
		c.HasN = true
	}
	return c, nil
}

func (c *LPopCmd) Exec(env *Env) Reply {
	if !c.HasN {
		v, ok, err := env.Store.LPop(string(c.Key))
		if err != nil {
			return errReply(err)
		}
		if !ok {
			return one(resp.NullBulk())
		}
		return one(resp.BulkValue(v))
	}
	popped := make([]resp.Value, 0, c.Count)
	for i := 0; i < c.Count; i++ {
		v, ok, err := env.Store.LPop(string(c.Key))
		if err != nil {
			return errReply(err)
		}
		if !ok {
			break
		}
		popped = append(popped, resp.BulkValue(v))
	}
	if len(popped) == 0 {
		return one(resp.NullBulk())
	}
	return one(resp.ArrayValue(popped...))
}

// BLPopCmd implements BLPOP key timeout_s.
type BLPopCmd struct {
	Key       []byte
	TimeoutMs int64
}

func parseBLPop(argv [][]byte) (Cmd, error) {
	f, err := parseFloat64("BLPOP", argv[2])
	if err != nil {
		return nil, err
	}
	return &BLPopCmd{Key: argv[1], TimeoutMs: int64(f * 1000)}, nil
}

func (c *BLPopCmd) Exec(env *Env) Reply {
	v, ok, err := env.Store.BLPop(env.Ctx, string(c.Key), time.Duration(c.TimeoutMs)*time.Millisecond)
	if err != nil {
		return errReply(err)
	}
	if !ok {
		return one(resp.NullBulk())
	}
	return one(resp.ArrayValue(resp.BulkValue(c.Key), resp.BulkValue(v)))
}
