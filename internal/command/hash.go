package command

import "github.com/alxayo/go-kv/internal/resp"

func init() {
	register(Spec{Name: "HSET", MinArgc: 4, Parse: parseHSet})
	register(Spec{Name: "HGET", MinArgc: 3, Parse: parseHGet})
	register(Spec{Name: "HDEL", MinArgc: 3, Parse: parseHDel})
	register(Spec{Name: "HGETALL", MinArgc: 2, Parse: parseHGetAll})
}

type HSetCmd struct {
	Key, Field, Value []byte
}

func parseHSet(argv [][]byte) (Cmd, error) {
	return &HSetCmd{Key: argv[1], Field: argv[2], Value: argv[3]}, nil
}

func (c *HSetCmd) Exec(env *Env) Reply {
	n, err := env.Store.HSet(string(c.Key), string(c.Field), c.Value)
	if err != nil {
		return errReply(err)
	}
	return one(resp.IntValue(int64(n)))
}

type HGetCmd struct{ Key, Field []byte }

func parseHGet(argv [][]byte) (Cmd, error) {
	return &HGetCmd{Key: argv[1], Field: argv[2]}, nil
}

func (c *HGetCmd) Exec(env *Env) Reply {
	v, found, err := env.Store.HGet(string(c.Key), string(c.Field))
	if err != nil {
		return errReply(err)
	}
	if !found {
		return one(resp.NullBulk())
	}
	return one(resp.BulkValue(v))
}

type HDelCmd struct{ Key, Field []byte }

func parseHDel(argv [][]byte) (Cmd, error) {
	return &HDelCmd{Key: argv[1], Field: argv[2]}, nil
}

func (c *HDelCmd) Exec(env *Env) Reply {
	existed, err := env.Store.HDel(string(c.Key), string(c.Field))
	if err != nil {
		return errReply(err)
	}
	if existed {
		return one(resp.IntValue(1))
	}
	return one(resp.IntValue(0))
}

type HGetAllCmd struct{ Key []byte }

func parseHGetAll(argv [][]byte) (Cmd, error) { return &HGetAllCmd{Key: argv[1]}, nil }

func (c *HGetAllCmd) Exec(env *Env) Reply {
	pairs, err := env.Store.HGetAll(string(c.Key))
	if err != nil {
		return errReply(err)
	}
	vs := make([]resp.Value, len(pairs))
	for i, p := range pairs {
		vs[i] = resp.BulkValue(p)
	}
	return one(resp.ArrayValue(vs...))
}
