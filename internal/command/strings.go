package command

import (
	"github.com/alxayo/go-kv/internal/resp"
)

func init() {
	register(Spec{Name: "SET", MinArgc: 3, Parse: parseSet})
	register(Spec{Name: "GET", MinArgc: 2, Parse: parseGet})
	register(Spec{Name: "INCR", MinArgc: 2, Parse: parseIncr})
	register(Spec{Name: "ECHO", MinArgc: 2, Parse: parseEcho})
	register(Spec{Name: "PING", MinArgc: 1, Parse: parsePing})
	register(Spec{Name: "COMMAND", MinArgc: 1, Parse: parseCommand})
}

// SetCmd implements SET key value [PX ms | EX s]. On a master, it fans
// the original argv out to every replica and replies +OK; applied
// silently (no reply) when env.Repl.IsReplica() — the replica's read
// loop reconstructs this same Cmd from frames relayed by its master.
type SetCmd struct {
	Key, Value []byte
	TTLMs      int64
	argv       [][]byte
}

func parseSet(argv [][]byte) (Cmd, error) {
	ttl, err := ttlMsFromOpts("SET", argv[3:])
	if err != nil {
		return nil, err
	}
	return &SetCmd{Key: argv[1], Value: argv[2], TTLMs: ttl, argv: argv}, nil
}

func (c *SetCmd) Exec(env *Env) Reply {
	env.Store.Set(string(c.Key), c.Value, c.TTLMs)
	if env.Repl.IsReplica() {
		return Reply{Silent: true}
	}
	env.Repl.PropagateSET(c.argv)
	env.Repl.SetNeedAck(env.Repl.ReplicaCount() > 0)
	return ok()
}

type GetCmd struct{ Key []byte }

func parseGet(argv [][]byte) (Cmd, error) { return &GetCmd{Key: argv[1]}, nil }

func (c *GetCmd) Exec(env *Env) Reply {
	v, found, err := env.Store.Get(string(c.Key))
	if err != nil {
		return errReply(err)
	}
	if !found {
		return one(resp.NullBulk())
	}
	return one(resp.BulkValue(v))
}

type IncrCmd struct{ Key []byte }

func parseIncr(argv [][]byte) (Cmd, error) { return &IncrCmd{Key: argv[1]}, nil }

func (c *IncrCmd) Exec(env *Env) Reply {
	n, err := env.Store.Incr(string(c.Key))
	if err != nil {
		return errReply(err)
	}
	return one(resp.IntValue(n))
}

type EchoCmd struct{ Msg []byte }

func parseEcho(argv [][]byte) (Cmd, error) { return &EchoCmd{Msg: argv[1]}, nil }

func (c *EchoCmd) Exec(env *Env) Reply { return one(resp.BulkValue(c.Msg)) }

// PingCmd replies +PONG normally, or ["pong", ""] while the session is in
// subscription mode, per spec.md §4.5's subscription-mode reply shape.
type PingCmd struct{}

func parsePing(argv [][]byte) (Cmd, error) { return &PingCmd{}, nil }

func (c *PingCmd) Exec(env *Env) Reply {
	if env.Sess != nil && env.Sess.SubscribedCount() > 0 {
		return one(resp.ArrayValue(resp.BulkValue([]byte("pong")), resp.BulkValue([]byte(""))))
	}
	return one(resp.SimpleStringValue("PONG"))
}

// CommandCmd answers COMMAND and COMMAND DOCS with an empty reply so
// clients that probe capabilities on connect don't fail.
type CommandCmd struct{}

func parseCommand(argv [][]byte) (Cmd, error) { return &CommandCmd{}, nil }

func (c *CommandCmd) Exec(env *Env) Reply { return one(resp.ArrayValue()) }
