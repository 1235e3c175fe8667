package command

import (
	"strings"

	kverrors "github.com/alxayo/go-kv/internal/errors"
	"github.com/alxayo/go-kv/internal/resp"
)

// Reply is what a command's Exec produces: zero or more frames to write
// as a single contiguous reply, or Silent for a replica's suppressed
// apply of a propagated frame.
type Reply struct {
	Values []Value
	Silent bool
}

func one(v Value) Reply { return Reply{Values: []Value{v}} }

func ok() Reply { return one(resp.SimpleStringValue("OK")) }

func errReply(err error) Reply { return one(resp.ErrorValue(err.Error())) }

// Cmd is a parsed, ready-to-run command.
type Cmd interface {
	Exec(env *Env) Reply
}

// ParseFunc builds a Cmd from argv (argv[0] is the command name).
type ParseFunc func(argv [][]byte) (Cmd, error)

// Spec describes one dispatchable command.
type Spec struct {
	Name    string
	MinArgc int // including the command name itself
	Parse   ParseFunc
}

var table = make(map[string]Spec)

func register(s Spec) { table[s.Name] = s }

// Lookup returns the Spec registered for name (case-insensitive), or
// false if no such command exists.
func Lookup(name string) (Spec, bool) {
	s, ok := table[strings.ToUpper(name)]
	return s, ok
}

// Dispatch parses and executes argv against env. argv[0] is matched
// case-insensitively against the registered command table.
func Dispatch(argv [][]byte, env *Env) Reply {
	if len(argv) == 0 {
		return errReply(kverrors.NewParseError("dispatch", nil))
	}
	name := strings.ToUpper(string(argv[0]))
	spec, ok := table[name]
	if !ok {
		return errReply(kverrors.NewInvalidArgument("dispatch", unknownCommandErr(string(argv[0]))))
	}
	if len(argv) < spec.MinArgc {
		return errReply(kverrors.NewCommandArityError(name))
	}
	cmd, err := spec.Parse(argv)
	if err != nil {
		return errReply(err)
	}
	return cmd.Exec(env)
}

type unknownCommandErr string

func (e unknownCommandErr) Error() string { return "unknown command '" + string(e) + "'" }
