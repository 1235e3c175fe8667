// Package command implements the key/value server's command set: argv
// parsing into typed command structs and execution against the shared
// Store, the pub/sub registry, and a pluggable replication backend.
//
// The dispatch table is a static map[string]Spec built at package init,
// generalizing internal/rtmp/rpc.Dispatcher's switch-on-name routing
// into a data-driven table — each Spec pairs a minimum arity with a
// parse function, so adding a command never touches the dispatch loop
// itself.
package command

import (
	"context"

	"github.com/alxayo/go-kv/internal/resp"
	"github.com/alxayo/go-kv/internal/store"
)

// Writer is anything that can deliver a reply frame to a connection:
// implemented by internal/session.Session and, for replica fan-out
// targets, by whatever wraps a replica's outbound socket.
type Writer interface {
	Write(v Value) error
}

// Value is a local alias so command package files don't need to spell
// out the resp package name at every call site; it is exactly resp.Value.
type Value = resp.Value

// Replicator is the narrow view of master/replica state a command
// handler needs. internal/replication.Context implements it; command
// never imports internal/replication directly, which keeps the
// replica-side Client (which executes decoded frames through this same
// dispatch table) from creating an import cycle.
type Replicator interface {
	IsReplica() bool
	Role() string
	Replid() string
	Offset() int64
	SnapshotBytes() []byte
	PropagateSET(argv [][]byte)
	NeedAck() bool
	SetNeedAck(need bool)
	RegisterReplica(id string, w Writer)
	UnregisterReplica(id string)
	RecordAck(id string, offset int64)
	Wait(ctx context.Context, numReplicas int, timeoutMs int) int
	ReplicaCount() int
}

// Session is the narrow view of per-connection state a command handler
// needs: subscription-set bookkeeping and the ability to promote the
// connection to a replica channel on PSYNC.
type Session interface {
	Writer
	ID() string
	SubscribedCount() int
	Subscribe(ch string) int
	Unsubscribe(ch string) int
	IsSubscribed(ch string) bool
	PromoteToReplica()
}

// Env bundles everything a command Exec method can act on. Ctx is the
// owning connection's lifetime context: blocking commands (BLPOP,
// blocking XREAD) select on it so a closed connection unparks them
// immediately rather than leaking a goroutine until their timeout fires.
type Env struct {
	Ctx    context.Context
	Store  *store.Store
	PubSub *PubSub
	Repl   Replicator
	Sess   Session
	Now    func() int64
}
