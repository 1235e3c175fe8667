// Package replication implements both sides of the master/replica link:
// a master-side Context tracking the replica list, replication offset
// and pending-ack state, and a replica-side Client that dials a master,
// completes the four-step handshake and silently applies the inbound
// command stream. Context implements command.Replicator so the command
// dispatch table can reach it without internal/command importing this
// package back.
//
// The master-side replica registry and SET fan-out are grounded on
// internal/rtmp/server.Registry (RWMutex-guarded map) and
// internal/rtmp/relay.DestinationManager.RelayMessage (RLock-snapshot
// the targets, release the lock, then fan out with a WaitGroup and
// wg.Wait() so per-replica ordering is preserved without holding the
// registry lock across I/O).
package replication

import (
	"context"
	"fmt"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alxayo/go-kv/internal/command"
	kverrors "github.com/alxayo/go-kv/internal/errors"
	"github.com/alxayo/go-kv/internal/logger"
	"github.com/alxayo/go-kv/internal/resp"
)

// defaultSnapshot is the fixed empty-snapshot payload spec.md §4.6
// mandates when no real snapshot has been loaded: the "REDIS0011"
// header, no entries, an FF terminator and an 8-byte (zero) CRC.
var defaultSnapshot = append([]byte("REDIS0011"), 0xFF, 0, 0, 0, 0, 0, 0, 0, 0)

// getAckPollInterval bounds how often Wait re-checks whether a replica's
// recorded ack has caught up to the target offset.
const getAckPollInterval = 5 * time.Millisecond

// Context is the process-wide replication state: replica registry,
// replication offset, and the need_replica_ack flag spec.md §4 assigns
// to SET. One instance is shared by every session on a process.
type Context struct {
	mu sync.RWMutex

	role   string // "master" or "slave"
	replid string
	offset int64

	replicas map[string]command.Writer
	acks     map[string]int64

	needAck bool

	snapshot []byte
}

// NewMaster returns a Context in the master role with the given replid
// and the fixed default snapshot.
func NewMaster(replid string) *Context {
	return &Context{
		role:     "master",
		replid:   replid,
		replicas: make(map[string]command.Writer),
		acks:     make(map[string]int64),
		snapshot: defaultSnapshot,
	}
}

// NewReplica returns a Context in the slave role, used by a process
// started with --replicaof.
func NewReplica(replid string) *Context {
	c := NewMaster(replid)
	c.role = "slave"
	return c
}

// SetSnapshot overrides the payload PSYNC replies with, e.g. once
// internal/snapshot has loaded a real dump at startup.
func (c *Context) SetSnapshot(b []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snapshot = b
}

func (c *Context) IsReplica() bool { c.mu.RLock(); defer c.mu.RUnlock(); return c.role == "slave" }
func (c *Context) Role() string    { c.mu.RLock(); defer c.mu.RUnlock(); return c.role }
func (c *Context) Replid() string  { c.mu.RLock(); defer c.mu.RUnlock(); return c.replid }
func (c *Context) Offset() int64   { c.mu.RLock(); defer c.mu.RUnlock(); return c.offset }

func (c *Context) SnapshotBytes() []byte {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.snapshot
}

func (c *Context) NeedAck() bool { c.mu.RLock(); defer c.mu.RUnlock(); return c.needAck }

func (c *Context) SetNeedAck(need bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.needAck = need
}

func (c *Context) ReplicaCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.replicas)
}

// RegisterReplica enrolls a newly PSYNC'd connection into the fan-out
// set, grounded on Registry.CreateStream's lock-upgrade pattern.
func (c *Context) RegisterReplica(id string, w command.Writer) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.replicas[id] = w
	c.acks[id] = 0
}

// UnregisterReplica drops a replica from the fan-out set, used when its
// session closes.
func (c *Context) UnregisterReplica(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.replicas, id)
	delete(c.acks, id)
}

// RecordAck stores the offset a replica most recently reported via
// REPLCONF ACK, read back by Wait's polling loop.
func (c *Context) RecordAck(id string, offset int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if offset > c.acks[id] {
		c.acks[id] = offset
	}
}

func (c *Context) ackAtLeast(id string, target int64) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.acks[id] >= target
}

// PropagateSET fans the original argv out to every registered replica,
// re-encoded as an array of bulk strings, exactly as the master received
// it from the client. Snapshotting the destination list under a read
// lock and releasing it before the write loop mirrors
// DestinationManager.RelayMessage: "synchronous relay to prevent message
// reordering", here applied per-replica instead of per-destination.
func (c *Context) PropagateSET(argv [][]byte) {
	c.mu.RLock()
	targets := make(map[string]command.Writer, len(c.replicas))
	for id, w := range c.replicas {
		targets[id] = w
	}
	c.mu.RUnlock()
	if len(targets) == 0 {
		return
	}

	bulks := make([][]byte, len(argv))
	copy(bulks, argv)
	frame := resp.BulkStrings(bulks...)
	frameLen := int64(resp.EncodedLen(frame))

	var wg sync.WaitGroup
	for id, w := range targets {
		wg.Add(1)
		go func(id string, w command.Writer) {
			defer wg.Done()
			if err := w.Write(frame); err != nil {
				logger.Warn("replica fan-out write failed", "replica_id", id, "error", err)
			}
		}(id, w)
	}
	wg.Wait()

	c.mu.Lock()
	c.offset += frameLen
	c.mu.Unlock()
}

// Wait implements WAIT's "send REPLCONF GETACK * to every replica in
// parallel, wait up to the deadline with all-complete semantics, cancel
// stragglers, return the count that responded" contract. A plain
// sync.WaitGroup (as used by PropagateSET) cannot express "stop waiting
// for stragglers at a deadline" — that needs the cancellable group
// errgroup provides, derived from ctx's own deadline.
func (c *Context) Wait(ctx context.Context, numReplicas int, timeoutMs int) int {
	c.mu.RLock()
	target := c.offset
	targets := make(map[string]command.Writer, len(c.replicas))
	for id, w := range c.replicas {
		targets[id] = w
	}
	c.mu.RUnlock()

	if len(targets) == 0 {
		return 0
	}

	g, gctx := errgroup.WithContext(ctx)
	var mu sync.Mutex
	acked := 0

	for id, w := range targets {
		id, w := id, w
		g.Go(func() error {
			if w != nil {
				ack := resp.BulkStringsFromText("REPLCONF", "GETACK", "*")
				if err := w.Write(ack); err != nil {
					return kverrors.NewReplicationError(fmt.Sprintf("getack %s", id), err)
				}
			}
			ticker := time.NewTicker(getAckPollInterval)
			defer ticker.Stop()
			for {
				if c.ackAtLeast(id, target) {
					mu.Lock()
					acked++
					mu.Unlock()
					return nil
				}
				select {
				case <-gctx.Done():
					return gctx.Err()
				case <-ticker.C:
				}
			}
		})
	}
	_ = g.Wait()

	return acked
}
