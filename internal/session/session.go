// Package session implements the per-connection protocol state machine:
// read/dispatch/write lifecycle, the MULTI/EXEC/DISCARD transaction
// queue, and the subscription-mode command gate. It is grounded on
// internal/rtmp/conn.Connection's lifecycle shape (context/cancel pair,
// WaitGroup-joined goroutines, a bounded outbound channel written by a
// dedicated writer goroutine with short-timeout backpressure) and
// internal/rtmp/conn.Session's "mutated only by the command-handling
// goroutine; no locks required" convention for everything that is not
// shared process-wide state.
package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/alxayo/go-kv/internal/command"
	kverrors "github.com/alxayo/go-kv/internal/errors"
	"github.com/alxayo/go-kv/internal/logger"
	"github.com/alxayo/go-kv/internal/resp"
	"github.com/alxayo/go-kv/internal/store"

	"github.com/google/uuid"
)

// outboundTimeout bounds how long a blocked subscriber/replica write
// queue may stay full before sendFrames gives up, mirroring
// Connection.SendMessage's 200ms backpressure window.
const outboundTimeout = 200 * time.Millisecond

// subscriptionModeAllowed is the fixed set of commands permitted while a
// session has at least one active subscription (spec.md §4.5).
var subscriptionModeAllowed = map[string]bool{
	"SUBSCRIBE": true, "UNSUBSCRIBE": true,
	"PSUBSCRIBE": true, "PUNSUBSCRIBE": true,
	"PING": true, "QUIT": true, "RESET": true,
}

// Session owns one accepted connection: its own goroutine reads and
// dispatches commands; a single writer goroutine drains the outbound
// queue. Only the owning goroutine touches subs/inTx/txQueue/isReplica,
// so none of that state needs its own lock.
type Session struct {
	id   string
	conn net.Conn
	log  *slog.Logger

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	outbound chan []resp.Value

	store  *store.Store
	pubsub *command.PubSub
	repl   command.Replicator

	subs      map[string]bool
	inTx      bool
	txQueue   [][][]byte
	isReplica bool

	closeOnce sync.Once
}

// New wraps an accepted connection. Callers must call Serve to begin the
// read/dispatch/write loop.
func New(conn net.Conn, st *store.Store, pubsub *command.PubSub, repl command.Replicator) *Session {
	id := uuid.NewString()
	ctx, cancel := context.WithCancel(context.Background())
	return &Session{
		id:       id,
		conn:     conn,
		log:      logger.WithConn(logger.Logger(), id, conn.RemoteAddr().String()),
		ctx:      ctx,
		cancel:   cancel,
		outbound: make(chan []resp.Value, 64),
		store:    st,
		pubsub:   pubsub,
		repl:     repl,
		subs:     make(map[string]bool),
	}
}

func (s *Session) ID() string { return s.id }

// Write implements command.Writer for subscribers and replica fan-out:
// a single frame is queued for the writer goroutine with the same
// bounded backpressure sendFrames uses.
func (s *Session) Write(v resp.Value) error { return s.sendFrames([]resp.Value{v}) }

func (s *Session) SubscribedCount() int { return len(s.subs) }

func (s *Session) Subscribe(ch string) int {
	s.subs[ch] = true
	return len(s.subs)
}

func (s *Session) Unsubscribe(ch string) int {
	delete(s.subs, ch)
	return len(s.subs)
}

func (s *Session) IsSubscribed(ch string) bool { return s.subs[ch] }

// PromoteToReplica marks the connection as a replica channel: the read
// loop stops dispatching ordinary commands and only services REPLCONF
// ACK traffic from here on, per spec.md §4.6.
func (s *Session) PromoteToReplica() { s.isReplica = true }

// Close cancels the session's context and closes the underlying
// connection, then waits for the writer goroutine to exit. Before
// tearing down the connection it removes this session from every
// process-wide registry it joined — PubSub's per-channel subscriber set
// and, if this connection was promoted by PSYNC, the replication
// fan-out set — per spec.md §3's "connection teardown removes from all"
// invariant. Only the first call does this work; later calls (such as
// Serve's deferred Close after an explicit one) wait for it and return.
func (s *Session) Close() error {
	s.closeOnce.Do(func() {
		for ch := range s.subs {
			s.pubsub.Unsubscribe(ch, s.id)
		}
		if s.isReplica {
			s.repl.UnregisterReplica(s.id)
		}

		s.cancel()
		_ = s.conn.Close()
		s.wg.Wait()
	})
	return nil
}

func (s *Session) sendFrames(vs []resp.Value) error {
	if len(vs) == 0 {
		return nil
	}
	t := time.NewTimer(outboundTimeout)
	defer t.Stop()
	select {
	case <-s.ctx.Done():
		return context.Canceled
	case s.outbound <- vs:
		return nil
	case <-t.C:
		return fmt.Errorf("session %s: outbound queue full", s.id)
	}
}

func (s *Session) startWriter() {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		w := resp.NewWriter(s.conn)
		for {
			select {
			case <-s.ctx.Done():
				return
			case vs, ok := <-s.outbound:
				if !ok {
					return
				}
				if err := w.WriteValues(vs...); err != nil {
					s.log.Debug("writer exiting", "error", err)
					return
				}
			}
		}
	}()
}

// Serve runs the read/dispatch loop on the calling goroutine until the
// connection closes or a ParseError is hit, starting the writer
// goroutine first so replies and any already-queued fan-out cannot be
// dropped while the writer spins up.
func (s *Session) Serve() {
	s.startWriter()
	defer s.Close()

	r := resp.NewReader(s.conn)
	for {
		v, err := r.ReadValue()
		if err != nil {
			if !errors.Is(err, context.Canceled) {
				s.log.Debug("read loop closed", "error", err)
			}
			return
		}
		argv, ok := v.AsArgv()
		if !ok || len(argv) == 0 {
			s.reply([]resp.Value{resp.ErrorValue(kverrors.NewParseError("dispatch", nil).Error())})
			return
		}

		if s.isReplica {
			s.handleReplicaInbound(argv)
			continue
		}

		s.handleClientCommand(argv)
	}
}

// handleReplicaInbound is reached only on the master side, after PSYNC
// promoted this connection: the only legitimate traffic left is
// REPLCONF ACK.
func (s *Session) handleReplicaInbound(argv [][]byte) {
	name := strings.ToUpper(string(argv[0]))
	if name != "REPLCONF" {
		return
	}
	reply := command.Dispatch(argv, s.env())
	if !reply.Silent {
		_ = s.sendFrames(reply.Values)
	}
}

func (s *Session) handleClientCommand(argv [][]byte) {
	name := strings.ToUpper(string(argv[0]))

	if s.SubscribedCount() > 0 && !subscriptionModeAllowed[name] {
		msg := fmt.Sprintf("Can't execute '%s': only (P|S)SUBSCRIBE / (P|S)UNSUBSCRIBE / PING / QUIT / RESET are allowed in this context", strings.ToLower(name))
		s.reply([]resp.Value{resp.ErrorValue(msg)})
		return
	}

	switch name {
	case "MULTI":
		if s.inTx {
			s.reply([]resp.Value{resp.ErrorValue("MULTI calls can not be nested")})
			return
		}
		s.inTx = true
		s.txQueue = nil
		s.reply([]resp.Value{resp.SimpleStringValue("OK")})
	case "EXEC":
		if !s.inTx {
			s.reply([]resp.Value{resp.ErrorValue("EXEC without MULTI")})
			return
		}
		s.execTransaction()
	case "DISCARD":
		if !s.inTx {
			s.reply([]resp.Value{resp.ErrorValue("DISCARD without MULTI")})
			return
		}
		s.inTx = false
		s.txQueue = nil
		s.reply([]resp.Value{resp.SimpleStringValue("OK")})
	default:
		if s.inTx {
			s.txQueue = append(s.txQueue, argv)
			s.reply([]resp.Value{resp.SimpleStringValue("QUEUED")})
			return
		}
		reply := command.Dispatch(argv, s.env())
		if !reply.Silent {
			s.reply(reply.Values)
		}
	}
}

// execTransaction runs every queued command through the same Env this
// session would use outside a transaction, so side effects land in the
// same Store/PubSub/Replicator the connection was opened under.
func (s *Session) execTransaction() {
	s.inTx = false
	queued := s.txQueue
	s.txQueue = nil

	out := make([]resp.Value, 0, len(queued))
	for _, argv := range queued {
		r := command.Dispatch(argv, s.env())
		if len(r.Values) == 1 {
			out = append(out, r.Values[0])
		} else {
			out = append(out, resp.ArrayValue(r.Values...))
		}
	}
	s.reply([]resp.Value{resp.ArrayValue(out...)})
}

func (s *Session) reply(vs []resp.Value) {
	if err := s.sendFrames(vs); err != nil {
		s.log.Debug("reply dropped", "error", err)
	}
}

func (s *Session) env() *command.Env {
	return &command.Env{
		Ctx:    s.ctx,
		Store:  s.store,
		PubSub: s.pubsub,
		Repl:   s.repl,
		Sess:   s,
		Now:    func() int64 { return time.Now().UnixMilli() },
	}
}
