package replication

import (
	"fmt"
	"log/slog"
	"net"
	"strings"
	"time"

	"github.com/alxayo/go-kv/internal/command"
	kverrors "github.com/alxayo/go-kv/internal/errors"
	"github.com/alxayo/go-kv/internal/logger"
	"github.com/alxayo/go-kv/internal/resp"
	"github.com/alxayo/go-kv/internal/store"
)

// dialTimeout bounds the initial TCP connect to the master, mirroring
// client.DialTimeout.
const dialTimeout = 5 * time.Second

// handshakeStepTimeout bounds each of the four handshake round-trips,
// mirroring ServerHandshake's per-step read/write deadlines.
const handshakeStepTimeout = 5 * time.Second

// Client is the replica side of the link: it dials a master, completes
// the handshake and then owns a single read loop that applies every
// inbound frame through the same dispatch table a client connection
// uses, advancing Context's offset as it goes.
type Client struct {
	ctx    *Context
	store  *store.Store
	pubsub *command.PubSub
	myPort string
	log    *slog.Logger
}

// NewClient builds a replica client. myPort is advertised to the master
// via REPLCONF listening-port during the handshake.
func NewClient(ctx *Context, st *store.Store, pubsub *command.PubSub, myPort string) *Client {
	return &Client{ctx: ctx, store: st, pubsub: pubsub, myPort: myPort, log: logger.WithReplica(logger.Logger(), "self", "")}
}

// Run dials masterAddr, completes the four-step handshake, keeps the
// returned snapshot bytes on the Context (its entries are not loaded
// into the store), then reads and silently applies the replication
// stream until the connection fails or stopCh closes. Errors are
// wrapped as ReplicationError; kvserver logs them and does not redial.
func (c *Client) Run(masterAddr string, stopCh <-chan struct{}) error {
	d := net.Dialer{Timeout: dialTimeout}
	conn, err := d.Dial("tcp", masterAddr)
	if err != nil {
		return kverrors.NewReplicationError("dial master", err)
	}
	defer conn.Close()

	go func() {
		<-stopCh
		_ = conn.Close()
	}()

	return c.runOnConn(conn)
}

// runOnConn performs the handshake and then the silent-apply loop over
// an already-dialed connection, split out from Run so the handshake/
// apply behavior can be exercised directly over a net.Pipe in tests.
func (c *Client) runOnConn(conn net.Conn) error {
	r := resp.NewReader(conn)
	w := resp.NewWriter(conn)

	if err := c.handshake(conn, r, w); err != nil {
		return err
	}
	return c.applyLoop(r, w)
}

// handshake performs the four numbered steps spec.md §4.6 describes,
// mirroring ServerHandshake's explicit-step, per-step-deadline style.
func (c *Client) handshake(conn net.Conn, r *resp.Reader, w *resp.Writer) error {
	// Step 1: PING -> +PONG
	if err := c.stepWrite(conn, w, resp.BulkStringsFromText("PING")); err != nil {
		return err
	}
	if _, err := c.stepRead(conn, r); err != nil {
		return err
	}

	// Step 2: REPLCONF listening-port <port> -> +OK
	if err := c.stepWrite(conn, w, resp.BulkStringsFromText("REPLCONF", "listening-port", c.myPort)); err != nil {
		return err
	}
	if _, err := c.stepRead(conn, r); err != nil {
		return err
	}

	// Step 3: REPLCONF capa psync2 -> +OK
	if err := c.stepWrite(conn, w, resp.BulkStringsFromText("REPLCONF", "capa", "psync2")); err != nil {
		return err
	}
	if _, err := c.stepRead(conn, r); err != nil {
		return err
	}

	// Step 4: PSYNC ? -1 -> +FULLRESYNC <id> 0, then a raw-bulk snapshot.
	if err := c.stepWrite(conn, w, resp.BulkStringsFromText("PSYNC", "?", "-1")); err != nil {
		return err
	}
	header, err := c.stepRead(conn, r)
	if err != nil {
		return err
	}
	if header.Type != resp.SimpleString || !strings.HasPrefix(header.Str, "FULLRESYNC") {
		return kverrors.NewReplicationError("psync handshake", fmt.Errorf("unexpected header %q", header.Str))
	}
	snapshot, err := c.stepRead(conn, r)
	if err != nil {
		return err
	}
	if b, ok := snapshot.AsBytes(); ok {
		c.ctx.SetSnapshot(b)
	}

	if err := conn.SetReadDeadline(time.Time{}); err != nil {
		c.log.Warn("failed to clear read deadline after handshake", "error", err)
	}
	return nil
}

func (c *Client) stepWrite(conn net.Conn, w *resp.Writer, v resp.Value) error {
	if err := conn.SetWriteDeadline(time.Now().Add(handshakeStepTimeout)); err != nil {
		return kverrors.NewReplicationError("set write deadline", err)
	}
	if err := w.WriteValues(v); err != nil {
		return kverrors.NewReplicationError("handshake write", err)
	}
	return nil
}

func (c *Client) stepRead(conn net.Conn, r *resp.Reader) (resp.Value, error) {
	if err := conn.SetReadDeadline(time.Now().Add(handshakeStepTimeout)); err != nil {
		return resp.Value{}, kverrors.NewReplicationError("set read deadline", err)
	}
	v, err := r.ReadValue()
	if err != nil {
		return resp.Value{}, kverrors.NewReplicationError("handshake read", err)
	}
	return v, nil
}

// applyLoop reads frames off the master connection for the lifetime of
// the link, applying each through the shared dispatch table and
// advancing Context's offset by the frame's encoded byte length — after
// handling, except that a GETACK's ACK must report the offset before
// this frame is counted (Offset() is read inside ReplConfCmd.Exec,
// which runs before this loop's post-dispatch offset advance below).
func (c *Client) applyLoop(r *resp.Reader, w *resp.Writer) error {
	writerAdapter := &replyWriter{w: w}
	for {
		before := r.BytesRead()
		v, err := r.ReadValue()
		if err != nil {
			return kverrors.NewReplicationError("replication stream read", err)
		}
		argv, ok := v.AsArgv()
		if !ok || len(argv) == 0 {
			continue
		}
		delta := r.BytesRead() - before

		env := &command.Env{
			Store:  c.store,
			PubSub: c.pubsub,
			Repl:   c.ctx,
			Sess:   replicaSelfSession{w: writerAdapter},
			Now:    func() int64 { return time.Now().UnixMilli() },
		}
		reply := command.Dispatch(argv, env)

		name := strings.ToUpper(string(argv[0]))
		if !reply.Silent && name == "REPLCONF" {
			if err := w.WriteValues(reply.Values...); err != nil {
				return kverrors.NewReplicationError("ack write", err)
			}
		}

		c.ctx.mu.Lock()
		c.ctx.offset += delta
		c.ctx.mu.Unlock()
	}
}

// replyWriter adapts resp.Writer to command.Writer for the rare case a
// dispatched command writes back to the master (REPLCONF ACK).
type replyWriter struct{ w *resp.Writer }

func (r *replyWriter) Write(v resp.Value) error { return r.w.WriteValues(v) }

// replicaSelfSession is a minimal command.Session for frames applied on
// the replica side: it has no subscribers or transaction state of its
// own, and its ID is the fixed string used for ack bookkeeping (the
// replica's own applied offset, not a registered fan-out target).
type replicaSelfSession struct {
	w command.Writer
}

func (s replicaSelfSession) Write(v resp.Value) error    { return s.w.Write(v) }
func (s replicaSelfSession) ID() string                  { return "master-link" }
func (s replicaSelfSession) SubscribedCount() int        { return 0 }
func (s replicaSelfSession) Subscribe(ch string) int     { return 0 }
func (s replicaSelfSession) Unsubscribe(ch string) int   { return 0 }
func (s replicaSelfSession) IsSubscribed(ch string) bool { return false }
func (s replicaSelfSession) PromoteToReplica()           {}
