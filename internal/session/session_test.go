package session

import (
	"bufio"
	"context"
	"net"
	"testing"
	"time"

	"github.com/alxayo/go-kv/internal/command"
	"github.com/alxayo/go-kv/internal/store"
)

type fakeReplicator struct {
	replid       string
	registered   map[string]bool
	unregistered []string
}

func (f *fakeReplicator) IsReplica() bool       { return false }
func (f *fakeReplicator) Role() string          { return "master" }
func (f *fakeReplicator) Replid() string        { return f.replid }
func (f *fakeReplicator) Offset() int64         { return 0 }
func (f *fakeReplicator) SnapshotBytes() []byte { return []byte("REDIS0011") }
func (f *fakeReplicator) PropagateSET(argv [][]byte) {}
func (f *fakeReplicator) NeedAck() bool              { return false }
func (f *fakeReplicator) SetNeedAck(need bool)       {}
func (f *fakeReplicator) RegisterReplica(id string, w command.Writer) {
	if f.registered == nil {
		f.registered = make(map[string]bool)
	}
	f.registered[id] = true
}
func (f *fakeReplicator) UnregisterReplica(id string) {
	delete(f.registered, id)
	f.unregistered = append(f.unregistered, id)
}
func (f *fakeReplicator) RecordAck(id string, offset int64)                            {}
func (f *fakeReplicator) Wait(ctx context.Context, numReplicas int, timeoutMs int) int { return 0 }
func (f *fakeReplicator) ReplicaCount() int                                            { return 0 }

func newTestSession(t *testing.T) (*Session, net.Conn) {
	t.Helper()
	s, client, _, _ := newTestSessionWithDeps(t)
	return s, client
}

func newTestSessionWithDeps(t *testing.T) (*Session, net.Conn, *command.PubSub, *fakeReplicator) {
	t.Helper()
	client, server := net.Pipe()
	pubsub := command.NewPubSub()
	repl := &fakeReplicator{replid: "replid123"}
	s := New(server, store.New(), pubsub, repl)
	go s.Serve()
	t.Cleanup(func() { _ = client.Close() })
	return s, client, pubsub, repl
}

func sendCmd(t *testing.T, w *bufio.Writer, parts ...string) {
	t.Helper()
	w.WriteString("*")
	w.WriteString(itoa(len(parts)))
	w.WriteString("\r\n")
	for _, p := range parts {
		w.WriteString("$")
		w.WriteString(itoa(len(p)))
		w.WriteString("\r\n")
		w.WriteString(p)
		w.WriteString("\r\n")
	}
	w.Flush()
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	digits := ""
	for n > 0 {
		digits = string(rune('0'+n%10)) + digits
		n /= 10
	}
	return digits
}

func readLine(t *testing.T, r *bufio.Reader) string {
	t.Helper()
	line, err := r.ReadString('\n')
	if err != nil {
		t.Fatalf("read error: %v", err)
	}
	return line
}

func TestServeHandlesSetGet(t *testing.T) {
	_, client := newTestSession(t)
	client.SetDeadline(time.Now().Add(2 * time.Second))
	w := bufio.NewWriter(client)
	r := bufio.NewReader(client)

	sendCmd(t, w, "SET", "foo", "bar")
	if line := readLine(t, r); line != "+OK\r\n" {
		t.Fatalf("expected +OK, got %q", line)
	}

	sendCmd(t, w, "GET", "foo")
	if line := readLine(t, r); line != "$3\r\n" {
		t.Fatalf("expected bulk header, got %q", line)
	}
	if line := readLine(t, r); line != "bar\r\n" {
		t.Fatalf("expected bar, got %q", line)
	}
}

func TestServeMultiExecQueuesThenRuns(t *testing.T) {
	_, client := newTestSession(t)
	client.SetDeadline(time.Now().Add(2 * time.Second))
	w := bufio.NewWriter(client)
	r := bufio.NewReader(client)

	sendCmd(t, w, "MULTI")
	if line := readLine(t, r); line != "+OK\r\n" {
		t.Fatalf("expected +OK for MULTI, got %q", line)
	}
	sendCmd(t, w, "SET", "k", "v")
	if line := readLine(t, r); line != "+QUEUED\r\n" {
		t.Fatalf("expected +QUEUED, got %q", line)
	}
	sendCmd(t, w, "EXEC")
	if line := readLine(t, r); line != "*1\r\n" {
		t.Fatalf("expected array of 1 reply, got %q", line)
	}
	if line := readLine(t, r); line != "+OK\r\n" {
		t.Fatalf("expected +OK from queued SET, got %q", line)
	}
}

func TestServeExecWithoutMultiErrors(t *testing.T) {
	_, client := newTestSession(t)
	client.SetDeadline(time.Now().Add(2 * time.Second))
	w := bufio.NewWriter(client)
	r := bufio.NewReader(client)

	sendCmd(t, w, "EXEC")
	line := readLine(t, r)
	if line[0] != '-' {
		t.Fatalf("expected error reply, got %q", line)
	}
}

func TestServeSubscriptionModeGate(t *testing.T) {
	_, client := newTestSession(t)
	client.SetDeadline(time.Now().Add(2 * time.Second))
	w := bufio.NewWriter(client)
	r := bufio.NewReader(client)

	sendCmd(t, w, "SUBSCRIBE", "ch")
	if line := readLine(t, r); line != "*3\r\n" {
		t.Fatalf("expected 3-element array, got %q", line)
	}
	readLine(t, r) // $9\r\n
	readLine(t, r) // subscribe\r\n
	readLine(t, r) // $2\r\n
	readLine(t, r) // ch\r\n
	readLine(t, r) // :1\r\n

	sendCmd(t, w, "GET", "foo")
	line := readLine(t, r)
	if line[0] != '-' {
		t.Fatalf("expected the subscription-mode gate to reject GET, got %q", line)
	}
}

func TestCloseUnsubscribesFromEveryChannel(t *testing.T) {
	s, client, pubsub, _ := newTestSessionWithDeps(t)
	client.SetDeadline(time.Now().Add(2 * time.Second))
	w := bufio.NewWriter(client)
	r := bufio.NewReader(client)

	sendCmd(t, w, "SUBSCRIBE", "ch")
	for i := 0; i < 5; i++ {
		readLine(t, r)
	}

	if got := pubsub.Publish("ch", []byte("x")); got != 1 {
		t.Fatalf("expected 1 subscriber before close, got %d", got)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("unexpected Close error: %v", err)
	}

	if got := pubsub.Publish("ch", []byte("x")); got != 0 {
		t.Fatalf("expected Close to remove the session from PubSub, but %d subscriber(s) remain", got)
	}
}

func TestCloseUnregistersAPromotedReplica(t *testing.T) {
	s, client, _, repl := newTestSessionWithDeps(t)
	client.SetDeadline(time.Now().Add(2 * time.Second))
	w := bufio.NewWriter(client)
	r := bufio.NewReader(client)

	sendCmd(t, w, "PSYNC", "?", "-1")
	readLine(t, r) // +FULLRESYNC ...
	readLine(t, r) // $<len>\r\n (raw bulk snapshot header)

	if len(repl.registered) != 1 {
		t.Fatalf("expected PSYNC to register this session as a replica, got %v", repl.registered)
	}

	if err := s.Close(); err != nil {
		t.Fatalf("unexpected Close error: %v", err)
	}

	if len(repl.registered) != 0 {
		t.Fatalf("expected Close to unregister the replica, still registered: %v", repl.registered)
	}
	if len(repl.unregistered) != 1 || repl.unregistered[0] != s.ID() {
		t.Fatalf("expected UnregisterReplica(%q) to be called once, got %v", s.ID(), repl.unregistered)
	}
}
