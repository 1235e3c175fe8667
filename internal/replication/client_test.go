package replication

import (
	"net"
	"testing"
	"time"

	"github.com/alxayo/go-kv/internal/command"
	"github.com/alxayo/go-kv/internal/resp"
	"github.com/alxayo/go-kv/internal/store"
)

// fakeMaster plays the master side of the handshake + replication stream
// over a net.Pipe so Client.Run can be exercised without a real listener.
func fakeMaster(t *testing.T, conn net.Conn, afterHandshake func(r *resp.Reader, w *resp.Writer)) {
	t.Helper()
	r := resp.NewReader(conn)
	w := resp.NewWriter(conn)

	// Step 1: PING
	if _, err := r.ReadValue(); err != nil {
		t.Errorf("fakeMaster: read PING: %v", err)
		return
	}
	if err := w.WriteValues(resp.SimpleStringValue("PONG")); err != nil {
		t.Errorf("fakeMaster: write PONG: %v", err)
		return
	}

	// Step 2: REPLCONF listening-port
	if _, err := r.ReadValue(); err != nil {
		t.Errorf("fakeMaster: read listening-port: %v", err)
		return
	}
	if err := w.WriteValues(resp.SimpleStringValue("OK")); err != nil {
		t.Errorf("fakeMaster: write OK: %v", err)
		return
	}

	// Step 3: REPLCONF capa psync2
	if _, err := r.ReadValue(); err != nil {
		t.Errorf("fakeMaster: read capa: %v", err)
		return
	}
	if err := w.WriteValues(resp.SimpleStringValue("OK")); err != nil {
		t.Errorf("fakeMaster: write OK: %v", err)
		return
	}

	// Step 4: PSYNC ? -1
	if _, err := r.ReadValue(); err != nil {
		t.Errorf("fakeMaster: read PSYNC: %v", err)
		return
	}
	if err := w.WriteValues(resp.SimpleStringValue("FULLRESYNC abc123 0")); err != nil {
		t.Errorf("fakeMaster: write FULLRESYNC: %v", err)
		return
	}
	if err := w.WriteValues(resp.RawBulkValue(defaultSnapshot)); err != nil {
		t.Errorf("fakeMaster: write snapshot: %v", err)
		return
	}

	afterHandshake(r, w)
}

func TestClientHandshakeAndSilentApply(t *testing.T) {
	clientConn, masterConn := net.Pipe()
	defer clientConn.Close()
	defer masterConn.Close()

	done := make(chan struct{})
	go func() {
		defer close(done)
		fakeMaster(t, masterConn, func(r *resp.Reader, w *resp.Writer) {
			if err := w.WriteValues(resp.BulkStringsFromText("SET", "foo", "bar")); err != nil {
				t.Errorf("fakeMaster: write SET: %v", err)
				return
			}
			// Give the client time to apply before closing.
			time.Sleep(20 * time.Millisecond)
		})
	}()

	st := store.New()
	ctx := NewReplica("")
	cl := NewClient(ctx, st, command.NewPubSub(), "6380")

	stopCh := make(chan struct{})
	errCh := make(chan error, 1)
	go func() {
		errCh <- cl.runOnConn(clientConn)
	}()

	time.Sleep(50 * time.Millisecond)
	close(stopCh)
	_ = clientConn.Close()
	<-done

	v, found, err := st.Get("foo")
	if err != nil || !found || string(v) != "bar" {
		t.Fatalf("expected replicated SET to apply, got %q found=%v err=%v", v, found, err)
	}
}

func TestClientGetAckReportsOffsetBeforeFrame(t *testing.T) {
	clientConn, masterConn := net.Pipe()
	defer clientConn.Close()
	defer masterConn.Close()

	ackCh := make(chan resp.Value, 1)
	go func() {
		fakeMaster(t, masterConn, func(r *resp.Reader, w *resp.Writer) {
			if err := w.WriteValues(resp.BulkStringsFromText("SET", "foo", "bar")); err != nil {
				t.Errorf("fakeMaster: write SET: %v", err)
				return
			}
			if err := w.WriteValues(resp.BulkStringsFromText("REPLCONF", "GETACK", "*")); err != nil {
				t.Errorf("fakeMaster: write GETACK: %v", err)
				return
			}
			v, err := r.ReadValue()
			if err != nil {
				t.Errorf("fakeMaster: read ACK: %v", err)
				return
			}
			ackCh <- v
		})
	}()

	st := store.New()
	ctx := NewReplica("")
	cl := NewClient(ctx, st, command.NewPubSub(), "6380")
	go func() { _ = cl.runOnConn(clientConn) }()

	select {
	case v := <-ackCh:
		argv, ok := v.AsArgv()
		if !ok || len(argv) != 3 || string(argv[2]) != "31" {
			t.Fatalf("expected ACK offset 31 (the SET frame's byte length), got %+v", argv)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for ACK")
	}
}
