// Package kvserver wires the command, session, store, replication and
// metrics packages into one process: a TCP accept loop tracking live
// connections, grounded on internal/rtmp/server.Server's
// listen/acceptLoop/Stop shape (RWMutex-guarded connection map,
// singleConnListener-free direct net.Listener here since there is no
// handshake burst to special-case).
package kvserver

import (
	"errors"
	"fmt"
	"log/slog"
	"net"
	"sync"

	"github.com/alxayo/go-kv/internal/command"
	"github.com/alxayo/go-kv/internal/logger"
	"github.com/alxayo/go-kv/internal/metrics"
	"github.com/alxayo/go-kv/internal/replication"
	"github.com/alxayo/go-kv/internal/session"
	"github.com/alxayo/go-kv/internal/snapshot"
	"github.com/alxayo/go-kv/internal/store"
)

// Config holds the server's startup knobs, mirroring spec.md §6's flags
// plus the ambient additions (metrics address, log level handled by
// cmd/kv-server directly).
type Config struct {
	ListenAddr  string // host:port to accept client connections on
	ReplicaOf   string // master's "host:port" to dial, empty means master
	Dir         string
	DBFilename  string
	MetricsAddr string // empty disables the metrics HTTP server
}

func (c *Config) applyDefaults() {
	if c.ListenAddr == "" {
		c.ListenAddr = ":6379"
	}
}

// Server owns the listener, the shared Store/PubSub/replication.Context,
// and the live connection map.
type Server struct {
	cfg Config
	log *slog.Logger

	store      *store.Store
	pubsub     *command.PubSub
	repl       *replication.Context
	metrics    *metrics.Registry
	metricsSrv *metrics.Server

	mu          sync.RWMutex
	l           net.Listener
	sessions    map[string]*session.Session
	acceptingWg sync.WaitGroup
	closing     bool

	replicaStop chan struct{}
}

// New builds an unstarted Server using the caller-supplied replid
// (cmd/kv-server generates one; tests may pass a fixed id).
func New(cfg Config, replid string) *Server {
	cfg.applyDefaults()

	var repl *replication.Context
	if cfg.ReplicaOf != "" {
		repl = replication.NewReplica(replid)
	} else {
		repl = replication.NewMaster(replid)
	}

	st := store.New()
	if err := st.LoadSnapshot(snapshot.BboltLoader{Dir: cfg.Dir, DBFilename: cfg.DBFilename}); err != nil {
		logger.Warn("snapshot load failed, starting with an empty keyspace", "error", err)
	}
	repl.SetSnapshot(snapshot.RawBytes(cfg.Dir, cfg.DBFilename))

	command.SetConfigValue("dir", cfg.Dir)
	command.SetConfigValue("dbfilename", cfg.DBFilename)

	return &Server{
		cfg:      cfg,
		log:      logger.Logger().With("component", "kv_server"),
		store:    st,
		pubsub:   command.NewPubSub(),
		repl:     repl,
		metrics:  metrics.New(),
		sessions: make(map[string]*session.Session),
	}
}

// Start begins listening and launches the accept loop; if ReplicaOf is
// set it also starts the replica-side link in the background. Safe to
// call only once.
func (s *Server) Start() error {
	s.mu.Lock()
	if s.l != nil {
		s.mu.Unlock()
		return errors.New("server already started")
	}
	ln, err := net.Listen("tcp", s.cfg.ListenAddr)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("listen %s: %w", s.cfg.ListenAddr, err)
	}
	s.l = ln
	s.mu.Unlock()

	s.log.Info("kv server listening", "addr", ln.Addr().String())

	if s.cfg.MetricsAddr != "" {
		s.metricsSrv = metrics.NewServer(s.cfg.MetricsAddr, s.metrics)
		s.metricsSrv.Start()
	}

	if s.cfg.ReplicaOf != "" {
		s.startReplicaLink()
	}

	s.acceptingWg.Add(1)
	go s.acceptLoop()
	return nil
}

func (s *Server) startReplicaLink() {
	s.replicaStop = make(chan struct{})
	_, port, _ := net.SplitHostPort(s.cfg.ListenAddr)
	client := replication.NewClient(s.repl, s.store, s.pubsub, port)
	go func() {
		if err := client.Run(s.cfg.ReplicaOf, s.replicaStop); err != nil {
			s.log.Warn("replica link ended", "error", err, "master", s.cfg.ReplicaOf)
		}
	}()
}

func (s *Server) acceptLoop() {
	defer s.acceptingWg.Done()
	for {
		s.mu.RLock()
		l := s.l
		s.mu.RUnlock()
		if l == nil {
			return
		}
		conn, err := l.Accept()
		if err != nil {
			s.mu.RLock()
			closing := s.closing
			s.mu.RUnlock()
			if closing || errors.Is(err, net.ErrClosed) {
				return
			}
			s.log.Warn("accept error", "error", err)
			continue
		}

		sess := session.New(conn, s.store, s.pubsub, s.repl)
		s.mu.Lock()
		s.sessions[sess.ID()] = sess
		s.mu.Unlock()
		s.metrics.ConnectionsAccepted.Inc()
		s.metrics.ConnectionsActive.Inc()

		go func() {
			defer func() {
				s.mu.Lock()
				delete(s.sessions, sess.ID())
				s.mu.Unlock()
				s.metrics.ConnectionsActive.Dec()
			}()
			sess.Serve()
		}()
	}
}

// Stop closes the listener, every live session, the replica link and
// the metrics server, then waits for the accept loop to exit.
func (s *Server) Stop() error {
	s.mu.Lock()
	if s.l == nil {
		s.mu.Unlock()
		return nil
	}
	s.closing = true
	l := s.l
	s.l = nil
	sessions := make([]*session.Session, 0, len(s.sessions))
	for _, sess := range s.sessions {
		sessions = append(sessions, sess)
	}
	s.mu.Unlock()

	_ = l.Close()
	if s.replicaStop != nil {
		close(s.replicaStop)
	}
	for _, sess := range sessions {
		_ = sess.Close()
	}
	if s.metricsSrv != nil {
		_ = s.metricsSrv.Stop()
	}

	s.acceptingWg.Wait()
	s.log.Info("kv server stopped")
	return nil
}

// Addr returns the bound listener address, or nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.l == nil {
		return nil
	}
	return s.l.Addr()
}

// SessionCount returns the number of currently tracked connections.
func (s *Server) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Metrics exposes the server's metrics.Registry. The accept loop
// updates the connection counters; nothing in this process updates the
// command, replica-count or replication-offset series.
func (s *Server) Metrics() *metrics.Registry { return s.metrics }

// Replicator exposes the server's replication.Context, e.g. for
// cmd/kv-server's startup log of the server's role.
func (s *Server) Replicator() *replication.Context { return s.repl }
