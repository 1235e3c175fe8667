package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/alxayo/go-kv/internal/kvserver"
	"github.com/alxayo/go-kv/internal/logger"
)

func main() {
	cfg, err := parseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}
	if cfg.showVersion {
		fmt.Println(version)
		return
	}

	logger.Init()
	if err := logger.SetLevel(cfg.logLevel); err != nil {
		fmt.Printf("Warning: invalid log level %q, using default\n", cfg.logLevel)
	}
	log := logger.Logger().With("component", "cli")

	var replicaOf string
	if cfg.replicaOf != "" {
		replicaOf, _, _ = splitReplicaOf(cfg.replicaOf)
	}

	server := kvserver.New(kvserver.Config{
		ListenAddr:  fmt.Sprintf(":%d", cfg.port),
		ReplicaOf:   replicaOf,
		Dir:         cfg.dir,
		DBFilename:  cfg.dbfilename,
		MetricsAddr: cfg.metricsAddr,
	}, newReplid())

	if err := server.Start(); err != nil {
		log.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	log.Info("server started", "addr", server.Addr().String(), "version", version, "role", server.Replicator().Role())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	<-ctx.Done()
	log.Info("shutdown signal received")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	done := make(chan struct{})
	go func() {
		if err := server.Stop(); err != nil {
			log.Error("server stop error", "error", err)
		}
		close(done)
	}()

	select {
	case <-done:
		log.Info("server stopped cleanly")
	case <-shutdownCtx.Done():
		log.Error("forced exit after timeout")
	}
}

// newReplid builds a 40-character hex replication id, matching the
// length conventions clients of this protocol expect, without a
// central counter to hand them out.
func newReplid() string {
	a := strings.ReplaceAll(uuid.NewString(), "-", "")
	b := strings.ReplaceAll(uuid.NewString(), "-", "")
	return (a + b)[:40]
}
