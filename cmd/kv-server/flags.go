package main

import (
	"flag"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// version is injected at build time with -ldflags "-X main.version=...".
var version = "dev"

// cliConfig holds user-supplied flag values prior to translation into
// kvserver.Config, mirroring cmd/rtmp-server/flags.go's parse-then-
// validate-then-map shape.
type cliConfig struct {
	port        uint
	replicaOf   string
	dir         string
	dbfilename  string
	logLevel    string
	metricsAddr string
	showVersion bool
}

func parseFlags(args []string) (*cliConfig, error) {
	fs := flag.NewFlagSet("kv-server", flag.ContinueOnError)
	fs.SetOutput(os.Stdout)

	cfg := &cliConfig{}
	fs.UintVar(&cfg.port, "port", 6379, "TCP port to accept client connections on")
	fs.StringVar(&cfg.replicaOf, "replicaof", "", `master to replicate from, as "<host> <port>" (absence = master)`)
	fs.StringVar(&cfg.dir, "dir", "", "directory containing the snapshot file")
	fs.StringVar(&cfg.dbfilename, "dbfilename", "", "snapshot file name within -dir")
	fs.StringVar(&cfg.logLevel, "log-level", "info", "log level: debug|info|warn|error")
	fs.StringVar(&cfg.metricsAddr, "metrics-addr", "", "address to serve /metrics on (empty disables)")
	fs.BoolVar(&cfg.showVersion, "version", false, "print version and exit")

	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if cfg.port == 0 || cfg.port > 65535 {
		return nil, fmt.Errorf("port must be between 1 and 65535, got %d", cfg.port)
	}

	switch cfg.logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("invalid log-level %q", cfg.logLevel)
	}

	if cfg.replicaOf != "" {
		if _, _, err := splitReplicaOf(cfg.replicaOf); err != nil {
			return nil, fmt.Errorf("invalid -replicaof %q: %w", cfg.replicaOf, err)
		}
	}

	return cfg, nil
}

// splitReplicaOf parses the "<host> <port>" form -replicaof takes,
// returning a dialable host:port address.
func splitReplicaOf(v string) (addr string, port int, err error) {
	parts := strings.Fields(v)
	if len(parts) != 2 {
		return "", 0, fmt.Errorf(`expected "<host> <port>"`)
	}
	p, err := strconv.Atoi(parts[1])
	if err != nil || p <= 0 || p > 65535 {
		return "", 0, fmt.Errorf("invalid port %q", parts[1])
	}
	return fmt.Sprintf("%s:%d", parts[0], p), p, nil
}
