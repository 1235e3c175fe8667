// Package metrics exposes process counters and gauges over HTTP via
// prometheus/client_golang, the same dependency family the example
// corpus already carries (ClusterCockpit-cc-backend queries a
// Prometheus server through client_golang's api/v1 client; this package
// uses the same module's exposition side — promauto/promhttp — to
// publish rather than query, the complementary half of that API).
package metrics

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/alxayo/go-kv/internal/logger"
)

// Registry bundles the counters and gauges this server reports, each
// registered once at construction against its own prometheus.Registerer
// so multiple Registry instances (as in tests) don't collide on the
// global default registerer.
type Registry struct {
	reg *prometheus.Registry

	CommandsProcessed  *prometheus.CounterVec
	ConnectionsAccepted prometheus.Counter
	ConnectionsActive   prometheus.Gauge
	ReplicaCount        prometheus.Gauge
	ReplicationOffset    prometheus.Gauge
}

// New builds a Registry with all series registered.
func New() *Registry {
	reg := prometheus.NewRegistry()
	return &Registry{
		reg: reg,
		CommandsProcessed: promauto.With(reg).NewCounterVec(prometheus.CounterOpts{
			Name: "kv_commands_processed_total",
			Help: "Total commands dispatched, labeled by command name.",
		}, []string{"command"}),
		ConnectionsAccepted: promauto.With(reg).NewCounter(prometheus.CounterOpts{
			Name: "kv_connections_accepted_total",
			Help: "Total TCP connections accepted.",
		}),
		ConnectionsActive: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "kv_connections_active",
			Help: "Currently open client connections.",
		}),
		ReplicaCount: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "kv_replica_count",
			Help: "Number of replicas currently registered with this master.",
		}),
		ReplicationOffset: promauto.With(reg).NewGauge(prometheus.GaugeOpts{
			Name: "kv_replication_offset",
			Help: "Current replication offset in bytes.",
		}),
	}
}

// Server wraps an http.Server exposing /metrics, started only when
// --metrics-addr is configured.
type Server struct {
	httpServer *http.Server
}

// NewServer builds (but does not start) a metrics HTTP server bound to
// addr, serving reg's collectors at /metrics.
func NewServer(addr string, reg *Registry) *Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(reg.reg, promhttp.HandlerOpts{}))
	return &Server{httpServer: &http.Server{Addr: addr, Handler: mux}}
}

// Start runs the metrics HTTP server until Stop is called or it fails to
// bind. Errors other than a clean shutdown are logged, not returned,
// since a failed metrics endpoint must not take down the key/value
// server itself.
func (s *Server) Start() {
	go func() {
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
}

// Stop gracefully shuts the metrics server down within a bounded
// timeout.
func (s *Server) Stop() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.httpServer.Shutdown(ctx)
}
