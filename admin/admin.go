// Package admin serves the operational endpoints of the service on a separate
// listener: Prometheus metrics on /metrics and a health report on /healthz.
package admin

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/alexliesenfeld/health"
	"github.com/cockroachdb/errors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	helloadd "github.com/xizhibei/go-hello-add"
	"go.uber.org/zap"
)

const (
	MetricsPath = "/metrics"
	HealthPath  = "/healthz"
)

var (
	// ErrTransportDown is reported by the health check when the API listener is not serving.
	ErrTransportDown = errors.New("[HELLO-ADD] transport is not serving")

	// ErrAdminStarted is returned by Start when the admin listener is already running.
	ErrAdminStarted = errors.New("[HELLO-ADD] admin server already started")
)

var requestLabels = []string{"name", "method", "path", "status"}

// Metrics holds the request collectors and the registry they are exposed from.
type Metrics struct {
	Registry     *prometheus.Registry
	ResponseTime *prometheus.HistogramVec
	ErrorCount   *prometheus.GaugeVec
}

// NewMetrics creates a registry with the request collectors and the Go runtime
// and process collectors.
func NewMetrics() *Metrics {
	m := &Metrics{
		Registry: prometheus.NewRegistry(),
		ResponseTime: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "hello_add_response_time_seconds",
			Help:    "Time spent handling a request.",
			Buckets: prometheus.DefBuckets,
		}, requestLabels),
		ErrorCount: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "hello_add_error_count",
			Help: "Number of requests answered with an error.",
		}, append(append([]string{}, requestLabels...), "message")),
	}

	m.Registry.MustRegister(
		m.ResponseTime,
		m.ErrorCount,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

// Attach records the requests served by t into m.
func (m *Metrics) Attach(t helloadd.Transport) {
	t.RegisterMetrics(m.ResponseTime, m.ErrorCount)
}

// Server is the admin HTTP listener.
type Server struct {
	log     *zap.SugaredLogger
	addr    string
	checker health.Checker
	http    *http.Server

	mu       sync.Mutex
	listener net.Listener
}

// NewServer creates the admin server for addr. The health check reports down
// while t is not serving.
func NewServer(addr string, m *Metrics, t helloadd.Transport) *Server {
	log := zap.S().With("module", "hello-add.admin")

	checker := health.NewChecker(
		health.WithCacheDuration(time.Second),
		health.WithTimeout(5*time.Second),
		health.WithCheck(health.Check{
			Name:    "transport",
			Timeout: time.Second,
			Check: func(ctx context.Context) error {
				if !t.IsConnected() {
					return ErrTransportDown
				}
				return nil
			},
		}),
		health.WithStatusListener(func(ctx context.Context, state health.CheckerState) {
			log.Infof("Health status changed to %s", state.Status)
		}),
	)

	mux := http.NewServeMux()
	mux.Handle("GET "+MetricsPath, promhttp.HandlerFor(m.Registry, promhttp.HandlerOpts{
		Registry: m.Registry,
	}))
	mux.Handle("GET "+HealthPath, health.NewHandler(checker))

	return &Server{
		log:     log,
		addr:    addr,
		checker: checker,
		http: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 3 * time.Second,
			ReadTimeout:       5 * time.Second,
			WriteTimeout:      10 * time.Second,
			IdleTimeout:       15 * time.Second,
		},
	}
}

// Handler returns the admin mux.
func (s *Server) Handler() http.Handler {
	return s.http.Handler
}

// Start binds the admin address and serves in a background goroutine.
func (s *Server) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener != nil {
		return ErrAdminStarted
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(context.Background(), "tcp", s.addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %s", s.addr)
	}
	s.listener = ln

	go func() {
		s.log.Infof("Admin listening on %s", ln.Addr())
		if err := s.http.Serve(ln); !errors.Is(err, http.ErrServerClosed) {
			s.log.Errorf("Admin serve error: %v", err)
		}
	}()
	return nil
}

// Addr returns the bound address, nil before Start.
func (s *Server) Addr() net.Addr {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}

// Stop shuts down the listener and the health checker.
func (s *Server) Stop(ctx context.Context) error {
	s.checker.Stop()
	if err := s.http.Shutdown(ctx); err != nil {
		return errors.Wrap(err, "shutdown admin server")
	}
	return nil
}
