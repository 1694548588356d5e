// Package api provides the HTTP surface of LeadRelay.
//
// It exposes a health check, the inbound SMS webhook, the outbound
// initiation endpoint and Prometheus metrics.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/LeadRelay/internal/metrics"
	"github.com/BTreeMap/LeadRelay/internal/models"
	"github.com/BTreeMap/LeadRelay/internal/relay"
)

// Defaults for the HTTP server.
const (
	DefaultAddr            = ":3000"
	DefaultShutdownTimeout = 30 * time.Second
	DefaultReadTimeout     = 15 * time.Second
	DefaultMaxBodyBytes    = 1 << 20
	DefaultPingTimeout     = 2 * time.Second
)

// Relay is the subset of relay.Service the handlers drive.
type Relay interface {
	HandleInbound(ctx context.Context, msg models.InboundMessage) error
	SendInitial(ctx context.Context, req models.InitialRequest) (*models.InitialResult, error)
	SweepPending(ctx context.Context) (*models.SweepResult, error)
	Status() relay.Status
	// Ping checks that the store is reachable.
	Ping(ctx context.Context) error
}

// SignatureValidator checks provider webhook signatures.
type SignatureValidator interface {
	Validate(url string, params map[string]string, signature string) bool
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr              string
	PublicBaseURL     string // external base URL used to rebuild signed webhook URLs
	Signatures        SignatureValidator
	RequireSignatures bool // reject every webhook when Signatures is nil
	ShutdownTimeout   time.Duration
	Environment       string
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithPort sets the listen address to all interfaces on port.
func WithPort(port int) Option {
	return func(o *Opts) { o.Addr = ":" + strconv.Itoa(port) }
}

// WithSignatureValidation requires valid provider signatures on /sms.
// publicBaseURL is the scheme and host the provider was configured with;
// when empty the URL is rebuilt from the request host. A nil validator
// rejects every webhook.
func WithSignatureValidation(v SignatureValidator, publicBaseURL string) Option {
	return func(o *Opts) {
		o.Signatures = v
		o.PublicBaseURL = publicBaseURL
		o.RequireSignatures = true
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ShutdownTimeout = d }
}

// WithEnvironment sets the environment name reported by the health check.
func WithEnvironment(env string) Option {
	return func(o *Opts) { o.Environment = env }
}

// Server holds the relay and the HTTP configuration.
type Server struct {
	relay             Relay
	addr              string
	publicBaseURL     string
	signatures        SignatureValidator
	requireSignatures bool
	shutdownTimeout   time.Duration
	environment       string
	now               func() time.Time
	mux               *http.ServeMux
}

// NewServer creates a new API server.
func NewServer(r Relay, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, ShutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	s := &Server{
		relay:             r,
		addr:              cfg.Addr,
		publicBaseURL:     cfg.PublicBaseURL,
		signatures:        cfg.Signatures,
		requireSignatures: cfg.RequireSignatures || cfg.Signatures != nil,
		shutdownTimeout:   cfg.ShutdownTimeout,
		environment:       cfg.Environment,
		now:               time.Now,
	}
	s.mux = s.routes()
	return s
}

func (s *Server) routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("GET /{$}", instrument(http.HandlerFunc(s.healthHandler)))
	mux.Handle("POST /sms", instrument(http.HandlerFunc(s.smsHandler)))
	mux.Handle("POST /sms-agent/send-initial", instrument(http.HandlerFunc(s.sendInitialHandler)))
	mux.Handle("GET /metrics", promhttp.Handler())
	return mux
}

// Handler returns the root handler, for tests and embedding.
func (s *Server) Handler() http.Handler {
	return s.mux
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.addr,
		Handler:           s.mux,
		ReadHeaderTimeout: DefaultReadTimeout,
	}
	errCh := make(chan error, 1)
	go func() {
		slog.Info("API server listening", "addr", s.addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("API server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("API server shutting down", "timeout", s.shutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("API server shutdown failed: %w", err)
	}
	return nil
}

// statusRecorder captures the status code written by a handler.
type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// instrument records request durations by route pattern.
func instrument(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		metrics.HTTPRequestDurationSeconds.
			WithLabelValues(r.Pattern, r.Method, strconv.Itoa(rec.status)).
			Observe(time.Since(started).Seconds())
	})
}
