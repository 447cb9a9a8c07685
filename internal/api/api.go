// Package api provides the HTTP server for OrderPipe.
//
// It exposes the platform webhook endpoints (WhatsApp Cloud API, Messenger and Twilio),
// a database health probe and the Prometheus metrics endpoint. Inbound deliveries are
// normalized into models.InboundMessage values and handed to the conversation engine.
package api

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/BTreeMap/OrderPipe/internal/messaging"
	"github.com/BTreeMap/OrderPipe/internal/metrics"
	"github.com/BTreeMap/OrderPipe/internal/models"
)

// Default server settings.
const (
	DefaultAddr            = ":3000"
	DefaultShutdownTimeout = 10 * time.Second
	// maxWebhookBody caps a single webhook delivery.
	maxWebhookBody = 1 << 20
	healthTimeout  = 2 * time.Second
)

// MessageHandler processes one normalized inbound message.
type MessageHandler interface {
	HandleMessage(ctx context.Context, msg models.InboundMessage) error
}

// Pinger reports database connectivity for the health endpoint.
type Pinger interface {
	Ping(ctx context.Context) error
}

// volatileStore is implemented by stores that keep data in process memory only.
type volatileStore interface {
	Volatile() bool
}

// Opts holds configuration options for the API server.
type Opts struct {
	Addr            string
	VerifyToken     string
	Twilio          *messaging.TwilioService
	Metrics         metrics.Recorder
	Gatherer        prometheus.Gatherer
	ShutdownTimeout time.Duration
}

// Option defines a configuration option for the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) {
		o.Addr = addr
	}
}

// WithVerifyToken sets the token expected by the webhook verification handshake.
func WithVerifyToken(token string) Option {
	return func(o *Opts) {
		o.VerifyToken = token
	}
}

// WithTwilio enables the Twilio inbound route, resolving numbered replies through svc.
func WithTwilio(svc *messaging.TwilioService) Option {
	return func(o *Opts) {
		o.Twilio = svc
	}
}

// WithMetrics sets the recorder for webhook delivery metrics.
func WithMetrics(r metrics.Recorder) Option {
	return func(o *Opts) {
		o.Metrics = r
	}
}

// WithGatherer sets the registry served on /metrics. Defaults to prometheus.DefaultGatherer.
func WithGatherer(g prometheus.Gatherer) Option {
	return func(o *Opts) {
		o.Gatherer = g
	}
}

// WithShutdownTimeout bounds graceful shutdown.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) {
		o.ShutdownTimeout = d
	}
}

// Server holds the dependencies of the HTTP endpoints.
type Server struct {
	engine  MessageHandler
	db      Pinger
	opts    Opts
	metrics metrics.Recorder
	handler http.Handler
}

// NewServer creates a Server. db may be nil, in which case /health reports the database as disconnected.
func NewServer(engine MessageHandler, db Pinger, opts ...Option) *Server {
	cfg := Opts{Addr: DefaultAddr, ShutdownTimeout: DefaultShutdownTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Gatherer == nil {
		cfg.Gatherer = prometheus.DefaultGatherer
	}
	if cfg.VerifyToken == "" {
		slog.Warn("Server.NewServer: no verify token configured; webhook verification will be rejected")
	}

	s := &Server{
		engine:  engine,
		db:      db,
		opts:    cfg,
		metrics: metrics.OrNop(cfg.Metrics),
	}
	s.handler = s.routes()
	return s
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/webhook", s.webhookHandler)
	mux.HandleFunc("/webhook/twilio", s.twilioWebhookHandler)
	mux.HandleFunc("/health", s.healthHandler)
	mux.Handle("/metrics", promhttp.HandlerFor(s.opts.Gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Handler returns the routed HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.opts.Addr
}

// Run serves HTTP until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: listening", "addr", s.opts.Addr, "twilio", s.opts.Twilio != nil)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("failed to start HTTP server on %s: %w", s.opts.Addr, err)
		}
		return nil
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down", "timeout", s.opts.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down HTTP server: %w", err)
	}
	slog.Info("Server.Run: HTTP server stopped")
	return nil
}
