// Package server exposes retrieval, generation and listing writing over
// HTTP/JSON.
//
// Routes:
//
//	POST /v1/retrieve   evidence for a query
//	POST /v1/generate   a listing from caller-supplied evidence
//	POST /v1/autowrite  a validated listing, falling back to rules
//	GET  /healthz       liveness
//	GET  /readyz        readiness (index loadable)
package server

import (
	"context"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/Aman-CERP/autowriter/internal/autowriter"
	awerrors "github.com/Aman-CERP/autowriter/internal/errors"
	"github.com/Aman-CERP/autowriter/internal/generate"
	"github.com/Aman-CERP/autowriter/internal/retrieve"
	"github.com/Aman-CERP/autowriter/internal/telemetry"
)

const (
	// DefaultListen binds to loopback only.
	DefaultListen = "127.0.0.1:8088"

	DefaultRequestTimeout = 180 * time.Second

	maxBodyBytes    = 1 << 20
	shutdownTimeout = 10 * time.Second
)

// Retriever finds evidence and reports index readiness.
type Retriever interface {
	Retrieve(ctx context.Context, query string, filters retrieve.Filters, k int) ([]retrieve.Evidence, error)
	Ready(ctx context.Context) error
}

// Generator writes a listing from evidence.
type Generator interface {
	Generate(ctx context.Context, req generate.Request) (*generate.Output, error)
	Event(start time.Time, err error, source telemetry.Source) telemetry.GenerationEvent
}

// ListingWriter is the full autowrite pipeline.
type ListingWriter interface {
	Write(ctx context.Context, highlights string, fields map[string]any) (*autowriter.Result, error)
}

// GenerationRecorder receives events for direct generate calls.
type GenerationRecorder interface {
	GenerationCompleted(ctx context.Context, ev telemetry.GenerationEvent)
}

// Config wires a Server.
type Config struct {
	Listen    string
	Retriever Retriever
	Generator Generator // optional; /v1/generate answers 503 without one
	Writer    ListingWriter
	Recorder  GenerationRecorder

	// K is the default evidence count for /v1/retrieve.
	K int

	// RateLimit is requests per second across all clients; zero disables.
	RateLimit float64
	RateBurst int

	RequestTimeout time.Duration
}

// Server is the HTTP API.
type Server struct {
	cfg     Config
	handler http.Handler
}

// New creates a Server.
func New(cfg Config) (*Server, error) {
	if cfg.Retriever == nil || cfg.Writer == nil {
		return nil, awerrors.ConfigError("server requires a retriever and a listing writer", nil)
	}
	if cfg.Listen == "" {
		cfg.Listen = DefaultListen
	}
	if cfg.K <= 0 {
		cfg.K = retrieve.DefaultK
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = DefaultRequestTimeout
	}

	s := &Server{cfg: cfg}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/retrieve", s.handleRetrieve)
	mux.HandleFunc("POST /v1/generate", s.handleGenerate)
	mux.HandleFunc("POST /v1/autowrite", s.handleAutowrite)
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)

	var limiter *rate.Limiter
	if cfg.RateLimit > 0 {
		burst := cfg.RateBurst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), burst)
	}

	s.handler = chain(mux,
		requestID,
		recoverPanics,
		logRequests,
		rateLimit(limiter),
		timeout(cfg.RequestTimeout),
	)
	return s, nil
}

// Handler returns the fully wrapped handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run listens on the configured address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return awerrors.ConfigError("cannot listen on "+s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
		// Generation can take most of the request timeout.
		WriteTimeout: s.cfg.RequestTimeout + 5*time.Second,
		BaseContext:  func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("http_server_started", slog.String("addr", ln.Addr().String()))
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	slog.Info("http_server_stopped")
	return nil
}
