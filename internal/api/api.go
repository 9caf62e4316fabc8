// Package api provides the HTTP server for VibeCheck.
//
// It exposes RESTful endpoints for managing employee profiles and for running
// check-in conversations: starting a check-in, exchanging messages, reading
// the transcript and producing insights and sentiment reports.
package api

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/BTreeMap/VibeCheck/internal/models"
	"github.com/BTreeMap/VibeCheck/internal/store"
)

// Defaults applied when the corresponding option is not set.
const (
	DefaultAddr              = ":8080"
	DefaultShutdownTimeout   = 10 * time.Second
	DefaultReadHeaderTimeout = 10 * time.Second
	// MaxRequestBodyBytes caps the size of JSON request bodies.
	MaxRequestBodyBytes = 1 << 20
)

// CheckIns is the conversation engine behind the /conversations endpoints.
type CheckIns interface {
	Start(ctx context.Context, employeeID string) (models.StartConversationResult, error)
	Respond(ctx context.Context, conversationID, text string) (models.SendMessageResult, error)
	Transcript(ctx context.Context, conversationID string) ([]models.Message, error)
	Insights(ctx context.Context, conversationID string) (models.InsightsResult, error)
	Report(ctx context.Context, conversationID string, req models.ReportRequest) (models.Report, error)
}

// Opts holds configuration for the API server.
type Opts struct {
	Addr              string
	ShutdownTimeout   time.Duration
	ReadHeaderTimeout time.Duration
}

// Option configures the API server.
type Option func(*Opts)

// WithAddr sets the listen address.
func WithAddr(addr string) Option {
	return func(o *Opts) { o.Addr = addr }
}

// WithShutdownTimeout bounds how long Run waits for in-flight requests on exit.
func WithShutdownTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ShutdownTimeout = d }
}

// WithReadHeaderTimeout sets the server's header read timeout.
func WithReadHeaderTimeout(d time.Duration) Option {
	return func(o *Opts) { o.ReadHeaderTimeout = d }
}

// Server serves the VibeCheck HTTP API.
type Server struct {
	st       store.Store
	checkins CheckIns
	router   *mux.Router
	opts     Opts
}

// NewServer builds a server over st and checkins with all routes registered.
func NewServer(st store.Store, checkins CheckIns, opts ...Option) *Server {
	cfg := Opts{
		Addr:              DefaultAddr,
		ShutdownTimeout:   DefaultShutdownTimeout,
		ReadHeaderTimeout: DefaultReadHeaderTimeout,
	}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Addr == "" {
		cfg.Addr = DefaultAddr
	}

	s := &Server{st: st, checkins: checkins, router: mux.NewRouter(), opts: cfg}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(requestLoggingMiddleware)
	r.NotFoundHandler = http.HandlerFunc(notFoundHandler)
	r.MethodNotAllowedHandler = http.HandlerFunc(methodNotAllowedHandler)

	r.HandleFunc("/health", s.healthHandler).Methods(http.MethodGet)

	r.HandleFunc("/employees", s.upsertEmployeeHandler).Methods(http.MethodPost)
	r.HandleFunc("/employees", s.listEmployeesHandler).Methods(http.MethodGet)
	r.HandleFunc("/employees/{id}", s.getEmployeeHandler).Methods(http.MethodGet)
	r.HandleFunc("/employees/{id}/conversations", s.employeeConversationsHandler).Methods(http.MethodGet)

	r.HandleFunc("/conversations", s.startConversationHandler).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", s.sendMessageHandler).Methods(http.MethodPost)
	r.HandleFunc("/conversations/{id}/messages", s.transcriptHandler).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/insights", s.insightsHandler).Methods(http.MethodGet)
	r.HandleFunc("/conversations/{id}/report", s.reportHandler).Methods(http.MethodPost)
}

// Handler returns the routed handler, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.opts.Addr,
		Handler:           s.router,
		ReadHeaderTimeout: s.opts.ReadHeaderTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("Server.Run: VibeCheck API listening", "addr", s.opts.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			slog.Error("Server.Run: listener failed", "addr", s.opts.Addr, "error", err)
		}
		return err
	case <-ctx.Done():
	}

	slog.Info("Server.Run: shutting down", "timeout", s.opts.ShutdownTimeout)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.opts.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("Server.Run: forced shutdown", "error", err)
		return err
	}
	slog.Info("Server.Run: stopped gracefully")
	return nil
}
