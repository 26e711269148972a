package server

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
	"golang.org/x/oauth2"

	"github.com/biotwin/biotwin/internal/metrics"
	"github.com/biotwin/biotwin/internal/store"
	"github.com/biotwin/biotwin/pkg/calendar"
	"github.com/biotwin/biotwin/pkg/scanner"
)

// Agent is the per-user conversational capability a handler drives.
// Satisfied by agent.Session.
type Agent interface {
	Reply(ctx context.Context, message string, context map[string]any) (string, error)
	Run(ctx context.Context, healthContext map[string]any) (string, error)
}

// SessionFunc resolves a user to their session.
type SessionFunc func(userID string) (Agent, error)

// DocumentScanner extracts a biomarker report from an uploaded image.
type DocumentScanner interface {
	Scan(ctx context.Context, format string, image []byte) (*scanner.Report, error)
}

// HistoryAnalyzer runs trend analysis over a user's stored scans.
type HistoryAnalyzer interface {
	Analyze(ctx context.Context, userID string) (string, error)
}

// CalendarAuth answers authorization-status checks per user.
type CalendarAuth func(ctx context.Context, userID string) bool

// Server is the Bio-Twin HTTP API server
type Server struct {
	host        string
	port        int
	server      *http.Server
	sessions    SessionFunc
	scanner     DocumentScanner
	analyzer    HistoryAnalyzer
	store       *store.Store
	oauth          *oauth2.Config
	authorized     CalendarAuth
	frontendURL    string
	requestTimeout time.Duration
	metrics        *metrics.Metrics
	logger         zerolog.Logger
}

// Config holds server configuration
type Config struct {
	Host        string
	Port        int
	Sessions    SessionFunc
	Scanner     DocumentScanner
	Analyzer    HistoryAnalyzer
	Store       *store.Store
	OAuth       *oauth2.Config
	Authorized  CalendarAuth
	FrontendURL string
	// RequestTimeout caps each request end to end. Model calls inherit
	// it through the request context, so a quota backoff cannot pin a
	// handler goroutine forever. Zero means the 2 minute default.
	RequestTimeout time.Duration
	Metrics        *metrics.Metrics
	Logger         zerolog.Logger
}

// New creates a new API server
func New(cfg Config) (*Server, error) {
	if cfg.Port <= 0 {
		return nil, fmt.Errorf("invalid port: %d", cfg.Port)
	}
	if cfg.Sessions == nil {
		return nil, fmt.Errorf("session resolver is required")
	}
	if cfg.Scanner == nil {
		return nil, fmt.Errorf("scanner is required")
	}
	if cfg.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if cfg.Host == "" {
		cfg.Host = "0.0.0.0"
	}
	if cfg.FrontendURL == "" {
		cfg.FrontendURL = "http://localhost:5173"
	}
	if cfg.Authorized == nil {
		cfg.Authorized = func(context.Context, string) bool { return false }
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = 2 * time.Minute
	}

	return &Server{
		host:           cfg.Host,
		port:           cfg.Port,
		sessions:       cfg.Sessions,
		scanner:        cfg.Scanner,
		analyzer:       cfg.Analyzer,
		store:          cfg.Store,
		oauth:          cfg.OAuth,
		authorized:     cfg.Authorized,
		frontendURL:    cfg.FrontendURL,
		requestTimeout: cfg.RequestTimeout,
		metrics:        cfg.Metrics,
		logger:         cfg.Logger,
	}, nil
}

// Router builds the HTTP routing table.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.Timeout(s.requestTimeout))
	r.Use(requestID)
	r.Use(corsMiddleware())
	r.Use(s.requestLogger)

	r.Get("/", s.handleHome)
	r.Get("/healthz", s.handleHealthz)
	if s.metrics != nil {
		r.Handle("/metrics", s.metrics.Handler())
	}

	r.Post("/scan", s.handleScan)
	r.Get("/health-data", s.handleHealthData)

	r.Post("/chat", s.handleChat)
	r.Post("/agent-act", s.handleAgentAct)

	r.Get("/auth/google", s.handleAuthURL)
	r.Get("/auth/callback", s.handleAuthCallback)
	r.Get("/auth/status", s.handleAuthStatus)

	r.Get("/history/analyze", s.handleHistoryAnalyze)

	return r
}

// Start starts the server without blocking.
func (s *Server) Start() error {
	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.host, s.port),
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	s.logger.Info().Str("host", s.host).Int("port", s.port).Msg("Starting API server")

	go func() {
		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			s.logger.Error().Err(err).Msg("API server error")
		}
	}()

	return nil
}

// Stop gracefully stops the server
func (s *Server) Stop() error {
	if s.server == nil {
		return nil
	}

	s.logger.Info().Msg("Shutting down API server")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("failed to shutdown server: %w", err)
	}

	s.logger.Info().Msg("API server stopped")
	return nil
}

// AuthURL exposes the OAuth consent URL builder for handlers and tests.
func (s *Server) AuthURL(state string) string {
	return calendar.AuthURL(s.oauth, state)
}
