package server

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"perpvault/observability"
	"perpvault/storage/journal"
	"perpvault/vault"
)

// Config defines HTTP server parameters.
type Config struct {
	ListenAddress string
	AdminToken    string
	// QueryRateLimit bounds the unauthenticated query routes per client.
	// A zero value applies the default budget.
	QueryRateLimit RateLimit
}

const (
	defaultQueryRequestsPerMinute = 600
	defaultQueryBurst             = 30
)

// Server hosts the query, governance, and health endpoints for vaultd.
type Server struct {
	cfg     Config
	vault   *vault.Vault
	journal *journal.Journal
	logger  *slog.Logger
	auth    *Authenticator
	limiter *RateLimiter
	metrics *observability.VaultMetricsRegistry

	httpServer *http.Server
}

// New wires a server around the vault and its journal. journal may be nil
// when event persistence is disabled.
func New(cfg Config, v *vault.Vault, j *journal.Journal, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	limit := cfg.QueryRateLimit
	if limit.RequestsPerMinute <= 0 {
		limit.RequestsPerMinute = defaultQueryRequestsPerMinute
	}
	if limit.Burst <= 0 {
		limit.Burst = defaultQueryBurst
	}
	return &Server{
		cfg:     cfg,
		vault:   v,
		journal: j,
		logger:  logger.With("component", "server"),
		auth:    NewAuthenticator(cfg.AdminToken),
		limiter: NewRateLimiter(limit),
		metrics: observability.VaultMetrics(),
	}
}

// Router assembles the chi handler tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1/vault", func(r chi.Router) {
		r.Use(s.limiter.Middleware)
		r.Get("/tokens", s.handleTokens)
		r.Get("/pool/{token}", s.handlePool)
		r.Get("/prices/{token}", s.handlePrices)
		r.Get("/funding/{token}", s.handleFunding)
		r.Get("/utilisation/{token}", s.handleUtilisation)
		r.Get("/position", s.handlePosition)
	})
	r.With(s.limiter.Middleware).Get("/v1/events/recent", s.handleRecentEvents)

	r.Route("/v1/gov", func(r chi.Router) {
		r.Use(s.auth.Middleware)
		r.Post("/fees", s.handleSetFees)
		r.Post("/funding-rate", s.handleSetFundingRate)
		r.Post("/token-config", s.handleSetTokenConfig)
		r.Post("/buffer", s.handleSetBuffer)
		r.Post("/modes", s.handleSetModes)
	})

	return otelhttp.NewHandler(r, "vaultd")
}

// Serve runs the HTTP server until ctx is cancelled.
func (s *Server) Serve(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.cfg.ListenAddress,
		Handler:           s.Router(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", s.cfg.ListenAddress)
		errCh <- s.httpServer.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
