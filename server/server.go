package server

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"stablemint/config"
	"stablemint/engine"
	"stablemint/journal"
	"stablemint/observability/metrics"
)

// Config captures the dependencies required to construct the HTTP API.
type Config struct {
	Engine      *engine.Engine
	Journal     *journal.Journal
	Policy      config.Policy
	Idempotency *IdempotencyStore
	Logger      *slog.Logger
}

// Server exposes the issuance engine over HTTP.
type Server struct {
	engine  *engine.Engine
	journal *journal.Journal
	policy  config.Policy
	idem    *IdempotencyStore
	logger  *slog.Logger
	metrics *metrics.EngineMetrics

	router http.Handler
}

// New constructs a configured router with authentication, rate limiting, and
// idempotency replay.
func New(cfg Config) *Server {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	srv := &Server{
		engine:  cfg.Engine,
		journal: cfg.Journal,
		policy:  cfg.Policy,
		idem:    cfg.Idempotency,
		logger:  logger,
		metrics: metrics.Engine(),
	}
	srv.router = srv.buildRouter()
	return srv
}

// Handler exposes the configured HTTP router.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) buildRouter() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(chimw.Recoverer)
	r.Use(Observe("stablemint-api"))
	r.Use(NewRateLimiter(s.policy.RateLimit).Middleware)

	r.Get("/healthz", s.Healthz)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(api chi.Router) {
		api.Use(Authenticate(s.policy.Auth))
		if s.idem != nil {
			api.Use(s.idem.WithIdempotency)
		}
		api.Post("/collateral/deposit", s.Deposit)
		api.Post("/collateral/redeem", s.Redeem)
		api.Post("/stable/mint", s.Mint)
		api.Post("/stable/burn", s.Burn)
		api.Post("/collateral/deposit-and-mint", s.DepositAndMint)
		api.Post("/collateral/redeem-for-burn", s.RedeemForBurn)
		api.Get("/positions/{address}", s.GetPosition)
		api.Get("/positions/{address}/journal", s.GetJournal)
	})

	return r
}

// Healthz reports liveness.
func (s *Server) Healthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
