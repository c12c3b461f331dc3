package server

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"dollarpool/config"
	nativecommon "dollarpool/native/common"
	"dollarpool/native/pool"
	"dollarpool/native/token"
	"dollarpool/observability"
	"dollarpool/services/poold/storage"
)

// Deps collects the collaborators the HTTP surface fronts.
type Deps struct {
	Engine      *pool.Engine
	Bank        *token.Bank
	Oracle      *pool.PostedPrice
	Audit       *storage.Storage
	Switchboard *nativecommon.Switchboard
	Logger      *slog.Logger
}

// Server hosts the pool, amo, and operator endpoints for poold.
type Server struct {
	cfg         config.ServerConfig
	engine      *pool.Engine
	bank        *token.Bank
	oracle      *pool.PostedPrice
	audit       *storage.Storage
	switchboard *nativecommon.Switchboard
	admin       common.Address
	logger      *slog.Logger
	metrics     *observability.PoolMetrics
	auth        *Authenticator
	limiter     *RateLimiter
}

// New constructs the HTTP server around a wired pool engine.
func New(cfg *config.Config, deps Deps) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config required")
	}
	if deps.Engine == nil {
		return nil, fmt.Errorf("pool engine required")
	}
	if deps.Bank == nil {
		return nil, fmt.Errorf("token bank required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		cfg:         cfg.Server,
		engine:      deps.Engine,
		bank:        deps.Bank,
		oracle:      deps.Oracle,
		audit:       deps.Audit,
		switchboard: deps.Switchboard,
		admin:       common.HexToAddress(cfg.Pool.Admin),
		logger:      logger,
		metrics:     observability.Pool(),
		auth:        NewAuthenticator(cfg.Auth, logger),
		limiter:     NewRateLimiter(cfg.RateLimit),
	}, nil
}

// Router assembles the full route tree.
func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(s.limiter.Middleware())

	r.Get("/healthz", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/v1", func(r chi.Router) {
		r.Route("/pool", func(r chi.Router) {
			r.Post("/mint", s.handleMint)
			r.Post("/redeem", s.handleRedeem)
			r.Post("/collect", s.handleCollect)
			r.Get("/collaterals", s.handleCollaterals)
			r.Get("/collaterals/{address}", s.handleCollateralInfo)
			r.Get("/free/{index}", s.handleFreeBalance)
			r.Get("/balance", s.handleUsdBalance)
			r.Get("/price", s.handlePrice)
			r.Get("/quote", s.handleQuote)
			r.Get("/redemptions/{account}/{index}", s.handlePendingRedemption)
			r.Get("/events", s.handleEvents)
		})
		r.Post("/amo/borrow", s.handleBorrow)
		r.Route("/admin", func(r chi.Router) {
			r.Use(s.auth.Middleware(ScopeAdmin))
			r.Post("/collaterals", s.handleAddCollateral)
			r.Post("/collaterals/{index}/toggle", s.handleToggleCollateral)
			r.Post("/collaterals/{index}/fees", s.handleSetFees)
			r.Post("/collaterals/{index}/price", s.handleSetCollateralPrice)
			r.Post("/collaterals/{index}/ceiling", s.handleSetCeiling)
			r.Post("/collaterals/{index}/gates", s.handleToggleGate)
			r.Post("/thresholds", s.handleSetThresholds)
			r.Post("/delay", s.handleSetDelay)
			r.Post("/minters", s.handleAddMinter)
			r.Delete("/minters/{address}", s.handleRemoveMinter)
			r.Post("/price", s.handlePostPrice)
			r.Post("/pause", s.handlePause)
			r.Post("/block", s.handleSetBlock)
		})
	})

	return otelhttp.NewHandler(r, "poold.http")
}

// Run starts the HTTP listener and blocks until context cancellation.
func (s *Server) Run(ctx context.Context) error {
	if s == nil {
		return fmt.Errorf("server not configured")
	}
	srv := &http.Server{
		Addr:         s.cfg.Listen,
		Handler:      s.Router(),
		ReadTimeout:  s.cfg.ReadTimeout.Duration,
		WriteTimeout: s.cfg.WriteTimeout.Duration,
	}

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout.Duration)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
	}()

	s.logger.Info("http server listening", "address", s.cfg.Listen)
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen and serve: %w", err)
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
}

// observe records one engine operation in the process metrics.
func (s *Server) observe(operation string, start time.Time, err error) {
	reason := ""
	if err != nil {
		reason = errorReason(err)
	}
	s.metrics.Observe(operation, time.Since(start), reason)
}
