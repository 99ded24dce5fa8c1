// Package api serves the savings data service over HTTP.
package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rotisserie/eris"
	"go.uber.org/zap"

	"github.com/sells-group/truecost/internal/auth"
	"github.com/sells-group/truecost/internal/config"
	"github.com/sells-group/truecost/internal/model"
)

// Service is the savings aggregator the handlers delegate to.
type Service interface {
	Record(ctx context.Context, userID string, rec model.SavingRecord) (*model.SavingRecord, error)
	Range(period, start, end string) (model.TimeRange, error)
	Totals(ctx context.Context, userID string, r model.TimeRange) (*model.Totals, error)
	BestVariant(ctx context.Context, userID string) (*model.BestVariant, error)
	Effectiveness(ctx context.Context, userID string) ([]model.EffectivenessStat, error)
	ActiveVariants(ctx context.Context) ([]model.QuestionVariant, error)
	Settings(ctx context.Context, userID string) (*model.Settings, error)
	SaveSettings(ctx context.Context, userID string, st model.Settings) error
}

// Token lifetimes issued by the refresh endpoint.
const (
	AccessTokenTTL  = time.Hour
	RefreshTokenTTL = 30 * 24 * time.Hour
)

// Server is the data service HTTP server.
type Server struct {
	router    chi.Router
	svc       Service
	validator *auth.Validator
	cfg       config.ServerConfig
	server    *http.Server
	now       func() time.Time
}

// New builds the router for svc. Every route except /health and
// /auth/refresh requires a bearer token accepted by v.
func New(svc Service, v *auth.Validator, cfg config.ServerConfig) *Server {
	s := &Server{
		router:    chi.NewRouter(),
		svc:       svc,
		validator: v,
		cfg:       cfg,
		now:       time.Now,
	}
	s.setupMiddleware()
	s.setupRoutes()

	s.server = &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Port),
		Handler:      s.router,
		ReadTimeout:  seconds(cfg.ReadTimeoutSecs, 15),
		WriteTimeout: seconds(cfg.WriteTimeoutSecs, 15),
		IdleTimeout:  60 * time.Second,
	}
	return s
}

func seconds(n, def int) time.Duration {
	if n <= 0 {
		n = def
	}
	return time.Duration(n) * time.Second
}

// Handler exposes the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) setupMiddleware() {
	s.router.Use(middleware.Recoverer)
	s.router.Use(middleware.RequestID)
	s.router.Use(middleware.RealIP)
	s.router.Use(requestLogger)
	s.router.Use(middleware.Timeout(seconds(s.cfg.RequestTimeoutSecs, 30)))
	s.router.Use(cors.Handler(cors.Options{
		AllowOriginFunc: func(_ *http.Request, origin string) bool {
			return allowedOrigin(origin, s.cfg.AllowedOrigin)
		},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		AllowCredentials: true,
		MaxAge:           300,
	}))
}

// allowedOrigin accepts browser extension origins plus the configured one.
func allowedOrigin(origin, configured string) bool {
	if strings.HasPrefix(origin, "chrome-extension://") || strings.HasPrefix(origin, "moz-extension://") {
		return true
	}
	return configured != "" && (configured == "*" || origin == configured)
}

func (s *Server) setupRoutes() {
	s.router.Get("/health", s.handleHealth)
	s.router.Post("/auth/refresh", s.handleRefresh)

	s.router.Group(func(r chi.Router) {
		r.Use(auth.Middleware(s.validator))

		r.Get("/settings", s.handleGetSettings)
		r.Post("/settings", s.handleSaveSettings)

		r.Get("/variants", s.handleActiveVariants)
		r.Get("/variants/active", s.handleActiveVariants)
		r.Get("/variants/effectiveness", s.handleEffectiveness)
		r.Get("/effectiveness", s.handleEffectiveness)

		r.Route("/savings", func(r chi.Router) {
			r.Post("/", s.handleRecordSaving)
			r.Get("/", s.handleTotals)
			r.Get("/best-variant", s.handleBestVariant)
		})
	})
}

// Start listens until Shutdown is called.
func (s *Server) Start() error {
	zap.L().Info("starting data service", zap.String("addr", s.server.Addr))
	if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return eris.Wrap(err, "api: listen")
	}
	return nil
}

// Shutdown drains in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	zap.L().Info("shutting down data service")
	return eris.Wrap(s.server.Shutdown(ctx), "api: shutdown")
}

func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		zap.L().Info("http request",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Int("status", ww.Status()),
			zap.Int("bytes", ww.BytesWritten()),
			zap.Duration("duration", time.Since(start)),
			zap.String("request_id", middleware.GetReqID(r.Context())),
		)
	})
}
