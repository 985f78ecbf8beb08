package web

import (
	"context"
	"net/http"
	"strings"
	"time"

	"scanguard/internal/domain/ports/repository"
	"scanguard/internal/usecase"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

// Pinger is anything with a liveness check (pgx pool, redis client).
type Pinger interface {
	Ping(ctx context.Context) error
}

// Server is the operational surface: health, metrics and a bearer-token
// admin API for feedback review and model lifecycle.
type Server struct {
	scanUC     usecase.ScanUseCase
	feedbackUC usecase.FeedbackService
	modelUC    usecase.ModelUseCase
	queue      repository.JobQueueRepository
	db         Pinger
	cache      Pinger
	apiKey     string
	log        *zerolog.Logger
}

func NewServer(
	scanUC usecase.ScanUseCase,
	feedbackUC usecase.FeedbackService,
	modelUC usecase.ModelUseCase,
	queue repository.JobQueueRepository,
	db Pinger,
	cache Pinger,
	apiKey string,
	logger *zerolog.Logger,
) *Server {
	return &Server{
		scanUC:     scanUC,
		feedbackUC: feedbackUC,
		modelUC:    modelUC,
		queue:      queue,
		db:         db,
		cache:      cache,
		apiKey:     apiKey,
		log:        logger,
	}
}

func (s *Server) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", s.healthHandler)
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(s.authMiddleware)

		r.Get("/stats", s.statsHandler)
		r.Get("/trend", s.trendHandler)

		r.Route("/feedback", func(r chi.Router) {
			r.Get("/pending", s.feedbackPendingHandler)
			r.Get("/export", s.feedbackExportHandler)
			r.Post("/{id}/review", s.feedbackReviewHandler)
		})

		r.Route("/models", func(r chi.Router) {
			r.Get("/", s.modelsListHandler)
			r.Post("/{id}/promote", s.modelPromoteHandler)
			r.Post("/{id}/rollback", s.modelRollbackHandler)
		})
	})

	return r
}

// authMiddleware provides simple Bearer token authentication for the admin API.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if s.apiKey == "" {
			s.log.Error().Msg("admin API key is not configured")
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Unauthorized", http.StatusUnauthorized)
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			http.Error(w, "Unauthorized: Malformed token", http.StatusUnauthorized)
			return
		}

		if tokenParts[1] != s.apiKey {
			http.Error(w, "Forbidden", http.StatusForbidden)
			return
		}

		next.ServeHTTP(w, r)
	})
}

func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := map[string]string{"postgres": "ok", "redis": "ok"}
	healthy := true
	if err := s.db.Ping(ctx); err != nil {
		status["postgres"] = err.Error()
		healthy = false
	}
	if err := s.cache.Ping(ctx); err != nil {
		status["redis"] = err.Error()
		healthy = false
	}

	code := http.StatusOK
	if !healthy {
		code = http.StatusServiceUnavailable
	}
	writeJSON(w, code, status)
}
