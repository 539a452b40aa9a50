package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sync"
	"time"

	"github.com/dunamismax/photoflow/internal/auth"
	"github.com/dunamismax/photoflow/internal/config"
	"github.com/dunamismax/photoflow/internal/queue"
	"github.com/dunamismax/photoflow/internal/storage"
	"github.com/dunamismax/photoflow/internal/store"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type Server struct {
	logger      *zap.Logger
	cfg         config.Config
	photos      store.PhotoStore
	jobs        store.EditJobStore
	blobs       storage.BlobStore
	queueClient queue.Enqueuer
	verifier    *auth.Verifier
	rateLimiter RateLimiter
	metrics     *metrics
	tracer      trace.Tracer
	now         func() time.Time
	mux         *http.ServeMux

	memLimitOnce sync.Once
	memLimit     func(http.Handler) http.Handler
}

type Dependencies struct {
	Photos      store.PhotoStore
	Jobs        store.EditJobStore
	Blobs       storage.BlobStore
	Queue       queue.Enqueuer
	Verifier    *auth.Verifier
	RateLimiter RateLimiter
}

func NewServer(logger *zap.Logger, cfg config.Config, deps Dependencies) (*Server, error) {
	if deps.Photos == nil || deps.Jobs == nil {
		return nil, errors.New("photo store and edit job store are required")
	}
	if deps.Blobs == nil {
		return nil, errors.New("blob store is required")
	}
	if deps.Verifier == nil {
		return nil, errors.New("token verifier is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}

	s := &Server{
		logger:      logger,
		cfg:         cfg,
		photos:      deps.Photos,
		jobs:        deps.Jobs,
		blobs:       deps.Blobs,
		queueClient: deps.Queue,
		verifier:    deps.Verifier,
		rateLimiter: deps.RateLimiter,
		metrics:     newMetrics(),
		tracer:      otel.Tracer("photoflow/api"),
		now:         time.Now,
		mux:         http.NewServeMux(),
	}
	s.routes()
	return s, nil
}

// Handler returns the full middleware chain: CORS, metrics and tracing
// wrap every route; auth and rate limiting wrap the /v1 routes only.
func (s *Server) Handler() http.Handler {
	var h http.Handler = s.mux
	h = s.withTracing(h)
	h = s.metrics.withHTTPMetrics(h)
	return s.cors()(h)
}

func (s *Server) routes() {
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
	s.mux.Handle("GET /metrics", s.metrics.metricsHandler())

	s.mux.Handle("POST /v1/photos", s.protect(s.handleUploadPhotos))
	s.mux.Handle("GET /v1/photos", s.protect(s.handleListPhotos))
	s.mux.Handle("GET /v1/photos/export", s.protect(s.handleExportPhotos))
	s.mux.Handle("GET /v1/photos/{id}", s.protect(s.handleGetPhoto))
	s.mux.Handle("GET /v1/photos/{id}/image", s.protect(s.handlePhotoImage))
	s.mux.Handle("DELETE /v1/photos/{id}", s.protect(s.handleDeletePhoto))
	s.mux.Handle("POST /v1/photos/{id}/edits", s.protect(s.handleCreateEdit))
	s.mux.Handle("GET /v1/edits/{id}", s.protect(s.handleGetEdit))
	s.mux.Handle("GET /v1/me", s.protect(s.handleMe))
	s.mux.Handle("GET /v1/usage/storage", s.protect(s.handleStorageUsage))
}

func (s *Server) protect(h http.HandlerFunc) http.Handler {
	return s.withRateLimit(auth.Middleware(s.verifier, s.logger)(h))
}

func (s *Server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// currentUser is only called behind auth.Middleware.
func currentUser(r *http.Request) auth.User {
	user, _ := auth.FromContext(r.Context())
	return user
}

func decodeJSON(r *http.Request, into any) error {
	const maxBodyBytes = 1 << 20
	limited := io.LimitReader(r.Body, maxBodyBytes)
	decoder := json.NewDecoder(limited)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(into); err != nil {
		return fmt.Errorf("invalid JSON body: %w", err)
	}
	if err := decoder.Decode(&struct{}{}); err != io.EOF {
		return errors.New("invalid JSON body: multiple JSON values are not allowed")
	}
	return nil
}

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
