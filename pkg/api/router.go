package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittosmb/internal/logger"
	"github.com/marmos91/dittosmb/pkg/api/auth"
	"github.com/marmos91/dittosmb/pkg/api/handlers"
	"github.com/marmos91/dittosmb/pkg/metrics"
)

const requestTimeout = 30 * time.Second

// NewRouter wires the API routes over status:
//
//	GET /              redirect to /health
//	GET /health        liveness
//	GET /health/ready  503 until the SMB listener is bound
//	GET /sessions      established SMB sessions (bearer token, or loopback
//	                   only when tokens is nil)
//	GET /metrics       Prometheus exposition, 404 with metrics disabled
func NewRouter(status handlers.StatusProvider, tokens *auth.TokenService) http.Handler {
	health := handlers.NewHealthHandler(status)
	sessions := handlers.NewSessionsHandler(status)

	r := chi.NewRouter()
	r.Use(
		middleware.RequestID,
		accessLog,
		middleware.Recoverer,
		middleware.Timeout(requestTimeout),
	)

	r.Get("/", func(w http.ResponseWriter, req *http.Request) {
		http.Redirect(w, req, "/health", http.StatusTemporaryRedirect)
	})
	r.Get("/health", health.Liveness)
	r.Get("/health/ready", health.Readiness)
	r.With(requireScope(tokens, auth.ScopeSessionsRead)).Get("/sessions", sessions.List)
	r.Method(http.MethodGet, "/metrics", metrics.Handler())

	return r
}

// accessLog records each request once it completes. Successful calls and
// every scrape are DEBUG; client and server errors are INFO.
func accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		log := logger.DebugCtx
		if ww.Status() >= http.StatusBadRequest && r.URL.Path != "/metrics" {
			log = logger.InfoCtx
		}
		log(r.Context(), "API request",
			"request_id", middleware.GetReqID(r.Context()),
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
			"status", ww.Status(),
			logger.Bytes(ww.BytesWritten()),
			logger.DurationMs(logger.Duration(start)),
		)
	})
}
