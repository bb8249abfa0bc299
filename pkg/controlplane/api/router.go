package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/marmos91/dittoaccel/internal/logger"
	"github.com/marmos91/dittoaccel/pkg/controlplane/api/handlers"
)

// NewRouter creates the chi router with its middleware and routes.
//
// Routes:
//   - GET /health - Liveness probe
//   - GET /health/ready - Readiness probe
//   - GET /api/v1/accel/modules - Registered modules and their opcodes
//   - GET /api/v1/accel/assignments - Opcode to module table
//   - GET|POST /api/v1/accel/crypto-keys - Keyring listing and creation
//   - DELETE /api/v1/accel/crypto-keys/{name} - Key destruction
//   - GET /api/v1/config - Replayable configuration dump
//   - GET /api/v1/bdevs - Block device listing
//   - POST /api/v1/bdevs/crypto - Crypto bdev creation
//   - DELETE /api/v1/bdevs/crypto/{name} - Crypto bdev deletion
func NewRouter(deps Deps, requestTimeout time.Duration) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	if requestTimeout > 0 {
		r.Use(middleware.Timeout(requestTimeout))
	}

	healthHandler := handlers.NewHealthHandler(deps.Accel, deps.Bdevs)
	r.Route("/health", func(r chi.Router) {
		r.Get("/", healthHandler.Liveness)
		r.Get("/ready", healthHandler.Readiness)
	})

	r.Get("/", func(w http.ResponseWriter, r *http.Request) {
		http.Redirect(w, r, "/health", http.StatusTemporaryRedirect)
	})

	if deps.Accel == nil {
		return r
	}

	accelHandler := handlers.NewAccelHandler(deps.Accel)
	keyHandler := handlers.NewKeyHandler(deps.Accel)

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/accel", func(r chi.Router) {
			r.Get("/modules", accelHandler.Modules)
			r.Get("/assignments", accelHandler.Assignments)

			r.Route("/crypto-keys", func(r chi.Router) {
				r.Get("/", keyHandler.List)
				r.Post("/", keyHandler.Create)
				r.Delete("/{name}", keyHandler.Delete)
			})
		})

		r.Get("/config", accelHandler.Config)

		if deps.Bdevs != nil {
			bdevHandler := handlers.NewBdevHandler(deps.Accel, deps.Bdevs, deps.BdevMetrics)
			r.Route("/bdevs", func(r chi.Router) {
				r.Get("/", bdevHandler.List)
				r.Post("/crypto", bdevHandler.CreateCrypto)
				r.Delete("/crypto/{name}", bdevHandler.DeleteCrypto)
			})
		}
	})

	return r
}

func isHealthPath(path string) bool {
	return path == "/health" || strings.HasPrefix(path, "/health/")
}

// requestLogger logs each request with the internal logger. Health probes
// are logged at DEBUG.
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		logArgs := []any{
			logger.KeyRequestID, requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			logger.KeyDurationMs, logger.Duration(start),
		}

		switch {
		case isHealthPath(r.URL.Path):
			logger.Debug("API request completed", logArgs...)
		case ww.Status() >= http.StatusInternalServerError:
			logger.Warn("API request failed", logArgs...)
		default:
			logger.Info("API request completed", logArgs...)
		}
	})
}
