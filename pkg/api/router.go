// Package api wires the HTTP surface of the sync backend: the identity,
// vault, and publish endpoints plus the WebSocket sync routes.
package api

import (
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/cors"

	"github.com/youngmoe/obsync/internal/logger"
	"github.com/youngmoe/obsync/pkg/api/handlers"
	"github.com/youngmoe/obsync/pkg/auth"
	"github.com/youngmoe/obsync/pkg/config"
	"github.com/youngmoe/obsync/pkg/metrics"
	"github.com/youngmoe/obsync/pkg/store"
	"github.com/youngmoe/obsync/pkg/sync"
)

// NewRouter creates and configures the chi router with all middleware and routes.
//
// Routes:
//   - GET  /, /ws, /ws.obsidian.md - WebSocket sync sessions
//   - POST /user/signup, /user/signin, /user/info, /user/signout, /user/delete
//   - POST /vault/create, /vault/list, /vault/access, /vault/delete
//   - POST /publish/list, /publish/create, /publish/delete
//   - POST /api/list, /api/slugs, /api/site, /api/remove, /api/slug, /api/upload
//   - POST /subscription/list - subscription stub
//   - GET  /publish/{slug}, /publish/{slug}/{path} - public site content
//   - GET  /metrics - Prometheus metrics (when enabled)
func NewRouter(cfg *config.Config, st *store.Store, tokens *auth.TokenService, engine *sync.Engine, m *metrics.SyncMetrics) http.Handler {
	r := chi.NewRouter()

	// Middleware stack - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"app://obsidian.md", "http://localhost:3000"},
		AllowedMethods:   []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders:   []string{"*"},
		AllowCredentials: true,
	}).Handler)

	// WebSocket sync routes. The official client dials the bare host, so the
	// upgrade is accepted on the root path as well. These stay outside the
	// request timeout: sessions are long-lived.
	ws := engine.Handler()
	r.Get("/", ws)
	r.Get("/ws", ws)
	r.Get("/ws.obsidian.md", ws)

	userHandler := handlers.NewUserHandler(st, tokens, cfg.SignupKey)
	vaultHandler := handlers.NewVaultHandler(st, tokens, cfg.Host, cfg.MaxStorageBytes())
	publishHandler := handlers.NewPublishHandler(st, tokens, cfg.Host, cfg.MaxSitesPerUser)
	subscriptionHandler := handlers.NewSubscriptionHandler()

	r.Group(func(r chi.Router) {
		r.Use(middleware.Timeout(30 * time.Second))

		r.Route("/user", func(r chi.Router) {
			r.Post("/signup", userHandler.Signup)
			r.Post("/signin", userHandler.Signin)
			r.Post("/info", userHandler.Info)
			r.Post("/signout", userHandler.Signout)
			r.Post("/delete", userHandler.Delete)
		})

		r.Route("/vault", func(r chi.Router) {
			r.Post("/create", vaultHandler.Create)
			r.Post("/list", vaultHandler.List)
			r.Post("/access", vaultHandler.Access)
			r.Post("/delete", vaultHandler.Delete)
		})

		r.Route("/publish", func(r chi.Router) {
			r.Post("/list", publishHandler.List)
			r.Post("/create", publishHandler.CreateSite)
			r.Post("/delete", publishHandler.DeleteSite)

			// Public read-only site content
			r.Get("/{slug}", publishHandler.SiteIndex)
			r.Get("/{slug}/*", publishHandler.SiteFile)
		})

		r.Route("/api", func(r chi.Router) {
			r.Post("/list", publishHandler.List)
			r.Post("/slugs", publishHandler.Slugs)
			r.Post("/site", publishHandler.Site)
			r.Post("/remove", publishHandler.RemoveFile)
			r.Post("/slug", publishHandler.ConfigureSlug)
			r.Post("/upload", publishHandler.Upload)
		})

		r.Post("/subscription/list", subscriptionHandler.List)

		if mh := m.Handler(); mh != nil {
			r.Handle("/metrics", mh)
		}
	})

	return r
}

// isSyncPath reports whether the request path is a WebSocket sync endpoint.
func isSyncPath(path string) bool {
	return path == "/" || path == "/ws" || strings.HasPrefix(path, "/ws.")
}

// requestLogger is a custom middleware that logs requests using the internal logger.
//
// It logs:
//   - Request start (DEBUG level): method, path, remote addr
//   - Request completion (INFO level): method, path, status, duration
func requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		requestID := middleware.GetReqID(r.Context())

		logger.Debug("API request started",
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"remote_addr", r.RemoteAddr,
		)

		// Wrap response writer to capture status code
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		next.ServeHTTP(ww, r)

		duration := time.Since(start)

		logArgs := []any{
			"request_id", requestID,
			"method", r.Method,
			"path", r.URL.Path,
			"status", ww.Status(),
			"bytes", ww.BytesWritten(),
			"duration", duration.String(),
		}

		// Sync connections stay open for the client's whole editing session;
		// log their completion at DEBUG to keep the request log readable.
		if isSyncPath(r.URL.Path) && r.Method == http.MethodGet {
			logger.Debug("API request completed", logArgs...)
		} else {
			logger.Info("API request completed", logArgs...)
		}
	})
}
