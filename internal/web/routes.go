package web

import (
	"io"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/web/handlers"
	"github.com/kozaktomas/face-attendance/internal/web/middleware"
	"github.com/kozaktomas/face-attendance/internal/web/static"
)

func (s *Server) setupRoutes() {
	// Create handlers
	identitiesHandler := handlers.NewIdentitiesHandler(s.deps.Store, s.deps.Log)
	attendanceHandler := handlers.NewAttendanceHandler(s.deps.Engine, s.deps.Sessions, s.deps.Log)
	sessionsHandler := handlers.NewSessionsHandler(s.deps.Engine, s.deps.Sessions, s.deps.Log)
	configHandler := handlers.NewConfigHandler(s.config, s.deps.Engine, s.deps.Store)

	s.router.Get("/api/v1/health", handlers.HealthCheck)
	s.router.Handle("/metrics", s.deps.Metrics.Handler())

	s.router.Route("/api/v1", func(r chi.Router) {
		// The camera websocket outlives any request timeout.
		r.Get("/sessions/{id}/camera", sessionsHandler.Camera)

		r.Group(func(r chi.Router) {
			r.Use(chiMiddleware.Timeout(constants.RequestTimeout))

			// Config
			r.Get("/config", configHandler.Get)

			// Identities
			r.Get("/identities", identitiesHandler.List)
			r.Post("/identities", identitiesHandler.Register)
			r.Post("/identities/reload", identitiesHandler.Reload)
			r.Delete("/identities/{name}", identitiesHandler.Delete)

			// Recognition and ledger
			r.Post("/identify", attendanceHandler.Identify)
			r.Post("/verify", attendanceHandler.Verify)
			r.Get("/attendance", attendanceHandler.Ledger)

			// Sessions
			r.Post("/sessions", sessionsHandler.Start)
			r.Delete("/sessions/{id}", sessionsHandler.End)
		})
	})

	// Serve the embedded camera UI
	s.router.Group(func(r chi.Router) {
		r.Use(middleware.SecurityHeaders())
		r.Get("/*", s.serveUI)
	})
}

// serveUI serves the embedded single-page UI
func (s *Server) serveUI(w http.ResponseWriter, r *http.Request) {
	fs := static.GetFileSystem()
	path := r.URL.Path
	if path == "/" {
		path = "/index.html"
	}

	f, err := fs.Open(path)
	if err != nil {
		// Unknown paths fall back to the UI entry point
		f, err = fs.Open("/index.html")
		if err != nil {
			http.NotFound(w, r)
			return
		}
		path = "/index.html"
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil || stat.IsDir() {
		http.NotFound(w, r)
		return
	}

	contentType := "application/octet-stream"
	switch {
	case strings.HasSuffix(path, ".html"):
		contentType = "text/html; charset=utf-8"
	case strings.HasSuffix(path, ".css"):
		contentType = "text/css; charset=utf-8"
	case strings.HasSuffix(path, ".js"):
		contentType = "application/javascript; charset=utf-8"
	case strings.HasSuffix(path, ".svg"):
		contentType = "image/svg+xml"
	case strings.HasSuffix(path, ".ico"):
		contentType = "image/x-icon"
	}

	w.Header().Set("Content-Type", contentType)
	w.WriteHeader(http.StatusOK)
	io.Copy(w, f)
}
