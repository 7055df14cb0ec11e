package web

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/kozaktomas/face-access/internal/web/handlers"
	"github.com/kozaktomas/face-access/internal/web/middleware"
)

func (s *Server) setupRoutes() {
	// Create handlers
	healthHandler := handlers.NewHealthHandler(s.services.DB)
	validateHandler := handlers.NewValidateHandler(s.services.Validator, s.log)
	observedHandler := handlers.NewObservedHandler(s.services.Observed, s.log)
	facesHandler := handlers.NewFacesHandler(s.services.Faces, s.services.FaceIndex, s.log)
	catalogHandler := handlers.NewCatalogHandler(s.services.Catalog, s.services.Users, s.log)
	logsHandler := handlers.NewLogsHandler(s.services.Logs, s.log)

	// Health check (no auth required)
	s.router.Get("/api/v1/health", healthHandler.Check)

	s.router.Route("/api/v1", func(r chi.Router) {
		// Kiosk routes
		r.Post("/validate-user-face", validateHandler.Validate)
		r.Get("/zones", catalogHandler.Zones)

		// Administrative routes
		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireAdminToken(s.config.Web.AdminToken))

			// Observed users
			r.Get("/observed-users", observedHandler.List)
			r.Post("/observed-users/actions", observedHandler.Action)
			r.Delete("/observed-users/{id}", observedHandler.Delete)

			// Registered users and faces
			r.Get("/users/{id}", catalogHandler.User)
			r.Post("/faces", facesHandler.Enroll)
			r.Post("/faces/rebuild-index", facesHandler.RebuildIndex)
			r.Post("/face-images", facesHandler.UploadImage)

			// Catalogs
			r.Get("/user-statuses", catalogHandler.Statuses)
			r.Get("/roles", catalogHandler.Roles)

			// Audit log
			r.Get("/validation-logs", logsHandler.List)
		})
	})

	s.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusNotFound)
		w.Write([]byte(`{"error": "not found"}`))
	})
}
