package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// SetupRoutes configures all API routes. corsOrigin is a single allowed
// origin or "*".
func SetupRoutes(h *Handlers, corsOrigin string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	if h.metrics != nil {
		r.Use(h.metrics.Middleware)
	}

	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
			w.Header().Set("X-Server-Identity", "certificate-mailer")
			next.ServeHTTP(w, req)
		})
	})

	r.Use(cors.Handler(corsOptions(corsOrigin)))

	r.Get("/", h.Root)
	r.Get("/health", h.HealthCheck)
	r.Post("/send-bulk", h.SendBulk)
	if h.metrics != nil {
		r.Handle("/metrics", h.metrics.Handler())
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", h.HealthCheck)
		r.Get("/wealth", h.HealthAlias)
		r.Post("/send-bulk", h.SendBulk)

		r.Route("/participants", func(r chi.Router) {
			r.Get("/", h.ListParticipants)
			r.Post("/", h.CreateParticipant)
			r.Post("/bulk", h.BulkImportParticipants)
			r.Route("/{id}", func(r chi.Router) {
				r.Get("/", h.GetParticipant)
				r.Put("/", h.UpdateParticipant)
				r.Delete("/", h.DeleteParticipant)
				r.Get("/certificate", h.DownloadCertificate)
				r.Get("/email-logs", h.ListEmailLogs)
			})
		})

		r.Get("/settings", h.GetSettings)
		r.Put("/settings", h.UpdateSettings)
	})

	return r
}

func corsOptions(origin string) cors.Options {
	if origin == "" {
		origin = "http://localhost:5173"
	}
	opts := cors.Options{
		AllowedOrigins: []string{origin},
		AllowedMethods: []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-Id"},
		ExposedHeaders: []string{"Content-Disposition"},
		MaxAge:         86400,
	}
	if origin != "*" {
		opts.AllowCredentials = true
	}
	return opts
}
