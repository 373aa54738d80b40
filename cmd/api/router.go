package main

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chiMiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	httpSwagger "github.com/swaggo/http-swagger/v2"

	"github.com/pixelnest/gallery/internal/auth"
	"github.com/pixelnest/gallery/internal/backend"
	"github.com/pixelnest/gallery/internal/config"
	"github.com/pixelnest/gallery/internal/gallery"
	appMiddleware "github.com/pixelnest/gallery/internal/middleware"
	"github.com/pixelnest/gallery/internal/response"
)

func newRouter(cfg *config.Config, be *backend.Handle, images *gallery.Handler, logger *slog.Logger) *chi.Mux {
	authHandler := auth.NewHandler(be.Auth, logger)
	requireAuth := appMiddleware.RequireAuth(be.Auth)

	r := chi.NewRouter()
	r.Use(chiMiddleware.RequestID)
	r.Use(chiMiddleware.RealIP)
	r.Use(appMiddleware.Logger(logger))
	r.Use(chiMiddleware.Recoverer)
	r.Use(appMiddleware.Metrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins(),
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID"},
		MaxAge:         300,
	}))

	r.Get("/health", func(w http.ResponseWriter, _ *http.Request) {
		response.OK(w, map[string]string{"status": "ok"})
	})

	r.Get("/ready", func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 3*time.Second)
		defer cancel()
		if err := be.Ready(ctx); err != nil {
			logger.Warn("readiness check failed", slog.String("error", err.Error()))
			response.Error(w, http.StatusServiceUnavailable, "not ready")
			return
		}
		response.OK(w, map[string]string{"status": "ready"})
	})

	r.Handle("/metrics", promhttp.Handler())

	// Swagger UI at /swagger/, not served in production
	if !cfg.IsProduction() {
		r.Get("/swagger/*", httpSwagger.Handler(
			httpSwagger.URL("/swagger/doc.json"),
		))
	}

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/signup", authHandler.SignUp)
			r.Post("/signin", authHandler.SignIn)

			r.Group(func(r chi.Router) {
				r.Use(requireAuth)
				r.Post("/signout", authHandler.SignOut)
				r.Get("/session", authHandler.Session)
			})
		})

		r.Route("/images", func(r chi.Router) {
			r.Use(requireAuth)
			r.Post("/", images.Upload)
			r.Get("/", images.List)
			r.Get("/watch", images.Watch)
			r.Get("/{id}", images.Get)
			r.Delete("/{id}", images.Delete)
		})
	})

	return r
}
