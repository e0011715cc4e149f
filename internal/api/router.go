// Package api provides the control surface the host application uses to
// drive the tracking engine: settings, geofences, profiles, queue
// maintenance, tracking commands and device signals.
package api

import (
	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/waypost/waypost/internal/api/handler"
	"github.com/waypost/waypost/internal/api/middleware"
	"github.com/waypost/waypost/internal/geofence"
	"github.com/waypost/waypost/internal/profile"
	"github.com/waypost/waypost/internal/queue"
	"github.com/waypost/waypost/internal/settings"
	"github.com/waypost/waypost/internal/syncer"
	"github.com/waypost/waypost/internal/tracker"
)

// RouterConfig holds the router's collaborators.
type RouterConfig struct {
	Version       string
	Logger        zerolog.Logger
	ServiceName   string
	Store         *settings.Store
	Queue         queue.Repository
	Geofences     geofence.Repository
	Profiles      profile.Repository
	ProfileEngine *profile.Engine
	Tracker       *tracker.Tracker
	Syncer        *syncer.Engine
}

// NewRouter creates a chi router with all control API routes configured.
func NewRouter(cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	serviceName := cfg.ServiceName
	if serviceName == "" {
		serviceName = "waypost"
	}

	// Global middleware - order matters
	r.Use(middleware.RequestID)
	r.Use(middleware.Tracing(serviceName))
	r.Use(middleware.Logger(cfg.Logger))
	r.Use(middleware.Recovery(cfg.Logger))
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.ContentTypeJSON)
	r.Use(middleware.RequireJSON)

	statusHandler := handler.NewStatusHandler(cfg.Tracker, cfg.Syncer, cfg.Queue, cfg.ProfileEngine, cfg.Version)
	settingsHandler := handler.NewSettingsHandler(cfg.Store)
	geofenceHandler := handler.NewGeofenceHandler(cfg.Geofences)
	profileHandler := handler.NewProfileHandler(cfg.Profiles)
	queueHandler := handler.NewQueueHandler(cfg.Queue)
	trackingHandler := handler.NewTrackingHandler(cfg.Tracker)
	signalsHandler := handler.NewSignalsHandler(cfg.ProfileEngine, cfg.Syncer, cfg.Tracker)

	importRateLimit := middleware.RateLimitByIP(middleware.ImportRateLimit)     // 10 req/min
	mutationRateLimit := middleware.RateLimitByIP(middleware.MutationRateLimit) // 30 req/min
	standardRateLimit := middleware.RateLimitByIP(middleware.StandardRateLimit) // 100 req/min

	r.Route("/v1", func(r chi.Router) {
		r.With(standardRateLimit).Get("/status", statusHandler.GetStatus)

		r.Route("/settings", func(r chi.Router) {
			r.With(standardRateLimit).Get("/", settingsHandler.GetSettings)
			r.With(mutationRateLimit).Put("/", settingsHandler.PutSettings)
		})
		r.With(importRateLimit).Post("/settings:import", settingsHandler.ImportSettings)

		r.Route("/geofences", func(r chi.Router) {
			r.With(standardRateLimit).Get("/", geofenceHandler.ListGeofences)
			r.With(mutationRateLimit).Post("/", geofenceHandler.CreateGeofence)
			r.Route("/{geofenceId}", func(r chi.Router) {
				r.With(standardRateLimit).Get("/", geofenceHandler.GetGeofence)
				r.With(mutationRateLimit).Put("/", geofenceHandler.UpdateGeofence)
				r.With(mutationRateLimit).Delete("/", geofenceHandler.DeleteGeofence)
			})
		})

		r.Route("/profiles", func(r chi.Router) {
			r.With(standardRateLimit).Get("/", profileHandler.ListProfiles)
			r.With(mutationRateLimit).Post("/", profileHandler.CreateProfile)
			r.Route("/{profileId}", func(r chi.Router) {
				r.With(standardRateLimit).Get("/", profileHandler.GetProfile)
				r.With(mutationRateLimit).Put("/", profileHandler.UpdateProfile)
				r.With(mutationRateLimit).Delete("/", profileHandler.DeleteProfile)
			})
		})

		r.Route("/queue", func(r chi.Router) {
			r.With(standardRateLimit).Get("/stats", queueHandler.GetStats)
			r.With(mutationRateLimit).Post("/purge", queueHandler.Purge)
		})

		r.Route("/tracking", func(r chi.Router) {
			r.Use(mutationRateLimit)
			r.Post("/start", trackingHandler.Start)
			r.Post("/stop", trackingHandler.Stop)
		})

		// Signals arrive at device-event cadence; give them headroom.
		r.With(standardRateLimit).Post("/signals", signalsHandler.PostSignals)
	})

	return r
}
