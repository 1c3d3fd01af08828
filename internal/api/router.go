package api

import (
	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"

	"github.com/podscribe/backend/internal/api/handlers"
	"github.com/podscribe/backend/internal/api/middleware"
	"github.com/podscribe/backend/internal/config"
	"github.com/podscribe/backend/internal/feed"
	"github.com/podscribe/backend/internal/store"
	"github.com/podscribe/backend/internal/transcription"
)

func NewRouter(service *transcription.Service, st *store.Store, cfg *config.Config) *chi.Mux {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger)
	r.Use(cors.Handler(middleware.CORSHandler(cfg.CORSOrigins)))

	// Handlers
	feedHandler := handlers.NewFeedHandler(feed.NewParser())
	transcribeHandler := handlers.NewTranscribeHandler(service)
	transcriptsHandler := handlers.NewTranscriptsHandler(st)

	r.Route("/api", func(r chi.Router) {
		r.Get("/health", handlers.Health)

		r.Post("/rss", feedHandler.Parse)

		r.Post("/transcribe", transcribeHandler.Transcribe)
		r.Get("/transcripts", transcriptsHandler.List)
		r.Post("/transcript/find", transcriptsHandler.Find)
	})

	return r
}
