package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"

	"studylens-backend/internal/handlers"
	"studylens-backend/internal/middleware"
	"studylens-backend/internal/websocket"
)

func New(
	sessionAuth *middleware.SessionAuth,
	transcriptHandler *handlers.TranscriptHandler,
	sessionHandler *handlers.SessionHandler,
	videoHandler *handlers.VideoHandler,
	wsHub *websocket.Hub,
	apiLimiter *middleware.RateLimiter,
	frontendURL string,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(chimiddleware.Logger)
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.RealIP)
	r.Use(middleware.RequestID)
	r.Use(middleware.CORS(frontendURL))

	// Health check
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"status":"ok"}`))
	})

	// ──── Transcript lookup (public) ────
	r.With(apiLimiter.Middleware).Get("/api/transcript", transcriptHandler.Get)

	r.Route("/api/v1", func(r chi.Router) {
		r.With(apiLimiter.Middleware).Get("/transcript", transcriptHandler.Get)

		// ──── Video Routes ────
		r.With(apiLimiter.Middleware).Get("/videos/{videoId}", videoHandler.Get)

		// ──── Session Routes ────
		r.Route("/sessions", func(r chi.Router) {
			r.With(apiLimiter.Middleware).Post("/", sessionHandler.Create)

			r.Route("/{sessionID}", func(r chi.Router) {
				r.Use(sessionAuth.Middleware)
				r.Get("/", sessionHandler.Get)
				r.Delete("/", sessionHandler.Delete)

				r.Put("/youtube-url", sessionHandler.SetYoutubeURL)
				r.Put("/transcript", sessionHandler.SetTranscript)
				r.Put("/languages", sessionHandler.SetLanguages)
				r.Put("/roadmap-topic", sessionHandler.SetRoadmapTopic)

				r.Post("/transcript/fetch", sessionHandler.FetchTranscript)
				r.Post("/transcript/upload", sessionHandler.UploadTranscript)

				// Generation calls the model; these share the limiter.
				r.Group(func(r chi.Router) {
					r.Use(apiLimiter.Middleware)
					r.Post("/features/{feature}", sessionHandler.GenerateFeature)
					r.Post("/generate-all", sessionHandler.GenerateAll)
					r.Post("/chat", sessionHandler.Chat)
					r.Post("/roadmap", sessionHandler.GenerateRoadmap)
					r.Post("/frame-analysis", sessionHandler.AnalyzeFrame)
				})
			})
		})

		// ──── WebSocket ────
		r.Get("/ws", wsHub.HandleWebSocket)
	})

	return r
}
