package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter(apiHandler *APIHandler) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(RequestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.StripSlashes)

	r.Route("/api", func(r chi.Router) {
		// Public routes
		r.Post("/login", apiHandler.LoginHandler)
		r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
			writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		})

		// User-authenticated routes
		r.Group(func(r chi.Router) {
			r.Use(apiHandler.JWTAuthMiddleware)

			r.Get("/me", apiHandler.MeHandler)
			r.Put("/settings", apiHandler.SettingsHandler)
			r.Get("/dashboard", apiHandler.DashboardHandler)

			r.Get("/chats/{partner}/messages", apiHandler.ListMessagesHandler)
			r.Post("/chats/{partner}/messages", apiHandler.SendMessageHandler)

			r.Get("/ws", apiHandler.WebSocketHandler)
		})
	})

	return r
}
