/**
 * @description
 * This file sets up the HTTP router for the ido-service. It defines the campaign
 * endpoints, associates them with their handlers and applies the CORS,
 * authentication and rate limiting middleware.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: A lightweight and idiomatic router for Go.
 * - github.com/go-chi/cors: CORS handling.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig carries the router-level settings.
type RouterConfig struct {
	AllowedOrigins          []string
	Limiter                 RateLimiter
	JoinRateLimitPerMinute  int
	ClaimRateLimitPerMinute int
}

// CampaignRoutes creates and returns a new router for the ido-service.
func CampaignRoutes(h *CampaignHandlers, auth func(http.Handler) http.Handler, cfg RouterConfig) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	origins := cfg.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"https://*", "http://*"}
	}
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   origins,
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Link", "Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Group(func(r chi.Router) {
		r.Use(auth)

		r.Post("/campaigns", h.CreateCampaignHandler)
		r.Route("/campaigns/{id}", func(r chi.Router) {
			r.Get("/", h.GetCampaignHandler)
			r.Get("/participation", h.GetParticipationHandler)
			r.Get("/settlements", h.ListSettlementsHandler)

			r.Post("/deposit", h.DepositHandler())
			r.With(RateLimitMiddleware(cfg.Limiter, "join", cfg.JoinRateLimitPerMinute, time.Minute)).
				Post("/join", h.JoinHandler)
			r.With(RateLimitMiddleware(cfg.Limiter, "claim", cfg.ClaimRateLimitPerMinute, time.Minute)).
				Post("/claim", h.ClaimHandler())
			r.Post("/cancel", h.CancelHandler())
			r.Post("/close-soft-cap", h.CloseSoftCapHandler())
			r.Post("/withdraw", h.WithdrawHandler())
			r.Post("/recover-tokens", h.RecoverTokensHandler())
			r.Post("/refund", h.RefundHandler())
		})
	})

	return r
}
