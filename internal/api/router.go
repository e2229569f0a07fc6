/**
 * @description
 * This file sets up the HTTP router for the bank API. It defines the API
 * endpoints under /api/v1, associates them with their handlers, and applies the
 * shared middleware.
 *
 * @dependencies
 * - github.com/go-chi/chi/v5: routing and standard middleware.
 * - github.com/go-chi/cors: CORS with credentials, since sessions ride on cookies.
 */

package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/onegen/bank-api/internal/app"
)

// NewRouter creates the router and registers every route.
func NewRouter(h *Handlers, tokens *app.TokenIssuer, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PATCH", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		ExposedHeaders:   []string{"Retry-After"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		w.Write([]byte("healthy"))
	})

	r.Route("/api/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/users", h.RegisterHandler)
			r.Post("/login", h.LoginHandler)
			r.Post("/verify-otp", h.VerifyOTPHandler)
			r.Post("/refresh", h.RefreshHandler)
			r.Post("/logout", h.LogoutHandler)
		})

		r.Group(func(r chi.Router) {
			r.Use(AuthMiddleware(tokens))

			r.Get("/profiles", h.ListProfilesHandler)
			r.Get("/profiles/me", h.GetProfileHandler)
			r.Patch("/profiles/me", h.UpdateProfileHandler)
			r.Get("/profiles/me/next-of-kin", h.ListNextOfKinHandler)
			r.Post("/profiles/me/next-of-kin", h.AddNextOfKinHandler)
			r.Get("/profiles/me/next-of-kin/{id}", h.GetNextOfKinHandler)
			r.Patch("/profiles/me/next-of-kin/{id}", h.UpdateNextOfKinHandler)
			r.Delete("/profiles/me/next-of-kin/{id}", h.DeleteNextOfKinHandler)

			r.Get("/accounts", h.ListAccountsHandler)
			r.Get("/accounts/transactions", h.ListTransactionsHandler)
			r.Post("/accounts/deposit", h.DepositHandler)
			r.Post("/accounts/withdraw", h.WithdrawHandler)
			r.Post("/accounts/transfer", h.TransferHandler)
			r.Post("/accounts/{id}/primary", h.SetPrimaryAccountHandler)
			r.Patch("/accounts/{id}/verify", h.VerifyAccountHandler)
		})
	})

	return r
}
