package handler

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/pesio-ai/be-brgy-identity/internal/repository"
)

// NewRouter registers every route on a chi router.
func NewRouter(h *HTTPHandler, validator TokenValidator, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(RequestLogger(h.log))
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(30 * time.Second))
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: allowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", h.Health)

	authn := Authenticate(validator, h.log)
	staff := RequireRole(h.log, repository.RoleStaff, repository.RoleAdmin)
	admin := RequireRole(h.log, repository.RoleAdmin)

	r.Route("/v1", func(r chi.Router) {
		r.Route("/auth", func(r chi.Router) {
			r.Post("/register", h.Register)
			r.Post("/login", h.Login)
			r.Post("/login/verify", h.VerifyLogin)
			r.Post("/refresh", h.RefreshToken)
			r.Post("/password/forgot", h.ForgotPassword)
			r.Post("/password/reset", h.ResetPassword)

			r.Group(func(r chi.Router) {
				r.Use(authn)
				r.Post("/logout", h.Logout)
				r.Post("/password/change", h.ChangePassword)
			})
		})

		r.Get("/residents/lookup", h.LookupResident)

		r.Group(func(r chi.Router) {
			r.Use(authn)

			r.With(staff).Post("/residents", h.CreateResident)
			r.With(staff).Post("/residents/{id}/documents/approve", h.ApproveResidentDocuments)

			r.With(admin).Post("/accounts", h.CreateAccount)
			r.With(staff).Get("/accounts", h.ListAccounts)
			r.With(admin).Post("/accounts/auto-approve", h.AutoApprove)
			r.With(staff).Post("/accounts/{id}/approve", h.ApproveAccount)
			r.With(admin).Post("/accounts/{id}/deactivate", h.DeactivateAccount)
			r.With(staff).Post("/accounts/{id}/link", h.LinkResident)

			r.With(admin).Get("/audit", h.ListAudit)
			r.With(staff).Post("/audit", h.RecordAudit)
		})
	})

	return r
}
