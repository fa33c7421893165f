// Package server assembles the HTTP API.
package server

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/diagnosis/refcheck/internal/http/handlers"
	"github.com/diagnosis/refcheck/internal/http/middleware"
	"github.com/diagnosis/refcheck/internal/requests"
	"github.com/diagnosis/refcheck/internal/respond"
	"github.com/diagnosis/refcheck/internal/wizard"
	"github.com/diagnosis/refcheck/pkg/auth"
	mw "github.com/diagnosis/refcheck/pkg/middleware"
)

const idempotencyTTL = 24 * time.Hour

type Deps struct {
	ServiceName    string
	AllowedOrigins []string

	Users     *auth.Directory
	JWTSecret string
	TokenTTL  time.Duration

	Wizards  *wizard.Registry
	Requests *requests.Service
	Respond  *respond.Service

	Idempotency mw.IdempotencyStore
	Limiter     middleware.Limiter
	// PublicRateLimit is requests per minute per client on /v1/respond.
	PublicRateLimit int
}

func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	useCommon(r, d)

	r.Route("/v1", func(r chi.Router) {
		r.Mount("/auth", handlers.NewAuthHandler(d.Users, d.JWTSecret, d.TokenTTL).Routes())

		r.Group(func(r chi.Router) {
			r.Use(middleware.RequireJWT(d.JWTSecret))
			r.Mount("/wizard", handlers.NewWizardHandler(d.Wizards).Routes())

			requestRoutes := handlers.NewRequestsHandler(d.Requests).Routes()
			if d.Idempotency != nil {
				r.With(mw.Idempotency(d.Idempotency, idempotencyTTL)).Mount("/requests", requestRoutes)
			} else {
				r.Mount("/requests", requestRoutes)
			}
		})

		r.With(middleware.RateLimit(d.Limiter, middleware.RateLimitConfig{
			Requests: d.PublicRateLimit,
			Window:   time.Minute,
		})).Mount("/respond", handlers.NewRespondHandler(d.Respond).Routes())
	})

	return r
}

// useCommon installs the stack every route shares. Recoverer sits inside
// Logging so a panic is logged with its stack and answered with a 500.
func useCommon(r chi.Router, d Deps) {
	r.Use(mw.RequestID)
	r.Use(mw.ServiceName(d.ServiceName))
	r.Use(mw.Logging)
	r.Use(chimw.Recoverer)
	r.Use(mw.CORS(d.AllowedOrigins))
	r.Use(mw.Health)
}
