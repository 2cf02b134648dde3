package handler

import (
	"net/http"

	"qrmenu-be/internal/logger"
	"qrmenu-be/internal/metrics"
	"qrmenu-be/internal/middleware"
	"qrmenu-be/internal/order"
	"qrmenu-be/internal/utils"

	"github.com/go-chi/chi/v5"
)

// Deps is everything the HTTP surface needs.
type Deps struct {
	Orders   order.Service
	Realtime http.Handler
	Auth     *middleware.Authenticator
	Limiter  *middleware.Limiter
	Metrics  *metrics.Metrics
	Origins  []string
}

// NewRouter wires the middleware chain and routes.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()

	r.Use(logger.RequestIDMiddleware)
	r.Use(middleware.AccessLog(d.Metrics))
	r.Use(middleware.CORS(d.Origins))
	if d.Auth != nil {
		r.Use(d.Auth.Middleware)
	}
	if d.Limiter != nil {
		r.Use(d.Limiter.Middleware)
	}

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})
	r.Handle("/metrics", d.Metrics.Handler())

	if d.Realtime != nil {
		r.Handle("/ws", d.Realtime)
	}

	orders := NewOrderHandler(d.Orders)
	staff := middleware.RequireRole(utils.RoleAdmin, utils.RoleVendor, utils.RoleKitchen)

	r.Route("/orders", func(r chi.Router) {
		r.Post("/", orders.Create)
		r.With(staff).Get("/", orders.List)

		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", orders.Get)

			r.Group(func(r chi.Router) {
				r.Use(staff)
				r.Patch("/", orders.Patch)
				r.Post("/advance", orders.Advance)
				r.Post("/cancel", orders.Cancel)
			})
		})
	})

	return r
}
