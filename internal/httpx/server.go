package httpx

import (
	"net/http"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/logger"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

func NewRouter() *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.RealIP, logger.Middleware, metrics.Middleware, middleware.Recoverer)
	r.Use(middleware.Timeout(15 * time.Second))
	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Method(http.MethodGet, "/metrics", metrics.Handler())
	return r
}

// Handlers bundles every API surface; nil members are not mounted.
type Handlers struct {
	Checkout *CheckoutHandler
	Orders   *OrdersHandler
	Cart     *CartHandler
	Products *ProductsHandler
	Admin    *AdminHandler
}

// Mount registers the authenticated routes behind the identity middleware.
func (h Handlers) Mount(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(Identify)
		if h.Checkout != nil {
			h.Checkout.Register(r)
		}
		if h.Orders != nil {
			h.Orders.Register(r)
		}
		if h.Cart != nil {
			h.Cart.Register(r)
		}
		if h.Products != nil {
			h.Products.Register(r)
		}
		if h.Admin != nil {
			h.Admin.Register(r)
		}
	})
}
