package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/logger"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type OrderLedger interface {
	Get(ctx context.Context, id string) (orders.Order, error)
	ListByUser(ctx context.Context, userID string) ([]orders.Order, error)
	Transition(ctx context.Context, id string, to orders.Status) (orders.Order, error)
}

type OrdersHandler struct {
	Ledger OrderLedger
	Cache  *redisx.Cache // optional
}

type statusReq struct {
	Status string `json:"status"`
}

func (h *OrdersHandler) Register(r chi.Router) {
	r.Get("/orders", h.listOrders)
	r.Get("/orders/{id}", h.getOrder)
	r.With(AdminOnly).Patch("/orders/{id}/status", h.updateStatus)
}

func (h *OrdersHandler) listOrders(w http.ResponseWriter, r *http.Request) {
	list, err := h.Ledger.ListByUser(r.Context(), mustIdentity(r).UserID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *OrdersHandler) getOrder(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	o, err := h.load(r.Context(), id)
	if err != nil {
		writeError(w, r, err)
		return
	}
	who := mustIdentity(r)
	if o.UserID != who.UserID && !who.Admin {
		writeJSON(w, http.StatusForbidden, map[string]string{"error": "not enough permissions"})
		return
	}
	writeJSON(w, http.StatusOK, o)
}

// load reads through the Redis cache; cache errors fall back to the DB.
func (h *OrdersHandler) load(ctx context.Context, id string) (orders.Order, error) {
	key := redisx.OrderKey(id)
	if h.Cache != nil {
		var o orders.Order
		if hit, err := h.Cache.Get(ctx, key, &o); err == nil && hit {
			return o, nil
		}
	}
	o, err := h.Ledger.Get(ctx, id)
	if err != nil {
		return orders.Order{}, err
	}
	if h.Cache != nil {
		_ = h.Cache.Set(ctx, key, o)
	}
	return o, nil
}

func (h *OrdersHandler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var req statusReq
	if !decodeJSON(w, r, &req) {
		return
	}
	to, err := orders.ParseStatus(req.Status)
	if err != nil {
		writeError(w, r, err)
		return
	}

	o, err := h.Ledger.Transition(r.Context(), id, to)
	if err != nil {
		metrics.OrderTransitions.WithLabelValues(string(to), "rejected").Inc()
		writeError(w, r, err)
		return
	}
	metrics.OrderTransitions.WithLabelValues(string(to), "ok").Inc()

	// status lama di cache tidak boleh terbaca lagi
	if h.Cache != nil {
		if err := h.Cache.Delete(r.Context(), redisx.OrderKey(id)); err != nil {
			logger.FromContext(r.Context()).Warn("invalidate order cache", zap.String("order_id", id), zap.Error(err))
		}
	}
	writeJSON(w, http.StatusOK, o)
}
