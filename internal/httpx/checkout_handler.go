package httpx

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/ariefcatur/go-marketplace-orders/internal/checkout"
	"github.com/ariefcatur/go-marketplace-orders/internal/logger"
	"github.com/ariefcatur/go-marketplace-orders/internal/metrics"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

const HeaderIdempotencyKey = "Idempotency-Key"

type Checkouter interface {
	Checkout(ctx context.Context, userID string) (orders.Order, error)
}

type OrderGetter interface {
	Get(ctx context.Context, id string) (orders.Order, error)
}

type CheckoutHandler struct {
	Checkout Checkouter
	Orders   OrderGetter
	Idem     *redisx.Idempotency // optional
	Cache    *redisx.Cache       // optional
	Timeout  time.Duration
}

func (h *CheckoutHandler) Register(r chi.Router) {
	r.Post("/checkout", h.checkout)
}

func (h *CheckoutHandler) checkout(w http.ResponseWriter, r *http.Request) {
	who := mustIdentity(r)
	log := logger.FromContext(r.Context())

	timeout := h.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	ctx, cancel := context.WithTimeout(r.Context(), timeout)
	defer cancel()

	// Fast-path idempotency via Redis; tanpa header, retry setelah sukses dapat EmptyCart
	key := r.Header.Get(HeaderIdempotencyKey)
	claimed := false
	if key != "" && h.Idem != nil {
		prev, err := h.Idem.Begin(ctx, who.UserID, key)
		switch {
		case errors.Is(err, redisx.ErrInFlight):
			writeError(w, r, err)
			return
		case err != nil:
			// Redis down: lanjut tanpa idempotency, DB tetap jadi kebenaran
			log.Warn("idempotency unavailable", zap.Error(err))
		case prev != "":
			o, err := h.Orders.Get(ctx, prev)
			if err != nil {
				writeError(w, r, err)
				return
			}
			w.Header().Set("Idempotent-Replayed", "true")
			writeJSON(w, http.StatusOK, o)
			return
		default:
			claimed = true
		}
	}

	o, err := h.Checkout.Checkout(ctx, who.UserID)
	metrics.CheckoutOutcomes.WithLabelValues(outcome(err)).Inc()
	if err != nil {
		if claimed {
			if aerr := h.Idem.Abort(context.WithoutCancel(ctx), who.UserID, key); aerr != nil {
				log.Warn("release idempotency key", zap.Error(aerr))
			}
		}
		writeError(w, r, err)
		return
	}

	if claimed {
		if cerr := h.Idem.Complete(ctx, who.UserID, key, o.ID); cerr != nil {
			log.Warn("record idempotency key", zap.String("order_id", o.ID), zap.Error(cerr))
		}
	}
	if h.Cache != nil {
		_ = h.Cache.Set(ctx, redisx.OrderKey(o.ID), o)
	}
	log.Info("order placed",
		zap.String("order_id", o.ID),
		zap.String("user_id", o.UserID),
		zap.Int("items", len(o.Items)),
		zap.String("total", o.TotalPrice.StringFixed(2)),
	)
	writeJSON(w, http.StatusCreated, o)
}

func outcome(err error) string {
	var (
		pnf *checkout.ProductNotFoundError
		ise *checkout.InsufficientStockError
	)
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, checkout.ErrEmptyCart):
		return "empty_cart"
	case errors.As(err, &pnf):
		return "product_not_found"
	case errors.As(err, &ise):
		return "insufficient_stock"
	case errors.Is(err, checkout.ErrCheckoutTimeout):
		return "timeout"
	case errors.Is(err, checkout.ErrConcurrencyConflict):
		return "conflict"
	default:
		return "error"
	}
}
