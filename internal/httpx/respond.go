package httpx

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/ariefcatur/go-marketplace-orders/internal/catalog"
	"github.com/ariefcatur/go-marketplace-orders/internal/checkout"
	"github.com/ariefcatur/go-marketplace-orders/internal/lifecycle"
	"github.com/ariefcatur/go-marketplace-orders/internal/logger"
	"github.com/ariefcatur/go-marketplace-orders/internal/orders"
	"github.com/ariefcatur/go-marketplace-orders/internal/postgres"
	"github.com/ariefcatur/go-marketplace-orders/internal/redisx"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"go.uber.org/zap"
)

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid json"})
		return false
	}
	return true
}

// pathID returns the named URL parameter when it is a uuid.
func pathID(w http.ResponseWriter, r *http.Request, name string) (string, bool) {
	id, err := uuid.Parse(chi.URLParam(r, name))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid " + name})
		return "", false
	}
	return id.String(), true
}

// writeError maps domain errors to HTTP statuses. Anything unknown is a 500
// and gets logged with the request's logger.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		pnf    *checkout.ProductNotFoundError
		ise    *checkout.InsufficientStockError
		badTr  *orders.InvalidTransitionError
		exceed *cart.ExceedsStockError
		short  *catalog.InsufficientStockError
	)
	switch {
	case errors.Is(err, checkout.ErrEmptyCart):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case errors.As(err, &pnf):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "product_ids": pnf.ProductIDs})
	case errors.As(err, &ise):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "shortages": ise.Shortages})
	case errors.As(err, &badTr):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "from": badTr.From, "to": badTr.To})
	case checkout.Retryable(err), errors.Is(err, orders.ErrTransitionBusy):
		w.Header().Set("Retry-After", "1")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"error": err.Error()})
	case errors.As(err, &exceed):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "available": exceed.Available})
	case errors.As(err, &short):
		writeJSON(w, http.StatusConflict, map[string]any{"error": err.Error(), "available": short.Available})
	case errors.Is(err, redisx.ErrInFlight):
		writeJSON(w, http.StatusConflict, map[string]string{"error": err.Error()})
	case errors.Is(err, orders.ErrOrderNotFound),
		errors.Is(err, catalog.ErrProductNotFound),
		errors.Is(err, cart.ErrLineNotFound),
		errors.Is(err, lifecycle.ErrUserNotFound),
		errors.Is(err, lifecycle.ErrCategoryNotFound):
		writeJSON(w, http.StatusNotFound, map[string]string{"error": err.Error()})
	case errors.Is(err, cart.ErrInvalidQuantity),
		errors.Is(err, catalog.ErrInvalidProduct),
		errors.Is(err, orders.ErrUnknownStatus):
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
	case postgres.IsUniqueViolation(err), postgres.IsForeignKeyViolation(err):
		writeJSON(w, http.StatusConflict, map[string]string{"error": "conflicts with existing data"})
	default:
		logger.FromContext(r.Context()).Error("request failed", zap.String("path", r.URL.Path), zap.Error(err))
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal error"})
	}
}
