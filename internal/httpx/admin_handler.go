package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/lifecycle"
	"github.com/ariefcatur/go-marketplace-orders/internal/logger"
	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
)

type Remover interface {
	DeleteUser(ctx context.Context, id string) (lifecycle.Report, error)
	DeleteProduct(ctx context.Context, id string) (lifecycle.Report, error)
	DeleteCategory(ctx context.Context, id string) (lifecycle.Report, error)
}

type AdminHandler struct {
	Remover Remover
}

func (h *AdminHandler) Register(r chi.Router) {
	r.Route("/admin", func(r chi.Router) {
		r.Use(AdminOnly)
		r.Delete("/users/{id}", h.deleteWith("user", h.Remover.DeleteUser))
		r.Delete("/products/{id}", h.deleteWith("product", h.Remover.DeleteProduct))
		r.Delete("/categories/{id}", h.deleteWith("category", h.Remover.DeleteCategory))
	})
}

func (h *AdminHandler) deleteWith(kind string, del func(context.Context, string) (lifecycle.Report, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id, ok := pathID(w, r, "id")
		if !ok {
			return
		}
		rep, err := del(r.Context(), id)
		if err != nil {
			writeError(w, r, err)
			return
		}
		logger.FromContext(r.Context()).Info("entity deleted",
			zap.String("kind", kind),
			zap.String("id", id),
			zap.String("by", mustIdentity(r).UserID),
			zap.Any("removed", rep),
		)
		writeJSON(w, http.StatusOK, rep)
	}
}
