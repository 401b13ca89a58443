package httpx

import (
	"context"
	"net/http"

	"github.com/ariefcatur/go-marketplace-orders/internal/cart"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
)

type CartService interface {
	View(ctx context.Context, userID string) (cart.Cart, error)
	Add(ctx context.Context, userID, productID string, qty int) (cart.Cart, error)
	Update(ctx context.Context, userID, productID string, qty int) (cart.Cart, error)
	Remove(ctx context.Context, userID, productID string) (cart.Cart, error)
	Clear(ctx context.Context, userID string) (cart.Cart, error)
}

type CartHandler struct {
	Cart CartService
}

type addItemReq struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

type setQuantityReq struct {
	Quantity int `json:"quantity"`
}

func (h *CartHandler) Register(r chi.Router) {
	r.Route("/cart", func(r chi.Router) {
		r.Get("/", h.view)
		r.Delete("/", h.clear)
		r.Post("/items", h.add)
		r.Put("/items/{productID}", h.update)
		r.Delete("/items/{productID}", h.remove)
	})
}

func (h *CartHandler) view(w http.ResponseWriter, r *http.Request) {
	c, err := h.Cart.View(r.Context(), mustIdentity(r).UserID)
	h.respond(w, r, http.StatusOK, c, err)
}

func (h *CartHandler) add(w http.ResponseWriter, r *http.Request) {
	var req addItemReq
	if !decodeJSON(w, r, &req) {
		return
	}
	pid, err := uuid.Parse(req.ProductID)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid product_id"})
		return
	}
	c, err := h.Cart.Add(r.Context(), mustIdentity(r).UserID, pid.String(), req.Quantity)
	h.respond(w, r, http.StatusCreated, c, err)
}

func (h *CartHandler) update(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	var req setQuantityReq
	if !decodeJSON(w, r, &req) {
		return
	}
	c, err := h.Cart.Update(r.Context(), mustIdentity(r).UserID, pid, req.Quantity)
	h.respond(w, r, http.StatusOK, c, err)
}

func (h *CartHandler) remove(w http.ResponseWriter, r *http.Request) {
	pid, ok := pathID(w, r, "productID")
	if !ok {
		return
	}
	c, err := h.Cart.Remove(r.Context(), mustIdentity(r).UserID, pid)
	h.respond(w, r, http.StatusOK, c, err)
}

func (h *CartHandler) clear(w http.ResponseWriter, r *http.Request) {
	c, err := h.Cart.Clear(r.Context(), mustIdentity(r).UserID)
	h.respond(w, r, http.StatusOK, c, err)
}

func (h *CartHandler) respond(w http.ResponseWriter, r *http.Request, code int, c cart.Cart, err error) {
	if err != nil {
		writeError(w, r, err)
		return
	}
	writeJSON(w, code, c)
}
