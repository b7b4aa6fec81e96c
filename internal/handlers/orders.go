package handlers

import (
	"context"
	"net/http"

	"github.com/Bessima/gift-fulfillment/internal/models"
	"github.com/go-chi/chi/v5"
)

type OrderReader interface {
	Get(ctx context.Context, orderID string) (*models.Order, error)
}

type OrdersHandler struct {
	Orders OrderReader
}

func NewOrderHandler(orders OrderReader) *OrdersHandler {
	return &OrdersHandler{Orders: orders}
}

// Get returns the order with its timeline.
func (h *OrdersHandler) Get(w http.ResponseWriter, r *http.Request) {
	order, err := h.Orders.Get(r.Context(), chi.URLParam(r, "orderID"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, order)
}
