package order

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/common"
)

// Store reads placed orders.
type Store interface {
	Get(ctx context.Context, id string) (catalog.Order, error)
	ListByUser(ctx context.Context, userID string) ([]catalog.Order, error)
}

// Handler serves a shopper's order history.
type Handler struct {
	Orders Store
}

// List handles GET /api/v1/orders.
func (h *Handler) List(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	orders, err := h.Orders.ListByUser(r.Context(), userID)
	if err != nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "failed to list orders", nil)
		return
	}
	if status := r.URL.Query().Get("status"); status != "" {
		orders = filterStatus(orders, status)
	}
	page, perPage := common.ParsePagination(r, 20, 100)
	start, end := common.Window(page, perPage, len(orders))
	w.Header().Set("X-Total-Count", strconv.Itoa(len(orders)))
	common.JSON(w, http.StatusOK, map[string]any{
		"data":       orders[start:end],
		"pagination": common.Pagination{Page: page, PerPage: perPage, TotalItems: len(orders)},
	})
}

// Get handles GET /api/v1/orders/{id}. Another user's order reads as missing.
func (h *Handler) Get(w http.ResponseWriter, r *http.Request) {
	if h.Orders == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order store not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	ord, err := h.Orders.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		if errors.Is(err, catalog.ErrNotFound) {
			common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
			return
		}
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "order lookup failed", nil)
		return
	}
	if ord.UserID != userID {
		common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "order not found", nil)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": ord})
}

func filterStatus(orders []catalog.Order, status string) []catalog.Order {
	out := orders[:0:0]
	for _, o := range orders {
		if o.Status == status {
			out = append(out, o)
		}
	}
	return out
}
