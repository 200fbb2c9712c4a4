package coupon

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/common"
)

// ItemRef is an unpriced cart line supplied by a client.
type ItemRef struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// LinePricer resolves item references (or the user's cart when none are
// given) into priced lines.
type LinePricer interface {
	PriceItems(ctx context.Context, userID string, items []ItemRef) ([]Line, error)
}

// Handler exposes coupon validation and usage recording.
type Handler struct {
	Svc    *Service
	Pricer LinePricer
	// Coupons backs the admin usage endpoint's existence check.
	Coupons interface {
		Get(ctx context.Context, id string) (catalog.Coupon, error)
	}
}

type validateRequest struct {
	Code  string    `json:"code"`
	Items []ItemRef `json:"items"`
}

// Validate handles POST /api/v1/coupons/validate.
func (h *Handler) Validate(w http.ResponseWriter, r *http.Request) {
	userID, _ := common.UserID(r.Context())
	var req validateRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	for _, it := range req.Items {
		if strings.TrimSpace(it.ProductID) == "" || it.Quantity <= 0 {
			common.WriteError(w, common.Unprocessable("VALIDATION_ERROR", "each item needs a productId and a positive quantity", nil))
			return
		}
	}
	lines, err := h.Pricer.PriceItems(r.Context(), userID, req.Items)
	if err != nil {
		common.WriteError(w, err)
		return
	}
	res, err := h.Svc.Validate(r.Context(), Request{Code: req.Code, Lines: lines, Subtotal: Subtotal(lines), UserID: userID})
	if err != nil {
		common.WriteError(w, err)
		return
	}
	common.JSON(w, http.StatusOK, map[string]any{"data": res})
}

// RecordUsage handles POST /api/v1/admin/coupons/{id}/usage.
func (h *Handler) RecordUsage(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if h.Coupons != nil {
		if _, err := h.Coupons.Get(r.Context(), id); err != nil {
			if errors.Is(err, catalog.ErrNotFound) {
				common.JSONError(w, http.StatusNotFound, "NOT_FOUND", "coupon not found", nil)
				return
			}
			if !errors.Is(err, catalog.ErrMalformed) {
				common.WriteError(w, err)
				return
			}
		}
	}
	ok := h.Svc.RecordUsage(r.Context(), id)
	status := http.StatusOK
	if !ok {
		status = http.StatusServiceUnavailable
	}
	common.JSON(w, status, map[string]any{"data": map[string]any{"success": ok}})
}
