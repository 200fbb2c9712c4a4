package pricing

import (
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// Handler exposes the calculator over HTTP.
type Handler struct {
	Calc *Calculator
}

type quoteRequest struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	Country        string          `json:"country"`
	ShippingMethod string          `json:"shippingMethod"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// Quote handles POST /api/v1/pricing/quote.
func (h *Handler) Quote(w http.ResponseWriter, r *http.Request) {
	var req quoteRequest
	if err := common.DecodeJSON(r, &req); err != nil {
		common.WriteError(w, err)
		return
	}
	if strings.TrimSpace(req.Country) == "" {
		common.WriteError(w, common.Unprocessable("VALIDATION_ERROR", "country is required", nil))
		return
	}
	if req.ShippingMethod == "" {
		req.ShippingMethod = MethodStandard
	}
	if !ValidMethod(req.ShippingMethod) {
		common.WriteError(w, common.Unprocessable("VALIDATION_ERROR", "shippingMethod must be standard or express", nil))
		return
	}
	if req.Subtotal.IsNegative() || req.DiscountAmount.IsNegative() {
		common.WriteError(w, common.Unprocessable("VALIDATION_ERROR", "amounts must not be negative", nil))
		return
	}
	if req.DiscountAmount.GreaterThan(req.Subtotal) {
		req.DiscountAmount = req.Subtotal
	}
	common.JSON(w, http.StatusOK, map[string]any{
		"data": h.Calc.Price(req.Subtotal, req.Country, req.ShippingMethod, req.DiscountAmount),
	})
}
