package checkout

import (
	"context"
	"net/http"

	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/payment"
)

// CartSource loads the shopper's stored cart.
type CartSource interface {
	Get(ctx context.Context, userID string) (cart.State, error)
}

type Handler struct {
	Carts     CartSource
	Processor Processor
}

type checkoutRequest struct {
	Address        catalog.Address `json:"address"`
	ShippingMethod string          `json:"shippingMethod"`
	Payment        payment.Info    `json:"payment"`
	Email          string          `json:"email,omitempty"`
}

// Checkout walks a fresh session through every stage for the stored cart.
func (h *Handler) Checkout(w http.ResponseWriter, r *http.Request) {
	if h.Carts == nil || h.Processor == nil {
		common.JSONError(w, http.StatusInternalServerError, "INTERNAL", "checkout service not configured", nil)
		return
	}
	userID, ok := common.UserID(r.Context())
	if !ok || userID == "" {
		common.JSONError(w, http.StatusUnauthorized, "UNAUTHORIZED", "authentication required", nil)
		return
	}
	var payload checkoutRequest
	if err := common.DecodeJSON(r, &payload); err != nil {
		common.WriteError(w, err)
		return
	}
	state, err := h.Carts.Get(r.Context(), userID)
	if err != nil {
		zerolog.Ctx(r.Context()).Error().Err(err).Msg("load cart for checkout")
		common.JSONError(w, http.StatusServiceUnavailable, "PERSISTENCE", "could not load your cart, please retry", nil)
		return
	}
	if state.Empty() {
		common.JSONError(w, http.StatusUnprocessableEntity, "VALIDATION", "your cart is empty", nil)
		return
	}

	sess := NewSession(userID, state)
	sess.Email = payload.Email
	flow := Flow{Session: sess, Processor: h.Processor}
	if err := sess.Review(); err != nil {
		h.writeError(w, err)
		return
	}
	if err := sess.SubmitShipping(payload.Address, payload.ShippingMethod); err != nil {
		h.writeError(w, err)
		return
	}
	if err := sess.SubmitPayment(payload.Payment); err != nil {
		h.writeError(w, err)
		return
	}
	res, err := flow.Confirm(r.Context())
	if err != nil {
		h.writeError(w, err)
		return
	}
	common.JSON(w, http.StatusCreated, map[string]any{
		"success":   true,
		"orderId":   res.OrderID,
		"paymentId": res.PaymentID,
		"message":   res.Message,
		"data":      res,
	})
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	if ce, ok := AsError(err); ok {
		common.WriteError(w, ce.AppError())
		return
	}
	common.WriteError(w, err)
}
