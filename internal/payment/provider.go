package payment

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"
)

// ErrDeclined is returned by an Authorizer that refuses the charge.
var ErrDeclined = errors.New("payment declined")

// AuthRequest is what the checkout hands to a payment gateway.
type AuthRequest struct {
	OrderRef string
	UserID   string
	Amount   decimal.Decimal
	Currency string
	Info     Info
}

// Authorization is the gateway's answer for an approved charge.
type Authorization struct {
	PaymentID string
	Provider  string
}

// Authorizer abstracts the payment gateway used during checkout processing.
type Authorizer interface {
	Authorize(ctx context.Context, req AuthRequest) (Authorization, error)
}
