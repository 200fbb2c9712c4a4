package checkout

import (
	"errors"
	"net/http"
	"strings"

	"github.com/noah-isme/toko-checkout/internal/common"
)

// Kind classifies checkout failures.
type Kind string

const (
	KindValidation  Kind = "validation"
	KindInventory   Kind = "inventory"
	KindDuplicate   Kind = "duplicate_purchase"
	KindPayment     Kind = "payment"
	KindPersistence Kind = "persistence"
	KindNonFatal    Kind = "non_fatal"
)

// Error is a checkout failure tagged with the step that produced it.
type Error struct {
	Kind    Kind
	Step    string
	Message string
	Details any
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return e.Step + ": " + e.Message + ": " + e.Err.Error()
	}
	return e.Step + ": " + e.Message
}

func (e *Error) Unwrap() error { return e.Err }

// Fatal reports whether the error aborts Processing.
func (e *Error) Fatal() bool { return e.Kind != KindNonFatal }

// HTTPStatus maps the kind to a response status.
func (e *Error) HTTPStatus() int {
	switch e.Kind {
	case KindValidation:
		return http.StatusUnprocessableEntity
	case KindInventory, KindDuplicate:
		return http.StatusConflict
	case KindPayment:
		return http.StatusPaymentRequired
	case KindPersistence:
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// AppError renders e for the HTTP layer.
func (e *Error) AppError() *common.AppError {
	appErr := common.NewAppError(strings.ToUpper(string(e.Kind)), e.Message, e.HTTPStatus(), e.Err)
	details := map[string]any{"step": e.Step}
	if e.Details != nil {
		details["fields"] = e.Details
	}
	appErr.Details = details
	return appErr
}

// Warning is a non-fatal step failure reported alongside a placed order.
type Warning struct {
	Step    string `json:"step"`
	Message string `json:"message"`
}

func newError(kind Kind, step, msg string, err error) *Error {
	return &Error{Kind: kind, Step: step, Message: msg, Err: err}
}

// AsError extracts a *Error from err.
func AsError(err error) (*Error, bool) {
	var ce *Error
	if errors.As(err, &ce) {
		return ce, true
	}
	return nil, false
}
