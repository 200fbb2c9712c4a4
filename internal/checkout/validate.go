package checkout

import (
	"errors"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

var phonePattern = regexp.MustCompile(`^[0-9]{7,12}$`)

var validate = newValidator()

func newValidator() *validator.Validate {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		tag := strings.SplitN(f.Tag.Get("json"), ",", 2)[0]
		if tag == "" || tag == "-" {
			return f.Name
		}
		return tag
	})
	_ = v.RegisterValidation("phone", func(fl validator.FieldLevel) bool {
		return phonePattern.MatchString(fl.Field().String())
	})
	return v
}

// NormalizeAddress trims every field.
func NormalizeAddress(a catalog.Address) catalog.Address {
	a.Name = strings.TrimSpace(a.Name)
	a.Phone = strings.TrimSpace(a.Phone)
	a.House = strings.TrimSpace(a.House)
	a.Line1 = strings.TrimSpace(a.Line1)
	a.Line2 = strings.TrimSpace(a.Line2)
	a.City = strings.TrimSpace(a.City)
	a.State = strings.TrimSpace(a.State)
	a.Country = strings.TrimSpace(a.Country)
	a.PostalCode = strings.TrimSpace(a.PostalCode)
	return a
}

// ValidateShipping checks the Shipping -> Payment guard.
func ValidateShipping(addr catalog.Address, method string) error {
	fields := map[string]string{}
	if err := validate.Struct(NormalizeAddress(addr)); err != nil {
		var verrs validator.ValidationErrors
		if !errors.As(err, &verrs) {
			return newError(KindValidation, "shipping", "invalid shipping details", err)
		}
		for _, fe := range verrs {
			fields[fe.Field()] = fieldMessage(fe)
		}
	}
	if method != "" && !pricing.ValidMethod(method) {
		fields["shippingMethod"] = "must be standard or express"
	}
	if len(fields) == 0 {
		return nil
	}
	e := newError(KindValidation, "shipping", "please complete your shipping details", nil)
	e.Details = fields
	return e
}

// ValidatePayment checks the Payment -> Processing guard. Only presence is
// checked; numbers are not Luhn validated.
func ValidatePayment(info payment.Info) error {
	if info.Complete() {
		return nil
	}
	e := newError(KindValidation, "payment", "please complete your payment details", nil)
	switch strings.ToLower(strings.TrimSpace(info.Method)) {
	case payment.MethodUPI:
		e.Details = map[string]string{"upiId": "is required"}
	case payment.MethodCard:
		e.Details = map[string]string{"cardNumber": "is required", "cvv": "is required", "expiry": "is required"}
	default:
		e.Details = map[string]string{"method": "must be card or upi"}
	}
	return e
}

func fieldMessage(fe validator.FieldError) string {
	switch fe.Tag() {
	case "required":
		return "is required"
	case "phone":
		return "must be 7 to 12 digits"
	}
	return "is invalid"
}
