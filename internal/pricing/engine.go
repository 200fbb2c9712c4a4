package pricing

import (
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Shipping methods.
const (
	MethodStandard = "standard"
	MethodExpress  = "express"
)

// Config is the store tariff. Rates are fractions (0.18 = 18%).
type Config struct {
	TaxRate                  decimal.Decimal
	DomesticCountry          string
	FreeShippingThreshold    decimal.Decimal
	DomesticStandardFee      decimal.Decimal
	DomesticExpressFee       decimal.Decimal
	InternationalStandardFee decimal.Decimal
	InternationalExpressFee  decimal.Decimal
	ImportDutyCountry        string
	ImportDutyRate           decimal.Decimal
}

// DefaultConfig mirrors the production tariff.
func DefaultConfig() Config {
	return Config{
		TaxRate:                  decimal.RequireFromString("0.18"),
		DomesticCountry:          "India",
		FreeShippingThreshold:    decimal.NewFromInt(1000),
		DomesticStandardFee:      decimal.NewFromInt(100),
		DomesticExpressFee:       decimal.NewFromInt(250),
		InternationalStandardFee: decimal.NewFromInt(500),
		InternationalExpressFee:  decimal.NewFromInt(1000),
		ImportDutyCountry:        "United States",
		ImportDutyRate:           decimal.RequireFromString("0.69"),
	}
}

// Breakdown is a fully priced order. Total = Subtotal + Tax + ShippingCost +
// ImportDuty - DiscountAmount, floored at zero.
type Breakdown struct {
	Subtotal       decimal.Decimal `json:"subtotal"`
	Tax            decimal.Decimal `json:"tax"`
	ShippingCost   decimal.Decimal `json:"shippingCost"`
	ImportDuty     decimal.Decimal `json:"importDuty"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
	Total          decimal.Decimal `json:"total"`
}

// Calculator prices carts. It performs no I/O.
type Calculator struct {
	cfg Config
}

func NewCalculator(cfg Config) *Calculator {
	return &Calculator{cfg: cfg}
}

// ValidMethod reports whether method is a known shipping method.
func ValidMethod(method string) bool {
	switch normalizeMethod(method) {
	case MethodStandard, MethodExpress:
		return true
	}
	return false
}

func normalizeMethod(method string) string {
	return strings.ToLower(strings.TrimSpace(method))
}

func sameCountry(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Domestic reports whether country is the store's home country.
func (c *Calculator) Domestic(country string) bool {
	return sameCountry(country, c.cfg.DomesticCountry)
}

// Price computes the breakdown. Unknown shipping methods price as standard;
// callers validate the method beforehand.
func (c *Calculator) Price(subtotal decimal.Decimal, country, method string, discount decimal.Decimal) Breakdown {
	if subtotal.IsNegative() {
		subtotal = decimal.Zero
	}
	if discount.IsNegative() {
		discount = decimal.Zero
	}
	tax := subtotal.Mul(c.cfg.TaxRate).Round(2)
	shipping := c.ShippingCost(subtotal, country, method)
	duty := decimal.Zero
	if sameCountry(country, c.cfg.ImportDutyCountry) {
		duty = subtotal.Mul(c.cfg.ImportDutyRate).Round(2)
	}
	total := subtotal.Add(tax).Add(shipping).Add(duty).Sub(discount)
	if total.IsNegative() {
		total = decimal.Zero
	}
	return Breakdown{
		Subtotal:       subtotal,
		Tax:            tax,
		ShippingCost:   shipping,
		ImportDuty:     duty,
		DiscountAmount: discount,
		Total:          total,
	}
}

// ShippingCost applies the free-shipping threshold to domestic standard
// delivery only.
func (c *Calculator) ShippingCost(subtotal decimal.Decimal, country, method string) decimal.Decimal {
	express := normalizeMethod(method) == MethodExpress
	if c.Domestic(country) {
		if express {
			return c.cfg.DomesticExpressFee
		}
		if subtotal.GreaterThan(c.cfg.FreeShippingThreshold) {
			return decimal.Zero
		}
		return c.cfg.DomesticStandardFee
	}
	if express {
		return c.cfg.InternationalExpressFee
	}
	return c.cfg.InternationalStandardFee
}

// EstimatedDelivery returns the promised delivery date for an order placed at from.
func (c *Calculator) EstimatedDelivery(from time.Time, country, method string) time.Time {
	express := normalizeMethod(method) == MethodExpress
	days := 14
	switch {
	case c.Domestic(country) && express:
		days = 2
	case c.Domestic(country):
		days = 5
	case express:
		days = 7
	}
	return from.AddDate(0, 0, days)
}
