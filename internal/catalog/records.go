package catalog

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Collection names in the document store.
const (
	ProductsCollection = "products"
	CouponsCollection  = "coupons"
	OrdersCollection   = "orders"
	UsersCollection    = "users"
)

// ErrMalformed marks a stored document that cannot be turned into a record.
var ErrMalformed = errors.New("catalog: malformed document")

// Discount types.
const (
	DiscountPercentage = "percentage"
	DiscountFixed      = "fixed"
)

// Order statuses.
const (
	StatusPlaced     = "placed"
	StatusProcessing = "processing"
	StatusShipped    = "shipped"
	StatusDelivered  = "delivered"
	StatusCancelled  = "cancelled"
)

// Product is the read-only snapshot used for pricing.
type Product struct {
	ID    string          `json:"id"`
	Name  string          `json:"name"`
	Price decimal.Decimal `json:"price"`
	Stock int             `json:"stock"`
	Image string          `json:"image,omitempty"`
}

type productDoc struct {
	ID    string  `json:"id" bson:"_id,omitempty"`
	Name  string  `json:"name" bson:"name"`
	Price float64 `json:"price" bson:"price"`
	Stock int     `json:"stock" bson:"stock"`
	Image string  `json:"image,omitempty" bson:"image,omitempty"`
}

func (d productDoc) record() (Product, error) {
	if d.ID == "" {
		return Product{}, fmt.Errorf("%w: product without id", ErrMalformed)
	}
	if d.Price < 0 {
		return Product{}, fmt.Errorf("%w: product %s has negative price", ErrMalformed, d.ID)
	}
	stock := d.Stock
	if stock < 0 {
		stock = 0
	}
	return Product{
		ID:    d.ID,
		Name:  strings.TrimSpace(d.Name),
		Price: money(d.Price),
		Stock: stock,
		Image: d.Image,
	}, nil
}

// Coupon is a discount definition. Zero MaxDiscountAmount means uncapped and
// zero MaxUses means unlimited. Zero StartDate/EndDate leave that side open.
type Coupon struct {
	ID                 string
	Code               string
	DiscountType       string
	DiscountValue      decimal.Decimal
	MinOrderAmount     decimal.Decimal
	MaxDiscountAmount  decimal.Decimal
	StartDate          time.Time
	EndDate            time.Time
	MaxUses            int
	UsedCount          int
	IsActive           bool
	IsProductSpecific  bool
	ApplicableProducts map[string]struct{}
}

// Applies reports whether productID is in the coupon's applicable set.
func (c Coupon) Applies(productID string) bool {
	_, ok := c.ApplicableProducts[productID]
	return ok
}

type couponDoc struct {
	ID                 string    `json:"id" bson:"_id,omitempty"`
	Code               string    `json:"code" bson:"code"`
	DiscountType       string    `json:"discountType" bson:"discountType"`
	DiscountValue      float64   `json:"discountValue" bson:"discountValue"`
	MinOrderAmount     float64   `json:"minOrderAmount" bson:"minOrderAmount"`
	MaxDiscountAmount  float64   `json:"maxDiscountAmount" bson:"maxDiscountAmount"`
	StartDate          time.Time `json:"startDate" bson:"startDate"`
	EndDate            time.Time `json:"endDate" bson:"endDate"`
	MaxUses            int       `json:"maxUses" bson:"maxUses"`
	UsedCount          int       `json:"usedCount" bson:"usedCount"`
	IsActive           bool      `json:"isActive" bson:"isActive"`
	IsProductSpecific  bool      `json:"isProductSpecific" bson:"isProductSpecific"`
	ApplicableProducts []string  `json:"applicableProducts" bson:"applicableProducts"`
}

func (d couponDoc) record() (Coupon, error) {
	if d.ID == "" {
		return Coupon{}, fmt.Errorf("%w: coupon without id", ErrMalformed)
	}
	kind := strings.ToLower(strings.TrimSpace(d.DiscountType))
	if kind != DiscountPercentage && kind != DiscountFixed {
		return Coupon{}, fmt.Errorf("%w: coupon %s has discount type %q", ErrMalformed, d.ID, d.DiscountType)
	}
	if d.DiscountValue < 0 {
		return Coupon{}, fmt.Errorf("%w: coupon %s has negative discount", ErrMalformed, d.ID)
	}
	applicable := make(map[string]struct{}, len(d.ApplicableProducts))
	for _, id := range d.ApplicableProducts {
		if id = strings.TrimSpace(id); id != "" {
			applicable[id] = struct{}{}
		}
	}
	return Coupon{
		ID:                 d.ID,
		Code:               NormalizeCode(d.Code),
		DiscountType:       kind,
		DiscountValue:      decimal.NewFromFloat(d.DiscountValue),
		MinOrderAmount:     nonNegative(d.MinOrderAmount),
		MaxDiscountAmount:  nonNegative(d.MaxDiscountAmount),
		StartDate:          d.StartDate,
		EndDate:            d.EndDate,
		MaxUses:            max(d.MaxUses, 0),
		UsedCount:          max(d.UsedCount, 0),
		IsActive:           d.IsActive,
		IsProductSpecific:  d.IsProductSpecific,
		ApplicableProducts: applicable,
	}, nil
}

// NormalizeCode trims and uppercases a coupon code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// User is the subset of the identity profile the checkout needs.
type User struct {
	ID    string
	Email string
	Name  string
}

type userDoc struct {
	ID    string `json:"id" bson:"_id,omitempty"`
	Email string `json:"email" bson:"email"`
	Name  string `json:"name" bson:"name"`
}

func (d userDoc) record() User {
	return User{ID: d.ID, Email: strings.TrimSpace(d.Email), Name: strings.TrimSpace(d.Name)}
}

func money(f float64) decimal.Decimal {
	return decimal.NewFromFloat(f).Round(2)
}

func nonNegative(f float64) decimal.Decimal {
	if f < 0 {
		return decimal.Zero
	}
	return money(f)
}

func float(d decimal.Decimal) float64 {
	return d.Round(2).InexactFloat64()
}
