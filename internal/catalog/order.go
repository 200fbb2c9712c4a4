package catalog

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/payment"
)

// Address is the shipping destination captured at checkout.
type Address struct {
	Name       string `json:"name" bson:"name" validate:"required"`
	Phone      string `json:"phone" bson:"phone" validate:"required,phone"`
	House      string `json:"house" bson:"house" validate:"required"`
	Line1      string `json:"line1" bson:"line1" validate:"required"`
	Line2      string `json:"line2,omitempty" bson:"line2,omitempty"`
	City       string `json:"city" bson:"city" validate:"required"`
	State      string `json:"state" bson:"state" validate:"required"`
	Country    string `json:"country" bson:"country" validate:"required"`
	PostalCode string `json:"postalCode" bson:"postalCode" validate:"required"`
}

// OrderItem is a cart line frozen at purchase price.
type OrderItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	Image     string          `json:"image"`
}

type Shipping struct {
	Address           Address         `json:"address"`
	Method            string          `json:"method"`
	Cost              decimal.Decimal `json:"cost"`
	EstimatedDelivery time.Time       `json:"estimatedDelivery"`
}

type StatusEntry struct {
	Status    string    `json:"status" bson:"status"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
	Note      string    `json:"note" bson:"note"`
}

type Tracking struct {
	Code    string `json:"code" bson:"code"`
	Carrier string `json:"carrier" bson:"carrier"`
	URL     string `json:"url" bson:"url"`
}

// AppliedCouponRef records which coupon priced the order.
type AppliedCouponRef struct {
	Code     string `json:"code" bson:"code"`
	CouponID string `json:"couponId" bson:"couponId"`
}

// Order is a placed order. Money fields are immutable after creation.
type Order struct {
	ID            string            `json:"id"`
	UserID        string            `json:"userId"`
	Items         []OrderItem       `json:"items"`
	Shipping      Shipping          `json:"shipping"`
	Payment       payment.Summary   `json:"payment"`
	PaymentID     string            `json:"paymentId"`
	Coupon        *AppliedCouponRef `json:"coupon,omitempty"`
	Subtotal      decimal.Decimal   `json:"subtotal"`
	Tax           decimal.Decimal   `json:"tax"`
	ImportDuty    decimal.Decimal   `json:"importDuty"`
	Discount      decimal.Decimal   `json:"discount"`
	TotalAmount   decimal.Decimal   `json:"totalAmount"`
	Currency      string            `json:"currency"`
	Status        string            `json:"status"`
	StatusHistory []StatusEntry     `json:"statusHistory"`
	Tracking      Tracking          `json:"tracking"`
	CreatedAt     time.Time         `json:"createdAt"`
}

// Fulfilled reports whether the order has left the warehouse.
func (o Order) Fulfilled() bool {
	return o.Status == StatusShipped || o.Status == StatusDelivered
}

type orderItemDoc struct {
	ProductID string  `json:"productId" bson:"productId"`
	Name      string  `json:"name" bson:"name"`
	Price     float64 `json:"price" bson:"price"`
	Quantity  int     `json:"quantity" bson:"quantity"`
	Image     string  `json:"image" bson:"image"`
}

type shippingDoc struct {
	Address           Address   `json:"address" bson:"address"`
	Method            string    `json:"method" bson:"method"`
	Cost              float64   `json:"cost" bson:"cost"`
	EstimatedDelivery time.Time `json:"estimatedDelivery" bson:"estimatedDelivery"`
}

type orderDoc struct {
	ID            string            `json:"id" bson:"_id,omitempty"`
	UserID        string            `json:"userId" bson:"userId"`
	Items         []orderItemDoc    `json:"items" bson:"items"`
	Shipping      shippingDoc       `json:"shipping" bson:"shipping"`
	Payment       payment.Summary   `json:"payment" bson:"payment"`
	PaymentID     string            `json:"paymentId" bson:"paymentId"`
	Coupon        *AppliedCouponRef `json:"coupon,omitempty" bson:"coupon,omitempty"`
	Subtotal      float64           `json:"subtotal" bson:"subtotal"`
	Tax           float64           `json:"tax" bson:"tax"`
	ImportDuty    float64           `json:"importDuty" bson:"importDuty"`
	Discount      float64           `json:"discount" bson:"discount"`
	TotalAmount   float64           `json:"totalAmount" bson:"totalAmount"`
	Currency      string            `json:"currency" bson:"currency"`
	Status        string            `json:"status" bson:"status"`
	StatusHistory []StatusEntry     `json:"statusHistory" bson:"statusHistory"`
	Tracking      Tracking          `json:"tracking" bson:"tracking"`
	CreatedAt     time.Time         `json:"createdAt" bson:"createdAt"`
}

func (d orderDoc) record() (Order, error) {
	if d.ID == "" {
		return Order{}, fmt.Errorf("%w: order without id", ErrMalformed)
	}
	items := make([]OrderItem, 0, len(d.Items))
	for _, it := range d.Items {
		items = append(items, OrderItem{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     money(it.Price),
			Quantity:  it.Quantity,
			Image:     it.Image,
		})
	}
	status := d.Status
	if status == "" {
		status = StatusPlaced
	}
	history := d.StatusHistory
	if history == nil {
		history = []StatusEntry{}
	}
	return Order{
		ID:     d.ID,
		UserID: d.UserID,
		Items:  items,
		Shipping: Shipping{
			Address:           d.Shipping.Address,
			Method:            d.Shipping.Method,
			Cost:              money(d.Shipping.Cost),
			EstimatedDelivery: d.Shipping.EstimatedDelivery,
		},
		Payment:       d.Payment,
		PaymentID:     d.PaymentID,
		Coupon:        d.Coupon,
		Subtotal:      money(d.Subtotal),
		Tax:           money(d.Tax),
		ImportDuty:    money(d.ImportDuty),
		Discount:      money(d.Discount),
		TotalAmount:   money(d.TotalAmount),
		Currency:      d.Currency,
		Status:        status,
		StatusHistory: history,
		Tracking:      d.Tracking,
		CreatedAt:     d.CreatedAt,
	}, nil
}

func newOrderDoc(o Order) orderDoc {
	items := make([]orderItemDoc, 0, len(o.Items))
	for _, it := range o.Items {
		items = append(items, orderItemDoc{
			ProductID: it.ProductID,
			Name:      it.Name,
			Price:     float(it.Price),
			Quantity:  it.Quantity,
			Image:     it.Image,
		})
	}
	return orderDoc{
		ID:     o.ID,
		UserID: o.UserID,
		Items:  items,
		Shipping: shippingDoc{
			Address:           o.Shipping.Address,
			Method:            o.Shipping.Method,
			Cost:              float(o.Shipping.Cost),
			EstimatedDelivery: o.Shipping.EstimatedDelivery,
		},
		Payment:       o.Payment,
		PaymentID:     o.PaymentID,
		Coupon:        o.Coupon,
		Subtotal:      float(o.Subtotal),
		Tax:           float(o.Tax),
		ImportDuty:    float(o.ImportDuty),
		Discount:      float(o.Discount),
		TotalAmount:   float(o.TotalAmount),
		Currency:      o.Currency,
		Status:        o.Status,
		StatusHistory: o.StatusHistory,
		Tracking:      o.Tracking,
		CreatedAt:     o.CreatedAt,
	}
}
