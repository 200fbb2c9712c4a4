package cart

import (
	"github.com/noah-isme/toko-checkout/internal/coupon"
)

// Line is a product and quantity in the shopper's cart.
type Line struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}

// State is the cart as an immutable value. Reduce returns new States and
// never writes through to the one it was given.
type State struct {
	Lines  []Line          `json:"lines"`
	Coupon *coupon.Applied `json:"coupon,omitempty"`
}

// Empty reports whether the cart has no lines.
func (s State) Empty() bool { return len(s.Lines) == 0 }

// Quantity returns the quantity of productID, or 0.
func (s State) Quantity(productID string) int {
	for _, l := range s.Lines {
		if l.ProductID == productID {
			return l.Quantity
		}
	}
	return 0
}

// ProductIDs lists the products in cart order.
func (s State) ProductIDs() []string {
	ids := make([]string, 0, len(s.Lines))
	for _, l := range s.Lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}

// Action is a cart mutation understood by Reduce.
type Action interface {
	reduce(State) State
}

// AddItem adds Quantity units, merging with an existing line.
type AddItem struct {
	ProductID string
	Quantity  int
}

// UpdateQuantity sets a line's quantity; zero or less removes it.
type UpdateQuantity struct {
	ProductID string
	Quantity  int
}

type RemoveItem struct {
	ProductID string
}

type ApplyCoupon struct {
	Coupon coupon.Applied
}

type RemoveCoupon struct{}

// Clear empties the cart and drops the coupon.
type Clear struct{}

// Reduce applies a to s.
func Reduce(s State, a Action) State {
	if a == nil {
		return s
	}
	return a.reduce(s)
}

func (a AddItem) reduce(s State) State {
	if a.ProductID == "" || a.Quantity <= 0 {
		return s
	}
	lines := copyLines(s.Lines)
	for i := range lines {
		if lines[i].ProductID == a.ProductID {
			lines[i].Quantity += a.Quantity
			return State{Lines: lines, Coupon: s.Coupon}
		}
	}
	lines = append(lines, Line{ProductID: a.ProductID, Quantity: a.Quantity})
	return State{Lines: lines, Coupon: s.Coupon}
}

func (a UpdateQuantity) reduce(s State) State {
	if a.Quantity <= 0 {
		return RemoveItem{ProductID: a.ProductID}.reduce(s)
	}
	lines := copyLines(s.Lines)
	for i := range lines {
		if lines[i].ProductID == a.ProductID {
			lines[i].Quantity = a.Quantity
		}
	}
	return State{Lines: lines, Coupon: s.Coupon}
}

func (a RemoveItem) reduce(s State) State {
	lines := make([]Line, 0, len(s.Lines))
	for _, l := range s.Lines {
		if l.ProductID != a.ProductID {
			lines = append(lines, l)
		}
	}
	return State{Lines: lines, Coupon: keepCoupon(s.Coupon, lines)}
}

func (a ApplyCoupon) reduce(s State) State {
	c := a.Coupon
	c.AppliedToCartItems = append([]string(nil), a.Coupon.AppliedToCartItems...)
	return State{Lines: copyLines(s.Lines), Coupon: &c}
}

func (RemoveCoupon) reduce(s State) State {
	return State{Lines: copyLines(s.Lines)}
}

func (Clear) reduce(State) State {
	return State{Lines: []Line{}}
}

func copyLines(lines []Line) []Line {
	out := make([]Line, len(lines))
	copy(out, lines)
	return out
}

// keepCoupon drops a product-specific coupon once any product it was applied
// to leaves the cart, and any coupon once the cart is empty.
func keepCoupon(c *coupon.Applied, lines []Line) *coupon.Applied {
	if c == nil || len(lines) == 0 {
		return nil
	}
	present := make(map[string]struct{}, len(lines))
	for _, l := range lines {
		present[l.ProductID] = struct{}{}
	}
	for _, id := range c.AppliedToCartItems {
		if _, ok := present[id]; !ok {
			return nil
		}
	}
	return c
}
