package cart

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/coupon"
)

// ErrUnknownProduct is returned when a cart references a product the catalog
// does not have.
var ErrUnknownProduct = errors.New("cart: unknown product")

// StateStore persists cart states.
type StateStore interface {
	Load(ctx context.Context, userID string) (State, error)
	Update(ctx context.Context, userID string, fn func(State) State) (State, error)
	Delete(ctx context.Context, userID string) error
}

// Service is the cart's dispatch loop: load, reduce, save.
type Service struct {
	Store    StateStore
	Products catalog.ProductSource
	Coupons  *coupon.Service
	Logger   zerolog.Logger
}

// Get returns the stored cart.
func (s *Service) Get(ctx context.Context, userID string) (State, error) {
	return s.Store.Load(ctx, userID)
}

// Dispatch applies action to the user's cart and persists the result.
func (s *Service) Dispatch(ctx context.Context, userID string, action Action) (State, error) {
	return s.Store.Update(ctx, userID, func(st State) State { return Reduce(st, action) })
}

// AddItem checks the product exists before dispatching.
func (s *Service) AddItem(ctx context.Context, userID, productID string, qty int) (State, error) {
	if qty <= 0 {
		return State{}, common.Unprocessable("VALIDATION_ERROR", "quantity must be positive", nil)
	}
	snaps, err := s.Products.Snapshots(ctx, []string{productID})
	if err != nil {
		return State{}, err
	}
	if _, ok := snaps[productID]; !ok {
		return State{}, common.NewAppError("NOT_FOUND", "product not found", http.StatusNotFound, ErrUnknownProduct)
	}
	return s.Dispatch(ctx, userID, AddItem{ProductID: productID, Quantity: qty})
}

// Clear deletes the user's cart.
func (s *Service) Clear(ctx context.Context, userID string) error {
	return s.Store.Delete(ctx, userID)
}

// PricedLines joins lines with current product prices. Lines for products
// that no longer exist are reported as ErrUnknownProduct.
func (s *Service) PricedLines(ctx context.Context, lines []Line) ([]coupon.Line, map[string]catalog.Product, error) {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	snaps, err := s.Products.Snapshots(ctx, ids)
	if err != nil {
		return nil, nil, err
	}
	out := make([]coupon.Line, 0, len(lines))
	for _, l := range lines {
		p, ok := snaps[l.ProductID]
		if !ok {
			return nil, nil, fmt.Errorf("%w: %s", ErrUnknownProduct, l.ProductID)
		}
		out = append(out, coupon.Line{ProductID: l.ProductID, Price: p.Price, Quantity: l.Quantity})
	}
	return out, snaps, nil
}

// PriceItems prices an explicit item list, or the user's stored cart when
// items is empty.
func (s *Service) PriceItems(ctx context.Context, userID string, items []coupon.ItemRef) ([]coupon.Line, error) {
	var lines []Line
	if len(items) == 0 {
		st, err := s.Store.Load(ctx, userID)
		if err != nil {
			return nil, err
		}
		lines = st.Lines
	} else {
		for _, it := range items {
			lines = append(lines, Line{ProductID: it.ProductID, Quantity: it.Quantity})
		}
	}
	priced, _, err := s.PricedLines(ctx, lines)
	if errors.Is(err, ErrUnknownProduct) {
		return nil, common.Unprocessable("UNKNOWN_PRODUCT", err.Error(), err)
	}
	return priced, err
}

// ApplyCoupon validates code against the priced cart and stores it on success.
func (s *Service) ApplyCoupon(ctx context.Context, userID, code string) (coupon.Result, error) {
	st, err := s.Store.Load(ctx, userID)
	if err != nil {
		return coupon.Result{}, err
	}
	if st.Empty() {
		return coupon.Result{}, common.Unprocessable("CART_EMPTY", "add items before applying a coupon", nil)
	}
	lines, _, err := s.PricedLines(ctx, st.Lines)
	if err != nil {
		return coupon.Result{}, err
	}
	res, err := s.Coupons.Validate(ctx, coupon.Request{Code: code, Lines: lines, Subtotal: coupon.Subtotal(lines), UserID: userID})
	if err != nil || !res.Valid {
		return res, err
	}
	if _, err := s.Dispatch(ctx, userID, ApplyCoupon{Coupon: *res.Coupon}); err != nil {
		return coupon.Result{}, err
	}
	return res, nil
}

// ViewLine is a cart line as shown to the shopper.
type ViewLine struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Image     string          `json:"image,omitempty"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
	LineTotal decimal.Decimal `json:"lineTotal"`
	Stock     int             `json:"stock"`
}

// View is the priced cart returned by GET /cart.
type View struct {
	Lines          []ViewLine      `json:"lines"`
	Subtotal       decimal.Decimal `json:"subtotal"`
	Coupon         *coupon.Applied `json:"coupon,omitempty"`
	CouponMessage  string          `json:"couponMessage,omitempty"`
	DiscountAmount decimal.Decimal `json:"discountAmount"`
}

// View prices the cart and re-evaluates the applied coupon against it
// without changing what is stored.
func (s *Service) View(ctx context.Context, userID string) (View, error) {
	st, err := s.Store.Load(ctx, userID)
	if err != nil {
		return View{}, err
	}
	ids := st.ProductIDs()
	snaps, err := s.Products.Snapshots(ctx, ids)
	if err != nil {
		return View{}, err
	}
	v := View{Lines: make([]ViewLine, 0, len(st.Lines)), Subtotal: decimal.Zero, DiscountAmount: decimal.Zero}
	priced := make([]coupon.Line, 0, len(st.Lines))
	for _, l := range st.Lines {
		p, ok := snaps[l.ProductID]
		if !ok {
			s.Logger.Warn().Str("product_id", l.ProductID).Str("user_id", userID).Msg("cart references unknown product")
			continue
		}
		total := p.Price.Mul(decimal.NewFromInt(int64(l.Quantity)))
		v.Lines = append(v.Lines, ViewLine{
			ProductID: p.ID, Name: p.Name, Image: p.Image, Price: p.Price,
			Quantity: l.Quantity, LineTotal: total, Stock: p.Stock,
		})
		v.Subtotal = v.Subtotal.Add(total)
		priced = append(priced, coupon.Line{ProductID: p.ID, Price: p.Price, Quantity: l.Quantity})
	}
	if st.Coupon != nil && s.Coupons != nil {
		repriced, err := s.Coupons.Revalidate(ctx, *st.Coupon, priced)
		var re *coupon.RuleError
		switch {
		case errors.As(err, &re):
			v.CouponMessage = re.Message
		case err != nil:
			return View{}, err
		default:
			v.Coupon = &repriced
			v.DiscountAmount = repriced.DiscountAmount
		}
	}
	return v, nil
}
