// Package checkout turns a cart, an applied coupon and captured shipping and
// payment details into a persisted order.
package checkout

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/coupon"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/inventory"
	"github.com/noah-isme/toko-checkout/internal/obs"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

var tracer = otel.Tracer("github.com/noah-isme/toko-checkout/internal/checkout")

// ProductStore reads live product data and adjusts stock.
type ProductStore interface {
	Snapshots(ctx context.Context, ids []string) (map[string]catalog.Product, error)
	LiveStock(ctx context.Context, ids []string) (map[string]int, error)
	AdjustStock(ctx context.Context, id string, delta int) error
}

type OrderStore interface {
	Create(ctx context.Context, o catalog.Order) (string, error)
	ListByUser(ctx context.Context, userID string) ([]catalog.Order, error)
}

// CouponChecker re-validates applied coupons and records their use.
type CouponChecker interface {
	Revalidate(ctx context.Context, applied coupon.Applied, lines []coupon.Line) (coupon.Applied, error)
	RecordUsage(ctx context.Context, couponID string) bool
}

type Mailer interface {
	OrderPlaced(ctx context.Context, order catalog.Order, recipient string) error
}

type Emitter interface {
	Emit(ctx context.Context, topic, aggregateID string, payload any) (events.Event, error)
}

type UserDirectory interface {
	Get(ctx context.Context, id string) (catalog.User, error)
}

type CartClearer interface {
	Clear(ctx context.Context, userID string) error
}

// Locker serialises checkouts touching the same products.
type Locker interface {
	WithLocks(ctx context.Context, keys []string, ttl time.Duration, fn func(context.Context) error) error
}

// CacheInvalidator drops cached product snapshots after stock changes.
type CacheInvalidator interface {
	Invalidate(ctx context.Context, ids ...string) error
}

// Request is everything Processing needs. It is passed by value and never
// modified, so a failed checkout leaves the caller's cart untouched.
type Request struct {
	UserID         string
	Email          string
	Lines          []cart.Line
	Coupon         *coupon.Applied
	Address        catalog.Address
	ShippingMethod string
	Payment        payment.Info
}

// Result describes a placed order.
type Result struct {
	OrderID          string                `json:"orderId"`
	PaymentID        string                `json:"paymentId"`
	Order            catalog.Order         `json:"order"`
	Breakdown        pricing.Breakdown     `json:"breakdown"`
	Adjustments      []inventory.Shortfall `json:"adjustments"`
	AlreadyPurchased []string              `json:"alreadyPurchased"`
	Warnings         []Warning             `json:"warnings"`
	Message          string                `json:"message"`
}

// Orchestrator runs the Processing steps.
type Orchestrator struct {
	Products       ProductStore
	Orders         OrderStore
	Coupons        CouponChecker
	Payments       payment.Authorizer
	Pricing        *pricing.Calculator
	Locker         Locker
	LockTTL        time.Duration
	Cache          CacheInvalidator
	Mailer         Mailer
	Users          UserDirectory
	Events         Emitter
	Cart           CartClearer
	DecrementStock bool
	Currency       string
	Logger         zerolog.Logger
	Now            func() time.Time
}

// run is the working state of one Processing pass.
type run struct {
	req      Request
	orderID  string
	lines    []cart.Line
	products map[string]catalog.Product
	priced   []coupon.Line
	coupon   *coupon.Applied
	price    pricing.Breakdown
	auth     payment.Authorization
	order    catalog.Order
	result   Result
}

// step is one Processing stage. Errors from a fatal step abort the run;
// errors from the rest become warnings.
type step struct {
	name  string
	fatal bool
	kind  Kind
	run   func(ctx context.Context, r *run) error
}

func (o *Orchestrator) now() time.Time {
	if o.Now != nil {
		return o.Now().UTC()
	}
	return time.Now().UTC()
}

// Checkout validates, prices and persists an order for req.
func (o *Orchestrator) Checkout(ctx context.Context, req Request) (Result, error) {
	r := &run{req: req, orderID: uuid.NewString()}
	logger := o.Logger.With().Str("user_id", req.UserID).Str("order_id", r.orderID).Logger()
	ctx = logger.WithContext(ctx)

	err := o.runSteps(ctx, r, o.prepareSteps())
	if err == nil {
		err = o.withProductLocks(ctx, r.lines, func(ctx context.Context) error {
			return o.runSteps(ctx, r, o.commitSteps())
		})
	}
	if err != nil {
		ce, ok := AsError(err)
		if !ok {
			ce = newError(KindPersistence, "lock", "checkout is busy, please retry", err)
		}
		obs.CheckoutTotal.WithLabelValues(string(ce.Kind)).Inc()
		logger.Warn().Err(ce).Str("kind", string(ce.Kind)).Str("step", ce.Step).Msg("checkout failed")
		return Result{}, ce
	}

	o.finish(ctx, r)
	r.result.OrderID = r.order.ID
	r.result.PaymentID = r.auth.PaymentID
	r.result.Order = r.order
	r.result.Breakdown = r.price
	r.result.Message = "Order placed successfully"
	for _, w := range r.result.Warnings {
		if w.Step == "email" {
			r.result.Message = "Order placed successfully, but the confirmation email could not be sent"
		}
	}
	obs.CheckoutTotal.WithLabelValues("completed").Inc()
	logger.Info().Str("payment_id", r.auth.PaymentID).Str("total", r.price.Total.StringFixed(2)).Msg("checkout completed")
	return r.result, nil
}

func (o *Orchestrator) prepareSteps() []step {
	return []step{
		{name: "validate", fatal: true, kind: KindValidation, run: o.validateRequest},
		{name: "dedupe", fatal: true, kind: KindPersistence, run: o.dedupe},
	}
}

func (o *Orchestrator) commitSteps() []step {
	return []step{
		{name: "inventory", fatal: true, kind: KindPersistence, run: o.checkInventory},
		{name: "pricing", fatal: true, kind: KindValidation, run: o.priceOrder},
		{name: "payment", fatal: true, kind: KindPayment, run: o.authorize},
		{name: "persist", fatal: true, kind: KindPersistence, run: o.persist},
		{name: "stock", kind: KindNonFatal, run: o.decrementStock},
	}
}

func (o *Orchestrator) finishSteps() []step {
	return []step{
		{name: "coupon_usage", kind: KindNonFatal, run: o.recordCouponUsage},
		{name: "email", kind: KindNonFatal, run: o.sendConfirmation},
		{name: "event", kind: KindNonFatal, run: o.emitCreated},
		{name: "clear_cart", kind: KindNonFatal, run: o.clearCart},
	}
}

// runSteps stops at the first fatal failure. Non-fatal failures become warnings.
func (o *Orchestrator) runSteps(ctx context.Context, r *run, steps []step) error {
	for _, s := range steps {
		ce := o.runStep(ctx, r, s)
		if ce == nil {
			continue
		}
		if s.fatal {
			return ce
		}
		o.warn(ctx, r, s, ce)
	}
	return nil
}

// finish runs the post-commit steps. Their failures never undo the order.
func (o *Orchestrator) finish(ctx context.Context, r *run) {
	for _, s := range o.finishSteps() {
		if ce := o.runStep(ctx, r, s); ce != nil {
			o.warn(ctx, r, s, ce)
		}
	}
}

func (o *Orchestrator) warn(ctx context.Context, r *run, s step, ce *Error) {
	ce.Kind = KindNonFatal
	zerolog.Ctx(ctx).Warn().Err(ce).Str("step", s.name).Msg("non-fatal checkout step failed")
	r.result.Warnings = append(r.result.Warnings, Warning{Step: s.name, Message: ce.Message})
}

// runStep traces and times one step and returns its failure as an *Error.
func (o *Orchestrator) runStep(ctx context.Context, r *run, s step) *Error {
	ctx, span := tracer.Start(ctx, "checkout."+s.name)
	defer span.End()
	span.SetAttributes(attribute.String("checkout.order_id", r.orderID), attribute.Bool("checkout.fatal", s.fatal))
	started := time.Now()
	err := s.run(ctx, r)
	obs.ObserveStep(s.name, started)
	if err == nil {
		zerolog.Ctx(ctx).Debug().Str("step", s.name).Msg("checkout step done")
		return nil
	}

	span.RecordError(err)
	ce, ok := AsError(err)
	if !ok {
		ce = newError(s.kind, s.name, stepFailureMessage(s.name), err)
	}
	if ce.Step == "" {
		ce.Step = s.name
	}
	if s.fatal {
		span.SetStatus(codes.Error, ce.Message)
	}
	return ce
}

func stepFailureMessage(step string) string {
	switch step {
	case "dedupe", "inventory":
		return "could not check your order history or stock, please retry"
	case "payment":
		return "payment could not be authorized, please retry"
	case "persist":
		return "could not save your order, please retry"
	case "stock":
		return "stock levels were not updated"
	case "coupon_usage":
		return "coupon usage was not recorded"
	case "email":
		return "confirmation email could not be sent"
	case "event":
		return "order event was not published"
	case "clear_cart":
		return "cart could not be cleared"
	default:
		return "checkout failed"
	}
}

func (o *Orchestrator) validateRequest(_ context.Context, r *run) error {
	if strings.TrimSpace(r.req.UserID) == "" {
		return newError(KindValidation, "validate", "a signed-in user is required", nil)
	}
	if len(r.req.Lines) == 0 {
		return newError(KindValidation, "validate", "your cart is empty", nil)
	}
	for _, l := range r.req.Lines {
		if l.Quantity <= 0 || strings.TrimSpace(l.ProductID) == "" {
			return newError(KindValidation, "validate", "cart contains an invalid line", nil)
		}
	}
	if err := ValidateShipping(r.req.Address, r.req.ShippingMethod); err != nil {
		return err
	}
	info := r.req.Payment
	info.Method = strings.ToLower(strings.TrimSpace(info.Method))
	if err := ValidatePayment(info); err != nil {
		return err
	}
	r.req.Payment = info
	r.req.Address = NormalizeAddress(r.req.Address)
	if r.req.ShippingMethod == "" {
		r.req.ShippingMethod = pricing.MethodStandard
	}
	r.req.ShippingMethod = strings.ToLower(strings.TrimSpace(r.req.ShippingMethod))
	r.lines = mergeLines(r.req.Lines)
	if r.req.Coupon != nil {
		c := *r.req.Coupon
		r.coupon = &c
	}
	return nil
}

// mergeLines sums repeated products into one line, keeping first-seen order.
func mergeLines(lines []cart.Line) []cart.Line {
	out := make([]cart.Line, 0, len(lines))
	index := make(map[string]int, len(lines))
	for _, l := range lines {
		id := strings.TrimSpace(l.ProductID)
		if i, ok := index[id]; ok {
			out[i].Quantity += l.Quantity
			continue
		}
		index[id] = len(out)
		out = append(out, cart.Line{ProductID: id, Quantity: l.Quantity})
	}
	return out
}

// dedupe drops products the shopper already has on a shipped or delivered order.
func (o *Orchestrator) dedupe(ctx context.Context, r *run) error {
	history, err := o.Orders.ListByUser(ctx, r.req.UserID)
	if err != nil {
		return err
	}
	owned := map[string]struct{}{}
	for _, ord := range history {
		if !ord.Fulfilled() {
			continue
		}
		for _, it := range ord.Items {
			owned[it.ProductID] = struct{}{}
		}
	}
	if len(owned) == 0 {
		return nil
	}
	kept := r.lines[:0:0]
	for _, l := range r.lines {
		if _, dup := owned[l.ProductID]; dup {
			r.result.AlreadyPurchased = append(r.result.AlreadyPurchased, l.ProductID)
			continue
		}
		kept = append(kept, l)
	}
	if len(kept) == 0 {
		return newError(KindDuplicate, "dedupe", "you have already purchased every item in your cart", nil)
	}
	r.lines = kept
	return nil
}

func (o *Orchestrator) checkInventory(ctx context.Context, r *run) error {
	ids := lineIDs(r.lines)
	stock, err := o.Products.LiveStock(ctx, ids)
	if err != nil {
		return err
	}
	guardLines := make([]inventory.Line, 0, len(r.lines))
	for _, l := range r.lines {
		guardLines = append(guardLines, inventory.Line{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	shortfalls := inventory.Check(guardLines, stock)
	if len(shortfalls) == 0 {
		return nil
	}
	adjusted, err := inventory.Apply(guardLines, shortfalls)
	r.result.Adjustments = shortfalls
	if errors.Is(err, inventory.ErrCartEmptied) {
		e := newError(KindInventory, "inventory", "none of the items in your cart are in stock", err)
		e.Details = shortfalls
		return e
	}
	if err != nil {
		return err
	}
	r.lines = r.lines[:0:0]
	for _, l := range adjusted {
		r.lines = append(r.lines, cart.Line{ProductID: l.ProductID, Quantity: l.Quantity})
	}
	zerolog.Ctx(ctx).Info().Int("adjusted", len(shortfalls)).Msg("cart adjusted to live stock")
	return nil
}

// priceOrder prices the surviving lines at current catalog prices and
// re-validates the coupon against them.
func (o *Orchestrator) priceOrder(ctx context.Context, r *run) error {
	products, err := o.Products.Snapshots(ctx, lineIDs(r.lines))
	if err != nil {
		return newError(KindPersistence, "pricing", "could not load product prices, please retry", err)
	}
	priced := make([]coupon.Line, 0, len(r.lines))
	for _, l := range r.lines {
		p, ok := products[l.ProductID]
		if !ok {
			return newError(KindValidation, "pricing", fmt.Sprintf("product %s is no longer available", l.ProductID), nil)
		}
		priced = append(priced, coupon.Line{ProductID: l.ProductID, Price: p.Price, Quantity: l.Quantity})
	}
	r.products = products
	r.priced = priced

	discount := decimal.Zero
	if r.coupon != nil {
		repriced, err := o.Coupons.Revalidate(ctx, *r.coupon, priced)
		if err != nil {
			var rule *coupon.RuleError
			if errors.As(err, &rule) {
				e := newError(KindValidation, "pricing", "your coupon no longer applies", err)
				e.Details = map[string]string{
					"reason":  string(rule.Reason),
					"message": rule.Message,
					"action":  "removeCoupon",
				}
				return e
			}
			return newError(KindPersistence, "pricing", "could not verify your coupon, please retry", err)
		}
		r.coupon = &repriced
		discount = repriced.DiscountAmount
	}
	r.price = o.Pricing.Price(coupon.Subtotal(priced), r.req.Address.Country, r.req.ShippingMethod, discount)
	return nil
}

func (o *Orchestrator) authorize(ctx context.Context, r *run) error {
	if o.Payments == nil {
		return newError(KindPayment, "payment", "payments are unavailable", errors.New("checkout: no authorizer configured"))
	}
	auth, err := o.Payments.Authorize(ctx, payment.AuthRequest{
		OrderRef: r.orderID,
		UserID:   r.req.UserID,
		Amount:   r.price.Total,
		Currency: o.Currency,
		Info:     r.req.Payment,
	})
	if err != nil {
		msg := "payment could not be authorized, please retry"
		if errors.Is(err, payment.ErrDeclined) {
			msg = "your payment was declined"
		}
		return newError(KindPayment, "payment", msg, err)
	}
	r.auth = auth
	return nil
}

func (o *Orchestrator) persist(ctx context.Context, r *run) error {
	now := o.now()
	items := make([]catalog.OrderItem, 0, len(r.lines))
	for _, l := range r.lines {
		p := r.products[l.ProductID]
		items = append(items, catalog.OrderItem{
			ProductID: l.ProductID,
			Name:      p.Name,
			Price:     p.Price,
			Quantity:  l.Quantity,
			Image:     p.Image,
		})
	}
	order := catalog.Order{
		ID:     r.orderID,
		UserID: r.req.UserID,
		Items:  items,
		Shipping: catalog.Shipping{
			Address:           r.req.Address,
			Method:            r.req.ShippingMethod,
			Cost:              r.price.ShippingCost,
			EstimatedDelivery: o.Pricing.EstimatedDelivery(now, r.req.Address.Country, r.req.ShippingMethod),
		},
		Payment:     payment.Mask(r.req.Payment),
		PaymentID:   r.auth.PaymentID,
		Subtotal:    r.price.Subtotal,
		Tax:         r.price.Tax,
		ImportDuty:  r.price.ImportDuty,
		Discount:    r.price.DiscountAmount,
		TotalAmount: r.price.Total,
		Currency:    o.Currency,
		Status:      catalog.StatusPlaced,
		StatusHistory: []catalog.StatusEntry{
			{Status: catalog.StatusPlaced, Timestamp: now, Note: "Order placed"},
		},
		Tracking:  catalog.Tracking{},
		CreatedAt: now,
	}
	if r.coupon != nil {
		order.Coupon = &catalog.AppliedCouponRef{Code: r.coupon.Code, CouponID: r.coupon.CouponID}
	}
	id, err := o.Orders.Create(ctx, order)
	if err != nil {
		return err
	}
	order.ID = id
	r.order = order
	return nil
}

func (o *Orchestrator) decrementStock(ctx context.Context, r *run) error {
	if !o.DecrementStock {
		return nil
	}
	var joined error
	for _, l := range r.lines {
		if err := o.Products.AdjustStock(ctx, l.ProductID, -l.Quantity); err != nil {
			joined = errors.Join(joined, fmt.Errorf("product %s: %w", l.ProductID, err))
		}
	}
	if o.Cache != nil {
		if err := o.Cache.Invalidate(ctx, lineIDs(r.lines)...); err != nil {
			zerolog.Ctx(ctx).Warn().Err(err).Msg("product cache not invalidated")
		}
	}
	return joined
}

func (o *Orchestrator) recordCouponUsage(ctx context.Context, r *run) error {
	if r.coupon == nil || o.Coupons == nil {
		return nil
	}
	if !o.Coupons.RecordUsage(ctx, r.coupon.CouponID) {
		return fmt.Errorf("coupon %s usage not recorded", r.coupon.CouponID)
	}
	return nil
}

func (o *Orchestrator) sendConfirmation(ctx context.Context, r *run) error {
	if o.Mailer == nil {
		return nil
	}
	recipient := strings.TrimSpace(r.req.Email)
	if recipient == "" && o.Users != nil {
		user, err := o.Users.Get(ctx, r.req.UserID)
		if err != nil {
			return fmt.Errorf("look up recipient: %w", err)
		}
		recipient = user.Email
	}
	return o.Mailer.OrderPlaced(ctx, r.order, recipient)
}

func (o *Orchestrator) emitCreated(ctx context.Context, r *run) error {
	if o.Events == nil {
		return nil
	}
	items := make([]map[string]any, 0, len(r.order.Items))
	for _, it := range r.order.Items {
		items = append(items, map[string]any{"productId": it.ProductID, "quantity": it.Quantity, "price": it.Price.StringFixed(2)})
	}
	_, err := o.Events.Emit(ctx, events.TopicOrderCreated, r.order.ID, map[string]any{
		"orderId":     r.order.ID,
		"userId":      r.order.UserID,
		"paymentId":   r.order.PaymentID,
		"totalAmount": r.order.TotalAmount.StringFixed(2),
		"currency":    r.order.Currency,
		"items":       items,
	})
	return err
}

func (o *Orchestrator) clearCart(ctx context.Context, r *run) error {
	if o.Cart == nil {
		return nil
	}
	return o.Cart.Clear(ctx, r.req.UserID)
}

func (o *Orchestrator) withProductLocks(ctx context.Context, lines []cart.Line, fn func(context.Context) error) error {
	if o.Locker == nil {
		return fn(ctx)
	}
	return o.Locker.WithLocks(ctx, lineIDs(lines), o.LockTTL, fn)
}

func lineIDs(lines []cart.Line) []string {
	ids := make([]string, 0, len(lines))
	for _, l := range lines {
		ids = append(ids, l.ProductID)
	}
	return ids
}
