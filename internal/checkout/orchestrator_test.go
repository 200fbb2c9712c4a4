package checkout

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/cart"
	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/common"
	"github.com/noah-isme/toko-checkout/internal/coupon"
	"github.com/noah-isme/toko-checkout/internal/docstore"
	"github.com/noah-isme/toko-checkout/internal/events"
	"github.com/noah-isme/toko-checkout/internal/lock"
	"github.com/noah-isme/toko-checkout/internal/notify"
	"github.com/noah-isme/toko-checkout/internal/payment"
	"github.com/noah-isme/toko-checkout/internal/pricing"
)

var fixedNow = time.Date(2026, 3, 10, 9, 0, 0, 0, time.UTC)

type stubCart struct {
	cleared []string
	err     error
}

func (s *stubCart) Clear(_ context.Context, userID string) error {
	s.cleared = append(s.cleared, userID)
	return s.err
}

type failingPublisher struct{}

func (failingPublisher) Publish(context.Context, events.Event) error { return errors.New("broker down") }

type failingOrders struct{ *catalog.Orders }

func (failingOrders) Create(context.Context, catalog.Order) (string, error) {
	return "", errors.New("write timeout")
}

type fixture struct {
	store    *docstore.Memory
	products *catalog.Products
	orders   *catalog.Orders
	coupons  *catalog.Coupons
	mail     *common.InMemoryEmail
	cart     *stubCart
	bus      *events.Bus
	orch     *Orchestrator
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	ctx := context.Background()
	store := docstore.NewMemory()
	seed := func(coll string, docs ...map[string]any) {
		for _, d := range docs {
			_, err := store.Collection(coll).Add(ctx, d)
			require.NoError(t, err)
		}
	}
	seed(catalog.ProductsCollection,
		map[string]any{"id": "p-lamp", "name": "Desk Lamp", "price": 600, "stock": 10, "image": "lamp.jpg"},
		map[string]any{"id": "p-mug", "name": "Mug", "price": 150, "stock": 3},
		map[string]any{"id": "p-book", "name": "Notebook", "price": 400, "stock": 0},
	)
	seed(catalog.CouponsCollection,
		map[string]any{"id": "c-save10", "code": "SAVE10", "discountType": "percentage", "discountValue": 10, "isActive": true},
		map[string]any{"id": "c-lamp50", "code": "LAMP50", "discountType": "fixed", "discountValue": 50, "isActive": true, "isProductSpecific": true, "applicableProducts": []string{"p-lamp"}},
		map[string]any{"id": "c-book", "code": "BOOK20", "discountType": "percentage", "discountValue": 20, "isActive": true, "applicableProducts": []string{"p-book"}},
	)
	seed(catalog.UsersCollection, map[string]any{"id": "u1", "email": "asha@example.com", "name": "Asha"})

	f := &fixture{
		store:    store,
		products: catalog.NewProducts(store),
		orders:   catalog.NewOrders(store),
		coupons:  catalog.NewCoupons(store),
		mail:     &common.InMemoryEmail{},
		cart:     &stubCart{},
	}
	f.bus = &events.Bus{Store: store, Now: func() time.Time { return fixedNow }}
	f.orch = &Orchestrator{
		Products:       f.products,
		Orders:         f.orders,
		Coupons:        &coupon.Service{Store: f.coupons, Logger: zerolog.Nop(), Now: func() time.Time { return fixedNow }},
		Payments:       payment.Simulated{Timeout: time.Second},
		Pricing:        pricing.NewCalculator(pricing.DefaultConfig()),
		Mailer:         notify.Confirmation{Mail: f.mail},
		Users:          catalog.NewUsers(store),
		Events:         f.bus,
		Cart:           f.cart,
		DecrementStock: true,
		Currency:       "INR",
		Logger:         zerolog.Nop(),
		Now:            func() time.Time { return fixedNow },
	}
	return f
}

func validAddress() catalog.Address {
	return catalog.Address{
		Name:       "Asha Rao",
		Phone:      "9876543210",
		House:      "12B",
		Line1:      "MG Road",
		City:       "Bengaluru",
		State:      "Karnataka",
		Country:    "India",
		PostalCode: "560001",
	}
}

func cardInfo() payment.Info {
	return payment.Info{Method: payment.MethodCard, CardNumber: "4242 4242 4242 4242", CVV: "123", Expiry: "12/29"}
}

func request(lines ...cart.Line) Request {
	return Request{
		UserID:         "u1",
		Lines:          lines,
		Address:        validAddress(),
		ShippingMethod: pricing.MethodStandard,
		Payment:        cardInfo(),
	}
}

func dec(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

func requireKind(t *testing.T, err error, kind Kind) *Error {
	t.Helper()
	ce, ok := AsError(err)
	require.True(t, ok, "expected *checkout.Error, got %v", err)
	require.Equal(t, kind, ce.Kind)
	return ce
}

func TestCheckoutPlacesOrder(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.orch.Checkout(ctx, request(cart.Line{ProductID: "p-lamp", Quantity: 2}))
	require.NoError(t, err)
	require.True(t, strings.HasPrefix(res.PaymentID, "pay_"))
	require.Empty(t, res.Warnings)
	require.Equal(t, "Order placed successfully", res.Message)

	order, err := f.orders.Get(ctx, res.OrderID)
	require.NoError(t, err)
	require.Equal(t, "u1", order.UserID)
	require.Len(t, order.Items, 1)
	require.Equal(t, "Desk Lamp", order.Items[0].Name)
	require.True(t, order.Items[0].Price.Equal(dec(600)))
	require.True(t, order.Subtotal.Equal(dec(1200)))
	require.True(t, order.Tax.Equal(dec(216)))
	require.True(t, order.Shipping.Cost.IsZero(), "free shipping above the threshold")
	require.True(t, order.ImportDuty.IsZero())
	require.True(t, order.TotalAmount.Equal(dec(1416)))
	require.Equal(t, catalog.StatusPlaced, order.Status)
	require.Len(t, order.StatusHistory, 1)
	require.Equal(t, catalog.Tracking{}, order.Tracking)
	require.Equal(t, fixedNow.AddDate(0, 0, 5), order.Shipping.EstimatedDelivery.UTC())
	require.Equal(t, payment.Summary{Method: "card", Details: payment.Details{CardType: "Visa", LastFour: "4242"}}, order.Payment)
	require.Equal(t, res.PaymentID, order.PaymentID)

	stock, err := f.products.LiveStock(ctx, []string{"p-lamp"})
	require.NoError(t, err)
	require.Equal(t, 8, stock["p-lamp"])

	require.Len(t, f.mail.Sent(), 1)
	require.Equal(t, "asha@example.com", f.mail.Sent()[0].To)
	require.Equal(t, []string{"u1"}, f.cart.cleared)

	var stored []map[string]any
	require.NoError(t, f.store.Collection(events.Collection).Find(ctx, []docstore.Filter{docstore.Eq("topic", events.TopicOrderCreated)}, &stored))
	require.Len(t, stored, 1)
	require.Equal(t, res.OrderID, stored[0]["aggregateId"])
}

func TestCheckoutClampsLineToLiveStock(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	res, err := f.orch.Checkout(ctx, request(cart.Line{ProductID: "p-mug", Quantity: 5}))
	require.NoError(t, err)
	require.Equal(t, []inventoryShortfall{{"p-mug", 5, 3}}, shortfallsOf(res))
	require.Equal(t, 3, res.Order.Items[0].Quantity)
	require.True(t, res.Order.Subtotal.Equal(dec(450)))
	require.True(t, res.Order.Shipping.Cost.Equal(dec(100)))
}

func TestCheckoutMergesRepeatedProductLines(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := request(
		cart.Line{ProductID: "p-mug", Quantity: 2},
		cart.Line{ProductID: "p-mug", Quantity: 2},
	)

	res, err := f.orch.Checkout(ctx, req)
	require.NoError(t, err)
	require.Equal(t, []inventoryShortfall{{"p-mug", 4, 3}}, shortfallsOf(res))
	require.Len(t, res.Order.Items, 1)
	require.Equal(t, 3, res.Order.Items[0].Quantity)
	require.Len(t, req.Lines, 2, "request is not modified")

	stock, err := f.products.LiveStock(ctx, []string{"p-mug"})
	require.NoError(t, err)
	require.Zero(t, stock["p-mug"])
}

func TestCheckoutDropsOutOfStockLines(t *testing.T) {
	f := newFixture(t)

	res, err := f.orch.Checkout(context.Background(), request(
		cart.Line{ProductID: "p-book", Quantity: 1},
		cart.Line{ProductID: "p-lamp", Quantity: 1},
	))
	require.NoError(t, err)
	require.Len(t, res.Order.Items, 1)
	require.Equal(t, "p-lamp", res.Order.Items[0].ProductID)
}

func TestCheckoutAbortsWhenNothingIsInStock(t *testing.T) {
	f := newFixture(t)
	req := request(cart.Line{ProductID: "p-book", Quantity: 2})

	_, err := f.orch.Checkout(context.Background(), req)
	ce := requireKind(t, err, KindInventory)
	require.Equal(t, "inventory", ce.Step)
	require.Empty(t, f.cart.cleared, "cart is kept on failure")
	require.Equal(t, 2, req.Lines[0].Quantity, "request is not modified")

	orders, err := f.orders.ListByUser(context.Background(), "u1")
	require.NoError(t, err)
	require.Empty(t, orders)
}

func TestCheckoutSkipsAlreadyDeliveredProducts(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.orders.Create(ctx, catalog.Order{
		ID:        "old-order",
		UserID:    "u1",
		Items:     []catalog.OrderItem{{ProductID: "p-lamp", Name: "Desk Lamp", Price: dec(600), Quantity: 1}},
		Status:    catalog.StatusDelivered,
		CreatedAt: fixedNow.Add(-48 * time.Hour),
	})
	require.NoError(t, err)

	res, err := f.orch.Checkout(ctx, request(
		cart.Line{ProductID: "p-lamp", Quantity: 1},
		cart.Line{ProductID: "p-mug", Quantity: 1},
	))
	require.NoError(t, err)
	require.Equal(t, []string{"p-lamp"}, res.AlreadyPurchased)
	require.Len(t, res.Order.Items, 1)
	require.Equal(t, "p-mug", res.Order.Items[0].ProductID)

	_, err = f.orch.Checkout(ctx, request(cart.Line{ProductID: "p-lamp", Quantity: 1}))
	ce := requireKind(t, err, KindDuplicate)
	require.Contains(t, ce.Message, "already purchased")
}

func TestCheckoutIgnoresUnfulfilledHistory(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	_, err := f.orders.Create(ctx, catalog.Order{
		ID:     "pending",
		UserID: "u1",
		Items:  []catalog.OrderItem{{ProductID: "p-lamp", Quantity: 1, Price: dec(600)}},
		Status: catalog.StatusPlaced,
	})
	require.NoError(t, err)

	_, err = f.orch.Checkout(ctx, request(cart.Line{ProductID: "p-lamp", Quantity: 1}))
	require.NoError(t, err)
}

func TestCheckoutRepricesAppliedCoupon(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	req := request(
		cart.Line{ProductID: "p-lamp", Quantity: 2},
		cart.Line{ProductID: "p-mug", Quantity: 1},
	)
	req.Coupon = &coupon.Applied{Code: "SAVE10", CouponID: "c-save10", DiscountAmount: dec(999)}

	res, err := f.orch.Checkout(ctx, req)
	require.NoError(t, err)
	require.True(t, res.Order.Discount.Equal(dec(135)), "10%% of 1350, got %s", res.Order.Discount)
	require.Equal(t, &catalog.AppliedCouponRef{Code: "SAVE10", CouponID: "c-save10"}, res.Order.Coupon)
	require.True(t, req.Coupon.DiscountAmount.Equal(dec(999)), "caller's coupon is untouched")

	c, err := f.coupons.Get(ctx, "c-save10")
	require.NoError(t, err)
	require.Equal(t, 1, c.UsedCount)
}

func TestCheckoutRejectsCouponThatNoLongerApplies(t *testing.T) {
	f := newFixture(t)
	req := request(
		cart.Line{ProductID: "p-book", Quantity: 1},
		cart.Line{ProductID: "p-lamp", Quantity: 1},
	)
	req.Coupon = &coupon.Applied{Code: "BOOK20", CouponID: "c-book", IsProductSpecific: true, AppliedToCartItems: []string{"p-book"}}

	_, err := f.orch.Checkout(context.Background(), req)
	ce := requireKind(t, err, KindValidation)
	require.Equal(t, "pricing", ce.Step)
	details, ok := ce.Details.(map[string]string)
	require.True(t, ok)
	require.Equal(t, string(coupon.ReasonNoEligibleItems), details["reason"])
	require.Equal(t, "removeCoupon", details["action"])
	require.NotEmpty(t, details["message"])
	require.Equal(t, 1, strings.Count(ce.Error(), details["message"]), "rule message appears once")

	c, err := f.coupons.Get(context.Background(), "c-book")
	require.NoError(t, err)
	require.Zero(t, c.UsedCount)
}

func TestCheckoutNonFatalFailuresStillPlaceOrder(t *testing.T) {
	f := newFixture(t)
	f.mail.Err = errors.New("smtp down")
	f.bus.Publisher = failingPublisher{}
	f.cart.err = errors.New("redis down")

	res, err := f.orch.Checkout(context.Background(), request(cart.Line{ProductID: "p-lamp", Quantity: 1}))
	require.NoError(t, err)
	require.NotEmpty(t, res.OrderID)

	steps := map[string]bool{}
	for _, w := range res.Warnings {
		steps[w.Step] = true
	}
	require.True(t, steps["email"])
	require.True(t, steps["event"])
	require.True(t, steps["clear_cart"])
	require.Contains(t, res.Message, "confirmation email could not be sent")

	_, err = f.orders.Get(context.Background(), res.OrderID)
	require.NoError(t, err)
}

func TestCheckoutValidatesShippingAndPayment(t *testing.T) {
	f := newFixture(t)

	req := request(cart.Line{ProductID: "p-lamp", Quantity: 1})
	req.Address.Phone = "12-34"
	req.Address.City = "  "
	_, err := f.orch.Checkout(context.Background(), req)
	ce := requireKind(t, err, KindValidation)
	fields := ce.Details.(map[string]string)
	require.Contains(t, fields, "phone")
	require.Contains(t, fields, "city")

	req = request(cart.Line{ProductID: "p-lamp", Quantity: 1})
	req.Payment = payment.Info{Method: payment.MethodUPI}
	_, err = f.orch.Checkout(context.Background(), req)
	requireKind(t, err, KindValidation)

	_, err = f.orch.Checkout(context.Background(), request())
	requireKind(t, err, KindValidation)
}

func TestCheckoutPaymentTimeoutIsFatal(t *testing.T) {
	f := newFixture(t)
	f.orch.Payments = payment.Simulated{Timeout: time.Millisecond, Delay: time.Second}

	_, err := f.orch.Checkout(context.Background(), request(cart.Line{ProductID: "p-lamp", Quantity: 1}))
	ce := requireKind(t, err, KindPayment)
	require.ErrorIs(t, ce, context.DeadlineExceeded)
	require.Empty(t, f.cart.cleared)

	stock, err := f.products.LiveStock(context.Background(), []string{"p-lamp"})
	require.NoError(t, err)
	require.Equal(t, 10, stock["p-lamp"])
}

func TestCheckoutPersistenceFailure(t *testing.T) {
	f := newFixture(t)
	f.orch.Orders = failingOrders{f.orders}

	_, err := f.orch.Checkout(context.Background(), request(cart.Line{ProductID: "p-lamp", Quantity: 1}))
	ce := requireKind(t, err, KindPersistence)
	require.Equal(t, "persist", ce.Step)
	require.Equal(t, 503, ce.HTTPStatus())
	require.Empty(t, f.mail.Sent())
}

func TestCheckoutHoldsProductLocks(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := newFixture(t)
	f.orch.Locker = lock.Locker{R: client, Prefix: "lock:product:"}
	f.orch.LockTTL = time.Second

	_, err := f.orch.Checkout(context.Background(), request(cart.Line{ProductID: "p-lamp", Quantity: 1}))
	require.NoError(t, err)
	require.False(t, mr.Exists("lock:product:p-lamp"), "lock released after commit")

	require.NoError(t, mr.Set("lock:product:p-mug", "someone-else"))
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	_, err = f.orch.Checkout(ctx, request(cart.Line{ProductID: "p-mug", Quantity: 1}))
	ce := requireKind(t, err, KindPersistence)
	require.Equal(t, "lock", ce.Step)
}

type inventoryShortfall struct {
	ProductID string
	Requested int
	Available int
}

func shortfallsOf(res Result) []inventoryShortfall {
	out := make([]inventoryShortfall, 0, len(res.Adjustments))
	for _, s := range res.Adjustments {
		out = append(out, inventoryShortfall{s.ProductID, s.Requested, s.Available})
	}
	return out
}
