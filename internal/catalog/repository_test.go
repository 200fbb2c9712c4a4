package catalog_test

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/docstore"
	"github.com/noah-isme/toko-checkout/internal/payment"
)

func seed(t *testing.T, store docstore.Store, collection string, docs ...map[string]any) {
	t.Helper()
	for _, d := range docs {
		_, err := store.Collection(collection).Add(context.Background(), d)
		require.NoError(t, err)
	}
}

func TestProductsDefaultsAtReadEdge(t *testing.T) {
	store := docstore.NewMemory()
	seed(t, store, catalog.ProductsCollection,
		map[string]any{"id": "p1", "name": " Mug ", "price": 199.999, "stock": -4},
		map[string]any{"id": "p2", "name": "Bad", "price": -1, "stock": 1},
	)
	products := catalog.NewProducts(store)

	p, err := products.Get(context.Background(), "p1")
	require.NoError(t, err)
	require.Equal(t, "Mug", p.Name)
	require.Equal(t, 0, p.Stock)
	require.True(t, p.Price.Equal(decimal.RequireFromString("200")))

	_, err = products.Get(context.Background(), "p2")
	require.ErrorIs(t, err, catalog.ErrMalformed)

	_, err = products.Get(context.Background(), "nope")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	list, err := products.List(context.Background())
	require.NoError(t, err)
	require.Len(t, list, 1)
}

func TestProductsLiveStockAndAdjust(t *testing.T) {
	store := docstore.NewMemory()
	seed(t, store, catalog.ProductsCollection, map[string]any{"id": "p1", "name": "Mug", "price": 10, "stock": 5})
	products := catalog.NewProducts(store)
	ctx := context.Background()

	require.NoError(t, products.AdjustStock(ctx, "p1", -2))
	stock, err := products.LiveStock(ctx, []string{"p1", "ghost"})
	require.NoError(t, err)
	require.Equal(t, map[string]int{"p1": 3, "ghost": 0}, stock)
}

func TestCouponsFindByCodeNormalizes(t *testing.T) {
	store := docstore.NewMemory()
	seed(t, store, catalog.CouponsCollection, map[string]any{
		"id": "c1", "code": "SAVE10", "discountType": "Percentage", "discountValue": 10,
		"isActive": true, "applicableProducts": []string{"p1", " "},
		"startDate": time.Now().Add(-time.Hour), "endDate": time.Now().Add(time.Hour),
	})
	seed(t, store, catalog.CouponsCollection, map[string]any{
		"id": "c2", "code": "WEIRD", "discountType": "bogo", "discountValue": 1,
	})
	coupons := catalog.NewCoupons(store)
	ctx := context.Background()

	c, err := coupons.FindByCode(ctx, "  save10 ")
	require.NoError(t, err)
	require.Equal(t, "c1", c.ID)
	require.Equal(t, catalog.DiscountPercentage, c.DiscountType)
	require.True(t, c.Applies("p1"))
	require.Len(t, c.ApplicableProducts, 1)

	_, err = coupons.FindByCode(ctx, "weird")
	require.ErrorIs(t, err, catalog.ErrMalformed)

	_, err = coupons.FindByCode(ctx, "missing")
	require.ErrorIs(t, err, catalog.ErrNotFound)

	require.NoError(t, coupons.IncrementUsage(ctx, "c1"))
	require.NoError(t, coupons.IncrementUsage(ctx, "c1"))
	c, err = coupons.Get(ctx, "c1")
	require.NoError(t, err)
	require.Equal(t, 2, c.UsedCount)
}

func TestOrdersRoundTripAndListNewestFirst(t *testing.T) {
	store := docstore.NewMemory()
	orders := catalog.NewOrders(store)
	ctx := context.Background()
	base := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)

	first := catalog.Order{
		UserID:        "u1",
		Items:         []catalog.OrderItem{{ProductID: "p1", Name: "Mug", Price: decimal.NewFromInt(250), Quantity: 2}},
		Payment:       payment.Summary{Method: payment.MethodCard, Details: payment.Details{CardType: "Visa", LastFour: "4242"}},
		Subtotal:      decimal.NewFromInt(500),
		Tax:           decimal.NewFromInt(90),
		TotalAmount:   decimal.NewFromInt(690),
		Status:        catalog.StatusPlaced,
		StatusHistory: []catalog.StatusEntry{{Status: catalog.StatusPlaced, Timestamp: base}},
		CreatedAt:     base,
	}
	id1, err := orders.Create(ctx, first)
	require.NoError(t, err)

	second := first
	second.Status = catalog.StatusDelivered
	second.CreatedAt = base.Add(time.Hour)
	_, err = orders.Create(ctx, second)
	require.NoError(t, err)

	got, err := orders.Get(ctx, id1)
	require.NoError(t, err)
	require.Equal(t, id1, got.ID)
	require.True(t, got.TotalAmount.Equal(decimal.NewFromInt(690)))
	require.Equal(t, "4242", got.Payment.Details.LastFour)
	require.False(t, got.Fulfilled())

	list, err := orders.ListByUser(ctx, "u1")
	require.NoError(t, err)
	require.Len(t, list, 2)
	require.True(t, list[0].Fulfilled())

	none, err := orders.ListByUser(ctx, "u2")
	require.NoError(t, err)
	require.Empty(t, none)
}
