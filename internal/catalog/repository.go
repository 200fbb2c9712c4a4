package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/noah-isme/toko-checkout/internal/docstore"
)

// ErrNotFound is returned when a record is missing.
var ErrNotFound = docstore.ErrNotFound

// Products reads product snapshots and adjusts stock.
type Products struct {
	coll docstore.Collection
}

func NewProducts(store docstore.Store) *Products {
	return &Products{coll: store.Collection(ProductsCollection)}
}

func (p *Products) Get(ctx context.Context, id string) (Product, error) {
	var doc productDoc
	if err := p.coll.Get(ctx, id, &doc); err != nil {
		return Product{}, fmt.Errorf("product %s: %w", id, err)
	}
	if doc.ID == "" {
		doc.ID = id
	}
	return doc.record()
}

// List returns every product. Malformed documents are skipped.
func (p *Products) List(ctx context.Context) ([]Product, error) {
	var docs []productDoc
	if err := p.coll.Find(ctx, nil, &docs); err != nil {
		return nil, fmt.Errorf("list products: %w", err)
	}
	out := make([]Product, 0, len(docs))
	for _, d := range docs {
		rec, err := d.record()
		if err != nil {
			continue
		}
		out = append(out, rec)
	}
	return out, nil
}

// Snapshots loads the listed products keyed by id. Unknown ids are omitted.
func (p *Products) Snapshots(ctx context.Context, ids []string) (map[string]Product, error) {
	out := make(map[string]Product, len(ids))
	for _, id := range ids {
		if _, seen := out[id]; seen {
			continue
		}
		rec, err := p.Get(ctx, id)
		if errors.Is(err, ErrNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[id] = rec
	}
	return out, nil
}

// LiveStock reads current stock straight from the store. Unknown products
// report zero.
func (p *Products) LiveStock(ctx context.Context, ids []string) (map[string]int, error) {
	snaps, err := p.Snapshots(ctx, ids)
	if err != nil {
		return nil, err
	}
	stock := make(map[string]int, len(ids))
	for _, id := range ids {
		stock[id] = snaps[id].Stock
	}
	return stock, nil
}

// AdjustStock adds delta (negative to decrement) to the stored stock.
func (p *Products) AdjustStock(ctx context.Context, id string, delta int) error {
	if err := p.coll.Increment(ctx, id, "stock", int64(delta)); err != nil {
		return fmt.Errorf("adjust stock %s: %w", id, err)
	}
	return nil
}

// Coupons looks up coupon definitions and records usage. Writers must store
// the code field as NormalizeCode returns it; lookups compare it exactly.
type Coupons struct {
	coll docstore.Collection
}

func NewCoupons(store docstore.Store) *Coupons {
	return &Coupons{coll: store.Collection(CouponsCollection)}
}

// FindByCode normalizes code and matches it against the stored code field.
func (c *Coupons) FindByCode(ctx context.Context, code string) (Coupon, error) {
	norm := NormalizeCode(code)
	if norm == "" {
		return Coupon{}, fmt.Errorf("coupon %q: %w", code, ErrNotFound)
	}
	var docs []couponDoc
	if err := c.coll.Find(ctx, []docstore.Filter{docstore.Eq("code", norm)}, &docs); err != nil {
		return Coupon{}, fmt.Errorf("find coupon: %w", err)
	}
	if len(docs) == 0 {
		return Coupon{}, fmt.Errorf("coupon %q: %w", norm, ErrNotFound)
	}
	return docs[0].record()
}

func (c *Coupons) Get(ctx context.Context, id string) (Coupon, error) {
	var doc couponDoc
	if err := c.coll.Get(ctx, id, &doc); err != nil {
		return Coupon{}, fmt.Errorf("coupon %s: %w", id, err)
	}
	if doc.ID == "" {
		doc.ID = id
	}
	return doc.record()
}

// IncrementUsage bumps usedCount by one at the storage layer.
func (c *Coupons) IncrementUsage(ctx context.Context, id string) error {
	if err := c.coll.Increment(ctx, id, "usedCount", 1); err != nil {
		return fmt.Errorf("increment coupon %s usage: %w", id, err)
	}
	return nil
}

// Orders persists and reads placed orders.
type Orders struct {
	coll docstore.Collection
}

func NewOrders(store docstore.Store) *Orders {
	return &Orders{coll: store.Collection(OrdersCollection)}
}

// Create stores o and returns the assigned id.
func (r *Orders) Create(ctx context.Context, o Order) (string, error) {
	id, err := r.coll.Add(ctx, newOrderDoc(o))
	if err != nil {
		return "", fmt.Errorf("create order: %w", err)
	}
	return id, nil
}

func (r *Orders) Get(ctx context.Context, id string) (Order, error) {
	var doc orderDoc
	if err := r.coll.Get(ctx, id, &doc); err != nil {
		return Order{}, fmt.Errorf("order %s: %w", id, err)
	}
	if doc.ID == "" {
		doc.ID = id
	}
	return doc.record()
}

// ListByUser returns the user's orders, newest first.
func (r *Orders) ListByUser(ctx context.Context, userID string) ([]Order, error) {
	var docs []orderDoc
	if err := r.coll.Find(ctx, []docstore.Filter{docstore.Eq("userId", userID)}, &docs); err != nil {
		return nil, fmt.Errorf("list orders: %w", err)
	}
	out := make([]Order, 0, len(docs))
	for _, d := range docs {
		rec, err := d.record()
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out, nil
}

// Users reads shopper profiles.
type Users struct {
	coll docstore.Collection
}

func NewUsers(store docstore.Store) *Users {
	return &Users{coll: store.Collection(UsersCollection)}
}

func (u *Users) Get(ctx context.Context, id string) (User, error) {
	var doc userDoc
	if err := u.coll.Get(ctx, id, &doc); err != nil {
		return User{}, fmt.Errorf("user %s: %w", id, err)
	}
	if doc.ID == "" {
		doc.ID = id
	}
	return doc.record(), nil
}
