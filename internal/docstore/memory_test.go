package docstore_test

import (
	"context"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/toko-checkout/internal/docstore"
)

type widget struct {
	ID    string  `json:"id" bson:"_id,omitempty"`
	Name  string  `json:"name" bson:"name"`
	Price float64 `json:"price" bson:"price"`
	Stock int     `json:"stock" bson:"stock"`
	Owner string  `json:"owner,omitempty" bson:"owner,omitempty"`
}

func TestMemoryAddGetUpdate(t *testing.T) {
	ctx := context.Background()
	coll := docstore.NewMemory().Collection("widgets")

	id, err := coll.Add(ctx, widget{Name: "lamp", Price: 10.5, Stock: 3})
	require.NoError(t, err)
	require.NotEmpty(t, id)

	var got widget
	require.NoError(t, coll.Get(ctx, id, &got))
	require.Equal(t, id, got.ID)
	require.Equal(t, "lamp", got.Name)

	require.NoError(t, coll.Update(ctx, id, map[string]any{"name": "desk lamp", "id": "ignored"}))
	require.NoError(t, coll.Get(ctx, id, &got))
	require.Equal(t, "desk lamp", got.Name)
	require.Equal(t, id, got.ID)

	require.ErrorIs(t, coll.Get(ctx, "missing", &got), docstore.ErrNotFound)
	require.ErrorIs(t, coll.Update(ctx, "missing", map[string]any{"name": "x"}), docstore.ErrNotFound)
}

func TestMemoryAddKeepsExplicitIDAndRejectsDuplicate(t *testing.T) {
	ctx := context.Background()
	coll := docstore.NewMemory().Collection("widgets")

	id, err := coll.Add(ctx, widget{ID: "w-1", Name: "a"})
	require.NoError(t, err)
	require.Equal(t, "w-1", id)

	_, err = coll.Add(ctx, widget{ID: "w-1", Name: "b"})
	require.Error(t, err)
}

func TestMemoryFindFiltersInInsertionOrder(t *testing.T) {
	ctx := context.Background()
	coll := docstore.NewMemory().Collection("widgets")
	for _, w := range []widget{
		{ID: "1", Name: "a", Owner: "u1", Stock: 1},
		{ID: "2", Name: "b", Owner: "u2", Stock: 1},
		{ID: "3", Name: "c", Owner: "u1", Stock: 2},
	} {
		_, err := coll.Add(ctx, w)
		require.NoError(t, err)
	}

	var mine []widget
	require.NoError(t, coll.Find(ctx, []docstore.Filter{docstore.Eq("owner", "u1")}, &mine))
	require.Len(t, mine, 2)
	require.Equal(t, "1", mine[0].ID)
	require.Equal(t, "3", mine[1].ID)

	var numeric []widget
	require.NoError(t, coll.Find(ctx, []docstore.Filter{docstore.Eq("owner", "u1"), docstore.Eq("stock", 2)}, &numeric))
	require.Len(t, numeric, 1)

	var none []widget
	require.NoError(t, coll.Find(ctx, []docstore.Filter{docstore.Eq("owner", "nobody")}, &none))
	require.Empty(t, none)
}

func TestMemoryIncrementIsAtomic(t *testing.T) {
	ctx := context.Background()
	coll := docstore.NewMemory().Collection("coupons")
	id, err := coll.Add(ctx, map[string]any{"code": "SAVE"})
	require.NoError(t, err)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_ = coll.Increment(ctx, id, "usedCount", 1)
		}()
	}
	wg.Wait()

	var doc struct {
		UsedCount int `json:"usedCount"`
	}
	require.NoError(t, coll.Get(ctx, id, &doc))
	require.Equal(t, 50, doc.UsedCount)
	require.ErrorIs(t, coll.Increment(ctx, "nope", "usedCount", 1), docstore.ErrNotFound)
	require.Error(t, coll.Increment(ctx, id, "code", 1))
}

func TestOpenMemoryDriver(t *testing.T) {
	store, err := docstore.Open(context.Background(), docstore.Config{Driver: "memory"})
	require.NoError(t, err)
	require.NoError(t, store.Ping(context.Background()))

	_, err = docstore.Open(context.Background(), docstore.Config{Driver: "sqlite"})
	require.Error(t, err)
}
