package cart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrConflict is returned when a cart kept changing underneath an update.
var ErrConflict = errors.New("cart: concurrent update")

const maxUpdateRetries = 5

// Store keeps one State per user in Redis as JSON.
type Store struct {
	client *redis.Client
	ttl    time.Duration
}

func NewStore(client *redis.Client, ttl time.Duration) *Store {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Store{client: client, ttl: ttl}
}

func key(userID string) string { return "cart:" + userID }

// Load returns the user's cart, or an empty one.
func (s *Store) Load(ctx context.Context, userID string) (State, error) {
	return s.load(ctx, s.client, userID)
}

type getter interface {
	Get(ctx context.Context, key string) *redis.StringCmd
}

func (s *Store) load(ctx context.Context, cmd getter, userID string) (State, error) {
	raw, err := cmd.Get(ctx, key(userID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return State{Lines: []Line{}}, nil
	}
	if err != nil {
		return State{}, fmt.Errorf("load cart: %w", err)
	}
	var st State
	if err := json.Unmarshal(raw, &st); err != nil {
		return State{}, fmt.Errorf("decode cart: %w", err)
	}
	if st.Lines == nil {
		st.Lines = []Line{}
	}
	return st, nil
}

// Update runs fn on the stored state under an optimistic WATCH and saves the
// result, retrying when another writer got there first.
func (s *Store) Update(ctx context.Context, userID string, fn func(State) State) (State, error) {
	k := key(userID)
	var next State
	txf := func(tx *redis.Tx) error {
		current, err := s.load(ctx, tx, userID)
		if err != nil {
			return err
		}
		next = fn(current)
		data, err := json.Marshal(next)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, k, data, s.ttl)
			return nil
		})
		return err
	}
	for i := 0; i < maxUpdateRetries; i++ {
		err := s.client.Watch(ctx, txf, k)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, redis.TxFailedErr) {
			return State{}, fmt.Errorf("save cart: %w", err)
		}
	}
	return State{}, ErrConflict
}

// Delete removes the user's cart.
func (s *Store) Delete(ctx context.Context, userID string) error {
	return s.client.Del(ctx, key(userID)).Err()
}
