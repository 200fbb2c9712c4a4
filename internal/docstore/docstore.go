// Package docstore is a small document database abstraction. Records are
// addressed by collection name and string id; the same repository code runs
// against MongoDB, a Postgres JSONB table or an in-process map.
package docstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
)

// ErrNotFound is returned when a document id does not exist in a collection.
var ErrNotFound = errors.New("docstore: document not found")

// Filter is an equality match on a top-level document field.
type Filter struct {
	Field string
	Value any
}

// Eq builds a Filter.
func Eq(field string, value any) Filter {
	return Filter{Field: field, Value: value}
}

// Collection is a named set of documents.
//
// Documents are plain structs tagged for both encodings, with the id carried
// as `json:"id" bson:"_id,omitempty"`. Get and Find decode into dst, which
// must be a pointer to a struct or a pointer to a slice respectively.
type Collection interface {
	Get(ctx context.Context, id string, dst any) error
	Find(ctx context.Context, filters []Filter, dst any) error
	// Add stores doc and returns its id, generating one when doc has none.
	Add(ctx context.Context, doc any) (string, error)
	// Update merges fields into the top level of an existing document.
	Update(ctx context.Context, id string, fields map[string]any) error
	// Increment atomically adds delta to a numeric field, treating a missing
	// field as zero.
	Increment(ctx context.Context, id, field string, delta int64) error
}

// Store hands out collections over one backend connection.
type Store interface {
	Collection(name string) Collection
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

// Config selects and configures a backend.
type Config struct {
	Driver        string
	MongoURI      string
	MongoDatabase string
	PostgresURL   string
}

// Open connects to the configured backend. Postgres migrations run on open.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "mongo", "mongodb":
		return OpenMongo(ctx, cfg.MongoURI, cfg.MongoDatabase)
	case "postgres", "postgresql":
		return OpenPostgres(ctx, cfg.PostgresURL)
	case "memory", "":
		return NewMemory(), nil
	default:
		return nil, fmt.Errorf("docstore: unknown driver %q", cfg.Driver)
	}
}

func newID() string {
	return uuid.NewString()
}
