package docstore

import (
	"context"
	"database/sql"
	"embed"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/golang-migrate/migrate/v4"
	migratepgx "github.com/golang-migrate/migrate/v4/database/pgx/v5"
	"github.com/golang-migrate/migrate/v4/source/iofs"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"

	"github.com/noah-isme/toko-checkout/internal/obs"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Postgres stores every collection in a single JSONB table keyed by
// (collection, id).
type Postgres struct {
	db *sql.DB
}

// OpenPostgres connects through the pgx stdlib driver with query tracing
// enabled and applies pending migrations.
func OpenPostgres(ctx context.Context, url string) (*Postgres, error) {
	if url == "" {
		return nil, errors.New("docstore: postgres url is empty")
	}
	connCfg, err := pgx.ParseConfig(url)
	if err != nil {
		return nil, fmt.Errorf("docstore: parse postgres url: %w", err)
	}
	connCfg.Tracer = obs.PGXTracer{}
	db := stdlib.OpenDB(*connCfg)
	db.SetMaxOpenConns(20)
	db.SetMaxIdleConns(5)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("docstore: ping postgres: %w", err)
	}
	if err := Migrate(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return NewPostgres(db), nil
}

// NewPostgres wraps an open handle. The documents table must already exist.
func NewPostgres(db *sql.DB) *Postgres {
	return &Postgres{db: db}
}

// Migrate applies the embedded schema migrations.
func Migrate(db *sql.DB) error {
	src, err := iofs.New(migrationFS, "migrations")
	if err != nil {
		return fmt.Errorf("docstore: migration source: %w", err)
	}
	driver, err := migratepgx.WithInstance(db, &migratepgx.Config{MigrationsTable: "docstore_schema_migrations"})
	if err != nil {
		return fmt.Errorf("docstore: migration driver: %w", err)
	}
	m, err := migrate.NewWithInstance("iofs", src, "pgx5", driver)
	if err != nil {
		return fmt.Errorf("docstore: migrate instance: %w", err)
	}
	if err := m.Up(); err != nil && !errors.Is(err, migrate.ErrNoChange) {
		return fmt.Errorf("docstore: run migrations: %w", err)
	}
	return nil
}

func (p *Postgres) Collection(name string) Collection {
	return &pgCollection{db: p.db, name: name}
}

func (p *Postgres) Ping(ctx context.Context) error {
	return p.db.PingContext(ctx)
}

func (p *Postgres) Close(context.Context) error {
	return p.db.Close()
}

type pgCollection struct {
	db   *sql.DB
	name string
}

const (
	pgGet       = `SELECT body FROM documents WHERE collection = $1 AND id = $2`
	pgFind      = `SELECT body FROM documents WHERE collection = $1 AND body @> $2::jsonb ORDER BY created_at, id`
	pgInsert    = `INSERT INTO documents (collection, id, body) VALUES ($1, $2, $3::jsonb)`
	pgMerge     = `UPDATE documents SET body = body || $3::jsonb, updated_at = now() WHERE collection = $1 AND id = $2`
	pgIncrement = `UPDATE documents
SET body = jsonb_set(body, ARRAY[$3::text], to_jsonb(COALESCE((body->>$3::text)::numeric, 0) + $4::bigint)),
    updated_at = now()
WHERE collection = $1 AND id = $2`
)

func (c *pgCollection) Get(ctx context.Context, id string, dst any) error {
	var body []byte
	err := c.db.QueryRowContext(ctx, pgGet, c.name, id).Scan(&body)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("docstore: get %s/%s: %w", c.name, id, err)
	}
	if err := json.Unmarshal(body, dst); err != nil {
		return fmt.Errorf("docstore: decode %s/%s: %w", c.name, id, err)
	}
	return nil
}

func (c *pgCollection) Find(ctx context.Context, filters []Filter, dst any) error {
	match := make(map[string]any, len(filters))
	for _, f := range filters {
		match[f.Field] = f.Value
	}
	cond, err := json.Marshal(match)
	if err != nil {
		return fmt.Errorf("docstore: encode filter: %w", err)
	}

	rows, err := c.db.QueryContext(ctx, pgFind, c.name, string(cond))
	if err != nil {
		return fmt.Errorf("docstore: find %s: %w", c.name, err)
	}
	defer rows.Close()

	docs := make([]json.RawMessage, 0)
	for rows.Next() {
		var body []byte
		if err := rows.Scan(&body); err != nil {
			return fmt.Errorf("docstore: scan %s: %w", c.name, err)
		}
		docs = append(docs, json.RawMessage(body))
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("docstore: iterate %s: %w", c.name, err)
	}
	return decodeInto(docs, dst)
}

func (c *pgCollection) Add(ctx context.Context, doc any) (string, error) {
	m, err := toMap(doc)
	if err != nil {
		return "", err
	}
	id := idOf(m)
	if id == "" {
		id = newID()
		m["id"] = id
	}
	body, err := json.Marshal(m)
	if err != nil {
		return "", fmt.Errorf("docstore: encode document: %w", err)
	}
	if _, err := c.db.ExecContext(ctx, pgInsert, c.name, id, string(body)); err != nil {
		return "", fmt.Errorf("docstore: insert %s: %w", c.name, err)
	}
	return id, nil
}

func (c *pgCollection) Update(ctx context.Context, id string, fields map[string]any) error {
	patch := make(map[string]any, len(fields))
	for k, v := range fields {
		if k != "id" {
			patch[k] = v
		}
	}
	body, err := json.Marshal(patch)
	if err != nil {
		return fmt.Errorf("docstore: encode fields: %w", err)
	}
	return c.exec(ctx, id, pgMerge, c.name, id, string(body))
}

func (c *pgCollection) Increment(ctx context.Context, id, field string, delta int64) error {
	return c.exec(ctx, id, pgIncrement, c.name, id, field, delta)
}

func (c *pgCollection) exec(ctx context.Context, id, query string, args ...any) error {
	res, err := c.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", c.name, id, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
