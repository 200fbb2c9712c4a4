package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"

	"github.com/noah-isme/toko-checkout/internal/auth"
	"github.com/noah-isme/toko-checkout/internal/catalog"
	"github.com/noah-isme/toko-checkout/internal/docstore"
	"github.com/noah-isme/toko-checkout/internal/obs"
)

func main() {
	_ = godotenv.Load()
	logger := obs.NewLogger("console", "info")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	store, err := docstore.Open(ctx, docstore.Config{
		Driver:        env("STORE_DRIVER", "mongo"),
		MongoURI:      os.Getenv("MONGO_URI"),
		MongoDatabase: env("MONGO_DATABASE", "toko"),
		PostgresURL:   os.Getenv("DATABASE_URL"),
	})
	if err != nil {
		logger.Fatal().Err(err).Msg("open document store")
	}
	defer store.Close(context.Background())

	now := time.Now().UTC()
	if err := seed(ctx, store, now, logger); err != nil {
		logger.Fatal().Err(err).Msg("seed")
	}

	if secret := os.Getenv("JWT_SECRET"); secret != "" {
		verifier, err := auth.NewVerifier(auth.Config{
			Secret:   secret,
			Issuer:   os.Getenv("JWT_ISSUER"),
			Audience: os.Getenv("JWT_AUDIENCE"),
		})
		if err != nil {
			logger.Fatal().Err(err).Msg("token verifier")
		}
		token, err := verifier.Sign(demoUsers[0]["id"].(string), 24*time.Hour)
		if err != nil {
			logger.Fatal().Err(err).Msg("sign demo token")
		}
		fmt.Printf("demo access token for %s:\n%s\n", demoUsers[0]["email"], token)
	}
	logger.Info().Msg("seeding completed")
}

var demoProducts = []map[string]any{
	{"id": "prod-desk-lamp", "name": "Brass Desk Lamp", "price": 1499.0, "stock": 25, "image": "/img/lamp.jpg"},
	{"id": "prod-mug", "name": "Stoneware Mug", "price": 349.0, "stock": 120, "image": "/img/mug.jpg"},
	{"id": "prod-notebook", "name": "Dot Grid Notebook", "price": 299.0, "stock": 80, "image": "/img/notebook.jpg"},
	{"id": "prod-headphones", "name": "Wireless Headphones", "price": 5999.0, "stock": 8, "image": "/img/headphones.jpg"},
	{"id": "prod-poster", "name": "Limited Print Poster", "price": 899.0, "stock": 2, "image": "/img/poster.jpg"},
	{"id": "prod-backpack", "name": "Canvas Backpack", "price": 2499.0, "stock": 0, "image": "/img/backpack.jpg"},
}

var demoUsers = []map[string]any{
	{"id": "user-demo", "email": "demo@toko.local", "name": "Demo Shopper"},
	{"id": "user-alt", "email": "alt@toko.local", "name": "Second Shopper"},
}

func demoCoupons(now time.Time) []map[string]any {
	return []map[string]any{
		{
			"id": "coupon-welcome10", "code": "WELCOME10", "discountType": catalog.DiscountPercentage,
			"discountValue": 10.0, "minOrderAmount": 500.0, "maxDiscountAmount": 300.0,
			"startDate": now.AddDate(0, -1, 0), "endDate": now.AddDate(1, 0, 0),
			"maxUses": 1000, "usedCount": 0, "isActive": true,
		},
		{
			"id": "coupon-flat200", "code": "FLAT200", "discountType": catalog.DiscountFixed,
			"discountValue": 200.0, "minOrderAmount": 1500.0,
			"startDate": now.AddDate(0, -1, 0), "endDate": now.AddDate(0, 3, 0),
			"maxUses": 50, "usedCount": 0, "isActive": true,
		},
		{
			"id": "coupon-audio25", "code": "AUDIO25", "discountType": catalog.DiscountPercentage,
			"discountValue": 25.0, "maxDiscountAmount": 1000.0,
			"startDate": now.AddDate(0, -1, 0), "endDate": now.AddDate(0, 1, 0),
			"maxUses": 20, "usedCount": 0, "isActive": true,
			"isProductSpecific": true, "applicableProducts": []string{"prod-headphones"},
		},
		{
			"id": "coupon-expired", "code": "SUMMER5", "discountType": catalog.DiscountPercentage,
			"discountValue": 5.0, "startDate": now.AddDate(-1, 0, 0), "endDate": now.AddDate(0, -6, 0),
			"maxUses": 100, "usedCount": 3, "isActive": true,
		},
	}
}

type docSet struct {
	collection string
	docs       []map[string]any
	prepare    func(map[string]any) map[string]any
}

// seed upserts the demo catalog so it can be rerun against a populated store.
func seed(ctx context.Context, store docstore.Store, now time.Time, logger zerolog.Logger) error {
	sets := []docSet{
		{collection: catalog.ProductsCollection, docs: demoProducts},
		{collection: catalog.CouponsCollection, docs: demoCoupons(now), prepare: normalizeCoupon},
		{collection: catalog.UsersCollection, docs: demoUsers},
	}
	for _, set := range sets {
		if err := seedSet(ctx, store, set, logger); err != nil {
			return err
		}
	}
	return nil
}

func seedSet(ctx context.Context, store docstore.Store, set docSet, logger zerolog.Logger) error {
	coll := store.Collection(set.collection)
	for _, doc := range set.docs {
		if set.prepare != nil {
			doc = set.prepare(doc)
		}
		created, err := upsert(ctx, coll, doc)
		if err != nil {
			return fmt.Errorf("%s/%v: %w", set.collection, doc["id"], err)
		}
		logger.Info().Str("collection", set.collection).Interface("id", doc["id"]).Bool("created", created).Msg("seeded")
	}
	return nil
}

// normalizeCoupon stores the code in the form FindByCode looks up.
func normalizeCoupon(doc map[string]any) map[string]any {
	out := make(map[string]any, len(doc))
	for k, v := range doc {
		out[k] = v
	}
	if code, ok := doc["code"].(string); ok {
		out["code"] = catalog.NormalizeCode(code)
	}
	return out
}

func upsert(ctx context.Context, coll docstore.Collection, doc map[string]any) (bool, error) {
	id, _ := doc["id"].(string)
	var existing map[string]any
	err := coll.Get(ctx, id, &existing)
	switch {
	case errors.Is(err, docstore.ErrNotFound):
		_, err = coll.Add(ctx, doc)
		return err == nil, err
	case err != nil:
		return false, err
	}
	fields := make(map[string]any, len(doc))
	for k, v := range doc {
		if k != "id" {
			fields[k] = v
		}
	}
	return false, coll.Update(ctx, id, fields)
}

func env(key, fallback string) string {
	if v := strings.TrimSpace(os.Getenv(key)); v != "" {
		return v
	}
	return fallback
}
