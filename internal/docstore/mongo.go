package docstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo is a Store backed by a MongoDB database. Document ids live in _id.
type Mongo struct {
	client *mongo.Client
	db     *mongo.Database
}

// OpenMongo connects and pings the server before returning.
func OpenMongo(ctx context.Context, uri, database string) (*Mongo, error) {
	if uri == "" {
		return nil, errors.New("docstore: mongo uri is empty")
	}
	opts := options.Client().
		ApplyURI(uri).
		SetConnectTimeout(10 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetMaxPoolSize(100)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("docstore: connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("docstore: ping mongo: %w", err)
	}
	return &Mongo{client: client, db: client.Database(database)}, nil
}

func (m *Mongo) Collection(name string) Collection {
	return &mongoCollection{coll: m.db.Collection(name)}
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, nil)
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

type mongoCollection struct {
	coll *mongo.Collection
}

func mongoField(field string) string {
	if field == "id" {
		return "_id"
	}
	return field
}

func (c *mongoCollection) Get(ctx context.Context, id string, dst any) error {
	err := c.coll.FindOne(ctx, bson.M{"_id": id}).Decode(dst)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("docstore: get %s/%s: %w", c.coll.Name(), id, err)
	}
	return nil
}

func (c *mongoCollection) Find(ctx context.Context, filters []Filter, dst any) error {
	query := bson.M{}
	for _, f := range filters {
		query[mongoField(f.Field)] = f.Value
	}
	cur, err := c.coll.Find(ctx, query)
	if err != nil {
		return fmt.Errorf("docstore: find %s: %w", c.coll.Name(), err)
	}
	if err := cur.All(ctx, dst); err != nil {
		return fmt.Errorf("docstore: decode %s: %w", c.coll.Name(), err)
	}
	return nil
}

func (c *mongoCollection) Add(ctx context.Context, doc any) (string, error) {
	raw, err := bson.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("docstore: encode document: %w", err)
	}
	var m bson.M
	if err := bson.Unmarshal(raw, &m); err != nil {
		return "", err
	}
	id, _ := m["_id"].(string)
	if id == "" {
		id, _ = m["id"].(string)
		delete(m, "id")
	}
	if id == "" {
		id = newID()
	}
	m["_id"] = id
	if _, err := c.coll.InsertOne(ctx, m); err != nil {
		return "", fmt.Errorf("docstore: insert %s: %w", c.coll.Name(), err)
	}
	return id, nil
}

func (c *mongoCollection) Update(ctx context.Context, id string, fields map[string]any) error {
	set := bson.M{}
	for k, v := range fields {
		if k == "id" {
			continue
		}
		set[k] = v
	}
	return c.update(ctx, id, bson.M{"$set": set})
}

func (c *mongoCollection) Increment(ctx context.Context, id, field string, delta int64) error {
	return c.update(ctx, id, bson.M{"$inc": bson.M{field: delta}})
}

func (c *mongoCollection) update(ctx context.Context, id string, update bson.M) error {
	res, err := c.coll.UpdateOne(ctx, bson.M{"_id": id}, update)
	if err != nil {
		return fmt.Errorf("docstore: update %s/%s: %w", c.coll.Name(), id, err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}
