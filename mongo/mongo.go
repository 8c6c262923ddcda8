package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/GetStream/threads/store"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	collection = "slots"
	maxRetries = 10
)

// ErrConflict is returned when Update keeps losing the race for a key.
var ErrConflict = errors.New("too many concurrent writes")

// slot is one key-value pair. Version is bumped on every write and guards
// Update against lost updates.
type slot struct {
	Key       string    `bson:"_id"`
	Value     []byte    `bson:"value"`
	Version   int64     `bson:"version"`
	UpdatedAt time.Time `bson:"updatedat"`
}

var _ store.Backend = (*Mongo)(nil)

// Mongo provides a store.Backend in MongoDB.
type Mongo struct {
	client *mongo.Client
	slots  *mongo.Collection
}

// Connect connects to MongoDB and pings the server to ensure the connection
// is working.
func Connect(ctx context.Context, uri, database string) (*Mongo, error) {
	serverAPI := options.ServerAPI(options.ServerAPIVersion1)
	opts := options.Client().ApplyURI(uri).SetServerAPIOptions(serverAPI)

	client, err := mongo.Connect(ctx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Database("admin").RunCommand(ctx, bson.D{{Key: "ping", Value: 1}}).Err(); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &Mongo{
		client: client,
		slots:  client.Database(database).Collection(collection),
	}, nil
}

// Close disconnects the client.
func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func (m *Mongo) find(ctx context.Context, key string) (slot, error) {
	var s slot
	err := m.slots.FindOne(ctx, bson.M{"_id": key}).Decode(&s)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return s, store.ErrNotFound
	}
	if err != nil {
		return s, fmt.Errorf("find: %w", err)
	}
	return s, nil
}

// Get returns the value stored at key.
func (m *Mongo) Get(ctx context.Context, key string) ([]byte, error) {
	s, err := m.find(ctx, key)
	if err != nil {
		return nil, err
	}
	return s.Value, nil
}

// Set upserts the value at key.
func (m *Mongo) Set(ctx context.Context, key string, value []byte) error {
	_, err := m.slots.UpdateOne(ctx,
		bson.M{"_id": key},
		bson.M{
			"$set": bson.M{"value": value, "updatedat": time.Now()},
			"$inc": bson.M{"version": 1},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}

// Delete removes key.
func (m *Mongo) Delete(ctx context.Context, key string) error {
	if _, err := m.slots.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Update reads the slot, applies fn and writes the result only if the slot
// version is unchanged. A lost race restarts the cycle.
func (m *Mongo) Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error {
	for i := 0; i < maxRetries; i++ {
		s, err := m.find(ctx, key)
		absent := errors.Is(err, store.ErrNotFound)
		if err != nil && !absent {
			return err
		}

		var old []byte
		if !absent {
			old = s.Value
		}
		v, err := fn(old)
		if err != nil || v == nil {
			return err
		}

		if absent {
			_, err := m.slots.InsertOne(ctx, slot{
				Key:       key,
				Value:     v,
				Version:   1,
				UpdatedAt: time.Now(),
			})
			if mongo.IsDuplicateKeyError(err) {
				continue
			}
			if err != nil {
				return fmt.Errorf("insert: %w", err)
			}
			return nil
		}

		res, err := m.slots.UpdateOne(ctx,
			bson.M{"_id": key, "version": s.Version},
			bson.M{
				"$set": bson.M{"value": v, "updatedat": time.Now()},
				"$inc": bson.M{"version": 1},
			},
		)
		if err != nil {
			return fmt.Errorf("update: %w", err)
		}
		if res.MatchedCount == 1 {
			return nil
		}
	}
	return fmt.Errorf("mongo update %s: %w", key, ErrConflict)
}
