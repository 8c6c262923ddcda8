package redis

import (
	"context"
	"errors"
	"fmt"

	"github.com/GetStream/threads/store"
	"github.com/redis/go-redis/v9"
)

// maxRetries bounds how often Update retries after a concurrent write to the
// watched key.
const maxRetries = 10

// ErrConflict is returned when Update keeps losing the race for a key.
var ErrConflict = errors.New("too many concurrent writes")

var _ store.Backend = (*Redis)(nil)

// Redis provides a store.Backend in Redis.
type Redis struct {
	cli *redis.Client
}

// Connect connects to the Redis server and pings the server to ensure the
// connection is working.
func Connect(ctx context.Context, addr string) (*Redis, error) {
	cli := redis.NewClient(&redis.Options{
		Addr: addr,
	})
	if err := cli.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return New(cli), nil
}

// New wraps an existing client.
func New(cli *redis.Client) *Redis {
	return &Redis{
		cli: cli,
	}
}

// Close closes the underlying client.
func (r *Redis) Close() error {
	return r.cli.Close()
}

// Get returns the value stored at key.
func (r *Redis) Get(ctx context.Context, key string) ([]byte, error) {
	v, err := r.cli.Get(ctx, key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("redis get: %w", err)
	}
	return v, nil
}

// Set stores value at key without expiry.
func (r *Redis) Set(ctx context.Context, key string, value []byte) error {
	if err := r.cli.Set(ctx, key, value, 0).Err(); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// Delete removes key.
func (r *Redis) Delete(ctx context.Context, key string) error {
	if err := r.cli.Del(ctx, key).Err(); err != nil {
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// Update watches key, applies fn and writes the result in a MULTI/EXEC
// transaction. The cycle is retried when another client writes the key in
// between.
func (r *Redis) Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error {
	txf := func(tx *redis.Tx) error {
		old, err := tx.Get(ctx, key).Bytes()
		if errors.Is(err, redis.Nil) {
			old = nil
		} else if err != nil {
			return fmt.Errorf("get: %w", err)
		}

		v, err := fn(old)
		if err != nil || v == nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, v, 0)
			return nil
		})
		return err
	}

	for i := 0; i < maxRetries; i++ {
		err := r.cli.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil {
			return fmt.Errorf("redis update: %w", err)
		}
		return nil
	}
	return fmt.Errorf("redis update %s: %w", key, ErrConflict)
}
