package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
)

// DefaultKey is the key the dataset is persisted under.
const DefaultKey = "threadsStore:v1"

var (
	// ErrNotFound is returned by a Backend when the key holds no value.
	ErrNotFound = errors.New("key not found")

	// ErrSkip may be returned from an Update callback to leave the stored
	// value untouched.
	ErrSkip = errors.New("skip write")
)

// A Backend provides a durable key-value slot.
type Backend interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
	Delete(ctx context.Context, key string) error
	// Update atomically replaces the value of key with the result of fn. old
	// is nil when the key is absent. A nil result leaves the key unchanged.
	Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error
}

// Store persists the whole dataset under a single key. Every call goes to
// the backend; nothing is cached between calls.
type Store struct {
	Backend Backend
	Key     string
	Logger  *slog.Logger
}

// New returns a Store that keeps the dataset under DefaultKey.
func New(b Backend, logger *slog.Logger) *Store {
	return &Store{
		Backend: b,
		Key:     DefaultKey,
		Logger:  logger,
	}
}

func (s *Store) key() string {
	if s.Key == "" {
		return DefaultKey
	}
	return s.Key
}

func (s *Store) logger() *slog.Logger {
	if s.Logger == nil {
		return slog.Default()
	}
	return s.Logger
}

// Load returns the stored dataset. Missing, unreadable or corrupt data all
// yield the empty dataset.
func (s *Store) Load(ctx context.Context) Dataset {
	ds, err := s.Read(ctx)
	if err != nil {
		s.logger().Warn("Could not read dataset, using empty dataset", "key", s.key(), "error", err.Error())
	}
	return ds
}

// Read is like Load but reports backend failures. Corrupt data is still
// replaced by the empty dataset.
func (s *Store) Read(ctx context.Context) (Dataset, error) {
	raw, err := s.Backend.Get(ctx, s.key())
	if errors.Is(err, ErrNotFound) {
		return Empty(), nil
	}
	if err != nil {
		return Empty(), fmt.Errorf("get %s: %w", s.key(), err)
	}
	return s.decode(raw), nil
}

// Save replaces the stored dataset.
func (s *Store) Save(ctx context.Context, ds Dataset) error {
	b, err := encode(ds)
	if err != nil {
		return err
	}
	if err := s.Backend.Set(ctx, s.key(), b); err != nil {
		return fmt.Errorf("set %s: %w", s.key(), err)
	}
	return nil
}

// Clear removes all persisted state.
func (s *Store) Clear(ctx context.Context) error {
	if err := s.Backend.Delete(ctx, s.key()); err != nil {
		return fmt.Errorf("delete %s: %w", s.key(), err)
	}
	return nil
}

// Update loads the dataset, applies fn and saves the result as one atomic
// step. If fn returns ErrSkip nothing is written and Update returns nil.
func (s *Store) Update(ctx context.Context, fn func(ds *Dataset) error) error {
	err := s.Backend.Update(ctx, s.key(), func(old []byte) ([]byte, error) {
		ds := s.decode(old)
		if err := fn(&ds); err != nil {
			if errors.Is(err, ErrSkip) {
				return nil, nil
			}
			return nil, err
		}
		return encode(ds)
	})
	if err != nil {
		return fmt.Errorf("update %s: %w", s.key(), err)
	}
	return nil
}

func (s *Store) decode(raw []byte) Dataset {
	if len(raw) == 0 {
		return Empty()
	}
	var ds Dataset
	if err := json.Unmarshal(raw, &ds); err != nil {
		s.logger().Warn("Could not parse dataset, using empty dataset", "key", s.key(), "error", err.Error())
		return Empty()
	}
	ds.normalize()
	return ds
}

func encode(ds Dataset) ([]byte, error) {
	ds.normalize()
	b, err := json.Marshal(ds)
	if err != nil {
		return nil, fmt.Errorf("encode dataset: %w", err)
	}
	return b, nil
}
