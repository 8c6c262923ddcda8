package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/GetStream/threads/store"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
)

var _ store.Backend = (*Postgres)(nil)

// Postgres provides a store.Backend in PostgreSQL.
type Postgres struct {
	bun *bun.DB
}

// Connect connects to the database and ping the DB to ensure the connection is
// working.
func Connect(ctx context.Context, connStr string) (*Postgres, error) {
	sqlDB := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(connStr)))
	if err := sqlDB.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("ping database: %w", err)
	}
	db := bun.NewDB(sqlDB, pgdialect.New())
	return &Postgres{
		bun: db,
	}, nil
}

// Close closes the database.
func (pg *Postgres) Close() error {
	return pg.bun.Close()
}

// Migrate creates the slot table if it does not exist.
func (pg *Postgres) Migrate(ctx context.Context) error {
	_, err := pg.bun.NewCreateTable().
		Model((*slot)(nil)).
		IfNotExists().
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("create table: %w", err)
	}
	return nil
}

// Get returns the value stored at key.
func (pg *Postgres) Get(ctx context.Context, key string) ([]byte, error) {
	return get(ctx, pg.bun, key)
}

// Set upserts the value at key.
func (pg *Postgres) Set(ctx context.Context, key string, value []byte) error {
	return set(ctx, pg.bun, key, value)
}

// Delete removes key.
func (pg *Postgres) Delete(ctx context.Context, key string) error {
	_, err := pg.bun.NewDelete().
		Model((*slot)(nil)).
		Where("key = ?", key).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("delete: %w", err)
	}
	return nil
}

// Update runs the read-modify-write cycle in a transaction holding an
// advisory lock on key, so absent keys are serialized too.
func (pg *Postgres) Update(ctx context.Context, key string, fn func(old []byte) ([]byte, error)) error {
	return pg.bun.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.ExecContext(ctx, "SELECT pg_advisory_xact_lock(hashtext(?))", key); err != nil {
			return fmt.Errorf("lock: %w", err)
		}

		old, err := get(ctx, tx, key)
		if errors.Is(err, store.ErrNotFound) {
			old = nil
		} else if err != nil {
			return err
		}

		v, err := fn(old)
		if err != nil || v == nil {
			return err
		}
		return set(ctx, tx, key, v)
	})
}

func get(ctx context.Context, db bun.IDB, key string) ([]byte, error) {
	var s slot
	err := db.NewSelect().
		Model(&s).
		Where("key = ?", key).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan: %w", err)
	}
	return s.Value, nil
}

func set(ctx context.Context, db bun.IDB, key string, value []byte) error {
	s := &slot{
		Key:       key,
		Value:     value,
		UpdatedAt: time.Now(),
	}
	_, err := db.NewInsert().
		Model(s).
		On("CONFLICT (key) DO UPDATE").
		Set("value = EXCLUDED.value").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert: %w", err)
	}
	return nil
}
