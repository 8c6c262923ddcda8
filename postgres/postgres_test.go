package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/GetStream/threads/store"
)

// newTestPostgres connects to the database named by THREADS_TEST_DATABASE_URL
// and skips the test when it is unset.
func newTestPostgres(t *testing.T) *Postgres {
	t.Helper()
	dsn := os.Getenv("THREADS_TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("THREADS_TEST_DATABASE_URL not set")
	}
	ctx := context.Background()
	pg, err := Connect(ctx, dsn)
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if err := pg.Migrate(ctx); err != nil {
		t.Fatalf("Migrate() error: %v", err)
	}
	t.Cleanup(func() { _ = pg.Close() })
	return pg
}

func testKey(t *testing.T) string {
	return fmt.Sprintf("test:%s:%d", t.Name(), time.Now().UnixNano())
}

func TestPostgres_GetSetDelete(t *testing.T) {
	ctx := context.Background()
	pg := newTestPostgres(t)
	key := testKey(t)

	if _, err := pg.Get(ctx, key); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Got error %v, want ErrNotFound", err)
	}
	for _, v := range []string{"one", "two"} {
		if err := pg.Set(ctx, key, []byte(v)); err != nil {
			t.Fatalf("Set() error: %v", err)
		}
		got, err := pg.Get(ctx, key)
		if err != nil {
			t.Fatalf("Get() error: %v", err)
		}
		if string(got) != v {
			t.Errorf("Got %q, want %q", got, v)
		}
	}
	if err := pg.Delete(ctx, key); err != nil {
		t.Fatalf("Delete() error: %v", err)
	}
	if _, err := pg.Get(ctx, key); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Got error %v, want ErrNotFound", err)
	}
}

func TestPostgres_UpdateSerializes(t *testing.T) {
	ctx := context.Background()
	pg := newTestPostgres(t)
	key := testKey(t)
	t.Cleanup(func() { _ = pg.Delete(ctx, key) })

	const workers = 8
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := pg.Update(ctx, key, func(old []byte) ([]byte, error) {
				return append(old, 'x'), nil
			})
			if err != nil {
				t.Errorf("Update() error: %v", err)
			}
		}()
	}
	wg.Wait()

	got, err := pg.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if len(got) != workers {
		t.Errorf("Got %d writes, want %d", len(got), workers)
	}
}
