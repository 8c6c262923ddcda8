package postgres

import (
	"time"

	"github.com/uptrace/bun"
)

// A slot is one key-value pair in the database.
type slot struct {
	bun.BaseModel `bun:"table:threads_slots,alias:s"`

	Key       string    `bun:",pk"`
	Value     []byte    `bun:",notnull"`
	UpdatedAt time.Time `bun:",nullzero,notnull,default:current_timestamp"`
}
