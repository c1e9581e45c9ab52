// Package substrate stores the raw and derived knowledge units (blocks,
// context items, raw dumps) that the governance pipeline mutates. Each
// mutation is opaque to the governance core and idempotent once applied.
package substrate

import (
	"context"
	"database/sql"
	"errors"
	"time"
)

var (
	ErrBlockNotFound       = errors.New("block not found")
	ErrContextItemNotFound = errors.New("context item not found")
)

// Tx is the transaction handle threaded through substrate mutations so a
// whole operation batch commits or rolls back as one unit. *sql.Tx satisfies
// it; the in-memory store ignores it.
type Tx interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Block is an extracted knowledge block.
type Block struct {
	ID        string    `json:"id"`
	BasketID  string    `json:"basket_id"`
	Title     string    `json:"title"`
	Body      string    `json:"body"`
	State     string    `json:"state"` // PROPOSED, ACCEPTED, ARCHIVED
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// ContextItem is a lightweight semantic tag or entity attached to a basket.
type ContextItem struct {
	ID        string    `json:"id"`
	BasketID  string    `json:"basket_id"`
	Label     string    `json:"label"`
	Kind      string    `json:"kind"`
	Content   string    `json:"content"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// RawDump is an unstructured capture appended to a basket.
type RawDump struct {
	ID        string    `json:"id"`
	BasketID  string    `json:"basket_id"`
	Body      string    `json:"body"`
	Source    string    `json:"source"`
	CreatedAt time.Time `json:"created_at"`
}

// Store applies substrate mutations within the supplied transaction handle.
type Store interface {
	CreateBlock(ctx context.Context, tx Tx, b *Block) error
	ReviseBlock(ctx context.Context, tx Tx, id, body string) error
	ArchiveBlock(ctx context.Context, tx Tx, id string) error
	CreateContextItem(ctx context.Context, tx Tx, item *ContextItem) error
	EditContextItem(ctx context.Context, tx Tx, id, label, content string) error
	CreateRawDump(ctx context.Context, tx Tx, dump *RawDump) error
}

// TxRunner runs fn inside one atomic unit: every mutation through the
// supplied Tx commits together or not at all.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(tx Tx) error) error
}
