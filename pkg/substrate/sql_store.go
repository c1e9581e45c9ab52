package substrate

import (
	"context"
	"database/sql"
	"fmt"
	"time"
)

// SQLStore implements Store using database/sql. It works against both
// Postgres and SQLite via standard drivers.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const substrateSchema = `
CREATE TABLE IF NOT EXISTS blocks (
	id TEXT PRIMARY KEY,
	basket_id TEXT NOT NULL,
	title TEXT NOT NULL DEFAULT '',
	body TEXT NOT NULL DEFAULT '',
	state TEXT NOT NULL DEFAULT 'PROPOSED',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS context_items (
	id TEXT PRIMARY KEY,
	basket_id TEXT NOT NULL,
	label TEXT NOT NULL DEFAULT '',
	kind TEXT NOT NULL DEFAULT '',
	content TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL,
	updated_at TIMESTAMP NOT NULL
);
CREATE TABLE IF NOT EXISTS raw_dumps (
	id TEXT PRIMARY KEY,
	basket_id TEXT NOT NULL,
	body TEXT NOT NULL DEFAULT '',
	source TEXT NOT NULL DEFAULT '',
	created_at TIMESTAMP NOT NULL
);
`

func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, substrateSchema)
	return err
}

// RunInTx executes fn inside a database transaction, rolling back on error.
func (s *SQLStore) RunInTx(ctx context.Context, fn func(tx Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func (s *SQLStore) CreateBlock(ctx context.Context, tx Tx, b *Block) error {
	query := `
		INSERT INTO blocks (id, basket_id, title, body, state, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	now := time.Now().UTC()
	b.CreatedAt, b.UpdatedAt = now, now
	if b.State == "" {
		b.State = "PROPOSED"
	}
	_, err := tx.ExecContext(ctx, query, b.ID, b.BasketID, b.Title, b.Body, b.State, b.CreatedAt, b.UpdatedAt)
	return err
}

func (s *SQLStore) ReviseBlock(ctx context.Context, tx Tx, id, body string) error {
	query := `UPDATE blocks SET body = $1, updated_at = $2 WHERE id = $3`
	res, err := tx.ExecContext(ctx, query, body, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrBlockNotFound)
}

func (s *SQLStore) ArchiveBlock(ctx context.Context, tx Tx, id string) error {
	query := `UPDATE blocks SET state = 'ARCHIVED', updated_at = $1 WHERE id = $2`
	res, err := tx.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrBlockNotFound)
}

func (s *SQLStore) CreateContextItem(ctx context.Context, tx Tx, item *ContextItem) error {
	query := `
		INSERT INTO context_items (id, basket_id, label, kind, content, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
	`
	now := time.Now().UTC()
	item.CreatedAt, item.UpdatedAt = now, now
	_, err := tx.ExecContext(ctx, query, item.ID, item.BasketID, item.Label, item.Kind, item.Content, item.CreatedAt, item.UpdatedAt)
	return err
}

func (s *SQLStore) EditContextItem(ctx context.Context, tx Tx, id, label, content string) error {
	query := `UPDATE context_items SET label = $1, content = $2, updated_at = $3 WHERE id = $4`
	res, err := tx.ExecContext(ctx, query, label, content, time.Now().UTC(), id)
	if err != nil {
		return err
	}
	return requireRow(res, ErrContextItemNotFound)
}

func (s *SQLStore) CreateRawDump(ctx context.Context, tx Tx, dump *RawDump) error {
	query := `
		INSERT INTO raw_dumps (id, basket_id, body, source, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`
	dump.CreatedAt = time.Now().UTC()
	_, err := tx.ExecContext(ctx, query, dump.ID, dump.BasketID, dump.Body, dump.Source, dump.CreatedAt)
	return err
}

func requireRow(res sql.Result, missing error) error {
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return missing
	}
	return nil
}
