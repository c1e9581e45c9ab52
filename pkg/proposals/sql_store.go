package proposals

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/weftlabs/substrate/pkg/contracts"
)

// SQLStore implements Store using database/sql. It works against both
// Postgres and SQLite via standard drivers; the at-most-once execution
// guarantee rides on the transactional UPDATE ... WHERE is_executed = FALSE
// claim, not on driver-specific locking.
type SQLStore struct {
	db *sql.DB
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

const proposalSchema = `
CREATE TABLE IF NOT EXISTS proposals (
	id TEXT PRIMARY KEY,
	basket_id TEXT NOT NULL,
	workspace_id TEXT NOT NULL,
	kind TEXT NOT NULL,
	origin TEXT NOT NULL,
	status TEXT NOT NULL DEFAULT 'PROPOSED',
	ops TEXT NOT NULL,
	validator_confidence REAL,
	validator_summary TEXT,
	confidence REAL NOT NULL DEFAULT 0,
	blast_radius TEXT NOT NULL DEFAULT 'Scoped',
	is_executed BOOLEAN NOT NULL DEFAULT FALSE,
	created_at TIMESTAMP NOT NULL,
	provenance TEXT
);
CREATE INDEX IF NOT EXISTS idx_proposals_workspace ON proposals (workspace_id, basket_id, status);
`

func (s *SQLStore) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, proposalSchema)
	return err
}

const proposalColumns = `id, basket_id, workspace_id, kind, origin, status, ops,
	validator_confidence, validator_summary, confidence, blast_radius,
	is_executed, created_at, provenance`

func (s *SQLStore) Create(ctx context.Context, p *contracts.Proposal) error {
	ops, err := json.Marshal(p.Ops)
	if err != nil {
		return fmt.Errorf("encode ops: %w", err)
	}
	var provenance any
	if len(p.Provenance) > 0 {
		raw, err := json.Marshal(p.Provenance)
		if err != nil {
			return fmt.Errorf("encode provenance: %w", err)
		}
		provenance = string(raw)
	}
	var vConfidence, vSummary any
	if p.ValidatorReport != nil {
		vConfidence = p.ValidatorReport.Confidence
		vSummary = p.ValidatorReport.ImpactSummary
	}

	query := `
		INSERT INTO proposals (` + proposalColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
	`
	_, err = s.db.ExecContext(ctx, query,
		p.ID, p.BasketID, p.WorkspaceID, string(p.Kind), string(p.Origin), string(p.Status),
		string(ops), vConfidence, vSummary, p.Confidence, p.BlastRadius,
		p.IsExecuted, p.CreatedAt, provenance,
	)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanProposal(row rowScanner) (*contracts.Proposal, error) {
	var (
		p           contracts.Proposal
		kind        string
		origin      string
		status      string
		ops         string
		vConfidence sql.NullFloat64
		vSummary    sql.NullString
		provenance  sql.NullString
	)
	err := row.Scan(&p.ID, &p.BasketID, &p.WorkspaceID, &kind, &origin, &status, &ops,
		&vConfidence, &vSummary, &p.Confidence, &p.BlastRadius,
		&p.IsExecuted, &p.CreatedAt, &provenance)
	if err != nil {
		return nil, err
	}
	p.Kind = contracts.ProposalKind(kind)
	p.Origin = contracts.Origin(origin)
	p.Status = contracts.ProposalStatus(status)
	if err := json.Unmarshal([]byte(ops), &p.Ops); err != nil {
		return nil, fmt.Errorf("decode ops: %w", err)
	}
	if vConfidence.Valid {
		p.ValidatorReport = &contracts.ValidatorReport{
			Confidence:    vConfidence.Float64,
			ImpactSummary: vSummary.String,
		}
	}
	if provenance.Valid && provenance.String != "" {
		if err := json.Unmarshal([]byte(provenance.String), &p.Provenance); err != nil {
			return nil, fmt.Errorf("decode provenance: %w", err)
		}
	}
	return &p, nil
}

func (s *SQLStore) Get(ctx context.Context, id string) (*contracts.Proposal, error) {
	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1`
	p, err := scanProposal(s.db.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return p, nil
}

func (s *SQLStore) List(ctx context.Context, workspaceID string, filter ListFilter) ([]*contracts.Proposal, error) {
	where := []string{"workspace_id = $1"}
	args := []any{workspaceID}
	if filter.BasketID != "" {
		args = append(args, filter.BasketID)
		where = append(where, fmt.Sprintf("basket_id = $%d", len(args)))
	}
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = append(where, fmt.Sprintf("status = $%d", len(args)))
	}

	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE ` +
		strings.Join(where, " AND ") + ` ORDER BY created_at DESC, id DESC`
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]*contracts.Proposal, 0)
	for rows.Next() {
		p, err := scanProposal(rows)
		if err != nil {
			return nil, err
		}
		result = append(result, p)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func (s *SQLStore) Execute(ctx context.Context, id string, apply ApplyFunc) (*contracts.ExecutionResult, []contracts.TimelineEvent, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, fmt.Errorf("begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	query := `SELECT ` + proposalColumns + ` FROM proposals WHERE id = $1`
	p, err := scanProposal(tx.QueryRowContext(ctx, query, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, ErrNotFound
		}
		return nil, nil, err
	}

	// Atomic claim: exactly one racer flips the latch.
	claim := `
		UPDATE proposals SET is_executed = TRUE, status = $1
		WHERE id = $2 AND is_executed = FALSE AND status = $3
	`
	res, err := tx.ExecContext(ctx, claim, string(contracts.StatusApproved), id, string(contracts.StatusProposed))
	if err != nil {
		return nil, nil, err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		// The pre-claim snapshot can predate a concurrent winner's commit, so
		// the row is re-read before choosing the error.
		cur, err := scanProposal(tx.QueryRowContext(ctx, query, id))
		if err != nil {
			return nil, nil, err
		}
		if cur.IsExecuted {
			return nil, nil, ErrAlreadyExecuted
		}
		return nil, nil, ErrInvalidState
	}

	result, events, err := apply(tx, p)
	if err != nil {
		// Rollback (deferred) leaves is_executed = FALSE so approve can be
		// retried.
		return nil, nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, nil, fmt.Errorf("commit execution: %w", err)
	}
	return result, events, nil
}

func (s *SQLStore) Reject(ctx context.Context, id, reason string) error {
	_ = reason // recorded by the caller's timeline event

	p, err := s.Get(ctx, id)
	if err != nil {
		return err
	}
	if p.IsExecuted {
		return ErrRejectExecuted
	}
	if p.Status == contracts.StatusApproved {
		return ErrInvalidState
	}

	query := `
		UPDATE proposals SET status = $1
		WHERE id = $2 AND is_executed = FALSE AND status != $3
	`
	res, err := s.db.ExecContext(ctx, query,
		string(contracts.StatusRejected), id, string(contracts.StatusApproved))
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		// Raced with an approve that executed in between.
		return ErrRejectExecuted
	}
	return nil
}

func (s *SQLStore) AttachValidatorReport(ctx context.Context, id string, report *contracts.ValidatorReport) error {
	query := `
		UPDATE proposals SET validator_confidence = $1, validator_summary = $2
		WHERE id = $3 AND status = $4
	`
	res, err := s.db.ExecContext(ctx, query,
		report.Confidence, report.ImpactSummary, id, string(contracts.StatusProposed))
	if err != nil {
		return err
	}
	rows, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

var _ Store = (*SQLStore)(nil)
