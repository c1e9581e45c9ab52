// Package executor applies a proposal's ordered operation list atomically
// against substrate. Batches are validate-then-apply: unknown operation
// types or malformed payloads abort before any mutation, and a mid-batch
// store failure rolls the whole unit back at the caller's transaction.
package executor

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gowebpki/jcs"
	"github.com/santhosh-tekuri/jsonschema/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"

	"github.com/weftlabs/substrate/pkg/contracts"
	"github.com/weftlabs/substrate/pkg/substrate"
)

var (
	ErrUnknownOperation = errors.New("unknown operation type")
	ErrEmptyBatch       = errors.New("operation batch is empty")
)

// ExecutionError wraps a failure to apply a batch. The caller must leave the
// proposal un-executed so approve can be retried.
type ExecutionError struct {
	Reason string
	Err    error
}

func (e *ExecutionError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("execution failed: %s: %v", e.Reason, e.Err)
	}
	return fmt.Sprintf("execution failed: %s", e.Reason)
}

func (e *ExecutionError) Unwrap() error { return e.Err }

// opHandler applies one operation and reports the mutated entity id, the
// timeline event kind, and the event payload.
type opHandler func(ctx context.Context, tx substrate.Tx, basketID string, data map[string]any) (refID, eventKind string, payload map[string]any, err error)

// Engine is the atomic multi-operation executor. The handler table is the
// closed variant dispatch for the operation set; adding an operation type is
// a compile-time addition here plus a schema in schemas.go.
type Engine struct {
	store    substrate.Store
	schemas  map[contracts.OperationType]*jsonschema.Schema
	handlers map[contracts.OperationType]opHandler

	mu    sync.Mutex
	locks map[string]*sync.Mutex // basket id -> execution lock

	opsApplied metric.Int64Counter
}

// NewEngine creates an engine over the given substrate store.
func NewEngine(store substrate.Store) (*Engine, error) {
	schemas, err := compileOpSchemas()
	if err != nil {
		return nil, err
	}

	meter := otel.Meter("github.com/weftlabs/substrate/pkg/executor")
	opsApplied, err := meter.Int64Counter("substrate.operations.executed")
	if err != nil {
		return nil, err
	}

	e := &Engine{
		store:      store,
		schemas:    schemas,
		locks:      make(map[string]*sync.Mutex),
		opsApplied: opsApplied,
	}
	e.handlers = map[contracts.OperationType]opHandler{
		contracts.OpCreateBlock:       e.createBlock,
		contracts.OpReviseBlock:       e.reviseBlock,
		contracts.OpArchiveBlock:      e.archiveBlock,
		contracts.OpCreateContextItem: e.createContextItem,
		contracts.OpEditContextItem:   e.editContextItem,
		contracts.OpCreateRawDump:     e.createRawDump,
	}
	return e, nil
}

// ValidateOps checks every operation's type and payload without mutating
// anything. Used both at proposal creation and again before apply.
func (e *Engine) ValidateOps(ops []contracts.Operation) error {
	if len(ops) == 0 {
		return ErrEmptyBatch
	}
	for i, op := range ops {
		schema, ok := e.schemas[op.Type]
		if !ok {
			return fmt.Errorf("%w: %q at index %d", ErrUnknownOperation, op.Type, i)
		}
		data := op.Data
		if data == nil {
			data = map[string]any{}
		}
		if err := schema.Validate(normalize(data)); err != nil {
			return fmt.Errorf("operation %d (%s) payload invalid: %w", i, op.Type, err)
		}
	}
	return nil
}

// LockBasket serializes executions targeting the same basket. The returned
// func releases the lock; hold it for the duration of the transaction.
func (e *Engine) LockBasket(basketID string) func() {
	e.mu.Lock()
	l, ok := e.locks[basketID]
	if !ok {
		l = &sync.Mutex{}
		e.locks[basketID] = l
	}
	e.mu.Unlock()

	l.Lock()
	return l.Unlock
}

// Execute applies ops in list order inside the caller's transaction. On any
// failure it returns an *ExecutionError and the caller must roll back; no
// timeline events exist until the caller commits and emits the returned
// pending events.
func (e *Engine) Execute(ctx context.Context, tx substrate.Tx, basketID string, ops []contracts.Operation) (*contracts.ExecutionResult, []contracts.TimelineEvent, error) {
	tracer := otel.Tracer("github.com/weftlabs/substrate/pkg/executor")
	ctx, span := tracer.Start(ctx, "executor.Execute")
	defer span.End()

	if err := e.ValidateOps(ops); err != nil {
		return nil, nil, &ExecutionError{Reason: "validation failed", Err: err}
	}

	executed := 0
	refs := make([]string, 0, len(ops))
	events := make([]contracts.TimelineEvent, 0, len(ops))
	for i, op := range ops {
		handler := e.handlers[op.Type]
		refID, kind, payload, err := handler(ctx, tx, basketID, op.Data)
		if err != nil {
			return nil, nil, &ExecutionError{Reason: fmt.Sprintf("operation %d (%s) failed", i, op.Type), Err: err}
		}
		executed++
		refs = append(refs, refID)
		events = append(events, contracts.TimelineEvent{
			BasketID: basketID,
			Kind:     kind,
			RefID:    refID,
			Payload:  payload,
			Origin:   contracts.OriginSystem,
		})
	}

	commit, err := commitID(basketID, ops, refs)
	if err != nil {
		return nil, nil, &ExecutionError{Reason: "commit id", Err: err}
	}

	e.opsApplied.Add(ctx, int64(executed))
	return &contracts.ExecutionResult{CommitID: commit, OperationsExecuted: executed}, events, nil
}

// commitID content-addresses the executed batch: SHA-256 over the RFC 8785
// canonical JSON of what was applied and to which entities.
func commitID(basketID string, ops []contracts.Operation, refs []string) (string, error) {
	manifest := map[string]any{
		"basket_id":   basketID,
		"ops":         ops,
		"refs":        refs,
		"executed_at": time.Now().UTC().Format(time.RFC3339Nano),
	}
	raw, err := json.Marshal(manifest)
	if err != nil {
		return "", err
	}
	canonical, err := jcs.Transform(raw)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(canonical)
	return "commit-" + hex.EncodeToString(sum[:16]), nil
}

func (e *Engine) createBlock(ctx context.Context, tx substrate.Tx, basketID string, data map[string]any) (string, string, map[string]any, error) {
	b := &substrate.Block{
		ID:       uuid.New().String(),
		BasketID: basketID,
		Title:    stringField(data, "title"),
		Body:     stringField(data, "body"),
		State:    stringField(data, "state"),
	}
	if err := e.store.CreateBlock(ctx, tx, b); err != nil {
		return "", "", nil, err
	}
	return b.ID, contracts.EventBlockCreated, map[string]any{"block_id": b.ID, "title": b.Title}, nil
}

func (e *Engine) reviseBlock(ctx context.Context, tx substrate.Tx, _ string, data map[string]any) (string, string, map[string]any, error) {
	id := stringField(data, "block_id")
	if err := e.store.ReviseBlock(ctx, tx, id, stringField(data, "body")); err != nil {
		return "", "", nil, err
	}
	return id, contracts.EventBlockRevised, map[string]any{"block_id": id}, nil
}

func (e *Engine) archiveBlock(ctx context.Context, tx substrate.Tx, _ string, data map[string]any) (string, string, map[string]any, error) {
	id := stringField(data, "block_id")
	if err := e.store.ArchiveBlock(ctx, tx, id); err != nil {
		return "", "", nil, err
	}
	return id, contracts.EventBlockArchived, map[string]any{"block_id": id}, nil
}

func (e *Engine) createContextItem(ctx context.Context, tx substrate.Tx, basketID string, data map[string]any) (string, string, map[string]any, error) {
	item := &substrate.ContextItem{
		ID:       uuid.New().String(),
		BasketID: basketID,
		Label:    stringField(data, "label"),
		Kind:     stringField(data, "kind"),
		Content:  stringField(data, "content"),
	}
	if err := e.store.CreateContextItem(ctx, tx, item); err != nil {
		return "", "", nil, err
	}
	return item.ID, contracts.EventContextItemCreated, map[string]any{"context_item_id": item.ID, "label": item.Label}, nil
}

func (e *Engine) editContextItem(ctx context.Context, tx substrate.Tx, _ string, data map[string]any) (string, string, map[string]any, error) {
	id := stringField(data, "context_item_id")
	if err := e.store.EditContextItem(ctx, tx, id, stringField(data, "label"), stringField(data, "content")); err != nil {
		return "", "", nil, err
	}
	return id, contracts.EventContextItemUpdated, map[string]any{"context_item_id": id}, nil
}

func (e *Engine) createRawDump(ctx context.Context, tx substrate.Tx, basketID string, data map[string]any) (string, string, map[string]any, error) {
	dump := &substrate.RawDump{
		ID:       uuid.New().String(),
		BasketID: basketID,
		Body:     stringField(data, "body"),
		Source:   stringField(data, "source"),
	}
	if err := e.store.CreateRawDump(ctx, tx, dump); err != nil {
		return "", "", nil, err
	}
	return dump.ID, contracts.EventDumpCreated, map[string]any{"dump_id": dump.ID, "source": dump.Source}, nil
}

func stringField(data map[string]any, key string) string {
	if data == nil {
		return ""
	}
	s, _ := data[key].(string)
	return s
}

// normalize round-trips through JSON so schema validation sees the same
// value shapes it would from a decoded request body.
func normalize(data map[string]any) any {
	raw, err := json.Marshal(data)
	if err != nil {
		return data
	}
	var out any
	if err := json.Unmarshal(raw, &out); err != nil {
		return data
	}
	return out
}
