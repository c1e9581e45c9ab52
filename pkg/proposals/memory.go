package proposals

import (
	"context"
	"sort"
	"sync"

	"github.com/weftlabs/substrate/pkg/contracts"
)

// MemoryStore is an in-memory Store for tests and single-node setups.
// The execution lock mirrors the SQL store's transactional claim: exactly
// one of two racing Execute calls flips is_executed.
type MemoryStore struct {
	mu   sync.Mutex
	rows map[string]*contracts.Proposal

	// snapshot, when set, provides rollback for substrate mutations made by
	// the apply func (wire it to substrate.MemoryStore.Snapshot).
	snapshot func() func()
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{rows: make(map[string]*contracts.Proposal)}
}

// WithSnapshot wires a substrate snapshot source for apply rollback.
func (s *MemoryStore) WithSnapshot(snapshot func() func()) *MemoryStore {
	s.snapshot = snapshot
	return s
}

func (s *MemoryStore) Create(_ context.Context, p *contracts.Proposal) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	copied := *p
	s.rows[p.ID] = &copied
	return nil
}

func (s *MemoryStore) Get(_ context.Context, id string) (*contracts.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.rows[id]
	if !ok {
		return nil, ErrNotFound
	}
	copied := *p
	return &copied, nil
}

func (s *MemoryStore) List(_ context.Context, workspaceID string, filter ListFilter) ([]*contracts.Proposal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	result := make([]*contracts.Proposal, 0)
	for _, p := range s.rows {
		if p.WorkspaceID != workspaceID {
			continue
		}
		if filter.BasketID != "" && p.BasketID != filter.BasketID {
			continue
		}
		if filter.Status != "" && p.Status != filter.Status {
			continue
		}
		copied := *p
		result = append(result, &copied)
	}
	sort.Slice(result, func(i, j int) bool {
		if !result[i].CreatedAt.Equal(result[j].CreatedAt) {
			return result[i].CreatedAt.After(result[j].CreatedAt)
		}
		return result[i].ID > result[j].ID
	})
	return result, nil
}

func (s *MemoryStore) Execute(_ context.Context, id string, apply ApplyFunc) (*contracts.ExecutionResult, []contracts.TimelineEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.rows[id]
	if !ok {
		return nil, nil, ErrNotFound
	}
	if p.IsExecuted {
		return nil, nil, ErrAlreadyExecuted
	}
	if p.Status != contracts.StatusProposed {
		return nil, nil, ErrInvalidState
	}

	var restore func()
	if s.snapshot != nil {
		restore = s.snapshot()
	}

	copied := *p
	result, events, err := apply(nil, &copied)
	if err != nil {
		if restore != nil {
			restore()
		}
		return nil, nil, err
	}

	p.IsExecuted = true
	p.Status = contracts.StatusApproved
	return result, events, nil
}

func (s *MemoryStore) Reject(_ context.Context, id, reason string) error {
	_ = reason

	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.rows[id]
	if !ok {
		return ErrNotFound
	}
	if p.IsExecuted {
		return ErrRejectExecuted
	}
	if p.Status == contracts.StatusApproved {
		return ErrInvalidState
	}
	p.Status = contracts.StatusRejected
	return nil
}

func (s *MemoryStore) AttachValidatorReport(_ context.Context, id string, report *contracts.ValidatorReport) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	p, ok := s.rows[id]
	if !ok || p.Status != contracts.StatusProposed {
		return ErrNotFound
	}
	copied := *report
	p.ValidatorReport = &copied
	return nil
}

var _ Store = (*MemoryStore)(nil)
