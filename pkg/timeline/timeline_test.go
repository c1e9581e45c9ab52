package timeline

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/weftlabs/substrate/pkg/contracts"
)

func TestCursorRoundTrip(t *testing.T) {
	c := Cursor{TSNanos: 1724961600000000123, ID: "ev-42"}
	decoded, err := DecodeCursor(c.Encode())
	require.NoError(t, err)
	assert.Equal(t, c, decoded)
}

func TestDecodeCursor_Malformed(t *testing.T) {
	for _, s := range []string{"", "12345", "abc:ev-1", ":ev-1", "123:"} {
		_, err := DecodeCursor(s)
		assert.ErrorIs(t, err, ErrBadCursor, "cursor %q", s)
	}
}

func seedEvents(t *testing.T, store Store, basketID string, n int) []contracts.TimelineEvent {
	t.Helper()
	base := time.Date(2026, 8, 30, 12, 0, 0, 0, time.UTC)
	clockAt := base
	emitter := NewEmitter(store, nil, nil).WithClock(func() time.Time {
		clockAt = clockAt.Add(time.Millisecond)
		return clockAt
	})
	for i := 0; i < n; i++ {
		kind := contracts.EventBlockCreated
		if i%2 == 1 {
			kind = contracts.EventDumpCreated
		}
		require.NoError(t, emitter.Emit(context.Background(), contracts.TimelineEvent{
			BasketID: basketID,
			Kind:     kind,
			RefID:    "ref",
		}))
	}
	page, err := store.List(context.Background(), basketID, Query{Limit: n})
	require.NoError(t, err)
	require.Len(t, page.Events, n)
	return page.Events
}

func TestMemoryStore_Pagination(t *testing.T) {
	store := NewMemoryStore()
	all := seedEvents(t, store, "basket-1", 5)

	page, err := store.List(context.Background(), "basket-1", Query{Limit: 2})
	require.NoError(t, err)

	require.Len(t, page.Events, 2)
	assert.True(t, page.HasMore)
	assert.Equal(t, CursorFor(all[1]).Encode(), page.NextCursor)
	assert.Equal(t, page.NextCursor, page.LastCursor)

	// Resume exactly after the cursor: events 3-4, no overlap, no gap.
	cursor, err := DecodeCursor(page.NextCursor)
	require.NoError(t, err)
	next, err := store.List(context.Background(), "basket-1", Query{Limit: 2, Cursor: &cursor})
	require.NoError(t, err)
	require.Len(t, next.Events, 2)
	assert.Equal(t, all[2].ID, next.Events[0].ID)
	assert.Equal(t, all[3].ID, next.Events[1].ID)
	assert.True(t, next.HasMore)

	// Final page: one event, no more, LastCursor still set.
	cursor, err = DecodeCursor(next.NextCursor)
	require.NoError(t, err)
	final, err := store.List(context.Background(), "basket-1", Query{Limit: 2, Cursor: &cursor})
	require.NoError(t, err)
	require.Len(t, final.Events, 1)
	assert.False(t, final.HasMore)
	assert.Empty(t, final.NextCursor)
	assert.Equal(t, CursorFor(all[4]).Encode(), final.LastCursor)
}

func TestMemoryStore_KindFilter(t *testing.T) {
	store := NewMemoryStore()
	seedEvents(t, store, "basket-1", 6)

	page, err := store.List(context.Background(), "basket-1", Query{
		Limit: 10,
		Kinds: []string{contracts.EventDumpCreated},
	})
	require.NoError(t, err)
	require.Len(t, page.Events, 3)
	for _, ev := range page.Events {
		assert.Equal(t, contracts.EventDumpCreated, ev.Kind)
	}
}

func TestMemoryStore_OrderingNonDecreasing(t *testing.T) {
	store := NewMemoryStore()
	seedEvents(t, store, "basket-1", 8)

	page, err := store.List(context.Background(), "basket-1", Query{Limit: 8})
	require.NoError(t, err)
	for i := 1; i < len(page.Events); i++ {
		prev, cur := page.Events[i-1], page.Events[i]
		ok := cur.TS.After(prev.TS) || (cur.TS.Equal(prev.TS) && cur.ID > prev.ID)
		assert.True(t, ok, "events out of (ts, id) order at %d", i)
	}
}

type failingStore struct{}

func (failingStore) Append(context.Context, *contracts.TimelineEvent) error {
	return errors.New("store unavailable")
}
func (failingStore) List(context.Context, string, Query) (*Page, error) {
	return nil, errors.New("store unavailable")
}

func TestEmitter_FailureIsNonFatal(t *testing.T) {
	emitter := NewEmitter(failingStore{}, nil, nil)

	err := emitter.Emit(context.Background(), contracts.TimelineEvent{
		BasketID: "basket-1",
		Kind:     contracts.EventProposalApproved,
	})

	var nf *NonFatalError
	require.ErrorAs(t, err, &nf, "emitter failures must be typed non-fatal")
}

func TestEmitter_FillsIdentityAndTime(t *testing.T) {
	store := NewMemoryStore()
	at := time.Date(2026, 8, 30, 9, 0, 0, 0, time.UTC)
	emitter := NewEmitter(store, nil, nil).WithClock(func() time.Time { return at })

	require.NoError(t, emitter.Emit(context.Background(), contracts.TimelineEvent{
		BasketID: "basket-1",
		Kind:     contracts.EventProposalSubmitted,
	}))

	page, err := store.List(context.Background(), "basket-1", Query{Limit: 1})
	require.NoError(t, err)
	require.Len(t, page.Events, 1)
	assert.NotEmpty(t, page.Events[0].ID)
	assert.Equal(t, at, page.Events[0].TS)
	assert.Equal(t, contracts.OriginSystem, page.Events[0].Origin)
}
