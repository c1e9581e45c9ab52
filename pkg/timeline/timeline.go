// Package timeline implements the append-only audit feed consumed by
// downstream features. Events are never mutated or deleted; the ordering key
// within a basket is (ts, id) ascending, and pagination resumes exactly
// after a cursor's (ts, id) pair with no gaps or duplicates.
package timeline

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/weftlabs/substrate/pkg/contracts"
)

// DefaultPageLimit applies when a caller asks for zero or negative events.
const DefaultPageLimit = 10

// ErrBadCursor is returned when a cursor string does not decode.
var ErrBadCursor = errors.New("malformed timeline cursor")

// Cursor points just after an event in (ts, id) order.
type Cursor struct {
	TSNanos int64
	ID      string
}

// Encode renders the cursor as "{unix_nanos}:{id}".
func (c Cursor) Encode() string {
	return strconv.FormatInt(c.TSNanos, 10) + ":" + c.ID
}

// DecodeCursor parses a "{unix_nanos}:{id}" cursor string.
func DecodeCursor(s string) (Cursor, error) {
	ts, id, ok := strings.Cut(s, ":")
	if !ok || id == "" {
		return Cursor{}, fmt.Errorf("%w: %q", ErrBadCursor, s)
	}
	nanos, err := strconv.ParseInt(ts, 10, 64)
	if err != nil {
		return Cursor{}, fmt.Errorf("%w: %q", ErrBadCursor, s)
	}
	return Cursor{TSNanos: nanos, ID: id}, nil
}

// CursorFor returns the cursor encoding of an event's (ts, id) pair.
func CursorFor(ev contracts.TimelineEvent) Cursor {
	return Cursor{TSNanos: ev.TS.UnixNano(), ID: ev.ID}
}

// Query filters and paginates a basket's feed.
type Query struct {
	Cursor *Cursor
	Limit  int
	Kinds  []string
}

// Page is one window of a basket's feed. NextCursor points after the last
// returned event and is only meaningful when HasMore is set; LastCursor is
// always the (ts, id) of the final item in the page.
type Page struct {
	Events     []contracts.TimelineEvent
	HasMore    bool
	NextCursor string
	LastCursor string
}

// Store persists and reads timeline events.
type Store interface {
	Append(ctx context.Context, ev *contracts.TimelineEvent) error
	List(ctx context.Context, basketID string, q Query) (*Page, error)
}

func pageFrom(events []contracts.TimelineEvent, limit int) *Page {
	page := &Page{Events: events}
	if len(events) > limit {
		page.Events = events[:limit]
		page.HasMore = true
	}
	if n := len(page.Events); n > 0 {
		last := CursorFor(page.Events[n-1]).Encode()
		page.LastCursor = last
		if page.HasMore {
			page.NextCursor = last
		}
	}
	return page
}

func matchesKinds(kind string, kinds []string) bool {
	if len(kinds) == 0 {
		return true
	}
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}
