package gallery

import (
	"context"
	"slices"
	"sync"

	"github.com/pixelnest/gallery/internal/metrics"
)

// Fetcher loads a user's entries.
type Fetcher interface {
	List(ctx context.Context, userID string) ([]Entry, error)
}

// Snapshot is a copy of a Listing's state.
type Snapshot struct {
	UserID     string  `json:"-"`
	Generation uint64  `json:"generation"`
	Refreshes  uint64  `json:"refreshes"`
	Loading    bool    `json:"loading"`
	Entries    []Entry `json:"entries"`
	Error      string  `json:"error,omitempty"`
}

// Listing is the view state of one gallery display. Every fetch is tagged
// with a generation; a result is applied only if no newer fetch, user
// change or trigger happened while it was in flight.
type Listing struct {
	fetcher Fetcher

	mu         sync.Mutex
	userID     string
	generation uint64
	refreshes  uint64
	loading    bool
	entries    []Entry
	errMsg     string

	// removed holds ids deleted while a fetch was in flight.
	removed map[string]struct{}
}

// NewListing creates a Listing for userID.
func NewListing(fetcher Fetcher, userID string) *Listing {
	return &Listing{fetcher: fetcher, userID: userID}
}

// SetUser switches the listing to another identity, dropping the current
// entries. An empty userID means signed out.
func (l *Listing) SetUser(userID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.userID == userID {
		return
	}
	l.userID = userID
	l.generation++
	l.entries = nil
	l.errMsg = ""
	l.loading = false
}

// Trigger records an external refresh signal and invalidates any fetch in
// flight. It returns the new refresh count.
func (l *Listing) Trigger() uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.refreshes++
	l.generation++
	return l.refreshes
}

// Refresh fetches the current user's entries. It reports whether the
// result was applied; false means a newer change superseded it.
func (l *Listing) Refresh(ctx context.Context) (Snapshot, bool) {
	l.mu.Lock()
	l.generation++
	gen, userID := l.generation, l.userID
	if userID == "" {
		l.entries = nil
		l.errMsg = ""
		l.loading = false
		snap := l.snapshotLocked()
		l.mu.Unlock()
		return snap, true
	}
	l.loading = true
	l.removed = nil
	l.mu.Unlock()

	entries, err := l.fetcher.List(ctx, userID)

	l.mu.Lock()
	defer l.mu.Unlock()
	if gen != l.generation || userID != l.userID {
		metrics.StaleListingsTotal.Inc()
		return l.snapshotLocked(), false
	}
	l.loading = false
	if err != nil {
		l.entries = nil
		l.errMsg = "could not load images"
	} else {
		l.entries = slices.DeleteFunc(slices.Clone(entries), func(e Entry) bool {
			_, gone := l.removed[e.ID]
			return gone
		})
		l.errMsg = ""
	}
	l.removed = nil
	return l.snapshotLocked(), true
}

// Remove drops entry id locally without re-fetching. A fetch in flight
// will not bring it back. It reports whether the entries changed.
func (l *Listing) Remove(id string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.loading {
		if l.removed == nil {
			l.removed = make(map[string]struct{})
		}
		l.removed[id] = struct{}{}
	}
	n := len(l.entries)
	l.entries = slices.DeleteFunc(l.entries, func(e Entry) bool { return e.ID == id })
	return len(l.entries) != n
}

// Snapshot returns a copy of the current state.
func (l *Listing) Snapshot() Snapshot {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.snapshotLocked()
}

func (l *Listing) snapshotLocked() Snapshot {
	return Snapshot{
		UserID:     l.userID,
		Generation: l.generation,
		Refreshes:  l.refreshes,
		Loading:    l.loading,
		Entries:    slices.Clone(l.entries),
		Error:      l.errMsg,
	}
}
