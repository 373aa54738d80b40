package session

import (
	"context"
	"sync"
	"time"
)

// EventKind names a change a subscriber may react to.
type EventKind string

const (
	// EventRefresh asks listings of the user's gallery to re-fetch.
	EventRefresh EventKind = "refresh"
	// EventDeleted reports one removed image; listings drop it locally.
	EventDeleted EventKind = "deleted"
	// EventSignedIn is published after a successful credential exchange.
	EventSignedIn EventKind = "signed_in"
	// EventSignedOut is published when a session ends.
	EventSignedOut EventKind = "signed_out"
)

// Event is a change notification scoped to one user.
type Event struct {
	Kind      EventKind `json:"kind"`
	UserID    string    `json:"user_id"`
	SessionID string    `json:"session_id,omitempty"`
	ImageID   string    `json:"image_id,omitempty"`
	At        time.Time `json:"at"`
}

// Publisher sends events to every subscriber of the event's user.
type Publisher interface {
	Publish(ctx context.Context, ev Event) error
}

// subscriberBuffer bounds how far a subscriber may fall behind before events are dropped.
const subscriberBuffer = 16

type subscriber struct {
	ch chan Event
}

// Hub fans events out to in-process subscribers keyed by user id.
// Sends never block: a full subscriber misses the event.
type Hub struct {
	mu   sync.RWMutex
	subs map[string]map[*subscriber]struct{}
}

// NewHub creates an empty Hub.
func NewHub() *Hub {
	return &Hub{subs: make(map[string]map[*subscriber]struct{})}
}

// Subscribe registers interest in events for userID. The returned cancel
// function unregisters and closes the channel; it is safe to call twice.
func (h *Hub) Subscribe(userID string) (<-chan Event, func()) {
	s := &subscriber{ch: make(chan Event, subscriberBuffer)}

	h.mu.Lock()
	if h.subs[userID] == nil {
		h.subs[userID] = make(map[*subscriber]struct{})
	}
	h.subs[userID][s] = struct{}{}
	h.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs[userID], s)
			if len(h.subs[userID]) == 0 {
				delete(h.subs, userID)
			}
			h.mu.Unlock()
			close(s.ch)
		})
	}
	return s.ch, cancel
}

// Publish delivers ev to local subscribers.
func (h *Hub) Publish(_ context.Context, ev Event) error {
	h.Deliver(ev)
	return nil
}

// Deliver fans ev out to the subscribers of ev.UserID.
func (h *Hub) Deliver(ev Event) {
	if ev.At.IsZero() {
		ev.At = time.Now().UTC()
	}

	h.mu.RLock()
	defer h.mu.RUnlock()
	for s := range h.subs[ev.UserID] {
		select {
		case s.ch <- ev:
		default:
		}
	}
}

// subscribers reports how many subscriptions exist for userID.
func (h *Hub) subscribers(userID string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs[userID])
}
