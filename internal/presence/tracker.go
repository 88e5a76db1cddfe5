// Package presence tracks which user owns which live connection.
// It is in-memory only: after a restart everyone is offline.
package presence

import (
	"sync"

	"github.com/unichat/internal/notify"
)

// Handle is one live connection. Send must not block.
type Handle interface {
	Send(ev notify.Event) bool
}

// Tracker holds at most one handle per user. A newer MarkOnline for the same user
// replaces the older handle, which stays attached but no longer receives that user's events.
type Tracker struct {
	mu       sync.RWMutex
	conns    map[Handle]struct{}
	byUser   map[string]Handle
	byHandle map[Handle]string
}

func NewTracker() *Tracker {
	return &Tracker{
		conns:    make(map[Handle]struct{}),
		byUser:   make(map[string]Handle),
		byHandle: make(map[Handle]string),
	}
}

// Attach registers a connection that receives broadcasts even before it is mapped to a user.
func (t *Tracker) Attach(h Handle) {
	t.mu.Lock()
	t.conns[h] = struct{}{}
	t.mu.Unlock()
}

// Detach forgets h and marks its user offline if h was the current handle.
func (t *Tracker) Detach(h Handle) {
	t.MarkOffline(h)
	t.mu.Lock()
	delete(t.conns, h)
	t.mu.Unlock()
}

// MarkOnline maps userID to h and broadcasts user-status online.
func (t *Tracker) MarkOnline(userID string, h Handle) {
	t.mu.Lock()
	t.conns[h] = struct{}{}
	if prevUser, ok := t.byHandle[h]; ok && prevUser != userID && t.byUser[prevUser] == h {
		delete(t.byUser, prevUser)
	}
	if prev, ok := t.byUser[userID]; ok && prev != h {
		delete(t.byHandle, prev)
	}
	t.byUser[userID] = h
	t.byHandle[h] = userID
	t.mu.Unlock()

	t.Broadcast(notify.Event{Type: notify.EventUserStatus, Payload: notify.UserStatusPayload{RegNumber: userID, Online: true}})
}

// MarkOffline removes whichever user maps to h and broadcasts user-status offline.
// It reports the user that went offline, if any.
func (t *Tracker) MarkOffline(h Handle) (string, bool) {
	t.mu.Lock()
	userID, ok := t.byHandle[h]
	if !ok {
		t.mu.Unlock()
		return "", false
	}
	delete(t.byHandle, h)
	current := t.byUser[userID] == h
	if current {
		delete(t.byUser, userID)
	}
	t.mu.Unlock()

	if !current {
		return "", false
	}
	t.Broadcast(notify.Event{Type: notify.EventUserStatus, Payload: notify.UserStatusPayload{RegNumber: userID, Online: false}})
	return userID, true
}

func (t *Tracker) Lookup(userID string) (Handle, bool) {
	t.mu.RLock()
	defer t.mu.RUnlock()
	h, ok := t.byUser[userID]
	return h, ok
}

// Online returns the ids of every present user, in no particular order.
func (t *Tracker) Online() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]string, 0, len(t.byUser))
	for id := range t.byUser {
		out = append(out, id)
	}
	return out
}

// Connections is the number of attached handles.
func (t *Tracker) Connections() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.conns)
}

// Broadcast sends ev to every attached handle. Sends happen outside the lock.
func (t *Tracker) Broadcast(ev notify.Event) {
	t.mu.RLock()
	targets := make([]Handle, 0, len(t.conns))
	for h := range t.conns {
		targets = append(targets, h)
	}
	t.mu.RUnlock()

	for _, h := range targets {
		h.Send(ev)
	}
}

// SendTo makes the Tracker the push Notifier.
func (t *Tracker) SendTo(userID string, ev notify.Event) bool {
	h, ok := t.Lookup(userID)
	if !ok {
		return false
	}
	return h.Send(ev)
}

func (t *Tracker) IsOnline(userID string) bool {
	_, ok := t.Lookup(userID)
	return ok
}

var _ notify.Notifier = (*Tracker)(nil)
