package service

import (
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/unichat/internal/auth"
	"github.com/unichat/internal/model"
	"github.com/unichat/internal/notify"
	"github.com/unichat/internal/roster"
	"github.com/unichat/internal/storage"
	"github.com/unichat/internal/storage/memory"
)

const (
	admin = "12309972"
	alice = "11111111"
	bob   = "22222222"
	carol = "33333333"
)

// recorder is a Notifier with a switchable set of online users.
type recorder struct {
	mu     sync.Mutex
	online map[string]bool
	events map[string][]notify.Event
}

func newRecorder(online ...string) *recorder {
	r := &recorder{online: make(map[string]bool), events: make(map[string][]notify.Event)}
	for _, id := range online {
		r.online[id] = true
	}
	return r
}

func (r *recorder) SendTo(userID string, ev notify.Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.online[userID] {
		return false
	}
	r.events[userID] = append(r.events[userID], ev)
	return true
}

func (r *recorder) IsOnline(userID string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.online[userID]
}

func (r *recorder) of(userID string, typ notify.EventType) []notify.Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []notify.Event
	for _, ev := range r.events[userID] {
		if ev.Type == typ {
			out = append(out, ev)
		}
	}
	return out
}

type fixture struct {
	parentMu *sync.Mutex
	store    *storage.Store
	dir      *roster.Directory
	notifier *recorder
	auth     *AuthService
	chats    *ChatService
	groups   *GroupService
	delivery *DeliveryService
	ann      *AnnouncementService
}

func newFixture(t *testing.T, online ...string) *fixture {
	t.Helper()
	useClock(t)
	store := memory.New()
	dir := roster.New(
		model.Profile{RegNumber: admin, Name: "Dean Office", Branch: "ADMIN"},
		model.Profile{RegNumber: alice, Name: "Alice", Branch: "CSE"},
		model.Profile{RegNumber: bob, Name: "Bob", Branch: "ECE"},
		model.Profile{RegNumber: carol, Name: "Carol", Branch: "ME"},
	)
	rec := newRecorder(online...)
	chats := NewChatService(store, dir)
	parentMu := &sync.Mutex{}
	groups := NewGroupService(store, dir, admin, parentMu)
	return &fixture{
		parentMu: parentMu,
		store:    store,
		dir:      dir,
		notifier: rec,
		auth:     NewAuthService(store, dir, auth.NewTokens("test-secret", time.Hour), admin, bcrypt.MinCost),
		chats:    chats,
		groups:   groups,
		delivery: NewDeliveryService(store, dir, rec, chats, parentMu),
		ann:      NewAnnouncementService(store, dir, admin),
	}
}

// useClock makes now() advance one second per call.
func useClock(t *testing.T) {
	t.Helper()
	var mu sync.Mutex
	cur := time.Date(2025, 1, 1, 9, 0, 0, 0, time.UTC)
	prev := now
	now = func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		cur = cur.Add(time.Second)
		return cur
	}
	t.Cleanup(func() { now = prev })
}
