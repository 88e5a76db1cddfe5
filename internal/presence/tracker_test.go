package presence

import (
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unichat/internal/notify"
)

type fakeHandle struct {
	name string
	mu   sync.Mutex
	got  []notify.Event
}

func (f *fakeHandle) Send(ev notify.Event) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.got = append(f.got, ev)
	return true
}

func (f *fakeHandle) statuses() []notify.UserStatusPayload {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []notify.UserStatusPayload
	for _, ev := range f.got {
		if ev.Type == notify.EventUserStatus {
			out = append(out, ev.Payload.(notify.UserStatusPayload))
		}
	}
	return out
}

func TestSecondConnectReplacesFirst(t *testing.T) {
	tr := NewTracker()
	h1, h2 := &fakeHandle{name: "h1"}, &fakeHandle{name: "h2"}
	tr.MarkOnline("A", h1)
	tr.MarkOnline("A", h2)

	got, ok := tr.Lookup("A")
	require.True(t, ok)
	assert.Same(t, h2, got)
	assert.Equal(t, []string{"A"}, tr.Online())

	// the replaced handle no longer owns A
	_, wasOnline := tr.MarkOffline(h1)
	assert.False(t, wasOnline)
	assert.True(t, tr.IsOnline("A"))
}

func TestMarkOfflineBroadcasts(t *testing.T) {
	tr := NewTracker()
	watcher := &fakeHandle{}
	tr.Attach(watcher)
	h := &fakeHandle{}
	tr.MarkOnline("B", h)

	id, ok := tr.MarkOffline(h)
	require.True(t, ok)
	assert.Equal(t, "B", id)
	assert.False(t, tr.IsOnline("B"))

	assert.Equal(t, []notify.UserStatusPayload{
		{RegNumber: "B", Online: true},
		{RegNumber: "B", Online: false},
	}, watcher.statuses())
}

func TestDetach(t *testing.T) {
	tr := NewTracker()
	h := &fakeHandle{}
	tr.MarkOnline("C", h)
	require.Equal(t, 1, tr.Connections())

	tr.Detach(h)
	assert.Equal(t, 0, tr.Connections())
	assert.False(t, tr.IsOnline("C"))

	// detaching twice is harmless
	tr.Detach(h)
}

func TestHandleSwitchesUser(t *testing.T) {
	tr := NewTracker()
	h := &fakeHandle{}
	tr.MarkOnline("A", h)
	tr.MarkOnline("B", h)
	assert.False(t, tr.IsOnline("A"))
	assert.True(t, tr.IsOnline("B"))
}

func TestSendTo(t *testing.T) {
	tr := NewTracker()
	h := &fakeHandle{}
	tr.MarkOnline("A", h)

	ev := notify.Event{Type: notify.EventReceiveMessage, Payload: "x"}
	assert.True(t, tr.SendTo("A", ev))
	assert.False(t, tr.SendTo("nobody", ev))

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, ev, h.got[len(h.got)-1])
}

func TestNopNotifier(t *testing.T) {
	var n notify.Notifier = notify.Nop{}
	assert.False(t, n.SendTo("A", notify.Event{}))
	assert.False(t, n.IsOnline("A"))
}
