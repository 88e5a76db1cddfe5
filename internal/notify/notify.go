// Package notify defines the push events and the Notifier the delivery path talks to.
package notify

import "time"

type EventType string

const (
	EventUserStatus       EventType = "user-status"
	EventReceiveMessage   EventType = "receive-message"
	EventMessageDelivered EventType = "message-delivered"
	EventMessageRead      EventType = "message-read"
	EventTyping           EventType = "typing"
	EventStopTyping       EventType = "stop-typing"
	EventError            EventType = "error"
)

// Event is one push frame: {"type": ..., "payload": ...}.
type Event struct {
	Type    EventType `json:"type"`
	Payload any       `json:"payload"`
}

// UserStatusPayload is broadcast on every online/offline change.
type UserStatusPayload struct {
	RegNumber string `json:"regNumber"`
	Online    bool   `json:"online"`
}

// MessageRefPayload points at one message (message-delivered).
type MessageRefPayload struct {
	MessageID string `json:"messageId"`
	ChatID    string `json:"chatId"`
}

// MessageReadPayload is sent to the original sender once the receiver read a message.
type MessageReadPayload struct {
	MessageID string    `json:"messageId"`
	ChatID    string    `json:"chatId"`
	ReadAt    time.Time `json:"readAt"`
}

// TypingPayload is relayed from sender to receiver.
type TypingPayload struct {
	ChatID   string `json:"chatId"`
	Sender   string `json:"sender"`
	Receiver string `json:"receiver,omitempty"`
}

type ErrorPayload struct {
	Error string `json:"error"`
}

// Notifier pushes events to connected users.
type Notifier interface {
	// SendTo delivers ev to userID's live connection and reports whether one existed.
	SendTo(userID string, ev Event) bool
	IsOnline(userID string) bool
}

// Nop is the poll-only Notifier: nobody is ever reachable and clients catch up by polling.
type Nop struct{}

func (Nop) SendTo(string, Event) bool { return false }
func (Nop) IsOnline(string) bool      { return false }
