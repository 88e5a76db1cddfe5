package ws

import (
	"time"

	"github.com/unichat/internal/notify"
)

// Inbound frame types. Outbound frames are notify.Event values.
const (
	EventUserOnline         notify.EventType = "user-online"
	EventMarkRead           notify.EventType = "mark-read"
	EventMessageReadReceipt notify.EventType = "message-read-receipt"
)

// IncomingMessage is what the client sends: {"type": ..., "payload": {...}}.
// Fields may also sit at the top level of the frame.
type IncomingMessage struct {
	Type      notify.EventType
	ChatID    string
	MessageID string
}

// Options tunes connection limits and timeouts. Zero values use the defaults.
type Options struct {
	MaxConns       int
	SendBufferSize int
	WriteWait      time.Duration
	PongWait       time.Duration
	MaxMessageSize int64
}

const (
	defaultMaxConns       = 10000
	defaultSendBufferSize = 256
	defaultWriteWait      = 10 * time.Second
	defaultPongWait       = 60 * time.Second
	defaultMaxMessageSize = 4096
)

func (o Options) withDefaults() Options {
	if o.MaxConns <= 0 {
		o.MaxConns = defaultMaxConns
	}
	if o.SendBufferSize <= 0 {
		o.SendBufferSize = defaultSendBufferSize
	}
	if o.WriteWait <= 0 {
		o.WriteWait = defaultWriteWait
	}
	if o.PongWait <= 0 {
		o.PongWait = defaultPongWait
	}
	if o.MaxMessageSize <= 0 {
		o.MaxMessageSize = defaultMaxMessageSize
	}
	return o
}

func errorEvent(msg string) notify.Event {
	return notify.Event{Type: notify.EventError, Payload: notify.ErrorPayload{Error: msg}}
}
