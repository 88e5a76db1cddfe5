package ws

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/valyala/fastjson"

	"github.com/unichat/internal/logger"
	"github.com/unichat/internal/notify"
	"github.com/unichat/internal/presence"
	"github.com/unichat/internal/service"
)

const handleTimeout = 5 * time.Second

// Hub owns the set of live clients. Register and unregister go through Run's loop;
// user mapping and fan-out live in the presence Tracker.
type Hub struct {
	mu       sync.Mutex
	clients  map[*Client]struct{}
	opts     Options
	tracker  *presence.Tracker
	delivery *service.DeliveryService
	parsers  fastjson.ParserPool

	register   chan *Client
	unregister chan *Client
	done       chan struct{}
}

func NewHub(tracker *presence.Tracker, delivery *service.DeliveryService, opts Options) *Hub {
	return &Hub{
		clients:    make(map[*Client]struct{}),
		opts:       opts.withDefaults(),
		tracker:    tracker,
		delivery:   delivery,
		register:   make(chan *Client, 64),
		unregister: make(chan *Client, 64),
		done:       make(chan struct{}),
	}
}

func (h *Hub) Run(ctx context.Context) {
	defer close(h.done)
	for {
		select {
		case <-ctx.Done():
			h.shutdown()
			return
		case c := <-h.register:
			h.addClient(c)
		case c := <-h.unregister:
			h.removeClient(c)
		}
	}
}

// Done is closed once Run has returned and every client is gone.
func (h *Hub) Done() <-chan struct{} { return h.done }

func (h *Hub) shutdown() {
	h.mu.Lock()
	all := make([]*Client, 0, len(h.clients))
	for c := range h.clients {
		all = append(all, c)
	}
	h.clients = make(map[*Client]struct{})
	h.mu.Unlock()

	// no I/O under the lock
	for _, c := range all {
		h.tracker.Detach(c)
		c.Close()
	}
	for _, c := range all {
		c.Wait()
	}
}

func (h *Hub) addClient(c *Client) {
	h.mu.Lock()
	if len(h.clients) >= h.opts.MaxConns {
		h.mu.Unlock()
		logger.Errorf("ws connection limit reached (%d), rejecting user=%s", h.opts.MaxConns, c.userID)
		c.Close()
		return
	}
	h.clients[c] = struct{}{}
	h.mu.Unlock()

	h.tracker.Attach(c)
	h.tracker.MarkOnline(c.userID, c)
	logger.Debugf("ws connected user=%s", c.userID)
}

func (h *Hub) removeClient(c *Client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; !ok {
		h.mu.Unlock()
		return
	}
	delete(h.clients, c)
	h.mu.Unlock()

	h.tracker.Detach(c)
	c.Close()
	logger.Debugf("ws disconnected user=%s", c.userID)
}

// parse decodes one inbound frame. Values are copied out before the parser is returned.
func (h *Hub) parse(raw []byte) (IncomingMessage, error) {
	p := h.parsers.Get()
	defer h.parsers.Put(p)

	v, err := p.ParseBytes(raw)
	if err != nil {
		return IncomingMessage{}, err
	}
	typ := v.GetStringBytes("type")
	if len(typ) == 0 {
		return IncomingMessage{}, errors.New("missing type")
	}
	body := v.Get("payload")
	if body == nil || body.Type() != fastjson.TypeObject {
		body = v
	}
	return IncomingMessage{
		Type:      notify.EventType(typ),
		ChatID:    string(body.GetStringBytes("chatId")),
		MessageID: string(body.GetStringBytes("messageId")),
	}, nil
}

// HandleMessage dispatches one inbound frame. The sender is always the connection's user.
func (h *Hub) HandleMessage(ctx context.Context, c *Client, msg IncomingMessage) {
	ctx, cancel := context.WithTimeout(ctx, handleTimeout)
	defer cancel()

	var err error
	switch msg.Type {
	case EventUserOnline:
		h.tracker.MarkOnline(c.userID, c)
	case notify.EventTyping, notify.EventStopTyping:
		err = h.delivery.RelayTyping(ctx, msg.ChatID, c.userID, msg.Type == notify.EventTyping)
	case EventMarkRead:
		_, err = h.delivery.MarkRead(ctx, msg.ChatID, c.userID)
	case EventMessageReadReceipt:
		err = h.delivery.MarkMessageRead(ctx, msg.MessageID, c.userID)
	default:
		c.Send(errorEvent("unknown event type"))
		return
	}
	if err != nil {
		var se *service.Error
		if errors.As(err, &se) {
			c.Send(errorEvent(se.Msg))
			return
		}
		logger.Errorf("ws %s user=%s: %v", msg.Type, c.userID, err)
		c.Send(errorEvent(fmt.Sprintf("%s failed", msg.Type)))
	}
}

func (h *Hub) Register(c *Client) {
	select {
	case h.register <- c:
	case <-h.done:
		c.Close()
	}
}

func (h *Hub) Unregister(c *Client) {
	select {
	case h.unregister <- c:
	case <-h.done:
	}
}

var _ presence.Handle = (*Client)(nil)
