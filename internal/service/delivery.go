package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/unichat/internal/logger"
	"github.com/unichat/internal/model"
	"github.com/unichat/internal/notify"
	"github.com/unichat/internal/roster"
	"github.com/unichat/internal/storage"
)

// ParentKind restricts which parent a send may target.
type ParentKind int

const (
	ParentAny ParentKind = iota
	ParentChat
	ParentGroup
)

// asyncTimeout bounds the background delivered-flag update.
const asyncTimeout = 5 * time.Second

type SendRequest struct {
	ParentID string
	Kind     ParentKind
	Sender   string
	// Receiver is optional for chats (defaults to the other participant) and ignored for groups.
	// With an empty ParentID it names the peer of a chat created on the fly.
	Receiver string
	Text     string
	FileURL  string
	FileName string
	FileType string
	// FileData is an inline base64 payload or data: URL, stored as FileURL.
	FileData string
}

// DeliveryService persists messages, updates parent summaries and pushes events.
type DeliveryService struct {
	store    *storage.Store
	dir      *roster.Directory
	notifier notify.Notifier
	chats    *ChatService

	mu *sync.Mutex
	wg sync.WaitGroup
}

// NewDeliveryService builds the delivery path. parentMu is shared with GroupService.
func NewDeliveryService(store *storage.Store, dir *roster.Directory, notifier notify.Notifier, chats *ChatService, parentMu *sync.Mutex) *DeliveryService {
	if notifier == nil {
		notifier = notify.Nop{}
	}
	return &DeliveryService{
		store:    store,
		dir:      dir,
		notifier: notifier,
		chats:    chats,
		mu:       parentMu,
	}
}

// parent is the chat or group a message belongs to.
type parent struct {
	chat  *model.Chat
	group *model.Group
}

func (p parent) hasMember(userID string) bool {
	if p.chat != nil {
		return p.chat.HasParticipant(userID)
	}
	return p.group.HasMember(userID)
}

func (p parent) members() []string {
	if p.chat != nil {
		return p.chat.Participants
	}
	return p.group.Members
}

func (s *DeliveryService) resolve(ctx context.Context, id string, kind ParentKind) (parent, error) {
	if kind != ParentGroup {
		chat, err := s.store.Chats.Get(ctx, id)
		if err == nil {
			return parent{chat: &chat}, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return parent{}, fmt.Errorf("delivery.resolve chat: %w", err)
		}
	}
	if kind != ParentChat {
		group, err := s.store.Groups.Get(ctx, id)
		if err == nil {
			return parent{group: &group}, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return parent{}, fmt.Errorf("delivery.resolve group: %w", err)
		}
	}
	switch kind {
	case ParentGroup:
		return parent{}, fail(ErrNotFound, "Group not found")
	default:
		return parent{}, fail(ErrNotFound, "Chat not found")
	}
}

// Send stores a message and pushes it to whoever is online. The stored record is returned
// whether or not any push succeeded.
func (s *DeliveryService) Send(ctx context.Context, req SendRequest) (model.Message, error) {
	defer logger.DeferLogDuration("delivery.Send", time.Now())()

	fileURL := req.FileURL
	if fileURL == "" && req.FileData != "" {
		fileURL = dataURL(req.FileData, req.FileType)
	}
	if strings.TrimSpace(req.Text) == "" && fileURL == "" {
		return model.Message{}, fail(ErrInvalidInput, "Message text or file is required")
	}

	if req.ParentID == "" {
		if req.Kind == ParentGroup || req.Receiver == "" {
			return model.Message{}, fail(ErrInvalidInput, "chatId or receiver is required")
		}
		chat, err := s.chats.FindOrCreate(ctx, req.Sender, req.Receiver)
		if err != nil {
			return model.Message{}, err
		}
		req.ParentID = chat.ID
	}

	s.mu.Lock()
	msg, p, err := s.persist(ctx, req, fileURL)
	s.mu.Unlock()
	if err != nil {
		return model.Message{}, err
	}

	if p.group != nil {
		ev := notify.Event{Type: notify.EventReceiveMessage, Payload: msg.View(s.dir.Name(msg.Sender))}
		for _, member := range p.members() {
			if member != msg.Sender {
				s.notifier.SendTo(member, ev)
			}
		}
		return msg, nil
	}

	ev := notify.Event{Type: notify.EventReceiveMessage, Payload: msg.View("")}
	if s.notifier.SendTo(msg.Receiver, ev) {
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			ctx, cancel := context.WithTimeout(context.Background(), asyncTimeout)
			defer cancel()
			if err := s.markDelivered(ctx, msg.ID); err != nil {
				logger.Errorf("delivery: mark delivered %s: %v", msg.ID, err)
			}
		}()
	}
	return msg, nil
}

// persist runs under s.mu: membership check, append, summary update.
func (s *DeliveryService) persist(ctx context.Context, req SendRequest, fileURL string) (model.Message, parent, error) {
	p, err := s.resolve(ctx, req.ParentID, req.Kind)
	if err != nil {
		return model.Message{}, parent{}, err
	}
	if !p.hasMember(req.Sender) {
		return model.Message{}, parent{}, fail(ErrForbidden, "Not a member of this conversation")
	}

	msg := model.Message{
		ID:        newID("msg"),
		ChatID:    req.ParentID,
		Sender:    req.Sender,
		Text:      req.Text,
		FileURL:   fileURL,
		FileName:  req.FileName,
		FileType:  req.FileType,
		Timestamp: now(),
	}
	if p.chat != nil {
		other := p.chat.Other(req.Sender)
		if req.Receiver != "" && req.Receiver != other {
			return model.Message{}, parent{}, fail(ErrInvalidInput, "Receiver is not the other participant")
		}
		msg.Receiver = other
	} else {
		// group messages have no per-member receipts
		msg.Receiver = model.GroupReceiver
		msg.Delivered = true
	}

	if err := s.store.Messages.Append(ctx, msg); err != nil {
		return model.Message{}, parent{}, fmt.Errorf("delivery.Send append: %w", err)
	}

	summary := msg.Summary()
	if p.chat != nil {
		p.chat.LastMessage = summary
		p.chat.UpdatedAt = msg.Timestamp
		err = s.store.Chats.Put(ctx, *p.chat)
	} else {
		p.group.LastMessage = summary
		p.group.UpdatedAt = msg.Timestamp
		err = s.store.Groups.Put(ctx, *p.group)
	}
	if err != nil {
		return model.Message{}, parent{}, fmt.Errorf("delivery.Send summary: %w", err)
	}
	return msg, p, nil
}

// MarkDelivered sets the delivered flag of one message. Only its receiver may call it.
func (s *DeliveryService) MarkDelivered(ctx context.Context, messageID, actor string) error {
	m, err := s.receivedBy(ctx, messageID, actor)
	if err != nil || m.IsGroup() {
		return err
	}
	return s.markDelivered(ctx, messageID)
}

func (s *DeliveryService) markDelivered(ctx context.Context, messageID string) error {
	s.mu.Lock()
	m, err := s.store.Messages.Get(ctx, messageID)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("delivery.markDelivered: %w", err)
	}
	if m.Delivered {
		s.mu.Unlock()
		return nil
	}
	m.Delivered = true
	err = s.store.Messages.Put(ctx, m)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delivery.markDelivered: %w", err)
	}

	s.notifier.SendTo(m.Sender, notify.Event{
		Type:    notify.EventMessageDelivered,
		Payload: notify.MessageRefPayload{MessageID: m.ID, ChatID: m.ChatID},
	})
	return nil
}

// MarkRead marks every unread message addressed to reader in the parent as read and tells
// each sender. In a group, where messages carry one shared read flag, it marks the unread
// messages of the other members. Calling it again changes nothing.
func (s *DeliveryService) MarkRead(ctx context.Context, parentID, reader string) (int, error) {
	defer logger.DeferLogDuration("delivery.MarkRead", time.Now())()
	if parentID == "" {
		return 0, fail(ErrInvalidInput, "chatId is required")
	}
	p, err := s.resolve(ctx, parentID, ParentAny)
	if err != nil {
		return 0, err
	}
	if !p.hasMember(reader) {
		return 0, fail(ErrForbidden, "Not a member of this conversation")
	}

	match := func(m model.Message) bool {
		return m.ChatID == parentID && m.Receiver == reader && !m.Read
	}
	if p.group != nil {
		match = func(m model.Message) bool {
			return m.ChatID == parentID && m.IsGroup() && m.Sender != reader && !m.Read
		}
	}

	s.mu.Lock()
	unread, err := s.store.Messages.List(ctx, match)
	if err != nil {
		s.mu.Unlock()
		return 0, fmt.Errorf("delivery.MarkRead: %w", err)
	}
	ts := now()
	updated := make([]model.Message, 0, len(unread))
	for _, m := range unread {
		m.Read = true
		m.ReadAt = &ts
		m.Delivered = true
		if err := s.store.Messages.Put(ctx, m); err != nil {
			s.mu.Unlock()
			return len(updated), fmt.Errorf("delivery.MarkRead: %w", err)
		}
		updated = append(updated, m)
	}
	s.mu.Unlock()

	for _, m := range updated {
		s.notifyRead(m)
	}
	return len(updated), nil
}

// MarkMessageRead marks one message read. Only its receiver may call it; for a group message
// any member but the sender may, and the first one sets the shared flag.
func (s *DeliveryService) MarkMessageRead(ctx context.Context, messageID, reader string) error {
	m, err := s.receivedBy(ctx, messageID, reader)
	if err != nil {
		return err
	}
	if m.IsGroup() && m.Sender == reader {
		return nil
	}

	s.mu.Lock()
	m, err = s.store.Messages.Get(ctx, messageID)
	if err != nil || m.Read {
		s.mu.Unlock()
		return err
	}
	ts := now()
	m.Read, m.ReadAt, m.Delivered = true, &ts, true
	err = s.store.Messages.Put(ctx, m)
	s.mu.Unlock()
	if err != nil {
		return fmt.Errorf("delivery.MarkMessageRead: %w", err)
	}
	s.notifyRead(m)
	return nil
}

func (s *DeliveryService) notifyRead(m model.Message) {
	s.notifier.SendTo(m.Sender, notify.Event{
		Type:    notify.EventMessageRead,
		Payload: notify.MessageReadPayload{MessageID: m.ID, ChatID: m.ChatID, ReadAt: *m.ReadAt},
	})
}

// receivedBy loads a message and checks that actor is its receiver (or a member, for groups).
func (s *DeliveryService) receivedBy(ctx context.Context, messageID, actor string) (model.Message, error) {
	m, err := s.store.Messages.Get(ctx, messageID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Message{}, fail(ErrNotFound, "Message not found")
	}
	if err != nil {
		return model.Message{}, fmt.Errorf("delivery.receivedBy: %w", err)
	}
	if m.IsGroup() {
		p, err := s.resolve(ctx, m.ChatID, ParentGroup)
		if err != nil {
			return model.Message{}, err
		}
		if !p.hasMember(actor) {
			return model.Message{}, fail(ErrForbidden, "Not a member of this group")
		}
		return m, nil
	}
	if m.Receiver != actor {
		return model.Message{}, fail(ErrForbidden, "Only the receiver can acknowledge a message")
	}
	return m, nil
}

// RelayTyping forwards a typing indicator to the other side of a chat, or to every other
// member of a group. Non-members are ignored.
func (s *DeliveryService) RelayTyping(ctx context.Context, parentID, sender string, typing bool) error {
	p, err := s.resolve(ctx, parentID, ParentAny)
	if err != nil {
		return err
	}
	if !p.hasMember(sender) {
		return fail(ErrForbidden, "Not a member of this conversation")
	}
	evType := notify.EventStopTyping
	if typing {
		evType = notify.EventTyping
	}
	for _, member := range p.members() {
		if member == sender {
			continue
		}
		s.notifier.SendTo(member, notify.Event{
			Type:    evType,
			Payload: notify.TypingPayload{ChatID: parentID, Sender: sender, Receiver: member},
		})
	}
	return nil
}

// Wait blocks until background delivered-flag updates finish.
func (s *DeliveryService) Wait() {
	s.wg.Wait()
}

func dataURL(data, mime string) string {
	if strings.HasPrefix(data, "data:") {
		return data
	}
	if mime == "" {
		mime = "application/octet-stream"
	}
	return "data:" + mime + ";base64," + data
}
