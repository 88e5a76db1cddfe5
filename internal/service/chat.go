package service

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/unichat/internal/logger"
	"github.com/unichat/internal/model"
	"github.com/unichat/internal/roster"
	"github.com/unichat/internal/storage"
)

// ChatService owns one-to-one chats. A pair of users has at most one chat.
type ChatService struct {
	store *storage.Store
	dir   *roster.Directory

	// createMu serializes find-or-create so a pair never gets two chats.
	createMu sync.Mutex
}

func NewChatService(store *storage.Store, dir *roster.Directory) *ChatService {
	return &ChatService{store: store, dir: dir}
}

// Create returns the chat for the pair, creating it if needed. The requester must be one of
// the two participants.
func (s *ChatService) Create(ctx context.Context, requester string, participants []string) (model.Chat, error) {
	if len(participants) != 2 || participants[0] == "" || participants[1] == "" || participants[0] == participants[1] {
		return model.Chat{}, fail(ErrInvalidInput, "Exactly two distinct participants are required")
	}
	if participants[0] != requester && participants[1] != requester {
		return model.Chat{}, fail(ErrForbidden, "You can only create chats you take part in")
	}
	other := participants[0]
	if other == requester {
		other = participants[1]
	}
	return s.FindOrCreate(ctx, requester, other)
}

// FindOrCreate returns the chat between a and b.
func (s *ChatService) FindOrCreate(ctx context.Context, a, b string) (model.Chat, error) {
	defer logger.DeferLogDuration("chat.FindOrCreate", time.Now())()
	if a == b {
		return model.Chat{}, fail(ErrInvalidInput, "Cannot chat with yourself")
	}
	if _, ok := s.dir.Lookup(b); !ok {
		return model.Chat{}, fail(ErrNotFound, "User not found")
	}

	s.createMu.Lock()
	defer s.createMu.Unlock()

	existing, err := s.store.Chats.List(ctx, func(c model.Chat) bool { return c.IsPair(a, b) })
	if err != nil {
		return model.Chat{}, fmt.Errorf("chat.FindOrCreate: %w", err)
	}
	if len(existing) > 0 {
		return existing[0], nil
	}

	ts := now()
	chat := model.Chat{
		ID:           newID("chat"),
		Participants: []string{a, b},
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := s.store.Chats.Append(ctx, chat); err != nil {
		return model.Chat{}, fmt.Errorf("chat.FindOrCreate: %w", err)
	}
	logger.Infof("chat: created %s for %s and %s", chat.ID, a, b)
	return chat, nil
}

// List returns userID's chats, most recently active first.
func (s *ChatService) List(ctx context.Context, userID string) ([]model.ChatView, error) {
	defer logger.DeferLogDuration("chat.List", time.Now())()
	chats, err := s.store.Chats.List(ctx, func(c model.Chat) bool { return c.HasParticipant(userID) })
	if err != nil {
		return nil, fmt.Errorf("chat.List: %w", err)
	}
	unread, err := s.store.Messages.List(ctx, func(m model.Message) bool {
		return m.Receiver == userID && !m.Read
	})
	if err != nil {
		return nil, fmt.Errorf("chat.List unread: %w", err)
	}
	counts := make(map[string]int, len(chats))
	for _, m := range unread {
		counts[m.ChatID]++
	}

	out := make([]model.ChatView, 0, len(chats))
	for _, c := range chats {
		other := c.Other(userID)
		view := model.ChatView{
			ChatID:       c.ID,
			Participant:  other,
			Participants: c.Participants,
			ParticipantData: model.ParticipantData{
				RegNumber: other,
				Name:      s.dir.Name(other),
			},
			UnreadCount: counts[c.ID],
			UpdatedAt:   c.UpdatedAt,
		}
		if p, ok := s.dir.Lookup(other); ok {
			view.ParticipantData.Branch = p.Branch
		}
		if c.LastMessage != nil {
			view.LastMessage = &model.LastMessageView{
				Text:       c.LastMessage.Text,
				Sender:     c.LastMessage.Sender,
				SenderName: s.dir.Name(c.LastMessage.Sender),
				Timestamp:  c.LastMessage.Timestamp,
			}
		}
		out = append(out, view)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].UpdatedAt.After(out[j].UpdatedAt) })
	return out, nil
}

// Messages returns the chat history in creation order. Participants only.
func (s *ChatService) Messages(ctx context.Context, chatID, userID string) ([]model.MessageView, error) {
	defer logger.DeferLogDuration("chat.Messages", time.Now())()
	chat, err := s.store.Chats.Get(ctx, chatID)
	if errors.Is(err, storage.ErrNotFound) {
		return nil, fail(ErrNotFound, "Chat not found")
	}
	if err != nil {
		return nil, fmt.Errorf("chat.Messages: %w", err)
	}
	if !chat.HasParticipant(userID) {
		return nil, fail(ErrForbidden, "Not a participant of this chat")
	}
	msgs, err := s.store.Messages.List(ctx, func(m model.Message) bool { return m.ChatID == chatID })
	if err != nil {
		return nil, fmt.Errorf("chat.Messages: %w", err)
	}
	return views(msgs, nil), nil
}

// views converts messages to wire views; name, when set, fills senderName.
func views(msgs []model.Message, name func(string) string) []model.MessageView {
	out := make([]model.MessageView, 0, len(msgs))
	for _, m := range msgs {
		senderName := ""
		if name != nil {
			senderName = name(m.Sender)
		}
		out = append(out, m.View(senderName))
	}
	return out
}
