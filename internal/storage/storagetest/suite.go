// Package storagetest is the conformance suite every storage backend runs.
package storagetest

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/unichat/internal/model"
	"github.com/unichat/internal/storage"
)

// Opener returns a fresh, empty store for one subtest.
type Opener func(t *testing.T) *storage.Store

var base = time.Date(2025, 3, 1, 10, 0, 0, 0, time.UTC)

// Run executes the full contract against the backend produced by open.
func Run(t *testing.T, open Opener) {
	t.Run("GetMissing", func(t *testing.T) { testGetMissing(t, open(t)) })
	t.Run("AppendGet", func(t *testing.T) { testAppendGet(t, open(t)) })
	t.Run("AppendConflict", func(t *testing.T) { testAppendConflict(t, open(t)) })
	t.Run("ListOrderAndFilter", func(t *testing.T) { testListOrder(t, open(t)) })
	t.Run("PutUpsert", func(t *testing.T) { testPutUpsert(t, open(t)) })
	t.Run("AttachmentRoundTrip", func(t *testing.T) { testAttachment(t, open(t)) })
	t.Run("ChatAndGroupFields", func(t *testing.T) { testParents(t, open(t)) })
	t.Run("UsersAndAnnouncements", func(t *testing.T) { testUsersAnnouncements(t, open(t)) })
	t.Run("ConcurrentAppend", func(t *testing.T) { testConcurrentAppend(t, open(t)) })
	t.Run("TextRoundTrip", func(t *testing.T) { TextRoundTrip(t, open(t), nil) })
}

// Message builds a plain text message at base+offset seconds.
func Message(id, chatID, sender, receiver, text string, offset int) model.Message {
	return model.Message{
		ID:        id,
		ChatID:    chatID,
		Sender:    sender,
		Receiver:  receiver,
		Text:      text,
		Timestamp: base.Add(time.Duration(offset) * time.Second),
	}
}

// Norm drops time zone pointers so records read back from any backend compare equal.
func Norm(m model.Message) model.Message {
	m.Timestamp = m.Timestamp.UTC()
	if m.ReadAt != nil {
		r := m.ReadAt.UTC()
		m.ReadAt = &r
	}
	return m
}

func normSummary(s *model.Summary) *model.Summary {
	if s == nil {
		return nil
	}
	c := *s
	c.Timestamp = c.Timestamp.UTC()
	return &c
}

func testGetMissing(t *testing.T, s *storage.Store) {
	ctx := context.Background()
	_, err := s.Messages.Get(ctx, "nope")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.Users.Get(ctx, "nope")
	require.ErrorIs(t, err, storage.ErrNotFound)
	_, err = s.Groups.Get(ctx, "nope")
	require.ErrorIs(t, err, storage.ErrNotFound)
}

func testAppendGet(t *testing.T, s *storage.Store) {
	ctx := context.Background()
	m := Message("m1", "c1", "a", "b", "hello", 0)
	require.NoError(t, s.Messages.Append(ctx, m))

	got, err := s.Messages.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, Norm(m), Norm(got))
}

func testAppendConflict(t *testing.T, s *storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Messages.Append(ctx, Message("m1", "c1", "a", "b", "one", 0)))
	err := s.Messages.Append(ctx, Message("m1", "c1", "a", "b", "two", 1))
	require.ErrorIs(t, err, storage.ErrConflict)

	got, err := s.Messages.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, "one", got.Text)
}

func testListOrder(t *testing.T, s *storage.Store) {
	ctx := context.Background()
	ids := []string{"m3", "m1", "m2", "m5", "m4"}
	for i, id := range ids {
		chat := "c1"
		if i%2 == 1 {
			chat = "c2"
		}
		require.NoError(t, s.Messages.Append(ctx, Message(id, chat, "a", "b", id, i)))
	}

	all, err := s.Messages.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, len(ids))
	for i, m := range all {
		assert.Equal(t, ids[i], m.ID)
	}

	c1, err := s.Messages.List(ctx, func(m model.Message) bool { return m.ChatID == "c1" })
	require.NoError(t, err)
	require.Len(t, c1, 3)
	assert.Equal(t, []string{"m3", "m2", "m4"}, []string{c1[0].ID, c1[1].ID, c1[2].ID})

	none, err := s.Messages.List(ctx, func(model.Message) bool { return false })
	require.NoError(t, err)
	assert.Empty(t, none)
}

func testPutUpsert(t *testing.T, s *storage.Store) {
	ctx := context.Background()
	require.NoError(t, s.Messages.Append(ctx, Message("m1", "c1", "a", "b", "one", 0)))
	require.NoError(t, s.Messages.Append(ctx, Message("m2", "c1", "a", "b", "two", 1)))

	upd := Message("m1", "c1", "a", "b", "one", 0)
	readAt := base.Add(time.Minute)
	upd.Delivered, upd.Read, upd.ReadAt = true, true, &readAt
	require.NoError(t, s.Messages.Put(ctx, upd))
	require.NoError(t, s.Messages.Put(ctx, Message("m3", "c1", "a", "b", "three", 2)))

	all, err := s.Messages.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, all, 3)
	assert.Equal(t, []string{"m1", "m2", "m3"}, []string{all[0].ID, all[1].ID, all[2].ID})
	assert.Equal(t, Norm(upd), Norm(all[0]))
	assert.False(t, all[1].Read)
}

func testAttachment(t *testing.T, s *storage.Store) {
	ctx := context.Background()
	m := Message("m1", "c1", "a", "b", "see, \"this\"\nfile", 0)
	m.FileURL = "/uploads/4f1c.pdf"
	m.FileName = "notes, final | v2.pdf"
	m.FileType = "application/pdf"
	require.NoError(t, s.Messages.Append(ctx, m))

	bare := Message("m2", "c1", "a", "b", "", 1)
	bare.FileURL = "data:image/png;base64,iVBORw0KGgo="
	require.NoError(t, s.Messages.Append(ctx, bare))

	got, err := s.Messages.Get(ctx, "m1")
	require.NoError(t, err)
	assert.Equal(t, Norm(m), Norm(got))
	assert.True(t, got.HasAttachment())

	got, err = s.Messages.Get(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, Norm(bare), Norm(got))
	assert.Equal(t, model.DefaultAttachmentLabel, got.SummaryText())
}

func testParents(t *testing.T, s *storage.Store) {
	ctx := context.Background()
	chat := model.Chat{
		ID:           "c1",
		Participants: []string{"a", "b"},
		CreatedAt:    base,
		UpdatedAt:    base,
	}
	require.NoError(t, s.Chats.Append(ctx, chat))
	got, err := s.Chats.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Nil(t, got.LastMessage)
	assert.Equal(t, chat.Participants, got.Participants)

	chat.LastMessage = &model.Summary{Text: "hi, there", Sender: "a", Timestamp: base.Add(time.Second)}
	chat.UpdatedAt = base.Add(time.Second)
	require.NoError(t, s.Chats.Put(ctx, chat))
	got, err = s.Chats.Get(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, normSummary(chat.LastMessage), normSummary(got.LastMessage))
	assert.True(t, chat.UpdatedAt.Equal(got.UpdatedAt))

	group := model.Group{
		ID:           "g1",
		Name:         "CSE, section A",
		CreatedBy:    "admin",
		Members:      []string{"admin", "a", "b"},
		IsUniversity: true,
		CreatedAt:    base,
		UpdatedAt:    base,
	}
	require.NoError(t, s.Groups.Append(ctx, group))
	g, err := s.Groups.Get(ctx, "g1")
	require.NoError(t, err)
	assert.Equal(t, group.Name, g.Name)
	assert.Equal(t, group.Members, g.Members)
	assert.True(t, g.IsUniversity)
	assert.Nil(t, g.LastMessage)
}

func testUsersAnnouncements(t *testing.T, s *storage.Store) {
	ctx := context.Background()
	u := model.User{ID: "12345678", PasswordHash: "$2a$04$abc", CreatedAt: base}
	require.NoError(t, s.Users.Append(ctx, u))
	u.HasChangedPassword = true
	require.NoError(t, s.Users.Put(ctx, u))
	got, err := s.Users.Get(ctx, u.ID)
	require.NoError(t, err)
	assert.True(t, got.HasChangedPassword)
	assert.Equal(t, u.PasswordHash, got.PasswordHash)

	for i := 0; i < 3; i++ {
		require.NoError(t, s.Announcements.Append(ctx, model.Announcement{
			ID:              fmt.Sprintf("ann_%d", i),
			Text:            fmt.Sprintf("notice %d", i),
			AuthorName:      "Admin",
			AuthorRegNumber: "12309972",
			CreatedAt:       base.Add(time.Duration(i) * time.Hour),
		}))
	}
	list, err := s.Announcements.List(ctx, nil)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, "ann_2", list[2].ID)
}

func testConcurrentAppend(t *testing.T, s *storage.Store) {
	ctx := context.Background()
	const n = 20
	var wg sync.WaitGroup
	errs := make(chan error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			errs <- s.Messages.Append(ctx, Message(fmt.Sprintf("m%02d", i), "c1", "a", "b", "x", i))
		}(i)
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}
	all, err := s.Messages.List(ctx, nil)
	require.NoError(t, err)
	assert.Len(t, all, n)
}

// awkwardText holds the characters a line-oriented backend is most likely to alter.
var awkwardText = []string{
	"line1\r\nline2",
	"cr only\rhere",
	`C:\notes\r2 \\ done`,
	"tab\tand \"quotes\", commas\n",
}

// TextRoundTrip writes free text into every text-bearing column of s and reads it back from
// reopen(), or from s itself when reopen is nil.
func TextRoundTrip(t *testing.T, s *storage.Store, reopen func() *storage.Store) {
	ctx := context.Background()
	for i, text := range awkwardText {
		m := Message(fmt.Sprintf("m%d", i), "c1", "a", "b", text, i)
		m.FileURL, m.FileName = "/uploads/x.txt", text
		require.NoError(t, s.Messages.Append(ctx, m))
		require.NoError(t, s.Chats.Put(ctx, model.Chat{
			ID: fmt.Sprintf("c%d", i), Participants: []string{"a", "b"},
			LastMessage: m.Summary(), CreatedAt: base, UpdatedAt: base,
		}))
		require.NoError(t, s.Groups.Put(ctx, model.Group{
			ID: fmt.Sprintf("g%d", i), Name: text, CreatedBy: "a", Members: []string{"a"},
			LastMessage: m.Summary(), CreatedAt: base, UpdatedAt: base,
		}))
		require.NoError(t, s.Announcements.Append(ctx, model.Announcement{
			ID: fmt.Sprintf("ann%d", i), Text: text, AuthorName: text, AuthorRegNumber: "a", CreatedAt: base,
		}))
	}

	r := s
	if reopen != nil {
		r = reopen()
	}
	for i, text := range awkwardText {
		m, err := r.Messages.Get(ctx, fmt.Sprintf("m%d", i))
		require.NoError(t, err)
		assert.Equal(t, text, m.Text)
		assert.Equal(t, text, m.FileName)

		c, err := r.Chats.Get(ctx, fmt.Sprintf("c%d", i))
		require.NoError(t, err)
		require.NotNil(t, c.LastMessage)
		assert.Equal(t, text, c.LastMessage.Text)

		g, err := r.Groups.Get(ctx, fmt.Sprintf("g%d", i))
		require.NoError(t, err)
		assert.Equal(t, text, g.Name)
		require.NotNil(t, g.LastMessage)
		assert.Equal(t, text, g.LastMessage.Text)

		a, err := r.Announcements.Get(ctx, fmt.Sprintf("ann%d", i))
		require.NoError(t, err)
		assert.Equal(t, text, a.Text)
		assert.Equal(t, text, a.AuthorName)
	}
}
