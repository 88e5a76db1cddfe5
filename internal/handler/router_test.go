package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/unichat/internal/auth"
	"github.com/unichat/internal/config"
	"github.com/unichat/internal/fileserver"
	"github.com/unichat/internal/model"
	"github.com/unichat/internal/notify"
	"github.com/unichat/internal/presence"
	"github.com/unichat/internal/roster"
	"github.com/unichat/internal/service"
	"github.com/unichat/internal/storage"
	"github.com/unichat/internal/storage/memory"
	"github.com/unichat/internal/ws"
)

const (
	admin = "12309972"
	alice = "11111111"
	bob   = "22222222"
	carol = "33333333"
)

type testEnv struct {
	srv      *httptest.Server
	tokens   *auth.Tokens
	tracker  *presence.Tracker
	delivery *service.DeliveryService
	store    *storage.Store
}

func newTestEnv(t *testing.T, realtime string) *testEnv {
	t.Helper()
	cfg := &config.Config{
		Realtime:           realtime,
		PollInterval:       2 * time.Second,
		CORSAllowedOrigins: "*",
		AdminRegNumber:     admin,
	}
	store := memory.New()
	dir := roster.New(
		model.Profile{RegNumber: admin, Name: "Dean Office"},
		model.Profile{RegNumber: alice, Name: "Alice", Branch: "CSE"},
		model.Profile{RegNumber: bob, Name: "Bob", Branch: "ECE"},
		model.Profile{RegNumber: carol, Name: "Carol"},
	)
	tokens := auth.NewTokens("test-secret", time.Hour)
	tracker := presence.NewTracker()

	var notifier notify.Notifier = notify.Nop{}
	if realtime == config.RealtimeWebSocket {
		notifier = tracker
	}
	chats := service.NewChatService(store, dir)
	var parentMu sync.Mutex
	groups := service.NewGroupService(store, dir, admin, &parentMu)
	delivery := service.NewDeliveryService(store, dir, notifier, chats, &parentMu)

	deps := Deps{
		Config:        cfg,
		Auth:          service.NewAuthService(store, dir, tokens, admin, bcrypt.MinCost),
		Chats:         chats,
		Groups:        groups,
		Delivery:      delivery,
		Announcements: service.NewAnnouncementService(store, dir, admin),
		Roster:        dir,
		Presence:      notifier,
		Files:         fileserver.New(t.TempDir(), 10<<20),
	}
	ctx, cancel := context.WithCancel(context.Background())
	var hub *ws.Hub
	if realtime == config.RealtimeWebSocket {
		hub = ws.NewHub(tracker, delivery, ws.Options{SendBufferSize: 64})
		deps.Hub = hub
		go hub.Run(ctx)
	}
	srv := httptest.NewServer(NewRouter(deps))
	t.Cleanup(func() {
		cancel()
		if hub != nil {
			<-hub.Done()
		}
		srv.Close()
		delivery.Wait()
	})
	return &testEnv{srv: srv, tokens: tokens, tracker: tracker, delivery: delivery, store: store}
}

func (e *testEnv) token(t *testing.T, user string) string {
	t.Helper()
	tok, err := e.tokens.Issue(user)
	require.NoError(t, err)
	return tok
}

// do sends a JSON request as user (no auth header when user is empty) and decodes the reply into out.
func (e *testEnv) do(t *testing.T, method, path, user string, body, out any) int {
	t.Helper()
	var rdr bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&rdr).Encode(body))
	}
	req, err := http.NewRequest(method, e.srv.URL+path, &rdr)
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	if user != "" {
		req.Header.Set("Authorization", "Bearer "+e.token(t, user))
	}
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()
	if out != nil {
		require.NoError(t, json.NewDecoder(resp.Body).Decode(out), "%s %s -> %d", method, path, resp.StatusCode)
	}
	return resp.StatusCode
}

func (e *testEnv) dial(t *testing.T, user string) *websocket.Conn {
	t.Helper()
	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?token=" + e.token(t, user)
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	require.Eventually(t, func() bool { return e.tracker.IsOnline(user) }, 2*time.Second, 10*time.Millisecond)
	return conn
}

type frame struct {
	Type    string          `json:"type"`
	Payload json.RawMessage `json:"payload"`
}

// readUntil skips frames until one of type typ arrives.
func readUntil(t *testing.T, conn *websocket.Conn, typ notify.EventType, out any) {
	t.Helper()
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
	for {
		var f frame
		require.NoError(t, conn.ReadJSON(&f), "waiting for %s", typ)
		if f.Type == string(typ) {
			if out != nil {
				require.NoError(t, json.Unmarshal(f.Payload, out))
			}
			return
		}
	}
}

func TestOfflineReceiverPollsAndSenderSeesReadReceipt(t *testing.T) {
	e := newTestEnv(t, config.RealtimeWebSocket)
	aliceWS := e.dial(t, alice)

	var sent model.MessageView
	status := e.do(t, http.MethodPost, "/api/messages", alice, SendMessageRequest{Receiver: bob, Text: "are you there?"}, &sent)
	require.Equal(t, http.StatusCreated, status)
	assert.False(t, sent.Delivered)
	assert.Equal(t, sent.ID, sent.LegacyID)
	require.NotEmpty(t, sent.ChatID)

	var polled []model.MessageView
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/messages/"+sent.ChatID, bob, nil, &polled))
	require.Len(t, polled, 1)
	assert.Equal(t, sent.ID, polled[0].ID)
	assert.False(t, polled[0].Delivered)

	var chats []model.ChatView
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/chats", bob, nil, &chats))
	require.Len(t, chats, 1)
	assert.Equal(t, 1, chats[0].UnreadCount)
	assert.Equal(t, "Alice", chats[0].ParticipantData.Name)

	var read MarkReadResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/messages/read", bob, MarkReadRequest{ChatID: sent.ChatID}, &read))
	assert.Equal(t, 1, read.Count)

	var receipt notify.MessageReadPayload
	readUntil(t, aliceWS, notify.EventMessageRead, &receipt)
	assert.Equal(t, sent.ID, receipt.MessageID)
	assert.Equal(t, sent.ChatID, receipt.ChatID)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/messages/read", bob, MarkReadRequest{ChatID: sent.ChatID}, &read))
	assert.Equal(t, 0, read.Count)
}

func TestOnlineReceiverGetsPushAndSenderGetsDelivered(t *testing.T) {
	e := newTestEnv(t, config.RealtimeWebSocket)
	aliceWS := e.dial(t, alice)
	bobWS := e.dial(t, bob)

	var sent model.MessageView
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/messages", alice, SendMessageRequest{Receiver: bob, Text: "hi"}, &sent))

	var pushed model.MessageView
	readUntil(t, bobWS, notify.EventReceiveMessage, &pushed)
	assert.Equal(t, sent.ID, pushed.ID)
	assert.Equal(t, "hi", pushed.Text)

	var ack notify.MessageRefPayload
	readUntil(t, aliceWS, notify.EventMessageDelivered, &ack)
	assert.Equal(t, sent.ID, ack.MessageID)

	// typing and read receipts travel over the socket too
	require.NoError(t, bobWS.WriteJSON(map[string]any{"type": "typing", "payload": map[string]string{"chatId": sent.ChatID}}))
	var typing notify.TypingPayload
	readUntil(t, aliceWS, notify.EventTyping, &typing)
	assert.Equal(t, bob, typing.Sender)

	require.NoError(t, bobWS.WriteJSON(map[string]any{"type": "message-read-receipt", "payload": map[string]string{"messageId": sent.ID}}))
	var receipt notify.MessageReadPayload
	readUntil(t, aliceWS, notify.EventMessageRead, &receipt)
	assert.Equal(t, sent.ID, receipt.MessageID)

	require.NoError(t, bobWS.WriteJSON(map[string]any{"type": "self-destruct"}))
	var wsErr notify.ErrorPayload
	readUntil(t, bobWS, notify.EventError, &wsErr)
	assert.Equal(t, "unknown event type", wsErr.Error)

	e.delivery.Wait()
	stored, err := e.store.Messages.Get(context.Background(), sent.ID)
	require.NoError(t, err)
	assert.True(t, stored.Delivered)
	assert.True(t, stored.Read)
}

func TestPresenceStatusBroadcast(t *testing.T) {
	e := newTestEnv(t, config.RealtimeWebSocket)
	aliceWS := e.dial(t, alice)
	bobWS := e.dial(t, bob)

	var status notify.UserStatusPayload
	for status.RegNumber != bob {
		readUntil(t, aliceWS, notify.EventUserStatus, &status)
	}
	assert.True(t, status.Online)

	var profile model.UserView
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/users/"+bob, alice, nil, &profile))
	assert.True(t, profile.Online)
	assert.Equal(t, "Bob", profile.Name)

	require.NoError(t, bobWS.Close())
	require.Eventually(t, func() bool { return !e.tracker.IsOnline(bob) }, 2*time.Second, 10*time.Millisecond)
	for status.RegNumber != bob || status.Online {
		readUntil(t, aliceWS, notify.EventUserStatus, &status)
	}

	require.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/users/99999999", alice, nil, nil))
}

func TestPollModeServesWithoutWebSocket(t *testing.T) {
	e := newTestEnv(t, config.RealtimePoll)

	var rc RealtimeConfig
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/config/realtime", "", nil, &rc))
	assert.Equal(t, config.RealtimePoll, rc.Transport)
	assert.EqualValues(t, 2000, rc.PollIntervalMS)

	url := "ws" + strings.TrimPrefix(e.srv.URL, "http") + "/ws?token=" + e.token(t, alice)
	_, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.Error(t, err)
	require.NotNil(t, resp)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	var sent model.MessageView
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/messages", alice, SendMessageRequest{Receiver: bob, Text: "poll me"}, &sent))
	e.delivery.Wait()
	assert.False(t, sent.Delivered)

	var polled []model.MessageView
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/messages/"+sent.ChatID, bob, nil, &polled))
	require.Len(t, polled, 1)
	assert.Equal(t, "poll me", polled[0].Text)
}

func TestLoginAndChangePassword(t *testing.T) {
	e := newTestEnv(t, config.RealtimePoll)

	var login LoginResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: alice, Password: alice}, &login))
	assert.True(t, login.Success)
	assert.Equal(t, "Alice", login.User.Name)
	assert.False(t, login.User.IsAdmin)

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/api/chats", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+login.Token)
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	var errBody errorResponse
	require.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/auth/change-password", alice,
		ChangePasswordRequest{CurrentPassword: alice, NewPassword: "123"}, &errBody))
	require.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/api/auth/change-password", alice,
		ChangePasswordRequest{CurrentPassword: "wrong", NewPassword: "secret-enough"}, &errBody))
	assert.Equal(t, "Current password is incorrect", errBody.Error)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/auth/change-password", alice,
		ChangePasswordRequest{CurrentPassword: alice, NewPassword: "secret-enough"}, nil))

	require.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: alice, Password: alice}, &errBody))
	assert.Equal(t, "Invalid password", errBody.Error)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: alice, Password: "secret-enough"}, &login))
	assert.True(t, login.User.HasChangedPassword)

	require.Equal(t, http.StatusNotFound, e.do(t, http.MethodPost, "/api/auth/login", "", LoginRequest{Username: "99999999", Password: "x"}, &errBody))
	assert.Equal(t, "Student not found", errBody.Error)
}

func TestBearerRequired(t *testing.T) {
	e := newTestEnv(t, config.RealtimePoll)
	var body map[string]string

	require.Equal(t, http.StatusUnauthorized, e.do(t, http.MethodGet, "/api/chats", "", nil, &body))
	assert.Equal(t, "Access denied. No token provided.", body["error"])

	req, err := http.NewRequest(http.MethodGet, e.srv.URL+"/api/chats", nil)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer forged")
	resp, err := e.srv.Client().Do(req)
	require.NoError(t, err)
	resp.Body.Close()
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/health", "", nil, &body))
}

func TestChatEndpoints(t *testing.T) {
	e := newTestEnv(t, config.RealtimePoll)

	var created CreateChatResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/chats/create", alice, CreateChatRequest{Participants: []string{alice, bob}}, &created))
	require.NotEmpty(t, created.ChatID)

	var again CreateChatResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/chats/create", bob, CreateChatRequest{Participants: []string{bob, alice}}, &again))
	assert.Equal(t, created.ChatID, again.ChatID)

	require.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/api/chats/create", carol, CreateChatRequest{Participants: []string{alice, bob}}, nil))
	require.Equal(t, http.StatusForbidden, e.do(t, http.MethodGet, "/api/messages/"+created.ChatID, carol, nil, nil))
	require.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/api/messages", carol, SendMessageRequest{ChatID: created.ChatID, Text: "x"}, nil))
	require.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/messages", alice, SendMessageRequest{ChatID: created.ChatID}, nil))
	require.Equal(t, http.StatusNotFound, e.do(t, http.MethodGet, "/api/messages/chat_missing", alice, nil, nil))

	var sent model.MessageView
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/messages", alice, SendMessageRequest{
		ChatID: created.ChatID, FileData: "aGVsbG8=", FileName: "hello.txt", FileType: "text/plain",
	}, &sent))
	assert.Equal(t, "data:text/plain;base64,aGVsbG8=", sent.FileURL)

	require.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/api/messages/"+sent.ID+"/delivered", alice, nil, nil))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/messages/"+sent.ID+"/delivered", bob, nil, nil))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/messages/"+sent.ID+"/read", bob, nil, nil))

	var chats []model.ChatView
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/chats", alice, nil, &chats))
	require.Len(t, chats, 1)
	require.NotNil(t, chats[0].LastMessage)
	assert.Equal(t, "hello.txt", chats[0].LastMessage.Text)
}

func TestGroupEndpoints(t *testing.T) {
	e := newTestEnv(t, config.RealtimePoll)

	var g model.GroupView
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/groups/create", alice,
		CreateGroupRequest{GroupName: "Study", Members: []string{bob, bob}}, &g))
	assert.Equal(t, []string{alice, bob}, g.Members)

	require.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/api/groups/university/create", alice,
		CreateGroupRequest{GroupName: "Batch", Members: []string{bob}}, nil))
	var uni model.GroupView
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/groups/university/create", admin,
		CreateGroupRequest{GroupName: "Batch", Members: []string{alice, bob}}, &uni))
	assert.True(t, uni.IsUniversity)

	var list []model.GroupView
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/groups", bob, nil, &list))
	require.Len(t, list, 1)
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/groups/university", bob, nil, &list))
	require.Len(t, list, 1)
	assert.Equal(t, "Batch", list[0].GroupName)

	var msg model.MessageView
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/groups/"+g.GroupID+"/messages", bob,
		SendMessageRequest{Text: "hello group"}, &msg))
	assert.Equal(t, model.GroupReceiver, msg.Receiver)
	assert.True(t, msg.Delivered)
	assert.Equal(t, "Bob", msg.SenderName)
	require.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/api/groups/"+g.GroupID+"/messages", carol,
		SendMessageRequest{Text: "let me in"}, nil))

	require.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/api/groups/"+g.GroupID+"/add-members", bob,
		AddMembersRequest{Members: []string{carol}}, nil))
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/groups/"+g.GroupID+"/add-members", alice,
		AddMembersRequest{Members: []string{carol}}, &g))
	assert.Equal(t, []string{alice, bob, carol}, g.Members)

	var msgs []model.MessageView
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/groups/"+g.GroupID+"/messages", carol, nil, &msgs))
	require.Len(t, msgs, 1)
	assert.Equal(t, "Bob", msgs[0].SenderName)

	var detail model.GroupView
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/groups/"+g.GroupID, carol, nil, &detail))
	assert.Equal(t, "hello group", detail.LastMessage)
	assert.Equal(t, bob, detail.LastSender)
}

func TestAnnouncementEndpoints(t *testing.T) {
	e := newTestEnv(t, config.RealtimePoll)

	require.Equal(t, http.StatusForbidden, e.do(t, http.MethodPost, "/api/announcements", alice, PostAnnouncementRequest{Text: "x"}, nil))
	require.Equal(t, http.StatusBadRequest, e.do(t, http.MethodPost, "/api/announcements", admin, PostAnnouncementRequest{Text: " "}, nil))
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/announcements", admin, PostAnnouncementRequest{Text: "first"}, nil))
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/announcements", admin, PostAnnouncementRequest{Text: "second"}, nil))

	var list []model.Announcement
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/announcements", bob, nil, &list))
	require.Len(t, list, 2)
	assert.Equal(t, "second", list[0].Text)
	assert.Equal(t, "Dean Office", list[0].AuthorName)
}

func TestWriteServiceErrorStatuses(t *testing.T) {
	cases := map[error]int{
		service.ErrNotFound:        http.StatusNotFound,
		service.ErrForbidden:       http.StatusForbidden,
		service.ErrConflict:        http.StatusConflict,
		service.ErrInvalidInput:    http.StatusBadRequest,
		service.ErrUnauthenticated: http.StatusUnauthorized,
		context.DeadlineExceeded:   http.StatusInternalServerError,
	}
	for err, want := range cases {
		rec := httptest.NewRecorder()
		writeServiceError(rec, "test", err)
		assert.Equal(t, want, rec.Code, err.Error())
	}
}

func TestGroupReadReceiptReachesSender(t *testing.T) {
	e := newTestEnv(t, config.RealtimeWebSocket)
	aliceWS := e.dial(t, alice)

	var g model.GroupView
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/groups/create", alice,
		CreateGroupRequest{GroupName: "Study", Members: []string{bob, carol}}, &g))
	var msg model.MessageView
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/groups/"+g.GroupID+"/messages", alice,
		SendMessageRequest{Text: "read me"}, &msg))
	var later model.MessageView
	require.Equal(t, http.StatusCreated, e.do(t, http.MethodPost, "/api/groups/"+g.GroupID+"/messages", alice,
		SendMessageRequest{Text: "and me"}, &later))

	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/messages/"+msg.ID+"/read", bob, nil, nil))
	var receipt notify.MessageReadPayload
	readUntil(t, aliceWS, notify.EventMessageRead, &receipt)
	assert.Equal(t, msg.ID, receipt.MessageID)
	assert.Equal(t, g.GroupID, receipt.ChatID)

	var read MarkReadResponse
	require.Equal(t, http.StatusOK, e.do(t, http.MethodPost, "/api/messages/read", carol, MarkReadRequest{ChatID: g.GroupID}, &read))
	assert.Equal(t, 1, read.Count)
	readUntil(t, aliceWS, notify.EventMessageRead, &receipt)
	assert.Equal(t, later.ID, receipt.MessageID)

	var msgs []model.MessageView
	require.Equal(t, http.StatusOK, e.do(t, http.MethodGet, "/api/groups/"+g.GroupID+"/messages", bob, nil, &msgs))
	require.Len(t, msgs, 2)
	assert.True(t, msgs[0].Read)
	assert.True(t, msgs[1].Read)
	require.NotNil(t, msgs[0].ReadAt)
}
