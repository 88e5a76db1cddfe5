package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gorilla/websocket"

	"github.com/unichat/internal/logger"
	"github.com/unichat/internal/middleware"
	"github.com/unichat/internal/ws"
)

// PushHandler upgrades an authenticated request into a push connection on the hub.
type PushHandler struct {
	hub      *ws.Hub
	origins  map[string]struct{} // nil accepts any origin
	upgrader websocket.Upgrader
}

// NewPushHandler takes origins in CORS_ALLOWED_ORIGINS form: a comma list, or "*" / empty for any.
func NewPushHandler(hub *ws.Hub, origins string) *PushHandler {
	h := &PushHandler{hub: hub}
	if o := strings.TrimSpace(origins); o != "" && o != "*" {
		h.origins = make(map[string]struct{})
		for _, part := range strings.Split(o, ",") {
			if part = strings.TrimSpace(part); part != "" {
				h.origins[part] = struct{}{}
			}
		}
	}
	h.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     h.originAllowed,
	}
	return h
}

// originAllowed lets through non-browser clients, which send no Origin.
func (h *PushHandler) originAllowed(r *http.Request) bool {
	if h.origins == nil {
		return true
	}
	origin := strings.TrimSpace(r.Header.Get("Origin"))
	if origin == "" {
		return true
	}
	_, ok := h.origins[origin]
	return ok
}

func (h *PushHandler) Connect(w http.ResponseWriter, r *http.Request) {
	userID := middleware.GetUserID(r.Context())
	switch {
	case userID == "":
		writeError(w, http.StatusUnauthorized, "Access denied. No token provided.")
		return
	case !h.originAllowed(r):
		writeError(w, http.StatusForbidden, "origin not allowed")
		return
	}
	select {
	case <-h.hub.Done():
		writeError(w, http.StatusServiceUnavailable, "server is shutting down")
		return
	default:
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		// Upgrade has already answered the client.
		logger.Debugf("push upgrade user=%s: %v", userID, err)
		return
	}
	// The connection outlives r, so its pumps get their own context.
	ctx, cancel := context.WithCancel(context.Background())
	c := ws.NewClient(h.hub, conn, userID)
	c.Start(ctx, cancel)
	h.hub.Register(c)
}
