package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unichat/internal/middleware"
	"github.com/unichat/internal/service"
)

type ChatHandler struct {
	chats *service.ChatService
}

func NewChatHandler(chats *service.ChatService) *ChatHandler {
	return &ChatHandler{chats: chats}
}

type CreateChatRequest struct {
	Participants []string `json:"participants"`
}

type CreateChatResponse struct {
	Success bool   `json:"success"`
	ChatID  string `json:"chatId"`
}

func (h *ChatHandler) CreateChat(w http.ResponseWriter, r *http.Request) {
	var req CreateChatRequest
	if !decode(w, r, &req) {
		return
	}
	chat, err := h.chats.Create(r.Context(), middleware.GetUserID(r.Context()), req.Participants)
	if err != nil {
		writeServiceError(w, "chat.Create", err)
		return
	}
	writeJSON(w, http.StatusOK, CreateChatResponse{Success: true, ChatID: chat.ID})
}

func (h *ChatHandler) GetUserChats(w http.ResponseWriter, r *http.Request) {
	list, err := h.chats.List(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "chat.List", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *ChatHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.chats.Messages(r.Context(), chi.URLParam(r, "chatId"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "chat.Messages", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}
