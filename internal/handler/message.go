package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unichat/internal/middleware"
	"github.com/unichat/internal/service"
)

type MessageHandler struct {
	delivery *service.DeliveryService
}

func NewMessageHandler(delivery *service.DeliveryService) *MessageHandler {
	return &MessageHandler{delivery: delivery}
}

// SendMessageRequest is the body of both the chat and the group send endpoints.
type SendMessageRequest struct {
	ChatID   string `json:"chatId"`
	Receiver string `json:"receiver"`
	Text     string `json:"text"`
	FileURL  string `json:"fileUrl"`
	FileData string `json:"fileData"`
	FileName string `json:"fileName"`
	FileType string `json:"fileType"`
}

func (req SendMessageRequest) toService(sender string) service.SendRequest {
	return service.SendRequest{
		ParentID: req.ChatID,
		Sender:   sender,
		Receiver: req.Receiver,
		Text:     req.Text,
		FileURL:  req.FileURL,
		FileName: req.FileName,
		FileType: req.FileType,
		FileData: req.FileData,
	}
}

func (h *MessageHandler) Send(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	sr := req.toService(middleware.GetUserID(r.Context()))
	sr.Kind = service.ParentChat
	msg, err := h.delivery.Send(r.Context(), sr)
	if err != nil {
		writeServiceError(w, "message.Send", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg.View(""))
}

type MarkReadRequest struct {
	ChatID string `json:"chatId"`
}

type MarkReadResponse struct {
	Success bool `json:"success"`
	Count   int  `json:"count"`
}

func (h *MessageHandler) MarkRead(w http.ResponseWriter, r *http.Request) {
	var req MarkReadRequest
	if !decode(w, r, &req) {
		return
	}
	n, err := h.delivery.MarkRead(r.Context(), req.ChatID, middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "message.MarkRead", err)
		return
	}
	writeJSON(w, http.StatusOK, MarkReadResponse{Success: true, Count: n})
}

func (h *MessageHandler) MarkDelivered(w http.ResponseWriter, r *http.Request) {
	err := h.delivery.MarkDelivered(r.Context(), chi.URLParam(r, "messageId"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "message.MarkDelivered", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}

func (h *MessageHandler) MarkMessageRead(w http.ResponseWriter, r *http.Request) {
	err := h.delivery.MarkMessageRead(r.Context(), chi.URLParam(r, "messageId"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "message.MarkMessageRead", err)
		return
	}
	writeJSON(w, http.StatusOK, successResponse{Success: true})
}
