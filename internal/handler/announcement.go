package handler

import (
	"net/http"

	"github.com/unichat/internal/middleware"
	"github.com/unichat/internal/service"
)

type AnnouncementHandler struct {
	announcements *service.AnnouncementService
}

func NewAnnouncementHandler(announcements *service.AnnouncementService) *AnnouncementHandler {
	return &AnnouncementHandler{announcements: announcements}
}

type PostAnnouncementRequest struct {
	Text string `json:"text"`
}

func (h *AnnouncementHandler) List(w http.ResponseWriter, r *http.Request) {
	list, err := h.announcements.List(r.Context())
	if err != nil {
		writeServiceError(w, "announcement.List", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *AnnouncementHandler) Post(w http.ResponseWriter, r *http.Request) {
	var req PostAnnouncementRequest
	if !decode(w, r, &req) {
		return
	}
	a, err := h.announcements.Post(r.Context(), middleware.GetUserID(r.Context()), req.Text)
	if err != nil {
		writeServiceError(w, "announcement.Post", err)
		return
	}
	writeJSON(w, http.StatusCreated, a)
}
