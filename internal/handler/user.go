package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unichat/internal/model"
	"github.com/unichat/internal/notify"
	"github.com/unichat/internal/roster"
)

type UserHandler struct {
	dir      *roster.Directory
	presence notify.Notifier
}

func NewUserHandler(dir *roster.Directory, presence notify.Notifier) *UserHandler {
	return &UserHandler{dir: dir, presence: presence}
}

// GetUser returns the roster profile of a student and whether they are connected.
func (h *UserHandler) GetUser(w http.ResponseWriter, r *http.Request) {
	regNumber := chi.URLParam(r, "regNumber")
	p, ok := h.dir.Lookup(regNumber)
	if !ok {
		writeError(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, model.UserView{Profile: p, Online: h.presence.IsOnline(regNumber)})
}
