package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/unichat/internal/middleware"
	"github.com/unichat/internal/roster"
	"github.com/unichat/internal/service"
)

type GroupHandler struct {
	groups   *service.GroupService
	delivery *service.DeliveryService
	dir      *roster.Directory
}

func NewGroupHandler(groups *service.GroupService, delivery *service.DeliveryService, dir *roster.Directory) *GroupHandler {
	return &GroupHandler{groups: groups, delivery: delivery, dir: dir}
}

type CreateGroupRequest struct {
	GroupName string   `json:"groupName"`
	Members   []string `json:"members"`
}

type AddMembersRequest struct {
	Members []string `json:"members"`
}

func (h *GroupHandler) create(w http.ResponseWriter, r *http.Request, university bool) {
	var req CreateGroupRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := h.groups.Create(r.Context(), middleware.GetUserID(r.Context()), service.CreateGroupInput{
		Name:       req.GroupName,
		Members:    req.Members,
		University: university,
	})
	if err != nil {
		writeServiceError(w, "group.Create", err)
		return
	}
	writeJSON(w, http.StatusCreated, g)
}

func (h *GroupHandler) list(w http.ResponseWriter, r *http.Request, university bool) {
	list, err := h.groups.List(r.Context(), middleware.GetUserID(r.Context()), university)
	if err != nil {
		writeServiceError(w, "group.List", err)
		return
	}
	writeJSON(w, http.StatusOK, list)
}

func (h *GroupHandler) CreateGroup(w http.ResponseWriter, r *http.Request) { h.create(w, r, false) }

func (h *GroupHandler) CreateUniversityGroup(w http.ResponseWriter, r *http.Request) {
	h.create(w, r, true)
}

func (h *GroupHandler) GetGroups(w http.ResponseWriter, r *http.Request) { h.list(w, r, false) }

func (h *GroupHandler) GetUniversityGroups(w http.ResponseWriter, r *http.Request) { h.list(w, r, true) }

func (h *GroupHandler) GetGroup(w http.ResponseWriter, r *http.Request) {
	g, err := h.groups.Get(r.Context(), chi.URLParam(r, "groupId"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "group.Get", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) AddMembers(w http.ResponseWriter, r *http.Request) {
	var req AddMembersRequest
	if !decode(w, r, &req) {
		return
	}
	g, err := h.groups.AddMembers(r.Context(), chi.URLParam(r, "groupId"), middleware.GetUserID(r.Context()), req.Members)
	if err != nil {
		writeServiceError(w, "group.AddMembers", err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (h *GroupHandler) GetMessages(w http.ResponseWriter, r *http.Request) {
	msgs, err := h.groups.Messages(r.Context(), chi.URLParam(r, "groupId"), middleware.GetUserID(r.Context()))
	if err != nil {
		writeServiceError(w, "group.Messages", err)
		return
	}
	writeJSON(w, http.StatusOK, msgs)
}

func (h *GroupHandler) SendMessage(w http.ResponseWriter, r *http.Request) {
	var req SendMessageRequest
	if !decode(w, r, &req) {
		return
	}
	sr := req.toService(middleware.GetUserID(r.Context()))
	sr.ParentID = chi.URLParam(r, "groupId")
	sr.Kind = service.ParentGroup
	sr.Receiver = ""
	msg, err := h.delivery.Send(r.Context(), sr)
	if err != nil {
		writeServiceError(w, "group.SendMessage", err)
		return
	}
	writeJSON(w, http.StatusCreated, msg.View(h.dir.Name(msg.Sender)))
}
