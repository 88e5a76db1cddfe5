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
	"github.com/unichat/internal/roster"
	"github.com/unichat/internal/storage"
)

type CreateGroupInput struct {
	Name       string
	Members    []string
	University bool
}

// GroupService owns personal and university groups.
type GroupService struct {
	store   *storage.Store
	dir     *roster.Directory
	adminID string

	// parentMu serializes read-modify-write of group and chat records.
	parentMu *sync.Mutex
}

// NewGroupService builds the group service. parentMu must be the lock handed to
// NewDeliveryService so member changes and message summaries never interleave.
func NewGroupService(store *storage.Store, dir *roster.Directory, adminID string, parentMu *sync.Mutex) *GroupService {
	return &GroupService{store: store, dir: dir, adminID: adminID, parentMu: parentMu}
}

func (s *GroupService) Create(ctx context.Context, creator string, in CreateGroupInput) (model.GroupView, error) {
	defer logger.DeferLogDuration("group.Create", time.Now())()
	if in.University && creator != s.adminID {
		return model.GroupView{}, fail(ErrForbidden, "Only admin can create university groups")
	}
	name := strings.TrimSpace(in.Name)
	if name == "" || len(in.Members) == 0 {
		return model.GroupView{}, fail(ErrInvalidInput, "Group name and members are required")
	}

	prefix := "group"
	if in.University {
		prefix = "unigroup"
	}
	ts := now()
	g := model.Group{
		ID:           newID(prefix),
		Name:         name,
		CreatedBy:    creator,
		Members:      model.MergeMembers([]string{creator}, in.Members...),
		IsUniversity: in.University,
		CreatedAt:    ts,
		UpdatedAt:    ts,
	}
	if err := s.store.Groups.Append(ctx, g); err != nil {
		return model.GroupView{}, fmt.Errorf("group.Create: %w", err)
	}
	logger.Infof("group: %s created by %s with %d members", g.ID, creator, len(g.Members))
	return s.view(g), nil
}

// List returns the groups userID belongs to, personal or university ones.
func (s *GroupService) List(ctx context.Context, userID string, university bool) ([]model.GroupView, error) {
	defer logger.DeferLogDuration("group.List", time.Now())()
	groups, err := s.store.Groups.List(ctx, func(g model.Group) bool {
		return g.IsUniversity == university && g.HasMember(userID)
	})
	if err != nil {
		return nil, fmt.Errorf("group.List: %w", err)
	}
	out := make([]model.GroupView, 0, len(groups))
	for _, g := range groups {
		out = append(out, s.view(g))
	}
	return out, nil
}

func (s *GroupService) Get(ctx context.Context, groupID, userID string) (model.GroupView, error) {
	g, err := s.member(ctx, groupID, userID)
	if err != nil {
		return model.GroupView{}, err
	}
	return s.view(g), nil
}

// AddMembers appends new ids to the group. Only the creator may do this.
func (s *GroupService) AddMembers(ctx context.Context, groupID, actor string, members []string) (model.GroupView, error) {
	defer logger.DeferLogDuration("group.AddMembers", time.Now())()
	if len(members) == 0 {
		return model.GroupView{}, fail(ErrInvalidInput, "Members array is required")
	}
	s.parentMu.Lock()
	defer s.parentMu.Unlock()

	g, err := s.load(ctx, groupID)
	if err != nil {
		return model.GroupView{}, err
	}
	if g.CreatedBy != actor {
		return model.GroupView{}, fail(ErrForbidden, "Only group admin can add members")
	}
	g.Members = model.MergeMembers(g.Members, members...)
	if err := s.store.Groups.Put(ctx, g); err != nil {
		return model.GroupView{}, fmt.Errorf("group.AddMembers: %w", err)
	}
	return s.view(g), nil
}

// Messages returns the group history with sender names. Members only.
func (s *GroupService) Messages(ctx context.Context, groupID, userID string) ([]model.MessageView, error) {
	defer logger.DeferLogDuration("group.Messages", time.Now())()
	if _, err := s.member(ctx, groupID, userID); err != nil {
		return nil, err
	}
	msgs, err := s.store.Messages.List(ctx, func(m model.Message) bool { return m.ChatID == groupID })
	if err != nil {
		return nil, fmt.Errorf("group.Messages: %w", err)
	}
	return views(msgs, s.dir.Name), nil
}

func (s *GroupService) load(ctx context.Context, groupID string) (model.Group, error) {
	g, err := s.store.Groups.Get(ctx, groupID)
	if errors.Is(err, storage.ErrNotFound) {
		return model.Group{}, fail(ErrNotFound, "Group not found")
	}
	if err != nil {
		return model.Group{}, fmt.Errorf("group.load: %w", err)
	}
	return g, nil
}

func (s *GroupService) member(ctx context.Context, groupID, userID string) (model.Group, error) {
	g, err := s.load(ctx, groupID)
	if err != nil {
		return model.Group{}, err
	}
	if !g.HasMember(userID) {
		return model.Group{}, fail(ErrForbidden, "Not a member of this group")
	}
	return g, nil
}

func (s *GroupService) view(g model.Group) model.GroupView {
	v := model.GroupView{
		GroupID:       g.ID,
		GroupName:     g.Name,
		CreatedBy:     g.CreatedBy,
		Members:       g.Members,
		MemberDetails: make([]model.MemberDetail, 0, len(g.Members)),
		CreatedAt:     g.CreatedAt,
		IsGroup:       true,
		IsUniversity:  g.IsUniversity,
	}
	for _, id := range g.Members {
		v.MemberDetails = append(v.MemberDetails, model.MemberDetail{RegNumber: id, Name: s.dir.Name(id)})
	}
	if g.LastMessage != nil {
		ts := g.LastMessage.Timestamp
		v.LastMessage = g.LastMessage.Text
		v.LastSender = g.LastMessage.Sender
		v.LastTimestamp = &ts
	}
	return v
}
