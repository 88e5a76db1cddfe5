package model

import (
	"slices"
	"time"
)

// Group is a multi-member conversation. University groups are created by the admin only.
type Group struct {
	ID           string    `json:"groupId" bson:"groupId"`
	Name         string    `json:"groupName" bson:"groupName"`
	CreatedBy    string    `json:"createdBy" bson:"createdBy"`
	Members      []string  `json:"members" bson:"members"`
	LastMessage  *Summary  `json:"lastMessage,omitempty" bson:"lastMessage,omitempty"`
	IsUniversity bool      `json:"isUniversityGroup" bson:"isUniversityGroup"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (g Group) RecordID() string { return g.ID }

func (g Group) HasMember(userID string) bool {
	return slices.Contains(g.Members, userID)
}

// MergeMembers returns base followed by the ids of extra not already present, skipping empty ids.
func MergeMembers(base []string, extra ...string) []string {
	out := make([]string, 0, len(base)+len(extra))
	seen := make(map[string]struct{}, len(base)+len(extra))
	for _, list := range [][]string{base, extra} {
		for _, id := range list {
			if id == "" {
				continue
			}
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			out = append(out, id)
		}
	}
	return out
}

// MemberDetail is a member id with its roster name.
type MemberDetail struct {
	RegNumber string `json:"regNumber"`
	Name      string `json:"name"`
}

// GroupView is the wire shape of a group in lists and detail responses.
type GroupView struct {
	GroupID       string         `json:"groupId"`
	GroupName     string         `json:"groupName"`
	CreatedBy     string         `json:"createdBy"`
	Members       []string       `json:"members"`
	MemberDetails []MemberDetail `json:"memberDetails"`
	LastMessage   string         `json:"lastMessage"`
	LastSender    string         `json:"lastSender"`
	LastTimestamp *time.Time     `json:"lastTimestamp"`
	CreatedAt     time.Time      `json:"createdAt"`
	IsGroup       bool           `json:"isGroup"`
	IsUniversity  bool           `json:"isUniversityGroup"`
}
