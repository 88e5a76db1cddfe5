package model

import (
	"slices"
	"time"
)

// Summary is the last-message preview stored on a chat or group.
type Summary struct {
	Text      string    `json:"text" bson:"text"`
	Sender    string    `json:"sender" bson:"sender"`
	Timestamp time.Time `json:"timestamp" bson:"timestamp"`
}

// Chat is a one-to-one conversation. Participants always holds two distinct ids.
type Chat struct {
	ID           string    `json:"chatId" bson:"chatId"`
	Participants []string  `json:"participants" bson:"participants"`
	LastMessage  *Summary  `json:"lastMessage,omitempty" bson:"lastMessage,omitempty"`
	CreatedAt    time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt    time.Time `json:"updatedAt" bson:"updatedAt"`
}

func (c Chat) RecordID() string { return c.ID }

func (c Chat) HasParticipant(userID string) bool {
	return slices.Contains(c.Participants, userID)
}

// Other returns the participant that is not userID.
func (c Chat) Other(userID string) string {
	for _, p := range c.Participants {
		if p != userID {
			return p
		}
	}
	return ""
}

// IsPair reports whether the chat is between a and b in either order.
func (c Chat) IsPair(a, b string) bool {
	if len(c.Participants) != 2 {
		return false
	}
	p, q := c.Participants[0], c.Participants[1]
	return (p == a && q == b) || (p == b && q == a)
}

// ParticipantData is the other side of a chat as shown in the chat list.
type ParticipantData struct {
	RegNumber string `json:"regNumber"`
	Name      string `json:"name"`
	Branch    string `json:"branch,omitempty"`
}

// LastMessageView is a Summary with the sender's display name.
type LastMessageView struct {
	Text       string    `json:"text"`
	Sender     string    `json:"sender"`
	SenderName string    `json:"senderName"`
	Timestamp  time.Time `json:"timestamp"`
}

// ChatView is an entry of GET /api/chats.
type ChatView struct {
	ChatID          string           `json:"chatId"`
	Participant     string           `json:"participant"`
	Participants    []string         `json:"participants"`
	ParticipantData ParticipantData  `json:"participantData"`
	LastMessage     *LastMessageView `json:"lastMessage"`
	UnreadCount     int              `json:"unreadCount"`
	UpdatedAt       time.Time        `json:"updatedAt"`
}
