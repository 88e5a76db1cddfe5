package model

import "time"

// GroupReceiver is the receiver value of every group message.
const GroupReceiver = "group"

// DefaultAttachmentLabel is the summary text of a message with neither text nor file name.
const DefaultAttachmentLabel = "File"

// Message belongs to a chat or a group (ChatID holds the parent id in both cases).
// Only Delivered, Read and ReadAt change after creation.
type Message struct {
	ID        string     `json:"messageId" bson:"messageId"`
	ChatID    string     `json:"chatId" bson:"chatId"`
	Sender    string     `json:"sender" bson:"sender"`
	Receiver  string     `json:"receiver" bson:"receiver"`
	Text      string     `json:"text" bson:"text"`
	FileURL   string     `json:"fileUrl,omitempty" bson:"fileUrl,omitempty"`
	FileName  string     `json:"fileName,omitempty" bson:"fileName,omitempty"`
	FileType  string     `json:"fileType,omitempty" bson:"fileType,omitempty"`
	Timestamp time.Time  `json:"timestamp" bson:"timestamp"`
	Delivered bool       `json:"delivered" bson:"delivered"`
	Read      bool       `json:"read" bson:"read"`
	ReadAt    *time.Time `json:"readAt,omitempty" bson:"readAt,omitempty"`
}

func (m Message) RecordID() string { return m.ID }

func (m Message) HasAttachment() bool { return m.FileURL != "" }

func (m Message) IsGroup() bool { return m.Receiver == GroupReceiver }

// SummaryText is the preview text stored on the parent.
func (m Message) SummaryText() string {
	switch {
	case m.Text != "":
		return m.Text
	case m.FileName != "":
		return m.FileName
	default:
		return DefaultAttachmentLabel
	}
}

func (m Message) Summary() *Summary {
	return &Summary{Text: m.SummaryText(), Sender: m.Sender, Timestamp: m.Timestamp}
}

// MessageView is the wire shape of a message. The client reads both _id and messageId.
type MessageView struct {
	Message
	LegacyID   string `json:"_id"`
	SenderName string `json:"senderName,omitempty"`
}

func (m Message) View(senderName string) MessageView {
	return MessageView{Message: m, LegacyID: m.ID, SenderName: senderName}
}
