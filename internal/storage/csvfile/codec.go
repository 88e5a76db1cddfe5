package csvfile

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/unichat/internal/model"
	"github.com/unichat/internal/storage"
)

const memberSep = "|"

// encoding/csv reads \r\n inside a quoted field back as \n, so free-text columns carry \r
// (and the escape character itself) as two-character sequences.
var (
	textEscaper   = strings.NewReplacer(`\`, `\\`, "\r", `\r`)
	textUnescaper = strings.NewReplacer(`\\`, `\`, `\r`, "\r")
)

func escapeText(s string) string   { return textEscaper.Replace(s) }
func unescapeText(s string) string { return textUnescaper.Replace(s) }

// codec maps one record type to a fixed CSV header and back.
type codec[T storage.Record] struct {
	header []string
	encode func(T) []string
	decode func([]string) (T, error)
}

var userCodec = codec[model.User]{
	header: []string{"regNumber", "password", "hasChangedPassword", "createdAt"},
	encode: func(u model.User) []string {
		return []string{u.ID, u.PasswordHash, formatBool(u.HasChangedPassword), formatTime(u.CreatedAt)}
	},
	decode: func(row []string) (model.User, error) {
		var (
			u   = model.User{ID: row[0], PasswordHash: row[1], HasChangedPassword: parseBool(row[2])}
			err error
		)
		u.CreatedAt, err = parseTime(row[3])
		return u, err
	},
}

var chatCodec = codec[model.Chat]{
	header: []string{"chatId", "participant1", "participant2", "lastMessage", "lastSender", "lastTimestamp", "createdAt", "updatedAt"},
	encode: func(c model.Chat) []string {
		p1, p2 := "", ""
		if len(c.Participants) > 0 {
			p1 = c.Participants[0]
		}
		if len(c.Participants) > 1 {
			p2 = c.Participants[1]
		}
		text, sender, ts := encodeSummary(c.LastMessage)
		return []string{c.ID, p1, p2, text, sender, ts, formatTime(c.CreatedAt), formatTime(c.UpdatedAt)}
	},
	decode: func(row []string) (model.Chat, error) {
		c := model.Chat{ID: row[0], Participants: []string{row[1], row[2]}}
		var err error
		if c.LastMessage, err = decodeSummary(row[3], row[4], row[5]); err != nil {
			return c, err
		}
		if c.CreatedAt, err = parseTime(row[6]); err != nil {
			return c, err
		}
		c.UpdatedAt, err = parseTime(row[7])
		return c, err
	},
}

var messageCodec = codec[model.Message]{
	header: []string{"messageId", "chatId", "sender", "receiver", "text", "fileUrl", "fileName", "fileType", "timestamp", "delivered", "read", "readAt"},
	encode: func(m model.Message) []string {
		readAt := ""
		if m.ReadAt != nil {
			readAt = formatTime(*m.ReadAt)
		}
		return []string{
			m.ID, m.ChatID, m.Sender, m.Receiver, escapeText(m.Text), m.FileURL, escapeText(m.FileName), m.FileType,
			formatTime(m.Timestamp), formatBool(m.Delivered), formatBool(m.Read), readAt,
		}
	},
	decode: func(row []string) (model.Message, error) {
		m := model.Message{
			ID: row[0], ChatID: row[1], Sender: row[2], Receiver: row[3], Text: unescapeText(row[4]),
			FileURL: row[5], FileName: unescapeText(row[6]), FileType: row[7],
			Delivered: parseBool(row[9]), Read: parseBool(row[10]),
		}
		var err error
		if m.Timestamp, err = parseTime(row[8]); err != nil {
			return m, err
		}
		if row[11] != "" {
			readAt, err := parseTime(row[11])
			if err != nil {
				return m, err
			}
			m.ReadAt = &readAt
		}
		return m, nil
	},
}

var groupCodec = codec[model.Group]{
	header: []string{"groupId", "groupName", "createdBy", "members", "createdAt", "lastMessage", "lastSender", "lastTimestamp", "isUniversityGroup", "updatedAt"},
	encode: func(g model.Group) []string {
		text, sender, ts := encodeSummary(g.LastMessage)
		return []string{
			g.ID, escapeText(g.Name), g.CreatedBy, strings.Join(g.Members, memberSep), formatTime(g.CreatedAt),
			text, sender, ts, formatBool(g.IsUniversity), formatTime(g.UpdatedAt),
		}
	},
	decode: func(row []string) (model.Group, error) {
		g := model.Group{ID: row[0], Name: unescapeText(row[1]), CreatedBy: row[2], IsUniversity: parseBool(row[8])}
		if row[3] != "" {
			g.Members = strings.Split(row[3], memberSep)
		}
		var err error
		if g.CreatedAt, err = parseTime(row[4]); err != nil {
			return g, err
		}
		if g.LastMessage, err = decodeSummary(row[5], row[6], row[7]); err != nil {
			return g, err
		}
		g.UpdatedAt, err = parseTime(row[9])
		return g, err
	},
}

var announcementCodec = codec[model.Announcement]{
	header: []string{"id", "text", "authorName", "authorRegNumber", "createdAt"},
	encode: func(a model.Announcement) []string {
		return []string{a.ID, escapeText(a.Text), escapeText(a.AuthorName), a.AuthorRegNumber, formatTime(a.CreatedAt)}
	},
	decode: func(row []string) (model.Announcement, error) {
		a := model.Announcement{ID: row[0], Text: unescapeText(row[1]), AuthorName: unescapeText(row[2]), AuthorRegNumber: row[3]}
		var err error
		a.CreatedAt, err = parseTime(row[4])
		return a, err
	},
}

func encodeSummary(s *model.Summary) (text, sender, ts string) {
	if s == nil {
		return "", "", ""
	}
	return escapeText(s.Text), s.Sender, formatTime(s.Timestamp)
}

// decodeSummary returns nil for a parent that never had a message.
func decodeSummary(text, sender, ts string) (*model.Summary, error) {
	if ts == "" && text == "" && sender == "" {
		return nil, nil
	}
	t, err := parseTime(ts)
	if err != nil {
		return nil, err
	}
	return &model.Summary{Text: unescapeText(text), Sender: sender, Timestamp: t}, nil
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339Nano, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("parse time %q: %w", s, err)
	}
	return t.UTC(), nil
}

func formatBool(b bool) string { return strconv.FormatBool(b) }

func parseBool(s string) bool {
	b, _ := strconv.ParseBool(s)
	return b
}
