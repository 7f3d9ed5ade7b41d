package domain

import (
	"slices"
	"strings"
	"time"
)

// Sender identifies who authored a chat message.
type Sender string

const (
	SenderUser Sender = "user"
	SenderAI   Sender = "ai"
)

// ChatMessage is a single entry in a planning conversation.
type ChatMessage struct {
	ID        string    `json:"id" yaml:"id"`
	Sender    Sender    `json:"sender" yaml:"sender"`
	Content   string    `json:"content" yaml:"content"`
	Timestamp time.Time `json:"timestamp" yaml:"timestamp"`
}

// Chat is a treatment-planning conversation about one patient.
type Chat struct {
	ID        string        `json:"id" yaml:"id"`
	PatientID string        `json:"patient_id" yaml:"patient_id"`
	Title     string        `json:"title" yaml:"title"`
	Messages  []ChatMessage `json:"messages" yaml:"messages"`
	CreatedAt time.Time     `json:"created_at" yaml:"created_at"`
	UpdatedAt time.Time     `json:"updated_at" yaml:"updated_at"`
}

// AIReplies returns the content of every assistant message in order.
func (c Chat) AIReplies() []string {
	out := make([]string, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.Sender == SenderAI {
			out = append(out, msg.Content)
		}
	}
	return out
}

// SortChatsByRecent orders chats most recently updated first, breaking ties by ID.
func SortChatsByRecent(chats []Chat) {
	slices.SortStableFunc(chats, func(a, b Chat) int {
		if c := b.UpdatedAt.Compare(a.UpdatedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
}

// ChatCursor marks the last chat of a page in SortChatsByRecent order.
type ChatCursor struct {
	UpdatedAt time.Time
	ID        string
}

// PageChats returns up to limit chats following after, plus the cursor for the next page.
// chats must already be sorted by SortChatsByRecent. The next cursor is nil on the last page.
func PageChats(chats []Chat, after *ChatCursor, limit int) ([]Chat, *ChatCursor) {
	start := 0
	if after != nil {
		start = len(chats)
		for i, c := range chats {
			if c.UpdatedAt.Before(after.UpdatedAt) || (c.UpdatedAt.Equal(after.UpdatedAt) && c.ID > after.ID) {
				start = i
				break
			}
		}
	}
	end := len(chats)
	if limit > 0 && start+limit < end {
		end = start + limit
	}
	page := nonNil(chats[start:end])
	if end == len(chats) || len(page) == 0 {
		return page, nil
	}
	last := page[len(page)-1]
	return page, &ChatCursor{UpdatedAt: last.UpdatedAt, ID: last.ID}
}
