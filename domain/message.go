// Package domain contains core concepts of the chat system.
// This file defines Message events and related rules.
// Messages only change through reaction toggles.
package domain

import (
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
)

// SystemSender is the sender name of join/leave notices.
const SystemSender = "System"

// Message represents a chat message, persisted or ephemeral.
type Message struct {
	ID        uuid.UUID `json:"id"`
	Sender    string    `json:"sender"`
	SenderID  string    `json:"senderId"`
	Body      string    `json:"message,omitempty"`
	Room      string    `json:"room,omitempty"`
	Private   bool      `json:"isPrivate,omitempty"`
	System    bool      `json:"system,omitempty"`
	*FileMeta
	Reactions Reactions `json:"reactions"`
	CreatedAt time.Time `json:"createdAt"`
}

// FileMeta describes an attachment kept by the blob store.
// It is flattened into the message on the wire.
type FileMeta struct {
	URL      string `json:"fileUrl"`
	Name     string `json:"fileName"`
	MimeType string `json:"fileType"`
	Size     int64  `json:"fileSize,omitempty"`
}

// HasContent is false for a message with neither a body nor an attachment.
func (m Message) HasContent() bool {
	return strings.TrimSpace(m.Body) != "" || m.FileMeta != nil
}

// NewSystemMessage builds a notice that is broadcast but never persisted.
func NewSystemMessage(room, text string, at time.Time) Message {
	return Message{
		ID:        uuid.New(),
		Sender:    SystemSender,
		Body:      text,
		Room:      room,
		System:    true,
		Reactions: Reactions{},
		CreatedAt: at,
	}
}

func JoinNotice(room, username string, at time.Time) Message {
	return NewSystemMessage(room, fmt.Sprintf("%s has joined the chat", username), at)
}

func LeaveNotice(room, username string, at time.Time) Message {
	return NewSystemMessage(room, fmt.Sprintf("%s has left the chat", username), at)
}

// Reactions maps an emoji to the users who applied it, in application order.
type Reactions map[string][]string

// Toggle retracts the user's mark under emoji when present and applies it otherwise.
// It returns true when the mark was applied. An emoji nobody holds anymore is removed,
// so toggling the same pair twice restores the original map.
func (r Reactions) Toggle(emoji, username string) bool {
	users := r[emoji]
	if i := slices.Index(users, username); i >= 0 {
		users = slices.Delete(slices.Clone(users), i, i+1)
		if len(users) == 0 {
			delete(r, emoji)
		} else {
			r[emoji] = users
		}
		return false
	}
	r[emoji] = append(slices.Clone(users), username)
	return true
}

// Clone returns a deep copy safe to hand to another goroutine.
func (r Reactions) Clone() Reactions {
	out := make(Reactions, len(r))
	for emoji, users := range r {
		out[emoji] = slices.Clone(users)
	}
	return out
}
