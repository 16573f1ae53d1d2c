//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"chat-relay/domain"
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

// IMessageRepository is the contract of the ordered message store.
// Not found lookups return errors.ErrMessageNotFound, every other failure wraps errors.ErrStoreUnavailable.
type IMessageRepository interface {
	// StoreMessage assigns ID and CreatedAt when they are zero and returns the stored message.
	StoreMessage(ctx context.Context, message domain.Message) (domain.Message, error)
	// GetMessages returns the most recent limit messages of a room, oldest first.
	GetMessages(ctx context.Context, room string, limit int) ([]domain.Message, error)
	GetMessage(ctx context.Context, id uuid.UUID) (domain.Message, error)
	// MutateMessage applies fn atomically to the stored message and persists the result.
	MutateMessage(ctx context.Context, id uuid.UUID, fn func(*domain.Message) error) (domain.Message, error)
	// DeleteRoom purges every message of the room and returns how many were removed.
	DeleteRoom(ctx context.Context, room string) (int, error)
	Ping(ctx context.Context) error
	Close() error
}

// DiskMessage is the stored shape of a message, independent from the wire format.
type DiskMessage struct {
	ID        uuid.UUID           `json:"id"`
	Room      string              `json:"room"`
	Author    string              `json:"author"`
	AuthorID  string              `json:"author_id"`
	Content   string              `json:"content,omitempty"`
	File      *DiskFile           `json:"file,omitempty"`
	Reactions map[string][]string `json:"reactions,omitempty"`
	At        time.Time           `json:"at"`
}

type DiskFile struct {
	URL      string `json:"url"`
	Name     string `json:"name"`
	MimeType string `json:"mime_type"`
	Size     int64  `json:"size"`
}

func fromDomainMessage(m domain.Message) DiskMessage {
	dm := DiskMessage{
		ID:        m.ID,
		Room:      m.Room,
		Author:    m.Sender,
		AuthorID:  m.SenderID,
		Content:   m.Body,
		Reactions: m.Reactions.Clone(),
		At:        m.CreatedAt.UTC(),
	}
	if m.FileMeta != nil {
		dm.File = &DiskFile{URL: m.URL, Name: m.Name, MimeType: m.MimeType, Size: m.Size}
	}
	return dm
}

func toDomainMessage(dm DiskMessage) domain.Message {
	m := domain.Message{
		ID:        dm.ID,
		Sender:    dm.Author,
		SenderID:  dm.AuthorID,
		Body:      dm.Content,
		Room:      dm.Room,
		Reactions: domain.Reactions(dm.Reactions).Clone(),
		CreatedAt: dm.At.UTC(),
	}
	if dm.File != nil {
		m.FileMeta = &domain.FileMeta{URL: dm.File.URL, Name: dm.File.Name, MimeType: dm.File.MimeType, Size: dm.File.Size}
	}
	return m
}

// prepare fills the store-assigned fields.
func prepare(m domain.Message) domain.Message {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	if m.CreatedAt.IsZero() {
		m.CreatedAt = time.Now().UTC()
	}
	m.CreatedAt = m.CreatedAt.UTC()
	m.Reactions = lo.Ternary(m.Reactions == nil, domain.Reactions{}, m.Reactions)
	return m
}

// effectiveLimit caps the requested limit with the repository-wide one.
func effectiveLimit(requested int, configured *int) int {
	if configured != nil && *configured > 0 && (requested <= 0 || requested > *configured) {
		return *configured
	}
	return requested
}
