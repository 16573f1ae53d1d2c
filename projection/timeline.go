// Package projection builds a client-side timeline of a room from what the relay pushes.
// Handles ordering, deduplication and reaction updates.
// Does not talk to the relay nor print anything.
package projection

import (
	"chat-relay/domain"
	"slices"

	"github.com/google/uuid"
)

// Timeline holds the messages of the room the client is currently in, oldest first.
// A message can arrive twice when a join races a broadcast; the second copy is dropped.
type Timeline struct {
	Room     string
	Messages []domain.Message
	byID     map[uuid.UUID]int
}

func NewTimeline() *Timeline {
	return &Timeline{Room: domain.General, byID: map[uuid.UUID]int{}}
}

// Reset replaces the timeline with a room's history.
func (t *Timeline) Reset(room string, history []domain.Message) {
	t.Room = room
	t.Messages = nil
	t.byID = map[uuid.UUID]int{}
	for _, m := range history {
		t.Add(m)
	}
}

// Add inserts the message at its place by CreatedAt and reports whether it was new.
// System notices are kept, private messages too.
func (t *Timeline) Add(m domain.Message) bool {
	if _, seen := t.byID[m.ID]; seen {
		return false
	}
	i, _ := slices.BinarySearchFunc(t.Messages, m, func(a, b domain.Message) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	// Equal timestamps keep arrival order
	for i < len(t.Messages) && t.Messages[i].CreatedAt.Equal(m.CreatedAt) {
		i++
	}
	t.Messages = slices.Insert(t.Messages, i, m)
	t.reindex(i)
	return true
}

// React replaces the reactions of a known message. Unknown ids are ignored.
func (t *Timeline) React(id uuid.UUID, reactions domain.Reactions) bool {
	i, ok := t.byID[id]
	if !ok {
		return false
	}
	t.Messages[i].Reactions = reactions
	return true
}

func (t *Timeline) Get(id uuid.UUID) (domain.Message, bool) {
	i, ok := t.byID[id]
	if !ok {
		return domain.Message{}, false
	}
	return t.Messages[i], true
}

// Lookup finds a message by a prefix of its id, as printed by the client.
func (t *Timeline) Lookup(prefix string) (domain.Message, bool) {
	for i := len(t.Messages) - 1; i >= 0; i-- {
		if id := t.Messages[i].ID.String(); len(prefix) > 0 && len(prefix) <= len(id) && id[:len(prefix)] == prefix {
			return t.Messages[i], true
		}
	}
	return domain.Message{}, false
}

func (t *Timeline) reindex(from int) {
	for i := from; i < len(t.Messages); i++ {
		t.byID[t.Messages[i].ID] = i
	}
}
