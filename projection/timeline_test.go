package projection

import (
	"chat-relay/domain"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func message(sender string, at time.Time) domain.Message {
	return domain.Message{ID: uuid.New(), Sender: sender, Room: domain.General, CreatedAt: at}
}

func TestTimeline_Orders_And_Deduplicates(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	now := time.Now()

	alice := message("Alice", now)
	clara := message("Clara", now.Add(time.Second))
	bob := message("Bob", now.Add(500*time.Millisecond))

	// Given a history, then a live message that was already part of it
	timeline.Reset(domain.General, []domain.Message{alice, clara})
	req.False(timeline.Add(clara))

	// When an older message arrives late
	req.True(timeline.Add(bob))

	// Then it lands at its place
	req.Len(timeline.Messages, 3)
	req.Equal("Alice", timeline.Messages[0].Sender)
	req.Equal("Bob", timeline.Messages[1].Sender)
	req.Equal("Clara", timeline.Messages[2].Sender)
	got, ok := timeline.Get(clara.ID)
	req.True(ok)
	req.Equal(clara.ID, got.ID)
}

func TestTimeline_Same_Timestamp_Keeps_Arrival_Order(t *testing.T) {
	timeline := NewTimeline()
	at := time.Now()
	first, second := message("first", at), message("second", at)
	timeline.Add(first)
	timeline.Add(second)
	require.Equal(t, "first", timeline.Messages[0].Sender)
	require.Equal(t, "second", timeline.Messages[1].Sender)
}

func TestTimeline_React_And_Lookup(t *testing.T) {
	req := require.New(t)
	timeline := NewTimeline()
	m := message("Alice", time.Now())
	timeline.Add(m)

	req.True(timeline.React(m.ID, domain.Reactions{"👍": {"Bob"}}))
	req.False(timeline.React(uuid.New(), domain.Reactions{}))

	found, ok := timeline.Lookup(m.ID.String()[:8])
	req.True(ok)
	req.Equal([]string{"Bob"}, found.Reactions["👍"])
	_, ok = timeline.Lookup("")
	req.False(ok)

	// A new room starts empty
	timeline.Reset("Random", nil)
	req.Equal("Random", timeline.Room)
	req.Empty(timeline.Messages)
	_, ok = timeline.Get(m.ID)
	req.False(ok)
}
