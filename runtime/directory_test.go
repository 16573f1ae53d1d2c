package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestDirectory(t *testing.T) {
	req := require.New(t)
	d := NewDirectory("Technology", domain.General, "Random")
	req.Equal([]string{domain.General, "Technology", "Random"}, d.Names())

	req.True(d.Create(" Dev "))
	req.False(d.Create("Dev"))
	req.False(d.Create("   "))
	req.True(d.Exists("Dev"))

	req.ErrorIs(d.Delete(domain.General), errors.ErrProtectedRoom)
	req.ErrorIs(d.Delete("Nowhere"), errors.ErrRoomNotFound)
	req.NoError(d.Delete("Technology"))
	req.Equal([]string{domain.General, "Random", "Dev"}, d.Names())

	// Names is a copy
	names := d.Names()
	names[0] = "Hijacked"
	req.True(d.Exists(domain.General))
}

func TestTypingSet_Global(t *testing.T) {
	req := require.New(t)
	typing := NewTypingSet(TypingGlobal)

	req.True(typing.Set("a1", "Alice", "Dev", true))
	req.False(typing.Set("a1", "Alice", "Dev", true))
	req.True(typing.Set("a2", "Alice", domain.General, true))
	req.True(typing.Set("b", "Bob", domain.General, true))

	// One username per entry, whatever the room
	req.Equal([]string{"Alice", "Bob"}, typing.Users("Dev"))
	envelope := typing.Envelope("Dev")
	req.Equal(event.ToAll(), envelope.Target)

	// A second session of Alice stopping doesn't hide the first one
	req.True(typing.Set("a2", "Alice", domain.General, false))
	req.Equal([]string{"Alice", "Bob"}, typing.Users(""))

	room, ok := typing.Clear("b")
	req.True(ok)
	req.Equal(domain.General, room)
	_, ok = typing.Clear("b")
	req.False(ok)
	req.False(typing.Set("b", "Bob", domain.General, false))
}

func TestTypingSet_Room(t *testing.T) {
	req := require.New(t)
	typing := NewTypingSet(TypingRoom)
	typing.Set("a", "Alice", "Dev", true)
	typing.Set("b", "Bob", domain.General, true)

	req.Equal([]string{"Alice"}, typing.Users("Dev"))
	req.Equal(event.NewEnvelope(event.ToRoom("Dev"), event.TypingUsers{Room: "Dev", Users: []string{"Alice"}}).Event,
		typing.Envelope("Dev").Event)

	left, moved := typing.Move("a", domain.General)
	req.True(moved)
	req.Equal("Dev", left)
	req.Empty(typing.Users("Dev"))
	req.Equal([]string{"Alice", "Bob"}, typing.Users(domain.General))

	_, moved = typing.Move("a", domain.General)
	req.False(moved)
	_, moved = typing.Move("nobody", "Dev")
	req.False(moved)
}
