package runtime

import (
	"chat-relay/contract"
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"context"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type Sink struct {
	name string
}

func (s Sink) Consume(ctx context.Context, e event.DomainEvent) error {
	return nil
}

func TestRegistry_Register_One_Room_One_Participant(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	connectionID := uuid.NewString()
	sink := Sink{name: "alice"}

	// Given no user is connected
	// And no room is populated
	req.Empty(registry.sessions)
	req.Empty(registry.roomMembers)

	// When a participant connects into General
	err := registry.Register(domain.Connection{ID: connectionID, Username: "alice", Room: domain.General}, sink)

	// Then
	req.NoError(err)
	req.Equal(1, registry.Count())
	req.Contains(registry.roomMembers[domain.General], connectionID)
	req.Equal([]domain.Member{{ID: connectionID, Username: "alice"}}, registry.MembersOf(domain.General))
	req.Equal([]Sink{sink}, asSinks(registry.Resolve(event.ToRoom(domain.General))))
}

func TestRegistry_Register_Rejects_Blank_And_Duplicate(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	err := registry.Register(domain.Connection{ID: "c1", Username: "  ", Room: domain.General}, Sink{})
	req.ErrorIs(err, errors.ErrInvalidUsername)

	req.NoError(registry.Register(domain.Connection{ID: "c1", Username: "alice", Room: domain.General}, Sink{}))
	err = registry.Register(domain.Connection{ID: "c1", Username: "bob", Room: domain.General}, Sink{})
	req.ErrorIs(err, errors.ErrDuplicateConnection)
	req.Equal(1, registry.Count())
}

func TestRegistry_Duplicate_Usernames_Are_Distinct_Members(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()

	req.NoError(registry.Register(domain.Connection{ID: "c2", Username: "alice", Room: domain.General}, Sink{}))
	req.NoError(registry.Register(domain.Connection{ID: "c1", Username: "alice", Room: domain.General}, Sink{}))

	req.Equal([]domain.Member{{ID: "c1", Username: "alice"}, {ID: "c2", Username: "alice"}},
		registry.MembersOf(domain.General))
}

func TestRegistry_SetRoom_Moves_Membership(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	req.NoError(registry.Register(domain.Connection{ID: "c1", Username: "alice", Room: domain.General}, Sink{}))
	req.NoError(registry.Register(domain.Connection{ID: "c2", Username: "bob", Room: domain.General}, Sink{}))

	// When alice moves to Random
	old, ok := registry.SetRoom("c1", "Random")

	// Then the connection appears in exactly one room
	req.True(ok)
	req.Equal(domain.General, old)
	req.Equal([]domain.Member{{ID: "c2", Username: "bob"}}, registry.MembersOf(domain.General))
	req.Equal([]domain.Member{{ID: "c1", Username: "alice"}}, registry.MembersOf("Random"))
	conn, ok := registry.Lookup("c1")
	req.True(ok)
	req.Equal("Random", conn.Room)

	// And moving an unknown connection is refused
	_, ok = registry.SetRoom("ghost", "Random")
	req.False(ok)
}

func TestRegistry_Unregister_Cleans_Rooms(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	req.NoError(registry.Register(domain.Connection{ID: "c1", Username: "alice", Room: "Random"}, Sink{}))

	// When the participant disconnects
	conn, ok := registry.Unregister("c1")

	// Then no participant left
	// And the room entry doesn't exist anymore
	req.True(ok)
	req.Equal("Random", conn.Room)
	req.Empty(registry.sessions)
	req.Empty(registry.roomMembers)
	req.Empty(registry.Resolve(event.ToRoom("Random")))

	_, ok = registry.Unregister("c1")
	req.False(ok)
}

func TestRegistry_Resolve_Targets(t *testing.T) {
	req := require.New(t)
	registry := NewRegistry()
	alice, bob, clara := Sink{name: "alice"}, Sink{name: "bob"}, Sink{name: "clara"}
	req.NoError(registry.Register(domain.Connection{ID: "a", Username: "alice", Room: domain.General}, alice))
	req.NoError(registry.Register(domain.Connection{ID: "b", Username: "bob", Room: domain.General}, bob))
	req.NoError(registry.Register(domain.Connection{ID: "c", Username: "clara", Room: "Random"}, clara))

	req.ElementsMatch([]Sink{bob}, asSinks(registry.Resolve(event.ToRoom(domain.General, "a"))))
	req.ElementsMatch([]Sink{alice, bob, clara}, asSinks(registry.Resolve(event.ToAll())))
	req.ElementsMatch([]Sink{alice, clara}, asSinks(registry.Resolve(event.ToConnections("c", "a", "a", "ghost"))))
	req.Empty(registry.Resolve(event.ToNone()))
}

func asSinks(sinks []contract.EventSink) []Sink {
	out := make([]Sink, 0, len(sinks))
	for _, s := range sinks {
		out = append(out, s.(Sink))
	}
	return out
}
