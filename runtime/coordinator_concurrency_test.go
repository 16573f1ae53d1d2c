package runtime

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"chat-relay/errors"
	"chat-relay/repositories"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/samber/lo"
	"github.com/stretchr/testify/require"
)

// gate holds the first store call matching op and room until opened.
type gate struct {
	op, room string
	once     sync.Once
	reached  chan struct{}
	release  chan struct{}
}

func (g *gate) hold(op, room string) {
	if g == nil || op != g.op || room != g.room {
		return
	}
	first := false
	g.once.Do(func() { first = true })
	if !first {
		return
	}
	close(g.reached)
	<-g.release
}

func (g *gate) open() {
	close(g.release)
}

// pausingRepository lets a test stop the coordinator in the middle of a store call.
// "store" and "history" pause before the call, "mutate" pauses after the commit.
type pausingRepository struct {
	repositories.IMessageRepository
	gate *gate
}

func (p *pausingRepository) holdNext(op, room string) *gate {
	p.gate = &gate{op: op, room: room, reached: make(chan struct{}), release: make(chan struct{})}
	return p.gate
}

func (p *pausingRepository) StoreMessage(ctx context.Context, message domain.Message) (domain.Message, error) {
	p.gate.hold("store", message.Room)
	return p.IMessageRepository.StoreMessage(ctx, message)
}

func (p *pausingRepository) GetMessages(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	p.gate.hold("history", room)
	return p.IMessageRepository.GetMessages(ctx, room, limit)
}

func (p *pausingRepository) MutateMessage(ctx context.Context, id uuid.UUID, fn func(*domain.Message) error) (domain.Message, error) {
	updated, err := p.IMessageRepository.MutateMessage(ctx, id, fn)
	p.gate.hold("mutate", updated.Room)
	return updated, err
}

func newPausingHarness(t *testing.T) (*harness, *pausingRepository) {
	repository := &pausingRepository{IMessageRepository: badgerRepository(t)}
	return newHarnessWith(t, repository, Settings{}), repository
}

func async(fn func() error) chan error {
	done := make(chan error, 1)
	go func() { done <- fn() }()
	return done
}

func waitFor[T any](t *testing.T, ch chan T) T {
	t.Helper()
	select {
	case v := <-ch:
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out")
		var zero T
		return zero
	}
}

func historyRooms(events []event.DomainEvent) []string {
	return lo.Map(ofType[event.MessageHistory](events), func(e event.MessageHistory, _ int) string { return e.Room })
}

func TestCoordinator_Racing_Reactions_Broadcast_In_Commit_Order(t *testing.T) {
	req := require.New(t)
	h, repository := newPausingHarness(t)
	h.connect("a", "A")
	h.connect("b", "B")
	h.connect("c", "C")
	m, err := h.coordinator.SendMessage(h.ctx, "a", "vote here")
	req.NoError(err)
	h.drainAll()

	// Given A's toggle is committed but not broadcast yet
	g := repository.holdNext("mutate", domain.General)
	first := async(func() error { return h.coordinator.ToggleReaction(h.ctx, "a", m.ID, "👍") })
	waitFor(t, g.reached)

	// When B toggles the same message meanwhile
	second := async(func() error { return h.coordinator.ToggleReaction(h.ctx, "b", m.ID, "👍") })
	req.Never(func() bool { return len(second) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	g.open()
	req.NoError(waitFor(t, first))
	req.NoError(waitFor(t, second))

	// Then C ends on the map the store holds
	stored, err := h.repository.GetMessage(h.ctx, m.ID)
	req.NoError(err)
	updates := ofType[event.MessageUpdated](h.drain("c"))
	req.Len(updates, 2)
	req.Equal(domain.Reactions{"👍": {"A"}}, updates[0].Reactions)
	req.Equal(domain.Reactions{"👍": {"A", "B"}}, updates[1].Reactions)
	req.Equal(stored.Reactions, updates[1].Reactions)
}

func TestCoordinator_Join_History_Dropped_When_Room_Deleted_During_Fetch(t *testing.T) {
	req := require.New(t)
	h, repository := newPausingHarness(t)
	req.NoError(h.coordinator.CreateRoom(h.ctx, "", "Dev"))
	h.connect("a", "A")
	h.connect("c", "C")
	h.drainAll()

	// Given A's join waits for Dev's history
	g := repository.holdNext("history", "Dev")
	join := async(func() error { return h.coordinator.JoinRoom(h.ctx, "a", "Dev") })
	waitFor(t, g.reached)

	// When C deletes Dev before the store answers
	req.NoError(h.coordinator.DeleteRoom(h.ctx, "c", "Dev"))
	g.open()
	req.NoError(waitFor(t, join))

	// Then A only ever gets General's history, and one room_deleted
	events := h.drain("a")
	req.Equal([]string{domain.General}, historyRooms(events))
	req.Equal([]event.RoomDeleted{{Room: "Dev"}}, ofType[event.RoomDeleted](events))
	conn, ok := h.registry.Lookup("a")
	req.True(ok)
	req.Equal(domain.General, conn.Room)
}

func TestCoordinator_Disconnect_Waits_For_Pending_Join(t *testing.T) {
	req := require.New(t)
	h, repository := newPausingHarness(t)
	h.connect("a", "A")
	h.connect("b", "B")
	h.join("b", "Random")
	h.drainAll()

	// Given A's join waits for Random's history
	g := repository.holdNext("history", "Random")
	join := async(func() error { return h.coordinator.JoinRoom(h.ctx, "a", "Random") })
	waitFor(t, g.reached)

	// When A disconnects meanwhile, the disconnect waits for the join
	left := async(func() error {
		h.coordinator.Disconnect(h.ctx, "a")
		return nil
	})
	req.Never(func() bool { return len(left) > 0 }, 50*time.Millisecond, 5*time.Millisecond)
	g.open()
	req.NoError(waitFor(t, join))
	req.NoError(waitFor(t, left))

	// Then A got its history, and B saw A arrive then leave
	req.Equal([]string{"Random"}, historyRooms(h.drain("a")))
	_, ok := h.registry.Lookup("a")
	req.False(ok)
	presence := ofType[event.UserList](h.drain("b"))
	req.Len(presence, 2)
	req.Len(presence[0].Members, 2)
	req.Equal([]domain.Member{{ID: "b", Username: "B"}}, presence[1].Members)
}

func TestCoordinator_DeleteRoom_Skips_Members_That_Moved_Or_Left(t *testing.T) {
	req := require.New(t)
	h, repository := newPausingHarness(t)
	req.NoError(h.coordinator.CreateRoom(h.ctx, "", "Dev"))
	h.connect("a", "A")
	h.connect("b", "B")
	h.connect("c", "C")
	h.join("a", "Dev")
	h.join("b", "Dev")
	h.drainAll()

	// Given the deletion waits for General's history
	g := repository.holdNext("history", domain.General)
	deleted := async(func() error { return h.coordinator.DeleteRoom(h.ctx, "c", "Dev") })
	waitFor(t, g.reached)

	// When A moves on to Random and B leaves before it resumes
	h.join("a", "Random")
	h.coordinator.Disconnect(h.ctx, "b")
	g.open()
	req.NoError(waitFor(t, deleted))

	// Then A keeps Random's history and still learns Dev is gone
	events := h.drain("a")
	req.Equal([]string{"Random"}, historyRooms(events))
	req.Equal([]event.RoomDeleted{{Room: "Dev"}}, ofType[event.RoomDeleted](events))
	names := lo.Map(events, func(e event.DomainEvent, _ int) string { return e.Name() })
	req.Equal(event.RoomDeletedType, names[len(names)-1])

	// And B hears nothing after leaving
	events = h.drain("b")
	req.Empty(ofType[event.RoomDeleted](events))
	req.Empty(ofType[event.MessageHistory](events))
}

func TestCoordinator_Message_Written_Into_Deleted_Room_Is_Dropped(t *testing.T) {
	req := require.New(t)
	h, repository := newPausingHarness(t)
	req.NoError(h.coordinator.CreateRoom(h.ctx, "", "Dev"))
	h.connect("a", "A")
	h.connect("c", "C")
	h.join("a", "Dev")
	h.drainAll()

	// Given A's message is about to be written to Dev
	g := repository.holdNext("store", "Dev")
	sent := async(func() error {
		_, err := h.coordinator.SendMessage(h.ctx, "a", "late")
		return err
	})
	waitFor(t, g.reached)

	// When Dev is deleted and purged before the write lands
	req.NoError(h.coordinator.DeleteRoom(h.ctx, "c", "Dev"))
	g.open()

	// Then the send fails, nothing is broadcast and nothing survives in the store
	req.ErrorIs(waitFor(t, sent), errors.ErrRoomNotFound)
	req.Empty(chat(h.drain("a")))
	req.Empty(chat(h.drain("c")))
	messages, err := h.repository.GetMessages(h.ctx, "Dev", 0)
	req.NoError(err)
	req.Empty(messages)
}
