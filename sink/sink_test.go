package sink

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func TestConnectionSink_Delivers_Then_Marks_Lagging(t *testing.T) {
	req := require.New(t)
	s := NewConnectionSink(1)

	// Given a buffer of one event
	req.NoError(s.Consume(context.Background(), event.RoomList{Rooms: []string{domain.General}}))

	// When the client doesn't drain it in time
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()
	err := s.Consume(ctx, event.RoomDeleted{Room: "Dev"})

	// Then the event is dropped and the sink is lagging for good
	req.ErrorIs(err, context.DeadlineExceeded)
	select {
	case <-s.Lagging():
	default:
		req.Fail("sink should be lagging")
	}
	req.Error(s.Consume(context.Background(), event.RoomList{}))
	req.Equal(event.RoomList{Rooms: []string{domain.General}}, <-s.ConnectedUserEvent)
}

type fakeIndex struct {
	indexed []domain.Message
	purged  []string
	err     error
}

func (f *fakeIndex) IndexMessage(m domain.Message) error {
	f.indexed = append(f.indexed, m)
	return f.err
}

func (f *fakeIndex) DeleteRoom(ctx context.Context, room string) (int, error) {
	f.purged = append(f.purged, room)
	return 1, f.err
}

func TestSearchSink_Indexes_Persisted_Messages_Only(t *testing.T) {
	req := require.New(t)
	index := &fakeIndex{}
	s := NewSearchSink(index, slog.Default())
	persisted := domain.Message{ID: uuid.New(), Room: domain.General, Body: "hi"}

	req.NoError(s.Consume(context.Background(), event.ReceiveMessage{Message: persisted, Persisted: true}))
	req.NoError(s.Consume(context.Background(), event.ReceiveMessage{Message: domain.Message{Body: "psst", Private: true}}))
	req.NoError(s.Consume(context.Background(), event.RoomPurged{Room: "Dev"}))
	req.NoError(s.Consume(context.Background(), event.RoomList{}))

	req.Equal([]domain.Message{persisted}, index.indexed)
	req.Equal([]string{"Dev"}, index.purged)

	index.err = errors.New("disk full")
	req.Error(s.Consume(context.Background(), event.ReceiveMessage{Message: persisted, Persisted: true}))
}

type counters struct {
	persisted, private, reactions, rooms, failures int
}

func (c *counters) IncrMessagesPersisted() { c.persisted++ }
func (c *counters) IncrPrivateMessages()   { c.private++ }
func (c *counters) IncrReactionsUpdated()  { c.reactions++ }
func (c *counters) IncrRoomsDeleted()      { c.rooms++ }
func (c *counters) IncrFailures()          { c.failures++ }

func TestStatsSink_Counts(t *testing.T) {
	req := require.New(t)
	c := &counters{}
	s := NewStatsSink(c)
	ctx := context.Background()

	req.NoError(s.Consume(ctx, event.ReceiveMessage{Persisted: true}))
	req.NoError(s.Consume(ctx, event.ReceiveMessage{Message: domain.Message{Private: true}}))
	req.NoError(s.Consume(ctx, event.ReceiveMessage{Message: domain.Message{System: true}}))
	req.NoError(s.Consume(ctx, event.MessageUpdated{}))
	req.NoError(s.Consume(ctx, event.RoomPurged{Room: "Dev"}))
	req.NoError(s.Consume(ctx, event.Failure{Code: "EmptyBody"}))

	req.Equal(&counters{persisted: 1, private: 1, reactions: 1, rooms: 1, failures: 1}, c)
}
