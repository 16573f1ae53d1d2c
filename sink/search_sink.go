package sink

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"fmt"
	"log/slog"
)

type MessageIndex interface {
	IndexMessage(m domain.Message) error
	DeleteRoom(ctx context.Context, room string) (int, error)
}

// SearchSink keeps the full-text index in line with the message store.
type SearchSink struct {
	index MessageIndex
	log   *slog.Logger
}

func NewSearchSink(index MessageIndex, log *slog.Logger) SearchSink {
	return SearchSink{index: index, log: log}
}

func (s SearchSink) Consume(ctx context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.ReceiveMessage:
		if !evt.Persisted {
			return nil
		}
		if err := s.index.IndexMessage(evt.Message); err != nil {
			s.log.Error("Message not indexed", "id", evt.Message.ID, "error", err)
			return err
		}
		return nil
	case event.RoomPurged:
		// Purging can take longer than a delivery slot, it must not be cut short by it
		if _, err := s.index.DeleteRoom(context.WithoutCancel(ctx), evt.Room); err != nil {
			s.log.Error("Room not removed from index", "room", evt.Room, "error", err)
			return err
		}
		return nil
	default:
		s.log.Debug(fmt.Sprintf("Not indexed event : %s", evt.Name()))
		return nil
	}
}
