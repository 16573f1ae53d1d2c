package sink

import (
	"chat-relay/domain/event"
	"context"
)

type Counters interface {
	IncrMessagesPersisted()
	IncrPrivateMessages()
	IncrReactionsUpdated()
	IncrRoomsDeleted()
	IncrFailures()
}

// StatsSink feeds the monitoring counters from the event stream.
type StatsSink struct {
	counters Counters
}

func NewStatsSink(counters Counters) StatsSink {
	return StatsSink{counters: counters}
}

func (s StatsSink) Consume(_ context.Context, e event.DomainEvent) error {
	switch evt := e.(type) {
	case event.ReceiveMessage:
		switch {
		case evt.Persisted:
			s.counters.IncrMessagesPersisted()
		case evt.Message.Private:
			s.counters.IncrPrivateMessages()
		}
	case event.MessageUpdated:
		s.counters.IncrReactionsUpdated()
	case event.RoomPurged:
		s.counters.IncrRoomsDeleted()
	case event.Failure:
		s.counters.IncrFailures()
	}
	return nil
}
