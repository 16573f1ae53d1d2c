package sink

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"sync"
)

var _ contract.EventSink = (*ConnectionSink)(nil)

// ConnectionSink is the outbound queue of one WebSocket connection.
// The fanout writes into it, the connection's write loop drains it.
// When the client can't keep up and an event times out, the sink is marked lagging:
// the transport closes the connection rather than let the client miss events silently.
type ConnectionSink struct {
	ConnectedUserEvent chan event.DomainEvent
	lagging            chan struct{}
	once               sync.Once
}

func NewConnectionSink(bufferSize int) *ConnectionSink {
	return &ConnectionSink{
		ConnectedUserEvent: make(chan event.DomainEvent, bufferSize),
		lagging:            make(chan struct{}),
	}
}

// Consume is called by fanout
// Redirect the event through the concerned owner of the channel
// The WebSocket write loop will take it from now
func (s *ConnectionSink) Consume(ctx context.Context, e event.DomainEvent) error {
	select {
	case <-s.lagging:
		return context.Canceled
	default:
	}
	select {
	case s.ConnectedUserEvent <- e:
		return nil
	case <-ctx.Done():
		s.once.Do(func() { close(s.lagging) })
		return ctx.Err()
	}
}

// Lagging is closed once the sink dropped an event.
func (s *ConnectionSink) Lagging() <-chan struct{} {
	return s.lagging
}
