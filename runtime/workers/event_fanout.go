package workers

import (
	"chat-relay/contract"
	"chat-relay/domain/event"
	"context"
	"log/slog"
	"sync/atomic"
	"time"
)

// EventFanout delivers addressed envelopes to the sinks they target.
//
// Envelopes are queued by Publish and delivered one at a time in publication order,
// so every connection observes events in the order the coordinator committed them.
// Recipients are resolved through the registry when the envelope is delivered,
// not when it is published. Permanent sinks (search index, stats) see every envelope.
//
// A sink gets at most sinkTimeout to accept an event; a slower one misses it.
type EventFanout struct {
	log            *slog.Logger
	registry       contract.IRegistry
	permanentSinks []contract.EventSink
	envelopes      chan event.Envelope
	sinkTimeout    time.Duration
	dropped        atomic.Uint64
}

var (
	_ contract.Worker    = (*EventFanout)(nil)
	_ contract.Publisher = (*EventFanout)(nil)
)

func NewEventFanout(log *slog.Logger, permanentSinks []contract.EventSink, registry contract.IRegistry,
	bufferSize int, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:            log,
		registry:       registry,
		permanentSinks: permanentSinks,
		envelopes:      make(chan event.Envelope, bufferSize),
		sinkTimeout:    sinkTimeout,
	}
}

// Publish queues the envelope, waiting for room in the buffer unless ctx ends first.
func (w *EventFanout) Publish(ctx context.Context, envelope event.Envelope) {
	select {
	case w.envelopes <- envelope:
	case <-ctx.Done():
		w.dropped.Add(1)
		w.log.Warn("Envelope dropped, context done", "event", envelope.Event.Name())
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case envelope := <-w.envelopes:
			w.Deliver(ctx, envelope)
		case <-ctx.Done():
			w.log.Debug("Context done, stopping envelope fanout")
			return nil
		}
	}
}

// Deliver hands one envelope to the permanent sinks, then to its resolved recipients.
func (w *EventFanout) Deliver(ctx context.Context, envelope event.Envelope) {
	for _, sink := range w.permanentSinks {
		w.consume(ctx, sink, envelope.Event)
	}
	for _, sink := range w.registry.Resolve(envelope.Target) {
		w.consume(ctx, sink, envelope.Event)
	}
}

func (w *EventFanout) consume(ctx context.Context, sink contract.EventSink, evt event.DomainEvent) {
	sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
	defer cancel()
	if err := sink.Consume(sinkCtx, evt); err != nil {
		w.dropped.Add(1)
		w.log.Debug("Sink didn't consume event", "event", evt.Name(), "error", err)
	}
}

// Pending is the number of envelopes waiting for delivery.
func (w *EventFanout) Pending() int {
	return len(w.envelopes)
}

// Capacity is the size of the envelope buffer.
func (w *EventFanout) Capacity() int {
	return cap(w.envelopes)
}

// Dropped counts events a sink refused or that could not be queued.
func (w *EventFanout) Dropped() uint64 {
	return w.dropped.Load()
}
