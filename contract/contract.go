//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"chat-relay/domain"
	"chat-relay/domain/event"
	"context"
	"io"
	"reflect"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself
// Can be silly, focused
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// This is used for logging and supervision purposes during worker initialization
// or lifecycle events, avoiding the need for manual naming in the Worker interface.
func GetWorkerName(w Worker) string {
	if w == nil {
		return "NilWorker"
	}
	t := reflect.TypeOf(w)
	for t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	return t.Name()
}

// EventSink receives events addressed to it. Consume must not block past ctx.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry tracks live connections and which room each one is in.
type IRegistry interface {
	Register(conn domain.Connection, sink EventSink) error
	SetRoom(connectionID, room string) (string, bool)
	Unregister(connectionID string) (domain.Connection, bool)
	Lookup(connectionID string) (domain.Connection, bool)
	MembersOf(room string) []domain.Member
	Resolve(target event.Target) []EventSink
	Count() int
}

// Publisher hands an addressed event to the fanout.
type Publisher interface {
	Publish(ctx context.Context, envelope event.Envelope)
}

// IBlobStore keeps uploaded file bytes; the coordinator only records the returned URL.
type IBlobStore interface {
	Put(ctx context.Context, filename string, content io.Reader) (key string, err error)
	Delete(ctx context.Context, key string) error
	URL(key string) string
}
