//go:generate go run go.uber.org/mock/mockgen -source=contract.go -destination=../mocks/mock_contract.go -package=mocks
package contract

import (
	"context"
	"reflect"

	"pairchat/domain/event"

	"github.com/google/uuid"
)

type ISupervisor interface {
	Add(worker ...Worker) ISupervisor
	Run(ctx context.Context)
	Start(ctx context.Context, worker Worker)
	Stop()
}

type WorkerName string

// Worker doesn't protect itself.
// Can be silly, focused. The Supervisor handles panics and restarts.
type Worker interface {
	Run(ctx context.Context) error
}

// GetWorkerName uses reflection to retrieve the type name of the worker.
// Used for logging and supervision, avoiding manual naming in the
// Worker interface.
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

// EventSink receives broadcast events. Implementations must never block
// past the context: fan-out is best-effort.
type EventSink interface {
	Consume(ctx context.Context, e event.DomainEvent) error
}

// IRegistry maps conversations to the sinks of currently subscribed
// connections. It is the only shared mutable resource of the gateway.
type IRegistry interface {
	GetSinksForConversation(conversationID uuid.UUID) []EventSink
	Subscribe(connectionID string, conversationID uuid.UUID, sink EventSink)
	Unsubscribe(connectionID string, conversationID uuid.UUID)
	UnsubscribeAll(connectionID string)
}

// EventPublisher hands a persisted event to the fan-out pipeline.
// Publish must not block: delivery is fire-and-forget.
type EventPublisher interface {
	Publish(e event.DomainEvent)
}
