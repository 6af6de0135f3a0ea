package workers

import (
	"context"
	"log/slog"
	"time"

	"pairchat/contract"
	"pairchat/domain/event"
)

// EventFanout broadcasts domain events to the sinks of the affected
// conversation's broadcast group, plus a set of permanent sinks.
//
// It provides best-effort fan-out with no guarantees regarding delivery,
// ordering, durability, or retries. EventFanout is not a message broker:
// a transiently unreachable subscriber simply misses the event.
//
// EventFanout is safe for concurrent use by multiple goroutines.
type EventFanout struct {
	log            *slog.Logger
	registry       contract.IRegistry
	events         chan event.DomainEvent
	permanentSinks []contract.EventSink
	sinkTimeout    time.Duration
}

func NewEventFanout(log *slog.Logger, registry contract.IRegistry,
	bufferSize int, sinkTimeout time.Duration) *EventFanout {
	return &EventFanout{
		log:         log,
		registry:    registry,
		events:      make(chan event.DomainEvent, bufferSize),
		sinkTimeout: sinkTimeout,
	}
}

func (w *EventFanout) Add(sinks ...contract.EventSink) *EventFanout {
	w.permanentSinks = append(w.permanentSinks, sinks...)
	return w
}

// Publish hands an event to the pipeline without blocking the caller.
// A full channel drops the event: the transport is at-least-once only
// for subscribers that keep up.
func (w *EventFanout) Publish(e event.DomainEvent) {
	select {
	case w.events <- e:
	default:
		w.log.Warn("Event channel full, dropping broadcast",
			"conversation_id", e.ConversationID())
	}
}

func (w *EventFanout) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			w.log.Debug("Context done, stopping fanout")
			return nil
		case evt := <-w.events:
			w.Fanout(ctx, evt)
		}
	}
}

// Fanout delivers one event to every subscribed sink. Each delivery gets
// its own deadline so one slow consumer cannot stall the group.
func (w *EventFanout) Fanout(ctx context.Context, evt event.DomainEvent) {
	sinks := w.registry.GetSinksForConversation(evt.ConversationID())
	sinks = append(sinks, w.permanentSinks...)

	for _, sink := range sinks {
		sinkCtx, cancel := context.WithTimeout(ctx, w.sinkTimeout)
		if err := sink.Consume(sinkCtx, evt); err != nil {
			w.log.Debug("Sink rejected event",
				"conversation_id", evt.ConversationID(), "error", err)
		}
		cancel()
	}
}
