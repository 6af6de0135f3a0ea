package gateway

import (
	"context"
	"fmt"
	"log/slog"

	"pairchat/domain/event"
	"pairchat/wire"
)

// ConnSink adapts one websocket connection to the fan-out pipeline. It
// translates domain events into server frames and queues them on a
// buffered channel drained by the connection's writer goroutine.
//
// Consume never blocks the fan-out worker: when the buffer is full the
// frame is dropped and the subscriber misses the event.
type ConnSink struct {
	log    *slog.Logger
	frames chan ServerEvent
}

func NewConnSink(log *slog.Logger, bufferSize int) *ConnSink {
	return &ConnSink{
		log:    log,
		frames: make(chan ServerEvent, bufferSize),
	}
}

func (s *ConnSink) Consume(_ context.Context, e event.DomainEvent) error {
	sent, ok := e.(event.MessageSent)
	if !ok {
		return nil
	}
	dto := wire.FromMessage(sent.Message)
	return s.push(ServerEvent{
		Type:           EventNewMessage,
		ConversationID: sent.Message.ConversationID,
		Message:        &dto,
	})
}

// Push queues a frame addressed directly to this connection, outside the
// fan-out path (acks, errors).
func (s *ConnSink) Push(frame ServerEvent) {
	if err := s.push(frame); err != nil {
		s.log.Debug("Frame dropped", "type", frame.Type, "error", err)
	}
}

// Frames is drained by the connection's single writer goroutine.
func (s *ConnSink) Frames() <-chan ServerEvent {
	return s.frames
}

func (s *ConnSink) push(frame ServerEvent) error {
	select {
	case s.frames <- frame:
		return nil
	default:
		return fmt.Errorf("connection buffer full")
	}
}
