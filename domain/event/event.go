package event

import (
	"pairchat/domain"

	"github.com/google/uuid"
)

// DomainEvent is anything routable to a conversation's broadcast group.
type DomainEvent interface {
	ConversationID() uuid.UUID
}

// MessageSent carries the authoritative persisted record.
// It is published only after the message write durably succeeded.
type MessageSent struct {
	Message domain.Message
}

func (e MessageSent) ConversationID() uuid.UUID {
	return e.Message.ConversationID
}
