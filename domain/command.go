package domain

import (
	"time"

	"github.com/google/uuid"
)

type SendMessageCommand struct {
	ConversationID uuid.UUID
	SenderID       string
	Content        string
	Type           MessageType
	Files          []Attachment
	CreatedAt      time.Time
}

type ListMessagesCommand struct {
	ConversationID uuid.UUID
	CallerID       string
	Page           int
	Limit          int
}

type SearchMessagesCommand struct {
	ConversationID uuid.UUID
	CallerID       string
	Terms          string
	Page           int
	Limit          int
}
