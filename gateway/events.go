package gateway

import (
	"pairchat/wire"

	"github.com/google/uuid"
)

// Client-to-server event types.
const (
	EventJoinConversation  = "join_conversation"
	EventLeaveConversation = "leave_conversation"
	EventSendMessage       = "send_message"
)

// Server-to-client event types.
const (
	EventNewMessage = "new_message"
	EventJoined     = "joined"
	EventLeft       = "left"
	EventError      = "error"
)

// ClientEvent is the envelope for every frame a client sends. Unused
// fields stay empty depending on the type.
type ClientEvent struct {
	Type           string               `json:"type"`
	ConversationID uuid.UUID            `json:"conversationId,omitempty"`
	Content        string               `json:"content,omitempty"`
	MessageType    string               `json:"messageType,omitempty"`
	Files          []wire.AttachmentDTO `json:"files,omitempty"`
}

// ServerEvent is the envelope for every frame the gateway pushes.
type ServerEvent struct {
	Type           string           `json:"type"`
	ConversationID uuid.UUID        `json:"conversationId,omitempty"`
	Message        *wire.MessageDTO `json:"message,omitempty"`
	Code           string           `json:"code,omitempty"`
	Error          string           `json:"error,omitempty"`
}
