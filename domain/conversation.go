// Package domain contains core concepts of the messaging system.
// This file defines direct Conversations and their invariants.
// No runtime, network, or UI logic should be added here.
package domain

import (
	"time"

	"github.com/google/uuid"
)

type ConversationType string

const (
	// ConversationDirect is the only supported type: exactly two participants.
	ConversationDirect ConversationType = "DIRECT"
)

// PreviewMaxRunes bounds the denormalized last-message snapshot.
const PreviewMaxRunes = 100

// LastMessage is the denormalized preview stored on the conversation.
// It may lag behind the message log: the message write and the preview
// update are two separate operations.
type LastMessage struct {
	MessageID uuid.UUID
	Content   string
	SenderID  string
	SentAt    time.Time
}

// Conversation represents a two-party messaging thread.
// Participants are stored in canonical (sorted) order so that the
// unordered pair maps to exactly one conversation.
type Conversation struct {
	ID           uuid.UUID
	Participants [2]string
	Type         ConversationType
	MessageCount int64
	LastMessage  *LastMessage
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// CanonicalPair returns the two user ids in deterministic order.
// Both (a,b) and (b,a) yield the same pair, which is the de-duplication
// key for direct conversations.
func CanonicalPair(a, b string) (string, string) {
	if b < a {
		return b, a
	}
	return a, b
}

func (c Conversation) HasParticipant(userID string) bool {
	return c.Participants[0] == userID || c.Participants[1] == userID
}

// OtherParticipant returns the peer of userID, or "" if userID is not
// part of the conversation.
func (c Conversation) OtherParticipant(userID string) string {
	switch userID {
	case c.Participants[0]:
		return c.Participants[1]
	case c.Participants[1]:
		return c.Participants[0]
	default:
		return ""
	}
}

// Preview truncates content to the snapshot size without splitting runes.
func Preview(content string) string {
	runes := []rune(content)
	if len(runes) <= PreviewMaxRunes {
		return content
	}
	return string(runes[:PreviewMaxRunes])
}
