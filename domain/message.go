// Package domain contains core concepts of the messaging system.
// This file defines Message records and related rules.
// Messages are immutable except for read-receipt appends.
package domain

import (
	"time"

	"github.com/google/uuid"
)

// MaxContentRunes is the hard limit on message content length.
const MaxContentRunes = 1000

type MessageType string

const (
	TypeText  MessageType = "TEXT"
	TypeImage MessageType = "IMAGE"
	TypeVideo MessageType = "VIDEO"
	TypeFile  MessageType = "FILE"
)

func (t MessageType) Valid() bool {
	switch t {
	case TypeText, TypeImage, TypeVideo, TypeFile:
		return true
	}
	return false
}

type MessageStatus string

const (
	StatusSent MessageStatus = "SENT"
	// StatusDelivered is reserved: no code path sets it today.
	StatusDelivered MessageStatus = "DELIVERED"
	StatusRead      MessageStatus = "READ"
)

// Attachment describes one uploaded file carried by a message.
type Attachment struct {
	FileURL  string
	FileName string
	FileSize int64
	MimeType string
}

// ReadReceipt records that a participant read the message.
// At most one receipt exists per user; receipts are append-only.
type ReadReceipt struct {
	UserID string
	ReadAt time.Time
}

// Message represents one direct-message record.
// Created once on send; the only mutations are the SENT -> READ status
// transition and ReadBy appends.
type Message struct {
	ID             uuid.UUID
	ConversationID uuid.UUID
	SenderID       string
	Content        string
	Type           MessageType
	Status         MessageStatus
	Files          []Attachment
	ReadBy         []ReadReceipt
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (m Message) ReadByUser(userID string) bool {
	for _, r := range m.ReadBy {
		if r.UserID == userID {
			return true
		}
	}
	return false
}
