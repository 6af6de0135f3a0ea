// Package wire holds the JSON shapes shared by the HTTP API, the
// websocket gateway, and the client. Field names are part of the
// protocol and must not drift between transports.
package wire

import (
	"time"

	"pairchat/domain"

	"github.com/google/uuid"
	"github.com/samber/lo"
)

type AttachmentDTO struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

type ReadReceiptDTO struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

type MessageDTO struct {
	ID             uuid.UUID        `json:"_id"`
	ConversationID uuid.UUID        `json:"conversationId"`
	SenderID       string           `json:"senderId"`
	Content        string           `json:"content"`
	Type           string           `json:"messageType"`
	Status         string           `json:"status"`
	Files          []AttachmentDTO  `json:"files,omitempty"`
	ReadBy         []ReadReceiptDTO `json:"readBy,omitempty"`
	CreatedAt      time.Time        `json:"createdAt"`
	UpdatedAt      time.Time        `json:"updatedAt"`
}

type LastMessageDTO struct {
	MessageID uuid.UUID `json:"messageId"`
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	SentAt    time.Time `json:"sentAt"`
}

type ConversationDTO struct {
	ID           uuid.UUID       `json:"_id"`
	Participants []string        `json:"participants"`
	Type         string          `json:"type"`
	MessageCount int64           `json:"messageCount"`
	LastMessage  *LastMessageDTO `json:"lastMessage,omitempty"`
	CreatedAt    time.Time       `json:"createdAt"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

func FromAttachment(a domain.Attachment) AttachmentDTO {
	return AttachmentDTO{
		FileURL:  a.FileURL,
		FileName: a.FileName,
		FileSize: a.FileSize,
		MimeType: a.MimeType,
	}
}

func FromAttachments(attachments []domain.Attachment) []AttachmentDTO {
	return lo.Map(attachments, func(a domain.Attachment, _ int) AttachmentDTO { return FromAttachment(a) })
}

func ToAttachment(dto AttachmentDTO) domain.Attachment {
	return domain.Attachment{
		FileURL:  dto.FileURL,
		FileName: dto.FileName,
		FileSize: dto.FileSize,
		MimeType: dto.MimeType,
	}
}

func ToAttachments(dtos []AttachmentDTO) []domain.Attachment {
	return lo.Map(dtos, func(a AttachmentDTO, _ int) domain.Attachment { return ToAttachment(a) })
}

func FromMessage(m domain.Message) MessageDTO {
	return MessageDTO{
		ID:             m.ID,
		ConversationID: m.ConversationID,
		SenderID:       m.SenderID,
		Content:        m.Content,
		Type:           string(m.Type),
		Status:         string(m.Status),
		Files:          lo.Map(m.Files, func(a domain.Attachment, _ int) AttachmentDTO { return FromAttachment(a) }),
		ReadBy: lo.Map(m.ReadBy, func(r domain.ReadReceipt, _ int) ReadReceiptDTO {
			return ReadReceiptDTO{UserID: r.UserID, ReadAt: r.ReadAt}
		}),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
}

func FromMessages(messages []domain.Message) []MessageDTO {
	return lo.Map(messages, func(m domain.Message, _ int) MessageDTO { return FromMessage(m) })
}

func FromConversation(c domain.Conversation) ConversationDTO {
	dto := ConversationDTO{
		ID:           c.ID,
		Participants: c.Participants[:],
		Type:         string(c.Type),
		MessageCount: c.MessageCount,
		CreatedAt:    c.CreatedAt,
		UpdatedAt:    c.UpdatedAt,
	}
	if c.LastMessage != nil {
		dto.LastMessage = &LastMessageDTO{
			MessageID: c.LastMessage.MessageID,
			Content:   c.LastMessage.Content,
			SenderID:  c.LastMessage.SenderID,
			SentAt:    c.LastMessage.SentAt,
		}
	}
	return dto
}

func FromConversations(conversations []domain.Conversation) []ConversationDTO {
	return lo.Map(conversations, func(c domain.Conversation, _ int) ConversationDTO { return FromConversation(c) })
}

// ToMessage rebuilds a domain message from its wire shape. Used by the
// client when consuming API responses and gateway events.
func ToMessage(dto MessageDTO) domain.Message {
	return domain.Message{
		ID:             dto.ID,
		ConversationID: dto.ConversationID,
		SenderID:       dto.SenderID,
		Content:        dto.Content,
		Type:           domain.MessageType(dto.Type),
		Status:         domain.MessageStatus(dto.Status),
		Files: ToAttachments(dto.Files),
		ReadBy: lo.Map(dto.ReadBy, func(r ReadReceiptDTO, _ int) domain.ReadReceipt {
			return domain.ReadReceipt{UserID: r.UserID, ReadAt: r.ReadAt}
		}),
		CreatedAt: dto.CreatedAt,
		UpdatedAt: dto.UpdatedAt,
	}
}

func ToConversation(dto ConversationDTO) domain.Conversation {
	conv := domain.Conversation{
		ID:           dto.ID,
		Type:         domain.ConversationType(dto.Type),
		MessageCount: dto.MessageCount,
		CreatedAt:    dto.CreatedAt,
		UpdatedAt:    dto.UpdatedAt,
	}
	copy(conv.Participants[:], dto.Participants)
	if dto.LastMessage != nil {
		conv.LastMessage = &domain.LastMessage{
			MessageID: dto.LastMessage.MessageID,
			Content:   dto.LastMessage.Content,
			SenderID:  dto.LastMessage.SenderID,
			SentAt:    dto.LastMessage.SentAt,
		}
	}
	return conv
}
