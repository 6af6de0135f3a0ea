//go:generate go run go.uber.org/mock/mockgen -source=chat_service.go -destination=../mocks/mock_chat_service.go -package=mocks
package services

import (
	"context"
	"fmt"
	"log/slog"
	"time"
	"unicode/utf8"

	"pairchat/contract"
	"pairchat/domain"
	"pairchat/domain/event"
	apperrors "pairchat/errors"
	"pairchat/moderation"
	"pairchat/repositories"

	"github.com/abadojack/whatlanggo"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
)

type IChatService interface {
	FindOrCreateDirect(ctx context.Context, callerID, otherUserID string) (domain.Conversation, error)
	Conversations(ctx context.Context, callerID string, page, limit int) ([]domain.Conversation, int64, error)
	Conversation(ctx context.Context, callerID string, conversationID uuid.UUID) (domain.Conversation, error)
	Send(ctx context.Context, cmd domain.SendMessageCommand) (domain.Message, error)
	Messages(ctx context.Context, cmd domain.ListMessagesCommand) ([]domain.Message, int64, error)
	SearchMessages(ctx context.Context, cmd domain.SearchMessagesCommand) ([]domain.Message, int64, error)
	MarkRead(ctx context.Context, conversationID uuid.UUID, callerID string) (int, error)
	IsParticipant(conversationID uuid.UUID, userID string) (bool, error)
}

// ChatService orchestrates the conversation and message stores and hands
// persisted events to the fan-out pipeline. Moderation and search are
// optional collaborators and always fail open: they never block a send.
type ChatService struct {
	log           *slog.Logger
	conversations repositories.IConversationRepository
	messages      repositories.IMessageRepository
	search        repositories.ISearchRepository
	moderator     *moderation.Moderator
	publisher     contract.EventPublisher
	now           func() time.Time
}

func NewChatService(
	log *slog.Logger,
	conversations repositories.IConversationRepository,
	messages repositories.IMessageRepository,
	search repositories.ISearchRepository,
	moderator *moderation.Moderator,
	publisher contract.EventPublisher,
) *ChatService {
	return &ChatService{
		log:           log,
		conversations: conversations,
		messages:      messages,
		search:        search,
		moderator:     moderator,
		publisher:     publisher,
		now:           time.Now,
	}
}

// FindOrCreateDirect returns the single DIRECT conversation for the
// caller and otherUserID, creating it lazily. A creation race with the
// other side is resolved inside the repository and never surfaces here.
func (s *ChatService) FindOrCreateDirect(_ context.Context, callerID, otherUserID string) (domain.Conversation, error) {
	if otherUserID == "" {
		return domain.Conversation{}, fmt.Errorf("%w: otherUserId is required", apperrors.ErrValidation)
	}
	if otherUserID == callerID {
		return domain.Conversation{}, fmt.Errorf("%w: cannot start a conversation with yourself", apperrors.ErrValidation)
	}

	conv, created, err := s.conversations.FindOrCreateDirect(callerID, otherUserID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if created {
		s.log.Info("Conversation created", "conversation_id", conv.ID,
			"participants", conv.Participants)
	}
	return conv, nil
}

func (s *ChatService) Conversations(_ context.Context, callerID string, page, limit int) ([]domain.Conversation, int64, error) {
	return s.conversations.ListForUser(callerID, page, limit)
}

func (s *ChatService) Conversation(_ context.Context, callerID string, conversationID uuid.UUID) (domain.Conversation, error) {
	conv, err := s.conversations.Get(conversationID)
	if err != nil {
		return domain.Conversation{}, err
	}
	if !conv.HasParticipant(callerID) {
		return domain.Conversation{}, fmt.Errorf("user %s on conversation %s: %w",
			callerID, conversationID, apperrors.ErrPermissionDenied)
	}
	return conv, nil
}

// Send validates, authorizes, persists, and only then publishes the
// authoritative record to the conversation's broadcast group. The
// returned message is the exact object subscribers will receive.
func (s *ChatService) Send(_ context.Context, cmd domain.SendMessageCommand) (domain.Message, error) {
	if err := validateSend(cmd); err != nil {
		return domain.Message{}, err
	}

	ok, err := s.conversations.IsParticipant(cmd.ConversationID, cmd.SenderID)
	if err != nil {
		return domain.Message{}, err
	}
	if !ok {
		return domain.Message{}, fmt.Errorf("sender %s on conversation %s: %w",
			cmd.SenderID, cmd.ConversationID, apperrors.ErrPermissionDenied)
	}

	createdAt := cmd.CreatedAt
	if createdAt.IsZero() {
		createdAt = s.now().UTC()
	}
	messageType := cmd.Type
	if messageType == "" {
		messageType = domain.TypeText
	}

	message := domain.Message{
		ID:             uuid.New(),
		ConversationID: cmd.ConversationID,
		SenderID:       cmd.SenderID,
		Content:        s.moderate(cmd.Content, cmd.SenderID),
		Type:           messageType,
		Status:         domain.StatusSent,
		Files:          cmd.Files,
		CreatedAt:      createdAt,
		UpdatedAt:      createdAt,
	}

	if err := s.messages.StoreMessage(message); err != nil {
		return domain.Message{}, err
	}

	// The preview update is a second, separate write. If it fails the
	// message stays durable and the preview lags until the next send.
	if err := s.conversations.UpdateLastMessagePreview(message.ConversationID, domain.LastMessage{
		MessageID: message.ID,
		Content:   message.Content,
		SenderID:  message.SenderID,
		SentAt:    message.CreatedAt,
	}); err != nil {
		s.log.Warn("Preview update failed, conversation snapshot is stale",
			"conversation_id", message.ConversationID, "error", err)
	}

	if s.search != nil {
		if err := s.search.Index(message); err != nil {
			s.log.Warn("Message indexing failed", "message_id", message.ID, "error", err)
		}
	}

	// Persist-then-broadcast: never announce an unpersisted send.
	s.publisher.Publish(event.MessageSent{Message: message})

	return message, nil
}

func (s *ChatService) Messages(_ context.Context, cmd domain.ListMessagesCommand) ([]domain.Message, int64, error) {
	if err := s.requireParticipant(cmd.ConversationID, cmd.CallerID); err != nil {
		return nil, 0, err
	}
	return s.messages.ListMessages(cmd.ConversationID, cmd.Page, cmd.Limit)
}

func (s *ChatService) SearchMessages(ctx context.Context, cmd domain.SearchMessagesCommand) ([]domain.Message, int64, error) {
	if err := s.requireParticipant(cmd.ConversationID, cmd.CallerID); err != nil {
		return nil, 0, err
	}
	if s.search == nil {
		return nil, 0, nil
	}

	keys, total, err := s.search.Search(ctx, cmd.ConversationID, cmd.Terms, cmd.Page, cmd.Limit)
	if err != nil {
		return nil, 0, err
	}
	messages, err := s.messages.GetByKeys(keys)
	if err != nil {
		return nil, 0, err
	}
	return messages, int64(total), nil
}

func (s *ChatService) MarkRead(_ context.Context, conversationID uuid.UUID, callerID string) (int, error) {
	if err := s.requireParticipant(conversationID, callerID); err != nil {
		return 0, err
	}
	return s.messages.MarkConversationRead(conversationID, callerID, s.now().UTC())
}

func (s *ChatService) IsParticipant(conversationID uuid.UUID, userID string) (bool, error) {
	return s.conversations.IsParticipant(conversationID, userID)
}

func (s *ChatService) requireParticipant(conversationID uuid.UUID, userID string) error {
	ok, err := s.conversations.IsParticipant(conversationID, userID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s on conversation %s: %w",
			userID, conversationID, apperrors.ErrPermissionDenied)
	}
	return nil
}

// moderate censors blacklisted words before persistence. Fail-open by
// construction: without a moderator the content passes through untouched.
func (s *ChatService) moderate(content, senderID string) string {
	if s.moderator == nil {
		return content
	}
	sanitized, found := s.moderator.Censor(content)
	if len(found) > 0 {
		info := whatlanggo.Detect(content)
		s.log.Warn("Censored outgoing message",
			"sender", senderID,
			"lang", info.Lang.Iso6391(),
			"words", len(found))
	}
	return sanitized
}

var validate = validator.New()

type sendMessageValidation struct {
	Content string              `validate:"required_without=Files"`
	Type    string              `validate:"omitempty,oneof=TEXT IMAGE VIDEO FILE"`
	Files   []domain.Attachment `validate:"max=10"`
}

func validateSend(cmd domain.SendMessageCommand) error {
	v := sendMessageValidation{
		Content: cmd.Content,
		Type:    string(cmd.Type),
		Files:   cmd.Files,
	}
	if err := validate.Struct(v); err != nil {
		return fmt.Errorf("%w: %v", apperrors.ErrValidation, err)
	}
	if utf8.RuneCountInString(cmd.Content) > domain.MaxContentRunes {
		return fmt.Errorf("%w: content exceeds %d characters",
			apperrors.ErrValidation, domain.MaxContentRunes)
	}
	return nil
}
