//go:generate go run go.uber.org/mock/mockgen -source=conversation.go -destination=../mocks/mock_conversation_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"pairchat/domain"
	apperrors "pairchat/errors"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

// maxCommitRetries bounds transparent retries after write conflicts.
// A lost conversation-creation race resolves on the first re-read.
const maxCommitRetries = 3

type IConversationRepository interface {
	FindOrCreateDirect(userA, userB string) (domain.Conversation, bool, error)
	Get(conversationID uuid.UUID) (domain.Conversation, error)
	IsParticipant(conversationID uuid.UUID, userID string) (bool, error)
	UpdateLastMessagePreview(conversationID uuid.UUID, snapshot domain.LastMessage) error
	ListForUser(userID string, page, limit int) ([]domain.Conversation, int64, error)
}

type ConversationRepository struct {
	db  *badger.DB
	log *slog.Logger
	now func() time.Time
}

func NewConversationRepository(db *badger.DB, log *slog.Logger) ConversationRepository {
	return ConversationRepository{db: db, log: log, now: time.Now}
}

func conversationKey(id uuid.UUID) []byte {
	return []byte("conv:" + id.String())
}

// pairKey is the uniqueness constraint over the canonical participant
// pair: at most one DIRECT conversation may own it.
func pairKey(a, b string) []byte {
	return []byte(fmt.Sprintf("pair:%s:%s", a, b))
}

func userConversationKey(userID string, id uuid.UUID) []byte {
	return []byte(fmt.Sprintf("userconv:%s:%s", userID, id))
}

// FindOrCreateDirect canonicalizes the pair and returns the existing
// DIRECT conversation or creates one with MessageCount=0 and no preview.
// Simultaneous first-contact from both sides is resolved by the pair key:
// the losing transaction hits a commit conflict, re-reads, and returns
// the winner's record. The returned bool reports whether this call created
// the conversation.
func (r ConversationRepository) FindOrCreateDirect(userA, userB string) (domain.Conversation, bool, error) {
	a, b := domain.CanonicalPair(userA, userB)

	var conv domain.Conversation
	var created bool
	for attempt := 0; ; attempt++ {
		created = false
		err := r.db.Update(func(txn *badger.Txn) error {
			item, err := txn.Get(pairKey(a, b))
			switch {
			case err == nil:
				id, err := readUUID(item)
				if err != nil {
					return err
				}
				conv, err = readConversation(txn, id)
				return err
			case stderrors.Is(err, badger.ErrKeyNotFound):
				// First contact for this pair: fall through to creation.
			default:
				return err
			}

			now := r.now().UTC()
			conv = domain.Conversation{
				ID:           uuid.New(),
				Participants: [2]string{a, b},
				Type:         domain.ConversationDirect,
				CreatedAt:    now,
				UpdatedAt:    now,
			}
			if err := writeConversation(txn, conv); err != nil {
				return err
			}
			if err := txn.Set(pairKey(a, b), []byte(conv.ID.String())); err != nil {
				return err
			}
			for _, p := range conv.Participants {
				if err := txn.Set(userConversationKey(p, conv.ID), []byte(conv.ID.String())); err != nil {
					return err
				}
			}
			created = true
			return nil
		})
		if err == nil {
			return conv, created, nil
		}
		if stderrors.Is(err, badger.ErrConflict) && attempt < maxCommitRetries {
			r.log.Debug("Conversation creation race resolved, re-reading winner",
				"participants", []string{a, b})
			continue
		}
		return domain.Conversation{}, false, err
	}
}

// Get returns the conversation or ErrNotFound.
func (r ConversationRepository) Get(conversationID uuid.UUID) (domain.Conversation, error) {
	var conv domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		var err error
		conv, err = readConversation(txn, conversationID)
		return err
	})
	return conv, err
}

// IsParticipant is the sole authorization primitive for message
// operations. Unknown conversation ids yield (false, nil), not an error;
// callers decide how to surface that.
func (r ConversationRepository) IsParticipant(conversationID uuid.UUID, userID string) (bool, error) {
	conv, err := r.Get(conversationID)
	if stderrors.Is(err, apperrors.ErrNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return conv.HasParticipant(userID), nil
}

// UpdateLastMessagePreview sets the denormalized snapshot and increments
// MessageCount. Deliberately a separate transaction from the message
// write: a crash in between leaves the preview stale while the message
// stays durable.
func (r ConversationRepository) UpdateLastMessagePreview(conversationID uuid.UUID, snapshot domain.LastMessage) error {
	snapshot.Content = domain.Preview(snapshot.Content)

	for attempt := 0; ; attempt++ {
		err := r.db.Update(func(txn *badger.Txn) error {
			conv, err := readConversation(txn, conversationID)
			if err != nil {
				return err
			}
			conv.LastMessage = &snapshot
			conv.MessageCount++
			conv.UpdatedAt = r.now().UTC()
			return writeConversation(txn, conv)
		})
		if err == nil {
			return nil
		}
		if stderrors.Is(err, badger.ErrConflict) && attempt < maxCommitRetries {
			continue
		}
		return err
	}
}

// ListForUser returns a page of the caller's conversations ordered by
// most recent activity, plus the total count for pagination metadata.
func (r ConversationRepository) ListForUser(userID string, page, limit int) ([]domain.Conversation, int64, error) {
	var conversations []domain.Conversation
	err := r.db.View(func(txn *badger.Txn) error {
		prefix := []byte(fmt.Sprintf("userconv:%s:", userID))
		options := badger.DefaultIteratorOptions
		it := txn.NewIterator(options)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			id, err := readUUID(it.Item())
			if err != nil {
				return err
			}
			conv, err := readConversation(txn, id)
			if err != nil {
				return err
			}
			conversations = append(conversations, conv)
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}

	sort.Slice(conversations, func(i, j int) bool {
		return conversations[i].UpdatedAt.After(conversations[j].UpdatedAt)
	})

	total := int64(len(conversations))
	return pageSlice(conversations, page, limit), total, nil
}

func pageSlice[T any](items []T, page, limit int) []T {
	if limit <= 0 {
		return items
	}
	start := page * limit
	if start >= len(items) {
		return nil
	}
	end := start + limit
	if end > len(items) {
		end = len(items)
	}
	return items[start:end]
}

func readUUID(item *badger.Item) (uuid.UUID, error) {
	var id uuid.UUID
	err := item.Value(func(val []byte) error {
		parsed, err := uuid.ParseBytes(val)
		id = parsed
		return err
	})
	return id, err
}

func readConversation(txn *badger.Txn, id uuid.UUID) (domain.Conversation, error) {
	item, err := txn.Get(conversationKey(id))
	if stderrors.Is(err, badger.ErrKeyNotFound) {
		return domain.Conversation{}, fmt.Errorf("conversation %s: %w", id, apperrors.ErrNotFound)
	}
	if err != nil {
		return domain.Conversation{}, err
	}
	var disk diskConversation
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &disk)
	}); err != nil {
		return domain.Conversation{}, err
	}
	return toConversation(disk)
}

func writeConversation(txn *badger.Txn, conv domain.Conversation) error {
	bytes, err := json.Marshal(fromConversation(conv))
	if err != nil {
		return err
	}
	return txn.Set(conversationKey(conv.ID), bytes)
}

type diskConversation struct {
	ID           string           `json:"_id"`
	Participants [2]string        `json:"participants"`
	Type         string           `json:"type"`
	MessageCount int64            `json:"messageCount"`
	LastMessage  *diskLastMessage `json:"lastMessage,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

type diskLastMessage struct {
	MessageID string    `json:"messageId"`
	Content   string    `json:"content"`
	SenderID  string    `json:"senderId"`
	SentAt    time.Time `json:"sentAt"`
}

func fromConversation(conv domain.Conversation) diskConversation {
	disk := diskConversation{
		ID:           conv.ID.String(),
		Participants: conv.Participants,
		Type:         string(conv.Type),
		MessageCount: conv.MessageCount,
		CreatedAt:    conv.CreatedAt,
		UpdatedAt:    conv.UpdatedAt,
	}
	if conv.LastMessage != nil {
		disk.LastMessage = &diskLastMessage{
			MessageID: conv.LastMessage.MessageID.String(),
			Content:   conv.LastMessage.Content,
			SenderID:  conv.LastMessage.SenderID,
			SentAt:    conv.LastMessage.SentAt,
		}
	}
	return disk
}

func toConversation(disk diskConversation) (domain.Conversation, error) {
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Conversation{}, err
	}
	conv := domain.Conversation{
		ID:           id,
		Participants: disk.Participants,
		Type:         domain.ConversationType(disk.Type),
		MessageCount: disk.MessageCount,
		CreatedAt:    disk.CreatedAt,
		UpdatedAt:    disk.UpdatedAt,
	}
	if disk.LastMessage != nil {
		messageID, err := uuid.Parse(disk.LastMessage.MessageID)
		if err != nil {
			return domain.Conversation{}, err
		}
		conv.LastMessage = &domain.LastMessage{
			MessageID: messageID,
			Content:   disk.LastMessage.Content,
			SenderID:  disk.LastMessage.SenderID,
			SentAt:    disk.LastMessage.SentAt,
		}
	}
	return conv, nil
}
