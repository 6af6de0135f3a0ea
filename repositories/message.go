//go:generate go run go.uber.org/mock/mockgen -source=message.go -destination=../mocks/mock_message_repository.go -package=mocks
package repositories

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
	"log/slog"
	"time"

	"pairchat/domain"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

type IMessageRepository interface {
	StoreMessage(m domain.Message) error
	ListMessages(conversationID uuid.UUID, page, limit int) ([]domain.Message, int64, error)
	GetByKeys(keys []string) ([]domain.Message, error)
	MarkConversationRead(conversationID uuid.UUID, callerID string, at time.Time) (int, error)
}

type MessageRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewMessageRepository(db *badger.DB, log *slog.Logger) MessageRepository {
	return MessageRepository{db: db, log: log}
}

// MessageKey formats the storage key as "msg:{conversation}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func MessageKey(m domain.Message) string {
	return fmt.Sprintf("msg:%s:%019d:%s",
		m.ConversationID,
		m.CreatedAt.UnixNano(),
		m.ID,
	)
}

func conversationMessagePrefix(conversationID uuid.UUID) []byte {
	return []byte(fmt.Sprintf("msg:%s:", conversationID))
}

// StoreMessage persists a message record. Created once on send; later
// rewrites only happen through MarkConversationRead.
func (m MessageRepository) StoreMessage(message domain.Message) error {
	bytes, err := json.Marshal(fromMessage(message))
	if err != nil {
		return err
	}
	return m.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(MessageKey(message)), bytes)
	})
}

// ListMessages returns one page in creation order plus the total count.
// Thanks to the padded timestamp in the key, a forward prefix scan is
// already chronological.
func (m MessageRepository) ListMessages(conversationID uuid.UUID, page, limit int) ([]domain.Message, int64, error) {
	var messages []domain.Message
	var total int64

	start := -1
	end := -1
	if limit > 0 {
		start = page * limit
		end = start + limit
	}

	err := m.db.View(func(txn *badger.Txn) error {
		prefix := conversationMessagePrefix(conversationID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		index := 0
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			inWindow := limit <= 0 || (index >= start && index < end)
			if inWindow {
				message, err := decodeMessage(it.Item())
				if err != nil {
					return err
				}
				messages = append(messages, message)
			}
			index++
			total++
		}
		return nil
	})
	if err != nil {
		return nil, 0, err
	}
	return messages, total, nil
}

// GetByKeys resolves full records for a set of storage keys, typically
// produced by the search index. Keys that no longer resolve are skipped:
// the index may lag behind the store.
func (m MessageRepository) GetByKeys(keys []string) ([]domain.Message, error) {
	var messages []domain.Message
	err := m.db.View(func(txn *badger.Txn) error {
		for _, key := range keys {
			item, err := txn.Get([]byte(key))
			if stderrors.Is(err, badger.ErrKeyNotFound) {
				m.log.Debug("Search index key without record, skipping", "key", key)
				continue
			}
			if err != nil {
				return err
			}
			message, err := decodeMessage(item)
			if err != nil {
				return err
			}
			messages = append(messages, message)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// MarkConversationRead appends a read receipt for callerID to every
// message not sent by callerID and not already read by them, flipping
// status to READ. Idempotent: a second invocation finds nothing eligible.
// The caller's own messages are never touched. Returns the number of
// messages marked.
func (m MessageRepository) MarkConversationRead(conversationID uuid.UUID, callerID string, at time.Time) (int, error) {
	marked := 0
	err := m.db.Update(func(txn *badger.Txn) error {
		prefix := conversationMessagePrefix(conversationID)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		type pendingWrite struct {
			key   []byte
			value []byte
		}
		var writes []pendingWrite

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			message, err := decodeMessage(it.Item())
			if err != nil {
				return err
			}
			if message.SenderID == callerID || message.ReadByUser(callerID) {
				continue
			}
			message.ReadBy = append(message.ReadBy, domain.ReadReceipt{UserID: callerID, ReadAt: at})
			message.Status = domain.StatusRead
			message.UpdatedAt = at

			bytes, err := json.Marshal(fromMessage(message))
			if err != nil {
				return err
			}
			writes = append(writes, pendingWrite{key: it.Item().KeyCopy(nil), value: bytes})
		}

		// Writes are applied after the scan so the iterator never sees
		// its own pending mutations.
		for _, w := range writes {
			if err := txn.Set(w.key, w.value); err != nil {
				return err
			}
		}
		marked = len(writes)
		return nil
	})
	if err != nil {
		return 0, err
	}
	return marked, nil
}

func decodeMessage(item *badger.Item) (domain.Message, error) {
	var disk diskMessage
	if err := item.Value(func(val []byte) error {
		return json.Unmarshal(val, &disk)
	}); err != nil {
		return domain.Message{}, err
	}
	return toMessage(disk)
}

type diskMessage struct {
	ID             string            `json:"_id"`
	ConversationID string            `json:"conversationId"`
	SenderID       string            `json:"senderId"`
	Content        string            `json:"content"`
	MessageType    string            `json:"messageType"`
	Status         string            `json:"status"`
	Files          []diskAttachment  `json:"files"`
	ReadBy         []diskReadReceipt `json:"readBy"`
	CreatedAt      time.Time         `json:"createdAt"`
	UpdatedAt      time.Time         `json:"updatedAt"`
}

type diskAttachment struct {
	FileURL  string `json:"fileUrl"`
	FileName string `json:"fileName"`
	FileSize int64  `json:"fileSize"`
	MimeType string `json:"mimeType"`
}

type diskReadReceipt struct {
	UserID string    `json:"userId"`
	ReadAt time.Time `json:"readAt"`
}

func fromMessage(message domain.Message) diskMessage {
	disk := diskMessage{
		ID:             message.ID.String(),
		ConversationID: message.ConversationID.String(),
		SenderID:       message.SenderID,
		Content:        message.Content,
		MessageType:    string(message.Type),
		Status:         string(message.Status),
		Files:          make([]diskAttachment, 0, len(message.Files)),
		ReadBy:         make([]diskReadReceipt, 0, len(message.ReadBy)),
		CreatedAt:      message.CreatedAt,
		UpdatedAt:      message.UpdatedAt,
	}
	for _, f := range message.Files {
		disk.Files = append(disk.Files, diskAttachment(f))
	}
	for _, r := range message.ReadBy {
		disk.ReadBy = append(disk.ReadBy, diskReadReceipt(r))
	}
	return disk
}

func toMessage(disk diskMessage) (domain.Message, error) {
	id, err := uuid.Parse(disk.ID)
	if err != nil {
		return domain.Message{}, err
	}
	conversationID, err := uuid.Parse(disk.ConversationID)
	if err != nil {
		return domain.Message{}, err
	}
	message := domain.Message{
		ID:             id,
		ConversationID: conversationID,
		SenderID:       disk.SenderID,
		Content:        disk.Content,
		Type:           domain.MessageType(disk.MessageType),
		Status:         domain.MessageStatus(disk.Status),
		CreatedAt:      disk.CreatedAt,
		UpdatedAt:      disk.UpdatedAt,
	}
	for _, f := range disk.Files {
		message.Files = append(message.Files, domain.Attachment(f))
	}
	for _, r := range disk.ReadBy {
		message.ReadBy = append(message.ReadBy, domain.ReadReceipt(r))
	}
	return message, nil
}
