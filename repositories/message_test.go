package repositories

import (
	"log/slog"
	"testing"
	"time"

	"pairchat/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

func newMessage(conversationID uuid.UUID, sender, content string, at time.Time) domain.Message {
	return domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       sender,
		Content:        content,
		Type:           domain.TypeText,
		Status:         domain.StatusSent,
		CreatedAt:      at,
		UpdatedAt:      at,
	}
}

func Test_StoreMessage_And_List_Chronological(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewMessageRepository(db, slog.Default())
	conversationID := uuid.New()

	at := time.Now().UTC()
	stored := []domain.Message{
		newMessage(conversationID, "alice", "first", at),
		newMessage(conversationID, "bob", "second", at.Add(1*time.Minute)),
		newMessage(conversationID, "alice", "third", at.Add(2*time.Minute)),
	}
	for _, m := range stored {
		req.NoError(repository.StoreMessage(m))
	}
	// A message from another conversation must not leak into the scan.
	req.NoError(repository.StoreMessage(newMessage(uuid.New(), "clara", "other", at)))

	fetched, total, err := repository.ListMessages(conversationID, 0, 10)
	req.NoError(err)
	req.EqualValues(3, total)
	req.Len(fetched, 3)
	req.Equal("first", fetched[0].Content)
	req.Equal("second", fetched[1].Content)
	req.Equal("third", fetched[2].Content)
}

func Test_ListMessages_Pagination(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewMessageRepository(db, slog.Default())
	conversationID := uuid.New()

	at := time.Now().UTC()
	for i := 0; i < 5; i++ {
		req.NoError(repository.StoreMessage(
			newMessage(conversationID, "alice", string(rune('a'+i)), at.Add(time.Duration(i)*time.Second))))
	}

	page, total, err := repository.ListMessages(conversationID, 1, 2)
	req.NoError(err)
	req.EqualValues(5, total)
	req.Len(page, 2)
	req.Equal("c", page[0].Content)
	req.Equal("d", page[1].Content)

	beyond, total, err := repository.ListMessages(conversationID, 9, 2)
	req.NoError(err)
	req.EqualValues(5, total)
	req.Empty(beyond)
}

func Test_MarkConversationRead(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewMessageRepository(db, slog.Default())
	conversationID := uuid.New()

	at := time.Now().UTC()
	req.NoError(repository.StoreMessage(newMessage(conversationID, "alice", "from alice", at)))
	req.NoError(repository.StoreMessage(newMessage(conversationID, "bob", "from bob 1", at.Add(time.Second))))
	req.NoError(repository.StoreMessage(newMessage(conversationID, "bob", "from bob 2", at.Add(2*time.Second))))

	readAt := at.Add(time.Minute)
	marked, err := repository.MarkConversationRead(conversationID, "alice", readAt)
	req.NoError(err)
	req.Equal(2, marked)

	messages, _, err := repository.ListMessages(conversationID, 0, 10)
	req.NoError(err)

	// Alice's own message keeps its status and gets no receipt.
	req.Equal(domain.StatusSent, messages[0].Status)
	req.Empty(messages[0].ReadBy)

	for _, m := range messages[1:] {
		req.Equal(domain.StatusRead, m.Status)
		req.Len(m.ReadBy, 1)
		req.Equal("alice", m.ReadBy[0].UserID)
	}

	// Idempotent: a second call marks nothing and adds no duplicate receipts.
	marked, err = repository.MarkConversationRead(conversationID, "alice", readAt.Add(time.Minute))
	req.NoError(err)
	req.Zero(marked)

	messages, _, err = repository.ListMessages(conversationID, 0, 10)
	req.NoError(err)
	for _, m := range messages[1:] {
		req.Len(m.ReadBy, 1)
	}
}

func Test_GetByKeys_SkipsMissing(t *testing.T) {
	req := require.New(t)
	db := openTestDB(t)
	repository := NewMessageRepository(db, slog.Default())
	conversationID := uuid.New()

	message := newMessage(conversationID, "alice", "indexed", time.Now().UTC())
	req.NoError(repository.StoreMessage(message))

	ghost := newMessage(conversationID, "alice", "never stored", time.Now().UTC())

	fetched, err := repository.GetByKeys([]string{MessageKey(message), MessageKey(ghost)})
	req.NoError(err)
	req.Len(fetched, 1)
	req.Equal(message.ID, fetched[0].ID)
	req.Equal("indexed", fetched[0].Content)
}
