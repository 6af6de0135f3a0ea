package reconcile

import (
	"fmt"
	"log/slog"
	"testing"
	"time"

	"pairchat/domain"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
)

type fakeAPI struct {
	createConversation func(otherUserID string) (domain.Conversation, error)
	sendMessage        func(conversationID uuid.UUID, content string, messageType domain.MessageType, files []domain.Attachment) (domain.Message, error)
	conversations      func(page, limit int) ([]domain.Conversation, error)
	messages           func(conversationID uuid.UUID, page, limit int) ([]domain.Message, error)
	markRead           func(conversationID uuid.UUID) (int, error)
}

func (f *fakeAPI) CreateConversation(otherUserID string) (domain.Conversation, error) {
	return f.createConversation(otherUserID)
}

func (f *fakeAPI) SendMessage(conversationID uuid.UUID, content string, messageType domain.MessageType, files []domain.Attachment) (domain.Message, error) {
	return f.sendMessage(conversationID, content, messageType, files)
}

func (f *fakeAPI) Conversations(page, limit int) ([]domain.Conversation, error) {
	return f.conversations(page, limit)
}

func (f *fakeAPI) Messages(conversationID uuid.UUID, page, limit int) ([]domain.Message, error) {
	return f.messages(conversationID, page, limit)
}

func (f *fakeAPI) MarkRead(conversationID uuid.UUID) (int, error) {
	return f.markRead(conversationID)
}

func serverConversation(a, b string) domain.Conversation {
	first, second := domain.CanonicalPair(a, b)
	return domain.Conversation{
		ID:           uuid.New(),
		Participants: [2]string{first, second},
		Type:         domain.ConversationDirect,
	}
}

func okSend(conversationID uuid.UUID, content string, messageType domain.MessageType, files []domain.Attachment) (domain.Message, error) {
	return domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       "alice",
		Content:        content,
		Type:           messageType,
		Status:         domain.StatusSent,
		Files:          files,
		CreatedAt:      time.Now().UTC(),
	}, nil
}

func seededEngine(api API) (*Engine, uuid.UUID) {
	engine := NewEngine(slog.Default(), "alice", api)
	conv := serverConversation("alice", "bob")
	engine.entries = []Entry{{Conversation: conv, OtherUserID: "bob"}}
	return engine, conv.ID
}

func TestEngine_OwnEchoReplacesPendingInPlace(t *testing.T) {
	req := require.New(t)
	engine, convID := seededEngine(&fakeAPI{sendMessage: okSend})

	sent, err := engine.Send(convID, "hello", nil)
	req.NoError(err)

	local := engine.Messages(convID)
	req.Len(local, 1)
	req.Equal(StatusPending, local[0].Status)

	// Gateway echoes the persisted message back
	echo := sent
	engine.HandleNewMessage(echo)

	local = engine.Messages(convID)
	req.Len(local, 1, "echo must replace the pending copy, not append")
	req.Equal(sent.ID, local[0].ID)
	req.Equal(domain.StatusSent, local[0].Status)
}

func TestEngine_OwnEchoOutsideWindowAppends(t *testing.T) {
	req := require.New(t)
	engine, convID := seededEngine(&fakeAPI{sendMessage: okSend})

	_, err := engine.Send(convID, "hello", nil)
	req.NoError(err)

	echo := domain.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		SenderID:       "alice",
		Content:        "hello",
		Status:         domain.StatusSent,
		CreatedAt:      time.Now().UTC().Add(30 * time.Second),
	}
	engine.HandleNewMessage(echo)

	req.Len(engine.Messages(convID), 2, "a stale echo is a distinct message")
}

func TestEngine_SendCarriesUploadedAttachments(t *testing.T) {
	req := require.New(t)

	var sentFiles []domain.Attachment
	engine, convID := seededEngine(&fakeAPI{
		sendMessage: func(conversationID uuid.UUID, content string, messageType domain.MessageType, files []domain.Attachment) (domain.Message, error) {
			sentFiles = files
			return okSend(conversationID, content, messageType, files)
		},
	})

	attachment := domain.Attachment{
		FileURL:  "/uploads/draft.png",
		FileName: "draft.png",
		FileSize: 512,
		MimeType: "image/png",
	}
	_, err := engine.Send(convID, "see attached", []domain.Attachment{attachment})
	req.NoError(err)

	req.Len(sentFiles, 1, "uploaded metadata must reach the server send")
	req.Equal(attachment, sentFiles[0])

	local := engine.Messages(convID)
	req.Len(local, 1)
	req.Equal(domain.TypeFile, local[0].Type)
	req.Len(local[0].Files, 1, "the optimistic copy carries the attachment")
	req.Equal("draft.png", local[0].Files[0].FileName)
}

func TestEngine_OwnEchoKeepsOptimisticAttachments(t *testing.T) {
	req := require.New(t)
	engine, convID := seededEngine(&fakeAPI{sendMessage: okSend})

	_, err := engine.Send(convID, "see attached",
		[]domain.Attachment{{FileName: "draft.png", FileURL: "/uploads/draft.png"}})
	req.NoError(err)

	echo := domain.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		SenderID:       "alice",
		Content:        "see attached",
		Status:         domain.StatusSent,
		CreatedAt:      time.Now().UTC(),
	}
	engine.HandleNewMessage(echo)

	local := engine.Messages(convID)
	req.Len(local, 1)
	req.Len(local[0].Files, 1)
	req.Equal("draft.png", local[0].Files[0].FileName)
}

func TestEngine_InboundDuplicateByIDDropped(t *testing.T) {
	req := require.New(t)
	engine, convID := seededEngine(&fakeAPI{})

	inbound := domain.Message{
		ID:             uuid.New(),
		ConversationID: convID,
		SenderID:       "bob",
		Content:        "hi",
		Status:         domain.StatusSent,
		CreatedAt:      time.Now().UTC(),
	}
	engine.HandleNewMessage(inbound)
	engine.HandleNewMessage(inbound)

	req.Len(engine.Messages(convID), 1)
}

func TestEngine_InboundNearDuplicateDropped(t *testing.T) {
	req := require.New(t)
	engine, convID := seededEngine(&fakeAPI{})

	now := time.Now().UTC()
	first := domain.Message{
		ID: uuid.New(), ConversationID: convID, SenderID: "bob",
		Content: "hi", Status: domain.StatusSent, CreatedAt: now,
	}
	redelivery := domain.Message{
		ID: uuid.New(), ConversationID: convID, SenderID: "bob",
		Content: "hi", Status: domain.StatusSent, CreatedAt: now.Add(2 * time.Second),
	}
	late := domain.Message{
		ID: uuid.New(), ConversationID: convID, SenderID: "bob",
		Content: "hi", Status: domain.StatusSent, CreatedAt: now.Add(8 * time.Second),
	}

	engine.HandleNewMessage(first)
	engine.HandleNewMessage(redelivery)
	req.Len(engine.Messages(convID), 1, "same content within the window is a redelivery")

	engine.HandleNewMessage(late)
	req.Len(engine.Messages(convID), 2, "outside the window it is a genuine repeat")
}

func TestEngine_InboundUpdatesPreviewWithoutChangingSelection(t *testing.T) {
	req := require.New(t)
	engine, convID := seededEngine(&fakeAPI{})

	other := serverConversation("alice", "carol")
	engine.mu.Lock()
	engine.entries = append(engine.entries, Entry{Conversation: other, OtherUserID: "carol"})
	engine.mu.Unlock()
	engine.SelectConversation(convID)

	inbound := domain.Message{
		ID: uuid.New(), ConversationID: other.ID, SenderID: "carol",
		Content: "ping", Status: domain.StatusSent, CreatedAt: time.Now().UTC(),
	}
	engine.HandleNewMessage(inbound)

	entries := engine.Conversations()
	req.Equal(other.ID, entries[0].Conversation.ID, "active conversation bubbles to the top")
	req.NotNil(entries[0].Conversation.LastMessage)
	req.Equal("ping", entries[0].Conversation.LastMessage.Content)
	req.Equal(convID, engine.Selected(), "selection must not follow inbound traffic")
}

func TestEngine_TempConversationPromotedOnFirstSend(t *testing.T) {
	req := require.New(t)

	promoted := serverConversation("alice", "bob")
	creates := 0
	api := &fakeAPI{
		createConversation: func(otherUserID string) (domain.Conversation, error) {
			creates++
			require.Equal(t, "bob", otherUserID)
			return promoted, nil
		},
		sendMessage: okSend,
	}
	engine := NewEngine(slog.Default(), "alice", api)

	tempID := engine.StartConversation("bob")
	req.True(engine.Conversations()[0].Temp)

	_, err := engine.Send(tempID, "first contact", nil)
	req.NoError(err)
	req.Equal(1, creates)

	entries := engine.Conversations()
	req.Len(entries, 1)
	req.False(entries[0].Temp)
	req.Equal(promoted.ID, entries[0].Conversation.ID)
	req.Equal(promoted.ID, engine.Selected(), "selection follows the promotion")

	req.Empty(engine.Messages(tempID), "temp bucket is gone")
	moved := engine.Messages(promoted.ID)
	req.Len(moved, 1)
	req.Equal(promoted.ID, moved[0].ConversationID)

	// A second send reuses the promoted conversation
	_, err = engine.Send(promoted.ID, "again", nil)
	req.NoError(err)
	req.Equal(1, creates)
}

func TestEngine_StartConversationReusesExisting(t *testing.T) {
	req := require.New(t)
	engine, convID := seededEngine(&fakeAPI{})

	req.Equal(convID, engine.StartConversation("bob"))
	req.Len(engine.Conversations(), 1)
}

func TestEngine_SendFailureRollsBackAndKeepsContent(t *testing.T) {
	req := require.New(t)
	engine, convID := seededEngine(&fakeAPI{
		sendMessage: func(uuid.UUID, string, domain.MessageType, []domain.Attachment) (domain.Message, error) {
			return domain.Message{}, fmt.Errorf("server unavailable")
		},
	})

	_, err := engine.Send(convID, "do not lose me", nil)
	req.Error(err)

	var failure *SendFailure
	req.ErrorAs(err, &failure)
	req.Equal("do not lose me", failure.Content)
	req.Empty(engine.Messages(convID), "failed optimistic send must be rolled back")
}

func TestEngine_CreateFailureKeepsTempEntry(t *testing.T) {
	req := require.New(t)
	engine := NewEngine(slog.Default(), "alice", &fakeAPI{
		createConversation: func(string) (domain.Conversation, error) {
			return domain.Conversation{}, fmt.Errorf("server unavailable")
		},
	})

	tempID := engine.StartConversation("bob")
	_, err := engine.Send(tempID, "hello?", nil)

	var failure *SendFailure
	req.ErrorAs(err, &failure)
	req.Equal("hello?", failure.Content)
	req.True(engine.Conversations()[0].Temp, "promotion failed, entry stays temp for retry")
	req.Empty(engine.Messages(tempID))
}

func TestEngine_LateHistoryForUnselectedConversationDiscarded(t *testing.T) {
	req := require.New(t)
	engine, convID := seededEngine(&fakeAPI{})

	other := serverConversation("alice", "carol")
	engine.mu.Lock()
	engine.entries = append(engine.entries, Entry{Conversation: other, OtherUserID: "carol"})
	engine.mu.Unlock()

	// User switched away before the response for convID arrived
	engine.SelectConversation(other.ID)
	engine.applyHistory(convID, []domain.Message{{
		ID: uuid.New(), ConversationID: convID, SenderID: "bob", Content: "stale",
	}})

	req.Empty(engine.Messages(convID), "late response for an unselected conversation is discarded")
}

func TestEngine_HistoryKeepsPendingSends(t *testing.T) {
	req := require.New(t)
	engine, convID := seededEngine(&fakeAPI{sendMessage: okSend})

	_, err := engine.Send(convID, "optimistic", nil)
	req.NoError(err)
	engine.SelectConversation(convID)

	history := []domain.Message{{
		ID: uuid.New(), ConversationID: convID, SenderID: "bob",
		Content: "from history", Status: domain.StatusSent,
	}}
	engine.applyHistory(convID, history)

	local := engine.Messages(convID)
	req.Len(local, 2)
	req.Equal("from history", local[0].Content)
	req.Equal(StatusPending, local[1].Status)
}
