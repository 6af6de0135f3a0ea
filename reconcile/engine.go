// Package reconcile keeps a client-side view of conversations and
// messages consistent while sends are optimistic and the gateway echoes
// every persisted message back, including the sender's own.
package reconcile

import (
	"fmt"
	"log/slog"
	"sync"
	"time"

	"pairchat/domain"

	"github.com/google/uuid"
)

// StatusPending marks a message that exists only locally: it was
// inserted optimistically and the server has not echoed it back yet.
const StatusPending domain.MessageStatus = "PENDING"

const (
	// An own echo within this window of the optimistic insert replaces
	// it in place instead of appending a duplicate.
	echoMatchWindow = 10 * time.Second
	// An inbound message matching an existing one this closely is
	// treated as a redelivery and dropped.
	duplicateWindow = 5 * time.Second
)

// API is the server surface the engine reconciles against.
type API interface {
	CreateConversation(otherUserID string) (domain.Conversation, error)
	SendMessage(conversationID uuid.UUID, content string, messageType domain.MessageType, files []domain.Attachment) (domain.Message, error)
	Conversations(page, limit int) ([]domain.Conversation, error)
	Messages(conversationID uuid.UUID, page, limit int) ([]domain.Message, error)
	MarkRead(conversationID uuid.UUID) (int, error)
}

// SendFailure reports a failed send. The composed content is preserved
// so the caller can surface it for retry instead of losing the draft.
type SendFailure struct {
	ConversationID uuid.UUID
	Content        string
	Err            error
}

func (f *SendFailure) Error() string {
	return fmt.Sprintf("send to conversation %s failed: %v", f.ConversationID, f.Err)
}

func (f *SendFailure) Unwrap() error { return f.Err }

// Entry is one conversation in the ordered list. A temp entry exists
// only locally: it was started by the user and is promoted to a real
// conversation on the first successful send.
type Entry struct {
	Conversation domain.Conversation
	OtherUserID  string
	Temp         bool
}

// Engine holds the reconciled state. All methods are safe for
// concurrent use: gateway events and user actions arrive on different
// goroutines.
type Engine struct {
	mu       sync.Mutex
	log      *slog.Logger
	userID   string
	api      API
	now      func() time.Time
	entries  []Entry
	messages map[uuid.UUID][]domain.Message
	selected uuid.UUID
}

func NewEngine(log *slog.Logger, userID string, api API) *Engine {
	return &Engine{
		log:      log,
		userID:   userID,
		api:      api,
		now:      time.Now,
		messages: make(map[uuid.UUID][]domain.Message),
	}
}

// LoadConversations seeds the list from the server, keeping any temp
// entries that have not been promoted yet.
func (e *Engine) LoadConversations(page, limit int) error {
	conversations, err := e.api.Conversations(page, limit)
	if err != nil {
		return err
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	var kept []Entry
	for _, entry := range e.entries {
		if entry.Temp {
			kept = append(kept, entry)
		}
	}
	for _, conv := range conversations {
		kept = append(kept, Entry{
			Conversation: conv,
			OtherUserID:  conv.OtherParticipant(e.userID),
		})
	}
	e.entries = kept
	return nil
}

// StartConversation returns the id of the conversation with
// otherUserID, creating a local temp entry when none exists. Nothing
// touches the server until the first send.
func (e *Engine) StartConversation(otherUserID string) uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()

	for _, entry := range e.entries {
		if entry.OtherUserID == otherUserID {
			e.selected = entry.Conversation.ID
			return entry.Conversation.ID
		}
	}

	now := e.now().UTC()
	conv := domain.Conversation{
		ID:        uuid.New(),
		Type:      domain.ConversationDirect,
		CreatedAt: now,
		UpdatedAt: now,
	}
	first, second := domain.CanonicalPair(e.userID, otherUserID)
	conv.Participants = [2]string{first, second}
	e.entries = append([]Entry{{Conversation: conv, OtherUserID: otherUserID, Temp: true}}, e.entries...)
	e.selected = conv.ID
	return conv.ID
}

// Send inserts the message optimistically, promotes a temp conversation
// on first use, then performs the server send. Attachments are expected
// to be uploaded already; their metadata rides on the optimistic copy.
// On failure the optimistic message is rolled back and a SendFailure
// preserves the content.
func (e *Engine) Send(conversationID uuid.UUID, content string, files []domain.Attachment) (domain.Message, error) {
	e.mu.Lock()
	idx := e.entryIndexLocked(conversationID)
	if idx < 0 {
		e.mu.Unlock()
		return domain.Message{}, fmt.Errorf("unknown conversation %s", conversationID)
	}
	entry := e.entries[idx]

	messageType := domain.TypeText
	if len(files) > 0 {
		messageType = domain.TypeFile
	}
	optimistic := domain.Message{
		ID:             uuid.New(),
		ConversationID: conversationID,
		SenderID:       e.userID,
		Content:        content,
		Type:           messageType,
		Status:         StatusPending,
		Files:          files,
		CreatedAt:      e.now().UTC(),
	}
	e.messages[conversationID] = append(e.messages[conversationID], optimistic)
	e.touchLocked(conversationID, optimistic, false)
	e.mu.Unlock()

	realID := conversationID
	if entry.Temp {
		conv, err := e.api.CreateConversation(entry.OtherUserID)
		if err != nil {
			e.removeMessage(conversationID, optimistic.ID)
			return domain.Message{}, &SendFailure{ConversationID: conversationID, Content: content, Err: err}
		}
		realID = conv.ID
		e.promote(conversationID, conv)
	}

	sent, err := e.api.SendMessage(realID, content, messageType, files)
	if err != nil {
		e.removeMessage(realID, optimistic.ID)
		return domain.Message{}, &SendFailure{ConversationID: realID, Content: content, Err: err}
	}
	// The optimistic copy stays PENDING until the gateway echoes the
	// persisted message back through HandleNewMessage.
	return sent, nil
}

// HandleNewMessage applies one gateway event. Own echoes replace the
// matching pending message in place, inbound redeliveries are dropped,
// everything else appends. The selected conversation never changes.
func (e *Engine) HandleNewMessage(m domain.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.messages[m.ConversationID]

	if m.SenderID == e.userID {
		for i, existing := range list {
			if existing.Status == StatusPending &&
				existing.Content == m.Content &&
				absDuration(m.CreatedAt.Sub(existing.CreatedAt)) < echoMatchWindow {
				// Keep the optimistic attachments when the echo lost them.
				if len(m.Files) == 0 && len(existing.Files) > 0 {
					m.Files = existing.Files
				}
				list[i] = m
				e.messages[m.ConversationID] = list
				e.touchLocked(m.ConversationID, m, false)
				return
			}
		}
	} else {
		for _, existing := range list {
			if existing.ID == m.ID {
				return
			}
			if existing.SenderID == m.SenderID &&
				existing.Content == m.Content &&
				absDuration(m.CreatedAt.Sub(existing.CreatedAt)) < duplicateWindow {
				return
			}
		}
	}

	e.messages[m.ConversationID] = append(list, m)
	e.touchLocked(m.ConversationID, m, true)
}

// SelectConversation marks the conversation as the one being viewed and
// returns the current local page. Callers refresh from the server with
// RefreshHistory.
func (e *Engine) SelectConversation(conversationID uuid.UUID) []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.selected = conversationID
	return copyMessages(e.messages[conversationID])
}

// RefreshHistory fetches the server history for the conversation and
// applies it only if that conversation is still selected, so a slow
// response never overwrites the view of another conversation.
func (e *Engine) RefreshHistory(conversationID uuid.UUID, page, limit int) error {
	history, err := e.api.Messages(conversationID, page, limit)
	if err != nil {
		return err
	}
	e.applyHistory(conversationID, history)
	return nil
}

func (e *Engine) applyHistory(conversationID uuid.UUID, history []domain.Message) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.selected != conversationID {
		e.log.Debug("Discarding history for unselected conversation",
			"conversation_id", conversationID)
		return
	}

	// Server history is authoritative, local pending sends survive.
	merged := make([]domain.Message, len(history))
	copy(merged, history)
	for _, existing := range e.messages[conversationID] {
		if existing.Status == StatusPending {
			merged = append(merged, existing)
		}
	}
	e.messages[conversationID] = merged
}

// MarkRead stamps the other participant's messages as read, both on the
// server and in the local view.
func (e *Engine) MarkRead(conversationID uuid.UUID) (int, error) {
	updated, err := e.api.MarkRead(conversationID)
	if err != nil {
		return 0, err
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	now := e.now().UTC()
	list := e.messages[conversationID]
	for i, m := range list {
		if m.SenderID != e.userID && !m.ReadByUser(e.userID) {
			m.ReadBy = append(m.ReadBy, domain.ReadReceipt{UserID: e.userID, ReadAt: now})
			m.Status = domain.StatusRead
			list[i] = m
		}
	}
	return updated, nil
}

// Conversations returns the ordered entries, most recently active first.
func (e *Engine) Conversations() []Entry {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := make([]Entry, len(e.entries))
	copy(out, e.entries)
	return out
}

func (e *Engine) Messages(conversationID uuid.UUID) []domain.Message {
	e.mu.Lock()
	defer e.mu.Unlock()
	return copyMessages(e.messages[conversationID])
}

func (e *Engine) Selected() uuid.UUID {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.selected
}

// promote swaps the temp conversation for the server's record in place:
// same list position, remapped messages, selection carried over.
func (e *Engine) promote(tempID uuid.UUID, conv domain.Conversation) {
	e.mu.Lock()
	defer e.mu.Unlock()

	idx := e.entryIndexLocked(tempID)
	if idx < 0 {
		return
	}
	e.entries[idx] = Entry{
		Conversation: conv,
		OtherUserID:  conv.OtherParticipant(e.userID),
	}

	moved := e.messages[tempID]
	delete(e.messages, tempID)
	for i := range moved {
		moved[i].ConversationID = conv.ID
	}
	e.messages[conv.ID] = append(moved, e.messages[conv.ID]...)

	if e.selected == tempID {
		e.selected = conv.ID
	}
}

func (e *Engine) removeMessage(conversationID, messageID uuid.UUID) {
	e.mu.Lock()
	defer e.mu.Unlock()

	list := e.messages[conversationID]
	for i, m := range list {
		if m.ID == messageID {
			e.messages[conversationID] = append(list[:i], list[i+1:]...)
			return
		}
	}
}

// touchLocked refreshes the entry's preview and bumps it to the front.
// An unknown conversation gets a minimal entry: the first contact may
// arrive over the gateway before any list refresh.
func (e *Engine) touchLocked(conversationID uuid.UUID, m domain.Message, countMessage bool) {
	idx := e.entryIndexLocked(conversationID)
	if idx < 0 {
		conv := domain.Conversation{
			ID:        conversationID,
			Type:      domain.ConversationDirect,
			CreatedAt: m.CreatedAt,
		}
		first, second := domain.CanonicalPair(e.userID, m.SenderID)
		conv.Participants = [2]string{first, second}
		e.entries = append([]Entry{{Conversation: conv, OtherUserID: m.SenderID}}, e.entries...)
		idx = 0
	}

	entry := e.entries[idx]
	entry.Conversation.LastMessage = &domain.LastMessage{
		MessageID: m.ID,
		Content:   domain.Preview(m.Content),
		SenderID:  m.SenderID,
		SentAt:    m.CreatedAt,
	}
	entry.Conversation.UpdatedAt = m.CreatedAt
	if countMessage {
		entry.Conversation.MessageCount++
	}

	e.entries = append(e.entries[:idx], e.entries[idx+1:]...)
	e.entries = append([]Entry{entry}, e.entries...)
}

func (e *Engine) entryIndexLocked(conversationID uuid.UUID) int {
	for i, entry := range e.entries {
		if entry.Conversation.ID == conversationID {
			return i
		}
	}
	return -1
}

func copyMessages(list []domain.Message) []domain.Message {
	out := make([]domain.Message, len(list))
	copy(out, list)
	return out
}

func absDuration(d time.Duration) time.Duration {
	if d < 0 {
		return -d
	}
	return d
}
