// Package client is the server-facing half of the terminal client: a
// thin REST wrapper plus a websocket listener feeding gateway events to
// the reconciliation engine.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"pairchat/domain"
	"pairchat/gateway"
	"pairchat/wire"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

type Client struct {
	log     *slog.Logger
	baseURL string
	token   string
	http    *http.Client
}

func New(log *slog.Logger, baseURL, token string) *Client {
	return &Client{
		log:     log,
		baseURL: baseURL,
		token:   token,
		http:    &http.Client{Timeout: 15 * time.Second},
	}
}

type conversationsPage struct {
	Conversations []wire.ConversationDTO `json:"conversations"`
	Total         int64                  `json:"total"`
}

type messagesPage struct {
	Messages []wire.MessageDTO `json:"messages"`
	Total    int64             `json:"total"`
}

type apiError struct {
	Code  string `json:"code"`
	Error string `json:"error"`
}

func (c *Client) CreateConversation(otherUserID string) (domain.Conversation, error) {
	var dto wire.ConversationDTO
	err := c.do("POST", "/api/v1/conversations",
		map[string]string{"otherUserId": otherUserID}, &dto)
	if err != nil {
		return domain.Conversation{}, err
	}
	return wire.ToConversation(dto), nil
}

func (c *Client) SendMessage(conversationID uuid.UUID, content string, messageType domain.MessageType, files []domain.Attachment) (domain.Message, error) {
	payload := struct {
		Content     string               `json:"content"`
		MessageType string               `json:"messageType"`
		Files       []wire.AttachmentDTO `json:"files,omitempty"`
	}{
		Content:     content,
		MessageType: string(messageType),
		Files:       wire.FromAttachments(files),
	}

	var dto wire.MessageDTO
	err := c.do("POST", fmt.Sprintf("/api/v1/conversations/%s/messages", conversationID), payload, &dto)
	if err != nil {
		return domain.Message{}, err
	}
	return wire.ToMessage(dto), nil
}

func (c *Client) Conversations(page, limit int) ([]domain.Conversation, error) {
	var body conversationsPage
	path := "/api/v1/conversations?" + pageQuery(page, limit)
	if err := c.do("GET", path, nil, &body); err != nil {
		return nil, err
	}
	conversations := make([]domain.Conversation, 0, len(body.Conversations))
	for _, dto := range body.Conversations {
		conversations = append(conversations, wire.ToConversation(dto))
	}
	return conversations, nil
}

func (c *Client) Messages(conversationID uuid.UUID, page, limit int) ([]domain.Message, error) {
	var body messagesPage
	path := fmt.Sprintf("/api/v1/conversations/%s/messages?%s", conversationID, pageQuery(page, limit))
	if err := c.do("GET", path, nil, &body); err != nil {
		return nil, err
	}
	messages := make([]domain.Message, 0, len(body.Messages))
	for _, dto := range body.Messages {
		messages = append(messages, wire.ToMessage(dto))
	}
	return messages, nil
}

func (c *Client) MarkRead(conversationID uuid.UUID) (int, error) {
	var body struct {
		Updated int `json:"updated"`
	}
	err := c.do("PUT", fmt.Sprintf("/api/v1/conversations/%s/read", conversationID), nil, &body)
	return body.Updated, err
}

func (c *Client) do(method, path string, payload, out any) error {
	var body io.Reader
	if payload != nil {
		encoded, err := json.Marshal(payload)
		if err != nil {
			return err
		}
		body = bytes.NewReader(encoded)
	}

	req, err := http.NewRequest(method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		var apiErr apiError
		if err := json.NewDecoder(resp.Body).Decode(&apiErr); err == nil && apiErr.Error != "" {
			return fmt.Errorf("%s (%s)", apiErr.Error, apiErr.Code)
		}
		return fmt.Errorf("unexpected status %d on %s %s", resp.StatusCode, method, path)
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

func pageQuery(page, limit int) string {
	values := url.Values{}
	values.Set("page", strconv.Itoa(page))
	values.Set("limit", strconv.Itoa(limit))
	return values.Encode()
}

// Listener is the realtime half: one websocket connection, joined
// conversations, and a callback per incoming message.
type Listener struct {
	log   *slog.Logger
	conn  *websocket.Conn
	onMsg func(domain.Message)
}

// Listen dials the gateway and starts the read loop. Events are
// delivered on the read goroutine until the context is canceled or the
// connection drops.
func Listen(ctx context.Context, log *slog.Logger, wsURL, token string, onMsg func(domain.Message)) (*Listener, error) {
	header := http.Header{}
	header.Set("Authorization", "Bearer "+token)

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, wsURL, header)
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("gateway handshake refused with status %d: %w", resp.StatusCode, err)
		}
		return nil, err
	}

	l := &Listener{log: log, conn: conn, onMsg: onMsg}
	go l.readLoop(ctx)
	return l, nil
}

func (l *Listener) Join(conversationID uuid.UUID) error {
	return l.conn.WriteJSON(gateway.ClientEvent{
		Type:           gateway.EventJoinConversation,
		ConversationID: conversationID,
	})
}

func (l *Listener) Leave(conversationID uuid.UUID) error {
	return l.conn.WriteJSON(gateway.ClientEvent{
		Type:           gateway.EventLeaveConversation,
		ConversationID: conversationID,
	})
}

func (l *Listener) Close() error {
	return l.conn.Close()
}

func (l *Listener) readLoop(ctx context.Context) {
	defer func() { _ = l.conn.Close() }()
	for {
		if ctx.Err() != nil {
			return
		}
		var frame gateway.ServerEvent
		if err := l.conn.ReadJSON(&frame); err != nil {
			l.log.Debug("Gateway connection closed", "error", err)
			return
		}
		switch frame.Type {
		case gateway.EventNewMessage:
			if frame.Message != nil && l.onMsg != nil {
				l.onMsg(wire.ToMessage(*frame.Message))
			}
		case gateway.EventError:
			l.log.Warn("Gateway error event", "code", frame.Code, "error", frame.Error)
		default:
			// joined / left acks need no handling here
		}
	}
}
