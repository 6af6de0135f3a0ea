package gateway

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"pairchat/auth"
	"pairchat/contract"
	"pairchat/domain"
	apperrors "pairchat/errors"
	"pairchat/services"
	"pairchat/wire"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

const (
	writeTimeout = 10 * time.Second
	// Frames queued per connection before the sink starts dropping.
	frameBufferSize = 64
)

// Gateway terminates websocket connections, maintains per-conversation
// subscriptions in the registry, and relays sends through the chat
// service so the persistence and broadcast rules hold on this transport
// too.
type Gateway struct {
	log      *slog.Logger
	upgrader websocket.Upgrader
	registry contract.IRegistry
	service  services.IChatService
}

func NewGateway(log *slog.Logger, registry contract.IRegistry, service services.IChatService) *Gateway {
	return &Gateway{
		log:      log,
		registry: registry,
		service:  service,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// Handle authenticates the handshake and, only then, upgrades. A missing
// or invalid token is refused with 401 before any websocket traffic.
func (g *Gateway) Handle(c *gin.Context) {
	token := auth.BearerToken(c.Request)
	claims, err := auth.ValidateToken(token)
	if err != nil {
		c.JSON(http.StatusUnauthorized, gin.H{
			"code":  apperrors.CodeTransportAuth,
			"error": "invalid or missing token",
		})
		return
	}

	conn, err := g.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		g.log.Warn("Websocket upgrade failed", "error", err)
		return
	}

	g.serve(conn, claims.UserID)
}

func (g *Gateway) serve(conn *websocket.Conn, userID string) {
	connID := uuid.NewString()
	sink := NewConnSink(g.log, frameBufferSize)
	done := make(chan struct{})

	defer func() {
		g.registry.UnsubscribeAll(connID)
		close(done)
		_ = conn.Close()
		g.log.Info("Connection closed", "conn_id", connID, "user", userID)
	}()

	go g.writeLoop(conn, sink, done)

	g.log.Info("Connection established", "conn_id", connID, "user", userID)
	for {
		var evt ClientEvent
		if err := conn.ReadJSON(&evt); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				g.log.Warn("Read failed", "conn_id", connID, "error", err)
			}
			return
		}
		g.dispatch(connID, userID, sink, evt)
	}
}

// dispatch handles one client frame. Protocol errors are reported on the
// same connection without tearing it down.
func (g *Gateway) dispatch(connID, userID string, sink *ConnSink, evt ClientEvent) {
	switch evt.Type {
	case EventJoinConversation:
		// Membership is checked per join, not once per connection: a
		// valid token does not grant access to arbitrary conversations.
		ok, err := g.service.IsParticipant(evt.ConversationID, userID)
		if err != nil {
			sink.Push(errorFrame(evt.ConversationID, err))
			return
		}
		if !ok {
			sink.Push(errorFrame(evt.ConversationID, apperrors.ErrPermissionDenied))
			return
		}
		g.registry.Subscribe(connID, evt.ConversationID, sink)
		sink.Push(ServerEvent{Type: EventJoined, ConversationID: evt.ConversationID})

	case EventLeaveConversation:
		g.registry.Unsubscribe(connID, evt.ConversationID)
		sink.Push(ServerEvent{Type: EventLeft, ConversationID: evt.ConversationID})

	case EventSendMessage:
		// The service persists first and publishes after: the sender
		// receives its own message back as new_message like any other
		// subscriber.
		_, err := g.service.Send(context.Background(), domain.SendMessageCommand{
			ConversationID: evt.ConversationID,
			SenderID:       userID,
			Content:        evt.Content,
			Type:           domain.MessageType(evt.MessageType),
			Files:          wire.ToAttachments(evt.Files),
		})
		if err != nil {
			sink.Push(errorFrame(evt.ConversationID, err))
		}

	default:
		sink.Push(ServerEvent{
			Type:  EventError,
			Code:  apperrors.CodeValidation,
			Error: "unknown event type: " + evt.Type,
		})
	}
}

func (g *Gateway) writeLoop(conn *websocket.Conn, sink *ConnSink, done <-chan struct{}) {
	for {
		select {
		case <-done:
			return
		case frame := <-sink.Frames():
			_ = conn.SetWriteDeadline(time.Now().Add(writeTimeout))
			if err := conn.WriteJSON(frame); err != nil {
				g.log.Debug("Write failed", "error", err)
				return
			}
		}
	}
}

func errorFrame(conversationID uuid.UUID, err error) ServerEvent {
	frame := ServerEvent{
		Type:           EventError,
		ConversationID: conversationID,
		Code:           apperrors.CodeOf(err),
	}
	if errors.Is(err, apperrors.ErrPermissionDenied) {
		frame.Error = "not a participant of this conversation"
	} else {
		frame.Error = err.Error()
	}
	return frame
}
