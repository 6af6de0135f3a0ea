package httpapi

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"pairchat/auth"
	"pairchat/domain"
	apperrors "pairchat/errors"
	"pairchat/services"
	"pairchat/storage"
	"pairchat/wire"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	defaultPageSize = 20
	maxPageSize     = 100
	maxUploadFiles  = 10
)

type Handler struct {
	log     *slog.Logger
	service services.IChatService
	files   storage.IFileStore
	started time.Time
}

func NewHandler(log *slog.Logger, service services.IChatService, files storage.IFileStore) *Handler {
	return &Handler{log: log, service: service, files: files, started: time.Now()}
}

type createConversationRequest struct {
	OtherUserID string `json:"otherUserId" binding:"required"`
}

type sendMessageRequest struct {
	Content     string               `json:"content"`
	MessageType string               `json:"messageType"`
	Files       []wire.AttachmentDTO `json:"files"`
}

// CreateConversation finds or creates the single DIRECT conversation
// between the caller and otherUserId. Repeated calls return the same
// conversation, always with 201.
func (h *Handler) CreateConversation(c *gin.Context) {
	var body createConversationRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": apperrors.CodeValidation, "error": err.Error()})
		return
	}

	conv, err := h.service.FindOrCreateDirect(c.Request.Context(), auth.UserID(c), body.OtherUserID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, wire.FromConversation(conv))
}

func (h *Handler) ListConversations(c *gin.Context) {
	page, limit := pagination(c)
	conversations, total, err := h.service.Conversations(c.Request.Context(), auth.UserID(c), page, limit)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"conversations": wire.FromConversations(conversations),
		"total":         total,
		"page":          page,
		"limit":         limit,
	})
}

func (h *Handler) GetConversation(c *gin.Context) {
	conversationID, ok := h.conversationID(c)
	if !ok {
		return
	}
	conv, err := h.service.Conversation(c.Request.Context(), auth.UserID(c), conversationID)
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, wire.FromConversation(conv))
}

// ListMessages returns a chronological page, or a relevance-ranked one
// when the q parameter carries search terms.
func (h *Handler) ListMessages(c *gin.Context) {
	conversationID, ok := h.conversationID(c)
	if !ok {
		return
	}
	page, limit := pagination(c)

	var (
		messages []domain.Message
		total    int64
		err      error
	)
	if terms := c.Query("q"); terms != "" {
		messages, total, err = h.service.SearchMessages(c.Request.Context(), domain.SearchMessagesCommand{
			ConversationID: conversationID,
			CallerID:       auth.UserID(c),
			Terms:          terms,
			Page:           page,
			Limit:          limit,
		})
	} else {
		messages, total, err = h.service.Messages(c.Request.Context(), domain.ListMessagesCommand{
			ConversationID: conversationID,
			CallerID:       auth.UserID(c),
			Page:           page,
			Limit:          limit,
		})
	}
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"messages": wire.FromMessages(messages),
		"total":    total,
		"page":     page,
		"limit":    limit,
	})
}

func (h *Handler) SendMessage(c *gin.Context) {
	conversationID, ok := h.conversationID(c)
	if !ok {
		return
	}
	var body sendMessageRequest
	if err := c.ShouldBindJSON(&body); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": apperrors.CodeValidation, "error": err.Error()})
		return
	}

	messageType := domain.MessageType(body.MessageType)
	if messageType == "" && len(body.Files) > 0 {
		messageType = domain.TypeFile
	}
	message, err := h.service.Send(c.Request.Context(), domain.SendMessageCommand{
		ConversationID: conversationID,
		SenderID:       auth.UserID(c),
		Content:        body.Content,
		Type:           messageType,
		Files:          wire.ToAttachments(body.Files),
	})
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, wire.FromMessage(message))
}

// UploadFiles stores up to ten attachments, each sniffed before it is
// accepted, and returns their metadata for inclusion in a following
// send. No message is persisted here.
func (h *Handler) UploadFiles(c *gin.Context) {
	conversationID, ok := h.conversationID(c)
	if !ok {
		return
	}
	if h.files == nil {
		c.JSON(http.StatusNotImplemented, gin.H{"code": apperrors.CodeValidation, "error": "attachments are disabled"})
		return
	}
	if err := h.requireParticipant(c, conversationID); err != nil {
		h.respondError(c, err)
		return
	}

	form, err := c.MultipartForm()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"code": apperrors.CodeValidation, "error": err.Error()})
		return
	}
	fileHeaders := form.File["files"]
	if len(fileHeaders) == 0 || len(fileHeaders) > maxUploadFiles {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  apperrors.CodeValidation,
			"error": "between 1 and 10 files are required",
		})
		return
	}

	attachments := make([]domain.Attachment, 0, len(fileHeaders))
	for _, fileHeader := range fileHeaders {
		attachment, err := h.files.Save(fileHeader)
		if err != nil {
			h.respondError(c, err)
			return
		}
		attachments = append(attachments, attachment)
	}

	c.JSON(http.StatusCreated, wire.FromAttachments(attachments))
}

// MarkRead stamps every unread message from the other participant.
// Idempotent: a second call reports zero updates.
func (h *Handler) MarkRead(c *gin.Context) {
	conversationID, ok := h.conversationID(c)
	if !ok {
		return
	}
	updated, err := h.service.MarkRead(c.Request.Context(), conversationID, auth.UserID(c))
	if err != nil {
		h.respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"updated": updated})
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status": "ok",
		"uptime": time.Since(h.started).Round(time.Second).String(),
	})
}

func (h *Handler) requireParticipant(c *gin.Context, conversationID uuid.UUID) error {
	ok, err := h.service.IsParticipant(conversationID, auth.UserID(c))
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("user %s on conversation %s: %w",
			auth.UserID(c), conversationID, apperrors.ErrPermissionDenied)
	}
	return nil
}

func (h *Handler) conversationID(c *gin.Context) (uuid.UUID, bool) {
	conversationID, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"code":  apperrors.CodeValidation,
			"error": "invalid conversation id",
		})
		return uuid.Nil, false
	}
	return conversationID, true
}

func (h *Handler) respondError(c *gin.Context, err error) {
	status := apperrors.MapToHTTPStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error("Request failed", "path", c.FullPath(), "error", err)
		c.JSON(status, gin.H{"code": apperrors.CodeInternal, "error": "internal error"})
		return
	}
	c.JSON(status, gin.H{"code": apperrors.CodeOf(err), "error": err.Error()})
}

func pagination(c *gin.Context) (int, int) {
	page, err := strconv.Atoi(c.DefaultQuery("page", "0"))
	if err != nil || page < 0 {
		page = 0
	}
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultPageSize)))
	if err != nil || limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}
	return page, limit
}
