package httpapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pairchat/auth"
	"pairchat/domain"
	apperrors "pairchat/errors"
	"pairchat/gateway"
	"pairchat/mocks"
	"pairchat/runtime"
	"pairchat/storage"
	"pairchat/wire"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func setupRouter(t *testing.T) (*gin.Engine, *mocks.MockIChatService) {
	t.Helper()
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)
	service := mocks.NewMockIChatService(ctrl)
	handler := NewHandler(slog.Default(), service, nil)
	gw := gateway.NewGateway(slog.Default(), runtime.NewRegistry(), service)
	return NewRouter(handler, gw), service
}

func authedRequest(t *testing.T, method, target, body string) *http.Request {
	t.Helper()
	token, err := auth.GenerateToken("alice", time.Hour)
	require.NoError(t, err)

	req := httptest.NewRequest(method, target, strings.NewReader(body))
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestAPI_RejectsMissingToken(t *testing.T) {
	req := require.New(t)
	router, _ := setupRouter(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest("GET", "/api/v1/conversations", nil))

	req.Equal(http.StatusUnauthorized, recorder.Code)
	req.Contains(recorder.Body.String(), apperrors.CodeTransportAuth)
}

func TestAPI_CreateConversation(t *testing.T) {
	req := require.New(t)
	router, service := setupRouter(t)

	conv := domain.Conversation{
		ID:           uuid.New(),
		Participants: [2]string{"alice", "bob"},
		Type:         domain.ConversationDirect,
	}
	service.EXPECT().
		FindOrCreateDirect(gomock.Any(), "alice", "bob").
		Return(conv, nil)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(t, "POST", "/api/v1/conversations", `{"otherUserId":"bob"}`))

	req.Equal(http.StatusCreated, recorder.Code)

	var body map[string]any
	req.NoError(json.Unmarshal(recorder.Body.Bytes(), &body))
	req.Equal(conv.ID.String(), body["_id"])
	req.ElementsMatch([]any{"alice", "bob"}, body["participants"])
}

func TestAPI_CreateConversation_MissingBody(t *testing.T) {
	req := require.New(t)
	router, _ := setupRouter(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(t, "POST", "/api/v1/conversations", `{}`))

	req.Equal(http.StatusBadRequest, recorder.Code)
}

func TestAPI_SendMessage(t *testing.T) {
	req := require.New(t)
	router, service := setupRouter(t)
	convID := uuid.New()

	service.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, cmd domain.SendMessageCommand) (domain.Message, error) {
			require.Equal(t, convID, cmd.ConversationID)
			require.Equal(t, "alice", cmd.SenderID)
			require.Equal(t, "hello bob", cmd.Content)
			return domain.Message{
				ID:             uuid.New(),
				ConversationID: convID,
				SenderID:       "alice",
				Content:        cmd.Content,
				Type:           domain.TypeText,
				Status:         domain.StatusSent,
			}, nil
		})

	recorder := httptest.NewRecorder()
	target := fmt.Sprintf("/api/v1/conversations/%s/messages", convID)
	router.ServeHTTP(recorder, authedRequest(t, "POST", target, `{"content":"hello bob"}`))

	req.Equal(http.StatusCreated, recorder.Code)

	var body map[string]any
	req.NoError(json.Unmarshal(recorder.Body.Bytes(), &body))
	req.Equal("SENT", body["status"])
	req.Equal("hello bob", body["content"])
}

func TestAPI_SendMessageWithUploadedFiles(t *testing.T) {
	req := require.New(t)
	router, service := setupRouter(t)
	convID := uuid.New()

	service.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, cmd domain.SendMessageCommand) (domain.Message, error) {
			require.Len(t, cmd.Files, 1, "attachment metadata from the body must reach the service")
			require.Equal(t, "/uploads/cat.png", cmd.Files[0].FileURL)
			require.Equal(t, domain.TypeFile, cmd.Type)
			return domain.Message{
				ID:             uuid.New(),
				ConversationID: convID,
				SenderID:       "alice",
				Content:        cmd.Content,
				Type:           cmd.Type,
				Status:         domain.StatusSent,
				Files:          cmd.Files,
			}, nil
		})

	body := `{"content":"look","files":[{"fileUrl":"/uploads/cat.png","fileName":"cat.png","fileSize":2048,"mimeType":"image/png"}]}`
	recorder := httptest.NewRecorder()
	target := fmt.Sprintf("/api/v1/conversations/%s/messages", convID)
	router.ServeHTTP(recorder, authedRequest(t, "POST", target, body))

	req.Equal(http.StatusCreated, recorder.Code)

	var message wire.MessageDTO
	req.NoError(json.Unmarshal(recorder.Body.Bytes(), &message))
	req.Len(message.Files, 1)
	req.Equal("cat.png", message.Files[0].FileName)
	req.EqualValues(2048, message.Files[0].FileSize)
}

func TestAPI_UploadFilesReturnsAttachmentMetadata(t *testing.T) {
	req := require.New(t)
	gin.SetMode(gin.TestMode)
	ctrl := gomock.NewController(t)
	service := mocks.NewMockIChatService(ctrl)
	files, err := storage.NewFileStore(slog.Default(), t.TempDir(), "/uploads")
	req.NoError(err)
	handler := NewHandler(slog.Default(), service, files)
	gw := gateway.NewGateway(slog.Default(), runtime.NewRegistry(), service)
	router := NewRouter(handler, gw)

	convID := uuid.New()
	service.EXPECT().IsParticipant(convID, "alice").Return(true, nil)

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", "notes.txt")
	req.NoError(err)
	_, err = part.Write([]byte("plain text attachment"))
	req.NoError(err)
	req.NoError(writer.Close())

	token, err := auth.GenerateToken("alice", time.Hour)
	req.NoError(err)
	target := fmt.Sprintf("/api/v1/conversations/%s/upload-files", convID)
	request := httptest.NewRequest("POST", target, &body)
	request.Header.Set("Authorization", "Bearer "+token)
	request.Header.Set("Content-Type", writer.FormDataContentType())

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, request)

	// No message is persisted, only the stored metadata comes back
	req.Equal(http.StatusCreated, recorder.Code)
	var uploaded []wire.AttachmentDTO
	req.NoError(json.Unmarshal(recorder.Body.Bytes(), &uploaded))
	req.Len(uploaded, 1)
	req.Equal("notes.txt", uploaded[0].FileName)
	req.True(strings.HasPrefix(uploaded[0].FileURL, "/uploads/"))
}

func TestAPI_SendMessage_NonParticipant(t *testing.T) {
	req := require.New(t)
	router, service := setupRouter(t)
	convID := uuid.New()

	service.EXPECT().
		Send(gomock.Any(), gomock.Any()).
		Return(domain.Message{}, fmt.Errorf("nope: %w", apperrors.ErrPermissionDenied))

	recorder := httptest.NewRecorder()
	target := fmt.Sprintf("/api/v1/conversations/%s/messages", convID)
	router.ServeHTTP(recorder, authedRequest(t, "POST", target, `{"content":"hi"}`))

	req.Equal(http.StatusForbidden, recorder.Code)
	req.Contains(recorder.Body.String(), apperrors.CodePermissionDenied)
}

func TestAPI_ListMessages_InvalidConversationID(t *testing.T) {
	req := require.New(t)
	router, _ := setupRouter(t)

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(t, "GET", "/api/v1/conversations/not-a-uuid/messages", ""))

	req.Equal(http.StatusBadRequest, recorder.Code)
	req.Contains(recorder.Body.String(), apperrors.CodeValidation)
}

func TestAPI_ListMessages_SearchRoutesToIndex(t *testing.T) {
	req := require.New(t)
	router, service := setupRouter(t)
	convID := uuid.New()

	service.EXPECT().
		SearchMessages(gomock.Any(), gomock.Any()).
		DoAndReturn(func(_ any, cmd domain.SearchMessagesCommand) ([]domain.Message, int64, error) {
			require.Equal(t, "badger", cmd.Terms)
			return nil, 0, nil
		})

	recorder := httptest.NewRecorder()
	target := fmt.Sprintf("/api/v1/conversations/%s/messages?q=badger", convID)
	router.ServeHTTP(recorder, authedRequest(t, "GET", target, ""))

	req.Equal(http.StatusOK, recorder.Code)
}

func TestAPI_MarkRead(t *testing.T) {
	req := require.New(t)
	router, service := setupRouter(t)
	convID := uuid.New()

	service.EXPECT().
		MarkRead(gomock.Any(), convID, "alice").
		Return(2, nil)

	recorder := httptest.NewRecorder()
	target := fmt.Sprintf("/api/v1/conversations/%s/read", convID)
	router.ServeHTTP(recorder, authedRequest(t, "PUT", target, ""))

	req.Equal(http.StatusOK, recorder.Code)
	req.JSONEq(`{"updated": 2}`, recorder.Body.String())
}

func TestAPI_GetConversation_NotFound(t *testing.T) {
	req := require.New(t)
	router, service := setupRouter(t)
	convID := uuid.New()

	service.EXPECT().
		Conversation(gomock.Any(), "alice", convID).
		Return(domain.Conversation{}, fmt.Errorf("conversation %s: %w", convID, apperrors.ErrNotFound))

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, authedRequest(t, "GET", "/api/v1/conversations/"+convID.String(), ""))

	req.Equal(http.StatusNotFound, recorder.Code)
}
