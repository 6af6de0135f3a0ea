package storage

import (
	"bytes"
	"log/slog"
	"mime/multipart"
	"net/http/httptest"
	"strings"
	"testing"

	apperrors "pairchat/errors"

	"github.com/stretchr/testify/require"
)

func multipartFile(t *testing.T, filename string, content []byte) *multipart.FileHeader {
	t.Helper()
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("files", filename)
	require.NoError(t, err)
	_, err = part.Write(content)
	require.NoError(t, err)
	require.NoError(t, writer.Close())

	req := httptest.NewRequest("POST", "/", &body)
	req.Header.Set("Content-Type", writer.FormDataContentType())
	require.NoError(t, req.ParseMultipartForm(32<<20))
	return req.MultipartForm.File["files"][0]
}

func TestFileStore_SaveTextFile(t *testing.T) {
	req := require.New(t)
	store, err := NewFileStore(slog.Default(), t.TempDir(), "/files/")
	req.NoError(err)

	attachment, err := store.Save(multipartFile(t, "notes.txt", []byte("plain text content")))
	req.NoError(err)
	req.Equal("notes.txt", attachment.FileName)
	req.True(strings.HasPrefix(attachment.FileURL, "/files/"))
	req.EqualValues(len("plain text content"), attachment.FileSize)
	req.Contains(attachment.MimeType, "text/plain")
}

func TestFileStore_RejectsDisallowedType(t *testing.T) {
	req := require.New(t)
	store, err := NewFileStore(slog.Default(), t.TempDir(), "/files")
	req.NoError(err)

	// ELF magic bytes: executables are never accepted
	_, err = store.Save(multipartFile(t, "tool", []byte("\x7fELF\x02\x01\x01\x00payload")))
	req.ErrorIs(err, apperrors.ErrValidation)
}

func TestFileStore_RejectsHTMLDespiteTextDetection(t *testing.T) {
	req := require.New(t)
	store, err := NewFileStore(slog.Default(), t.TempDir(), "/files")
	req.NoError(err)

	// Only text/plain is on the document list, not the whole text/ tree
	_, err = store.Save(multipartFile(t, "page.html",
		[]byte("<!DOCTYPE html><html><body><script>alert(1)</script></body></html>")))
	req.ErrorIs(err, apperrors.ErrValidation)
}

func TestFileStore_AcceptsPDF(t *testing.T) {
	req := require.New(t)
	store, err := NewFileStore(slog.Default(), t.TempDir(), "/files")
	req.NoError(err)

	attachment, err := store.Save(multipartFile(t, "report.pdf", []byte("%PDF-1.4\n%fake body")))
	req.NoError(err)
	req.Equal("application/pdf", attachment.MimeType)
}
