package storage

import (
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"os"
	"path/filepath"
	"strings"

	"pairchat/domain"
	apperrors "pairchat/errors"

	"github.com/gabriel-vasile/mimetype"
	"github.com/google/uuid"
)

// MaxUploadBytes bounds a single attachment.
const MaxUploadBytes = 10 << 20

var allowedMimePrefixes = []string{"image/", "video/", "audio/"}

// Documents are an explicit list: text/html, scripts and the rest of
// the text/ tree are not uploadable.
var allowedDocumentTypes = []string{
	"application/pdf",
	"application/msword",
	"application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"text/plain",
}

type IFileStore interface {
	Save(fileHeader *multipart.FileHeader) (domain.Attachment, error)
}

// FileStore writes uploaded attachments to a local directory and
// serves them back under baseURL. The stored name is a fresh uuid with
// the sniffed extension, never the client-provided filename.
type FileStore struct {
	log     *slog.Logger
	dir     string
	baseURL string
}

func NewFileStore(log *slog.Logger, dir, baseURL string) (*FileStore, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating upload directory %s: %w", dir, err)
	}
	return &FileStore{log: log, dir: dir, baseURL: strings.TrimSuffix(baseURL, "/")}, nil
}

func (s *FileStore) Save(fileHeader *multipart.FileHeader) (domain.Attachment, error) {
	if fileHeader.Size > MaxUploadBytes {
		return domain.Attachment{}, fmt.Errorf("%w: file %s exceeds %d bytes",
			apperrors.ErrValidation, fileHeader.Filename, MaxUploadBytes)
	}

	src, err := fileHeader.Open()
	if err != nil {
		return domain.Attachment{}, err
	}
	defer func() { _ = src.Close() }()

	// Sniff the real content type, the client header is not trusted.
	mtype, err := mimetype.DetectReader(src)
	if err != nil {
		return domain.Attachment{}, err
	}
	if !mimeAllowed(mtype) {
		return domain.Attachment{}, fmt.Errorf("%w: file type %s is not allowed",
			apperrors.ErrValidation, mtype.String())
	}
	if _, err := src.Seek(0, io.SeekStart); err != nil {
		return domain.Attachment{}, err
	}

	name := uuid.NewString() + mtype.Extension()
	dst, err := os.Create(filepath.Join(s.dir, name))
	if err != nil {
		return domain.Attachment{}, err
	}
	defer func() { _ = dst.Close() }()

	written, err := io.Copy(dst, src)
	if err != nil {
		return domain.Attachment{}, err
	}

	s.log.Info("Attachment stored", "file", name, "size", written, "mime", mtype.String())
	return domain.Attachment{
		FileURL:  s.baseURL + "/" + name,
		FileName: fileHeader.Filename,
		FileSize: written,
		MimeType: mtype.String(),
	}, nil
}

func mimeAllowed(mtype *mimetype.MIME) bool {
	for _, allowed := range allowedDocumentTypes {
		// Is ignores optional parameters like charset.
		if mtype.Is(allowed) {
			return true
		}
	}
	for _, prefix := range allowedMimePrefixes {
		if strings.HasPrefix(mtype.String(), prefix) {
			return true
		}
	}
	return false
}
