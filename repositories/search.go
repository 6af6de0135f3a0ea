//go:generate go run go.uber.org/mock/mockgen -source=search.go -destination=../mocks/mock_search_repository.go -package=mocks
package repositories

import (
	"context"
	"log/slog"

	"pairchat/domain"

	"github.com/blugelabs/bluge"
	"github.com/google/uuid"
)

type ISearchRepository interface {
	Index(m domain.Message) error
	Search(ctx context.Context, conversationID uuid.UUID, terms string, page, limit int) ([]string, uint64, error)
}

// SearchRepository maintains a Bluge full-text index over message
// content. Document ids are the Badger storage keys, so hits resolve
// straight back to full records via MessageRepository.GetByKeys.
type SearchRepository struct {
	writer *bluge.Writer
	log    *slog.Logger
}

func NewSearchRepository(writer *bluge.Writer, log *slog.Logger) SearchRepository {
	return SearchRepository{writer: writer, log: log}
}

func (s SearchRepository) Index(m domain.Message) error {
	doc := bluge.NewDocument(MessageKey(m)).
		AddField(bluge.NewTextField("content", m.Content)).
		AddField(bluge.NewKeywordField("conversation", m.ConversationID.String())).
		AddField(bluge.NewKeywordField("sender", m.SenderID)).
		AddField(bluge.NewDateTimeField("created_at", m.CreatedAt))
	return s.writer.Update(doc.ID(), doc)
}

// Search returns the storage keys of matching messages in one
// conversation plus the total hit count.
func (s SearchRepository) Search(ctx context.Context, conversationID uuid.UUID, terms string, page, limit int) ([]string, uint64, error) {
	reader, err := s.writer.Reader()
	if err != nil {
		return nil, 0, err
	}
	defer func() {
		if err := reader.Close(); err != nil {
			s.log.Warn("Failed to close index reader", "error", err)
		}
	}()

	query := bluge.NewBooleanQuery().
		AddMust(bluge.NewMatchQuery(terms).SetField("content")).
		AddMust(bluge.NewTermQuery(conversationID.String()).SetField("conversation"))

	request := bluge.NewTopNSearch(limit, query).
		SetFrom(page * limit).
		WithStandardAggregations()

	documents, err := reader.Search(ctx, request)
	if err != nil {
		return nil, 0, err
	}

	var keys []string
	match, err := documents.Next()
	for err == nil && match != nil {
		visitErr := match.VisitStoredFields(func(field string, value []byte) bool {
			if field == "_id" {
				keys = append(keys, string(value))
			}
			return true
		})
		if visitErr != nil {
			return nil, 0, visitErr
		}
		match, err = documents.Next()
	}
	if err != nil {
		return nil, 0, err
	}

	return keys, documents.Aggregations().Count(), nil
}
