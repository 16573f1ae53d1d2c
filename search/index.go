package search

import (
	"chat-relay/domain"
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/blugelabs/bluge"
)

const (
	fieldID     = "_id"
	fieldRoom   = "room"
	fieldSender = "sender"
	fieldBody   = "body"
	fieldAt     = "at"
)

// Hit is one message matching a search.
type Hit struct {
	ID     string    `json:"id"`
	Room   string    `json:"room"`
	Sender string    `json:"sender"`
	Body   string    `json:"message"`
	At     time.Time `json:"createdAt"`
	Score  float64   `json:"score"`
}

// Index is the full-text index of persisted text messages.
// Messages are only written by the search sink, the HTTP API only reads.
type Index struct {
	mu     sync.Mutex
	writer *bluge.Writer
	log    *slog.Logger
}

// Open creates or reopens the index stored under path.
func Open(path string, log *slog.Logger) (*Index, error) {
	writer, err := bluge.OpenWriter(bluge.DefaultConfig(path))
	if err != nil {
		return nil, fmt.Errorf("bluge opening failed: %w", err)
	}
	return NewIndex(writer, log), nil
}

func NewIndex(writer *bluge.Writer, log *slog.Logger) *Index {
	return &Index{writer: writer, log: log}
}

// IndexMessage adds or replaces a message. Messages without a body are skipped.
func (i *Index) IndexMessage(m domain.Message) error {
	if m.Body == "" || m.Room == "" {
		return nil
	}
	doc := bluge.NewDocument(m.ID.String()).
		AddField(bluge.NewKeywordField(fieldRoom, m.Room).StoreValue()).
		AddField(bluge.NewKeywordField(fieldSender, m.Sender).StoreValue()).
		AddField(bluge.NewTextField(fieldBody, m.Body).StoreValue()).
		AddField(bluge.NewDateTimeField(fieldAt, m.CreatedAt).StoreValue().Sortable())

	i.mu.Lock()
	defer i.mu.Unlock()
	return i.writer.Update(doc.ID(), doc)
}

// DeleteRoom removes every indexed message of a room and returns how many were removed.
func (i *Index) DeleteRoom(ctx context.Context, room string) (int, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	reader, err := i.writer.Reader()
	if err != nil {
		return 0, err
	}
	defer reader.Close()

	request := bluge.NewAllMatches(bluge.NewTermQuery(room).SetField(fieldRoom))
	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return 0, err
	}

	batch := bluge.NewBatch()
	count := 0
	match, err := iterator.Next()
	for err == nil && match != nil {
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			if field == fieldID {
				batch.Delete(bluge.Identifier(value))
				count++
			}
			return true
		})
		if err != nil {
			return 0, err
		}
		match, err = iterator.Next()
	}
	if err != nil {
		return 0, err
	}
	if count == 0 {
		return 0, nil
	}
	if err := i.writer.Batch(batch); err != nil {
		return 0, err
	}
	i.log.Debug("Room removed from search index", "room", room, "count", count)
	return count, nil
}

// Search returns the best matching messages, most relevant first.
// Without terms, the most recent messages matching the filters are returned.
func (i *Index) Search(ctx context.Context, q Query) ([]Hit, error) {
	if q.IsEmpty() {
		return []Hit{}, nil
	}
	limit := q.Limit
	if limit <= 0 {
		limit = DefaultLimit
	}

	query := bluge.NewBooleanQuery()
	if q.Terms != "" {
		query.AddMust(bluge.NewMatchQuery(q.Terms).SetField(fieldBody).SetOperator(bluge.MatchQueryOperatorAnd))
	} else {
		query.AddMust(bluge.NewMatchAllQuery())
	}
	if q.Room != "" {
		query.AddMust(bluge.NewTermQuery(q.Room).SetField(fieldRoom))
	}
	if q.Sender != "" {
		query.AddMust(bluge.NewTermQuery(q.Sender).SetField(fieldSender))
	}

	request := bluge.NewTopNSearch(limit, query)
	if q.Terms == "" {
		request.SortBy([]string{"-" + fieldAt})
	}

	reader, err := i.writer.Reader()
	if err != nil {
		return nil, err
	}
	defer reader.Close()

	iterator, err := reader.Search(ctx, request)
	if err != nil {
		return nil, err
	}

	hits := []Hit{}
	match, err := iterator.Next()
	for err == nil && match != nil {
		hit := Hit{Score: match.Score}
		var decodeErr error
		err = match.VisitStoredFields(func(field string, value []byte) bool {
			switch field {
			case fieldID:
				hit.ID = string(value)
			case fieldRoom:
				hit.Room = string(value)
			case fieldSender:
				hit.Sender = string(value)
			case fieldBody:
				hit.Body = string(value)
			case fieldAt:
				hit.At, decodeErr = bluge.DecodeDateTime(value)
			}
			return true
		})
		if err != nil {
			return nil, err
		}
		if decodeErr != nil {
			return nil, decodeErr
		}
		hits = append(hits, hit)
		match, err = iterator.Next()
	}
	if err != nil {
		return nil, err
	}
	return hits, nil
}

func (i *Index) Close() error {
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.writer.Close()
}
