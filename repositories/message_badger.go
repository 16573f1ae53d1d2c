package repositories

import (
	"bytes"
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/url"
	"slices"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
)

const maxConflictRetries = 10

var _ IMessageRepository = (*MessageRepository)(nil)

type MessageRepository struct {
	db            *badger.DB
	log           *slog.Logger
	limitMessages *int
}

func NewMessageRepository(db *badger.DB, log *slog.Logger, limitMessages *int) *MessageRepository {
	return &MessageRepository{db: db, log: log, limitMessages: limitMessages}
}

// roomPrefix escapes the room name so that "a" never matches the keys of room "a:b".
func roomPrefix(room string) []byte {
	return []byte(fmt.Sprintf("msg:%s:", url.QueryEscape(room)))
}

// messageKey is formatted as "msg:{room}:{timestamp_padded}:{uuid}" to:
//  1. Ensure chronological sorting using 19-digit zero padding (lexicographical order).
//  2. Prevent data loss by using UUID as a collision disconnector if two messages
//     arrive at the same nanosecond.
func messageKey(m DiskMessage) []byte {
	return append(roomPrefix(m.Room), []byte(fmt.Sprintf("%019d:%s", m.At.UnixNano(), m.ID))...)
}

// indexKey points from a message id to its primary key.
func indexKey(id uuid.UUID) []byte {
	return []byte("idx:msg:" + id.String())
}

// StoreMessage persists the message and its id index in the same transaction.
func (m *MessageRepository) StoreMessage(ctx context.Context, message domain.Message) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	message = prepare(message)
	dm := fromDomainMessage(message)
	bytes, err := json.Marshal(dm)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	key := messageKey(dm)
	err = m.db.Update(func(txn *badger.Txn) error {
		if err := txn.Set(key, bytes); err != nil {
			return err
		}
		return txn.Set(indexKey(dm.ID), key)
	})
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return message, nil
}

// GetMessages walks the room prefix backwards from the newest key, then restores chronological order.
func (m *MessageRepository) GetMessages(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	limit = effectiveLimit(limit, m.limitMessages)
	var diskMessages []DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := roomPrefix(room)
		options := badger.DefaultIteratorOptions
		options.Reverse = true
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()

		// 0xFF sorts after every digit, so the seek lands on the newest message
		for it.Seek(append(bytes.Clone(prefix), 0xFF)); it.ValidForPrefix(prefix); it.Next() {
			if limit > 0 && len(diskMessages) == limit {
				m.log.Debug("Maximum of messages reached", "room", room, "limit", limit)
				break
			}
			var dm DiskMessage
			err := it.Item().Value(func(value []byte) error {
				return json.Unmarshal(value, &dm)
			})
			if err != nil {
				return err
			}
			diskMessages = append(diskMessages, dm)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	slices.Reverse(diskMessages)
	messages := make([]domain.Message, 0, len(diskMessages))
	for _, dm := range diskMessages {
		messages = append(messages, toDomainMessage(dm))
	}
	return messages, nil
}

func (m *MessageRepository) GetMessage(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	if err := ctx.Err(); err != nil {
		return domain.Message{}, err
	}
	var dm DiskMessage
	err := m.db.View(func(txn *badger.Txn) error {
		var err error
		dm, _, err = readByID(txn, id)
		return err
	})
	if err != nil {
		return domain.Message{}, mapBadgerError(err)
	}
	return toDomainMessage(dm), nil
}

// MutateMessage runs a read-modify-write transaction.
// Badger aborts a transaction whose reads were overwritten by a concurrent commit,
// in that case the whole transaction is replayed on fresh data.
func (m *MessageRepository) MutateMessage(ctx context.Context, id uuid.UUID, fn func(*domain.Message) error) (domain.Message, error) {
	var result domain.Message
	for attempt := 0; attempt < maxConflictRetries; attempt++ {
		if err := ctx.Err(); err != nil {
			return domain.Message{}, err
		}
		err := m.db.Update(func(txn *badger.Txn) error {
			dm, key, err := readByID(txn, id)
			if err != nil {
				return err
			}
			message := toDomainMessage(dm)
			if err := fn(&message); err != nil {
				return err
			}
			updated := fromDomainMessage(message)
			// the primary key is derived from room and time, neither may change
			updated.Room, updated.At, updated.ID = dm.Room, dm.At, dm.ID
			data, err := json.Marshal(updated)
			if err != nil {
				return err
			}
			result = toDomainMessage(updated)
			return txn.Set(key, data)
		})
		if errors.Is(err, badger.ErrConflict) {
			m.log.Debug("Message mutation conflicted, retrying", "id", id, "attempt", attempt)
			continue
		}
		if err != nil {
			return domain.Message{}, mapBadgerError(err)
		}
		return result, nil
	}
	return domain.Message{}, fmt.Errorf("%w: too many conflicts on message %s", errors.ErrStoreUnavailable, id)
}

// DeleteRoom collects the keys of the room without loading values, then drops them with their index entries.
func (m *MessageRepository) DeleteRoom(ctx context.Context, room string) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	var keys [][]byte
	err := m.db.View(func(txn *badger.Txn) error {
		prefix := roomPrefix(room)
		options := badger.DefaultIteratorOptions
		options.PrefetchValues = false
		options.Prefix = prefix
		it := txn.NewIterator(options)
		defer it.Close()
		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			key := it.Item().KeyCopy(nil)
			keys = append(keys, key)
			if id, err := idFromKey(key); err == nil {
				keys = append(keys, indexKey(id))
			}
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	wb := m.db.NewWriteBatch()
	defer wb.Cancel()
	for _, key := range keys {
		if err := wb.Delete(key); err != nil {
			return 0, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	deleted := len(keys) / 2
	m.log.Info("Room messages purged", "room", room, "count", deleted)
	return deleted, nil
}

func (m *MessageRepository) Ping(_ context.Context) error {
	if m.db.IsClosed() {
		return fmt.Errorf("%w: badger is closed", errors.ErrStoreUnavailable)
	}
	return nil
}

func (m *MessageRepository) Close() error {
	return m.db.Close()
}

func readByID(txn *badger.Txn, id uuid.UUID) (DiskMessage, []byte, error) {
	item, err := txn.Get(indexKey(id))
	if err != nil {
		return DiskMessage{}, nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return DiskMessage{}, nil, err
	}
	item, err = txn.Get(key)
	if err != nil {
		return DiskMessage{}, nil, err
	}
	var dm DiskMessage
	err = item.Value(func(value []byte) error {
		return json.Unmarshal(value, &dm)
	})
	return dm, key, err
}

func idFromKey(key []byte) (uuid.UUID, error) {
	i := bytes.LastIndexByte(key, ':')
	if i < 0 {
		return uuid.Nil, errors.ErrInvalidPayload
	}
	return uuid.ParseBytes(key[i+1:])
}

func mapBadgerError(err error) error {
	switch {
	case errors.Is(err, badger.ErrKeyNotFound):
		return errors.ErrMessageNotFound
	case errors.Is(err, errors.ErrMessageNotFound), errors.Is(err, errors.ErrStoreUnavailable):
		return err
	default:
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
}
