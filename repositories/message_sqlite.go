package repositories

import (
	"chat-relay/domain"
	"chat-relay/errors"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

var _ IMessageRepository = (*SQLiteMessageRepository)(nil)

// SQLiteMessageRepository stores messages in a single SQLite file.
// One open connection serializes writers, which makes MutateMessage atomic without retries.
type SQLiteMessageRepository struct {
	db            *sql.DB
	log           *slog.Logger
	limitMessages *int
}

// OpenSQLite opens (or creates) a SQLite database at the given path and runs migrations.
func OpenSQLite(path string, log *slog.Logger, limitMessages *int) (*SQLiteMessageRepository, error) {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil, fmt.Errorf("%w: sqlite path is required", errors.ErrStoreUnavailable)
	}

	dsn := "file:" + filepath.ToSlash(path) + "?cache=shared" +
		"&_pragma=busy_timeout(5000)" +
		"&_pragma=journal_mode(WAL)"

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}

	s := &SQLiteMessageRepository{db: db, log: log, limitMessages: limitMessages}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteMessageRepository) migrate() error {
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS messages (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			id TEXT NOT NULL UNIQUE,
			room TEXT NOT NULL,
			author TEXT NOT NULL,
			author_id TEXT NOT NULL DEFAULT '',
			content TEXT NOT NULL DEFAULT '',
			file TEXT,
			reactions TEXT NOT NULL DEFAULT '{}',
			created_at INTEGER NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_messages_room_created ON messages(room, created_at);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return fmt.Errorf("migration failed: %w", err)
		}
	}
	return nil
}

func (s *SQLiteMessageRepository) StoreMessage(ctx context.Context, message domain.Message) (domain.Message, error) {
	message = prepare(message)
	dm := fromDomainMessage(message)
	file, reactions, err := encodeColumns(dm)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO messages(id, room, author, author_id, content, file, reactions, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		dm.ID.String(), dm.Room, dm.Author, dm.AuthorID, dm.Content, file, reactions, dm.At.UnixNano())
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return message, nil
}

func (s *SQLiteMessageRepository) GetMessages(ctx context.Context, room string, limit int) ([]domain.Message, error) {
	limit = effectiveLimit(limit, s.limitMessages)
	// LIMIT -1 means no limit in SQLite
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, room, author, author_id, content, file, reactions, created_at
		 FROM messages WHERE room = ? ORDER BY created_at DESC, seq DESC LIMIT ?`,
		room, sqliteLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	defer rows.Close()

	var diskMessages []DiskMessage
	for rows.Next() {
		dm, err := scanMessage(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
		}
		diskMessages = append(diskMessages, dm)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}

	slices.Reverse(diskMessages)
	messages := make([]domain.Message, 0, len(diskMessages))
	for _, dm := range diskMessages {
		messages = append(messages, toDomainMessage(dm))
	}
	return messages, nil
}

func (s *SQLiteMessageRepository) GetMessage(ctx context.Context, id uuid.UUID) (domain.Message, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, room, author, author_id, content, file, reactions, created_at FROM messages WHERE id = ?`,
		id.String())
	dm, err := scanMessage(row)
	if err != nil {
		return domain.Message{}, mapSQLError(err)
	}
	return toDomainMessage(dm), nil
}

func (s *SQLiteMessageRepository) MutateMessage(ctx context.Context, id uuid.UUID, fn func(*domain.Message) error) (domain.Message, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx,
		`SELECT id, room, author, author_id, content, file, reactions, created_at FROM messages WHERE id = ?`,
		id.String())
	dm, err := scanMessage(row)
	if err != nil {
		return domain.Message{}, mapSQLError(err)
	}
	message := toDomainMessage(dm)
	if err := fn(&message); err != nil {
		return domain.Message{}, err
	}
	updated := fromDomainMessage(message)
	updated.Room, updated.At, updated.ID = dm.Room, dm.At, dm.ID
	file, reactions, err := encodeColumns(updated)
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	_, err = tx.ExecContext(ctx,
		`UPDATE messages SET content = ?, file = ?, reactions = ? WHERE id = ?`,
		updated.Content, file, reactions, id.String())
	if err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	if err := tx.Commit(); err != nil {
		return domain.Message{}, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return toDomainMessage(updated), nil
}

func (s *SQLiteMessageRepository) DeleteRoom(ctx context.Context, room string) (int, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM messages WHERE room = ?`, room)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	s.log.Info("Room messages purged", "room", room, "count", n)
	return int(n), nil
}

func (s *SQLiteMessageRepository) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
	}
	return nil
}

func (s *SQLiteMessageRepository) Close() error {
	return s.db.Close()
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanMessage(row rowScanner) (DiskMessage, error) {
	var (
		dm        DiskMessage
		id        string
		file      sql.NullString
		reactions string
		createdAt int64
	)
	if err := row.Scan(&id, &dm.Room, &dm.Author, &dm.AuthorID, &dm.Content, &file, &reactions, &createdAt); err != nil {
		return DiskMessage{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return DiskMessage{}, err
	}
	dm.ID = parsed
	dm.At = time.Unix(0, createdAt).UTC()
	if file.Valid {
		dm.File = &DiskFile{}
		if err := json.Unmarshal([]byte(file.String), dm.File); err != nil {
			return DiskMessage{}, err
		}
	}
	if err := json.Unmarshal([]byte(reactions), &dm.Reactions); err != nil {
		return DiskMessage{}, err
	}
	return dm, nil
}

func encodeColumns(dm DiskMessage) (sql.NullString, string, error) {
	var file sql.NullString
	if dm.File != nil {
		raw, err := json.Marshal(dm.File)
		if err != nil {
			return file, "", err
		}
		file = sql.NullString{String: string(raw), Valid: true}
	}
	reactions := dm.Reactions
	if reactions == nil {
		reactions = map[string][]string{}
	}
	raw, err := json.Marshal(reactions)
	if err != nil {
		return file, "", err
	}
	return file, string(raw), nil
}

// sqliteLimit turns a non-positive limit into SQLite's "no limit".
func sqliteLimit(limit int) int {
	if limit <= 0 {
		return -1
	}
	return limit
}

func mapSQLError(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return errors.ErrMessageNotFound
	}
	return fmt.Errorf("%w: %v", errors.ErrStoreUnavailable, err)
}
