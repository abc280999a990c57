// Package store provides SQLite persistence for readwatch.
package store

import (
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	_ "modernc.org/sqlite"
)

// Store handles SQLite persistence. NOT an interface - concrete type.
// Thread-safety: All methods are safe for concurrent use via internal mutex.
type Store struct {
	db *sql.DB
	mu sync.RWMutex // Protects all database operations
}

// Message is one chat message and its read state.
type Message struct {
	ChatID      int64
	ID          int // increasing within a chat
	Sender      string
	Body        string
	HasMention  bool // unread mention of the local user
	HasReaction bool // unread reaction on the local user's message
	HasMedia    bool
	Read        bool
	Created     time.Time
}

// memSeq gives every ":memory:" store its own database.
var memSeq atomic.Uint64

// Open creates a new Store with the given database path.
// Creates tables if they don't exist.
// Uses WAL mode for better concurrent read performance (file-based DBs only).
func Open(dbPath string) (*Store, error) {
	connStr := dbPath
	if dbPath == ":memory:" {
		// Named shared-cache database so every pooled connection sees the
		// same data, while separate stores stay isolated.
		connStr = fmt.Sprintf("file:readwatch-mem-%d?mode=memory&cache=shared", memSeq.Add(1))
	}

	db, err := sql.Open("sqlite", connStr)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	if dbPath == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	if dbPath != ":memory:" {
		if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("enable WAL mode: %w", err)
		}
	}

	s := &Store{db: db}

	if err := s.createTables(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create tables: %w", err)
	}

	return s, nil
}

// createTables creates the required tables and indexes if they don't exist.
func (s *Store) createTables() error {
	schema := `
	CREATE TABLE IF NOT EXISTS messages (
		chat_id INTEGER NOT NULL,
		id INTEGER NOT NULL,
		sender TEXT NOT NULL,
		body TEXT NOT NULL,
		has_mention INTEGER DEFAULT 0,
		has_reaction INTEGER DEFAULT 0,
		has_media INTEGER DEFAULT 0,
		read INTEGER DEFAULT 0,
		created_at DATETIME NOT NULL,
		PRIMARY KEY (chat_id, id)
	);

	CREATE INDEX IF NOT EXISTS idx_messages_unread ON messages(chat_id, read, id);
	`

	if _, err := s.db.Exec(schema); err != nil {
		return fmt.Errorf("execute schema: %w", err)
	}
	return nil
}

// Close closes the database connection.
// Thread-safe: acquires write lock to prevent closing during in-flight operations.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.db.Close()
}

// SaveMessages stores messages, returning how many were new.
// Existing (chat_id, id) pairs are left untouched.
func (s *Store) SaveMessages(msgs []Message) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if len(msgs) == 0 {
		return 0, nil
	}

	tx, err := s.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(`
		INSERT OR IGNORE INTO messages (
			chat_id, id, sender, body, has_mention, has_reaction, has_media, read, created_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)
	if err != nil {
		return 0, fmt.Errorf("prepare insert: %w", err)
	}
	defer stmt.Close()

	newCount := 0
	for _, m := range msgs {
		created := m.Created
		if created.IsZero() {
			created = time.Now()
		}
		result, err := stmt.Exec(
			m.ChatID,
			m.ID,
			m.Sender,
			m.Body,
			boolToInt(m.HasMention),
			boolToInt(m.HasReaction),
			boolToInt(m.HasMedia),
			boolToInt(m.Read),
			created,
		)
		if err != nil {
			return 0, fmt.Errorf("insert message %d/%d: %w", m.ChatID, m.ID, err)
		}
		affected, err := result.RowsAffected()
		if err != nil {
			return 0, err
		}
		if affected > 0 {
			newCount++
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return newCount, nil
}

// GetMessages returns the newest limit messages of a chat, oldest first.
// limit <= 0 returns all of them.
func (s *Store) GetMessages(chatID int64, limit int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if limit <= 0 {
		limit = -1 // SQLite: no limit
	}

	query := `
		SELECT chat_id, id, sender, body, has_mention, has_reaction, has_media, read, created_at
		FROM (
			SELECT * FROM messages WHERE chat_id = ? ORDER BY id DESC LIMIT ?
		)
		ORDER BY id ASC
	`
	return s.queryMessages(query, chatID, limit)
}

// FirstUnreadID returns the smallest unread id in a chat, or 0 when
// everything is read.
func (s *Store) FirstUnreadID(chatID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id sql.NullInt64
	err := s.db.QueryRow("SELECT MIN(id) FROM messages WHERE chat_id = ? AND read = 0", chatID).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("first unread: %w", err)
	}
	if !id.Valid {
		return 0, nil
	}
	return int(id.Int64), nil
}

// NextID returns one past the largest id in a chat.
func (s *Store) NextID(chatID int64) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var id sql.NullInt64
	if err := s.db.QueryRow("SELECT MAX(id) FROM messages WHERE chat_id = ?", chatID).Scan(&id); err != nil {
		return 0, fmt.Errorf("max id: %w", err)
	}
	return int(id.Int64) + 1, nil
}

// MarkReadUpTo marks every message with id <= maxID as read and returns how
// many changed. Already-read messages are untouched, so the call is
// idempotent and never moves read state backwards.
func (s *Store) MarkReadUpTo(chatID int64, maxID int) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	res, err := s.db.Exec("UPDATE messages SET read = 1 WHERE chat_id = ? AND id <= ? AND read = 0", chatID, maxID)
	if err != nil {
		return 0, fmt.Errorf("mark read up to %d: %w", maxID, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// MarkMentionsRead clears the unread-mention flag on the given messages.
func (s *Store) MarkMentionsRead(chatID int64, ids []int) (int, error) {
	return s.clearFlag(chatID, "has_mention", ids)
}

// ClearReactions clears the unread-reaction flag on the given messages.
func (s *Store) ClearReactions(chatID int64, ids []int) (int, error) {
	return s.clearFlag(chatID, "has_reaction", ids)
}

// Counts summarizes a chat's unread state.
type Counts struct {
	Unread    int
	Mentions  int
	Reactions int
}

// UnreadCounts returns unread, unread-mention and unread-reaction totals.
func (s *Store) UnreadCounts(chatID int64) (Counts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var c Counts
	err := s.db.QueryRow(`
		SELECT
			COALESCE(SUM(CASE WHEN read = 0 THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(has_mention), 0),
			COALESCE(SUM(has_reaction), 0)
		FROM messages WHERE chat_id = ?
	`, chatID).Scan(&c.Unread, &c.Mentions, &c.Reactions)
	if err != nil {
		return Counts{}, fmt.Errorf("unread counts: %w", err)
	}
	return c, nil
}

var errBadColumn = errors.New("store: unknown flag column")

// clearFlag zeroes a flag column for ids. column is never user input.
func (s *Store) clearFlag(chatID int64, column string, ids []int) (int, error) {
	if column != "has_mention" && column != "has_reaction" {
		return 0, errBadColumn
	}
	if len(ids) == 0 {
		return 0, nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	args := make([]any, 0, len(ids)+1)
	args = append(args, chatID)
	for _, id := range ids {
		args = append(args, id)
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?,", len(ids)), ",")

	query := fmt.Sprintf("UPDATE messages SET %s = 0 WHERE chat_id = ? AND %s = 1 AND id IN (%s)", column, column, placeholders)
	res, err := s.db.Exec(query, args...)
	if err != nil {
		return 0, fmt.Errorf("clear %s: %w", column, err)
	}
	n, err := res.RowsAffected()
	return int(n), err
}

// queryMessages is a helper that executes a query and scans results.
// Caller must hold s.mu (read lock is sufficient).
func (s *Store) queryMessages(query string, args ...any) ([]Message, error) {
	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var msgs []Message
	for rows.Next() {
		var m Message
		var mention, reaction, media, read int
		err := rows.Scan(
			&m.ChatID,
			&m.ID,
			&m.Sender,
			&m.Body,
			&mention,
			&reaction,
			&media,
			&read,
			&m.Created,
		)
		if err != nil {
			return nil, err
		}
		m.HasMention = mention != 0
		m.HasReaction = reaction != 0
		m.HasMedia = media != 0
		m.Read = read != 0
		msgs = append(msgs, m)
	}

	if err := rows.Err(); err != nil {
		return nil, err
	}

	return msgs, nil
}

// boolToInt converts a bool to an int for SQLite storage.
func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
