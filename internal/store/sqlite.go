package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dataSourceName string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite3", dataSourceName)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	// One connection serializes writers; append and its seen mark share a transaction.
	db.SetMaxOpenConns(1)
	if err = db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	store := &SQLiteStore{db: db}
	if err = store.initSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}
	return store, nil
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS users (
        id TEXT PRIMARY KEY,
        display_name TEXT NOT NULL,
        language TEXT NOT NULL DEFAULT '',
        created_at DATETIME NOT NULL,
        updated_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        id TEXT PRIMARY KEY, -- UUID
        key_low TEXT NOT NULL,
        key_high TEXT NOT NULL,
        seq INTEGER NOT NULL,
        sender TEXT NOT NULL,
        recipient TEXT NOT NULL,
        original_text TEXT NOT NULL,
        translated_text TEXT NOT NULL,
        sent_at DATETIME NOT NULL,
        UNIQUE (key_low, key_high, seq)
    );

    CREATE INDEX IF NOT EXISTS idx_messages_key_high ON messages (key_high);

    CREATE TABLE IF NOT EXISTS seen_marks (
        viewer TEXT NOT NULL,
        key_low TEXT NOT NULL,
        key_high TEXT NOT NULL,
        seen INTEGER NOT NULL DEFAULT 0,
        PRIMARY KEY (viewer, key_low, key_high)
    );
    `
	_, err := s.db.Exec(schema)
	return err
}

// User methods
func (s *SQLiteStore) GetUser(ctx context.Context, id string) (*User, error) {
	var user User
	err := s.db.QueryRowContext(ctx, "SELECT id, display_name, language, created_at, updated_at FROM users WHERE id = ?", id).
		Scan(&user.ID, &user.DisplayName, &user.Language, &user.CreatedAt, &user.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil // User not found
		}
		return nil, fmt.Errorf("failed to query user: %w", err)
	}
	return &user, nil
}

func (s *SQLiteStore) UpsertUser(ctx context.Context, id, displayName, language string) (*User, error) {
	now := time.Now().UTC()
	_, err := s.db.ExecContext(ctx, `
        INSERT INTO users (id, display_name, language, created_at, updated_at) VALUES (?, ?, ?, ?, ?)
        ON CONFLICT (id) DO UPDATE SET
            display_name = excluded.display_name,
            language = CASE WHEN excluded.language = '' THEN users.language ELSE excluded.language END,
            updated_at = excluded.updated_at`,
		id, displayName, language, now, now)
	if err != nil {
		return nil, fmt.Errorf("failed to upsert user: %w", err)
	}
	return s.GetUser(ctx, id)
}

func (s *SQLiteStore) SetLanguage(ctx context.Context, id, language string) (*User, error) {
	res, err := s.db.ExecContext(ctx, "UPDATE users SET language = ?, updated_at = ? WHERE id = ?", language, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update language: %w", err)
	}
	affected, _ := res.RowsAffected()
	if affected == 0 {
		return nil, fmt.Errorf("user %q: %w", id, ErrNotFound)
	}
	return s.GetUser(ctx, id)
}

func (s *SQLiteStore) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT id, display_name, language, created_at, updated_at FROM users ORDER BY id")
	if err != nil {
		return nil, fmt.Errorf("failed to query users: %w", err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		var user User
		if err := rows.Scan(&user.ID, &user.DisplayName, &user.Language, &user.CreatedAt, &user.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan user row: %w", err)
		}
		users = append(users, user)
	}
	return users, rows.Err()
}

// Message methods
func (s *SQLiteStore) AppendMessage(ctx context.Context, msg *Message) error {
	key := CanonicalKey(msg.SenderID, msg.RecipientID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin append: %w", err)
	}
	defer tx.Rollback()

	var count int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE key_low = ? AND key_high = ?", key.Low, key.High).Scan(&count); err != nil {
		return fmt.Errorf("failed to count messages: %w", err)
	}

	id := uuid.NewString()
	sentAt := time.Now().UTC()
	_, err = tx.ExecContext(ctx, `
        INSERT INTO messages (id, key_low, key_high, seq, sender, recipient, original_text, translated_text, sent_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		id, key.Low, key.High, count+1, msg.SenderID, msg.RecipientID, msg.OriginalText, msg.TranslatedText, sentAt)
	if err != nil {
		return fmt.Errorf("failed to execute message insert: %w", err)
	}

	if err := upsertSeen(ctx, tx, msg.SenderID, key, count+1); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit append: %w", err)
	}

	msg.ID = id
	msg.Seq = count + 1
	msg.SentAt = sentAt
	return nil
}

func (s *SQLiteStore) Messages(ctx context.Context, userA, userB string) ([]Message, error) {
	key := CanonicalKey(userA, userB)
	rows, err := s.db.QueryContext(ctx, `
        SELECT id, seq, sender, recipient, original_text, translated_text, sent_at
        FROM messages
        WHERE key_low = ? AND key_high = ?
        ORDER BY seq ASC`, key.Low, key.High)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()

	messages := []Message{}
	for rows.Next() {
		var msg Message
		if err := rows.Scan(&msg.ID, &msg.Seq, &msg.SenderID, &msg.RecipientID, &msg.OriginalText, &msg.TranslatedText, &msg.SentAt); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}

func (s *SQLiteStore) MessageCount(ctx context.Context, userA, userB string) (int, error) {
	key := CanonicalKey(userA, userB)
	var count int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE key_low = ? AND key_high = ?", key.Low, key.High).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count messages: %w", err)
	}
	return count, nil
}

func (s *SQLiteStore) Partners(ctx context.Context, userID string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
        SELECT DISTINCT CASE WHEN key_low = ? THEN key_high ELSE key_low END AS partner
        FROM messages
        WHERE key_low = ? OR key_high = ?
        ORDER BY partner`, userID, userID, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to query partners: %w", err)
	}
	defer rows.Close()

	partners := []string{}
	for rows.Next() {
		var partner string
		if err := rows.Scan(&partner); err != nil {
			return nil, fmt.Errorf("failed to scan partner row: %w", err)
		}
		partners = append(partners, partner)
	}
	return partners, rows.Err()
}

// Seen mark methods
func (s *SQLiteStore) MarkSeen(ctx context.Context, viewerID, otherID string, through int) (int, error) {
	key := CanonicalKey(viewerID, otherID)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin mark seen: %w", err)
	}
	defer tx.Rollback()

	total, seen, err := readState(ctx, tx, viewerID, key)
	if err != nil {
		return 0, err
	}
	target := total
	if through >= 0 && through < target {
		target = through
	}
	if target <= seen {
		return seen, nil
	}

	if err := upsertSeen(ctx, tx, viewerID, key, target); err != nil {
		return 0, err
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit mark seen: %w", err)
	}
	return target, nil
}

func (s *SQLiteStore) ReadState(ctx context.Context, viewerID, otherID string) (int, int, error) {
	return readState(ctx, s.db, viewerID, CanonicalKey(viewerID, otherID))
}

type rowQueryer interface {
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// readState reads the log length and the viewer's mark in one statement.
func readState(ctx context.Context, q rowQueryer, viewerID string, key ConversationKey) (int, int, error) {
	var total, seen int
	err := q.QueryRowContext(ctx, `
        SELECT
            (SELECT COUNT(*) FROM messages WHERE key_low = ? AND key_high = ?),
            COALESCE((SELECT seen FROM seen_marks WHERE viewer = ? AND key_low = ? AND key_high = ?), 0)`,
		key.Low, key.High, viewerID, key.Low, key.High).Scan(&total, &seen)
	if err != nil {
		return 0, 0, fmt.Errorf("failed to read seen state: %w", err)
	}
	return total, seen, nil
}

func upsertSeen(ctx context.Context, tx *sql.Tx, viewerID string, key ConversationKey, seen int) error {
	_, err := tx.ExecContext(ctx, `
        INSERT INTO seen_marks (viewer, key_low, key_high, seen) VALUES (?, ?, ?, ?)
        ON CONFLICT (viewer, key_low, key_high) DO UPDATE SET seen = MAX(seen_marks.seen, excluded.seen)`,
		viewerID, key.Low, key.High, seen)
	if err != nil {
		return fmt.Errorf("failed to update seen mark: %w", err)
	}
	return nil
}
