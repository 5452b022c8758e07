// Package history persists chat exchanges per user in SQLite.
package history

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"

	. "github.com/Harshavardhan-K-AIDS/FlashBott/internal/logging"

	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/llm"
	"github.com/Harshavardhan-K-AIDS/FlashBott/internal/paths"
)

// MaxHistory is how many recent messages are sent along with a new one.
const MaxHistory = 30

// Schema version for migrations
const currentSchemaVersion = 2

var ErrEmptyMessage = errors.New("history: message text is empty")

// StoredMessage is a message row as kept in the database.
type StoredMessage struct {
	ID        string     `json:"id"`
	UserID    string     `json:"-"`
	Sender    llm.Sender `json:"sender"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"createdAt"`
}

// Message drops the storage fields.
func (m StoredMessage) Message() llm.Message {
	return llm.Message{Sender: m.Sender, Text: m.Text}
}

// Store is the SQLite-backed history store.
type Store struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
// ":memory:" opens a private in-memory database.
func Open(path string) (*Store, error) {
	dsn := path
	if path != ":memory:" {
		if err := paths.EnsureParentDir(path); err != nil {
			return nil, err
		}
		dsn = path + "?_journal_mode=WAL&_busy_timeout=5000"
	}

	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if path == ":memory:" {
		// every pooled connection would otherwise get its own empty database
		db.SetMaxOpenConns(1)
	}

	s := &Store{db: db, now: time.Now}
	if err := s.Migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migration failed: %w", err)
	}

	L_info("history: store opened", "path", path)
	return s, nil
}

// Migrate runs database migrations
func (s *Store) Migrate() error {
	var version int
	err := s.db.QueryRow("SELECT version FROM schema_version ORDER BY version DESC LIMIT 1").Scan(&version)
	if err != nil {
		version = 0
	}

	if version >= currentSchemaVersion {
		L_debug("history: schema up to date", "version", version)
		return nil
	}

	L_info("history: migrating schema", "from", version, "to", currentSchemaVersion)

	migrations := []func(*sql.DB) error{
		migrateV1,
		migrateV2,
	}
	for i := version; i < len(migrations); i++ {
		if err := migrations[i](s.db); err != nil {
			return fmt.Errorf("migration v%d failed: %w", i+1, err)
		}
		L_debug("history: applied migration", "version", i+1)
	}
	return nil
}

// migrateV1 creates the initial schema
func migrateV1(db *sql.DB) error {
	schema := `
	CREATE TABLE IF NOT EXISTS schema_version (
		version INTEGER PRIMARY KEY,
		applied_at INTEGER NOT NULL
	);

	CREATE TABLE IF NOT EXISTS messages (
		seq INTEGER PRIMARY KEY AUTOINCREMENT,
		id TEXT NOT NULL UNIQUE,
		user_id TEXT NOT NULL,
		sender TEXT NOT NULL CHECK (sender IN ('user', 'bot')),
		text TEXT NOT NULL,
		created_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_messages_user ON messages(user_id, seq);
	`
	if _, err := db.Exec(schema); err != nil {
		return err
	}
	_, err := db.Exec("INSERT INTO schema_version (version, applied_at) VALUES (1, ?)", time.Now().Unix())
	return err
}

// migrateV2 indexes creation time for retention pruning
func migrateV2(db *sql.DB) error {
	if _, err := db.Exec("CREATE INDEX IF NOT EXISTS idx_messages_created ON messages(created_at)"); err != nil {
		return err
	}
	_, err := db.Exec("INSERT INTO schema_version (version, applied_at) VALUES (2, ?)", time.Now().Unix())
	return err
}

// Close closes the database
func (s *Store) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// Append stores one message for userID.
func (s *Store) Append(ctx context.Context, userID string, msg llm.Message) error {
	if strings.TrimSpace(msg.Text) == "" {
		return ErrEmptyMessage
	}
	if !msg.Sender.Valid() {
		return fmt.Errorf("history: invalid sender %q", msg.Sender)
	}
	_, err := s.db.ExecContext(ctx,
		"INSERT INTO messages (id, user_id, sender, text, created_at) VALUES (?, ?, ?, ?, ?)",
		uuid.NewString(), userID, string(msg.Sender), msg.Text, s.now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("history: append: %w", err)
	}
	return nil
}

// AppendExchange stores a user message and the bot's reply in one transaction.
func (s *Store) AppendExchange(ctx context.Context, userID, message, reply string) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("history: begin: %w", err)
	}
	defer tx.Rollback()

	ts := s.now().UnixMilli()
	for _, m := range []llm.Message{
		{Sender: llm.SenderUser, Text: message},
		{Sender: llm.SenderBot, Text: reply},
	} {
		if strings.TrimSpace(m.Text) == "" {
			return ErrEmptyMessage
		}
		if _, err := tx.ExecContext(ctx,
			"INSERT INTO messages (id, user_id, sender, text, created_at) VALUES (?, ?, ?, ?, ?)",
			uuid.NewString(), userID, string(m.Sender), m.Text, ts,
		); err != nil {
			return fmt.Errorf("history: append exchange: %w", err)
		}
	}
	return tx.Commit()
}

// Recent returns up to limit of the user's latest messages, oldest first.
func (s *Store) Recent(ctx context.Context, userID string, limit int) ([]StoredMessage, error) {
	if limit <= 0 {
		limit = MaxHistory
	}
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, sender, text, created_at FROM messages WHERE user_id = ? ORDER BY seq DESC LIMIT ?",
		userID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("history: query: %w", err)
	}
	defer rows.Close()

	var out []StoredMessage
	for rows.Next() {
		var (
			m       StoredMessage
			sender  string
			created int64
		)
		if err := rows.Scan(&m.ID, &sender, &m.Text, &created); err != nil {
			return nil, fmt.Errorf("history: scan: %w", err)
		}
		m.UserID = userID
		m.Sender = llm.Sender(sender)
		m.CreatedAt = time.UnixMilli(created)
		out = append(out, m)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RecentMessages is Recent reduced to the shape the chat core consumes.
func (s *Store) RecentMessages(ctx context.Context, userID string, limit int) ([]llm.Message, error) {
	stored, err := s.Recent(ctx, userID, limit)
	if err != nil {
		return nil, err
	}
	msgs := make([]llm.Message, len(stored))
	for i, m := range stored {
		msgs[i] = m.Message()
	}
	return msgs, nil
}

// Clear deletes all of a user's messages and returns how many were removed.
func (s *Store) Clear(ctx context.Context, userID string) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE user_id = ?", userID)
	if err != nil {
		return 0, fmt.Errorf("history: clear: %w", err)
	}
	return res.RowsAffected()
}

// PruneBefore deletes every message created before cutoff.
func (s *Store) PruneBefore(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM messages WHERE created_at < ?", cutoff.UnixMilli())
	if err != nil {
		return 0, fmt.Errorf("history: prune: %w", err)
	}
	return res.RowsAffected()
}

// Count returns how many messages are stored for userID.
func (s *Store) Count(ctx context.Context, userID string) (int, error) {
	var n int
	err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE user_id = ?", userID).Scan(&n)
	return n, err
}
