package server

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/mattn/go-sqlite3"
)

// ErrNotFound is returned when a chat or exchange does not exist or
// belongs to another user.
var ErrNotFound = errors.New("not found")

// Chat is one conversation owned by a user
type Chat struct {
	ID        int64
	UserID    int64
	Name      string
	CreatedAt time.Time
}

// Record is one stored query/response pair
type Record struct {
	ID        int64
	ChatID    int64
	Query     string
	Response  string // JSON-encoded answer
	Category  string
	Timestamp time.Time
	Feedback  sql.NullString
}

// Store persists chats, exchanges and feedback in sqlite
type Store struct {
	db *sql.DB
}

// OpenStore opens (or creates) the database at path.
func OpenStore(path string) (*Store, error) {
	db, err := sql.Open("sqlite3", path+"?_foreign_keys=on")
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	createChatsTable := `
	CREATE TABLE IF NOT EXISTS chats (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		user_id INTEGER NOT NULL,
		name TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`

	createConversationsTable := `
	CREATE TABLE IF NOT EXISTS conversations (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		chat_id INTEGER NOT NULL REFERENCES chats(id) ON DELETE CASCADE,
		query TEXT NOT NULL,
		response TEXT NOT NULL,
		category TEXT NOT NULL,
		timestamp DATETIME NOT NULL,
		feedback TEXT
	)`

	if _, err := db.Exec(createChatsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create chats table: %w", err)
	}
	if _, err := db.Exec(createConversationsTable); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create conversations table: %w", err)
	}

	return &Store{db: db}, nil
}

func (s *Store) Close() error {
	return s.db.Close()
}

// CreateChat creates a chat for userID and returns its id.
func (s *Store) CreateChat(ctx context.Context, userID int64, name string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO chats (user_id, name, created_at) VALUES (?, ?, ?)",
		userID, name, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to create chat: %w", err)
	}
	return res.LastInsertId()
}

// OwnsChat reports ErrNotFound unless chatID exists and belongs to userID.
func (s *Store) OwnsChat(ctx context.Context, userID, chatID int64) error {
	var id int64
	err := s.db.QueryRowContext(ctx,
		"SELECT id FROM chats WHERE id = ? AND user_id = ?", chatID, userID,
	).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	if err != nil {
		return fmt.Errorf("failed to look up chat: %w", err)
	}
	return nil
}

// Chats lists the chats of userID in creation order.
func (s *Store) Chats(ctx context.Context, userID int64) ([]Chat, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, user_id, name, created_at FROM chats WHERE user_id = ? ORDER BY id",
		userID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load chats: %w", err)
	}
	defer rows.Close()

	chats := []Chat{}
	for rows.Next() {
		var c Chat
		if err := rows.Scan(&c.ID, &c.UserID, &c.Name, &c.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan chat: %w", err)
		}
		chats = append(chats, c)
	}
	return chats, rows.Err()
}

// AddRecord stores one exchange in chatID and returns its id.
func (s *Store) AddRecord(ctx context.Context, chatID int64, query, response, category string) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		"INSERT INTO conversations (chat_id, query, response, category, timestamp) VALUES (?, ?, ?, ?, ?)",
		chatID, query, response, category, time.Now().UTC(),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to save conversation: %w", err)
	}
	return res.LastInsertId()
}

// Records returns the exchanges of chatID oldest first.
func (s *Store) Records(ctx context.Context, chatID int64) ([]Record, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT id, chat_id, query, response, category, timestamp, feedback FROM conversations WHERE chat_id = ? ORDER BY timestamp, id",
		chatID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load conversations: %w", err)
	}
	defer rows.Close()

	records := []Record{}
	for rows.Next() {
		var r Record
		if err := rows.Scan(&r.ID, &r.ChatID, &r.Query, &r.Response, &r.Category, &r.Timestamp, &r.Feedback); err != nil {
			return nil, fmt.Errorf("failed to scan conversation: %w", err)
		}
		records = append(records, r)
	}
	return records, rows.Err()
}

// SetFeedback stores feedback on an exchange of a chat owned by userID.
// An invalid NullString clears it.
func (s *Store) SetFeedback(ctx context.Context, userID, chatID, recordID int64, feedback sql.NullString) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET feedback = ?
		WHERE id = ? AND chat_id = ?
		AND chat_id IN (SELECT id FROM chats WHERE user_id = ?)`,
		feedback, recordID, chatID, userID,
	)
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to save feedback: %w", err)
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}
