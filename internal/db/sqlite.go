package db

import (
	"crypto/rand"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"

	"github.com/google/uuid"
	_ "github.com/mattn/go-sqlite3"
	"github.com/rcollard/chatd/internal/models"
)

const schema = `
CREATE TABLE IF NOT EXISTS users (
    user_id TEXT PRIMARY KEY,
    username TEXT NOT NULL,
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP
);

CREATE TABLE IF NOT EXISTS chats (
    chat_id TEXT PRIMARY KEY,
    user_id TEXT NOT NULL,
    title TEXT NOT NULL,
    category TEXT DEFAULT 'general',
    created_at TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (user_id) REFERENCES users(user_id) ON DELETE CASCADE
);

CREATE TABLE IF NOT EXISTS messages (
    message_id INTEGER PRIMARY KEY AUTOINCREMENT,
    chat_id TEXT NOT NULL,
    sender TEXT NOT NULL,
    content TEXT NOT NULL,
    timestamp TIMESTAMP DEFAULT CURRENT_TIMESTAMP,
    FOREIGN KEY (chat_id) REFERENCES chats(chat_id) ON DELETE CASCADE
);`

type Database struct {
	db *sql.DB
}

func New(dbPath string) (*Database, error) {
	db, err := sql.Open("sqlite3", dbPath+"?_foreign_keys=on")
	if err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, err
	}

	return &Database{db: db}, nil
}

func (db *Database) Close() error {
	return db.db.Close()
}

// newSessionToken mints an opaque user identifier. It is random, not derived
// from the username.
func newSessionToken() (string, error) {
	buf := make([]byte, 32)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	sum := sha256.Sum256(buf)
	return hex.EncodeToString(sum[:]), nil
}

// CreateUser inserts a new user with a freshly minted session token.
func (db *Database) CreateUser(username string) (*models.User, error) {
	token, err := newSessionToken()
	if err != nil {
		return nil, fmt.Errorf("failed to mint session token: %w", err)
	}

	query := `
        INSERT INTO users (user_id, username, created_at)
        VALUES (?, ?, CURRENT_TIMESTAMP)
        RETURNING created_at`

	user := &models.User{ID: token, Username: username}
	if err := db.db.QueryRow(query, token, username).Scan(&user.CreatedAt); err != nil {
		return nil, err
	}
	return user, nil
}

// UserByName returns the existing user with this username, or nil if none.
func (db *Database) UserByName(username string) (*models.User, error) {
	query := `SELECT user_id, username, created_at FROM users WHERE username = ?`

	var user models.User
	err := db.db.QueryRow(query, username).Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// UserByToken resolves a session token to its user, or nil if unknown.
func (db *Database) UserByToken(token string) (*models.User, error) {
	query := `SELECT user_id, username, created_at FROM users WHERE user_id = ?`

	var user models.User
	err := db.db.QueryRow(query, token).Scan(&user.ID, &user.Username, &user.CreatedAt)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}

func (db *Database) CreateChat(userID, title, category string) (*models.Chat, error) {
	query := `
        INSERT INTO chats (chat_id, user_id, title, category, created_at)
        VALUES (?, ?, ?, ?, CURRENT_TIMESTAMP)
        RETURNING created_at`

	chat := &models.Chat{
		ID:       uuid.NewString(),
		UserID:   userID,
		Title:    title,
		Category: category,
	}
	if err := db.db.QueryRow(query, chat.ID, userID, title, category).Scan(&chat.CreatedAt); err != nil {
		return nil, err
	}
	return chat, nil
}

func (db *Database) ChatsByUser(userID string) ([]models.Chat, error) {
	query := `
        SELECT chat_id, user_id, title, category, created_at
        FROM chats
        WHERE user_id = ?
        ORDER BY created_at DESC`

	rows, err := db.db.Query(query, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	chats := make([]models.Chat, 0)
	for rows.Next() {
		var chat models.Chat
		if err := rows.Scan(&chat.ID, &chat.UserID, &chat.Title, &chat.Category, &chat.CreatedAt); err != nil {
			return nil, err
		}
		chats = append(chats, chat)
	}
	return chats, rows.Err()
}

// RenameChat updates the title only when the chat belongs to userID.
// Renaming a non-owned or unknown chat id is a no-op.
func (db *Database) RenameChat(userID, chatID, title string) error {
	_, err := db.db.Exec("UPDATE chats SET title = ? WHERE chat_id = ? AND user_id = ?",
		title, chatID, userID)
	return err
}

// DeleteChat removes the chat and all of its messages when owned by userID.
// Deleting a non-owned or unknown chat id is a silent no-op, so the call is
// idempotent.
func (db *Database) DeleteChat(userID, chatID string) error {
	tx, err := db.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	res, err := tx.Exec("DELETE FROM chats WHERE chat_id = ? AND user_id = ?", chatID, userID)
	if err != nil {
		return err
	}

	if n, err := res.RowsAffected(); err == nil && n > 0 {
		// The foreign-key cascade covers this when the pragma is active;
		// the explicit delete keeps the invariant even for older db files.
		if _, err := tx.Exec("DELETE FROM messages WHERE chat_id = ?", chatID); err != nil {
			return err
		}
	}

	return tx.Commit()
}

func (db *Database) SaveMessage(msg *models.Message) error {
	query := `
        INSERT INTO messages (chat_id, sender, content, timestamp)
        VALUES (?, ?, ?, CURRENT_TIMESTAMP)
        RETURNING message_id, timestamp`

	return db.db.QueryRow(query, msg.ChatID, msg.Sender, msg.Content).Scan(&msg.ID, &msg.Timestamp)
}

// Messages returns the full ordered history of a chat, oldest first.
// Timestamp ties are broken by insertion order.
func (db *Database) Messages(chatID string) ([]models.Message, error) {
	query := `
        SELECT message_id, chat_id, sender, content, timestamp
        FROM messages
        WHERE chat_id = ?
        ORDER BY timestamp ASC, message_id ASC`

	rows, err := db.db.Query(query, chatID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	messages := make([]models.Message, 0)
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.ID, &msg.ChatID, &msg.Sender, &msg.Content, &msg.Timestamp); err != nil {
			return nil, err
		}
		messages = append(messages, msg)
	}
	return messages, rows.Err()
}
