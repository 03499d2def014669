package models

import "time"

const (
	SenderUser      = "user"
	SenderAssistant = "assistant"
)

type User struct {
	ID        string    `json:"user_id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

type Chat struct {
	ID        string    `json:"chat_id"`
	UserID    string    `json:"-"`
	Title     string    `json:"title"`
	Category  string    `json:"category"`
	CreatedAt time.Time `json:"created_at"`
}

type Message struct {
	ID        int64     `json:"id"`
	ChatID    string    `json:"-"`
	Sender    string    `json:"sender"` // user or assistant
	Content   string    `json:"content"`
	Timestamp time.Time `json:"timestamp"`
}
