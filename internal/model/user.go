package model

import "time"

type User struct {
	ID             int64     `json:"id"`
	Username       string    `json:"username"`
	PasswordHash   string    `json:"-"`
	TelegramChatID int64     `json:"telegram_chat_id,omitempty"`
	CreatedAt      time.Time `json:"created_at"`
}

type Session struct {
	ID        string
	UserID    int64
	TokenHash string
	CreatedAt time.Time
	ExpiresAt time.Time
}

// HabitDay is one owner's habit counters for a single day.
type HabitDay struct {
	ID      int64 `json:"id"`
	OwnerID int64 `json:"-"`
	Date    Date  `json:"habit_date"`
	Alcohol int   `json:"alcohol"`
	Smoke   int   `json:"smoke"`
	Sport   int   `json:"sport"`
}

type SecretList struct {
	ID           int64  `json:"id"`
	OwnerID      int64  `json:"-"`
	Name         string `json:"name"`
	Color        string `json:"color"`
	PasswordHash string `json:"-"`
}
