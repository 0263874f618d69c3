package domain

import "time"

// User представляет пользователя сервиса.
type User struct {
	ID           int64      `gorm:"primaryKey;column:id" json:"id"`
	Login        string     `gorm:"column:login;size:255;uniqueIndex;not null" json:"login"`
	PasswordHash string     `gorm:"column:password_hash;not null" json:"-"` // скрываем пароль в JSON
	CreatedAt    time.Time  `gorm:"column:created_at;not null" json:"created_at"`
	LastLoginAt  *time.Time `gorm:"column:last_login_at" json:"last_login_at,omitempty"`
}

// TableName возвращает название таблицы для GORM
func (User) TableName() string {
	return "users"
}

// Principal is the authenticated identity behind a request.
type Principal struct {
	UserID int64
	Login  string
}
