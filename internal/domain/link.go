package domain

import "time"

// Link представляет сокращенную ссылку
type Link struct {
	ID          int64      `gorm:"primaryKey;column:id" json:"id"`
	OriginalURL string     `gorm:"column:original_url;type:text;not null" json:"original_url"`
	ShortCode   string     `gorm:"column:short_code;size:50;uniqueIndex;not null" json:"short_code"`
	CreatedAt   time.Time  `gorm:"column:created_at;not null;index" json:"created_at"`
	ExpiresAt   *time.Time `gorm:"column:expires_at" json:"expires_at,omitempty"`
	ClickCount  int64      `gorm:"column:click_count;not null;default:0" json:"click_count"`
	LastUsedAt  *time.Time `gorm:"column:last_used_at;index" json:"last_used_at,omitempty"`
	Owner       Owner      `gorm:"column:owner_id;index" json:"-"`
}

// TableName возвращает название таблицы для GORM
func (Link) TableName() string {
	return "links"
}

// IsExpired проверяет, истек ли срок действия ссылки на момент now
func (l *Link) IsExpired(now time.Time) bool {
	return l.ExpiresAt != nil && l.ExpiresAt.Before(now)
}

// RetentionClock возвращает момент, от которого отсчитывается неактивность:
// last_used_at, а для ни разу не открытых ссылок created_at
func (l *Link) RetentionClock() time.Time {
	if l.LastUsedAt != nil {
		return *l.LastUsedAt
	}
	return l.CreatedAt
}
