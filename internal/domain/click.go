package domain

import "time"

// Click представляет одно успешное открытие сокращенной ссылки
type Click struct {
	ID         int64     `gorm:"primaryKey;column:id" json:"id"`
	LinkID     int64     `gorm:"column:link_id;not null;index" json:"link_id"`
	DeviceType string    `gorm:"column:device_type;size:10;not null;default:'unknown'" json:"device_type"` // 'desktop', 'mobile', 'tablet', 'bot'
	Browser    string    `gorm:"column:browser;size:50" json:"browser,omitempty"`
	OS         string    `gorm:"column:os;size:50" json:"os,omitempty"`
	Referer    *string   `gorm:"column:referer;size:500" json:"referer,omitempty"`
	ClickedAt  time.Time `gorm:"column:clicked_at;not null;index" json:"clicked_at"`
}

// TableName возвращает название таблицы для GORM
func (Click) TableName() string {
	return "clicks"
}
