package models

import "time"

type Category struct {
	ID        int64     `json:"id" gorm:"primaryKey;autoIncrement:false"`
	ParentID  int64     `json:"parent_id" gorm:"index"`
	Name      string    `json:"name" gorm:"not null"`
	Visible   bool      `json:"visible" gorm:"index"`
	SortOrder int       `json:"sort_order"`
	CustomURL string    `json:"custom_url"`
	SyncedAt  time.Time `json:"synced_at"`
}
