package models

import (
	"time"

	"gorm.io/gorm"
)

// Model is the shared persistence base. Unlike gorm.Model it tags the
// bookkeeping fields as optional so API payloads may omit them.
type Model struct {
	ID        uint           `json:"id,omitempty" gorm:"primarykey"`
	CreatedAt time.Time      `json:"created_at,omitempty"`
	UpdatedAt time.Time      `json:"updated_at,omitempty"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
