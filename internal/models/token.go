package models

import "time"

// APIToken authenticates machine callers of the mailing-list and export
// endpoints.
type APIToken struct {
	Model
	PersonID   uint       `json:"person_id"`
	Person     Person     `json:"-" gorm:"foreignKey:PersonID"`
	Token      string     `json:"token" gorm:"uniqueIndex"`
	Name       string     `json:"name"`
	ExpiresAt  *time.Time `json:"expires_at"`
	LastUsedAt *time.Time `json:"last_used_at"`
}
