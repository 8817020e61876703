package models

import "time"

// UniversityYear gates account, offer and slot creation. Exactly one is
// active at a time.
type UniversityYear struct {
	Model
	Label                 string     `json:"label" gorm:"uniqueIndex;not null"`
	Active                bool       `json:"active" gorm:"index"`
	StartDate             time.Time  `json:"start_date" gorm:"not null"`
	EndDate               time.Time  `json:"end_date" gorm:"not null"`
	RegistrationStartDate time.Time  `json:"registration_start_date" gorm:"not null"`
	PurgeDate             *time.Time `json:"purge_date"`
}

// Contains reports whether the date falls inside the year.
func (y *UniversityYear) Contains(d time.Time) bool {
	return !d.Before(y.StartDate) && !d.After(y.EndDate)
}

// Period is a named registration window carrying the default immersion
// allowance. Immersion windows of two periods never overlap.
type Period struct {
	Model
	Label                 string    `json:"label" gorm:"uniqueIndex;not null"`
	RegistrationStartDate time.Time `json:"registration_start_date" gorm:"not null"`
	ImmersionStartDate    time.Time `json:"immersion_start_date" gorm:"not null"`
	ImmersionEndDate      time.Time `json:"immersion_end_date" gorm:"not null"`
	AllowedImmersions     int       `json:"allowed_immersions" gorm:"not null;default:1"`
}

// Covers reports whether the date falls inside the immersion window.
func (p *Period) Covers(d time.Time) bool {
	return !d.Before(p.ImmersionStartDate) && !d.After(p.ImmersionEndDate)
}

type Vacation struct {
	Model
	Label     string    `json:"label" gorm:"not null"`
	StartDate time.Time `json:"start_date" gorm:"not null"`
	EndDate   time.Time `json:"end_date" gorm:"not null"`
}

type Holiday struct {
	Model
	Label string    `json:"label" gorm:"not null"`
	Date  time.Time `json:"date" gorm:"not null;index"`
}
