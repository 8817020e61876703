package models

import "time"

type AttendanceStatus int

const (
	AttendanceNotEntered AttendanceStatus = 0
	AttendancePresent    AttendanceStatus = 1
	AttendanceAbsent     AttendanceStatus = 2
)

type CancellationType struct {
	Model
	Label  string `json:"label" gorm:"uniqueIndex;not null"`
	Code   string `json:"code" gorm:"uniqueIndex"`
	Active bool   `json:"active"`
	// System types are used by automatic cancellations and cannot be
	// picked by end users.
	System bool `json:"system"`
}

// Immersion is one person's participation in one slot. A cancelled row is
// revived on re-registration instead of inserting a duplicate.
type Immersion struct {
	Model
	PersonID uint   `json:"person_id" gorm:"not null;index;uniqueIndex:idx_person_slot_active,where:cancellation_type_id IS NULL"`
	SlotID   uint   `json:"slot_id" gorm:"not null;index;uniqueIndex:idx_person_slot_active,where:cancellation_type_id IS NULL"`
	Slot     Slot   `json:"-" gorm:"foreignKey:SlotID"`
	Person   Person `json:"-" gorm:"foreignKey:PersonID"`

	RegistrationDate time.Time        `json:"registration_date" gorm:"not null"`
	AttendanceStatus AttendanceStatus `json:"attendance_status" gorm:"not null;default:0"`

	CancellationTypeID *uint      `json:"cancellation_type_id" gorm:"index"`
	CancellationDate   *time.Time `json:"cancellation_date"`

	// Set when the registration went through the manager force path.
	Forced bool `json:"forced"`

	SurveyEmailSent bool `json:"-"`
}

// Active reports whether the immersion still counts against capacity and
// quotas.
func (i *Immersion) Active() bool {
	return i.CancellationTypeID == nil
}

// GroupImmersion is a whole-group registration on a slot's group channel.
// Capacity accounting is StudentsCount+GuidesCount; cancellation is
// whole-row only.
type GroupImmersion struct {
	Model
	SlotID       uint `json:"slot_id" gorm:"not null;index"`
	HighSchoolID uint `json:"high_school_id" gorm:"not null;index"`

	StudentsCount int    `json:"students_count" gorm:"not null"`
	GuidesCount   int    `json:"guides_count" gorm:"not null"`
	Comments      string `json:"comments"`

	RegistrationDate   time.Time  `json:"registration_date" gorm:"not null"`
	CancellationTypeID *uint      `json:"cancellation_type_id" gorm:"index"`
	CancellationDate   *time.Time `json:"cancellation_date"`
}

func (g *GroupImmersion) Active() bool {
	return g.CancellationTypeID == nil
}

// UserCourseAlert asks to be notified when seats open on a course.
type UserCourseAlert struct {
	Model
	Email     string     `json:"email" gorm:"not null;uniqueIndex:idx_alert_email_course"`
	CourseID  uint       `json:"course_id" gorm:"not null;uniqueIndex:idx_alert_email_course"`
	Course    Course     `json:"-" gorm:"foreignKey:CourseID"`
	EmailSent bool       `json:"email_sent"`
	SentAt    *time.Time `json:"sent_at"`
}
