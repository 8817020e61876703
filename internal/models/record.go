package models

import "time"

type RecordStatus string

const (
	RecordToComplete   RecordStatus = "TO_COMPLETE"
	RecordToValidate   RecordStatus = "TO_VALIDATE"
	RecordValidated    RecordStatus = "VALIDATED"
	RecordRejected     RecordStatus = "REJECTED"
	RecordToRevalidate RecordStatus = "TO_REVALIDATE"
)

// Profile kinds, one per record table.
const (
	ProfileHighSchoolStudent = "high_school_student"
	ProfileStudent           = "student"
	ProfileVisitor           = "visitor"
)

// RecordCore carries the state shared by the three record kinds.
type RecordCore struct {
	PersonID       uint         `json:"person_id" gorm:"not null;uniqueIndex"`
	Status         RecordStatus `json:"status" gorm:"not null;default:TO_COMPLETE"`
	ValidationDate *time.Time   `json:"validation_date"`
	RejectionDate  *time.Time   `json:"rejection_date"`
	RejectionReason string      `json:"rejection_reason"`
	DisabledPerson bool         `json:"disabled_person"`
}

// Record is the common view over the three record kinds.
type Record interface {
	ProfileKind() string
	Core() *RecordCore
	RecordID() uint
}

type HighSchoolStudentRecord struct {
	Model
	RecordCore `gorm:"embedded"`

	HighSchoolID *uint  `json:"high_school_id" gorm:"index"`
	Class        string `json:"class"`

	LevelID *uint `json:"level_id" gorm:"index"`

	// Post-bachelor pupils in a postbac high school carry a
	// post-bachelor level instead of a high-school level.
	PostBachelorLevelID *uint  `json:"post_bachelor_level_id"`
	OriginBachelorTypeID *uint `json:"origin_bachelor_type_id"`

	BachelorTypeID    *uint `json:"bachelor_type_id"`
	BachelorMentionID *uint `json:"bachelor_mention_id"`

	BachelorTeachings []GeneralBachelorTeaching `json:"-" gorm:"many2many:record_bachelor_teachings"`

	VisibleImmersionRegistrations bool `json:"visible_immersion_registrations"`
}

func (r *HighSchoolStudentRecord) ProfileKind() string { return ProfileHighSchoolStudent }
func (r *HighSchoolStudentRecord) Core() *RecordCore   { return &r.RecordCore }
func (r *HighSchoolStudentRecord) RecordID() uint      { return r.ID }

type StudentRecord struct {
	Model
	RecordCore `gorm:"embedded"`

	UAICode        string `json:"uai_code" gorm:"column:uai_code"`
	InstitutionName string `json:"institution_name"`
	LevelID        *uint  `json:"level_id" gorm:"index"`
	OriginBachelorTypeID *uint `json:"origin_bachelor_type_id"`
	CurrentDiploma string `json:"current_diploma"`
}

func (r *StudentRecord) ProfileKind() string { return ProfileStudent }
func (r *StudentRecord) Core() *RecordCore   { return &r.RecordCore }
func (r *StudentRecord) RecordID() uint      { return r.ID }

type VisitorType struct {
	Model
	Code   string `json:"code" gorm:"uniqueIndex;not null"`
	Label  string `json:"label" gorm:"not null"`
	Active bool   `json:"active"`
}

type VisitorRecord struct {
	Model
	RecordCore `gorm:"embedded"`

	VisitorTypeID *uint  `json:"visitor_type_id" gorm:"index"`
	Motivation    string `json:"motivation"`
}

func (r *VisitorRecord) ProfileKind() string { return ProfileVisitor }
func (r *VisitorRecord) Core() *RecordCore   { return &r.RecordCore }
func (r *VisitorRecord) RecordID() uint      { return r.ID }

// PeriodQuota overrides the period's default allowance for one record.
type PeriodQuota struct {
	Model
	PersonID          uint `json:"person_id" gorm:"not null;uniqueIndex:idx_person_period"`
	PeriodID          uint `json:"period_id" gorm:"not null;uniqueIndex:idx_person_period"`
	AllowedImmersions int  `json:"allowed_immersions" gorm:"not null"`
}
