package models

import (
	"errors"
	"time"

	"gorm.io/gorm"
)

type SlotKind string

const (
	SlotKindCourse SlotKind = "course"
	SlotKindVisit  SlotKind = "visit"
	SlotKindEvent  SlotKind = "event"
)

type SlotPlace string

const (
	PlaceFaceToFace SlotPlace = "face_to_face"
	PlaceRemote     SlotPlace = "remote"
	PlaceOutside    SlotPlace = "outside"
)

var (
	ErrSlotOwner   = errors.New("slot must reference exactly one of course, visit or event")
	ErrSlotTimes   = errors.New("slot start time must be before end time")
	ErrSlotShrink  = errors.New("slot capacity cannot drop below current registrations")
	ErrSlotHoliday = errors.New("slot cannot be scheduled on a public holiday")
)

// Slot is the realization of a course, visit or event on a given date.
// Exactly one of CourseID / VisitID / EventID is set, matching Kind.
type Slot struct {
	Model
	Kind     SlotKind `json:"kind" gorm:"not null;index"`
	CourseID *uint    `json:"course_id" gorm:"index"`
	Course   *Course  `json:"-" gorm:"foreignKey:CourseID"`
	VisitID  *uint    `json:"visit_id" gorm:"index"`
	Visit    *Visit   `json:"-" gorm:"foreignKey:VisitID"`
	EventID  *uint    `json:"event_id" gorm:"index"`
	Event    *OffOfferEvent `json:"-" gorm:"foreignKey:EventID"`

	CourseTypeID *uint `json:"course_type_id" gorm:"index"`

	Date      time.Time `json:"date" gorm:"not null;index"`
	StartTime string    `json:"start_time" gorm:"not null"` // HH:MM
	EndTime   string    `json:"end_time" gorm:"not null"`   // HH:MM

	Place      SlotPlace `json:"place" gorm:"not null;default:face_to_face"`
	CampusID   *uint     `json:"campus_id"`
	BuildingID *uint     `json:"building_id"`
	Room       string    `json:"room"`
	URL        string    `json:"url"`

	Published bool  `json:"published" gorm:"index"`
	PeriodID  *uint `json:"period_id" gorm:"index"`

	NPlaces      int `json:"n_places"`
	NGroupPlaces int `json:"n_group_places"`

	AllowIndividualRegistrations bool   `json:"allow_individual_registrations"`
	AllowGroupRegistrations      bool   `json:"allow_group_registrations"`
	GroupMode                    string `json:"group_mode"`

	// Hours before start after which registration / cancellation closes.
	RegistrationLimitDelay int `json:"registration_limit_delay"`
	CancellationLimitDelay int `json:"cancellation_limit_delay"`

	AdditionalInformation string `json:"additional_information"`

	EstablishmentsRestrictions bool `json:"establishments_restrictions"`
	LevelsRestrictions         bool `json:"levels_restrictions"`
	BachelorsRestrictions      bool `json:"bachelors_restrictions"`

	AllowedEstablishments     []Establishment     `json:"-" gorm:"many2many:slot_allowed_establishments"`
	AllowedHighSchools        []HighSchool        `json:"-" gorm:"many2many:slot_allowed_high_schools"`
	AllowedHighSchoolLevels   []HighSchoolLevel   `json:"-" gorm:"many2many:slot_allowed_high_school_levels"`
	AllowedStudentLevels      []StudentLevel      `json:"-" gorm:"many2many:slot_allowed_student_levels"`
	AllowedPostBachelorLevels []PostBachelorLevel `json:"-" gorm:"many2many:slot_allowed_post_bachelor_levels"`
	AllowedBachelorTypes      []BachelorType      `json:"-" gorm:"many2many:slot_allowed_bachelor_types"`
	AllowedBachelorMentions   []BachelorMention   `json:"-" gorm:"many2many:slot_allowed_bachelor_mentions"`
	AllowedBachelorTeachings  []GeneralBachelorTeaching `json:"-" gorm:"many2many:slot_allowed_bachelor_teachings"`

	Speakers []Person `json:"-" gorm:"many2many:slot_speakers"`

	Reminded        bool `json:"-"`
	SpeakerReminded bool `json:"-"`
}

// BeforeSave enforces the owner variant and time ordering invariants.
func (s *Slot) BeforeSave(tx *gorm.DB) error {
	n := 0
	if s.CourseID != nil {
		n++
	}
	if s.VisitID != nil {
		n++
	}
	if s.EventID != nil {
		n++
	}
	if n != 1 {
		return ErrSlotOwner
	}
	switch {
	case s.Kind == SlotKindCourse && s.CourseID == nil,
		s.Kind == SlotKindVisit && s.VisitID == nil,
		s.Kind == SlotKindEvent && s.EventID == nil:
		return ErrSlotOwner
	}
	if s.StartTime != "" && s.EndTime != "" && s.StartTime >= s.EndTime {
		return ErrSlotTimes
	}
	return nil
}

// BeforeCreate rejects slots scheduled on a stored public holiday.
func (s *Slot) BeforeCreate(tx *gorm.DB) error {
	day := time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(), 0, 0, 0, 0, s.Date.Location())
	var n int64
	err := tx.Session(&gorm.Session{NewDB: true}).Model(&Holiday{}).
		Where("date = ?", day).Count(&n).Error
	if err != nil {
		return err
	}
	if n > 0 {
		return ErrSlotHoliday
	}
	return nil
}

// BeforeUpdate rejects capacity edits below the current number of
// active registrations.
func (s *Slot) BeforeUpdate(tx *gorm.DB) error {
	if s.ID == 0 || !tx.Statement.Changed("NPlaces") {
		return nil
	}
	places := s.NPlaces
	if dest, ok := tx.Statement.Dest.(map[string]interface{}); ok {
		switch v := dest["n_places"].(type) {
		case int:
			places = v
		case float64:
			places = int(v)
		}
	}
	var active int64
	err := tx.Session(&gorm.Session{NewDB: true}).Model(&Immersion{}).
		Where("slot_id = ? AND cancellation_type_id IS NULL", s.ID).
		Count(&active).Error
	if err != nil {
		return err
	}
	if int64(places) < active {
		return ErrSlotShrink
	}
	return nil
}

// clockAt combines the slot date with an HH:MM clock string.
func (s *Slot) clockAt(clock string) time.Time {
	t, err := time.Parse("15:04", clock)
	if err != nil {
		return s.Date
	}
	return time.Date(s.Date.Year(), s.Date.Month(), s.Date.Day(),
		t.Hour(), t.Minute(), 0, 0, s.Date.Location())
}

func (s *Slot) StartAt() time.Time { return s.clockAt(s.StartTime) }
func (s *Slot) EndAt() time.Time   { return s.clockAt(s.EndTime) }

// RegistrationLimitAt is the instant after which ordinary registration closes.
func (s *Slot) RegistrationLimitAt() time.Time {
	return s.StartAt().Add(-time.Duration(s.RegistrationLimitDelay) * time.Hour)
}

// CancellationLimitAt is the instant after which cancellation closes.
func (s *Slot) CancellationLimitAt() time.Time {
	return s.StartAt().Add(-time.Duration(s.CancellationLimitDelay) * time.Hour)
}
