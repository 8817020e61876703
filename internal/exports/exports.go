package exports

import (
	"io"
	"strconv"
	"time"

	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
)

// slotLabel names a slot after its owner.
func slotLabel(slot *models.Slot) string {
	switch {
	case slot.Course != nil:
		return slot.Course.Label
	case slot.Visit != nil:
		return slot.Visit.Purpose
	case slot.Event != nil:
		return slot.Event.Label
	}
	return ""
}

// WriteSlots exports the published slots, optionally limited to one
// period, with their seat accounting.
func WriteSlots(w io.Writer, db *gorm.DB, periodID *uint) error {
	q := db.Model(&models.Slot{}).
		Preload("Course").Preload("Visit").Preload("Event").
		Where("published = ?", true)
	if periodID != nil {
		q = q.Where("period_id = ?", *periodID)
	}
	var slots []models.Slot
	if err := q.Order("date, start_time").Find(&slots).Error; err != nil {
		return err
	}

	out := NewCSVWriter(w)
	if err := out.WriteRow("id", "kind", "label", "date", "start", "end",
		"place", "room", "places", "registered", "free"); err != nil {
		return err
	}
	for i := range slots {
		slot := &slots[i]
		var registered int64
		err := db.Model(&models.Immersion{}).
			Where("slot_id = ? AND cancellation_type_id IS NULL", slot.ID).
			Count(&registered).Error
		if err != nil {
			return err
		}
		err = out.WriteRow(
			strconv.FormatUint(uint64(slot.ID), 10),
			string(slot.Kind),
			slotLabel(slot),
			slot.Date.Format("2006-01-02"),
			slot.StartTime,
			slot.EndTime,
			string(slot.Place),
			slot.Room,
			strconv.Itoa(slot.NPlaces),
			strconv.FormatInt(registered, 10),
			strconv.Itoa(slot.NPlaces-int(registered)),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

// RegistrationFilter scopes a registrations export.
type RegistrationFilter struct {
	SlotID   *uint
	PeriodID *uint
	// From/To bound the slot date, inclusive.
	From *time.Time
	To   *time.Time
}

// WriteRegistrations exports individual registrations with their
// attendance and cancellation state.
func WriteRegistrations(w io.Writer, db *gorm.DB, f RegistrationFilter) error {
	q := db.Model(&models.Immersion{}).
		Preload("Person").
		Preload("Slot").Preload("Slot.Course").Preload("Slot.Visit").Preload("Slot.Event").
		Joins("JOIN slots ON slots.id = immersions.slot_id")
	if f.SlotID != nil {
		q = q.Where("immersions.slot_id = ?", *f.SlotID)
	}
	if f.PeriodID != nil {
		q = q.Where("slots.period_id = ?", *f.PeriodID)
	}
	if f.From != nil {
		q = q.Where("slots.date >= ?", *f.From)
	}
	if f.To != nil {
		q = q.Where("slots.date <= ?", *f.To)
	}
	var rows []models.Immersion
	if err := q.Order("slots.date, slots.start_time, immersions.id").Find(&rows).Error; err != nil {
		return err
	}

	out := NewCSVWriter(w)
	if err := out.WriteRow("id", "last_name", "first_name", "email",
		"slot", "date", "start", "status", "attendance", "registered_at"); err != nil {
		return err
	}
	for i := range rows {
		im := &rows[i]
		status := "registered"
		if !im.Active() {
			status = "cancelled"
		}
		err := out.WriteRow(
			strconv.FormatUint(uint64(im.ID), 10),
			im.Person.LastName,
			im.Person.FirstName,
			im.Person.Email,
			slotLabel(&im.Slot),
			im.Slot.Date.Format("2006-01-02"),
			im.Slot.StartTime,
			status,
			attendanceLabel(im.AttendanceStatus),
			im.RegistrationDate.Format("2006-01-02 15:04"),
		)
		if err != nil {
			return err
		}
	}
	return nil
}

func attendanceLabel(s models.AttendanceStatus) string {
	switch s {
	case models.AttendancePresent:
		return "present"
	case models.AttendanceAbsent:
		return "absent"
	}
	return ""
}
