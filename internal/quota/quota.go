// Package quota computes per-period and per-training immersion allowances.
// All counts derive from the canonical immersion relation; no denormalized
// counter is authoritative.
package quota

import (
	"errors"

	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
)

// Allowance returns the number of course immersions the person may take
// within the period: the per-record override when present, else the
// period default.
func Allowance(db *gorm.DB, personID uint, period *models.Period) (int, error) {
	var override models.PeriodQuota
	err := db.Where("person_id = ? AND period_id = ?", personID, period.ID).
		First(&override).Error
	if err == nil {
		return override.AllowedImmersions, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, err
	}
	return period.AllowedImmersions, nil
}

// CountPeriodImmersions counts the person's active course immersions whose
// slot date falls in the period's immersion window.
func CountPeriodImmersions(db *gorm.DB, personID uint, period *models.Period) (int, error) {
	var count int64
	err := db.Model(&models.Immersion{}).
		Joins("JOIN slots ON slots.id = immersions.slot_id").
		Where("immersions.person_id = ?", personID).
		Where("immersions.cancellation_type_id IS NULL").
		Where("slots.kind = ?", models.SlotKindCourse).
		Where("slots.date >= ? AND slots.date <= ?",
			period.ImmersionStartDate, period.ImmersionEndDate).
		Count(&count).Error
	return int(count), err
}

// CountTrainingImmersions counts the person's active immersions on courses
// of the given training within the period window.
func CountTrainingImmersions(db *gorm.DB, personID uint, trainingID uint, period *models.Period) (int, error) {
	var count int64
	err := db.Model(&models.Immersion{}).
		Joins("JOIN slots ON slots.id = immersions.slot_id").
		Joins("JOIN courses ON courses.id = slots.course_id").
		Where("immersions.person_id = ?", personID).
		Where("immersions.cancellation_type_id IS NULL").
		Where("courses.training_id = ?", trainingID).
		Where("slots.date >= ? AND slots.date <= ?",
			period.ImmersionStartDate, period.ImmersionEndDate).
		Count(&count).Error
	return int(count), err
}

// Remaining returns allowance minus consumption for the person in the
// period. May be negative after forced registrations.
func Remaining(db *gorm.DB, personID uint, period *models.Period) (int, error) {
	allowance, err := Allowance(db, personID, period)
	if err != nil {
		return 0, err
	}
	used, err := CountPeriodImmersions(db, personID, period)
	if err != nil {
		return 0, err
	}
	return allowance - used, nil
}

// AvailableSeats recomputes the slot's free individual seats from the
// immersion relation. Callers needing a race-free value take the slot row
// lock first.
func AvailableSeats(db *gorm.DB, slotID uint, nPlaces int) (int, error) {
	var count int64
	err := db.Model(&models.Immersion{}).
		Where("slot_id = ? AND cancellation_type_id IS NULL", slotID).
		Count(&count).Error
	return nPlaces - int(count), err
}

// AvailableGroupSeats recomputes the slot's free group seats: the group
// channel counts students plus guides of each active group row.
func AvailableGroupSeats(db *gorm.DB, slotID uint, nGroupPlaces int) (int, error) {
	type sums struct{ Total int }
	var s sums
	err := db.Model(&models.GroupImmersion{}).
		Select("COALESCE(SUM(students_count + guides_count), 0) AS total").
		Where("slot_id = ? AND cancellation_type_id IS NULL", slotID).
		Scan(&s).Error
	return nGroupPlaces - s.Total, err
}
