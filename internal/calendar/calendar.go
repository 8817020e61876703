// Package calendar resolves dates against the active university year and
// the configured immersion periods. All slot and quota decisions funnel
// through PeriodOf; a resolution failure is a configuration error and is
// surfaced, never guessed.
package calendar

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
)

var (
	ErrNoPeriod        = errors.New("no immersion period covers this date")
	ErrAmbiguousPeriod = errors.New("several immersion periods cover this date")
	ErrNoActiveYear    = errors.New("no active university year")
)

// PeriodOf returns the unique period whose immersion window contains date.
func PeriodOf(db *gorm.DB, date time.Time) (*models.Period, error) {
	var periods []models.Period
	d := Day(date)
	err := db.Where("immersion_start_date <= ? AND immersion_end_date >= ?", d, d).
		Find(&periods).Error
	if err != nil {
		return nil, err
	}
	switch len(periods) {
	case 0:
		return nil, ErrNoPeriod
	case 1:
		return &periods[0], nil
	default:
		return nil, ErrAmbiguousPeriod
	}
}

// ActiveYear returns the single active university year.
func ActiveYear(db *gorm.DB) (*models.UniversityYear, error) {
	var year models.UniversityYear
	err := db.Where("active = ?", true).First(&year).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNoActiveYear
	}
	if err != nil {
		return nil, err
	}
	return &year, nil
}

// CheckPeriods verifies that no two immersion windows overlap. Used when a
// period is created or edited.
func CheckPeriods(periods []models.Period) error {
	for i := range periods {
		for j := i + 1; j < len(periods); j++ {
			a, b := &periods[i], &periods[j]
			if !a.ImmersionStartDate.After(b.ImmersionEndDate) &&
				!b.ImmersionStartDate.After(a.ImmersionEndDate) {
				return ErrAmbiguousPeriod
			}
		}
	}
	return nil
}

// IsHoliday reports whether the date is a stored public holiday.
func IsHoliday(db *gorm.DB, date time.Time) (bool, error) {
	var count int64
	err := db.Model(&models.Holiday{}).Where("date = ?", Day(date)).Count(&count).Error
	return count > 0, err
}

// Day truncates a time to its date in the original location.
func Day(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
