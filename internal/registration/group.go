package registration

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/calendar"
	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/quota"
)

var (
	ErrGroupsNotAllowed = errors.New("slot does not accept group registrations")
	ErrNoGroupSeat      = errors.New("not enough group seats available")
)

type GroupInput struct {
	SlotID        uint
	HighSchoolID  uint
	StudentsCount int
	GuidesCount   int
	Comments      string
	Now           time.Time
}

// RegisterGroup books a whole group on the slot's group channel. Capacity
// is the sum of active students+guides against n_group_places, recounted
// under the slot lock. Cancellation is whole-row only; partial-group
// cancellation is not modelled.
func (s *Service) RegisterGroup(ctx context.Context, in GroupInput) (*models.GroupImmersion, error) {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	today := calendar.Day(in.Now)

	var group models.GroupImmersion
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		slot, err := lockSlot(tx, in.SlotID)
		if err != nil {
			return err
		}
		if !slot.Published || !slot.AllowGroupRegistrations {
			return ErrGroupsNotAllowed
		}
		if calendar.Day(slot.Date).Before(today) {
			return ErrNotCancellable
		}
		if _, err := calendar.PeriodOf(tx, slot.Date); err != nil {
			return err
		}

		free, err := quota.AvailableGroupSeats(tx, slot.ID, slot.NGroupPlaces)
		if err != nil {
			return err
		}
		if in.StudentsCount+in.GuidesCount > free {
			return ErrNoGroupSeat
		}

		group = models.GroupImmersion{
			SlotID:           slot.ID,
			HighSchoolID:     in.HighSchoolID,
			StudentsCount:    in.StudentsCount,
			GuidesCount:      in.GuidesCount,
			Comments:         in.Comments,
			RegistrationDate: in.Now,
		}
		return tx.Create(&group).Error
	})
	if err != nil {
		return nil, err
	}
	return &group, nil
}

// CancelGroup cancels a whole group registration.
func (s *Service) CancelGroup(ctx context.Context, groupID, reasonID uint, now time.Time) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var group models.GroupImmersion
		err := tx.First(&group, groupID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrImmersionNotFound
		}
		if err != nil {
			return err
		}
		if !group.Active() {
			return ErrAlreadyCancelled
		}
		return tx.Model(&group).Updates(map[string]interface{}{
			"cancellation_type_id": reasonID,
			"cancellation_date":    now,
		}).Error
	})
}
