package registration

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/calendar"
	"github.com/immersup/immersup-api/internal/models"
)

type CancelInput struct {
	ImmersionID uint
	// ReasonID references a CancellationType. Rights are checked by the
	// caller (self, owner chain, master manager, operator).
	ReasonID uint
	Now      time.Time
}

// Cancel marks an immersion cancelled when the slot has not started and
// the cancellation window is still open. The annulment mail is queued
// after commit.
func (s *Service) Cancel(ctx context.Context, in CancelInput) error {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	today := calendar.Day(in.Now)

	var im models.Immersion
	var person models.Person

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("Slot").Preload("Slot.Course").First(&im, in.ImmersionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrImmersionNotFound
		}
		if err != nil {
			return err
		}
		if !im.Active() {
			return ErrAlreadyCancelled
		}

		slot := &im.Slot
		slotDay := calendar.Day(slot.Date)
		if slotDay.Before(today) {
			return ErrNotCancellable
		}
		if slotDay.Equal(today) && !slot.StartAt().After(in.Now) {
			return ErrNotCancellable
		}
		if in.Now.After(slot.CancellationLimitAt()) {
			return ErrNotCancellable
		}

		if err := tx.First(&person, im.PersonID).Error; err != nil {
			return err
		}

		return tx.Model(&im).Updates(map[string]interface{}{
			"cancellation_type_id": in.ReasonID,
			"cancellation_date":    in.Now,
		}).Error
	})
	if err != nil {
		return err
	}

	vars := map[string]string{
		"first_name": person.FirstName,
		"last_name":  person.LastName,
		"slot":       describeSlot(&im.Slot),
		"date":       im.Slot.Date.Format("2006-01-02"),
	}
	if err := s.emitter.Emit(ctx, models.TplImmersionAnnul, vars, person.Email); err != nil {
		s.log.Warn("cancellation recorded but notification failed",
			zap.Uint("immersion_id", im.ID), zap.Error(err))
	}
	return nil
}

// CancelBySystem cancels an immersion from a scheduled task, bypassing
// the window checks. Used by the attestation auto-cancellation job.
func (s *Service) CancelBySystem(ctx context.Context, immersionID, reasonID uint, now time.Time) error {
	var im models.Immersion
	var person models.Person

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		err := tx.Preload("Slot").First(&im, immersionID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return ErrImmersionNotFound
		}
		if err != nil {
			return err
		}
		if !im.Active() {
			return ErrAlreadyCancelled
		}
		if err := tx.First(&person, im.PersonID).Error; err != nil {
			return err
		}
		return tx.Model(&im).Updates(map[string]interface{}{
			"cancellation_type_id": reasonID,
			"cancellation_date":    now,
		}).Error
	})
	if err != nil {
		return err
	}

	vars := map[string]string{
		"first_name": person.FirstName,
		"last_name":  person.LastName,
		"slot":       describeSlot(&im.Slot),
		"date":       im.Slot.Date.Format("2006-01-02"),
	}
	if err := s.emitter.Emit(ctx, models.TplImmersionAnnul, vars, person.Email); err != nil {
		s.log.Warn("system cancellation notification failed",
			zap.Uint("immersion_id", im.ID), zap.Error(err))
	}
	return nil
}
