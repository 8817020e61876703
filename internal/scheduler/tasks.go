package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/calendar"
	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/notifier"
	"github.com/immersup/immersup-api/internal/quota"
	"github.com/immersup/immersup-api/internal/registration"
	"github.com/immersup/immersup-api/internal/settings"
)

// Task names, matching the rows of the dispatch table.
const (
	TaskSlotReminders       = "slot_reminders"
	TaskSpeakerReminders    = "speaker_reminders"
	TaskCourseAlerts        = "course_alerts"
	TaskAttestationWarnings = "attestation_warnings"
	TaskAutoCancelExpired   = "auto_cancel_expired_attestations"
	TaskGlobalEvaluation    = "global_evaluation"
	TaskAnnualPurge         = "annual_purge"
	TaskOutboxDrain         = "outbox_drain"
)

const candidateReminderDays = 4

// CancellationAttestationExpired is the system cancellation reason code.
const CancellationAttestationExpired = "ATTESTATION_EXPIRED"

// Tasks bundles the dependencies of the standard task set.
type Tasks struct {
	DB       *gorm.DB
	Settings *settings.Store
	Emitter  *notifier.Emitter
	Reg      *registration.Service
	Mailer   notifier.Mailer
	Log      *zap.Logger
}

// RegisterAll binds every standard task on the scheduler.
func (t *Tasks) RegisterAll(s *Scheduler) {
	s.Register(TaskSlotReminders, t.SlotReminders)
	s.Register(TaskSpeakerReminders, t.SpeakerReminders)
	s.Register(TaskCourseAlerts, t.CourseAlerts)
	s.Register(TaskAttestationWarnings, t.AttestationWarnings)
	s.Register(TaskAutoCancelExpired, t.AutoCancelExpired)
	s.Register(TaskGlobalEvaluation, t.GlobalEvaluation)
	s.Register(TaskAnnualPurge, t.AnnualPurge)
	s.Register(TaskOutboxDrain, t.OutboxDrain)
}

// SlotReminders mails candidates registered on slots happening in
// candidateReminderDays.
func (t *Tasks) SlotReminders(ctx context.Context, now time.Time) (string, error) {
	target := calendar.Day(now).AddDate(0, 0, candidateReminderDays)

	var slots []models.Slot
	err := t.DB.WithContext(ctx).Preload("Course").
		Where("published = ? AND reminded = ? AND date = ?", true, false, target).
		Find(&slots).Error
	if err != nil {
		return "", err
	}

	sent := 0
	for i := range slots {
		slot := &slots[i]
		var immersions []models.Immersion
		err := t.DB.WithContext(ctx).Preload("Person").
			Where("slot_id = ? AND cancellation_type_id IS NULL", slot.ID).
			Find(&immersions).Error
		if err != nil {
			return "", err
		}
		for _, im := range immersions {
			vars := map[string]string{
				"first_name": im.Person.FirstName,
				"date":       slot.Date.Format("2006-01-02"),
				"start_time": slot.StartTime,
			}
			if err := t.Emitter.Emit(ctx, models.TplImmersionReminder, vars, im.Person.Email); err != nil {
				t.Log.Warn("reminder emit failed", zap.Uint("slot_id", slot.ID), zap.Error(err))
				continue
			}
			sent++
		}
		if err := t.DB.WithContext(ctx).Model(slot).Update("reminded", true).Error; err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%d reminders sent for %d slots", sent, len(slots)), nil
}

// SpeakerReminders mails the speakers of slots happening in
// NB_DAYS_SPEAKER_SLOT_REMINDER days.
func (t *Tasks) SpeakerReminders(ctx context.Context, now time.Time) (string, error) {
	days := t.Settings.Int(ctx, models.SettingSpeakerSlotReminderDays, 5)
	target := calendar.Day(now).AddDate(0, 0, days)

	var slots []models.Slot
	err := t.DB.WithContext(ctx).Preload("Speakers").
		Where("published = ? AND speaker_reminded = ? AND date = ?", true, false, target).
		Find(&slots).Error
	if err != nil {
		return "", err
	}

	sent := 0
	for i := range slots {
		slot := &slots[i]
		for _, sp := range slot.Speakers {
			vars := map[string]string{
				"first_name": sp.FirstName,
				"date":       slot.Date.Format("2006-01-02"),
				"start_time": slot.StartTime,
			}
			if err := t.Emitter.Emit(ctx, models.TplSpeakerSlotReminder, vars, sp.Email); err != nil {
				continue
			}
			sent++
		}
		if err := t.DB.WithContext(ctx).Model(slot).Update("speaker_reminded", true).Error; err != nil {
			return "", err
		}
	}
	return fmt.Sprintf("%d speaker reminders sent", sent), nil
}

// CourseAlerts fans out to subscribers of courses that now have a future
// published slot with free seats.
func (t *Tasks) CourseAlerts(ctx context.Context, now time.Time) (string, error) {
	var alerts []models.UserCourseAlert
	err := t.DB.WithContext(ctx).Preload("Course").
		Where("email_sent = ?", false).Find(&alerts).Error
	if err != nil {
		return "", err
	}

	today := calendar.Day(now)
	sent := 0
	for i := range alerts {
		alert := &alerts[i]

		var slots []models.Slot
		err := t.DB.WithContext(ctx).
			Where("course_id = ? AND published = ? AND date >= ?", alert.CourseID, true, today).
			Find(&slots).Error
		if err != nil {
			return "", err
		}

		available := false
		for j := range slots {
			free, err := quota.AvailableSeats(t.DB.WithContext(ctx), slots[j].ID, slots[j].NPlaces)
			if err != nil {
				return "", err
			}
			if free > 0 {
				available = true
				break
			}
		}
		if !available {
			continue
		}

		vars := map[string]string{"course": alert.Course.Label}
		if err := t.Emitter.Emit(ctx, models.TplCourseAlert, vars, alert.Email); err != nil {
			continue
		}
		sentAt := now
		if err := t.DB.WithContext(ctx).Model(alert).Updates(map[string]interface{}{
			"email_sent": true,
			"sent_at":    &sentAt,
		}).Error; err != nil {
			return "", err
		}
		sent++
	}
	return fmt.Sprintf("%d course alerts sent", sent), nil
}

// AttestationWarnings mails candidates whose mandatory documents expire
// within the deposit delay. Each document is warned exactly once.
func (t *Tasks) AttestationWarnings(ctx context.Context, now time.Time) (string, error) {
	delay := t.Settings.Int(ctx, models.SettingAttestationDepositDelay, 0)
	deadline := calendar.Day(now).AddDate(0, 0, delay)

	var docs []models.RecordDocument
	err := t.DB.WithContext(ctx).
		Where("archive = ? AND mandatory = ? AND requires_validity_date = ?", false, true, true).
		Where("renewal_email_sent = ?", false).
		Where("validity_date IS NOT NULL AND validity_date <= ?", deadline).
		Find(&docs).Error
	if err != nil {
		return "", err
	}

	sent := 0
	for i := range docs {
		doc := &docs[i]
		var person models.Person
		if err := t.DB.WithContext(ctx).First(&person, doc.PersonID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				continue
			}
			return "", err
		}
		vars := map[string]string{
			"first_name":    person.FirstName,
			"validity_date": doc.ValidityDate.Format("2006-01-02"),
		}
		if err := t.Emitter.Emit(ctx, models.TplAttestationRenewal, vars, person.Email); err != nil {
			continue
		}
		if err := t.DB.WithContext(ctx).Model(doc).Update("renewal_email_sent", true).Error; err != nil {
			return "", err
		}
		sent++
	}
	return fmt.Sprintf("%d renewal warnings sent", sent), nil
}

// AutoCancelExpired cancels future immersions of candidates whose
// mandatory attestations are expired, but only once the slot is inside
// its cancellation window: earlier slots leave the candidate time to
// renew the document.
func (t *Tasks) AutoCancelExpired(ctx context.Context, now time.Time) (string, error) {
	today := calendar.Day(now)

	reason, err := t.systemCancellationType(ctx)
	if err != nil {
		return "", err
	}

	var expired []models.RecordDocument
	err = t.DB.WithContext(ctx).
		Where("archive = ? AND mandatory = ? AND requires_validity_date = ?", false, true, true).
		Where("validity_date IS NOT NULL AND validity_date < ?", today).
		Find(&expired).Error
	if err != nil {
		return "", err
	}

	contact := t.Settings.String(ctx, models.SettingMailContactRefEtab, "")
	cancelled := 0
	for _, doc := range expired {
		var immersions []models.Immersion
		err := t.DB.WithContext(ctx).Preload("Slot").Preload("Person").
			Joins("JOIN slots ON slots.id = immersions.slot_id").
			Where("immersions.person_id = ? AND immersions.cancellation_type_id IS NULL", doc.PersonID).
			Where("slots.date >= ?", today).
			Find(&immersions).Error
		if err != nil {
			return "", err
		}

		for _, im := range immersions {
			// Inside the cancellation window the candidate can no longer
			// free the seat themselves.
			if now.Before(im.Slot.CancellationLimitAt()) {
				continue
			}
			if err := t.Reg.CancelBySystem(ctx, im.ID, reason.ID, now); err != nil {
				t.Log.Warn("auto-cancellation failed", zap.Uint("immersion_id", im.ID), zap.Error(err))
				continue
			}
			if contact != "" {
				vars := map[string]string{
					"first_name": im.Person.FirstName,
					"last_name":  im.Person.LastName,
					"date":       im.Slot.Date.Format("2006-01-02"),
				}
				if err := t.Emitter.Emit(ctx, models.TplImmersionAnnul, vars, contact); err != nil {
					t.Log.Warn("contact copy of annulment failed", zap.Error(err))
				}
			}
			cancelled++
		}
	}
	return fmt.Sprintf("%d immersions auto-cancelled", cancelled), nil
}

// GlobalEvaluation mails the evaluation survey to candidates with at
// least one attended past immersion, once per immersion.
func (t *Tasks) GlobalEvaluation(ctx context.Context, now time.Time) (string, error) {
	today := calendar.Day(now)

	var immersions []models.Immersion
	err := t.DB.WithContext(ctx).Preload("Person").
		Joins("JOIN slots ON slots.id = immersions.slot_id").
		Where("immersions.cancellation_type_id IS NULL AND immersions.survey_email_sent = ?", false).
		Where("slots.date < ?", today).
		Find(&immersions).Error
	if err != nil {
		return "", err
	}

	sent := 0
	for _, im := range immersions {
		vars := map[string]string{"first_name": im.Person.FirstName}
		if err := t.Emitter.Emit(ctx, models.TplGlobalEvaluation, vars, im.Person.Email); err != nil {
			continue
		}
		if err := t.DB.WithContext(ctx).Model(&im).Update("survey_email_sent", true).Error; err != nil {
			return "", err
		}
		sent++
	}
	return fmt.Sprintf("%d evaluation mails sent", sent), nil
}

// AnnualPurge removes accounts past their destruction date and prunes
// delivered outbox rows older than 90 days. Everything runs inside one
// transaction so an interrupted purge leaves the database unchanged.
func (t *Tasks) AnnualPurge(ctx context.Context, now time.Time) (string, error) {
	today := calendar.Day(now)
	purgedPersons := int64(0)
	purgedMail := int64(0)

	err := t.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var persons []models.Person
		if err := tx.Where("destruction_date IS NOT NULL AND destruction_date <= ?", today).
			Find(&persons).Error; err != nil {
			return err
		}
		for _, p := range persons {
			if err := tx.Where("person_id = ?", p.ID).Delete(&models.Immersion{}).Error; err != nil {
				return err
			}
			if err := tx.Where("person_id = ?", p.ID).Delete(&models.RecordDocument{}).Error; err != nil {
				return err
			}
			if err := tx.Where("person_id = ?", p.ID).Delete(&models.HighSchoolStudentRecord{}).Error; err != nil {
				return err
			}
			if err := tx.Where("person_id = ?", p.ID).Delete(&models.StudentRecord{}).Error; err != nil {
				return err
			}
			if err := tx.Where("person_id = ?", p.ID).Delete(&models.VisitorRecord{}).Error; err != nil {
				return err
			}
			if err := tx.Delete(&models.Person{}, p.ID).Error; err != nil {
				return err
			}
			purgedPersons++
		}

		res := tx.Where("sent_at IS NOT NULL AND sent_at < ?", today.AddDate(0, 0, -90)).
			Delete(&models.OutboxMessage{})
		if res.Error != nil {
			return res.Error
		}
		purgedMail = res.RowsAffected
		return nil
	})
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d persons purged, %d outbox rows pruned", purgedPersons, purgedMail), nil
}

// OutboxDrain hands queued notifications to the mailer.
func (t *Tasks) OutboxDrain(ctx context.Context, _ time.Time) (string, error) {
	sent, err := notifier.DrainOutbox(ctx, t.DB, t.Mailer, t.Log, 500)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%d mails delivered", sent), nil
}

func (t *Tasks) systemCancellationType(ctx context.Context) (*models.CancellationType, error) {
	var reason models.CancellationType
	err := t.DB.WithContext(ctx).Where("code = ?", CancellationAttestationExpired).First(&reason).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		reason = models.CancellationType{
			Label:  "Attestation expired",
			Code:   CancellationAttestationExpired,
			Active: true,
			System: true,
		}
		err = t.DB.WithContext(ctx).Create(&reason).Error
	}
	if err != nil {
		return nil, err
	}
	return &reason, nil
}
