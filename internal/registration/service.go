// Package registration applies admission decisions transactionally:
// lock slot → recount capacity → mutate immersion → commit → notify.
package registration

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/immersup/immersup-api/internal/admission"
	"github.com/immersup/immersup-api/internal/calendar"
	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/notifier"
	"github.com/immersup/immersup-api/internal/quota"
	"github.com/immersup/immersup-api/internal/records"
	"github.com/immersup/immersup-api/internal/settings"
)

var (
	ErrSlotNotFound      = errors.New("slot not found")
	ErrPersonNotFound    = errors.New("person not found")
	ErrImmersionNotFound = errors.New("immersion not found")
	ErrNotCancellable    = errors.New("cancellation window has closed")
	ErrAlreadyCancelled  = errors.New("immersion is already cancelled")
)

type Service struct {
	db       *gorm.DB
	emitter  *notifier.Emitter
	settings *settings.Store
	log      *zap.Logger
}

func NewService(db *gorm.DB, emitter *notifier.Emitter, st *settings.Store, log *zap.Logger) *Service {
	return &Service{db: db, emitter: emitter, settings: st, log: log}
}

type RegisterInput struct {
	PersonID uint
	SlotID   uint
	// CanForce is computed by the caller from the actor's roles.
	CanForce bool
	Force    bool
	Now      time.Time
}

type Result struct {
	Decision  admission.Decision
	Immersion *models.Immersion
}

// lockSlot loads the slot under a row-level lock where the database
// supports it. The in-memory sqlite used in tests has no FOR UPDATE.
func lockSlot(tx *gorm.DB, slotID uint) (*models.Slot, error) {
	q := tx.Preload("Course").
		Preload("AllowedEstablishments").
		Preload("AllowedHighSchools").
		Preload("AllowedHighSchoolLevels").
		Preload("AllowedStudentLevels").
		Preload("AllowedPostBachelorLevels").
		Preload("AllowedBachelorTypes").
		Preload("AllowedBachelorMentions").
		Preload("AllowedBachelorTeachings")
	if tx.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	var slot models.Slot
	err := q.First(&slot, slotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSlotNotFound
	}
	return &slot, err
}

// Register runs the admission decision for (person, slot) and, when it
// allows, creates or revives the immersion row. The confirmation mail is
// queued after commit; a queueing failure is reported in logs only.
func (s *Service) Register(ctx context.Context, in RegisterInput) (*Result, error) {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	today := calendar.Day(in.Now)

	var (
		result Result
		person models.Person
		slot   *models.Slot
	)

	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		slot, err = lockSlot(tx, in.SlotID)
		if err != nil {
			return err
		}

		if err := tx.Preload("Roles").First(&person, in.PersonID).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return ErrPersonNotFound
			}
			return err
		}

		input, err := s.buildInput(ctx, tx, &person, slot, in, today)
		if err != nil {
			return err
		}

		result.Decision = admission.Decide(*input)
		if result.Decision.Outcome != admission.Allow {
			return nil
		}

		forced := in.Force && in.CanForce
		if result.Decision.Revive {
			var cancelled models.Immersion
			err := tx.Where("person_id = ? AND slot_id = ? AND cancellation_type_id IS NOT NULL",
				person.ID, slot.ID).
				Order("cancellation_date DESC").First(&cancelled).Error
			if err != nil {
				return err
			}
			updates := map[string]interface{}{
				"cancellation_type_id": nil,
				"cancellation_date":    nil,
				"attendance_status":    models.AttendanceNotEntered,
				"registration_date":    in.Now,
				"forced":               forced,
			}
			if err := tx.Model(&cancelled).Updates(updates).Error; err != nil {
				return err
			}
			cancelled.CancellationTypeID = nil
			cancelled.CancellationDate = nil
			result.Immersion = &cancelled
			return nil
		}

		im := models.Immersion{
			PersonID:         person.ID,
			SlotID:           slot.ID,
			RegistrationDate: in.Now,
			Forced:           forced,
		}
		if err := tx.Create(&im).Error; err != nil {
			return err
		}
		result.Immersion = &im
		return nil
	})
	if err != nil {
		return nil, err
	}

	if result.Immersion != nil {
		vars := map[string]string{
			"first_name": person.FirstName,
			"last_name":  person.LastName,
			"slot":       describeSlot(slot),
			"date":       slot.Date.Format("2006-01-02"),
			"start_time": slot.StartTime,
			"end_time":   slot.EndTime,
		}
		if err := s.emitter.Emit(ctx, models.TplImmersionConfirm, vars, person.Email); err != nil {
			s.log.Warn("registration confirmed but notification failed",
				zap.Uint("immersion_id", result.Immersion.ID), zap.Error(err))
		}
	}

	return &result, nil
}

// Preview runs the admission decision without mutating anything, for
// the can-register probe.
func (s *Service) Preview(ctx context.Context, in RegisterInput) (*admission.Decision, error) {
	if in.Now.IsZero() {
		in.Now = time.Now()
	}
	today := calendar.Day(in.Now)

	db := s.db.WithContext(ctx)
	var slot models.Slot
	err := db.Preload("Course").
		Preload("AllowedEstablishments").
		Preload("AllowedHighSchools").
		Preload("AllowedHighSchoolLevels").
		Preload("AllowedStudentLevels").
		Preload("AllowedPostBachelorLevels").
		Preload("AllowedBachelorTypes").
		Preload("AllowedBachelorMentions").
		Preload("AllowedBachelorTeachings").
		First(&slot, in.SlotID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrSlotNotFound
	}
	if err != nil {
		return nil, err
	}

	var person models.Person
	if err := db.Preload("Roles").First(&person, in.PersonID).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrPersonNotFound
		}
		return nil, err
	}

	input, err := s.buildInput(ctx, db, &person, &slot, in, today)
	if err != nil {
		return nil, err
	}
	decision := admission.Decide(*input)
	return &decision, nil
}

// buildInput assembles the read-only admission snapshot under the slot
// lock. Period resolution failures propagate as configuration errors.
func (s *Service) buildInput(ctx context.Context, tx *gorm.DB, person *models.Person, slot *models.Slot, in RegisterInput, today time.Time) (*admission.Input, error) {
	candidate, err := s.buildCandidate(tx, person, today)
	if err != nil {
		return nil, err
	}

	period, err := calendar.PeriodOf(tx, slot.Date)
	if err != nil {
		return nil, fmt.Errorf("slot %d: %w", slot.ID, err)
	}

	seats, err := quota.AvailableSeats(tx, slot.ID, slot.NPlaces)
	if err != nil {
		return nil, err
	}

	counts := admission.Counts{}
	var activeCount, cancelledCount int64
	if err := tx.Model(&models.Immersion{}).
		Where("person_id = ? AND slot_id = ? AND cancellation_type_id IS NULL", person.ID, slot.ID).
		Count(&activeCount).Error; err != nil {
		return nil, err
	}
	if err := tx.Model(&models.Immersion{}).
		Where("person_id = ? AND slot_id = ? AND cancellation_type_id IS NOT NULL", person.ID, slot.ID).
		Count(&cancelledCount).Error; err != nil {
		return nil, err
	}
	counts.ActiveExists = activeCount > 0
	counts.CancelledExists = cancelledCount > 0

	if slot.Kind == models.SlotKindCourse {
		remaining, err := quota.Remaining(tx, person.ID, period)
		if err != nil {
			return nil, err
		}
		counts.PeriodRemaining = remaining

		if s.settings.Bool(ctx, models.SettingActivateTrainingQuotas, false) && slot.Course != nil {
			var training models.Training
			if err := tx.First(&training, slot.Course.TrainingID).Error; err != nil {
				return nil, err
			}
			limit := s.settings.Int(ctx, models.SettingTrainingQuotaDefault, 0)
			if training.AllowedImmersions != nil {
				limit = *training.AllowedImmersions
			}
			if limit > 0 {
				used, err := quota.CountTrainingImmersions(tx, person.ID, training.ID, period)
				if err != nil {
					return nil, err
				}
				counts.TrainingQuotaEnabled = true
				counts.TrainingRemaining = limit - used
			}
		}
	}

	return &admission.Input{
		Candidate: *candidate,
		Slot:      slotView(slot, seats),
		Period: admission.PeriodView{
			RegistrationStart: period.RegistrationStartDate,
			ImmersionEnd:      period.ImmersionEndDate,
		},
		Counts:   counts,
		Now:      in.Now,
		Today:    today,
		CanForce: in.CanForce,
		Force:    in.Force,
	}, nil
}

// buildCandidate loads the person's record and flattens the restriction
// attributes the decision needs.
func (s *Service) buildCandidate(tx *gorm.DB, person *models.Person, today time.Time) (*admission.Candidate, error) {
	c := admission.Candidate{Active: person.Active}
	if person.EstablishmentID != nil {
		c.EstablishmentID = *person.EstablishmentID
	}

	record, docs, err := LoadRecord(tx, person.ID)
	if err != nil {
		return nil, err
	}
	if record == nil {
		// No candidate profile: only candidates hold records, everyone
		// else is refused by the record predicate.
		return &c, nil
	}

	c.Profile = record.ProfileKind()
	c.RecordValid = records.Valid(record)
	c.ExpiredAttestation = records.HasExpiredAttestation(docs, today)

	switch r := record.(type) {
	case *models.HighSchoolStudentRecord:
		if r.HighSchoolID != nil {
			c.HighSchoolID = *r.HighSchoolID
		}
		if r.LevelID != nil {
			c.HighSchoolLevelID = *r.LevelID
		}
		if r.PostBachelorLevelID != nil {
			c.PostBachelorLevelID = *r.PostBachelorLevelID
		}
		if r.BachelorTypeID != nil {
			c.BachelorTypeID = *r.BachelorTypeID
		}
		if r.BachelorMentionID != nil {
			c.BachelorMentionID = *r.BachelorMentionID
		}
		for _, teaching := range r.BachelorTeachings {
			c.BachelorTeachingIDs = append(c.BachelorTeachingIDs, teaching.ID)
		}
	case *models.StudentRecord:
		if r.LevelID != nil {
			c.StudentLevelID = *r.LevelID
		}
		if r.OriginBachelorTypeID != nil {
			c.BachelorTypeID = *r.OriginBachelorTypeID
		}
	}

	return &c, nil
}

func slotView(slot *models.Slot, seats int) admission.SlotView {
	v := admission.SlotView{
		Published:         slot.Published,
		Kind:              string(slot.Kind),
		Date:              calendar.Day(slot.Date),
		Start:             slot.StartAt(),
		RegistrationLimit: slot.RegistrationLimitAt(),
		AvailableSeats:    seats,

		EstablishmentsRestricted: slot.EstablishmentsRestrictions,
		LevelsRestricted:         slot.LevelsRestrictions,
		BachelorsRestricted:      slot.BachelorsRestrictions,
	}
	for _, e := range slot.AllowedEstablishments {
		v.AllowedEstablishmentIDs = append(v.AllowedEstablishmentIDs, e.ID)
	}
	for _, h := range slot.AllowedHighSchools {
		v.AllowedHighSchoolIDs = append(v.AllowedHighSchoolIDs, h.ID)
	}
	for _, l := range slot.AllowedHighSchoolLevels {
		v.AllowedHighSchoolLevelIDs = append(v.AllowedHighSchoolLevelIDs, l.ID)
	}
	for _, l := range slot.AllowedStudentLevels {
		v.AllowedStudentLevelIDs = append(v.AllowedStudentLevelIDs, l.ID)
	}
	for _, l := range slot.AllowedPostBachelorLevels {
		v.AllowedPostBachelorLevelIDs = append(v.AllowedPostBachelorLevelIDs, l.ID)
	}
	for _, b := range slot.AllowedBachelorTypes {
		v.AllowedBachelorTypeIDs = append(v.AllowedBachelorTypeIDs, b.ID)
	}
	for _, m := range slot.AllowedBachelorMentions {
		v.AllowedBachelorMentionIDs = append(v.AllowedBachelorMentionIDs, m.ID)
		v.BachelorMentionApplies = true
	}
	for _, g := range slot.AllowedBachelorTeachings {
		v.AllowedBachelorTeachingIDs = append(v.AllowedBachelorTeachingIDs, g.ID)
		v.BachelorTeachingsApply = true
	}
	return v
}

func describeSlot(slot *models.Slot) string {
	label := string(slot.Kind)
	if slot.Course != nil {
		label = slot.Course.Label
	}
	return fmt.Sprintf("%s (%s %s-%s)", label,
		slot.Date.Format("2006-01-02"), slot.StartTime, slot.EndTime)
}

// LoadRecord finds the person's record, whatever its kind, with its
// non-archived documents.
func LoadRecord(tx *gorm.DB, personID uint) (models.Record, []models.RecordDocument, error) {
	var docs []models.RecordDocument
	loadDocs := func() error {
		return tx.Where("person_id = ? AND archive = ?", personID, false).Find(&docs).Error
	}

	var hs models.HighSchoolStudentRecord
	err := tx.Preload("BachelorTeachings").Where("person_id = ?", personID).First(&hs).Error
	if err == nil {
		if err := loadDocs(); err != nil {
			return nil, nil, err
		}
		return &hs, docs, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}

	var st models.StudentRecord
	err = tx.Where("person_id = ?", personID).First(&st).Error
	if err == nil {
		if err := loadDocs(); err != nil {
			return nil, nil, err
		}
		return &st, docs, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}

	var vr models.VisitorRecord
	err = tx.Where("person_id = ?", personID).First(&vr).Error
	if err == nil {
		if err := loadDocs(); err != nil {
			return nil, nil, err
		}
		return &vr, docs, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil, err
	}
	return nil, nil, nil
}
