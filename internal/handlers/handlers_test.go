package handlers

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/auth"
	"github.com/immersup/immersup-api/internal/database"
	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/notifier"
	"github.com/immersup/immersup-api/internal/registration"
	"github.com/immersup/immersup-api/internal/settings"
)

// The handler paths clock off time.Now, so the fixtures use relative
// dates.
var (
	today      = time.Now().Truncate(24 * time.Hour)
	slotDay    = today.AddDate(0, 0, 7)
	periodFrom = today.AddDate(0, 0, -10)
	periodTo   = today.AddDate(0, 0, 60)
)

type fixture struct {
	db       *gorm.DB
	st       *settings.Store
	emitter  *notifier.Emitter
	authSvc  *auth.Service
	register *RegisterHandler
	records  *RecordHandler
	accounts *AccountHandler
	exports  *ExportHandler
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(database.Models()...))

	log := zap.NewNop()
	st := settings.NewStore(db, nil, log)
	emitter := notifier.NewEmitter(db, log)
	reg := registration.NewService(db, emitter, st, log)
	authSvc := auth.NewService(db, "test-secret")

	for _, code := range []string{
		models.TplImmersionConfirm, models.TplImmersionAnnul,
		models.TplRecordValidated, models.TplRecordRejected,
		models.TplAccountActivation,
	} {
		db.Create(&models.MailTemplate{
			Code: code, Label: code, Subject: "s", Body: "Dear ${first_name}", Active: true,
		})
	}

	db.Create(&models.Period{
		Label:                 "P1",
		RegistrationStartDate: periodFrom.AddDate(0, 0, -20),
		ImmersionStartDate:    periodFrom,
		ImmersionEndDate:      periodTo,
		AllowedImmersions:     2,
	})

	return &fixture{
		db:       db,
		st:       st,
		emitter:  emitter,
		authSvc:  authSvc,
		register: NewRegisterHandler(db, reg, log),
		records:  NewRecordHandler(db, st, emitter, t.TempDir(), log),
		accounts: NewAccountHandler(db, authSvc, st, emitter, log),
		exports:  NewExportHandler(db, st, log),
	}
}

func (f *fixture) candidate(t *testing.T, email string) *models.Person {
	t.Helper()
	p := &models.Person{Email: email, FirstName: "Camille", Active: true,
		Roles: []models.PersonRole{{Role: models.RoleHighSchoolStudent}}}
	require.NoError(t, f.db.Create(p).Error)
	r := &models.HighSchoolStudentRecord{}
	r.PersonID = p.ID
	r.Status = models.RecordValidated
	require.NoError(t, f.db.Create(r).Error)
	return p
}

func (f *fixture) manager(t *testing.T) *models.Person {
	t.Helper()
	p := &models.Person{Email: "manager@example.org", Active: true,
		Roles: []models.PersonRole{{Role: models.RoleMasterManager}}}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

// structureIn creates an establishment holding a single structure.
func (f *fixture) structureIn(t *testing.T, code string) *models.Structure {
	t.Helper()
	est := &models.Establishment{Code: code, Label: code, UAI: code, Active: true}
	require.NoError(t, f.db.Create(est).Error)
	st := &models.Structure{Code: code + "-S", Label: code, Active: true, EstablishmentID: est.ID}
	require.NoError(t, f.db.Create(st).Error)
	return st
}

func (f *fixture) structureManager(t *testing.T, email string, structureID uint) *models.Person {
	t.Helper()
	p := &models.Person{Email: email, Active: true, StructureID: &structureID,
		Roles: []models.PersonRole{{Role: models.RoleStructureManager}}}
	require.NoError(t, f.db.Create(p).Error)
	return p
}

func (f *fixture) courseSlot(t *testing.T, places int, day time.Time) *models.Slot {
	t.Helper()
	training := &models.Training{Label: "T", Active: true}
	require.NoError(t, f.db.Create(training).Error)
	course := &models.Course{Label: "Maths", TrainingID: training.ID, Published: true}
	require.NoError(t, f.db.Create(course).Error)
	slot := &models.Slot{
		Kind:      models.SlotKindCourse,
		CourseID:  &course.ID,
		Date:      day,
		StartTime: "10:00",
		EndTime:   "12:00",
		NPlaces:   places,
		Published: true,
		AllowIndividualRegistrations: true,
		RegistrationLimitDelay:       24,
		CancellationLimitDelay:       12,
	}
	require.NoError(t, f.db.Create(slot).Error)
	return slot
}

// ownedCourseSlot hangs the slot's course off the given structure so the
// owner chain resolves to it.
func (f *fixture) ownedCourseSlot(t *testing.T, structureID uint, places int, day time.Time) *models.Slot {
	t.Helper()
	training := &models.Training{Label: "T", Active: true, StructureID: &structureID}
	require.NoError(t, f.db.Create(training).Error)
	course := &models.Course{Label: "Physics", TrainingID: training.ID, Published: true}
	require.NoError(t, f.db.Create(course).Error)
	slot := &models.Slot{
		Kind:      models.SlotKindCourse,
		CourseID:  &course.ID,
		Date:      day,
		StartTime: "10:00",
		EndTime:   "12:00",
		NPlaces:   places,
		Published: true,
		AllowIndividualRegistrations: true,
		RegistrationLimitDelay:       24,
		CancellationLimitDelay:       12,
	}
	require.NoError(t, f.db.Create(slot).Error)
	return slot
}

func asPerson(p *models.Person) context.Context {
	return auth.WithPerson(context.Background(), p)
}
