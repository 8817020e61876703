package records

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
)

var today = time.Date(2025, 3, 5, 0, 0, 0, 0, time.UTC)

func futureDate() *time.Time {
	d := today.AddDate(0, 6, 0)
	return &d
}

func pastDate() *time.Time {
	d := today.AddDate(0, -1, 0)
	return &d
}

func validDocs() []models.RecordDocument {
	return []models.RecordDocument{
		{File: "id.pdf", Mandatory: true},
		{File: "insurance.pdf", Mandatory: true, RequiresValidityDate: true, ValidityDate: futureDate()},
	}
}

func TestSubmitApproveFlow(t *testing.T) {
	r := &models.HighSchoolStudentRecord{}
	r.Status = models.RecordToComplete

	require.NoError(t, Submit(r, validDocs(), today))
	assert.Equal(t, models.RecordToValidate, r.Status)

	require.NoError(t, Approve(r, validDocs(), today))
	assert.Equal(t, models.RecordValidated, r.Status)
	assert.NotNil(t, r.ValidationDate)
}

func TestSubmitRequiresDocuments(t *testing.T) {
	r := &models.StudentRecord{}
	r.Status = models.RecordToComplete

	missing := []models.RecordDocument{{Mandatory: true}}
	assert.ErrorIs(t, Submit(r, missing, today), ErrMissingDocuments)

	expired := []models.RecordDocument{
		{File: "x.pdf", Mandatory: true, RequiresValidityDate: true, ValidityDate: pastDate()},
	}
	assert.ErrorIs(t, Submit(r, expired, today), ErrMissingDocuments)
	assert.Equal(t, models.RecordToComplete, r.Status)
}

func TestApproveRejectsValidityDateToday(t *testing.T) {
	r := &models.VisitorRecord{}
	r.Status = models.RecordToValidate

	// Validity dates must be strictly in the future.
	docs := []models.RecordDocument{
		{File: "x.pdf", Mandatory: true, RequiresValidityDate: true, ValidityDate: &today},
	}
	assert.ErrorIs(t, Approve(r, docs, today), ErrMissingDocuments)
}

func TestRejectAndResubmit(t *testing.T) {
	r := &models.HighSchoolStudentRecord{}
	r.Status = models.RecordToValidate

	require.NoError(t, Reject(r, "unreadable documents"))
	assert.Equal(t, models.RecordRejected, r.Status)
	assert.Equal(t, "unreadable documents", r.RejectionReason)

	require.NoError(t, Submit(r, validDocs(), today))
	assert.Equal(t, models.RecordToValidate, r.Status)
}

func TestMaterialEditRoundTrip(t *testing.T) {
	r := &models.HighSchoolStudentRecord{}
	r.Status = models.RecordValidated

	MaterialEdit(r)
	assert.Equal(t, models.RecordToRevalidate, r.Status)
	assert.True(t, Valid(r), "TO_REVALIDATE stays valid for registration")

	require.NoError(t, Approve(r, validDocs(), today))
	assert.Equal(t, models.RecordValidated, r.Status)
}

func TestBadTransitions(t *testing.T) {
	r := &models.StudentRecord{}
	r.Status = models.RecordToComplete

	assert.ErrorIs(t, Approve(r, validDocs(), today), ErrBadTransition)
	assert.ErrorIs(t, Reject(r, "x"), ErrBadTransition)

	r.Status = models.RecordValidated
	assert.ErrorIs(t, Submit(r, validDocs(), today), ErrBadTransition)
}

func TestApplicable(t *testing.T) {
	tmpl := &models.AttestationDocument{
		Active:        true,
		ForMinorsOnly: true,
		Profiles: []models.AttestationProfile{
			{Profile: models.ProfileHighSchoolStudent},
		},
	}

	assert.True(t, Applicable(tmpl, models.ProfileHighSchoolStudent, nil, true))
	assert.False(t, Applicable(tmpl, models.ProfileHighSchoolStudent, nil, false))
	assert.False(t, Applicable(tmpl, models.ProfileStudent, nil, true))

	vt := uint(3)
	visitorTmpl := &models.AttestationDocument{
		Active:   true,
		Profiles: []models.AttestationProfile{{Profile: models.ProfileVisitor}},
		VisitorTypes: []models.VisitorType{
			{Model: models.Model{ID: 3}, Code: "senior"},
		},
	}
	assert.True(t, Applicable(visitorTmpl, models.ProfileVisitor, &vt, false))
	other := uint(9)
	assert.False(t, Applicable(visitorTmpl, models.ProfileVisitor, &other, false))
	assert.False(t, Applicable(visitorTmpl, models.ProfileVisitor, nil, false))
}

func TestRenewDocumentArchivesAndRevalidates(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.RecordDocument{}, &models.HighSchoolStudentRecord{}))

	r := &models.HighSchoolStudentRecord{}
	r.Status = models.RecordValidated
	require.NoError(t, db.Create(r).Error)

	doc := &models.RecordDocument{
		PersonID:             1,
		AttestationDocumentID: 1,
		File:                 "old.pdf",
		Mandatory:            true,
		RequiresValidityDate: true,
		ValidityDate:         pastDate(),
	}
	require.NoError(t, db.Create(doc).Error)

	require.NoError(t, RenewDocument(db, r, doc, "new.pdf", futureDate(), 30, today))

	var archived []models.RecordDocument
	require.NoError(t, db.Where("archive = ?", true).Find(&archived).Error)
	require.Len(t, archived, 1)
	assert.Equal(t, "old.pdf", archived[0].File)

	assert.Equal(t, "new.pdf", doc.File)
	assert.False(t, doc.RenewalEmailSent)

	var reloaded models.HighSchoolStudentRecord
	require.NoError(t, db.First(&reloaded, r.ID).Error)
	assert.Equal(t, models.RecordToRevalidate, reloaded.Status)
}

func TestRenewDocumentLockedBeforeWindow(t *testing.T) {
	db, err := gorm.Open(sqlite.Open(":memory:"), &gorm.Config{})
	require.NoError(t, err)
	require.NoError(t, db.AutoMigrate(&models.RecordDocument{}, &models.VisitorRecord{}))

	r := &models.VisitorRecord{}
	r.Status = models.RecordValidated

	// Validity six months out, deposit window 30 days: locked today.
	doc := &models.RecordDocument{
		File:                 "current.pdf",
		RequiresValidityDate: true,
		ValidityDate:         futureDate(),
	}
	err = RenewDocument(db, r, doc, "new.pdf", futureDate(), 30, today)
	assert.ErrorIs(t, err, ErrDocumentLocked)
}
