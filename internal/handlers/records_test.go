package handlers

import (
	"bytes"
	"context"
	"fmt"
	"mime/multipart"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/immersup/immersup-api/internal/auth"
	"github.com/immersup/immersup-api/internal/models"
)

func visitorTemplate(t *testing.T, f *fixture) *models.AttestationDocument {
	t.Helper()
	tmpl := &models.AttestationDocument{
		Label:                "Insurance certificate",
		Active:               true,
		Mandatory:            true,
		RequiresValidityDate: true,
		Profiles:             []models.AttestationProfile{{Profile: models.ProfileVisitor}},
	}
	require.NoError(t, f.db.Create(tmpl).Error)
	return tmpl
}

func TestHandleCreateRecordVisitor(t *testing.T) {
	f := newFixture(t)
	tmpl := visitorTemplate(t, f)

	visitor := &models.Person{Email: "v@example.org", Active: true,
		Roles: []models.PersonRole{{Role: models.RoleVisitor}}}
	require.NoError(t, f.db.Create(visitor).Error)

	req := &CreateRecordRequest{}
	req.Body.Profile = models.ProfileVisitor
	req.Body.Motivation = "discovering the chemistry department"

	_, err := f.records.HandleCreateRecord(asPerson(visitor), req)
	require.NoError(t, err)

	var record models.VisitorRecord
	require.NoError(t, f.db.Where("person_id = ?", visitor.ID).First(&record).Error)
	assert.Equal(t, models.RecordToComplete, record.Status)

	// The applicable attestation was instantiated.
	var doc models.RecordDocument
	require.NoError(t, f.db.Where("person_id = ?", visitor.ID).First(&doc).Error)
	assert.Equal(t, tmpl.ID, doc.AttestationDocumentID)
	assert.True(t, doc.Mandatory)

	// Second record for the same account is refused.
	_, err = f.records.HandleCreateRecord(asPerson(visitor), req)
	assert.Error(t, err)
}

func TestHandleCreateRecordCharterGate(t *testing.T) {
	f := newFixture(t)
	require.NoError(t, f.st.Set(context.Background(), models.SettingCharterSign, "bool", true))

	unsigned := models.HighSchool{Label: "Lycee Sud", UAICode: "0440001B", Active: true}
	require.NoError(t, f.db.Create(&unsigned).Error)
	signed := models.HighSchool{Label: "Lycee Nord", UAICode: "0440002C", Active: true, SignedCharter: true}
	require.NoError(t, f.db.Create(&signed).Error)

	pupil := &models.Person{Email: "p@example.org", Active: true}
	require.NoError(t, f.db.Create(pupil).Error)

	req := &CreateRecordRequest{}
	req.Body.Profile = models.ProfileHighSchoolStudent
	req.Body.HighSchoolID = &unsigned.ID

	_, err := f.records.HandleCreateRecord(asPerson(pupil), req)
	assert.Error(t, err)

	req.Body.HighSchoolID = &signed.ID
	_, err = f.records.HandleCreateRecord(asPerson(pupil), req)
	require.NoError(t, err)
}

func multipartUpload(t *testing.T, attestationID uint, filename, validity string) (*bytes.Buffer, string) {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	part, err := w.CreateFormFile(fmt.Sprintf("document_%d-file", attestationID), filename)
	require.NoError(t, err)
	_, err = part.Write([]byte("%PDF-1.4 stub"))
	require.NoError(t, err)
	if validity != "" {
		require.NoError(t, w.WriteField(fmt.Sprintf("document_%d-validity_date", attestationID), validity))
	}
	require.NoError(t, w.Close())
	return &buf, w.FormDataContentType()
}

func TestHandleUploadDocumentsSubmitsRecord(t *testing.T) {
	f := newFixture(t)
	tmpl := visitorTemplate(t, f)

	visitor := &models.Person{Email: "v@example.org", Active: true}
	require.NoError(t, f.db.Create(visitor).Error)
	record := &models.VisitorRecord{}
	record.PersonID = visitor.ID
	record.Status = models.RecordToComplete
	require.NoError(t, f.db.Create(record).Error)
	require.NoError(t, f.db.Create(&models.RecordDocument{
		PersonID:              visitor.ID,
		AttestationDocumentID: tmpl.ID,
		Mandatory:             true,
		RequiresValidityDate:  true,
	}).Error)

	validity := time.Now().AddDate(1, 0, 0).Format("2006-01-02")
	body, contentType := multipartUpload(t, tmpl.ID, "insurance.pdf", validity)

	req := httptest.NewRequest("POST", "/api/record/documents", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(auth.WithPerson(req.Context(), visitor))
	rr := httptest.NewRecorder()

	f.records.HandleUploadDocuments(rr, req)
	require.Equal(t, 204, rr.Code, rr.Body.String())

	var doc models.RecordDocument
	require.NoError(t, f.db.Where("person_id = ?", visitor.ID).First(&doc).Error)
	assert.NotEmpty(t, doc.File)
	require.NotNil(t, doc.ValidityDate)

	var got models.VisitorRecord
	require.NoError(t, f.db.First(&got, record.ID).Error)
	assert.Equal(t, models.RecordToValidate, got.Status)
}

func TestHandleUploadDocumentsRejectsExtension(t *testing.T) {
	f := newFixture(t)
	tmpl := visitorTemplate(t, f)

	visitor := &models.Person{Email: "v@example.org", Active: true}
	require.NoError(t, f.db.Create(visitor).Error)
	record := &models.VisitorRecord{}
	record.PersonID = visitor.ID
	require.NoError(t, f.db.Create(record).Error)

	body, contentType := multipartUpload(t, tmpl.ID, "malware.exe", "")

	req := httptest.NewRequest("POST", "/api/record/documents", body)
	req.Header.Set("Content-Type", contentType)
	req = req.WithContext(auth.WithPerson(req.Context(), visitor))
	rr := httptest.NewRecorder()

	f.records.HandleUploadDocuments(rr, req)
	assert.Equal(t, 400, rr.Code)
}

func TestHandleValidateRecord(t *testing.T) {
	f := newFixture(t)
	manager := f.manager(t)

	visitor := &models.Person{Email: "v@example.org", FirstName: "Vera", Active: true}
	require.NoError(t, f.db.Create(visitor).Error)
	record := &models.VisitorRecord{}
	record.PersonID = visitor.ID
	record.Status = models.RecordToValidate
	require.NoError(t, f.db.Create(record).Error)

	req := &RecordActionRequest{}
	req.Body.PersonID = visitor.ID

	_, err := f.records.HandleValidateRecord(asPerson(visitor), req)
	assert.Error(t, err, "only managers validate")

	_, err = f.records.HandleValidateRecord(asPerson(manager), req)
	require.NoError(t, err)

	var got models.VisitorRecord
	require.NoError(t, f.db.First(&got, record.ID).Error)
	assert.Equal(t, models.RecordValidated, got.Status)

	var outbox int64
	f.db.Model(&models.OutboxMessage{}).Where("recipient = ?", visitor.Email).Count(&outbox)
	assert.EqualValues(t, 1, outbox)
}

func TestHandleRejectRecord(t *testing.T) {
	f := newFixture(t)
	manager := f.manager(t)

	visitor := &models.Person{Email: "v@example.org", Active: true}
	require.NoError(t, f.db.Create(visitor).Error)
	record := &models.VisitorRecord{}
	record.PersonID = visitor.ID
	record.Status = models.RecordToValidate
	require.NoError(t, f.db.Create(record).Error)

	req := &RecordActionRequest{}
	req.Body.PersonID = visitor.ID
	req.Body.Reason = "illegible certificate"

	_, err := f.records.HandleRejectRecord(asPerson(manager), req)
	require.NoError(t, err)

	var got models.VisitorRecord
	require.NoError(t, f.db.First(&got, record.ID).Error)
	assert.Equal(t, models.RecordRejected, got.Status)
	assert.Equal(t, "illegible certificate", got.RejectionReason)
}
