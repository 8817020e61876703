package records

import (
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
)

var ErrDocumentLocked = errors.New("document cannot be replaced before its renewal window opens")

// Applicable reports whether an attestation template applies to a record.
// Minor-only templates apply iff the person is under 18 today; visitor
// typed templates apply iff the record's visitor type is in the template
// set.
func Applicable(tmpl *models.AttestationDocument, profile string, visitorTypeID *uint, isMinor bool) bool {
	if !tmpl.Active {
		return false
	}
	if tmpl.ForMinorsOnly && !isMinor {
		return false
	}
	found := false
	for _, p := range tmpl.Profiles {
		if p.Profile == profile {
			found = true
			break
		}
	}
	if !found {
		return false
	}
	if profile == models.ProfileVisitor && len(tmpl.VisitorTypes) > 0 {
		if visitorTypeID == nil {
			return false
		}
		for _, vt := range tmpl.VisitorTypes {
			if vt.ID == *visitorTypeID {
				return true
			}
		}
		return false
	}
	return true
}

// EnsureDocuments creates the missing RecordDocument instances for every
// applicable template. Existing instances are left untouched.
func EnsureDocuments(db *gorm.DB, r models.Record, person *models.Person, visitorTypeID *uint, today time.Time) error {
	var templates []models.AttestationDocument
	if err := db.Preload("Profiles").Preload("VisitorTypes").
		Where("active = ?", true).Find(&templates).Error; err != nil {
		return err
	}

	for i := range templates {
		tmpl := &templates[i]
		if !Applicable(tmpl, r.ProfileKind(), visitorTypeID, person.IsMinor(today)) {
			continue
		}
		var count int64
		err := db.Model(&models.RecordDocument{}).
			Where("person_id = ? AND attestation_document_id = ? AND archive = ?",
				person.ID, tmpl.ID, false).
			Count(&count).Error
		if err != nil {
			return err
		}
		if count > 0 {
			continue
		}
		doc := models.RecordDocument{
			PersonID:              person.ID,
			AttestationDocumentID: tmpl.ID,
			ForMinors:             tmpl.ForMinorsOnly,
			Mandatory:             tmpl.Mandatory,
			RequiresValidityDate:  tmpl.RequiresValidityDate,
		}
		if err := db.Create(&doc).Error; err != nil {
			return err
		}
	}
	return nil
}

// RenewDocument replaces a document's file. Before the renewal window
// (validity_date - depositDelay days) the document is locked. When the
// record is VALIDATED the previous instance is archived as an insert-only
// copy and the record drops to TO_REVALIDATE.
func RenewDocument(db *gorm.DB, r models.Record, doc *models.RecordDocument, file string, validity *time.Time, depositDelay int, today time.Time) error {
	if doc.RequiresValidityDate && doc.ValidityDate != nil {
		windowOpen := doc.ValidityDate.AddDate(0, 0, -depositDelay)
		if today.Before(windowOpen) {
			return ErrDocumentLocked
		}
	}

	return db.Transaction(func(tx *gorm.DB) error {
		if doc.File != "" {
			archived := *doc
			archived.ID = 0
			archived.CreatedAt = time.Time{}
			archived.UpdatedAt = time.Time{}
			archived.Archive = true
			if err := tx.Create(&archived).Error; err != nil {
				return err
			}
		}

		now := time.Now()
		doc.File = file
		doc.ValidityDate = validity
		doc.DepositDate = &now
		doc.RenewalEmailSent = false
		if err := tx.Save(doc).Error; err != nil {
			return err
		}

		if r.Core().Status == models.RecordValidated {
			MaterialEdit(r)
			return tx.Model(recordModel(r)).Where("id = ?", r.RecordID()).
				Update("status", models.RecordToRevalidate).Error
		}
		return nil
	})
}

// PurgeAttachments clears file references of validated documents that do
// not require a validity date. Driven by the
// DELETE_RECORD_ATTACHMENTS_AT_VALIDATION setting.
func PurgeAttachments(db *gorm.DB, personID uint) error {
	return db.Model(&models.RecordDocument{}).
		Where("person_id = ? AND requires_validity_date = ? AND archive = ?", personID, false, false).
		Update("file", "").Error
}

// recordModel returns the concrete model pointer used for status updates.
func recordModel(r models.Record) interface{} {
	switch r.(type) {
	case *models.HighSchoolStudentRecord:
		return &models.HighSchoolStudentRecord{}
	case *models.StudentRecord:
		return &models.StudentRecord{}
	default:
		return &models.VisitorRecord{}
	}
}
