// Package records drives the candidate record state machine and the
// attestation document lifecycle that gates participation.
package records

import (
	"errors"
	"time"

	"github.com/immersup/immersup-api/internal/models"
)

var (
	ErrBadTransition    = errors.New("transition not allowed from current record status")
	ErrMissingDocuments = errors.New("mandatory attestation documents are missing or expired")
)

// Submit moves a record from TO_COMPLETE or REJECTED to TO_VALIDATE.
// The caller passes the record's current documents so the mandatory set
// can be checked.
func Submit(r models.Record, docs []models.RecordDocument, today time.Time) error {
	core := r.Core()
	if core.Status != models.RecordToComplete && core.Status != models.RecordRejected {
		return ErrBadTransition
	}
	if err := checkDocuments(docs, today); err != nil {
		return err
	}
	core.Status = models.RecordToValidate
	return nil
}

// Approve moves a record from TO_VALIDATE or TO_REVALIDATE to VALIDATED.
// Approval requires all mandatory documents uploaded with, where required,
// validity dates strictly in the future.
func Approve(r models.Record, docs []models.RecordDocument, today time.Time) error {
	core := r.Core()
	if core.Status != models.RecordToValidate && core.Status != models.RecordToRevalidate {
		return ErrBadTransition
	}
	if err := checkDocuments(docs, today); err != nil {
		return err
	}
	now := time.Now()
	core.Status = models.RecordValidated
	core.ValidationDate = &now
	core.RejectionDate = nil
	core.RejectionReason = ""
	return nil
}

// Reject moves a record from TO_VALIDATE or TO_REVALIDATE to REJECTED.
func Reject(r models.Record, reason string) error {
	core := r.Core()
	if core.Status != models.RecordToValidate && core.Status != models.RecordToRevalidate {
		return ErrBadTransition
	}
	now := time.Now()
	core.Status = models.RecordRejected
	core.RejectionDate = &now
	core.RejectionReason = reason
	return nil
}

// MaterialEdit flags a validated record for revalidation. Called when a
// field driving restriction matching changes (high school, level, birth
// date, bachelor type). A no-op for records not yet validated.
func MaterialEdit(r models.Record) {
	core := r.Core()
	if core.Status == models.RecordValidated {
		core.Status = models.RecordToRevalidate
	}
}

// Valid reports whether the record admits the person to registration.
// TO_REVALIDATE stays valid: revalidation blocks further edits, not
// existing participation.
func Valid(r models.Record) bool {
	s := r.Core().Status
	return s == models.RecordValidated || s == models.RecordToRevalidate
}

// checkDocuments verifies every mandatory non-archived document is
// uploaded and not expired.
func checkDocuments(docs []models.RecordDocument, today time.Time) error {
	for _, d := range docs {
		if d.Archive || !d.Mandatory {
			continue
		}
		if d.File == "" {
			return ErrMissingDocuments
		}
		if d.RequiresValidityDate {
			if d.ValidityDate == nil || !d.ValidityDate.After(today) {
				return ErrMissingDocuments
			}
		}
	}
	return nil
}

// HasExpiredAttestation reports whether any mandatory non-archived
// document is past its validity date.
func HasExpiredAttestation(docs []models.RecordDocument, today time.Time) bool {
	for _, d := range docs {
		if d.Archive || !d.Mandatory {
			continue
		}
		if d.Expired(today) {
			return true
		}
	}
	return false
}
