package models

import (
	"time"

	"gorm.io/datatypes"
)

// MailTemplate holds a notification template. Body placeholders use the
// ${variable} form; AvailableVars declares the substitutable names.
type MailTemplate struct {
	Model
	Code          string         `json:"code" gorm:"uniqueIndex;not null"`
	Label         string         `json:"label" gorm:"not null"`
	Subject       string         `json:"subject" gorm:"not null"`
	Body          string         `json:"body" gorm:"not null"`
	Active        bool           `json:"active"`
	AvailableVars datatypes.JSON `json:"available_vars"`
}

// Notification template codes.
const (
	TplImmersionConfirm    = "IMMERSION_CONFIRM"
	TplImmersionAnnul      = "IMMERSION_ANNUL"
	TplImmersionReminder   = "IMMERSION_REMINDER"
	TplSpeakerSlotReminder = "SPEAKER_SLOT_REMINDER"
	TplRecordValidated     = "RECORD_VALIDATED"
	TplRecordRejected      = "RECORD_REJECTED"
	TplAttestationRenewal  = "ATTESTATION_RENEWAL"
	TplCourseAlert         = "COURSE_ALERT"
	TplAccountActivation   = "ACCOUNT_ACTIVATION"
	TplGlobalEvaluation    = "GLOBAL_EVALUATION"
)

// OutboxMessage is a rendered notification waiting for delivery. Delivery
// failures keep the row for the next drain.
type OutboxMessage struct {
	Model
	Recipient string     `json:"recipient" gorm:"not null;index"`
	Subject   string     `json:"subject" gorm:"not null"`
	Body      string     `json:"body" gorm:"not null"`
	SentAt    *time.Time `json:"sent_at" gorm:"index"`
	LastError string     `json:"last_error"`
	Attempts  int        `json:"attempts"`
}
