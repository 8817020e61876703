package models

import "gorm.io/datatypes"

// GeneralSetting is a typed JSON value keyed by setting name. The value
// payload is {"type": "...", "value": ...} and is parsed by the settings
// store.
type GeneralSetting struct {
	Model
	Key         string         `json:"key" gorm:"uniqueIndex;not null"`
	Value       datatypes.JSON `json:"value" gorm:"not null"`
	Description string         `json:"description"`
}

// Enumerated setting keys. Admin-editable at runtime, unlike process
// configuration.
const (
	SettingActivateTrainingQuotas        = "ACTIVATE_TRAINING_QUOTAS"
	SettingTrainingQuotaDefault          = "TRAINING_QUOTA_DEFAULT"
	SettingActivateCohort                = "ACTIVATE_COHORT"
	SettingActivateHijack                = "ACTIVATE_HIJACK"
	SettingActivateEduconnect            = "ACTIVATE_EDUCONNECT"
	SettingCharterSign                   = "CHARTER_SIGN"
	SettingMaxSlotPlaces                 = "MAX_SLOT_PLACES"
	SettingSlotRegistrationLimit         = "SLOT_REGISTRATION_LIMIT"
	SettingSlotCancellationLimit         = "SLOT_CANCELLATION_LIMIT"
	SettingAttestationDepositDelay       = "ATTESTATION_DOCUMENT_DEPOSIT_DELAY"
	SettingDeleteAttachmentsAtValidation = "DELETE_RECORD_ATTACHMENTS_AT_VALIDATION"
	SettingGlobalMailingList             = "GLOBAL_MAILING_LIST"
	SettingMailContactRefEtab            = "MAIL_CONTACT_REF_ETAB"
	SettingSpeakerSlotReminderDays       = "NB_DAYS_SPEAKER_SLOT_REMINDER"
	SettingRequestStudentAgreement       = "REQUEST_FOR_STUDENT_AGREEMENT"
)
