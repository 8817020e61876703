package models

import "time"

// AttestationDocument is the template describing one required attestation.
type AttestationDocument struct {
	Model
	Label                string `json:"label" gorm:"not null"`
	Active               bool   `json:"active"`
	Mandatory            bool   `json:"mandatory"`
	ForMinorsOnly        bool   `json:"for_minors_only"`
	RequiresValidityDate bool   `json:"requires_validity_date"`
	TemplateURL          string `json:"template_url"`

	// Applicability sets. Empty profile set means no profile matches.
	Profiles     []AttestationProfile `json:"profiles" gorm:"foreignKey:AttestationDocumentID"`
	VisitorTypes []VisitorType        `json:"-" gorm:"many2many:attestation_visitor_types"`
}

type AttestationProfile struct {
	Model
	AttestationDocumentID uint   `json:"attestation_document_id" gorm:"uniqueIndex:idx_attestation_profile"`
	Profile               string `json:"profile" gorm:"uniqueIndex:idx_attestation_profile"`
}

// RecordDocument is the per-record instance of an attestation template.
type RecordDocument struct {
	Model
	PersonID              uint       `json:"person_id" gorm:"not null;index"`
	AttestationDocumentID uint       `json:"attestation_document_id" gorm:"not null;index"`
	AttestationDocument   AttestationDocument `json:"-" gorm:"foreignKey:AttestationDocumentID"`

	File           string     `json:"file"`
	ValidityDate   *time.Time `json:"validity_date"`
	DepositDate    *time.Time `json:"deposit_date"`
	ForMinors      bool       `json:"for_minors"`
	Mandatory      bool       `json:"mandatory"`
	RequiresValidityDate bool `json:"requires_validity_date"`

	Archive          bool `json:"archive" gorm:"index"`
	RenewalEmailSent bool `json:"renewal_email_sent"`
}

// Expired reports whether the document requires a validity date that is
// already past at the given date.
func (d *RecordDocument) Expired(today time.Time) bool {
	return d.RequiresValidityDate && d.ValidityDate != nil && d.ValidityDate.Before(today)
}
