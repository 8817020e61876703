package models

import "time"

type Establishment struct {
	Model
	Code    string `json:"code" gorm:"uniqueIndex;not null"`
	Label   string `json:"label" gorm:"not null"`
	UAI     string `json:"uai" gorm:"column:uai;uniqueIndex"`
	Master  bool   `json:"master"`
	Active  bool   `json:"active"`
	Address string `json:"address"`
	City    string `json:"city"`
	ZipCode string `json:"zip_code"`
	Email   string `json:"email"`

	Structures []Structure `json:"-" gorm:"foreignKey:EstablishmentID"`
}

type Structure struct {
	Model
	Code            string `json:"code" gorm:"uniqueIndex;not null"`
	Label           string `json:"label" gorm:"not null"`
	Active          bool   `json:"active"`
	MailingList     string `json:"mailing_list"`
	EstablishmentID uint   `json:"establishment_id" gorm:"not null;index"`
}

type Campus struct {
	Model
	Label           string `json:"label" gorm:"not null"`
	Active          bool   `json:"active"`
	EstablishmentID uint   `json:"establishment_id" gorm:"not null;index"`
}

type Building struct {
	Model
	Label    string `json:"label" gorm:"not null"`
	Active   bool   `json:"active"`
	URL      string `json:"url"`
	CampusID uint   `json:"campus_id" gorm:"not null;index"`
}

type HighSchool struct {
	Model
	Label                 string     `json:"label" gorm:"not null"`
	UAICode               string     `json:"uai_code" gorm:"column:uai_code;uniqueIndex"`
	Address               string     `json:"address"`
	City                  string     `json:"city"`
	ZipCode               string     `json:"zip_code"`
	Email                 string     `json:"email"`
	Active                bool       `json:"active"`
	PostbacImmersion      bool       `json:"postbac_immersion"`
	SignedCharter         bool       `json:"signed_charter"`
	ConventionStartDate   *time.Time `json:"convention_start_date"`
	ConventionEndDate     *time.Time `json:"convention_end_date"`
	UsesStudentFederation bool       `json:"uses_student_federation"`
	MailingList           string     `json:"mailing_list"`
}

// WithConvention reports whether the high school has a convention
// covering the given date.
func (h *HighSchool) WithConvention(at time.Time) bool {
	if h.ConventionStartDate == nil || h.ConventionEndDate == nil {
		return false
	}
	return !at.Before(*h.ConventionStartDate) && !at.After(*h.ConventionEndDate)
}
