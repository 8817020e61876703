package models

type EventType struct {
	Model
	Label  string `json:"label" gorm:"uniqueIndex;not null"`
	Active bool   `json:"active"`
}

// OffOfferEvent is a publishable event outside the training offer.
type OffOfferEvent struct {
	Model
	Label       string `json:"label" gorm:"not null"`
	Description string `json:"description"`
	Published   bool   `json:"published"`
	EventTypeID uint   `json:"event_type_id" gorm:"not null;index"`

	EstablishmentID *uint `json:"establishment_id" gorm:"index"`
	StructureID     *uint `json:"structure_id" gorm:"index"`
	HighSchoolID    *uint `json:"high_school_id" gorm:"index"`

	Speakers []Person `json:"-" gorm:"many2many:event_speakers"`
}

// Visit is an on-site visit of an establishment targeting one high school.
type Visit struct {
	Model
	Purpose   string `json:"purpose" gorm:"not null"`
	Published bool   `json:"published"`

	EstablishmentID uint `json:"establishment_id" gorm:"not null;index"`
	StructureID     *uint `json:"structure_id" gorm:"index"`
	HighSchoolID    uint `json:"high_school_id" gorm:"not null;index"`

	Speakers []Person `json:"-" gorm:"many2many:visit_speakers"`
}
