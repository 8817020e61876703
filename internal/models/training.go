package models

type TrainingDomain struct {
	Model
	Label  string `json:"label" gorm:"uniqueIndex;not null"`
	Active bool   `json:"active"`
}

type TrainingSubdomain struct {
	Model
	Label            string `json:"label" gorm:"uniqueIndex;not null"`
	Active           bool   `json:"active"`
	TrainingDomainID uint   `json:"training_domain_id" gorm:"not null;index"`
}

// Training is owned either by an establishment structure or by a
// post-bachelor high school, never both.
type Training struct {
	Model
	Label  string `json:"label" gorm:"not null"`
	URL    string `json:"url"`
	Active bool   `json:"active"`

	StructureID  *uint `json:"structure_id" gorm:"index"`
	HighSchoolID *uint `json:"high_school_id" gorm:"index"`

	// Per-training immersion cap within a period. Nil falls back to the
	// TRAINING_QUOTA_DEFAULT setting when training quotas are active.
	AllowedImmersions *int `json:"allowed_immersions"`

	TrainingSubdomains []TrainingSubdomain `json:"training_subdomains" gorm:"many2many:training_training_subdomains"`
}

type CourseType struct {
	Model
	Label    string `json:"label" gorm:"uniqueIndex;not null"`
	FullLabel string `json:"full_label"`
	Active   bool   `json:"active"`
}

type Course struct {
	Model
	Label      string `json:"label" gorm:"not null"`
	URL        string `json:"url"`
	Published  bool   `json:"published"`
	TrainingID uint   `json:"training_id" gorm:"not null;index"`
	Training   Training `json:"-" gorm:"foreignKey:TrainingID"`

	StructureID  *uint `json:"structure_id" gorm:"index"`
	HighSchoolID *uint `json:"high_school_id" gorm:"index"`

	Speakers []Person `json:"-" gorm:"many2many:course_speakers"`
}
