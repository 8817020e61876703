package models

// Reference tables backing the slot level and bachelor restrictions.

type HighSchoolLevel struct {
	Model
	Label     string `json:"label" gorm:"uniqueIndex;not null"`
	Order     int    `json:"order"`
	Active    bool   `json:"active"`
	IsFinal   bool   `json:"is_final"`
	RequiresBachelorSpeciality bool `json:"requires_bachelor_speciality"`
}

type StudentLevel struct {
	Model
	Label  string `json:"label" gorm:"uniqueIndex;not null"`
	Order  int    `json:"order"`
	Active bool   `json:"active"`
}

type PostBachelorLevel struct {
	Model
	Label  string `json:"label" gorm:"uniqueIndex;not null"`
	Order  int    `json:"order"`
	Active bool   `json:"active"`
}

type BachelorType struct {
	Model
	Label        string `json:"label" gorm:"uniqueIndex;not null"`
	Active       bool   `json:"active"`
	General      bool   `json:"general"`
	Technological bool  `json:"technological"`
	Professional bool   `json:"professional"`
}

type BachelorMention struct {
	Model
	Label  string `json:"label" gorm:"uniqueIndex;not null"`
	Active bool   `json:"active"`
}

type GeneralBachelorTeaching struct {
	Model
	Label  string `json:"label" gorm:"uniqueIndex;not null"`
	Active bool   `json:"active"`
}
