package models

import "time"

// Role tags carried by a person. A person may hold several.
const (
	RoleOperator             = "operator"
	RoleMasterManager        = "master_establishment_manager"
	RoleEstablishmentManager = "establishment_manager"
	RoleStructureManager     = "structure_manager"
	RoleStructureConsultant  = "structure_consultant"
	RoleHighSchoolManager    = "high_school_manager"
	RoleSpeaker              = "speaker"
	RoleHighSchoolStudent    = "high_school_student"
	RoleStudent              = "student"
	RoleVisitor              = "visitor"
	RoleLegalStaff           = "legal_department_staff"
)

type Person struct {
	Model
	Email           string     `json:"email" gorm:"uniqueIndex;not null"`
	FirstName       string     `json:"first_name"`
	LastName        string     `json:"last_name"`
	BirthDate       *time.Time `json:"birth_date"`
	Phone           string     `json:"phone"`
	PasswordHash    string     `json:"-"`
	Active          bool       `json:"active"`
	ActivationToken string     `json:"-" gorm:"index"`
	DestructionDate *time.Time `json:"destruction_date"`

	// Federation identity, empty for local accounts.
	FederationID string `json:"-" gorm:"index"`

	EstablishmentID *uint `json:"establishment_id"`
	StructureID     *uint `json:"structure_id"`
	HighSchoolID    *uint `json:"high_school_id"`

	Roles []PersonRole `json:"roles" gorm:"foreignKey:PersonID"`

	// Speakers may teach across establishments.
	Establishments []Establishment `json:"-" gorm:"many2many:person_establishments"`
}

type PersonRole struct {
	Model
	PersonID uint   `json:"person_id" gorm:"uniqueIndex:idx_person_role"`
	Role     string `json:"role" gorm:"uniqueIndex:idx_person_role"`
}

// HasRole reports whether the person carries the given role tag.
func (p *Person) HasRole(role string) bool {
	for _, r := range p.Roles {
		if r.Role == role {
			return true
		}
	}
	return false
}

func (p *Person) RoleNames() []string {
	names := make([]string, 0, len(p.Roles))
	for _, r := range p.Roles {
		names = append(names, r.Role)
	}
	return names
}

// IsMinor reports whether the person is under 18 at the given date.
func (p *Person) IsMinor(at time.Time) bool {
	if p.BirthDate == nil {
		return false
	}
	return p.BirthDate.AddDate(18, 0, 0).After(at)
}
