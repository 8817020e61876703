package auth

import (
	"context"
	"errors"
	"net/http"

	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/settings"
)

// Federation headers set by the upstream SAML proxy.
const (
	HeaderFederationBackend   = "X-Federation-Backend"
	HeaderFederationID        = "X-Federation-Id"
	HeaderFederationEmail     = "X-Federation-Email"
	HeaderFederationFirstName = "X-Federation-Firstname"
	HeaderFederationLastName  = "X-Federation-Lastname"
	HeaderFederationUAI       = "X-Federation-Uai"
)

const (
	BackendStudent = "student"
	BackendAgent   = "agent"
)

var (
	ErrNoFederationIdentity = errors.New("missing federation identity attributes")
	ErrFederationDisabled   = errors.New("federation not enabled for this origin")
	ErrUnknownOrigin        = errors.New("unknown establishment code")
)

// FederationIdentity is the attribute set delivered by the upstream
// proxy.
type FederationIdentity struct {
	Backend   string
	ID        string
	Email     string
	FirstName string
	LastName  string
	UAI       string
}

// IdentityFromHeaders extracts the federation attributes, if present.
func IdentityFromHeaders(h http.Header) *FederationIdentity {
	id := &FederationIdentity{
		Backend:   h.Get(HeaderFederationBackend),
		ID:        h.Get(HeaderFederationID),
		Email:     h.Get(HeaderFederationEmail),
		FirstName: h.Get(HeaderFederationFirstName),
		LastName:  h.Get(HeaderFederationLastName),
		UAI:       h.Get(HeaderFederationUAI),
	}
	if id.Backend == "" || id.ID == "" {
		return nil
	}
	return id
}

// Federate resolves a federated identity to a local account, creating it
// when auto-creation is allowed for the origin. Student intake requires
// the EduConnect toggle and a high school opted into the federation;
// agent intake requires a known establishment UAI.
func (s *Service) Federate(ctx context.Context, st *settings.Store, id *FederationIdentity) (*models.Person, error) {
	if id == nil || id.Email == "" {
		return nil, ErrNoFederationIdentity
	}

	var person models.Person
	err := s.db.WithContext(ctx).Preload("Roles").
		Where("federation_id = ?", id.ID).First(&person).Error
	if err == nil {
		return &person, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	switch id.Backend {
	case BackendStudent:
		return s.createStudent(ctx, st, id)
	case BackendAgent:
		return s.createAgent(ctx, id)
	}
	return nil, ErrNoFederationIdentity
}

func (s *Service) createStudent(ctx context.Context, st *settings.Store, id *FederationIdentity) (*models.Person, error) {
	if !st.Bool(ctx, models.SettingActivateEduconnect, false) {
		return nil, ErrFederationDisabled
	}
	var hs models.HighSchool
	err := s.db.WithContext(ctx).
		Where("uai_code = ? AND active = ?", id.UAI, true).First(&hs).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownOrigin
	}
	if err != nil {
		return nil, err
	}
	if !hs.UsesStudentFederation {
		return nil, ErrFederationDisabled
	}

	person := models.Person{
		Email:        id.Email,
		FirstName:    id.FirstName,
		LastName:     id.LastName,
		Active:       true,
		FederationID: id.ID,
		HighSchoolID: &hs.ID,
		Roles:        []models.PersonRole{{Role: models.RoleHighSchoolStudent}},
	}
	if err := s.db.WithContext(ctx).Create(&person).Error; err != nil {
		return nil, err
	}
	return &person, nil
}

func (s *Service) createAgent(ctx context.Context, id *FederationIdentity) (*models.Person, error) {
	var est models.Establishment
	err := s.db.WithContext(ctx).
		Where("uai = ? AND active = ?", id.UAI, true).First(&est).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownOrigin
	}
	if err != nil {
		return nil, err
	}

	person := models.Person{
		Email:           id.Email,
		FirstName:       id.FirstName,
		LastName:        id.LastName,
		Active:          true,
		FederationID:    id.ID,
		EstablishmentID: &est.ID,
		Roles:           []models.PersonRole{{Role: models.RoleSpeaker}},
	}
	if err := s.db.WithContext(ctx).Create(&person).Error; err != nil {
		return nil, err
	}
	return &person, nil
}
