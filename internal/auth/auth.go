// Package auth issues and checks the JWT session tokens, authenticates
// machine callers by API token, and handles the federation header intake
// and account activation flows.
package auth

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
)

const TokenDuration = 24 * time.Hour

var (
	ErrInvalidToken    = errors.New("invalid token")
	ErrUnknownAccount  = errors.New("unknown account")
	ErrBadCredentials  = errors.New("bad credentials")
	ErrAccountInactive = errors.New("account not activated")
)

type Service struct {
	db     *gorm.DB
	secret []byte
}

func NewService(db *gorm.DB, secret string) *Service {
	return &Service{db: db, secret: []byte(secret)}
}

// GenerateToken signs a session token for the person.
func (s *Service) GenerateToken(personID uint) (string, error) {
	claims := jwt.MapClaims{
		"person_id": personID,
		"exp":       time.Now().Add(TokenDuration).Unix(),
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.secret)
}

// ParseToken checks the signature and expiry and returns the person id.
func (s *Service) ParseToken(tokenString string) (uint, jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !token.Valid {
		return 0, nil, ErrInvalidToken
	}
	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return 0, nil, ErrInvalidToken
	}
	idFloat, ok := claims["person_id"].(float64)
	if !ok {
		return 0, nil, ErrInvalidToken
	}
	return uint(idFloat), claims, nil
}

// NewActivationToken attaches a fresh activation token to the person.
func (s *Service) NewActivationToken(person *models.Person) error {
	person.ActivationToken = uuid.NewString()
	return s.db.Model(person).Update("activation_token", person.ActivationToken).Error
}

// Activate flips the account active on a matching activation token and
// burns the token.
func (s *Service) Activate(ctx context.Context, token string) (*models.Person, error) {
	if token == "" {
		return nil, ErrUnknownAccount
	}
	var person models.Person
	err := s.db.WithContext(ctx).Where("activation_token = ?", token).First(&person).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownAccount
	}
	if err != nil {
		return nil, err
	}
	person.Active = true
	person.ActivationToken = ""
	if err := s.db.WithContext(ctx).Model(&person).
		Updates(map[string]interface{}{"active": true, "activation_token": ""}).Error; err != nil {
		return nil, err
	}
	return &person, nil
}

// SetPassword stores a bcrypt hash of the password.
func (s *Service) SetPassword(ctx context.Context, person *models.Person, password string) error {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return err
	}
	person.PasswordHash = string(hash)
	return s.db.WithContext(ctx).Model(person).Update("password_hash", person.PasswordHash).Error
}

// Login checks the credentials against an active account and issues a
// session token. Federated accounts have no password and cannot log in
// here.
func (s *Service) Login(ctx context.Context, email, password string) (string, *models.Person, error) {
	var person models.Person
	err := s.db.WithContext(ctx).Preload("Roles").Where("email = ?", email).First(&person).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", nil, ErrBadCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if person.PasswordHash == "" ||
		bcrypt.CompareHashAndPassword([]byte(person.PasswordHash), []byte(password)) != nil {
		return "", nil, ErrBadCredentials
	}
	if !person.Active {
		return "", nil, ErrAccountInactive
	}
	token, err := s.GenerateToken(person.ID)
	if err != nil {
		return "", nil, err
	}
	return token, &person, nil
}
