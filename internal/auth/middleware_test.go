package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
)

func seedPerson(t *testing.T, db *gorm.DB, roles ...string) *models.Person {
	t.Helper()
	person := models.Person{Email: "user@example.org", Active: true}
	for _, r := range roles {
		person.Roles = append(person.Roles, models.PersonRole{Role: r})
	}
	require.NoError(t, db.Create(&person).Error)
	return &person
}

func signedToken(t *testing.T, secret string, personID uint, ttl time.Duration) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"person_id": float64(personID),
		"exp":       time.Now().Add(ttl).Unix(),
	})
	s, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

func okHandler(hit *bool) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		*hit = true
		w.WriteHeader(http.StatusOK)
	})
}

func TestMiddlewareCookieAuth(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, "test-secret")
	person := seedPerson(t, db)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: signedToken(t, "test-secret", person.ID, 20*time.Hour)})
	rr := httptest.NewRecorder()

	var got *models.Person
	svc.Middleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = CurrentPerson(r.Context())
	})).ServeHTTP(rr, req)

	assert.Equal(t, http.StatusOK, rr.Code)
	require.NotNil(t, got)
	assert.Equal(t, person.ID, got.ID)
}

func TestMiddlewareBearerAuth(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, "test-secret")
	person := seedPerson(t, db)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("Authorization", "Bearer "+signedToken(t, "test-secret", person.ID, 20*time.Hour))
	rr := httptest.NewRecorder()

	hit := false
	svc.Middleware(okHandler(&hit)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, hit)
}

func TestMiddlewareRejectsMissingToken(t *testing.T) {
	svc := NewService(testDB(t), "test-secret")

	rr := httptest.NewRecorder()
	hit := false
	svc.Middleware(okHandler(&hit)).ServeHTTP(rr, httptest.NewRequest("GET", "/", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, hit)
}

func TestMiddlewareRejectsInactiveAccount(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, "test-secret")
	person := models.Person{Email: "user@example.org", Active: false}
	require.NoError(t, db.Create(&person).Error)

	req := httptest.NewRequest("GET", "/", nil)
	req.AddCookie(&http.Cookie{Name: "auth_token", Value: signedToken(t, "test-secret", person.ID, 20*time.Hour)})
	rr := httptest.NewRecorder()

	hit := false
	svc.Middleware(okHandler(&hit)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, hit)
}

func TestMiddlewareSlidingSession(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, "test-secret")
	person := seedPerson(t, db)

	t.Run("token renewed past half-life", func(t *testing.T) {
		old := signedToken(t, "test-secret", person.ID, 11*time.Hour)
		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: old})
		rr := httptest.NewRecorder()

		hit := false
		svc.Middleware(okHandler(&hit)).ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)

		renewed := ""
		for _, c := range rr.Result().Cookies() {
			if c.Name == "auth_token" {
				renewed = c.Value
			}
		}
		require.NotEmpty(t, renewed)
		assert.NotEqual(t, old, renewed)
	})

	t.Run("fresh token kept", func(t *testing.T) {
		req := httptest.NewRequest("GET", "/", nil)
		req.AddCookie(&http.Cookie{Name: "auth_token", Value: signedToken(t, "test-secret", person.ID, 20*time.Hour)})
		rr := httptest.NewRecorder()

		hit := false
		svc.Middleware(okHandler(&hit)).ServeHTTP(rr, req)
		require.Equal(t, http.StatusOK, rr.Code)
		for _, c := range rr.Result().Cookies() {
			assert.NotEqual(t, "auth_token", c.Name)
		}
	})
}

func TestMiddlewareAPIToken(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, "test-secret")
	person := seedPerson(t, db)
	require.NoError(t, db.Create(&models.APIToken{
		PersonID: person.ID, Token: "machine-token", Name: "mailing sync",
	}).Error)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-TOKEN", "machine-token")
	rr := httptest.NewRecorder()

	hit := false
	svc.Middleware(okHandler(&hit)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, hit)

	var row models.APIToken
	require.NoError(t, db.Where("token = ?", "machine-token").First(&row).Error)
	assert.NotNil(t, row.LastUsedAt)
}

func TestMiddlewareAPITokenExpired(t *testing.T) {
	db := testDB(t)
	svc := NewService(db, "test-secret")
	person := seedPerson(t, db)
	past := time.Now().Add(-time.Hour)
	require.NoError(t, db.Create(&models.APIToken{
		PersonID: person.ID, Token: "stale-token", ExpiresAt: &past,
	}).Error)

	req := httptest.NewRequest("GET", "/", nil)
	req.Header.Set("X-API-TOKEN", "stale-token")
	rr := httptest.NewRecorder()

	hit := false
	svc.Middleware(okHandler(&hit)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
	assert.False(t, hit)
}

func TestRequireRole(t *testing.T) {
	db := testDB(t)
	manager := seedPerson(t, db, models.RoleStructureManager)

	guard := RequireRole(models.RoleOperator, models.RoleStructureManager)

	rr := httptest.NewRecorder()
	hit := false
	req := httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(WithPerson(req.Context(), manager))
	guard(okHandler(&hit)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.True(t, hit)

	rr = httptest.NewRecorder()
	hit = false
	candidate := &models.Person{Roles: []models.PersonRole{{Role: models.RoleStudent}}}
	req = httptest.NewRequest("GET", "/", nil)
	req = req.WithContext(WithPerson(req.Context(), candidate))
	guard(okHandler(&hit)).ServeHTTP(rr, req)
	assert.Equal(t, http.StatusForbidden, rr.Code)
	assert.False(t, hit)
}
