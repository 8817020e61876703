package auth

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/immersup/immersup-api/internal/models"
)

type contextKey string

const personKey contextKey = "person"

// CurrentPerson returns the authenticated person, or nil.
func CurrentPerson(ctx context.Context) *models.Person {
	p, _ := ctx.Value(personKey).(*models.Person)
	return p
}

// WithPerson is used by handler tests to seed the context.
func WithPerson(ctx context.Context, p *models.Person) context.Context {
	return context.WithValue(ctx, personKey, p)
}

// Middleware authenticates the request: an API token header first, then
// a bearer header or session cookie. Tokens past half their lifetime are
// reissued on the response.
func (s *Service) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if apiToken := r.Header.Get("X-API-TOKEN"); apiToken != "" {
			person, ok := s.byAPIToken(r.Context(), apiToken)
			if !ok {
				http.Error(w, "Unauthorized: invalid API token", http.StatusUnauthorized)
				return
			}
			next.ServeHTTP(w, r.WithContext(WithPerson(r.Context(), person)))
			return
		}

		tokenString := bearerToken(r)
		if tokenString == "" {
			cookie, err := r.Cookie("auth_token")
			if err != nil {
				http.Error(w, "Unauthorized: no token found", http.StatusUnauthorized)
				return
			}
			tokenString = cookie.Value
		}

		personID, claims, err := s.ParseToken(tokenString)
		if err != nil {
			http.Error(w, "Unauthorized: invalid token", http.StatusUnauthorized)
			return
		}

		var person models.Person
		if err := s.db.WithContext(r.Context()).Preload("Roles").First(&person, personID).Error; err != nil {
			http.Error(w, "Unauthorized: unknown account", http.StatusUnauthorized)
			return
		}
		if !person.Active {
			http.Error(w, "Unauthorized: account not activated", http.StatusUnauthorized)
			return
		}

		// Sliding session: reissue past the half-life.
		if exp, ok := claims["exp"].(float64); ok {
			remaining := time.Until(time.Unix(int64(exp), 0))
			if remaining < TokenDuration/2 {
				if newToken, err := s.GenerateToken(personID); err == nil {
					http.SetCookie(w, &http.Cookie{
						Name:     "auth_token",
						Value:    newToken,
						Expires:  time.Now().Add(TokenDuration),
						HttpOnly: true,
						Path:     "/",
					})
				}
			}
		}

		next.ServeHTTP(w, r.WithContext(WithPerson(r.Context(), &person)))
	})
}

// RequireRole guards a route group behind any of the given roles.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			person := CurrentPerson(r.Context())
			if person == nil {
				http.Error(w, "Unauthorized", http.StatusUnauthorized)
				return
			}
			for _, role := range roles {
				if person.HasRole(role) {
					next.ServeHTTP(w, r)
					return
				}
			}
			http.Error(w, "Forbidden", http.StatusForbidden)
		})
	}
}

func (s *Service) byAPIToken(ctx context.Context, token string) (*models.Person, bool) {
	var row models.APIToken
	err := s.db.WithContext(ctx).Preload("Person").Preload("Person.Roles").
		Where("token = ?", token).First(&row).Error
	if err != nil {
		return nil, false
	}
	if row.ExpiresAt != nil && time.Now().After(*row.ExpiresAt) {
		return nil, false
	}
	s.db.Model(&row).Update("last_used_at", time.Now())
	return &row.Person, true
}

func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if strings.HasPrefix(h, "Bearer ") {
		return strings.TrimPrefix(h, "Bearer ")
	}
	return ""
}
