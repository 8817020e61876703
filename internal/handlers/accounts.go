package handlers

import (
	"context"
	"net/http"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/auth"
	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/notifier"
	"github.com/immersup/immersup-api/internal/settings"
)

type AccountHandler struct {
	db       *gorm.DB
	auth     *auth.Service
	settings *settings.Store
	emitter  *notifier.Emitter
	log      *zap.Logger
}

func NewAccountHandler(db *gorm.DB, authSvc *auth.Service, st *settings.Store, emitter *notifier.Emitter, log *zap.Logger) *AccountHandler {
	return &AccountHandler{db: db, auth: authSvc, settings: st, emitter: emitter, log: log}
}

type LoginRequest struct {
	Body struct {
		Email    string `json:"email" format:"email"`
		Password string `json:"password"`
	}
}

type LoginResponse struct {
	SetCookie string `header:"Set-Cookie"`
	Body      struct {
		Token string `json:"token"`
	}
}

func (h *AccountHandler) HandleLogin(ctx context.Context, input *LoginRequest) (*LoginResponse, error) {
	token, _, err := h.auth.Login(ctx, input.Body.Email, input.Body.Password)
	if err != nil {
		return nil, mapErr(err)
	}

	cookie := http.Cookie{
		Name:     "auth_token",
		Value:    token,
		Expires:  time.Now().Add(auth.TokenDuration),
		HttpOnly: true,
		Path:     "/",
	}
	res := &LoginResponse{SetCookie: cookie.String()}
	res.Body.Token = token
	return res, nil
}

type ActivateRequest struct {
	Token string `path:"token"`
}

func (h *AccountHandler) HandleActivate(ctx context.Context, input *ActivateRequest) (*MessageResponse, error) {
	if _, err := h.auth.Activate(ctx, input.Token); err != nil {
		return nil, mapErr(err)
	}
	res := &MessageResponse{}
	res.Body.Msg = "account activated"
	return res, nil
}

type MeResponse struct {
	Body struct {
		ID        uint     `json:"id"`
		Email     string   `json:"email"`
		FirstName string   `json:"first_name"`
		LastName  string   `json:"last_name"`
		Roles     []string `json:"roles"`
	}
}

func (h *AccountHandler) HandleMe(ctx context.Context, _ *struct{}) (*MeResponse, error) {
	person := auth.CurrentPerson(ctx)
	if person == nil {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	res := &MeResponse{}
	res.Body.ID = person.ID
	res.Body.Email = person.Email
	res.Body.FirstName = person.FirstName
	res.Body.LastName = person.LastName
	res.Body.Roles = person.RoleNames()
	return res, nil
}

// HandleFederationLogin resolves the upstream proxy headers to a local
// account and opens a session. Plain http: the headers are not part of
// the API schema.
func (h *AccountHandler) HandleFederationLogin(w http.ResponseWriter, r *http.Request) {
	id := auth.IdentityFromHeaders(r.Header)
	if id == nil {
		http.Error(w, "missing federation attributes", http.StatusBadRequest)
		return
	}

	person, err := h.auth.Federate(r.Context(), h.settings, id)
	if err != nil {
		h.log.Warn("federation intake refused", zap.String("backend", id.Backend), zap.Error(err))
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	token, err := h.auth.GenerateToken(person.ID)
	if err != nil {
		http.Error(w, "failed to open session", http.StatusInternalServerError)
		return
	}
	http.SetCookie(w, &http.Cookie{
		Name:     "auth_token",
		Value:    token,
		Expires:  time.Now().Add(auth.TokenDuration),
		HttpOnly: true,
		Path:     "/",
	})
	w.WriteHeader(http.StatusNoContent)
}

type SignupRequest struct {
	Body struct {
		Email     string `json:"email" format:"email"`
		Password  string `json:"password" minLength:"8"`
		FirstName string `json:"first_name"`
		LastName  string `json:"last_name"`
	}
}

// HandleSignup creates an inactive visitor account and mails the
// activation link.
func (h *AccountHandler) HandleSignup(ctx context.Context, input *SignupRequest) (*MessageResponse, error) {
	person := models.Person{
		Email:     input.Body.Email,
		FirstName: input.Body.FirstName,
		LastName:  input.Body.LastName,
		Roles:     []models.PersonRole{{Role: models.RoleVisitor}},
	}
	if err := h.db.WithContext(ctx).Create(&person).Error; err != nil {
		return nil, huma.Error409Conflict("an account already exists for this email")
	}
	if err := h.auth.SetPassword(ctx, &person, input.Body.Password); err != nil {
		return nil, mapErr(err)
	}
	if err := h.auth.NewActivationToken(&person); err != nil {
		return nil, mapErr(err)
	}

	vars := map[string]string{
		"first_name": person.FirstName,
		"last_name":  person.LastName,
		"token":      person.ActivationToken,
	}
	if err := h.emitter.Emit(ctx, models.TplAccountActivation, vars, person.Email); err != nil {
		h.log.Warn("account created but activation mail failed",
			zap.Uint("person_id", person.ID), zap.Error(err))
	}

	res := &MessageResponse{}
	res.Body.Msg = "activation mail sent"
	return res, nil
}
