package handlers

import (
	"context"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/admission"
	"github.com/immersup/immersup-api/internal/auth"
	"github.com/immersup/immersup-api/internal/calendar"
	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/quota"
	"github.com/immersup/immersup-api/internal/registration"
)

type RegisterHandler struct {
	db  *gorm.DB
	reg *registration.Service
	log *zap.Logger
}

func NewRegisterHandler(db *gorm.DB, reg *registration.Service, log *zap.Logger) *RegisterHandler {
	return &RegisterHandler{db: db, reg: reg, log: log}
}

// managerRoles may hold registration rights over slots. Operators and
// master managers everywhere, the other roles only inside their own
// scope (see canManageSlot).
var managerRoles = []string{
	models.RoleOperator,
	models.RoleMasterManager,
	models.RoleEstablishmentManager,
	models.RoleStructureManager,
	models.RoleHighSchoolManager,
}

func isManager(p *models.Person) bool {
	for _, r := range managerRoles {
		if p.HasRole(r) {
			return true
		}
	}
	return false
}

type RegisterRequest struct {
	Body struct {
		SlotID    uint  `json:"slot_id" doc:"Slot to register on"`
		StudentID *uint `json:"student_id,omitempty" doc:"Candidate, when a manager registers on their behalf"`
		Force     bool  `json:"force,omitempty" doc:"Manager override of an overridable denial"`
	}
}

type DecisionBody struct {
	OK     bool   `json:"ok"`
	Error  bool   `json:"error,omitempty"`
	Msg    string `json:"msg"`
	Reason string `json:"reason,omitempty"`
}

type DecisionResponse struct {
	Body DecisionBody
}

func decisionBody(d admission.Decision) DecisionBody {
	switch d.Outcome {
	case admission.Allow:
		return DecisionBody{OK: true, Msg: "ok"}
	case admission.ForceRequired:
		return DecisionBody{Error: true, Msg: "force_update", Reason: d.Reason}
	}
	return DecisionBody{Error: true, Msg: d.Reason}
}

func (h *RegisterHandler) HandleRegister(ctx context.Context, input *RegisterRequest) (*DecisionResponse, error) {
	actor := auth.CurrentPerson(ctx)
	if actor == nil {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	canManage, err := canManageSlot(ctx, h.db, actor, input.Body.SlotID)
	if err != nil {
		return nil, mapErr(err)
	}

	personID := actor.ID
	if input.Body.StudentID != nil {
		if !canManage {
			return nil, huma.Error403Forbidden("only managers of the slot register on behalf of a candidate")
		}
		personID = *input.Body.StudentID
	}

	res, err := h.reg.Register(ctx, registration.RegisterInput{
		PersonID: personID,
		SlotID:   input.Body.SlotID,
		CanForce: canManage,
		Force:    input.Body.Force,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return &DecisionResponse{Body: decisionBody(res.Decision)}, nil
}

type CancelRequest struct {
	Body struct {
		ImmersionID uint `json:"immersion_id"`
		ReasonID    uint `json:"reason_id"`
	}
}

type MessageResponse struct {
	Body struct {
		Msg string `json:"msg"`
	}
}

func (h *RegisterHandler) HandleCancel(ctx context.Context, input *CancelRequest) (*MessageResponse, error) {
	actor := auth.CurrentPerson(ctx)
	if actor == nil {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	var im models.Immersion
	if err := h.db.WithContext(ctx).First(&im, input.Body.ImmersionID).Error; err != nil {
		return nil, mapErr(err)
	}
	if im.PersonID != actor.ID {
		canManage, err := canManageSlot(ctx, h.db, actor, im.SlotID)
		if err != nil {
			return nil, mapErr(err)
		}
		if !canManage {
			return nil, huma.Error403Forbidden("not allowed to cancel this registration")
		}
	}

	err := h.reg.Cancel(ctx, registration.CancelInput{
		ImmersionID: input.Body.ImmersionID,
		ReasonID:    input.Body.ReasonID,
	})
	if err != nil {
		return nil, mapErr(err)
	}

	res := &MessageResponse{}
	res.Body.Msg = "ok"
	return res, nil
}

type CanRegisterRequest struct {
	SlotID uint `path:"slot_id"`
}

func (h *RegisterHandler) HandleCanRegister(ctx context.Context, input *CanRegisterRequest) (*DecisionResponse, error) {
	actor := auth.CurrentPerson(ctx)
	if actor == nil {
		return nil, huma.Error401Unauthorized("unauthorized")
	}

	canManage, err := canManageSlot(ctx, h.db, actor, input.SlotID)
	if err != nil {
		return nil, mapErr(err)
	}

	decision, err := h.reg.Preview(ctx, registration.RegisterInput{
		PersonID: actor.ID,
		SlotID:   input.SlotID,
		CanForce: canManage,
	})
	if err != nil {
		return nil, mapErr(err)
	}
	return &DecisionResponse{Body: decisionBody(*decision)}, nil
}

type SearchSlotsRequest struct {
	PeriodID uint `query:"period_id" required:"false"`
}

type SlotSummary struct {
	ID                  uint     `json:"id"`
	Kind                string   `json:"kind"`
	Label               string   `json:"label"`
	Date                string   `json:"date"`
	StartTime           string   `json:"start_time"`
	EndTime             string   `json:"end_time"`
	Place               string   `json:"place"`
	SeatsRemaining      int      `json:"seats_remaining"`
	RegistrationClosed  bool     `json:"registration_closed"`
	Speakers            []string `json:"speakers"`
	AdditionalInfo      string   `json:"additional_information,omitempty"`
}

type SearchSlotsResponse struct {
	Body struct {
		Slots []SlotSummary `json:"slots"`
	}
}

// HandleSearchSlots returns the public searchable view with seat and
// limit-date annotations.
func (h *RegisterHandler) HandleSearchSlots(ctx context.Context, input *SearchSlotsRequest) (*SearchSlotsResponse, error) {
	now := time.Now()
	q := h.db.WithContext(ctx).
		Preload("Course").Preload("Visit").Preload("Event").Preload("Speakers").
		Where("published = ?", true).
		Where("date >= ?", calendar.Day(now))
	if input.PeriodID != 0 {
		q = q.Where("period_id = ?", input.PeriodID)
	}

	var slots []models.Slot
	if err := q.Order("date, start_time").Find(&slots).Error; err != nil {
		return nil, mapErr(err)
	}

	res := &SearchSlotsResponse{}
	res.Body.Slots = make([]SlotSummary, 0, len(slots))
	for i := range slots {
		slot := &slots[i]
		seats, err := quota.AvailableSeats(h.db.WithContext(ctx), slot.ID, slot.NPlaces)
		if err != nil {
			return nil, mapErr(err)
		}
		summary := SlotSummary{
			ID:                 slot.ID,
			Kind:               string(slot.Kind),
			Label:              slotLabel(slot),
			Date:               slot.Date.Format("2006-01-02"),
			StartTime:          slot.StartTime,
			EndTime:            slot.EndTime,
			Place:              string(slot.Place),
			SeatsRemaining:     seats,
			RegistrationClosed: now.After(slot.RegistrationLimitAt()),
			Speakers:           make([]string, 0, len(slot.Speakers)),
			AdditionalInfo:     slot.AdditionalInformation,
		}
		for _, sp := range slot.Speakers {
			summary.Speakers = append(summary.Speakers, sp.FirstName+" "+sp.LastName)
		}
		res.Body.Slots = append(res.Body.Slots, summary)
	}
	return res, nil
}

func slotLabel(slot *models.Slot) string {
	switch {
	case slot.Course != nil:
		return slot.Course.Label
	case slot.Visit != nil:
		return slot.Visit.Purpose
	case slot.Event != nil:
		return slot.Event.Label
	}
	return ""
}
