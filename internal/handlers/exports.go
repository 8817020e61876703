package handlers

import (
	"context"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/exports"
	"github.com/immersup/immersup-api/internal/settings"
)

type ExportHandler struct {
	db       *gorm.DB
	settings *settings.Store
	log      *zap.Logger
}

func NewExportHandler(db *gorm.DB, st *settings.Store, log *zap.Logger) *ExportHandler {
	return &ExportHandler{db: db, settings: st, log: log}
}

func queryUint(r *http.Request, key string) *uint {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return nil
	}
	n, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		return nil
	}
	u := uint(n)
	return &u
}

func csvHeaders(w http.ResponseWriter, scope string) {
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition",
		fmt.Sprintf(`attachment; filename="%s"`, exports.Filename(scope, time.Now())))
}

// HandleSlotsCSV streams the slot export.
func (h *ExportHandler) HandleSlotsCSV(w http.ResponseWriter, r *http.Request) {
	csvHeaders(w, "slots")
	err := exports.WriteSlots(w, h.db.WithContext(r.Context()), queryUint(r, "period_id"))
	if err != nil {
		h.log.Error("slot export failed", zap.Error(err))
	}
}

// HandleRegistrationsCSV streams the registrations export.
func (h *ExportHandler) HandleRegistrationsCSV(w http.ResponseWriter, r *http.Request) {
	filter := exports.RegistrationFilter{
		SlotID:   queryUint(r, "slot_id"),
		PeriodID: queryUint(r, "period_id"),
	}
	csvHeaders(w, "registrations")
	err := exports.WriteRegistrations(w, h.db.WithContext(r.Context()), filter)
	if err != nil {
		h.log.Error("registration export failed", zap.Error(err))
	}
}

type MailingListsRequest struct {
	PeriodID uint `query:"period_id" required:"false"`
}

type MailingListsResponse struct {
	Body map[string][]string
}

// HandleMailingLists returns the {list_address: [emails]} projection.
func (h *ExportHandler) HandleMailingLists(ctx context.Context, input *MailingListsRequest) (*MailingListsResponse, error) {
	filter := exports.MailingFilter{}
	if input.PeriodID != 0 {
		id := input.PeriodID
		filter.PeriodID = &id
	}
	lists, err := exports.MailingLists(ctx, h.db.WithContext(ctx), h.settings, filter)
	if err != nil {
		return nil, mapErr(err)
	}
	return &MailingListsResponse{Body: lists}, nil
}
