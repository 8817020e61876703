package handlers

import (
	"context"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/danielgtaylor/huma/v2"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/auth"
	"github.com/immersup/immersup-api/internal/calendar"
	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/notifier"
	"github.com/immersup/immersup-api/internal/records"
	"github.com/immersup/immersup-api/internal/registration"
	"github.com/immersup/immersup-api/internal/settings"
)

const maxUploadSize = 10 << 20

// allowedUploadExtensions restricts attestation uploads.
var allowedUploadExtensions = map[string]bool{
	".pdf": true, ".jpg": true, ".jpeg": true, ".png": true,
}

// documentPartRe matches multipart file parts keyed on the attestation id.
var documentPartRe = regexp.MustCompile(`^document_(\d+)-file$`)

type RecordHandler struct {
	db        *gorm.DB
	settings  *settings.Store
	emitter   *notifier.Emitter
	uploadDir string
	validate  *validator.Validate
	log       *zap.Logger
}

func NewRecordHandler(db *gorm.DB, st *settings.Store, emitter *notifier.Emitter, uploadDir string, log *zap.Logger) *RecordHandler {
	return &RecordHandler{
		db:        db,
		settings:  st,
		emitter:   emitter,
		uploadDir: uploadDir,
		validate:  validator.New(),
		log:       log,
	}
}

type CreateRecordRequest struct {
	Body struct {
		Profile string `json:"profile" validate:"required,oneof=high_school_student student visitor"`

		// High-school student fields.
		HighSchoolID *uint  `json:"high_school_id,omitempty"`
		Class        string `json:"class,omitempty" validate:"omitempty,max=32"`
		LevelID      *uint  `json:"level_id,omitempty"`

		// Student fields.
		UAICode         string `json:"uai_code,omitempty" validate:"omitempty,len=8"`
		InstitutionName string `json:"institution_name,omitempty"`
		CurrentDiploma  string `json:"current_diploma,omitempty"`

		// Visitor fields.
		VisitorTypeID *uint  `json:"visitor_type_id,omitempty"`
		Motivation    string `json:"motivation,omitempty" validate:"omitempty,max=2000"`
	}
}

// HandleCreateRecord creates the caller's record in TO_COMPLETE and
// instantiates the applicable attestation documents. High-school pupils
// are refused while the charter gate is on and their school has not
// signed.
func (h *RecordHandler) HandleCreateRecord(ctx context.Context, input *CreateRecordRequest) (*MessageResponse, error) {
	person := auth.CurrentPerson(ctx)
	if person == nil {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	if err := h.validate.Struct(input.Body); err != nil {
		return nil, huma.Error400BadRequest(err.Error())
	}

	existing, _, err := registration.LoadRecord(h.db.WithContext(ctx), person.ID)
	if err != nil {
		return nil, mapErr(err)
	}
	if existing != nil {
		return nil, huma.Error409Conflict("a record already exists for this account")
	}

	today := calendar.Day(time.Now())
	var record models.Record
	switch input.Body.Profile {
	case models.ProfileHighSchoolStudent:
		if err := h.checkCharter(ctx, input.Body.HighSchoolID); err != nil {
			return nil, err
		}
		record = &models.HighSchoolStudentRecord{
			RecordCore:   models.RecordCore{PersonID: person.ID},
			HighSchoolID: input.Body.HighSchoolID,
			Class:        input.Body.Class,
			LevelID:      input.Body.LevelID,
		}
	case models.ProfileStudent:
		record = &models.StudentRecord{
			RecordCore:      models.RecordCore{PersonID: person.ID},
			UAICode:         input.Body.UAICode,
			InstitutionName: input.Body.InstitutionName,
			LevelID:         input.Body.LevelID,
			CurrentDiploma:  input.Body.CurrentDiploma,
		}
	case models.ProfileVisitor:
		record = &models.VisitorRecord{
			RecordCore:    models.RecordCore{PersonID: person.ID},
			VisitorTypeID: input.Body.VisitorTypeID,
			Motivation:    input.Body.Motivation,
		}
	}

	err = h.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(record).Error; err != nil {
			return err
		}
		var visitorTypeID *uint
		if vr, ok := record.(*models.VisitorRecord); ok {
			visitorTypeID = vr.VisitorTypeID
		}
		return records.EnsureDocuments(tx, record, person, visitorTypeID, today)
	})
	if err != nil {
		return nil, mapErr(err)
	}

	res := &MessageResponse{}
	res.Body.Msg = "record created"
	return res, nil
}

// checkCharter enforces the CHARTER_SIGN gate at record creation.
func (h *RecordHandler) checkCharter(ctx context.Context, highSchoolID *uint) error {
	if !h.settings.Bool(ctx, models.SettingCharterSign, false) {
		return nil
	}
	if highSchoolID == nil {
		return huma.Error400BadRequest("high_school_id is required")
	}
	var hs models.HighSchool
	if err := h.db.WithContext(ctx).First(&hs, *highSchoolID).Error; err != nil {
		return mapErr(err)
	}
	if !hs.SignedCharter {
		return huma.Error403Forbidden("high school has not signed the charter")
	}
	return nil
}

// HandleUploadDocuments ingests the multipart attestation upload. File
// parts are keyed document_{attestation_id}-file with an optional
// document_{attestation_id}-validity_date field. Once every mandatory
// document is present the record moves to TO_VALIDATE.
func (h *RecordHandler) HandleUploadDocuments(w http.ResponseWriter, r *http.Request) {
	person := auth.CurrentPerson(r.Context())
	if person == nil {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	record, _, err := registration.LoadRecord(h.db.WithContext(r.Context()), person.ID)
	if err != nil {
		http.Error(w, "failed to load record", http.StatusInternalServerError)
		return
	}
	if record == nil {
		http.Error(w, "no record for this account", http.StatusNotFound)
		return
	}

	if err := r.ParseMultipartForm(maxUploadSize); err != nil {
		http.Error(w, "upload too large or malformed", http.StatusBadRequest)
		return
	}

	today := calendar.Day(time.Now())
	depositDelay := h.settings.Int(r.Context(), models.SettingAttestationDepositDelay, 0)

	for key, headers := range r.MultipartForm.File {
		m := documentPartRe.FindStringSubmatch(key)
		if m == nil || len(headers) == 0 {
			continue
		}
		attestationID, _ := strconv.ParseUint(m[1], 10, 64)

		ext := strings.ToLower(filepath.Ext(headers[0].Filename))
		if !allowedUploadExtensions[ext] {
			http.Error(w, fmt.Sprintf("file type %s not allowed", ext), http.StatusBadRequest)
			return
		}

		var validity *time.Time
		if raw := r.FormValue(fmt.Sprintf("document_%d-validity_date", attestationID)); raw != "" {
			parsed, err := time.Parse("2006-01-02", raw)
			if err != nil {
				http.Error(w, "invalid validity_date", http.StatusBadRequest)
				return
			}
			validity = &parsed
		}

		var doc models.RecordDocument
		err := h.db.WithContext(r.Context()).
			Where("person_id = ? AND attestation_document_id = ? AND archive = ?",
				person.ID, uint(attestationID), false).
			First(&doc).Error
		if err != nil {
			http.Error(w, "unknown attestation document", http.StatusNotFound)
			return
		}

		stored, err := h.storeUpload(headers[0], ext)
		if err != nil {
			h.log.Error("failed to store upload", zap.Error(err))
			http.Error(w, "failed to store upload", http.StatusInternalServerError)
			return
		}

		if doc.File == "" {
			now := time.Now()
			updates := map[string]interface{}{
				"file":          stored,
				"deposit_date":  now,
				"validity_date": validity,
			}
			if err := h.db.WithContext(r.Context()).Model(&doc).Updates(updates).Error; err != nil {
				http.Error(w, "failed to save document", http.StatusInternalServerError)
				return
			}
		} else {
			err := records.RenewDocument(h.db.WithContext(r.Context()), record, &doc, stored, validity, depositDelay, today)
			if err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
		}
	}

	// Submit once complete; an incomplete set is not an error here.
	record, docs, err := registration.LoadRecord(h.db.WithContext(r.Context()), person.ID)
	if err == nil && record != nil {
		if err := records.Submit(record, docs, today); err == nil {
			h.db.WithContext(r.Context()).Save(record)
		}
	}

	w.WriteHeader(http.StatusNoContent)
}

func (h *RecordHandler) storeUpload(header *multipart.FileHeader, ext string) (string, error) {
	src, err := header.Open()
	if err != nil {
		return "", err
	}
	defer src.Close()

	if err := os.MkdirAll(h.uploadDir, 0o750); err != nil {
		return "", err
	}
	name := uuid.NewString() + ext
	dst, err := os.Create(filepath.Join(h.uploadDir, name))
	if err != nil {
		return "", err
	}
	defer dst.Close()
	if _, err := io.Copy(dst, src); err != nil {
		return "", err
	}
	return name, nil
}

type RecordActionRequest struct {
	Body struct {
		PersonID uint   `json:"person_id"`
		Reason   string `json:"reason,omitempty"`
	}
}

// HandleValidateRecord approves a candidate record. Attachment purge on
// validation follows the matching toggle.
func (h *RecordHandler) HandleValidateRecord(ctx context.Context, input *RecordActionRequest) (*MessageResponse, error) {
	actor := auth.CurrentPerson(ctx)
	if actor == nil {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	if !isManager(actor) {
		return nil, huma.Error403Forbidden("only managers validate records")
	}

	db := h.db.WithContext(ctx)
	record, docs, err := registration.LoadRecord(db, input.Body.PersonID)
	if err != nil {
		return nil, mapErr(err)
	}
	if record == nil {
		return nil, huma.Error404NotFound("no record for this person")
	}

	today := calendar.Day(time.Now())
	if err := records.Approve(record, docs, today); err != nil {
		return nil, mapErr(err)
	}
	if err := db.Save(record).Error; err != nil {
		return nil, mapErr(err)
	}

	if h.settings.Bool(ctx, models.SettingDeleteAttachmentsAtValidation, false) {
		if err := records.PurgeAttachments(db, input.Body.PersonID); err != nil {
			h.log.Warn("record validated but attachment purge failed",
				zap.Uint("person_id", input.Body.PersonID), zap.Error(err))
		}
	}

	h.notifyRecord(ctx, input.Body.PersonID, models.TplRecordValidated, "")

	res := &MessageResponse{}
	res.Body.Msg = "record validated"
	return res, nil
}

// HandleRejectRecord rejects a candidate record with a reason.
func (h *RecordHandler) HandleRejectRecord(ctx context.Context, input *RecordActionRequest) (*MessageResponse, error) {
	actor := auth.CurrentPerson(ctx)
	if actor == nil {
		return nil, huma.Error401Unauthorized("unauthorized")
	}
	if !isManager(actor) {
		return nil, huma.Error403Forbidden("only managers reject records")
	}

	db := h.db.WithContext(ctx)
	record, _, err := registration.LoadRecord(db, input.Body.PersonID)
	if err != nil {
		return nil, mapErr(err)
	}
	if record == nil {
		return nil, huma.Error404NotFound("no record for this person")
	}

	if err := records.Reject(record, input.Body.Reason); err != nil {
		return nil, mapErr(err)
	}
	if err := db.Save(record).Error; err != nil {
		return nil, mapErr(err)
	}

	h.notifyRecord(ctx, input.Body.PersonID, models.TplRecordRejected, input.Body.Reason)

	res := &MessageResponse{}
	res.Body.Msg = "record rejected"
	return res, nil
}

func (h *RecordHandler) notifyRecord(ctx context.Context, personID uint, template, reason string) {
	var person models.Person
	if err := h.db.WithContext(ctx).First(&person, personID).Error; err != nil {
		return
	}
	vars := map[string]string{
		"first_name": person.FirstName,
		"last_name":  person.LastName,
		"reason":     reason,
	}
	if err := h.emitter.Emit(ctx, template, vars, person.Email); err != nil {
		h.log.Warn("record notification failed", zap.Uint("person_id", personID), zap.Error(err))
	}
}
