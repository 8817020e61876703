package handlers

import (
	"errors"

	"github.com/danielgtaylor/huma/v2"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/auth"
	"github.com/immersup/immersup-api/internal/calendar"
	"github.com/immersup/immersup-api/internal/models"
	"github.com/immersup/immersup-api/internal/records"
	"github.com/immersup/immersup-api/internal/registration"
)

// mapErr translates domain errors into HTTP responses: configuration
// problems are 503 with an administrator-actionable message, conflicts
// 409, state errors 400, lookups 404. Admission denials are not errors
// and never reach this path.
func mapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound),
		errors.Is(err, registration.ErrSlotNotFound),
		errors.Is(err, registration.ErrPersonNotFound),
		errors.Is(err, registration.ErrImmersionNotFound),
		errors.Is(err, auth.ErrUnknownAccount):
		return huma.Error404NotFound("resource not found")
	case errors.Is(err, calendar.ErrNoPeriod):
		return huma.Error503ServiceUnavailable("no period covers the slot date; create or extend a period")
	case errors.Is(err, calendar.ErrAmbiguousPeriod):
		return huma.Error503ServiceUnavailable("several periods cover the slot date; fix the period windows")
	case errors.Is(err, calendar.ErrNoActiveYear):
		return huma.Error503ServiceUnavailable("no active university year")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return huma.Error409Conflict("conflicting write, retry")
	case errors.Is(err, registration.ErrNoGroupSeat):
		return huma.Error409Conflict("not enough group seats available")
	case errors.Is(err, registration.ErrNotCancellable),
		errors.Is(err, registration.ErrAlreadyCancelled),
		errors.Is(err, registration.ErrGroupsNotAllowed):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, models.ErrSlotOwner),
		errors.Is(err, models.ErrSlotTimes),
		errors.Is(err, models.ErrSlotShrink):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, records.ErrBadTransition),
		errors.Is(err, records.ErrMissingDocuments),
		errors.Is(err, records.ErrDocumentLocked):
		return huma.Error400BadRequest(err.Error())
	case errors.Is(err, auth.ErrBadCredentials):
		return huma.Error401Unauthorized("bad credentials")
	case errors.Is(err, auth.ErrAccountInactive):
		return huma.Error403Forbidden("account not activated")
	}
	return huma.Error500InternalServerError("internal error")
}
