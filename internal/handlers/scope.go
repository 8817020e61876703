package handlers

import (
	"context"

	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/models"
)

// scope identifies the owning establishment, structure or high school of
// an offer resource. Manager rights are checked against it: operators and
// master managers pass everywhere, the other manager roles only within
// their own scope.
type scope struct {
	establishmentID *uint
	structureID     *uint
	highSchoolID    *uint
}

func (s scope) allows(p *models.Person) bool {
	if p.HasRole(models.RoleOperator) || p.HasRole(models.RoleMasterManager) {
		return true
	}
	if p.HasRole(models.RoleEstablishmentManager) &&
		p.EstablishmentID != nil && s.establishmentID != nil &&
		*p.EstablishmentID == *s.establishmentID {
		return true
	}
	if p.HasRole(models.RoleStructureManager) &&
		p.StructureID != nil && s.structureID != nil &&
		*p.StructureID == *s.structureID {
		return true
	}
	if p.HasRole(models.RoleHighSchoolManager) &&
		p.HighSchoolID != nil && s.highSchoolID != nil &&
		*p.HighSchoolID == *s.highSchoolID {
		return true
	}
	return false
}

func structureScope(ctx context.Context, db *gorm.DB, structureID uint) (scope, error) {
	var st models.Structure
	if err := db.WithContext(ctx).First(&st, structureID).Error; err != nil {
		return scope{}, err
	}
	return scope{establishmentID: &st.EstablishmentID, structureID: &st.ID}, nil
}

func trainingScope(ctx context.Context, db *gorm.DB, tr *models.Training) (scope, error) {
	if tr.StructureID != nil {
		return structureScope(ctx, db, *tr.StructureID)
	}
	return scope{highSchoolID: tr.HighSchoolID}, nil
}

func courseScope(ctx context.Context, db *gorm.DB, c *models.Course) (scope, error) {
	if c.StructureID != nil {
		return structureScope(ctx, db, *c.StructureID)
	}
	if c.HighSchoolID != nil {
		return scope{highSchoolID: c.HighSchoolID}, nil
	}
	var tr models.Training
	if err := db.WithContext(ctx).First(&tr, c.TrainingID).Error; err != nil {
		return scope{}, err
	}
	return trainingScope(ctx, db, &tr)
}

func visitScope(v *models.Visit) scope {
	return scope{
		establishmentID: &v.EstablishmentID,
		structureID:     v.StructureID,
		highSchoolID:    &v.HighSchoolID,
	}
}

func eventScope(ctx context.Context, db *gorm.DB, e *models.OffOfferEvent) (scope, error) {
	sc := scope{
		establishmentID: e.EstablishmentID,
		structureID:     e.StructureID,
		highSchoolID:    e.HighSchoolID,
	}
	if sc.establishmentID == nil && e.StructureID != nil {
		st, err := structureScope(ctx, db, *e.StructureID)
		if err != nil {
			return scope{}, err
		}
		sc.establishmentID = st.establishmentID
	}
	return sc, nil
}

func slotScope(ctx context.Context, db *gorm.DB, slot *models.Slot) (scope, error) {
	switch {
	case slot.CourseID != nil:
		var c models.Course
		if err := db.WithContext(ctx).First(&c, *slot.CourseID).Error; err != nil {
			return scope{}, err
		}
		return courseScope(ctx, db, &c)
	case slot.VisitID != nil:
		var v models.Visit
		if err := db.WithContext(ctx).First(&v, *slot.VisitID).Error; err != nil {
			return scope{}, err
		}
		return visitScope(&v), nil
	case slot.EventID != nil:
		var e models.OffOfferEvent
		if err := db.WithContext(ctx).First(&e, *slot.EventID).Error; err != nil {
			return scope{}, err
		}
		return eventScope(ctx, db, &e)
	}
	return scope{}, nil
}

// canManageSlot reports whether the actor holds manager rights over the
// slot's owner chain.
func canManageSlot(ctx context.Context, db *gorm.DB, actor *models.Person, slotID uint) (bool, error) {
	if !isManager(actor) {
		return false, nil
	}
	if actor.HasRole(models.RoleOperator) || actor.HasRole(models.RoleMasterManager) {
		return true, nil
	}
	var slot models.Slot
	if err := db.WithContext(ctx).First(&slot, slotID).Error; err != nil {
		return false, err
	}
	sc, err := slotScope(ctx, db, &slot)
	if err != nil {
		return false, err
	}
	return sc.allows(actor), nil
}
