package handlers

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/danielgtaylor/huma/v2"
	"gorm.io/gorm"

	"github.com/immersup/immersup-api/internal/auth"
)

// The catalog resources share plain CRUD semantics; one generic
// registration covers them all. Reads are open to any authenticated
// caller, writes to managers.

func requireManager(ctx context.Context) error {
	p := auth.CurrentPerson(ctx)
	if p == nil {
		return huma.Error401Unauthorized("unauthorized")
	}
	if !isManager(p) {
		return huma.Error403Forbidden("managers only")
	}
	return nil
}

type idRequest struct {
	ID uint `path:"id"`
}

type listResponse[T any] struct {
	Body struct {
		Items []T `json:"items"`
	}
}

type itemRequest[T any] struct {
	Body T
}

type itemResponse[T any] struct {
	Body T
}

type patchRequest struct {
	ID   uint `path:"id"`
	Body map[string]interface{}
}

type deleteResponse struct{}

func resource[T any](api huma.API, db *gorm.DB, name, path string) {
	resourceOwned[T](api, db, name, path, nil)
}

// resourceOwned scopes the write verbs to managers of the resource's
// owner chain. A nil scopeOf falls back to the plain manager check.
func resourceOwned[T any](api huma.API, db *gorm.DB, name, path string,
	scopeOf func(context.Context, *gorm.DB, *T) (scope, error)) {

	checkScope := func(ctx context.Context, obj *T) error {
		if scopeOf == nil {
			return nil
		}
		sc, err := scopeOf(ctx, db, obj)
		if err != nil {
			return mapErr(err)
		}
		if !sc.allows(auth.CurrentPerson(ctx)) {
			return huma.Error403Forbidden("outside your management scope")
		}
		return nil
	}

	huma.Register(api, huma.Operation{
		OperationID: "list-" + name,
		Method:      http.MethodGet,
		Path:        path,
		Summary:     "List " + name,
	}, func(ctx context.Context, _ *struct{}) (*listResponse[T], error) {
		res := &listResponse[T]{}
		if err := db.WithContext(ctx).Find(&res.Body.Items).Error; err != nil {
			return nil, mapErr(err)
		}
		return res, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "get-" + name,
		Method:      http.MethodGet,
		Path:        path + "/{id}",
		Summary:     "Get one of " + name,
	}, func(ctx context.Context, in *idRequest) (*itemResponse[T], error) {
		res := &itemResponse[T]{}
		err := db.WithContext(ctx).First(&res.Body, in.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("%s %d not found", name, in.ID))
		}
		if err != nil {
			return nil, mapErr(err)
		}
		return res, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "create-" + name,
		Method:        http.MethodPost,
		Path:          path,
		Summary:       "Create " + name,
		DefaultStatus: http.StatusCreated,
	}, func(ctx context.Context, in *itemRequest[T]) (*itemResponse[T], error) {
		if err := requireManager(ctx); err != nil {
			return nil, err
		}
		if err := checkScope(ctx, &in.Body); err != nil {
			return nil, err
		}
		if err := db.WithContext(ctx).Create(&in.Body).Error; err != nil {
			return nil, mapErr(err)
		}
		return &itemResponse[T]{Body: in.Body}, nil
	})

	huma.Register(api, huma.Operation{
		OperationID: "update-" + name,
		Method:      http.MethodPatch,
		Path:        path + "/{id}",
		Summary:     "Update " + name,
	}, func(ctx context.Context, in *patchRequest) (*itemResponse[T], error) {
		if err := requireManager(ctx); err != nil {
			return nil, err
		}
		res := &itemResponse[T]{}
		err := db.WithContext(ctx).First(&res.Body, in.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("%s %d not found", name, in.ID))
		}
		if err != nil {
			return nil, mapErr(err)
		}
		if err := checkScope(ctx, &res.Body); err != nil {
			return nil, err
		}
		delete(in.Body, "id")
		delete(in.Body, "created_at")
		delete(in.Body, "updated_at")
		if err := db.WithContext(ctx).Model(&res.Body).Updates(in.Body).Error; err != nil {
			return nil, mapErr(err)
		}
		return res, nil
	})

	huma.Register(api, huma.Operation{
		OperationID:   "delete-" + name,
		Method:        http.MethodDelete,
		Path:          path + "/{id}",
		Summary:       "Delete " + name,
		DefaultStatus: http.StatusNoContent,
	}, func(ctx context.Context, in *idRequest) (*deleteResponse, error) {
		if err := requireManager(ctx); err != nil {
			return nil, err
		}
		var obj T
		err := db.WithContext(ctx).First(&obj, in.ID).Error
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, huma.Error404NotFound(fmt.Sprintf("%s %d not found", name, in.ID))
		}
		if err != nil {
			return nil, mapErr(err)
		}
		if err := checkScope(ctx, &obj); err != nil {
			return nil, err
		}
		if err := db.WithContext(ctx).Delete(&obj).Error; err != nil {
			return nil, mapErr(err)
		}
		return &deleteResponse{}, nil
	})
}
