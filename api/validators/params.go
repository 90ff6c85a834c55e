package validators

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/oneman/oneman-backend/pkg/enums"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/types"
)

// ParseUUIDParam reads a uuid route parameter.
func ParseUUIDParam(r *http.Request, name string) (uuid.UUID, error) {
	raw := strings.TrimSpace(chi.URLParam(r, name))
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid "+name).WithDetails(map[string]any{"field": name})
	}
	return id, nil
}

// ParseKind reads the {kind} route parameter ("sites" or "stores").
func ParseKind(r *http.Request) (enums.GroupKind, error) {
	kind, err := enums.ParseGroupKind(chi.URLParam(r, "kind"))
	if err != nil {
		return "", pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "unknown collection")
	}
	return kind, nil
}

// ParseGroupRef reads the {kind}/{groupId} route parameters.
func ParseGroupRef(r *http.Request) (types.GroupRef, error) {
	kind, err := ParseKind(r)
	if err != nil {
		return types.GroupRef{}, err
	}
	id, err := ParseUUIDParam(r, "groupId")
	if err != nil {
		return types.GroupRef{}, err
	}
	return types.GroupRef{Kind: kind, ID: id}, nil
}

// GroupRefBody is a group reference inside a request body.
type GroupRefBody struct {
	Kind string `json:"kind" validate:"required"`
	ID   string `json:"id" validate:"required,uuid"`
}

// Ref converts the body into a GroupRef. A nil body yields nil.
func (b *GroupRefBody) Ref() (*types.GroupRef, error) {
	if b == nil {
		return nil, nil
	}
	kind, err := enums.ParseGroupKind(b.Kind)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid group kind")
	}
	id, err := uuid.Parse(b.ID)
	if err != nil || id == uuid.Nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "invalid group id")
	}
	return &types.GroupRef{Kind: kind, ID: id}, nil
}
