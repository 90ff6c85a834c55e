package controllers

import (
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/oneman/oneman-backend/api/middleware"
	"github.com/oneman/oneman-backend/api/responses"
	"github.com/oneman/oneman-backend/api/validators"
	"github.com/oneman/oneman-backend/internal/groups"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/logger"
)

const (
	maxNameLength     = 120
	maxLocationLength = 200
	maxLabelLength    = 60
)

type groupCreateRequest struct {
	Name      string   `json:"name" validate:"required,max=120"`
	Location  string   `json:"location" validate:"required,max=200"`
	PhotoURL  *string  `json:"photoURL,omitempty" validate:"omitempty,url"`
	Category  string   `json:"category,omitempty" validate:"omitempty,max=60"`
	Companies []string `json:"companies" validate:"required,min=1,dive,required,max=60"`
}

type groupUpdateRequest struct {
	Name     *string `json:"name,omitempty" validate:"omitempty,max=120"`
	Location *string `json:"location,omitempty" validate:"omitempty,max=200"`
	PhotoURL *string `json:"photoURL,omitempty"`
}

// GroupList lists the caller's sites or stores. ?exclude=<id> hides one
// group, which the source picker uses to skip the group being edited.
func GroupList(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "group service unavailable"))
			return
		}
		kind, err := validators.ParseKind(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		exclude := uuid.Nil
		if raw := strings.TrimSpace(r.URL.Query().Get("exclude")); raw != "" {
			exclude, err = uuid.Parse(raw)
			if err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid exclude id"))
				return
			}
		}

		list, err := svc.ListMine(r.Context(), middleware.ActorFromContext(r.Context()), kind, exclude)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GroupCreate creates a site or store owned by the caller.
func GroupCreate(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "group service unavailable"))
			return
		}
		kind, err := validators.ParseKind(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body groupCreateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		companies := make([]string, 0, len(body.Companies))
		for _, company := range body.Companies {
			companies = append(companies, validators.SanitizeLine(company, maxLabelLength))
		}
		group, err := svc.Create(r.Context(), middleware.ActorFromContext(r.Context()), groups.CreateInput{
			Kind:      kind,
			Name:      validators.SanitizeLine(body.Name, maxNameLength),
			Location:  validators.SanitizeLine(body.Location, maxLocationLength),
			PhotoURL:  body.PhotoURL,
			Category:  validators.SanitizeLine(body.Category, maxLabelLength),
			Companies: companies,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, group)
	}
}

// GroupGet loads one group for a member.
func GroupGet(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "group service unavailable"))
			return
		}
		ref, err := validators.ParseGroupRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		group, err := svc.Get(r.Context(), middleware.ActorFromContext(r.Context()), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, group)
	}
}

// GroupUpdate edits group settings. Admin only.
func GroupUpdate(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "group service unavailable"))
			return
		}
		ref, err := validators.ParseGroupRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body groupUpdateRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		group, err := svc.UpdateSettings(r.Context(), middleware.ActorFromContext(r.Context()), ref, groups.UpdateInput{
			Name:     sanitizeOptionalLine(body.Name, maxNameLength),
			Location: sanitizeOptionalLine(body.Location, maxLocationLength),
			PhotoURL: body.PhotoURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, group)
	}
}

func sanitizeOptionalLine(value *string, maxLen int) *string {
	if value == nil {
		return nil
	}
	cleaned := validators.SanitizeLine(*value, maxLen)
	return &cleaned
}
