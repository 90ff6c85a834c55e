package controllers

import (
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/oneman/oneman-backend/api/middleware"
	"github.com/oneman/oneman-backend/api/responses"
	"github.com/oneman/oneman-backend/api/validators"
	"github.com/oneman/oneman-backend/internal/groups"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/logger"
)

// Members are added by uid or, as the add-member dialog does, by email.
type memberAddRequest struct {
	UserID string `json:"userId,omitempty" validate:"required_without=Email,omitempty,max=128"`
	Email  string `json:"email,omitempty" validate:"required_without=UserID,omitempty,email,max=254"`
}

// MemberList returns the group's members with profiles.
func MemberList(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
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
		members, err := svc.ListMembers(r.Context(), middleware.ActorFromContext(r.Context()), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, members)
	}
}

// MemberAdd adds a registered user to the group. Admin only.
func MemberAdd(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
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
		var body memberAddRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		actor := middleware.ActorFromContext(r.Context())
		var result *groups.MembershipResult
		if strings.TrimSpace(body.UserID) != "" {
			result, err = svc.AddMember(r.Context(), actor, ref, body.UserID)
		} else {
			result, err = svc.AddMemberByEmail(r.Context(), actor, ref, body.Email)
		}
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		status := http.StatusOK
		if result.Added {
			status = http.StatusCreated
		}
		responses.WriteSuccessStatus(w, status, result)
	}
}

// MemberRemove removes a member. Admin only; the admin cannot be removed.
func MemberRemove(svc groups.Service, logg *logger.Logger) http.HandlerFunc {
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
		userID := strings.TrimSpace(chi.URLParam(r, "userId"))
		if userID == "" {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeValidation, "user id is required"))
			return
		}
		if err := svc.RemoveMember(r.Context(), middleware.ActorFromContext(r.Context()), ref, userID); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}
}
