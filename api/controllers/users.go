package controllers

import (
	"net/http"

	"github.com/oneman/oneman-backend/api/middleware"
	"github.com/oneman/oneman-backend/api/responses"
	"github.com/oneman/oneman-backend/api/validators"
	"github.com/oneman/oneman-backend/internal/users"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/logger"
)

type userUpsertRequest struct {
	Username    *string `json:"username,omitempty" validate:"omitempty,max=60"`
	DisplayName *string `json:"displayName,omitempty" validate:"omitempty,max=120"`
	PhotoURL    *string `json:"photoURL,omitempty" validate:"omitempty,url"`
}

// UserMe returns the caller's directory record.
func UserMe(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		user, err := svc.Me(r.Context(), middleware.ActorFromContext(r.Context()))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}

// UserUpsert creates or refreshes the caller's record from the token plus
// any profile overrides in the body.
func UserUpsert(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		var body userUpsertRequest
		if r.ContentLength != 0 {
			if err := validators.DecodeJSONBody(r, &body); err != nil {
				responses.WriteError(r.Context(), logg, w, err)
				return
			}
		}
		user, err := svc.UpsertProfile(r.Context(), middleware.ActorFromContext(r.Context()), users.ProfileInput{
			Username:    body.Username,
			DisplayName: body.DisplayName,
			PhotoURL:    body.PhotoURL,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, user)
	}
}

// UserSearch is the directory lookup used by the add-member dialog.
// ?q= is the substring, ?field= picks email (default) or username.
func UserSearch(svc users.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "user service unavailable"))
			return
		}
		query := r.URL.Query()
		results, err := svc.Search(r.Context(), users.SearchField(query.Get("field")), query.Get("q"))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, results)
	}
}
