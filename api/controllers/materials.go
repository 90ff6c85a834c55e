package controllers

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/oneman/oneman-backend/api/middleware"
	"github.com/oneman/oneman-backend/api/responses"
	"github.com/oneman/oneman-backend/api/validators"
	"github.com/oneman/oneman-backend/internal/materials"
	"github.com/oneman/oneman-backend/pkg/enums"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/logger"
	"github.com/oneman/oneman-backend/pkg/types"
)

// Amounts may arrive as JSON numbers or strings; both are parsed as decimals.
type materialAddRequest struct {
	Name   string                   `json:"name" validate:"required,max=120"`
	Unit   string                   `json:"unit" validate:"required,max=32"`
	Amount json.RawMessage          `json:"amount" validate:"required"`
	Source *validators.GroupRefBody `json:"source,omitempty"`
}

type materialRemoveRequest struct {
	EntryID     string                   `json:"entryId,omitempty"`
	Name        string                   `json:"name,omitempty" validate:"max=120"`
	Unit        string                   `json:"unit,omitempty" validate:"max=32"`
	Amount      json.RawMessage          `json:"amount" validate:"required"`
	Destination *validators.GroupRefBody `json:"destination,omitempty"`
}

type materialTransferRequest struct {
	EntryID     string                  `json:"entryId,omitempty"`
	Name        string                  `json:"name,omitempty" validate:"max=120"`
	Unit        string                  `json:"unit,omitempty" validate:"max=32"`
	Amount      json.RawMessage         `json:"amount" validate:"required"`
	Destination validators.GroupRefBody `json:"destination" validate:"required"`
}

func rawAmount(raw json.RawMessage) string {
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}

// MaterialList returns the group's ledger.
func MaterialList(svc materials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "material service unavailable"))
			return
		}
		ref, err := validators.ParseGroupRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		ledger, err := svc.List(r.Context(), middleware.ActorFromContext(r.Context()), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, ledger)
	}
}

// runFlow drives one submission: amount, then counterpart, then submit.
func runFlow(ctx context.Context, raw json.RawMessage, counterpart *types.GroupRef, submit materials.SubmitFunc) error {
	flow := materials.NewFlow()
	if err := flow.EnterAmount(rawAmount(raw)); err != nil {
		return materials.ServiceError(err)
	}
	if err := flow.ChooseSource(counterpart); err != nil {
		return materials.ServiceError(err)
	}
	return flow.Submit(ctx, submit)
}

// MaterialAdd adds material to the group, optionally moving it out of a
// source group.
func MaterialAdd(svc materials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "material service unavailable"))
			return
		}
		ref, err := validators.ParseGroupRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body materialAddRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		source, err := body.Source.Ref()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := middleware.ActorFromContext(r.Context())
		var result *materials.Result
		err = runFlow(r.Context(), body.Amount, source, func(ctx context.Context, amount decimal.Decimal, counterpart *types.GroupRef) error {
			var err error
			result, err = svc.Add(ctx, actor, materials.AddInput{
				Group:  ref,
				Name:   body.Name,
				Unit:   body.Unit,
				Amount: amount,
				Source: counterpart,
			})
			return err
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, result)
	}
}

// MaterialRemove takes material out of the group, optionally moving it to a
// destination group.
func MaterialRemove(svc materials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "material service unavailable"))
			return
		}
		ref, err := validators.ParseGroupRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body materialRemoveRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		destination, err := body.Destination.Ref()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		actor := middleware.ActorFromContext(r.Context())
		var result *materials.Result
		err = runFlow(r.Context(), body.Amount, destination, func(ctx context.Context, amount decimal.Decimal, counterpart *types.GroupRef) error {
			var err error
			result, err = svc.Remove(ctx, actor, materials.RemoveInput{
				Group:       ref,
				EntryID:     body.EntryID,
				Name:        body.Name,
				Unit:        body.Unit,
				Amount:      amount,
				Destination: counterpart,
			})
			return err
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// MaterialTransfer moves material from the group to another group.
func MaterialTransfer(svc materials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "material service unavailable"))
			return
		}
		ref, err := validators.ParseGroupRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var body materialTransferRequest
		if err := validators.DecodeJSONBody(r, &body); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		destination, err := body.Destination.Ref()
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		amount, err := materials.ParseAmount(rawAmount(body.Amount))
		if err != nil {
			responses.WriteError(r.Context(), logg, w, materials.ServiceError(err))
			return
		}

		result, err := svc.Transfer(r.Context(), middleware.ActorFromContext(r.Context()), materials.TransferInput{
			Source:      ref,
			Destination: *destination,
			EntryID:     body.EntryID,
			Name:        body.Name,
			Unit:        body.Unit,
			Amount:      amount,
		})
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, result)
	}
}

// MaterialTransfers lists recent transfers touching the group, including
// failed attempts. ?status= narrows to pending, committed or failed.
func MaterialTransfers(svc materials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "material service unavailable"))
			return
		}
		ref, err := validators.ParseGroupRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		limit, err := validators.ParseQueryInt(r, "limit", 50, 1, 200)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		var status enums.TransferStatus
		if raw := strings.TrimSpace(r.URL.Query().Get("status")); raw != "" {
			if status, err = enums.ParseTransferStatus(raw); err != nil {
				responses.WriteError(r.Context(), logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()))
				return
			}
		}
		list, err := svc.Transfers(r.Context(), middleware.ActorFromContext(r.Context()), ref, status, limit)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, list)
	}
}

// GroupCatalog returns the catalog items selected for the group.
func GroupCatalog(svc materials.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if svc == nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeInternal, "material service unavailable"))
			return
		}
		ref, err := validators.ParseGroupRef(r)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		catalog, err := svc.Catalog(r.Context(), middleware.ActorFromContext(r.Context()), ref)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccess(w, catalog)
	}
}

// Catalog returns every material set and category.
func Catalog(catalog materials.Catalog) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		responses.WriteSuccess(w, catalog)
	}
}
