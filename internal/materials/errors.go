package materials

import (
	"errors"

	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
)

var (
	ErrInvalidAmount        = errors.New("amount must be a positive number")
	ErrInvalidMaterial      = errors.New("material name and unit are required")
	ErrInsufficientQuantity = errors.New("requested amount exceeds available quantity")
	ErrMaterialNotFound     = errors.New("material not found")
	ErrSameGroup            = errors.New("source and destination must be different groups")
	ErrInvalidTransition    = errors.New("invalid flow transition")
)

// asServiceError maps ledger sentinels onto the API error taxonomy. Errors
// that are already typed pass through.
func asServiceError(err error) error {
	if err == nil {
		return nil
	}
	if pkgerrors.As(err) != nil {
		return err
	}
	switch {
	case errors.Is(err, ErrInvalidAmount):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid amount").WithReason("InvalidAmount")
	case errors.Is(err, ErrInvalidMaterial):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid material").WithReason("InvalidMaterial")
	case errors.Is(err, ErrSameGroup):
		return pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid transfer").WithReason("InvalidTransfer")
	case errors.Is(err, ErrInsufficientQuantity):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "not enough material").WithReason("InsufficientQuantity")
	case errors.Is(err, ErrMaterialNotFound):
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "material not found").WithReason("MaterialNotFound")
	case errors.Is(err, ErrInvalidTransition):
		return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "submission already in progress").WithReason("InvalidTransition")
	default:
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "ledger operation failed").WithReason("RemoteOperationFailed")
	}
}

// ServiceError maps ledger and flow sentinels for callers outside the
// service, such as HTTP handlers driving a Flow.
func ServiceError(err error) error {
	return asServiceError(err)
}
