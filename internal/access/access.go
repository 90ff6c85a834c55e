// Package access resolves a group for an actor and enforces membership and
// admin rules shared by the group, material and message services.
package access

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/internal/session"
	"github.com/oneman/oneman-backend/pkg/db/models"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/types"
)

var (
	ErrGroupNotFound = errors.New("group not found")
	ErrNotAMember    = errors.New("user is not a member of the group")
	ErrNotAdmin      = errors.New("only the group admin may do this")
)

// Store is the slice of the group repository the checks need. tx may be nil.
type Store interface {
	FindByID(ctx context.Context, tx *gorm.DB, id uuid.UUID) (*models.GroupRecord, error)
	IsMember(ctx context.Context, tx *gorm.DB, groupID uuid.UUID, userID string) (bool, error)
}

// NotFound wraps ErrGroupNotFound with the NotFound reason.
func NotFound(ref types.GroupRef) error {
	return pkgerrors.Wrap(pkgerrors.CodeNotFound, ErrGroupNotFound, ref.Kind.String()+" not found").WithReason("NotFound")
}

// NotAMember wraps ErrNotAMember with the NotAMember reason.
func NotAMember() error {
	return pkgerrors.Wrap(pkgerrors.CodeForbidden, ErrNotAMember, "you are not a member of this group").WithReason("NotAMember")
}

// NotAdmin wraps ErrNotAdmin.
func NotAdmin() error {
	return pkgerrors.Wrap(pkgerrors.CodeForbidden, ErrNotAdmin, "only the admin can perform this action").WithReason("NotAdmin")
}

// Load fetches the group addressed by ref. A kind mismatch is reported as not
// found.
func Load(ctx context.Context, store Store, tx *gorm.DB, ref types.GroupRef) (*models.GroupRecord, error) {
	if !ref.Valid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group kind and id are required")
	}
	group, err := store.FindByID(ctx, tx, ref.ID)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, NotFound(ref)
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load group").WithReason("RemoteOperationFailed")
	}
	if group.Kind != ref.Kind {
		return nil, NotFound(ref)
	}
	return group, nil
}

// Member loads the group and requires the actor to belong to it.
func Member(ctx context.Context, store Store, tx *gorm.DB, ref types.GroupRef, actor session.Actor) (*models.GroupRecord, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	group, err := Load(ctx, store, tx, ref)
	if err != nil {
		return nil, err
	}
	if group.IsAdmin(actor.UserID) {
		return group, nil
	}
	ok, err := store.IsMember(ctx, tx, group.ID, actor.UserID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check membership").WithReason("RemoteOperationFailed")
	}
	if !ok {
		return nil, NotAMember()
	}
	return group, nil
}

// Admin loads the group and requires the actor to be its admin. Non-members
// get NotAMember rather than NotAdmin.
func Admin(ctx context.Context, store Store, tx *gorm.DB, ref types.GroupRef, actor session.Actor) (*models.GroupRecord, error) {
	group, err := Member(ctx, store, tx, ref, actor)
	if err != nil {
		return nil, err
	}
	if !group.IsAdmin(actor.UserID) {
		return nil, NotAdmin()
	}
	return group, nil
}
