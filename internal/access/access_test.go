package access

import (
	"context"
	"errors"
	"testing"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/internal/session"
	"github.com/oneman/oneman-backend/pkg/db/models"
	"github.com/oneman/oneman-backend/pkg/enums"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/types"
)

type stubStore struct {
	group   *models.GroupRecord
	members map[string]bool
	findErr error
}

func (s stubStore) FindByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*models.GroupRecord, error) {
	if s.findErr != nil {
		return nil, s.findErr
	}
	if s.group == nil || s.group.ID != id {
		return nil, gorm.ErrRecordNotFound
	}
	return s.group, nil
}

func (s stubStore) IsMember(_ context.Context, _ *gorm.DB, _ uuid.UUID, userID string) (bool, error) {
	return s.members[userID], nil
}

func newStore() (stubStore, types.GroupRef) {
	group := &models.GroupRecord{ID: uuid.New(), Kind: enums.GroupKindSite, AdminID: "admin"}
	return stubStore{group: group, members: map[string]bool{"admin": true, "crew": true}},
		types.GroupRef{Kind: enums.GroupKindSite, ID: group.ID}
}

func TestMember(t *testing.T) {
	store, ref := newStore()
	ctx := context.Background()

	if _, err := Member(ctx, store, nil, ref, session.Actor{UserID: "crew"}); err != nil {
		t.Fatalf("member should pass: %v", err)
	}
	_, err := Member(ctx, store, nil, ref, session.Actor{UserID: "stranger"})
	if !errors.Is(err, ErrNotAMember) || pkgerrors.CodeOf(err) != pkgerrors.CodeForbidden {
		t.Fatalf("expected NotAMember, got %v", err)
	}
	if _, err := Member(ctx, store, nil, ref, session.Actor{}); pkgerrors.CodeOf(err) != pkgerrors.CodeUnauthorized {
		t.Fatalf("expected unauthorized for anonymous actor, got %v", err)
	}
}

func TestLoadKindMismatch(t *testing.T) {
	store, ref := newStore()
	ref.Kind = enums.GroupKindStore
	_, err := Load(context.Background(), store, nil, ref)
	if !errors.Is(err, ErrGroupNotFound) || pkgerrors.CodeOf(err) != pkgerrors.CodeNotFound {
		t.Fatalf("expected not found, got %v", err)
	}
}

func TestLoadStoreFailure(t *testing.T) {
	store, ref := newStore()
	store.findErr = errors.New("connection reset")
	if _, err := Load(context.Background(), store, nil, ref); pkgerrors.CodeOf(err) != pkgerrors.CodeDependency {
		t.Fatalf("expected dependency error, got %v", err)
	}
}

func TestAdmin(t *testing.T) {
	store, ref := newStore()
	ctx := context.Background()
	if _, err := Admin(ctx, store, nil, ref, session.Actor{UserID: "admin"}); err != nil {
		t.Fatalf("admin should pass: %v", err)
	}
	if _, err := Admin(ctx, store, nil, ref, session.Actor{UserID: "crew"}); !errors.Is(err, ErrNotAdmin) {
		t.Fatalf("expected ErrNotAdmin, got %v", err)
	}
	if _, err := Admin(ctx, store, nil, ref, session.Actor{UserID: "stranger"}); !errors.Is(err, ErrNotAMember) {
		t.Fatalf("expected ErrNotAMember for stranger, got %v", err)
	}
}
