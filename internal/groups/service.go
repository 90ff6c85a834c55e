// Package groups manages sites and stores: creation, settings and membership.
package groups

import (
	"context"
	"errors"
	"net/url"
	"strings"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/internal/access"
	"github.com/oneman/oneman-backend/internal/materials"
	"github.com/oneman/oneman-backend/internal/messages"
	"github.com/oneman/oneman-backend/internal/session"
	"github.com/oneman/oneman-backend/pkg/db/models"
	"github.com/oneman/oneman-backend/pkg/enums"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/logger"
	"github.com/oneman/oneman-backend/pkg/outbox"
	"github.com/oneman/oneman-backend/pkg/outbox/payloads"
	"github.com/oneman/oneman-backend/pkg/types"
)

const (
	maxNameLength     = 120
	maxLocationLength = 200

	removedMemberText = "A member was removed from the group"
)

func addedMemberText(email string) string {
	return email + " was added to the group"
}

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type messageLog interface {
	AppendTx(ctx context.Context, tx *gorm.DB, ref types.GroupRef, author messages.Author, payload messages.Payload) (*messages.Message, error)
	Broadcast(ctx context.Context, created ...messages.Message)
}

type userDirectory interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	FindByEmail(ctx context.Context, email string) (*models.User, error)
}

// Service manages group records and their members.
type Service interface {
	Create(ctx context.Context, actor session.Actor, input CreateInput) (*GroupDTO, error)
	Get(ctx context.Context, actor session.Actor, ref types.GroupRef) (*GroupDTO, error)
	ListMine(ctx context.Context, actor session.Actor, kind enums.GroupKind, exclude uuid.UUID) ([]GroupSummary, error)
	UpdateSettings(ctx context.Context, actor session.Actor, ref types.GroupRef, input UpdateInput) (*GroupDTO, error)
	ListMembers(ctx context.Context, actor session.Actor, ref types.GroupRef) ([]MemberDTO, error)
	AddMember(ctx context.Context, actor session.Actor, ref types.GroupRef, userID string) (*MembershipResult, error)
	AddMemberByEmail(ctx context.Context, actor session.Actor, ref types.GroupRef, email string) (*MembershipResult, error)
	RemoveMember(ctx context.Context, actor session.Actor, ref types.GroupRef, userID string) error
}

// ServiceParams groups the group service dependencies.
type ServiceParams struct {
	Repo     *Repository
	Users    userDirectory
	Tx       txRunner
	Messages messageLog
	Outbox   outboxPublisher
	Logger   *logger.Logger
	Catalog  *materials.Catalog
}

type service struct {
	repo     *Repository
	users    userDirectory
	tx       txRunner
	messages messageLog
	outbox   outboxPublisher
	logg     *logger.Logger
	catalog  materials.Catalog
}

// NewService validates dependencies and builds the group service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group repo is required")
	}
	if params.Users == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user directory is required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction runner is required")
	}
	if params.Messages == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message log is required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outbox emitter is required")
	}
	catalog := materials.DefaultCatalog()
	if params.Catalog != nil {
		catalog = *params.Catalog
	}
	return &service{
		repo:     params.Repo,
		users:    params.Users,
		tx:       params.Tx,
		messages: params.Messages,
		outbox:   params.Outbox,
		logg:     params.Logger,
		catalog:  catalog,
	}, nil
}

// Create stores a new group with the actor as admin and sole member.
func (s *service) Create(ctx context.Context, actor session.Actor, input CreateInput) (*GroupDTO, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	group, err := s.newGroup(actor, input)
	if err != nil {
		return nil, err
	}

	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.Create(ctx, tx, group); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "create group").WithReason("RemoteOperationFailed")
		}
		adder := actor.UserID
		if _, err := s.repo.AddMember(ctx, tx, &models.GroupMember{GroupID: group.ID, UserID: actor.UserID, AddedBy: &adder}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add admin membership").WithReason("RemoteOperationFailed")
		}
		return s.emitGroupChanged(ctx, tx, enums.EventGroupCreated, actor, group)
	})
	if err != nil {
		return nil, err
	}

	if s.logg != nil {
		s.logg.Info(s.logg.WithGroup(ctx, group.Kind.String(), group.ID.String()), "group created")
	}
	return toDTO(group, []string{actor.UserID}, group.Materials, actor.UserID), nil
}

func (s *service) newGroup(actor session.Actor, input CreateInput) (*models.GroupRecord, error) {
	if !input.Kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "kind must be site or store")
	}
	name, err := cleanText("name", input.Name, maxNameLength)
	if err != nil {
		return nil, err
	}
	location, err := cleanText("location", input.Location, maxLocationLength)
	if err != nil {
		return nil, err
	}
	photo, err := cleanPhotoURL(input.PhotoURL)
	if err != nil {
		return nil, err
	}
	companies := normalizeCompanies(input.Companies)
	category := strings.ToLower(strings.TrimSpace(input.Category))
	if err := s.catalog.ValidateSelection(category, companies); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error())
	}

	group := &models.GroupRecord{
		Kind:      input.Kind,
		Name:      name,
		Location:  location,
		PhotoURL:  photo,
		AdminID:   actor.UserID,
		Companies: companies,
		Materials: types.MaterialLedger{},
	}
	if category != "" {
		group.Category = &category
	}
	return group, nil
}

// Get loads a group the actor belongs to.
func (s *service) Get(ctx context.Context, actor session.Actor, ref types.GroupRef) (*GroupDTO, error) {
	group, err := access.Member(ctx, s.repo, nil, ref, actor)
	if err != nil {
		return nil, err
	}
	members, err := s.repo.MemberIDs(ctx, nil, group.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load members").WithReason("RemoteOperationFailed")
	}
	return toDTO(group, members, materials.Normalize(group.Materials), actor.UserID), nil
}

// ListMine lists the actor's groups. exclude drops one group, which the
// source picker uses to hide the group being edited.
func (s *service) ListMine(ctx context.Context, actor session.Actor, kind enums.GroupKind, exclude uuid.UUID) ([]GroupSummary, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if kind != "" && !kind.IsValid() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "kind must be site or store")
	}
	rows, err := s.repo.ListForUser(ctx, actor.UserID, kind)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list groups").WithReason("RemoteOperationFailed")
	}
	out := make([]GroupSummary, 0, len(rows))
	for _, row := range rows {
		if row.ID == exclude {
			continue
		}
		out = append(out, GroupSummary{
			ID:            row.ID,
			Kind:          row.Kind,
			Name:          row.Name,
			Location:      row.Location,
			PhotoURL:      row.PhotoURL,
			AdminID:       row.AdminID,
			MemberCount:   row.MemberCount,
			MaterialCount: len(materials.Normalize(row.Materials)),
			IsAdmin:       row.AdminID == actor.UserID,
			CreatedAt:     row.CreatedAt,
		})
	}
	return out, nil
}

// UpdateSettings edits name, location and photo. Admin only.
func (s *service) UpdateSettings(ctx context.Context, actor session.Actor, ref types.GroupRef, input UpdateInput) (*GroupDTO, error) {
	group, err := access.Admin(ctx, s.repo, nil, ref, actor)
	if err != nil {
		return nil, err
	}
	updates := map[string]any{}
	if input.Name != nil {
		name, err := cleanText("name", *input.Name, maxNameLength)
		if err != nil {
			return nil, err
		}
		updates["name"] = name
		group.Name = name
	}
	if input.Location != nil {
		location, err := cleanText("location", *input.Location, maxLocationLength)
		if err != nil {
			return nil, err
		}
		updates["location"] = location
		group.Location = location
	}
	if input.PhotoURL != nil {
		photo, err := cleanPhotoURL(input.PhotoURL)
		if err != nil {
			return nil, err
		}
		updates["photo_url"] = photo
		group.PhotoURL = photo
	}
	if len(updates) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "nothing to update")
	}

	var members []string
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		if err := s.repo.UpdateSettings(ctx, tx, group.ID, updates); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "update group").WithReason("RemoteOperationFailed")
		}
		if err := s.emitGroupChanged(ctx, tx, enums.EventGroupUpdated, actor, group); err != nil {
			return err
		}
		ids, err := s.repo.MemberIDs(ctx, tx, group.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load members").WithReason("RemoteOperationFailed")
		}
		members = ids
		return nil
	})
	if err != nil {
		return nil, err
	}
	return toDTO(group, members, materials.Normalize(group.Materials), actor.UserID), nil
}

// ListMembers returns members with their profiles.
func (s *service) ListMembers(ctx context.Context, actor session.Actor, ref types.GroupRef) ([]MemberDTO, error) {
	group, err := access.Member(ctx, s.repo, nil, ref, actor)
	if err != nil {
		return nil, err
	}
	rows, err := s.repo.ListMembers(ctx, group.ID)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list members").WithReason("RemoteOperationFailed")
	}
	out := make([]MemberDTO, 0, len(rows))
	for _, row := range rows {
		out = append(out, MemberDTO{
			UserID:      row.UserID,
			Username:    row.Username,
			Email:       row.Email,
			DisplayName: row.DisplayName,
			PhotoURL:    row.PhotoURL,
			IsAdmin:     group.IsAdmin(row.UserID),
			JoinedAt:    row.JoinedAt,
		})
	}
	return out, nil
}

// AddMember adds a registered user. Adding an existing member changes
// nothing and posts no notice.
func (s *service) AddMember(ctx context.Context, actor session.Actor, ref types.GroupRef, userID string) (*MembershipResult, error) {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	if userID == session.SystemUserID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reserved user id")
	}
	group, err := access.Admin(ctx, s.repo, nil, ref, actor)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByID(ctx, userID)
	if err != nil {
		return nil, userLookupError(err)
	}
	return s.addMember(ctx, actor, ref, group, user)
}

// AddMemberByEmail adds the registered user owning email, matched without
// regard to case.
func (s *service) AddMemberByEmail(ctx context.Context, actor session.Actor, ref types.GroupRef, email string) (*MembershipResult, error) {
	email = strings.TrimSpace(email)
	if email == "" || !strings.Contains(email, "@") {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "a valid email is required")
	}
	group, err := access.Admin(ctx, s.repo, nil, ref, actor)
	if err != nil {
		return nil, err
	}
	user, err := s.users.FindByEmail(ctx, email)
	if err != nil {
		return nil, userLookupError(err)
	}
	if user.ID == session.SystemUserID {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "reserved user id")
	}
	return s.addMember(ctx, actor, ref, group, user)
}

func userLookupError(err error) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found").WithReason("NotFound")
	}
	return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user").WithReason("RemoteOperationFailed")
}

func (s *service) addMember(ctx context.Context, actor session.Actor, ref types.GroupRef, group *models.GroupRecord, user *models.User) (*MembershipResult, error) {
	result := &MembershipResult{}
	var notice *messages.Message
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.repo.MemberIDs(ctx, tx, group.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load members").WithReason("RemoteOperationFailed")
		}
		next := AddMember(current, user.ID)
		result.Members = next
		if len(next) == len(current) {
			return nil
		}
		adder := actor.UserID
		created, err := s.repo.AddMember(ctx, tx, &models.GroupMember{GroupID: group.ID, UserID: user.ID, AddedBy: &adder})
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "add member").WithReason("RemoteOperationFailed")
		}
		if !created {
			result.Members = current
			return nil
		}
		result.Added = true
		notice, err = s.messages.AppendTx(ctx, tx, ref, messages.SystemAuthor(), messages.Text{Body: addedMemberText(user.Email)})
		if err != nil {
			return err
		}
		return s.emitMembership(ctx, tx, enums.EventMemberAdded, actor, group, user.ID, user.Email)
	})
	if err != nil {
		return nil, err
	}
	if notice != nil {
		s.messages.Broadcast(ctx, *notice)
	}
	return result, nil
}

// RemoveMember removes a member. The admin cannot be removed; removing a
// non-member changes nothing.
func (s *service) RemoveMember(ctx context.Context, actor session.Actor, ref types.GroupRef, userID string) error {
	userID = strings.TrimSpace(userID)
	if userID == "" {
		return pkgerrors.New(pkgerrors.CodeValidation, "user id is required")
	}
	group, err := access.Admin(ctx, s.repo, nil, ref, actor)
	if err != nil {
		return err
	}

	var notice *messages.Message
	err = s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		current, err := s.repo.MemberIDs(ctx, tx, group.ID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load members").WithReason("RemoteOperationFailed")
		}
		if _, err := RemoveMember(current, group.AdminID, userID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeStateConflict, err, "the admin cannot be removed").WithReason("CannotRemoveAdmin")
		}
		if !contains(current, userID) {
			return nil
		}
		removed, err := s.repo.RemoveMember(ctx, tx, group.ID, userID)
		if err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "remove member").WithReason("RemoteOperationFailed")
		}
		if !removed {
			return nil
		}
		notice, err = s.messages.AppendTx(ctx, tx, ref, messages.SystemAuthor(), messages.Text{Body: removedMemberText})
		if err != nil {
			return err
		}
		return s.emitMembership(ctx, tx, enums.EventMemberRemoved, actor, group, userID, "")
	})
	if err != nil {
		return err
	}
	if notice != nil {
		s.messages.Broadcast(ctx, *notice)
	}
	return nil
}

func (s *service) emitGroupChanged(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, actor session.Actor, group *models.GroupRecord) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateGroup,
		AggregateID:   group.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Email: actor.Email},
		Data: payloads.GroupChangedEvent{
			GroupID:  group.ID,
			Kind:     group.Kind,
			Name:     group.Name,
			Location: group.Location,
			AdminID:  group.AdminID,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue group event")
	}
	return nil
}

func (s *service) emitMembership(ctx context.Context, tx *gorm.DB, eventType enums.OutboxEventType, actor session.Actor, group *models.GroupRecord, userID, email string) error {
	err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateGroup,
		AggregateID:   group.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Email: actor.Email},
		Data: payloads.MembershipChangedEvent{
			GroupID: group.ID,
			Kind:    group.Kind,
			UserID:  userID,
			Email:   email,
		},
	})
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue membership event")
	}
	return nil
}

func cleanText(field, value string, max int) (string, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s is required", field)
	}
	if len([]rune(value)) > max {
		return "", pkgerrors.Newf(pkgerrors.CodeValidation, "%s must be at most %d characters", field, max)
	}
	return value, nil
}

// cleanPhotoURL returns nil for an absent or blank url.
func cleanPhotoURL(raw *string) (*string, error) {
	if raw == nil || strings.TrimSpace(*raw) == "" {
		return nil, nil
	}
	value := strings.TrimSpace(*raw)
	u, err := url.Parse(value)
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "photo url must be an absolute https url")
	}
	return &value, nil
}

func normalizeCompanies(companies []string) []string {
	seen := map[string]bool{}
	out := make([]string, 0, len(companies))
	for _, c := range companies {
		c = strings.ToLower(strings.TrimSpace(c))
		if c == "" || seen[c] {
			continue
		}
		seen[c] = true
		out = append(out, c)
	}
	return out
}

