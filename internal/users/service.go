// Package users is the directory of registered accounts: profile upsert on
// sign-in and the member lookup used when adding people to a group.
package users

import (
	"context"
	"errors"
	"net/url"
	"strings"
	"unicode/utf8"

	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/internal/session"
	"github.com/oneman/oneman-backend/pkg/db/models"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/logger"
)

const (
	// MinSearchLength is the shortest term that reaches the database.
	MinSearchLength = 2
	// MaxSearchResults caps a single lookup.
	MaxSearchResults = 10

	maxUsernameLength = 64
)

type directoryStore interface {
	FindByID(ctx context.Context, id string) (*models.User, error)
	Search(ctx context.Context, column, term string, limit int) ([]models.User, error)
	Upsert(ctx context.Context, user *models.User, columns ...string) error
}

// Service exposes the user directory.
type Service interface {
	Search(ctx context.Context, field SearchField, term string) ([]UserDTO, error)
	Me(ctx context.Context, actor session.Actor) (*UserDTO, error)
	UpsertProfile(ctx context.Context, actor session.Actor, input ProfileInput) (*UserDTO, error)
}

// ServiceParams groups the directory dependencies.
type ServiceParams struct {
	Repo   directoryStore
	Logger *logger.Logger
}

type service struct {
	repo directoryStore
	logg *logger.Logger
}

// NewService builds the directory service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "user repo is required")
	}
	return &service{repo: params.Repo, logg: params.Logger}, nil
}

// Search matches term as a case-insensitive substring. Terms shorter than
// MinSearchLength return no results without querying.
func (s *service) Search(ctx context.Context, field SearchField, term string) ([]UserDTO, error) {
	column, ok := field.column()
	if !ok {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "field must be email or username")
	}
	term = strings.TrimSpace(term)
	if utf8.RuneCountInString(term) < MinSearchLength {
		return []UserDTO{}, nil
	}
	rows, err := s.repo.Search(ctx, column, term, MaxSearchResults)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "search users").WithReason("RemoteOperationFailed")
	}
	out := make([]UserDTO, 0, len(rows))
	for i := range rows {
		out = append(out, FromModel(&rows[i]))
	}
	return out, nil
}

// Me returns the caller's directory entry.
func (s *service) Me(ctx context.Context, actor session.Actor) (*UserDTO, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	return s.load(ctx, actor.UserID)
}

// UpsertProfile registers the caller on first sign-in and applies profile
// edits. Email always follows the identity token.
func (s *service) UpsertProfile(ctx context.Context, actor session.Actor, input ProfileInput) (*UserDTO, error) {
	if err := actor.Validate(); err != nil {
		return nil, err
	}
	email := strings.ToLower(strings.TrimSpace(actor.Email))
	if email == "" {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "identity token carries no email")
	}

	user := &models.User{
		ID:          actor.UserID,
		Email:       email,
		Username:    defaultUsername(email),
		DisplayName: optional(actor.Name),
		PhotoURL:    actor.Photo(),
	}
	columns := []string{"email"}
	if input.Username != nil {
		username := strings.TrimSpace(*input.Username)
		if username == "" || utf8.RuneCountInString(username) > maxUsernameLength {
			return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "username must be 1 to %d characters", maxUsernameLength)
		}
		user.Username = username
		columns = append(columns, "username")
	}
	if input.DisplayName != nil {
		user.DisplayName = optional(*input.DisplayName)
		columns = append(columns, "display_name")
	}
	if input.PhotoURL != nil {
		photo := optional(*input.PhotoURL)
		if photo != nil {
			u, err := url.Parse(*photo)
			if err != nil || u.Scheme != "https" || u.Host == "" {
				return nil, pkgerrors.New(pkgerrors.CodeValidation, "photo url must be an absolute https url")
			}
		}
		user.PhotoURL = photo
		columns = append(columns, "photo_url")
	}

	if err := s.repo.Upsert(ctx, user, columns...); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save profile").WithReason("RemoteOperationFailed")
	}
	if s.logg != nil {
		s.logg.Debug(s.logg.WithUserID(ctx, actor.UserID), "profile upserted")
	}
	return s.load(ctx, actor.UserID)
}

func (s *service) load(ctx context.Context, id string) (*UserDTO, error) {
	user, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "user not found").WithReason("NotFound")
		}
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load user").WithReason("RemoteOperationFailed")
	}
	dto := FromModel(user)
	return &dto, nil
}

func defaultUsername(email string) string {
	if at := strings.Index(email, "@"); at > 0 {
		return email[:at]
	}
	return email
}

func optional(value string) *string {
	value = strings.TrimSpace(value)
	if value == "" {
		return nil
	}
	return &value
}
