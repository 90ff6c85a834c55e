package users

import (
	"context"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/oneman/oneman-backend/internal/repo"
	"github.com/oneman/oneman-backend/pkg/db/models"
)

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

// Repository exposes user directory persistence.
type Repository struct {
	repo.Base
}

// NewRepository constructs a users repo bound to the provided GORM DB.
func NewRepository(db *gorm.DB) *Repository {
	return &Repository{Base: repo.NewBase(db)}
}

// FindByID loads a user by identity-provider uid.
func (r *Repository) FindByID(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.DB(ctx).First(&user, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// FindByEmail retrieves the user matching email, compared case-insensitively.
func (r *Repository) FindByEmail(ctx context.Context, email string) (*models.User, error) {
	var user models.User
	err := r.DB(ctx).
		Where("LOWER(email) = ?", strings.ToLower(strings.TrimSpace(email))).
		First(&user).Error
	if err != nil {
		return nil, err
	}
	return &user, nil
}

// Search returns up to limit users whose column contains term, ignoring case.
// column must be a trusted column name.
func (r *Repository) Search(ctx context.Context, column, term string, limit int) ([]models.User, error) {
	pattern := "%" + likeEscaper.Replace(strings.ToLower(term)) + "%"
	var users []models.User
	err := r.DB(ctx).
		Where("LOWER("+column+") LIKE ? ESCAPE '\\'", pattern).
		Order(column + " ASC").
		Order("id ASC").
		Limit(limit).
		Find(&users).Error
	return users, err
}

// Upsert inserts the user or refreshes the listed columns on conflict.
func (r *Repository) Upsert(ctx context.Context, user *models.User, columns ...string) error {
	onConflict := clause.OnConflict{Columns: []clause.Column{{Name: "id"}}}
	if len(columns) == 0 {
		onConflict.DoNothing = true
	} else {
		onConflict.DoUpdates = clause.AssignmentColumns(append(columns, "updated_at"))
	}
	return r.DB(ctx).Clauses(onConflict).Create(user).Error
}
