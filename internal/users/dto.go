package users

import (
	"time"

	"github.com/oneman/oneman-backend/pkg/db/models"
)

// SearchField selects the column a directory search matches against.
type SearchField string

const (
	FieldEmail    SearchField = "email"
	FieldUsername SearchField = "username"
)

func (f SearchField) column() (string, bool) {
	switch f {
	case "", FieldEmail:
		return "email", true
	case FieldUsername:
		return "username", true
	}
	return "", false
}

// UserDTO is the public view of a directory entry.
type UserDTO struct {
	ID          string    `json:"id"`
	Username    string    `json:"username"`
	Email       string    `json:"email"`
	DisplayName *string   `json:"displayName,omitempty"`
	PhotoURL    *string   `json:"photoURL,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// FromModel maps a directory row.
func FromModel(u *models.User) UserDTO {
	return UserDTO{
		ID:          u.ID,
		Username:    u.Username,
		Email:       u.Email,
		DisplayName: u.DisplayName,
		PhotoURL:    u.PhotoURL,
		CreatedAt:   u.CreatedAt,
	}
}

// ProfileInput edits the caller's profile. Nil fields keep the token's
// values on first sign-in and the stored values afterwards.
type ProfileInput struct {
	Username    *string
	DisplayName *string
	PhotoURL    *string
}
