// Package session carries the authenticated actor through service calls.
package session

import (
	"strings"

	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
)

// SystemUserID and SystemUserName mark messages written by the platform.
const (
	SystemUserID   = "system"
	SystemUserName = "System"
)

// Actor is the user performing an operation, as asserted by the identity token.
type Actor struct {
	UserID   string
	Email    string
	Name     string
	PhotoURL string
}

// DisplayName falls back to the email local part when no name is known.
func (a Actor) DisplayName() string {
	if name := strings.TrimSpace(a.Name); name != "" {
		return name
	}
	if at := strings.Index(a.Email, "@"); at > 0 {
		return a.Email[:at]
	}
	if a.Email != "" {
		return a.Email
	}
	return "Anonymous"
}

// Photo returns the photo URL as a nullable column value.
func (a Actor) Photo() *string {
	if strings.TrimSpace(a.PhotoURL) == "" {
		return nil
	}
	photo := a.PhotoURL
	return &photo
}

// Validate rejects anonymous actors.
func (a Actor) Validate() error {
	if strings.TrimSpace(a.UserID) == "" {
		return pkgerrors.New(pkgerrors.CodeUnauthorized, "actor is required")
	}
	if a.UserID == SystemUserID {
		return pkgerrors.New(pkgerrors.CodeForbidden, "reserved user id")
	}
	return nil
}
