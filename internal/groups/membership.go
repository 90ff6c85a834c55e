package groups

import (
	"errors"

	"github.com/oneman/oneman-backend/pkg/db/models"
)

// ErrCannotRemoveAdmin is returned when the admin would be removed.
var ErrCannotRemoveAdmin = errors.New("the group admin cannot be removed")

// AddMember returns members with userID appended unless already present.
func AddMember(members []string, userID string) []string {
	for _, id := range members {
		if id == userID {
			return append([]string(nil), members...)
		}
	}
	return append(append([]string(nil), members...), userID)
}

// RemoveMember returns members without userID. Removing adminID fails.
func RemoveMember(members []string, adminID, userID string) ([]string, error) {
	if userID == adminID {
		return nil, ErrCannotRemoveAdmin
	}
	out := make([]string, 0, len(members))
	for _, id := range members {
		if id != userID {
			out = append(out, id)
		}
	}
	return out, nil
}

// IsAdmin reports whether userID is the group's admin.
func IsAdmin(group *models.GroupRecord, userID string) bool {
	return group.IsAdmin(userID)
}

func contains(members []string, userID string) bool {
	for _, id := range members {
		if id == userID {
			return true
		}
	}
	return false
}
