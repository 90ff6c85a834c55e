package types

import (
	"github.com/google/uuid"

	"github.com/oneman/oneman-backend/pkg/enums"
)

// GroupRef addresses a site or store. The kind is part of the address so a
// store id requested under /sites is treated as missing.
type GroupRef struct {
	Kind enums.GroupKind `json:"kind"`
	ID   uuid.UUID       `json:"id"`
}

// Valid reports whether both parts are set.
func (r GroupRef) Valid() bool {
	return r.Kind.IsValid() && r.ID != uuid.Nil
}

func (r GroupRef) String() string {
	return r.Kind.Collection() + "/" + r.ID.String()
}
