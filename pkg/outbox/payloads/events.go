package payloads

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oneman/oneman-backend/pkg/enums"
)

// GroupChangedEvent is emitted when a site or store is created or edited.
type GroupChangedEvent struct {
	GroupID  uuid.UUID       `json:"group_id"`
	Kind     enums.GroupKind `json:"kind"`
	Name     string          `json:"name"`
	Location string          `json:"location"`
	AdminID  string          `json:"admin_id"`
}

// MembershipChangedEvent covers member_added and member_removed.
type MembershipChangedEvent struct {
	GroupID uuid.UUID       `json:"group_id"`
	Kind    enums.GroupKind `json:"kind"`
	UserID  string          `json:"user_id"`
	Email   string          `json:"email,omitempty"`
}

// MessageEvent covers message_created and message_deleted.
type MessageEvent struct {
	GroupID   uuid.UUID         `json:"group_id"`
	Kind      enums.GroupKind   `json:"kind"`
	MessageID uuid.UUID         `json:"message_id"`
	Type      enums.MessageType `json:"type"`
	UserID    string            `json:"user_id"`
	SentAt    time.Time         `json:"sent_at"`
}

// LedgerChangedEvent is emitted for material_added and material_removed.
// Amount is signed.
type LedgerChangedEvent struct {
	GroupID    uuid.UUID                `json:"group_id"`
	Kind       enums.GroupKind          `json:"kind"`
	Name       string                   `json:"name"`
	Unit       string                   `json:"unit"`
	Amount     decimal.Decimal          `json:"amount"`
	Balance    decimal.Decimal          `json:"balance"`
	SourceType enums.MaterialSourceType `json:"source_type"`
	Source     string                   `json:"source"`
	Version    int64                    `json:"version"`
}

// MaterialTransferredEvent is emitted once a transfer commits.
type MaterialTransferredEvent struct {
	TransferID    uuid.UUID       `json:"transfer_id"`
	SourceGroupID uuid.UUID       `json:"source_group_id"`
	SourceKind    enums.GroupKind `json:"source_kind"`
	DestGroupID   uuid.UUID       `json:"dest_group_id"`
	DestKind      enums.GroupKind `json:"dest_kind"`
	Name          string          `json:"name"`
	Unit          string          `json:"unit"`
	Amount        decimal.Decimal `json:"amount"`
}
