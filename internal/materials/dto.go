package materials

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oneman/oneman-backend/pkg/db/models"
	"github.com/oneman/oneman-backend/pkg/enums"
	"github.com/oneman/oneman-backend/pkg/types"
)

// AddInput adds material to Group. With Source set the material is moved out
// of that group instead of appearing from nowhere.
type AddInput struct {
	Group  types.GroupRef
	Name   string
	Unit   string
	Amount decimal.Decimal
	Source *types.GroupRef
}

// RemoveInput takes material out of Group. The entry is addressed by EntryID
// or by Name and Unit. With Destination set the material moves there.
type RemoveInput struct {
	Group       types.GroupRef
	EntryID     string
	Name        string
	Unit        string
	Amount      decimal.Decimal
	Destination *types.GroupRef
}

// TransferInput moves material from Source to Destination.
type TransferInput struct {
	Source      types.GroupRef
	Destination types.GroupRef
	EntryID     string
	Name        string
	Unit        string
	Amount      decimal.Decimal
}

// LedgerView is a group's ledger at a version.
type LedgerView struct {
	GroupID   uuid.UUID            `json:"groupId"`
	Kind      enums.GroupKind      `json:"kind"`
	Name      string               `json:"name"`
	Version   int64                `json:"version"`
	Materials types.MaterialLedger `json:"materials"`
}

func ledgerView(group *models.GroupRecord, ledger types.MaterialLedger, version int64) LedgerView {
	if ledger == nil {
		ledger = types.MaterialLedger{}
	}
	return LedgerView{
		GroupID:   group.ID,
		Kind:      group.Kind,
		Name:      group.Name,
		Version:   version,
		Materials: ledger,
	}
}

// TransferView is a transfer record as returned to clients.
type TransferView struct {
	ID            uuid.UUID            `json:"id"`
	SourceGroupID uuid.UUID            `json:"sourceGroupId"`
	SourceKind    enums.GroupKind      `json:"sourceKind"`
	DestGroupID   uuid.UUID            `json:"destGroupId"`
	DestKind      enums.GroupKind      `json:"destKind"`
	Name          string               `json:"name"`
	Unit          string               `json:"unit"`
	Amount        decimal.Decimal      `json:"amount"`
	ActorID       string               `json:"actorId"`
	Status        enums.TransferStatus `json:"status"`
	FailureReason *string              `json:"failureReason,omitempty"`
	CommittedAt   *time.Time           `json:"committedAt,omitempty"`
	CreatedAt     time.Time            `json:"createdAt"`
}

// FromTransferModel maps a stored transfer.
func FromTransferModel(m models.MaterialTransfer) TransferView {
	return TransferView{
		ID:            m.ID,
		SourceGroupID: m.SourceGroupID,
		SourceKind:    m.SourceKind,
		DestGroupID:   m.DestGroupID,
		DestKind:      m.DestKind,
		Name:          m.Name,
		Unit:          m.Unit,
		Amount:        m.Amount,
		ActorID:       m.ActorID,
		Status:        m.Status,
		FailureReason: m.FailureReason,
		CommittedAt:   m.CommittedAt,
		CreatedAt:     m.CreatedAt,
	}
}

// Result is returned by every ledger mutation. Ledger is the group the request
// addressed; Counterpart is the other side of a transfer.
type Result struct {
	Ledger      LedgerView    `json:"ledger"`
	Counterpart *LedgerView   `json:"counterpart,omitempty"`
	Transfer    *TransferView `json:"transfer,omitempty"`
}

// GroupCatalog lists what a group's selected companies supply.
type GroupCatalog struct {
	Category  *string       `json:"category,omitempty"`
	Companies []string      `json:"companies"`
	Items     []CatalogItem `json:"items"`
}
