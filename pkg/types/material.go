package types

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/oneman/oneman-backend/pkg/enums"
)

// MaterialEntry is one quantified material held by a site or store.
type MaterialEntry struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Unit     string          `json:"unit"`
	Amount   decimal.Decimal `json:"amount"`
	Location string          `json:"location"`
}

// MaterialLedger is the ordered material list persisted as JSONB on
// group_records.materials.
type MaterialLedger []MaterialEntry

// Value serializes the ledger to JSON. A nil ledger is stored as an empty array.
func (l MaterialLedger) Value() (driver.Value, error) {
	if l == nil {
		return "[]", nil
	}
	b, err := json.Marshal(l)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan decodes JSONB into the ledger.
func (l *MaterialLedger) Scan(value interface{}) error {
	if value == nil {
		*l = MaterialLedger{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	var decoded MaterialLedger
	if err := json.Unmarshal(raw, &decoded); err != nil {
		return fmt.Errorf("decode material ledger: %w", err)
	}
	if decoded == nil {
		decoded = MaterialLedger{}
	}
	*l = decoded
	return nil
}

// Clone returns a copy that can be mutated without touching the receiver.
func (l MaterialLedger) Clone() MaterialLedger {
	out := make(MaterialLedger, len(l))
	copy(out, l)
	return out
}

// MaterialEvent documents a ledger mutation inside a material message. Amount
// is signed: negative values record removals.
type MaterialEvent struct {
	Name       string                   `json:"name"`
	Amount     decimal.Decimal          `json:"amount"`
	Unit       string                   `json:"unit"`
	Source     string                   `json:"source"`
	SourceType enums.MaterialSourceType `json:"sourceType"`
	SourceID   string                   `json:"sourceId,omitempty"`
}

// Value serializes the event to JSON.
func (e MaterialEvent) Value() (driver.Value, error) {
	b, err := json.Marshal(e)
	if err != nil {
		return nil, err
	}
	return string(b), nil
}

// Scan decodes JSONB into the event.
func (e *MaterialEvent) Scan(value interface{}) error {
	if value == nil {
		*e = MaterialEvent{}
		return nil
	}
	raw, err := asJSON(value)
	if err != nil {
		return err
	}
	return json.Unmarshal(raw, e)
}

func asJSON(value interface{}) ([]byte, error) {
	switch v := value.(type) {
	case []byte:
		return v, nil
	case string:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("unsupported json scan type %T", value)
	}
}
