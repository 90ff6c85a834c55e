// Package materials implements the material ledger of sites and stores:
// pure ledger arithmetic, the transactional service around it, the material
// set catalog and the add/remove submission flow.
package materials

import (
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/oneman/oneman-backend/pkg/types"
)

// Entries are matched by (name, unit) after trimming. Ids are only used to
// resolve a caller's reference to an entry.
func sameKey(entry types.MaterialEntry, name, unit string) bool {
	return entry.Name == name && entry.Unit == unit
}

func cleanKey(name, unit string) (string, string, error) {
	name = strings.TrimSpace(name)
	unit = strings.TrimSpace(unit)
	if name == "" || unit == "" {
		return "", "", ErrInvalidMaterial
	}
	return name, unit, nil
}

// Find returns the index of the entry matching (name, unit), or -1.
func Find(ledger types.MaterialLedger, name, unit string) int {
	name, unit = strings.TrimSpace(name), strings.TrimSpace(unit)
	for i, entry := range ledger {
		if sameKey(entry, name, unit) {
			return i
		}
	}
	return -1
}

// FindByID returns the entry with the given id.
func FindByID(ledger types.MaterialLedger, entryID string) (types.MaterialEntry, bool) {
	for _, entry := range ledger {
		if entry.ID == entryID {
			return entry, true
		}
	}
	return types.MaterialEntry{}, false
}

// Add merges amount into the (name, unit) entry or appends a new one. The
// input ledger is not modified.
func Add(ledger types.MaterialLedger, name, unit string, amount decimal.Decimal, location string) (types.MaterialLedger, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	name, unit, err := cleanKey(name, unit)
	if err != nil {
		return nil, err
	}
	next := ledger.Clone()
	if i := Find(next, name, unit); i >= 0 {
		next[i].Amount = next[i].Amount.Add(amount)
		if location != "" {
			next[i].Location = location
		}
		return next, nil
	}
	return append(next, types.MaterialEntry{
		ID:       uuid.NewString(),
		Name:     name,
		Unit:     unit,
		Amount:   amount,
		Location: location,
	}), nil
}

// Remove decrements the entry identified by entryID. The id is resolved once
// and the decrement is applied by (name, unit), so a ledger holding a stale
// duplicate still converges.
func Remove(ledger types.MaterialLedger, entryID string, amount decimal.Decimal) (types.MaterialLedger, error) {
	entry, ok := FindByID(ledger, entryID)
	if !ok {
		return nil, ErrMaterialNotFound
	}
	return RemoveByKey(ledger, entry.Name, entry.Unit, amount)
}

// RemoveByKey decrements the (name, unit) entry and drops it once it reaches
// zero.
func RemoveByKey(ledger types.MaterialLedger, name, unit string, amount decimal.Decimal) (types.MaterialLedger, error) {
	if !amount.IsPositive() {
		return nil, ErrInvalidAmount
	}
	name, unit, err := cleanKey(name, unit)
	if err != nil {
		return nil, err
	}
	next := Normalize(ledger)
	i := Find(next, name, unit)
	if i < 0 {
		return nil, ErrMaterialNotFound
	}
	if amount.GreaterThan(next[i].Amount) {
		return nil, ErrInsufficientQuantity
	}
	next[i].Amount = next[i].Amount.Sub(amount)
	if !next[i].Amount.IsPositive() {
		next = append(next[:i], next[i+1:]...)
	}
	return next, nil
}

// Transfer removes amount of (name, unit) from source and adds it to dest.
// Neither input is modified; on error both outputs are nil.
func Transfer(source, dest types.MaterialLedger, name, unit string, amount decimal.Decimal, destLocation string) (types.MaterialLedger, types.MaterialLedger, error) {
	nextSource, err := RemoveByKey(source, name, unit, amount)
	if err != nil {
		return nil, nil, err
	}
	nextDest, err := Add(dest, name, unit, amount, destLocation)
	if err != nil {
		return nil, nil, err
	}
	return nextSource, nextDest, nil
}

// Normalize coalesces entries sharing (name, unit) into the first occurrence
// and drops entries whose amount is not positive. The result is a fresh slice.
func Normalize(ledger types.MaterialLedger) types.MaterialLedger {
	out := make(types.MaterialLedger, 0, len(ledger))
	index := make(map[[2]string]int, len(ledger))
	for _, entry := range ledger {
		key := [2]string{strings.TrimSpace(entry.Name), strings.TrimSpace(entry.Unit)}
		if i, ok := index[key]; ok {
			out[i].Amount = out[i].Amount.Add(entry.Amount)
			continue
		}
		entry.Name, entry.Unit = key[0], key[1]
		index[key] = len(out)
		out = append(out, entry)
	}
	kept := out[:0]
	for _, entry := range out {
		if entry.Amount.IsPositive() {
			kept = append(kept, entry)
		}
	}
	return kept
}

// Balance returns the held amount of (name, unit), zero when absent.
func Balance(ledger types.MaterialLedger, name, unit string) decimal.Decimal {
	if i := Find(ledger, name, unit); i >= 0 {
		return ledger[i].Amount
	}
	return decimal.Zero
}
