package enums

import (
	"fmt"
	"strings"
)

// GroupKind distinguishes construction sites from retail stores. Both share the
// same record shape and live in group_records.
type GroupKind string

const (
	GroupKindSite  GroupKind = "site"
	GroupKindStore GroupKind = "store"
)

var validGroupKinds = []GroupKind{
	GroupKindSite,
	GroupKindStore,
}

// String implements fmt.Stringer.
func (k GroupKind) String() string {
	return string(k)
}

// IsValid reports whether the value is a known GroupKind.
func (k GroupKind) IsValid() bool {
	for _, candidate := range validGroupKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// Collection returns the plural form used in URLs ("sites", "stores").
func (k GroupKind) Collection() string {
	return string(k) + "s"
}

// ParseGroupKind accepts the singular or plural form, case-insensitively.
func ParseGroupKind(value string) (GroupKind, error) {
	v := strings.ToLower(strings.TrimSpace(value))
	v = strings.TrimSuffix(v, "s")
	for _, candidate := range validGroupKinds {
		if string(candidate) == v {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid group kind %q", value)
}
