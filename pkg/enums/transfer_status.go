package enums

import "fmt"

// TransferStatus tracks a material transfer through its two-phase record.
type TransferStatus string

const (
	TransferStatusPending   TransferStatus = "pending"
	TransferStatusCommitted TransferStatus = "committed"
	TransferStatusFailed    TransferStatus = "failed"
)

var validTransferStatuses = []TransferStatus{
	TransferStatusPending,
	TransferStatusCommitted,
	TransferStatusFailed,
}

func (s TransferStatus) IsValid() bool {
	for _, candidate := range validTransferStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

func ParseTransferStatus(value string) (TransferStatus, error) {
	for _, candidate := range validTransferStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid transfer status %q", value)
}

// MaterialSourceType says where a ledger mutation came from or went to.
type MaterialSourceType string

const (
	MaterialSourceManual MaterialSourceType = "manual"
	MaterialSourceSite   MaterialSourceType = "site"
	MaterialSourceStore  MaterialSourceType = "store"
)

// SourceTypeForKind maps a group kind to the material source type.
func SourceTypeForKind(kind GroupKind) MaterialSourceType {
	switch kind {
	case GroupKindSite:
		return MaterialSourceSite
	case GroupKindStore:
		return MaterialSourceStore
	default:
		return MaterialSourceManual
	}
}
