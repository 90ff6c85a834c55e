package enums

import "fmt"

// OutboxAggregateType names the aggregate an outbox event belongs to.
type OutboxAggregateType string

const (
	AggregateGroup    OutboxAggregateType = "group"
	AggregateTransfer OutboxAggregateType = "material_transfer"
)

var validAggregateTypes = []OutboxAggregateType{
	AggregateGroup,
	AggregateTransfer,
}

// IsValid reports whether the value is a known aggregate type.
func (a OutboxAggregateType) IsValid() bool {
	for _, candidate := range validAggregateTypes {
		if candidate == a {
			return true
		}
	}
	return false
}

// OutboxEventType is the event_type column of outbox_events.
type OutboxEventType string

const (
	EventGroupCreated        OutboxEventType = "group_created"
	EventGroupUpdated        OutboxEventType = "group_updated"
	EventMemberAdded         OutboxEventType = "member_added"
	EventMemberRemoved       OutboxEventType = "member_removed"
	EventMessageCreated      OutboxEventType = "message_created"
	EventMessageDeleted      OutboxEventType = "message_deleted"
	EventMaterialAdded       OutboxEventType = "material_added"
	EventMaterialRemoved     OutboxEventType = "material_removed"
	EventMaterialTransferred OutboxEventType = "material_transferred"
)

var validOutboxEventTypes = []OutboxEventType{
	EventGroupCreated,
	EventGroupUpdated,
	EventMemberAdded,
	EventMemberRemoved,
	EventMessageCreated,
	EventMessageDeleted,
	EventMaterialAdded,
	EventMaterialRemoved,
	EventMaterialTransferred,
}

// IsValid reports whether the value is a known event type.
func (e OutboxEventType) IsValid() bool {
	for _, candidate := range validOutboxEventTypes {
		if candidate == e {
			return true
		}
	}
	return false
}

// IsLedgerEvent reports whether the event documents a material ledger change.
func (e OutboxEventType) IsLedgerEvent() bool {
	switch e {
	case EventMaterialAdded, EventMaterialRemoved, EventMaterialTransferred:
		return true
	}
	return false
}

// ParseOutboxEventType converts raw input into OutboxEventType.
func ParseOutboxEventType(value string) (OutboxEventType, error) {
	for _, candidate := range validOutboxEventTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid outbox event type %q", value)
}
