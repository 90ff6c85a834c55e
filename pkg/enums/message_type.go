package enums

import "fmt"

// MessageType tags the payload variant carried by a group message.
type MessageType string

const (
	MessageTypeText     MessageType = "text"
	MessageTypeImage    MessageType = "image"
	MessageTypeMaterial MessageType = "material"
)

var validMessageTypes = []MessageType{
	MessageTypeText,
	MessageTypeImage,
	MessageTypeMaterial,
}

// String implements fmt.Stringer.
func (m MessageType) String() string {
	return string(m)
}

// IsValid reports whether the value is a known MessageType.
func (m MessageType) IsValid() bool {
	for _, candidate := range validMessageTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// UserPostable reports whether members may post this type directly. Material
// messages are only written by ledger operations.
func (m MessageType) UserPostable() bool {
	return m == MessageTypeText || m == MessageTypeImage
}

// ParseMessageType converts raw input into a MessageType.
func ParseMessageType(value string) (MessageType, error) {
	for _, candidate := range validMessageTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid message type %q", value)
}
