// Package messages owns the per-group message log: append, ordered reads,
// admin deletion and live fan-out to subscribers.
package messages

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/oneman/oneman-backend/internal/session"
	"github.com/oneman/oneman-backend/pkg/db/models"
	"github.com/oneman/oneman-backend/pkg/enums"
	"github.com/oneman/oneman-backend/pkg/types"
)

// MaxTextLength bounds a text message in runes.
const MaxTextLength = 4000

var (
	ErrEmptyText       = errors.New("message text is required")
	ErrTextTooLong     = fmt.Errorf("message text exceeds %d characters", MaxTextLength)
	ErrInvalidImageURL = errors.New("image url must be an absolute https url")
	ErrInvalidMaterial = errors.New("material message needs a name, unit and non-zero amount")
	ErrUnknownType     = errors.New("unknown message type")
)

// Payload is the closed set of message variants: Text, Image and Material.
type Payload interface {
	Type() enums.MessageType
	Validate() error
	apply(row *models.GroupMessage)
}

// Text is a chat or system line.
type Text struct {
	Body string
}

func (Text) Type() enums.MessageType { return enums.MessageTypeText }

func (t Text) Validate() error {
	body := strings.TrimSpace(t.Body)
	if body == "" {
		return ErrEmptyText
	}
	if len([]rune(body)) > MaxTextLength {
		return ErrTextTooLong
	}
	return nil
}

func (t Text) apply(row *models.GroupMessage) {
	body := strings.TrimSpace(t.Body)
	row.Text = &body
}

// Image references an uploaded picture by its CDN url.
type Image struct {
	URL string
}

func (Image) Type() enums.MessageType { return enums.MessageTypeImage }

func (i Image) Validate() error {
	u, err := url.Parse(strings.TrimSpace(i.URL))
	if err != nil || u.Scheme != "https" || u.Host == "" {
		return ErrInvalidImageURL
	}
	return nil
}

func (i Image) apply(row *models.GroupMessage) {
	link := strings.TrimSpace(i.URL)
	row.ImageURL = &link
}

// Material documents a ledger mutation. Negative amounts record removals.
type Material struct {
	Event types.MaterialEvent
}

func (Material) Type() enums.MessageType { return enums.MessageTypeMaterial }

func (m Material) Validate() error {
	if strings.TrimSpace(m.Event.Name) == "" || strings.TrimSpace(m.Event.Unit) == "" || m.Event.Amount.IsZero() {
		return ErrInvalidMaterial
	}
	return nil
}

func (m Material) apply(row *models.GroupMessage) {
	event := m.Event
	row.Material = &event
}

// Author is the sender snapshot stored with each message.
type Author struct {
	UserID   string
	Name     string
	PhotoURL *string
}

// AuthorFromActor snapshots the acting user.
func AuthorFromActor(actor session.Actor) Author {
	return Author{UserID: actor.UserID, Name: actor.DisplayName(), PhotoURL: actor.Photo()}
}

// SystemAuthor is used for membership notices.
func SystemAuthor() Author {
	return Author{UserID: session.SystemUserID, Name: session.SystemUserName}
}

// Message is the read model returned to clients.
type Message struct {
	ID           uuid.UUID            `json:"id"`
	GroupID      uuid.UUID            `json:"groupId"`
	Type         enums.MessageType    `json:"type"`
	Timestamp    time.Time            `json:"timestamp"`
	UserID       string               `json:"userId"`
	UserName     string               `json:"userName"`
	UserPhotoURL *string              `json:"userPhotoURL,omitempty"`
	Text         *string              `json:"text,omitempty"`
	ImageURL     *string              `json:"imageURL,omitempty"`
	Material     *types.MaterialEvent `json:"materialData,omitempty"`
}

// IsSystem reports whether the platform wrote the message.
func (m Message) IsSystem() bool {
	return m.UserID == session.SystemUserID
}

func newRow(groupID uuid.UUID, author Author, payload Payload, now time.Time) (*models.GroupMessage, error) {
	if payload == nil {
		return nil, ErrUnknownType
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	row := &models.GroupMessage{
		GroupID:      groupID,
		Type:         payload.Type(),
		SentAt:       now.UTC(),
		UserID:       author.UserID,
		UserName:     author.Name,
		UserPhotoURL: author.PhotoURL,
	}
	payload.apply(row)
	return row, nil
}

// Decode rebuilds the payload of a stored row and checks it is consistent
// with its type tag.
func Decode(row models.GroupMessage) (Payload, error) {
	var payload Payload
	switch row.Type {
	case enums.MessageTypeText:
		if row.Text == nil {
			return nil, ErrEmptyText
		}
		payload = Text{Body: *row.Text}
	case enums.MessageTypeImage:
		if row.ImageURL == nil {
			return nil, ErrInvalidImageURL
		}
		payload = Image{URL: *row.ImageURL}
	case enums.MessageTypeMaterial:
		if row.Material == nil {
			return nil, ErrInvalidMaterial
		}
		payload = Material{Event: *row.Material}
	default:
		return nil, fmt.Errorf("%w %q", ErrUnknownType, row.Type)
	}
	if err := payload.Validate(); err != nil {
		return nil, err
	}
	return payload, nil
}

// FromModel maps a stored row to the read model.
func FromModel(row models.GroupMessage) Message {
	return Message{
		ID:           row.ID,
		GroupID:      row.GroupID,
		Type:         row.Type,
		Timestamp:    row.SentAt,
		UserID:       row.UserID,
		UserName:     row.UserName,
		UserPhotoURL: row.UserPhotoURL,
		Text:         row.Text,
		ImageURL:     row.ImageURL,
		Material:     row.Material,
	}
}
