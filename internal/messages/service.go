package messages

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/internal/access"
	"github.com/oneman/oneman-backend/internal/session"
	"github.com/oneman/oneman-backend/pkg/db/models"
	"github.com/oneman/oneman-backend/pkg/enums"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/logger"
	"github.com/oneman/oneman-backend/pkg/outbox"
	"github.com/oneman/oneman-backend/pkg/outbox/payloads"
	"github.com/oneman/oneman-backend/pkg/pagination"
	"github.com/oneman/oneman-backend/pkg/types"
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type fanout interface {
	Publish(ctx context.Context, event Event)
	Subscribe(ctx context.Context, groupID uuid.UUID) <-chan Event
}

// Page is one slice of a message log in ascending order.
type Page struct {
	Messages   []Message `json:"messages"`
	NextCursor string    `json:"nextCursor,omitempty"`
}

// Service exposes the message log of sites and stores.
type Service interface {
	Append(ctx context.Context, actor session.Actor, ref types.GroupRef, payload Payload) (*Message, error)
	AppendTx(ctx context.Context, tx *gorm.DB, ref types.GroupRef, author Author, payload Payload) (*Message, error)
	List(ctx context.Context, actor session.Actor, ref types.GroupRef, params pagination.Params) (*Page, error)
	Delete(ctx context.Context, actor session.Actor, ref types.GroupRef, messageID uuid.UUID) error
	Subscribe(ctx context.Context, actor session.Actor, ref types.GroupRef) (<-chan Event, error)
	Broadcast(ctx context.Context, created ...Message)
}

// ServiceParams groups the message service dependencies.
type ServiceParams struct {
	Repo   *Repository
	Groups access.Store
	Tx     txRunner
	Outbox outboxPublisher
	Hub    fanout
	Logger *logger.Logger
	Now    func() time.Time
}

type service struct {
	repo   *Repository
	groups access.Store
	tx     txRunner
	outbox outboxPublisher
	hub    fanout
	logg   *logger.Logger
	now    func() time.Time
}

// NewService validates dependencies and builds the message service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message repo is required")
	}
	if params.Groups == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group store is required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction runner is required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outbox emitter is required")
	}
	if params.Hub == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message hub is required")
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:   params.Repo,
		groups: params.Groups,
		tx:     params.Tx,
		outbox: params.Outbox,
		hub:    params.Hub,
		logg:   params.Logger,
		now:    now,
	}, nil
}

// Append posts a text or image message as the actor.
func (s *service) Append(ctx context.Context, actor session.Actor, ref types.GroupRef, payload Payload) (*Message, error) {
	if payload == nil || !payload.Type().UserPostable() {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "only text and image messages can be posted")
	}
	if _, err := access.Member(ctx, s.groups, nil, ref, actor); err != nil {
		return nil, err
	}

	var created *Message
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		msg, err := s.appendTx(ctx, tx, ref, AuthorFromActor(actor), payload, &outbox.ActorRef{UserID: actor.UserID, Email: actor.Email})
		if err != nil {
			return err
		}
		created = msg
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.Broadcast(ctx, *created)
	return created, nil
}

// AppendTx writes a message inside the caller's transaction. The caller
// authorizes the write and broadcasts after commit.
func (s *service) AppendTx(ctx context.Context, tx *gorm.DB, ref types.GroupRef, author Author, payload Payload) (*Message, error) {
	if tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeInternal, "transaction required")
	}
	return s.appendTx(ctx, tx, ref, author, payload, &outbox.ActorRef{UserID: author.UserID})
}

func (s *service) appendTx(ctx context.Context, tx *gorm.DB, ref types.GroupRef, author Author, payload Payload, actor *outbox.ActorRef) (*Message, error) {
	row, err := newRow(ref.ID, author, payload, s.now())
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, err.Error()).WithReason("InvalidMessage")
	}
	if err := s.repo.Create(ctx, tx, row); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "append message").WithReason("RemoteOperationFailed")
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     enums.EventMessageCreated,
		AggregateType: enums.AggregateGroup,
		AggregateID:   ref.ID,
		Actor:         actor,
		OccurredAt:    row.SentAt,
		Data: payloads.MessageEvent{
			GroupID:   ref.ID,
			Kind:      ref.Kind,
			MessageID: row.ID,
			Type:      row.Type,
			UserID:    row.UserID,
			SentAt:    row.SentAt,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue message event")
	}
	msg := FromModel(*row)
	return &msg, nil
}

// List reads the log in ascending timestamp order.
func (s *service) List(ctx context.Context, actor session.Actor, ref types.GroupRef, params pagination.Params) (*Page, error) {
	if _, err := access.Member(ctx, s.groups, nil, ref, actor); err != nil {
		return nil, err
	}
	cursor, err := pagination.ParseCursor(params.Cursor)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "invalid cursor")
	}
	rows, err := s.repo.List(ctx, ref.ID, cursor, params.Limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list messages").WithReason("RemoteOperationFailed")
	}
	rows, more := pagination.Trim(rows, params.Limit)

	page := &Page{Messages: make([]Message, 0, len(rows))}
	for _, row := range rows {
		if _, err := Decode(row); err != nil {
			if s.logg != nil {
				s.logg.Warn(s.logg.WithField(ctx, "message_id", row.ID.String()), "skipping malformed message: "+err.Error())
			}
			continue
		}
		page.Messages = append(page.Messages, FromModel(row))
	}
	if more && len(rows) > 0 {
		last := rows[len(rows)-1]
		page.NextCursor = pagination.EncodeCursor(pagination.Cursor{At: last.SentAt, ID: last.ID})
	}
	return page, nil
}

// Delete hard deletes a message. Only the group admin may delete.
func (s *service) Delete(ctx context.Context, actor session.Actor, ref types.GroupRef, messageID uuid.UUID) error {
	if messageID == uuid.Nil {
		return pkgerrors.New(pkgerrors.CodeValidation, "message id is required")
	}
	if _, err := access.Admin(ctx, s.groups, nil, ref, actor); err != nil {
		return err
	}

	var deleted *models.GroupMessage
	err := s.tx.WithTx(ctx, func(tx *gorm.DB) error {
		row, err := s.repo.FindByID(ctx, tx, ref.ID, messageID)
		if err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return pkgerrors.Wrap(pkgerrors.CodeNotFound, err, "message not found").WithReason("NotFound")
			}
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "load message").WithReason("RemoteOperationFailed")
		}
		if _, err := s.repo.Delete(ctx, tx, ref.ID, messageID); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "delete message").WithReason("RemoteOperationFailed")
		}
		if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
			EventType:     enums.EventMessageDeleted,
			AggregateType: enums.AggregateGroup,
			AggregateID:   ref.ID,
			Actor:         &outbox.ActorRef{UserID: actor.UserID, Email: actor.Email},
			Data: payloads.MessageEvent{
				GroupID:   ref.ID,
				Kind:      ref.Kind,
				MessageID: row.ID,
				Type:      row.Type,
				UserID:    row.UserID,
				SentAt:    row.SentAt,
			},
		}); err != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue message event")
		}
		deleted = row
		return nil
	})
	if err != nil {
		return err
	}

	s.hub.Publish(ctx, Event{Type: EventDeleted, GroupID: ref.ID, MessageID: deleted.ID})
	if s.logg != nil {
		s.logg.Info(s.logg.WithField(ctx, "message_id", deleted.ID.String()), "message deleted")
	}
	return nil
}

// Subscribe streams created and deleted events for the group until ctx ends.
func (s *service) Subscribe(ctx context.Context, actor session.Actor, ref types.GroupRef) (<-chan Event, error) {
	if _, err := access.Member(ctx, s.groups, nil, ref, actor); err != nil {
		return nil, err
	}
	return s.hub.Subscribe(ctx, ref.ID), nil
}

// Broadcast announces committed messages to live subscribers.
func (s *service) Broadcast(ctx context.Context, created ...Message) {
	for i := range created {
		msg := created[i]
		s.hub.Publish(ctx, Event{Type: EventCreated, GroupID: msg.GroupID, MessageID: msg.ID, Message: &msg})
	}
}
