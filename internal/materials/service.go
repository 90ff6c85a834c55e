package materials

import (
	"context"
	"errors"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/internal/access"
	"github.com/oneman/oneman-backend/internal/messages"
	"github.com/oneman/oneman-backend/internal/session"
	"github.com/oneman/oneman-backend/pkg/db"
	"github.com/oneman/oneman-backend/pkg/db/models"
	"github.com/oneman/oneman-backend/pkg/enums"
	pkgerrors "github.com/oneman/oneman-backend/pkg/errors"
	"github.com/oneman/oneman-backend/pkg/logger"
	"github.com/oneman/oneman-backend/pkg/metrics"
	"github.com/oneman/oneman-backend/pkg/outbox"
	"github.com/oneman/oneman-backend/pkg/outbox/payloads"
	"github.com/oneman/oneman-backend/pkg/types"
)

const (
	defaultMaxRetries    = 3
	defaultTransferLimit = 50
)

type txRunner interface {
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type outboxPublisher interface {
	Emit(ctx context.Context, tx *gorm.DB, event outbox.DomainEvent) error
}

type messageLog interface {
	AppendTx(ctx context.Context, tx *gorm.DB, ref types.GroupRef, author messages.Author, payload messages.Payload) (*messages.Message, error)
	Broadcast(ctx context.Context, created ...messages.Message)
}

// Service runs ledger operations against stored groups.
type Service interface {
	List(ctx context.Context, actor session.Actor, ref types.GroupRef) (*LedgerView, error)
	Add(ctx context.Context, actor session.Actor, input AddInput) (*Result, error)
	Remove(ctx context.Context, actor session.Actor, input RemoveInput) (*Result, error)
	Transfer(ctx context.Context, actor session.Actor, input TransferInput) (*Result, error)
	Transfers(ctx context.Context, actor session.Actor, ref types.GroupRef, status enums.TransferStatus, limit int) ([]TransferView, error)
	Catalog(ctx context.Context, actor session.Actor, ref types.GroupRef) (*GroupCatalog, error)
}

// ServiceParams groups the ledger service dependencies.
type ServiceParams struct {
	Repo               *Repository
	Groups             access.Store
	Tx                 txRunner
	Messages           messageLog
	Outbox             outboxPublisher
	Metrics            *metrics.OperationMetrics
	Logger             *logger.Logger
	MaxConflictRetries int
	Catalog            *Catalog
	Now                func() time.Time
}

type service struct {
	repo       *Repository
	groups     access.Store
	tx         txRunner
	messages   messageLog
	outbox     outboxPublisher
	metrics    *metrics.OperationMetrics
	logg       *logger.Logger
	maxRetries int
	catalog    Catalog
	now        func() time.Time
}

// NewService validates dependencies and builds the ledger service.
func NewService(params ServiceParams) (Service, error) {
	if params.Repo == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "materials repo is required")
	}
	if params.Groups == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "group store is required")
	}
	if params.Tx == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "transaction runner is required")
	}
	if params.Messages == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "message log is required")
	}
	if params.Outbox == nil {
		return nil, pkgerrors.New(pkgerrors.CodeValidation, "outbox emitter is required")
	}
	retries := params.MaxConflictRetries
	if retries <= 0 {
		retries = defaultMaxRetries
	}
	catalog := DefaultCatalog()
	if params.Catalog != nil {
		catalog = *params.Catalog
	}
	now := params.Now
	if now == nil {
		now = time.Now
	}
	return &service{
		repo:       params.Repo,
		groups:     params.Groups,
		tx:         params.Tx,
		messages:   params.Messages,
		outbox:     params.Outbox,
		metrics:    params.Metrics,
		logg:       params.Logger,
		maxRetries: retries,
		catalog:    catalog,
		now:        now,
	}, nil
}

// List returns the group's ledger with duplicates coalesced.
func (s *service) List(ctx context.Context, actor session.Actor, ref types.GroupRef) (*LedgerView, error) {
	group, err := access.Member(ctx, s.groups, nil, ref, actor)
	if err != nil {
		return nil, err
	}
	view := ledgerView(group, Normalize(group.Materials), group.Version)
	return &view, nil
}

// Add merges material into the group, or moves it from input.Source.
func (s *service) Add(ctx context.Context, actor session.Actor, input AddInput) (result *Result, err error) {
	if input.Source != nil {
		return s.transfer(ctx, actor, transferRequest{
			source:    *input.Source,
			dest:      input.Group,
			name:      input.Name,
			unit:      input.Unit,
			amount:    input.Amount,
			addressed: input.Group,
		})
	}

	done := s.metrics.Track("add")
	defer func() { done(err) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if _, err := ValidateAmount(input.Amount); err != nil {
		return nil, asServiceError(err)
	}
	if _, _, err := cleanKey(input.Name, input.Unit); err != nil {
		return nil, asServiceError(err)
	}

	var created []messages.Message
	err = s.withRetry(ctx, "add", func() error {
		created = created[:0]
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			group, err := access.Member(ctx, s.groups, tx, input.Group, actor)
			if err != nil {
				return err
			}
			next, err := Add(Normalize(group.Materials), input.Name, input.Unit, input.Amount, group.Name)
			if err != nil {
				return err
			}
			version, err := s.saveLedger(ctx, tx, group, next)
			if err != nil {
				return err
			}
			entry := next[Find(next, input.Name, input.Unit)]
			event := types.MaterialEvent{
				Name:       entry.Name,
				Amount:     input.Amount,
				Unit:       entry.Unit,
				SourceType: enums.MaterialSourceManual,
			}
			msg, err := s.record(ctx, tx, actor, input.Group, group, next, version, event, enums.EventMaterialAdded)
			if err != nil {
				return err
			}
			created = append(created, *msg)
			result = &Result{Ledger: ledgerView(group, next, version)}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.messages.Broadcast(ctx, created...)
	return result, nil
}

// Remove decrements material in the group, or moves it to input.Destination.
func (s *service) Remove(ctx context.Context, actor session.Actor, input RemoveInput) (result *Result, err error) {
	if input.Destination != nil {
		return s.transfer(ctx, actor, transferRequest{
			source:    input.Group,
			dest:      *input.Destination,
			entryID:   input.EntryID,
			name:      input.Name,
			unit:      input.Unit,
			amount:    input.Amount,
			addressed: input.Group,
		})
	}

	done := s.metrics.Track("remove")
	defer func() { done(err) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if _, err := ValidateAmount(input.Amount); err != nil {
		return nil, asServiceError(err)
	}

	var created []messages.Message
	err = s.withRetry(ctx, "remove", func() error {
		created = created[:0]
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			group, err := access.Member(ctx, s.groups, tx, input.Group, actor)
			if err != nil {
				return err
			}
			name, unit, err := resolveKey(group.Materials, input.EntryID, input.Name, input.Unit)
			if err != nil {
				return err
			}
			next, err := RemoveByKey(group.Materials, name, unit, input.Amount)
			if err != nil {
				return err
			}
			version, err := s.saveLedger(ctx, tx, group, next)
			if err != nil {
				return err
			}
			event := types.MaterialEvent{
				Name:       name,
				Amount:     input.Amount.Neg(),
				Unit:       unit,
				SourceType: enums.MaterialSourceManual,
			}
			msg, err := s.record(ctx, tx, actor, input.Group, group, next, version, event, enums.EventMaterialRemoved)
			if err != nil {
				return err
			}
			created = append(created, *msg)
			result = &Result{Ledger: ledgerView(group, next, version)}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	s.messages.Broadcast(ctx, created...)
	return result, nil
}

// Transfer moves material from input.Source to input.Destination.
func (s *service) Transfer(ctx context.Context, actor session.Actor, input TransferInput) (*Result, error) {
	return s.transfer(ctx, actor, transferRequest{
		source:    input.Source,
		dest:      input.Destination,
		entryID:   input.EntryID,
		name:      input.Name,
		unit:      input.Unit,
		amount:    input.Amount,
		addressed: input.Source,
	})
}

type transferRequest struct {
	source    types.GroupRef
	dest      types.GroupRef
	entryID   string
	name      string
	unit      string
	amount    decimal.Decimal
	addressed types.GroupRef
}

// transfer writes both ledgers in one transaction. A pending record is
// created first and settled to committed or failed, so an aborted attempt is
// visible afterwards.
func (s *service) transfer(ctx context.Context, actor session.Actor, req transferRequest) (result *Result, err error) {
	done := s.metrics.Track("transfer")
	defer func() { done(err) }()

	if err := actor.Validate(); err != nil {
		return nil, err
	}
	if _, err := ValidateAmount(req.amount); err != nil {
		return nil, asServiceError(err)
	}
	if req.source.ID == req.dest.ID {
		return nil, asServiceError(ErrSameGroup)
	}
	source, err := access.Member(ctx, s.groups, nil, req.source, actor)
	if err != nil {
		return nil, err
	}
	if _, err := access.Member(ctx, s.groups, nil, req.dest, actor); err != nil {
		return nil, err
	}
	name, unit, err := resolveKey(source.Materials, req.entryID, req.name, req.unit)
	if err != nil {
		return nil, asServiceError(err)
	}

	record := &models.MaterialTransfer{
		SourceGroupID: req.source.ID,
		SourceKind:    req.source.Kind,
		DestGroupID:   req.dest.ID,
		DestKind:      req.dest.Kind,
		Name:          name,
		Unit:          unit,
		Amount:        req.amount,
		ActorID:       actor.UserID,
		Status:        enums.TransferStatusPending,
	}
	if err := s.repo.CreateTransfer(ctx, nil, record); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "record transfer").WithReason("RemoteOperationFailed")
	}

	ctx = s.withTransferFields(ctx, record)

	var created []messages.Message
	err = s.withRetry(ctx, "transfer", func() error {
		created = created[:0]
		return s.tx.WithTx(ctx, func(tx *gorm.DB) error {
			src, err := access.Member(ctx, s.groups, tx, req.source, actor)
			if err != nil {
				return err
			}
			dst, err := access.Member(ctx, s.groups, tx, req.dest, actor)
			if err != nil {
				return err
			}
			nextSrc, nextDst, err := Transfer(Normalize(src.Materials), Normalize(dst.Materials), name, unit, req.amount, dst.Name)
			if err != nil {
				return err
			}

			// Update rows in id order so concurrent opposite transfers lock
			// in the same sequence.
			srcVersion, dstVersion := int64(0), int64(0)
			writes := []struct {
				group   *models.GroupRecord
				ledger  types.MaterialLedger
				version *int64
			}{
				{src, nextSrc, &srcVersion},
				{dst, nextDst, &dstVersion},
			}
			if dst.ID.String() < src.ID.String() {
				writes[0], writes[1] = writes[1], writes[0]
			}
			for _, w := range writes {
				v, err := s.saveLedger(ctx, tx, w.group, w.ledger)
				if err != nil {
					return err
				}
				*w.version = v
			}

			committedAt := s.now().UTC()
			if err := s.repo.MarkTransferCommitted(ctx, tx, record.ID, committedAt); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "commit transfer record")
			}

			outMsg, err := s.record(ctx, tx, actor, req.source, src, nextSrc, srcVersion, types.MaterialEvent{
				Name:       name,
				Amount:     req.amount.Neg(),
				Unit:       unit,
				Source:     dst.Name,
				SourceType: enums.SourceTypeForKind(dst.Kind),
				SourceID:   dst.ID.String(),
			}, enums.EventMaterialRemoved)
			if err != nil {
				return err
			}
			inMsg, err := s.record(ctx, tx, actor, req.dest, dst, nextDst, dstVersion, types.MaterialEvent{
				Name:       name,
				Amount:     req.amount,
				Unit:       unit,
				Source:     src.Name,
				SourceType: enums.SourceTypeForKind(src.Kind),
				SourceID:   src.ID.String(),
			}, enums.EventMaterialAdded)
			if err != nil {
				return err
			}
			if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
				EventType:     enums.EventMaterialTransferred,
				AggregateType: enums.AggregateTransfer,
				AggregateID:   record.ID,
				Actor:         &outbox.ActorRef{UserID: actor.UserID, Email: actor.Email},
				OccurredAt:    committedAt,
				Data: payloads.MaterialTransferredEvent{
					TransferID:    record.ID,
					SourceGroupID: src.ID,
					SourceKind:    src.Kind,
					DestGroupID:   dst.ID,
					DestKind:      dst.Kind,
					Name:          name,
					Unit:          unit,
					Amount:        req.amount,
				},
			}); err != nil {
				return pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue transfer event")
			}
			created = append(created, *outMsg, *inMsg)

			record.Status = enums.TransferStatusCommitted
			record.CommittedAt = &committedAt
			srcView := ledgerView(src, nextSrc, srcVersion)
			dstView := ledgerView(dst, nextDst, dstVersion)
			view := FromTransferModel(*record)
			if req.addressed.ID == src.ID {
				result = &Result{Ledger: srcView, Counterpart: &dstView, Transfer: &view}
			} else {
				result = &Result{Ledger: dstView, Counterpart: &srcView, Transfer: &view}
			}
			return nil
		})
	})
	if err != nil {
		if markErr := s.repo.MarkTransferFailed(ctx, record.ID, err.Error()); markErr != nil && s.logg != nil {
			s.logg.Error(ctx, "mark transfer failed", markErr)
		}
		if s.logg != nil {
			s.logg.Warn(ctx, "material transfer aborted: "+err.Error())
		}
		return nil, err
	}

	s.messages.Broadcast(ctx, created...)
	if s.logg != nil {
		s.logg.Info(ctx, "material transfer committed")
	}
	return result, nil
}

// Transfers lists recent transfers into or out of the group. An empty status
// lists every state.
func (s *service) Transfers(ctx context.Context, actor session.Actor, ref types.GroupRef, status enums.TransferStatus, limit int) ([]TransferView, error) {
	if _, err := access.Member(ctx, s.groups, nil, ref, actor); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > defaultTransferLimit {
		limit = defaultTransferLimit
	}
	if status != "" && !status.IsValid() {
		return nil, pkgerrors.Newf(pkgerrors.CodeValidation, "invalid transfer status %q", status)
	}
	rows, err := s.repo.ListTransfers(ctx, ref.ID, status, limit)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "list transfers").WithReason("RemoteOperationFailed")
	}
	out := make([]TransferView, 0, len(rows))
	for _, row := range rows {
		out = append(out, FromTransferModel(row))
	}
	return out, nil
}

// Catalog returns the materials offered by the group's selected companies.
func (s *service) Catalog(ctx context.Context, actor session.Actor, ref types.GroupRef) (*GroupCatalog, error) {
	group, err := access.Member(ctx, s.groups, nil, ref, actor)
	if err != nil {
		return nil, err
	}
	companies := append([]string{}, group.Companies...)
	return &GroupCatalog{
		Category:  group.Category,
		Companies: companies,
		Items:     s.catalog.Items(companies),
	}, nil
}

func (s *service) saveLedger(ctx context.Context, tx *gorm.DB, group *models.GroupRecord, ledger types.MaterialLedger) (int64, error) {
	version, err := s.repo.SaveLedger(ctx, tx, group.ID, group.Version, ledger)
	if err != nil {
		if errors.Is(err, db.ErrVersionConflict) {
			return 0, err
		}
		return 0, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "save ledger").WithReason("RemoteOperationFailed")
	}
	return version, nil
}

// record appends the material message and queues the ledger event for one
// side of a mutation.
func (s *service) record(ctx context.Context, tx *gorm.DB, actor session.Actor, ref types.GroupRef, group *models.GroupRecord, ledger types.MaterialLedger, version int64, event types.MaterialEvent, eventType enums.OutboxEventType) (*messages.Message, error) {
	msg, err := s.messages.AppendTx(ctx, tx, ref, messages.AuthorFromActor(actor), messages.Material{Event: event})
	if err != nil {
		return nil, err
	}
	if err := s.outbox.Emit(ctx, tx, outbox.DomainEvent{
		EventType:     eventType,
		AggregateType: enums.AggregateGroup,
		AggregateID:   group.ID,
		Actor:         &outbox.ActorRef{UserID: actor.UserID, Email: actor.Email},
		OccurredAt:    msg.Timestamp,
		Data: payloads.LedgerChangedEvent{
			GroupID:    group.ID,
			Kind:       group.Kind,
			Name:       event.Name,
			Unit:       event.Unit,
			Amount:     event.Amount,
			Balance:    Balance(ledger, event.Name, event.Unit),
			SourceType: event.SourceType,
			Source:     event.Source,
			Version:    version,
		},
	}); err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "enqueue ledger event")
	}
	return msg, nil
}

// withRetry reruns fn while it loses version races, up to maxRetries extra
// attempts.
func (s *service) withRetry(ctx context.Context, op string, fn func() error) error {
	for attempt := 0; ; attempt++ {
		err := fn()
		if err == nil {
			return nil
		}
		if !errors.Is(err, db.ErrVersionConflict) {
			return asServiceError(err)
		}
		if attempt >= s.maxRetries {
			return pkgerrors.Wrap(pkgerrors.CodeConflict, err, "the ledger changed while saving, please try again").WithReason("ConcurrentUpdate")
		}
		s.metrics.IncRetry(op)
		if s.logg != nil {
			s.logg.Debug(s.logg.WithField(ctx, "attempt", attempt+1), op+" lost a version race, retrying")
		}
		if ctx.Err() != nil {
			return pkgerrors.Wrap(pkgerrors.CodeDependency, ctx.Err(), "request cancelled").WithReason("RemoteOperationFailed")
		}
	}
}

func (s *service) withTransferFields(ctx context.Context, record *models.MaterialTransfer) context.Context {
	if s.logg == nil {
		return ctx
	}
	return s.logg.WithFields(ctx, map[string]any{
		"transfer_id":     record.ID.String(),
		"source_group_id": record.SourceGroupID.String(),
		"dest_group_id":   record.DestGroupID.String(),
		"material":        record.Name,
		"unit":            record.Unit,
		"amount":          record.Amount.String(),
	})
}

// resolveKey turns an entry id or a (name, unit) pair into the natural key.
// Ids are looked up in the stored ledger so a duplicate's id still resolves.
func resolveKey(stored types.MaterialLedger, entryID, name, unit string) (string, string, error) {
	if entryID != "" {
		entry, ok := FindByID(stored, entryID)
		if !ok {
			return "", "", ErrMaterialNotFound
		}
		name, unit = entry.Name, entry.Unit
	}
	name, unit, err := cleanKey(name, unit)
	if err != nil {
		return "", "", err
	}
	if Find(Normalize(stored), name, unit) < 0 {
		return "", "", ErrMaterialNotFound
	}
	return name, unit, nil
}
