package main

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"time"

	gcppubsub "cloud.google.com/go/pubsub/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/oneman/oneman-backend/pkg/config"
	"github.com/oneman/oneman-backend/pkg/db/models"
	"github.com/oneman/oneman-backend/pkg/enums"
	"github.com/oneman/oneman-backend/pkg/logger"
	"github.com/oneman/oneman-backend/pkg/metrics"
	"github.com/oneman/oneman-backend/pkg/outbox/payloads"
	"github.com/oneman/oneman-backend/pkg/outbox/registry"
)

const (
	defaultBatchSize      = 50
	defaultPollMs         = 500
	defaultPublishTimeout = 15 * time.Second
	defaultMaxAttempts    = 10
	maxBackoff            = 10 * time.Second
	jitterWindow          = 250 * time.Millisecond
)

var jitterSource = rand.New(rand.NewSource(time.Now().UnixNano()))

type dbClient interface {
	Ping(context.Context) error
	WithTx(context.Context, func(tx *gorm.DB) error) error
}

type pubSubClient interface {
	Ping(context.Context) error
	Publisher(name string) *gcppubsub.Publisher
}

type outboxRepository interface {
	FetchUnpublishedForPublish(tx *gorm.DB, limit, maxAttempts int) ([]models.OutboxEvent, error)
	MarkPublishedTx(tx *gorm.DB, id uuid.UUID) error
	MarkFailedTx(tx *gorm.DB, id uuid.UUID, err error) error
	MarkTerminalTx(tx *gorm.DB, id uuid.UUID, err error, terminalAttempts int) error
}

type registryResolver interface {
	Resolve(models.OutboxEvent) (*registry.ResolvedEvent, error)
}

type publisherFactory func(topic string) publisher

type publisher interface {
	Publish(context.Context, *gcppubsub.Message) publishResult
}

type publishResult interface {
	Get(context.Context) (string, error)
}

// ServiceParams wires the relay that drains outbox rows onto the group and
// ledger topics.
type ServiceParams struct {
	Config           *config.Config
	Logger           *logger.Logger
	DB               dbClient
	PubSub           pubSubClient
	Repository       outboxRepository
	Registry         registryResolver
	PublisherFactory publisherFactory
	Metrics          *metrics.OperationMetrics
}

// Service relays outbox rows to Pub/Sub. Messages for one group share an
// ordering key so ledger changes reach subscribers in version order.
type Service struct {
	logg        *logger.Logger
	db          dbClient
	repo        outboxRepository
	pubsub      pubSubClient
	registry    registryResolver
	metrics     *metrics.OperationMetrics
	publishers  publisherFactory
	batchSize   int
	maxAttempts int
	pace        pacer
}

func NewService(params ServiceParams) (*Service, error) {
	switch {
	case params.Config == nil:
		return nil, errors.New("config is required")
	case params.Logger == nil:
		return nil, errors.New("logger is required")
	case params.DB == nil:
		return nil, errors.New("database client is required")
	case params.PubSub == nil:
		return nil, errors.New("pubsub client is required")
	case params.Repository == nil:
		return nil, errors.New("outbox repository is required")
	case params.Registry == nil:
		return nil, errors.New("event registry is required")
	}

	factory := params.PublisherFactory
	if factory == nil {
		factory = orderedPublishers(params.PubSub)
	}

	outboxCfg := params.Config.Outbox
	return &Service{
		logg:        params.Logger,
		db:          params.DB,
		repo:        params.Repository,
		pubsub:      params.PubSub,
		registry:    params.Registry,
		metrics:     params.Metrics,
		publishers:  factory,
		batchSize:   positiveOr(outboxCfg.BatchSize, defaultBatchSize),
		maxAttempts: positiveOr(outboxCfg.MaxAttempts, defaultMaxAttempts),
		pace:        newPacer(time.Duration(positiveOr(outboxCfg.PollIntervalMS, defaultPollMs)) * time.Millisecond),
	}, nil
}

func positiveOr(v, fallback int) int {
	if v <= 0 {
		return fallback
	}
	return v
}

// Run drains the outbox until ctx is canceled. A full batch loops straight
// back; an empty one waits one poll interval; a failed one backs off.
func (s *Service) Run(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	for _, dep := range []struct {
		name string
		ping func(context.Context) error
	}{
		{"database", s.db.Ping},
		{"pubsub", s.pubsub.Ping},
	} {
		if err := dep.ping(ctx); err != nil {
			s.logg.Error(ctx, dep.name+" ping failed", err)
			return fmt.Errorf("%s ping failed: %w", dep.name, err)
		}
	}

	for {
		if err := ctx.Err(); err != nil {
			s.logg.Info(ctx, "outbox publisher context canceled")
			return err
		}

		processed, err := s.processBatch(ctx)
		var wait time.Duration
		switch {
		case err != nil:
			s.logg.Error(ctx, "outbox publisher batch error", err)
			wait = s.pace.failed()
		case processed:
			s.pace.reset()
			continue
		default:
			wait = s.pace.idle()
		}
		if err := sleep(ctx, wait); err != nil {
			return err
		}
	}
}

func (s *Service) processBatch(ctx context.Context) (bool, error) {
	processed := false
	err := s.db.WithTx(ctx, func(tx *gorm.DB) error {
		events, err := s.repo.FetchUnpublishedForPublish(tx, s.batchSize, s.maxAttempts)
		if err != nil {
			return err
		}
		processed = len(events) > 0
		for _, event := range events {
			if err := s.relay(ctx, tx, event); err != nil {
				return err
			}
		}
		return nil
	})
	return processed, err
}

// outcome is what happens to a row after one relay attempt.
type outcome int

const (
	outcomePublished outcome = iota
	outcomeRetry
	outcomeParked
)

// relay publishes one row and records the outcome in the same transaction.
// Only bookkeeping failures abort the batch.
func (s *Service) relay(ctx context.Context, tx *gorm.DB, event models.OutboxEvent) error {
	resolved, err := s.registry.Resolve(event)
	if err != nil {
		return s.park(ctx, tx, event, nil, "non_retryable", err)
	}

	route := routeFor(event, resolved)
	done := s.metrics.Track(string(event.EventType))
	err = s.publish(ctx, event, route)
	done(err)

	switch result, reason := s.classify(event, err); result {
	case outcomePublished:
		if markErr := s.repo.MarkPublishedTx(tx, event.ID); markErr != nil {
			return fmt.Errorf("mark published %s: %w", event.ID, markErr)
		}
		s.logg.Info(s.logg.WithFields(ctx, route.fields(event, s.batchSize)), "outbox event published")
		return nil
	case outcomeParked:
		if reason == "max_attempts" {
			err = fmt.Errorf("max publish attempts reached: %w", err)
		}
		return s.park(ctx, tx, event, &route, reason, err)
	default:
		s.metrics.IncRetry(string(event.EventType))
		fields := route.fields(event, s.batchSize)
		fields["attempt_count"] = event.AttemptCount + 1
		fields["error"] = err.Error()
		s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox publish failed")
		if markErr := s.repo.MarkFailedTx(tx, event.ID, err); markErr != nil {
			return fmt.Errorf("mark failure %s: %w", event.ID, markErr)
		}
		return nil
	}
}

func (s *Service) classify(event models.OutboxEvent, err error) (outcome, string) {
	if err == nil {
		return outcomePublished, ""
	}
	var nonRetry registry.NonRetryableError
	if errors.As(err, &nonRetry) {
		return outcomeParked, "non_retryable"
	}
	if event.AttemptCount+1 >= s.maxAttempts {
		return outcomeParked, "max_attempts"
	}
	return outcomeRetry, ""
}

// park moves a row to its terminal attempt count so the fetch query skips it.
func (s *Service) park(ctx context.Context, tx *gorm.DB, event models.OutboxEvent, route *eventRoute, reason string, err error) error {
	if route == nil {
		route = &eventRoute{}
	}
	fields := route.fields(event, s.batchSize)
	fields["error_reason"] = reason
	fields["error"] = err.Error()
	s.logg.Warn(s.logg.WithFields(ctx, fields), "outbox event will not be retried")

	if markErr := s.repo.MarkTerminalTx(tx, event.ID, err, s.maxAttempts); markErr != nil {
		return fmt.Errorf("mark terminal %s: %w", event.ID, markErr)
	}
	return nil
}

func (s *Service) publish(ctx context.Context, event models.OutboxEvent, route eventRoute) error {
	pub := s.publishers(route.topic)
	if pub == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher not configured for topic %s", route.topic))
	}

	publishCtx, cancel := context.WithTimeout(ctx, defaultPublishTimeout)
	defer cancel()
	result := pub.Publish(publishCtx, &gcppubsub.Message{
		Data:        event.Payload,
		Attributes:  route.attributes(event),
		OrderingKey: route.orderingKey,
	})
	if result == nil {
		return registry.NewNonRetryableError(fmt.Errorf("publisher returned nil for topic %s", route.topic))
	}
	_, err := result.Get(publishCtx)
	return err
}

// eventRoute is where a resolved row goes and which groups it concerns.
type eventRoute struct {
	topic       string
	eventID     string
	occurredAt  time.Time
	orderingKey string
	groupID     uuid.UUID
	groupKind   enums.GroupKind
	peerGroupID uuid.UUID
}

// routeFor keys group events by their group. Transfers touch two groups and
// are keyed by the transfer itself.
func routeFor(event models.OutboxEvent, resolved *registry.ResolvedEvent) eventRoute {
	route := eventRoute{
		topic:      resolved.Descriptor.Topic,
		eventID:    resolved.Envelope.EventID,
		occurredAt: resolved.Envelope.OccurredAt,
	}
	switch p := resolved.Payload.(type) {
	case *payloads.GroupChangedEvent:
		route.groupID, route.groupKind = p.GroupID, p.Kind
	case *payloads.MembershipChangedEvent:
		route.groupID, route.groupKind = p.GroupID, p.Kind
	case *payloads.MessageEvent:
		route.groupID, route.groupKind = p.GroupID, p.Kind
	case *payloads.LedgerChangedEvent:
		route.groupID, route.groupKind = p.GroupID, p.Kind
	case *payloads.MaterialTransferredEvent:
		route.groupID, route.groupKind = p.SourceGroupID, p.SourceKind
		route.peerGroupID = p.DestGroupID
	}
	if route.groupID == uuid.Nil && event.AggregateType == enums.AggregateGroup {
		route.groupID = event.AggregateID
	}
	if route.groupID != uuid.Nil && event.AggregateType == enums.AggregateGroup {
		route.orderingKey = "group:" + route.groupID.String()
	} else {
		route.orderingKey = string(event.AggregateType) + ":" + event.AggregateID.String()
	}
	return route
}

func (r eventRoute) attributes(event models.OutboxEvent) map[string]string {
	attrs := map[string]string{
		"event_id":       r.eventID,
		"event_type":     string(event.EventType),
		"aggregate_type": string(event.AggregateType),
		"aggregate_id":   event.AggregateID.String(),
		"created_at":     event.CreatedAt.Format(time.RFC3339Nano),
	}
	if r.groupID != uuid.Nil {
		attrs["group_id"] = r.groupID.String()
	}
	if r.groupKind != "" {
		attrs["group_kind"] = string(r.groupKind)
	}
	if r.peerGroupID != uuid.Nil {
		attrs["dest_group_id"] = r.peerGroupID.String()
	}
	return attrs
}

func (r eventRoute) fields(event models.OutboxEvent, batchSize int) map[string]any {
	fields := map[string]any{
		"outbox_id":      event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"batch_size":     batchSize,
		"attempt_count":  event.AttemptCount,
	}
	if r.eventID != "" {
		fields["event_id"] = r.eventID
		fields["occurred_at"] = r.occurredAt.Format(time.RFC3339Nano)
	}
	if r.topic != "" {
		fields["topic"] = r.topic
		fields["ordering_key"] = r.orderingKey
	}
	if r.groupID != uuid.Nil {
		fields["group_id"] = r.groupID.String()
	}
	if event.LastError != nil {
		fields["last_error"] = *event.LastError
	}
	return fields
}

// pacer doubles the wait after each failed batch up to maxBackoff.
type pacer struct {
	interval time.Duration
	backoff  time.Duration
}

func newPacer(interval time.Duration) pacer {
	return pacer{interval: interval, backoff: interval}
}

func (p *pacer) reset() { p.backoff = p.interval }

func (p *pacer) idle() time.Duration {
	p.reset()
	return withJitter(p.interval)
}

func (p *pacer) failed() time.Duration {
	p.backoff = min(p.backoff*2, maxBackoff)
	return withJitter(p.backoff)
}

func withJitter(d time.Duration) time.Duration {
	if d <= 0 {
		return 0
	}
	return d + time.Duration(jitterSource.Int63n(int64(jitterWindow)))
}

func sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}

// orderedPublishers caches one ordering-enabled publisher per topic.
func orderedPublishers(client pubSubClient) publisherFactory {
	cache := map[string]publisher{}
	return func(topic string) publisher {
		if pub, ok := cache[topic]; ok {
			return pub
		}
		p := client.Publisher(topic)
		if p == nil {
			return nil
		}
		p.EnableMessageOrdering = true
		pub := &gcpPublisher{Publisher: p}
		cache[topic] = pub
		return pub
	}
}

type gcpPublisher struct {
	*gcppubsub.Publisher
}

// Publish resumes the ordering key after a failure; Pub/Sub pauses a key
// once one of its messages fails.
func (p *gcpPublisher) Publish(ctx context.Context, msg *gcppubsub.Message) publishResult {
	return &gcpPublishResult{
		PublishResult: p.Publisher.Publish(ctx, msg),
		resume: func() {
			if msg.OrderingKey != "" {
				p.Publisher.ResumePublish(msg.OrderingKey)
			}
		},
	}
}

type gcpPublishResult struct {
	*gcppubsub.PublishResult
	resume func()
}

func (r *gcpPublishResult) Get(ctx context.Context) (string, error) {
	if r.PublishResult == nil {
		return "", errors.New("publish result is nil")
	}
	id, err := r.PublishResult.Get(ctx)
	if err != nil {
		r.resume()
	}
	return id, err
}
