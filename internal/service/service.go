package service

import (
	"context"
	"errors"
	"sync"
	"time"

	"go.uber.org/zap"

	"fastpos/backend/internal/domain"
	"fastpos/backend/internal/metrics"
	"fastpos/backend/internal/notify"
	"fastpos/backend/internal/store"
)

const (
	RoleAdmin   = "admin"
	RoleCashier = "cashier"
	RoleWaiter  = "waiter"
)

const eventTimeout = 5 * time.Second

var ErrAdminRequired = errors.New("admin role required")

type actorContextKey struct{}

func WithActor(ctx context.Context, actor domain.Actor) context.Context {
	return context.WithValue(ctx, actorContextKey{}, actor)
}

func ActorFromContext(ctx context.Context) (domain.Actor, bool) {
	actor, ok := ctx.Value(actorContextKey{}).(domain.Actor)
	return actor, ok
}

type Service struct {
	repo         store.Repository
	metrics      *metrics.Aggregator
	publisher    notify.Publisher
	logger       *zap.Logger
	businessName string
	now          func() time.Time

	events sync.WaitGroup
}

func New(repo store.Repository, aggregator *metrics.Aggregator, publisher notify.Publisher, logger *zap.Logger, businessName string) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	if aggregator == nil {
		aggregator = metrics.NewAggregator(repo, nil, 0, nil, 0, logger)
	}
	if publisher == nil {
		publisher = notify.Noop{}
	}
	return &Service{
		repo:         repo,
		metrics:      aggregator,
		publisher:    publisher,
		logger:       logger.Named("service"),
		businessName: businessName,
		now:          func() time.Time { return time.Now().UTC() },
	}
}

// Drain waits for in-flight notifications to finish.
func (s *Service) Drain() {
	s.events.Wait()
}

// dispatch runs send in the background. The request context is detached so
// a finished HTTP call does not cut the publish short.
func (s *Service) dispatch(ctx context.Context, event string, send func(context.Context) error) {
	s.events.Add(1)
	go func() {
		defer s.events.Done()
		ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), eventTimeout)
		defer cancel()
		if err := send(ctx); err != nil {
			s.logger.Warn("event publish failed", zap.String("event", event), zap.Error(err))
		}
	}()
}

func (s *Service) audit(ctx context.Context, action string, entityType string, entityID string, fields ...zap.Field) {
	actor, ok := ActorFromContext(ctx)
	if !ok {
		actor = domain.Actor{CashierID: "system", Role: "system"}
	}
	base := []zap.Field{
		zap.Bool("audit", true),
		zap.String("action", action),
		zap.String("entity_type", entityType),
		zap.String("entity_id", entityID),
		zap.String("actor_id", actor.CashierID),
		zap.String("actor_role", actor.Role),
	}
	s.logger.Info("audit", append(base, fields...)...)
}

func requireAdmin(ctx context.Context) error {
	actor, ok := ActorFromContext(ctx)
	if !ok || actor.Role != RoleAdmin {
		return ErrAdminRequired
	}
	return nil
}
