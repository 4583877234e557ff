package events

import (
	"context"
	"fmt"
	"time"

	"github.com/go-co-op/gocron/v2"
	"github.com/rs/zerolog"

	"github.com/hackgods/clinic-scheduling/internal/metrics"
)

type outbox interface {
	FetchPending(ctx context.Context, limit int) ([]Event, error)
	MarkPublished(ctx context.Context, ids []int64) (int64, error)
}

// Relay drains the event log into the broker in id order.
type Relay struct {
	store     outbox
	publisher Publisher
	metrics   *metrics.SchedulingMetrics
	logger    zerolog.Logger
	batchSize int
}

func NewRelay(store outbox, publisher Publisher, m *metrics.SchedulingMetrics, logger zerolog.Logger, batchSize int) *Relay {
	if batchSize <= 0 {
		batchSize = 100
	}
	return &Relay{
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger.With().Str("component", "event-relay").Logger(),
		batchSize: batchSize,
	}
}

// RunOnce publishes one batch and returns how many events were relayed. It
// stops at the first publish failure so later events never overtake it.
func (r *Relay) RunOnce(ctx context.Context) (int, error) {
	pending, err := r.store.FetchPending(ctx, r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(pending) == 0 {
		return 0, nil
	}

	published := make([]int64, 0, len(pending))
	var publishErr error
	for _, ev := range pending {
		if err := r.publisher.Publish(ctx, ev); err != nil {
			publishErr = err
			r.logger.Error().Err(err).
				Int64("event_id", ev.ID).
				Str("event_type", ev.EventType).
				Str("tenant_id", ev.TenantID.String()).
				Msg("event publish failed")
			break
		}
		published = append(published, ev.ID)
	}

	r.metrics.ObservePublished("ok", len(published))
	if publishErr != nil {
		r.metrics.ObservePublished("failed", 1)
	}

	if _, err := r.store.MarkPublished(ctx, published); err != nil {
		return 0, fmt.Errorf("events: %d published but not marked: %w", len(published), err)
	}

	if publishErr != nil {
		return len(published), publishErr
	}
	return len(published), nil
}

// Schedule runs the relay every interval until the returned scheduler is shut
// down. Runs never overlap.
func (r *Relay) Schedule(ctx context.Context, interval, timeout time.Duration) (gocron.Scheduler, error) {
	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("events: create scheduler: %w", err)
	}

	_, err = s.NewJob(
		gocron.DurationJob(interval),
		gocron.NewTask(r.tick, ctx, timeout),
		gocron.WithName("event-relay"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("events: register relay job: %w", err)
	}

	s.Start()
	r.logger.Info().Dur("interval", interval).Int("batch_size", r.batchSize).Msg("event relay scheduled")
	return s, nil
}

func (r *Relay) tick(ctx context.Context, timeout time.Duration) {
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	n, err := r.RunOnce(runCtx)
	if err != nil {
		r.logger.Error().Err(err).Int("published", n).Msg("relay run failed")
		return
	}
	if n > 0 {
		r.logger.Info().Int("published", n).Dur("took", time.Since(start)).Msg("relay run complete")
	}
}
