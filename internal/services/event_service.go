// Package services – EventService
//
// EventService turns order events from any ingress into notification
// fan-out. When the event carries a key it is claimed in the idempotency
// ledger before publishing, so a redelivered event is acknowledged without
// notifying anyone twice.
package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"gorm.io/gorm"

	"github.com/tbourn/storehub-realtime/internal/domain"
	"github.com/tbourn/storehub-realtime/internal/observability"
	"github.com/tbourn/storehub-realtime/internal/realtime"
	"github.com/tbourn/storehub-realtime/internal/repo"
)

// Notifier is the notification side of the hub.
type Notifier interface {
	Validate(evt domain.OrderEvent) error
	Publish(ctx context.Context, evt domain.OrderEvent) (realtime.PublishResult, error)
}

// IngestResult is what an ingress reports back to the producer.
type IngestResult struct {
	realtime.PublishResult
	// Replayed is true when the key was already claimed; nothing was sent.
	Replayed bool `json:"replayed"`
}

// EventService deduplicates and publishes order events.
type EventService struct {
	DB       *gorm.DB // nil disables deduplication
	Notifier Notifier
	TTL      time.Duration
	Log      zerolog.Logger

	// Now overrides the clock in tests.
	Now func() time.Time
}

func (s *EventService) now() time.Time {
	if s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

// Ingest validates evt, claims (source, key) when key is set, and publishes.
// Validation failures wrap realtime.ErrInvalidEvent.
func (s *EventService) Ingest(ctx context.Context, source, key string, evt domain.OrderEvent) (IngestResult, error) {
	ctx, span := observability.Tracer().Start(ctx, "EventService.Ingest",
		trace.WithAttributes(
			observability.AttrSource.String(source),
			observability.AttrTenant.String(evt.TenantID),
			observability.AttrEvent.String(string(evt.Type)),
		),
	)
	defer span.End()

	if err := s.Notifier.Validate(evt); err != nil {
		span.SetStatus(codes.Error, "invalid event")
		return IngestResult{}, err
	}

	var claim *domain.Idempotency
	if key != "" && s.DB != nil {
		rec, err := repo.ClaimIdempotency(ctx, s.DB, source, key, evt.TenantID, evt.OrderID, s.TTL)
		switch {
		case errors.Is(err, repo.ErrDuplicate):
			span.SetAttributes(observability.AttrReplayed.Bool(true))
			return s.replay(ctx, source, key), nil
		case err != nil:
			span.RecordError(err)
			span.SetStatus(codes.Error, "ledger claim failed")
			return IngestResult{}, fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
		}
		claim = rec
	}

	res, err := s.Notifier.Publish(ctx, evt)
	if err != nil {
		span.RecordError(err)
		return IngestResult{}, err
	}
	span.SetAttributes(observability.AttrRecipients.Int(res.Targeted))

	if claim != nil {
		if err := repo.MarkDelivered(ctx, s.DB, claim.ID, res.Delivered); err != nil {
			s.Log.Warn().Err(err).Str("source", source).Str("key", key).Msg("ledger delivery count not recorded")
		}
	}
	return IngestResult{PublishResult: res}, nil
}

// replay reports the earlier delivery for a claimed key. A lookup failure
// still reports a replay; only the count is lost.
func (s *EventService) replay(ctx context.Context, source, key string) IngestResult {
	out := IngestResult{Replayed: true}
	rec, err := repo.GetIdempotency(ctx, s.DB, source, key, s.now())
	if err != nil {
		s.Log.Debug().Err(err).Str("source", source).Str("key", key).Msg("replayed key lookup failed")
		return out
	}
	out.Delivered = rec.Delivered
	return out
}

// Seen reports whether a live ledger row exists for (source, key).
func (s *EventService) Seen(ctx context.Context, source, key string, now time.Time) (bool, error) {
	if s.DB == nil {
		return false, nil
	}
	_, err := repo.GetIdempotency(ctx, s.DB, source, key, now)
	if errors.Is(err, repo.ErrNotFound) {
		return false, nil
	}
	return err == nil, err
}

// LedgerStats summarizes the live ledger rows for tenantID.
func (s *EventService) LedgerStats(ctx context.Context, tenantID string) (int64, *time.Time, error) {
	if s.DB == nil {
		return 0, nil, nil
	}
	return repo.LedgerStats(ctx, s.DB, tenantID, s.now())
}

// Sweep purges expired ledger rows.
func (s *EventService) Sweep(ctx context.Context) (int64, error) {
	if s.DB == nil {
		return 0, nil
	}
	return repo.PurgeExpiredIdempotency(ctx, s.DB, s.now())
}

// RunSweeper calls Sweep every interval until ctx is done.
func (s *EventService) RunSweeper(ctx context.Context, interval time.Duration) {
	t := time.NewTicker(interval)
	defer t.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-t.C:
			n, err := s.Sweep(ctx)
			if err != nil {
				s.Log.Warn().Err(err).Msg("ledger sweep failed")
				continue
			}
			if n > 0 {
				s.Log.Debug().Int64("purged", n).Msg("ledger sweep")
			}
		}
	}
}
