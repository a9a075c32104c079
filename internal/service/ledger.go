package service

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	syotel "github.com/switchyard-ai/switchyard/internal/adapter/otel"
	"github.com/switchyard-ai/switchyard/internal/adapter/ws"
	"github.com/switchyard-ai/switchyard/internal/domain"
	"github.com/switchyard-ai/switchyard/internal/domain/pricing"
	"github.com/switchyard-ai/switchyard/internal/domain/provider"
	"github.com/switchyard-ai/switchyard/internal/domain/usage"
	"github.com/switchyard-ai/switchyard/internal/port/broadcast"
	"github.com/switchyard-ai/switchyard/internal/port/database"
	"github.com/switchyard-ai/switchyard/internal/port/messagequeue"
)

// LedgerService owns the usage aggregates: it is the only writer, and the
// stats, reset, and projection reads the API serves all go through it.
type LedgerService struct {
	store   database.Store
	queue   messagequeue.Queue
	hub     broadcast.Broadcaster
	metrics *syotel.Metrics

	mu     sync.RWMutex
	prices *pricing.Table
}

// NewLedgerService creates the ledger. queue and hub may be nil; deltas are
// then only persisted, not announced.
func NewLedgerService(store database.Store, prices *pricing.Table, queue messagequeue.Queue, hub broadcast.Broadcaster) *LedgerService {
	return &LedgerService{store: store, prices: prices, queue: queue, hub: hub}
}

// SetMetrics attaches metric instruments. The ledger works without them.
func (s *LedgerService) SetMetrics(m *syotel.Metrics) { s.metrics = m }

// ReplacePrices swaps in a new pricing table, typically after a config
// reload. Recordings already in flight finish on the table they started
// with.
func (s *LedgerService) ReplacePrices(t *pricing.Table) {
	if t == nil {
		return
	}
	s.mu.Lock()
	s.prices = t
	s.mu.Unlock()
}

func (s *LedgerService) priceTable() *pricing.Table {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.prices
}

// RecordUsage validates and books one usage event against the caller's
// aggregate. Validation failures reject the event before any state
// changes. Storage failures are absorbed: the event is logged and dropped
// and the caller gets (nil, nil), because losing one metering sample is
// better than failing the request that produced it.
func (s *LedgerService) RecordUsage(ctx context.Context, ev usage.Event) (*usage.Aggregate, error) {
	ctx, span := syotel.StartRecordSpan(ctx, ev.UserID, string(ev.Provider))
	defer span.End()

	if err := ev.Validate(); err != nil {
		return nil, err
	}

	cost := s.priceTable().Cost(ev.Provider, ev.Model, ev.InputTokens, ev.OutputTokens)

	agg, err := s.store.ApplyUsage(ctx, ev, cost)
	if err != nil {
		slog.Error("usage write failed, event dropped",
			"user_id", ev.UserID, "provider", ev.Provider,
			"input_tokens", ev.InputTokens, "output_tokens", ev.OutputTokens,
			"error", err)
		if s.metrics != nil {
			s.metrics.UsageDropped.Add(ctx, 1, metric.WithAttributes(
				attribute.String("provider", string(ev.Provider)),
			))
		}
		return nil, nil
	}

	if s.metrics != nil {
		attrs := metric.WithAttributes(attribute.String("provider", string(ev.Provider)))
		s.metrics.UsageRecords.Add(ctx, 1, attrs)
		s.metrics.RequestCost.Record(ctx, cost.InexactFloat64(), attrs)
	}

	s.emitDelta(ctx, ev, cost, agg)
	return agg, nil
}

// emitDelta pushes the post-write totals to the owning user's live
// connections and onto the usage.delta stream. Both paths are best-effort;
// the write has already committed.
func (s *LedgerService) emitDelta(ctx context.Context, ev usage.Event, cost decimal.Decimal, agg *usage.Aggregate) {
	delta := usage.Delta{
		EventID:     uuid.NewString(),
		UserID:      ev.UserID,
		ToolContext: ev.ToolContext,
		Provider:    ev.Provider,
		DeltaCost:   cost,
		NewTotals: usage.Totals{
			RequestCount: agg.RequestCount,
			InputTokens:  agg.InputTokens,
			OutputTokens: agg.OutputTokens,
			TotalCost:    agg.TotalCost,
		},
		OccurredAt: time.Now().UTC(),
	}

	if s.hub != nil {
		s.hub.SendToUser(ctx, ev.UserID, ws.EventUsageDelta, delta)
	}

	if s.queue == nil {
		return
	}
	payload, err := json.Marshal(messagequeue.UsageDeltaPayload{
		EventID:     delta.EventID,
		UserID:      delta.UserID,
		ToolContext: delta.ToolContext,
		Provider:    string(delta.Provider),
		DeltaCost:   delta.DeltaCost.String(),
		NewTotals: messagequeue.UsageTotalsPayload{
			RequestCount: delta.NewTotals.RequestCount,
			InputTokens:  delta.NewTotals.InputTokens,
			OutputTokens: delta.NewTotals.OutputTokens,
			TotalCost:    delta.NewTotals.TotalCost.String(),
		},
		OccurredAt: delta.OccurredAt,
	})
	if err != nil {
		slog.Error("marshal usage delta", "error", err)
		return
	}
	if err := s.queue.Publish(ctx, messagequeue.UsageDeltaSubject(ev.UserID), payload); err != nil {
		slog.Warn("usage delta publish failed", "user_id", ev.UserID, "error", err)
	}
}

// CurrentStats returns per-provider totals plus the grand summary for the
// filter. A storage failure degrades to an empty, well-formed snapshot so
// dashboards keep rendering through an outage.
func (s *LedgerService) CurrentStats(ctx context.Context, f usage.Filter) usage.Stats {
	rows, err := s.store.UsageTotals(ctx, f)
	if err != nil {
		slog.Error("usage totals query failed", "error", err)
		return usage.BuildStats(nil)
	}
	return usage.BuildStats(rows)
}

// Reset zeroes the aggregates of one provider, or of every provider when p
// is nil. Rows are zeroed in place, never deleted, so identity and
// timestamps survive. Returns the number of rows touched.
func (s *LedgerService) Reset(ctx context.Context, p *provider.ID) (int64, error) {
	if p != nil && !provider.Valid(*p) {
		return 0, fmt.Errorf("%w: unknown provider %q", domain.ErrValidation, *p)
	}

	rows, err := s.store.ResetUsage(ctx, p)
	if err != nil {
		return 0, fmt.Errorf("reset usage: %w", err)
	}

	ev := ws.UsageResetEvent{Rows: rows, OccurredAt: time.Now().UTC()}
	payload := messagequeue.UsageResetPayload{RowsZeroed: rows, ResetAt: ev.OccurredAt}
	if p != nil {
		ev.Provider = string(*p)
		payload.Provider = string(*p)
	}

	if s.hub != nil {
		s.hub.BroadcastEvent(ctx, ws.EventUsageReset, ev)
	}
	if s.queue != nil {
		if data, err := json.Marshal(payload); err == nil {
			if err := s.queue.Publish(ctx, messagequeue.SubjectUsageReset, data); err != nil {
				slog.Warn("usage reset publish failed", "error", err)
			}
		}
	}

	slog.Info("usage reset", "provider", providerLabel(p), "rows", rows)
	return rows, nil
}

// ProjectSpend treats the current summary total as spend accumulated over
// the given window and extrapolates daily, weekly, and monthly rates.
// Non-positive windows default to 30 days.
func (s *LedgerService) ProjectSpend(ctx context.Context, days int) (usage.Projection, error) {
	if days <= 0 {
		days = 30
	}
	rows, err := s.store.UsageTotals(ctx, usage.Filter{})
	if err != nil {
		return usage.Projection{}, fmt.Errorf("projection totals: %w", err)
	}
	total := usage.BuildStats(rows).Summary.TotalCost
	return usage.Project(total, days), nil
}

// DailySeries returns the per-day cost rollup for the last days days.
func (s *LedgerService) DailySeries(ctx context.Context, days int) ([]usage.DailyCost, error) {
	if days <= 0 {
		days = 30
	}
	rows, err := s.store.DailyCosts(ctx, days)
	if err != nil {
		return nil, fmt.Errorf("daily costs: %w", err)
	}
	return rows, nil
}

func providerLabel(p *provider.ID) string {
	if p == nil {
		return "all"
	}
	return string(*p)
}
