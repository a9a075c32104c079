// Package database defines the storage port for the usage ledger.
package database

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/switchyard-ai/switchyard/internal/domain/provider"
	"github.com/switchyard-ai/switchyard/internal/domain/usage"
)

// Store is the persistence interface the ledger runs on. Implementations must
// make ApplyUsage atomic per aggregate key: concurrent writes to the same
// (user, tool context, provider) key serialize in storage, never in memory.
type Store interface {
	// ApplyUsage adds one request, the event's token counts, and cost to the
	// aggregate for the event's key, creating the row on first write. It
	// returns the aggregate as it stands after this write.
	ApplyUsage(ctx context.Context, ev usage.Event, cost decimal.Decimal) (*usage.Aggregate, error)

	// UsageTotals returns raw per-provider totals matching the filter.
	// Averages are left zero; callers derive them.
	UsageTotals(ctx context.Context, f usage.Filter) ([]usage.ProviderTotals, error)

	// ResetUsage zeroes the counters of every aggregate for the given
	// provider, or of all aggregates when p is nil. Rows survive. Returns
	// the number of rows zeroed.
	ResetUsage(ctx context.Context, p *provider.ID) (int64, error)

	// DailyCosts returns per-day per-provider spend over the last days days,
	// oldest first.
	DailyCosts(ctx context.Context, days int) ([]usage.DailyCost, error)

	// UserSpendSince returns the user's total spend recorded on or after
	// since. Unlike aggregate totals this survives resets.
	UserSpendSince(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error)
}
