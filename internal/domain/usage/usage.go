// Package usage defines the durable aggregate, the incoming usage event, and
// the derived statistics types of the accounting ledger.
package usage

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/switchyard-ai/switchyard/internal/domain"
	"github.com/switchyard-ai/switchyard/internal/domain/provider"
)

// Aggregate is the durable running total for one (user, tool context,
// provider) key. Counters only grow; reset zeroes them in place, rows are
// never deleted.
type Aggregate struct {
	UserID       string          `json:"user_id"`
	ToolContext  string          `json:"tool_context"`
	Provider     provider.ID     `json:"provider"`
	RequestCount int64           `json:"request_count"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	TotalCost    decimal.Decimal `json:"total_cost"`
	Model        string          `json:"model,omitempty"` // last model used, informational
	LastResetAt  *time.Time      `json:"last_reset_at,omitempty"`
	CreatedAt    time.Time       `json:"created_at"`
	UpdatedAt    time.Time       `json:"updated_at"`
}

// Event is one reported consumption of a provider. The caller reports token
// counts after the provider call completes; cost is computed at write time.
type Event struct {
	UserID          string      `json:"user_id"`
	ToolContext     string      `json:"tool_context"`
	Provider        provider.ID `json:"provider"`
	InputTokens     int64       `json:"input_tokens"`
	OutputTokens    int64       `json:"output_tokens"`
	Model           string      `json:"model,omitempty"`
	ConversationID  string      `json:"conversation_id,omitempty"`
	SourceRequestID string      `json:"source_request_id,omitempty"`
}

// Validate rejects events that must never reach storage.
func (e *Event) Validate() error {
	if e.UserID == "" {
		return fmt.Errorf("%w: user_id is required", domain.ErrValidation)
	}
	if !provider.Valid(e.Provider) {
		return fmt.Errorf("%w: unknown provider %q", domain.ErrValidation, e.Provider)
	}
	if e.InputTokens < 0 {
		return fmt.Errorf("%w: input_tokens must be non-negative", domain.ErrValidation)
	}
	if e.OutputTokens < 0 {
		return fmt.Errorf("%w: output_tokens must be non-negative", domain.ErrValidation)
	}
	return nil
}

// Totals is the counter tuple shared by aggregates and delta events.
type Totals struct {
	RequestCount int64           `json:"request_count"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}

// Delta is pushed to live consumers after every successful write. NewTotals
// reflects the aggregate after the write, DeltaCost the just-added cost.
type Delta struct {
	EventID     string          `json:"event_id"`
	UserID      string          `json:"user_id"`
	ToolContext string          `json:"tool_context"`
	Provider    provider.ID     `json:"provider"`
	DeltaCost   decimal.Decimal `json:"delta_cost"`
	NewTotals   Totals          `json:"new_totals"`
	OccurredAt  time.Time       `json:"occurred_at"`
}

// Filter narrows a stats query. Zero fields match everything.
type Filter struct {
	UserID      string
	ToolContext string
	Provider    provider.ID
}

// ProviderTotals is one per-provider row of a stats response.
type ProviderTotals struct {
	Provider          provider.ID     `json:"provider"`
	Requests          int64           `json:"requests"`
	InputTokens       int64           `json:"input_tokens"`
	OutputTokens      int64           `json:"output_tokens"`
	TotalCost         decimal.Decimal `json:"total_cost"`
	AvgCostPerRequest decimal.Decimal `json:"avg_cost_per_request"`
	AvgCostPerToken   decimal.Decimal `json:"avg_cost_per_token"`
}

// Summary is the grand total over all providers in a stats response.
type Summary struct {
	Requests     int64           `json:"requests"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	TotalCost    decimal.Decimal `json:"total_cost"`
}

// Stats is a point-in-time statistics snapshot.
type Stats struct {
	Providers []ProviderTotals `json:"providers"`
	Summary   Summary          `json:"summary"`
}

// BuildStats derives averages and the grand summary from raw per-provider
// rows. Zero denominators yield zero averages, never a division error.
func BuildStats(rows []ProviderTotals) Stats {
	stats := Stats{Providers: make([]ProviderTotals, 0, len(rows))}
	stats.Summary.TotalCost = decimal.Zero

	for _, row := range rows {
		if row.Requests > 0 {
			row.AvgCostPerRequest = row.TotalCost.Div(decimal.NewFromInt(row.Requests))
		} else {
			row.AvgCostPerRequest = decimal.Zero
		}
		if tokens := row.InputTokens + row.OutputTokens; tokens > 0 {
			row.AvgCostPerToken = row.TotalCost.Div(decimal.NewFromInt(tokens))
		} else {
			row.AvgCostPerToken = decimal.Zero
		}
		stats.Providers = append(stats.Providers, row)

		stats.Summary.Requests += row.Requests
		stats.Summary.InputTokens += row.InputTokens
		stats.Summary.OutputTokens += row.OutputTokens
		stats.Summary.TotalCost = stats.Summary.TotalCost.Add(row.TotalCost)
	}
	return stats
}

// Projection extrapolates recent spend to standard horizons.
type Projection struct {
	WindowDays int             `json:"window_days"`
	BasisCost  decimal.Decimal `json:"basis_cost"` // observed total the rates derive from
	Daily      decimal.Decimal `json:"daily"`
	Weekly     decimal.Decimal `json:"weekly"`
	Monthly    decimal.Decimal `json:"monthly"`
}

// Project treats total as spend accumulated over windowDays and extrapolates
// it. A non-positive window is clamped to one day.
func Project(total decimal.Decimal, windowDays int) Projection {
	if windowDays < 1 {
		windowDays = 1
	}
	daily := total.Div(decimal.NewFromInt(int64(windowDays)))
	return Projection{
		WindowDays: windowDays,
		BasisCost:  total,
		Daily:      daily,
		Weekly:     daily.Mul(decimal.NewFromInt(7)),
		Monthly:    daily.Mul(decimal.NewFromInt(30)),
	}
}

// DailyCost is one day of spend for one provider, used by the daily series.
type DailyCost struct {
	Date         string          `json:"date"` // YYYY-MM-DD
	Provider     provider.ID     `json:"provider"`
	Requests     int64           `json:"requests"`
	InputTokens  int64           `json:"input_tokens"`
	OutputTokens int64           `json:"output_tokens"`
	Cost         decimal.Decimal `json:"cost"`
}
