package messagequeue

import "time"

// UsageDeltaPayload is the schema for usage.delta.{userId} messages.
// Money fields are decimal strings; they must never be parsed as floats.
type UsageDeltaPayload struct {
	EventID     string             `json:"event_id"`
	UserID      string             `json:"user_id"`
	ToolContext string             `json:"tool_context"`
	Provider    string             `json:"provider"`
	DeltaCost   string             `json:"delta_cost"`
	NewTotals   UsageTotalsPayload `json:"new_totals"`
	OccurredAt  time.Time          `json:"occurred_at"`
}

// UsageTotalsPayload carries the aggregate counters after a write.
type UsageTotalsPayload struct {
	RequestCount int64  `json:"request_count"`
	InputTokens  int64  `json:"input_tokens"`
	OutputTokens int64  `json:"output_tokens"`
	TotalCost    string `json:"total_cost"`
}

// UsageResetPayload is the schema for usage.reset messages.
type UsageResetPayload struct {
	Provider   string    `json:"provider,omitempty"` // empty means all providers
	RowsZeroed int64     `json:"rows_zeroed"`
	ResetAt    time.Time `json:"reset_at"`
}

// ProviderHealthPayload is the schema for providers.health messages.
type ProviderHealthPayload struct {
	Provider  string    `json:"provider"`
	Healthy   bool      `json:"healthy"`
	CheckedAt time.Time `json:"checked_at"`
}
