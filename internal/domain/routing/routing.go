// Package routing defines the request, decision, and policy error types for
// provider selection.
package routing

import (
	"errors"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/switchyard-ai/switchyard/internal/domain"
	"github.com/switchyard-ai/switchyard/internal/domain/provider"
)

// Policy errors. All three are terminal: the router never retries internally.
var (
	// ErrPermissionDenied indicates the caller's allowlist shares no member
	// with the globally supported provider set.
	ErrPermissionDenied = errors.New("permission denied: no permitted provider")

	// ErrBudgetExceeded indicates the estimated cost does not fit the
	// caller's remaining budget for the current accounting period.
	ErrBudgetExceeded = errors.New("budget exceeded")

	// ErrNoProviderAvailable indicates every permitted provider failed its
	// liveness check.
	ErrNoProviderAvailable = errors.New("no provider available")
)

// CostPreference expresses how the caller trades cost against quality.
type CostPreference string

const (
	CostFirst    CostPreference = "cost-first"    // cheapest permitted provider wins even for complex requests
	Balanced     CostPreference = "balanced"      // classification decides
	QualityFirst CostPreference = "quality-first" // same as balanced today; reserved for stronger quality bias
)

// Class is the routing classification of a request.
type Class string

const (
	ClassSimple    Class = "simple"    // greetings, acknowledgements, trivial lookups
	ClassComplex   Class = "complex"   // analysis, explanation, comparison, design
	ClassAmbiguous Class = "ambiguous" // no confident signal; treated cost-consciously
)

// Signals is the classifier's verdict over the request text and its recent
// conversation turns.
type Signals struct {
	Class     Class `json:"class"`
	Code      bool  `json:"code"` // request is code-shaped, prefers the specialized backend
	WordCount int   `json:"word_count"`
}

// Request is one routing request. It is ephemeral and never persisted.
type Request struct {
	Text             string           `json:"text"`
	ToolContext      string           `json:"tool_context"`
	Conversation     []string         `json:"conversation,omitempty"` // recent turns, oldest first
	CallerID         string           `json:"caller_id"`
	CallerRole       string           `json:"caller_role,omitempty"`
	AllowedProviders []provider.ID    `json:"allowed_providers"`
	CostPreference   CostPreference   `json:"cost_preference,omitempty"`
	EstimatedCost    *decimal.Decimal `json:"estimated_cost,omitempty"`
}

// Validate checks the request and normalizes defaults in place. An empty cost
// preference becomes Balanced.
func (r *Request) Validate() error {
	if strings.TrimSpace(r.Text) == "" {
		return fmt.Errorf("%w: text is required", domain.ErrValidation)
	}
	if r.CallerID == "" {
		return fmt.Errorf("%w: caller_id is required", domain.ErrValidation)
	}
	switch r.CostPreference {
	case CostFirst, Balanced, QualityFirst:
	case "":
		r.CostPreference = Balanced
	default:
		return fmt.Errorf("%w: unknown cost_preference %q", domain.ErrValidation, r.CostPreference)
	}
	if r.EstimatedCost != nil && r.EstimatedCost.IsNegative() {
		return fmt.Errorf("%w: estimated_cost must be non-negative", domain.ErrValidation)
	}
	return nil
}

// Decision is the outcome of a successful routing call.
type Decision struct {
	Provider      provider.ID     `json:"provider"`
	Model         string          `json:"model,omitempty"`
	Class         Class           `json:"class"`
	Reason        string          `json:"reason"`
	EstimatedCost decimal.Decimal `json:"estimated_cost"`
}

// Ceilings maps a caller role to its monthly spend ceiling. Roles absent
// from the map carry no ceiling and are never budget-filtered.
type Ceilings map[string]decimal.Decimal

// ParseCeilings parses configured role → decimal-string ceilings.
func ParseCeilings(raw map[string]string) (Ceilings, error) {
	out := make(Ceilings, len(raw))
	for role, s := range raw {
		d, err := decimal.NewFromString(s)
		if err != nil {
			return nil, fmt.Errorf("budget ceiling for role %q: %w", role, err)
		}
		if d.IsNegative() {
			return nil, fmt.Errorf("budget ceiling for role %q must be non-negative", role)
		}
		out[role] = d
	}
	return out, nil
}
