// Package pricing defines the per-token price table used to turn token counts
// into monetary cost. All arithmetic is exact decimal; binary floats never
// touch money.
package pricing

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/switchyard-ai/switchyard/internal/domain/provider"
)

// costScale bounds stored cost precision. Products of per-1K rates and token
// counts terminate well inside 10 decimal places for any realistic rate.
const costScale = 10

// Entry is one immutable price row. A row with an empty Model is the
// provider-wide default used when no model-specific row matches.
type Entry struct {
	Provider    provider.ID     `json:"provider"`
	Model       string          `json:"model,omitempty"`
	InputPer1K  decimal.Decimal `json:"input_per_1k"`
	OutputPer1K decimal.Decimal `json:"output_per_1k"`
}

// Cost returns the exact cost of the given token counts at this entry's rates.
func (e Entry) Cost(inputTokens, outputTokens int64) decimal.Decimal {
	in := decimal.NewFromInt(inputTokens).Mul(e.InputPer1K).Shift(-3)
	out := decimal.NewFromInt(outputTokens).Mul(e.OutputPer1K).Shift(-3)
	return in.Add(out).Round(costScale)
}

// Rate is the string form of an Entry as it appears in configuration.
type Rate struct {
	Provider    string
	Model       string
	InputPer1K  string
	OutputPer1K string
}

// Table is a read-only snapshot of price entries keyed by (provider, model).
type Table struct {
	byModel  map[provider.ID]map[string]Entry
	defaults map[provider.ID]Entry
}

// NewTable builds a Table from entries. Later entries for the same
// (provider, model) key replace earlier ones.
func NewTable(entries []Entry) *Table {
	t := &Table{
		byModel:  make(map[provider.ID]map[string]Entry),
		defaults: make(map[provider.ID]Entry),
	}
	for _, e := range entries {
		if e.Model == "" {
			t.defaults[e.Provider] = e
			continue
		}
		m, ok := t.byModel[e.Provider]
		if !ok {
			m = make(map[string]Entry)
			t.byModel[e.Provider] = m
		}
		m[e.Model] = e
	}
	return t
}

// FromRates parses configured string rates into a Table.
func FromRates(rates []Rate) (*Table, error) {
	entries := make([]Entry, 0, len(rates))
	for _, r := range rates {
		id := provider.ID(r.Provider)
		if !provider.Valid(id) {
			return nil, fmt.Errorf("pricing: unknown provider %q", r.Provider)
		}
		in, err := decimal.NewFromString(r.InputPer1K)
		if err != nil {
			return nil, fmt.Errorf("pricing: %s/%s input rate %q: %w", r.Provider, r.Model, r.InputPer1K, err)
		}
		out, err := decimal.NewFromString(r.OutputPer1K)
		if err != nil {
			return nil, fmt.Errorf("pricing: %s/%s output rate %q: %w", r.Provider, r.Model, r.OutputPer1K, err)
		}
		if in.IsNegative() || out.IsNegative() {
			return nil, fmt.Errorf("pricing: %s/%s rates must be non-negative", r.Provider, r.Model)
		}
		entries = append(entries, Entry{Provider: id, Model: r.Model, InputPer1K: in, OutputPer1K: out})
	}
	return NewTable(entries), nil
}

// Default returns the shipped price table. Rates are placeholders meant to be
// overridden by deployment configuration.
func Default() *Table {
	d := func(s string) decimal.Decimal { return decimal.RequireFromString(s) }
	return NewTable([]Entry{
		{Provider: provider.HighQualityCloud, InputPer1K: d("0.01"), OutputPer1K: d("0.03")},
		{Provider: provider.CheapCloud, InputPer1K: d("0.0005"), OutputPer1K: d("0.0015")},
		{Provider: provider.CodeSpecialized, InputPer1K: d("0.003"), OutputPer1K: d("0.006")},
		{Provider: provider.FreeLocal, InputPer1K: decimal.Zero, OutputPer1K: decimal.Zero},
	})
}

// Lookup resolves the entry for (p, model): the model-specific row when one
// exists, otherwise the provider default. An unpriced provider resolves to a
// zero-rate entry.
func (t *Table) Lookup(p provider.ID, model string) Entry {
	if model != "" {
		if m, ok := t.byModel[p]; ok {
			if e, ok := m[model]; ok {
				return e
			}
		}
	}
	if e, ok := t.defaults[p]; ok {
		return e
	}
	return Entry{Provider: p}
}

// Cost computes the exact cost of the given token counts at the rates active
// for (p, model).
func (t *Table) Cost(p provider.ID, model string, inputTokens, outputTokens int64) decimal.Decimal {
	return t.Lookup(p, model).Cost(inputTokens, outputTokens)
}

// Entries returns every row in the table, defaults first. The slice is a copy.
func (t *Table) Entries() []Entry {
	out := make([]Entry, 0, len(t.defaults))
	for _, id := range provider.All() {
		if e, ok := t.defaults[id]; ok {
			out = append(out, e)
		}
		for _, e := range t.byModel[id] {
			out = append(out, e)
		}
	}
	return out
}
