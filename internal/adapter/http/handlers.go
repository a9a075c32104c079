package http

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"

	"github.com/switchyard-ai/switchyard/internal/domain/pricing"
	"github.com/switchyard-ai/switchyard/internal/domain/provider"
	"github.com/switchyard-ai/switchyard/internal/domain/routing"
	"github.com/switchyard-ai/switchyard/internal/domain/usage"
	"github.com/switchyard-ai/switchyard/internal/service"
)

// Handlers holds the HTTP handler dependencies.
type Handlers struct {
	Router    *service.RouterService
	Ledger    *service.LedgerService
	Providers *service.Registry
	Prices    *pricing.Table
}

// --- Routing ---

// DecideRoute handles POST /api/v1/route
func (h *Handlers) DecideRoute(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[routing.Request](w, r)
	if !ok {
		return
	}

	dec, err := h.Router.Decide(r.Context(), req)
	if err != nil {
		writeDomainError(w, err, "routing rejected")
		return
	}
	writeJSON(w, http.StatusOK, dec)
}

// --- Usage ledger ---

type recordResponse struct {
	Recorded  bool             `json:"recorded"`
	Aggregate *usage.Aggregate `json:"aggregate,omitempty"`
}

// RecordUsage handles POST /api/v1/usage
func (h *Handlers) RecordUsage(w http.ResponseWriter, r *http.Request) {
	ev, ok := readJSON[usage.Event](w, r)
	if !ok {
		return
	}

	agg, err := h.Ledger.RecordUsage(r.Context(), ev)
	if err != nil {
		writeDomainError(w, err, "usage event rejected")
		return
	}
	if agg == nil {
		// Valid event, failed write. The ledger already logged the loss;
		// the caller's request flow continues.
		writeJSON(w, http.StatusAccepted, recordResponse{Recorded: false})
		return
	}
	writeJSON(w, http.StatusCreated, recordResponse{Recorded: true, Aggregate: agg})
}

// UsageStats handles GET /api/v1/usage/stats
func (h *Handlers) UsageStats(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	f := usage.Filter{
		UserID:      q.Get("user_id"),
		ToolContext: q.Get("tool_context"),
	}
	if v := q.Get("provider"); v != "" {
		id := provider.ID(v)
		if !provider.Valid(id) {
			writeError(w, http.StatusBadRequest, "unknown provider: "+v)
			return
		}
		f.Provider = id
	}

	writeJSON(w, http.StatusOK, h.Ledger.CurrentStats(r.Context(), f))
}

type resetRequest struct {
	Provider string `json:"provider"`
}

type resetResponse struct {
	RowsZeroed int64  `json:"rows_zeroed"`
	Provider   string `json:"provider,omitempty"`
}

// ResetUsage handles POST /api/v1/usage/reset. The body is optional; absent
// or empty it resets every provider.
func (h *Handlers) ResetUsage(w http.ResponseWriter, r *http.Request) {
	var req resetRequest
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	var scope *provider.ID
	if req.Provider != "" {
		id := provider.ID(req.Provider)
		scope = &id
	}

	rows, err := h.Ledger.Reset(r.Context(), scope)
	if err != nil {
		writeDomainError(w, err, "reset failed")
		return
	}
	writeJSON(w, http.StatusOK, resetResponse{RowsZeroed: rows, Provider: req.Provider})
}

// CostProjection handles GET /api/v1/usage/projection
func (h *Handlers) CostProjection(w http.ResponseWriter, r *http.Request) {
	proj, err := h.Ledger.ProjectSpend(r.Context(), queryDays(r, 30))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, proj)
}

// DailyUsage handles GET /api/v1/usage/daily
func (h *Handlers) DailyUsage(w http.ResponseWriter, r *http.Request) {
	series, err := h.Ledger.DailySeries(r.Context(), queryDays(r, 30))
	if err != nil {
		writeInternalError(w, err)
		return
	}
	if series == nil {
		series = []usage.DailyCost{}
	}
	writeJSON(w, http.StatusOK, series)
}

// --- Provider fleet ---

type providerRow struct {
	service.ProviderStatus
	Pricing pricing.Entry `json:"pricing"`
}

// ListProviders handles GET /api/v1/providers
func (h *Handlers) ListProviders(w http.ResponseWriter, r *http.Request) {
	statuses := h.Providers.Statuses(r.Context())

	rows := make([]providerRow, 0, len(statuses))
	for _, st := range statuses {
		rows = append(rows, providerRow{
			ProviderStatus: st,
			Pricing:        h.Prices.Lookup(st.Provider, st.Model),
		})
	}
	writeJSON(w, http.StatusOK, rows)
}

// queryDays parses the days query parameter, falling back when absent or junk.
func queryDays(r *http.Request, fallback int) int {
	if d := r.URL.Query().Get("days"); d != "" {
		if parsed, err := strconv.Atoi(d); err == nil && parsed > 0 {
			return parsed
		}
	}
	return fallback
}
