package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/switchyard-ai/switchyard/internal/domain/provider"
	"github.com/switchyard-ai/switchyard/internal/domain/usage"
)

// Store implements database.Store using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// aggregateColumns is the SELECT column list for usage_aggregates queries.
const aggregateColumns = `user_id, tool_context, provider, request_count, input_tokens, output_tokens, total_cost, model, last_reset_at, created_at, updated_at`

// ApplyUsage adds one event to its aggregate row and the daily rollup in a
// single transaction. The additive upsert serializes concurrent writers on
// the row lock, so the returned totals are exact under any interleaving.
func (s *Store) ApplyUsage(ctx context.Context, ev usage.Event, cost decimal.Decimal) (*usage.Aggregate, error) {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck // rollback after commit is a no-op

	row := tx.QueryRow(ctx,
		`INSERT INTO usage_aggregates (user_id, tool_context, provider, request_count, input_tokens, output_tokens, total_cost, model)
		 VALUES ($1, $2, $3, 1, $4, $5, $6, $7)
		 ON CONFLICT (user_id, tool_context, provider) DO UPDATE SET
		   request_count = usage_aggregates.request_count + 1,
		   input_tokens  = usage_aggregates.input_tokens + EXCLUDED.input_tokens,
		   output_tokens = usage_aggregates.output_tokens + EXCLUDED.output_tokens,
		   total_cost    = usage_aggregates.total_cost + EXCLUDED.total_cost,
		   model         = CASE WHEN EXCLUDED.model = '' THEN usage_aggregates.model ELSE EXCLUDED.model END,
		   updated_at    = now()
		 RETURNING `+aggregateColumns,
		ev.UserID, ev.ToolContext, string(ev.Provider), ev.InputTokens, ev.OutputTokens, cost, ev.Model)

	agg, err := scanAggregate(row)
	if err != nil {
		return nil, fmt.Errorf("apply usage for %s/%s/%s: %w", ev.UserID, ev.ToolContext, ev.Provider, err)
	}

	_, err = tx.Exec(ctx,
		`INSERT INTO daily_usage (day, user_id, provider, request_count, input_tokens, output_tokens, total_cost)
		 VALUES (CURRENT_DATE, $1, $2, 1, $3, $4, $5)
		 ON CONFLICT (day, user_id, provider) DO UPDATE SET
		   request_count = daily_usage.request_count + 1,
		   input_tokens  = daily_usage.input_tokens + EXCLUDED.input_tokens,
		   output_tokens = daily_usage.output_tokens + EXCLUDED.output_tokens,
		   total_cost    = daily_usage.total_cost + EXCLUDED.total_cost`,
		ev.UserID, string(ev.Provider), ev.InputTokens, ev.OutputTokens, cost)
	if err != nil {
		return nil, fmt.Errorf("apply daily usage for %s/%s: %w", ev.UserID, ev.Provider, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit usage: %w", err)
	}
	return &agg, nil
}

// GetAggregate returns the aggregate for one key.
func (s *Store) GetAggregate(ctx context.Context, userID, toolContext string, p provider.ID) (*usage.Aggregate, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+aggregateColumns+`
		 FROM usage_aggregates WHERE user_id = $1 AND tool_context = $2 AND provider = $3`,
		userID, toolContext, string(p))

	agg, err := scanAggregate(row)
	if err != nil {
		return nil, notFoundWrap(err, "get aggregate %s/%s/%s", userID, toolContext, p)
	}
	return &agg, nil
}

// UsageTotals returns raw per-provider totals matching the filter. Averages
// are left zero; usage.BuildStats derives them.
func (s *Store) UsageTotals(ctx context.Context, f usage.Filter) ([]usage.ProviderTotals, error) {
	var args []any
	var conditions []string

	if f.UserID != "" {
		args = append(args, f.UserID)
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", len(args)))
	}
	if f.ToolContext != "" {
		args = append(args, f.ToolContext)
		conditions = append(conditions, fmt.Sprintf("tool_context = $%d", len(args)))
	}
	if f.Provider != "" {
		args = append(args, string(f.Provider))
		conditions = append(conditions, fmt.Sprintf("provider = $%d", len(args)))
	}

	query := `SELECT provider, COALESCE(SUM(request_count), 0), COALESCE(SUM(input_tokens), 0),
	                 COALESCE(SUM(output_tokens), 0), COALESCE(SUM(total_cost), 0)
	          FROM usage_aggregates`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	query += " GROUP BY provider ORDER BY provider ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("usage totals: %w", err)
	}
	defer rows.Close()

	var totals []usage.ProviderTotals
	for rows.Next() {
		var t usage.ProviderTotals
		var p string
		if err := rows.Scan(&p, &t.Requests, &t.InputTokens, &t.OutputTokens, &t.TotalCost); err != nil {
			return nil, fmt.Errorf("scan usage totals: %w", err)
		}
		t.Provider = provider.ID(p)
		totals = append(totals, t)
	}
	return totals, rows.Err()
}

// ResetUsage zeroes the counters of every aggregate for the given provider,
// or of all aggregates when p is nil. Rows are kept; only counters reset.
func (s *Store) ResetUsage(ctx context.Context, p *provider.ID) (int64, error) {
	query := `UPDATE usage_aggregates
	          SET request_count = 0, input_tokens = 0, output_tokens = 0, total_cost = 0,
	              last_reset_at = now(), updated_at = now()`
	var args []any
	if p != nil {
		query += " WHERE provider = $1"
		args = append(args, string(*p))
	}

	tag, err := s.pool.Exec(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("reset usage: %w", err)
	}
	return tag.RowsAffected(), nil
}

// DailyCosts returns per-day per-provider spend over the last `days` days,
// oldest day first. Days with no usage produce no row.
func (s *Store) DailyCosts(ctx context.Context, days int) ([]usage.DailyCost, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT TO_CHAR(day, 'YYYY-MM-DD'), provider, SUM(request_count), SUM(input_tokens), SUM(output_tokens), SUM(total_cost)
		 FROM daily_usage
		 WHERE day > CURRENT_DATE - $1::int
		 GROUP BY day, provider
		 ORDER BY day ASC, provider ASC`, days)
	if err != nil {
		return nil, fmt.Errorf("daily costs: %w", err)
	}
	defer rows.Close()

	var costs []usage.DailyCost
	for rows.Next() {
		var d usage.DailyCost
		var p string
		if err := rows.Scan(&d.Date, &p, &d.Requests, &d.InputTokens, &d.OutputTokens, &d.Cost); err != nil {
			return nil, fmt.Errorf("scan daily cost: %w", err)
		}
		d.Provider = provider.ID(p)
		costs = append(costs, d)
	}
	return costs, rows.Err()
}

// UserSpendSince sums the user's spend recorded on or after `since` from the
// daily rollup. Aggregate resets do not touch the rollup, so budget checks
// stay accurate across resets.
func (s *Store) UserSpendSince(ctx context.Context, userID string, since time.Time) (decimal.Decimal, error) {
	var spend decimal.Decimal
	err := s.pool.QueryRow(ctx,
		`SELECT COALESCE(SUM(total_cost), 0) FROM daily_usage WHERE user_id = $1 AND day >= $2::date`,
		userID, since).Scan(&spend)
	if err != nil {
		return decimal.Zero, fmt.Errorf("user spend since %s: %w", since.Format("2006-01-02"), err)
	}
	return spend, nil
}

func scanAggregate(row scannable) (usage.Aggregate, error) {
	var a usage.Aggregate
	var p string
	err := row.Scan(&a.UserID, &a.ToolContext, &p, &a.RequestCount, &a.InputTokens, &a.OutputTokens,
		&a.TotalCost, &a.Model, &a.LastResetAt, &a.CreatedAt, &a.UpdatedAt)
	a.Provider = provider.ID(p)
	return a, err
}
