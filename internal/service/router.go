package service

import (
	"context"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	syotel "github.com/switchyard-ai/switchyard/internal/adapter/otel"
	"github.com/switchyard-ai/switchyard/internal/domain/provider"
	"github.com/switchyard-ai/switchyard/internal/domain/routing"
	"github.com/switchyard-ai/switchyard/internal/port/database"
)

// Classifier turns request text and recent conversation turns into routing
// signals. The heuristic implementation lives in internal/classify.
type Classifier interface {
	Classify(text string, history []string) routing.Signals
}

// Availability answers liveness and model questions about providers. The
// Registry implements it.
type Availability interface {
	Available(ctx context.Context, id provider.ID) bool
	Model(id provider.ID) string
}

// RouterService decides which provider serves a request. The policy is a
// fixed pipeline: permission, budget, classification, availability. Each
// stage either passes the request on or fails it terminally; a request
// rejected for budget is never silently downgraded to a cheaper provider.
type RouterService struct {
	classifier Classifier
	avail      Availability
	store      database.Store
	metrics    *syotel.Metrics
	now        func() time.Time

	mu       sync.RWMutex
	ceilings routing.Ceilings
}

// NewRouterService creates the routing service. ceilings maps caller roles
// to monthly budget ceilings; roles without an entry are not budget-checked.
func NewRouterService(classifier Classifier, avail Availability, store database.Store, ceilings routing.Ceilings) *RouterService {
	return &RouterService{
		classifier: classifier,
		avail:      avail,
		store:      store,
		ceilings:   ceilings,
		now:        time.Now,
	}
}

// SetMetrics attaches metric instruments. Decisions work without them.
func (s *RouterService) SetMetrics(m *syotel.Metrics) { s.metrics = m }

// ReplaceCeilings swaps the role-to-ceiling mapping, typically after a
// config reload. Decisions already past the budget check are unaffected.
func (s *RouterService) ReplaceCeilings(c routing.Ceilings) {
	if c == nil {
		return
	}
	s.mu.Lock()
	s.ceilings = c
	s.mu.Unlock()
}

func (s *RouterService) ceiling(role string) (decimal.Decimal, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.ceilings[role]
	return c, ok
}

// Decide picks the provider and model for a request. Identical requests
// against identical provider availability produce identical decisions.
func (s *RouterService) Decide(ctx context.Context, req routing.Request) (*routing.Decision, error) {
	ctx, span := syotel.StartDecideSpan(ctx, req.CallerID, req.ToolContext)
	defer span.End()

	if err := req.Validate(); err != nil {
		s.reject(ctx, "validation")
		return nil, err
	}

	// Permission first: the caller's allowlist intersected with the
	// supported set. NewSet already drops unknown names.
	allowed := provider.NewSet(req.AllowedProviders...)
	if len(allowed) == 0 {
		s.reject(ctx, "permission_denied")
		return nil, routing.ErrPermissionDenied
	}

	if err := s.checkBudget(ctx, req); err != nil {
		s.reject(ctx, "budget_exceeded")
		return nil, err
	}

	sig := s.classifier.Classify(req.Text, req.Conversation)
	order, reason := orderFor(sig, req.CostPreference)

	candidates := provider.Intersect(order, allowed, provider.NewSet(provider.All()...))

	var skipped []string
	for _, id := range candidates {
		if !s.avail.Available(ctx, id) {
			skipped = append(skipped, string(id))
			continue
		}

		dec := &routing.Decision{
			Provider: id,
			Model:    s.avail.Model(id),
			Class:    sig.Class,
			Reason:   reason,
		}
		if len(skipped) > 0 {
			dec.Reason = reason + "; skipped unavailable: " + strings.Join(skipped, ", ")
		}
		if req.EstimatedCost != nil {
			dec.EstimatedCost = *req.EstimatedCost
		}

		if s.metrics != nil {
			s.metrics.RouteDecisions.Add(ctx, 1, metric.WithAttributes(
				attribute.String("provider", string(id)),
				attribute.String("class", string(sig.Class)),
			))
		}
		slog.Info("route decided",
			"caller", req.CallerID, "provider", id, "model", dec.Model,
			"class", sig.Class, "code", sig.Code)
		return dec, nil
	}

	s.reject(ctx, "no_provider")
	return nil, routing.ErrNoProviderAvailable
}

func (s *RouterService) reject(ctx context.Context, reason string) {
	if s.metrics == nil {
		return
	}
	s.metrics.RouteRejections.Add(ctx, 1, metric.WithAttributes(
		attribute.String("reason", reason),
	))
}

// checkBudget rejects the request when its estimated cost exceeds what is
// left of the caller's ceiling for the current calendar month. Requests
// without an estimate and roles without a ceiling pass untouched.
func (s *RouterService) checkBudget(ctx context.Context, req routing.Request) error {
	if req.EstimatedCost == nil {
		return nil
	}
	ceiling, ok := s.ceiling(req.CallerRole)
	if !ok {
		return nil
	}

	spent, err := s.store.UserSpendSince(ctx, req.CallerID, monthStart(s.now()))
	if err != nil {
		// Metering must not take routing down with it; an unreadable
		// ledger skips the filter instead of rejecting every request.
		slog.Error("budget spend lookup failed", "caller", req.CallerID, "error", err)
		return nil
	}

	if req.EstimatedCost.GreaterThan(ceiling.Sub(spent)) {
		slog.Info("request over budget",
			"caller", req.CallerID, "role", req.CallerRole,
			"estimated", req.EstimatedCost, "spent", spent, "ceiling", ceiling)
		return routing.ErrBudgetExceeded
	}
	return nil
}

// orderFor maps the classification and the caller's preference onto a
// provider ordering plus the reason recorded on the decision. A cost-first
// preference overrides the classification outcome.
func orderFor(sig routing.Signals, pref routing.CostPreference) ([]provider.ID, string) {
	switch {
	case pref == routing.CostFirst:
		return provider.ByCost(), "cost-first preference selects the cheapest permitted provider"
	case sig.Code:
		return provider.ForCode(), "code-shaped request prefers the specialized backend"
	case sig.Class == routing.ClassComplex:
		return provider.ByQuality(), "complex reasoning routed to the highest-quality permitted provider"
	case sig.Class == routing.ClassSimple:
		return provider.ByCost(), "simple request routed to the cheapest permitted provider"
	default:
		return provider.ByCost(), "no confident signal; cost-conscious default"
	}
}

// monthStart returns midnight UTC on the first day of now's month. Budget
// windows are calendar months, not rolling 30-day windows.
func monthStart(now time.Time) time.Time {
	y, m, _ := now.UTC().Date()
	return time.Date(y, m, 1, 0, 0, 0, 0, time.UTC)
}
