//go:build integration

package integration_test

import (
	"encoding/json"
	"net/http"
	"testing"
)

type decisionBody struct {
	Provider string `json:"provider"`
	Model    string `json:"model"`
	Class    string `json:"class"`
	Reason   string `json:"reason"`
}

// TestRouteBudgetAgainstLedger seeds real spend and verifies the budget
// filter reads it back. The default guest ceiling is 5.
func TestRouteBudgetAgainstLedger(t *testing.T) {
	cleanDB(testPool)

	// 400k input + 30k output on high-quality-cloud books 4.00 + 0.90
	seed := postJSON(t, "/api/v1/usage", map[string]any{
		"user_id":       "guest-7",
		"tool_context":  "chat",
		"provider":      "high-quality-cloud",
		"input_tokens":  400000,
		"output_tokens": 30000,
	})
	defer func() { _ = seed.Body.Close() }()
	if seed.StatusCode != http.StatusCreated {
		t.Fatalf("seed spend: expected 201, got %d", seed.StatusCode)
	}

	// 0.10 of headroom left: a 0.05 estimate passes
	resp := postJSON(t, "/api/v1/route", map[string]any{
		"text":              "hi there",
		"caller_id":         "guest-7",
		"caller_role":       "guest",
		"allowed_providers": []string{"free-local", "cheap-cloud"},
		"estimated_cost":    "0.05",
	})
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("within budget: expected 200, got %d", resp.StatusCode)
	}
	var dec decisionBody
	if err := json.NewDecoder(resp.Body).Decode(&dec); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if dec.Provider != "free-local" {
		t.Fatalf("expected free-local for a simple greeting, got %q", dec.Provider)
	}
	if dec.Class != "simple" {
		t.Fatalf("expected class simple, got %q", dec.Class)
	}

	// A 0.20 estimate exceeds what is left of the ceiling
	resp2 := postJSON(t, "/api/v1/route", map[string]any{
		"text":              "hi there",
		"caller_id":         "guest-7",
		"caller_role":       "guest",
		"allowed_providers": []string{"free-local", "cheap-cloud"},
		"estimated_cost":    "0.20",
	})
	defer func() { _ = resp2.Body.Close() }()

	if resp2.StatusCode != http.StatusPaymentRequired {
		t.Fatalf("over budget: expected 402, got %d", resp2.StatusCode)
	}
}

func TestRoutePermissionDenied(t *testing.T) {
	// An allowlist of only unknown names filters down to nothing
	resp := postJSON(t, "/api/v1/route", map[string]any{
		"text":              "hello",
		"caller_id":         "dev-1",
		"allowed_providers": []string{"martian-cloud"},
	})
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusForbidden {
		t.Fatalf("expected 403, got %d", resp.StatusCode)
	}
}

func TestRouteComplexPrefersQuality(t *testing.T) {
	resp := postJSON(t, "/api/v1/route", map[string]any{
		"text": "Analyze the architectural trade-offs between event sourcing and CRUD " +
			"persistence for a multi-tenant billing system, considering auditability, " +
			"replay cost, schema evolution, operational complexity, storage growth, " +
			"consistency guarantees, reporting latency, migration effort, team " +
			"experience, tooling maturity, failure recovery, and long-term maintenance " +
			"burden, then recommend one approach with a detailed justification " +
			"covering every dimension above and the risks it carries.",
		"caller_id":         "dev-1",
		"allowed_providers": []string{"high-quality-cloud", "cheap-cloud", "free-local"},
	})
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
	var dec decisionBody
	if err := json.NewDecoder(resp.Body).Decode(&dec); err != nil {
		t.Fatalf("decode decision: %v", err)
	}
	if dec.Provider != "high-quality-cloud" {
		t.Fatalf("expected high-quality-cloud for complex analysis, got %q", dec.Provider)
	}
}
