package gateway_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/switchyard-ai/switchyard/internal/adapter/gateway"
	"github.com/switchyard-ai/switchyard/internal/config"
	"github.com/switchyard-ai/switchyard/internal/domain/provider"
	"github.com/switchyard-ai/switchyard/internal/resilience"
)

// singleProvider configures only cheap-cloud, pointed at url.
func singleProvider(url string) config.Providers {
	return config.Providers{
		CheapCloud: config.Provider{Endpoint: url, Model: "gpt-4o-mini"},
	}
}

func TestHealth_Healthy(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/models" {
			t.Fatalf("unexpected path: %s", r.URL.Path)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":[{"id":"gpt-4o-mini"}]}`))
	}))
	defer srv.Close()

	client := gateway.NewClient(singleProvider(srv.URL), time.Second)
	healthy, err := client.Health(context.Background(), provider.CheapCloud)
	if err != nil {
		t.Fatalf("Health failed: %v", err)
	}
	if !healthy {
		t.Fatal("expected healthy")
	}
}

func TestHealth_UnhealthyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte(`{"error":"overloaded"}`))
	}))
	defer srv.Close()

	client := gateway.NewClient(singleProvider(srv.URL), time.Second)
	healthy, err := client.Health(context.Background(), provider.CheapCloud)
	if err != nil {
		t.Fatalf("an error status is not a probe error, got: %v", err)
	}
	if healthy {
		t.Fatal("expected unhealthy")
	}
}

func TestHealth_TransportError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	url := srv.URL
	srv.Close() // nothing listens anymore

	client := gateway.NewClient(singleProvider(url), time.Second)
	healthy, err := client.Health(context.Background(), provider.CheapCloud)
	if err == nil {
		t.Fatal("expected transport error, got nil")
	}
	if healthy {
		t.Fatal("expected unhealthy on transport error")
	}
}

func TestHealth_Timeout(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		time.Sleep(300 * time.Millisecond)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	client := gateway.NewClient(singleProvider(srv.URL), 50*time.Millisecond)
	healthy, err := client.Health(context.Background(), provider.CheapCloud)
	if err == nil {
		t.Fatal("expected timeout error, got nil")
	}
	if healthy {
		t.Fatal("expected unhealthy on timeout")
	}
}

func TestHealth_NotConfigured(t *testing.T) {
	client := gateway.NewClient(config.Providers{}, time.Second)

	_, err := client.Health(context.Background(), provider.FreeLocal)
	if err == nil {
		t.Fatal("expected error for unconfigured provider")
	}
}

func TestProviders_CanonicalOrder(t *testing.T) {
	cfg := config.Providers{
		// Deliberately sparse: only two of four configured.
		FreeLocal:        config.Provider{Endpoint: "http://localhost:11434", Model: "llama3.1:8b"},
		HighQualityCloud: config.Provider{Endpoint: "http://localhost:4001", Model: "gpt-4o"},
	}
	client := gateway.NewClient(cfg, time.Second)

	got := client.Providers()
	want := []provider.ID{provider.HighQualityCloud, provider.FreeLocal}
	if len(got) != len(want) {
		t.Fatalf("expected %d providers, got %d", len(want), len(got))
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("providers[%d] = %s, want %s", i, got[i], want[i])
		}
	}
}

func TestModel(t *testing.T) {
	client := gateway.NewClient(singleProvider("http://localhost:4002"), time.Second)

	if got := client.Model(provider.CheapCloud); got != "gpt-4o-mini" {
		t.Errorf("Model(cheap-cloud) = %q, want gpt-4o-mini", got)
	}
	if got := client.Model(provider.FreeLocal); got != "" {
		t.Errorf("Model(free-local) = %q, want empty for unconfigured", got)
	}
	if got := client.BreakerState(provider.CheapCloud); got != "" {
		t.Errorf("BreakerState = %q, want empty without a breaker", got)
	}
}

func TestHealth_BreakerOpensOnTransportFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
	}))
	url := srv.URL
	srv.Close()

	client := gateway.NewClient(singleProvider(url), time.Second)
	client.SetBreaker(provider.CheapCloud, resilience.NewBreaker(1, time.Minute))

	// First probe fails and trips the breaker.
	if _, err := client.Health(context.Background(), provider.CheapCloud); err == nil {
		t.Fatal("expected transport error")
	}

	// Second probe is rejected without touching the network.
	_, err := client.Health(context.Background(), provider.CheapCloud)
	if !errors.Is(err, resilience.ErrCircuitOpen) {
		t.Fatalf("expected ErrCircuitOpen, got %v", err)
	}

	if got := client.BreakerState(provider.CheapCloud); got != "open" {
		t.Errorf("BreakerState = %q, want open", got)
	}
}

func TestHealth_BreakerIgnoresUnhealthyStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := gateway.NewClient(singleProvider(srv.URL), time.Second)
	client.SetBreaker(provider.CheapCloud, resilience.NewBreaker(1, time.Minute))

	// An unhealthy response is a completed probe; it must not trip the breaker.
	for i := 0; i < 3; i++ {
		healthy, err := client.Health(context.Background(), provider.CheapCloud)
		if err != nil {
			t.Fatalf("probe %d: unexpected error %v", i, err)
		}
		if healthy {
			t.Fatalf("probe %d: expected unhealthy", i)
		}
	}
}
