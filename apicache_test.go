package apicache

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/sirupsen/logrus"

	"github.com/fofxtools/api-cache/internal/config"
	"github.com/fofxtools/api-cache/internal/testutil"
)

func strPtr(s string) *string { return &s }

func newTestManager(t *testing.T, clients map[string]config.ClientConfig) *Manager {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	cfg := &config.Config{
		Clients:                      clients,
		DefaultCompressionEnabled:    false,
		DefaultRateLimitMaxAttempts:  1000,
		DefaultRateLimitDecaySeconds: 60,
	}

	m := New(logger, testutil.NewDB(t), cfg)
	for client := range clients {
		if err := m.EnsureClient(client); err != nil {
			t.Fatalf("EnsureClient(%s) error = %v", client, err)
		}
	}
	return m
}

// TestCacheMissRemoteCallFlow walks the intended caller sequence: derive a
// key, miss, pass admission, store the remote result, then hit.
func TestCacheMissRemoteCallFlow(t *testing.T) {
	m := newTestManager(t, map[string]config.ClientConfig{
		"data-for-seo": {CompressionEnabled: true, RateLimitMaxAttempts: 5, RateLimitDecaySeconds: 60},
	})
	ctx := context.Background()

	params := map[string]any{"keyword": "api cache", "location_code": 2840}
	key, err := m.DeriveKey("data-for-seo", "serp/google/organic/live", params, "POST", "v3")
	if err != nil {
		t.Fatalf("DeriveKey() error = %v", err)
	}

	record, err := m.Get(ctx, "data-for-seo", key, nil)
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if record != nil {
		t.Fatal("expected a miss before anything is stored")
	}

	if err := m.CheckRateLimit("data-for-seo"); err != nil {
		t.Fatalf("CheckRateLimit() error = %v", err)
	}

	// The remote call happens here; persist its result.
	body := PrepareBody(strPtr(`{"tasks": [{"id": "0123"}]}`), true)
	headers, err := PrepareHeaders(map[string]any{"Content-Type": "application/json"}, true)
	if err != nil {
		t.Fatalf("PrepareHeaders() error = %v", err)
	}
	resp := &Response{
		Endpoint:        "serp/google/organic/live",
		Method:          strPtr("POST"),
		ResponseHeaders: headers,
		ResponseBody:    body,
	}
	if err := m.StoreResponse(ctx, "data-for-seo", key, resp, nil, nil); err != nil {
		t.Fatalf("StoreResponse() error = %v", err)
	}

	record, err = m.Get(ctx, "data-for-seo", key, nil)
	if err != nil {
		t.Fatalf("Get() after store error = %v", err)
	}
	if record == nil {
		t.Fatal("expected a hit after store")
	}
	if record.ResponseBody == nil || *record.ResponseBody != *body {
		t.Errorf("ResponseBody = %v, want %q", record.ResponseBody, *body)
	}

	restored, err := RetrieveHeaders(record.ResponseHeaders)
	if err != nil {
		t.Fatalf("RetrieveHeaders() error = %v", err)
	}
	if restored["Content-Type"] != "application/json" {
		t.Errorf("restored headers = %v", restored)
	}
}

func TestPolicySelectsTable(t *testing.T) {
	m := newTestManager(t, map[string]config.ClientConfig{
		"demo": {CompressionEnabled: true, RateLimitMaxAttempts: 5, RateLimitDecaySeconds: 60},
	})
	ctx := context.Background()

	resp := &Response{
		Endpoint:     "status",
		ResponseBody: strPtr(`{"ok": true}`),
	}
	if err := m.StoreResponse(ctx, "demo", "key-1", resp, nil, nil); err != nil {
		t.Fatalf("StoreResponse() error = %v", err)
	}

	// Policy says compressed, so the plain variant stays empty.
	uncompressed := false
	n, err := m.CountTotalResponses(ctx, "demo", &uncompressed)
	if err != nil {
		t.Fatalf("CountTotalResponses() error = %v", err)
	}
	if n != 0 {
		t.Errorf("plain table rows = %d, want 0", n)
	}

	n, err = m.CountTotalResponses(ctx, "demo", nil)
	if err != nil {
		t.Fatalf("CountTotalResponses() error = %v", err)
	}
	if n != 1 {
		t.Errorf("policy table rows = %d, want 1", n)
	}
}

func TestRateLimitDenialSurfacesError(t *testing.T) {
	m := newTestManager(t, map[string]config.ClientConfig{
		"demo": {RateLimitMaxAttempts: 2, RateLimitDecaySeconds: 60},
	})

	for i := 0; i < 2; i++ {
		if !m.AllowRequest("demo") {
			t.Fatalf("attempt %d should be allowed", i+1)
		}
		m.IncrementAttempts("demo", 1)
	}

	if m.AllowRequest("demo") {
		t.Error("budget exhausted, AllowRequest should deny")
	}

	err := m.CheckRateLimit("demo")
	var rateErr *RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("CheckRateLimit() error = %T, want *RateLimitError", err)
	}
	if rateErr.Client != "demo" || rateErr.AvailableIn <= 0 {
		t.Errorf("error = %+v", rateErr)
	}

	m.ClearRateLimit("demo")
	if err := m.CheckRateLimit("demo"); err != nil {
		t.Errorf("CheckRateLimit() after clear error = %v", err)
	}
}

func TestInvalidClientNameSurfaces(t *testing.T) {
	m := newTestManager(t, map[string]config.ClientConfig{})

	_, err := m.Get(context.Background(), "bad client name", "key", nil)
	var namingErr *NamingError
	if !errors.As(err, &namingErr) {
		t.Errorf("Get() error = %T, want *NamingError", err)
	}
}
