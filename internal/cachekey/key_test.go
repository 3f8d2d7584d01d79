package cachekey

import (
	"regexp"
	"testing"
)

var hexKey = regexp.MustCompile(`^[0-9a-f]{64}$`)

func TestDerive_Format(t *testing.T) {
	key, err := Derive("demo", "serp/google/organic/live", map[string]any{"q": "golang"}, "POST", "v3")
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	if !hexKey.MatchString(key) {
		t.Errorf("Derive() = %q, want 64 lowercase hex chars", key)
	}
}

func TestDerive_OrderInvariance(t *testing.T) {
	a := map[string]any{
		"keyword":       "api cache",
		"location_code": 2840,
		"depth":         100,
	}
	b := map[string]any{
		"depth":         100,
		"location_code": 2840,
		"keyword":       "api cache",
	}

	keyA, err := Derive("demo", "serp/google/organic/live", a, "POST", "v3")
	if err != nil {
		t.Fatalf("Derive(a) error = %v", err)
	}
	keyB, err := Derive("demo", "serp/google/organic/live", b, "POST", "v3")
	if err != nil {
		t.Fatalf("Derive(b) error = %v", err)
	}
	if keyA != keyB {
		t.Errorf("keys differ under parameter reordering: %q vs %q", keyA, keyB)
	}
}

func TestDerive_Sensitivity(t *testing.T) {
	base := map[string]any{"keyword": "api cache", "depth": 100}
	baseKey, err := Derive("demo", "serp/google/organic/live", base, "POST", "v3")
	if err != nil {
		t.Fatalf("Derive(base) error = %v", err)
	}

	tests := []struct {
		name     string
		endpoint string
		params   map[string]any
		method   string
		version  string
	}{
		{
			name:     "different parameter value",
			endpoint: "serp/google/organic/live",
			params:   map[string]any{"keyword": "api cache", "depth": 200},
			method:   "POST",
			version:  "v3",
		},
		{
			name:     "different endpoint",
			endpoint: "serp/bing/organic/live",
			params:   base,
			method:   "POST",
			version:  "v3",
		},
		{
			name:     "different method",
			endpoint: "serp/google/organic/live",
			params:   base,
			method:   "GET",
			version:  "v3",
		},
		{
			name:     "different version",
			endpoint: "serp/google/organic/live",
			params:   base,
			method:   "POST",
			version:  "v4",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			key, err := Derive("demo", tt.endpoint, tt.params, tt.method, tt.version)
			if err != nil {
				t.Fatalf("Derive() error = %v", err)
			}
			if key == baseKey {
				t.Error("key unchanged despite different logical request")
			}
		})
	}
}

func TestDerive_Determinism(t *testing.T) {
	params := map[string]any{
		"keyword":       "api cache",
		"location_code": 2840,
		"language_code": "en",
		"depth":         100,
	}

	first, err := Derive("data-for-seo", "serp/google/organic/live", params, "POST", "v3")
	if err != nil {
		t.Fatalf("Derive() error = %v", err)
	}
	for i := 0; i < 10; i++ {
		key, err := Derive("data-for-seo", "serp/google/organic/live", params, "POST", "v3")
		if err != nil {
			t.Fatalf("Derive() error = %v", err)
		}
		if key != first {
			t.Fatalf("iteration %d produced %q, want %q (not deterministic)", i, key, first)
		}
	}
}

func TestDerive_NilParams(t *testing.T) {
	withNil, err := Derive("demo", "status", nil, "GET", "v1")
	if err != nil {
		t.Fatalf("Derive(nil) error = %v", err)
	}
	withEmpty, err := Derive("demo", "status", map[string]any{}, "GET", "v1")
	if err != nil {
		t.Fatalf("Derive(empty) error = %v", err)
	}
	// nil serializes as JSON null, an empty map as {}; both are legal but
	// distinct logical inputs.
	if withNil == withEmpty {
		t.Error("nil and empty parameter sets should not collide")
	}
}
