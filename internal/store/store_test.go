package store

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fofxtools/api-cache/internal/testutil"
)

func newTestStore(t *testing.T, client string) *Store {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	s := New(logger, testutil.NewDB(t))
	if err := s.EnsureTables(client); err != nil {
		t.Fatalf("EnsureTables() error = %v", err)
	}
	return s
}

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func sampleResponse() *Response {
	return &Response{
		Version:         strPtr("v3"),
		Endpoint:        "serp/google/organic/live",
		BaseURL:         strPtr("https://api.example.com"),
		FullURL:         strPtr("https://api.example.com/v3/serp/google/organic/live"),
		Method:          strPtr("POST"),
		RequestHeaders:  strPtr(`{"Content-Type": "application/json"}`),
		RequestBody:     strPtr(`{"keyword": "api cache"}`),
		ResponseHeaders: strPtr(`{"Content-Type": "application/json"}`),
		ResponseBody:    strPtr(`{"tasks": [{"id": "0123"}]}`),
		StatusCode:      intPtr(200),
	}
}

func TestStoreGetRoundTrip(t *testing.T) {
	for _, compressed := range []bool{false, true} {
		name := "uncompressed"
		if compressed {
			name = "compressed"
		}
		t.Run(name, func(t *testing.T) {
			s := newTestStore(t, "demo")
			h, err := NewTableHandle("demo", compressed)
			if err != nil {
				t.Fatalf("NewTableHandle() error = %v", err)
			}

			resp := sampleResponse()
			if err := s.Store(context.Background(), h, "key-1", resp, nil); err != nil {
				t.Fatalf("Store() error = %v", err)
			}

			got, err := s.Get(context.Background(), h, "key-1")
			if err != nil {
				t.Fatalf("Get() error = %v", err)
			}
			if got == nil {
				t.Fatal("Get() = nil, want record")
			}
			if got.Endpoint != resp.Endpoint {
				t.Errorf("Endpoint = %q, want %q", got.Endpoint, resp.Endpoint)
			}
			if got.Method == nil || *got.Method != "POST" {
				t.Errorf("Method = %v, want POST", got.Method)
			}
			if got.ResponseBody == nil || *got.ResponseBody != *resp.ResponseBody {
				t.Errorf("ResponseBody = %v, want %q", got.ResponseBody, *resp.ResponseBody)
			}
			if got.ResponseSize == nil || *got.ResponseSize != len(*resp.ResponseBody) {
				t.Errorf("ResponseSize = %v, want %d", got.ResponseSize, len(*resp.ResponseBody))
			}
			if got.ExpiresAt != nil {
				t.Error("ExpiresAt should be nil when no TTL is given")
			}
		})
	}
}

func TestStore_Validation(t *testing.T) {
	s := newTestStore(t, "demo")
	h, _ := NewTableHandle("demo", false)

	tests := []struct {
		name string
		resp *Response
	}{
		{name: "missing endpoint", resp: &Response{ResponseBody: strPtr("{}")}},
		{name: "missing response body", resp: &Response{Endpoint: "serp/google/organic/live"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := s.Store(context.Background(), h, "key-1", tt.resp, nil)
			if err == nil {
				t.Fatal("Store() = nil, want validation error")
			}
			var validationErr *ValidationError
			if !errors.As(err, &validationErr) {
				t.Errorf("error = %T, want *ValidationError", err)
			}
		})
	}
}

func TestStore_UpsertReplaces(t *testing.T) {
	s := newTestStore(t, "demo")
	h, _ := NewTableHandle("demo", false)
	ctx := context.Background()

	first := sampleResponse()
	if err := s.Store(ctx, h, "key-1", first, nil); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	second := sampleResponse()
	second.ResponseBody = strPtr(`{"tasks": [{"id": "4567", "note": "replaced"}]}`)
	if err := s.Store(ctx, h, "key-1", second, nil); err != nil {
		t.Fatalf("second Store() error = %v", err)
	}

	got, err := s.Get(ctx, h, "key-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil || got.ResponseBody == nil || *got.ResponseBody != *second.ResponseBody {
		t.Error("second Store() did not replace the payload")
	}

	total, err := s.CountTotal(ctx, h)
	if err != nil {
		t.Fatalf("CountTotal() error = %v", err)
	}
	if total != 1 {
		t.Errorf("CountTotal() = %d, want 1 (upsert must not duplicate)", total)
	}
}

func TestStore_MissReturnsNil(t *testing.T) {
	s := newTestStore(t, "demo")
	h, _ := NewTableHandle("demo", false)

	got, err := s.Get(context.Background(), h, "no-such-key")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got != nil {
		t.Errorf("Get() = %+v, want nil", got)
	}
}

func TestStore_TTLExpiry(t *testing.T) {
	s := newTestStore(t, "demo")
	h, _ := NewTableHandle("demo", false)
	ctx := context.Background()

	ttl := 1
	if err := s.Store(ctx, h, "key-1", sampleResponse(), &ttl); err != nil {
		t.Fatalf("Store() error = %v", err)
	}

	got, err := s.Get(ctx, h, "key-1")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if got == nil {
		t.Fatal("record should be retrievable before the TTL elapses")
	}

	time.Sleep(1100 * time.Millisecond)

	got, err = s.Get(ctx, h, "key-1")
	if err != nil {
		t.Fatalf("Get() after expiry error = %v", err)
	}
	if got != nil {
		t.Error("Get() should return nil once the TTL has elapsed")
	}

	// Expired is not deleted: the row remains until cleanup.
	total, _ := s.CountTotal(ctx, h)
	if total != 1 {
		t.Errorf("CountTotal() = %d, want 1 before cleanup", total)
	}

	removed, err := s.Cleanup(ctx, h)
	if err != nil {
		t.Fatalf("Cleanup() error = %v", err)
	}
	if removed != 1 {
		t.Errorf("Cleanup() removed %d rows, want 1", removed)
	}
	total, _ = s.CountTotal(ctx, h)
	if total != 0 {
		t.Errorf("CountTotal() = %d, want 0 after cleanup", total)
	}
}

func TestStore_CountsAddUp(t *testing.T) {
	s := newTestStore(t, "demo")
	h, _ := NewTableHandle("demo", false)
	ctx := context.Background()

	// Two rows with no TTL, one with a long TTL, one already expired.
	long := 3600
	expired := -10
	if err := s.Store(ctx, h, "key-1", sampleResponse(), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Store(ctx, h, "key-2", sampleResponse(), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Store(ctx, h, "key-3", sampleResponse(), &long); err != nil {
		t.Fatal(err)
	}
	if err := s.Store(ctx, h, "key-4", sampleResponse(), &expired); err != nil {
		t.Fatal(err)
	}

	total, err := s.CountTotal(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	active, err := s.CountActive(ctx, h)
	if err != nil {
		t.Fatal(err)
	}
	expiredCount, err := s.CountExpired(ctx, h)
	if err != nil {
		t.Fatal(err)
	}

	if total != 4 || active != 3 || expiredCount != 1 {
		t.Errorf("counts = total %d, active %d, expired %d; want 4, 3, 1", total, active, expiredCount)
	}
	if total != active+expiredCount {
		t.Errorf("total (%d) != active (%d) + expired (%d)", total, active, expiredCount)
	}
}

func TestStore_DeleteExpiredNoop(t *testing.T) {
	s := newTestStore(t, "demo")
	h, _ := NewTableHandle("demo", false)

	removed, err := s.DeleteExpired(context.Background(), h)
	if err != nil {
		t.Fatalf("DeleteExpired() error = %v", err)
	}
	if removed != 0 {
		t.Errorf("DeleteExpired() on empty table removed %d rows", removed)
	}
}

func TestStore_ClearTable(t *testing.T) {
	s := newTestStore(t, "demo")
	plain, _ := NewTableHandle("demo", false)
	compressed := plain.Sibling()
	ctx := context.Background()

	if err := s.Store(ctx, plain, "key-1", sampleResponse(), nil); err != nil {
		t.Fatal(err)
	}
	if err := s.Store(ctx, compressed, "key-1", sampleResponse(), nil); err != nil {
		t.Fatal(err)
	}

	if err := s.ClearTable(ctx, plain); err != nil {
		t.Fatalf("ClearTable() error = %v", err)
	}

	total, _ := s.CountTotal(ctx, plain)
	if total != 0 {
		t.Errorf("plain table still has %d rows after ClearTable", total)
	}
	// The sibling variant is untouched.
	total, _ = s.CountTotal(ctx, compressed)
	if total != 1 {
		t.Errorf("compressed table has %d rows, want 1", total)
	}
}

func TestPrepareRetrieveHeaders(t *testing.T) {
	headers := map[string]any{
		"Content-Type": "application/json",
		"X-Credits":    "12",
	}

	text, err := PrepareHeaders(headers, true)
	if err != nil {
		t.Fatalf("PrepareHeaders() error = %v", err)
	}
	if text == nil {
		t.Fatal("PrepareHeaders() = nil for non-nil map")
	}

	got, err := RetrieveHeaders(text)
	if err != nil {
		t.Fatalf("RetrieveHeaders() error = %v", err)
	}
	if got["Content-Type"] != "application/json" || got["X-Credits"] != "12" {
		t.Errorf("RetrieveHeaders() = %v", got)
	}
}

func TestRetrieveHeaders_Nil(t *testing.T) {
	got, err := RetrieveHeaders(nil)
	if err != nil {
		t.Fatalf("RetrieveHeaders(nil) error = %v", err)
	}
	if got != nil {
		t.Errorf("RetrieveHeaders(nil) = %v, want nil", got)
	}
}

func TestRetrieveHeaders_Errors(t *testing.T) {
	t.Run("malformed json", func(t *testing.T) {
		_, err := RetrieveHeaders(strPtr(`{"broken":`))
		var decodingErr *DecodingError
		if !errors.As(err, &decodingErr) {
			t.Fatalf("error = %T, want *DecodingError", err)
		}
		if errors.Is(err, ErrNotAMap) {
			t.Error("syntax failure should not be classified as a non-map error")
		}
	})

	t.Run("decodes to non-map", func(t *testing.T) {
		for _, text := range []string{`"just a string"`, `null`, `[1, 2]`, `42`} {
			_, err := RetrieveHeaders(strPtr(text))
			if !errors.Is(err, ErrNotAMap) {
				t.Errorf("RetrieveHeaders(%s) error = %v, want ErrNotAMap", text, err)
			}
		}
	})
}

func TestPrepareBody(t *testing.T) {
	t.Run("json is normalized", func(t *testing.T) {
		pretty := PrepareBody(strPtr(`{"b":2,"a":1}`), true)
		if pretty == nil {
			t.Fatal("PrepareBody() = nil")
		}
		want := "{\n    \"a\": 1,\n    \"b\": 2\n}"
		if *pretty != want {
			t.Errorf("PrepareBody(pretty) = %q, want %q", *pretty, want)
		}

		compact := PrepareBody(strPtr(`{"b": 2, "a": 1}`), false)
		if compact == nil || *compact != `{"a":1,"b":2}` {
			t.Errorf("PrepareBody(compact) = %v", compact)
		}
	})

	t.Run("non-json is verbatim", func(t *testing.T) {
		html := "<html><body>not json</body></html>"
		got := PrepareBody(strPtr(html), true)
		if got == nil || *got != html {
			t.Errorf("PrepareBody(html) = %v, want verbatim", got)
		}
	})

	t.Run("nil passes through", func(t *testing.T) {
		if PrepareBody(nil, true) != nil {
			t.Error("PrepareBody(nil) should be nil")
		}
		if RetrieveBody(nil) != nil {
			t.Error("RetrieveBody(nil) should be nil")
		}
	})
}

func TestRetrieveBody_Unchanged(t *testing.T) {
	stored := strPtr("<html>stored as-is</html>")
	if got := RetrieveBody(stored); got != stored {
		t.Error("RetrieveBody should return the stored text unchanged")
	}
}
