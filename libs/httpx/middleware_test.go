package httpx

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestWithBodyLimit_DeclaredOversizeRejected(t *testing.T) {
	h := WithBodyLimit(16)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(strings.Repeat("x", 64)))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusRequestEntityTooLarge {
		t.Fatalf("got %d, want 413", rec.Code)
	}
}

func TestWithBodyLimit_SmallBodyPasses(t *testing.T) {
	h := WithBodyLimit(1 << 10)(okHandler())

	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader("tiny"))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
}

func TestWithTimeout_SlowHandlerGetsJSONError(t *testing.T) {
	slow := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
	})
	h := WithTimeout(10 * time.Millisecond)(slow)

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("got %d, want 503", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "request timed out") {
		t.Errorf("body: got %q", rec.Body.String())
	}
}

func TestChain_OrdersOutsideIn(t *testing.T) {
	var order []string
	tag := func(name string) Middleware {
		return func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				order = append(order, name)
				next.ServeHTTP(w, r)
			})
		}
	}
	h := Chain(okHandler(), tag("outer"), tag("inner"))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	h.ServeHTTP(httptest.NewRecorder(), req)

	if len(order) != 2 || order[0] != "outer" || order[1] != "inner" {
		t.Fatalf("order: got %v", order)
	}
}

func TestWithRequestID_MalformedInboundReplaced(t *testing.T) {
	cases := []struct {
		name    string
		inbound string
		reused  bool
	}{
		{"clean id reused", "abc-123_DEF", true},
		{"empty replaced", "", false},
		{"log-breaking characters replaced", "evil\nid=1", false},
		{"oversized replaced", strings.Repeat("a", 65), false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var seen string
			h := WithRequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				seen = RequestIDFromContext(r.Context())
			}))
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tc.inbound != "" {
				req.Header.Set(RequestIDHeader, tc.inbound)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			if seen == "" {
				t.Fatal("context request id missing")
			}
			if tc.reused && seen != tc.inbound {
				t.Errorf("got %q, want inbound %q reused", seen, tc.inbound)
			}
			if !tc.reused && seen == tc.inbound {
				t.Errorf("malformed inbound id %q must not be reused", tc.inbound)
			}
			if rec.Header().Get(RequestIDHeader) != seen {
				t.Error("response header should echo the effective id")
			}
		})
	}
}

func TestWithAccessLog_SeverityFollowsStatus(t *testing.T) {
	cases := []struct {
		status int
		level  string
	}{
		{http.StatusOK, "INFO"},
		{http.StatusUnprocessableEntity, "WARN"},
		{http.StatusInternalServerError, "ERROR"},
	}
	for _, tc := range cases {
		var buf bytes.Buffer
		logger := slog.New(slog.NewJSONHandler(&buf, nil))
		h := WithAccessLog(logger)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(tc.status)
		}))

		req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
		h.ServeHTTP(httptest.NewRecorder(), req)

		var entry map[string]any
		if err := json.Unmarshal(buf.Bytes(), &entry); err != nil {
			t.Fatalf("status %d: bad log line: %v", tc.status, err)
		}
		if entry["level"] != tc.level {
			t.Errorf("status %d: level %v, want %s", tc.status, entry["level"], tc.level)
		}
		if entry["status"] != float64(tc.status) {
			t.Errorf("status field: got %v", entry["status"])
		}
	}
}
