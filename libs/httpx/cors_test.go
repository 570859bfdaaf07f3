package httpx

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func corsHandler() http.Handler {
	policy := CORSPolicy{
		AllowedOrigins: []string{"https://app.example.test"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         10 * time.Minute,
	}
	return WithCORS(policy)(okHandler())
}

func TestCORS_PreflightAllowedOrigin(t *testing.T) {
	req := httptest.NewRequest(http.MethodOptions, "/api/v1/availability/slots", nil)
	req.Header.Set("Origin", "https://app.example.test")
	req.Header.Set("Access-Control-Request-Method", "POST")
	rec := httptest.NewRecorder()
	corsHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusNoContent {
		t.Fatalf("preflight: got %d, want 204", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example.test" {
		t.Errorf("allow-origin: got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Allow-Methods"); got != "GET, POST, OPTIONS" {
		t.Errorf("allow-methods: got %q", got)
	}
	if got := rec.Header().Get("Access-Control-Max-Age"); got != "600" {
		t.Errorf("max-age: got %q", got)
	}
}

func TestCORS_SimpleRequestDecorated(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/availability/slots", nil)
	req.Header.Set("Origin", "HTTPS://APP.EXAMPLE.TEST") // origin match is case-insensitive
	rec := httptest.NewRecorder()
	corsHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	if rec.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("allowed origin should get the allow-origin header")
	}
}

func TestCORS_UnknownOriginPassesThroughBare(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/api/v1/availability/slots", nil)
	req.Header.Set("Origin", "https://evil.example.test")
	rec := httptest.NewRecorder()
	corsHandler().ServeHTTP(rec, req)

	if rec.Code != http.StatusOK {
		t.Fatalf("got %d, want 200", rec.Code)
	}
	if got := rec.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("unknown origin must not be allowed, got %q", got)
	}
	if rec.Header().Get("Vary") != "Origin" {
		t.Error("responses should vary on Origin either way")
	}
}

func TestCORS_NoOriginsConfiguredIsNoop(t *testing.T) {
	h := WithCORS(CORSPolicy{})(okHandler())
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Origin", "https://app.example.test")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	if rec.Header().Get("Vary") != "" {
		t.Error("unconfigured policy should not touch responses")
	}
}
