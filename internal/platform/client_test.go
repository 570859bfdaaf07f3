package platform

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGuestByEmail(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/guests" {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if got := r.Header.Get("X-Api-Key"); got != "pk_test" {
			t.Errorf("api key header: got %q", got)
		}
		if r.URL.Query().Get("email") == "nobody@example.test" {
			_ = json.NewEncoder(w).Encode(map[string]any{"guests": []Guest{}})
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"guests": []Guest{
			{ID: "g-1", FirstName: "Asha", Email: "asha@example.test"},
		}})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL, APIKey: "pk_test"})
	if err != nil {
		t.Fatalf("client setup: %v", err)
	}

	g, ok, err := c.GuestByEmail(context.Background(), "asha@example.test")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !ok || g.ID != "g-1" {
		t.Fatalf("got ok=%v guest=%+v", ok, g)
	}

	_, ok, err = c.GuestByEmail(context.Background(), "nobody@example.test")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if ok {
		t.Fatal("expected no match")
	}
}

func TestCreateGuest(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method: got %s", r.Method)
		}
		var in GuestInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Guest{ID: "g-2", FirstName: in.FirstName, Email: in.Email})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("client setup: %v", err)
	}

	g, err := c.CreateGuest(context.Background(), GuestInput{FirstName: "Ravi", Email: "ravi@example.test"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if g.ID != "g-2" || g.FirstName != "Ravi" {
		t.Fatalf("got %+v", g)
	}
}

func TestServices(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"services": []CatalogService{
			{ID: "svc-1", Name: "Signature Spa Ritual", DurationMins: 120, Price: "2499.00"},
		}})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("client setup: %v", err)
	}

	services, err := c.Services(context.Background())
	if err != nil {
		t.Fatalf("services: %v", err)
	}
	if len(services) != 1 || services[0].Name != "Signature Spa Ritual" {
		t.Fatalf("got %+v", services)
	}
}

func TestCreateInvoice(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/v1/invoices" || r.Method != http.MethodPost {
			t.Errorf("unexpected %s %s", r.Method, r.URL.Path)
		}
		var in InvoiceInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			t.Errorf("decode: %v", err)
		}
		_ = json.NewEncoder(w).Encode(Invoice{ID: "inv-1", GuestID: in.GuestID, Status: "open"})
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("client setup: %v", err)
	}

	inv, err := c.CreateInvoice(context.Background(), InvoiceInput{GuestID: "g-1", ItemID: "svc-1"})
	if err != nil {
		t.Fatalf("create invoice: %v", err)
	}
	if inv.ID != "inv-1" || inv.Status != "open" {
		t.Fatalf("got %+v", inv)
	}
}

func TestUpstreamErrorCarriesStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "quota exceeded", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c, err := New(Config{BaseURL: srv.URL})
	if err != nil {
		t.Fatalf("client setup: %v", err)
	}

	_, err = c.Services(context.Background())
	var apiErr *APIError
	if !errors.As(err, &apiErr) {
		t.Fatalf("expected APIError, got %v", err)
	}
	if apiErr.StatusCode != http.StatusTooManyRequests {
		t.Fatalf("status: got %d", apiErr.StatusCode)
	}
	if apiErr.Body != "quota exceeded" {
		t.Fatalf("body: got %q", apiErr.Body)
	}
}

func TestNewRequiresBaseURL(t *testing.T) {
	if _, err := New(Config{}); err == nil {
		t.Fatal("expected error for empty base URL")
	}
}
