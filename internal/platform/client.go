// Package platform is the typed client for the external salon management
// platform: guest records, the service catalog and invoicing live there, not
// in this service. The booking engine never depends on it.
package platform

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

type Config struct {
	BaseURL string
	APIKey  string
	Timeout time.Duration
}

type Client struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

func New(cfg Config) (*Client, error) {
	base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if base == "" {
		return nil, fmt.Errorf("platform base URL is required")
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Client{
		baseURL: base,
		apiKey:  cfg.APIKey,
		http: &http.Client{
			Timeout:   timeout,
			Transport: otelhttp.NewTransport(http.DefaultTransport),
		},
	}, nil
}

type Guest struct {
	ID        string `json:"id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type GuestInput struct {
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	Phone     string `json:"phone"`
}

type CatalogService struct {
	ID           string `json:"id"`
	Name         string `json:"name"`
	DurationMins int    `json:"duration_minutes"`
	Price        string `json:"price"`
}

type InvoiceInput struct {
	GuestID string `json:"guest_id"`
	ItemID  string `json:"item_id"`
	Notes   string `json:"notes,omitempty"`
}

type Invoice struct {
	ID      string `json:"id"`
	GuestID string `json:"guest_id"`
	Status  string `json:"status"`
}

// GuestByEmail looks a guest up on the platform. ok is false when no guest
// matches.
func (c *Client) GuestByEmail(ctx context.Context, email string) (Guest, bool, error) {
	var out struct {
		Guests []Guest `json:"guests"`
	}
	q := url.Values{"email": {email}}
	if err := c.do(ctx, http.MethodGet, "/v1/guests?"+q.Encode(), nil, &out); err != nil {
		return Guest{}, false, err
	}
	if len(out.Guests) == 0 {
		return Guest{}, false, nil
	}
	return out.Guests[0], true, nil
}

func (c *Client) CreateGuest(ctx context.Context, in GuestInput) (Guest, error) {
	var g Guest
	err := c.do(ctx, http.MethodPost, "/v1/guests", in, &g)
	return g, err
}

func (c *Client) Services(ctx context.Context) ([]CatalogService, error) {
	var out struct {
		Services []CatalogService `json:"services"`
	}
	if err := c.do(ctx, http.MethodGet, "/v1/services", nil, &out); err != nil {
		return nil, err
	}
	return out.Services, nil
}

func (c *Client) CreateInvoice(ctx context.Context, in InvoiceInput) (Invoice, error) {
	var inv Invoice
	err := c.do(ctx, http.MethodPost, "/v1/invoices", in, &inv)
	return inv, err
}

func (c *Client) do(ctx context.Context, method, path string, in, out any) error {
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return err
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Accept", "application/json")
	if c.apiKey != "" {
		req.Header.Set("X-Api-Key", c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		raw, _ := io.ReadAll(io.LimitReader(resp.Body, 4<<10))
		return &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(raw))}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// APIError carries the platform's status and response body through to the
// caller so upstream failures stay distinguishable.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("platform API status %d: %s", e.StatusCode, e.Body)
}
