package handlers

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/serenovaspa/serenova/internal/platform"
)

// PlatformHandler proxies guest and catalog routes to the external salon
// management platform, reshaping responses for the dashboard.
type PlatformHandler struct {
	client *platform.Client
	logger *slog.Logger
}

func NewPlatformHandler(client *platform.Client, logger *slog.Logger) *PlatformHandler {
	return &PlatformHandler{client: client, logger: logger}
}

// Guest handles GET /api/v1/guests?email= and POST /api/v1/guests.
func (h *PlatformHandler) Guest(w http.ResponseWriter, r *http.Request) {
	if h.client == nil {
		writeError(w, http.StatusServiceUnavailable, "salon platform not configured")
		return
	}
	switch r.Method {
	case http.MethodGet:
		email := strings.TrimSpace(r.URL.Query().Get("email"))
		if email == "" {
			writeError(w, http.StatusBadRequest, "email required")
			return
		}
		guest, found, err := h.client.GuestByEmail(r.Context(), email)
		if err != nil {
			h.proxyError(w, err, "guest lookup failed")
			return
		}
		if !found {
			writeError(w, http.StatusNotFound, "guest not found")
			return
		}
		writeJSON(w, http.StatusOK, guest)
	case http.MethodPost:
		var in platform.GuestInput
		if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
			writeError(w, http.StatusBadRequest, "invalid json body")
			return
		}
		if strings.TrimSpace(in.Email) == "" || strings.TrimSpace(in.FirstName) == "" {
			writeError(w, http.StatusBadRequest, "first_name and email are required")
			return
		}
		guest, err := h.client.CreateGuest(r.Context(), in)
		if err != nil {
			h.proxyError(w, err, "guest create failed")
			return
		}
		writeJSON(w, http.StatusCreated, guest)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

// Services handles GET /api/v1/services. The treatment catalog lives on the
// platform; this is a pass-through reshape.
func (h *PlatformHandler) Services(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if h.client == nil {
		writeError(w, http.StatusServiceUnavailable, "salon platform not configured")
		return
	}
	services, err := h.client.Services(r.Context())
	if err != nil {
		h.proxyError(w, err, "service catalog fetch failed")
		return
	}
	if services == nil {
		services = []platform.CatalogService{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"services": services})
}

func (h *PlatformHandler) proxyError(w http.ResponseWriter, err error, msg string) {
	var apiErr *platform.APIError
	if errors.As(err, &apiErr) {
		h.logger.Error(msg, "err", err, "upstream_status", apiErr.StatusCode)
	} else {
		h.logger.Error(msg, "err", err)
	}
	writeError(w, http.StatusBadGateway, msg)
}
