package handlers

import (
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/serenovaspa/serenova/internal/schedule"
)

// AvailabilityHandler exposes the scheduling engine over HTTP. Handlers
// validate input shape only; availability decisions belong to the engine.
type AvailabilityHandler struct {
	engine *schedule.Engine
	logger *slog.Logger
}

func NewAvailabilityHandler(engine *schedule.Engine, logger *slog.Logger) *AvailabilityHandler {
	return &AvailabilityHandler{engine: engine, logger: logger}
}

// Slots handles GET /api/v1/availability/slots?date=&category=
func (h *AvailabilityHandler) Slots(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	day, cat, ok := h.dateAndCategory(w, r)
	if !ok {
		return
	}

	slots, err := h.engine.AvailableSlots(r.Context(), day, cat)
	if err != nil {
		h.logger.Error("slot generation failed", "err", err, "date", day.Format(schedule.DateLayout))
		writeError(w, http.StatusServiceUnavailable, errAvailabilityUnavailable)
		return
	}
	if slots == nil {
		slots = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date":     day.Format(schedule.DateLayout),
		"category": cat,
		"slots":    slots,
	})
}

// Days handles GET /api/v1/availability/days?month=&year=&category=
// month is 0-11, matching the dashboard's calendar widget.
func (h *AvailabilityHandler) Days(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cat, ok := h.category(w, r)
	if !ok {
		return
	}
	month, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("month")))
	if err != nil || month < 0 || month > 11 {
		writeError(w, http.StatusBadRequest, "month must be 0-11")
		return
	}
	year, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("year")))
	if err != nil || year < 2000 || year > 2200 {
		writeError(w, http.StatusBadRequest, "invalid year")
		return
	}

	days, aerr := h.engine.AvailableDaysInMonth(r.Context(), time.Month(month+1), year, cat)
	if aerr != nil {
		h.logger.Error("month availability failed", "err", aerr, "month", month, "year", year)
		writeError(w, http.StatusServiceUnavailable, errAvailabilityUnavailable)
		return
	}
	if days == nil {
		days = []int{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"month":    month,
		"year":     year,
		"category": cat,
		"days":     days,
	})
}

// Next handles GET /api/v1/availability/next?category=
func (h *AvailabilityHandler) Next(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	cat, ok := h.category(w, r)
	if !ok {
		return
	}

	date, found, err := h.engine.NextAvailableDate(r.Context(), cat)
	if err != nil {
		h.logger.Error("next-available scan failed", "err", err, "category", cat)
		writeError(w, http.StatusServiceUnavailable, errAvailabilityUnavailable)
		return
	}
	if !found {
		writeJSON(w, http.StatusOK, map[string]any{"category": cat, "date": nil})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"category": cat, "date": date})
}

// Check handles GET /api/v1/availability/check?date=&time=&category=
func (h *AvailabilityHandler) Check(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	day, cat, ok := h.dateAndCategory(w, r)
	if !ok {
		return
	}
	hhmm := strings.TrimSpace(r.URL.Query().Get("time"))
	if _, err := time.Parse(schedule.TimeLayout, hhmm); err != nil {
		writeError(w, http.StatusBadRequest, "time must be HH:mm")
		return
	}

	check, err := h.engine.CheckSlot(r.Context(), day, hhmm, cat)
	if err != nil {
		h.logger.Error("slot check failed", "err", err, "date", day.Format(schedule.DateLayout), "time", hhmm)
		writeError(w, http.StatusServiceUnavailable, errAvailabilityUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, check)
}

// Busy handles GET /api/v1/availability/busy?date=
func (h *AvailabilityHandler) Busy(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	day, ok := h.date(w, r)
	if !ok {
		return
	}

	counts, err := h.engine.BusyHours(r.Context(), day)
	if err != nil {
		h.logger.Error("busy histogram failed", "err", err, "date", day.Format(schedule.DateLayout))
		writeError(w, http.StatusServiceUnavailable, errAvailabilityUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"date": day.Format(schedule.DateLayout),
		"busy": counts,
	})
}

func (h *AvailabilityHandler) date(w http.ResponseWriter, r *http.Request) (time.Time, bool) {
	day, err := h.engine.ParseDate(strings.TrimSpace(r.URL.Query().Get("date")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be yyyy-MM-dd")
		return time.Time{}, false
	}
	return day, true
}

func (h *AvailabilityHandler) category(w http.ResponseWriter, r *http.Request) (schedule.Category, bool) {
	cat, ok := schedule.ParseCategory(strings.TrimSpace(r.URL.Query().Get("category")))
	if !ok {
		writeError(w, http.StatusBadRequest, "category must be one of spa, wellness-stay, wellness-checkup")
		return "", false
	}
	return cat, true
}

func (h *AvailabilityHandler) dateAndCategory(w http.ResponseWriter, r *http.Request) (time.Time, schedule.Category, bool) {
	day, ok := h.date(w, r)
	if !ok {
		return time.Time{}, "", false
	}
	cat, ok := h.category(w, r)
	if !ok {
		return time.Time{}, "", false
	}
	return day, cat, true
}
