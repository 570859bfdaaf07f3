package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/serenovaspa/serenova/internal/model"
	"github.com/serenovaspa/serenova/internal/outbox"
	"github.com/serenovaspa/serenova/internal/schedule"
	"github.com/serenovaspa/serenova/internal/storage"
)

// BookingStore is the slice of the appointments repository the handler needs.
type BookingStore interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error)
	GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error)
	GetByID(ctx context.Context, id string) (model.Appointment, error)
	Cancel(ctx context.Context, tx pgx.Tx, id, reason string) (time.Time, error)
	Reschedule(ctx context.Context, tx pgx.Tx, id, newDate, newTime string) error
	ListByGuest(ctx context.Context, guestID string, limit int) ([]model.Appointment, error)
}

type BookingHandler struct {
	repo       BookingStore
	outboxRepo *outbox.Repository
	engine     *schedule.Engine
	logger     *slog.Logger
}

func NewBookingHandler(repo BookingStore, outboxRepo *outbox.Repository, engine *schedule.Engine, logger *slog.Logger) *BookingHandler {
	return &BookingHandler{
		repo:       repo,
		outboxRepo: outboxRepo,
		engine:     engine,
		logger:     logger,
	}
}

type createAppointmentRequest struct {
	GuestID     string `json:"guest_id"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Date        string `json:"date"`
	Time        string `json:"time"`
	Location    string `json:"location"`
}

type createAppointmentResponse struct {
	AppointmentID string `json:"appointment_id"`
}

type cancelAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	Reason        string `json:"reason"`
}

type rescheduleAppointmentRequest struct {
	AppointmentID string `json:"appointment_id"`
	Date          string `json:"date"`
	Time          string `json:"time"`
}

type appointmentItem struct {
	AppointmentID string `json:"appointment_id"`
	Category      string `json:"category"`
	Title         string `json:"title"`
	Date          string `json:"date"`
	Time          string `json:"time"`
	DurationMins  int    `json:"duration_minutes"`
	Location      string `json:"location"`
	Status        string `json:"status"`
	CancelledAt   string `json:"cancelled_at,omitempty"`
	CreatedAt     string `json:"created_at"`
}

// Create handles POST /api/v1/appointments. The engine pre-validates the slot
// so a guest gets a meaningful reason; the repository recheck inside the
// transaction is what actually guarantees no double booking.
func (h *BookingHandler) Create(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req createAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.GuestID = strings.TrimSpace(req.GuestID)
	req.Title = strings.TrimSpace(req.Title)
	if req.GuestID == "" || req.Title == "" {
		writeError(w, http.StatusBadRequest, "guest_id and title are required")
		return
	}
	cat, ok := schedule.ParseCategory(strings.TrimSpace(req.Category))
	if !ok {
		writeError(w, http.StatusBadRequest, "category must be one of spa, wellness-stay, wellness-checkup")
		return
	}
	day, err := h.engine.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be yyyy-MM-dd")
		return
	}
	hhmm := strings.TrimSpace(req.Time)
	if _, err := time.Parse(schedule.TimeLayout, hhmm); err != nil {
		writeError(w, http.StatusBadRequest, "time must be HH:mm")
		return
	}

	check, err := h.engine.CheckSlot(r.Context(), day, hhmm, cat)
	if err != nil {
		writeError(w, http.StatusServiceUnavailable, errAvailabilityUnavailable)
		return
	}
	if !check.Available {
		writeError(w, http.StatusUnprocessableEntity, check.Reason)
		return
	}

	rules := h.engine.Rules()
	appt := &model.Appointment{
		GuestID:      req.GuestID,
		Category:     string(cat),
		Title:        req.Title,
		Description:  strings.TrimSpace(req.Description),
		Date:         day.Format(schedule.DateLayout),
		TimeOfDay:    hhmm,
		DurationMins: int(rules.Durations[cat] / time.Minute),
		Location:     strings.TrimSpace(req.Location),
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id, err := h.repo.Create(ctx, tx, appt)
	if err != nil {
		if errors.Is(err, storage.ErrSlotTaken) {
			writeError(w, http.StatusConflict, "time slot already booked")
			return
		}
		h.logger.Error("appointment create failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create appointment")
		return
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": id,
		"guest_id":       appt.GuestID,
		"category":       appt.Category,
		"date":           appt.Date,
		"time":           appt.TimeOfDay,
		"duration_mins":  appt.DurationMins,
		"location":       appt.Location,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build event payload")
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   id,
		EventType:     outbox.EventAppointmentBooked,
		Payload:       payload,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to write outbox event")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to commit")
		return
	}
	writeJSON(w, http.StatusCreated, createAppointmentResponse{AppointmentID: id})
}

// Cancel handles POST /api/v1/appointments/cancel.
func (h *BookingHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req cancelAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		writeError(w, http.StatusBadRequest, "appointment_id required")
		return
	}

	ctx := r.Context()
	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	appt, err := h.repo.GetForUpdate(ctx, tx, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}
	if appt.Status == model.StatusCancelled && appt.CancelledAt != nil {
		writeJSON(w, http.StatusOK, map[string]string{
			"appointment_id": appt.ID,
			"status":         model.StatusCancelled,
			"cancelled_at":   appt.CancelledAt.UTC().Format(time.RFC3339),
		})
		return
	}
	if appt.Status != model.StatusUpcoming {
		writeError(w, http.StatusConflict, "appointment cannot be cancelled")
		return
	}

	cancelledAt, err := h.repo.Cancel(ctx, tx, appt.ID, strings.TrimSpace(req.Reason))
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to cancel appointment")
		return
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": appt.ID,
		"guest_id":       appt.GuestID,
		"category":       appt.Category,
		"date":           appt.Date,
		"time":           appt.TimeOfDay,
		"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
		"reason":         strings.TrimSpace(req.Reason),
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build event payload")
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   appt.ID,
		EventType:     outbox.EventAppointmentCancelled,
		Payload:       payload,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to write outbox event")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to commit")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"appointment_id": appt.ID,
		"status":         model.StatusCancelled,
		"cancelled_at":   cancelledAt.UTC().Format(time.RFC3339),
	})
}

// Reschedule handles POST /api/v1/appointments/reschedule. The appointment is
// mutated in place; status is unchanged.
func (h *BookingHandler) Reschedule(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req rescheduleAppointmentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		writeError(w, http.StatusBadRequest, "appointment_id required")
		return
	}
	day, err := h.engine.ParseDate(strings.TrimSpace(req.Date))
	if err != nil {
		writeError(w, http.StatusBadRequest, "date must be yyyy-MM-dd")
		return
	}
	hhmm := strings.TrimSpace(req.Time)
	if _, err := time.Parse(schedule.TimeLayout, hhmm); err != nil {
		writeError(w, http.StatusBadRequest, "time must be HH:mm")
		return
	}

	ctx := r.Context()

	// Look the appointment up first so the policy check can use its category.
	existing, err := h.repo.GetByID(ctx, req.AppointmentID)
	if err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "appointment not found")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to load appointment")
		return
	}
	cat, ok := schedule.ParseCategory(existing.Category)
	if !ok {
		writeError(w, http.StatusInternalServerError, "appointment has unknown category")
		return
	}
	if !h.engine.DateAvailable(day, cat) {
		writeError(w, http.StatusUnprocessableEntity, "this date is not available for booking")
		return
	}
	// Create goes through CheckSlot; here that would collide with the
	// appointment's own buffered interval, so the policy check stands alone
	// and the in-transaction recheck below handles other bookings.
	if !h.engine.TimeBookable(day, hhmm, cat) {
		writeError(w, http.StatusUnprocessableEntity, "this time is not available for booking")
		return
	}

	tx, err := h.repo.Begin(ctx)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db error")
		return
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if err := h.repo.Reschedule(ctx, tx, req.AppointmentID, day.Format(schedule.DateLayout), hhmm); err != nil {
		switch {
		case errors.Is(err, storage.ErrSlotTaken):
			writeError(w, http.StatusConflict, "time slot already booked")
		case errors.Is(err, storage.ErrNotReschedulable):
			writeError(w, http.StatusConflict, "appointment cannot be rescheduled")
		case storage.IsNotFound(err):
			writeError(w, http.StatusNotFound, "appointment not found")
		default:
			h.logger.Error("reschedule failed", "err", err)
			writeError(w, http.StatusInternalServerError, "failed to reschedule appointment")
		}
		return
	}

	payload, err := json.Marshal(map[string]any{
		"appointment_id": req.AppointmentID,
		"guest_id":       existing.GuestID,
		"category":       existing.Category,
		"old_date":       existing.Date,
		"old_time":       existing.TimeOfDay,
		"date":           day.Format(schedule.DateLayout),
		"time":           hhmm,
	})
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to build event payload")
		return
	}
	if err := h.outboxRepo.Insert(ctx, tx, outbox.Event{
		AggregateType: "appointment",
		AggregateID:   req.AppointmentID,
		EventType:     outbox.EventAppointmentRescheduled,
		Payload:       payload,
	}); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to write outbox event")
		return
	}

	if err := tx.Commit(ctx); err != nil {
		writeError(w, http.StatusInternalServerError, "failed to commit")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"appointment_id": req.AppointmentID,
		"date":           day.Format(schedule.DateLayout),
		"time":           hhmm,
	})
}

// List handles GET /api/v1/appointments?guest_id=&limit=
func (h *BookingHandler) List(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}

	guestID := strings.TrimSpace(r.Header.Get("X-Guest-Id"))
	if guestID == "" {
		guestID = strings.TrimSpace(r.URL.Query().Get("guest_id"))
	}
	if guestID == "" {
		writeError(w, http.StatusBadRequest, "guest_id required")
		return
	}

	limit := 50
	if raw := strings.TrimSpace(r.URL.Query().Get("limit")); raw != "" {
		if n, err := strconv.Atoi(raw); err == nil && n > 0 && n <= 200 {
			limit = n
		}
	}

	appts, err := h.repo.ListByGuest(r.Context(), guestID, limit)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to list appointments")
		return
	}

	items := make([]appointmentItem, 0, len(appts))
	for _, appt := range appts {
		item := appointmentItem{
			AppointmentID: appt.ID,
			Category:      appt.Category,
			Title:         appt.Title,
			Date:          appt.Date,
			Time:          appt.TimeOfDay,
			DurationMins:  appt.DurationMins,
			Location:      appt.Location,
			Status:        appt.Status,
			CreatedAt:     appt.CreatedAt.UTC().Format(time.RFC3339),
		}
		if appt.CancelledAt != nil {
			item.CancelledAt = appt.CancelledAt.UTC().Format(time.RFC3339)
		}
		items = append(items, item)
	}
	writeJSON(w, http.StatusOK, items)
}
