package handlers

import (
	"crypto/subtle"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"

	"golang.org/x/crypto/bcrypt"

	"github.com/serenovaspa/serenova/internal/storage"
)

// AdminHandler covers the staff portal surface: credential management and the
// administrative appointment transitions the engine never performs itself.
type AdminHandler struct {
	staff    *storage.StaffRepository
	bookings *storage.BookingRepository
	logger   *slog.Logger
	adminKey string
}

func NewAdminHandler(staff *storage.StaffRepository, bookings *storage.BookingRepository, logger *slog.Logger, adminKey string) *AdminHandler {
	return &AdminHandler{staff: staff, bookings: bookings, logger: logger, adminKey: adminKey}
}

// RequireAdminKey gates a handler on the X-Admin-Key header.
func (h *AdminHandler) RequireAdminKey(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.adminKey == "" {
			writeError(w, http.StatusServiceUnavailable, "admin API not configured")
			return
		}
		got := strings.TrimSpace(r.Header.Get("X-Admin-Key"))
		if subtle.ConstantTimeCompare([]byte(got), []byte(h.adminKey)) != 1 {
			writeError(w, http.StatusUnauthorized, "unauthorized")
			return
		}
		next(w, r)
	}
}

type staffRegisterRequest struct {
	Email    string `json:"email"`
	Name     string `json:"name"`
	Password string `json:"password"`
}

// RegisterStaff handles POST /api/v1/admin/staff (admin key required).
func (h *AdminHandler) RegisterStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req staffRegisterRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))
	req.Name = strings.TrimSpace(req.Name)
	if req.Email == "" || req.Name == "" || len(req.Password) < 8 {
		writeError(w, http.StatusBadRequest, "email, name and a password of at least 8 characters are required")
		return
	}

	hash, err := hashPassword(req.Password)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "failed to hash password")
		return
	}
	id, err := h.staff.Create(r.Context(), req.Email, req.Name, hash)
	if err != nil {
		h.logger.Error("staff create failed", "err", err)
		writeError(w, http.StatusInternalServerError, "failed to create staff user")
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"staff_id": id})
}

type staffLoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// LoginStaff handles POST /api/v1/admin/login.
func (h *AdminHandler) LoginStaff(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req staffLoginRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.Email = strings.ToLower(strings.TrimSpace(req.Email))

	user, err := h.staff.GetByEmail(r.Context(), req.Email)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	if err := verifyPassword(user.PasswordHash, req.Password); err != nil {
		writeError(w, http.StatusUnauthorized, "invalid credentials")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"staff_id": user.ID,
		"name":     user.Name,
	})
}

type completeRequest struct {
	AppointmentID string `json:"appointment_id"`
}

// CompleteAppointment handles POST /api/v1/admin/appointments/complete
// (admin key required). Moving an appointment to completed is staff-driven.
func (h *AdminHandler) CompleteAppointment(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	req.AppointmentID = strings.TrimSpace(req.AppointmentID)
	if req.AppointmentID == "" {
		writeError(w, http.StatusBadRequest, "appointment_id required")
		return
	}

	if err := h.bookings.MarkCompleted(r.Context(), req.AppointmentID); err != nil {
		if storage.IsNotFound(err) {
			writeError(w, http.StatusNotFound, "no upcoming appointment with that id")
			return
		}
		writeError(w, http.StatusInternalServerError, "failed to complete appointment")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{
		"appointment_id": req.AppointmentID,
		"status":         "completed",
	})
}

func hashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}

func verifyPassword(hash, password string) error {
	return bcrypt.CompareHashAndPassword([]byte(hash), []byte(password))
}
