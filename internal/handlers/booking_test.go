package handlers

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serenovaspa/serenova/internal/model"
	"github.com/serenovaspa/serenova/internal/schedule"
)

// The validation and availability paths run before any storage call, so these
// tests exercise them with a nil repository. The transactional paths need a
// database and live in the repository's own integration setup.

func newBookingHandler(ledger schedule.Ledger) *BookingHandler {
	return NewBookingHandler(nil, nil, testEngine(ledger), testLogger())
}

// fakeBookingStore serves lookups from memory and refuses transactions, so a
// test can drive the handler up to (but not into) the write path. Anything
// else reached is a test bug and panics via the embedded nil interface.
type fakeBookingStore struct {
	BookingStore
	appt model.Appointment
}

func (f *fakeBookingStore) GetByID(ctx context.Context, id string) (model.Appointment, error) {
	return f.appt, nil
}

func (f *fakeBookingStore) Begin(ctx context.Context) (pgx.Tx, error) {
	return nil, errors.New("no database in this test")
}

func doPOST(t *testing.T, h http.HandlerFunc, target, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, target, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func TestCreateAppointment_Validation(t *testing.T) {
	h := newBookingHandler(&stubLedger{})

	cases := []struct {
		name string
		body string
		want int
	}{
		{"invalid json", `{`, http.StatusBadRequest},
		{"missing guest", `{"title":"Massage","category":"spa","date":"2025-06-03","time":"10:00"}`, http.StatusBadRequest},
		{"missing title", `{"guest_id":"g1","category":"spa","date":"2025-06-03","time":"10:00"}`, http.StatusBadRequest},
		{"bad category", `{"guest_id":"g1","title":"Massage","category":"facial","date":"2025-06-03","time":"10:00"}`, http.StatusBadRequest},
		{"bad date", `{"guest_id":"g1","title":"Massage","category":"spa","date":"June 3","time":"10:00"}`, http.StatusBadRequest},
		{"bad time", `{"guest_id":"g1","title":"Massage","category":"spa","date":"2025-06-03","time":"10am"}`, http.StatusBadRequest},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doPOST(t, h.Create, "/api/v1/appointments", tc.body)
			assert.Equal(t, tc.want, rec.Code)
		})
	}
}

func TestCreateAppointment_ClosedDateRejected(t *testing.T) {
	h := newBookingHandler(&stubLedger{})

	// Sunday: rejected by policy with a reason, before any storage work.
	rec := doPOST(t, h.Create, "/api/v1/appointments",
		`{"guest_id":"g1","title":"Massage","category":"spa","date":"2025-06-08","time":"10:00"}`)
	require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "not available")
}

func TestCreateAppointment_LedgerDown(t *testing.T) {
	h := newBookingHandler(&stubLedger{err: errors.New("refused")})

	rec := doPOST(t, h.Create, "/api/v1/appointments",
		`{"guest_id":"g1","title":"Massage","category":"spa","date":"2025-06-03","time":"10:00"}`)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Contains(t, rec.Body.String(), "availability check unavailable")
}

func TestCreateAppointment_MethodNotAllowed(t *testing.T) {
	h := newBookingHandler(&stubLedger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	rec := httptest.NewRecorder()
	h.Create(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestCancelAppointment_Validation(t *testing.T) {
	h := newBookingHandler(&stubLedger{})

	rec := doPOST(t, h.Cancel, "/api/v1/appointments/cancel", `{"reason":"changed plans"}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = doPOST(t, h.Cancel, "/api/v1/appointments/cancel", `not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestRescheduleAppointment_Validation(t *testing.T) {
	h := newBookingHandler(&stubLedger{})

	cases := []struct {
		name string
		body string
	}{
		{"missing id", `{"date":"2025-06-03","time":"10:00"}`},
		{"bad date", `{"appointment_id":"a1","date":"tomorrow","time":"10:00"}`},
		{"bad time", `{"appointment_id":"a1","date":"2025-06-03","time":"ten"}`},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doPOST(t, h.Reschedule, "/api/v1/appointments/reschedule", tc.body)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestRescheduleAppointment_UnbookableTimeRejected(t *testing.T) {
	store := &fakeBookingStore{appt: model.Appointment{
		ID:           "a1",
		GuestID:      "g1",
		Category:     "spa",
		Status:       model.StatusUpcoming,
		Date:         "2025-06-03",
		TimeOfDay:    "10:00",
		DurationMins: 120,
	}}
	h := NewBookingHandler(store, nil, testEngine(&stubLedger{}), testLogger())

	cases := []struct {
		name string
		time string
	}{
		{"after close", "23:00"},
		{"before open", "08:30"},
		{"off the half-hour grid", "10:17"},
		{"treatment would run past close", "16:30"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doPOST(t, h.Reschedule, "/api/v1/appointments/reschedule",
				`{"appointment_id":"a1","date":"2025-06-04","time":"`+tc.time+`"}`)
			require.Equal(t, http.StatusUnprocessableEntity, rec.Code)
			assert.Contains(t, rec.Body.String(), "not available")
		})
	}

	// Control: a bookable time clears validation and reaches the store.
	rec := doPOST(t, h.Reschedule, "/api/v1/appointments/reschedule",
		`{"appointment_id":"a1","date":"2025-06-04","time":"10:00"}`)
	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestListAppointments_RequiresGuest(t *testing.T) {
	h := newBookingHandler(&stubLedger{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/appointments", nil)
	rec := httptest.NewRecorder()
	h.List(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}
