package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/serenovaspa/serenova/internal/schedule"
)

type stubLedger struct {
	intervals []schedule.Interval
	err       error
}

func (s *stubLedger) UpcomingIntervals(ctx context.Context, day time.Time) ([]schedule.Interval, error) {
	if s.err != nil {
		return nil, s.err
	}
	return s.intervals, nil
}

// Fixed clock: Monday 2025-06-02 08:00 UTC.
func testEngine(ledger schedule.Ledger) *schedule.Engine {
	rules := schedule.DefaultRules(time.UTC)
	rules.Now = func() time.Time {
		return time.Date(2025, 6, 2, 8, 0, 0, 0, time.UTC)
	}
	return schedule.NewEngine(rules, ledger)
}

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func doGET(t *testing.T, h http.HandlerFunc, target string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, target, nil)
	rec := httptest.NewRecorder()
	h(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder, v any) {
	t.Helper()
	require.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	require.NoError(t, json.NewDecoder(rec.Body).Decode(v))
}

func TestSlots_OK(t *testing.T) {
	h := NewAvailabilityHandler(testEngine(&stubLedger{}), testLogger())

	rec := doGET(t, h.Slots, "/api/v1/availability/slots?date=2025-06-03&category=spa")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Date     string   `json:"date"`
		Category string   `json:"category"`
		Slots    []string `json:"slots"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, "2025-06-03", body.Date)
	assert.Equal(t, "spa", body.Category)
	assert.Len(t, body.Slots, 15)
	assert.Equal(t, "09:00", body.Slots[0])
	assert.Equal(t, "16:00", body.Slots[len(body.Slots)-1])
}

func TestSlots_ClosedDateIsEmptyListNotNull(t *testing.T) {
	h := NewAvailabilityHandler(testEngine(&stubLedger{}), testLogger())

	rec := doGET(t, h.Slots, "/api/v1/availability/slots?date=2025-06-08&category=spa") // Sunday
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"slots":[]`)
}

func TestSlots_BadInput(t *testing.T) {
	h := NewAvailabilityHandler(testEngine(&stubLedger{}), testLogger())

	cases := []struct {
		name   string
		target string
	}{
		{"missing date", "/api/v1/availability/slots?category=spa"},
		{"malformed date", "/api/v1/availability/slots?date=03-06-2025&category=spa"},
		{"unknown category", "/api/v1/availability/slots?date=2025-06-03&category=massage"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := doGET(t, h.Slots, tc.target)
			assert.Equal(t, http.StatusBadRequest, rec.Code)
		})
	}
}

func TestSlots_LedgerDown(t *testing.T) {
	h := NewAvailabilityHandler(testEngine(&stubLedger{err: errors.New("dial tcp: refused")}), testLogger())

	rec := doGET(t, h.Slots, "/api/v1/availability/slots?date=2025-06-03&category=spa")
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)

	var body map[string]string
	decodeBody(t, rec, &body)
	assert.Equal(t, "availability check unavailable", body["error"])
	assert.NotContains(t, rec.Body.String(), "slots", "a failed check must not look like availability")
}

func TestSlots_MethodNotAllowed(t *testing.T) {
	h := NewAvailabilityHandler(testEngine(&stubLedger{}), testLogger())

	req := httptest.NewRequest(http.MethodPost, "/api/v1/availability/slots?date=2025-06-03&category=spa", nil)
	rec := httptest.NewRecorder()
	h.Slots(rec, req)
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestDays_OK(t *testing.T) {
	h := NewAvailabilityHandler(testEngine(&stubLedger{}), testLogger())

	// month is zero-based on the wire: 5 means June.
	rec := doGET(t, h.Days, "/api/v1/availability/days?month=5&year=2025&category=spa")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Month int   `json:"month"`
		Year  int   `json:"year"`
		Days  []int `json:"days"`
	}
	decodeBody(t, rec, &body)
	assert.Equal(t, 5, body.Month)
	assert.Equal(t, 2025, body.Year)
	assert.NotContains(t, body.Days, 8, "Sundays stay closed")
	assert.Contains(t, body.Days, 2)
}

func TestDays_MonthRange(t *testing.T) {
	h := NewAvailabilityHandler(testEngine(&stubLedger{}), testLogger())

	for _, month := range []string{"-1", "12", "notanumber", ""} {
		rec := doGET(t, h.Days, "/api/v1/availability/days?month="+month+"&year=2025&category=spa")
		assert.Equal(t, http.StatusBadRequest, rec.Code, "month=%q", month)
	}
}

func TestNext_Found(t *testing.T) {
	h := NewAvailabilityHandler(testEngine(&stubLedger{}), testLogger())

	rec := doGET(t, h.Next, "/api/v1/availability/next?category=spa")
	require.Equal(t, http.StatusOK, rec.Code)
	var body struct {
		Date *string `json:"date"`
	}
	decodeBody(t, rec, &body)
	require.NotNil(t, body.Date)
	assert.Equal(t, "2025-06-02", *body.Date)
}

func TestCheck_OK(t *testing.T) {
	ledger := &stubLedger{intervals: []schedule.Interval{{
		Start: time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC),
	}}}
	h := NewAvailabilityHandler(testEngine(ledger), testLogger())

	rec := doGET(t, h.Check, "/api/v1/availability/check?date=2025-06-03&time=10:00&category=spa")
	require.Equal(t, http.StatusOK, rec.Code)

	var check schedule.SlotCheck
	decodeBody(t, rec, &check)
	assert.False(t, check.Available)
	assert.NotEmpty(t, check.Reason)
}

func TestCheck_BadTime(t *testing.T) {
	h := NewAvailabilityHandler(testEngine(&stubLedger{}), testLogger())

	rec := doGET(t, h.Check, "/api/v1/availability/check?date=2025-06-03&time=10am&category=spa")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestBusy_OK(t *testing.T) {
	ledger := &stubLedger{intervals: []schedule.Interval{{
		Start: time.Date(2025, 6, 3, 10, 0, 0, 0, time.UTC),
		End:   time.Date(2025, 6, 3, 12, 0, 0, 0, time.UTC),
	}}}
	h := NewAvailabilityHandler(testEngine(ledger), testLogger())

	rec := doGET(t, h.Busy, "/api/v1/availability/busy?date=2025-06-03")
	require.Equal(t, http.StatusOK, rec.Code)

	var body struct {
		Busy map[string]int `json:"busy"`
	}
	decodeBody(t, rec, &body)
	assert.Len(t, body.Busy, 9)
	assert.Equal(t, 1, body.Busy["10"])
	assert.Equal(t, 0, body.Busy["9"])
}

func TestBusy_LedgerDown(t *testing.T) {
	h := NewAvailabilityHandler(testEngine(&stubLedger{err: errors.New("down")}), testLogger())

	rec := doGET(t, h.Busy, "/api/v1/availability/busy?date=2025-06-03")
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}
