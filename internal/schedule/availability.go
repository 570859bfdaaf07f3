package schedule

import (
	"context"
	"time"
)

// SlotCheck is the answer to a single-slot availability question. Reason is
// set only when Available is false and distinguishes a rejected date from a
// taken or out-of-hours time.
type SlotCheck struct {
	Available bool   `json:"available"`
	Reason    string `json:"reason,omitempty"`
}

const (
	reasonDateUnavailable = "this date is not available for booking"
	reasonTimeUnavailable = "this time is already booked or outside business hours"
)

// AvailableDaysInMonth lists the days of the given month that are policy-open
// and have at least one free slot for the category.
func (e *Engine) AvailableDaysInMonth(ctx context.Context, month time.Month, year int, cat Category) ([]int, error) {
	first := time.Date(year, month, 1, 0, 0, 0, 0, e.rules.Location)
	daysInMonth := first.AddDate(0, 1, -1).Day()

	var days []int
	for d := 1; d <= daysInMonth; d++ {
		day := time.Date(year, month, d, 0, 0, 0, 0, e.rules.Location)
		if !e.DateAvailable(day, cat) {
			continue
		}
		slots, err := e.AvailableSlots(ctx, day, cat)
		if err != nil {
			return nil, err
		}
		if len(slots) > 0 {
			days = append(days, d)
		}
	}
	return days, nil
}

// NextAvailableDate scans forward from today for the first date with at least
// one free slot. The scan is capped at the lookahead window; ok is false when
// nothing is bookable within it.
func (e *Engine) NextAvailableDate(ctx context.Context, cat Category) (date string, ok bool, err error) {
	today := truncateToDay(e.rules.now())
	for i := 0; i < e.rules.LookaheadDays; i++ {
		day := today.AddDate(0, 0, i)
		slots, err := e.AvailableSlots(ctx, day, cat)
		if err != nil {
			return "", false, err
		}
		if len(slots) > 0 {
			return day.Format(DateLayout), true, nil
		}
	}
	return "", false, nil
}

// CheckSlot re-derives the day's slot list and tests the requested time for
// membership.
func (e *Engine) CheckSlot(ctx context.Context, day time.Time, hhmm string, cat Category) (SlotCheck, error) {
	if !e.DateAvailable(day, cat) {
		return SlotCheck{Available: false, Reason: reasonDateUnavailable}, nil
	}
	slots, err := e.AvailableSlots(ctx, day, cat)
	if err != nil {
		return SlotCheck{}, err
	}
	for _, s := range slots {
		if s == hhmm {
			return SlotCheck{Available: true}, nil
		}
	}
	return SlotCheck{Available: false, Reason: reasonTimeUnavailable}, nil
}

// BusyHours returns a booking count per business hour for a date, keyed by
// start hour. Every hour from opening up to (not including) closing gets a
// bucket, zero-initialized, so the result is a complete histogram even for an
// empty day. Feeds the dashboard heatmap only.
func (e *Engine) BusyHours(ctx context.Context, day time.Time) (map[int]int, error) {
	counts := make(map[int]int, e.rules.CloseHour-e.rules.OpenHour)
	for h := e.rules.OpenHour; h < e.rules.CloseHour; h++ {
		counts[h] = 0
	}

	booked, err := e.ledger.UpcomingIntervals(ctx, day)
	if err != nil {
		return nil, err
	}
	for _, b := range booked {
		h := b.Start.In(e.rules.Location).Hour()
		if _, ok := counts[h]; ok {
			counts[h]++
		}
	}
	return counts, nil
}
