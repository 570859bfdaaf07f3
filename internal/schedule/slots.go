package schedule

import (
	"context"
	"fmt"
	"time"
)

// AvailableSlots returns the ordered bookable start times (TimeLayout strings)
// for a date and category.
//
// Candidates run from opening time at the fixed step for as long as
// start+duration fits before close. The step is independent of the category
// duration, so two offered slots of the same category may overlap each other;
// the walk only guards against collisions with actual bookings. A candidate
// collides when it touches any booked interval expanded by the buffer on both
// ends, boundary contact included.
//
// A policy-rejected date yields an empty list without consulting the ledger.
func (e *Engine) AvailableSlots(ctx context.Context, day time.Time, cat Category) ([]string, error) {
	if !e.DateAvailable(day, cat) {
		return nil, nil
	}

	booked, err := e.ledger.UpcomingIntervals(ctx, day)
	if err != nil {
		return nil, fmt.Errorf("booking ledger query: %w", err)
	}

	open, close := e.rules.window(day.In(e.rules.Location))
	duration := e.rules.duration(cat)

	var slots []string
	for t := open; !t.Add(duration).After(close); t = t.Add(e.rules.Step) {
		if !e.collidesAny(t, t.Add(duration), booked) {
			slots = append(slots, t.Format(TimeLayout))
		}
	}
	return slots, nil
}

func (e *Engine) collidesAny(start, end time.Time, booked []Interval) bool {
	for _, b := range booked {
		if intervalsCollide(start, end, b.Start.Add(-e.rules.Buffer), b.End.Add(e.rules.Buffer)) {
			return true
		}
	}
	return false
}

// intervalsCollide treats both intervals as closed: touching endpoints count
// as a collision. A slot ending exactly where a buffered booking begins is
// rejected, which is the policy the product shipped with.
func intervalsCollide(aStart, aEnd, bStart, bEnd time.Time) bool {
	return !aStart.After(bEnd) && !bStart.After(aEnd)
}
