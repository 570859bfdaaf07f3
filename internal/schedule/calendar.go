package schedule

import "time"

// Engine computes appointment availability from the booking ledger and the
// configured rules. It holds no mutable state; every answer is a function of
// the clock, the ledger snapshot and the rules.
type Engine struct {
	rules  Rules
	ledger Ledger
}

func NewEngine(rules Rules, ledger Ledger) *Engine {
	return &Engine{rules: rules, ledger: ledger}
}

// Rules returns the policy the engine was built with.
func (e *Engine) Rules() Rules {
	return e.rules
}

// DateAvailable reports whether a date is structurally open for booking a
// category, independent of existing reservations:
//
//   - not before today (dates are compared at day granularity)
//   - not past the booking horizon
//   - not a Sunday
//   - not a blackout date
//   - for wellness-stay, only Monday, Wednesday or Friday
func (e *Engine) DateAvailable(day time.Time, cat Category) bool {
	today := truncateToDay(e.rules.now())
	d := truncateToDay(day.In(e.rules.Location))

	if d.Before(today) {
		return false
	}
	if d.After(today.AddDate(0, 0, e.rules.HorizonDays)) {
		return false
	}
	if d.Weekday() == time.Sunday {
		return false
	}
	if _, blocked := e.rules.Blackouts[d.Format(DateLayout)]; blocked {
		return false
	}
	if cat == CategoryWellnessStay {
		switch d.Weekday() {
		case time.Monday, time.Wednesday, time.Friday:
		default:
			return false
		}
	}
	return true
}

// TimeBookable reports whether a start time is a valid booking candidate for
// a date and category: on the Step grid from opening, with the full treatment
// fitting before close. It consults policy only, never the ledger, so moving
// an existing appointment is not tripped up by that appointment's own
// buffered interval the way CheckSlot would be.
func (e *Engine) TimeBookable(day time.Time, hhmm string, cat Category) bool {
	clock, err := time.Parse(TimeLayout, hhmm)
	if err != nil {
		return false
	}
	d := day.In(e.rules.Location)
	start := time.Date(d.Year(), d.Month(), d.Day(), clock.Hour(), clock.Minute(), 0, 0, e.rules.Location)
	open, close := e.rules.window(d)
	if start.Before(open) || start.Add(e.rules.duration(cat)).After(close) {
		return false
	}
	return start.Sub(open)%e.rules.Step == 0
}

// ParseDate parses a wire date in the engine's location.
func (e *Engine) ParseDate(s string) (time.Time, error) {
	return time.ParseInLocation(DateLayout, s, e.rules.Location)
}

func truncateToDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
