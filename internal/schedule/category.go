package schedule

import "time"

// Category is the closed set of appointment types the spa offers. It drives
// slot duration and day-of-week eligibility.
type Category string

const (
	CategorySpa             Category = "spa"
	CategoryWellnessStay    Category = "wellness-stay"
	CategoryWellnessCheckup Category = "wellness-checkup"
)

// ParseCategory validates a wire value against the closed enumeration.
func ParseCategory(s string) (Category, bool) {
	switch Category(s) {
	case CategorySpa, CategoryWellnessStay, CategoryWellnessCheckup:
		return Category(s), true
	default:
		return "", false
	}
}

const (
	// DateLayout and TimeLayout are the wire formats at every engine boundary.
	DateLayout = "2006-01-02"
	TimeLayout = "15:04"
)

// Rules is the booking policy configuration. It is built once at startup and
// treated as immutable afterwards.
type Rules struct {
	// Daily opening window. Saturday closes early; Sunday is fully closed.
	OpenHour          int
	OpenMinute        int
	CloseHour         int
	CloseMinute       int
	SaturdayCloseHour int

	// Per-category treatment length.
	Durations map[Category]time.Duration

	// Buffer is idle time enforced on both sides of every booked interval.
	Buffer time.Duration

	// Step is the fixed candidate cadence, independent of category duration.
	Step time.Duration

	// HorizonDays caps how far out a date may be booked.
	HorizonDays int

	// LookaheadDays caps the NextAvailableDate scan. Deliberately narrower
	// than HorizonDays: "next available" is a soon-query.
	LookaheadDays int

	// Blackouts holds dates (DateLayout keys) closed for every category.
	Blackouts map[string]struct{}

	// Location anchors date parsing and day-of-week decisions.
	Location *time.Location

	// Now is the clock; overridable in tests.
	Now func() time.Time
}

// DefaultRules returns the production policy: 09:00-18:00 daily, 14:00 close
// on Saturdays, 30-minute buffer and step, 60-day horizon, 30-day lookahead.
func DefaultRules(loc *time.Location) Rules {
	if loc == nil {
		loc = time.Local
	}
	return Rules{
		OpenHour:          9,
		CloseHour:         18,
		SaturdayCloseHour: 14,
		Durations: map[Category]time.Duration{
			CategorySpa:             120 * time.Minute,
			CategoryWellnessStay:    60 * time.Minute,
			CategoryWellnessCheckup: 180 * time.Minute,
		},
		Buffer:        30 * time.Minute,
		Step:          30 * time.Minute,
		HorizonDays:   60,
		LookaheadDays: 30,
		Blackouts:     map[string]struct{}{},
		Location:      loc,
		Now:           time.Now,
	}
}

// AddBlackouts registers additional fully-closed dates (DateLayout strings).
func (r Rules) AddBlackouts(dates ...string) Rules {
	if r.Blackouts == nil {
		r.Blackouts = map[string]struct{}{}
	}
	for _, d := range dates {
		if d != "" {
			r.Blackouts[d] = struct{}{}
		}
	}
	return r
}

func (r Rules) duration(cat Category) time.Duration {
	if d, ok := r.Durations[cat]; ok {
		return d
	}
	return 60 * time.Minute
}

func (r Rules) now() time.Time {
	if r.Now != nil {
		return r.Now().In(r.Location)
	}
	return time.Now().In(r.Location)
}

// window returns the open and close instants for a day, honoring the early
// Saturday close.
func (r Rules) window(day time.Time) (time.Time, time.Time) {
	closeHour, closeMinute := r.CloseHour, r.CloseMinute
	if day.Weekday() == time.Saturday {
		closeHour, closeMinute = r.SaturdayCloseHour, 0
	}
	open := time.Date(day.Year(), day.Month(), day.Day(), r.OpenHour, r.OpenMinute, 0, 0, r.Location)
	close := time.Date(day.Year(), day.Month(), day.Day(), closeHour, closeMinute, 0, 0, r.Location)
	return open, close
}
