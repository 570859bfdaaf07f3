package schedule

import (
	"context"
	"time"
)

// Interval is a reserved span of time derived from a booked appointment.
type Interval struct {
	Start time.Time
	End   time.Time
}

// Ledger is the engine's only collaborator: the store of booked appointments.
// UpcomingIntervals returns every reserved interval on the given day whose
// appointment is still upcoming; cancelled and completed appointments never
// block a slot. Availability is a shared resource, so the result spans all
// guests and locations.
//
// A Ledger error must propagate to the caller; treating it as "nothing
// booked" would over-report availability.
type Ledger interface {
	UpcomingIntervals(ctx context.Context, day time.Time) ([]Interval, error)
}
