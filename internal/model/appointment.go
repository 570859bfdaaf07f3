package model

import "time"

const (
	StatusUpcoming  = "upcoming"
	StatusCompleted = "completed"
	StatusCancelled = "cancelled"
)

// Appointment is the persisted booking entity. Date/TimeOfDay/DurationMins
// are the source fields; StartAt/EndAt are the derived instants stored
// alongside them for range queries and the overlap constraint.
type Appointment struct {
	ID           string
	GuestID      string
	Category     string
	Title        string
	Description  string
	Date         string // 2006-01-02
	TimeOfDay    string // 15:04
	DurationMins int
	Location     string
	Status       string
	StartAt      time.Time
	EndAt        time.Time
	CancelledAt  *time.Time
	CancelReason string
	CreatedAt    time.Time
	UpdatedAt    time.Time
}
