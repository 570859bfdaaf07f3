package storage

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/serenovaspa/serenova/internal/model"
	"github.com/serenovaspa/serenova/internal/schedule"
	"github.com/serenovaspa/serenova/libs/db"
)

// BookingRepository owns the appointments table. It is the write path that
// enforces the at-most-one-booking-per-slot guarantee the pure scheduling
// engine cannot: Create and Reschedule run a buffered-overlap recheck inside
// the transaction (serialized with FOR UPDATE) and the exclusion constraint
// in schema.sql backstops it at the storage layer.
type BookingRepository struct {
	pool   *db.Pool
	buffer time.Duration
	loc    *time.Location
}

func NewBookingRepository(pool *db.Pool, buffer time.Duration, loc *time.Location) *BookingRepository {
	if loc == nil {
		loc = time.Local
	}
	return &BookingRepository{pool: pool, buffer: buffer, loc: loc}
}

var ErrSlotTaken = errors.New("slot already taken")

func (r *BookingRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

// Create inserts a new upcoming appointment. Returns ErrSlotTaken when the
// requested interval, after buffer expansion, touches an existing upcoming
// appointment.
func (r *BookingRepository) Create(ctx context.Context, tx pgx.Tx, appt *model.Appointment) (string, error) {
	startAt, endAt, err := r.deriveInterval(appt.Date, appt.TimeOfDay, appt.DurationMins)
	if err != nil {
		return "", err
	}

	taken, err := r.overlapExists(ctx, tx, appt.Date, startAt, endAt, "")
	if err != nil {
		return "", err
	}
	if taken {
		return "", ErrSlotTaken
	}

	id := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO appointments
			(id, guest_id, category, title, description, date, time_of_day, duration_minutes, location, status, start_at, end_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`, id, appt.GuestID, appt.Category, appt.Title, appt.Description, appt.Date, appt.TimeOfDay,
		appt.DurationMins, appt.Location, model.StatusUpcoming, startAt, endAt)
	if err != nil {
		if IsConflict(err) {
			return "", ErrSlotTaken
		}
		return "", err
	}
	appt.ID = id
	appt.Status = model.StatusUpcoming
	appt.StartAt = startAt
	appt.EndAt = endAt
	return id, nil
}

// Reschedule moves an upcoming appointment to a new date/time in place; the
// status is untouched. The moved appointment is excluded from its own overlap
// check.
func (r *BookingRepository) Reschedule(ctx context.Context, tx pgx.Tx, id, newDate, newTime string) error {
	appt, err := r.GetForUpdate(ctx, tx, id)
	if err != nil {
		return err
	}
	if appt.Status != model.StatusUpcoming {
		return ErrNotReschedulable
	}

	startAt, endAt, err := r.deriveInterval(newDate, newTime, appt.DurationMins)
	if err != nil {
		return err
	}
	taken, err := r.overlapExists(ctx, tx, newDate, startAt, endAt, id)
	if err != nil {
		return err
	}
	if taken {
		return ErrSlotTaken
	}

	_, err = tx.Exec(ctx, `
		UPDATE appointments
		SET date = $2, time_of_day = $3, start_at = $4, end_at = $5, updated_at = now()
		WHERE id = $1
	`, id, newDate, newTime, startAt, endAt)
	if IsConflict(err) {
		return ErrSlotTaken
	}
	return err
}

var ErrNotReschedulable = errors.New("appointment is not upcoming")

// Cancel marks an upcoming appointment cancelled and records when and why.
func (r *BookingRepository) Cancel(ctx context.Context, tx pgx.Tx, id, reason string) (time.Time, error) {
	var cancelledAt time.Time
	err := tx.QueryRow(ctx, `
		UPDATE appointments
		SET status = 'cancelled',
			cancelled_at = now(),
			cancellation_reason = $2,
			updated_at = now()
		WHERE id = $1 AND status = 'upcoming'
		RETURNING cancelled_at
	`, id, reason).Scan(&cancelledAt)
	return cancelledAt, err
}

// MarkCompleted transitions an upcoming appointment to completed. Driven by
// staff through the admin API, not by the engine.
func (r *BookingRepository) MarkCompleted(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE appointments
		SET status = 'completed', updated_at = now()
		WHERE id = $1 AND status = 'upcoming'
	`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return pgx.ErrNoRows
	}
	return nil
}

func (r *BookingRepository) GetForUpdate(ctx context.Context, tx pgx.Tx, id string) (model.Appointment, error) {
	row := tx.QueryRow(ctx, selectColumns+`
		FROM appointments
		WHERE id = $1
		FOR UPDATE
	`, id)
	return scanAppointment(row)
}

func (r *BookingRepository) GetByID(ctx context.Context, id string) (model.Appointment, error) {
	row := r.pool.QueryRow(ctx, selectColumns+`
		FROM appointments
		WHERE id = $1
	`, id)
	return scanAppointment(row)
}

func (r *BookingRepository) ListByGuest(ctx context.Context, guestID string, limit int) ([]model.Appointment, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := r.pool.Query(ctx, selectColumns+`
		FROM appointments
		WHERE guest_id = $1
		ORDER BY start_at DESC
		LIMIT $2
	`, guestID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var appts []model.Appointment
	for rows.Next() {
		appt, err := scanAppointment(rows)
		if err != nil {
			return nil, err
		}
		appts = append(appts, appt)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return appts, nil
}

// UpcomingIntervals implements schedule.Ledger. The query spans all guests
// and locations: availability is a single shared resource pool.
func (r *BookingRepository) UpcomingIntervals(ctx context.Context, day time.Time) ([]schedule.Interval, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT start_at, end_at
		FROM appointments
		WHERE date = $1 AND status = 'upcoming'
	`, day.Format(schedule.DateLayout))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var intervals []schedule.Interval
	for rows.Next() {
		var iv schedule.Interval
		if err := rows.Scan(&iv.Start, &iv.End); err != nil {
			return nil, err
		}
		intervals = append(intervals, iv)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return intervals, nil
}

// overlapExists locks the day's upcoming rows and tests the candidate
// interval against them with the buffer applied, boundary contact included.
func (r *BookingRepository) overlapExists(ctx context.Context, tx pgx.Tx, date string, startAt, endAt time.Time, excludeID string) (bool, error) {
	var exists bool
	err := tx.QueryRow(ctx, `
		SELECT EXISTS (
			SELECT 1
			FROM appointments
			WHERE date = $1
				AND status = 'upcoming'
				AND ($4 = '' OR id <> $4)
				AND start_at - $5::interval <= $3
				AND end_at + $5::interval >= $2
			FOR UPDATE
		)
	`, date, startAt, endAt, excludeID, r.buffer.String()).Scan(&exists)
	return exists, err
}

func (r *BookingRepository) deriveInterval(date, hhmm string, durationMins int) (time.Time, time.Time, error) {
	day, err := time.ParseInLocation(schedule.DateLayout, date, r.loc)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	clock, err := time.Parse(schedule.TimeLayout, hhmm)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	start := time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, r.loc)
	return start, start.Add(time.Duration(durationMins) * time.Minute), nil
}

const selectColumns = `
		SELECT id, guest_id, category, title, description, date, time_of_day, duration_minutes,
			location, status, start_at, end_at, cancelled_at, COALESCE(cancellation_reason, ''),
			created_at, updated_at
`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAppointment(row rowScanner) (model.Appointment, error) {
	var appt model.Appointment
	var cancelledAt *time.Time
	err := row.Scan(
		&appt.ID,
		&appt.GuestID,
		&appt.Category,
		&appt.Title,
		&appt.Description,
		&appt.Date,
		&appt.TimeOfDay,
		&appt.DurationMins,
		&appt.Location,
		&appt.Status,
		&appt.StartAt,
		&appt.EndAt,
		&cancelledAt,
		&appt.CancelReason,
		&appt.CreatedAt,
		&appt.UpdatedAt,
	)
	if err != nil {
		return model.Appointment{}, err
	}
	appt.CancelledAt = cancelledAt
	return appt, nil
}

func IsConflict(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == "23P01"
}

func IsNotFound(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}
