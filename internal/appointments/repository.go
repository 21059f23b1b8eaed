package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/veritahealth/clinic-platform/internal/schedule"
)

// slotUniqueIndex is the partial unique index on
// (clinic_id, staff_id, date, start_minutes) over live rows. It is the
// single source of truth for "is this slot taken"; every read-side
// check is advisory.
const slotUniqueIndex = "appointments_live_slot_key"

// PgxPool is the pool subset the repository needs. pgxmock satisfies
// it in tests.
type PgxPool interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Querier is satisfied by both the pool and a pgx.Tx so the guarded
// insert can run inside the reschedule transaction.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists appointments and serves the engine's appointment
// projection reads. It implements schedule.AppointmentSource.
type Repository struct {
	pool PgxPool
}

// NewRepository creates an appointment repository backed by pgx.
func NewRepository(pool PgxPool) *Repository {
	if pool == nil {
		panic("appointments: pgx pool required")
	}
	return &Repository{pool: pool}
}

// Begin opens a transaction for multi-statement operations.
func (r *Repository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

const appointmentColumns = `
	id, clinic_id, staff_id, patient_ref, date,
	start_minutes, end_minutes, status, notes, superseded_by, created_at
`

// ListForStaff returns live appointments as engine slot projections.
func (r *Repository) ListForStaff(ctx context.Context, clinicID, staffID uuid.UUID, from, to time.Time) ([]schedule.AppointmentSlot, error) {
	query := `
		SELECT id, clinic_id, staff_id, date, start_minutes, end_minutes
		FROM appointments
		WHERE clinic_id = $1
		  AND staff_id = $2
		  AND date BETWEEN $3 AND $4
		  AND status NOT IN ($5, $6)
		  AND deleted_at IS NULL
		ORDER BY date, start_minutes
	`
	rows, err := r.pool.Query(ctx, query, clinicID, staffID, from, to, StatusCancelled, StatusRescheduled)
	if err != nil {
		return nil, fmt.Errorf("%w: list appointments: %w", schedule.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var slots []schedule.AppointmentSlot
	for rows.Next() {
		var s schedule.AppointmentSlot
		if err := rows.Scan(&s.ID, &s.ClinicID, &s.StaffID, &s.Date, &s.StartMinutes, &s.EndMinutes); err != nil {
			return nil, fmt.Errorf("%w: scan appointment: %w", schedule.ErrSourceUnavailable, err)
		}
		slots = append(slots, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list appointments: %w", schedule.ErrSourceUnavailable, err)
	}
	return slots, nil
}

// ExistsAt is the advisory pre-check for a slot. It gives a fast,
// friendly failure but is not authoritative: two callers can both see
// false here and still race, which is why InsertIfFree exists.
func (r *Repository) ExistsAt(ctx context.Context, clinicID, staffID uuid.UUID, date time.Time, startMinutes int) (bool, error) {
	query := `
		SELECT EXISTS (
			SELECT 1 FROM appointments
			WHERE clinic_id = $1 AND staff_id = $2 AND date = $3 AND start_minutes = $4
			  AND status NOT IN ($5, $6)
			  AND deleted_at IS NULL
		)
	`
	var exists bool
	if err := r.pool.QueryRow(ctx, query, clinicID, staffID, date, startMinutes, StatusCancelled, StatusRescheduled).Scan(&exists); err != nil {
		return false, fmt.Errorf("appointments: slot pre-check: %w", err)
	}
	return exists, nil
}

// InsertIfFree attempts the guarded insert. The partial unique index
// arbitrates races at commit time: a rejection surfaces as
// ErrSlotConflict, anything else as a plain storage error.
func (r *Repository) InsertIfFree(ctx context.Context, q Querier, appt Appointment) (*Appointment, error) {
	if q == nil {
		q = r.pool
	}
	if appt.ID == uuid.Nil {
		appt.ID = uuid.New()
	}
	appt.Status = StatusBooked

	query := `
		INSERT INTO appointments (id, clinic_id, staff_id, patient_ref, date, start_minutes, end_minutes, status, notes)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING created_at
	`
	if err := q.QueryRow(ctx, query,
		appt.ID, appt.ClinicID, appt.StaffID, appt.PatientRef,
		appt.Date, appt.StartMinutes, appt.EndMinutes, appt.Status, appt.Notes,
	).Scan(&appt.CreatedAt); err != nil {
		if isSlotConflict(err) {
			return nil, fmt.Errorf("%w: staff %s at %s %s", ErrSlotConflict,
				appt.StaffID, appt.Date.Format("2006-01-02"), schedule.FormatClock(appt.StartMinutes))
		}
		return nil, fmt.Errorf("appointments: insert: %w", err)
	}
	return &appt, nil
}

// GetForClinic loads an appointment scoped to the clinic.
func (r *Repository) GetForClinic(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error) {
	query := `
		SELECT ` + appointmentColumns + `
		FROM appointments
		WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL
	`
	var a Appointment
	if err := r.pool.QueryRow(ctx, query, id, clinicID).Scan(
		&a.ID, &a.ClinicID, &a.StaffID, &a.PatientRef, &a.Date,
		&a.StartMinutes, &a.EndMinutes, &a.Status, &a.Notes, &a.SupersededBy, &a.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: appointment %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("appointments: load: %w", err)
	}
	return &a, nil
}

// MarkRescheduled moves the original row to its terminal state and
// records which row superseded it. The original's slot identity is
// never mutated.
func (r *Repository) MarkRescheduled(ctx context.Context, q Querier, clinicID, id, supersededBy uuid.UUID) error {
	if q == nil {
		q = r.pool
	}
	query := `
		UPDATE appointments
		SET status = $3, superseded_by = $4, updated_at = now()
		WHERE id = $1 AND clinic_id = $2 AND status = $5 AND deleted_at IS NULL
	`
	tag, err := q.Exec(ctx, query, id, clinicID, StatusRescheduled, supersededBy, StatusBooked)
	if err != nil {
		return fmt.Errorf("appointments: mark rescheduled: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: appointment %s not in %s state", ErrNotFound, id, StatusBooked)
	}
	return nil
}

// Cancel releases a slot without deleting the row.
func (r *Repository) Cancel(ctx context.Context, clinicID, id uuid.UUID) error {
	query := `
		UPDATE appointments
		SET status = $3, updated_at = now()
		WHERE id = $1 AND clinic_id = $2 AND status = $4 AND deleted_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, id, clinicID, StatusCancelled, StatusBooked)
	if err != nil {
		return fmt.Errorf("appointments: cancel: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: appointment %s not in %s state", ErrNotFound, id, StatusBooked)
	}
	return nil
}

func isSlotConflict(err error) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return false
	}
	return pgErr.Code == "23505" && (pgErr.ConstraintName == slotUniqueIndex || pgErr.ConstraintName == "")
}
