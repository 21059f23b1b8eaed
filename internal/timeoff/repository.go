package timeoff

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

// ErrNotFound reports an unknown or deleted time-off range.
var ErrNotFound = errors.New("timeoff: not found")

// ErrBadTransition reports a lifecycle transition the state machine
// does not allow (e.g. approving a cancelled range).
var ErrBadTransition = errors.New("timeoff: transition not allowed")

// PgxPool is the pool subset used here; pgxmock satisfies it.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository persists time-off ranges and serves the engine's
// approved-range reads. It implements schedule.TimeOffSource: status
// and soft-delete filtering happen here, in one place, so no consumer
// repeats them.
type Repository struct {
	pool PgxPool
}

// NewRepository creates a time-off repository backed by pgx.
func NewRepository(pool PgxPool) *Repository {
	if pool == nil {
		panic("timeoff: pgx pool required")
	}
	return &Repository{pool: pool}
}

const rangeColumns = `
	id, clinic_id, staff_id, type, status,
	start_date, end_date, start_minutes, end_minutes,
	is_recurring, recurring_days, recurring_end_date
`

// Create inserts a validated range in pending status.
func (r *Repository) Create(ctx context.Context, rng schedule.TimeOffRange) (*schedule.TimeOffRange, error) {
	if err := rng.Validate(); err != nil {
		return nil, err
	}
	if rng.ID == uuid.Nil {
		rng.ID = uuid.New()
	}
	rng.Status = schedule.TimeOffPending

	var recurringEnd *time.Time
	if rng.IsRecurring {
		recurringEnd = &rng.RecurringEndDate
	}
	query := `
		INSERT INTO time_off_ranges (
			id, clinic_id, staff_id, type, status,
			start_date, end_date, start_minutes, end_minutes,
			is_recurring, recurring_days, recurring_end_date
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	`
	if _, err := r.pool.Exec(ctx, query,
		rng.ID, rng.ClinicID, rng.StaffID, rng.Type, rng.Status,
		rng.StartDate, rng.EndDate, rng.StartMinutes, rng.EndMinutes,
		rng.IsRecurring, toInt32(rng.RecurringDays), recurringEnd,
	); err != nil {
		return nil, fmt.Errorf("timeoff: insert range: %w", err)
	}
	return &rng, nil
}

// GetByID loads a live range scoped to the clinic.
func (r *Repository) GetByID(ctx context.Context, clinicID, id uuid.UUID) (*schedule.TimeOffRange, error) {
	query := `
		SELECT ` + rangeColumns + `
		FROM time_off_ranges
		WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL
	`
	rng, err := scanRange(r.pool.QueryRow(ctx, query, id, clinicID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: range %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("timeoff: load range: %w", err)
	}
	return rng, nil
}

// Transition moves a range between lifecycle states. Allowed:
// pending -> approved|rejected, approved -> cancelled.
func (r *Repository) Transition(ctx context.Context, clinicID, id uuid.UUID, to schedule.TimeOffStatus) error {
	var from []schedule.TimeOffStatus
	switch to {
	case schedule.TimeOffApproved, schedule.TimeOffRejected:
		from = []schedule.TimeOffStatus{schedule.TimeOffPending}
	case schedule.TimeOffCancelled:
		from = []schedule.TimeOffStatus{schedule.TimeOffApproved}
	default:
		return fmt.Errorf("%w: cannot transition to %s", ErrBadTransition, to)
	}
	query := `
		UPDATE time_off_ranges
		SET status = $3, updated_at = now()
		WHERE id = $1 AND clinic_id = $2 AND status = ANY($4) AND deleted_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, id, clinicID, to, statusStrings(from))
	if err != nil {
		return fmt.Errorf("timeoff: transition range: %w", err)
	}
	if tag.RowsAffected() == 0 {
		// Either the range is gone or it is not in an allowed state.
		if _, err := r.GetByID(ctx, clinicID, id); err != nil {
			return err
		}
		return fmt.Errorf("%w: range %s to %s", ErrBadTransition, id, to)
	}
	return nil
}

// SoftDelete hides a range from all future reads while keeping the row
// for historical computations.
func (r *Repository) SoftDelete(ctx context.Context, clinicID, id uuid.UUID) error {
	query := `
		UPDATE time_off_ranges
		SET deleted_at = now(), updated_at = now()
		WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, id, clinicID)
	if err != nil {
		return fmt.Errorf("timeoff: soft delete range: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: range %s", ErrNotFound, id)
	}
	return nil
}

// ListApproved returns approved, non-deleted ranges that can touch any
// date in [from, to]. Recurring ranges match on their recurrence
// window, not their seed end date.
func (r *Repository) ListApproved(ctx context.Context, clinicID, staffID uuid.UUID, from, to time.Time) ([]schedule.TimeOffRange, error) {
	query := `
		SELECT ` + rangeColumns + `
		FROM time_off_ranges
		WHERE clinic_id = $1
		  AND staff_id = $2
		  AND status = 'approved'
		  AND deleted_at IS NULL
		  AND start_date <= $4
		  AND (CASE WHEN is_recurring THEN recurring_end_date ELSE end_date END) >= $3
		ORDER BY start_date, start_minutes NULLS FIRST
	`
	rows, err := r.pool.Query(ctx, query, clinicID, staffID, from, to)
	if err != nil {
		return nil, fmt.Errorf("%w: list approved time off: %w", schedule.ErrSourceUnavailable, err)
	}
	defer rows.Close()

	var ranges []schedule.TimeOffRange
	for rows.Next() {
		rng, err := scanRange(rows)
		if err != nil {
			return nil, fmt.Errorf("%w: scan time off: %w", schedule.ErrSourceUnavailable, err)
		}
		ranges = append(ranges, *rng)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: list approved time off: %w", schedule.ErrSourceUnavailable, err)
	}
	return ranges, nil
}

func scanRange(row pgx.Row) (*schedule.TimeOffRange, error) {
	var (
		rng          schedule.TimeOffRange
		days         []int32
		recurringEnd *time.Time
	)
	if err := row.Scan(
		&rng.ID, &rng.ClinicID, &rng.StaffID, &rng.Type, &rng.Status,
		&rng.StartDate, &rng.EndDate, &rng.StartMinutes, &rng.EndMinutes,
		&rng.IsRecurring, &days, &recurringEnd,
	); err != nil {
		return nil, err
	}
	for _, d := range days {
		rng.RecurringDays = append(rng.RecurringDays, int(d))
	}
	if recurringEnd != nil {
		rng.RecurringEndDate = *recurringEnd
	}
	return &rng, nil
}

func toInt32(days []int) []int32 {
	if len(days) == 0 {
		return nil
	}
	out := make([]int32, 0, len(days))
	for _, d := range days {
		out = append(out, int32(d))
	}
	return out
}

func statusStrings(statuses []schedule.TimeOffStatus) []string {
	out := make([]string, 0, len(statuses))
	for _, s := range statuses {
		out = append(out, string(s))
	}
	return out
}
