package staff

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/veritahealth/clinic-platform/internal/schedule"
)

// ErrNotFound reports an unknown or deleted staff member.
var ErrNotFound = errors.New("staff: not found")

// PgxPool is the subset of pgxpool.Pool the repository needs, kept as
// an interface so pgxmock can stand in for tests.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// Repository reads staff working patterns from Postgres. It implements
// schedule.StaffDirectory.
type Repository struct {
	pool PgxPool
}

// NewRepository creates a staff repository backed by pgx.
func NewRepository(pool PgxPool) *Repository {
	if pool == nil {
		panic("staff: pgx pool required")
	}
	return &Repository{pool: pool}
}

// WorkingDays returns the ISO weekday set the staff member works.
// Soft-deleted staff are treated as unknown.
func (r *Repository) WorkingDays(ctx context.Context, clinicID, staffID uuid.UUID) (schedule.WorkingPattern, error) {
	query := `
		SELECT working_days
		FROM staff
		WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL
	`
	var days []int32
	if err := r.pool.QueryRow(ctx, query, staffID, clinicID).Scan(&days); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("%w: staff %s", ErrNotFound, staffID)
		}
		return nil, fmt.Errorf("%w: load working days: %w", schedule.ErrSourceUnavailable, err)
	}
	pattern := make([]int, 0, len(days))
	for _, d := range days {
		pattern = append(pattern, int(d))
	}
	return schedule.NewWorkingPattern(pattern), nil
}

// UpdateWorkingDays replaces the staff member's working pattern.
func (r *Repository) UpdateWorkingDays(ctx context.Context, clinicID, staffID uuid.UUID, days []int) error {
	for _, d := range days {
		if d < 1 || d > 7 {
			return fmt.Errorf("%w: weekday %d out of range 1..7", schedule.ErrInvalidRange, d)
		}
	}
	stored := make([]int32, 0, len(days))
	for _, d := range days {
		stored = append(stored, int32(d))
	}
	query := `
		UPDATE staff
		SET working_days = $3, updated_at = now()
		WHERE id = $1 AND clinic_id = $2 AND deleted_at IS NULL
	`
	tag, err := r.pool.Exec(ctx, query, staffID, clinicID, stored)
	if err != nil {
		return fmt.Errorf("staff: update working days: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: staff %s", ErrNotFound, staffID)
	}
	return nil
}
