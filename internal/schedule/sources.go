package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"
)

// The composer reads three sources owned by other subsystems. Each
// implementation must apply soft-delete and status filtering itself so
// consumers never repeat it, and must wrap transient store failures in
// ErrSourceUnavailable.

// StaffDirectory exposes a staff member's nominal working weekdays.
type StaffDirectory interface {
	WorkingDays(ctx context.Context, clinicID, staffID uuid.UUID) (WorkingPattern, error)
}

// TimeOffSource lists approved, non-deleted time-off ranges touching
// the date window, including recurring ranges whose recurrence window
// intersects it.
type TimeOffSource interface {
	ListApproved(ctx context.Context, clinicID, staffID uuid.UUID, from, to time.Time) ([]TimeOffRange, error)
}

// AppointmentSource lists live appointments for a staff member inside
// the date window.
type AppointmentSource interface {
	ListForStaff(ctx context.Context, clinicID, staffID uuid.UUID, from, to time.Time) ([]AppointmentSlot, error)
}
