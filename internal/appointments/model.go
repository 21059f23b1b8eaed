package appointments

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// Appointment status values. Cancelled and rescheduled are terminal
// and release the slot: rows in those states are excluded from the
// uniqueness index and from conflict scans.
const (
	StatusBooked      = "booked"
	StatusCancelled   = "cancelled"
	StatusRescheduled = "rescheduled"
)

var (
	// ErrSlotConflict reports that the storage uniqueness constraint
	// rejected a reservation: someone else holds the slot. This is an
	// expected user-facing outcome, not a system fault, and the guard
	// never retries on the caller's behalf.
	ErrSlotConflict = errors.New("appointments: slot already taken")

	// ErrNotFound reports an unknown or deleted appointment.
	ErrNotFound = errors.New("appointments: not found")
)

// Appointment is the booking row owned by this package.
type Appointment struct {
	ID           uuid.UUID
	ClinicID     uuid.UUID
	StaffID      uuid.UUID
	PatientRef   string
	Date         time.Time
	StartMinutes int
	EndMinutes   int
	Status       string
	Notes        string
	// SupersededBy points at the replacement row after a reschedule.
	SupersededBy *uuid.UUID
	CreatedAt    time.Time
}
