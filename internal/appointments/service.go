package appointments

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"

	"github.com/veritahealth/clinic-platform/internal/observability/metrics"
	"github.com/veritahealth/clinic-platform/internal/schedule"
	"github.com/veritahealth/clinic-platform/pkg/logging"
)

var apptTracer = otel.Tracer("clinic.internal.appointments")

// Store is the persistence surface the guard depends on; *Repository
// is the production implementation, fakes stand in for tests.
type Store interface {
	Begin(ctx context.Context) (pgx.Tx, error)
	ExistsAt(ctx context.Context, clinicID, staffID uuid.UUID, date time.Time, startMinutes int) (bool, error)
	InsertIfFree(ctx context.Context, q Querier, appt Appointment) (*Appointment, error)
	GetForClinic(ctx context.Context, clinicID, id uuid.UUID) (*Appointment, error)
	MarkRescheduled(ctx context.Context, q Querier, clinicID, id, supersededBy uuid.UUID) error
	Cancel(ctx context.Context, clinicID, id uuid.UUID) error
}

// Service enforces the booking uniqueness invariant: at most one live
// appointment per (clinic, staff, date, start time). It holds no lock;
// correctness rests entirely on the storage constraint, and conflicts
// are surfaced to the caller without retry.
type Service struct {
	repo    Store
	metrics *metrics.SchedulingMetrics
	logger  *logging.Logger
}

// NewService constructs the booking service.
func NewService(repo Store, m *metrics.SchedulingMetrics, logger *logging.Logger) *Service {
	if repo == nil {
		panic("appointments: repository required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &Service{repo: repo, metrics: m, logger: logger}
}

// ReserveRequest describes the slot to reserve.
type ReserveRequest struct {
	ClinicID     uuid.UUID
	StaffID      uuid.UUID
	PatientRef   string
	Date         time.Time
	StartMinutes int
	EndMinutes   int
	Notes        string
}

func (req ReserveRequest) validate() error {
	if req.ClinicID == uuid.Nil || req.StaffID == uuid.Nil {
		return fmt.Errorf("%w: clinic and staff ids required", schedule.ErrInvalidRange)
	}
	if req.StartMinutes >= req.EndMinutes {
		return fmt.Errorf("%w: start %s not before end %s", schedule.ErrInvalidRange,
			schedule.FormatClock(req.StartMinutes), schedule.FormatClock(req.EndMinutes))
	}
	if req.StartMinutes < 0 || req.EndMinutes > 24*60 {
		return fmt.Errorf("%w: window outside the day", schedule.ErrInvalidRange)
	}
	return nil
}

// ReserveSlot books the exact slot or fails with ErrSlotConflict. The
// pre-check is a UX fast path only; the insert under the unique index
// is what actually decides the race.
func (s *Service) ReserveSlot(ctx context.Context, req ReserveRequest) (*Appointment, error) {
	ctx, span := apptTracer.Start(ctx, "appointments.reserve_slot")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.id", req.ClinicID.String()),
		attribute.String("clinic.staff_id", req.StaffID.String()),
		attribute.String("clinic.slot", req.Date.Format("2006-01-02")+" "+schedule.FormatClock(req.StartMinutes)),
	)

	if err := req.validate(); err != nil {
		s.metrics.ObserveReservation("invalid")
		return nil, err
	}

	taken, err := s.repo.ExistsAt(ctx, req.ClinicID, req.StaffID, req.Date, req.StartMinutes)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveReservation("error")
		return nil, err
	}
	if taken {
		s.metrics.ObserveReservation("conflict")
		s.metrics.ObserveSlotConflict()
		return nil, fmt.Errorf("%w: staff %s at %s %s", ErrSlotConflict,
			req.StaffID, req.Date.Format("2006-01-02"), schedule.FormatClock(req.StartMinutes))
	}

	appt, err := s.repo.InsertIfFree(ctx, nil, Appointment{
		ClinicID:     req.ClinicID,
		StaffID:      req.StaffID,
		PatientRef:   req.PatientRef,
		Date:         req.Date,
		StartMinutes: req.StartMinutes,
		EndMinutes:   req.EndMinutes,
		Notes:        req.Notes,
	})
	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			s.metrics.ObserveReservation("conflict")
			s.metrics.ObserveSlotConflict()
		} else {
			span.RecordError(err)
			s.metrics.ObserveReservation("error")
		}
		return nil, err
	}

	s.metrics.ObserveReservation("ok")
	s.logger.Info("slot reserved",
		"clinic_id", req.ClinicID,
		"staff_id", req.StaffID,
		"appointment_id", appt.ID,
		"date", req.Date.Format("2006-01-02"),
		"start", schedule.FormatClock(req.StartMinutes),
	)
	return appt, nil
}

// Cancel releases a booked slot. The row survives in cancelled state,
// excluded from the uniqueness index, so the slot is immediately
// reservable again.
func (s *Service) Cancel(ctx context.Context, clinicID, apptID uuid.UUID) error {
	ctx, span := apptTracer.Start(ctx, "appointments.cancel")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.id", clinicID.String()),
		attribute.String("clinic.appointment_id", apptID.String()),
	)

	if err := s.repo.Cancel(ctx, clinicID, apptID); err != nil {
		if !errors.Is(err, ErrNotFound) {
			span.RecordError(err)
		}
		return err
	}
	s.logger.Info("appointment cancelled", "clinic_id", clinicID, "appointment_id", apptID)
	return nil
}

// Reschedule supersedes an appointment: a replacement row is inserted
// under the same uniqueness invariant and the original is marked
// rescheduled, all in one transaction. The original row keeps its slot
// identity forever.
func (s *Service) Reschedule(ctx context.Context, clinicID, apptID uuid.UUID, newDate time.Time, newStart, newEnd int) (*Appointment, error) {
	ctx, span := apptTracer.Start(ctx, "appointments.reschedule")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.id", clinicID.String()),
		attribute.String("clinic.appointment_id", apptID.String()),
	)

	if newStart >= newEnd {
		return nil, fmt.Errorf("%w: start %s not before end %s", schedule.ErrInvalidRange,
			schedule.FormatClock(newStart), schedule.FormatClock(newEnd))
	}

	original, err := s.repo.GetForClinic(ctx, clinicID, apptID)
	if err != nil {
		return nil, err
	}
	if original.Status != StatusBooked {
		return nil, fmt.Errorf("%w: appointment %s is %s", ErrNotFound, apptID, original.Status)
	}

	tx, err := s.repo.Begin(ctx)
	if err != nil {
		span.RecordError(err)
		return nil, fmt.Errorf("appointments: begin reschedule: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	replacement, err := s.repo.InsertIfFree(ctx, tx, Appointment{
		ClinicID:     clinicID,
		StaffID:      original.StaffID,
		PatientRef:   original.PatientRef,
		Date:         newDate,
		StartMinutes: newStart,
		EndMinutes:   newEnd,
		Notes:        original.Notes,
	})
	if err != nil {
		if errors.Is(err, ErrSlotConflict) {
			s.metrics.ObserveReservation("conflict")
			s.metrics.ObserveSlotConflict()
		} else {
			span.RecordError(err)
			s.metrics.ObserveReservation("error")
		}
		return nil, err
	}
	if err := s.repo.MarkRescheduled(ctx, tx, clinicID, apptID, replacement.ID); err != nil {
		span.RecordError(err)
		return nil, err
	}
	if err := tx.Commit(ctx); err != nil {
		span.RecordError(err)
		if isSlotConflict(err) {
			// Deferred constraint evaluation can reject at commit.
			s.metrics.ObserveReservation("conflict")
			s.metrics.ObserveSlotConflict()
			return nil, fmt.Errorf("%w: staff %s at %s %s", ErrSlotConflict,
				original.StaffID, newDate.Format("2006-01-02"), schedule.FormatClock(newStart))
		}
		return nil, fmt.Errorf("appointments: commit reschedule: %w", err)
	}

	s.metrics.ObserveReservation("ok")
	s.logger.Info("appointment rescheduled",
		"clinic_id", clinicID,
		"original_id", apptID,
		"replacement_id", replacement.ID,
		"date", newDate.Format("2006-01-02"),
		"start", schedule.FormatClock(newStart),
	)
	return replacement, nil
}
