package schedule

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/veritahealth/clinic-platform/internal/observability/metrics"
	"github.com/veritahealth/clinic-platform/pkg/logging"
)

var scheduleTracer = otel.Tracer("clinic.internal.schedule")

// Defaults applied when a request leaves working hours or slot
// duration unset.
type Defaults struct {
	WorkingHours WorkingHours
	SlotDuration int
	MaxRangeDays int
	// SourceTimeout bounds a single concurrent source fetch; zero means
	// no bound beyond the caller's context.
	SourceTimeout time.Duration
}

// Service composes staff availability from the three read sources.
// It is stateless and side-effect free: identical source data always
// produces identical output, and invocations may run with unlimited
// concurrency.
type Service struct {
	staff        StaffDirectory
	timeOff      TimeOffSource
	appointments AppointmentSource
	cache        *AvailabilityCache
	defaults     Defaults
	metrics      *metrics.SchedulingMetrics
	logger       *logging.Logger
}

// NewService constructs the availability service. The cache and
// metrics may be nil.
func NewService(staff StaffDirectory, timeOff TimeOffSource, appointments AppointmentSource, cache *AvailabilityCache, defaults Defaults, m *metrics.SchedulingMetrics, logger *logging.Logger) *Service {
	if staff == nil || timeOff == nil || appointments == nil {
		panic("schedule: all three sources are required")
	}
	if logger == nil {
		logger = logging.Default()
	}
	if defaults.SlotDuration == 0 {
		defaults.SlotDuration = 30
	}
	if defaults.WorkingHours.EndMinutes == 0 {
		defaults.WorkingHours = WorkingHours{StartMinutes: 9 * 60, EndMinutes: 17 * 60}
	}
	return &Service{
		staff:        staff,
		timeOff:      timeOff,
		appointments: appointments,
		cache:        cache,
		defaults:     defaults,
		metrics:      m,
		logger:       logger,
	}
}

// AvailabilityRequest parameterizes an availability computation.
// Hours and SlotDuration fall back to the configured defaults.
type AvailabilityRequest struct {
	ClinicID     uuid.UUID
	StaffID      uuid.UUID
	StartDate    time.Time
	EndDate      time.Time
	SlotDuration int
	Hours        *WorkingHours
}

func (s *Service) resolve(req AvailabilityRequest) (WorkingHours, int, error) {
	hours := s.defaults.WorkingHours
	if req.Hours != nil {
		hours = *req.Hours
	}
	duration := req.SlotDuration
	if duration == 0 {
		duration = s.defaults.SlotDuration
	}
	if duration < MinSlotDuration || duration > MaxSlotDuration {
		return WorkingHours{}, 0, fmt.Errorf("%w: slot duration %d outside %d..%d minutes",
			ErrInvalidRange, duration, MinSlotDuration, MaxSlotDuration)
	}
	if req.EndDate.Before(req.StartDate) {
		return WorkingHours{}, 0, fmt.Errorf("%w: end date before start date", ErrInvalidRange)
	}
	if s.defaults.MaxRangeDays > 0 {
		days := int(truncateToDay(req.EndDate).Sub(truncateToDay(req.StartDate)).Hours()/24) + 1
		if days > s.defaults.MaxRangeDays {
			return WorkingHours{}, 0, fmt.Errorf("%w: range spans %d days, limit %d",
				ErrInvalidRange, days, s.defaults.MaxRangeDays)
		}
	}
	return hours, duration, nil
}

// ComputeAvailability returns one DayAvailability per calendar date in
// [StartDate, EndDate]. Non-working days short-circuit without a
// conflict scan. A source failure aborts the whole request; the
// composer never returns a partial view.
func (s *Service) ComputeAvailability(ctx context.Context, req AvailabilityRequest) ([]DayAvailability, error) {
	ctx, span := scheduleTracer.Start(ctx, "schedule.compute_availability")
	defer span.End()
	span.SetAttributes(
		attribute.String("clinic.id", req.ClinicID.String()),
		attribute.String("clinic.staff_id", req.StaffID.String()),
	)
	started := time.Now()

	hours, duration, err := s.resolve(req)
	if err != nil {
		s.metrics.ObserveAvailability("invalid", time.Since(started).Seconds())
		return nil, err
	}
	req.SlotDuration = duration
	req.Hours = &hours

	if cached, ok := s.cache.Get(ctx, req); ok {
		s.metrics.ObserveAvailability("cache_hit", time.Since(started).Seconds())
		return cached, nil
	}

	pattern, timeOff, appts, err := s.fetchSources(ctx, req)
	if err != nil {
		span.RecordError(err)
		s.metrics.ObserveAvailability("source_error", time.Since(started).Seconds())
		return nil, err
	}

	from := truncateToDay(req.StartDate)
	to := truncateToDay(req.EndDate)
	var days []DayAvailability
	for date := from; !date.After(to); date = date.AddDate(0, 0, 1) {
		days = append(days, composeDay(date, pattern, hours, duration, timeOff, appts))
	}

	s.cache.Set(ctx, req, days)
	s.metrics.ObserveAvailability("ok", time.Since(started).Seconds())
	s.logger.Debug("availability computed",
		"clinic_id", req.ClinicID,
		"staff_id", req.StaffID,
		"days", len(days),
	)
	return days, nil
}

// fetchSources reads the three collaborators concurrently. They are
// independent, so a single errgroup join is enough; the first failure
// cancels the rest.
func (s *Service) fetchSources(ctx context.Context, req AvailabilityRequest) (WorkingPattern, []TimeOffRange, []AppointmentSlot, error) {
	var (
		pattern WorkingPattern
		timeOff []TimeOffRange
		appts   []AppointmentSlot
	)
	if s.defaults.SourceTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.defaults.SourceTimeout)
		defer cancel()
	}
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		var err error
		pattern, err = s.staff.WorkingDays(gctx, req.ClinicID, req.StaffID)
		return err
	})
	g.Go(func() error {
		var err error
		timeOff, err = s.timeOff.ListApproved(gctx, req.ClinicID, req.StaffID, req.StartDate, req.EndDate)
		return err
	})
	g.Go(func() error {
		var err error
		appts, err = s.appointments.ListForStaff(gctx, req.ClinicID, req.StaffID, req.StartDate, req.EndDate)
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, nil, nil, err
	}
	return pattern, timeOff, appts, nil
}

// composeDay applies the per-date pipeline: working-day check, slot
// generation, then filtering against time-off and appointments.
func composeDay(date time.Time, pattern WorkingPattern, hours WorkingHours, duration int, timeOff []TimeOffRange, appts []AppointmentSlot) DayAvailability {
	day := DayAvailability{
		Date:         date,
		WorkingHours: hours,
		Slots:        []TimeSlot{},
		Conflicts:    []Conflict{},
	}
	if !pattern.Includes(date) {
		return day
	}
	day.IsWorkingDay = true

	conflicts, fullDayBlocked := DayConflicts(date, timeOff)
	day.Conflicts = append(day.Conflicts, conflicts...)

	var dayAppts []AppointmentSlot
	for _, a := range appts {
		if !sameDay(a.Date, date) {
			continue
		}
		dayAppts = append(dayAppts, a)
		day.Conflicts = append(day.Conflicts, Conflict{
			Kind:         ConflictAppointment,
			StartMinutes: a.StartMinutes,
			EndMinutes:   a.EndMinutes,
			Description:  fmt.Sprintf("appointment %s-%s", FormatClock(a.StartMinutes), FormatClock(a.EndMinutes)),
		})
	}
	if fullDayBlocked {
		return day
	}

	for _, slot := range GenerateSlots(hours.StartMinutes, hours.EndMinutes, duration) {
		if slotBlocked(slot, date, timeOff, dayAppts) {
			continue
		}
		day.Slots = append(day.Slots, slot)
	}
	return day
}

func slotBlocked(slot TimeSlot, date time.Time, timeOff []TimeOffRange, appts []AppointmentSlot) bool {
	for _, r := range timeOff {
		if RangeBlocksWindow(r, date, slot.StartMinutes, slot.EndMinutes) {
			return true
		}
	}
	for _, a := range appts {
		if Overlaps(slot.StartMinutes, slot.EndMinutes, a.StartMinutes, a.EndMinutes) {
			return true
		}
	}
	return false
}

// NextAvailableSlot returns the first free slot on the date whose
// start is at or after preferredMinutes (when given). Only generated,
// grid-aligned slots are considered: a preferred time past the last
// aligned start yields nil rather than an invented off-grid slot.
// A nil result with nil error means the day is fully booked or off.
func (s *Service) NextAvailableSlot(ctx context.Context, clinicID, staffID uuid.UUID, date time.Time, preferredMinutes *int, slotDuration int) (*TimeSlot, error) {
	days, err := s.ComputeAvailability(ctx, AvailabilityRequest{
		ClinicID:     clinicID,
		StaffID:      staffID,
		StartDate:    date,
		EndDate:      date,
		SlotDuration: slotDuration,
	})
	if err != nil {
		return nil, err
	}
	if len(days) == 0 {
		return nil, nil
	}
	for _, slot := range days[0].Slots {
		if preferredMinutes != nil && slot.StartMinutes < *preferredMinutes {
			continue
		}
		found := slot
		return &found, nil
	}
	return nil, nil
}

// RangeSummary aggregates availability over a date range.
type RangeSummary struct {
	TotalSlots int                   `json:"total_slots"`
	DayCount   int                   `json:"day_count"`
	SlotsByDay map[string][]TimeSlot `json:"slots_by_day"`
}

// SummarizeRange reduces ComputeAvailability to per-day slot lists and
// totals. Days keyed by ISO date; non-working days are counted but
// contribute no slots.
func (s *Service) SummarizeRange(ctx context.Context, req AvailabilityRequest) (*RangeSummary, error) {
	days, err := s.ComputeAvailability(ctx, req)
	if err != nil {
		return nil, err
	}
	summary := &RangeSummary{
		DayCount:   len(days),
		SlotsByDay: make(map[string][]TimeSlot, len(days)),
	}
	for _, day := range days {
		summary.TotalSlots += len(day.Slots)
		summary.SlotsByDay[day.Date.Format("2006-01-02")] = day.Slots
	}
	return summary, nil
}

// QuickCheckResult answers "is this exact window bookable".
type QuickCheckResult struct {
	Available bool       `json:"available"`
	Conflicts []Conflict `json:"conflicts"`
}

// QuickCheck tests one specific window instead of enumerating slots.
// A non-working day reports available=false with an explanatory entry.
func (s *Service) QuickCheck(ctx context.Context, clinicID, staffID uuid.UUID, date time.Time, startMin, endMin int) (*QuickCheckResult, error) {
	ctx, span := scheduleTracer.Start(ctx, "schedule.quick_check")
	defer span.End()

	if startMin >= endMin {
		return nil, fmt.Errorf("%w: window start %s not before end %s",
			ErrInvalidRange, FormatClock(startMin), FormatClock(endMin))
	}

	pattern, timeOff, appts, err := s.fetchSources(ctx, AvailabilityRequest{
		ClinicID: clinicID, StaffID: staffID, StartDate: date, EndDate: date,
	})
	if err != nil {
		span.RecordError(err)
		return nil, err
	}

	result := &QuickCheckResult{Conflicts: []Conflict{}}
	if !pattern.Includes(date) {
		result.Conflicts = append(result.Conflicts, Conflict{
			Kind:         ConflictNonWorkingDay,
			StartMinutes: fullDayStartMinutes,
			EndMinutes:   fullDayEndMinutes,
			Description:  "not a working day",
		})
		return result, nil
	}

	for _, r := range timeOff {
		if !RangeBlocksWindow(r, date, startMin, endMin) {
			continue
		}
		c := Conflict{Kind: ConflictTimeRange, Description: string(r.Type)}
		if r.FullDay() {
			c.StartMinutes, c.EndMinutes = fullDayStartMinutes, fullDayEndMinutes
			c.Description = fmt.Sprintf("%s (full day)", r.Type)
		} else {
			c.StartMinutes, c.EndMinutes = *r.StartMinutes, *r.EndMinutes
		}
		result.Conflicts = append(result.Conflicts, c)
	}
	for _, a := range appts {
		if sameDay(a.Date, date) && Overlaps(startMin, endMin, a.StartMinutes, a.EndMinutes) {
			result.Conflicts = append(result.Conflicts, Conflict{
				Kind:         ConflictAppointment,
				StartMinutes: a.StartMinutes,
				EndMinutes:   a.EndMinutes,
				Description:  fmt.Sprintf("appointment %s-%s", FormatClock(a.StartMinutes), FormatClock(a.EndMinutes)),
			})
		}
	}

	result.Available = len(result.Conflicts) == 0
	return result, nil
}

func sameDay(a, b time.Time) bool {
	return truncateToDay(a).Equal(truncateToDay(b))
}
