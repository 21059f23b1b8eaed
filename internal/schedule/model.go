package schedule

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// TimeOffType classifies a staff absence.
type TimeOffType string

const (
	TimeOffBreak    TimeOffType = "break"
	TimeOffVacation TimeOffType = "vacation"
	TimeOffSick     TimeOffType = "sick"
	TimeOffOther    TimeOffType = "other"
)

// TimeOffStatus is the lifecycle state of a time-off range. Only
// approved ranges participate in conflict detection.
type TimeOffStatus string

const (
	TimeOffPending   TimeOffStatus = "pending"
	TimeOffApproved  TimeOffStatus = "approved"
	TimeOffRejected  TimeOffStatus = "rejected"
	TimeOffCancelled TimeOffStatus = "cancelled"
)

// Full-day blocks report these implicit bounds in conflict entries.
const (
	fullDayStartMinutes = 0
	fullDayEndMinutes   = 23*60 + 59
)

// Slot durations accepted by availability queries, in minutes.
const (
	MinSlotDuration = 5
	MaxSlotDuration = 480
)

// TimeOffRange is a staff absence: a break, vacation, sick leave or
// other block, optionally recurring weekly until RecurringEndDate.
// Nil StartMinutes/EndMinutes means the whole day is blocked.
type TimeOffRange struct {
	ID           uuid.UUID
	ClinicID     uuid.UUID
	StaffID      uuid.UUID
	Type         TimeOffType
	Status       TimeOffStatus
	StartDate    time.Time
	EndDate      time.Time
	StartMinutes *int
	EndMinutes   *int

	IsRecurring      bool
	RecurringDays    []int // ISO weekdays, 1=Monday..7=Sunday
	RecurringEndDate time.Time
}

// Validate enforces the structural invariants of a range.
func (r TimeOffRange) Validate() error {
	if r.EndDate.Before(r.StartDate) {
		return fmt.Errorf("%w: end date %s before start date %s", ErrInvalidRange,
			r.EndDate.Format("2006-01-02"), r.StartDate.Format("2006-01-02"))
	}
	if (r.StartMinutes == nil) != (r.EndMinutes == nil) {
		return fmt.Errorf("%w: start and end times must be set together", ErrInvalidRange)
	}
	if r.StartMinutes != nil && *r.StartMinutes >= *r.EndMinutes {
		return fmt.Errorf("%w: start time %s not before end time %s", ErrInvalidRange,
			FormatClock(*r.StartMinutes), FormatClock(*r.EndMinutes))
	}
	if r.IsRecurring {
		if len(r.RecurringDays) == 0 {
			return fmt.Errorf("%w: recurring range requires recurring days", ErrInvalidRange)
		}
		if r.RecurringEndDate.IsZero() {
			return fmt.Errorf("%w: recurring range requires a recurring end date", ErrInvalidRange)
		}
		if r.RecurringEndDate.Before(r.EndDate) {
			return fmt.Errorf("%w: recurring end date before range end date", ErrInvalidRange)
		}
		for _, d := range r.RecurringDays {
			if d < 1 || d > 7 {
				return fmt.Errorf("%w: weekday %d out of range 1..7", ErrInvalidRange, d)
			}
		}
	}
	return nil
}

// FullDay reports whether the range blocks entire days.
func (r TimeOffRange) FullDay() bool {
	return r.StartMinutes == nil
}

// AppointmentSlot is the minimal appointment projection the engine
// reads: who, when, and for which clinic. Owned by the appointments
// subsystem; never written from here.
type AppointmentSlot struct {
	ID           uuid.UUID
	ClinicID     uuid.UUID
	StaffID      uuid.UUID
	Date         time.Time
	StartMinutes int
	EndMinutes   int
}

// TimeSlot is a candidate appointment window. Computed, never stored.
type TimeSlot struct {
	StartMinutes int
	EndMinutes   int
}

// Duration returns the slot length in minutes.
func (s TimeSlot) Duration() int {
	return s.EndMinutes - s.StartMinutes
}

// MarshalJSON renders clock strings so API consumers never see raw
// minute offsets.
func (s TimeSlot) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Start    string `json:"start"`
		End      string `json:"end"`
		Duration int    `json:"duration_minutes"`
	}{FormatClock(s.StartMinutes), FormatClock(s.EndMinutes), s.Duration()})
}

// UnmarshalJSON restores a slot from its wire form.
func (s *TimeSlot) UnmarshalJSON(data []byte) error {
	var wire struct {
		Start string `json:"start"`
		End   string `json:"end"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	start, err := ParseClock(wire.Start)
	if err != nil {
		return err
	}
	end, err := ParseClock(wire.End)
	if err != nil {
		return err
	}
	s.StartMinutes, s.EndMinutes = start, end
	return nil
}

// ConflictKind tags what excluded an interval.
type ConflictKind string

const (
	ConflictAppointment   ConflictKind = "appointment"
	ConflictTimeRange     ConflictKind = "time_range"
	ConflictNonWorkingDay ConflictKind = "non_working_day"
)

// Conflict describes one interval that blocks booking, for reporting.
type Conflict struct {
	Kind         ConflictKind
	StartMinutes int
	EndMinutes   int
	Description  string
}

// MarshalJSON renders clock bounds alongside the tag.
func (c Conflict) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind        string `json:"type"`
		Start       string `json:"start"`
		End         string `json:"end"`
		Description string `json:"description,omitempty"`
	}{string(c.Kind), FormatClock(c.StartMinutes), FormatClock(c.EndMinutes), c.Description})
}

// UnmarshalJSON restores a conflict from its wire form.
func (c *Conflict) UnmarshalJSON(data []byte) error {
	var wire struct {
		Kind        string `json:"type"`
		Start       string `json:"start"`
		End         string `json:"end"`
		Description string `json:"description"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	start, err := ParseClock(wire.Start)
	if err != nil {
		return err
	}
	end, err := ParseClock(wire.End)
	if err != nil {
		return err
	}
	c.Kind = ConflictKind(wire.Kind)
	c.StartMinutes, c.EndMinutes = start, end
	c.Description = wire.Description
	return nil
}

// WorkingHours is the window slots are generated within.
type WorkingHours struct {
	StartMinutes int
	EndMinutes   int
}

// DayAvailability is the per-date result of an availability query.
type DayAvailability struct {
	Date         time.Time
	IsWorkingDay bool
	WorkingHours WorkingHours
	Slots        []TimeSlot
	Conflicts    []Conflict
}

// MarshalJSON renders the date and hour bounds in wire form.
func (d DayAvailability) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Date         string     `json:"date"`
		IsWorkingDay bool       `json:"is_working_day"`
		HoursStart   string     `json:"working_hours_start"`
		HoursEnd     string     `json:"working_hours_end"`
		Slots        []TimeSlot `json:"available_slots"`
		Conflicts    []Conflict `json:"conflicts"`
	}{
		Date:         d.Date.Format("2006-01-02"),
		IsWorkingDay: d.IsWorkingDay,
		HoursStart:   FormatClock(d.WorkingHours.StartMinutes),
		HoursEnd:     FormatClock(d.WorkingHours.EndMinutes),
		Slots:        d.Slots,
		Conflicts:    d.Conflicts,
	})
}

// UnmarshalJSON restores a day from its wire form.
func (d *DayAvailability) UnmarshalJSON(data []byte) error {
	var wire struct {
		Date         string     `json:"date"`
		IsWorkingDay bool       `json:"is_working_day"`
		HoursStart   string     `json:"working_hours_start"`
		HoursEnd     string     `json:"working_hours_end"`
		Slots        []TimeSlot `json:"available_slots"`
		Conflicts    []Conflict `json:"conflicts"`
	}
	if err := json.Unmarshal(data, &wire); err != nil {
		return err
	}
	date, err := time.Parse("2006-01-02", wire.Date)
	if err != nil {
		return err
	}
	hoursStart, err := ParseClock(wire.HoursStart)
	if err != nil {
		return err
	}
	hoursEnd, err := ParseClock(wire.HoursEnd)
	if err != nil {
		return err
	}
	d.Date = date
	d.IsWorkingDay = wire.IsWorkingDay
	d.WorkingHours = WorkingHours{StartMinutes: hoursStart, EndMinutes: hoursEnd}
	d.Slots = wire.Slots
	d.Conflicts = wire.Conflicts
	return nil
}

// WorkingPattern is the set of ISO weekdays (1=Monday..7=Sunday) a
// staff member nominally works.
type WorkingPattern map[int]bool

// NewWorkingPattern builds a pattern from a weekday list, ignoring
// out-of-range values.
func NewWorkingPattern(days []int) WorkingPattern {
	p := make(WorkingPattern, len(days))
	for _, d := range days {
		if d >= 1 && d <= 7 {
			p[d] = true
		}
	}
	return p
}

// Includes reports whether the date's weekday is part of the pattern.
func (p WorkingPattern) Includes(date time.Time) bool {
	return p[ISOWeekday(date)]
}

// ISOWeekday maps time.Weekday to ISO numbering: Monday=1..Sunday=7.
func ISOWeekday(date time.Time) int {
	wd := int(date.Weekday())
	if wd == 0 {
		return 7
	}
	return wd
}
