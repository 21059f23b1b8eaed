package schedule

import "errors"

var (
	// ErrInvalidTimeFormat reports a clock string that is not HH:MM.
	ErrInvalidTimeFormat = errors.New("schedule: invalid time format, expected HH:MM")

	// ErrInvalidRange reports a malformed date range, slot duration, or
	// a recurring time-off range missing its recurrence fields.
	ErrInvalidRange = errors.New("schedule: invalid range")

	// ErrSourceUnavailable reports that one of the schedule sources
	// could not answer. The engine never substitutes partial data.
	ErrSourceUnavailable = errors.New("schedule: source unavailable")
)
