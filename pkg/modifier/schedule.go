// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package modifier

import "fmt"

// EndComparator governs the legal relationship between a schedule's
// start and end epochs.
type EndComparator int

const (
	// CompareNone pins end_epoch to its constructed value; it may not
	// be moved by later mutation.
	CompareNone EndComparator = -2

	// CompareLessEqual allows end_epoch to be -1 (never ends), equal
	// to, or greater than start_epoch.
	CompareLessEqual EndComparator = -1

	// CompareEqualOrGreater allows end_epoch equal to or greater than
	// start_epoch.
	CompareEqualOrGreater EndComparator = 0

	// CompareStrictlyGreater requires end_epoch strictly greater than
	// start_epoch.
	CompareStrictlyGreater EndComparator = 1
)

// String returns the comparator name for logs and error messages.
func (c EndComparator) String() string {
	switch c {
	case CompareNone:
		return "NONE"
	case CompareLessEqual:
		return "LESS_EQUAL"
	case CompareEqualOrGreater:
		return "EQUAL_OR_GREATER"
	case CompareStrictlyGreater:
		return "STRICTLY_GREATER"
	default:
		return "UNKNOWN"
	}
}

// Schedule is the start/end epoch window governing when a scheduled
// modifier is active. A value of -1 for StartEpoch means "start
// immediately"; -1 for EndEpoch means "never ends" where the comparator
// allows it.
//
// A Schedule is validated at construction and must be revalidated via
// Validate after any mutation through SetStartEpoch/SetEndEpoch.
type Schedule struct {
	startEpoch float64
	endEpoch   float64
	minStart   float64
	minEnd     float64
	comparator EndComparator

	// initialEnd records the constructed end epoch for CompareNone.
	initialEnd float64
}

// NewSchedule builds and validates a schedule window.
//
// minStart and minEnd are floor bounds for the respective epochs;
// comparator constrains end relative to start as documented on the
// EndComparator constants.
func NewSchedule(startEpoch, minStart, endEpoch, minEnd float64, comparator EndComparator) (Schedule, error) {
	s := Schedule{
		startEpoch: startEpoch,
		endEpoch:   endEpoch,
		minStart:   minStart,
		minEnd:     minEnd,
		comparator: comparator,
		initialEnd: endEpoch,
	}
	if err := s.Validate(); err != nil {
		return Schedule{}, err
	}
	return s, nil
}

// WindowSchedule is shorthand for the common equal-or-greater window
// with -1 floors.
func WindowSchedule(startEpoch, endEpoch float64) (Schedule, error) {
	return NewSchedule(startEpoch, -1.0, endEpoch, -1.0, CompareEqualOrGreater)
}

// StartEpoch returns the epoch the window opens at (-1 = immediately).
func (s Schedule) StartEpoch() float64 { return s.startEpoch }

// EndEpoch returns the epoch the window closes at (-1 = never, where
// the comparator allows it).
func (s Schedule) EndEpoch() float64 { return s.endEpoch }

// EndComparator returns the configured start/end relationship rule.
func (s Schedule) EndComparator() EndComparator { return s.comparator }

// SetStartEpoch mutates the window start and revalidates.
func (s *Schedule) SetStartEpoch(epoch float64) error {
	prev := s.startEpoch
	s.startEpoch = epoch
	if err := s.Validate(); err != nil {
		s.startEpoch = prev
		return err
	}
	return nil
}

// SetEndEpoch mutates the window end and revalidates.
func (s *Schedule) SetEndEpoch(epoch float64) error {
	prev := s.endEpoch
	s.endEpoch = epoch
	if err := s.Validate(); err != nil {
		s.endEpoch = prev
		return err
	}
	return nil
}

// Validate checks the start/end relationship against the configured
// comparator and floor bounds. Returns a ScheduleValidationError on the
// first violation found.
func (s Schedule) Validate() error {
	if s.startEpoch < s.minStart {
		return &ScheduleValidationError{
			Field:  "start_epoch",
			Reason: fmt.Sprintf("value %v must be >= min_start %v", s.startEpoch, s.minStart),
		}
	}

	if s.endEpoch < s.minEnd {
		return &ScheduleValidationError{
			Field:  "end_epoch",
			Reason: fmt.Sprintf("value %v must be >= min_end %v", s.endEpoch, s.minEnd),
		}
	}

	switch s.comparator {
	case CompareNone:
		if s.endEpoch != s.initialEnd {
			return &ScheduleValidationError{
				Field:  "end_epoch",
				Reason: fmt.Sprintf("value %v is fixed at %v for comparator NONE", s.endEpoch, s.initialEnd),
			}
		}
	case CompareLessEqual:
		if s.endEpoch != -1.0 && s.endEpoch < s.startEpoch {
			return &ScheduleValidationError{
				Field:  "end_epoch",
				Reason: fmt.Sprintf("value %v must be -1, equal to, or greater than start_epoch %v", s.endEpoch, s.startEpoch),
			}
		}
	case CompareEqualOrGreater:
		if s.endEpoch < s.startEpoch {
			return &ScheduleValidationError{
				Field:  "end_epoch",
				Reason: fmt.Sprintf("value %v must be equal to or greater than start_epoch %v", s.endEpoch, s.startEpoch),
			}
		}
	case CompareStrictlyGreater:
		if s.endEpoch <= s.startEpoch {
			return &ScheduleValidationError{
				Field:  "end_epoch",
				Reason: fmt.Sprintf("value %v must be greater than start_epoch %v", s.endEpoch, s.startEpoch),
			}
		}
	default:
		return &ScheduleValidationError{
			Field:  "end_comparator",
			Reason: fmt.Sprintf("unknown comparator %d", int(s.comparator)),
		}
	}

	return nil
}
