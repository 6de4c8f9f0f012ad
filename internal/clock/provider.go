/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package clock abstracts wall-clock access so time-dependent rules stay
// deterministic under test.
package clock

import "time"

// Provider supplies the current time and date formatting.
type Provider interface {
	Now() time.Time
	FormatDate(t time.Time) string
}

// DateLayout is the user-facing date format used across the factory app.
const DateLayout = "2006-01-02"

// System reads the real wall clock in the configured location.
type System struct {
	Location *time.Location
}

// NewSystem creates a system clock. A nil location falls back to time.Local.
func NewSystem(loc *time.Location) *System {
	if loc == nil {
		loc = time.Local
	}
	return &System{Location: loc}
}

func (s *System) Now() time.Time {
	return time.Now().In(s.Location)
}

func (s *System) FormatDate(t time.Time) string {
	return t.In(s.Location).Format(DateLayout)
}

// Fixed always reports the same instant. Test helper.
type Fixed struct {
	Instant time.Time
}

func (f Fixed) Now() time.Time { return f.Instant }

func (f Fixed) FormatDate(t time.Time) string { return t.Format(DateLayout) }
