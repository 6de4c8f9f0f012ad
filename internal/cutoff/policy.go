/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package cutoff implements the date/shift cutoff policy: given a target
// production date and the current time, which shifts may still be chosen.
package cutoff

import (
	"time"

	"github.com/friendsincode/lopan_factory/internal/clock"
)

// Shift is a named production time window.
type Shift string

const (
	ShiftMorning Shift = "morning"
	ShiftEvening Shift = "evening"
)

// DefaultCutoffHour is the hour-of-day after which same-day morning-shift
// selection is no longer allowed.
const DefaultCutoffHour = 12

// DisplayName returns the user-facing (Chinese) shift label.
func (s Shift) DisplayName() string {
	switch s {
	case ShiftMorning:
		return "早班"
	case ShiftEvening:
		return "晚班"
	default:
		return string(s)
	}
}

// Valid reports whether s is a known shift.
func (s Shift) Valid() bool {
	return s == ShiftMorning || s == ShiftEvening
}

// Window returns the start and end hour of the shift's working window.
// The evening window wraps past midnight.
func (s Shift) Window() (startHour, endHour int) {
	switch s {
	case ShiftMorning:
		return 7, 19
	default:
		return 19, 7
	}
}

// AllShifts lists every shift in display order.
func AllShifts() []Shift {
	return []Shift{ShiftMorning, ShiftEvening}
}

// Info describes the cutoff state at a point in time.
type Info struct {
	CutoffHour       int  `json:"cutoff_hour"`
	IsAfterCutoff    bool `json:"is_after_cutoff"`
	RemainingMinutes *int `json:"remaining_minutes,omitempty"`
}

// Policy decides shift availability around the configured cutoff hour.
// It is a pure function of its inputs plus the injected clock; it never
// reads the system clock directly.
type Policy struct {
	cutoffHour int
	clock      clock.Provider
}

// NewPolicy creates a cutoff policy. Hours outside 0-23 fall back to the
// default.
func NewPolicy(cutoffHour int, clk clock.Provider) *Policy {
	if cutoffHour < 0 || cutoffHour > 23 {
		cutoffHour = DefaultCutoffHour
	}
	return &Policy{cutoffHour: cutoffHour, clock: clk}
}

// CutoffHour returns the configured cutoff hour.
func (p *Policy) CutoffHour() int { return p.cutoffHour }

// AllowedShifts returns the set of shifts selectable for targetDate at the
// given time. Before the cutoff hour both shifts are allowed; at or after
// it only the evening shift remains. The boundary is exclusive of morning:
// exactly cutoffHour:00:00 already excludes it.
func (p *Policy) AllowedShifts(targetDate, now time.Time) map[Shift]bool {
	if now.Hour() < p.cutoffHour {
		return map[Shift]bool{ShiftMorning: true, ShiftEvening: true}
	}
	return map[Shift]bool{ShiftEvening: true}
}

// AllowedShiftsNow is AllowedShifts evaluated at the injected clock's now.
func (p *Policy) AllowedShiftsNow(targetDate time.Time) map[Shift]bool {
	return p.AllowedShifts(targetDate, p.clock.Now())
}

// GetCutoffInfo reports the cutoff state for targetDate at the given time.
// RemainingMinutes is set only while strictly before the cutoff, and is
// symmetric with AllowedShifts: the instant the hour turns cutoffHour it
// becomes nil and IsAfterCutoff flips.
func (p *Policy) GetCutoffInfo(targetDate, now time.Time) Info {
	info := Info{CutoffHour: p.cutoffHour}
	if now.Hour() >= p.cutoffHour {
		info.IsAfterCutoff = true
		return info
	}

	cutoffAt := time.Date(now.Year(), now.Month(), now.Day(), p.cutoffHour, 0, 0, 0, now.Location())
	remaining := int(cutoffAt.Sub(now).Minutes())
	if remaining < 0 {
		remaining = 0
	}
	info.RemainingMinutes = &remaining
	return info
}

// SameContext reports whether two instants fall into the same allowed-shift
// context (both before the cutoff, or both at/after it).
func (p *Policy) SameContext(a, b time.Time) bool {
	return (a.Hour() < p.cutoffHour) == (b.Hour() < p.cutoffHour)
}
