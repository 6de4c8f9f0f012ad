/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package models

import "github.com/friendsincode/lopan_factory/internal/cutoff"

// RuleSeverity defines how serious a validation finding is.
type RuleSeverity string

const (
	RuleSeverityError   RuleSeverity = "error"   // Blocks the operation
	RuleSeverityWarning RuleSeverity = "warning" // Should be reviewed
	RuleSeverityInfo    RuleSeverity = "info"    // Informational only
)

// ValidationResult is a single check outcome with a user-facing message.
// Messages are Chinese strings suitable for direct display; no opaque codes.
type ValidationResult struct {
	IsValid  bool         `json:"is_valid"`
	Message  string       `json:"message"`
	Severity RuleSeverity `json:"severity"`
}

// RecommendedAction tells the caller what to do about a cross-time-point
// finding.
type RecommendedAction string

const (
	ActionAllow           RecommendedAction = "allow"
	ActionAdjustShift     RecommendedAction = "adjust_shift"
	ActionCompleteDetails RecommendedAction = "complete_details"
)

// CrossTimePointDetails describes which shifts are currently selectable.
type CrossTimePointDetails struct {
	AvailableShifts []cutoff.Shift `json:"available_shifts"`
	CutoffHour      int            `json:"cutoff_hour"`
}

// CrossTimePointResult is the outcome of checking an edit or submit against
// the cutoff context the batch was originally created in.
type CrossTimePointResult struct {
	IsValid           bool                   `json:"is_valid"`
	Reason            string                 `json:"reason,omitempty"`
	RecommendedAction RecommendedAction      `json:"recommended_action"`
	Details           *CrossTimePointDetails `json:"details,omitempty"`
}
