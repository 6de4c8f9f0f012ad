/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"
	"time"

	"github.com/friendsincode/lopan_factory/internal/clock"
	"github.com/friendsincode/lopan_factory/internal/cutoff"
)

type shiftOption struct {
	Shift       cutoff.Shift `json:"shift"`
	DisplayName string       `json:"display_name"`
	Allowed     bool         `json:"allowed"`
}

// parseTargetDate reads a ?date=YYYY-MM-DD query parameter, defaulting to
// today in the injected clock's frame.
func (a *API) parseTargetDate(r *http.Request) (time.Time, bool) {
	raw := r.URL.Query().Get("date")
	if raw == "" {
		now := a.clock.Now()
		return time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()), true
	}
	parsed, err := time.ParseInLocation(clock.DateLayout, raw, a.clock.Now().Location())
	if err != nil {
		return time.Time{}, false
	}
	return parsed, true
}

// handleAllowedShifts reports which shifts may still be chosen for a target
// date at the current moment.
func (a *API) handleAllowedShifts(w http.ResponseWriter, r *http.Request) {
	targetDate, ok := a.parseTargetDate(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	allowed := a.policy.AllowedShiftsNow(targetDate)
	options := make([]shiftOption, 0, 2)
	for _, shift := range cutoff.AllShifts() {
		options = append(options, shiftOption{
			Shift:       shift,
			DisplayName: shift.DisplayName(),
			Allowed:     allowed[shift],
		})
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":   targetDate.Format(clock.DateLayout),
		"shifts": options,
	})
}

// handleCutoffInfo reports cutoff hour, whether it has passed and how many
// minutes remain before it.
func (a *API) handleCutoffInfo(w http.ResponseWriter, r *http.Request) {
	targetDate, ok := a.parseTargetDate(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	info := a.policy.GetCutoffInfo(targetDate, a.clock.Now())
	writeJSON(w, http.StatusOK, map[string]any{
		"date":   targetDate.Format(clock.DateLayout),
		"cutoff": info,
	})
}
