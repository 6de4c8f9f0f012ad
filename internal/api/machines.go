/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/lopan_factory/internal/cache"
	"github.com/friendsincode/lopan_factory/internal/cutoff"
	"github.com/friendsincode/lopan_factory/internal/models"
)

func (a *API) handleMachinesList(w http.ResponseWriter, r *http.Request) {
	if a.cache != nil {
		if cached, ok := a.cache.GetMachineList(r.Context()); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	var machines []models.Machine
	if err := a.db.WithContext(r.Context()).Order("number ASC").Find(&machines).Error; err != nil {
		a.logger.Error().Err(err).Msg("list machines failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	result := make([]cache.CachedMachine, 0, len(machines))
	for _, m := range machines {
		result = append(result, cache.CachedMachine{
			ID:           m.ID,
			Number:       m.Number,
			Status:       string(m.Status),
			StationCount: m.StationCount,
		})
	}

	if a.cache != nil {
		if err := a.cache.SetMachineList(r.Context(), result); err != nil {
			a.logger.Debug().Err(err).Msg("failed to cache machine list")
		}
	}

	writeJSON(w, http.StatusOK, result)
}

// handleMachineAvailability reports whether the machine is free for a date
// and shift, ignoring the batch named by exclude_batch so a batch being
// edited never conflicts with itself.
func (a *API) handleMachineAvailability(w http.ResponseWriter, r *http.Request) {
	machineID := chi.URLParam(r, "machineID")
	if machineID == "" {
		writeError(w, http.StatusBadRequest, "machine_id_required")
		return
	}

	targetDate, ok := a.parseTargetDate(r)
	if !ok {
		writeError(w, http.StatusBadRequest, "invalid_date")
		return
	}

	shift := cutoff.Shift(r.URL.Query().Get("shift"))
	if !shift.Valid() {
		writeError(w, http.StatusBadRequest, "invalid_shift")
		return
	}

	excludeBatchID := r.URL.Query().Get("exclude_batch")

	available, err := a.validator.ValidateMachineAvailability(r.Context(), machineID, targetDate, shift, excludeBatchID)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"machine_id": machineID,
		"available":  available,
	})
}

func (a *API) handleColorsList(w http.ResponseWriter, r *http.Request) {
	if a.cache != nil {
		if cached, ok := a.cache.GetColorList(r.Context()); ok {
			writeJSON(w, http.StatusOK, cached)
			return
		}
	}

	var colors []models.ColorCard
	if err := a.db.WithContext(r.Context()).Order("name ASC").Find(&colors).Error; err != nil {
		a.logger.Error().Err(err).Msg("list colors failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	result := make([]cache.CachedColor, 0, len(colors))
	for _, c := range colors {
		result = append(result, cache.CachedColor{ID: c.ID, Name: c.Name, HexCode: c.HexCode})
	}

	if a.cache != nil {
		if err := a.cache.SetColorList(r.Context(), result); err != nil {
			a.logger.Debug().Err(err).Msg("failed to cache color list")
		}
	}

	writeJSON(w, http.StatusOK, result)
}
