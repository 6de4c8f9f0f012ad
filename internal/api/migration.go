/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/friendsincode/lopan_factory/internal/auth"
)

// handleMigrationStatus reports how many legacy batches still lack shift
// metadata.
func (a *API) handleMigrationStatus(w http.ResponseWriter, r *http.Request) {
	pending, err := a.migration.PendingCount(r.Context())
	if err != nil {
		a.logger.Error().Err(err).Msg("migration status failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"pending": pending})
}

// handleMigrationRun backfills shift metadata onto every legacy batch.
func (a *API) handleMigrationRun(w http.ResponseWriter, r *http.Request) {
	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	summary, err := a.migration.MigrateAll(r.Context(), claims.UserID)
	if err != nil {
		a.logger.Error().Err(err).Msg("migration run failed")
		writeError(w, http.StatusInternalServerError, "migration_failed")
		return
	}

	writeJSON(w, http.StatusOK, summary)
}
