/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import "net/http"

// handleAuditList returns the newest audit entries.
func (a *API) handleAuditList(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", 100)

	entries, err := a.auditSvc.RecentEntries(r.Context(), limit)
	if err != nil {
		a.logger.Error().Err(err).Msg("list audit entries failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
