/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"net/http"

	"github.com/friendsincode/lopan_factory/internal/logbuffer"
)

// handleLogsList returns recent process logs from the in-memory buffer,
// newest first. Supports ?level=, ?component=, ?q= and ?limit= filters.
func (a *API) handleLogsList(w http.ResponseWriter, r *http.Request) {
	if a.logs == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"entries": []logbuffer.LogEntry{},
		})
		return
	}

	query := r.URL.Query()
	entries := a.logs.Query(logbuffer.QueryParams{
		Level:      query.Get("level"),
		Component:  query.Get("component"),
		Search:     query.Get("q"),
		Limit:      queryInt(r, "limit", 200),
		Descending: true,
	})

	writeJSON(w, http.StatusOK, map[string]any{
		"entries": entries,
		"stats":   a.logs.Stats(),
	})
}
