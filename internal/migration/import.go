/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package migration

// ImportOptions controls how external data is imported.
type ImportOptions struct {
	// DryRun walks the source and reports stats without writing anything.
	DryRun bool
	// SkipExisting leaves rows alone when a matching record already exists.
	SkipExisting bool
}

// ImportStats counts what an import touched.
type ImportStats struct {
	Machines   int      `json:"machines"`
	Colors     int      `json:"colors"`
	Batches    int      `json:"batches"`
	Products   int      `json:"products"`
	OutOfStock int      `json:"out_of_stock"`
	Users      int      `json:"users"`
	Skipped    int      `json:"skipped"`
	Errors     []string `json:"errors,omitempty"`
}

// ProgressCallback reports import progress to the caller.
type ProgressCallback func(step, total int, message string)
