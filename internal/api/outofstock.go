/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/lopan_factory/internal/auth"
	"github.com/friendsincode/lopan_factory/internal/models"
	"github.com/friendsincode/lopan_factory/internal/outofstock"
)

type outOfStockRequest struct {
	CustomerName string `json:"customer_name"`
	ProductName  string `json:"product_name"`
	Quantity     int    `json:"quantity"`
	Notes        string `json:"notes"`
}

func (a *API) handleOutOfStockList(w http.ResponseWriter, r *http.Request) {
	status := models.OutOfStockStatus(r.URL.Query().Get("status"))
	switch status {
	case "", models.OutOfStockPending, models.OutOfStockCompleted, models.OutOfStockReturned:
	default:
		writeError(w, http.StatusBadRequest, "invalid_status")
		return
	}

	page := queryInt(r, "page", 1)
	pageSize := queryInt(r, "page_size", 0)

	result, err := a.outOfStock.List(r.Context(), status, page, pageSize)
	if err != nil {
		a.logger.Error().Err(err).Msg("list out-of-stock failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"records":   result.Records,
		"total":     result.Total,
		"page":      result.Page,
		"page_size": result.PageSize,
	})
}

func (a *API) handleOutOfStockCreate(w http.ResponseWriter, r *http.Request) {
	var req outOfStockRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	record := models.CustomerOutOfStock{
		CustomerName: req.CustomerName,
		ProductName:  req.ProductName,
		Quantity:     req.Quantity,
		Notes:        req.Notes,
		RequesterID:  claims.UserID,
	}
	if err := a.outOfStock.Create(r.Context(), &record); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_record")
		return
	}

	writeJSON(w, http.StatusCreated, record)
}

func (a *API) handleOutOfStockComplete(w http.ResponseWriter, r *http.Request) {
	a.updateOutOfStock(w, r, models.OutOfStockCompleted)
}

func (a *API) handleOutOfStockReturn(w http.ResponseWriter, r *http.Request) {
	a.updateOutOfStock(w, r, models.OutOfStockReturned)
}

func (a *API) updateOutOfStock(w http.ResponseWriter, r *http.Request, status models.OutOfStockStatus) {
	recordID := chi.URLParam(r, "recordID")
	if recordID == "" {
		writeError(w, http.StatusBadRequest, "record_id_required")
		return
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}

	err := a.outOfStock.UpdateStatus(r.Context(), recordID, status, claims.UserID)
	if errors.Is(err, outofstock.ErrRecordNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return
	}
	if err != nil {
		a.logger.Error().Err(err).Str("record_id", recordID).Msg("out-of-stock update failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"status": string(status)})
}

func queryInt(r *http.Request, key string, fallback int) int {
	raw := r.URL.Query().Get(key)
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}
	return parsed
}
