/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/friendsincode/lopan_factory/internal/auth"
	"github.com/friendsincode/lopan_factory/internal/clock"
	"github.com/friendsincode/lopan_factory/internal/cutoff"
	"github.com/friendsincode/lopan_factory/internal/events"
	"github.com/friendsincode/lopan_factory/internal/models"
	"github.com/friendsincode/lopan_factory/internal/permission"
	"github.com/friendsincode/lopan_factory/internal/repository"
	"github.com/friendsincode/lopan_factory/internal/scheduling"
)

type productRequest struct {
	ID               string `json:"id"`
	ProductName      string `json:"product_name"`
	PrimaryColorID   string `json:"primary_color_id"`
	OccupiedStations []int  `json:"occupied_stations"`
}

type batchRequest struct {
	BatchNumber string           `json:"batch_number"`
	MachineID   string           `json:"machine_id"`
	TargetDate  string           `json:"target_date"`
	Shift       string           `json:"shift"`
	Products    []productRequest `json:"products"`
}

// applySchedule parses the request's target date and shift onto the batch.
// Both must be present together or absent together.
func (a *API) applySchedule(batch *models.ProductionBatch, req batchRequest) error {
	if req.TargetDate == "" && req.Shift == "" {
		batch.TargetDate = nil
		batch.Shift = nil
		return nil
	}
	if req.TargetDate == "" || req.Shift == "" {
		return errors.New("target_date and shift must be set together")
	}

	targetDate, err := time.ParseInLocation(clock.DateLayout, req.TargetDate, a.clock.Now().Location())
	if err != nil {
		return errors.New("invalid target_date")
	}
	shift := cutoff.Shift(req.Shift)
	if !shift.Valid() {
		return errors.New("invalid shift")
	}

	batch.TargetDate = &targetDate
	batch.Shift = &shift
	return nil
}

// failedResults keeps only the failing validation results.
func failedResults(results []models.ValidationResult) []models.ValidationResult {
	var failed []models.ValidationResult
	for _, result := range results {
		if !result.IsValid {
			failed = append(failed, result)
		}
	}
	return failed
}

func (a *API) requestProducts(reqs []productRequest) []models.ProductConfig {
	products := make([]models.ProductConfig, 0, len(reqs))
	for _, p := range reqs {
		products = append(products, models.ProductConfig{
			ID:               p.ID,
			ProductName:      p.ProductName,
			PrimaryColorID:   p.PrimaryColorID,
			OccupiedStations: models.StationList(p.OccupiedStations),
		})
	}
	return products
}

func (a *API) handleBatchesList(w http.ResponseWriter, r *http.Request) {
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

	batches, err := a.repo.FetchBatches(r.Context(), targetDate, shift)
	if err != nil {
		a.logger.Error().Err(err).Msg("list batches failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"date":    targetDate.Format(clock.DateLayout),
		"shift":   shift,
		"batches": batches,
	})
}

func (a *API) handleBatchCreate(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	if req.BatchNumber == "" || req.MachineID == "" {
		writeError(w, http.StatusBadRequest, "missing_required_fields")
		return
	}

	batch := models.ProductionBatch{
		BatchNumber: req.BatchNumber,
		MachineID:   req.MachineID,
		Status:      models.BatchUnsubmitted,
		SubmittedAt: a.clock.Now(), // captures the cutoff context the batch was configured in
		Products:    a.requestProducts(req.Products),
	}
	if err := a.applySchedule(&batch, req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if issues := failedResults(a.validator.ValidateBatch(&batch)); len(issues) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation_failed",
			"issues": issues,
		})
		return
	}

	if err := a.repo.CreateBatch(r.Context(), &batch); err != nil {
		a.logger.Error().Err(err).Msg("create batch failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	payload := a.actorPayload(r)
	payload["entity_type"] = "batch"
	payload["entity_id"] = batch.ID
	payload["batch_number"] = batch.BatchNumber
	a.bus.Publish(events.EventBatchCreated, payload)

	writeJSON(w, http.StatusCreated, batch)
}

func (a *API) handleBatchGet(w http.ResponseWriter, r *http.Request) {
	if a.cache != nil {
		if batchID := chi.URLParam(r, "batchID"); batchID != "" {
			if cached, found := a.cache.GetBatch(r.Context(), batchID); found {
				writeJSON(w, http.StatusOK, cached)
				return
			}
		}
	}

	batch, ok := a.loadBatch(w, r)
	if !ok {
		return
	}

	if a.cache != nil {
		if err := a.cache.SetBatch(r.Context(), batch); err != nil {
			a.logger.Debug().Err(err).Str("batch_id", batch.ID).Msg("failed to cache batch")
		}
	}
	writeJSON(w, http.StatusOK, batch)
}

func (a *API) handleBatchUpdate(w http.ResponseWriter, r *http.Request) {
	batch, ok := a.loadBatch(w, r)
	if !ok {
		return
	}

	var req batchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	if req.BatchNumber != "" {
		batch.BatchNumber = req.BatchNumber
	}
	if req.MachineID != "" {
		batch.MachineID = req.MachineID
	}
	if req.TargetDate != "" || req.Shift != "" {
		if err := a.applySchedule(batch, req); err != nil {
			writeError(w, http.StatusBadRequest, err.Error())
			return
		}
	}
	if req.Products != nil {
		batch.Products = a.requestProducts(req.Products)
	}

	if issues := failedResults(a.validator.ValidateBatch(batch)); len(issues) > 0 {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation_failed",
			"issues": issues,
		})
		return
	}

	if crossCheck := a.validator.ValidateCrossTimePoint(batch, scheduling.OperationEdit); !crossCheck.IsValid {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "cross_time_point",
			"result": crossCheck,
		})
		return
	}

	if err := a.repo.UpdateBatch(r.Context(), batch); err != nil {
		a.writeBatchError(w, err, "update batch failed")
		return
	}

	payload := a.actorPayload(r)
	payload["entity_type"] = "batch"
	payload["entity_id"] = batch.ID
	a.bus.Publish(events.EventBatchUpdated, payload)

	writeJSON(w, http.StatusOK, batch)
}

func (a *API) handleBatchDelete(w http.ResponseWriter, r *http.Request) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "batch_id_required")
		return
	}

	if err := a.repo.DeleteBatch(r.Context(), batchID); err != nil {
		a.writeBatchError(w, err, "delete batch failed")
		return
	}

	if a.cache != nil {
		if err := a.cache.InvalidateBatch(r.Context(), batchID); err != nil {
			a.logger.Debug().Err(err).Msg("failed to invalidate batch cache")
		}
	}

	payload := a.actorPayload(r)
	payload["entity_type"] = "batch"
	payload["entity_id"] = batchID
	a.bus.Publish(events.EventBatchDeleted, payload)

	w.WriteHeader(http.StatusNoContent)
}

// handleBatchSubmit validates the batch end to end and transitions it from
// unsubmitted to pending.
func (a *API) handleBatchSubmit(w http.ResponseWriter, r *http.Request) {
	batch, ok := a.loadBatch(w, r)
	if !ok {
		return
	}

	if batch.Status != models.BatchUnsubmitted {
		writeError(w, http.StatusConflict, "already_submitted")
		return
	}

	if crossCheck := a.validator.ValidateCrossTimePoint(batch, scheduling.OperationSubmit); !crossCheck.IsValid {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error":  "cross_time_point",
			"result": crossCheck,
		})
		return
	}

	report, err := a.validator.PerformComprehensiveValidation(r.Context(), batch)
	if err != nil {
		a.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("comprehensive validation failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}
	if !report.Valid() {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error":  "validation_failed",
			"report": report,
		})
		return
	}

	claims, ok := auth.ClaimsFromContext(r.Context())
	if !ok {
		writeError(w, http.StatusUnauthorized, "unauthorized")
		return
	}
	if err := a.repo.SubmitBatch(r.Context(), batch.ID, claims.UserID, claims.Name, a.clock.Now()); err != nil {
		a.writeBatchError(w, err, "submit batch failed")
		return
	}

	payload := a.actorPayload(r)
	payload["entity_type"] = "batch"
	payload["entity_id"] = batch.ID
	payload["warnings"] = len(report.Warnings)
	a.bus.Publish(events.EventBatchSubmitted, payload)

	writeJSON(w, http.StatusOK, map[string]any{
		"status":   models.BatchPending,
		"warnings": report.Warnings,
	})
}

// statusTransitions lists the lifecycle moves available once a batch has
// left the submitter's hands. Submission itself goes through handleBatchSubmit.
var statusTransitions = map[models.BatchStatus][]models.BatchStatus{
	models.BatchPending: {models.BatchActive, models.BatchRejected},
	models.BatchActive:  {models.BatchCompleted, models.BatchCancelled},
}

// handleBatchStatus moves a submitted batch through its lifecycle:
// pending to active/rejected, active to completed/cancelled.
func (a *API) handleBatchStatus(w http.ResponseWriter, r *http.Request) {
	batch, ok := a.loadBatch(w, r)
	if !ok {
		return
	}

	var req struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}
	next := models.BatchStatus(req.Status)

	allowed := false
	for _, candidate := range statusTransitions[batch.Status] {
		if candidate == next {
			allowed = true
			break
		}
	}
	if !allowed {
		writeJSON(w, http.StatusConflict, map[string]any{
			"error": "invalid_transition",
			"from":  batch.Status,
			"to":    next,
		})
		return
	}

	if err := a.repo.UpdateStatus(r.Context(), batch.ID, next); err != nil {
		a.writeBatchError(w, err, "update batch status failed")
		return
	}

	payload := a.actorPayload(r)
	payload["entity_type"] = "batch"
	payload["entity_id"] = batch.ID
	payload["status"] = string(next)
	a.bus.Publish(events.EventBatchUpdated, payload)

	writeJSON(w, http.StatusOK, map[string]any{"status": next})
}

// handleBatchValidate runs comprehensive validation without mutating the
// batch, so clients can surface issues before submission.
func (a *API) handleBatchValidate(w http.ResponseWriter, r *http.Request) {
	batch, ok := a.loadBatch(w, r)
	if !ok {
		return
	}

	report, err := a.validator.PerformComprehensiveValidation(r.Context(), batch)
	if err != nil {
		a.logger.Error().Err(err).Str("batch_id", batch.ID).Msg("comprehensive validation failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"valid":  report.Valid(),
		"report": report,
	})
}

func (a *API) handleBatchCrossTimePoint(w http.ResponseWriter, r *http.Request) {
	batch, ok := a.loadBatch(w, r)
	if !ok {
		return
	}

	op := scheduling.CrossTimePointOperation(r.URL.Query().Get("operation"))
	switch op {
	case scheduling.OperationEdit, scheduling.OperationSubmit:
	case "":
		op = scheduling.OperationEdit
	default:
		writeError(w, http.StatusBadRequest, "invalid_operation")
		return
	}

	writeJSON(w, http.StatusOK, a.validator.ValidateCrossTimePoint(batch, op))
}

func (a *API) handleBatchEditGuidance(w http.ResponseWriter, r *http.Request) {
	batch, ok := a.loadBatch(w, r)
	if !ok {
		return
	}

	guidance := a.permissions.EditGuidance(batch)
	response := map[string]any{
		"can_edit":   guidance.CanEdit,
		"color_only": guidance.ColorOnly,
		"message":    guidance.Message,
	}
	if reason := a.permissions.EditRestrictionReason(batch); reason != nil {
		response["restriction_reason"] = *reason
	}

	writeJSON(w, http.StatusOK, response)
}

// handleProductEdit applies a single product change, enforcing the
// color-only restriction on locked batches.
func (a *API) handleProductEdit(w http.ResponseWriter, r *http.Request) {
	batch, ok := a.loadBatch(w, r)
	if !ok {
		return
	}

	productID := chi.URLParam(r, "productID")
	var original *models.ProductConfig
	for i := range batch.Products {
		if batch.Products[i].ID == productID {
			original = &batch.Products[i]
			break
		}
	}
	if original == nil {
		writeError(w, http.StatusNotFound, "product_not_found")
		return
	}

	var req productRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid_json")
		return
	}

	modified := &models.ProductConfig{
		ID:               original.ID,
		BatchID:          original.BatchID,
		ProductName:      original.ProductName,
		PrimaryColorID:   original.PrimaryColorID,
		OccupiedStations: original.OccupiedStations,
	}
	if req.ProductName != "" {
		modified.ProductName = req.ProductName
	}
	if req.PrimaryColorID != "" {
		modified.PrimaryColorID = req.PrimaryColorID
	}
	if req.OccupiedStations != nil {
		modified.OccupiedStations = models.StationList(req.OccupiedStations)
	}

	claims, _ := auth.ClaimsFromContext(r.Context())
	result := a.permissions.ValidateEdit(claims, original, modified, batch)
	if !result.Allowed() {
		payload := a.actorPayload(r)
		payload["entity_type"] = "product"
		payload["entity_id"] = productID
		payload["decision"] = string(result.Decision)
		a.bus.Publish(events.EventProductEditBlocked, payload)

		status := http.StatusForbidden
		if result.Decision == permission.DecisionColorOnlyAllowed {
			status = http.StatusConflict
		}
		writeJSON(w, status, map[string]any{
			"error":    "edit_not_allowed",
			"decision": result.Decision,
			"reason":   result.Reason,
		})
		return
	}

	if err := a.repo.UpdateProductConfig(r.Context(), modified); err != nil {
		a.logger.Error().Err(err).Str("product_id", productID).Msg("product update failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return
	}

	payload := a.actorPayload(r)
	payload["entity_type"] = "product"
	payload["entity_id"] = productID
	payload["batch_id"] = batch.ID
	a.bus.Publish(events.EventProductEdited, payload)

	writeJSON(w, http.StatusOK, modified)
}

func (a *API) loadBatch(w http.ResponseWriter, r *http.Request) (*models.ProductionBatch, bool) {
	batchID := chi.URLParam(r, "batchID")
	if batchID == "" {
		writeError(w, http.StatusBadRequest, "batch_id_required")
		return nil, false
	}

	batch, err := a.repo.FetchBatchByID(r.Context(), batchID)
	if errors.Is(err, repository.ErrBatchNotFound) {
		writeError(w, http.StatusNotFound, "not_found")
		return nil, false
	}
	if err != nil {
		a.logger.Error().Err(err).Str("batch_id", batchID).Msg("load batch failed")
		writeError(w, http.StatusInternalServerError, "db_error")
		return nil, false
	}
	return batch, true
}

func (a *API) writeBatchError(w http.ResponseWriter, err error, logMsg string) {
	switch {
	case errors.Is(err, repository.ErrBatchNotFound):
		writeError(w, http.StatusNotFound, "not_found")
	case errors.Is(err, repository.ErrBatchSubmitted):
		writeError(w, http.StatusConflict, "batch_submitted")
	default:
		a.logger.Error().Err(err).Msg(logMsg)
		writeError(w, http.StatusInternalServerError, "db_error")
	}
}
