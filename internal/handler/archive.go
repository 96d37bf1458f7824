package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/orderdesk/api/internal/enum"
	"github.com/orderdesk/api/internal/logger"
	"github.com/orderdesk/api/internal/pricing"
	"github.com/orderdesk/api/internal/service"
)

// ArchiveServicer defines the service methods needed by archive handlers.
// Satisfied by *service.ArchiveService; narrow interface for testability.
type ArchiveServicer interface {
	Finalize(ctx context.Context, req service.FinalizeRequest) (service.ArchiveBatch, error)
	ListBatches(ctx context.Context) ([]service.ArchiveBatch, error)
	DeleteBatch(ctx context.Context, id int64) error
}

// ArchiveHandler handles finalize and archive endpoints.
type ArchiveHandler struct {
	svc ArchiveServicer
	pub Publisher
	log *logger.Logger
}

// NewArchiveHandler creates a new ArchiveHandler.
func NewArchiveHandler(svc ArchiveServicer, pub Publisher, log *logger.Logger) *ArchiveHandler {
	return &ArchiveHandler{svc: svc, pub: pub, log: log}
}

// RegisterRoutes registers archive endpoints on the given Chi router.
func (h *ArchiveHandler) RegisterRoutes(r chi.Router) {
	r.Post("/finalize", h.Finalize)
	r.Get("/archive", h.List)
	r.Delete("/archive/{batchId}", h.Delete)
}

// --- Request / Response types ---

type finalizeRequest struct {
	OrderCode flexString   `json:"orderCode"`
	Orders    []orderInput `json:"orders"`
	Totals    *totalsInput `json:"totals"`
}

type totalsInput struct {
	TotalUsd    flexString `json:"totalUsd"`
	TotalQty    flexString `json:"totalQty"`
	TotalProfit flexString `json:"totalProfit"`
}

func (t *totalsInput) totals() *pricing.Totals {
	if t == nil {
		return nil
	}
	// Negative client sums are clamped like any other amount.
	return &pricing.Totals{
		USD:      pricing.ParseAmount(t.TotalUsd.String()),
		Quantity: int64(pricing.ParseQuantity(t.TotalQty.String())),
		Profit:   pricing.ParseAmount(t.TotalProfit.String()),
	}
}

type batchResponse struct {
	BatchID     int64           `json:"batchId"`
	OrderCode   string          `json:"orderCode"`
	CreatedAt   time.Time       `json:"createdAt"`
	TotalUsd    json.Number     `json:"totalUsd"`
	TotalQty    int64           `json:"totalQty"`
	TotalProfit json.Number     `json:"totalProfit"`
	Orders      []orderResponse `json:"orders"`
}

func toBatchResponse(b service.ArchiveBatch) batchResponse {
	return batchResponse{
		BatchID:     b.ID,
		OrderCode:   b.OrderCode,
		CreatedAt:   b.CreatedAt,
		TotalUsd:    num(b.Totals.USD),
		TotalQty:    b.Totals.Quantity,
		TotalProfit: num(b.Totals.Profit),
		Orders:      toOrderResponses(b.Orders),
	}
}

// --- Handlers ---

// Finalize handles POST /api/finalize.
func (h *ArchiveHandler) Finalize(w http.ResponseWriter, r *http.Request) {
	var req finalizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid data"})
		return
	}

	rows := make([]service.OrderRow, len(req.Orders))
	var invalid []rowError
	for i, in := range req.Orders {
		if rowErr := checkAmounts(i, in); rowErr != nil {
			invalid = append(invalid, *rowErr)
		}
		rows[i] = in.row()
	}
	if len(invalid) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation failed",
			"details": invalid,
		})
		return
	}

	batch, err := h.svc.Finalize(r.Context(), service.FinalizeRequest{
		OrderCode: req.OrderCode.String(),
		Rows:      rows,
		Totals:    req.Totals.totals(),
	})
	if err != nil {
		if isValidationError(err) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.log.Error(r.Context(), "finalize", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Failed to archive"})
		return
	}

	publish(h.pub, enum.TopicOrders, enum.EventOrdersChanged, changePayload{Action: enum.ActionFinalized, BatchID: batch.ID})
	publish(h.pub, enum.TopicArchive, enum.EventArchiveChanged, changePayload{Action: enum.ActionFinalized, BatchID: batch.ID})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Order finalized and archived",
		"batchId": batch.ID,
	})
}

// List handles GET /api/archive.
func (h *ArchiveHandler) List(w http.ResponseWriter, r *http.Request) {
	batches, err := h.svc.ListBatches(r.Context())
	if err != nil {
		h.log.Error(r.Context(), "list archive", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	resp := make([]batchResponse, len(batches))
	for i, b := range batches {
		resp[i] = toBatchResponse(b)
	}
	writeJSON(w, http.StatusOK, resp)
}

// Delete handles DELETE /api/archive/{batchId}.
func (h *ArchiveHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "batchId", "invalid batch ID")
	if !ok {
		return
	}

	if err := h.svc.DeleteBatch(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrBatchNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "batch not found"})
			return
		}
		h.log.Error(r.Context(), "delete batch", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	publish(h.pub, enum.TopicArchive, enum.EventArchiveChanged, changePayload{Action: enum.ActionDeleted, BatchID: id})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Batch deleted"})
}

func isValidationError(err error) bool {
	return errors.Is(err, service.ErrOrderCodeRequired) ||
		errors.Is(err, service.ErrNoOrders) ||
		errors.Is(err, pricing.ErrAmountOutOfRange)
}
