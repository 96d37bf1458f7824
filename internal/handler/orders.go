package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/orderdesk/api/internal/enum"
	"github.com/orderdesk/api/internal/logger"
	"github.com/orderdesk/api/internal/pricing"
	"github.com/orderdesk/api/internal/service"
)

// StagingServicer defines the service methods needed by order handlers.
// Satisfied by *service.StagingService; narrow interface for testability.
type StagingServicer interface {
	AddRows(ctx context.Context, rows []service.RawRow) ([]service.OrderRow, error)
	ListRows(ctx context.Context) ([]service.OrderRow, error)
	UpdateRow(ctx context.Context, id int64, patch service.RowPatch) (service.OrderRow, error)
	DeleteRow(ctx context.Context, id int64) error
	ClearAll(ctx context.Context) (int64, error)
}

// OrderHandler handles staged order endpoints.
type OrderHandler struct {
	svc StagingServicer
	pub Publisher
	log *logger.Logger
}

// NewOrderHandler creates a new OrderHandler.
func NewOrderHandler(svc StagingServicer, pub Publisher, log *logger.Logger) *OrderHandler {
	return &OrderHandler{svc: svc, pub: pub, log: log}
}

// RegisterRoutes registers the session-protected order endpoints.
// Create is public and mounted separately.
func (h *OrderHandler) RegisterRoutes(r chi.Router) {
	r.Get("/orders", h.List)
	r.Patch("/orders/{id}", h.Patch)
	r.Delete("/orders/{id}", h.Delete)
	r.Delete("/orders", h.Clear)
}

// --- Handlers ---

// Create handles POST /api/orders.
func (h *OrderHandler) Create(w http.ResponseWriter, r *http.Request) {
	var inputs []orderInput
	if err := json.NewDecoder(r.Body).Decode(&inputs); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "Invalid data format"})
		return
	}

	raw := make([]service.RawRow, len(inputs))
	var invalid []rowError
	for i, in := range inputs {
		raw[i] = in.raw()
		if raw[i].IsBlank() {
			continue
		}
		if rowErr := validateRow(i, in); rowErr != nil {
			invalid = append(invalid, *rowErr)
		}
	}
	if len(invalid) > 0 {
		writeJSON(w, http.StatusBadRequest, map[string]any{
			"error":   "validation failed",
			"details": invalid,
		})
		return
	}

	created, err := h.svc.AddRows(r.Context(), raw)
	if err != nil {
		if errors.Is(err, service.ErrNoOrders) {
			writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
			return
		}
		h.log.Error(r.Context(), "add orders", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "Transaction failed"})
		return
	}

	ids := make([]int64, len(created))
	for i, row := range created {
		ids[i] = row.ID
	}
	publish(h.pub, enum.TopicOrders, enum.EventOrdersChanged, changePayload{Action: enum.ActionAdded, IDs: ids})

	writeJSON(w, http.StatusCreated, map[string]any{
		"message": "Orders added successfully",
		"count":   len(created),
		"orders":  toOrderResponses(created),
	})
}

// List handles GET /api/orders.
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	rows, err := h.svc.ListRows(r.Context())
	if err != nil {
		h.log.Error(r.Context(), "list orders", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}
	writeJSON(w, http.StatusOK, toOrderResponses(rows))
}

// Patch handles PATCH /api/orders/{id}.
func (h *OrderHandler) Patch(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "invalid order ID")
	if !ok {
		return
	}

	var body map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "invalid request body"})
		return
	}

	patch, recognized, err := parsePatch(body)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": err.Error()})
		return
	}
	if !recognized {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": "No valid fields to update"})
		return
	}

	row, err := h.svc.UpdateRow(r.Context(), id, patch)
	if err != nil {
		if errors.Is(err, service.ErrRowNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		h.log.Error(r.Context(), "update order", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	publish(h.pub, enum.TopicOrders, enum.EventOrdersChanged, changePayload{Action: enum.ActionUpdated, IDs: []int64{id}})

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Order updated",
		"order":   toOrderResponse(row),
	})
}

// Delete handles DELETE /api/orders/{id}.
func (h *OrderHandler) Delete(w http.ResponseWriter, r *http.Request) {
	id, ok := parseID(w, r, "id", "invalid order ID")
	if !ok {
		return
	}

	if err := h.svc.DeleteRow(r.Context(), id); err != nil {
		if errors.Is(err, service.ErrRowNotFound) {
			writeJSON(w, http.StatusNotFound, map[string]string{"error": "order not found"})
			return
		}
		h.log.Error(r.Context(), "delete order", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	publish(h.pub, enum.TopicOrders, enum.EventOrdersChanged, changePayload{Action: enum.ActionDeleted, IDs: []int64{id}})
	writeJSON(w, http.StatusOK, map[string]string{"message": "Order deleted"})
}

// Clear handles DELETE /api/orders.
func (h *OrderHandler) Clear(w http.ResponseWriter, r *http.Request) {
	n, err := h.svc.ClearAll(r.Context())
	if err != nil {
		h.log.Error(r.Context(), "clear orders", err)
		writeJSON(w, http.StatusInternalServerError, map[string]string{"error": "internal server error"})
		return
	}

	publish(h.pub, enum.TopicOrders, enum.EventOrdersChanged, changePayload{Action: enum.ActionCleared, Count: n})
	writeJSON(w, http.StatusOK, map[string]any{
		"message": "All temp orders cleared",
		"deleted": n,
	})
}

// --- Helpers ---

// parsePatch maps the recognized keys of a PATCH body onto a RowPatch.
// Derived amounts are recognized but ignored since they are always
// recomputed. Unknown keys are ignored.
func parsePatch(body map[string]json.RawMessage) (service.RowPatch, bool, error) {
	var patch service.RowPatch
	recognized := false

	text := func(key string, dst **string) error {
		raw, ok := body[key]
		if !ok {
			return nil
		}
		recognized = true
		var v flexString
		if err := json.Unmarshal(raw, &v); err != nil {
			return errors.New("invalid value for " + key)
		}
		s := v.String()
		*dst = &s
		return nil
	}

	for _, f := range []struct {
		key string
		dst **string
	}{
		{"date", &patch.Date},
		{"user", &patch.User},
		{"phone", &patch.Phone},
		{"title", &patch.Title},
		{"link", &patch.Link},
		{"pageName", &patch.PageName},
	} {
		if err := text(f.key, f.dst); err != nil {
			return service.RowPatch{}, false, err
		}
	}

	var usdPrice, qty, deposit *string
	for _, f := range []struct {
		key string
		dst **string
	}{
		{"usdPrice", &usdPrice},
		{"qty", &qty},
		{"deposit", &deposit},
	} {
		if err := text(f.key, f.dst); err != nil {
			return service.RowPatch{}, false, err
		}
	}
	for _, f := range []struct {
		key string
		val *string
	}{
		{"usdPrice", usdPrice},
		{"deposit", deposit},
	} {
		if f.val != nil && pricing.CheckAmount(*f.val) != nil {
			return service.RowPatch{}, false, errors.New(f.key + " " + amountMessage)
		}
	}
	if usdPrice != nil {
		d := pricing.ParseAmount(*usdPrice)
		patch.UsdPrice = &d
	}
	if qty != nil {
		q := pricing.ParseQuantity(*qty)
		patch.Qty = &q
	}
	if deposit != nil {
		d := pricing.ParseAmount(*deposit)
		patch.Deposit = &d
	}

	for _, key := range []string{"customerPrice", "remaining", "profit"} {
		if _, ok := body[key]; ok {
			recognized = true
		}
	}

	return patch, recognized, nil
}

func parseID(w http.ResponseWriter, r *http.Request, param, msg string) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64)
	if err != nil || id <= 0 {
		writeJSON(w, http.StatusBadRequest, map[string]string{"error": msg})
		return 0, false
	}
	return id, true
}
