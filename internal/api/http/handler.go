package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"go.uber.org/zap"

	"github.com/anhduy-tech/lapxpert-inventory/internal/lock"
	"github.com/anhduy-tech/lapxpert-inventory/internal/repository"
	"github.com/anhduy-tech/lapxpert-inventory/internal/retry"
	"github.com/anhduy-tech/lapxpert-inventory/internal/service"
)

// Handler содержит HTTP-обработчики Inventory Service.
// Зависит от service слоя, но не знает о деталях реализации (БД, Redis и т.д.)
type Handler struct {
	logger  *zap.Logger
	service *service.SerialNumberService
}

// NewHandler создаёт новый HTTP handler
func NewHandler(logger *zap.Logger, svc *service.SerialNumberService) *Handler {
	return &Handler{logger: logger, service: svc}
}

// ReservationItemDTO представляет строку запроса на резервирование
type ReservationItemDTO struct {
	VariantID int64 `json:"variant_id"`
	Quantity  int   `json:"quantity,omitempty"`
	SerialID  int64 `json:"serial_id,omitempty"`
}

// SerialNumberDTO представляет серийный номер в HTTP ответах
type SerialNumberDTO struct {
	ID             int64      `json:"id"`
	SerialValue    string     `json:"serial_value"`
	VariantID      int64      `json:"variant_id"`
	Status         string     `json:"status"`
	HoldChannel    string     `json:"hold_channel,omitempty"`
	HoldReference  string     `json:"hold_reference,omitempty"`
	HoldAt         *time.Time `json:"hold_at,omitempty"`
	BatchID        string     `json:"batch_id,omitempty"`
	ManufacturedAt *time.Time `json:"manufactured_at,omitempty"`
	WarrantyUntil  *time.Time `json:"warranty_until,omitempty"`
	Supplier       string     `json:"supplier,omitempty"`
	Note           string     `json:"note,omitempty"`
	Version        int64      `json:"version"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func toDTO(sn repository.SerialNumber) SerialNumberDTO {
	return SerialNumberDTO{
		ID:             sn.ID,
		SerialValue:    sn.SerialValue,
		VariantID:      sn.VariantID,
		Status:         string(sn.Status),
		HoldChannel:    sn.HoldChannel,
		HoldReference:  sn.HoldReference,
		HoldAt:         sn.HoldAt,
		BatchID:        sn.BatchID,
		ManufacturedAt: sn.ManufacturedAt,
		WarrantyUntil:  sn.WarrantyUntil,
		Supplier:       sn.Supplier,
		Note:           sn.Note,
		Version:        sn.Version,
		CreatedAt:      sn.CreatedAt,
		UpdatedAt:      sn.UpdatedAt,
	}
}

func toDTOs(sns []repository.SerialNumber) []SerialNumberDTO {
	out := make([]SerialNumberDTO, 0, len(sns))
	for _, sn := range sns {
		out = append(out, toDTO(sn))
	}
	return out
}

func toServiceItems(items []ReservationItemDTO) []service.ReservationItem {
	out := make([]service.ReservationItem, 0, len(items))
	for _, item := range items {
		out = append(out, service.ReservationItem{
			VariantID: item.VariantID,
			Quantity:  item.Quantity,
			SerialID:  item.SerialID,
		})
	}
	return out
}

// GetAvailability обрабатывает GET /variants/{variantID}/availability
func (h *Handler) GetAvailability(w http.ResponseWriter, r *http.Request, variantID int64) {
	available, err := h.service.AvailableQuantity(r.Context(), variantID)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"variant_id": variantID,
		"available":  available,
	})
}

// CheckAvailability обрабатывает POST /availability/check
func (h *Handler) CheckAvailability(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		Items []ReservationItemDTO `json:"items"`
	}
	if !h.decode(w, r, &reqBody) {
		return
	}
	if len(reqBody.Items) == 0 {
		h.badRequest(w, "items are required")
		return
	}

	ok, err := h.service.IsAvailable(r.Context(), toServiceItems(reqBody.Items))
	if err != nil && !errors.Is(err, repository.ErrNotFound) {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"available": ok && err == nil})
}

// ReserveByQuantity обрабатывает POST /reservations/quantity
func (h *Handler) ReserveByQuantity(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		VariantID     int64  `json:"variant_id"`
		Quantity      int    `json:"quantity"`
		Channel       string `json:"channel"`
		HoldReference string `json:"hold_reference"`
		Actor         string `json:"actor"`
	}
	if !h.decode(w, r, &reqBody) {
		return
	}
	if reqBody.VariantID <= 0 || reqBody.Quantity <= 0 || reqBody.HoldReference == "" {
		h.badRequest(w, "variant_id, quantity and hold_reference are required")
		return
	}
	if reqBody.Channel == "" {
		reqBody.Channel = repository.ChannelOrder
	}

	reserved, err := h.service.ReserveByQuantity(r.Context(),
		reqBody.VariantID, reqBody.Quantity, reqBody.Channel, reqBody.HoldReference, reqBody.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{"reserved": toDTOs(reserved)})
}

// ReserveSerials обрабатывает POST /reservations/serials
func (h *Handler) ReserveSerials(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		SerialIDs     []int64 `json:"serial_ids"`
		Channel       string  `json:"channel"`
		HoldReference string  `json:"hold_reference"`
		Actor         string  `json:"actor"`
	}
	if !h.decode(w, r, &reqBody) {
		return
	}
	if len(reqBody.SerialIDs) == 0 || reqBody.HoldReference == "" {
		h.badRequest(w, "serial_ids and hold_reference are required")
		return
	}
	if reqBody.Channel == "" {
		reqBody.Channel = repository.ChannelOrder
	}

	reserved, err := h.service.ReserveSerials(r.Context(),
		reqBody.SerialIDs, reqBody.Channel, reqBody.HoldReference, reqBody.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{"reserved": toDTOs(reserved)})
}

// ReserveItems обрабатывает POST /reservations/items
func (h *Handler) ReserveItems(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		Items         []ReservationItemDTO `json:"items"`
		Channel       string               `json:"channel"`
		HoldReference string               `json:"hold_reference"`
		Actor         string               `json:"actor"`
	}
	if !h.decode(w, r, &reqBody) {
		return
	}
	if len(reqBody.Items) == 0 || reqBody.HoldReference == "" {
		h.badRequest(w, "items and hold_reference are required")
		return
	}
	if reqBody.Channel == "" {
		reqBody.Channel = repository.ChannelOrder
	}

	reserved, err := h.service.ReserveItems(r.Context(),
		toServiceItems(reqBody.Items), reqBody.Channel, reqBody.HoldReference, reqBody.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{"reserved": toDTOs(reserved)})
}

// ConfirmSale обрабатывает POST /reservations/confirm-sale
func (h *Handler) ConfirmSale(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		SerialIDs      []int64 `json:"serial_ids"`
		OrderReference string  `json:"order_reference"`
		Actor          string  `json:"actor"`
	}
	if !h.decode(w, r, &reqBody) {
		return
	}
	if len(reqBody.SerialIDs) == 0 || reqBody.OrderReference == "" {
		h.badRequest(w, "serial_ids and order_reference are required")
		return
	}

	if err := h.service.ConfirmSale(r.Context(), reqBody.SerialIDs, reqBody.OrderReference, reqBody.Actor); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "sold"})
}

// Release обрабатывает POST /reservations/release
func (h *Handler) Release(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		SerialIDs []int64 `json:"serial_ids"`
		Actor     string  `json:"actor"`
		Reason    string  `json:"reason"`
	}
	if !h.decode(w, r, &reqBody) {
		return
	}
	if len(reqBody.SerialIDs) == 0 {
		h.badRequest(w, "serial_ids are required")
		return
	}

	if err := h.service.Release(r.Context(), reqBody.SerialIDs, reqBody.Actor, reqBody.Reason); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "released"})
}

// ReleaseFromSold обрабатывает POST /reservations/release-from-sold
func (h *Handler) ReleaseFromSold(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		SerialIDs []int64 `json:"serial_ids"`
		Actor     string  `json:"actor"`
		Reason    string  `json:"reason"`
	}
	if !h.decode(w, r, &reqBody) {
		return
	}
	if len(reqBody.SerialIDs) == 0 {
		h.badRequest(w, "serial_ids are required")
		return
	}

	if err := h.service.ReleaseFromSold(r.Context(), reqBody.SerialIDs, reqBody.Actor, reqBody.Reason); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "released"})
}

// Rebind обрабатывает POST /reservations/rebind
func (h *Handler) Rebind(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		SerialIDs    []int64 `json:"serial_ids"`
		OldReference string  `json:"old_reference"`
		NewReference string  `json:"new_reference"`
		Actor        string  `json:"actor"`
	}
	if !h.decode(w, r, &reqBody) {
		return
	}
	if len(reqBody.SerialIDs) == 0 || reqBody.OldReference == "" || reqBody.NewReference == "" {
		h.badRequest(w, "serial_ids, old_reference and new_reference are required")
		return
	}

	if err := h.service.RebindReservation(r.Context(), reqBody.SerialIDs, reqBody.OldReference, reqBody.NewReference, reqBody.Actor); err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": "rebound"})
}

// ValidateAssignment обрабатывает POST /reservations/validate
func (h *Handler) ValidateAssignment(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		Items         []ReservationItemDTO `json:"items"`
		ReservedIDs   []int64              `json:"reserved_ids"`
		HoldReference string               `json:"hold_reference"`
	}
	if !h.decode(w, r, &reqBody) {
		return
	}
	if reqBody.HoldReference == "" {
		h.badRequest(w, "hold_reference is required")
		return
	}

	err := h.service.ValidateAssignment(r.Context(),
		toServiceItems(reqBody.Items), reqBody.ReservedIDs, reqBody.HoldReference)
	if err != nil {
		if errors.Is(err, service.ErrAssignmentMismatch) {
			h.writeJSON(w, http.StatusConflict, map[string]any{
				"valid": false,
				"error": err.Error(),
			})
			return
		}
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"valid": true})
}

// CreateSerial обрабатывает POST /serials
func (h *Handler) CreateSerial(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		SerialValue    string     `json:"serial_value"`
		VariantID      int64      `json:"variant_id"`
		BatchID        string     `json:"batch_id"`
		ManufacturedAt *time.Time `json:"manufactured_at"`
		WarrantyUntil  *time.Time `json:"warranty_until"`
		Supplier       string     `json:"supplier"`
		Note           string     `json:"note"`
		Actor          string     `json:"actor"`
	}
	if !h.decode(w, r, &reqBody) {
		return
	}
	if reqBody.SerialValue == "" || reqBody.VariantID <= 0 {
		h.badRequest(w, "serial_value and variant_id are required")
		return
	}

	sn, err := h.service.CreateSerialNumber(r.Context(), service.CreateSerialInput{
		SerialValue:    reqBody.SerialValue,
		VariantID:      reqBody.VariantID,
		BatchID:        reqBody.BatchID,
		ManufacturedAt: reqBody.ManufacturedAt,
		WarrantyUntil:  reqBody.WarrantyUntil,
		Supplier:       reqBody.Supplier,
		Note:           reqBody.Note,
	}, reqBody.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, toDTO(sn))
}

// GetSerial обрабатывает GET /serials/{id}
func (h *Handler) GetSerial(w http.ResponseWriter, r *http.Request, id int64) {
	sn, err := h.service.GetSerialNumber(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}
	h.writeJSON(w, http.StatusOK, toDTO(sn))
}

// UpdateSerial обрабатывает PATCH /serials/{id}
func (h *Handler) UpdateSerial(w http.ResponseWriter, r *http.Request, id int64) {
	var reqBody struct {
		SerialValue    *string    `json:"serial_value"`
		BatchID        *string    `json:"batch_id"`
		ManufacturedAt *time.Time `json:"manufactured_at"`
		WarrantyUntil  *time.Time `json:"warranty_until"`
		Supplier       *string    `json:"supplier"`
		Note           *string    `json:"note"`
		Actor          string     `json:"actor"`
	}
	if !h.decode(w, r, &reqBody) {
		return
	}

	sn, err := h.service.UpdateSerialNumber(r.Context(), id, service.UpdateSerialInput{
		SerialValue:    reqBody.SerialValue,
		BatchID:        reqBody.BatchID,
		ManufacturedAt: reqBody.ManufacturedAt,
		WarrantyUntil:  reqBody.WarrantyUntil,
		Supplier:       reqBody.Supplier,
		Note:           reqBody.Note,
	}, reqBody.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, toDTO(sn))
}

// DeleteSerial обрабатывает DELETE /serials/{id} - списание единицы
func (h *Handler) DeleteSerial(w http.ResponseWriter, r *http.Request, id int64) {
	actor := r.URL.Query().Get("actor")
	reason := r.URL.Query().Get("reason")
	if reason == "" {
		reason = "disposed"
	}

	if err := h.service.DeleteSerialNumber(r.Context(), id, actor, reason); err != nil {
		h.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ChangeStatus обрабатывает POST /serials/{id}/status
func (h *Handler) ChangeStatus(w http.ResponseWriter, r *http.Request, id int64) {
	var reqBody struct {
		Status string `json:"status"`
		Actor  string `json:"actor"`
		Reason string `json:"reason"`
	}
	if !h.decode(w, r, &reqBody) {
		return
	}
	if reqBody.Status == "" {
		h.badRequest(w, "status is required")
		return
	}

	err := h.service.ChangeStatus(r.Context(), id, repository.Status(reqBody.Status), reqBody.Actor, reqBody.Reason)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"status": reqBody.Status})
}

// GenerateSerials обрабатывает POST /serials/generate
func (h *Handler) GenerateSerials(w http.ResponseWriter, r *http.Request) {
	var reqBody struct {
		VariantID int64  `json:"variant_id"`
		Quantity  int    `json:"quantity"`
		Pattern   string `json:"pattern"`
		Actor     string `json:"actor"`
	}
	if !h.decode(w, r, &reqBody) {
		return
	}
	if reqBody.VariantID <= 0 || reqBody.Quantity <= 0 {
		h.badRequest(w, "variant_id and quantity are required")
		return
	}

	created, err := h.service.GenerateSerialNumbers(r.Context(),
		reqBody.VariantID, reqBody.Quantity, reqBody.Pattern, reqBody.Actor)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusCreated, map[string]any{"created": toDTOs(created)})
}

// GetAuditTrail обрабатывает GET /serials/{id}/audit
func (h *Handler) GetAuditTrail(w http.ResponseWriter, r *http.Request, id int64) {
	entries, err := h.service.AuditTrail(r.Context(), id)
	if err != nil {
		h.writeError(w, err)
		return
	}

	type auditDTO struct {
		ID        string    `json:"id"`
		Action    string    `json:"action"`
		OldValue  string    `json:"old_value,omitempty"`
		NewValue  string    `json:"new_value,omitempty"`
		Actor     string    `json:"actor"`
		Reason    string    `json:"reason,omitempty"`
		CreatedAt time.Time `json:"created_at"`
	}
	out := make([]auditDTO, 0, len(entries))
	for _, entry := range entries {
		out = append(out, auditDTO{
			ID:        entry.ID,
			Action:    entry.Action,
			OldValue:  entry.OldValue,
			NewValue:  entry.NewValue,
			Actor:     entry.Actor,
			Reason:    entry.Reason,
			CreatedAt: entry.CreatedAt,
		})
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"entries": out})
}

// GetVariantSerials обрабатывает GET /variants/{variantID}/serials
func (h *Handler) GetVariantSerials(w http.ResponseWriter, r *http.Request, variantID int64) {
	status := repository.Status(r.URL.Query().Get("status"))
	if status == "" {
		status = repository.StatusAvailable
	}
	if !status.Valid() {
		h.badRequest(w, "unknown status")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed < 0 {
			h.badRequest(w, "limit must be a non-negative integer")
			return
		}
		limit = parsed
	}

	sns, err := h.service.SerialsByStatus(r.Context(), variantID, status, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{"serials": toDTOs(sns)})
}

// GetHold обрабатывает GET /holds/{reference}
func (h *Handler) GetHold(w http.ResponseWriter, r *http.Request, reference string) {
	sns, err := h.service.SerialsByHoldReference(r.Context(), reference)
	if err != nil {
		h.writeError(w, err)
		return
	}

	h.writeJSON(w, http.StatusOK, map[string]any{
		"hold_reference": reference,
		"serials":        toDTOs(sns),
	})
}

// decode читает JSON тело запроса, при ошибке отвечает 400
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		h.badRequest(w, "invalid JSON: "+err.Error())
		return false
	}
	return true
}

func (h *Handler) badRequest(w http.ResponseWriter, message string) {
	h.writeJSON(w, http.StatusBadRequest, map[string]any{"error": message})
}

// writeError транслирует доменную ошибку в HTTP статус
func (h *Handler) writeError(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError

	switch {
	case errors.Is(err, repository.ErrNotFound):
		status = http.StatusNotFound
	case errors.Is(err, repository.ErrDuplicateSerial),
		errors.Is(err, repository.ErrIllegalTransition),
		errors.Is(err, repository.ErrVersionConflict),
		errors.Is(err, retry.ErrExhausted),
		errors.Is(err, service.ErrInsufficientInventory),
		errors.Is(err, service.ErrOwnershipMismatch),
		errors.Is(err, service.ErrAssignmentMismatch):
		status = http.StatusConflict
	case errors.Is(err, service.ErrVariantMismatch):
		status = http.StatusUnprocessableEntity
	case errors.Is(err, lock.ErrTimeout):
		status = http.StatusServiceUnavailable
	}

	if status == http.StatusInternalServerError {
		h.logger.Error("request failed", zap.Error(err))
	}
	h.writeJSON(w, status, map[string]any{"error": err.Error()})
}

func (h *Handler) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		h.logger.Error("failed to encode response", zap.Error(err))
	}
}
