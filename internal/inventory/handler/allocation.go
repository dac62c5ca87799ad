package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/pharmacy-inventory/internal/inventory/service"
	"github.com/medflow/pharmacy-inventory/pkg/httputil"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

// AllocationHandler handles allocation endpoints
type AllocationHandler struct {
	allocations *service.AllocationService
	logger      *logger.Logger
}

// NewAllocationHandler creates a new allocation handler
func NewAllocationHandler(allocations *service.AllocationService, log *logger.Logger) *AllocationHandler {
	return &AllocationHandler{
		allocations: allocations,
		logger:      log,
	}
}

type replaceAllocationRequest struct {
	ShelfID   string `json:"shelf_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	Threshold *int   `json:"threshold" validate:"omitempty,gte=0"`
}

// Get gets an allocation by ID
func (h *AllocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	a, err := h.allocations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, a)
}

// Replace swaps an allocation for a new one on the same batch. The response
// carries the new allocation, which has a new ID.
func (h *AllocationHandler) Replace(w http.ResponseWriter, r *http.Request) {
	var req replaceAllocationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	result, err := h.allocations.Replace(r.Context(), chi.URLParam(r, "id"), service.ReplaceInput{
		ShelfID:   req.ShelfID,
		Quantity:  req.Quantity,
		Threshold: req.Threshold,
	})
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, result)
}

// Delete removes an allocation, returning its stock to the batch
func (h *AllocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.allocations.Deallocate(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.NoContent(w)
}
