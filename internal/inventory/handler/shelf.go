package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/service"
	"github.com/medflow/pharmacy-inventory/pkg/httputil"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

// ShelfHandler handles shelf endpoints
type ShelfHandler struct {
	shelves     *service.ShelfService
	allocations *service.AllocationService
	logger      *logger.Logger
}

// NewShelfHandler creates a new shelf handler
func NewShelfHandler(shelves *service.ShelfService, allocations *service.AllocationService, log *logger.Logger) *ShelfHandler {
	return &ShelfHandler{
		shelves:     shelves,
		allocations: allocations,
		logger:      log,
	}
}

type updateShelfRequest struct {
	DispatchMethod domain.DispatchMethod `json:"dispatch_method" validate:"required,dispatch_method"`
}

// Get gets a shelf by ID
func (h *ShelfHandler) Get(w http.ResponseWriter, r *http.Request) {
	shelf, err := h.shelves.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, shelf)
}

// Update changes the dispatch method of a shelf
func (h *ShelfHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateShelfRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	shelf, err := h.shelves.UpdateDispatchMethod(r.Context(), chi.URLParam(r, "id"), req.DispatchMethod)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, shelf)
}

// Delete removes an empty shelf
func (h *ShelfHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.shelves.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// ListAllocations lists the allocations placed on a shelf
func (h *ShelfHandler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	allocations, err := h.allocations.ListByShelf(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, allocations)
}
