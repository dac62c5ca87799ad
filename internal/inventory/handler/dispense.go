package handler

import (
	"net/http"

	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/service"
	"github.com/medflow/pharmacy-inventory/pkg/httputil"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

// DispenseHandler handles dispense planning
type DispenseHandler struct {
	dispense *service.DispenseService
	logger   *logger.Logger
}

// NewDispenseHandler creates a new dispense handler
func NewDispenseHandler(dispense *service.DispenseService, log *logger.Logger) *DispenseHandler {
	return &DispenseHandler{
		dispense: dispense,
		logger:   log,
	}
}

type dispensePlanRequest struct {
	ProductID      string                 `json:"product_id" validate:"required"`
	LocationID     string                 `json:"location_id" validate:"required,uuid"`
	RequiredQty    int                    `json:"required_quantity" validate:"required,gt=0"`
	IncludeExpired bool                   `json:"include_expired"`
	Method         *domain.DispatchMethod `json:"method" validate:"omitempty,dispatch_method"`
}

// Plan returns the ordered draws that would satisfy a dispense. Nothing is
// reserved or written.
func (h *DispenseHandler) Plan(w http.ResponseWriter, r *http.Request) {
	var req dispensePlanRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	plan, err := h.dispense.Plan(r.Context(), service.DispenseInput{
		ProductID:      req.ProductID,
		LocationID:     req.LocationID,
		RequiredQty:    req.RequiredQty,
		IncludeExpired: req.IncludeExpired,
		Method:         req.Method,
	})
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, plan)
}
