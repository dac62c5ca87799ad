package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/internal/inventory/service"
	"github.com/medflow/pharmacy-inventory/pkg/httputil"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
	"github.com/shopspring/decimal"
)

// BatchHandler handles batch endpoints
type BatchHandler struct {
	batches     *service.BatchService
	allocations *service.AllocationService
	paging      Paging
	logger      *logger.Logger
}

// NewBatchHandler creates a new batch handler
func NewBatchHandler(batches *service.BatchService, allocations *service.AllocationService, log *logger.Logger) *BatchHandler {
	return &BatchHandler{
		batches:     batches,
		allocations: allocations,
		logger:      log,
	}
}

type createBatchRequest struct {
	ProductID         string           `json:"product_id" validate:"required"`
	LocationID        string           `json:"location_id" validate:"required,uuid"`
	SupplierID        *string          `json:"supplier_id"`
	BatchNumber       string           `json:"batch_number" validate:"max=100"`
	Quantity          int              `json:"quantity" validate:"required,gt=0"`
	Cost              *decimal.Decimal `json:"cost"`
	ManufacturingDate *Date            `json:"manufacturing_date"`
	ExpiryDate        *Date            `json:"expiry_date" validate:"required"`
	ReceivingDate     *Date            `json:"receiving_date"`
	AlertDate         *Date            `json:"alert_date"`
	ClearanceDate     *Date            `json:"clearance_date"`
	StockType         domain.StockType `json:"stock_type" validate:"omitempty,stock_type"`
	ParentBatchID     *string          `json:"parent_batch_id" validate:"omitempty,uuid"`
}

// updateBatchRequest has no quantity: the received total is fixed once recorded
type updateBatchRequest struct {
	ProductID         *string           `json:"product_id" validate:"omitempty,min=1"`
	LocationID        *string           `json:"location_id" validate:"omitempty,uuid"`
	SupplierID        *string           `json:"supplier_id"`
	BatchNumber       *string           `json:"batch_number" validate:"omitempty,max=100"`
	Cost              *decimal.Decimal  `json:"cost"`
	ManufacturingDate *Date             `json:"manufacturing_date"`
	ExpiryDate        *Date             `json:"expiry_date"`
	ReceivingDate     *Date             `json:"receiving_date"`
	AlertDate         *Date             `json:"alert_date"`
	ClearanceDate     *Date             `json:"clearance_date"`
	StockType         *domain.StockType `json:"stock_type" validate:"omitempty,stock_type"`
	ParentBatchID     *string           `json:"parent_batch_id" validate:"omitempty,uuid"`
}

type allocateRequest struct {
	ShelfID   string `json:"shelf_id" validate:"required,uuid"`
	Quantity  int    `json:"quantity" validate:"required,gt=0"`
	Threshold *int   `json:"threshold" validate:"omitempty,gte=0"`
}

// List lists batches
func (h *BatchHandler) List(w http.ResponseWriter, r *http.Request) {
	p := h.paging.parse(r)
	q := r.URL.Query()

	expiryBefore, err := queryDate(r, "expiry_before")
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	locationID, err := queryID(r, "location_id")
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	batches, total, err := h.batches.List(r.Context(), service.BatchListFilter{
		BatchFilter: repository.BatchFilter{
			Search:       q.Get("search"),
			ProductID:    q.Get("product_id"),
			LocationID:   locationID,
			StockType:    domain.StockType(q.Get("stock_type")),
			ExpiryBefore: expiryBefore,
			Limit:        p.PerPage,
			Offset:       p.Offset(),
		},
		Status: domain.ExpiryStatus(q.Get("status")),
	})
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, batches, httputil.NewMeta(p, total))
}

// Create records a received batch
func (h *BatchHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createBatchRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	b := &repository.Batch{
		ProductID:         req.ProductID,
		LocationID:        req.LocationID,
		SupplierID:        req.SupplierID,
		BatchNumber:       req.BatchNumber,
		Quantity:          req.Quantity,
		ManufacturingDate: req.ManufacturingDate.Ptr(),
		ExpiryDate:        req.ExpiryDate.Time,
		ReceivingDate:     req.ReceivingDate.Ptr(),
		AlertDate:         req.AlertDate.Ptr(),
		ClearanceDate:     req.ClearanceDate.Ptr(),
		StockType:         req.StockType,
		ParentBatchID:     req.ParentBatchID,
	}
	if req.Cost != nil {
		b.Cost = decimal.NewNullDecimal(*req.Cost)
	}

	created, err := h.batches.Create(r.Context(), b)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, created)
}

// Get gets a batch with its derived quantities and status
func (h *BatchHandler) Get(w http.ResponseWriter, r *http.Request) {
	b, err := h.batches.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, b)
}

// Update applies a partial update to a batch
func (h *BatchHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateBatchRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	b, err := h.batches.Update(r.Context(), chi.URLParam(r, "id"), service.BatchPatch{
		ProductID:         req.ProductID,
		LocationID:        req.LocationID,
		SupplierID:        req.SupplierID,
		BatchNumber:       req.BatchNumber,
		Cost:              req.Cost,
		ManufacturingDate: req.ManufacturingDate.Ptr(),
		ExpiryDate:        req.ExpiryDate.Ptr(),
		ReceivingDate:     req.ReceivingDate.Ptr(),
		AlertDate:         req.AlertDate.Ptr(),
		ClearanceDate:     req.ClearanceDate.Ptr(),
		StockType:         req.StockType,
		ParentBatchID:     req.ParentBatchID,
	})
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, b)
}

// Delete removes a batch together with all of its allocations
func (h *BatchHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.allocations.DeleteBatch(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// Classification reports the current expiry status of a batch
func (h *BatchHandler) Classification(w http.ResponseWriter, r *http.Request) {
	c, err := h.batches.Classify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, c)
}

// Unallocated reports how much of a batch is not yet on a shelf
func (h *BatchHandler) Unallocated(w http.ResponseWriter, r *http.Request) {
	view, err := h.allocations.UnallocatedQuantity(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, view)
}

// ListAllocations lists where a batch is shelved
func (h *BatchHandler) ListAllocations(w http.ResponseWriter, r *http.Request) {
	allocations, err := h.allocations.ListByBatch(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, allocations)
}

// Allocate places part of a batch on a shelf
func (h *BatchHandler) Allocate(w http.ResponseWriter, r *http.Request) {
	var req allocateRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	result, err := h.allocations.Allocate(r.Context(), service.AllocateInput{
		BatchID:   chi.URLParam(r, "id"),
		ShelfID:   req.ShelfID,
		Quantity:  req.Quantity,
		Threshold: req.Threshold,
	})
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, result)
}
