package handler

import (
	"net/http"

	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/service"
	"github.com/medflow/pharmacy-inventory/pkg/httputil"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

// StockLevelHandler handles stock level reports
type StockLevelHandler struct {
	stockLevels *service.StockLevelService
	logger      *logger.Logger
}

// NewStockLevelHandler creates a new stock level handler
func NewStockLevelHandler(stockLevels *service.StockLevelService, log *logger.Logger) *StockLevelHandler {
	return &StockLevelHandler{
		stockLevels: stockLevels,
		logger:      log,
	}
}

// List reports allocated and unallocated stock per product, location and
// stock type
func (h *StockLevelHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	locationID, err := queryID(r, "location_id")
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	levels, err := h.stockLevels.List(r.Context(), service.StockLevelQuery{
		ProductID:  q.Get("product_id"),
		LocationID: locationID,
		StockType:  domain.StockType(q.Get("stock_type")),
	})
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, levels)
}
