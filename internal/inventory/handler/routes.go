package handler

import (
	"github.com/go-chi/chi/v5"
	"github.com/medflow/pharmacy-inventory/internal/inventory/service"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

// Services are the inventory services exposed over HTTP
type Services struct {
	Locations   *service.LocationService
	Shelves     *service.ShelfService
	Batches     *service.BatchService
	Allocations *service.AllocationService
	Dispense    *service.DispenseService
	StockLevels *service.StockLevelService
}

// Handlers groups every inventory handler
type Handlers struct {
	Location   *LocationHandler
	Shelf      *ShelfHandler
	Batch      *BatchHandler
	Allocation *AllocationHandler
	Dispense   *DispenseHandler
	StockLevel *StockLevelHandler
}

// New builds the inventory handlers. A zero Paging uses 20 per page, at most 100.
func New(svc Services, paging Paging, log *logger.Logger) *Handlers {
	location := NewLocationHandler(svc.Locations, svc.Shelves, log)
	location.paging = paging
	batch := NewBatchHandler(svc.Batches, svc.Allocations, log)
	batch.paging = paging

	return &Handlers{
		Location:   location,
		Shelf:      NewShelfHandler(svc.Shelves, svc.Allocations, log),
		Batch:      batch,
		Allocation: NewAllocationHandler(svc.Allocations, log),
		Dispense:   NewDispenseHandler(svc.Dispense, log),
		StockLevel: NewStockLevelHandler(svc.StockLevels, log),
	}
}

// Routes mounts the inventory API on r
func (h *Handlers) Routes(r chi.Router) {
	r.Route("/locations", func(r chi.Router) {
		r.Get("/", h.Location.List)
		r.Post("/", h.Location.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(requireID("location"))
			r.Get("/", h.Location.Get)
			r.Put("/", h.Location.Update)
			r.Delete("/", h.Location.Delete)
			r.Get("/children", h.Location.ListChildren)
			r.Get("/shelves", h.Location.ListShelves)
			r.Post("/shelves", h.Location.CreateShelf)
		})
	})

	r.Route("/shelves/{id}", func(r chi.Router) {
		r.Use(requireID("shelf"))
		r.Get("/", h.Shelf.Get)
		r.Patch("/", h.Shelf.Update)
		r.Delete("/", h.Shelf.Delete)
		r.Get("/allocations", h.Shelf.ListAllocations)
	})

	r.Route("/batches", func(r chi.Router) {
		r.Get("/", h.Batch.List)
		r.Post("/", h.Batch.Create)
		r.Route("/{id}", func(r chi.Router) {
			r.Use(requireID("batch"))
			r.Get("/", h.Batch.Get)
			r.Put("/", h.Batch.Update)
			r.Delete("/", h.Batch.Delete)
			r.Get("/classification", h.Batch.Classification)
			r.Get("/unallocated", h.Batch.Unallocated)
			r.Get("/allocations", h.Batch.ListAllocations)
			r.Post("/allocations", h.Batch.Allocate)
		})
	})

	r.Route("/allocations/{id}", func(r chi.Router) {
		r.Use(requireID("allocation"))
		r.Get("/", h.Allocation.Get)
		r.Put("/", h.Allocation.Replace)
		r.Delete("/", h.Allocation.Delete)
	})

	r.Get("/stock-levels", h.StockLevel.List)
	r.Post("/dispense/plan", h.Dispense.Plan)
}
