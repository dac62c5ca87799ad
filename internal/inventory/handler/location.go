package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/internal/inventory/repository"
	"github.com/medflow/pharmacy-inventory/internal/inventory/service"
	"github.com/medflow/pharmacy-inventory/pkg/httputil"
	"github.com/medflow/pharmacy-inventory/pkg/logger"
)

// LocationHandler handles location endpoints
type LocationHandler struct {
	locations *service.LocationService
	shelves   *service.ShelfService
	paging    Paging
	logger    *logger.Logger
}

// NewLocationHandler creates a new location handler
func NewLocationHandler(locations *service.LocationService, shelves *service.ShelfService, log *logger.Logger) *LocationHandler {
	return &LocationHandler{
		locations: locations,
		shelves:   shelves,
		logger:    log,
	}
}

type createLocationRequest struct {
	Name             string                `json:"name" validate:"required,max=200"`
	Type             domain.LocationType   `json:"type" validate:"required,location_type"`
	Status           domain.LocationStatus `json:"status" validate:"omitempty,location_status"`
	Address          *string               `json:"address"`
	IsDirectToMain   bool                  `json:"is_direct_to_main"`
	ParentLocationID *string               `json:"parent_location_id" validate:"omitempty,uuid"`
}

type updateLocationRequest struct {
	Name             *string                `json:"name" validate:"omitempty,min=1,max=200"`
	Type             *domain.LocationType   `json:"type" validate:"omitempty,location_type"`
	Status           *domain.LocationStatus `json:"status" validate:"omitempty,location_status"`
	Address          *string                `json:"address"`
	IsDirectToMain   *bool                  `json:"is_direct_to_main"`
	ParentLocationID *string                `json:"parent_location_id" validate:"omitempty,uuid"`
}

type createShelfRequest struct {
	DispatchMethod domain.DispatchMethod `json:"dispatch_method" validate:"omitempty,dispatch_method"`
}

// List lists locations
func (h *LocationHandler) List(w http.ResponseWriter, r *http.Request) {
	p := h.paging.parse(r)
	q := r.URL.Query()

	locations, total, err := h.locations.List(r.Context(), repository.LocationFilter{
		Search: q.Get("search"),
		Type:   domain.LocationType(q.Get("type")),
		Status: domain.LocationStatus(q.Get("status")),
		Limit:  p.PerPage,
		Offset: p.Offset(),
	})
	if err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.JSONWithMeta(w, http.StatusOK, locations, httputil.NewMeta(p, total))
}

// Create registers a location
func (h *LocationHandler) Create(w http.ResponseWriter, r *http.Request) {
	var req createLocationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	loc := &repository.Location{
		Name:             req.Name,
		Type:             req.Type,
		Status:           req.Status,
		Address:          req.Address,
		IsDirectToMain:   req.IsDirectToMain,
		ParentLocationID: req.ParentLocationID,
	}
	if err := h.locations.Create(r.Context(), loc); err != nil {
		httputil.Error(w, r, err)
		return
	}

	httputil.Created(w, loc)
}

// Get gets a location by ID
func (h *LocationHandler) Get(w http.ResponseWriter, r *http.Request) {
	loc, err := h.locations.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, loc)
}

// Update applies a partial update. An empty parent_location_id detaches the
// location from its parent.
func (h *LocationHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateLocationRequest
	if err := decodeAndValidate(r, &req); err != nil {
		httputil.Error(w, r, err)
		return
	}

	loc, err := h.locations.Update(r.Context(), chi.URLParam(r, "id"), service.LocationPatch{
		Name:             req.Name,
		Type:             req.Type,
		Status:           req.Status,
		Address:          req.Address,
		IsDirectToMain:   req.IsDirectToMain,
		ParentLocationID: req.ParentLocationID,
	})
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, loc)
}

// Delete removes a location that nothing references
func (h *LocationHandler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.locations.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.NoContent(w)
}

// ListChildren lists the direct children of a location
func (h *LocationHandler) ListChildren(w http.ResponseWriter, r *http.Request) {
	children, err := h.locations.ListChildren(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, children)
}

// ListShelves lists the shelves of a location
func (h *LocationHandler) ListShelves(w http.ResponseWriter, r *http.Request) {
	shelves, err := h.shelves.ListByLocation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.OK(w, shelves)
}

// CreateShelf adds a shelf to a location. The body is optional; the dispatch
// method defaults to FEFO.
func (h *LocationHandler) CreateShelf(w http.ResponseWriter, r *http.Request) {
	var req createShelfRequest
	if r.ContentLength != 0 {
		if err := decodeAndValidate(r, &req); err != nil {
			httputil.Error(w, r, err)
			return
		}
	}

	shelf, err := h.shelves.Create(r.Context(), chi.URLParam(r, "id"), req.DispatchMethod)
	if err != nil {
		httputil.Error(w, r, err)
		return
	}
	httputil.Created(w, shelf)
}
