package handler

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/medflow/pharmacy-inventory/internal/inventory/domain"
	"github.com/medflow/pharmacy-inventory/pkg/errors"
	"github.com/medflow/pharmacy-inventory/pkg/httputil"
)

// Enum tags for request structs, backed by the domain Valid methods
func init() {
	enums := []struct {
		tag     string
		valid   func(string) bool
		message string
	}{
		{"location_type", func(v string) bool { return domain.LocationType(v).Valid() }, "must be one of: branch, warehouse, external, supplier, quarantine, clinic"},
		{"location_status", func(v string) bool { return domain.LocationStatus(v).Valid() }, "must be one of: active, inactive, suspended"},
		{"dispatch_method", func(v string) bool { return domain.DispatchMethod(v).Valid() }, "must be one of: FEFO, FIFO, LIFO, MANUAL"},
		{"stock_type", func(v string) bool { return domain.StockType(v).Valid() }, "must be one of: store, pharmacy, quarantine, external"},
	}
	for _, e := range enums {
		valid := e.valid
		if err := httputil.RegisterCustomValidation(e.tag, func(fl validator.FieldLevel) bool {
			return valid(fl.Field().String())
		}, e.message); err != nil {
			panic(err)
		}
	}
}

// Paging bounds the page size of list endpoints
type Paging struct {
	Default int
	Max     int
}

var defaultPaging = Paging{Default: 20, Max: 100}

func (p Paging) parse(r *http.Request) httputil.Pagination {
	if p.Default <= 0 {
		p = defaultPaging
	}
	return httputil.ParsePagination(r, p.Default, p.Max)
}

// Date accepts either a calendar date (2006-01-02) or an RFC 3339 timestamp
type Date struct {
	time.Time
}

// UnmarshalJSON implements json.Unmarshaler
func (d *Date) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return err
	}
	t, err := parseDate(s)
	if err != nil {
		return err
	}
	d.Time = t
	return nil
}

// Ptr returns the date as a *time.Time, nil for a nil receiver
func (d *Date) Ptr() *time.Time {
	if d == nil {
		return nil
	}
	t := d.Time
	return &t
}

func parseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if t, err := time.Parse("2006-01-02", s); err == nil {
		return t, nil
	}
	return time.Parse(time.RFC3339, s)
}

// queryDate reads an optional date query parameter
func queryDate(r *http.Request, key string) (*time.Time, error) {
	v := r.URL.Query().Get(key)
	if v == "" {
		return nil, nil
	}
	t, err := parseDate(v)
	if err != nil {
		return nil, errors.Validation(map[string]string{key: "must be a date (YYYY-MM-DD) or RFC 3339 timestamp"})
	}
	return &t, nil
}

// decodeAndValidate decodes the JSON body into v and runs struct validation
func decodeAndValidate(r *http.Request, v any) error {
	if err := httputil.DecodeJSON(r, v); err != nil {
		return err
	}
	return httputil.Validate(v)
}

// requireID rejects requests whose {id} path parameter is not a UUID. No
// record can have such an id, so the answer is NotFound for resource.
func requireID(resource string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if _, err := uuid.Parse(chi.URLParam(r, "id")); err != nil {
				httputil.Error(w, r, errors.NotFound(resource))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// queryID reads an optional UUID query parameter
func queryID(r *http.Request, key string) (string, error) {
	v := strings.TrimSpace(r.URL.Query().Get(key))
	if v == "" {
		return "", nil
	}
	if _, err := uuid.Parse(v); err != nil {
		return "", errors.Validation(map[string]string{key: "must be a valid UUID"})
	}
	return v, nil
}
