// Package domain holds the inventory enums and the pure rules that do not
// touch storage: expiry classification and dispense ordering.
package domain

// LocationType classifies a physical or organizational place
type LocationType string

const (
	LocationBranch     LocationType = "branch"
	LocationWarehouse  LocationType = "warehouse"
	LocationExternal   LocationType = "external"
	LocationSupplier   LocationType = "supplier"
	LocationQuarantine LocationType = "quarantine"
	LocationClinic     LocationType = "clinic"
)

// Valid reports whether t is a known location type
func (t LocationType) Valid() bool {
	switch t {
	case LocationBranch, LocationWarehouse, LocationExternal, LocationSupplier, LocationQuarantine, LocationClinic:
		return true
	}
	return false
}

// LocationStatus is the administrative state of a location
type LocationStatus string

const (
	LocationActive    LocationStatus = "active"
	LocationInactive  LocationStatus = "inactive"
	LocationSuspended LocationStatus = "suspended"
)

// Valid reports whether s is a known location status
func (s LocationStatus) Valid() bool {
	switch s {
	case LocationActive, LocationInactive, LocationSuspended:
		return true
	}
	return false
}

// DispatchMethod decides the order in which a shelf's stock is drawn
type DispatchMethod string

const (
	DispatchFEFO   DispatchMethod = "FEFO"
	DispatchFIFO   DispatchMethod = "FIFO"
	DispatchLIFO   DispatchMethod = "LIFO"
	DispatchManual DispatchMethod = "MANUAL"
)

// Valid reports whether m is a known dispatch method
func (m DispatchMethod) Valid() bool {
	switch m {
	case DispatchFEFO, DispatchFIFO, DispatchLIFO, DispatchManual:
		return true
	}
	return false
}

// StockType tells which stock pool a batch belongs to
type StockType string

const (
	StockStore      StockType = "store"
	StockPharmacy   StockType = "pharmacy"
	StockQuarantine StockType = "quarantine"
	StockExternal   StockType = "external"
)

// Valid reports whether t is a known stock type
func (t StockType) Valid() bool {
	switch t {
	case StockStore, StockPharmacy, StockQuarantine, StockExternal:
		return true
	}
	return false
}

// ExpiryStatus is the derived lifecycle state of a batch. It is never stored.
type ExpiryStatus string

const (
	StatusAvailable  ExpiryStatus = "available"
	StatusNearExpiry ExpiryStatus = "nearExpiry"
	StatusExpired    ExpiryStatus = "expired"
)

// Valid reports whether s is a known expiry status
func (s ExpiryStatus) Valid() bool {
	switch s {
	case StatusAvailable, StatusNearExpiry, StatusExpired:
		return true
	}
	return false
}
