package domain

import (
	"sort"
	"time"
)

// Candidate is one allocation that could be drawn from, joined with the
// batch and shelf facts the ordering needs.
type Candidate struct {
	AllocationID   string         `json:"allocation_id"`
	BatchID        string         `json:"batch_id"`
	BatchNumber    string         `json:"batch_number"`
	ShelfID        string         `json:"shelf_id"`
	AllocatedQty   int            `json:"allocated_qty"`
	ExpiryDate     time.Time      `json:"expiry_date"`
	ReceivingDate  *time.Time     `json:"receiving_date,omitempty"`
	BatchCreatedAt time.Time      `json:"-"`
	DispatchMethod DispatchMethod `json:"dispatch_method"`
	Status         ExpiryStatus   `json:"status"`
	DaysToExpiry   int            `json:"days_to_expiry"`
}

// received is the receiving date, falling back to when the batch was recorded
func (c Candidate) received() time.Time {
	if c.ReceivingDate != nil {
		return *c.ReceivingDate
	}
	return c.BatchCreatedAt
}

// Draw is one step of a dispense plan
type Draw struct {
	AllocationID string       `json:"allocation_id"`
	BatchID      string       `json:"batch_id"`
	BatchNumber  string       `json:"batch_number"`
	ShelfID      string       `json:"shelf_id"`
	Quantity     int          `json:"quantity"`
	ExpiryDate   time.Time    `json:"expiry_date"`
	Status       ExpiryStatus `json:"status"`

	// ShelfMethod is the dispatch method of the shelf drawn from
	ShelfMethod DispatchMethod `json:"shelf_method"`
}

// DispenseRequest parameterizes PlanDispense
type DispenseRequest struct {
	RequiredQty    int
	IncludeExpired bool
	// Method overrides the shelves' configured method when set
	Method *DispatchMethod
	Now    time.Time
}

// DispensePlan is the outcome of a dispense request. A plan that cannot be
// fully covered is still a plan: Shortfall reports what is missing.
type DispensePlan struct {
	Method          DispatchMethod `json:"method"`
	RequiredQty     int            `json:"required_quantity"`
	AvailableQty    int            `json:"available_quantity"`
	FulfilledQty    int            `json:"fulfilled_quantity"`
	Shortfall       int            `json:"shortfall"`
	Partial         bool           `json:"partial"`
	Draws           []Draw         `json:"draws"`
	Candidates      []Candidate    `json:"candidates,omitempty"`
	ExcludedExpired int            `json:"excluded_expired"`

	// Reason explains why Candidates were left for the caller to pick from
	Reason string `json:"reason,omitempty"`
}

// DispatchMixed is the plan method when candidate shelves use different
// methods. It is never a shelf setting.
const DispatchMixed DispatchMethod = "MIXED"

// Plan reasons
const (
	ReasonManualDispatch = "shelves use MANUAL dispatch; choose draws from candidates"
	ReasonManualShelves  = "stock on MANUAL shelves is listed in candidates and was not drawn"
)

// mixedDrawOrder is the order in which method groups are drawn from when
// shelves disagree. Expiry-ordered stock goes first.
var mixedDrawOrder = []DispatchMethod{DispatchFEFO, DispatchFIFO, DispatchLIFO}

// ResolveMethod picks the method for a request: an explicit override wins,
// otherwise the method shared by every candidate shelf. Shelves that disagree
// resolve to MIXED and each keeps its own method.
func ResolveMethod(override *DispatchMethod, candidates []Candidate) DispatchMethod {
	if override != nil {
		return *override
	}
	if len(candidates) == 0 {
		return DispatchManual
	}
	method := candidates[0].DispatchMethod
	for _, c := range candidates[1:] {
		if c.DispatchMethod != method {
			return DispatchMixed
		}
	}
	if !method.Valid() {
		return DispatchManual
	}
	return method
}

// orderByShelfMethod orders each shelf-method group by its own method and
// concatenates the groups in mixedDrawOrder. MANUAL (and unknown) shelves are
// returned separately in input order.
func orderByShelfMethod(candidates []Candidate) (ordered, manual []Candidate) {
	groups := make(map[DispatchMethod][]Candidate)
	for _, c := range candidates {
		switch c.DispatchMethod {
		case DispatchFEFO, DispatchFIFO, DispatchLIFO:
			groups[c.DispatchMethod] = append(groups[c.DispatchMethod], c)
		default:
			manual = append(manual, c)
		}
	}
	for _, m := range mixedDrawOrder {
		ordered = append(ordered, OrderCandidates(m, groups[m])...)
	}
	return ordered, manual
}

// OrderCandidates returns a sorted copy of candidates for method. MANUAL
// returns the input order unchanged.
func OrderCandidates(method DispatchMethod, candidates []Candidate) []Candidate {
	out := make([]Candidate, len(candidates))
	copy(out, candidates)

	var less func(a, b Candidate) bool
	switch method {
	case DispatchFEFO:
		less = func(a, b Candidate) bool {
			if !a.ExpiryDate.Equal(b.ExpiryDate) {
				return a.ExpiryDate.Before(b.ExpiryDate)
			}
			if ra, rb := a.received(), b.received(); !ra.Equal(rb) {
				return ra.Before(rb)
			}
			return a.AllocationID < b.AllocationID
		}
	case DispatchFIFO:
		less = func(a, b Candidate) bool {
			if ra, rb := a.received(), b.received(); !ra.Equal(rb) {
				return ra.Before(rb)
			}
			return a.AllocationID < b.AllocationID
		}
	case DispatchLIFO:
		less = func(a, b Candidate) bool {
			if ra, rb := a.received(), b.received(); !ra.Equal(rb) {
				return ra.After(rb)
			}
			return a.AllocationID < b.AllocationID
		}
	default:
		return out
	}

	sort.SliceStable(out, func(i, j int) bool { return less(out[i], out[j]) })
	return out
}

// PlanDispense classifies the candidates, drops expired stock unless asked
// to keep it, orders what is left and walks it until the required quantity
// is covered. It never fails on a shortfall.
func PlanDispense(classifier ExpiryClassifier, req DispenseRequest, candidates []Candidate) DispensePlan {
	eligible := make([]Candidate, 0, len(candidates))
	excluded := 0
	for _, c := range candidates {
		c.DaysToExpiry = DaysToExpiry(c.ExpiryDate, req.Now)
		c.Status = classifier.ClassifyDays(c.DaysToExpiry)
		if c.Status == StatusExpired && !req.IncludeExpired {
			excluded++
			continue
		}
		if c.AllocatedQty <= 0 {
			continue
		}
		eligible = append(eligible, c)
	}

	plan := DispensePlan{
		Method:          ResolveMethod(req.Method, eligible),
		RequiredQty:     req.RequiredQty,
		Draws:           []Draw{},
		ExcludedExpired: excluded,
	}
	for _, c := range eligible {
		plan.AvailableQty += c.AllocatedQty
	}

	var ordered []Candidate
	switch plan.Method {
	case DispatchManual:
		plan.Candidates = eligible
		plan.Shortfall = max(0, req.RequiredQty-plan.AvailableQty)
		plan.Partial = plan.Shortfall > 0
		if len(eligible) > 0 {
			plan.Reason = ReasonManualDispatch
		}
		return plan
	case DispatchMixed:
		var manual []Candidate
		ordered, manual = orderByShelfMethod(eligible)
		if len(manual) > 0 {
			plan.Candidates = manual
			plan.Reason = ReasonManualShelves
		}
	default:
		ordered = OrderCandidates(plan.Method, eligible)
	}

	remaining := req.RequiredQty
	for _, c := range ordered {
		if remaining <= 0 {
			break
		}
		qty := min(remaining, c.AllocatedQty)
		plan.Draws = append(plan.Draws, Draw{
			AllocationID: c.AllocationID,
			BatchID:      c.BatchID,
			BatchNumber:  c.BatchNumber,
			ShelfID:      c.ShelfID,
			Quantity:     qty,
			ExpiryDate:   c.ExpiryDate,
			Status:       c.Status,
			ShelfMethod:  c.DispatchMethod,
		})
		plan.FulfilledQty += qty
		remaining -= qty
	}

	plan.Shortfall = req.RequiredQty - plan.FulfilledQty
	plan.Partial = plan.Shortfall > 0
	return plan
}
