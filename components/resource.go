package components

import "fmt"

// Resource is an arbitrary numeric player resource (gold, gems, stamina)
// with optional lower and upper caps. A nil cap means unbounded on that
// side.
type Resource struct {
	Value int64  `json:"value"`
	Min   *int64 `json:"min,omitempty"`
	Max   *int64 `json:"max,omitempty"`
}

// NewResource creates a Resource with the given value and caps. Use
// ResourceCap for the cap arguments, or nil for unbounded.
func NewResource(value int64, minCap, maxCap *int64) Resource {
	return Resource{Value: value, Min: minCap, Max: maxCap}
}

// ResourceCap is a convenience for building cap pointers in place.
func ResourceCap(v int64) *int64 {
	return &v
}

// InvalidSetError reports a resource mutation that would land outside the
// resource's configured bounds. The resource is left unchanged.
type InvalidSetError struct {
	Value int64
	Min   *int64
	Max   *int64
}

func (e *InvalidSetError) Error() string {
	return fmt.Sprintf("value %d is outside resource bounds [%s, %s]",
		e.Value, capString(e.Min), capString(e.Max))
}

func capString(c *int64) string {
	if c == nil {
		return "-"
	}
	return fmt.Sprintf("%d", *c)
}

func (r *Resource) outOfBounds(v int64) bool {
	if r.Max != nil && v > *r.Max {
		return true
	}
	if r.Min != nil && v < *r.Min {
		return true
	}
	return false
}

func (r *Resource) clamp(v int64) int64 {
	if r.Max != nil && v > *r.Max {
		v = *r.Max
	}
	if r.Min != nil && v < *r.Min {
		v = *r.Min
	}
	return v
}

// CheckedSet sets the resource's value, failing with InvalidSetError if the
// new value would fall outside the configured bounds.
func (r *Resource) CheckedSet(v int64) error {
	if r.outOfBounds(v) {
		return &InvalidSetError{Value: v, Min: r.Min, Max: r.Max}
	}
	r.Value = v
	return nil
}

// CheckedAdd adds rhs to the resource's value, failing with
// InvalidSetError if the result would fall outside the configured bounds.
func (r *Resource) CheckedAdd(rhs int64) error {
	return r.CheckedSet(r.Value + rhs)
}

// CheckedSub subtracts rhs from the resource's value, failing with
// InvalidSetError if the result would fall outside the configured bounds.
func (r *Resource) CheckedSub(rhs int64) error {
	return r.CheckedSet(r.Value - rhs)
}

// CappedSet sets the resource's value, clamping it into the configured
// bounds.
func (r *Resource) CappedSet(v int64) {
	r.Value = r.clamp(v)
}

// CappedAdd adds rhs to the resource's value, clamping the result into the
// configured bounds.
func (r *Resource) CappedAdd(rhs int64) {
	r.CappedSet(r.Value + rhs)
}
