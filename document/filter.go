package document

import (
	"errors"
	"fmt"
	"strings"
)

// Operator represents a comparison operator for filtering.
type Operator string

const (
	// OpEqual represents the equality operator.
	OpEqual Operator = "eq"
	// OpNotEqual represents the inequality operator.
	OpNotEqual Operator = "ne"
	// OpGreaterThan represents the greater than operator.
	OpGreaterThan Operator = "gt"
	// OpGreaterEqual represents the greater than or equal operator.
	OpGreaterEqual Operator = "gte"
	// OpLessThan represents the less than operator.
	OpLessThan Operator = "lt"
	// OpLessEqual represents the less than or equal operator.
	OpLessEqual Operator = "lte"
	// OpIn represents the in list operator.
	OpIn Operator = "in"
	// OpContains represents the contains substring operator.
	OpContains Operator = "contains"
)

// ErrInvalidFilter is returned by Validate for malformed filters.
var ErrInvalidFilter = errors.New("invalid filter")

// Filter represents a single filter condition on a top-level key.
type Filter struct {
	Key      string
	Operator Operator
	Value    Value
}

// FilterSet represents a set of filters that must all match (AND logic).
//
// A nil or empty FilterSet matches every document.
type FilterSet struct {
	Filters []Filter
}

// NewFilterSet creates a new filter set.
func NewFilterSet(filters ...Filter) *FilterSet {
	return &FilterSet{Filters: filters}
}

// ByID returns a filter set selecting a single document by identifier.
func ByID(id ID) *FilterSet {
	return NewFilterSet(Eq(KeyID, String(string(id))))
}

// Eq builds an equality filter.
func Eq(key string, v Value) Filter { return Filter{Key: key, Operator: OpEqual, Value: v} }

// Ne builds an inequality filter.
func Ne(key string, v Value) Filter { return Filter{Key: key, Operator: OpNotEqual, Value: v} }

// Gt builds a greater-than filter.
func Gt(key string, v Value) Filter { return Filter{Key: key, Operator: OpGreaterThan, Value: v} }

// Gte builds a greater-or-equal filter.
func Gte(key string, v Value) Filter { return Filter{Key: key, Operator: OpGreaterEqual, Value: v} }

// Lt builds a less-than filter.
func Lt(key string, v Value) Filter { return Filter{Key: key, Operator: OpLessThan, Value: v} }

// Lte builds a less-or-equal filter.
func Lte(key string, v Value) Filter { return Filter{Key: key, Operator: OpLessEqual, Value: v} }

// In builds a set-membership filter.
func In(key string, values ...Value) Filter {
	return Filter{Key: key, Operator: OpIn, Value: Array(values)}
}

// Contains builds a substring filter.
func Contains(key, substr string) Filter {
	return Filter{Key: key, Operator: OpContains, Value: String(substr)}
}

// Validate checks that the filter is well formed.
func (f *Filter) Validate() error {
	if f.Key == "" {
		return fmt.Errorf("%w: empty key", ErrInvalidFilter)
	}
	switch f.Operator {
	case OpEqual, OpNotEqual:
		if f.Value.Kind == KindInvalid || f.Value.Kind == KindNDArray {
			return fmt.Errorf("%w: %s on %q cannot compare %s", ErrInvalidFilter, f.Operator, f.Key, f.Value.Kind)
		}
	case OpGreaterThan, OpGreaterEqual, OpLessThan, OpLessEqual:
		if !isOrdered(f.Value) {
			return fmt.Errorf("%w: %s on %q needs a number or time, got %s", ErrInvalidFilter, f.Operator, f.Key, f.Value.Kind)
		}
	case OpIn:
		if f.Value.Kind != KindArray {
			return fmt.Errorf("%w: in on %q needs an array, got %s", ErrInvalidFilter, f.Key, f.Value.Kind)
		}
	case OpContains:
		if f.Value.Kind != KindString {
			return fmt.Errorf("%w: contains on %q needs a string, got %s", ErrInvalidFilter, f.Key, f.Value.Kind)
		}
	default:
		return fmt.Errorf("%w: unknown operator %q", ErrInvalidFilter, f.Operator)
	}
	return nil
}

// Validate checks every filter in the set.
func (fs *FilterSet) Validate() error {
	if fs == nil {
		return nil
	}
	for i := range fs.Filters {
		if err := fs.Filters[i].Validate(); err != nil {
			return err
		}
	}
	return nil
}

// Matches checks if the provided document matches this filter.
func (f *Filter) Matches(doc Document) bool {
	value, exists := doc[f.Key]
	if !exists {
		// A missing key is unequal to anything.
		return f.Operator == OpNotEqual
	}

	switch f.Operator {
	case OpEqual:
		return compareEqual(value, f.Value)
	case OpNotEqual:
		return !compareEqual(value, f.Value)
	case OpGreaterThan:
		return compareGreater(value, f.Value)
	case OpGreaterEqual:
		return compareGreater(value, f.Value) || compareEqual(value, f.Value)
	case OpLessThan:
		return compareLess(value, f.Value)
	case OpLessEqual:
		return compareLess(value, f.Value) || compareEqual(value, f.Value)
	case OpIn:
		return compareIn(value, f.Value)
	case OpContains:
		return compareContains(value, f.Value)
	default:
		return false
	}
}

// Matches checks if the provided document matches all filters in the set.
func (fs *FilterSet) Matches(doc Document) bool {
	if fs == nil {
		return true
	}
	for i := range fs.Filters {
		if !fs.Filters[i].Matches(doc) {
			return false
		}
	}
	return true
}

func (fs *FilterSet) String() string {
	if fs == nil || len(fs.Filters) == 0 {
		return "{}"
	}
	parts := make([]string, len(fs.Filters))
	for i, f := range fs.Filters {
		parts[i] = fmt.Sprintf("%s %s %v", f.Key, f.Operator, ToAny(f.Value))
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

func compareEqual(a, b Value) bool {
	if a.Kind == KindNull && b.Kind == KindNull {
		return true
	}
	if a.Kind == KindNull || b.Kind == KindNull {
		return false
	}

	if isNumber(a) && isNumber(b) {
		// Prefer exact int compare when possible.
		if a.Kind == KindInt && b.Kind == KindInt {
			return a.I64 == b.I64
		}
		return asFloat64(a) == asFloat64(b)
	}

	if a.Kind != b.Kind {
		return false
	}

	switch a.Kind {
	case KindArray:
		if len(a.A) != len(b.A) {
			return false
		}
		for i := range a.A {
			if !compareEqual(a.A[i], b.A[i]) {
				return false
			}
		}
		return true
	default:
		return a.Equal(b)
	}
}

func compareGreater(a, b Value) bool {
	if a.Kind == KindTime && b.Kind == KindTime {
		return a.T.After(b.T)
	}
	if !isNumber(a) || !isNumber(b) {
		return false
	}
	return asFloat64(a) > asFloat64(b)
}

func compareLess(a, b Value) bool {
	if a.Kind == KindTime && b.Kind == KindTime {
		return a.T.Before(b.T)
	}
	if !isNumber(a) || !isNumber(b) {
		return false
	}
	return asFloat64(a) < asFloat64(b)
}

func compareIn(a, b Value) bool {
	if b.Kind != KindArray {
		return false
	}
	for _, item := range b.A {
		if compareEqual(a, item) {
			return true
		}
	}
	return false
}

func compareContains(a, b Value) bool {
	if a.Kind != KindString || b.Kind != KindString {
		return false
	}
	return strings.Contains(a.S, b.S)
}

func isNumber(v Value) bool {
	return v.Kind == KindInt || v.Kind == KindFloat
}

func isOrdered(v Value) bool {
	return isNumber(v) || v.Kind == KindTime
}

func asFloat64(v Value) float64 {
	switch v.Kind {
	case KindInt:
		return float64(v.I64)
	case KindFloat:
		return v.F64
	default:
		return 0
	}
}
