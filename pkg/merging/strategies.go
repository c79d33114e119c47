package merging

import (
	"fmt"
	"reflect"
	"sort"
	"time"

	"github.com/Ramsey-B/clover/pkg/models"
)

// FieldValue is one candidate value for a field, carrying enough source
// metadata for rank- and time-sensitive strategies.
type FieldValue struct {
	Value       any
	UpdatedAt   time.Time
	Integration string
	SourceID    string
}

// Options tunes a strategy application
type Options struct {
	MaxItems   int
	Dedup      bool
	Priorities map[string]int
}

// StrategyFunc maps ordered candidate values to one merged value. A pure
// function: same ordered input, same output. The bool reports whether a
// value was produced; a false return hands the field to the conflict
// policy.
type StrategyFunc func(values []FieldValue, opts Options) (any, bool)

// Registry holds the merge strategies available to an executor. Built-ins
// are registered at construction; custom strategies may be added before
// the registry is handed to an executor.
type Registry struct {
	strategies map[models.MergeStrategyType]StrategyFunc
}

// NewRegistry creates a registry with all built-in strategies
func NewRegistry() *Registry {
	r := &Registry{strategies: make(map[models.MergeStrategyType]StrategyFunc)}
	r.strategies[models.MergeStrategyFirst] = first
	r.strategies[models.MergeStrategyLast] = last
	r.strategies[models.MergeStrategyMostRecent] = mostRecent
	r.strategies[models.MergeStrategyPreferNonEmpty] = preferNonEmpty
	r.strategies[models.MergeStrategyLongestValue] = longest
	r.strategies[models.MergeStrategyShortestValue] = shortest
	r.strategies[models.MergeStrategyCollectAll] = collectAll
	r.strategies[models.MergeStrategyMax] = maxNumeric
	r.strategies[models.MergeStrategyMin] = minNumeric
	r.strategies[models.MergeStrategySum] = sum
	r.strategies[models.MergeStrategyAverage] = average
	r.strategies[models.MergeStrategySourcePriority] = sourcePriority
	return r
}

// Register adds a custom strategy. Built-in names cannot be replaced.
func (r *Registry) Register(name models.MergeStrategyType, fn StrategyFunc) error {
	if name == "" {
		return fmt.Errorf("strategy name is required")
	}
	if fn == nil {
		return fmt.Errorf("strategy %q is nil", name)
	}
	if _, exists := r.strategies[name]; exists {
		return fmt.Errorf("strategy %q is already registered", name)
	}
	r.strategies[name] = fn
	return nil
}

// Get returns the strategy for a name
func (r *Registry) Get(name models.MergeStrategyType) (StrategyFunc, error) {
	fn, ok := r.strategies[name]
	if !ok {
		return nil, fmt.Errorf("unknown merge strategy %q", name)
	}
	return fn, nil
}

// Has reports whether a strategy name is registered
func (r *Registry) Has(name models.MergeStrategyType) bool {
	_, ok := r.strategies[name]
	return ok
}

// Built-in strategies

// first returns the first value in source order
func first(values []FieldValue, _ Options) (any, bool) {
	if len(values) == 0 {
		return nil, false
	}
	return values[0].Value, true
}

// last returns the last value in source order
func last(values []FieldValue, _ Options) (any, bool) {
	if len(values) == 0 {
		return nil, false
	}
	return values[len(values)-1].Value, true
}

// mostRecent returns the value whose source was updated last
func mostRecent(values []FieldValue, _ Options) (any, bool) {
	if len(values) == 0 {
		return nil, false
	}
	best := values[0]
	for _, v := range values[1:] {
		if v.UpdatedAt.After(best.UpdatedAt) {
			best = v
		}
	}
	return best.Value, true
}

// preferNonEmpty returns the first non-empty value, falling back to the
// first value when everything is empty
func preferNonEmpty(values []FieldValue, _ Options) (any, bool) {
	for _, v := range values {
		if !isEmpty(v.Value) {
			return v.Value, true
		}
	}
	if len(values) > 0 {
		return values[0].Value, true
	}
	return nil, false
}

// longest returns the longest value by string form
func longest(values []FieldValue, _ Options) (any, bool) {
	if len(values) == 0 {
		return nil, false
	}
	var result any
	maxLen := -1
	for _, v := range values {
		s := fmt.Sprintf("%v", v.Value)
		if len(s) > maxLen {
			maxLen = len(s)
			result = v.Value
		}
	}
	return result, true
}

// shortest returns the shortest non-empty value by string form
func shortest(values []FieldValue, _ Options) (any, bool) {
	var result any
	found := false
	minLen := int(^uint(0) >> 1)
	for _, v := range values {
		s := fmt.Sprintf("%v", v.Value)
		if len(s) > 0 && len(s) < minLen {
			minLen = len(s)
			result = v.Value
			found = true
		}
	}
	return result, found
}

// collectAll combines all values into one array, flattening nested arrays,
// with optional shallow-equality de-duplication and a max item cap
func collectAll(values []FieldValue, opts Options) (any, bool) {
	if len(values) == 0 {
		return nil, false
	}

	result := make([]any, 0, len(values))
	seen := make(map[string]bool)

	add := func(elem any) bool {
		if opts.Dedup {
			key := fmt.Sprintf("%v", elem)
			if seen[key] {
				return false
			}
			seen[key] = true
		}
		result = append(result, elem)
		return opts.MaxItems > 0 && len(result) >= opts.MaxItems
	}

	for _, v := range values {
		if v.Value != nil && reflect.TypeOf(v.Value).Kind() == reflect.Slice {
			rv := reflect.ValueOf(v.Value)
			for i := 0; i < rv.Len(); i++ {
				if add(rv.Index(i).Interface()) {
					return result, true
				}
			}
		} else {
			if add(v.Value) {
				return result, true
			}
		}
	}

	return result, true
}

// maxNumeric returns the maximum numeric value; non-numeric values are skipped
func maxNumeric(values []FieldValue, _ Options) (any, bool) {
	var best float64
	found := false
	for _, v := range values {
		num, ok := toNumber(v.Value)
		if !ok {
			continue
		}
		if !found || num > best {
			best = num
			found = true
		}
	}
	return nilIfMissing(best, found)
}

// minNumeric returns the minimum numeric value
func minNumeric(values []FieldValue, _ Options) (any, bool) {
	var best float64
	found := false
	for _, v := range values {
		num, ok := toNumber(v.Value)
		if !ok {
			continue
		}
		if !found || num < best {
			best = num
			found = true
		}
	}
	return nilIfMissing(best, found)
}

// sum adds all numeric values
func sum(values []FieldValue, _ Options) (any, bool) {
	var total float64
	found := false
	for _, v := range values {
		if num, ok := toNumber(v.Value); ok {
			total += num
			found = true
		}
	}
	return nilIfMissing(total, found)
}

// average returns the mean of numeric values
func average(values []FieldValue, _ Options) (any, bool) {
	var total float64
	count := 0
	for _, v := range values {
		if num, ok := toNumber(v.Value); ok {
			total += num
			count++
		}
	}
	if count == 0 {
		return nil, false
	}
	return total / float64(count), true
}

// sourcePriority returns the value from the highest-ranked integration
func sourcePriority(values []FieldValue, opts Options) (any, bool) {
	if len(values) == 0 {
		return nil, false
	}
	sorted := make([]FieldValue, len(values))
	copy(sorted, values)
	sort.SliceStable(sorted, func(i, j int) bool {
		return opts.Priorities[sorted[i].Integration] > opts.Priorities[sorted[j].Integration]
	})
	return sorted[0].Value, true
}

func nilIfMissing(v float64, found bool) (any, bool) {
	if !found {
		return nil, false
	}
	return v, true
}

func toNumber(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	default:
		return 0, false
	}
}

func isEmpty(v any) bool {
	if v == nil {
		return true
	}
	switch val := v.(type) {
	case string:
		return val == ""
	case []any:
		return len(val) == 0
	case map[string]any:
		return len(val) == 0
	default:
		return false
	}
}
