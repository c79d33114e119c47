// Package comparators provides similarity strategies for field comparison.
// Every comparator is a pure function mapping two field values to a
// similarity in [0.0, 1.0].
package comparators

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// Built-in comparator names
const (
	Exact       = "exact"
	Levenshtein = "levenshtein"
	Jaro        = "jaro"
	JaroWinkler = "jaro_winkler"
	Soundex     = "soundex"
	Metaphone   = "metaphone"
	Numeric     = "numeric"
	Date        = "date"
)

// Options carries per-spec tuning for a comparison
type Options struct {
	CaseSensitive bool
	// PartialCredit scores phonetic comparators by Jaro-Winkler similarity
	// of the codes instead of 1.0/0.0 code equality.
	PartialCredit bool
	// MaxDaysDiff bounds the linear decay of the date comparator.
	MaxDaysDiff int
	// MaxDiff bounds the linear decay of the numeric comparator.
	MaxDiff float64
	// DateLayout overrides date parsing; RFC 3339 then date-only by default.
	DateLayout string
}

// OptionsFromMap builds Options from a spec's free-form option map
func OptionsFromMap(m map[string]any) Options {
	var opts Options
	if m == nil {
		return opts
	}
	if v, ok := toFloat(m["max_days_diff"]); ok {
		opts.MaxDaysDiff = int(v)
	}
	if v, ok := toFloat(m["max_diff"]); ok {
		opts.MaxDiff = v
	}
	if v, ok := m["partial_credit"].(bool); ok {
		opts.PartialCredit = v
	}
	if v, ok := m["date_layout"].(string); ok {
		opts.DateLayout = v
	}
	return opts
}

// Comparator scores the similarity of two field values
type Comparator interface {
	Compare(a, b any, opts Options) float64
}

// Func adapts a plain function to the Comparator interface
type Func func(a, b any, opts Options) float64

// Compare implements Comparator
func (f Func) Compare(a, b any, opts Options) float64 {
	return f(a, b, opts)
}

// Registry dispatches comparator names to implementations. Built-ins are
// registered at construction; custom comparators may be added before the
// registry is handed to a resolver.
type Registry struct {
	comparators map[string]Comparator
}

// NewRegistry creates a registry with all built-in comparators
func NewRegistry() *Registry {
	r := &Registry{comparators: make(map[string]Comparator)}
	r.comparators[Exact] = Func(compareExact)
	r.comparators[Levenshtein] = Func(compareLevenshtein)
	r.comparators[Jaro] = Func(compareJaro)
	r.comparators[JaroWinkler] = Func(compareJaroWinkler)
	r.comparators[Soundex] = Func(compareSoundex)
	r.comparators[Metaphone] = Func(compareMetaphone)
	r.comparators[Numeric] = Func(compareNumeric)
	r.comparators[Date] = Func(compareDate)
	return r
}

// Register adds a custom comparator. Registering over an existing name is
// rejected so built-in contracts cannot be silently replaced.
func (r *Registry) Register(name string, c Comparator) error {
	if name == "" {
		return fmt.Errorf("comparator name is required")
	}
	if c == nil {
		return fmt.Errorf("comparator %q is nil", name)
	}
	if _, exists := r.comparators[name]; exists {
		return fmt.Errorf("comparator %q is already registered", name)
	}
	r.comparators[name] = c
	return nil
}

// Get returns the comparator for a name. An unknown name is a
// configuration error, reported immediately rather than at compare time.
func (r *Registry) Get(name string) (Comparator, error) {
	c, ok := r.comparators[name]
	if !ok {
		return nil, fmt.Errorf("unknown comparator %q", name)
	}
	return c, nil
}

// Has reports whether a comparator name is registered
func (r *Registry) Has(name string) bool {
	_, ok := r.comparators[name]
	return ok
}

func compareExact(a, b any, opts Options) float64 {
	sa, sb := Stringify(a), Stringify(b)
	if !opts.CaseSensitive {
		sa = strings.ToLower(sa)
		sb = strings.ToLower(sb)
	}
	if sa == sb {
		return 1.0
	}
	return 0.0
}

func compareLevenshtein(a, b any, opts Options) float64 {
	return LevenshteinSimilarity(fold(a, opts), fold(b, opts))
}

func compareJaro(a, b any, opts Options) float64 {
	return JaroSimilarity(fold(a, opts), fold(b, opts))
}

func compareJaroWinkler(a, b any, opts Options) float64 {
	return JaroWinklerSimilarity(fold(a, opts), fold(b, opts))
}

func compareSoundex(a, b any, opts Options) float64 {
	return phoneticScore(SoundexCode(Stringify(a)), SoundexCode(Stringify(b)), opts)
}

func compareMetaphone(a, b any, opts Options) float64 {
	return phoneticScore(MetaphoneCode(Stringify(a)), MetaphoneCode(Stringify(b)), opts)
}

func phoneticScore(codeA, codeB string, opts Options) float64 {
	if codeA == codeB {
		return 1.0
	}
	if opts.PartialCredit {
		return JaroWinklerSimilarity(codeA, codeB)
	}
	return 0.0
}

func compareNumeric(a, b any, opts Options) float64 {
	na, okA := toFloat(a)
	nb, okB := toFloat(b)
	if !okA || !okB {
		return 0.0
	}
	maxDiff := opts.MaxDiff
	if maxDiff <= 0 {
		// No tolerance configured: exact numeric equality only
		if na == nb {
			return 1.0
		}
		return 0.0
	}
	return NumericProximity(na, nb, maxDiff)
}

func compareDate(a, b any, opts Options) float64 {
	ta, okA := toTime(a, opts.DateLayout)
	tb, okB := toTime(b, opts.DateLayout)
	if !okA || !okB {
		return 0.0
	}
	maxDays := opts.MaxDaysDiff
	if maxDays <= 0 {
		maxDays = 1
	}
	return DateProximity(ta, tb, maxDays)
}

func fold(v any, opts Options) string {
	s := Stringify(v)
	if !opts.CaseSensitive {
		s = strings.ToLower(s)
	}
	return s
}

// Stringify converts a field value to its comparison string
func Stringify(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case nil:
		return ""
	case float64:
		return fmt.Sprintf("%v", val)
	case int:
		return fmt.Sprintf("%d", val)
	case int64:
		return fmt.Sprintf("%d", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case time.Time:
		return val.Format(time.RFC3339)
	default:
		b, _ := json.Marshal(v)
		return string(b)
	}
}

func toFloat(v any) (float64, bool) {
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	default:
		return 0, false
	}
}

func toTime(v any, layout string) (time.Time, bool) {
	switch t := v.(type) {
	case time.Time:
		return t, true
	case string:
		if layout != "" {
			parsed, err := time.Parse(layout, t)
			return parsed, err == nil
		}
		if parsed, err := time.Parse(time.RFC3339, t); err == nil {
			return parsed, true
		}
		if parsed, err := time.Parse("2006-01-02", t); err == nil {
			return parsed, true
		}
		return time.Time{}, false
	default:
		return time.Time{}, false
	}
}
