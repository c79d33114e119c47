// Package scoring applies weighted field comparisons to record pairs and
// classifies the resulting totals into match outcomes.
package scoring

import (
	"fmt"

	"github.com/Ramsey-B/clover/pkg/comparators"
	"github.com/Ramsey-B/clover/pkg/fieldpath"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/normalizers"
)

// fieldPlan is one spec compiled against the comparator registry
type fieldPlan struct {
	spec       models.FieldComparisonSpec
	path       *fieldpath.Path
	comparator comparators.Comparator
	opts       comparators.Options
}

// Calculator scores record pairs against a fixed set of field specs.
// Construction validates every spec; comparison never fails.
type Calculator struct {
	plans []fieldPlan
}

// NewCalculator compiles the field specs. Zero specs, an unknown
// comparator, a non-positive weight, or a threshold outside [0,1] are
// configuration errors, rejected here rather than at comparison time.
func NewCalculator(registry *comparators.Registry, specs []models.FieldComparisonSpec) (*Calculator, error) {
	if len(specs) == 0 {
		return nil, fmt.Errorf("at least one field comparison spec is required")
	}

	plans := make([]fieldPlan, 0, len(specs))
	for _, spec := range specs {
		if spec.Field == "" {
			return nil, fmt.Errorf("field comparison spec is missing a field path")
		}
		if spec.Weight <= 0 {
			return nil, fmt.Errorf("field %q: weight must be positive, got %v", spec.Field, spec.Weight)
		}
		if spec.Threshold < 0 || spec.Threshold > 1 {
			return nil, fmt.Errorf("field %q: threshold must be in [0,1], got %v", spec.Field, spec.Threshold)
		}

		path, err := fieldpath.Compile(spec.Field)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", spec.Field, err)
		}

		comparator, err := registry.Get(spec.Comparator)
		if err != nil {
			return nil, fmt.Errorf("field %q: %w", spec.Field, err)
		}

		opts := comparators.OptionsFromMap(spec.Options)
		opts.CaseSensitive = spec.CaseSensitive

		plans = append(plans, fieldPlan{
			spec:       spec,
			path:       path,
			comparator: comparator,
			opts:       opts,
		})
	}

	return &Calculator{plans: plans}, nil
}

// Calculate scores a record pair. Every configured field contributes a
// FieldScore; the order of FieldScores follows the spec order.
func (c *Calculator) Calculate(a, b models.Record) models.MatchScore {
	score := models.MatchScore{
		FieldScores: make([]models.FieldScore, 0, len(c.plans)),
	}

	for _, plan := range c.plans {
		fs := c.scoreField(plan, a, b)
		score.TotalScore += fs.Contribution
		score.MaxPossibleScore += fs.Weight
		score.FieldScores = append(score.FieldScores, fs)
	}

	if score.MaxPossibleScore > 0 {
		score.NormalizedScore = score.TotalScore / score.MaxPossibleScore
	}

	return score
}

func (c *Calculator) scoreField(plan fieldPlan, a, b models.Record) models.FieldScore {
	fs := models.FieldScore{
		Field:  plan.spec.Field,
		Weight: plan.spec.Weight,
	}

	valueA, foundA := plan.path.Resolve(map[string]any(a))
	valueB, foundB := plan.path.Resolve(map[string]any(b))
	fs.ValueA = valueA
	fs.ValueB = valueB

	definedA := foundA && valueA != nil
	definedB := foundB && valueB != nil

	var similarity float64
	switch {
	case !definedA && !definedB:
		// Both absent: agreement by default, mismatch only when the spec
		// opts out of the null rule
		if plan.spec.NullMismatch {
			similarity = 0.0
		} else {
			similarity = 1.0
		}
	case !definedA || !definedB:
		similarity = 0.0
	default:
		inputA, inputB := valueA, valueB
		if len(plan.spec.Normalizers) > 0 {
			normA := normalizers.ApplyChain(comparators.Stringify(valueA), plan.spec.Normalizers...)
			normB := normalizers.ApplyChain(comparators.Stringify(valueB), plan.spec.Normalizers...)
			fs.NormalizedA = &normA
			fs.NormalizedB = &normB
			inputA, inputB = normA, normB
		}
		similarity = clamp01(plan.comparator.Compare(inputA, inputB, plan.opts))
	}

	fs.Similarity = similarity
	if similarity >= plan.spec.Threshold {
		fs.MetThreshold = true
		fs.Contribution = similarity * plan.spec.Weight
	}

	return fs
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
