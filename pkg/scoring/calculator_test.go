package scoring

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/comparators"
	"github.com/Ramsey-B/clover/pkg/models"
)

func newCalculator(t *testing.T, specs ...models.FieldComparisonSpec) *Calculator {
	t.Helper()
	calc, err := NewCalculator(comparators.NewRegistry(), specs)
	require.NoError(t, err)
	return calc
}

func TestNewCalculator(t *testing.T) {
	registry := comparators.NewRegistry()

	t.Run("zero specs are rejected", func(t *testing.T) {
		_, err := NewCalculator(registry, nil)
		assert.Error(t, err)
	})

	t.Run("unknown comparator is rejected at construction", func(t *testing.T) {
		_, err := NewCalculator(registry, []models.FieldComparisonSpec{
			{Field: "name", Comparator: "cosine", Weight: 1},
		})
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown comparator")
	})

	t.Run("non-positive weight is rejected", func(t *testing.T) {
		_, err := NewCalculator(registry, []models.FieldComparisonSpec{
			{Field: "name", Comparator: comparators.Exact, Weight: 0},
		})
		assert.Error(t, err)
	})

	t.Run("threshold outside unit interval is rejected", func(t *testing.T) {
		_, err := NewCalculator(registry, []models.FieldComparisonSpec{
			{Field: "name", Comparator: comparators.Exact, Weight: 1, Threshold: 1.5},
		})
		assert.Error(t, err)
	})

	t.Run("missing field path is rejected", func(t *testing.T) {
		_, err := NewCalculator(registry, []models.FieldComparisonSpec{
			{Comparator: comparators.Exact, Weight: 1},
		})
		assert.Error(t, err)
	})
}

func TestCalculate(t *testing.T) {
	t.Run("robert smith vs bob smith on levenshtein", func(t *testing.T) {
		calc := newCalculator(t, models.FieldComparisonSpec{
			Field: "name", Comparator: comparators.Levenshtein, Weight: 10,
		})

		score := calc.Calculate(
			models.Record{"name": "Robert Smith"},
			models.Record{"name": "Bob Smith"},
		)

		require.Len(t, score.FieldScores, 1)
		fs := score.FieldScores[0]
		assert.Greater(t, fs.Similarity, 0.0)
		assert.Less(t, fs.Similarity, 1.0)
		assert.InDelta(t, fs.Similarity*10, fs.Contribution, 1e-9)
		assert.Equal(t, fs.Contribution, score.TotalScore)
		assert.Equal(t, 10.0, score.MaxPossibleScore)
	})

	t.Run("score stays within bounds and normalizes", func(t *testing.T) {
		calc := newCalculator(t,
			models.FieldComparisonSpec{Field: "name", Comparator: comparators.Exact, Weight: 10},
			models.FieldComparisonSpec{Field: "email", Comparator: comparators.Exact, Weight: 5},
		)

		score := calc.Calculate(
			models.Record{"name": "Alice", "email": "a@x.com"},
			models.Record{"name": "Alice", "email": "b@y.com"},
		)

		assert.Equal(t, 10.0, score.TotalScore)
		assert.Equal(t, 15.0, score.MaxPossibleScore)
		assert.InDelta(t, 10.0/15.0, score.NormalizedScore, 1e-9)
		assert.GreaterOrEqual(t, score.TotalScore, 0.0)
		assert.LessOrEqual(t, score.TotalScore, score.MaxPossibleScore)
	})

	t.Run("threshold gates contribution but reports raw similarity", func(t *testing.T) {
		calc := newCalculator(t, models.FieldComparisonSpec{
			Field: "name", Comparator: comparators.Levenshtein, Weight: 10, Threshold: 0.9,
		})

		score := calc.Calculate(
			models.Record{"name": "Robert"},
			models.Record{"name": "Bob"},
		)

		fs := score.FieldScores[0]
		assert.False(t, fs.MetThreshold)
		assert.Equal(t, 0.0, fs.Contribution)
		assert.Greater(t, fs.Similarity, 0.0)
	})

	t.Run("contribution never exceeds weight", func(t *testing.T) {
		calc := newCalculator(t, models.FieldComparisonSpec{
			Field: "name", Comparator: comparators.JaroWinkler, Weight: 7,
		})
		score := calc.Calculate(models.Record{"name": "same"}, models.Record{"name": "same"})
		assert.LessOrEqual(t, score.FieldScores[0].Contribution, 7.0)
	})

	t.Run("both absent scores 1.0 by default", func(t *testing.T) {
		calc := newCalculator(t, models.FieldComparisonSpec{
			Field: "middle_name", Comparator: comparators.Exact, Weight: 4,
		})
		score := calc.Calculate(models.Record{}, models.Record{})
		assert.Equal(t, 1.0, score.FieldScores[0].Similarity)
		assert.Equal(t, 4.0, score.TotalScore)
	})

	t.Run("null mismatch scores both-absent as 0.0", func(t *testing.T) {
		calc := newCalculator(t, models.FieldComparisonSpec{
			Field: "middle_name", Comparator: comparators.Exact, Weight: 4, NullMismatch: true,
		})
		score := calc.Calculate(models.Record{}, models.Record{})
		assert.Equal(t, 0.0, score.FieldScores[0].Similarity)
		assert.Equal(t, 0.0, score.TotalScore)
	})

	t.Run("one absent value scores 0.0", func(t *testing.T) {
		calc := newCalculator(t, models.FieldComparisonSpec{
			Field: "email", Comparator: comparators.Exact, Weight: 4,
		})
		score := calc.Calculate(models.Record{"email": "a@x.com"}, models.Record{})
		assert.Equal(t, 0.0, score.FieldScores[0].Similarity)
	})

	t.Run("present nil counts as absent", func(t *testing.T) {
		calc := newCalculator(t, models.FieldComparisonSpec{
			Field: "email", Comparator: comparators.Exact, Weight: 4,
		})
		score := calc.Calculate(models.Record{"email": nil}, models.Record{})
		assert.Equal(t, 1.0, score.FieldScores[0].Similarity)
	})

	t.Run("normalizers run before comparison", func(t *testing.T) {
		calc := newCalculator(t, models.FieldComparisonSpec{
			Field: "phone", Comparator: comparators.Exact, Weight: 5, Normalizers: []string{"nphone"},
		})
		score := calc.Calculate(
			models.Record{"phone": "+1 (555) 123-4567"},
			models.Record{"phone": "555.123.4567"},
		)
		fs := score.FieldScores[0]
		assert.Equal(t, 0.0, fs.Similarity) // country code differs after digit extraction
		require.NotNil(t, fs.NormalizedA)
		assert.Equal(t, "15551234567", *fs.NormalizedA)
		require.NotNil(t, fs.NormalizedB)
		assert.Equal(t, "5551234567", *fs.NormalizedB)
	})

	t.Run("unknown normalizer falls back to the raw value", func(t *testing.T) {
		calc := newCalculator(t, models.FieldComparisonSpec{
			Field: "name", Comparator: comparators.Exact, Weight: 5, Normalizers: []string{"missing"},
		})
		score := calc.Calculate(models.Record{"name": "Alice"}, models.Record{"name": "Alice"})
		assert.Equal(t, 1.0, score.FieldScores[0].Similarity)
	})

	t.Run("nested field paths resolve", func(t *testing.T) {
		calc := newCalculator(t, models.FieldComparisonSpec{
			Field: "address.city", Comparator: comparators.Exact, Weight: 3,
		})
		score := calc.Calculate(
			models.Record{"address": map[string]any{"city": "Portland"}},
			models.Record{"address": map[string]any{"city": "portland"}},
		)
		assert.Equal(t, 1.0, score.FieldScores[0].Similarity)
	})
}

func TestClassify(t *testing.T) {
	thresholds := models.MatchThresholds{NoMatchBelow: 20, DefiniteMatchFrom: 45}

	t.Run("score at definite threshold is a definite match", func(t *testing.T) {
		assert.Equal(t, models.OutcomeDefiniteMatch, Classify(45, thresholds))
	})

	t.Run("score just below definite threshold is a potential match", func(t *testing.T) {
		assert.Equal(t, models.OutcomePotentialMatch, Classify(44.999, thresholds))
	})

	t.Run("score at no-match threshold is a potential match", func(t *testing.T) {
		assert.Equal(t, models.OutcomePotentialMatch, Classify(20, thresholds))
	})

	t.Run("score below no-match threshold is no match", func(t *testing.T) {
		assert.Equal(t, models.OutcomeNoMatch, Classify(19.999, thresholds))
	})

	t.Run("monotonic over increasing scores", func(t *testing.T) {
		rank := func(o models.MatchOutcome) int {
			switch o {
			case models.OutcomeNoMatch:
				return 0
			case models.OutcomePotentialMatch:
				return 1
			default:
				return 2
			}
		}
		prev := -1
		for _, s := range []float64{0, 10, 19.999, 20, 30, 44.999, 45, 60} {
			r := rank(Classify(s, thresholds))
			assert.GreaterOrEqual(t, r, prev)
			prev = r
		}
	})
}
