package resolver

import (
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/blocking"
	"github.com/Ramsey-B/clover/pkg/comparators"
	"github.com/Ramsey-B/clover/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func testConfig() Config {
	return Config{
		FieldSpecs: []models.FieldComparisonSpec{
			{Field: "name", Comparator: comparators.Levenshtein, Weight: 10},
			{Field: "email", Comparator: comparators.Exact, Weight: 20, Normalizers: []string{"nemail"}},
		},
		Thresholds: models.MatchThresholds{NoMatchBelow: 10, DefiniteMatchFrom: 25},
	}
}

func rec(id, name, email string) blocking.Record {
	return blocking.Record{ID: id, Data: models.Record{"name": name, "email": email}}
}

func TestNew(t *testing.T) {
	registry := comparators.NewRegistry()

	t.Run("valid config constructs", func(t *testing.T) {
		r, err := New(testLogger(), registry, testConfig())
		require.NoError(t, err)
		assert.NotNil(t, r)
	})

	t.Run("inverted thresholds are rejected", func(t *testing.T) {
		cfg := testConfig()
		cfg.Thresholds = models.MatchThresholds{NoMatchBelow: 50, DefiniteMatchFrom: 20}
		_, err := New(testLogger(), registry, cfg)
		assert.Error(t, err)
	})

	t.Run("zero field specs are rejected", func(t *testing.T) {
		cfg := testConfig()
		cfg.FieldSpecs = nil
		_, err := New(testLogger(), registry, cfg)
		assert.Error(t, err)
	})

	t.Run("unknown comparator is rejected", func(t *testing.T) {
		cfg := testConfig()
		cfg.FieldSpecs[0].Comparator = "nope"
		_, err := New(testLogger(), registry, cfg)
		assert.Error(t, err)
	})
}

func TestResolve(t *testing.T) {
	registry := comparators.NewRegistry()

	t.Run("matches sort descending by total score", func(t *testing.T) {
		r, err := New(testLogger(), registry, testConfig())
		require.NoError(t, err)

		candidate := rec("c", "Alice Smith", "alice@example.com")
		population := []blocking.Record{
			rec("1", "Alice Smith", "alice@example.com"), // exact on both
			rec("2", "Alicia Smith", "other@example.com"),
			rec("3", "Alice Smith", "different@example.com"),
		}

		results := r.Resolve(candidate, population)
		require.NotEmpty(t, results)
		assert.Equal(t, "1", results[0].RecordID)
		assert.Equal(t, models.OutcomeDefiniteMatch, results[0].Outcome)
		for i := 1; i < len(results); i++ {
			assert.LessOrEqual(t, results[i].Score.TotalScore, results[i-1].Score.TotalScore)
		}
	})

	t.Run("no match results are dropped by default", func(t *testing.T) {
		r, err := New(testLogger(), registry, testConfig())
		require.NoError(t, err)

		results := r.Resolve(
			rec("c", "Alice", "alice@example.com"),
			[]blocking.Record{rec("1", "Zzyzx", "nobody@nowhere.org")},
		)
		assert.Empty(t, results)
	})

	t.Run("truncates to max matches", func(t *testing.T) {
		cfg := testConfig()
		cfg.MaxMatches = 2
		r, err := New(testLogger(), registry, cfg)
		require.NoError(t, err)

		population := []blocking.Record{
			rec("1", "Alice", "alice@example.com"),
			rec("2", "Alice", "alice@example.com"),
			rec("3", "Alice", "alice@example.com"),
		}
		results := r.Resolve(rec("c", "Alice", "alice@example.com"), population)
		assert.Len(t, results, 2)
	})

	t.Run("candidate never matches itself", func(t *testing.T) {
		r, err := New(testLogger(), registry, testConfig())
		require.NoError(t, err)

		self := rec("c", "Alice", "alice@example.com")
		results := r.Resolve(self, []blocking.Record{self})
		assert.Empty(t, results)
	})

	t.Run("blocking narrows the population", func(t *testing.T) {
		cfg := testConfig()
		cfg.Blocking = &models.BlockingStrategy{
			Rules: []models.BlockingRule{{Field: "name", Transform: models.BlockingTransformFirstLetter}},
		}
		r, err := New(testLogger(), registry, cfg)
		require.NoError(t, err)

		// Same email would match, but the B block never co-blocks with A
		results := r.Resolve(
			rec("c", "Alice", "shared@example.com"),
			[]blocking.Record{rec("1", "Bob", "shared@example.com")},
		)
		assert.Empty(t, results)
	})
}

func TestDedupeBatch(t *testing.T) {
	registry := comparators.NewRegistry()

	t.Run("accumulates per-record match lists and stats", func(t *testing.T) {
		r, err := New(testLogger(), registry, testConfig())
		require.NoError(t, err)

		result := r.DedupeBatch([]blocking.Record{
			rec("1", "Alice Smith", "alice@example.com"),
			rec("2", "Alice Smith", "alice@example.com"),
			rec("3", "Bob Jones", "bob@example.com"),
		})

		assert.Equal(t, 3, result.Stats.RecordsProcessed)
		assert.Equal(t, 3, result.Stats.ComparisonsMade)
		require.Contains(t, result.Matches, "1")
		require.Contains(t, result.Matches, "2")
		assert.Equal(t, "2", result.Matches["1"][0].RecordID)
		assert.Equal(t, "1", result.Matches["2"][0].RecordID)
		assert.NotContains(t, result.Matches, "3")
		assert.Equal(t, 2, result.Stats.RecordsWithMatches)
		assert.Equal(t, 1, result.Stats.RecordsWithoutMatches)
		assert.Equal(t, 1, result.Stats.OutcomeCounts[models.OutcomeDefiniteMatch])
	})

	t.Run("bad records are collected without aborting the batch", func(t *testing.T) {
		r, err := New(testLogger(), registry, testConfig())
		require.NoError(t, err)

		result := r.DedupeBatch([]blocking.Record{
			rec("1", "Alice", "alice@example.com"),
			{ID: "", Data: models.Record{"name": "ghost"}},
			rec("1", "Duplicate ID", "dup@example.com"),
			rec("2", "Alice", "alice@example.com"),
		})

		require.NotNil(t, result.Errors)
		assert.Contains(t, result.Errors, "<missing-id>")
		assert.Contains(t, result.Errors, "1")
		require.Contains(t, result.Matches, "2")
	})

	t.Run("blocking reduces comparisons", func(t *testing.T) {
		cfg := testConfig()
		cfg.Blocking = &models.BlockingStrategy{
			Rules: []models.BlockingRule{{Field: "name", Transform: models.BlockingTransformFirstLetter}},
		}
		r, err := New(testLogger(), registry, cfg)
		require.NoError(t, err)

		result := r.DedupeBatch([]blocking.Record{
			rec("1", "Alice", "a@example.com"),
			rec("2", "Aaron", "b@example.com"),
			rec("3", "Bob", "c@example.com"),
		})

		// Only the A block pair is compared
		assert.Equal(t, 1, result.Stats.ComparisonsMade)
	})
}
