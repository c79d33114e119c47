package merging

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func source(id, integration string, updatedAt time.Time, data map[string]any) models.SourceRecord {
	raw, _ := json.Marshal(data)
	return models.SourceRecord{
		ID:          id,
		TenantID:    "t1",
		RecordType:  "person",
		Integration: integration,
		Data:        raw,
		UpdatedAt:   updatedAt,
	}
}

func mergedData(t *testing.T, result *models.MergeResult) map[string]any {
	t.Helper()
	var data map[string]any
	require.NoError(t, json.Unmarshal(result.GoldenRecord.Data, &data))
	return data
}

func TestMerge(t *testing.T) {
	executor := NewExecutor(testLogger(), NewRegistry())
	ctx := context.Background()
	day := 24 * time.Hour
	base := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)

	t.Run("golden record and provenance are produced together", func(t *testing.T) {
		sources := []models.SourceRecord{
			source("s1", "crm", base, map[string]any{"name": "Alice"}),
			source("s2", "billing", base.Add(day), map[string]any{"name": "Alice"}),
		}
		result, err := executor.Merge(ctx, sources, models.MergeSpec{
			TenantID: "t1", RecordType: "person", MergedBy: "reviewer@example.com",
		})
		require.NoError(t, err)
		require.NotNil(t, result.GoldenRecord)
		require.NotNil(t, result.Provenance)
		assert.Equal(t, result.GoldenRecord.ID, result.Provenance.GoldenRecordID)
		assert.Equal(t, models.StringList{"s1", "s2"}, result.Provenance.SourceRecordIDs)
		assert.Equal(t, "reviewer@example.com", result.Provenance.MergedBy)
		assert.False(t, result.Provenance.Unmerged)
		assert.Equal(t, 2, result.GoldenRecord.SourceCount)
		require.NotNil(t, result.GoldenRecord.PrimarySourceID)
		assert.Equal(t, "s1", *result.GoldenRecord.PrimarySourceID)
	})

	t.Run("zero sources are rejected", func(t *testing.T) {
		_, err := executor.Merge(ctx, nil, models.MergeSpec{})
		assert.Error(t, err)
	})

	t.Run("default strategy prefers the first non-empty value", func(t *testing.T) {
		sources := []models.SourceRecord{
			source("s1", "crm", base, map[string]any{"email": ""}),
			source("s2", "billing", base, map[string]any{"email": "a@x.com"}),
		}
		result, err := executor.Merge(ctx, sources, models.MergeSpec{TenantID: "t1"})
		require.NoError(t, err)
		assert.Equal(t, "a@x.com", mergedData(t, result)["email"])
	})

	t.Run("first strategy is deterministic over a fixed order", func(t *testing.T) {
		sources := []models.SourceRecord{
			source("s1", "crm", base.Add(day), map[string]any{"name": "Alice A"}),
			source("s2", "billing", base, map[string]any{"name": "Alice B"}),
		}
		spec := models.MergeSpec{
			TenantID:        "t1",
			FieldStrategies: []models.FieldMergeStrategy{{Field: "name", Strategy: models.MergeStrategyFirst}},
		}
		for i := 0; i < 5; i++ {
			result, err := executor.Merge(ctx, sources, spec)
			require.NoError(t, err)
			assert.Equal(t, "Alice A", mergedData(t, result)["name"])
		}
	})

	t.Run("most recent strategy follows source timestamps", func(t *testing.T) {
		sources := []models.SourceRecord{
			source("s1", "crm", base, map[string]any{"phone": "111"}),
			source("s2", "billing", base.Add(day), map[string]any{"phone": "222"}),
		}
		result, err := executor.Merge(ctx, sources, models.MergeSpec{
			TenantID:        "t1",
			FieldStrategies: []models.FieldMergeStrategy{{Field: "phone", Strategy: models.MergeStrategyMostRecent}},
		})
		require.NoError(t, err)
		assert.Equal(t, "222", mergedData(t, result)["phone"])
	})

	t.Run("collect_all flattens and dedups", func(t *testing.T) {
		sources := []models.SourceRecord{
			source("s1", "crm", base, map[string]any{"tags": []any{"a", "b"}}),
			source("s2", "billing", base, map[string]any{"tags": []any{"b", "c"}}),
		}
		result, err := executor.Merge(ctx, sources, models.MergeSpec{
			TenantID: "t1",
			FieldStrategies: []models.FieldMergeStrategy{
				{Field: "tags", Strategy: models.MergeStrategyCollectAll, Dedup: true},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, []any{"a", "b", "c"}, mergedData(t, result)["tags"])
	})

	t.Run("source priorities reorder positional strategies", func(t *testing.T) {
		sources := []models.SourceRecord{
			source("s1", "scraper", base, map[string]any{"name": "Untrusted Name"}),
			source("s2", "crm", base, map[string]any{"name": "Trusted Name"}),
		}
		result, err := executor.Merge(ctx, sources, models.MergeSpec{
			TenantID:        "t1",
			FieldStrategies: []models.FieldMergeStrategy{{Field: "name", Strategy: models.MergeStrategyFirst}},
			SourcePriorities: []models.SourcePriority{
				{Integration: "crm", Priority: 10},
				{Integration: "scraper", Priority: 1},
			},
		})
		require.NoError(t, err)
		assert.Equal(t, "Trusted Name", mergedData(t, result)["name"])
	})

	t.Run("conflicts record disagreeing values and their resolution", func(t *testing.T) {
		sources := []models.SourceRecord{
			source("s1", "crm", base, map[string]any{"city": "Portland"}),
			source("s2", "billing", base, map[string]any{"city": "Seattle"}),
		}
		result, err := executor.Merge(ctx, sources, models.MergeSpec{TenantID: "t1"})
		require.NoError(t, err)
		require.Len(t, result.Conflicts, 1)
		conflict := result.Conflicts[0]
		assert.Equal(t, "city", conflict.Field)
		assert.ElementsMatch(t, []any{"Portland", "Seattle"}, conflict.Values)
		assert.Equal(t, string(models.MergeStrategyPreferNonEmpty), conflict.Resolution)
		assert.Equal(t, "Portland", conflict.ResolvedValue)
	})

	t.Run("agreeing values are not conflicts", func(t *testing.T) {
		sources := []models.SourceRecord{
			source("s1", "crm", base, map[string]any{"city": "Portland"}),
			source("s2", "billing", base, map[string]any{"city": "Portland"}),
		}
		result, err := executor.Merge(ctx, sources, models.MergeSpec{TenantID: "t1"})
		require.NoError(t, err)
		assert.Empty(t, result.Conflicts)
	})

	t.Run("fail policy aborts when a strategy yields nothing", func(t *testing.T) {
		sources := []models.SourceRecord{
			source("s1", "crm", base, map[string]any{"age": "not a number"}),
		}
		_, err := executor.Merge(ctx, sources, models.MergeSpec{
			TenantID:        "t1",
			ConflictPolicy:  models.ConflictPolicyFail,
			FieldStrategies: []models.FieldMergeStrategy{{Field: "age", Strategy: models.MergeStrategyMax}},
		})
		assert.Error(t, err)
	})

	t.Run("leave_unset policy omits the field", func(t *testing.T) {
		sources := []models.SourceRecord{
			source("s1", "crm", base, map[string]any{"age": "not a number"}),
		}
		result, err := executor.Merge(ctx, sources, models.MergeSpec{
			TenantID:        "t1",
			ConflictPolicy:  models.ConflictPolicyLeaveUnset,
			FieldStrategies: []models.FieldMergeStrategy{{Field: "age", Strategy: models.MergeStrategyMax}},
		})
		require.NoError(t, err)
		assert.NotContains(t, mergedData(t, result), "age")
	})

	t.Run("use_default policy falls back to the default strategy", func(t *testing.T) {
		sources := []models.SourceRecord{
			source("s1", "crm", base, map[string]any{"age": "not a number"}),
		}
		result, err := executor.Merge(ctx, sources, models.MergeSpec{
			TenantID:        "t1",
			FieldStrategies: []models.FieldMergeStrategy{{Field: "age", Strategy: models.MergeStrategyMax}},
		})
		require.NoError(t, err)
		assert.Equal(t, "not a number", mergedData(t, result)["age"])
		assert.Equal(t, string(models.MergeStrategyPreferNonEmpty), result.Provenance.FieldStrategies["age"])
	})

	t.Run("unknown field strategy is rejected up front", func(t *testing.T) {
		sources := []models.SourceRecord{
			source("s1", "crm", base, map[string]any{"name": "Alice"}),
		}
		_, err := executor.Merge(ctx, sources, models.MergeSpec{
			TenantID:        "t1",
			FieldStrategies: []models.FieldMergeStrategy{{Field: "name", Strategy: "nope"}},
		})
		assert.Error(t, err)
	})

	t.Run("numeric strategies", func(t *testing.T) {
		sources := []models.SourceRecord{
			source("s1", "crm", base, map[string]any{"score": 10}),
			source("s2", "billing", base, map[string]any{"score": 30}),
		}

		for _, tc := range []struct {
			strategy models.MergeStrategyType
			want     float64
		}{
			{models.MergeStrategyMax, 30},
			{models.MergeStrategyMin, 10},
			{models.MergeStrategySum, 40},
			{models.MergeStrategyAverage, 20},
		} {
			result, err := executor.Merge(ctx, sources, models.MergeSpec{
				TenantID:        "t1",
				FieldStrategies: []models.FieldMergeStrategy{{Field: "score", Strategy: tc.strategy}},
			})
			require.NoError(t, err, tc.strategy)
			assert.Equal(t, tc.want, mergedData(t, result)["score"], tc.strategy)
		}
	})
}

func TestRegistryCustomStrategy(t *testing.T) {
	registry := NewRegistry()
	err := registry.Register("always_redacted", func(values []FieldValue, _ Options) (any, bool) {
		return "REDACTED", true
	})
	require.NoError(t, err)

	executor := NewExecutor(testLogger(), registry)
	sources := []models.SourceRecord{
		source("s1", "crm", time.Now(), map[string]any{"ssn": "123-45-6789"}),
	}
	result, err := executor.Merge(context.Background(), sources, models.MergeSpec{
		TenantID:        "t1",
		FieldStrategies: []models.FieldMergeStrategy{{Field: "ssn", Strategy: "always_redacted"}},
	})
	require.NoError(t, err)
	assert.Equal(t, "REDACTED", mergedData(t, result)["ssn"])

	t.Run("built-ins cannot be replaced", func(t *testing.T) {
		err := registry.Register(models.MergeStrategyFirst, func(values []FieldValue, _ Options) (any, bool) {
			return nil, false
		})
		assert.Error(t, err)
	})
}
