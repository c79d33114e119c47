// Package merging builds golden records from confirmed-duplicate source
// record groups, recording provenance for every merge.
package merging

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"time"

	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Executor merges source record groups into golden records. Stateless;
// persistence of the result belongs to the caller, which must write golden
// record and provenance in one transaction.
type Executor struct {
	logger   ectologger.Logger
	registry *Registry
}

// NewExecutor creates a merge executor backed by a strategy registry
func NewExecutor(logger ectologger.Logger, registry *Registry) *Executor {
	return &Executor{logger: logger, registry: registry}
}

// Merge applies per-field strategies across the source records, in the
// order given by the caller, and produces the golden record together with
// its provenance. The two are built atomically: no error path returns one
// without the other.
func (e *Executor) Merge(ctx context.Context, sources []models.SourceRecord, spec models.MergeSpec) (*models.MergeResult, error) {
	_, span := tracing.StartSpan(ctx, "merging.Executor.Merge")
	defer span.End()

	if len(sources) == 0 {
		return nil, fmt.Errorf("at least one source record is required")
	}

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":    spec.TenantID,
		"record_type":  spec.RecordType,
		"source_count": len(sources),
	})

	defaultStrategy := spec.DefaultStrategy
	if defaultStrategy == "" {
		defaultStrategy = models.MergeStrategyPreferNonEmpty
	}
	if !e.registry.Has(defaultStrategy) {
		return nil, fmt.Errorf("unknown default merge strategy %q", defaultStrategy)
	}

	conflictPolicy := spec.ConflictPolicy
	if conflictPolicy == "" {
		conflictPolicy = models.ConflictPolicyUseDefault
	}

	strategyByField := make(map[string]models.FieldMergeStrategy, len(spec.FieldStrategies))
	for _, fs := range spec.FieldStrategies {
		if !e.registry.Has(fs.Strategy) {
			return nil, fmt.Errorf("field %q: unknown merge strategy %q", fs.Field, fs.Strategy)
		}
		strategyByField[fs.Field] = fs
	}

	priorities := make(map[string]int, len(spec.SourcePriorities))
	for _, sp := range spec.SourcePriorities {
		priorities[sp.Integration] = sp.Priority
	}

	parsed := make([]models.Record, len(sources))
	for i := range sources {
		data, err := sources[i].ParseData()
		if err != nil {
			return nil, err
		}
		parsed[i] = data
	}

	mergedData := make(models.Record)
	appliedStrategies := make(models.StrategyMap)
	var conflicts []models.MergeConflict

	for _, field := range fieldUnion(parsed) {
		values := collectValues(field, sources, parsed, priorities)
		if len(values) == 0 {
			continue
		}

		fieldStrategy, hasOverride := strategyByField[field]
		strategyName := defaultStrategy
		opts := Options{Priorities: priorities}
		if hasOverride {
			strategyName = fieldStrategy.Strategy
			opts.MaxItems = fieldStrategy.MaxItems
			opts.Dedup = fieldStrategy.Dedup
		}

		strategy, err := e.registry.Get(strategyName)
		if err != nil {
			return nil, err
		}

		value, ok := strategy(values, opts)
		if !ok {
			switch conflictPolicy {
			case models.ConflictPolicyFail:
				return nil, fmt.Errorf("strategy %q produced no value for field %q", strategyName, field)
			case models.ConflictPolicyLeaveUnset:
				continue
			default:
				if strategyName == defaultStrategy {
					continue
				}
				fallback, ferr := e.registry.Get(defaultStrategy)
				if ferr != nil {
					return nil, ferr
				}
				value, ok = fallback(values, Options{Priorities: priorities})
				if !ok {
					continue
				}
				strategyName = defaultStrategy
			}
		}

		if conflict := detectConflict(field, values); conflict != nil {
			conflict.Resolution = string(strategyName)
			conflict.ResolvedValue = value
			conflicts = append(conflicts, *conflict)
		}

		mergedData[field] = value
		appliedStrategies[field] = string(strategyName)
	}

	dataJSON, err := json.Marshal(mergedData)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal merged data: %w", err)
	}

	now := time.Now().UTC()
	sourceIDs := make(models.StringList, len(sources))
	for i := range sources {
		sourceIDs[i] = sources[i].ID
	}
	primaryID := sources[0].ID

	golden := &models.GoldenRecord{
		ID:              uuid.New().String(),
		TenantID:        spec.TenantID,
		RecordType:      spec.RecordType,
		Data:            dataJSON,
		SourceCount:     len(sources),
		PrimarySourceID: &primaryID,
		Version:         1,
		CreatedAt:       now,
		UpdatedAt:       now,
	}

	provenance := &models.Provenance{
		ID:              uuid.New().String(),
		TenantID:        spec.TenantID,
		GoldenRecordID:  golden.ID,
		SourceRecordIDs: sourceIDs,
		FieldStrategies: appliedStrategies,
		QueueItemID:     spec.QueueItemID,
		MergedBy:        spec.MergedBy,
		MergedAt:        now,
	}

	log.WithFields(map[string]any{
		"golden_record_id": golden.ID,
		"conflict_count":   len(conflicts),
	}).Debug("Merged source records into golden record")

	return &models.MergeResult{
		GoldenRecord: golden,
		Provenance:   provenance,
		Conflicts:    conflicts,
	}, nil
}

// collectValues gathers a field's candidates in source order. When source
// priorities are configured the collection is stably reordered by rank so
// positional strategies prefer the most trusted source.
func collectValues(field string, sources []models.SourceRecord, parsed []models.Record, priorities map[string]int) []FieldValue {
	values := make([]FieldValue, 0, len(sources))
	for i := range sources {
		val, ok := parsed[i][field]
		if !ok || val == nil {
			continue
		}
		values = append(values, FieldValue{
			Value:       val,
			UpdatedAt:   sources[i].UpdatedAt,
			Integration: sources[i].Integration,
			SourceID:    sources[i].ID,
		})
	}

	if len(priorities) > 0 {
		sort.SliceStable(values, func(i, j int) bool {
			return priorities[values[i].Integration] > priorities[values[j].Integration]
		})
	}

	return values
}

// fieldUnion returns every field present in any record, sorted for
// deterministic merge output
func fieldUnion(parsed []models.Record) []string {
	seen := make(map[string]bool)
	var fields []string
	for _, data := range parsed {
		for field := range data {
			if !seen[field] {
				seen[field] = true
				fields = append(fields, field)
			}
		}
	}
	sort.Strings(fields)
	return fields
}

// detectConflict reports a conflict when candidate values disagree by
// shallow string comparison
func detectConflict(field string, values []FieldValue) *models.MergeConflict {
	if len(values) < 2 {
		return nil
	}

	first := fmt.Sprintf("%v", values[0].Value)
	allSame := true
	for _, v := range values[1:] {
		if fmt.Sprintf("%v", v.Value) != first {
			allSame = false
			break
		}
	}
	if allSame {
		return nil
	}

	conflictValues := make([]any, len(values))
	integrations := make([]string, len(values))
	for i, v := range values {
		conflictValues[i] = v.Value
		integrations[i] = v.Integration
	}

	return &models.MergeConflict{
		Field:        field,
		Values:       conflictValues,
		Integrations: integrations,
	}
}
