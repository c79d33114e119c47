package resolver

import (
	"context"
	"fmt"

	"github.com/Ramsey-B/clover/pkg/blocking"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// RecordAdapter is the storage boundary for adapter-backed resolution. All
// methods may perform I/O; the resolver awaits them sequentially and never
// retries. Retry and timeout policy belong to the implementation. No
// schema is assumed beyond a record having a stable id.
type RecordAdapter interface {
	FindAll(ctx context.Context, tenantID, recordType string, limit int) ([]models.SourceRecord, error)
	FindByBlockingKeys(ctx context.Context, tenantID, recordType string, keys []string, limit int) ([]models.SourceRecord, error)
	Count(ctx context.Context, tenantID, recordType string) (int, error)
	Insert(ctx context.Context, record *models.SourceRecord) error
	Update(ctx context.Context, record *models.SourceRecord) error
	Delete(ctx context.Context, tenantID, id string) error
	BatchInsert(ctx context.Context, records []*models.SourceRecord) error
	BatchUpdate(ctx context.Context, records []*models.SourceRecord) error
	Transaction(ctx context.Context, fn func(ctx context.Context) error) error
}

// AdapterResolver resolves candidates against a stored population instead
// of an in-memory one. The adapter fetch is the only I/O in the pipeline.
type AdapterResolver struct {
	resolver *Resolver
	adapter  RecordAdapter
	maxFetch int
}

// NewAdapterResolver wraps a resolver with a storage adapter. maxFetch
// bounds every population fetch (default 1000).
func NewAdapterResolver(resolver *Resolver, adapter RecordAdapter, maxFetch int) (*AdapterResolver, error) {
	if resolver == nil {
		return nil, fmt.Errorf("resolver is required")
	}
	if adapter == nil {
		return nil, fmt.Errorf("record adapter is required")
	}
	if maxFetch <= 0 {
		maxFetch = 1000
	}
	return &AdapterResolver{resolver: resolver, adapter: adapter, maxFetch: maxFetch}, nil
}

// Resolve fetches the candidate's population by blocking keys and scores
// against it. Without a blocking strategy the whole (bounded) population is
// fetched.
func (a *AdapterResolver) Resolve(ctx context.Context, tenantID, recordType string, candidate blocking.Record) ([]models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.AdapterResolver.Resolve")
	defer span.End()

	var (
		stored []models.SourceRecord
		err    error
	)

	keys := a.resolver.BlockingKeys(candidate.Data)
	if len(keys) > 0 {
		stored, err = a.adapter.FindByBlockingKeys(ctx, tenantID, recordType, keys, a.maxFetch)
	} else {
		stored, err = a.adapter.FindAll(ctx, tenantID, recordType, a.maxFetch)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to fetch candidate population: %w", err)
	}

	population := make([]blocking.Record, 0, len(stored))
	byID := make(map[string]*models.SourceRecord, len(stored))
	for i := range stored {
		record := &stored[i]
		data, err := record.ParseData()
		if err != nil {
			// A stored record with unreadable data cannot be scored; skip
			// it rather than failing the resolution
			continue
		}
		population = append(population, blocking.Record{ID: record.ID, Data: data})
		byID[record.ID] = record
	}

	results := a.resolver.Resolve(candidate, population)
	for i := range results {
		results[i].Record = byID[results[i].RecordID]
	}
	return results, nil
}

// DedupeStored runs batch deduplication over the stored population
func (a *AdapterResolver) DedupeStored(ctx context.Context, tenantID, recordType string) (models.BatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "resolver.AdapterResolver.DedupeStored")
	defer span.End()

	stored, err := a.adapter.FindAll(ctx, tenantID, recordType, a.maxFetch)
	if err != nil {
		return models.BatchResult{}, fmt.Errorf("failed to fetch population: %w", err)
	}

	records := make([]blocking.Record, 0, len(stored))
	parseErrors := make(map[string]string)
	for i := range stored {
		data, err := stored[i].ParseData()
		if err != nil {
			parseErrors[stored[i].ID] = fmt.Sprintf("unreadable record data: %v", err)
			continue
		}
		records = append(records, blocking.Record{ID: stored[i].ID, Data: data})
	}

	result := a.resolver.DedupeBatch(records)
	if len(parseErrors) > 0 {
		if result.Errors == nil {
			result.Errors = parseErrors
		} else {
			for id, msg := range parseErrors {
				result.Errors[id] = msg
			}
		}
		result.Stats.RecordsProcessed = len(stored)
	}
	return result, nil
}
