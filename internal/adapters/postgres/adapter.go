// Package postgres adapts the source record repository to the resolver's
// storage boundary.
package postgres

import (
	"context"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/internal/repositories/sourcerecord"
	"github.com/Ramsey-B/clover/pkg/blocking"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/resolver"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Adapter implements resolver.RecordAdapter against Postgres. When a
// blocking strategy is configured the blocking_keys index is kept current
// on writes; without one, key maintenance is skipped and lookups fall
// back to full scans.
type Adapter struct {
	repo     *sourcerecord.Repository
	engine   *blocking.Engine
	strategy *models.BlockingStrategy
	logger   ectologger.Logger
}

var _ resolver.RecordAdapter = (*Adapter)(nil)

// NewAdapter creates a new Postgres record adapter for one record type's
// blocking strategy. A nil strategy disables key indexing.
func NewAdapter(repo *sourcerecord.Repository, strategy *models.BlockingStrategy, logger ectologger.Logger) *Adapter {
	return &Adapter{
		repo:     repo,
		engine:   blocking.New(),
		strategy: strategy,
		logger:   logger,
	}
}

// FindAll fetches the bounded active population of a record type
func (a *Adapter) FindAll(ctx context.Context, tenantID, recordType string, limit int) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Adapter.FindAll")
	defer span.End()

	records, err := a.repo.ListActive(ctx, tenantID, recordType, limit)
	if err != nil {
		return nil, err
	}

	metrics.AdapterFetchSize.WithLabelValues(tenantID, recordType).Observe(float64(len(records)))
	return records, nil
}

// FindByBlockingKeys fetches active records co-blocked with the candidate
func (a *Adapter) FindByBlockingKeys(ctx context.Context, tenantID, recordType string, keys []string, limit int) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "postgres.Adapter.FindByBlockingKeys")
	defer span.End()

	records, err := a.repo.FindByBlockingKeys(ctx, tenantID, recordType, keys, limit)
	if err != nil {
		return nil, err
	}

	metrics.AdapterFetchSize.WithLabelValues(tenantID, recordType).Observe(float64(len(records)))
	return records, nil
}

// Count counts the active population of a record type
func (a *Adapter) Count(ctx context.Context, tenantID, recordType string) (int, error) {
	return a.repo.CountActive(ctx, tenantID, recordType)
}

// Insert stores a record and indexes its blocking keys
func (a *Adapter) Insert(ctx context.Context, record *models.SourceRecord) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Adapter.Insert")
	defer span.End()

	stored, _, err := a.repo.Upsert(ctx, record.TenantID, record)
	if err != nil {
		return err
	}
	*record = *stored

	return a.indexKeys(ctx, record)
}

// Update rewrites a record and reindexes its blocking keys
func (a *Adapter) Update(ctx context.Context, record *models.SourceRecord) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Adapter.Update")
	defer span.End()

	stored, changed, err := a.repo.Upsert(ctx, record.TenantID, record)
	if err != nil {
		return err
	}
	*record = *stored
	if !changed {
		return nil
	}

	return a.indexKeys(ctx, record)
}

// Delete removes a record and its index entries
func (a *Adapter) Delete(ctx context.Context, tenantID, id string) error {
	return a.repo.Delete(ctx, tenantID, id)
}

// BatchInsert stores many records
func (a *Adapter) BatchInsert(ctx context.Context, records []*models.SourceRecord) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Adapter.BatchInsert")
	defer span.End()

	for _, record := range records {
		if err := a.Insert(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// BatchUpdate rewrites many records
func (a *Adapter) BatchUpdate(ctx context.Context, records []*models.SourceRecord) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Adapter.BatchUpdate")
	defer span.End()

	for _, record := range records {
		if err := a.Update(ctx, record); err != nil {
			return err
		}
	}
	return nil
}

// Transaction runs fn inside a database transaction
func (a *Adapter) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	ctx, span := tracing.StartSpan(ctx, "postgres.Adapter.Transaction")
	defer span.End()

	ctxTx, tx, err := a.repo.DB().GetTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback(ctxTx)

	if err := fn(ctxTx); err != nil {
		return err
	}

	return tx.Commit(ctxTx)
}

func (a *Adapter) indexKeys(ctx context.Context, record *models.SourceRecord) error {
	if a.strategy == nil {
		return nil
	}

	data, err := record.ParseData()
	if err != nil {
		return err
	}

	keys := a.engine.KeysFor(data, *a.strategy)
	if err := a.repo.ReplaceBlockingKeys(ctx, record.TenantID, record, keys); err != nil {
		a.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"record_id": record.ID,
		}).Error("Failed to index blocking keys")
		return err
	}

	return nil
}
