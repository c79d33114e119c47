package sourcerecord

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/google/uuid"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/fingerprint"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const columns = "id, tenant_id, record_type, integration, data, fingerprint, golden_record_id, archived_at, created_at, updated_at"

// Repository handles source record persistence. Blocking keys live in a
// side table so candidate lookups can hit an index instead of scanning
// record payloads.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new source record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// DB exposes the underlying database handle for transaction control
func (r *Repository) DB() database.DB {
	return r.db
}

// Upsert inserts a source record or updates it when the payload changed.
// Records whose fingerprint is unchanged are left untouched so downstream
// consumers do not see no-op updates.
func (r *Repository) Upsert(ctx context.Context, tenantID string, record *models.SourceRecord) (*models.SourceRecord, bool, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.Upsert")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Upsert",
		"tenant_id":   tenantID,
		"record_type": record.RecordType,
		"integration": record.Integration,
	})

	now := time.Now().UTC()
	if record.ID == "" {
		record.ID = uuid.New().String()
	}
	record.TenantID = tenantID

	if record.Fingerprint == "" {
		fp, err := fingerprint.GenerateFromJSON(record.Data)
		if err != nil {
			return nil, false, httperror.NewHTTPError(http.StatusBadRequest, "record data is not valid JSON")
		}
		record.Fingerprint = fp
	}

	existing, err := r.Get(ctx, tenantID, record.ID)
	if err == nil {
		if existing.Fingerprint == record.Fingerprint {
			return existing, false, nil
		}

		sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		sb.Update("source_records")
		sb.Set(
			sb.Assign("data", []byte(record.Data)),
			sb.Assign("fingerprint", record.Fingerprint),
			sb.Assign("integration", record.Integration),
			sb.Assign("updated_at", now),
		)
		sb.Where(
			sb.Equal("id", record.ID),
			sb.Equal("tenant_id", tenantID),
		)

		query, args := sb.Build()
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("Failed to update source record")
			return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update source record")
		}

		existing.Data = record.Data
		existing.Fingerprint = record.Fingerprint
		existing.Integration = record.Integration
		existing.UpdatedAt = now
		return existing, true, nil
	}
	if !httperror.IsHTTPError(err) || httperror.GetStatusCode(err) != http.StatusNotFound {
		return nil, false, err
	}

	record.CreatedAt = now
	record.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("source_records")
	sb.Cols("id", "tenant_id", "record_type", "integration", "data", "fingerprint", "created_at", "updated_at")
	sb.Values(record.ID, record.TenantID, record.RecordType, record.Integration, []byte(record.Data), record.Fingerprint, record.CreatedAt, record.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to insert source record")
		return nil, false, httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert source record")
	}

	log.WithFields(map[string]any{"id": record.ID}).Info("Inserted source record")
	return record, true, nil
}

// Get retrieves a source record by ID, archived or not
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("source_records")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var record models.SourceRecord
	if err := r.db.GetContext(ctx, &record, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("source record %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get source record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get source record")
	}

	return &record, nil
}

// ListActive retrieves non-archived source records of a record type
func (r *Repository) ListActive(ctx context.Context, tenantID, recordType string, limit int) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.ListActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("source_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("record_type", recordType),
		sb.IsNull("archived_at"),
	)
	sb.OrderBy("created_at ASC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var records []models.SourceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list source records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list source records")
	}

	return records, nil
}

// CountActive counts non-archived source records of a record type
func (r *Repository) CountActive(ctx context.Context, tenantID, recordType string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.CountActive")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("source_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("record_type", recordType),
		sb.IsNull("archived_at"),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count source records")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count source records")
	}

	return count, nil
}

// GetByIDs retrieves multiple source records by id
func (r *Repository) GetByIDs(ctx context.Context, tenantID string, ids []string) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.GetByIDs")
	defer span.End()

	if len(ids) == 0 {
		return nil, nil
	}

	anyIDs := make([]any, len(ids))
	for i, id := range ids {
		anyIDs[i] = id
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("source_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("id", anyIDs...),
	)

	query, args := sb.Build()
	var records []models.SourceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get source records by ids")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get source records")
	}

	return records, nil
}

// ReplaceBlockingKeys replaces the indexed blocking keys for a record
func (r *Repository) ReplaceBlockingKeys(ctx context.Context, tenantID string, record *models.SourceRecord, keys []string) error {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.ReplaceBlockingKeys")
	defer span.End()

	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom("blocking_keys")
	del.Where(
		del.Equal("tenant_id", tenantID),
		del.Equal("record_id", record.ID),
	)

	query, args := del.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to clear blocking keys")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to clear blocking keys")
	}

	if len(keys) == 0 {
		return nil
	}

	// a strategy can emit the same key twice for one record
	ins := database.NewInsertBuilder()
	ins.InsertInto("blocking_keys")
	ins.Cols("tenant_id", "record_type", "record_id", "block_key")
	for _, key := range keys {
		ins.Values(tenantID, record.RecordType, record.ID, key)
	}
	ins.OnConflictDoNothing()

	query, args = ins.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to insert blocking keys")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to insert blocking keys")
	}

	return nil
}

// FindByBlockingKeys retrieves non-archived records sharing any of the
// given blocking keys
func (r *Repository) FindByBlockingKeys(ctx context.Context, tenantID, recordType string, keys []string, limit int) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.FindByBlockingKeys")
	defer span.End()

	if len(keys) == 0 {
		return nil, nil
	}

	anyKeys := make([]any, len(keys))
	for i, key := range keys {
		anyKeys[i] = key
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("DISTINCT sr.id, sr.tenant_id, sr.record_type, sr.integration, sr.data, sr.fingerprint, sr.golden_record_id, sr.archived_at, sr.created_at, sr.updated_at")
	sb.From("source_records sr")
	sb.JoinWithOption(sqlbuilder.InnerJoin, "blocking_keys bk", "bk.record_id = sr.id AND bk.tenant_id = sr.tenant_id")
	sb.Where(
		sb.Equal("sr.tenant_id", tenantID),
		sb.Equal("sr.record_type", recordType),
		sb.In("bk.block_key", anyKeys...),
		sb.IsNull("sr.archived_at"),
	)
	sb.OrderBy("sr.created_at ASC")
	if limit > 0 {
		sb.Limit(limit)
	}

	query, args := sb.Build()
	var records []models.SourceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find records by blocking keys")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find records by blocking keys")
	}

	return records, nil
}

// Archive marks records as consumed by a merge. Their payloads stay
// intact so an unmerge can restore them verbatim.
func (r *Repository) Archive(ctx context.Context, tenantID string, ids []string, goldenRecordID string) error {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.Archive")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	anyIDs := make([]any, len(ids))
	for i, id := range ids {
		anyIDs[i] = id
	}
	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("source_records")
	sb.Set(
		sb.Assign("golden_record_id", goldenRecordID),
		sb.Assign("archived_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("id", anyIDs...),
		sb.IsNull("archived_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to archive source records")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to archive source records")
	}

	rows, err := result.RowsAffected()
	if err == nil && int(rows) != len(ids) {
		return httperror.NewHTTPError(http.StatusConflict, "some source records were already archived")
	}

	return nil
}

// FindArchivedByGoldenID retrieves the archived records consumed by a merge
func (r *Repository) FindArchivedByGoldenID(ctx context.Context, tenantID, goldenRecordID string) ([]models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.FindArchivedByGoldenID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("source_records")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("golden_record_id", goldenRecordID),
		sb.IsNotNull("archived_at"),
	)
	sb.OrderBy("created_at ASC")

	query, args := sb.Build()
	var records []models.SourceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to find archived source records")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to find archived source records")
	}

	return records, nil
}

// Restore reactivates archived records after an unmerge
func (r *Repository) Restore(ctx context.Context, tenantID string, ids []string) error {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.Restore")
	defer span.End()

	if len(ids) == 0 {
		return nil
	}

	anyIDs := make([]any, len(ids))
	for i, id := range ids {
		anyIDs[i] = id
	}
	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("source_records")
	sb.Set(
		"golden_record_id = NULL",
		"archived_at = NULL",
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.In("id", anyIDs...),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to restore source records")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to restore source records")
	}

	return nil
}

// Delete removes a source record and its blocking keys
func (r *Repository) Delete(ctx context.Context, tenantID string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "sourcerecord.Repository.Delete")
	defer span.End()

	delKeys := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	delKeys.DeleteFrom("blocking_keys")
	delKeys.Where(
		delKeys.Equal("tenant_id", tenantID),
		delKeys.Equal("record_id", id),
	)

	query, args := delKeys.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete blocking keys")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete source record")
	}

	del := sqlbuilder.PostgreSQL.NewDeleteBuilder()
	del.DeleteFrom("source_records")
	del.Where(
		del.Equal("tenant_id", tenantID),
		del.Equal("id", id),
	)

	query, args = del.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete source record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete source record")
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("source record %s not found", id))
	}

	return nil
}
