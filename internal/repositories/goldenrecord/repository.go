package goldenrecord

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"
	"github.com/huandu/go-sqlbuilder"

	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

const columns = "id, tenant_id, record_type, data, source_count, primary_source_id, version, created_at, updated_at, deleted_at"

// Repository handles golden record persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new golden record repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create persists a golden record produced by a merge
func (r *Repository) Create(ctx context.Context, golden *models.GoldenRecord) error {
	ctx, span := tracing.StartSpan(ctx, "goldenrecord.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Create",
		"tenant_id":   golden.TenantID,
		"record_type": golden.RecordType,
		"id":          golden.ID,
	})

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("golden_records")
	sb.Cols("id", "tenant_id", "record_type", "data", "source_count", "primary_source_id", "version", "created_at", "updated_at")
	sb.Values(golden.ID, golden.TenantID, golden.RecordType, []byte(golden.Data), golden.SourceCount, golden.PrimarySourceID, golden.Version, golden.CreatedAt, golden.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create golden record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create golden record")
	}

	log.Info("Created golden record")
	return nil
}

// Get retrieves a golden record by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.GoldenRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "goldenrecord.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("golden_records")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var golden models.GoldenRecord
	if err := r.db.GetContext(ctx, &golden, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("golden record %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get golden record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get golden record")
	}

	return &golden, nil
}

// GetIncludingDeleted retrieves a golden record by ID regardless of its
// deleted_at state. Unmerge needs the record type of a golden record that
// a prior unmerge already soft deleted.
func (r *Repository) GetIncludingDeleted(ctx context.Context, tenantID string, id string) (*models.GoldenRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "goldenrecord.Repository.GetIncludingDeleted")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("golden_records")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var golden models.GoldenRecord
	if err := r.db.GetContext(ctx, &golden, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("golden record %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get golden record")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get golden record")
	}

	return &golden, nil
}

// List retrieves golden records for a tenant and record type
func (r *Repository) List(ctx context.Context, tenantID string, recordType *string, page, pageSize int) ([]models.GoldenRecord, int, error) {
	ctx, span := tracing.StartSpan(ctx, "goldenrecord.Repository.List")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	countSb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	countSb.Select("COUNT(*)")
	countSb.From("golden_records")
	countWhere := []string{
		countSb.Equal("tenant_id", tenantID),
		countSb.IsNull("deleted_at"),
	}
	if recordType != nil {
		countWhere = append(countWhere, countSb.Equal("record_type", *recordType))
	}
	countSb.Where(countWhere...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count golden records")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count golden records")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("golden_records")
	where := []string{
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	}
	if recordType != nil {
		where = append(where, sb.Equal("record_type", *recordType))
	}
	sb.Where(where...)
	sb.OrderBy("created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var records []models.GoldenRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list golden records")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list golden records")
	}

	return records, totalCount, nil
}

// Delete soft-deletes a golden record. Used by unmerge; the provenance
// row keeps the audit trail.
func (r *Repository) Delete(ctx context.Context, tenantID string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "goldenrecord.Repository.Delete")
	defer span.End()

	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("golden_records")
	sb.Set(
		sb.Assign("deleted_at", now),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete golden record")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete golden record")
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("golden record %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted golden record")
	return nil
}
