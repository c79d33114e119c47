package provenance

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

const columns = "id, tenant_id, golden_record_id, source_record_ids, field_strategies, queue_item_id, merged_by, merged_at, unmerged, unmerged_at, unmerged_by, unmerge_reason"

// Repository handles provenance persistence. Provenance rows are append
// plus a single unmerge mutation; they are never deleted.
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new provenance repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create persists the provenance produced alongside a golden record
func (r *Repository) Create(ctx context.Context, prov *models.Provenance) error {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":           "Create",
		"tenant_id":        prov.TenantID,
		"golden_record_id": prov.GoldenRecordID,
	})

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("provenance")
	sb.Cols("id", "tenant_id", "golden_record_id", "source_record_ids", "field_strategies", "queue_item_id", "merged_by", "merged_at", "unmerged")
	sb.Values(prov.ID, prov.TenantID, prov.GoldenRecordID, prov.SourceRecordIDs, prov.FieldStrategies, prov.QueueItemID, prov.MergedBy, prov.MergedAt, prov.Unmerged)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create provenance")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to create provenance")
	}

	log.Info("Created provenance")
	return nil
}

// GetByGoldenID retrieves the provenance for a golden record
func (r *Repository) GetByGoldenID(ctx context.Context, tenantID, goldenRecordID string) (*models.Provenance, error) {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.GetByGoldenID")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("provenance")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("golden_record_id", goldenRecordID),
	)
	sb.OrderBy("merged_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var prov models.Provenance
	if err := r.db.GetContext(ctx, &prov, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get provenance")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get provenance")
	}

	return &prov, nil
}

// MarkUnmerged sets the unmerge fields on a provenance row. Fails when
// the row is already marked, which keeps the reversal exactly-once.
func (r *Repository) MarkUnmerged(ctx context.Context, tenantID, provenanceID string, at time.Time, by, reason string) error {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.MarkUnmerged")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("provenance")
	sb.Set(
		sb.Assign("unmerged", true),
		sb.Assign("unmerged_at", at),
		sb.Assign("unmerged_by", by),
		sb.Assign("unmerge_reason", reason),
	)
	sb.Where(
		sb.Equal("id", provenanceID),
		sb.Equal("tenant_id", tenantID),
		sb.Equal("unmerged", false),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to mark provenance unmerged")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to mark provenance unmerged")
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("provenance %s already unmerged", provenanceID))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"provenance_id": provenanceID,
		"unmerged_by":   by,
	}).Info("Marked provenance unmerged")
	return nil
}

// ListByTenant retrieves provenance rows for audit, newest first
func (r *Repository) ListByTenant(ctx context.Context, tenantID string, includeUnmerged bool, page, pageSize int) ([]models.Provenance, error) {
	ctx, span := tracing.StartSpan(ctx, "provenance.Repository.ListByTenant")
	defer span.End()

	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}
	offset := (page - 1) * pageSize

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("provenance")
	where := []string{sb.Equal("tenant_id", tenantID)}
	if !includeUnmerged {
		where = append(where, sb.Equal("unmerged", false))
	}
	sb.Where(where...)
	sb.OrderBy("merged_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var rows []models.Provenance
	if err := r.db.SelectContext(ctx, &rows, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list provenance")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list provenance")
	}

	return rows, nil
}
