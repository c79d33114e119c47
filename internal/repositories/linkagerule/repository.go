package linkagerule

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
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// Repository handles linkage rule persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new linkage rule repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Create creates a new linkage rule
func (r *Repository) Create(ctx context.Context, tenantID string, req models.CreateLinkageRuleRequest) (*models.LinkageRule, error) {
	ctx, span := tracing.StartSpan(ctx, "linkagerule.Repository.Create")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Create",
		"tenant_id":   tenantID,
		"record_type": req.RecordType,
		"name":        req.Name,
	})

	id := uuid.New().String()
	now := time.Now().UTC()

	rule := &models.LinkageRule{
		ID:                id,
		TenantID:          tenantID,
		RecordType:        req.RecordType,
		Name:              req.Name,
		Description:       req.Description,
		IsActive:          req.IsActive,
		FieldSpecs:        req.FieldSpecs,
		Blocking:          req.Blocking,
		NoMatchBelow:      req.NoMatchBelow,
		DefiniteMatchFrom: req.DefiniteMatchFrom,
		CreatedAt:         now,
		UpdatedAt:         now,
	}

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("linkage_rules")
	sb.Cols("id", "tenant_id", "record_type", "name", "description", "is_active", "field_specs", "blocking", "no_match_below", "definite_match_from", "created_at", "updated_at")
	sb.Values(rule.ID, rule.TenantID, rule.RecordType, rule.Name, rule.Description, rule.IsActive, []byte(rule.FieldSpecs), []byte(rule.Blocking), rule.NoMatchBelow, rule.DefiniteMatchFrom, rule.CreatedAt, rule.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to create linkage rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to create linkage rule")
	}

	log.WithFields(map[string]any{"id": id}).Info("Created linkage rule")
	return rule, nil
}

// Get retrieves a linkage rule by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.LinkageRule, error) {
	ctx, span := tracing.StartSpan(ctx, "linkagerule.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "record_type", "name", "description", "is_active", "field_specs", "blocking", "no_match_below", "definite_match_from", "created_at", "updated_at", "deleted_at")
	sb.From("linkage_rules")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	var rule models.LinkageRule
	if err := r.db.GetContext(ctx, &rule, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("linkage rule %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get linkage rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get linkage rule")
	}

	return &rule, nil
}

// GetActiveByRecordType retrieves the active linkage rule for a record type.
// At most one rule per record type is active at a time.
func (r *Repository) GetActiveByRecordType(ctx context.Context, tenantID, recordType string) (*models.LinkageRule, error) {
	ctx, span := tracing.StartSpan(ctx, "linkagerule.Repository.GetActiveByRecordType")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "record_type", "name", "description", "is_active", "field_specs", "blocking", "no_match_below", "definite_match_from", "created_at", "updated_at", "deleted_at")
	sb.From("linkage_rules")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("record_type", recordType),
		sb.Equal("is_active", true),
		sb.IsNull("deleted_at"),
	)
	sb.OrderBy("updated_at DESC")
	sb.Limit(1)

	query, args := sb.Build()
	var rule models.LinkageRule
	if err := r.db.GetContext(ctx, &rule, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("no active linkage rule for record type %s", recordType))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get active linkage rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get active linkage rule")
	}

	return &rule, nil
}

// List retrieves linkage rules for a tenant, optionally filtered by record type
func (r *Repository) List(ctx context.Context, tenantID string, recordType *string, page, pageSize int) ([]models.LinkageRule, int, error) {
	ctx, span := tracing.StartSpan(ctx, "linkagerule.Repository.List")
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
	countSb.From("linkage_rules")
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
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count linkage rules")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count linkage rules")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("id", "tenant_id", "record_type", "name", "description", "is_active", "field_specs", "blocking", "no_match_below", "definite_match_from", "created_at", "updated_at", "deleted_at")
	sb.From("linkage_rules")
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
	var rules []models.LinkageRule
	if err := r.db.SelectContext(ctx, &rules, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list linkage rules")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list linkage rules")
	}

	return rules, totalCount, nil
}

// Update updates a linkage rule
func (r *Repository) Update(ctx context.Context, tenantID string, id string, req models.UpdateLinkageRuleRequest) (*models.LinkageRule, error) {
	ctx, span := tracing.StartSpan(ctx, "linkagerule.Repository.Update")
	defer span.End()

	existing, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}

	if req.Name != nil {
		existing.Name = *req.Name
	}
	if req.Description != nil {
		existing.Description = req.Description
	}
	if req.IsActive != nil {
		existing.IsActive = *req.IsActive
	}
	if req.FieldSpecs != nil {
		existing.FieldSpecs = req.FieldSpecs
	}
	if req.Blocking != nil {
		existing.Blocking = req.Blocking
	}
	if req.NoMatchBelow != nil {
		existing.NoMatchBelow = *req.NoMatchBelow
	}
	if req.DefiniteMatchFrom != nil {
		existing.DefiniteMatchFrom = *req.DefiniteMatchFrom
	}
	if existing.DefiniteMatchFrom < existing.NoMatchBelow {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "definite_match_from must not be below no_match_below")
	}
	existing.UpdatedAt = time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("linkage_rules")
	sb.Set(
		sb.Assign("name", existing.Name),
		sb.Assign("description", existing.Description),
		sb.Assign("is_active", existing.IsActive),
		sb.Assign("field_specs", []byte(existing.FieldSpecs)),
		sb.Assign("blocking", []byte(existing.Blocking)),
		sb.Assign("no_match_below", existing.NoMatchBelow),
		sb.Assign("definite_match_from", existing.DefiniteMatchFrom),
		sb.Assign("updated_at", existing.UpdatedAt),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.IsNull("deleted_at"),
	)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to update linkage rule")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to update linkage rule")
	}

	return existing, nil
}

// Delete soft-deletes a linkage rule
func (r *Repository) Delete(ctx context.Context, tenantID string, id string) error {
	ctx, span := tracing.StartSpan(ctx, "linkagerule.Repository.Delete")
	defer span.End()

	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("linkage_rules")
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
		r.logger.WithContext(ctx).WithError(err).Error("Failed to delete linkage rule")
		return httperror.NewHTTPError(http.StatusInternalServerError, "failed to delete linkage rule")
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("linkage rule %s not found", id))
	}

	r.logger.WithContext(ctx).WithFields(map[string]any{"id": id}).Info("Deleted linkage rule")
	return nil
}
