package reviewqueue

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

const columns = "id, tenant_id, record_type, candidate_record_id, matched_record_id, score, score_details, status, created_at, updated_at, resolved_at, resolved_by, notes"

// Repository handles review queue persistence
type Repository struct {
	db     database.DB
	logger ectologger.Logger
}

// NewRepository creates a new review queue repository
func NewRepository(db database.DB, logger ectologger.Logger) *Repository {
	return &Repository{
		db:     db,
		logger: logger,
	}
}

// Enqueue adds a potential match for review. A pending item for the same
// pair is reused rather than duplicated.
func (r *Repository) Enqueue(ctx context.Context, tenantID string, item *models.ReviewQueueItem) (*models.ReviewQueueItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Enqueue")
	defer span.End()

	log := r.logger.WithContext(ctx).WithFields(map[string]any{
		"method":      "Enqueue",
		"tenant_id":   tenantID,
		"record_type": item.RecordType,
	})

	existing, err := r.findPending(ctx, tenantID, item.CandidateRecordID, item.MatchedRecordID)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		now := time.Now().UTC()
		sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
		sb.Update("review_queue")
		sb.Set(
			sb.Assign("score", item.Score),
			sb.Assign("score_details", item.ScoreDetails),
			sb.Assign("updated_at", now),
		)
		sb.Where(
			sb.Equal("id", existing.ID),
			sb.Equal("tenant_id", tenantID),
		)

		query, args := sb.Build()
		if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
			log.WithError(err).Error("Failed to refresh review queue item")
			return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to enqueue review item")
		}

		existing.Score = item.Score
		existing.ScoreDetails = item.ScoreDetails
		existing.UpdatedAt = now
		return existing, nil
	}

	now := time.Now().UTC()
	item.ID = uuid.New().String()
	item.TenantID = tenantID
	item.Status = models.ReviewStatusPending
	item.CreatedAt = now
	item.UpdatedAt = now

	sb := sqlbuilder.PostgreSQL.NewInsertBuilder()
	sb.InsertInto("review_queue")
	sb.Cols("id", "tenant_id", "record_type", "candidate_record_id", "matched_record_id", "score", "score_details", "status", "created_at", "updated_at")
	sb.Values(item.ID, item.TenantID, item.RecordType, item.CandidateRecordID, item.MatchedRecordID, item.Score, item.ScoreDetails, item.Status, item.CreatedAt, item.UpdatedAt)

	query, args := sb.Build()
	if _, err := r.db.ExecContext(ctx, query, args...); err != nil {
		log.WithError(err).Error("Failed to enqueue review item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to enqueue review item")
	}

	log.WithFields(map[string]any{"id": item.ID, "score": item.Score}).Info("Enqueued potential match for review")
	return item, nil
}

func (r *Repository) findPending(ctx context.Context, tenantID, candidateID, matchedID string) (*models.ReviewQueueItem, error) {
	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("review_queue")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("candidate_record_id", candidateID),
		sb.Equal("matched_record_id", matchedID),
		sb.Equal("status", models.ReviewStatusPending),
	)
	sb.Limit(1)

	query, args := sb.Build()
	var item models.ReviewQueueItem
	if err := r.db.GetContext(ctx, &item, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, nil
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to look up pending review item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to look up pending review item")
	}

	return &item, nil
}

// Get retrieves a review queue item by ID
func (r *Repository) Get(ctx context.Context, tenantID string, id string) (*models.ReviewQueueItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Get")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("review_queue")
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
	)

	query, args := sb.Build()
	var item models.ReviewQueueItem
	if err := r.db.GetContext(ctx, &item, query, args...); err != nil {
		if err.Error() == "sql: no rows in result set" {
			return nil, httperror.NewHTTPError(http.StatusNotFound, fmt.Sprintf("review queue item %s not found", id))
		}
		r.logger.WithContext(ctx).WithError(err).Error("Failed to get review queue item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to get review queue item")
	}

	return &item, nil
}

// List retrieves review queue items filtered by status, newest first
func (r *Repository) List(ctx context.Context, tenantID string, status *string, recordType *string, page, pageSize int) ([]models.ReviewQueueItem, int, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.List")
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
	countSb.From("review_queue")
	countWhere := []string{countSb.Equal("tenant_id", tenantID)}
	if status != nil {
		countWhere = append(countWhere, countSb.Equal("status", *status))
	}
	if recordType != nil {
		countWhere = append(countWhere, countSb.Equal("record_type", *recordType))
	}
	countSb.Where(countWhere...)

	countQuery, countArgs := countSb.Build()
	var totalCount int
	if err := r.db.GetContext(ctx, &totalCount, countQuery, countArgs...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count review queue items")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count review queue items")
	}

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select(columns)
	sb.From("review_queue")
	where := []string{sb.Equal("tenant_id", tenantID)}
	if status != nil {
		where = append(where, sb.Equal("status", *status))
	}
	if recordType != nil {
		where = append(where, sb.Equal("record_type", *recordType))
	}
	sb.Where(where...)
	sb.OrderBy("score DESC", "created_at DESC")
	sb.Limit(pageSize).Offset(offset)

	query, args := sb.Build()
	var items []models.ReviewQueueItem
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to list review queue items")
		return nil, 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to list review queue items")
	}

	return items, totalCount, nil
}

// Resolve records a reviewer's decision on a pending item. Only pending
// items can be resolved.
func (r *Repository) Resolve(ctx context.Context, tenantID string, id string, status string, resolvedBy string, notes *string) (*models.ReviewQueueItem, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.Resolve")
	defer span.End()

	item, err := r.Get(ctx, tenantID, id)
	if err != nil {
		return nil, err
	}
	if item.Status != models.ReviewStatusPending {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("review queue item %s is already %s", id, item.Status))
	}

	now := time.Now().UTC()

	sb := sqlbuilder.PostgreSQL.NewUpdateBuilder()
	sb.Update("review_queue")
	sb.Set(
		sb.Assign("status", status),
		sb.Assign("resolved_at", now),
		sb.Assign("resolved_by", resolvedBy),
		sb.Assign("notes", notes),
		sb.Assign("updated_at", now),
	)
	sb.Where(
		sb.Equal("id", id),
		sb.Equal("tenant_id", tenantID),
		sb.Equal("status", models.ReviewStatusPending),
	)

	query, args := sb.Build()
	result, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to resolve review queue item")
		return nil, httperror.NewHTTPError(http.StatusInternalServerError, "failed to resolve review queue item")
	}

	rows, err := result.RowsAffected()
	if err == nil && rows == 0 {
		return nil, httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("review queue item %s is no longer pending", id))
	}

	item.Status = status
	item.ResolvedAt = &now
	item.ResolvedBy = &resolvedBy
	item.Notes = notes
	item.UpdatedAt = now

	r.logger.WithContext(ctx).WithFields(map[string]any{
		"id":     id,
		"status": status,
	}).Info("Resolved review queue item")
	return item, nil
}

// CountPending counts pending items for queue depth metrics
func (r *Repository) CountPending(ctx context.Context, tenantID, recordType string) (int, error) {
	ctx, span := tracing.StartSpan(ctx, "reviewqueue.Repository.CountPending")
	defer span.End()

	sb := sqlbuilder.PostgreSQL.NewSelectBuilder()
	sb.Select("COUNT(*)")
	sb.From("review_queue")
	sb.Where(
		sb.Equal("tenant_id", tenantID),
		sb.Equal("record_type", recordType),
		sb.Equal("status", models.ReviewStatusPending),
	)

	query, args := sb.Build()
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		r.logger.WithContext(ctx).WithError(err).Error("Failed to count pending review queue items")
		return 0, httperror.NewHTTPError(http.StatusInternalServerError, "failed to count pending review queue items")
	}

	return count, nil
}
