// Package unmerge reverses prior merges using provenance and archived
// source records, exactly once per golden record.
package unmerge

import (
	"context"
	"fmt"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// ProvenanceStore reads and finalizes the audit record of a merge.
// MarkUnmerged is the single permitted mutation of a provenance row.
type ProvenanceStore interface {
	GetByGoldenID(ctx context.Context, tenantID, goldenRecordID string) (*models.Provenance, error)
	MarkUnmerged(ctx context.Context, tenantID, provenanceID string, at time.Time, by, reason string) error
}

// Archive retrieves and restores the source records a merge archived
type Archive interface {
	FindByGoldenID(ctx context.Context, tenantID, goldenRecordID string) ([]models.SourceRecord, error)
	Restore(ctx context.Context, tenantID string, records []models.SourceRecord) error
}

// GoldenStore deletes golden records
type GoldenStore interface {
	Delete(ctx context.Context, tenantID, goldenRecordID string) error
}

// Executor reverses merges. The callback sequence is fixed: restore all
// archived sources, delete the golden record, mark the provenance
// unmerged. The executor guarantees ordering only; the caller supplies
// transactional semantics around the sequence.
type Executor struct {
	logger     ectologger.Logger
	provenance ProvenanceStore
	archive    Archive
	golden     GoldenStore
}

// NewExecutor creates an unmerge executor
func NewExecutor(logger ectologger.Logger, provenance ProvenanceStore, archive Archive, golden GoldenStore) *Executor {
	return &Executor{
		logger:     logger,
		provenance: provenance,
		archive:    archive,
		golden:     golden,
	}
}

// CanUnmerge reports whether a golden record can be unmerged. Failed
// preconditions come back as reviewer-facing reasons, not errors; an error
// means a store call failed.
func (e *Executor) CanUnmerge(ctx context.Context, tenantID, goldenRecordID string) (models.UnmergeCheck, error) {
	ctx, span := tracing.StartSpan(ctx, "unmerge.Executor.CanUnmerge")
	defer span.End()

	check, _, _, err := e.check(ctx, tenantID, goldenRecordID)
	return check, err
}

// Unmerge reverses a merge. A golden record that fails its preconditions
// yields the check with CanUnmerge false and no result; the second call on
// the same golden record always lands in the "already unmerged" branch.
func (e *Executor) Unmerge(ctx context.Context, req models.UnmergeRequest) (*models.UnmergeResult, models.UnmergeCheck, error) {
	ctx, span := tracing.StartSpan(ctx, "unmerge.Executor.Unmerge")
	defer span.End()

	log := e.logger.WithContext(ctx).WithFields(map[string]any{
		"golden_record_id": req.GoldenRecordID,
		"requested_by":     req.RequestedBy,
	})

	check, provenance, archived, err := e.check(ctx, req.TenantID, req.GoldenRecordID)
	if err != nil {
		return nil, check, err
	}
	if !check.CanUnmerge {
		log.WithFields(map[string]any{"reasons": check.Reasons}).Info("Unmerge refused")
		return nil, check, nil
	}

	now := time.Now().UTC()

	// Fixed order: restore sources, delete golden, mark provenance
	if err := e.archive.Restore(ctx, req.TenantID, archived); err != nil {
		return nil, check, fmt.Errorf("failed to restore source records: %w", err)
	}
	if err := e.golden.Delete(ctx, req.TenantID, req.GoldenRecordID); err != nil {
		return nil, check, fmt.Errorf("failed to delete golden record: %w", err)
	}
	if err := e.provenance.MarkUnmerged(ctx, req.TenantID, provenance.ID, now, req.RequestedBy, req.Reason); err != nil {
		return nil, check, fmt.Errorf("failed to mark provenance unmerged: %w", err)
	}

	restored := make([]string, len(archived))
	for i := range archived {
		restored[i] = archived[i].ID
	}

	log.WithFields(map[string]any{"restored_count": len(restored)}).Info("Unmerged golden record")

	return &models.UnmergeResult{
		GoldenRecordID:    req.GoldenRecordID,
		RestoredRecordIDs: restored,
		UnmergedAt:        now,
		UnmergedBy:        req.RequestedBy,
	}, check, nil
}

// check evaluates every unmerge precondition and returns the loaded
// provenance and archived sources so Unmerge does not re-fetch them
func (e *Executor) check(ctx context.Context, tenantID, goldenRecordID string) (models.UnmergeCheck, *models.Provenance, []models.SourceRecord, error) {
	provenance, err := e.provenance.GetByGoldenID(ctx, tenantID, goldenRecordID)
	if err != nil {
		return models.UnmergeCheck{}, nil, nil, fmt.Errorf("failed to load provenance: %w", err)
	}

	var reasons []string
	if provenance == nil {
		reasons = append(reasons, models.UnmergeReasonNoProvenance)
		return models.UnmergeCheck{Reasons: reasons}, nil, nil, nil
	}
	if provenance.Unmerged {
		reasons = append(reasons, models.UnmergeReasonAlreadyUnmerged)
		return models.UnmergeCheck{Reasons: reasons}, provenance, nil, nil
	}

	archived, err := e.archive.FindByGoldenID(ctx, tenantID, goldenRecordID)
	if err != nil {
		return models.UnmergeCheck{}, provenance, nil, fmt.Errorf("failed to load archived sources: %w", err)
	}

	// Every source the provenance names must still be in the archive
	byID := make(map[string]bool, len(archived))
	for i := range archived {
		byID[archived[i].ID] = true
	}
	for _, id := range provenance.SourceRecordIDs {
		if !byID[id] {
			reasons = append(reasons, fmt.Sprintf("%s: %s", models.UnmergeReasonArchiveMissing, id))
		}
	}

	if len(reasons) > 0 {
		return models.UnmergeCheck{Reasons: reasons}, provenance, archived, nil
	}
	return models.UnmergeCheck{CanUnmerge: true}, provenance, archived, nil
}
