// Package linkage orchestrates the resolution pipeline end to end: rule
// loading, candidate resolution, review decisions, merges and unmerges.
package linkage

import (
	"context"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/config"
	"github.com/Ramsey-B/clover/internal/adapters/postgres"
	"github.com/Ramsey-B/clover/internal/repositories/goldenrecord"
	"github.com/Ramsey-B/clover/internal/repositories/linkagerule"
	"github.com/Ramsey-B/clover/internal/repositories/provenance"
	"github.com/Ramsey-B/clover/internal/repositories/reviewqueue"
	"github.com/Ramsey-B/clover/internal/repositories/sourcerecord"
	"github.com/Ramsey-B/clover/pkg/blocking"
	"github.com/Ramsey-B/clover/pkg/comparators"
	"github.com/Ramsey-B/clover/pkg/database"
	"github.com/Ramsey-B/clover/pkg/events"
	"github.com/Ramsey-B/clover/pkg/graph"
	"github.com/Ramsey-B/clover/pkg/merging"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/redis"
	"github.com/Ramsey-B/clover/pkg/resolver"
	"github.com/Ramsey-B/clover/pkg/tracing"
	"github.com/Ramsey-B/clover/pkg/unmerge"
)

// Service wires the resolution core to storage, locking, events and the
// graph projection. Lineage and events are optional; a nil client skips
// that side effect.
type Service struct {
	cfg        *config.Config
	logger     ectologger.Logger
	registry   *comparators.Registry
	rules      *linkagerule.Repository
	records    *sourcerecord.Repository
	goldens    *goldenrecord.Repository
	provenance *provenance.Repository
	queue      *reviewqueue.Repository
	merger     *merging.Executor
	emitter    *events.Emitter
	lineage    *graph.LineageService
	locker     *redis.Locker
}

// NewService creates the linkage service
func NewService(
	cfg *config.Config,
	logger ectologger.Logger,
	registry *comparators.Registry,
	rules *linkagerule.Repository,
	records *sourcerecord.Repository,
	goldens *goldenrecord.Repository,
	prov *provenance.Repository,
	queue *reviewqueue.Repository,
	merger *merging.Executor,
	emitter *events.Emitter,
	lineage *graph.LineageService,
	locker *redis.Locker,
) *Service {
	return &Service{
		cfg:        cfg,
		logger:     logger,
		registry:   registry,
		rules:      rules,
		records:    records,
		goldens:    goldens,
		provenance: prov,
		queue:      queue,
		merger:     merger,
		emitter:    emitter,
		lineage:    lineage,
		locker:     locker,
	}
}

// buildResolver assembles a resolver and adapter from the active rule for
// a record type
func (s *Service) buildResolver(ctx context.Context, tenantID, recordType string) (*resolver.AdapterResolver, *models.LinkageRule, error) {
	rule, err := s.rules.GetActiveByRecordType(ctx, tenantID, recordType)
	if err != nil {
		return nil, nil, err
	}

	specs, err := rule.ParseFieldSpecs()
	if err != nil {
		return nil, nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("linkage rule %s has invalid field specs", rule.ID))
	}
	strategy, err := rule.ParseBlocking()
	if err != nil {
		return nil, nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("linkage rule %s has invalid blocking strategy", rule.ID))
	}

	core, err := resolver.New(s.logger, s.registry, resolver.Config{
		FieldSpecs: specs,
		Thresholds: rule.Thresholds(),
		Blocking:   strategy,
		MaxMatches: s.cfg.MaxMatches,
	})
	if err != nil {
		return nil, nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("linkage rule %s is not usable: %v", rule.ID, err))
	}

	adapter := postgres.NewAdapter(s.records, strategy, s.logger)
	adapterResolver, err := resolver.NewAdapterResolver(core, adapter, s.cfg.MaxAdapterFetch)
	if err != nil {
		return nil, nil, err
	}

	return adapterResolver, rule, nil
}

// IngestRecord stores a source record and indexes its blocking keys under
// the active rule's strategy
func (s *Service) IngestRecord(ctx context.Context, tenantID string, record *models.SourceRecord) (*models.SourceRecord, error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.Service.IngestRecord")
	defer span.End()

	rule, err := s.rules.GetActiveByRecordType(ctx, tenantID, record.RecordType)
	var strategy *models.BlockingStrategy
	if err == nil {
		strategy, err = rule.ParseBlocking()
		if err != nil {
			return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("linkage rule %s has invalid blocking strategy", rule.ID))
		}
	} else if !httperror.IsHTTPError(err) || httperror.GetStatusCode(err) != http.StatusNotFound {
		return nil, err
	}

	adapter := postgres.NewAdapter(s.records, strategy, s.logger)
	if err := adapter.Insert(ctx, record); err != nil {
		return nil, err
	}

	return record, nil
}

// Resolve scores a candidate against the stored population. A stored
// candidate's potential matches are queued for review.
func (s *Service) Resolve(ctx context.Context, tenantID, recordType, recordID string, data models.Record) ([]models.MatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.Service.Resolve")
	defer span.End()

	started := time.Now()
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"record_type": recordType,
	})

	adapterResolver, _, err := s.buildResolver(ctx, tenantID, recordType)
	if err != nil {
		return nil, err
	}

	if recordID != "" {
		stored, err := s.records.Get(ctx, tenantID, recordID)
		if err != nil {
			return nil, err
		}
		if data, err = stored.ParseData(); err != nil {
			return nil, httperror.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("source record %s has unreadable data", recordID))
		}
	}
	if data == nil {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "either record_id or data is required")
	}

	results, err := adapterResolver.Resolve(ctx, tenantID, recordType, blocking.Record{ID: recordID, Data: data})
	if err != nil {
		return nil, err
	}

	metrics.ComparisonsTotal.WithLabelValues(tenantID, recordType).Add(float64(len(results)))
	for _, result := range results {
		metrics.OutcomesTotal.WithLabelValues(tenantID, recordType, string(result.Outcome)).Inc()
	}
	metrics.ResolutionDuration.WithLabelValues(tenantID, recordType).Observe(time.Since(started).Seconds())

	if recordID != "" {
		s.queuePotentials(ctx, tenantID, recordType, recordID, results)
	}

	log.WithFields(map[string]any{
		"matches":    len(results),
		"elapsed_ms": time.Since(started).Milliseconds(),
	}).Info("Resolved candidate")

	return results, nil
}

// Dedupe runs batch deduplication over the stored population of a record
// type. Potential matches are queued for review.
func (s *Service) Dedupe(ctx context.Context, tenantID, recordType string) (*models.BatchResult, error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.Service.Dedupe")
	defer span.End()

	started := time.Now()

	adapterResolver, _, err := s.buildResolver(ctx, tenantID, recordType)
	if err != nil {
		return nil, err
	}

	batch, err := adapterResolver.DedupeStored(ctx, tenantID, recordType)
	if err != nil {
		return nil, err
	}
	result := &batch

	metrics.ComparisonsTotal.WithLabelValues(tenantID, recordType).Add(float64(result.Stats.ComparisonsMade))
	for outcome, count := range result.Stats.OutcomeCounts {
		metrics.OutcomesTotal.WithLabelValues(tenantID, recordType, string(outcome)).Add(float64(count))
	}
	metrics.ResolutionDuration.WithLabelValues(tenantID, recordType).Observe(time.Since(started).Seconds())

	for recordID, matches := range result.Matches {
		s.queuePotentials(ctx, tenantID, recordType, recordID, matches)
	}

	if pending, err := s.queue.CountPending(ctx, tenantID, recordType); err == nil {
		metrics.ReviewQueueDepth.WithLabelValues(tenantID, recordType).Set(float64(pending))
	}

	s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"record_type": recordType,
		"records":     result.Stats.RecordsProcessed,
		"comparisons": result.Stats.ComparisonsMade,
		"elapsed_ms":  time.Since(started).Milliseconds(),
	}).Info("Completed batch deduplication")

	return result, nil
}

// queuePotentials enqueues review items for potential matches. Each pair
// is queued once, with the lexically smaller id as the candidate.
func (s *Service) queuePotentials(ctx context.Context, tenantID, recordType, recordID string, results []models.MatchResult) {
	for _, result := range results {
		if result.Outcome != models.OutcomePotentialMatch || result.RecordID == "" {
			continue
		}

		candidateID, matchedID := recordID, result.RecordID
		if matchedID < candidateID {
			candidateID, matchedID = matchedID, candidateID
		}

		item, err := s.queue.Enqueue(ctx, tenantID, &models.ReviewQueueItem{
			RecordType:        recordType,
			CandidateRecordID: candidateID,
			MatchedRecordID:   matchedID,
			Score:             result.Score.TotalScore,
			ScoreDetails:      database.JSONB[models.MatchScore]{Data: result.Score},
		})
		if err != nil {
			s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
				"candidate_record_id": candidateID,
				"matched_record_id":   matchedID,
			}).Error("Failed to queue potential match")
			continue
		}

		if s.emitter != nil {
			if err := s.emitter.EmitMatchCandidate(ctx, item); err != nil {
				s.logger.WithContext(ctx).WithError(err).Warn("Failed to emit match candidate event")
			}
		}
	}
}

// Decide applies a reviewer's decision to a queue item. Confirm and merge
// run the merge under the cluster lock; reject only marks the item.
func (s *Service) Decide(ctx context.Context, tenantID, itemID string, decision models.ReviewDecision) (*models.MergeResult, *models.ReviewQueueItem, error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.Service.Decide")
	defer span.End()

	item, err := s.queue.Get(ctx, tenantID, itemID)
	if err != nil {
		return nil, nil, err
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":     tenantID,
		"queue_item_id": itemID,
		"action":        string(decision.Action),
	})

	switch decision.Action {
	case models.DecisionActionReject:
		resolved, err := s.queue.Resolve(ctx, tenantID, itemID, models.ReviewStatusRejected, decision.Operator, notesPtr(decision.Notes))
		if err != nil {
			return nil, nil, err
		}
		if s.emitter != nil {
			if err := s.emitter.EmitMatchResolved(ctx, resolved, decision.Action); err != nil {
				log.WithError(err).Warn("Failed to emit match resolved event")
			}
		}
		log.Info("Rejected potential match")
		return nil, resolved, nil

	case models.DecisionActionConfirm, models.DecisionActionMerge:
		recordIDs := decision.RecordIDs
		if len(recordIDs) == 0 {
			recordIDs = []string{item.CandidateRecordID, item.MatchedRecordID}
		}

		result, err := s.MergeRecords(ctx, tenantID, item.RecordType, recordIDs, models.MergeSpec{
			TenantID:    tenantID,
			RecordType:  item.RecordType,
			MergedBy:    decision.Operator,
			QueueItemID: &item.ID,
		})
		if err != nil {
			return nil, nil, err
		}

		resolved, err := s.queue.Resolve(ctx, tenantID, itemID, models.ReviewStatusConfirmed, decision.Operator, notesPtr(decision.Notes))
		if err != nil {
			log.WithError(err).Error("Merge succeeded but queue item resolution failed")
			return result, nil, err
		}
		if s.emitter != nil {
			if err := s.emitter.EmitMatchResolved(ctx, resolved, decision.Action); err != nil {
				log.WithError(err).Warn("Failed to emit match resolved event")
			}
		}
		return result, resolved, nil

	default:
		return nil, nil, httperror.NewHTTPError(http.StatusBadRequest, fmt.Sprintf("unknown decision action %q", decision.Action))
	}
}

// MergeRecords merges the given source records into a golden record. The
// golden record, its provenance and the source archival land in one
// transaction, serialized per cluster by a distributed lock.
func (s *Service) MergeRecords(ctx context.Context, tenantID, recordType string, recordIDs []string, spec models.MergeSpec) (*models.MergeResult, error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.Service.MergeRecords")
	defer span.End()

	if len(recordIDs) < 2 {
		return nil, httperror.NewHTTPError(http.StatusBadRequest, "a merge requires at least two record ids")
	}

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":   tenantID,
		"record_type": recordType,
		"record_ids":  recordIDs,
	})

	var result *models.MergeResult
	work := func() error {
		sources, err := s.records.GetByIDs(ctx, tenantID, recordIDs)
		if err != nil {
			return err
		}
		if len(sources) != len(recordIDs) {
			return httperror.NewHTTPError(http.StatusNotFound, "one or more source records not found")
		}
		for i := range sources {
			if sources[i].ArchivedAt != nil {
				return httperror.NewHTTPError(http.StatusConflict, fmt.Sprintf("source record %s is already merged", sources[i].ID))
			}
		}

		// GetByIDs does not preserve request order; restore it so merge
		// strategies that depend on source order stay deterministic
		byID := make(map[string]models.SourceRecord, len(sources))
		for i := range sources {
			byID[sources[i].ID] = sources[i]
		}
		ordered := make([]models.SourceRecord, 0, len(recordIDs))
		for _, id := range recordIDs {
			ordered = append(ordered, byID[id])
		}

		merged, err := s.merger.Merge(ctx, ordered, spec)
		if err != nil {
			metrics.MergesTotal.WithLabelValues(tenantID, recordType, "error").Inc()
			return httperror.NewHTTPError(http.StatusUnprocessableEntity, fmt.Sprintf("merge failed: %v", err))
		}

		ctxTx, tx, err := s.records.DB().GetTx(ctx, nil)
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
		}
		defer tx.Rollback(ctxTx)

		if err := s.goldens.Create(ctxTx, merged.GoldenRecord); err != nil {
			return err
		}
		if err := s.provenance.Create(ctxTx, merged.Provenance); err != nil {
			return err
		}
		if err := s.records.Archive(ctxTx, tenantID, recordIDs, merged.GoldenRecord.ID); err != nil {
			return err
		}
		if err := tx.Commit(ctxTx); err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to commit merge")
		}

		result = merged
		return nil
	}

	lockKey := clusterLockKey(tenantID, recordIDs)
	if s.locker != nil {
		lockStarted := time.Now()
		err := s.locker.WithLock(ctx, lockKey, s.cfg.MergeLockTTL, s.cfg.MergeLockTimeout, work)
		metrics.MergeLockWaitTime.WithLabelValues(tenantID).Observe(time.Since(lockStarted).Seconds())
		if err == redis.ErrLockNotAcquired {
			return nil, httperror.NewHTTPError(http.StatusConflict, "another merge of this cluster is in progress")
		}
		if err != nil {
			return nil, err
		}
	} else if err := work(); err != nil {
		return nil, err
	}

	metrics.MergesTotal.WithLabelValues(tenantID, recordType, "ok").Inc()
	metrics.MergeConflictsTotal.WithLabelValues(tenantID, recordType).Add(float64(len(result.Conflicts)))

	if s.emitter != nil {
		if err := s.emitter.EmitGoldenCreated(ctx, result); err != nil {
			log.WithError(err).Warn("Failed to emit golden created event")
		}
	}
	if s.lineage != nil {
		if err := s.lineage.RecordMerge(ctx, result); err != nil {
			log.WithError(err).Warn("Failed to project merge into graph")
		}
	}

	log.WithFields(map[string]any{
		"golden_record_id": result.GoldenRecord.ID,
		"conflicts":        len(result.Conflicts),
	}).Info("Merged records into golden record")

	return result, nil
}

// GetGolden retrieves a golden record with its provenance
func (s *Service) GetGolden(ctx context.Context, tenantID, goldenID string) (*models.GoldenRecord, *models.Provenance, error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.Service.GetGolden")
	defer span.End()

	golden, err := s.goldens.Get(ctx, tenantID, goldenID)
	if err != nil {
		return nil, nil, err
	}
	prov, err := s.provenance.GetByGoldenID(ctx, tenantID, goldenID)
	if err != nil {
		return nil, nil, err
	}
	return golden, prov, nil
}

// CanUnmerge checks the unmerge preconditions for a golden record
func (s *Service) CanUnmerge(ctx context.Context, tenantID, goldenID string) (models.UnmergeCheck, error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.Service.CanUnmerge")
	defer span.End()

	return s.unmergeExecutor().CanUnmerge(ctx, tenantID, goldenID)
}

// Unmerge reverses a merge under the cluster lock. The restore, golden
// deletion and provenance mark land in one transaction.
func (s *Service) Unmerge(ctx context.Context, req models.UnmergeRequest) (*models.UnmergeResult, models.UnmergeCheck, error) {
	ctx, span := tracing.StartSpan(ctx, "linkage.Service.Unmerge")
	defer span.End()

	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"tenant_id":        req.TenantID,
		"golden_record_id": req.GoldenRecordID,
	})

	// The golden record may already be soft deleted by a prior unmerge.
	// Resolve its record type without the live filter so the executor can
	// refuse the repeat with reasons instead of this lookup returning 404.
	golden, err := s.goldens.GetIncludingDeleted(ctx, req.TenantID, req.GoldenRecordID)
	if err != nil {
		return nil, models.UnmergeCheck{}, err
	}

	var (
		result *models.UnmergeResult
		check  models.UnmergeCheck
	)
	work := func() error {
		ctxTx, tx, err := s.records.DB().GetTx(ctx, nil)
		if err != nil {
			return httperror.NewHTTPError(http.StatusInternalServerError, "failed to start transaction")
		}
		defer tx.Rollback(ctxTx)

		result, check, err = s.unmergeExecutor().Unmerge(ctxTx, req)
		if err != nil {
			return err
		}
		if result == nil {
			return nil
		}

		return tx.Commit(ctxTx)
	}

	if s.locker != nil {
		err = s.locker.WithLock(ctx, "unmerge:"+req.TenantID+":"+req.GoldenRecordID, s.cfg.MergeLockTTL, s.cfg.MergeLockTimeout, work)
		if err == redis.ErrLockNotAcquired {
			return nil, models.UnmergeCheck{}, httperror.NewHTTPError(http.StatusConflict, "another operation on this golden record is in progress")
		}
	} else {
		err = work()
	}
	if err != nil {
		metrics.UnmergesTotal.WithLabelValues(req.TenantID, golden.RecordType, "error").Inc()
		return nil, check, err
	}
	if result == nil {
		metrics.UnmergesTotal.WithLabelValues(req.TenantID, golden.RecordType, "refused").Inc()
		return nil, check, nil
	}

	metrics.UnmergesTotal.WithLabelValues(req.TenantID, golden.RecordType, "ok").Inc()

	if s.emitter != nil {
		if err := s.emitter.EmitGoldenUnmerged(ctx, req.TenantID, golden.RecordType, result); err != nil {
			log.WithError(err).Warn("Failed to emit golden unmerged event")
		}
	}
	if s.lineage != nil {
		if err := s.lineage.RemoveMerge(ctx, req.TenantID, req.GoldenRecordID); err != nil {
			log.WithError(err).Warn("Failed to remove merge from graph")
		}
	}

	log.WithFields(map[string]any{"restored": len(result.RestoredRecordIDs)}).Info("Unmerged golden record")
	return result, check, nil
}

func (s *Service) unmergeExecutor() *unmerge.Executor {
	return unmerge.NewExecutor(s.logger, s.provenance, &archiveStore{records: s.records}, s.goldens)
}

// archiveStore adapts the source record repository to the unmerge
// executor's archive boundary
type archiveStore struct {
	records *sourcerecord.Repository
}

func (a *archiveStore) FindByGoldenID(ctx context.Context, tenantID, goldenRecordID string) ([]models.SourceRecord, error) {
	return a.records.FindArchivedByGoldenID(ctx, tenantID, goldenRecordID)
}

func (a *archiveStore) Restore(ctx context.Context, tenantID string, records []models.SourceRecord) error {
	ids := make([]string, len(records))
	for i := range records {
		ids[i] = records[i].ID
	}
	return a.records.Restore(ctx, tenantID, ids)
}

// clusterLockKey builds a stable lock key from the sorted record ids
func clusterLockKey(tenantID string, recordIDs []string) string {
	sorted := make([]string, len(recordIDs))
	copy(sorted, recordIDs)
	sort.Strings(sorted)
	return "merge:" + tenantID + ":" + strings.Join(sorted, ",")
}

func notesPtr(notes string) *string {
	if notes == "" {
		return nil
	}
	return &notes
}
