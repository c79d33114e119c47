// Package events handles event emission for linkage lifecycle changes
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/kafka"
	"github.com/Ramsey-B/clover/pkg/metrics"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reqcontext"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// SchemaVersion is the current event schema version
const SchemaVersion = "1.0"

// Emitter publishes linkage lifecycle events. A nil producer disables
// emission, which keeps the service usable without a broker.
type Emitter struct {
	producer *kafka.Producer
	logger   ectologger.Logger
}

// NewEmitter creates a new event emitter
func NewEmitter(producer *kafka.Producer, logger ectologger.Logger) *Emitter {
	return &Emitter{
		producer: producer,
		logger:   logger,
	}
}

// base fills the envelope fields shared by every payload
func (e *Emitter) base(ctx context.Context, eventType EventType, tenantID string) BaseEvent {
	return BaseEvent{
		EventType:     eventType,
		SchemaVersion: SchemaVersion,
		TenantID:      tenantID,
		Timestamp:     time.Now().UTC(),
		CorrelationID: reqcontext.GetRequestID(ctx),
	}
}

// EmitGoldenCreated emits a golden.created event from a merge result
func (e *Emitter) EmitGoldenCreated(ctx context.Context, result *models.MergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitGoldenCreated")
	defer span.End()

	golden := result.GoldenRecord
	payload, err := json.Marshal(GoldenCreatedEvent{
		BaseEvent:       e.base(ctx, EventTypeGoldenCreated, golden.TenantID),
		GoldenRecordID:  golden.ID,
		RecordType:      golden.RecordType,
		Data:            golden.Data,
		SourceRecordIDs: result.Provenance.SourceRecordIDs,
		ConflictCount:   len(result.Conflicts),
		Version:         golden.Version,
	})
	if err != nil {
		return err
	}

	event := &kafka.LinkageEvent{
		EventType:  string(EventTypeGoldenCreated),
		TenantID:   golden.TenantID,
		RecordID:   golden.ID,
		RecordType: golden.RecordType,
		Data:       payload,
		SourceIDs:  result.Provenance.SourceRecordIDs,
		Version:    golden.Version,
	}

	return e.publish(ctx, event)
}

// EmitGoldenDeleted emits a golden.deleted event
func (e *Emitter) EmitGoldenDeleted(ctx context.Context, tenantID, goldenID, recordType string, version int) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitGoldenDeleted")
	defer span.End()

	event := &kafka.LinkageEvent{
		EventType:  string(EventTypeGoldenDeleted),
		TenantID:   tenantID,
		RecordID:   goldenID,
		RecordType: recordType,
		Version:    version,
	}

	return e.publish(ctx, event)
}

// EmitGoldenUnmerged emits a golden.unmerged event after a reversal
func (e *Emitter) EmitGoldenUnmerged(ctx context.Context, tenantID, recordType string, result *models.UnmergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitGoldenUnmerged")
	defer span.End()

	payload, err := json.Marshal(GoldenUnmergedEvent{
		BaseEvent:         e.base(ctx, EventTypeGoldenUnmerged, tenantID),
		GoldenRecordID:    result.GoldenRecordID,
		RecordType:        recordType,
		RestoredRecordIDs: result.RestoredRecordIDs,
		UnmergedBy:        result.UnmergedBy,
	})
	if err != nil {
		return err
	}

	event := &kafka.LinkageEvent{
		EventType:  string(EventTypeGoldenUnmerged),
		TenantID:   tenantID,
		RecordID:   result.GoldenRecordID,
		RecordType: recordType,
		Data:       payload,
		SourceIDs:  result.RestoredRecordIDs,
	}

	return e.publish(ctx, event)
}

// EmitMatchCandidate emits a match.candidate event for a queued potential match
func (e *Emitter) EmitMatchCandidate(ctx context.Context, item *models.ReviewQueueItem) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMatchCandidate")
	defer span.End()

	payload, err := json.Marshal(MatchCandidateEvent{
		BaseEvent:         e.base(ctx, EventTypeMatchCandidate, item.TenantID),
		QueueItemID:       item.ID,
		RecordType:        item.RecordType,
		CandidateRecordID: item.CandidateRecordID,
		MatchedRecordID:   item.MatchedRecordID,
		Score:             item.Score,
	})
	if err != nil {
		return err
	}

	event := &kafka.LinkageEvent{
		EventType:  string(EventTypeMatchCandidate),
		TenantID:   item.TenantID,
		RecordID:   item.CandidateRecordID,
		RecordType: item.RecordType,
		Data:       payload,
		SourceIDs:  []string{item.CandidateRecordID, item.MatchedRecordID},
	}

	return e.publish(ctx, event)
}

// EmitMatchResolved emits a match.resolved event after a review decision
func (e *Emitter) EmitMatchResolved(ctx context.Context, item *models.ReviewQueueItem, action models.DecisionAction) error {
	ctx, span := tracing.StartSpan(ctx, "events.Emitter.EmitMatchResolved")
	defer span.End()

	operator := ""
	if item.ResolvedBy != nil {
		operator = *item.ResolvedBy
	}
	payload, err := json.Marshal(MatchResolvedEvent{
		BaseEvent:   e.base(ctx, EventTypeMatchResolved, item.TenantID),
		QueueItemID: item.ID,
		RecordType:  item.RecordType,
		Action:      string(action),
		Operator:    operator,
	})
	if err != nil {
		return err
	}

	event := &kafka.LinkageEvent{
		EventType:  string(EventTypeMatchResolved),
		TenantID:   item.TenantID,
		RecordID:   item.CandidateRecordID,
		RecordType: item.RecordType,
		Data:       payload,
		SourceIDs:  []string{item.CandidateRecordID, item.MatchedRecordID},
	}

	e.logger.WithContext(ctx).WithFields(map[string]any{
		"queue_item_id": item.ID,
		"action":        string(action),
	}).Debug("Emitting match resolved event")

	return e.publish(ctx, event)
}

func (e *Emitter) publish(ctx context.Context, event *kafka.LinkageEvent) error {
	if e.producer == nil {
		return nil
	}

	if err := e.producer.Publish(ctx, event); err != nil {
		metrics.EventsPublished.WithLabelValues(event.EventType, "error").Inc()
		e.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"event_type": event.EventType,
		}).Error("Failed to emit linkage event")
		return err
	}

	metrics.EventsPublished.WithLabelValues(event.EventType, "ok").Inc()
	return nil
}
