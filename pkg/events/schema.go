package events

import (
	"encoding/json"
	"time"
)

// EventType defines the type of event
type EventType string

const (
	// Golden record events
	EventTypeGoldenCreated  EventType = "golden.created"
	EventTypeGoldenUpdated  EventType = "golden.updated"
	EventTypeGoldenDeleted  EventType = "golden.deleted"
	EventTypeGoldenUnmerged EventType = "golden.unmerged"

	// Match events
	EventTypeMatchCandidate EventType = "match.candidate"
	EventTypeMatchResolved  EventType = "match.resolved"
)

// BaseEvent contains common fields for all events
type BaseEvent struct {
	EventType     EventType `json:"event_type"`
	SchemaVersion string    `json:"schema_version"`
	TenantID      string    `json:"tenant_id"`
	Timestamp     time.Time `json:"timestamp"`
	CorrelationID string    `json:"correlation_id,omitempty"`
}

// GoldenCreatedEvent is emitted when a merge produces a new golden record
type GoldenCreatedEvent struct {
	BaseEvent
	GoldenRecordID  string          `json:"golden_record_id"`
	RecordType      string          `json:"record_type"`
	Data            json.RawMessage `json:"data"`
	SourceRecordIDs []string        `json:"source_record_ids"`
	ConflictCount   int             `json:"conflict_count,omitempty"`
	Version         int             `json:"version"`
}

// GoldenUnmergedEvent is emitted when a merge is reversed
type GoldenUnmergedEvent struct {
	BaseEvent
	GoldenRecordID    string   `json:"golden_record_id"`
	RecordType        string   `json:"record_type"`
	RestoredRecordIDs []string `json:"restored_record_ids"`
	UnmergedBy        string   `json:"unmerged_by"`
	Reason            string   `json:"reason,omitempty"`
}

// MatchCandidateEvent is emitted when a comparison lands in the
// potential-match band and is queued for review
type MatchCandidateEvent struct {
	BaseEvent
	QueueItemID       string  `json:"queue_item_id"`
	RecordType        string  `json:"record_type"`
	CandidateRecordID string  `json:"candidate_record_id"`
	MatchedRecordID   string  `json:"matched_record_id"`
	Score             float64 `json:"score"`
}

// MatchResolvedEvent is emitted when a reviewer decides a queued match
type MatchResolvedEvent struct {
	BaseEvent
	QueueItemID string `json:"queue_item_id"`
	RecordType  string `json:"record_type"`
	Action      string `json:"action"`
	Operator    string `json:"operator"`
}
