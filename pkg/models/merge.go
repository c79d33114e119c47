package models

import (
	"time"
)

// MergeStrategyType defines how to merge a field when combining records
type MergeStrategyType string

const (
	// MergeStrategyFirst uses the first value in source order
	MergeStrategyFirst MergeStrategyType = "first"
	// MergeStrategyLast uses the last value in source order
	MergeStrategyLast MergeStrategyType = "last"
	// MergeStrategyMostRecent uses the value from the most recently updated source
	MergeStrategyMostRecent MergeStrategyType = "most_recent"
	// MergeStrategyPreferNonEmpty uses the first non-empty value
	MergeStrategyPreferNonEmpty MergeStrategyType = "prefer_non_empty"
	// MergeStrategyLongestValue uses the longest string value
	MergeStrategyLongestValue MergeStrategyType = "longest"
	// MergeStrategyShortestValue uses the shortest non-empty string value
	MergeStrategyShortestValue MergeStrategyType = "shortest"
	// MergeStrategyCollectAll combines all values into an array
	MergeStrategyCollectAll MergeStrategyType = "collect_all"
	// MergeStrategyMax uses the maximum numeric value
	MergeStrategyMax MergeStrategyType = "max"
	// MergeStrategyMin uses the minimum numeric value
	MergeStrategyMin MergeStrategyType = "min"
	// MergeStrategySum sums numeric values
	MergeStrategySum MergeStrategyType = "sum"
	// MergeStrategyAverage averages numeric values
	MergeStrategyAverage MergeStrategyType = "average"
	// MergeStrategySourcePriority uses the value from the highest priority source
	MergeStrategySourcePriority MergeStrategyType = "source_priority"
)

// ConflictPolicy decides what happens when a strategy yields no value
type ConflictPolicy string

const (
	// ConflictPolicyUseDefault retries the field with the default strategy
	ConflictPolicyUseDefault ConflictPolicy = "use_default"
	// ConflictPolicyFail aborts the whole merge
	ConflictPolicyFail ConflictPolicy = "fail"
	// ConflictPolicyLeaveUnset omits the field from the golden record
	ConflictPolicyLeaveUnset ConflictPolicy = "leave_unset"
)

// FieldMergeStrategy binds a merge strategy to a specific field
type FieldMergeStrategy struct {
	Field    string            `json:"field"`
	Strategy MergeStrategyType `json:"strategy"`
	MaxItems int               `json:"max_items,omitempty"` // for collect_all
	Dedup    bool              `json:"dedup,omitempty"`     // for collect_all
}

// SourcePriority defines source trust levels; higher is more trusted
type SourcePriority struct {
	Integration string `json:"integration"`
	Priority    int    `json:"priority"`
}

// MergeSpec configures one merge operation
type MergeSpec struct {
	TenantID         string               `json:"tenant_id"`
	RecordType       string               `json:"record_type"`
	FieldStrategies  []FieldMergeStrategy `json:"field_strategies,omitempty"`
	DefaultStrategy  MergeStrategyType    `json:"default_strategy,omitempty"`
	ConflictPolicy   ConflictPolicy       `json:"conflict_policy,omitempty"`
	SourcePriorities []SourcePriority     `json:"source_priorities,omitempty"`
	MergedBy         string               `json:"merged_by"`
	QueueItemID      *string              `json:"queue_item_id,omitempty"`
}

// MergeConflict records a field whose source values disagreed and how
// the disagreement was resolved
type MergeConflict struct {
	Field         string   `json:"field"`
	Values        []any    `json:"values"`
	Integrations  []string `json:"integrations"`
	Resolution    string   `json:"resolution"`
	ResolvedValue any      `json:"resolved_value"`
}

// Provenance is the permanent audit record linking a golden record to its
// sources. It is created atomically with the golden record and mutated
// exactly once, when the unmerge fields are set. Never deleted.
type Provenance struct {
	ID              string      `json:"id" db:"id"`
	TenantID        string      `json:"tenant_id" db:"tenant_id"`
	GoldenRecordID  string      `json:"golden_record_id" db:"golden_record_id"`
	SourceRecordIDs StringList  `json:"source_record_ids" db:"source_record_ids"` // in merge order
	FieldStrategies StrategyMap `json:"field_strategies" db:"field_strategies"`
	QueueItemID     *string     `json:"queue_item_id,omitempty" db:"queue_item_id"`
	MergedBy        string      `json:"merged_by" db:"merged_by"`
	MergedAt        time.Time   `json:"merged_at" db:"merged_at"`
	Unmerged        bool        `json:"unmerged" db:"unmerged"`
	UnmergedAt      *time.Time  `json:"unmerged_at,omitempty" db:"unmerged_at"`
	UnmergedBy      *string     `json:"unmerged_by,omitempty" db:"unmerged_by"`
	UnmergeReason   *string     `json:"unmerge_reason,omitempty" db:"unmerge_reason"`
}

// MergeResult contains the golden record with its provenance; the two are
// never produced separately
type MergeResult struct {
	GoldenRecord *GoldenRecord   `json:"golden_record"`
	Provenance   *Provenance     `json:"provenance"`
	Conflicts    []MergeConflict `json:"conflicts,omitempty"`
}
