package models

import (
	"time"

	"github.com/Ramsey-B/clover/pkg/database"
)

// DecisionAction is the action taken by a reviewer on a queue item
type DecisionAction string

const (
	// DecisionActionConfirm confirms the candidate pair is one entity
	DecisionActionConfirm DecisionAction = "confirm"
	// DecisionActionReject marks the pair as not the same entity; no merge happens
	DecisionActionReject DecisionAction = "reject"
	// DecisionActionMerge confirms a specific set of record ids as one entity
	DecisionActionMerge DecisionAction = "merge"
)

// ReviewDecision is the outcome of human review of a potential match.
// Produced by the review subsystem; consumed here to trigger (or skip)
// a merge.
type ReviewDecision struct {
	Action     DecisionAction `json:"action" validate:"required,oneof=confirm reject merge"`
	MatchID    string         `json:"match_id,omitempty"`
	RecordIDs  []string       `json:"record_ids,omitempty"` // for action=merge
	Operator   string         `json:"operator" validate:"required"`
	Confidence float64        `json:"confidence,omitempty"`
	Notes      string         `json:"notes,omitempty"`
}

// ReviewQueueItem statuses
const (
	ReviewStatusPending   = "pending"
	ReviewStatusConfirmed = "confirmed"
	ReviewStatusRejected  = "rejected"
)

// ReviewQueueItem is a potential match awaiting human review
type ReviewQueueItem struct {
	ID                string                     `json:"id" db:"id"`
	TenantID          string                     `json:"tenant_id" db:"tenant_id"`
	RecordType        string                     `json:"record_type" db:"record_type"`
	CandidateRecordID string                     `json:"candidate_record_id" db:"candidate_record_id"`
	MatchedRecordID   string                     `json:"matched_record_id" db:"matched_record_id"`
	Score             float64                    `json:"score" db:"score"`
	ScoreDetails      database.JSONB[MatchScore] `json:"score_details" db:"score_details"`
	Status            string                     `json:"status" db:"status"`
	CreatedAt         time.Time                  `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time                  `json:"updated_at" db:"updated_at"`
	ResolvedAt        *time.Time                 `json:"resolved_at,omitempty" db:"resolved_at"`
	ResolvedBy        *string                    `json:"resolved_by,omitempty" db:"resolved_by"`
	Notes             *string                    `json:"notes,omitempty" db:"notes"`
}
