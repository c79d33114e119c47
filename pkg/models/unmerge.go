package models

import "time"

// UnmergeMode selects how much of the merge to reverse
type UnmergeMode string

// UnmergeModeFull restores every archived source record and deletes the
// golden record. The only mode currently supported.
const UnmergeModeFull UnmergeMode = "full"

// Structured reasons returned by CanUnmerge. These are shown directly to
// reviewers, so they read as messages rather than error codes.
const (
	UnmergeReasonNoProvenance    = "no provenance found for golden record"
	UnmergeReasonAlreadyUnmerged = "already unmerged"
	UnmergeReasonArchiveMissing  = "archived source record is missing"
)

// UnmergeRequest asks for a prior merge to be reversed
type UnmergeRequest struct {
	TenantID       string      `json:"tenant_id" validate:"required"`
	GoldenRecordID string      `json:"golden_record_id" validate:"required"`
	RequestedBy    string      `json:"requested_by" validate:"required"`
	Reason         string      `json:"reason,omitempty"`
	Mode           UnmergeMode `json:"mode,omitempty"`
}

// UnmergeCheck reports whether a golden record can be unmerged and, if
// not, why. Failures are data for the reviewer, not errors.
type UnmergeCheck struct {
	CanUnmerge bool     `json:"can_unmerge"`
	Reasons    []string `json:"reasons,omitempty"`
}

// UnmergeResult describes a completed unmerge
type UnmergeResult struct {
	GoldenRecordID    string    `json:"golden_record_id"`
	RestoredRecordIDs []string  `json:"restored_record_ids"`
	UnmergedAt        time.Time `json:"unmerged_at"`
	UnmergedBy        string    `json:"unmerged_by"`
}
