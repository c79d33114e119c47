package models

import (
	"encoding/json"
	"time"
)

// LinkageRule bundles the resolution configuration for one record type:
// which fields to compare and how, the outcome thresholds, and the
// blocking strategy used to narrow candidates.
type LinkageRule struct {
	ID                string          `json:"id" db:"id"`
	TenantID          string          `json:"tenant_id" db:"tenant_id"`
	RecordType        string          `json:"record_type" db:"record_type"`
	Name              string          `json:"name" db:"name"`
	Description       *string         `json:"description,omitempty" db:"description"`
	IsActive          bool            `json:"is_active" db:"is_active"`
	FieldSpecs        json.RawMessage `json:"field_specs" db:"field_specs"`     // []FieldComparisonSpec
	Blocking          json.RawMessage `json:"blocking,omitempty" db:"blocking"` // BlockingStrategy
	NoMatchBelow      float64         `json:"no_match_below" db:"no_match_below"`
	DefiniteMatchFrom float64         `json:"definite_match_from" db:"definite_match_from"`
	CreatedAt         time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt         time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt         *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// ParseFieldSpecs unmarshals the configured field comparison specs
func (r *LinkageRule) ParseFieldSpecs() ([]FieldComparisonSpec, error) {
	var specs []FieldComparisonSpec
	if err := json.Unmarshal(r.FieldSpecs, &specs); err != nil {
		return nil, err
	}
	return specs, nil
}

// ParseBlocking unmarshals the blocking strategy; nil when none configured
func (r *LinkageRule) ParseBlocking() (*BlockingStrategy, error) {
	if len(r.Blocking) == 0 {
		return nil, nil
	}
	var strategy BlockingStrategy
	if err := json.Unmarshal(r.Blocking, &strategy); err != nil {
		return nil, err
	}
	return &strategy, nil
}

// Thresholds returns the rule's outcome thresholds
func (r *LinkageRule) Thresholds() MatchThresholds {
	return MatchThresholds{
		NoMatchBelow:      r.NoMatchBelow,
		DefiniteMatchFrom: r.DefiniteMatchFrom,
	}
}

// CreateLinkageRuleRequest is the request to create a linkage rule
type CreateLinkageRuleRequest struct {
	RecordType        string          `json:"record_type" validate:"required"`
	Name              string          `json:"name" validate:"required"`
	Description       *string         `json:"description,omitempty"`
	IsActive          bool            `json:"is_active"`
	FieldSpecs        json.RawMessage `json:"field_specs" validate:"required"`
	Blocking          json.RawMessage `json:"blocking,omitempty"`
	NoMatchBelow      float64         `json:"no_match_below" validate:"gte=0"`
	DefiniteMatchFrom float64         `json:"definite_match_from" validate:"gtfield=NoMatchBelow"`
}

// UpdateLinkageRuleRequest is the request to update a linkage rule
type UpdateLinkageRuleRequest struct {
	Name              *string         `json:"name,omitempty"`
	Description       *string         `json:"description,omitempty"`
	IsActive          *bool           `json:"is_active,omitempty"`
	FieldSpecs        json.RawMessage `json:"field_specs,omitempty"`
	Blocking          json.RawMessage `json:"blocking,omitempty"`
	NoMatchBelow      *float64        `json:"no_match_below,omitempty"`
	DefiniteMatchFrom *float64        `json:"definite_match_from,omitempty"`
}
