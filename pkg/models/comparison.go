package models

import "fmt"

// MatchOutcome is the three-tier classification of a comparison
type MatchOutcome string

const (
	// OutcomeNoMatch means the total score fell below the no-match threshold
	OutcomeNoMatch MatchOutcome = "no_match"
	// OutcomePotentialMatch means the score landed between the thresholds and needs review
	OutcomePotentialMatch MatchOutcome = "potential_match"
	// OutcomeDefiniteMatch means the score met or exceeded the definite-match threshold
	OutcomeDefiniteMatch MatchOutcome = "definite_match"
)

// MatchThresholds splits the score range into the three outcome bands.
// A score equal to a threshold belongs to the higher band.
type MatchThresholds struct {
	NoMatchBelow      float64 `json:"no_match_below"`
	DefiniteMatchFrom float64 `json:"definite_match_from"`
}

// Validate checks the threshold invariants: NoMatchBelow >= 0 and
// NoMatchBelow < DefiniteMatchFrom.
func (t MatchThresholds) Validate() error {
	if t.NoMatchBelow < 0 {
		return fmt.Errorf("no_match_below must be >= 0, got %v", t.NoMatchBelow)
	}
	if t.NoMatchBelow >= t.DefiniteMatchFrom {
		return fmt.Errorf("no_match_below (%v) must be less than definite_match_from (%v)", t.NoMatchBelow, t.DefiniteMatchFrom)
	}
	return nil
}

// FieldComparisonSpec configures one weighted field comparison
type FieldComparisonSpec struct {
	Field         string         `json:"field" validate:"required"` // dot notation, e.g. "address.city"
	Comparator    string         `json:"comparator" validate:"required"`
	Weight        float64        `json:"weight" validate:"gt=0"`
	Threshold     float64        `json:"threshold" validate:"gte=0,lte=1"` // minimum similarity before the field contributes
	Normalizers   []string       `json:"normalizers,omitempty"`
	CaseSensitive bool           `json:"case_sensitive,omitempty"`
	NullMismatch  bool           `json:"null_mismatch,omitempty"` // both-absent scores 0.0 instead of the default 1.0
	Options       map[string]any `json:"options,omitempty"`       // comparator options (e.g. max_days_diff)
}

// FieldScore is the per-field breakdown of a comparison. The raw
// similarity is always reported even when the threshold gated the
// contribution to zero, so near-misses stay inspectable.
type FieldScore struct {
	Field        string  `json:"field"`
	Similarity   float64 `json:"similarity"`
	Weight       float64 `json:"weight"`
	Contribution float64 `json:"contribution"`
	MetThreshold bool    `json:"met_threshold"`
	ValueA       any     `json:"value_a,omitempty"`
	ValueB       any     `json:"value_b,omitempty"`
	NormalizedA  *string `json:"normalized_a,omitempty"`
	NormalizedB  *string `json:"normalized_b,omitempty"`
}

// MatchScore aggregates the weighted field comparisons for a record pair
type MatchScore struct {
	TotalScore       float64      `json:"total_score"`
	MaxPossibleScore float64      `json:"max_possible_score"`
	NormalizedScore  float64      `json:"normalized_score"`
	FieldScores      []FieldScore `json:"field_scores"`
}

// MatchResult is the classified outcome of comparing a candidate against
// one population record. Produced fresh per comparison, never persisted
// by the core.
type MatchResult struct {
	RecordID    string        `json:"record_id"`
	Record      *SourceRecord `json:"record,omitempty"`
	Outcome     MatchOutcome  `json:"outcome"`
	Score       MatchScore    `json:"score"`
	Explanation string        `json:"explanation,omitempty"`
}

// BatchStats aggregates a batch deduplication run
type BatchStats struct {
	RecordsProcessed      int                  `json:"records_processed"`
	ComparisonsMade       int                  `json:"comparisons_made"`
	OutcomeCounts         map[MatchOutcome]int `json:"outcome_counts"`
	RecordsWithMatches    int                  `json:"records_with_matches"`
	RecordsWithoutMatches int                  `json:"records_without_matches"`
}

// BatchResult is the outcome of deduplicating a record set against itself.
// Per-record failures are collected in Errors; one bad record does not
// abort the batch.
type BatchResult struct {
	Matches map[string][]MatchResult `json:"matches"` // record id -> sorted match list
	Stats   BatchStats               `json:"stats"`
	Errors  map[string]string        `json:"errors,omitempty"` // record id -> error
}
