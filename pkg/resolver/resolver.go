// Package resolver orchestrates blocking, scoring, and classification for
// single-candidate resolution and full batch deduplication.
package resolver

import (
	"fmt"
	"sort"

	"github.com/Gobusters/ectologger"

	"github.com/Ramsey-B/clover/pkg/blocking"
	"github.com/Ramsey-B/clover/pkg/comparators"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/scoring"
)

// Config bundles everything a resolver compares with
type Config struct {
	FieldSpecs []models.FieldComparisonSpec
	Thresholds models.MatchThresholds
	// Blocking narrows comparisons to co-blocked records. Nil disables
	// blocking and every pair is compared.
	Blocking *models.BlockingStrategy
	// MaxMatches truncates each sorted match list (default 100)
	MaxMatches int
	// IncludeNoMatches keeps no_match results in match lists instead of
	// dropping them
	IncludeNoMatches bool
}

// Resolver scores candidates against populations. Stateless after
// construction; safe for concurrent use over disjoint inputs.
type Resolver struct {
	logger     ectologger.Logger
	calculator *scoring.Calculator
	blocking   *blocking.Engine
	config     Config
}

// New validates the configuration and builds a resolver. Invalid thresholds
// or field specs fail here, never at resolution time.
func New(logger ectologger.Logger, registry *comparators.Registry, config Config) (*Resolver, error) {
	if err := config.Thresholds.Validate(); err != nil {
		return nil, fmt.Errorf("invalid thresholds: %w", err)
	}

	calculator, err := scoring.NewCalculator(registry, config.FieldSpecs)
	if err != nil {
		return nil, err
	}

	if config.MaxMatches <= 0 {
		config.MaxMatches = 100
	}

	return &Resolver{
		logger:     logger,
		calculator: calculator,
		blocking:   blocking.New(),
		config:     config,
	}, nil
}

// Resolve scores a candidate against a population: optional block
// narrowing, score, classify, sort descending by total score, truncate.
func (r *Resolver) Resolve(candidate blocking.Record, population []blocking.Record) []models.MatchResult {
	if r.config.Blocking != nil {
		blocks := r.blocking.GenerateBlocks(population, *r.config.Blocking)
		population = r.blocking.BlocksFor(candidate.Data, blocks, *r.config.Blocking)
	}

	results := make([]models.MatchResult, 0, len(population))
	for _, other := range population {
		if other.ID == candidate.ID {
			continue
		}
		result := r.compare(candidate.Data, other)
		if result.Outcome == models.OutcomeNoMatch && !r.config.IncludeNoMatches {
			continue
		}
		results = append(results, result)
	}

	sortMatches(results)
	if len(results) > r.config.MaxMatches {
		results = results[:r.config.MaxMatches]
	}
	return results
}

// DedupeBatch compares a record set against itself. Blocked pairs are
// generated once; per-record failures are collected without aborting the
// batch.
func (r *Resolver) DedupeBatch(records []blocking.Record) models.BatchResult {
	result := models.BatchResult{
		Matches: make(map[string][]models.MatchResult),
		Errors:  make(map[string]string),
		Stats: models.BatchStats{
			RecordsProcessed: len(records),
			OutcomeCounts:    make(map[models.MatchOutcome]int),
		},
	}

	byID := make(map[string]blocking.Record, len(records))
	for _, record := range records {
		if record.ID == "" {
			result.Errors["<missing-id>"] = "record has no id"
			continue
		}
		if _, dup := byID[record.ID]; dup {
			result.Errors[record.ID] = "duplicate record id in batch"
			continue
		}
		byID[record.ID] = record
	}

	var pairs []models.RecordPair
	if r.config.Blocking != nil {
		usable := make([]blocking.Record, 0, len(byID))
		for _, record := range records {
			if _, ok := byID[record.ID]; ok {
				usable = append(usable, record)
			}
		}
		blocks := r.blocking.GenerateBlocks(usable, *r.config.Blocking)
		pairs = r.blocking.GeneratePairs(blocks)
	} else {
		pairs = allPairs(records, byID)
	}

	for _, pair := range pairs {
		a, b := byID[pair.A], byID[pair.B]

		score := r.calculator.Calculate(a.Data, b.Data)
		outcome := scoring.Classify(score.TotalScore, r.config.Thresholds)

		result.Stats.ComparisonsMade++
		result.Stats.OutcomeCounts[outcome]++

		if outcome == models.OutcomeNoMatch && !r.config.IncludeNoMatches {
			continue
		}

		explanation := scoring.Explain(score, outcome)
		result.Matches[a.ID] = append(result.Matches[a.ID], models.MatchResult{
			RecordID: b.ID, Outcome: outcome, Score: score, Explanation: explanation,
		})
		result.Matches[b.ID] = append(result.Matches[b.ID], models.MatchResult{
			RecordID: a.ID, Outcome: outcome, Score: score, Explanation: explanation,
		})
	}

	for id := range result.Matches {
		matches := result.Matches[id]
		sortMatches(matches)
		if len(matches) > r.config.MaxMatches {
			matches = matches[:r.config.MaxMatches]
		}
		result.Matches[id] = matches
	}

	result.Stats.RecordsWithMatches = len(result.Matches)
	result.Stats.RecordsWithoutMatches = len(byID) - len(result.Matches)

	if len(result.Errors) == 0 {
		result.Errors = nil
	}
	return result
}

// compare scores and classifies a single pair
func (r *Resolver) compare(candidate models.Record, other blocking.Record) models.MatchResult {
	score := r.calculator.Calculate(candidate, other.Data)
	outcome := scoring.Classify(score.TotalScore, r.config.Thresholds)
	return models.MatchResult{
		RecordID:    other.ID,
		Outcome:     outcome,
		Score:       score,
		Explanation: scoring.Explain(score, outcome),
	}
}

// Thresholds exposes the configured thresholds to callers building review
// queue items from results.
func (r *Resolver) Thresholds() models.MatchThresholds {
	return r.config.Thresholds
}

// BlockingKeys computes the candidate's block keys for adapter queries.
// Nil when blocking is disabled.
func (r *Resolver) BlockingKeys(candidate models.Record) []string {
	if r.config.Blocking == nil {
		return nil
	}
	return r.blocking.KeysFor(candidate, *r.config.Blocking)
}

func sortMatches(results []models.MatchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		if results[i].Score.TotalScore != results[j].Score.TotalScore {
			return results[i].Score.TotalScore > results[j].Score.TotalScore
		}
		return results[i].RecordID < results[j].RecordID
	})
}

func allPairs(records []blocking.Record, byID map[string]blocking.Record) []models.RecordPair {
	var pairs []models.RecordPair
	ids := make([]string, 0, len(byID))
	for _, record := range records {
		if _, ok := byID[record.ID]; ok {
			ids = append(ids, record.ID)
		}
	}
	for i := 0; i < len(ids); i++ {
		for j := i + 1; j < len(ids); j++ {
			a, b := ids[i], ids[j]
			if a > b {
				a, b = b, a
			}
			pairs = append(pairs, models.RecordPair{A: a, B: b})
		}
	}
	return pairs
}
