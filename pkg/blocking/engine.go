// Package blocking partitions record sets into candidate blocks so the
// resolver only compares records that share a block key. This trades recall
// for speed: records that never co-block are never scored.
package blocking

import (
	"fmt"
	"sort"
	"strings"

	"github.com/Ramsey-B/clover/pkg/comparators"
	"github.com/Ramsey-B/clover/pkg/fieldpath"
	"github.com/Ramsey-B/clover/pkg/models"
)

// Record is a blocking input: caller-supplied identity plus the raw data
type Record struct {
	ID   string
	Data models.Record
}

// Engine generates candidate blocks and unordered comparison pairs
type Engine struct {
	paths map[string]*fieldpath.Path
}

// New creates a blocking engine
func New() *Engine {
	return &Engine{paths: make(map[string]*fieldpath.Path)}
}

// GenerateBlocks partitions records into blocks keyed by the strategy's
// rules. In union mode a record lands in the block of every rule that
// produces a key; in intersect mode all rules combine into one compound key
// so records only co-block when every rule agrees. Records producing no key
// at all go to the sentinel block when the strategy includes unkeyed
// records, otherwise they are excluded. A misconfigured rule (empty field)
// produces no key rather than failing, so its records degrade to the
// sentinel path instead of being dropped silently.
func (e *Engine) GenerateBlocks(records []Record, strategy models.BlockingStrategy) map[string][]Record {
	blocks := make(map[string][]Record)

	// A strategy with no usable rule at all cannot drop records: everything
	// lands in the sentinel block and gets compared.
	if misconfigured(strategy) {
		for _, record := range records {
			blocks[models.UnkeyedBlockKey] = append(blocks[models.UnkeyedBlockKey], record)
		}
		return blocks
	}

	for _, record := range records {
		keys := e.KeysFor(record.Data, strategy)
		if len(keys) == 0 {
			if strategy.IncludeUnkeyed {
				blocks[models.UnkeyedBlockKey] = append(blocks[models.UnkeyedBlockKey], record)
			}
			continue
		}
		for _, key := range keys {
			blocks[key] = append(blocks[key], record)
		}
	}

	return blocks
}

// KeysFor computes every block key a record produces under a strategy.
// The keys are also what adapter-backed resolution queries storage with.
func (e *Engine) KeysFor(data models.Record, strategy models.BlockingStrategy) []string {
	type ruleKey struct {
		rule models.BlockingRule
		key  string
	}

	var produced []ruleKey
	for _, rule := range strategy.Rules {
		key, ok := e.ruleKey(data, rule)
		if !ok {
			continue
		}
		produced = append(produced, ruleKey{rule: rule, key: key})
	}

	if len(produced) == 0 {
		return nil
	}

	// An exclusive rule's key overrides everything else for this record
	for _, rk := range produced {
		if rk.rule.Exclusive {
			return []string{rk.key}
		}
	}

	if strategy.Mode == models.BlockingModeIntersect {
		// Intersection requires every configured rule to produce a key
		if len(produced) < len(strategy.Rules) {
			return nil
		}
		parts := make([]string, len(produced))
		for i, rk := range produced {
			parts[i] = rk.key
		}
		return []string{strings.Join(parts, "&")}
	}

	keys := make([]string, 0, len(produced))
	seen := make(map[string]bool, len(produced))
	for _, rk := range produced {
		if seen[rk.key] {
			continue
		}
		seen[rk.key] = true
		keys = append(keys, rk.key)
	}
	return keys
}

// ruleKey computes a single rule's block key. Keys are namespaced by field
// and transform so different rules never collide on raw values.
func (e *Engine) ruleKey(data models.Record, rule models.BlockingRule) (string, bool) {
	if rule.Field == "" {
		return "", false
	}

	path, ok := e.paths[rule.Field]
	if !ok {
		compiled, err := fieldpath.Compile(rule.Field)
		if err != nil {
			return "", false
		}
		e.paths[rule.Field] = compiled
		path = compiled
	}

	value, found := path.Resolve(map[string]any(data))
	if !found || value == nil {
		return "", false
	}

	raw := strings.TrimSpace(comparators.Stringify(value))
	if raw == "" {
		return "", false
	}

	var keyed string
	switch rule.Transform {
	case models.BlockingTransformFirstLetter:
		keyed = strings.ToLower(string([]rune(raw)[0]))
	case models.BlockingTransformSoundex:
		keyed = comparators.SoundexCode(raw)
	case models.BlockingTransformMetaphone:
		keyed = comparators.MetaphoneCode(raw)
	default:
		keyed = strings.ToLower(raw)
	}

	if keyed == "" {
		return "", false
	}

	return fmt.Sprintf("%s|%s:%s", rule.Field, transformName(rule.Transform), keyed), true
}

// misconfigured reports whether no rule in the strategy can ever produce a key
func misconfigured(strategy models.BlockingStrategy) bool {
	for _, rule := range strategy.Rules {
		if rule.Field != "" {
			return false
		}
	}
	return true
}

func transformName(t models.BlockingTransform) string {
	if t == "" {
		return string(models.BlockingTransformExact)
	}
	return string(t)
}

// GeneratePairs yields each unordered pair of co-blocked records exactly
// once, de-duplicated across overlapping blocks. Pairs are ordered A < B
// by record id and returned sorted for deterministic iteration.
func (e *Engine) GeneratePairs(blocks map[string][]Record) []models.RecordPair {
	seen := make(map[models.RecordPair]bool)
	var pairs []models.RecordPair

	for _, block := range blocks {
		for i := 0; i < len(block); i++ {
			for j := i + 1; j < len(block); j++ {
				a, b := block[i].ID, block[j].ID
				if a == b {
					continue
				}
				if a > b {
					a, b = b, a
				}
				pair := models.RecordPair{A: a, B: b}
				if seen[pair] {
					continue
				}
				seen[pair] = true
				pairs = append(pairs, pair)
			}
		}
	}

	sort.Slice(pairs, func(i, j int) bool {
		if pairs[i].A != pairs[j].A {
			return pairs[i].A < pairs[j].A
		}
		return pairs[i].B < pairs[j].B
	})

	return pairs
}

// BlocksFor returns the subset of blocks a candidate record belongs to,
// used to narrow a population before single-candidate resolution.
func (e *Engine) BlocksFor(candidate models.Record, blocks map[string][]Record, strategy models.BlockingStrategy) []Record {
	keys := e.KeysFor(candidate, strategy)
	if len(keys) == 0 {
		if strategy.IncludeUnkeyed {
			keys = []string{models.UnkeyedBlockKey}
		} else {
			return nil
		}
	}

	var result []Record
	seen := make(map[string]bool)
	for _, key := range keys {
		for _, record := range blocks[key] {
			if seen[record.ID] {
				continue
			}
			seen[record.ID] = true
			result = append(result, record)
		}
	}
	return result
}
