package models

// BlockingTransform names the key-extraction transform for a blocking rule
type BlockingTransform string

const (
	// BlockingTransformExact uses the lowercased field value as the block key
	BlockingTransformExact BlockingTransform = "exact"
	// BlockingTransformFirstLetter uses the first letter of the field value
	BlockingTransformFirstLetter BlockingTransform = "first_letter"
	// BlockingTransformSoundex uses the Soundex code of the field value
	BlockingTransformSoundex BlockingTransform = "soundex"
	// BlockingTransformMetaphone uses the Metaphone code of the field value
	BlockingTransformMetaphone BlockingTransform = "metaphone"
)

// BlockingMode controls how keys from multiple rules combine
type BlockingMode string

const (
	// BlockingModeUnion places a record in the block of every rule that produces a key
	BlockingModeUnion BlockingMode = "union"
	// BlockingModeIntersect places a record in a single compound block built
	// from all rule keys; records only co-block when every rule agrees
	BlockingModeIntersect BlockingMode = "intersect"
)

// UnkeyedBlockKey is the sentinel block for records whose blocking fields
// are null or absent, used when the strategy includes unkeyed records.
const UnkeyedBlockKey = "__unkeyed__"

// BlockingRule extracts one block key from a record
type BlockingRule struct {
	Field     string            `json:"field"`
	Transform BlockingTransform `json:"transform"`
	// Exclusive makes this rule's key the only key for the record,
	// overriding union behavior for records where it produces a key.
	Exclusive bool `json:"exclusive,omitempty"`
}

// BlockingStrategy partitions a record set into candidate blocks so only
// co-blocked records are compared. This trades recall for speed: records
// that share no block key are never scored.
type BlockingStrategy struct {
	Name  string         `json:"name"`
	Mode  BlockingMode   `json:"mode"`
	Rules []BlockingRule `json:"rules"`
	// IncludeUnkeyed routes records with no usable blocking field into the
	// sentinel block instead of excluding them from comparison.
	IncludeUnkeyed bool `json:"include_unkeyed,omitempty"`
}

// RecordPair is an unordered pair of record indexes produced by pair
// generation; A < B always holds.
type RecordPair struct {
	A string `json:"a"`
	B string `json:"b"`
}
