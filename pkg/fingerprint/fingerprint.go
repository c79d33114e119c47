// Package fingerprint produces deterministic content hashes for record data.
// Two records with the same data always hash to the same fingerprint
// regardless of key order, so fingerprint equality is a cheap no-op check
// before re-resolving or re-merging.
package fingerprint

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
	"strings"
)

// Generate creates a deterministic fingerprint for record data
// The fingerprint is a SHA256 hash of the canonicalized JSON
func Generate(data map[string]any) string {
	return GenerateWithExclusions(data, nil)
}

// GenerateWithExclusions creates a fingerprint excluding specified fields.
// The excludeFields set contains dot-notation paths to exclude
// (e.g., "last_synced_at", "metadata.version"). Top-level fields are
// matched directly; nested paths are matched hierarchically.
func GenerateWithExclusions(data map[string]any, excludeFields map[string]bool) string {
	var b strings.Builder
	canonicalize(&b, data, excludeFields, "")

	hash := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(hash[:])
}

// GenerateFromJSON creates a fingerprint from raw JSON
func GenerateFromJSON(data json.RawMessage) (string, error) {
	return GenerateFromJSONWithExclusions(data, nil)
}

// GenerateFromJSONWithExclusions creates a fingerprint from raw JSON,
// excluding specified fields.
func GenerateFromJSONWithExclusions(data json.RawMessage, excludeFields map[string]bool) (string, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return "", err
	}
	return GenerateWithExclusions(m, excludeFields), nil
}

// canonicalize writes a deterministic representation of a value by sorting
// map keys and recursing. currentPath tracks the dot-notation path for
// exclusion matching.
func canonicalize(b *strings.Builder, data any, excludeFields map[string]bool, currentPath string) {
	switch v := data.(type) {
	case map[string]any:
		canonicalizeMap(b, v, excludeFields, currentPath)
	case []any:
		b.WriteByte('[')
		for i, elem := range v {
			if i > 0 {
				b.WriteByte(',')
			}
			// Array elements share the array's path; individual indices
			// cannot be excluded
			canonicalize(b, elem, excludeFields, currentPath)
		}
		b.WriteByte(']')
	default:
		raw, _ := json.Marshal(v)
		b.Write(raw)
	}
}

func canonicalizeMap(b *strings.Builder, m map[string]any, excludeFields map[string]bool, currentPath string) {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	b.WriteByte('{')
	first := true
	for _, k := range keys {
		fieldPath := k
		if currentPath != "" {
			fieldPath = currentPath + "." + k
		}

		if excluded(fieldPath, excludeFields) {
			continue
		}

		if !first {
			b.WriteByte(',')
		}
		first = false

		keyJSON, _ := json.Marshal(k)
		b.Write(keyJSON)
		b.WriteByte(':')
		canonicalize(b, m[k], excludeFields, fieldPath)
	}
	b.WriteByte('}')
}

// excluded checks a field path against the exclusion set. Supports exact
// matches and parent-object prefixes.
func excluded(fieldPath string, excludeFields map[string]bool) bool {
	if excludeFields == nil {
		return false
	}

	if excludeFields[fieldPath] {
		return true
	}

	for prefix := range excludeFields {
		if strings.HasPrefix(fieldPath, prefix+".") {
			return true
		}
	}

	return false
}

// HasChanged compares two fingerprints to detect changes
func HasChanged(oldFingerprint, newFingerprint string) bool {
	return oldFingerprint != newFingerprint
}
