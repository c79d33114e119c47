// Package fieldpath provides compiled dot-path accessors for nested record data
package fieldpath

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Path is a compiled field path expression. Compile once per spec, resolve
// many times per batch.
// Supported syntax:
// - Simple path: "name", "address.city", "user.profile.email"
// - Array access: "items[0]", "data.results[2].value"
// - Wildcard: "users[*].email" returns first non-nil match
type Path struct {
	raw   string
	parts []pathPart
}

// pathPart represents a parsed path segment
type pathPart struct {
	key        string
	isArray    bool
	arrayIndex int
	isWildcard bool
}

// Compile parses a path expression. An empty path resolves to the record itself.
func Compile(path string) (*Path, error) {
	parts, err := parsePath(path)
	if err != nil {
		return nil, fmt.Errorf("invalid field path %q: %w", path, err)
	}
	return &Path{raw: path, parts: parts}, nil
}

// MustCompile is Compile for paths known valid at build time
func MustCompile(path string) *Path {
	p, err := Compile(path)
	if err != nil {
		panic(err)
	}
	return p
}

// String returns the original path expression
func (p *Path) String() string {
	return p.raw
}

// Resolve walks the path through data. The second return distinguishes a
// present nil value from an absent one: a missing segment anywhere along
// the path means the field is undefined.
func (p *Path) Resolve(data any) (any, bool) {
	if len(p.parts) == 0 {
		return data, true
	}

	current := data
	for _, part := range p.parts {
		value, found := resolvePart(current, part)
		if !found {
			return nil, false
		}
		current = value
		if current == nil {
			return nil, true
		}
	}

	return current, true
}

// ResolveAll collects every value a wildcard path reaches
func (p *Path) ResolveAll(data any) []any {
	results := []any{data}

	for _, part := range p.parts {
		var next []any
		for _, current := range results {
			if current == nil {
				continue
			}

			if part.isWildcard {
				value := current
				if part.key != "" {
					v, found := resolveKey(current, part.key)
					if !found {
						continue
					}
					value = v
				}
				if arr, ok := toArray(value); ok {
					next = append(next, arr...)
				}
			} else {
				value, found := resolvePart(current, part)
				if found && value != nil {
					next = append(next, value)
				}
			}
		}
		results = next
	}

	return results
}

// parsePath parses a dot-notation expression into parts
func parsePath(path string) ([]pathPart, error) {
	var parts []pathPart

	for _, seg := range splitPath(path) {
		part := pathPart{key: seg}

		if idx := strings.Index(seg, "["); idx != -1 {
			if !strings.HasSuffix(seg, "]") {
				return nil, fmt.Errorf("unterminated bracket in segment %q", seg)
			}
			part.key = seg[:idx]
			indexPart := seg[idx+1 : len(seg)-1]

			if indexPart == "*" {
				part.isWildcard = true
				part.isArray = true
			} else {
				i, err := strconv.Atoi(indexPart)
				if err != nil {
					return nil, fmt.Errorf("invalid array index %q", indexPart)
				}
				part.isArray = true
				part.arrayIndex = i
			}
		}

		parts = append(parts, part)
	}

	return parts, nil
}

// splitPath splits a dot-notation path, respecting array brackets
func splitPath(path string) []string {
	var parts []string
	var current strings.Builder

	inBracket := false
	for _, c := range path {
		switch c {
		case '[':
			inBracket = true
			current.WriteRune(c)
		case ']':
			inBracket = false
			current.WriteRune(c)
		case '.':
			if !inBracket {
				if current.Len() > 0 {
					parts = append(parts, current.String())
					current.Reset()
				}
			} else {
				current.WriteRune(c)
			}
		default:
			current.WriteRune(c)
		}
	}

	if current.Len() > 0 {
		parts = append(parts, current.String())
	}

	return parts
}

// resolvePart resolves a single segment against a value
func resolvePart(data any, part pathPart) (any, bool) {
	value := data

	if part.key != "" {
		v, found := resolveKey(data, part.key)
		if !found {
			return nil, false
		}
		value = v
	}

	if part.isArray && !part.isWildcard {
		arr, ok := toArray(value)
		if !ok {
			return nil, false
		}
		if part.arrayIndex < 0 || part.arrayIndex >= len(arr) {
			return nil, false
		}
		return arr[part.arrayIndex], true
	}

	if part.isWildcard {
		arr, ok := toArray(value)
		if !ok {
			return nil, false
		}
		// First non-nil element
		for _, v := range arr {
			if v != nil {
				return v, true
			}
		}
		return nil, false
	}

	return value, true
}

func resolveKey(data any, key string) (any, bool) {
	switch v := data.(type) {
	case map[string]any:
		val, ok := v[key]
		return val, ok
	case map[string]string:
		val, ok := v[key]
		return val, ok
	default:
		return nil, false
	}
}

// toArray converts a value to an array
func toArray(v any) ([]any, bool) {
	switch arr := v.(type) {
	case []any:
		return arr, true
	case []string:
		result := make([]any, len(arr))
		for i, s := range arr {
			result[i] = s
		}
		return result, true
	case []map[string]any:
		result := make([]any, len(arr))
		for i, m := range arr {
			result[i] = m
		}
		return result, true
	default:
		return nil, false
	}
}

// FromJSON parses JSON data and returns it as a map
func FromJSON(data json.RawMessage) (map[string]any, error) {
	var m map[string]any
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return m, nil
}
