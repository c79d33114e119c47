package fieldpath

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func record() map[string]any {
	return map[string]any{
		"name": "Alice",
		"address": map[string]any{
			"city": "Portland",
			"zip":  "97201",
		},
		"emails": []any{"alice@example.com", "a.smith@example.com"},
		"phones": []any{
			map[string]any{"type": "home", "number": "555-0100"},
			map[string]any{"type": "work", "number": "555-0101"},
		},
		"nickname": nil,
	}
}

func TestResolve(t *testing.T) {
	t.Run("top-level key", func(t *testing.T) {
		p := MustCompile("name")
		v, found := p.Resolve(record())
		assert.True(t, found)
		assert.Equal(t, "Alice", v)
	})

	t.Run("nested key", func(t *testing.T) {
		p := MustCompile("address.city")
		v, found := p.Resolve(record())
		assert.True(t, found)
		assert.Equal(t, "Portland", v)
	})

	t.Run("missing segment is undefined", func(t *testing.T) {
		p := MustCompile("address.country")
		_, found := p.Resolve(record())
		assert.False(t, found)
	})

	t.Run("missing intermediate segment is undefined", func(t *testing.T) {
		p := MustCompile("employer.name")
		_, found := p.Resolve(record())
		assert.False(t, found)
	})

	t.Run("present nil value is defined", func(t *testing.T) {
		p := MustCompile("nickname")
		v, found := p.Resolve(record())
		assert.True(t, found)
		assert.Nil(t, v)
	})

	t.Run("array index", func(t *testing.T) {
		p := MustCompile("emails[1]")
		v, found := p.Resolve(record())
		assert.True(t, found)
		assert.Equal(t, "a.smith@example.com", v)
	})

	t.Run("index out of range is undefined", func(t *testing.T) {
		p := MustCompile("emails[5]")
		_, found := p.Resolve(record())
		assert.False(t, found)
	})

	t.Run("index into nested objects", func(t *testing.T) {
		p := MustCompile("phones[1].number")
		v, found := p.Resolve(record())
		assert.True(t, found)
		assert.Equal(t, "555-0101", v)
	})

	t.Run("wildcard returns first non-nil match", func(t *testing.T) {
		p := MustCompile("emails[*]")
		v, found := p.Resolve(record())
		assert.True(t, found)
		assert.Equal(t, "alice@example.com", v)
	})

	t.Run("empty path resolves to the record", func(t *testing.T) {
		p := MustCompile("")
		v, found := p.Resolve(record())
		assert.True(t, found)
		assert.Equal(t, record(), v)
	})

	t.Run("key access on scalar is undefined", func(t *testing.T) {
		p := MustCompile("name.first")
		_, found := p.Resolve(record())
		assert.False(t, found)
	})
}

func TestResolveAll(t *testing.T) {
	t.Run("wildcard collects every element", func(t *testing.T) {
		p := MustCompile("phones[*].number")
		values := p.ResolveAll(record())
		assert.Equal(t, []any{"555-0100", "555-0101"}, values)
	})

	t.Run("plain path yields a single value", func(t *testing.T) {
		p := MustCompile("address.zip")
		values := p.ResolveAll(record())
		assert.Equal(t, []any{"97201"}, values)
	})
}

func TestCompileErrors(t *testing.T) {
	t.Run("invalid index", func(t *testing.T) {
		_, err := Compile("items[abc]")
		assert.Error(t, err)
	})

	t.Run("valid paths compile", func(t *testing.T) {
		for _, path := range []string{"a", "a.b.c", "a[0]", "a[*].b", ""} {
			_, err := Compile(path)
			require.NoError(t, err, path)
		}
	})
}

func TestFromJSON(t *testing.T) {
	m, err := FromJSON([]byte(`{"name":"Bob","age":42}`))
	require.NoError(t, err)
	assert.Equal(t, "Bob", m["name"])

	_, err = FromJSON([]byte(`not json`))
	assert.Error(t, err)
}
