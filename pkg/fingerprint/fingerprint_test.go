package fingerprint

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestGenerate(t *testing.T) {
	t.Run("key order does not affect the fingerprint", func(t *testing.T) {
		a := map[string]any{"first_name": "John", "last_name": "Doe", "age": 42}
		b := map[string]any{"age": 42, "last_name": "Doe", "first_name": "John"}
		assert.Equal(t, Generate(a), Generate(b))
	})

	t.Run("different data yields different fingerprints", func(t *testing.T) {
		a := map[string]any{"name": "John"}
		b := map[string]any{"name": "Jane"}
		assert.NotEqual(t, Generate(a), Generate(b))
	})

	t.Run("nested maps are canonicalized", func(t *testing.T) {
		a := map[string]any{"address": map[string]any{"city": "Portland", "zip": "97201"}}
		b := map[string]any{"address": map[string]any{"zip": "97201", "city": "Portland"}}
		assert.Equal(t, Generate(a), Generate(b))
	})

	t.Run("array order matters", func(t *testing.T) {
		a := map[string]any{"tags": []any{"x", "y"}}
		b := map[string]any{"tags": []any{"y", "x"}}
		assert.NotEqual(t, Generate(a), Generate(b))
	})

	t.Run("fingerprint is a 64-char hex string", func(t *testing.T) {
		fp := Generate(map[string]any{"name": "John"})
		assert.Len(t, fp, 64)
	})
}

func TestGenerateWithExclusions(t *testing.T) {
	t.Run("excluded field is ignored", func(t *testing.T) {
		a := map[string]any{"name": "John", "last_synced_at": "2024-01-01"}
		b := map[string]any{"name": "John", "last_synced_at": "2024-06-01"}
		exclude := map[string]bool{"last_synced_at": true}
		assert.Equal(t,
			GenerateWithExclusions(a, exclude),
			GenerateWithExclusions(b, exclude),
		)
	})

	t.Run("nested path exclusion", func(t *testing.T) {
		a := map[string]any{"name": "John", "metadata": map[string]any{"version": 1, "source": "crm"}}
		b := map[string]any{"name": "John", "metadata": map[string]any{"version": 2, "source": "crm"}}
		exclude := map[string]bool{"metadata.version": true}
		assert.Equal(t,
			GenerateWithExclusions(a, exclude),
			GenerateWithExclusions(b, exclude),
		)
	})

	t.Run("excluding a parent drops the whole subtree", func(t *testing.T) {
		a := map[string]any{"name": "John", "metadata": map[string]any{"version": 1}}
		b := map[string]any{"name": "John", "metadata": map[string]any{"version": 2, "extra": true}}
		exclude := map[string]bool{"metadata": true}
		assert.Equal(t,
			GenerateWithExclusions(a, exclude),
			GenerateWithExclusions(b, exclude),
		)
	})
}

func TestGenerateFromJSON(t *testing.T) {
	t.Run("matches map-based fingerprint", func(t *testing.T) {
		fp1, err := GenerateFromJSON(json.RawMessage(`{"b":2,"a":1}`))
		require.NoError(t, err)
		fp2 := Generate(map[string]any{"a": float64(1), "b": float64(2)})
		assert.Equal(t, fp2, fp1)
	})

	t.Run("invalid json errors", func(t *testing.T) {
		_, err := GenerateFromJSON(json.RawMessage(`nope`))
		assert.Error(t, err)
	})
}

func TestHasChanged(t *testing.T) {
	assert.False(t, HasChanged("abc", "abc"))
	assert.True(t, HasChanged("abc", "def"))
}
