package models

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseFieldSpecs(t *testing.T) {
	rule := &LinkageRule{
		FieldSpecs: json.RawMessage(`[
			{"field": "name", "comparator": "jaro_winkler", "weight": 2},
			{"field": "email", "comparator": "exact", "weight": 5}
		]`),
	}

	specs, err := rule.ParseFieldSpecs()
	require.NoError(t, err)
	require.Len(t, specs, 2)
	assert.Equal(t, "name", specs[0].Field)
	assert.Equal(t, "jaro_winkler", specs[0].Comparator)
	assert.Equal(t, 5.0, specs[1].Weight)
}

func TestParseFieldSpecsInvalid(t *testing.T) {
	rule := &LinkageRule{FieldSpecs: json.RawMessage(`{"not": "a list"}`)}
	_, err := rule.ParseFieldSpecs()
	assert.Error(t, err)
}

func TestParseBlocking(t *testing.T) {
	t.Run("Empty", func(t *testing.T) {
		rule := &LinkageRule{}
		strategy, err := rule.ParseBlocking()
		require.NoError(t, err)
		assert.Nil(t, strategy)
	})

	t.Run("Configured", func(t *testing.T) {
		rule := &LinkageRule{
			Blocking: json.RawMessage(`{"name": "zip", "mode": "all", "rules": [{"field": "address.zip"}]}`),
		}
		strategy, err := rule.ParseBlocking()
		require.NoError(t, err)
		require.NotNil(t, strategy)
		assert.Equal(t, "zip", strategy.Name)
		require.Len(t, strategy.Rules, 1)
	})

	t.Run("Invalid", func(t *testing.T) {
		rule := &LinkageRule{Blocking: json.RawMessage(`[1,2]`)}
		_, err := rule.ParseBlocking()
		assert.Error(t, err)
	})
}

func TestThresholdsValidate(t *testing.T) {
	assert.NoError(t, MatchThresholds{NoMatchBelow: 5, DefiniteMatchFrom: 12}.Validate())
	assert.Error(t, MatchThresholds{NoMatchBelow: -1, DefiniteMatchFrom: 12}.Validate())
	assert.Error(t, MatchThresholds{NoMatchBelow: 12, DefiniteMatchFrom: 12}.Validate())
	assert.Error(t, MatchThresholds{NoMatchBelow: 12, DefiniteMatchFrom: 5}.Validate())
}
