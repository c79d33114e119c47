package blocking

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/models"
)

func person(id, name string) Record {
	return Record{ID: id, Data: models.Record{"name": name}}
}

func TestGenerateBlocks(t *testing.T) {
	engine := New()

	t.Run("first letter groups alice and aaron apart from bob", func(t *testing.T) {
		strategy := models.BlockingStrategy{
			Name:  "by-initial",
			Rules: []models.BlockingRule{{Field: "name", Transform: models.BlockingTransformFirstLetter}},
		}
		records := []Record{person("1", "Alice"), person("2", "Aaron"), person("3", "Bob")}

		blocks := engine.GenerateBlocks(records, strategy)
		require.Len(t, blocks, 2)

		aBlock := blocks["name|first_letter:a"]
		require.Len(t, aBlock, 2)
		assert.Equal(t, "1", aBlock[0].ID)
		assert.Equal(t, "2", aBlock[1].ID)
		assert.Len(t, blocks["name|first_letter:b"], 1)
	})

	t.Run("exact transform lowercases the value", func(t *testing.T) {
		strategy := models.BlockingStrategy{
			Rules: []models.BlockingRule{{Field: "name", Transform: models.BlockingTransformExact}},
		}
		blocks := engine.GenerateBlocks([]Record{person("1", "ALICE"), person("2", "alice")}, strategy)
		require.Len(t, blocks, 1)
		assert.Len(t, blocks["name|exact:alice"], 2)
	})

	t.Run("soundex transform co-blocks homophones", func(t *testing.T) {
		strategy := models.BlockingStrategy{
			Rules: []models.BlockingRule{{Field: "name", Transform: models.BlockingTransformSoundex}},
		}
		blocks := engine.GenerateBlocks([]Record{person("1", "Smith"), person("2", "Smyth")}, strategy)
		require.Len(t, blocks, 1)
		assert.Len(t, blocks["name|soundex:S530"], 2)
	})

	t.Run("union mode places a record in every matching rule block", func(t *testing.T) {
		strategy := models.BlockingStrategy{
			Mode: models.BlockingModeUnion,
			Rules: []models.BlockingRule{
				{Field: "name", Transform: models.BlockingTransformFirstLetter},
				{Field: "city", Transform: models.BlockingTransformExact},
			},
		}
		record := Record{ID: "1", Data: models.Record{"name": "Alice", "city": "Portland"}}
		blocks := engine.GenerateBlocks([]Record{record}, strategy)
		assert.Len(t, blocks, 2)
	})

	t.Run("intersect mode produces one compound block", func(t *testing.T) {
		strategy := models.BlockingStrategy{
			Mode: models.BlockingModeIntersect,
			Rules: []models.BlockingRule{
				{Field: "name", Transform: models.BlockingTransformFirstLetter},
				{Field: "city", Transform: models.BlockingTransformExact},
			},
		}
		a := Record{ID: "1", Data: models.Record{"name": "Alice", "city": "Portland"}}
		b := Record{ID: "2", Data: models.Record{"name": "Anna", "city": "Portland"}}
		c := Record{ID: "3", Data: models.Record{"name": "Amy", "city": "Seattle"}}

		blocks := engine.GenerateBlocks([]Record{a, b, c}, strategy)
		require.Len(t, blocks, 2)
		assert.Len(t, blocks["name|first_letter:a&city|exact:portland"], 2)
	})

	t.Run("intersect excludes records missing any rule field", func(t *testing.T) {
		strategy := models.BlockingStrategy{
			Mode: models.BlockingModeIntersect,
			Rules: []models.BlockingRule{
				{Field: "name", Transform: models.BlockingTransformFirstLetter},
				{Field: "city", Transform: models.BlockingTransformExact},
			},
		}
		noCity := Record{ID: "1", Data: models.Record{"name": "Alice"}}
		blocks := engine.GenerateBlocks([]Record{noCity}, strategy)
		assert.Empty(t, blocks)
	})

	t.Run("exclusive rule overrides other keys", func(t *testing.T) {
		strategy := models.BlockingStrategy{
			Rules: []models.BlockingRule{
				{Field: "ssn", Transform: models.BlockingTransformExact, Exclusive: true},
				{Field: "name", Transform: models.BlockingTransformFirstLetter},
			},
		}
		record := Record{ID: "1", Data: models.Record{"ssn": "123456789", "name": "Alice"}}
		blocks := engine.GenerateBlocks([]Record{record}, strategy)
		require.Len(t, blocks, 1)
		assert.Len(t, blocks["ssn|exact:123456789"], 1)
	})

	t.Run("unkeyed records go to the sentinel block when included", func(t *testing.T) {
		strategy := models.BlockingStrategy{
			Rules:          []models.BlockingRule{{Field: "name"}},
			IncludeUnkeyed: true,
		}
		blank := Record{ID: "1", Data: models.Record{}}
		blocks := engine.GenerateBlocks([]Record{blank}, strategy)
		assert.Len(t, blocks[models.UnkeyedBlockKey], 1)
	})

	t.Run("unkeyed records are excluded by default", func(t *testing.T) {
		strategy := models.BlockingStrategy{
			Rules: []models.BlockingRule{{Field: "name"}},
		}
		blank := Record{ID: "1", Data: models.Record{}}
		blocks := engine.GenerateBlocks([]Record{blank}, strategy)
		assert.Empty(t, blocks)
	})

	t.Run("strategy with no usable rules sends everything to the sentinel", func(t *testing.T) {
		strategy := models.BlockingStrategy{Rules: []models.BlockingRule{{Field: ""}}}
		blocks := engine.GenerateBlocks([]Record{person("1", "Alice"), person("2", "Bob")}, strategy)
		assert.Len(t, blocks[models.UnkeyedBlockKey], 2)
	})
}

func TestGeneratePairs(t *testing.T) {
	engine := New()

	t.Run("each unordered pair appears once", func(t *testing.T) {
		blocks := map[string][]Record{
			"k1": {person("1", "a"), person("2", "b"), person("3", "c")},
		}
		pairs := engine.GeneratePairs(blocks)
		assert.Equal(t, []models.RecordPair{
			{A: "1", B: "2"},
			{A: "1", B: "3"},
			{A: "2", B: "3"},
		}, pairs)
	})

	t.Run("overlapping blocks never duplicate a pair", func(t *testing.T) {
		blocks := map[string][]Record{
			"k1": {person("1", "a"), person("2", "b")},
			"k2": {person("2", "b"), person("1", "a")},
		}
		pairs := engine.GeneratePairs(blocks)
		assert.Equal(t, []models.RecordPair{{A: "1", B: "2"}}, pairs)
	})

	t.Run("single-record blocks yield nothing", func(t *testing.T) {
		blocks := map[string][]Record{"k1": {person("1", "a")}}
		assert.Empty(t, engine.GeneratePairs(blocks))
	})
}

func TestBlocksFor(t *testing.T) {
	engine := New()
	strategy := models.BlockingStrategy{
		Rules: []models.BlockingRule{{Field: "name", Transform: models.BlockingTransformFirstLetter}},
	}
	records := []Record{person("1", "Alice"), person("2", "Aaron"), person("3", "Bob")}
	blocks := engine.GenerateBlocks(records, strategy)

	t.Run("narrows to the candidate's block", func(t *testing.T) {
		candidates := engine.BlocksFor(models.Record{"name": "Amy"}, blocks, strategy)
		require.Len(t, candidates, 2)
	})

	t.Run("no key and no sentinel narrows to nothing", func(t *testing.T) {
		assert.Empty(t, engine.BlocksFor(models.Record{}, blocks, strategy))
	})
}
