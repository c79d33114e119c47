package comparators

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry(t *testing.T) {
	r := NewRegistry()

	t.Run("all built-ins are registered", func(t *testing.T) {
		for _, name := range []string{Exact, Levenshtein, Jaro, JaroWinkler, Soundex, Metaphone, Numeric, Date} {
			c, err := r.Get(name)
			assert.NoError(t, err)
			assert.NotNil(t, c)
		}
	})

	t.Run("unknown name returns error", func(t *testing.T) {
		_, err := r.Get("cosine")
		assert.Error(t, err)
		assert.Contains(t, err.Error(), "unknown comparator")
	})

	t.Run("custom comparator can be registered", func(t *testing.T) {
		err := r.Register("always_half", Func(func(a, b any, opts Options) float64 {
			return 0.5
		}))
		require.NoError(t, err)

		c, err := r.Get("always_half")
		require.NoError(t, err)
		assert.Equal(t, 0.5, c.Compare("x", "y", Options{}))
	})

	t.Run("duplicate registration is rejected", func(t *testing.T) {
		err := r.Register(Exact, Func(func(a, b any, opts Options) float64 { return 0 }))
		assert.Error(t, err)
	})

	t.Run("empty name is rejected", func(t *testing.T) {
		err := r.Register("", Func(func(a, b any, opts Options) float64 { return 0 }))
		assert.Error(t, err)
	})
}

func TestExactComparator(t *testing.T) {
	r := NewRegistry()
	c, err := r.Get(Exact)
	require.NoError(t, err)

	t.Run("case-insensitive by default", func(t *testing.T) {
		assert.Equal(t, 1.0, c.Compare("Alice", "ALICE", Options{}))
	})

	t.Run("case-sensitive when requested", func(t *testing.T) {
		assert.Equal(t, 0.0, c.Compare("Alice", "ALICE", Options{CaseSensitive: true}))
		assert.Equal(t, 1.0, c.Compare("Alice", "Alice", Options{CaseSensitive: true}))
	})

	t.Run("only returns 0 or 1", func(t *testing.T) {
		assert.Equal(t, 0.0, c.Compare("Alice", "Alicia", Options{}))
	})

	t.Run("compares non-string values by string form", func(t *testing.T) {
		assert.Equal(t, 1.0, c.Compare(42, 42, Options{}))
		assert.Equal(t, 0.0, c.Compare(42, 43, Options{}))
	})
}

func TestLevenshtein(t *testing.T) {
	t.Run("distance", func(t *testing.T) {
		assert.Equal(t, 0, LevenshteinDistance("kitten", "kitten"))
		assert.Equal(t, 3, LevenshteinDistance("kitten", "sitting"))
		assert.Equal(t, 5, LevenshteinDistance("", "hello"))
		assert.Equal(t, 5, LevenshteinDistance("hello", ""))
	})

	t.Run("similarity is one minus normalized distance", func(t *testing.T) {
		// distance 3, max length 7
		assert.InDelta(t, 1.0-3.0/7.0, LevenshteinSimilarity("kitten", "sitting"), 1e-9)
	})

	t.Run("both empty is a perfect match", func(t *testing.T) {
		assert.Equal(t, 1.0, LevenshteinSimilarity("", ""))
	})

	t.Run("robert vs bob scores strictly between 0 and 1", func(t *testing.T) {
		sim := LevenshteinSimilarity("robert", "bob")
		assert.Greater(t, sim, 0.0)
		assert.Less(t, sim, 1.0)
	})
}

func TestJaroWinkler(t *testing.T) {
	t.Run("identical strings", func(t *testing.T) {
		assert.Equal(t, 1.0, JaroWinklerSimilarity("martha", "martha"))
	})

	t.Run("empty vs non-empty", func(t *testing.T) {
		assert.Equal(t, 0.0, JaroWinklerSimilarity("", "martha"))
	})

	t.Run("classic martha vs marhta", func(t *testing.T) {
		jaro := JaroSimilarity("martha", "marhta")
		assert.InDelta(t, 0.9444, jaro, 0.001)

		// common prefix "mar" of length 3 boosts the score
		jw := JaroWinklerSimilarity("martha", "marhta")
		assert.InDelta(t, jaro+3*0.1*(1.0-jaro), jw, 1e-9)
		assert.Greater(t, jw, jaro)
	})

	t.Run("prefix boost is capped at four characters", func(t *testing.T) {
		jaro := JaroSimilarity("prefixed", "prefixes")
		jw := JaroWinklerSimilarity("prefixed", "prefixes")
		assert.InDelta(t, jaro+4*0.1*(1.0-jaro), jw, 1e-9)
	})

	t.Run("no shared characters", func(t *testing.T) {
		assert.Equal(t, 0.0, JaroSimilarity("abc", "xyz"))
	})
}

func TestSoundex(t *testing.T) {
	t.Run("known codes", func(t *testing.T) {
		assert.Equal(t, "R163", SoundexCode("Robert"))
		assert.Equal(t, "R163", SoundexCode("Rupert"))
		assert.Equal(t, "S530", SoundexCode("Smith"))
		assert.Equal(t, "S530", SoundexCode("Smyth"))
	})

	t.Run("code is always four characters", func(t *testing.T) {
		assert.Len(t, SoundexCode("a"), 4)
		assert.Len(t, SoundexCode("Washington"), 4)
	})

	t.Run("empty input yields empty code", func(t *testing.T) {
		assert.Equal(t, "", SoundexCode(""))
	})

	t.Run("comparator returns 1.0 on matching codes", func(t *testing.T) {
		r := NewRegistry()
		c, err := r.Get(Soundex)
		require.NoError(t, err)
		assert.Equal(t, 1.0, c.Compare("Smith", "Smyth", Options{}))
		assert.Equal(t, 0.0, c.Compare("Smith", "Jones", Options{}))
	})
}

func TestMetaphone(t *testing.T) {
	t.Run("homophones share a code", func(t *testing.T) {
		assert.Equal(t, MetaphoneCode("phone"), MetaphoneCode("fone"))
	})

	t.Run("code is at most six characters", func(t *testing.T) {
		assert.LessOrEqual(t, len(MetaphoneCode("incomprehensibilities")), 6)
	})

	t.Run("non-letters are stripped", func(t *testing.T) {
		assert.Equal(t, MetaphoneCode("OBrien"), MetaphoneCode("O'Brien"))
	})

	t.Run("partial credit falls back to jaro-winkler on codes", func(t *testing.T) {
		r := NewRegistry()
		c, err := r.Get(Metaphone)
		require.NoError(t, err)

		strict := c.Compare("Katherine", "Catrin", Options{})
		partial := c.Compare("Katherine", "Catrin", Options{PartialCredit: true})
		if strict == 0.0 {
			assert.Greater(t, partial, 0.0)
			assert.Less(t, partial, 1.0)
		} else {
			assert.Equal(t, 1.0, partial)
		}
	})
}

func TestNumericComparator(t *testing.T) {
	r := NewRegistry()
	c, err := r.Get(Numeric)
	require.NoError(t, err)

	t.Run("exact equality without tolerance", func(t *testing.T) {
		assert.Equal(t, 1.0, c.Compare(10.0, 10.0, Options{}))
		assert.Equal(t, 0.0, c.Compare(10.0, 10.5, Options{}))
	})

	t.Run("linear decay inside tolerance", func(t *testing.T) {
		opts := Options{MaxDiff: 10}
		assert.InDelta(t, 0.5, c.Compare(10.0, 15.0, opts), 1e-9)
		assert.Equal(t, 0.0, c.Compare(10.0, 20.0, opts))
		assert.Equal(t, 0.0, c.Compare(10.0, 25.0, opts))
	})

	t.Run("mixed numeric types coerce", func(t *testing.T) {
		assert.Equal(t, 1.0, c.Compare(10, 10.0, Options{}))
	})

	t.Run("non-numeric values score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, c.Compare("ten", 10.0, Options{MaxDiff: 10}))
	})
}

func TestDateComparator(t *testing.T) {
	r := NewRegistry()
	c, err := r.Get(Date)
	require.NoError(t, err)

	t.Run("same day is a perfect match", func(t *testing.T) {
		assert.Equal(t, 1.0, c.Compare("1990-05-01", "1990-05-01", Options{MaxDaysDiff: 30}))
	})

	t.Run("linear decay up to max days", func(t *testing.T) {
		a := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
		b := time.Date(2024, 1, 16, 0, 0, 0, 0, time.UTC)
		assert.InDelta(t, 0.5, c.Compare(a, b, Options{MaxDaysDiff: 30}), 1e-9)
	})

	t.Run("beyond max days scores zero", func(t *testing.T) {
		assert.Equal(t, 0.0, c.Compare("2024-01-01", "2024-03-01", Options{MaxDaysDiff: 30}))
	})

	t.Run("unparseable dates score zero", func(t *testing.T) {
		assert.Equal(t, 0.0, c.Compare("not-a-date", "2024-01-01", Options{MaxDaysDiff: 30}))
	})

	t.Run("rfc3339 strings parse", func(t *testing.T) {
		assert.Equal(t, 1.0, c.Compare("2024-01-01T12:00:00Z", "2024-01-01T12:00:00Z", Options{MaxDaysDiff: 1}))
	})
}

func TestOptionsFromMap(t *testing.T) {
	t.Run("nil map yields zero options", func(t *testing.T) {
		assert.Equal(t, Options{}, OptionsFromMap(nil))
	})

	t.Run("reads known keys", func(t *testing.T) {
		opts := OptionsFromMap(map[string]any{
			"max_days_diff":  float64(30),
			"max_diff":       2.5,
			"partial_credit": true,
			"date_layout":    "01/02/2006",
		})
		assert.Equal(t, 30, opts.MaxDaysDiff)
		assert.Equal(t, 2.5, opts.MaxDiff)
		assert.True(t, opts.PartialCredit)
		assert.Equal(t, "01/02/2006", opts.DateLayout)
	})
}
