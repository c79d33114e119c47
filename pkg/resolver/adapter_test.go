package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Ramsey-B/clover/pkg/comparators"
	"github.com/Ramsey-B/clover/pkg/models"
)

// fakeAdapter serves a fixed population and records how it was queried
type fakeAdapter struct {
	records []models.SourceRecord

	findAllCalls int
	findAllLimit int
	byKeysCalls  int
	byKeysKeys   []string
	byKeysLimit  int
}

func (f *fakeAdapter) FindAll(_ context.Context, _, _ string, limit int) ([]models.SourceRecord, error) {
	f.findAllCalls++
	f.findAllLimit = limit
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeAdapter) FindByBlockingKeys(_ context.Context, _, _ string, keys []string, limit int) ([]models.SourceRecord, error) {
	f.byKeysCalls++
	f.byKeysKeys = keys
	f.byKeysLimit = limit
	if limit < len(f.records) {
		return f.records[:limit], nil
	}
	return f.records, nil
}

func (f *fakeAdapter) Count(_ context.Context, _, _ string) (int, error) {
	return len(f.records), nil
}

func (f *fakeAdapter) Insert(_ context.Context, _ *models.SourceRecord) error { return nil }

func (f *fakeAdapter) Update(_ context.Context, _ *models.SourceRecord) error { return nil }

func (f *fakeAdapter) Delete(_ context.Context, _, _ string) error { return nil }

func (f *fakeAdapter) BatchInsert(_ context.Context, _ []*models.SourceRecord) error { return nil }

func (f *fakeAdapter) BatchUpdate(_ context.Context, _ []*models.SourceRecord) error { return nil }

func (f *fakeAdapter) Transaction(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

var _ RecordAdapter = (*fakeAdapter)(nil)

func srec(id, name, email string) models.SourceRecord {
	return models.SourceRecord{
		ID:   id,
		Data: json.RawMessage(fmt.Sprintf(`{"name": %q, "email": %q}`, name, email)),
	}
}

func TestNewAdapterResolver(t *testing.T) {
	registry := comparators.NewRegistry()
	r, err := New(testLogger(), registry, testConfig())
	require.NoError(t, err)

	t.Run("requires a resolver", func(t *testing.T) {
		_, err := NewAdapterResolver(nil, &fakeAdapter{}, 10)
		assert.Error(t, err)
	})

	t.Run("requires an adapter", func(t *testing.T) {
		_, err := NewAdapterResolver(r, nil, 10)
		assert.Error(t, err)
	})

	t.Run("defaults max fetch", func(t *testing.T) {
		fake := &fakeAdapter{}
		ar, err := NewAdapterResolver(r, fake, 0)
		require.NoError(t, err)

		_, err = ar.Resolve(context.Background(), "t1", "person", rec("c", "Alice", "alice@example.com"))
		require.NoError(t, err)
		assert.Equal(t, 1000, fake.findAllLimit)
	})
}

func TestAdapterResolverResolve(t *testing.T) {
	registry := comparators.NewRegistry()

	t.Run("fetches the full population without blocking keys", func(t *testing.T) {
		r, err := New(testLogger(), registry, testConfig())
		require.NoError(t, err)

		fake := &fakeAdapter{records: []models.SourceRecord{
			srec("1", "Alice Smith", "alice@example.com"),
			srec("2", "Zzyzx", "nobody@nowhere.org"),
		}}
		ar, err := NewAdapterResolver(r, fake, 100)
		require.NoError(t, err)

		results, err := ar.Resolve(context.Background(), "t1", "person", rec("c", "Alice Smith", "alice@example.com"))
		require.NoError(t, err)

		assert.Equal(t, 1, fake.findAllCalls)
		assert.Equal(t, 0, fake.byKeysCalls)
		require.NotEmpty(t, results)
		assert.Equal(t, "1", results[0].RecordID)
		require.NotNil(t, results[0].Record)
		assert.Equal(t, "1", results[0].Record.ID)
	})

	t.Run("queries by the candidate's blocking keys", func(t *testing.T) {
		cfg := testConfig()
		cfg.Blocking = &models.BlockingStrategy{
			Name: "first-letter",
			Mode: models.BlockingModeUnion,
			Rules: []models.BlockingRule{
				{Field: "name", Transform: models.BlockingTransformFirstLetter},
			},
		}
		r, err := New(testLogger(), registry, cfg)
		require.NoError(t, err)

		fake := &fakeAdapter{records: []models.SourceRecord{
			srec("1", "Alice Smith", "alice@example.com"),
		}}
		ar, err := NewAdapterResolver(r, fake, 100)
		require.NoError(t, err)

		_, err = ar.Resolve(context.Background(), "t1", "person", rec("c", "Alice Smith", "alice@example.com"))
		require.NoError(t, err)

		assert.Equal(t, 0, fake.findAllCalls)
		assert.Equal(t, 1, fake.byKeysCalls)
		assert.NotEmpty(t, fake.byKeysKeys)
	})

	t.Run("bounds every fetch to max fetch", func(t *testing.T) {
		r, err := New(testLogger(), registry, testConfig())
		require.NoError(t, err)

		fake := &fakeAdapter{records: []models.SourceRecord{
			srec("1", "Alice", "alice@example.com"),
			srec("2", "Alice", "alice@example.com"),
			srec("3", "Alice", "alice@example.com"),
		}}
		ar, err := NewAdapterResolver(r, fake, 2)
		require.NoError(t, err)

		results, err := ar.Resolve(context.Background(), "t1", "person", rec("c", "Alice", "alice@example.com"))
		require.NoError(t, err)

		assert.Equal(t, 2, fake.findAllLimit)
		assert.Len(t, results, 2)
	})

	t.Run("skips stored records with unreadable data", func(t *testing.T) {
		r, err := New(testLogger(), registry, testConfig())
		require.NoError(t, err)

		fake := &fakeAdapter{records: []models.SourceRecord{
			{ID: "bad", Data: json.RawMessage(`{not json`)},
			srec("1", "Alice", "alice@example.com"),
		}}
		ar, err := NewAdapterResolver(r, fake, 100)
		require.NoError(t, err)

		results, err := ar.Resolve(context.Background(), "t1", "person", rec("c", "Alice", "alice@example.com"))
		require.NoError(t, err)

		require.Len(t, results, 1)
		assert.Equal(t, "1", results[0].RecordID)
	})
}

func TestAdapterResolverDedupeStored(t *testing.T) {
	registry := comparators.NewRegistry()

	t.Run("collects unreadable records as per-record errors", func(t *testing.T) {
		r, err := New(testLogger(), registry, testConfig())
		require.NoError(t, err)

		fake := &fakeAdapter{records: []models.SourceRecord{
			srec("1", "Alice", "alice@example.com"),
			srec("2", "Alice", "alice@example.com"),
			{ID: "bad", Data: json.RawMessage(`{not json`)},
		}}
		ar, err := NewAdapterResolver(r, fake, 100)
		require.NoError(t, err)

		result, err := ar.DedupeStored(context.Background(), "t1", "person")
		require.NoError(t, err)

		require.Contains(t, result.Errors, "bad")
		assert.Contains(t, result.Errors["bad"], "unreadable record data")
		assert.Equal(t, 3, result.Stats.RecordsProcessed)
		assert.NotEmpty(t, result.Matches["1"])
	})

	t.Run("dedupes the bounded population", func(t *testing.T) {
		r, err := New(testLogger(), registry, testConfig())
		require.NoError(t, err)

		fake := &fakeAdapter{records: []models.SourceRecord{
			srec("1", "Alice", "alice@example.com"),
			srec("2", "Alice", "alice@example.com"),
			srec("3", "Alice", "alice@example.com"),
		}}
		ar, err := NewAdapterResolver(r, fake, 2)
		require.NoError(t, err)

		result, err := ar.DedupeStored(context.Background(), "t1", "person")
		require.NoError(t, err)

		assert.Equal(t, 2, fake.findAllLimit)
		assert.Equal(t, 2, result.Stats.RecordsProcessed)
	})
}
