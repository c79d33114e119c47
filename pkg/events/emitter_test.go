package events

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/Gobusters/ectologger"
	"github.com/stretchr/testify/assert"

	"github.com/Ramsey-B/clover/pkg/models"
)

func testLogger() ectologger.Logger {
	return ectologger.NewEctoLogger(func(_ ectologger.EctoLogMessage) {})
}

func TestEmitterWithoutProducer(t *testing.T) {
	emitter := NewEmitter(nil, testLogger())
	ctx := context.Background()

	result := &models.MergeResult{
		GoldenRecord: &models.GoldenRecord{
			ID:         "g1",
			TenantID:   "t1",
			RecordType: "person",
			Data:       json.RawMessage(`{"name":"Ada"}`),
			Version:    1,
		},
		Provenance: &models.Provenance{
			ID:              "p1",
			TenantID:        "t1",
			GoldenRecordID:  "g1",
			SourceRecordIDs: models.StringList{"s1", "s2"},
		},
	}

	assert.NoError(t, emitter.EmitGoldenCreated(ctx, result))
	assert.NoError(t, emitter.EmitGoldenDeleted(ctx, "t1", "g1", "person", 1))
	assert.NoError(t, emitter.EmitGoldenUnmerged(ctx, "t1", "person", &models.UnmergeResult{
		GoldenRecordID:    "g1",
		RestoredRecordIDs: []string{"s1", "s2"},
	}))

	item := &models.ReviewQueueItem{
		ID:                "q1",
		TenantID:          "t1",
		RecordType:        "person",
		CandidateRecordID: "s1",
		MatchedRecordID:   "s2",
		Score:             12.5,
	}
	assert.NoError(t, emitter.EmitMatchCandidate(ctx, item))
	assert.NoError(t, emitter.EmitMatchResolved(ctx, item, models.DecisionActionConfirm))
}
