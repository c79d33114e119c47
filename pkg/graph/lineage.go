package graph

import (
	"context"
	"fmt"
	"strings"

	"github.com/Gobusters/ectologger"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/tracing"
)

// LineageService mirrors merge lineage into the graph database: a node per
// golden record with DERIVED_FROM edges to its source record nodes. The
// graph is a projection of the relational provenance, so writes here are
// best-effort from the caller's perspective.
type LineageService struct {
	client *Client
	logger ectologger.Logger
}

// NewLineageService creates a new lineage service
func NewLineageService(client *Client, logger ectologger.Logger) *LineageService {
	return &LineageService{
		client: client,
		logger: logger,
	}
}

// RecordMerge creates the golden node and its DERIVED_FROM edges
func (s *LineageService) RecordMerge(ctx context.Context, result *models.MergeResult) error {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageService.RecordMerge")
	defer span.End()

	golden := result.GoldenRecord
	log := s.logger.WithContext(ctx).WithFields(map[string]any{
		"golden_record_id": golden.ID,
		"record_type":      golden.RecordType,
		"tenant_id":        golden.TenantID,
	})

	label := sanitizeLabel(golden.RecordType)
	cypher := fmt.Sprintf(`
		MERGE (g:Golden:%s {id: $golden_id, tenant_id: $tenant_id})
		SET g.record_type = $record_type,
		    g.source_count = $source_count,
		    g.version = $version,
		    g.merged_at = $merged_at
		WITH g
		UNWIND $source_ids AS source_id
		MERGE (s:Source {id: source_id, tenant_id: $tenant_id})
		MERGE (g)-[:DERIVED_FROM]->(s)
		RETURN g
	`, label)

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"golden_id":    golden.ID,
			"tenant_id":    golden.TenantID,
			"record_type":  golden.RecordType,
			"source_count": golden.SourceCount,
			"version":      golden.Version,
			"merged_at":    result.Provenance.MergedAt.UTC().Format("2006-01-02T15:04:05Z"),
			"source_ids":   result.Provenance.SourceRecordIDs,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		log.WithError(err).Error("Failed to record merge lineage in graph")
		return fmt.Errorf("failed to record merge lineage: %w", err)
	}

	log.Debug("Recorded merge lineage in graph")
	return nil
}

// RemoveMerge detaches and deletes the golden node after an unmerge.
// Source nodes stay; they describe records that still exist.
func (s *LineageService) RemoveMerge(ctx context.Context, tenantID, goldenID string) error {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageService.RemoveMerge")
	defer span.End()

	cypher := `
		MATCH (g:Golden {id: $golden_id, tenant_id: $tenant_id})
		DETACH DELETE g
	`

	_, err := s.client.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		result, err := tx.Run(ctx, cypher, map[string]any{
			"golden_id": goldenID,
			"tenant_id": tenantID,
		})
		if err != nil {
			return nil, err
		}
		return result.Consume(ctx)
	})

	if err != nil {
		s.logger.WithContext(ctx).WithError(err).WithFields(map[string]any{
			"golden_record_id": goldenID,
		}).Error("Failed to remove merge lineage from graph")
		return fmt.Errorf("failed to remove merge lineage: %w", err)
	}

	return nil
}

// Sources returns the source record ids a golden record derives from
func (s *LineageService) Sources(ctx context.Context, tenantID, goldenID string) ([]string, error) {
	ctx, span := tracing.StartSpan(ctx, "graph.LineageService.Sources")
	defer span.End()

	cypher := `
		MATCH (g:Golden {id: $golden_id, tenant_id: $tenant_id})-[:DERIVED_FROM]->(s:Source)
		RETURN s.id AS id
		ORDER BY s.id
	`

	result, err := s.client.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, cypher, map[string]any{
			"golden_id": goldenID,
			"tenant_id": tenantID,
		})
		if err != nil {
			return nil, err
		}

		var ids []string
		for res.Next(ctx) {
			if id, ok := res.Record().Get("id"); ok {
				if str, ok := id.(string); ok {
					ids = append(ids, str)
				}
			}
		}
		return ids, res.Err()
	})

	if err != nil {
		return nil, fmt.Errorf("failed to query merge lineage: %w", err)
	}

	ids, _ := result.([]string)
	return ids, nil
}

// sanitizeLabel strips characters that are not valid in a Cypher label
func sanitizeLabel(label string) string {
	var b strings.Builder
	for _, r := range label {
		if (r >= 'a' && r <= 'z') || (r >= 'A' && r <= 'Z') || (r >= '0' && r <= '9') || r == '_' {
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "Record"
	}
	return b.String()
}
