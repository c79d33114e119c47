package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Record is parsed record data: an opaque mapping from field name to value.
// The pipeline never mutates a Record it was given.
type Record = map[string]any

// SourceRecord is a raw record as supplied by an upstream integration.
// When its cluster is merged into a golden record the row is archived
// (ArchivedAt set, GoldenRecordID pointing at the golden record) and
// restored verbatim on unmerge.
type SourceRecord struct {
	ID             string          `json:"id" db:"id"`
	TenantID       string          `json:"tenant_id" db:"tenant_id"`
	RecordType     string          `json:"record_type" db:"record_type"`
	Integration    string          `json:"integration" db:"integration"`
	Data           json.RawMessage `json:"data" db:"data"`
	Fingerprint    string          `json:"fingerprint" db:"fingerprint"`
	GoldenRecordID *string         `json:"golden_record_id,omitempty" db:"golden_record_id"`
	ArchivedAt     *time.Time      `json:"archived_at,omitempty" db:"archived_at"`
	CreatedAt      time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt      time.Time       `json:"updated_at" db:"updated_at"`
}

// ParseData unmarshals the raw record data. A nil Data yields an empty map.
func (r *SourceRecord) ParseData() (Record, error) {
	if len(r.Data) == 0 {
		return Record{}, nil
	}
	var data Record
	if err := json.Unmarshal(r.Data, &data); err != nil {
		return nil, fmt.Errorf("failed to parse record %s data: %w", r.ID, err)
	}
	return data, nil
}

// GoldenRecord is the merged record representing a confirmed duplicate
// cluster. Storage is caller-owned; the pipeline only creates and deletes
// golden records through adapter callbacks.
type GoldenRecord struct {
	ID              string          `json:"id" db:"id"`
	TenantID        string          `json:"tenant_id" db:"tenant_id"`
	RecordType      string          `json:"record_type" db:"record_type"`
	Data            json.RawMessage `json:"data" db:"data"`
	SourceCount     int             `json:"source_count" db:"source_count"`
	PrimarySourceID *string         `json:"primary_source_id,omitempty" db:"primary_source_id"`
	Version         int             `json:"version" db:"version"`
	CreatedAt       time.Time       `json:"created_at" db:"created_at"`
	UpdatedAt       time.Time       `json:"updated_at" db:"updated_at"`
	DeletedAt       *time.Time      `json:"deleted_at,omitempty" db:"deleted_at"`
}

// StringList is a []string stored as a JSONB column.
type StringList []string

func (l *StringList) Scan(src any) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("StringList.Scan: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, l)
}

func (l StringList) Value() (driver.Value, error) {
	return json.Marshal(l)
}

// StrategyMap maps field name to the merge strategy applied to it,
// stored as a JSONB column.
type StrategyMap map[string]string

func (m *StrategyMap) Scan(src any) error {
	b, ok := src.([]byte)
	if !ok {
		return fmt.Errorf("StrategyMap.Scan: expected []byte, got %T", src)
	}
	return json.Unmarshal(b, m)
}

func (m StrategyMap) Value() (driver.Value, error) {
	return json.Marshal(m)
}
