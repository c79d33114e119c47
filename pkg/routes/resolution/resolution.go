package resolution

import (
	"encoding/json"
	"net/http"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/services/linkage"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reqcontext"
)

// Register registers resolution routes
func Register(g *echo.Group) {
	g.POST("/resolve", ResolveCandidate)
	g.POST("/dedupe", DedupeRecords)
	g.POST("/records", IngestRecord)
}

// ResolveRequest is the request body for resolving a candidate. Either a
// stored record id or inline data must be given.
type ResolveRequest struct {
	RecordType string        `json:"record_type" validate:"required"`
	RecordID   string        `json:"record_id,omitempty"`
	Data       models.Record `json:"data,omitempty"`
}

// ResolveResponse is the response body for a resolution
type ResolveResponse struct {
	Matches []models.MatchResult `json:"matches"`
	Count   int                  `json:"count"`
}

// ResolveCandidate scores a candidate against the stored population
func ResolveCandidate(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := reqcontext.GetTenantID(ctx)

	var req ResolveRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RecordType == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "record_type is required")
	}
	if req.RecordID == "" && req.Data == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "either record_id or data is required")
	}

	ctx, service, err := ectoinject.GetContext[*linkage.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	matches, err := service.Resolve(ctx, tenantID, req.RecordType, req.RecordID, req.Data)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, ResolveResponse{Matches: matches, Count: len(matches)})
}

// DedupeRequest is the request body for a batch deduplication
type DedupeRequest struct {
	RecordType string `json:"record_type" validate:"required"`
}

// DedupeRecords deduplicates the stored population of a record type
func DedupeRecords(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := reqcontext.GetTenantID(ctx)

	var req DedupeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RecordType == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "record_type is required")
	}

	ctx, service, err := ectoinject.GetContext[*linkage.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, err := service.Dedupe(ctx, tenantID, req.RecordType)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, result)
}

// IngestRecordRequest is the request body for ingesting a source record
type IngestRecordRequest struct {
	ID          string        `json:"id,omitempty"`
	RecordType  string        `json:"record_type" validate:"required"`
	Integration string        `json:"integration" validate:"required"`
	Data        models.Record `json:"data" validate:"required"`
}

// IngestRecord stores a source record and indexes its blocking keys
func IngestRecord(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := reqcontext.GetTenantID(ctx)

	var req IngestRecordRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RecordType == "" || req.Integration == "" || req.Data == nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "record_type, integration and data are required")
	}

	data, err := json.Marshal(req.Data)
	if err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid record data")
	}

	ctx, service, err := ectoinject.GetContext[*linkage.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	record, err := service.IngestRecord(ctx, tenantID, &models.SourceRecord{
		ID:          req.ID,
		TenantID:    tenantID,
		RecordType:  req.RecordType,
		Integration: req.Integration,
		Data:        data,
	})
	if err != nil {
		return err
	}

	return c.JSON(http.StatusCreated, record)
}
