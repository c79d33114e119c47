package golden

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/goldenrecord"
	"github.com/Ramsey-B/clover/internal/services/linkage"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reqcontext"
)

// Register registers golden record routes
func Register(g *echo.Group) {
	g.GET("", ListGoldenRecords)
	g.GET("/:id", GetGoldenRecord)
	g.GET("/:id/can-unmerge", CanUnmerge)
	g.POST("/:id/unmerge", Unmerge)
}

// ListResponse wraps a paginated golden record list
type ListResponse struct {
	Records    []models.GoldenRecord `json:"records"`
	TotalCount int                   `json:"total_count"`
	Page       int                   `json:"page"`
	PageSize   int                   `json:"page_size"`
}

// ListGoldenRecords lists golden records for a tenant
func ListGoldenRecords(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := reqcontext.GetTenantID(ctx)

	var recordType *string
	if rt := c.QueryParam("record_type"); rt != "" {
		recordType = &rt
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, repo, err := ectoinject.GetContext[*goldenrecord.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	records, total, err := repo.List(ctx, tenantID, recordType, page, pageSize)
	if err != nil {
		return err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	return c.JSON(http.StatusOK, ListResponse{Records: records, TotalCount: total, Page: page, PageSize: pageSize})
}

// GetResponse carries a golden record with its provenance
type GetResponse struct {
	Record     *models.GoldenRecord `json:"record"`
	Provenance *models.Provenance   `json:"provenance,omitempty"`
}

// GetGoldenRecord gets a golden record and its provenance by ID
func GetGoldenRecord(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := reqcontext.GetTenantID(ctx)

	id := c.Param("id")

	ctx, service, err := ectoinject.GetContext[*linkage.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	record, prov, err := service.GetGolden(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, GetResponse{Record: record, Provenance: prov})
}

// CanUnmerge reports whether a golden record can be unmerged and why not
func CanUnmerge(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := reqcontext.GetTenantID(ctx)

	id := c.Param("id")

	ctx, service, err := ectoinject.GetContext[*linkage.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	check, err := service.CanUnmerge(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, check)
}

// UnmergeRequest is the request body for reversing a merge
type UnmergeRequest struct {
	RequestedBy string `json:"requested_by" validate:"required"`
	Reason      string `json:"reason,omitempty"`
}

// UnmergeResponse carries the unmerge outcome; on refusal the check holds
// the reviewer-facing reasons
type UnmergeResponse struct {
	Result *models.UnmergeResult `json:"result,omitempty"`
	Check  models.UnmergeCheck   `json:"check"`
}

// Unmerge reverses a prior merge
func Unmerge(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := reqcontext.GetTenantID(ctx)

	id := c.Param("id")

	var req UnmergeRequest
	if err := c.Bind(&req); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if req.RequestedBy == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "requested_by is required")
	}

	ctx, service, err := ectoinject.GetContext[*linkage.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	result, check, err := service.Unmerge(ctx, models.UnmergeRequest{
		TenantID:       tenantID,
		GoldenRecordID: id,
		RequestedBy:    req.RequestedBy,
		Reason:         req.Reason,
		Mode:           models.UnmergeModeFull,
	})
	if err != nil {
		return err
	}
	if result == nil {
		return c.JSON(http.StatusConflict, UnmergeResponse{Check: check})
	}

	return c.JSON(http.StatusOK, UnmergeResponse{Result: result, Check: check})
}
