package review

import (
	"net/http"
	"strconv"

	"github.com/Gobusters/ectoerror/httperror"
	"github.com/Gobusters/ectoinject"
	"github.com/labstack/echo/v4"

	"github.com/Ramsey-B/clover/internal/repositories/reviewqueue"
	"github.com/Ramsey-B/clover/internal/services/linkage"
	"github.com/Ramsey-B/clover/pkg/models"
	"github.com/Ramsey-B/clover/pkg/reqcontext"
)

// Register registers review queue routes
func Register(g *echo.Group) {
	g.GET("", ListQueueItems)
	g.GET("/:id", GetQueueItem)
	g.POST("/:id/decision", DecideQueueItem)
}

// ListResponse wraps a paginated review queue list
type ListResponse struct {
	Items      []models.ReviewQueueItem `json:"items"`
	TotalCount int                      `json:"total_count"`
	Page       int                      `json:"page"`
	PageSize   int                      `json:"page_size"`
}

// ListQueueItems lists review queue items, pending first by default
func ListQueueItems(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := reqcontext.GetTenantID(ctx)

	var status, recordType *string
	if s := c.QueryParam("status"); s != "" {
		status = &s
	}
	if rt := c.QueryParam("record_type"); rt != "" {
		recordType = &rt
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	pageSize, _ := strconv.Atoi(c.QueryParam("page_size"))

	ctx, repo, err := ectoinject.GetContext[*reviewqueue.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	items, total, err := repo.List(ctx, tenantID, status, recordType, page, pageSize)
	if err != nil {
		return err
	}
	if page < 1 {
		page = 1
	}
	if pageSize < 1 || pageSize > 100 {
		pageSize = 20
	}

	return c.JSON(http.StatusOK, ListResponse{Items: items, TotalCount: total, Page: page, PageSize: pageSize})
}

// GetQueueItem gets a review queue item by ID
func GetQueueItem(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := reqcontext.GetTenantID(ctx)

	id := c.Param("id")

	ctx, repo, err := ectoinject.GetContext[*reviewqueue.Repository](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	item, err := repo.Get(ctx, tenantID, id)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, item)
}

// DecisionResponse carries the resolved item and, for confirmations, the
// merge result
type DecisionResponse struct {
	Item  *models.ReviewQueueItem `json:"item"`
	Merge *models.MergeResult     `json:"merge,omitempty"`
}

// DecideQueueItem applies a reviewer decision to a pending queue item
func DecideQueueItem(c echo.Context) error {
	ctx := c.Request().Context()
	tenantID := reqcontext.GetTenantID(ctx)

	id := c.Param("id")

	var decision models.ReviewDecision
	if err := c.Bind(&decision); err != nil {
		return httperror.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	if decision.Action == "" || decision.Operator == "" {
		return httperror.NewHTTPError(http.StatusBadRequest, "action and operator are required")
	}

	ctx, service, err := ectoinject.GetContext[*linkage.Service](ctx)
	if err != nil {
		return httperror.NewHTTPError(http.StatusInternalServerError, "service unavailable")
	}

	merge, item, err := service.Decide(ctx, tenantID, id, decision)
	if err != nil {
		return err
	}

	return c.JSON(http.StatusOK, DecisionResponse{Item: item, Merge: merge})
}
