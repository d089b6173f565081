package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/plantops/equipment-health/internal/model"
	"github.com/plantops/equipment-health/internal/service"
)

// WorkOrderHandler - 작업지시 생성/승인/착수/완료/취소
type WorkOrderHandler struct {
	svc   *service.WorkOrderService
	guard *service.IdempotencyGuard
}

func NewWorkOrderHandler(svc *service.WorkOrderService, guard *service.IdempotencyGuard) *WorkOrderHandler {
	return &WorkOrderHandler{svc: svc, guard: guard}
}

// ListWorkOrders godoc
// @Summary List work orders
// @Tags work-orders
// @Produce json
// @Security BearerAuth
// @Param asset_id query string false "Asset ID"
// @Param alert_id query string false "Alert ID"
// @Param status query string false "Status"
// @Param assignee query string false "Assignee"
// @Param overdue query bool false "Overdue only"
// @Success 200 {object} model.WorkOrderListEnvelope
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/work-orders [get]
func (h *WorkOrderHandler) ListWorkOrders(c *gin.Context) {
	overdue, _ := strconv.ParseBool(c.Query("overdue"))
	f := model.WorkOrderFilter{
		AssetID:     c.Query("asset_id"),
		AlertID:     c.Query("alert_id"),
		Status:      model.WorkOrderStatus(c.Query("status")),
		Assignee:    c.Query("assignee"),
		OverdueOnly: overdue,
	}
	orders, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.WorkOrderListEnvelope{Status: "success", Data: orders})
}

// GetWorkOrder godoc
// @Summary Get a work order
// @Tags work-orders
// @Produce json
// @Security BearerAuth
// @Param id path string true "Work order ID"
// @Success 200 {object} model.WorkOrderEnvelope
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/work-orders/{id} [get]
func (h *WorkOrderHandler) GetWorkOrder(c *gin.Context) {
	wo, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("ETag", strconv.FormatInt(wo.Version, 10))
	c.JSON(http.StatusOK, h.envelope(wo))
}

// CreateWorkOrder godoc
// @Summary Create a work order
// @Description Reserves every requested part or none of them.
// @Tags work-orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.WorkOrderDraft true "Work order draft"
// @Success 201 {object} model.WorkOrderEnvelope
// @Failure 400,404,422 {object} model.ErrorResponse
// @Router /api/v1/work-orders [post]
func (h *WorkOrderHandler) CreateWorkOrder(c *gin.Context) {
	var draft model.WorkOrderDraft
	if err := c.ShouldBindJSON(&draft); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	runCommand(c, h.guard, func() (int, any, error) {
		wo, err := h.svc.Create(c.Request.Context(), draft, actor(c))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, h.envelope(wo), nil
	})
}

// ApproveWorkOrder godoc
// @Summary Approve a pending work order
// @Tags work-orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Work order ID"
// @Param request body model.VersionRequest false "Expected version"
// @Success 200 {object} model.WorkOrderEnvelope
// @Failure 404,409 {object} model.ErrorResponse
// @Router /api/v1/work-orders/{id}/approve [post]
func (h *WorkOrderHandler) ApproveWorkOrder(c *gin.Context) {
	version, ok := h.versionOnly(c)
	if !ok {
		return
	}
	h.command(c, func() (*model.WorkOrder, error) {
		return h.svc.Approve(c.Request.Context(), c.Param("id"), version, actor(c))
	})
}

// StartWorkOrder godoc
// @Summary Start an approved work order
// @Tags work-orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Work order ID"
// @Param request body model.VersionRequest false "Expected version"
// @Success 200 {object} model.WorkOrderEnvelope
// @Failure 404,409 {object} model.ErrorResponse
// @Router /api/v1/work-orders/{id}/start [post]
func (h *WorkOrderHandler) StartWorkOrder(c *gin.Context) {
	version, ok := h.versionOnly(c)
	if !ok {
		return
	}
	h.command(c, func() (*model.WorkOrder, error) {
		return h.svc.Start(c.Request.Context(), c.Param("id"), version, actor(c))
	})
}

// CompleteWorkOrder godoc
// @Summary Complete an in-progress work order
// @Description Consumes reserved parts and records actual duration and root cause.
// @Tags work-orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Work order ID"
// @Param request body model.CompleteWorkOrderRequest true "Completion"
// @Success 200 {object} model.WorkOrderEnvelope
// @Failure 400,404,409 {object} model.ErrorResponse
// @Router /api/v1/work-orders/{id}/complete [post]
func (h *WorkOrderHandler) CompleteWorkOrder(c *gin.Context) {
	var req model.CompleteWorkOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	var ok bool
	if req.Version, ok = expectedVersion(c, req.Version); !ok {
		return
	}
	h.command(c, func() (*model.WorkOrder, error) {
		return h.svc.Complete(c.Request.Context(), c.Param("id"), req, actor(c))
	})
}

// CancelWorkOrder godoc
// @Summary Cancel a pending or approved work order
// @Description Releases reserved parts.
// @Tags work-orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Work order ID"
// @Param request body model.CancelWorkOrderRequest true "Reason"
// @Success 200 {object} model.WorkOrderEnvelope
// @Failure 400,404,409 {object} model.ErrorResponse
// @Router /api/v1/work-orders/{id}/cancel [post]
func (h *WorkOrderHandler) CancelWorkOrder(c *gin.Context) {
	var req model.CancelWorkOrderRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	var ok bool
	if req.Version, ok = expectedVersion(c, req.Version); !ok {
		return
	}
	h.command(c, func() (*model.WorkOrder, error) {
		return h.svc.Cancel(c.Request.Context(), c.Param("id"), req, actor(c))
	})
}

// AssignTechnician godoc
// @Summary Assign a technician
// @Tags work-orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Work order ID"
// @Param request body model.AssignTechnicianRequest true "Technician"
// @Success 200 {object} model.WorkOrderEnvelope
// @Failure 400,404,409 {object} model.ErrorResponse
// @Router /api/v1/work-orders/{id}/assign [post]
func (h *WorkOrderHandler) AssignTechnician(c *gin.Context) {
	var req model.AssignTechnicianRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	var ok bool
	if req.Version, ok = expectedVersion(c, req.Version); !ok {
		return
	}
	h.command(c, func() (*model.WorkOrder, error) {
		return h.svc.AssignTechnician(c.Request.Context(), c.Param("id"), req, actor(c))
	})
}

// AddNote godoc
// @Summary Add a note
// @Tags work-orders
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Work order ID"
// @Param request body model.AnnotateRequest true "Note"
// @Success 200 {object} model.WorkOrderEnvelope
// @Failure 400,404 {object} model.ErrorResponse
// @Router /api/v1/work-orders/{id}/notes [post]
func (h *WorkOrderHandler) AddNote(c *gin.Context) {
	var req model.AnnotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	h.command(c, func() (*model.WorkOrder, error) {
		return h.svc.AddNote(c.Request.Context(), c.Param("id"), req, actor(c))
	})
}

func (h *WorkOrderHandler) versionOnly(c *gin.Context) (int64, bool) {
	var req model.VersionRequest
	if !bindOptionalJSON(c, &req) {
		return 0, false
	}
	return expectedVersion(c, req.Version)
}

func (h *WorkOrderHandler) command(c *gin.Context, fn func() (*model.WorkOrder, error)) {
	runCommand(c, h.guard, func() (int, any, error) {
		wo, err := fn()
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, h.envelope(wo), nil
	})
}

func (h *WorkOrderHandler) envelope(wo *model.WorkOrder) model.WorkOrderEnvelope {
	return model.WorkOrderEnvelope{Status: "success", Data: wo, Overdue: wo.Overdue(h.svc.Now())}
}
