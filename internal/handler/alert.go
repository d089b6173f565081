// Alert 수신(탐지 결과) 및 triage 명령 핸들러
//
// 요청 흐름:
//  1. 룰/이상탐지/모델 평가기가 POST /api/v1/alerts로 탐지 결과 전송
//  2. 같은 asset+signal+detection_type의 열린 Alert가 있으면 merge, 없으면 생성
//  3. 운영자가 acknowledge -> investigate -> close 또는 convert

package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/plantops/equipment-health/internal/model"
	"github.com/plantops/equipment-health/internal/service"
)

// Alert 핸들러 구조체 정의
type AlertHandler struct {
	alertService *service.AlertService
	guard        *service.IdempotencyGuard
}

// Alert 핸들러 객체 생성
func NewAlertHandler(alertService *service.AlertService, guard *service.IdempotencyGuard) *AlertHandler {
	return &AlertHandler{
		alertService: alertService,
		guard:        guard,
	}
}

// RaiseAlert godoc
// @Summary Raise a detection
// @Description Creates a new alert or merges into the open alert for the same asset, signal and detection type.
// @Tags alerts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.DetectionPayload true "Detection payload"
// @Success 201 {object} model.RaiseAlertResponse
// @Success 200 {object} model.RaiseAlertResponse
// @Failure 400,404 {object} model.ErrorResponse
// @Router /api/v1/alerts [post]
func (h *AlertHandler) RaiseAlert(c *gin.Context) {
	var payload model.DetectionPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		badRequest(c, "invalid payload")
		return
	}
	runCommand(c, h.guard, func() (int, any, error) {
		alert, created, err := h.alertService.Raise(c.Request.Context(), payload)
		if err != nil {
			return 0, nil, err
		}
		status := http.StatusOK
		if created {
			status = http.StatusCreated
		}
		return status, model.RaiseAlertResponse{Status: "success", AlertID: alert.ID, Created: created}, nil
	})
}

// ListAlerts godoc
// @Summary List alerts
// @Tags alerts
// @Produce json
// @Security BearerAuth
// @Param asset_id query string false "Asset ID"
// @Param status query string false "Status"
// @Param severity query string false "Severity"
// @Param assignee query string false "Assignee"
// @Param detection_type query string false "Detection type"
// @Param open query bool false "Open alerts only"
// @Success 200 {object} model.AlertListEnvelope
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/alerts [get]
func (h *AlertHandler) ListAlerts(c *gin.Context) {
	openOnly, _ := strconv.ParseBool(c.Query("open"))
	f := model.AlertFilter{
		AssetID:       c.Query("asset_id"),
		Status:        model.AlertStatus(c.Query("status")),
		Severity:      model.Severity(c.Query("severity")),
		Assignee:      c.Query("assignee"),
		DetectionType: model.DetectionType(c.Query("detection_type")),
		OpenOnly:      openOnly,
	}
	alerts, err := h.alertService.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.AlertListEnvelope{Status: "success", Data: alerts})
}

// GetAlert godoc
// @Summary Get an alert
// @Tags alerts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Success 200 {object} model.AlertEnvelope
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/alerts/{id} [get]
func (h *AlertHandler) GetAlert(c *gin.Context) {
	alert, err := h.alertService.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("ETag", strconv.FormatInt(alert.Version, 10))
	c.JSON(http.StatusOK, h.envelope(alert))
}

// AcknowledgeAlert godoc
// @Summary Acknowledge an alert
// @Tags alerts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Param request body model.AcknowledgeAlertRequest true "Comment"
// @Success 200 {object} model.AlertEnvelope
// @Failure 400,404,409 {object} model.ErrorResponse
// @Router /api/v1/alerts/{id}/acknowledge [post]
func (h *AlertHandler) AcknowledgeAlert(c *gin.Context) {
	var req model.AcknowledgeAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	var ok bool
	if req.Version, ok = expectedVersion(c, req.Version); !ok {
		return
	}
	h.alertCommand(c, func() (*model.Alert, error) {
		return h.alertService.Acknowledge(c.Request.Context(), c.Param("id"), req, actor(c))
	})
}

// AssignAlert godoc
// @Summary Assign an alert
// @Tags alerts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Param request body model.AssignAlertRequest true "Assignee"
// @Success 200 {object} model.AlertEnvelope
// @Failure 400,404,409 {object} model.ErrorResponse
// @Router /api/v1/alerts/{id}/assign [post]
func (h *AlertHandler) AssignAlert(c *gin.Context) {
	var req model.AssignAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	var ok bool
	if req.Version, ok = expectedVersion(c, req.Version); !ok {
		return
	}
	h.alertCommand(c, func() (*model.Alert, error) {
		return h.alertService.Assign(c.Request.Context(), c.Param("id"), req, actor(c))
	})
}

// InvestigateAlert godoc
// @Summary Start investigating an acknowledged alert
// @Tags alerts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Param request body model.VersionRequest false "Expected version"
// @Success 200 {object} model.AlertEnvelope
// @Failure 404,409 {object} model.ErrorResponse
// @Router /api/v1/alerts/{id}/investigate [post]
func (h *AlertHandler) InvestigateAlert(c *gin.Context) {
	var req model.VersionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	version, ok := expectedVersion(c, req.Version)
	if !ok {
		return
	}
	h.alertCommand(c, func() (*model.Alert, error) {
		return h.alertService.Investigate(c.Request.Context(), c.Param("id"), version, actor(c))
	})
}

// CloseAlert godoc
// @Summary Close an alert
// @Description Requires a closure code (resolved, unfounded, duplicate, false-positive) and a reason.
// @Tags alerts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Param request body model.CloseAlertRequest true "Closure evidence"
// @Success 200 {object} model.AlertEnvelope
// @Failure 400,404,409 {object} model.ErrorResponse
// @Router /api/v1/alerts/{id}/close [post]
func (h *AlertHandler) CloseAlert(c *gin.Context) {
	var req model.CloseAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	var ok bool
	if req.Version, ok = expectedVersion(c, req.Version); !ok {
		return
	}
	h.alertCommand(c, func() (*model.Alert, error) {
		return h.alertService.Close(c.Request.Context(), c.Param("id"), req, actor(c))
	})
}

// SnoozeAlert godoc
// @Summary Suppress an alert for a duration
// @Tags alerts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Param request body model.SnoozeAlertRequest true "Duration"
// @Success 200 {object} model.AlertEnvelope
// @Failure 400,404,409 {object} model.ErrorResponse
// @Router /api/v1/alerts/{id}/snooze [post]
func (h *AlertHandler) SnoozeAlert(c *gin.Context) {
	var req model.SnoozeAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	var ok bool
	if req.Version, ok = expectedVersion(c, req.Version); !ok {
		return
	}
	h.alertCommand(c, func() (*model.Alert, error) {
		return h.alertService.Snooze(c.Request.Context(), c.Param("id"), req, actor(c))
	})
}

// AnnotateAlert godoc
// @Summary Add an audit annotation
// @Tags alerts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Param request body model.AnnotateRequest true "Note"
// @Success 200 {object} model.AlertEnvelope
// @Failure 400,404 {object} model.ErrorResponse
// @Router /api/v1/alerts/{id}/annotations [post]
func (h *AlertHandler) AnnotateAlert(c *gin.Context) {
	var req model.AnnotateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	h.alertCommand(c, func() (*model.Alert, error) {
		return h.alertService.Annotate(c.Request.Context(), c.Param("id"), req, actor(c))
	})
}

// ConvertAlert godoc
// @Summary Convert an alert into a work order
// @Description Creates the work order and reserves its parts atomically with the alert transition.
// @Tags alerts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Alert ID"
// @Param request body model.ConvertAlertRequest true "Work order draft"
// @Success 201 {object} model.ConvertAlertResponse
// @Failure 400,404,409,422 {object} model.ErrorResponse
// @Router /api/v1/alerts/{id}/convert [post]
func (h *AlertHandler) ConvertAlert(c *gin.Context) {
	var req model.ConvertAlertRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	var ok bool
	if req.Version, ok = expectedVersion(c, req.Version); !ok {
		return
	}
	runCommand(c, h.guard, func() (int, any, error) {
		alert, wo, err := h.alertService.Convert(c.Request.Context(), c.Param("id"), req, actor(c))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, model.ConvertAlertResponse{
			Status:      "success",
			AlertID:     alert.ID,
			WorkOrderID: wo.ID,
			WorkOrder:   wo,
		}, nil
	})
}

func (h *AlertHandler) alertCommand(c *gin.Context, fn func() (*model.Alert, error)) {
	runCommand(c, h.guard, func() (int, any, error) {
		alert, err := fn()
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, h.envelope(alert), nil
	})
}

func (h *AlertHandler) envelope(a *model.Alert) model.AlertEnvelope {
	return model.AlertEnvelope{
		Status:     "success",
		Data:       a,
		Suppressed: a.Suppressed(h.alertService.Now()),
	}
}
