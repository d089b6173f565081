package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/plantops/equipment-health/internal/model"
)

type webhookService interface {
	ListWebhookConfigs(ctx context.Context) ([]model.WebhookConfig, error)
	GetWebhookConfig(ctx context.Context, id int) (*model.WebhookConfig, error)
	CreateWebhookConfig(ctx context.Context, req model.WebhookConfigRequest) (int, error)
	UpdateWebhookConfig(ctx context.Context, id int, req model.WebhookConfigRequest) error
	DeleteWebhookConfig(ctx context.Context, id int) error
}

// WebhookSettingsHandler - 라이프사이클 이벤트 웹훅 구독 설정
//
// 각 설정은 event_types로 받을 이벤트를 고름 (비어 있으면 전체)
// body는 {{event.*}}, {{asset.*}} 변수를 포함한 템플릿
type WebhookSettingsHandler struct {
	svc webhookService
}

func NewWebhookSettingsHandler(svc webhookService) *WebhookSettingsHandler {
	return &WebhookSettingsHandler{svc: svc}
}

// ListEventTypes godoc
// @Summary List subscribable lifecycle event types
// @Description Values accepted in event_types of a webhook config
// @Tags settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.EventTypeListResponse
// @Router /api/v1/settings/webhooks/event-types [get]
func (h *WebhookSettingsHandler) ListEventTypes(c *gin.Context) {
	c.JSON(http.StatusOK, model.EventTypeListResponse{Status: "success", Data: model.EventTypes})
}

// ListWebhookConfigs godoc
// @Summary List webhook subscriptions
// @Tags settings
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.WebhookConfigListResponse
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/settings/webhooks [get]
func (h *WebhookSettingsHandler) ListWebhookConfigs(c *gin.Context) {
	configs, err := h.svc.ListWebhookConfigs(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.WebhookConfigListResponse{Status: "success", Data: configs})
}

// GetWebhookConfig godoc
// @Summary Get a webhook subscription
// @Tags settings
// @Produce json
// @Security BearerAuth
// @Param id path int true "Webhook config ID"
// @Success 200 {object} model.WebhookConfigResponse
// @Failure 400,404 {object} model.ErrorResponse
// @Router /api/v1/settings/webhooks/{id} [get]
func (h *WebhookSettingsHandler) GetWebhookConfig(c *gin.Context) {
	id, ok := configID(c)
	if !ok {
		return
	}
	cfg, err := h.svc.GetWebhookConfig(c.Request.Context(), id)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.WebhookConfigResponse{Status: "success", Data: cfg})
}

// CreateWebhookConfig godoc
// @Summary Subscribe an endpoint to lifecycle events
// @Description event_types must be values from /settings/webhooks/event-types; empty subscribes to every event.
// @Description method is POST, PUT or PATCH (default POST).
// @Tags settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.WebhookConfigRequest true "Webhook subscription"
// @Success 201 {object} model.WebhookConfigMutationResponse
// @Failure 400 {object} model.ErrorResponse
// @Router /api/v1/settings/webhooks [post]
func (h *WebhookSettingsHandler) CreateWebhookConfig(c *gin.Context) {
	req, ok := bindWebhookRequest(c)
	if !ok {
		return
	}
	id, err := h.svc.CreateWebhookConfig(c.Request.Context(), req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusCreated, webhookMutation("created", id))
}

// UpdateWebhookConfig godoc
// @Summary Replace a webhook subscription
// @Description Same validation as create; the event_types filter is replaced, not merged.
// @Tags settings
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path int true "Webhook config ID"
// @Param request body model.WebhookConfigRequest true "Webhook subscription"
// @Success 200 {object} model.WebhookConfigMutationResponse
// @Failure 400,404 {object} model.ErrorResponse
// @Router /api/v1/settings/webhooks/{id} [put]
func (h *WebhookSettingsHandler) UpdateWebhookConfig(c *gin.Context) {
	id, ok := configID(c)
	if !ok {
		return
	}
	req, ok := bindWebhookRequest(c)
	if !ok {
		return
	}
	if err := h.svc.UpdateWebhookConfig(c.Request.Context(), id, req); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, webhookMutation("updated", id))
}

// DeleteWebhookConfig godoc
// @Summary Remove a webhook subscription
// @Tags settings
// @Produce json
// @Security BearerAuth
// @Param id path int true "Webhook config ID"
// @Success 200 {object} model.WebhookConfigMutationResponse
// @Failure 400,404 {object} model.ErrorResponse
// @Router /api/v1/settings/webhooks/{id} [delete]
func (h *WebhookSettingsHandler) DeleteWebhookConfig(c *gin.Context) {
	id, ok := configID(c)
	if !ok {
		return
	}
	if err := h.svc.DeleteWebhookConfig(c.Request.Context(), id); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, webhookMutation("deleted", id))
}

func configID(c *gin.Context) (int, bool) {
	id, err := strconv.Atoi(c.Param("id"))
	if err != nil || id <= 0 {
		badRequest(c, "invalid webhook config id")
		return 0, false
	}
	return id, true
}

func bindWebhookRequest(c *gin.Context) (model.WebhookConfigRequest, bool) {
	var req model.WebhookConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return req, false
	}
	return req, true
}

func webhookMutation(action string, id int) model.WebhookConfigMutationResponse {
	return model.WebhookConfigMutationResponse{Status: "success", Message: "webhook subscription " + action, ID: id}
}
