package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/plantops/equipment-health/internal/model"
	"github.com/plantops/equipment-health/internal/service"
)

// FleetHandler - 설비 KPI 조회
type FleetHandler struct {
	aggregator *service.HealthAggregator
}

func NewFleetHandler(aggregator *service.HealthAggregator) *FleetHandler {
	return &FleetHandler{aggregator: aggregator}
}

// GetFleetHealth godoc
// @Summary Get fleet health KPIs
// @Description Recomputed from current assets, alerts, work orders and parts on every call.
// @Tags fleet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.FleetHealthEnvelope
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/fleet/health [get]
func (h *FleetHandler) GetFleetHealth(c *gin.Context) {
	snap, err := h.aggregator.Snapshot(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.FleetHealthEnvelope{Status: "success", Data: snap})
}

// RefreshFleetHealth godoc
// @Summary Re-derive every asset's health status
// @Tags fleet
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.FleetHealthEnvelope
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/fleet/health/refresh [post]
func (h *FleetHandler) RefreshFleetHealth(c *gin.Context) {
	snap, err := h.aggregator.RefreshAll(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.FleetHealthEnvelope{Status: "success", Data: snap})
}

// historyReader - events.Bus
type historyReader interface {
	History(ctx context.Context, entityID string) ([]model.Event, error)
}

// EventHandler - 엔티티별 이벤트 로그 조회
type EventHandler struct {
	history historyReader
}

func NewEventHandler(history historyReader) *EventHandler {
	return &EventHandler{history: history}
}

// ListEvents godoc
// @Summary Lifecycle events of an entity, in sequence order
// @Tags events
// @Produce json
// @Security BearerAuth
// @Param entityId path string true "Asset, alert, work order or part ID"
// @Success 200 {object} model.EventListEnvelope
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/events/{entityId} [get]
func (h *EventHandler) ListEvents(c *gin.Context) {
	events, err := h.history.History(c.Request.Context(), c.Param("entityId"))
	if err != nil {
		writeError(c, err)
		return
	}
	if events == nil {
		events = []model.Event{}
	}
	c.JSON(http.StatusOK, model.EventListEnvelope{Status: "success", Data: events})
}
