package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/plantops/equipment-health/internal/model"
	"github.com/plantops/equipment-health/internal/service"
)

// AssetHandler - 설비 등록/조회, 관측치 수신
type AssetHandler struct {
	svc   *service.AssetService
	guard *service.IdempotencyGuard
}

func NewAssetHandler(svc *service.AssetService, guard *service.IdempotencyGuard) *AssetHandler {
	return &AssetHandler{svc: svc, guard: guard}
}

// ListAssets godoc
// @Summary List assets
// @Tags assets
// @Produce json
// @Security BearerAuth
// @Param plant query string false "Plant"
// @Param area query string false "Area"
// @Param line query string false "Line"
// @Param criticality query string false "Criticality"
// @Param health_status query string false "Health status"
// @Param active query bool false "Active only"
// @Success 200 {object} model.AssetListEnvelope
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/assets [get]
func (h *AssetHandler) ListAssets(c *gin.Context) {
	activeOnly, _ := strconv.ParseBool(c.Query("active"))
	f := model.AssetFilter{
		Plant:        c.Query("plant"),
		Area:         c.Query("area"),
		Line:         c.Query("line"),
		Criticality:  model.Criticality(c.Query("criticality")),
		HealthStatus: model.HealthStatus(c.Query("health_status")),
		ActiveOnly:   activeOnly,
	}
	assets, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.AssetListEnvelope{Status: "success", Data: assets})
}

// GetAsset godoc
// @Summary Get an asset
// @Tags assets
// @Produce json
// @Security BearerAuth
// @Param id path string true "Asset ID"
// @Success 200 {object} model.AssetEnvelope
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/assets/{id} [get]
func (h *AssetHandler) GetAsset(c *gin.Context) {
	asset, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.Header("ETag", strconv.FormatInt(asset.Version, 10))
	c.JSON(http.StatusOK, model.AssetEnvelope{Status: "success", Data: asset})
}

// OnboardAsset godoc
// @Summary Onboard an asset
// @Tags assets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.OnboardAssetRequest true "Asset"
// @Success 201 {object} model.AssetEnvelope
// @Failure 400,409 {object} model.ErrorResponse
// @Router /api/v1/assets [post]
func (h *AssetHandler) OnboardAsset(c *gin.Context) {
	var req model.OnboardAssetRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	runCommand(c, h.guard, func() (int, any, error) {
		asset, err := h.svc.Onboard(c.Request.Context(), req, actor(c))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, model.AssetEnvelope{Status: "success", Data: asset}, nil
	})
}

// DeactivateAsset godoc
// @Summary Deactivate an asset
// @Tags assets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Asset ID"
// @Param request body model.VersionRequest false "Expected version"
// @Success 200 {object} model.AssetEnvelope
// @Failure 404,409 {object} model.ErrorResponse
// @Router /api/v1/assets/{id}/deactivate [post]
func (h *AssetHandler) DeactivateAsset(c *gin.Context) {
	var req model.VersionRequest
	if !bindOptionalJSON(c, &req) {
		return
	}
	version, ok := expectedVersion(c, req.Version)
	if !ok {
		return
	}
	runCommand(c, h.guard, func() (int, any, error) {
		asset, err := h.svc.Deactivate(c.Request.Context(), c.Param("id"), version, actor(c))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, model.AssetEnvelope{Status: "success", Data: asset}, nil
	})
}

// RecordObservation godoc
// @Summary Push a health observation
// @Description Observations older than the stored one are ignored (accepted=false).
// @Tags assets
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Asset ID"
// @Param request body model.RecordObservationRequest true "Observation"
// @Success 200 {object} model.ObservationResponse
// @Failure 400,404,409 {object} model.ErrorResponse
// @Router /api/v1/assets/{id}/observations [post]
func (h *AssetHandler) RecordObservation(c *gin.Context) {
	var req model.RecordObservationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	runCommand(c, h.guard, func() (int, any, error) {
		asset, accepted, err := h.svc.RecordObservation(c.Request.Context(), c.Param("id"), req, actor(c))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, model.ObservationResponse{Status: "success", Accepted: accepted, Data: asset}, nil
	})
}
