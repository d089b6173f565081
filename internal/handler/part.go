package handler

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/plantops/equipment-health/internal/model"
	"github.com/plantops/equipment-health/internal/service"
)

// PartHandler - 예비 부품 재고 조회 및 수동 조정
type PartHandler struct {
	svc   *service.LedgerService
	guard *service.IdempotencyGuard
}

func NewPartHandler(svc *service.LedgerService, guard *service.IdempotencyGuard) *PartHandler {
	return &PartHandler{svc: svc, guard: guard}
}

// ListParts godoc
// @Summary List spare parts
// @Tags parts
// @Produce json
// @Security BearerAuth
// @Success 200 {object} model.PartListEnvelope
// @Failure 500 {object} model.ErrorResponse
// @Router /api/v1/parts [get]
func (h *PartHandler) ListParts(c *gin.Context) {
	parts, err := h.svc.List(c.Request.Context())
	if err != nil {
		writeError(c, err)
		return
	}
	data := make([]model.PartResponse, 0, len(parts))
	for _, p := range parts {
		data = append(data, model.NewPartResponse(p))
	}
	c.JSON(http.StatusOK, model.PartListEnvelope{Status: "success", Data: data})
}

// GetPart godoc
// @Summary Get a spare part
// @Tags parts
// @Produce json
// @Security BearerAuth
// @Param id path string true "Part ID"
// @Success 200 {object} model.PartEnvelope
// @Failure 404 {object} model.ErrorResponse
// @Router /api/v1/parts/{id} [get]
func (h *PartHandler) GetPart(c *gin.Context) {
	part, err := h.svc.Get(c.Request.Context(), c.Param("id"))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, model.PartEnvelope{Status: "success", Data: model.NewPartResponse(part)})
}

// CreatePart godoc
// @Summary Register a spare part
// @Tags parts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param request body model.CreatePartRequest true "Part"
// @Success 201 {object} model.PartEnvelope
// @Failure 400,409 {object} model.ErrorResponse
// @Router /api/v1/parts [post]
func (h *PartHandler) CreatePart(c *gin.Context) {
	var req model.CreatePartRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	runCommand(c, h.guard, func() (int, any, error) {
		part, err := h.svc.CreatePart(c.Request.Context(), req)
		if err != nil {
			return 0, nil, err
		}
		return http.StatusCreated, model.PartEnvelope{Status: "success", Data: model.NewPartResponse(part)}, nil
	})
}

// ReserveParts godoc
// @Summary Reserve stock
// @Tags parts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Part ID"
// @Param request body model.PartQuantityRequest true "Quantity"
// @Success 200 {object} model.PartEnvelope
// @Failure 400,404,422 {object} model.ErrorResponse
// @Router /api/v1/parts/{id}/reserve [post]
func (h *PartHandler) ReserveParts(c *gin.Context) {
	h.adjust(c, h.svc.Reserve)
}

// ReleaseParts godoc
// @Summary Release reserved stock
// @Tags parts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Part ID"
// @Param request body model.PartQuantityRequest true "Quantity"
// @Success 200 {object} model.PartEnvelope
// @Failure 400,404 {object} model.ErrorResponse
// @Router /api/v1/parts/{id}/release [post]
func (h *PartHandler) ReleaseParts(c *gin.Context) {
	h.adjust(c, h.svc.Release)
}

// ConsumeParts godoc
// @Summary Consume reserved stock
// @Tags parts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Part ID"
// @Param request body model.PartQuantityRequest true "Quantity"
// @Success 200 {object} model.PartEnvelope
// @Failure 400,404 {object} model.ErrorResponse
// @Router /api/v1/parts/{id}/consume [post]
func (h *PartHandler) ConsumeParts(c *gin.Context) {
	h.adjust(c, h.svc.Consume)
}

// ReceiveParts godoc
// @Summary Receive (restock) parts
// @Tags parts
// @Accept json
// @Produce json
// @Security BearerAuth
// @Param id path string true "Part ID"
// @Param request body model.PartQuantityRequest true "Quantity"
// @Success 200 {object} model.PartEnvelope
// @Failure 400,404 {object} model.ErrorResponse
// @Router /api/v1/parts/{id}/receive [post]
func (h *PartHandler) ReceiveParts(c *gin.Context) {
	h.adjust(c, h.svc.Receive)
}

type stockOp func(ctx context.Context, partID string, qty int, ref string) (*model.SparePart, error)

func (h *PartHandler) adjust(c *gin.Context, op stockOp) {
	var req model.PartQuantityRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "invalid request body")
		return
	}
	runCommand(c, h.guard, func() (int, any, error) {
		part, err := op(c.Request.Context(), c.Param("id"), req.Qty, "manual:"+actor(c))
		if err != nil {
			return 0, nil, err
		}
		return http.StatusOK, model.PartEnvelope{Status: "success", Data: model.NewPartResponse(part)}, nil
	})
}
