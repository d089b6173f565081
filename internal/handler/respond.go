package handler

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/plantops/equipment-health/internal/model"
	"github.com/plantops/equipment-health/internal/service"
)

const (
	headerIdempotencyKey = "Idempotency-Key"
	headerIfMatch        = "If-Match"
	headerReplayed       = "Idempotent-Replayed"
)

// writeError - 서비스 에러 -> HTTP 상태 코드
//
//	not_found 404 / validation 400 / invalid_transition, conflict 409
//	insufficient_stock 422 (available 포함) / deadline_exceeded 504 / unauthorized 401
func writeError(c *gin.Context, err error) {
	kind := service.ErrorKind(err)
	resp := model.ErrorResponse{Error: err.Error(), Kind: kind}

	status := http.StatusInternalServerError
	switch kind {
	case "not_found":
		status = http.StatusNotFound
	case "validation":
		status = http.StatusBadRequest
	case "invalid_transition", "conflict":
		status = http.StatusConflict
	case "insufficient_stock":
		status = http.StatusUnprocessableEntity
		var stockErr *service.StockError
		if errors.As(err, &stockErr) {
			available := stockErr.Available
			resp.Available = &available
		}
	case "deadline_exceeded":
		status = http.StatusGatewayTimeout
	case "unauthorized":
		status = http.StatusUnauthorized
	default:
		resp.Error = "server error"
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusBadRequest, model.ErrorResponse{Error: msg, Kind: "validation"})
}

// expectedVersion - If-Match 헤더가 있으면 본문 version보다 우선 (0 = 현재 version 사용)
func expectedVersion(c *gin.Context, bodyVersion int64) (int64, bool) {
	raw := strings.Trim(strings.TrimSpace(c.GetHeader(headerIfMatch)), `"`)
	if raw == "" {
		return bodyVersion, true
	}
	v, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || v < 0 {
		badRequest(c, "invalid If-Match version")
		return 0, false
	}
	return v, true
}

// bindOptionalJSON - 본문이 비어 있으면 zero value 유지
func bindOptionalJSON(c *gin.Context, dst any) bool {
	if c.Request.ContentLength == 0 {
		return true
	}
	if err := c.ShouldBindJSON(dst); err != nil {
		badRequest(c, "invalid request body")
		return false
	}
	return true
}

// runCommand - Idempotency-Key 헤더가 있으면 첫 성공 응답을 저장하고 재요청 시 그대로 반환
func runCommand(c *gin.Context, guard *service.IdempotencyGuard, fn func() (int, any, error)) {
	if guard == nil {
		status, body, err := fn()
		if err != nil {
			writeError(c, err)
			return
		}
		c.JSON(status, body)
		return
	}

	key := strings.TrimSpace(c.GetHeader(headerIdempotencyKey))
	if key != "" {
		key = c.Request.Method + " " + c.Request.URL.Path + " " + key
	}
	status, body, replayed, err := guard.Do(c.Request.Context(), key, fn)
	if err != nil {
		writeError(c, err)
		return
	}
	if replayed {
		c.Header(headerReplayed, "true")
	}
	c.Data(status, "application/json; charset=utf-8", body)
}

// actor - 인증된 운영자 login id (인증 비활성화 시 X-Actor 헤더 또는 anonymous)
func actor(c *gin.Context) string {
	if user := GetAuthUser(c); user != nil {
		return user.LoginID
	}
	if name := strings.TrimSpace(c.GetHeader("X-Actor")); name != "" {
		return name
	}
	return "anonymous"
}
