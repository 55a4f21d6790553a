package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/escrow-gin/internal/service"
)

// statusForCode 校验错误码到 HTTP 状态的映射
// 并发竞争类（已被抢先）用 409,资源缺失用 404,其余 400
var statusForCode = map[string]int{
	service.CodeTaskAlreadyAccepted: http.StatusConflict,
	service.CodeAlreadyReleased:     http.StatusConflict,
	service.CodeAlreadyCancelled:    http.StatusConflict,
	service.CodeAlreadyFunded:       http.StatusConflict,
	service.CodeConditionResolved:   http.StatusConflict,
	service.CodeTaskNotFound:        http.StatusNotFound,
	service.CodeConditionNotFound:   http.StatusNotFound,
}

// HandleServiceError 把服务层错误分类映射到 HTTP 响应
// 错误分类: 校验错误调用方可纠正,授权错误对本次请求致命,
// 账本错误可退避重试,一致性错误属于服务端
func HandleServiceError(c *gin.Context, err error) {
	switch {
	case service.IsValidation(err):
		code := service.ValidationCode(err)
		status, ok := statusForCode[code]
		if !ok {
			status = http.StatusBadRequest
		}
		Error(c, status, code, err.Error())
	case service.IsAuthorization(err):
		Error(c, http.StatusForbidden, "permission denied", err.Error())
	case service.IsLedger(err):
		Error(c, http.StatusBadGateway, "ledger operation failed", err.Error())
	case service.IsConsistency(err):
		Error(c, http.StatusInternalServerError, "record inconsistent with ledger", err.Error())
	default:
		Error(c, http.StatusInternalServerError, "internal server error", err.Error())
	}
}
