package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/escrow-gin/internal/auth"
	"github.com/mautops/escrow-gin/internal/service"
	"github.com/mautops/escrow-gin/internal/utils"
)

// ConditionController 条件释放控制器
type ConditionController struct {
	conditions service.ConditionService
}

// NewConditionController 创建条件释放控制器
func NewConditionController(conditions service.ConditionService) *ConditionController {
	return &ConditionController{
		conditions: conditions,
	}
}

// registerConditionRequest 条件注册请求
type registerConditionRequest struct {
	ConditionHash string `json:"condition_hash" binding:"required"`
}

// Register 为任务注册释放条件
func (c *ConditionController) Register(ctx *gin.Context) {
	id := ctx.Param("id")
	if err := utils.ValidateTaskID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid task ID", err.Error())
		return
	}

	var req registerConditionRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	reg, err := c.conditions.RegisterCondition(ctx.Request.Context(), id, req.ConditionHash)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, reg)
}

// Get 查询条件注册信息
func (c *ConditionController) Get(ctx *gin.Context) {
	hash := ctx.Param("hash")

	reg, err := c.conditions.GetRegistration(hash)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, reg)
}

// releaseIfRequest 条件释放请求
type releaseIfRequest struct {
	Proof string `json:"proof"`
}

// ReleaseIf 预言机触发条件释放
func (c *ConditionController) ReleaseIf(ctx *gin.Context) {
	hash := ctx.Param("hash")

	wallet := auth.WalletFromContext(ctx)
	if wallet == "" {
		Error(ctx, http.StatusUnauthorized, "wallet identity required", "")
		return
	}

	var req releaseIfRequest
	_ = ctx.ShouldBindJSON(&req)

	task, err := c.conditions.ReleaseIf(ctx.Request.Context(), hash, req.Proof, wallet)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	SuccessWithMessage(ctx, "condition released", task)
}
