package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/escrow-gin/internal/auth"
	"github.com/mautops/escrow-gin/internal/repository"
	"github.com/mautops/escrow-gin/internal/service"
	"github.com/mautops/escrow-gin/internal/utils"
	"github.com/shopspring/decimal"
)

// TaskController 任务控制器
type TaskController struct {
	coordinator service.EscrowCoordinator
}

// NewTaskController 创建任务控制器
func NewTaskController(coordinator service.EscrowCoordinator) *TaskController {
	return &TaskController{
		coordinator: coordinator,
	}
}

// validateTaskID 验证任务 ID 并返回错误响应（如果无效）
func (c *TaskController) validateTaskID(ctx *gin.Context, id string) bool {
	if err := utils.ValidateTaskID(id); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid task ID", err.Error())
		return false
	}
	return true
}

// requireWallet 从请求上下文读取操作者钱包地址
func (c *TaskController) requireWallet(ctx *gin.Context) (string, bool) {
	wallet := auth.WalletFromContext(ctx)
	if wallet == "" {
		Error(ctx, http.StatusUnauthorized, "wallet identity required", "")
		return "", false
	}
	return wallet, true
}

// Create 创建任务
func (c *TaskController) Create(ctx *gin.Context) {
	var req service.CreateTaskRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	// 已认证的钱包身份优先于请求体
	if wallet := auth.WalletFromContext(ctx); wallet != "" {
		req.PosterWallet = wallet
	}

	if err := utils.ValidateWalletAddress(req.PosterWallet); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid poster wallet", err.Error())
		return
	}

	task, err := c.coordinator.CreateTask(ctx.Request.Context(), &req)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, task)
}

// List 查询任务列表
func (c *TaskController) List(ctx *gin.Context) {
	filter := &repository.TaskFilter{}
	if status := ctx.Query("status"); status != "" {
		filter.Status = &status
	}
	if poster := ctx.Query("poster"); poster != "" {
		filter.PosterWallet = &poster
	}
	if worker := ctx.Query("worker"); worker != "" {
		filter.WorkerWallet = &worker
	}
	if funded := ctx.Query("funded"); funded != "" {
		v := funded == "true"
		filter.Funded = &v
	}

	tasks, err := c.coordinator.ListTasks(filter)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, tasks)
}

// Get 获取任务详情
func (c *TaskController) Get(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	task, err := c.coordinator.GetTask(id)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, task)
}

// Accept 工作者接受任务
func (c *TaskController) Accept(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	wallet, ok := c.requireWallet(ctx)
	if !ok {
		return
	}

	task, err := c.coordinator.AcceptTask(ctx.Request.Context(), id, wallet)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, task)
}

// fundRequest 注资请求
type fundRequest struct {
	Amount       decimal.Decimal `json:"amount" binding:"required"`
	WorkerWallet string          `json:"worker_wallet" binding:"required"`
}

// Fund 发布者注资托管
func (c *TaskController) Fund(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	wallet, ok := c.requireWallet(ctx)
	if !ok {
		return
	}

	var req fundRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	task, err := c.coordinator.FundEscrow(ctx.Request.Context(), id, req.Amount, req.WorkerWallet, wallet)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, task)
}

// Submit 工作者提交成果
func (c *TaskController) Submit(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	wallet, ok := c.requireWallet(ctx)
	if !ok {
		return
	}

	var req service.SubmitWorkRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	task, err := c.coordinator.SubmitWork(ctx.Request.Context(), id, wallet, &req)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, task)
}

// reviewRequest 审核请求
type reviewRequest struct {
	ReviewNote string `json:"review_note"`
}

// Approve 发布者批准成果
func (c *TaskController) Approve(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	wallet, ok := c.requireWallet(ctx)
	if !ok {
		return
	}

	var req reviewRequest
	_ = ctx.ShouldBindJSON(&req)

	task, err := c.coordinator.ApproveTask(ctx.Request.Context(), id, wallet, req.ReviewNote)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, task)
}

// RequestChanges 发布者要求修改
func (c *TaskController) RequestChanges(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	wallet, ok := c.requireWallet(ctx)
	if !ok {
		return
	}

	var req reviewRequest
	_ = ctx.ShouldBindJSON(&req)

	task, err := c.coordinator.RequestChanges(ctx.Request.Context(), id, wallet, req.ReviewNote)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, task)
}

// Release 发布者放款
func (c *TaskController) Release(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	wallet, ok := c.requireWallet(ctx)
	if !ok {
		return
	}

	task, err := c.coordinator.Release(ctx.Request.Context(), id, wallet)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	SuccessWithMessage(ctx, "escrow released", task)
}

// Cancel 取消任务并退款
func (c *TaskController) Cancel(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	wallet, ok := c.requireWallet(ctx)
	if !ok {
		return
	}

	task, err := c.coordinator.Cancel(ctx.Request.Context(), id, wallet)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	SuccessWithMessage(ctx, "task cancelled", task)
}

// Bridge 登记 FAsset 跨链信息
func (c *TaskController) Bridge(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	wallet, ok := c.requireWallet(ctx)
	if !ok {
		return
	}

	var req service.RecordBridgeRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		Error(ctx, http.StatusBadRequest, "invalid request", err.Error())
		return
	}

	task, err := c.coordinator.RecordBridge(ctx.Request.Context(), id, wallet, &req)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	Success(ctx, task)
}

// Reconcile 以账本状态为准对账任务记录
func (c *TaskController) Reconcile(ctx *gin.Context) {
	id := ctx.Param("id")
	if !c.validateTaskID(ctx, id) {
		return
	}

	task, err := c.coordinator.Reconcile(ctx.Request.Context(), id)
	if err != nil {
		HandleServiceError(ctx, err)
		return
	}

	SuccessWithMessage(ctx, "reconciled", task)
}
