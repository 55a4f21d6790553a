package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/escrow-gin/internal/ledger"
	"gorm.io/gorm"
)

// HealthController 健康检查控制器
type HealthController struct {
	db     *gorm.DB
	ledger ledger.Client
}

// NewHealthController 创建健康检查控制器
func NewHealthController(db *gorm.DB, ledgerClient ledger.Client) *HealthController {
	return &HealthController{
		db:     db,
		ledger: ledgerClient,
	}
}

// Check 健康检查
func (c *HealthController) Check(ctx *gin.Context) {
	status := "healthy"
	checks := make(map[string]string)

	// 检查数据库连接
	if c.db != nil {
		if err := c.checkDatabase(ctx.Request.Context()); err != nil {
			status = "unhealthy"
			checks["database"] = "unhealthy: " + err.Error()
		} else {
			checks["database"] = "healthy"
		}
	} else {
		checks["database"] = "not configured"
	}

	// 检查账本连接
	if c.ledger != nil {
		if err := c.checkLedger(ctx.Request.Context()); err != nil {
			status = "unhealthy"
			checks["ledger"] = "unhealthy: " + err.Error()
		} else {
			checks["ledger"] = "healthy"
		}
	} else {
		checks["ledger"] = "not configured"
	}

	httpStatus := http.StatusOK
	if status == "unhealthy" {
		httpStatus = http.StatusServiceUnavailable
	}

	ctx.JSON(httpStatus, gin.H{
		"status":    status,
		"timestamp": time.Now().Unix(),
		"checks":    checks,
	})
}

// checkDatabase 检查数据库连接
func (c *HealthController) checkDatabase(ctx context.Context) error {
	sqlDB, err := c.db.DB()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	return sqlDB.PingContext(ctx)
}

// checkLedger 检查账本连接
// 读取一个不存在的任务, 返回 ErrUnknownTask 说明账本可达
func (c *HealthController) checkLedger(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	_, err := c.ledger.ReadState(ctx, "health-check")
	if err != nil && !errors.Is(err, ledger.ErrUnknownTask) {
		return err
	}
	return nil
}
