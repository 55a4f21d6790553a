package api

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/mautops/escrow-gin/internal/integration"
	"github.com/shopspring/decimal"
)

// QuoteController 报价控制器
// 通过 FTSO 价格服务把美元金额换算为代币数量
type QuoteController struct {
	oracle *integration.PriceOracleClient
}

// NewQuoteController 创建报价控制器
func NewQuoteController(oracle *integration.PriceOracleClient) *QuoteController {
	return &QuoteController{
		oracle: oracle,
	}
}

// Convert 美元转代币报价
func (c *QuoteController) Convert(ctx *gin.Context) {
	if c.oracle == nil {
		Error(ctx, http.StatusServiceUnavailable, "price oracle not configured", "")
		return
	}

	usdStr := ctx.Query("usd_amount")
	token := ctx.Query("token_symbol")
	if usdStr == "" || token == "" {
		Error(ctx, http.StatusBadRequest, "usd_amount and token_symbol are required", "")
		return
	}

	usdAmount, err := decimal.NewFromString(usdStr)
	if err != nil || usdAmount.IsNegative() || usdAmount.IsZero() {
		Error(ctx, http.StatusBadRequest, "invalid usd_amount", usdStr)
		return
	}

	quote, err := c.oracle.Convert(ctx.Request.Context(), usdAmount, token)
	if err != nil {
		Error(ctx, http.StatusBadGateway, "price conversion failed", err.Error())
		return
	}

	Success(ctx, quote)
}
