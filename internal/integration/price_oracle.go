package integration

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote FTSO 价格换算结果
// 协调器把结果当作不透明输入,只用来确定注资金额,不自行计算汇率
type PriceQuote struct {
	USDAmount   decimal.Decimal `json:"usdAmount"`
	TokenSymbol string          `json:"tokenSymbol"`
	TokenAmount decimal.Decimal `json:"tokenAmount"`
	Rate        decimal.Decimal `json:"rate"`
	Buffer      decimal.Decimal `json:"buffer"` // 5% 波动与 gas 缓冲
	TotalAmount decimal.Decimal `json:"totalAmount"`
}

// PriceOracleClient FTSO 价格预言机客户端
type PriceOracleClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewPriceOracleClient 创建价格预言机客户端
func NewPriceOracleClient(baseURL string, timeout time.Duration) *PriceOracleClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &PriceOracleClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// Convert 把 USD 金额换算为代币金额（含缓冲）
func (c *PriceOracleClient) Convert(ctx context.Context, usdAmount decimal.Decimal, tokenSymbol string) (*PriceQuote, error) {
	if !usdAmount.IsPositive() {
		return nil, fmt.Errorf("usd amount must be positive")
	}
	if tokenSymbol == "" {
		return nil, fmt.Errorf("token symbol is required")
	}

	q := url.Values{}
	q.Set("usdAmount", usdAmount.String())
	q.Set("tokenSymbol", tokenSymbol)

	endpoint := c.baseURL + "/api/ftso/convert-usd-to-token?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("price oracle request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("price oracle returned status %d", resp.StatusCode)
	}

	var quote PriceQuote
	if err := json.NewDecoder(resp.Body).Decode(&quote); err != nil {
		return nil, fmt.Errorf("failed to decode price quote: %w", err)
	}
	return &quote, nil
}
