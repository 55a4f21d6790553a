package ledger

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// readPathCandidates 历史上网关暴露过的读方法名
// 多名称探测只是兼容垫片,在初始化时协商一次,之后所有
// ReadState 调用都走协商出的规范路径,绝不逐次探测
var readPathCandidates = []string{
	"/escrow/getEscrow",
	"/escrow/escrows",
	"/escrow/tasks",
}

// GatewayClient 托管网关客户端
// 通过 HTTP 网关访问链上托管合约,所有资金操作由合约内部守卫
type GatewayClient struct {
	baseURL         string
	contractAddress string
	chainID         int64
	readPath        string
	httpClient      *http.Client
	logger          *logrus.Logger
}

// GatewayOptions 网关客户端选项
type GatewayOptions struct {
	BaseURL         string
	ContractAddress string
	ChainID         int64
	RequestTimeout  time.Duration
	Logger          *logrus.Logger
}

// writeRequest 资金操作请求体
type writeRequest struct {
	TaskID string `json:"taskId"`
	Worker string `json:"worker,omitempty"`
	Amount string `json:"amount,omitempty"`
}

// gatewayError 网关错误响应体
type gatewayError struct {
	Error string `json:"error"`
}

// errorCodes 网关错误码到类型化错误的映射
var errorCodes = map[string]error{
	"insufficient_funds": ErrInsufficientFunds,
	"wrong_network":      ErrWrongNetwork,
	"contract_not_found": ErrContractNotFound,
	"reverted":           ErrReverted,
	"not_funded":         ErrNotFunded,
	"already_released":   ErrAlreadyReleased,
	"unauthorized":       ErrUnauthorized,
	"unknown_task":       ErrUnknownTask,
}

// NewGatewayClient 创建托管网关客户端
// 初始化时完成三件事: 校验链 ID、确认合约已部署、协商规范读路径
func NewGatewayClient(ctx context.Context, opts GatewayOptions) (*GatewayClient, error) {
	if opts.BaseURL == "" {
		return nil, errors.New("gateway base URL is required")
	}
	if opts.Logger == nil {
		opts.Logger = logrus.StandardLogger()
	}
	if opts.RequestTimeout <= 0 {
		opts.RequestTimeout = 30 * time.Second
	}

	c := &GatewayClient{
		baseURL:         opts.BaseURL,
		contractAddress: opts.ContractAddress,
		chainID:         opts.ChainID,
		httpClient:      &http.Client{Timeout: opts.RequestTimeout},
		logger:          opts.Logger,
	}

	if err := c.verifyNetwork(ctx); err != nil {
		return nil, err
	}
	if err := c.verifyContract(ctx); err != nil {
		return nil, err
	}
	if err := c.negotiateReadPath(ctx); err != nil {
		return nil, err
	}

	return c, nil
}

// verifyNetwork 校验网关连接的链 ID
func (c *GatewayClient) verifyNetwork(ctx context.Context) error {
	if c.chainID == 0 {
		return nil
	}

	var payload struct {
		ChainID int64 `json:"chainId"`
	}
	if err := c.getJSON(ctx, "/network", &payload); err != nil {
		return fmt.Errorf("failed to query network: %w", err)
	}
	if payload.ChainID != c.chainID {
		return fmt.Errorf("%w: chainId=%d, expected %d", ErrWrongNetwork, payload.ChainID, c.chainID)
	}
	return nil
}

// verifyContract 确认托管合约已部署
func (c *GatewayClient) verifyContract(ctx context.Context) error {
	if c.contractAddress == "" {
		return nil
	}

	var payload struct {
		Deployed bool `json:"deployed"`
	}
	path := "/contract/" + url.PathEscape(c.contractAddress)
	if err := c.getJSON(ctx, path, &payload); err != nil {
		return fmt.Errorf("failed to query contract: %w", err)
	}
	if !payload.Deployed {
		return fmt.Errorf("%w: no code at %s", ErrContractNotFound, c.contractAddress)
	}
	return nil
}

// negotiateReadPath 协商规范读路径
func (c *GatewayClient) negotiateReadPath(ctx context.Context) error {
	for _, candidate := range readPathCandidates {
		req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+candidate+"/0", nil)
		if err != nil {
			return err
		}
		resp, err := c.httpClient.Do(req)
		if err != nil {
			continue
		}
		resp.Body.Close()

		// 404 带 JSON 错误体也算路径存在,只是任务不存在
		if resp.StatusCode == http.StatusOK || resp.StatusCode == http.StatusNotFound {
			c.readPath = candidate
			c.logger.WithField("read_path", candidate).Debug("ledger read path negotiated")
			return nil
		}
	}
	return errors.New("no usable escrow read path on gateway")
}

// Fund 锁定报酬到托管
func (c *GatewayClient) Fund(ctx context.Context, taskID string, worker string, amount decimal.Decimal) (*Receipt, error) {
	return c.postWrite(ctx, "/escrow/fund", writeRequest{
		TaskID: taskID,
		Worker: worker,
		Amount: amount.String(),
	})
}

// Release 释放托管资金给工人
func (c *GatewayClient) Release(ctx context.Context, taskID string) (*Receipt, error) {
	return c.postWrite(ctx, "/escrow/release", writeRequest{TaskID: taskID})
}

// Cancel 取消托管,资金退回发布者
func (c *GatewayClient) Cancel(ctx context.Context, taskID string) (*Receipt, error) {
	return c.postWrite(ctx, "/escrow/cancel", writeRequest{TaskID: taskID})
}

// ReadState 通过协商出的规范路径读取托管记录
func (c *GatewayClient) ReadState(ctx context.Context, taskID string) (*EscrowRecord, error) {
	var record EscrowRecord
	path := c.readPath + "/" + url.PathEscape(taskID)
	if err := c.getJSON(ctx, path, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// postWrite 提交资金操作
// 这里绝不重试: 写操作在传输层不幂等,结果未知时调用方
// 必须先 ReadState 再决定,映射见 ErrTimeout
func (c *GatewayClient) postWrite(ctx context.Context, path string, body writeRequest) (*Receipt, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return nil, fmt.Errorf("%w: %s", ErrTimeout, path)
		}
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, c.decodeError(resp)
	}

	var receipt Receipt
	if err := json.NewDecoder(resp.Body).Decode(&receipt); err != nil {
		return nil, fmt.Errorf("failed to decode receipt: %w", err)
	}
	return &receipt, nil
}

// getJSON 执行 GET 请求并解码 JSON 响应
func (c *GatewayClient) getJSON(ctx context.Context, path string, out interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || isTimeout(err) {
			return fmt.Errorf("%w: %s", ErrTimeout, path)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return c.decodeError(resp)
	}

	return json.NewDecoder(resp.Body).Decode(out)
}

// decodeError 解码网关错误响应并映射到类型化错误
func (c *GatewayClient) decodeError(resp *http.Response) error {
	var ge gatewayError
	if err := json.NewDecoder(resp.Body).Decode(&ge); err == nil {
		if mapped, ok := errorCodes[ge.Error]; ok {
			return mapped
		}
		if ge.Error != "" {
			return fmt.Errorf("gateway error: %s (status %d)", ge.Error, resp.StatusCode)
		}
	}
	return fmt.Errorf("gateway error: status %d", resp.StatusCode)
}

// isTimeout 判断是否为网络超时错误
func isTimeout(err error) bool {
	var ne interface{ Timeout() bool }
	return errors.As(err, &ne) && ne.Timeout()
}
