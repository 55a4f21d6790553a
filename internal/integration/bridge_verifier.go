package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// BridgeVerification FAsset 桥交易验证结果
type BridgeVerification struct {
	Verified     bool   `json:"verified"`
	TaskID       string `json:"taskId"`
	BridgeTx     string `json:"bridgeTx"`
	FAssetType   string `json:"fassetType"`
	TokenAddress string `json:"tokenAddress"`
}

// BridgeVerifierClient FAsset 桥验证服务客户端
// 跨链来源的报酬在条件释放前必须通过桥交易验证
type BridgeVerifierClient struct {
	baseURL    string
	httpClient *http.Client
}

// NewBridgeVerifierClient 创建桥验证客户端
func NewBridgeVerifierClient(baseURL string, timeout time.Duration) *BridgeVerifierClient {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &BridgeVerifierClient{
		baseURL:    baseURL,
		httpClient: &http.Client{Timeout: timeout},
	}
}

// VerifyBridge 验证桥交易
func (c *BridgeVerifierClient) VerifyBridge(ctx context.Context, taskID string, bridgeTxHash string, assetType string) (*BridgeVerification, error) {
	payload, err := json.Marshal(map[string]string{
		"taskId":     taskID,
		"bridgeTx":   bridgeTxHash,
		"fassetType": assetType,
	})
	if err != nil {
		return nil, err
	}

	endpoint := c.baseURL + "/api/fassets/verify-bridge"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("bridge verification request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("bridge verifier returned status %d", resp.StatusCode)
	}

	var result BridgeVerification
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode bridge verification: %w", err)
	}
	return &result, nil
}
