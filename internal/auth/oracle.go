package auth

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

// Oracle 验证错误
var (
	// ErrNotOracle 调用者不是指定的 Oracle 身份
	ErrNotOracle = errors.New("caller is not the designated oracle")
	// ErrBadProof 证明签名不匹配
	ErrBadProof = errors.New("oracle proof verification failed")
)

// StaticOracleVerifier 静态配置的 Oracle 验证器
// 验证两件事: 调用者身份等于配置的 Oracle 地址,以及
// 证明是 Oracle 用共享密钥对条件哈希做的 HMAC-SHA256 签名。
// 生产部署可换成链上签名恢复,接口不变
type StaticOracleVerifier struct {
	identity string
	secret   []byte
}

// NewStaticOracleVerifier 创建静态 Oracle 验证器
// secret 为空时只校验身份（本地开发）
func NewStaticOracleVerifier(identity string, secret string) *StaticOracleVerifier {
	return &StaticOracleVerifier{
		identity: identity,
		secret:   []byte(secret),
	}
}

// VerifyProof 验证 Oracle 身份与证明
func (v *StaticOracleVerifier) VerifyProof(ctx context.Context, callerWallet string, conditionHash string, proof string) error {
	if v.identity == "" {
		return ErrNotOracle
	}
	if !strings.EqualFold(callerWallet, v.identity) {
		return ErrNotOracle
	}

	if len(v.secret) == 0 {
		return nil
	}

	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(conditionHash))
	expected := hex.EncodeToString(mac.Sum(nil))

	given := strings.TrimPrefix(strings.ToLower(proof), "0x")
	if !hmac.Equal([]byte(expected), []byte(given)) {
		return ErrBadProof
	}
	return nil
}

// SignCondition 以共享密钥对条件哈希签名（Oracle 侧工具/测试使用）
func (v *StaticOracleVerifier) SignCondition(conditionHash string) string {
	mac := hmac.New(sha256.New, v.secret)
	mac.Write([]byte(conditionHash))
	return hex.EncodeToString(mac.Sum(nil))
}
