package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestTokenIssueAndValidate 测试 Token 签发与验证
func TestTokenIssueAndValidate(t *testing.T) {
	v := NewTokenValidator("test-secret", "escrow-gin")

	token, err := v.IssueToken("0xWallet", time.Hour)
	require.NoError(t, err)

	claims, err := v.ValidateToken(token)
	require.NoError(t, err)
	assert.Equal(t, "0xWallet", claims.Wallet)
	assert.Equal(t, "escrow-gin", claims.Issuer)
}

// TestTokenValidationFailures 测试验证失败场景
func TestTokenValidationFailures(t *testing.T) {
	v := NewTokenValidator("test-secret", "escrow-gin")

	// 密钥不匹配
	other := NewTokenValidator("other-secret", "escrow-gin")
	token, err := other.IssueToken("0xWallet", time.Hour)
	require.NoError(t, err)
	_, err = v.ValidateToken(token)
	assert.Error(t, err)

	// 已过期
	token, err = v.IssueToken("0xWallet", -time.Minute)
	require.NoError(t, err)
	_, err = v.ValidateToken(token)
	assert.Error(t, err)

	// issuer 不匹配
	foreign := NewTokenValidator("test-secret", "someone-else")
	token, err = foreign.IssueToken("0xWallet", time.Hour)
	require.NoError(t, err)
	_, err = v.ValidateToken(token)
	assert.Error(t, err)

	// 格式非法
	_, err = v.ValidateToken("not-a-token")
	assert.Error(t, err)
}

func identityTestRouter(validator *TokenValidator) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(IdentityMiddleware(validator))
	router.GET("/whoami", func(c *gin.Context) {
		c.String(http.StatusOK, WalletFromContext(c))
	})
	return router
}

// TestIdentityMiddleware 测试身份中间件
func TestIdentityMiddleware(t *testing.T) {
	v := NewTokenValidator("test-secret", "escrow-gin")
	router := identityTestRouter(v)

	token, err := v.IssueToken("0xWallet", time.Hour)
	require.NoError(t, err)

	// 有效 Token
	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xWallet", w.Body.String())

	// 缺少 Token
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// 非法 Token
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer garbage")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

// TestIdentityMiddlewareDevFallback 测试开发模式钱包头回退
func TestIdentityMiddlewareDevFallback(t *testing.T) {
	router := identityTestRouter(nil)

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Wallet-Address", "0xDev")
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0xDev", w.Body.String())

	// 不带头时钱包为空但不拒绝
	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/whoami", nil)
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Empty(t, w.Body.String())
}
