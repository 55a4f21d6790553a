package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

// ContextWalletKey gin 上下文中操作者钱包地址的键
const ContextWalletKey = "wallet"

// WalletClaims 身份 Token 声明
// 钱包地址即操作者身份,发布者/工人/Oracle 都以此区分
type WalletClaims struct {
	Wallet string `json:"wallet"`
	jwt.RegisteredClaims
}

// TokenValidator 身份 Token 验证器
type TokenValidator struct {
	secret []byte
	issuer string
}

// NewTokenValidator 创建身份 Token 验证器
func NewTokenValidator(secret string, issuer string) *TokenValidator {
	return &TokenValidator{
		secret: []byte(secret),
		issuer: issuer,
	}
}

// ValidateToken 验证 JWT Token 并返回声明
func (v *TokenValidator) ValidateToken(tokenString string) (*WalletClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &WalletClaims{}, func(token *jwt.Token) (interface{}, error) {
		// 验证签名算法
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return v.secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to validate token: %w", err)
	}

	claims, ok := token.Claims.(*WalletClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	// 验证 issuer
	if v.issuer != "" && claims.Issuer != v.issuer {
		return nil, errors.New("invalid issuer")
	}

	// 验证过期时间
	if claims.ExpiresAt != nil && claims.ExpiresAt.Time.Before(time.Now()) {
		return nil, errors.New("token expired")
	}

	if claims.Wallet == "" {
		return nil, errors.New("token missing wallet claim")
	}

	return claims, nil
}

// IssueToken 签发身份 Token（测试与开发工具使用）
func (v *TokenValidator) IssueToken(wallet string, ttl time.Duration) (string, error) {
	now := time.Now()
	claims := &WalletClaims{
		Wallet: wallet,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   wallet,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(v.secret)
}

// IdentityMiddleware 身份中间件
// 从 Authorization Bearer Token 提取钱包地址写入上下文;
// validator 为 nil 时（开发环境）退回 X-Wallet-Address 头
func IdentityMiddleware(validator *TokenValidator) gin.HandlerFunc {
	return func(c *gin.Context) {
		if validator == nil {
			if wallet := c.GetHeader("X-Wallet-Address"); wallet != "" {
				c.Set(ContextWalletKey, wallet)
			}
			c.Next()
			return
		}

		header := c.GetHeader("Authorization")
		if header == "" || !strings.HasPrefix(header, "Bearer ") {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "missing bearer token"})
			c.Abort()
			return
		}

		claims, err := validator.ValidateToken(strings.TrimPrefix(header, "Bearer "))
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"code": 401, "message": "invalid token", "detail": err.Error()})
			c.Abort()
			return
		}

		c.Set(ContextWalletKey, claims.Wallet)
		c.Next()
	}
}

// WalletFromContext 从 gin 上下文取操作者钱包地址
func WalletFromContext(c *gin.Context) string {
	return c.GetString(ContextWalletKey)
}
