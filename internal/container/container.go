package container

import (
	"context"
	"fmt"
	"time"

	"github.com/mautops/escrow-gin/internal/auth"
	"github.com/mautops/escrow-gin/internal/config"
	"github.com/mautops/escrow-gin/internal/database"
	"github.com/mautops/escrow-gin/internal/integration"
	"github.com/mautops/escrow-gin/internal/ledger"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// Container 依赖注入容器
// 管理所有应用依赖,包括数据库、账本客户端、协作服务客户端等。
// 账本客户端是显式注入的实例,有自己的生命周期,不是全局单例
type Container struct {
	db             *gorm.DB
	ledgerClient   ledger.Client
	priceOracle    *integration.PriceOracleClient
	bridgeVerifier *integration.BridgeVerifierClient
	tokenValidator *auth.TokenValidator
	oracleVerifier *auth.StaticOracleVerifier
	logger         *logrus.Logger
}

// NewContainer 创建依赖注入容器
// 根据配置初始化所有依赖组件
func NewContainer(cfg *config.Config, logger *logrus.Logger) (*Container, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}

	// 1. 初始化数据库（带重试机制）
	// 默认重试 3 次,初始间隔 1 秒,指数退避
	db, err := database.ConnectWithRetry(cfg.Database, 3, time.Second)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	// 执行数据库迁移
	if err := database.Migrate(db); err != nil {
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}

	// 2. 初始化账本客户端
	// gateway 模式在启动时校验链 ID、合约部署并协商读路径
	var ledgerClient ledger.Client
	switch cfg.Ledger.Mode {
	case "gateway":
		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()
		ledgerClient, err = ledger.NewGatewayClient(ctx, ledger.GatewayOptions{
			BaseURL:         cfg.Ledger.GatewayURL,
			ContractAddress: cfg.Ledger.ContractAddress,
			ChainID:         cfg.Ledger.ChainID,
			RequestTimeout:  time.Duration(cfg.Ledger.RequestTimeout) * time.Second,
			Logger:          logger,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to initialize ledger gateway client: %w", err)
		}
	default:
		ledgerClient = ledger.NewMemoryLedger()
		logger.Warn("using in-process memory ledger, not suitable for production")
	}

	// 3. 初始化协作服务客户端（价格预言机、桥验证）
	flareTimeout := time.Duration(cfg.Flare.RequestTimeout) * time.Second
	priceOracle := integration.NewPriceOracleClient(cfg.Flare.APIURL, flareTimeout)
	bridgeVerifier := integration.NewBridgeVerifierClient(cfg.Flare.APIURL, flareTimeout)

	// 4. 初始化身份验证器
	// 未配置密钥时跳过 token 验证（仅开发环境）
	var tokenValidator *auth.TokenValidator
	if cfg.Auth.JWTSecret != "" {
		tokenValidator = auth.NewTokenValidator(cfg.Auth.JWTSecret, cfg.Auth.Issuer)
	}

	// 5. 初始化 Oracle 验证器
	oracleVerifier := auth.NewStaticOracleVerifier(cfg.Oracle.Identity, cfg.Auth.JWTSecret)

	return &Container{
		db:             db,
		ledgerClient:   ledgerClient,
		priceOracle:    priceOracle,
		bridgeVerifier: bridgeVerifier,
		tokenValidator: tokenValidator,
		oracleVerifier: oracleVerifier,
		logger:         logger,
	}, nil
}

// DB 获取数据库连接
func (c *Container) DB() *gorm.DB {
	return c.db
}

// Ledger 获取账本客户端
func (c *Container) Ledger() ledger.Client {
	return c.ledgerClient
}

// PriceOracle 获取价格预言机客户端
func (c *Container) PriceOracle() *integration.PriceOracleClient {
	return c.priceOracle
}

// BridgeVerifier 获取桥验证客户端
func (c *Container) BridgeVerifier() *integration.BridgeVerifierClient {
	return c.bridgeVerifier
}

// TokenValidator 获取身份 Token 验证器,可能为 nil（开发环境）
func (c *Container) TokenValidator() *auth.TokenValidator {
	return c.tokenValidator
}

// OracleVerifier 获取 Oracle 验证器
func (c *Container) OracleVerifier() *auth.StaticOracleVerifier {
	return c.oracleVerifier
}

// Logger 获取日志记录器
func (c *Container) Logger() *logrus.Logger {
	return c.logger
}

// Close 关闭容器,清理资源
func (c *Container) Close() error {
	if c.db != nil {
		sqlDB, err := c.db.DB()
		if err == nil {
			sqlDB.Close()
		}
	}
	return nil
}
