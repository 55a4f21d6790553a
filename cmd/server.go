/*
Copyright © 2025 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/mautops/escrow-gin/internal/api"
	"github.com/mautops/escrow-gin/internal/config"
	"github.com/mautops/escrow-gin/internal/container"
	"github.com/mautops/escrow-gin/internal/metrics"
	"github.com/mautops/escrow-gin/internal/repository"
	"github.com/mautops/escrow-gin/internal/service"
	"github.com/mautops/escrow-gin/internal/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// serverCmd represents the server command
var serverCmd = &cobra.Command{
	Use:   "server",
	Short: "Start the API server",
	Long: `Start the Escrow Gin API server.
The server will listen on the configured host and port,
and provide REST API interfaces for escrow task coordination.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// 1. 加载配置
		configPath, _ := cmd.Flags().GetString("config")
		cfg, err := config.Load(configPath)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}

		// 2. 初始化日志与指标
		logger, err := api.NewLoggerFromConfig(&cfg.Log)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		metrics.Register()
		if config.IsProduction(cfg) {
			gin.SetMode(gin.ReleaseMode)
		}

		// 3. 初始化容器
		ctr, err := container.NewContainer(cfg, logger)
		if err != nil {
			return fmt.Errorf("failed to initialize container: %w", err)
		}
		defer ctr.Close()

		// 数据库连接池指标
		prometheus.MustRegister(metrics.NewDBStatsCollector(ctr.DB(), cfg.Database.DBName))

		// 4. 启动 WebSocket Hub
		hub := websocket.NewHub()
		go hub.Run()

		// 5. 初始化服务
		taskRepo := repository.NewTaskRepository(ctr.DB())
		condRepo := repository.NewConditionRepository(ctr.DB())
		auditSvc := service.NewAuditLogService(repository.NewAuditLogRepository(ctr.DB()))
		coordinator := service.NewEscrowCoordinator(taskRepo, ctr.Ledger(), auditSvc, hub, logger)
		conditionSvc := service.NewConditionService(condRepo, taskRepo, coordinator, ctr.OracleVerifier(), ctr.BridgeVerifier(), auditSvc, logger)

		// 6. 初始化控制器与路由
		router := api.SetupRoutes(api.RouterOptions{
			Hub:            hub,
			Validator:      ctr.TokenValidator(),
			DB:             ctr.DB(),
			Tasks:          api.NewTaskController(coordinator),
			Conditions:     api.NewConditionController(conditionSvc),
			Quotes:         api.NewQuoteController(ctr.PriceOracle()),
			Health:         api.NewHealthController(ctr.DB(), ctr.Ledger()),
			AllowedOrigins: cfg.CORS.AllowedOrigins,
			RateLimitRPS:   cfg.Server.RateLimitRPS,
			RateLimitBurst: cfg.Server.RateLimitBurst,
		})
		router.NoRoute(func(c *gin.Context) {
			api.Error(c, http.StatusNotFound, "route not found", "the requested route does not exist")
		})

		// 7. 监听配置文件变化, 热更新日志级别
		if configPath != "" {
			watcher := config.NewConfigWatcher(cfg, configPath)
			watcher.OnConfigChange(func(updated *config.Config) {
				if level, err := logrus.ParseLevel(updated.Log.Level); err == nil {
					api.SetLoggerLevel(level)
				}
			})
			if err := watcher.Start(); err != nil {
				logger.WithError(err).Warn("config watcher failed to start")
			} else {
				defer watcher.Stop()
			}
		}

		// 8. 启动服务器
		addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
		srv := &http.Server{
			Addr:    addr,
			Handler: router,
		}

		go func() {
			logger.WithField("addr", addr).Info("server starting")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				logger.WithError(err).Fatal("failed to start server")
			}
		}()

		// 等待中断信号
		quit := make(chan os.Signal, 1)
		signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
		<-quit

		logger.Info("shutting down server")

		// 优雅关闭
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(ctx); err != nil {
			logger.WithError(err).Fatal("server forced to shutdown")
		}

		logger.Info("server exited")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(serverCmd)

	// 服务器配置标志
	serverCmd.Flags().String("config", "", "Config file path (default: config.yaml)")
	serverCmd.Flags().String("host", "0.0.0.0", "Server host")
	serverCmd.Flags().Int("port", 8080, "Server port")
}
