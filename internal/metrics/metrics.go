package metrics

import (
	"fmt"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"
)

var (
	// API 请求计数器
	apiRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "api_requests_total",
			Help: "Total number of API requests",
		},
		[]string{"method", "path", "status"},
	)

	// API 请求响应时间
	apiRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "api_request_duration_seconds",
			Help:    "API request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path"},
	)

	// 任务创建数
	tasksCreatedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tasks_created_total",
			Help: "Total number of tasks created",
		},
	)

	// 托管注资数
	escrowFundedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "escrow_funded_total",
			Help: "Total number of escrows funded",
		},
	)

	// 托管释放数（按路径: direct 人工 / condition 条件触发）
	escrowReleasedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "escrow_released_total",
			Help: "Total number of escrows released",
		},
		[]string{"path"},
	)

	// 托管取消数
	escrowCancelledTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "escrow_cancelled_total",
			Help: "Total number of escrows cancelled",
		},
	)

	// 条件解决数
	conditionsResolvedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "conditions_resolved_total",
			Help: "Total number of release conditions resolved",
		},
	)

	// 对账次数（按结果: clean 一致 / divergent 不一致）
	reconciliationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconciliations_total",
			Help: "Total number of ledger reconciliations",
		},
		[]string{"result"},
	)

	// 账本调用失败数（按操作）
	ledgerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_errors_total",
			Help: "Total number of failed ledger calls",
		},
		[]string{"op"},
	)
)

var registerOnce sync.Once

// Register 注册所有指标
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			apiRequestsTotal,
			apiRequestDuration,
			tasksCreatedTotal,
			escrowFundedTotal,
			escrowReleasedTotal,
			escrowCancelledTotal,
			conditionsResolvedTotal,
			reconciliationsTotal,
			ledgerErrorsTotal,
		)
	})
}

// RecordAPIRequest 记录 API 请求指标
func RecordAPIRequest(method string, path string, status int, durationSeconds float64) {
	apiRequestsTotal.WithLabelValues(method, path, fmt.Sprintf("%d", status)).Inc()
	apiRequestDuration.WithLabelValues(method, path).Observe(durationSeconds)
}

// RecordTaskCreated 记录任务创建
func RecordTaskCreated() {
	tasksCreatedTotal.Inc()
}

// RecordEscrowFunded 记录托管注资
func RecordEscrowFunded() {
	escrowFundedTotal.Inc()
}

// RecordEscrowReleased 记录托管释放
func RecordEscrowReleased(path string) {
	escrowReleasedTotal.WithLabelValues(path).Inc()
}

// RecordEscrowCancelled 记录托管取消
func RecordEscrowCancelled() {
	escrowCancelledTotal.Inc()
}

// RecordConditionResolved 记录条件解决
func RecordConditionResolved() {
	conditionsResolvedTotal.Inc()
}

// RecordReconciliation 记录对账
func RecordReconciliation(result string) {
	reconciliationsTotal.WithLabelValues(result).Inc()
}

// RecordLedgerError 记录账本调用失败
func RecordLedgerError(op string) {
	ledgerErrorsTotal.WithLabelValues(op).Inc()
}

// Handler 返回 Prometheus 指标处理器
func Handler() http.Handler {
	return promhttp.Handler()
}

// NewDBStatsCollector 创建数据库连接池指标采集器
func NewDBStatsCollector(db *gorm.DB, dbName string) prometheus.Collector {
	return &dbStatsCollector{db: db, dbName: dbName}
}
