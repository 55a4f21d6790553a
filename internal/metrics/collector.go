package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"gorm.io/gorm"
)

var (
	dbOpenConnsDesc = prometheus.NewDesc(
		"db_open_connections",
		"Number of open database connections",
		[]string{"db"}, nil,
	)
	dbInUseConnsDesc = prometheus.NewDesc(
		"db_in_use_connections",
		"Number of database connections currently in use",
		[]string{"db"}, nil,
	)
	dbIdleConnsDesc = prometheus.NewDesc(
		"db_idle_connections",
		"Number of idle database connections",
		[]string{"db"}, nil,
	)
)

// dbStatsCollector 数据库连接池指标采集器
// 抓取时直接读取 sql.DB 统计,不需要后台协程
type dbStatsCollector struct {
	db     *gorm.DB
	dbName string
}

// Describe 实现 prometheus.Collector
func (c *dbStatsCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- dbOpenConnsDesc
	ch <- dbInUseConnsDesc
	ch <- dbIdleConnsDesc
}

// Collect 实现 prometheus.Collector
func (c *dbStatsCollector) Collect(ch chan<- prometheus.Metric) {
	sqlDB, err := c.db.DB()
	if err != nil {
		return
	}

	stats := sqlDB.Stats()
	ch <- prometheus.MustNewConstMetric(dbOpenConnsDesc, prometheus.GaugeValue, float64(stats.OpenConnections), c.dbName)
	ch <- prometheus.MustNewConstMetric(dbInUseConnsDesc, prometheus.GaugeValue, float64(stats.InUse), c.dbName)
	ch <- prometheus.MustNewConstMetric(dbIdleConnsDesc, prometheus.GaugeValue, float64(stats.Idle), c.dbName)
}
