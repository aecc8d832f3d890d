package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

// PoolStats reports database pool usage.
type PoolStats interface {
	PoolStats() (total, acquired, idle int32)
}

// WatcherStats provides the metrics collector access to watcher state.
type WatcherStats interface {
	Processed() int64
	Skipped() int64
	Pending() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pool    PoolStats
	watcher WatcherStats

	watcherProcessed *prometheus.Desc
	watcherSkipped   *prometheus.Desc
	watcherPending   *prometheus.Desc
	dbTotalConns     *prometheus.Desc
	dbAcquiredConns  *prometheus.Desc
	dbIdleConns      *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// pool may be nil (metrics will report 0). watcher may be nil when no inbox is watched.
func NewCollector(pool PoolStats, watcher WatcherStats) *Collector {
	return &Collector{
		pool:    pool,
		watcher: watcher,
		watcherProcessed: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "watcher", "processed_files"),
			"Export files processed by the inbox watcher since start.",
			nil, nil,
		),
		watcherSkipped: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "watcher", "skipped_files"),
			"Export files skipped by the inbox watcher because they were already processed.",
			nil, nil,
		),
		watcherPending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "watcher", "pending_files"),
			"Export files waiting for their debounce timer.",
			nil, nil,
		),
		dbTotalConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "total_conns"),
			"Total database pool connections.",
			nil, nil,
		),
		dbAcquiredConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "acquired_conns"),
			"Database pool connections currently in use.",
			nil, nil,
		),
		dbIdleConns: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "db_pool", "idle_conns"),
			"Database pool idle connections.",
			nil, nil,
		),
	}
}

func (c *Collector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.watcherProcessed
	ch <- c.watcherSkipped
	ch <- c.watcherPending
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var processed, skipped float64
	var pending float64
	if c.watcher != nil {
		processed = float64(c.watcher.Processed())
		skipped = float64(c.watcher.Skipped())
		pending = float64(c.watcher.Pending())
	}
	ch <- prometheus.MustNewConstMetric(c.watcherProcessed, prometheus.CounterValue, processed)
	ch <- prometheus.MustNewConstMetric(c.watcherSkipped, prometheus.CounterValue, skipped)
	ch <- prometheus.MustNewConstMetric(c.watcherPending, prometheus.GaugeValue, pending)

	// Database pool stats
	var total, acquired, idle int32
	if c.pool != nil {
		total, acquired, idle = c.pool.PoolStats()
	}
	ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, float64(total))
	ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, float64(acquired))
	ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, float64(idle))
}
