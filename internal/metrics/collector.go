package metrics

import (
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
)

// BusStats exposes live event bus state to the collector.
type BusStats interface {
	SubscriberCount() int
}

// QueueStats exposes live ingest queue state to the collector.
type QueueStats interface {
	Pending() int
	InFlight() int
}

// Collector implements prometheus.Collector to read live gauges at scrape time.
type Collector struct {
	pool  *pgxpool.Pool
	bus   BusStats
	queue QueueStats

	subscribers     *prometheus.Desc
	ingestPending   *prometheus.Desc
	ingestInFlight  *prometheus.Desc
	dbTotalConns    *prometheus.Desc
	dbAcquiredConns *prometheus.Desc
	dbIdleConns     *prometheus.Desc
}

// NewCollector creates a collector that reads live state at scrape time.
// Any argument may be nil; its gauges then report 0.
func NewCollector(pool *pgxpool.Pool, bus BusStats, queue QueueStats) *Collector {
	return &Collector{
		pool:  pool,
		bus:   bus,
		queue: queue,
		subscribers: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "", "event_subscribers_active"),
			"Current number of event bus subscribers.",
			nil, nil,
		),
		ingestPending: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ingest", "pending_jobs"),
			"Waveform jobs waiting for a worker.",
			nil, nil,
		),
		ingestInFlight: prometheus.NewDesc(
			prometheus.BuildFQName(namespace, "ingest", "inflight_jobs"),
			"Waveform jobs currently running.",
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
	ch <- c.subscribers
	ch <- c.ingestPending
	ch <- c.ingestInFlight
	ch <- c.dbTotalConns
	ch <- c.dbAcquiredConns
	ch <- c.dbIdleConns
}

func (c *Collector) Collect(ch chan<- prometheus.Metric) {
	var subscribers, pending, inFlight float64
	if c.bus != nil {
		subscribers = float64(c.bus.SubscriberCount())
	}
	if c.queue != nil {
		pending = float64(c.queue.Pending())
		inFlight = float64(c.queue.InFlight())
	}
	ch <- prometheus.MustNewConstMetric(c.subscribers, prometheus.GaugeValue, subscribers)
	ch <- prometheus.MustNewConstMetric(c.ingestPending, prometheus.GaugeValue, pending)
	ch <- prometheus.MustNewConstMetric(c.ingestInFlight, prometheus.GaugeValue, inFlight)

	if c.pool != nil {
		stat := c.pool.Stat()
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, float64(stat.TotalConns()))
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, float64(stat.AcquiredConns()))
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, float64(stat.IdleConns()))
	} else {
		ch <- prometheus.MustNewConstMetric(c.dbTotalConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbAcquiredConns, prometheus.GaugeValue, 0)
		ch <- prometheus.MustNewConstMetric(c.dbIdleConns, prometheus.GaugeValue, 0)
	}
}
