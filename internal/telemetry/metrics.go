package telemetry

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	// ScansTotal counts scan executions per scan type and outcome
	ScansTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piwardrive",
			Name:      "scans_total",
			Help:      "Total number of scan executions",
		},
		[]string{"type", "result"},
	)

	// DetectionsTotal counts parsed detection records per source
	DetectionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piwardrive",
			Name:      "detections_total",
			Help:      "Total number of detection records produced by scan executors",
		},
		[]string{"source"},
	)

	// DBQueries counts database statement executions per SQL verb
	DBQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piwardrive",
			Name:      "db_queries_total",
			Help:      "Total number of database statements executed",
		},
		[]string{"verb"},
	)

	// DBQueryDuration observes statement latency per SQL verb
	DBQueryDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "piwardrive",
			Name:      "db_query_seconds",
			Help:      "Database statement latency in seconds",
			Buckets:   prometheus.DefBuckets,
		},
		[]string{"verb"},
	)

	// StreamMessages counts broadcast messages per source
	StreamMessages = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piwardrive",
			Name:      "stream_messages_total",
			Help:      "Total number of messages broadcast by the stream processor",
		},
		[]string{"source"},
	)

	// StreamDropped counts messages dropped by bounded queues
	StreamDropped = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piwardrive",
			Name:      "stream_dropped_total",
			Help:      "Total number of messages dropped on full queues",
		},
		[]string{"queue"},
	)

	// SchedulerRuns counts job executions per job name and outcome
	SchedulerRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piwardrive",
			Name:      "scheduler_runs_total",
			Help:      "Total number of scheduled job executions",
		},
		[]string{"job", "result"},
	)

	// TilesDownloaded counts map tiles fetched by the prefetcher
	TilesDownloaded = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piwardrive",
			Name:      "tiles_downloaded_total",
			Help:      "Total number of map tiles downloaded",
		},
		[]string{"result"},
	)

	// SyncUploads counts remote sync attempts per outcome
	SyncUploads = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "piwardrive",
			Name:      "sync_uploads_total",
			Help:      "Total number of remote sync upload attempts",
		},
		[]string{"result"},
	)

	// WSClients tracks currently connected streaming clients
	WSClients = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Namespace: "piwardrive",
			Name:      "stream_clients",
			Help:      "Currently connected WebSocket/SSE clients",
		},
		[]string{"endpoint"},
	)

	// Ensure metrics are only registered once
	once sync.Once
)

// InitMetrics registers all metrics with the global Prometheus registry
// This function is idempotent and can be called multiple times safely
func InitMetrics() {
	once.Do(func() {
		// Register metrics, ignoring errors if already registered
		// This prevents panics when metrics are already in the registry
		prometheus.DefaultRegisterer.Register(ScansTotal)
		prometheus.DefaultRegisterer.Register(DetectionsTotal)
		prometheus.DefaultRegisterer.Register(DBQueries)
		prometheus.DefaultRegisterer.Register(DBQueryDuration)
		prometheus.DefaultRegisterer.Register(StreamMessages)
		prometheus.DefaultRegisterer.Register(StreamDropped)
		prometheus.DefaultRegisterer.Register(SchedulerRuns)
		prometheus.DefaultRegisterer.Register(TilesDownloaded)
		prometheus.DefaultRegisterer.Register(SyncUploads)
		prometheus.DefaultRegisterer.Register(WSClients)
	})
}
