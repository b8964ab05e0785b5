package storage

import (
	"strings"
	"sync"
	"time"

	"github.com/piwardrive/piwardrive/internal/telemetry"
)

// VerbStats aggregates executions of one SQL verb.
type VerbStats struct {
	Count        uint64  `json:"count"`
	MeanDuration float64 `json:"mean_duration_ms"`
}

// QueryStats is the process-local per-verb query aggregator. Every statement
// the pool executes is timed and recorded here and in Prometheus.
type QueryStats struct {
	mu    sync.Mutex
	count map[string]uint64
	total map[string]time.Duration
}

func NewQueryStats() *QueryStats {
	return &QueryStats{
		count: make(map[string]uint64),
		total: make(map[string]time.Duration),
	}
}

// Observe records one statement execution.
func (q *QueryStats) Observe(query string, elapsed time.Duration) {
	verb := sqlVerb(query)

	q.mu.Lock()
	q.count[verb]++
	q.total[verb] += elapsed
	q.mu.Unlock()

	telemetry.DBQueries.WithLabelValues(verb).Inc()
	telemetry.DBQueryDuration.WithLabelValues(verb).Observe(elapsed.Seconds())
}

// Snapshot returns current counts and mean durations per verb.
func (q *QueryStats) Snapshot() map[string]VerbStats {
	q.mu.Lock()
	defer q.mu.Unlock()

	out := make(map[string]VerbStats, len(q.count))
	for verb, n := range q.count {
		mean := 0.0
		if n > 0 {
			mean = float64(q.total[verb].Milliseconds()) / float64(n)
		}
		out[verb] = VerbStats{Count: n, MeanDuration: mean}
	}
	return out
}

func sqlVerb(query string) string {
	fields := strings.Fields(strings.TrimSpace(query))
	if len(fields) == 0 {
		return "OTHER"
	}
	return strings.ToUpper(fields[0])
}
