package syncer

import (
	"context"
	"encoding/json"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

var (
	// FillsObserved counts fills emitted by the monitor, per leader.
	FillsObserved = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copytrader_fills_observed_total",
		Help: "Leader fills observed by the trade monitor",
	}, []string{"leader"})

	// MirrorOutcomes counts mirror attempts by final status.
	MirrorOutcomes = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copytrader_mirror_outcomes_total",
		Help: "Mirror attempts by outcome (executed, rejected, failed, dry_run, skipped)",
	}, []string{"leader", "outcome"})

	// GlobalExposureGauge tracks current global exposure in USD.
	GlobalExposureGauge = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "copytrader_global_exposure_usd",
		Help: "Current global exposure in USD",
	})

	// LeaderExposureGauge tracks per-leader exposure in USD.
	LeaderExposureGauge = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "copytrader_leader_exposure_usd",
		Help: "Current per-leader exposure in USD",
	}, []string{"leader"})

	// PortfolioSyncFailures counts failed portfolio syncs, per leader.
	PortfolioSyncFailures = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "copytrader_portfolio_sync_failures_total",
		Help: "Portfolio sync failures",
	}, []string{"leader"})

	// PollLatency observes one full fast-loop tick.
	PollLatency = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "copytrader_poll_tick_seconds",
		Help:    "Duration of one fast-loop tick",
		Buckets: prometheus.DefBuckets,
	})
)

const metricsKey = "copytrader:metrics"

// EngineMetrics is the snapshot shared through Redis for external dashboards.
type EngineMetrics struct {
	FillsObserved  int64     `json:"fills_observed"`
	Executed       int64     `json:"executed"`
	Rejected       int64     `json:"rejected"`
	Failed         int64     `json:"failed"`
	GlobalExposure string    `json:"global_exposure_usd"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// MetricsStore persists engine metrics snapshots to Redis. Optional; a nil
// store is a no-op.
type MetricsStore struct {
	redis *redis.Client
}

// NewMetricsStore connects to Redis at the given URL, or returns nil when
// the URL is empty.
func NewMetricsStore(redisURL string) (*MetricsStore, error) {
	if redisURL == "" {
		return nil, nil
	}
	opts, err := redis.ParseURL(redisURL)
	if err != nil {
		return nil, err
	}
	return &MetricsStore{redis: redis.NewClient(opts)}, nil
}

// Save writes the snapshot with a 24h TTL.
func (m *MetricsStore) Save(ctx context.Context, metrics EngineMetrics) error {
	if m == nil || m.redis == nil {
		return nil
	}
	metrics.UpdatedAt = time.Now()
	data, err := json.Marshal(metrics)
	if err != nil {
		return err
	}
	return m.redis.Set(ctx, metricsKey, data, 24*time.Hour).Err()
}

// Get reads the last snapshot, if any.
func (m *MetricsStore) Get(ctx context.Context) (*EngineMetrics, error) {
	if m == nil || m.redis == nil {
		return &EngineMetrics{}, nil
	}
	data, err := m.redis.Get(ctx, metricsKey).Result()
	if err != nil {
		if err == redis.Nil {
			return &EngineMetrics{}, nil
		}
		return nil, err
	}
	var out EngineMetrics
	if err := json.Unmarshal([]byte(data), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Close releases the Redis connection.
func (m *MetricsStore) Close() error {
	if m == nil || m.redis == nil {
		return nil
	}
	return m.redis.Close()
}
