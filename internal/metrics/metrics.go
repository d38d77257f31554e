// Package metrics exposes Prometheus collectors for pipeline runs.
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pauljones0/linkedin-posts-bot/internal/models"
)

const namespace = "linkedin_posts"

// Run status label values.
const (
	StatusSuccess = "success"
	StatusSkipped = "skipped"
	StatusFailed  = "failed"
)

type Metrics struct {
	RunsTotal         *prometheus.CounterVec
	PostsTotal        *prometheus.CounterVec
	ProfilesProcessed prometheus.Counter
	UnassociatedTotal prometheus.Counter
	MarkFailures      prometheus.Counter
	CycleResets       prometheus.Counter
	QuotaUsed         prometheus.Gauge
	QuotaRemaining    prometheus.Gauge
	RunDuration       prometheus.Histogram

	gatherer prometheus.Gatherer
}

// New registers the collectors with reg.
func New(reg *prometheus.Registry) *Metrics {
	f := promauto.With(reg)
	return &Metrics{
		RunsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "runs_total",
			Help:      "Pipeline runs by final status",
		}, []string{"status"}),
		PostsTotal: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "posts_total",
			Help:      "Posts written to the sink by outcome (saved, duplicate, failed)",
		}, []string{"outcome"}),
		ProfilesProcessed: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "profiles_processed_total",
			Help:      "Profiles submitted to extraction",
		}),
		UnassociatedTotal: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "unassociated_groups_total",
			Help:      "Post groups that matched no submitted profile",
		}),
		MarkFailures: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "mark_failures_total",
			Help:      "Failed attempts to flag a profile processed",
		}),
		CycleResets: f.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycle_resets_total",
			Help:      "Exhaustion-triggered resets of every processed flag",
		}),
		QuotaUsed: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_used",
			Help:      "Profiles counted against today's quota",
		}),
		QuotaRemaining: f.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "quota_remaining",
			Help:      "Profiles still allowed today",
		}),
		RunDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "run_duration_seconds",
			Help:      "Wall time of a pipeline run",
			Buckets:   []float64{1, 5, 15, 30, 60, 120, 300, 600, 1200, 1800},
		}),
		gatherer: reg,
	}
}

// ObserveRun records the outcome of a finished run.
func (m *Metrics) ObserveRun(run models.RunResult, elapsed time.Duration) {
	m.RunsTotal.WithLabelValues(runStatus(run)).Inc()
	m.PostsTotal.WithLabelValues(string(models.OutcomeSaved)).Add(float64(run.Summary.Successful))
	m.PostsTotal.WithLabelValues(string(models.OutcomeDuplicate)).Add(float64(run.Summary.Duplicates))
	m.PostsTotal.WithLabelValues(string(models.OutcomeFailed)).Add(float64(run.Summary.Failed))
	m.ProfilesProcessed.Add(float64(run.Summary.ProfilesProcessed))
	m.UnassociatedTotal.Add(float64(run.Summary.Unassociated))
	m.MarkFailures.Add(float64(run.Summary.MarkFailures))
	if run.Reset {
		m.CycleResets.Inc()
	}
	m.QuotaUsed.Set(float64(run.Stats.Count))
	m.QuotaRemaining.Set(float64(run.Stats.Remaining))
	m.RunDuration.Observe(elapsed.Seconds())
}

// Handler serves the registry for the /metrics endpoint.
func (m *Metrics) Handler() http.Handler {
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}

func runStatus(run models.RunResult) string {
	switch {
	case run.Success:
		return StatusSuccess
	case run.Error == models.StopDailyLimitReached,
		run.Error == models.StopNoProfiles,
		run.Error == models.StopNoRemainingQuota:
		return StatusSkipped
	default:
		return StatusFailed
	}
}
