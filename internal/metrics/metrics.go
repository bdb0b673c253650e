// Package metrics exposes Prometheus collectors for cycles, analyses, the
// outbox and HTTP requests.
package metrics

import (
	"context"
	"time"

	"github.com/ibarani/fitforge/internal/models"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "fitforge"

type Manager struct {
	// counters
	CounterCyclesClosed *prometheus.CounterVec
	CounterWorkouts     *prometheus.CounterVec
	CounterAnalyses     *prometheus.CounterVec

	// histograms
	HistAnalysisDuration     prometheus.Histogram
	HistogramRequestDuration *prometheus.HistogramVec
}

// NewRegistry creates a registry with build, runtime and process collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewBuildInfoCollector(),
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

func NewManager(reg prometheus.Registerer) *Manager {
	factory := promauto.With(reg)

	return &Manager{
		CounterCyclesClosed: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cycles_closed_total",
			Help:      "The total number of closed training cycles",
		}, []string{"selected"}),
		CounterWorkouts: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "workouts_saved_total",
			Help:      "Saved workouts by result",
		}, []string{"result"}),
		CounterAnalyses: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "analyses_total",
			Help:      "Finished cycle analyses by outcome",
		}, []string{"outcome"}),
		HistAnalysisDuration: factory.NewHistogram(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "analysis_duration_seconds",
			Help:      "Wall time of a cycle analysis including retries",
			Buckets:   []float64{1, 2.5, 5, 10, 20, 40, 60, 120, 300},
		}),
		HistogramRequestDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "request_duration_seconds",
			Help:      "Histogram of response time for requests in seconds",
			Buckets:   []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		}, []string{"route", "method", "status_code"}),
	}
}

// RegisterOutboxDepth exposes the number of locally queued writes.
func RegisterOutboxDepth(reg prometheus.Registerer, pending func(context.Context) (int, error)) {
	promauto.With(reg).NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: namespace,
		Name:      "outbox_pending",
		Help:      "Writes queued locally while the store was unreachable",
	}, func() float64 {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		n, err := pending(ctx)
		if err != nil {
			return -1
		}
		return float64(n)
	})
}

// CycleClosed counts a closure. It matches the cycle tracker's subscriber signature.
func (m *Manager) CycleClosed(ev models.CycleClosed) {
	m.CounterCyclesClosed.WithLabelValues(sizeLabel(ev.SelectedCount)).Inc()
}

// WorkoutSaved counts a save by its result.
func (m *Manager) WorkoutSaved(res *models.SaveResult) {
	switch {
	case res == nil:
		return
	case res.Offline:
		m.CounterWorkouts.WithLabelValues("offline").Inc()
	case res.Complete:
		m.CounterWorkouts.WithLabelValues("complete").Inc()
	default:
		m.CounterWorkouts.WithLabelValues("partial").Inc()
	}
}

// ObserveAnalysis records one finished analysis.
func (m *Manager) ObserveAnalysis(outcome string, elapsed time.Duration) {
	m.CounterAnalyses.WithLabelValues(outcome).Inc()
	m.HistAnalysisDuration.Observe(elapsed.Seconds())
}

func sizeLabel(n int) string {
	switch {
	case n <= 2:
		return "1-2"
	case n <= 4:
		return "3-4"
	default:
		return "5+"
	}
}
