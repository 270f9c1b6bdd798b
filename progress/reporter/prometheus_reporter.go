package reporter

import (
	"fmt"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/konveyor/progress-aggregator/progress"
)

// PrometheusReporter exports aggregated progress as Prometheus metrics.
//
// Collectors are registered once at construction; a registration conflict
// fails construction rather than silently exporting nothing.
type PrometheusReporter struct {
	total     prometheus.Gauge
	completed prometheus.Gauge
	percent   prometheus.Gauge
	remaining prometheus.Gauge
	complete  prometheus.Gauge
	updates   prometheus.Counter
}

// NewPrometheusReporter registers the progress collectors against reg, or
// the default registerer when reg is nil.
//
// Example:
//
//	reg := prometheus.NewRegistry()
//	metrics, err := reporter.NewPrometheusReporter(reg)
//	if err != nil {
//	    return err
//	}
//	prog, _ := progress.New(cfg, progress.WithReporters(metrics))
//	// ... once the run is over
//	prometheus.WriteToTextfile("progress.prom", reg)
func NewPrometheusReporter(reg prometheus.Registerer) (*PrometheusReporter, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	r := &PrometheusReporter{
		total: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_tasks_total",
			Help: "Number of units of work expected.",
		}),
		completed: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_tasks_completed",
			Help: "Number of units of work accounted so far.",
		}),
		percent: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_percent",
			Help: "Completion percentage, floor(100 * completed / total).",
		}),
		remaining: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_remaining_seconds",
			Help: "Estimated seconds until completion.",
		}),
		complete: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "progress_complete",
			Help: "1 once every unit of work has completed.",
		}),
		updates: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "progress_updates_total",
			Help: "Number of progress updates applied by the aggregator.",
		}),
	}
	for _, c := range []prometheus.Collector{
		r.total,
		r.completed,
		r.percent,
		r.remaining,
		r.complete,
		r.updates,
	} {
		if err := reg.Register(c); err != nil {
			return nil, fmt.Errorf("register progress collector: %w", err)
		}
	}
	return r, nil
}

// Report updates every gauge from state.
func (r *PrometheusReporter) Report(state progress.State) {
	r.updates.Inc()
	r.total.Set(float64(state.Total))
	r.completed.Set(float64(state.Completed))
	r.percent.Set(float64(state.Percent()))
	if state.IsComplete() {
		r.complete.Set(1)
		r.remaining.Set(0)
		return
	}
	if remaining, ok := state.Remaining(); ok {
		r.remaining.Set(remaining.Seconds())
	}
}
