package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"moldline/internal/domain"
)

// Recorder collects scheduling metrics on a private registry.
type Recorder struct {
	registry *prometheus.Registry

	runs          *prometheus.CounterVec
	runDuration   *prometheus.HistogramVec
	ordersByClass *prometheus.CounterVec
	dailyCapacity *prometheus.GaugeVec
	efficiency    *prometheus.GaugeVec
	advanced      *prometheus.CounterVec
}

// New registers the moldline collectors plus the Go runtime collectors.
func New() *Recorder {
	r := &Recorder{
		registry: prometheus.NewRegistry(),
		runs: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moldline_schedule_runs_total",
			Help: "Schedule generations by scope and outcome.",
		}, []string{"scope", "outcome"}),
		runDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "moldline_schedule_run_duration_seconds",
			Help:    "Wall time of a schedule generation including materialization.",
			Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
		}, []string{"scope"}),
		ordersByClass: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moldline_schedule_orders_total",
			Help: "Orders considered by schedule runs by result class.",
		}, []string{"scope", "class"}),
		dailyCapacity: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "moldline_daily_capacity_orders",
			Help: "Labor-derived daily capacity used by the latest run.",
		}, []string{"scope"}),
		efficiency: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "moldline_schedule_efficiency_percent",
			Help: "Scheduled share of considered orders in the latest run.",
		}, []string{"scope"}),
		advanced: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "moldline_order_stage_advances_total",
			Help: "Orders moved to a pipeline stage.",
		}, []string{"stage"}),
	}
	r.registry.MustRegister(
		r.runs, r.runDuration, r.ordersByClass, r.dailyCapacity, r.efficiency, r.advanced,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return r
}

// ObserveRun records a finished generation. A nil receiver is a no-op.
func (r *Recorder) ObserveRun(scope string, rep domain.Report, elapsed time.Duration, err error) {
	if r == nil {
		return
	}
	r.runDuration.WithLabelValues(scope).Observe(elapsed.Seconds())
	if err != nil {
		r.runs.WithLabelValues(scope, "error").Inc()
		return
	}
	r.runs.WithLabelValues(scope, "ok").Inc()
	r.ordersByClass.WithLabelValues(scope, "scheduled").Add(float64(rep.ScheduledOrders))
	r.ordersByClass.WithLabelValues(scope, domain.FailNoCompatibleMold).Add(float64(len(rep.Failures.NoCompatibleMold)))
	r.ordersByClass.WithLabelValues(scope, domain.FailCapacityExhausted).Add(float64(len(rep.Failures.CapacityExhausted)))
	r.dailyCapacity.WithLabelValues(scope).Set(float64(rep.DailyCapacity))
	r.efficiency.WithLabelValues(scope).Set(rep.Efficiency)
}

// ObserveAdvance counts one order entering stage.
func (r *Recorder) ObserveAdvance(stage string) {
	if r == nil {
		return
	}
	r.advanced.WithLabelValues(stage).Inc()
}

// Handler serves the registry in the Prometheus exposition format.
func (r *Recorder) Handler() http.Handler {
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{Registry: r.registry})
}
