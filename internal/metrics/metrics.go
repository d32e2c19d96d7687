// Package metrics records alert and cycle counters with Prometheus.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"tradealert/internal/monitor"
)

// Recorder implements alerts.Recorder and monitor.Observer.
// It owns its registry so several instances (tests) never collide.
type Recorder struct {
	reg *prometheus.Registry

	handlerSends   *prometheus.CounterVec
	handlerLatency *prometheus.HistogramVec
	tickerOutcomes *prometheus.CounterVec
	cycles         prometheus.Counter
	cycleDuration  prometheus.Histogram
	lastCycle      prometheus.Gauge
}

func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	f := promauto.With(reg)
	return &Recorder{
		reg: reg,
		handlerSends: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradealert_handler_sends_total",
				Help: "Handler delivery attempts by outcome",
			},
			[]string{"handler", "result"},
		),
		handlerLatency: f.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "tradealert_handler_send_duration_seconds",
				Help:    "Duration of handler delivery attempts",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"handler"},
		),
		tickerOutcomes: f.NewCounterVec(
			prometheus.CounterOpts{
				Name: "tradealert_ticker_outcomes_total",
				Help: "Per-ticker cycle outcomes",
			},
			[]string{"outcome"},
		),
		cycles: f.NewCounter(prometheus.CounterOpts{
			Name: "tradealert_cycles_total",
			Help: "Completed evaluation cycles",
		}),
		cycleDuration: f.NewHistogram(prometheus.HistogramOpts{
			Name:    "tradealert_cycle_duration_seconds",
			Help:    "Duration of evaluation cycles",
			Buckets: []float64{1, 5, 15, 30, 60, 120, 300, 600, 1800},
		}),
		lastCycle: f.NewGauge(prometheus.GaugeOpts{
			Name: "tradealert_last_cycle_timestamp_seconds",
			Help: "Unix time the last cycle finished",
		}),
	}
}

// Registry is served on /metrics.
func (r *Recorder) Registry() *prometheus.Registry { return r.reg }

func (r *Recorder) HandlerResult(name string, ok bool, took time.Duration) {
	result := "ok"
	if !ok {
		result = "fail"
	}
	r.handlerSends.WithLabelValues(name, result).Inc()
	r.handlerLatency.WithLabelValues(name).Observe(took.Seconds())
}

// Ticker labels are left out to keep cardinality bounded.
func (r *Recorder) TickerOutcome(_ string, outcome monitor.Outcome) {
	r.tickerOutcomes.WithLabelValues(string(outcome)).Inc()
}

func (r *Recorder) CycleDone(rep monitor.CycleReport) {
	r.cycles.Inc()
	r.cycleDuration.Observe(rep.Took.Seconds())
	r.lastCycle.Set(float64(rep.Started.Add(rep.Took).Unix()))
}
