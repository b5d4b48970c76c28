package metrics

import (
	"sync"
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	once            sync.Once
	taskDuration    *prom.HistogramVec
	taskResults     *prom.CounterVec
	runDuration     prom.Histogram
	runOutcome      *prom.CounterVec
	commandDuration *prom.HistogramVec
	commandResults  *prom.CounterVec
}

// runBuckets cover tasks from seconds up to a day-long FreeSurfer reconstruction.
var runBuckets = []float64{1, 10, 60, 300, 900, 1800, 3600, 7200, 14400, 28800, 86400}

// NewPrometheusRecorder constructs and registers Prometheus metrics (idempotent).
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{}
	pr.once.Do(func() {
		pr.taskDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "neuroflow",
			Name:      "task_duration_seconds",
			Help:      "Duration of individual pipeline tasks",
			Buckets:   runBuckets,
		}, []string{"task"})
		pr.taskResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "neuroflow",
			Name:      "task_results_total",
			Help:      "Task terminal states",
		}, []string{"task", "state"})
		pr.runDuration = prom.NewHistogram(prom.HistogramOpts{
			Namespace: "neuroflow",
			Name:      "run_duration_seconds",
			Help:      "Total subject run duration",
			Buckets:   runBuckets,
		})
		pr.runOutcome = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "neuroflow",
			Name:      "run_outcomes_total",
			Help:      "Subject runs by final outcome",
		}, []string{"outcome"})
		pr.commandDuration = prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: "neuroflow",
			Name:      "command_duration_seconds",
			Help:      "Duration of external tool invocations",
			Buckets:   runBuckets,
		}, []string{"program"})
		pr.commandResults = prom.NewCounterVec(prom.CounterOpts{
			Namespace: "neuroflow",
			Name:      "command_results_total",
			Help:      "External tool invocations by result",
		}, []string{"program", "result"})
		reg.MustRegister(pr.taskDuration, pr.taskResults, pr.runDuration, pr.runOutcome, pr.commandDuration, pr.commandResults)
	})
	return pr
}

func (p *PrometheusRecorder) ObserveTaskDuration(task string, d time.Duration) {
	if p == nil || p.taskDuration == nil {
		return
	}
	p.taskDuration.WithLabelValues(task).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncTaskResult(task, state string) {
	if p == nil || p.taskResults == nil {
		return
	}
	p.taskResults.WithLabelValues(task, state).Inc()
}

func (p *PrometheusRecorder) ObserveRunDuration(d time.Duration) {
	if p == nil || p.runDuration == nil {
		return
	}
	p.runDuration.Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncRunOutcome(outcome string) {
	if p == nil || p.runOutcome == nil {
		return
	}
	p.runOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) ObserveCommandDuration(program string, d time.Duration, success bool) {
	if p == nil || p.commandDuration == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.commandDuration.WithLabelValues(program).Observe(d.Seconds())
	p.commandResults.WithLabelValues(program, res).Inc()
}
