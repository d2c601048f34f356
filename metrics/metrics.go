/*
Package metrics exposes Prometheus counters for the absence workflow.

Each Recorder owns its registry, so tests and parallel servers never
collide on global metric names. A nil *Recorder is valid and records
nothing.

METRICS:
  absence_requests_created_total{outcome}          pending | granted | refused
  absence_step_transitions_total{action,result}    accept|reject x ok|refused
  absence_eligibility_checks_total{result}         applicable | not_applicable | error
  absence_rule_failures_total{kind}                rules that did not validate
  absence_renewals_created_total{right}            scheduler output
  absence_http_request_duration_seconds{route,status}
*/
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Recorder holds the collectors of one process.
type Recorder struct {
	registry *prometheus.Registry

	requestsCreated *prometheus.CounterVec
	stepTransitions *prometheus.CounterVec
	eligibility     *prometheus.CounterVec
	ruleFailures    *prometheus.CounterVec
	renewalsCreated *prometheus.CounterVec
	httpDuration    *prometheus.HistogramVec
}

// New registers the collectors on a fresh registry, along with the Go
// runtime and process collectors.
func New() *Recorder {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	factory := promauto.With(reg)

	return &Recorder{
		registry: reg,
		requestsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "absence",
			Name:      "requests_created_total",
			Help:      "Absence requests submitted, by outcome.",
		}, []string{"outcome"}),
		stepTransitions: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "absence",
			Name:      "step_transitions_total",
			Help:      "Approval actions, by action and result.",
		}, []string{"action", "result"}),
		eligibility: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "absence",
			Name:      "eligibility_checks_total",
			Help:      "Right applicability checks, by result.",
		}, []string{"result"}),
		ruleFailures: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "absence",
			Name:      "rule_failures_total",
			Help:      "Rules that did not validate, by kind.",
		}, []string{"kind"}),
		renewalsCreated: factory.NewCounterVec(prometheus.CounterOpts{
			Namespace: "absence",
			Name:      "renewals_created_total",
			Help:      "Renewal periods created by the scheduler, by right.",
		}, []string{"right"}),
		httpDuration: factory.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "absence",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "Latency distribution of API requests.",
			Buckets: []float64{
				0.001, 0.002, 0.005,
				0.01, 0.02, 0.05,
				0.1, 0.2, 0.5,
				1, 2, 5,
			},
		}, []string{"route", "status"}),
	}
}

// Registry returns the registry backing the recorder.
func (r *Recorder) Registry() *prometheus.Registry {
	if r == nil {
		return nil
	}
	return r.registry
}

// Handler serves the registry in the Prometheus text format.
func (r *Recorder) Handler() http.Handler {
	if r == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(r.registry, promhttp.HandlerOpts{})
}

func (r *Recorder) RequestCreated(outcome string) {
	if r == nil {
		return
	}
	r.requestsCreated.WithLabelValues(outcome).Inc()
}

func (r *Recorder) StepTransition(action string, ok bool) {
	if r == nil {
		return
	}
	result := "ok"
	if !ok {
		result = "refused"
	}
	r.stepTransitions.WithLabelValues(action, result).Inc()
}

func (r *Recorder) EligibilityChecked(result string) {
	if r == nil {
		return
	}
	r.eligibility.WithLabelValues(result).Inc()
}

func (r *Recorder) RuleFailed(kind string) {
	if r == nil {
		return
	}
	r.ruleFailures.WithLabelValues(kind).Inc()
}

func (r *Recorder) RenewalCreated(right string) {
	if r == nil {
		return
	}
	r.renewalsCreated.WithLabelValues(right).Inc()
}

// ObserveHTTP records one served request.
func (r *Recorder) ObserveHTTP(route string, status int, elapsed time.Duration) {
	if r == nil {
		return
	}
	r.httpDuration.WithLabelValues(route, strconv.Itoa(status)).Observe(elapsed.Seconds())
}
