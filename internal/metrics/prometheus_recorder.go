package metrics

import (
	"time"

	prom "github.com/prometheus/client_golang/prometheus"
)

const namespace = "pagesmith"

// PrometheusRecorder implements Recorder using Prometheus metrics.
type PrometheusRecorder struct {
	stageDuration      *prom.HistogramVec
	stageResults       *prom.CounterVec
	generationDuration *prom.HistogramVec
	generationOutcome  *prom.CounterVec
	retries            *prom.CounterVec
	retriesExhausted   *prom.CounterVec
	planFallbacks      *prom.CounterVec
	providerDuration   *prom.HistogramVec
	rewriteHits        *prom.CounterVec
	activeStreams      prom.Gauge
}

// NewPrometheusRecorder constructs and registers Prometheus metrics on reg.
func NewPrometheusRecorder(reg *prom.Registry) *PrometheusRecorder {
	if reg == nil {
		reg = prom.NewRegistry()
	}
	pr := &PrometheusRecorder{
		stageDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "stage_duration_seconds",
			Help:      "Duration of individual generation stages",
			Buckets:   prom.ExponentialBuckets(0.25, 2, 10),
		}, []string{"stage"}),
		stageResults: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "stage_results_total",
			Help:      "Stage result counts by outcome",
		}, []string{"stage", "result"}),
		generationDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "generation_duration_seconds",
			Help:      "Total generation duration by strategy",
			Buckets:   prom.ExponentialBuckets(1, 2, 10),
		}, []string{"strategy"}),
		generationOutcome: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "generation_outcomes_total",
			Help:      "Generation outcomes by final state",
		}, []string{"outcome"}),
		retries: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "retries_total",
			Help:      "Generation call retries after transient failures",
		}, []string{"stage"}),
		retriesExhausted: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "retry_exhausted_total",
			Help:      "Count of stages where retries were exhausted",
		}, []string{"stage"}),
		planFallbacks: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "plan_fallbacks_total",
			Help:      "Planning responses replaced by the default plan",
		}, []string{"reason"}),
		providerDuration: prom.NewHistogramVec(prom.HistogramOpts{
			Namespace: namespace,
			Name:      "provider_call_duration_seconds",
			Help:      "Duration of generation service calls",
			Buckets:   prom.DefBuckets,
		}, []string{"provider", "result"}),
		rewriteHits: prom.NewCounterVec(prom.CounterOpts{
			Namespace: namespace,
			Name:      "rewrite_hits_total",
			Help:      "References rewritten, by rule",
		}, []string{"rule"}),
		activeStreams: prom.NewGauge(prom.GaugeOpts{
			Namespace: namespace,
			Name:      "active_streams",
			Help:      "Open generation streams",
		}),
	}
	reg.MustRegister(pr.stageDuration, pr.stageResults, pr.generationDuration, pr.generationOutcome,
		pr.retries, pr.retriesExhausted, pr.planFallbacks, pr.providerDuration, pr.rewriteHits, pr.activeStreams)
	return pr
}

func (p *PrometheusRecorder) ObserveStageDuration(stage string, d time.Duration) {
	if p == nil {
		return
	}
	p.stageDuration.WithLabelValues(stage).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncStageResult(stage string, result ResultLabel) {
	if p == nil {
		return
	}
	p.stageResults.WithLabelValues(stage, string(result)).Inc()
}

func (p *PrometheusRecorder) ObserveGenerationDuration(strategy string, d time.Duration) {
	if p == nil {
		return
	}
	p.generationDuration.WithLabelValues(strategy).Observe(d.Seconds())
}

func (p *PrometheusRecorder) IncGenerationOutcome(outcome string) {
	if p == nil {
		return
	}
	p.generationOutcome.WithLabelValues(outcome).Inc()
}

func (p *PrometheusRecorder) IncRetry(stage string) {
	if p == nil {
		return
	}
	p.retries.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) IncRetryExhausted(stage string) {
	if p == nil {
		return
	}
	p.retriesExhausted.WithLabelValues(stage).Inc()
}

func (p *PrometheusRecorder) IncPlanFallback(reason string) {
	if p == nil {
		return
	}
	p.planFallbacks.WithLabelValues(reason).Inc()
}

func (p *PrometheusRecorder) ObserveProviderCall(provider string, d time.Duration, success bool) {
	if p == nil {
		return
	}
	res := "failed"
	if success {
		res = "success"
	}
	p.providerDuration.WithLabelValues(provider, res).Observe(d.Seconds())
}

func (p *PrometheusRecorder) AddRewriteHits(rule string, n int) {
	if p == nil || n <= 0 {
		return
	}
	p.rewriteHits.WithLabelValues(rule).Add(float64(n))
}

func (p *PrometheusRecorder) AddActiveStreams(delta int) {
	if p == nil {
		return
	}
	p.activeStreams.Add(float64(delta))
}
