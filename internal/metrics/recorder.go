package metrics

import "time"

// ResultLabel enumerates stage result categories for counters.
type ResultLabel string

const (
	ResultSuccess  ResultLabel = "success"
	ResultWarning  ResultLabel = "warning"
	ResultFatal    ResultLabel = "fatal"
	ResultCanceled ResultLabel = "canceled"
)

// Recorder defines observability hooks for generation runs. Implementations
// may forward to Prometheus or any other backend.
type Recorder interface {
	ObserveStageDuration(stage string, d time.Duration)
	IncStageResult(stage string, result ResultLabel)
	ObserveGenerationDuration(strategy string, d time.Duration)
	IncGenerationOutcome(outcome string) // outcome: completed|failed|canceled
	IncRetry(stage string)
	IncRetryExhausted(stage string)
	IncPlanFallback(reason string)
	ObserveProviderCall(provider string, d time.Duration, success bool)
	AddRewriteHits(rule string, n int)
	AddActiveStreams(delta int)
}

// NoopRecorder is a Recorder that does nothing (default when metrics not configured).
type NoopRecorder struct{}

func (NoopRecorder) ObserveStageDuration(string, time.Duration)      {}
func (NoopRecorder) IncStageResult(string, ResultLabel)              {}
func (NoopRecorder) ObserveGenerationDuration(string, time.Duration) {}
func (NoopRecorder) IncGenerationOutcome(string)                     {}
func (NoopRecorder) IncRetry(string)                                 {}
func (NoopRecorder) IncRetryExhausted(string)                        {}
func (NoopRecorder) IncPlanFallback(string)                          {}
func (NoopRecorder) ObserveProviderCall(string, time.Duration, bool) {}
func (NoopRecorder) AddRewriteHits(string, int)                      {}
func (NoopRecorder) AddActiveStreams(int)                            {}
