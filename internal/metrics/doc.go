// Package metrics provides observability hooks for generation, streaming and
// rewriting.
//
// Components receive a Recorder through their constructors and default to
// NoopRecorder, so no nil checks are needed at call sites:
//
//	type Controller struct {
//	    recorder metrics.Recorder
//	}
//
// When metrics are enabled in config, cmd/pagesmith builds a
// PrometheusRecorder against a private registry and mounts HTTPHandler for
// that registry on the configured path.
package metrics
