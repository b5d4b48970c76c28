// Package metrics provides pipeline metrics.
//
// Components receive a Recorder through dependency injection. NoopRecorder is
// the default and does nothing; PrometheusRecorder is activated when
// metrics.enabled is set and served by Server on metrics.listen.
//
// The pipeline reaches the recorder through pipeline.RecorderObserver for task
// and run outcomes, and through InstrumentedRunner for external commands.
package metrics
