package config

import (
	"strings"

	ferrors "git.home.luguber.info/inful/neuroflow/internal/foundation/errors"
)

// Validate checks the structural configuration. Per-task requirements are
// checked when the task registry is built.
func (c *Config) Validate() error {
	v := configurationValidator{config: c}
	for _, check := range []func() error{v.validatePipeline, v.validateRetry, v.validateServices} {
		if err := check(); err != nil {
			return err
		}
	}
	return nil
}

type configurationValidator struct {
	config *Config
}

func (cv configurationValidator) validatePipeline() error {
	p := cv.config.Pipeline
	if strings.TrimSpace(p.SubjectsDir) == "" {
		return ferrors.ConfigError("pipeline.subjects_dir must not be empty").Build()
	}
	if p.Concurrency < 1 {
		return ferrors.ConfigError("pipeline.concurrency must be at least 1").
			WithContext("value", p.Concurrency).Build()
	}
	if p.Threads < 1 {
		return ferrors.ConfigError("pipeline.threads must be at least 1").
			WithContext("value", p.Threads).Build()
	}
	for _, list := range [][]string{p.Only, p.Skip} {
		for _, name := range list {
			if strings.TrimSpace(name) == "" {
				return ferrors.ConfigError("pipeline.only and pipeline.skip must not contain empty task names").Build()
			}
		}
	}
	return nil
}

func (cv configurationValidator) validateRetry() error {
	r := cv.config.Retry
	if NormalizeRetryBackoff(string(r.Mode)) == "" {
		return ferrors.ConfigError("invalid retry.mode").
			WithContext("value", string(r.Mode)).
			WithContext("allowed", "fixed, linear, exponential").Build()
	}
	if r.Max < r.Initial {
		return ferrors.ConfigError("retry.max must not be smaller than retry.initial").
			WithContext("initial", r.Initial.String()).
			WithContext("max", r.Max.String()).Build()
	}
	return nil
}

func (cv configurationValidator) validateServices() error {
	if cv.config.Metrics.Enabled && strings.TrimSpace(cv.config.Metrics.Listen) == "" {
		return ferrors.ConfigError("metrics.listen is required when metrics are enabled").Build()
	}
	if cv.config.Events.NATSURL != "" && strings.TrimSpace(cv.config.Events.Subject) == "" {
		return ferrors.ConfigError("events.subject is required when events.nats_url is set").Build()
	}
	return nil
}
