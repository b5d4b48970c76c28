package config

import (
	"path/filepath"
	"runtime"
	"time"
)

// DefaultApplier applies defaults for a specific configuration domain.
type DefaultApplier interface {
	ApplyDefaults(cfg *Config)
	Domain() string
}

func defaultAppliers() []DefaultApplier {
	return []DefaultApplier{
		pipelineDefaults{},
		retryDefaults{},
		storeDefaults{},
		serviceDefaults{},
		resourcesDefaults{},
		qaDefaults{},
	}
}

// ApplyDefaults fills every unset field. Explicit values are left untouched.
func (c *Config) ApplyDefaults() {
	for _, applier := range defaultAppliers() {
		applier.ApplyDefaults(c)
	}
}

type pipelineDefaults struct{}

func (pipelineDefaults) Domain() string { return "pipeline" }

func (pipelineDefaults) ApplyDefaults(cfg *Config) {
	p := &cfg.Pipeline
	if p.SubjectsDir == "" {
		p.SubjectsDir = "."
	}
	if p.Concurrency <= 0 {
		p.Concurrency = 1
	}
	if p.Threads <= 0 {
		p.Threads = runtime.NumCPU()
	}
	if p.LogTailLines <= 0 {
		p.LogTailLines = 40
	}
	if cfg.Tasks == nil {
		cfg.Tasks = map[string]map[string]any{}
	}
}

type retryDefaults struct{}

func (retryDefaults) Domain() string { return "retry" }

func (retryDefaults) ApplyDefaults(cfg *Config) {
	r := &cfg.Retry
	if r.Mode == "" {
		r.Mode = RetryBackoffLinear
	} else if m := NormalizeRetryBackoff(string(r.Mode)); m != "" {
		r.Mode = m
	}
	if r.Initial <= 0 {
		r.Initial = time.Second
	}
	if r.Max <= 0 {
		r.Max = 30 * time.Second
	}
	if r.MaxRetries < 0 {
		r.MaxRetries = 0
	}
}

type storeDefaults struct{}

func (storeDefaults) Domain() string { return "store" }

func (storeDefaults) ApplyDefaults(cfg *Config) {
	if cfg.Store.Path == "" {
		cfg.Store.Path = filepath.Join(cfg.Pipeline.SubjectsDir, ".neuroflow", "history.db")
	}
}

type serviceDefaults struct{}

func (serviceDefaults) Domain() string { return "services" }

func (serviceDefaults) ApplyDefaults(cfg *Config) {
	if cfg.Metrics.Listen == "" {
		cfg.Metrics.Listen = ":9464"
	}
	if cfg.Events.Subject == "" {
		cfg.Events.Subject = "neuroflow.tasks"
	}
	if cfg.Watch.Debounce <= 0 {
		cfg.Watch.Debounce = 5 * time.Second
	}
	if cfg.Watch.Interval < 0 {
		cfg.Watch.Interval = 0
	}
}

type resourcesDefaults struct{}

func (resourcesDefaults) Domain() string { return "resources" }

func (resourcesDefaults) ApplyDefaults(cfg *Config) {
	if cfg.Resources.Dir == "" {
		cfg.Resources.Dir = "resources"
	}
	if cfg.Resources.CacheDir == "" {
		cfg.Resources.CacheDir = filepath.Join(cfg.Pipeline.SubjectsDir, ".neuroflow", "resources")
	}
}

type qaDefaults struct{}

func (qaDefaults) Domain() string { return "qa" }

func (qaDefaults) ApplyDefaults(cfg *Config) {
	if cfg.QA.ReportDir == "" {
		cfg.QA.ReportDir = "report"
	}
	if cfg.QA.Slicer == "" {
		cfg.QA.Slicer = "slicer"
	}
	if cfg.QA.TrkRenderer == "" {
		cfg.QA.TrkRenderer = "dipy_horizon"
	}
}
