package healthtracker

import (
	"time"
)

const (
	// MinEvaluationInterval is the minimum interval allowed between healthz evaluation
	MinEvaluationInterval = time.Second

	// MinErrorDuration is the minimum duration before healthz evaluates a tracked item as failing
	MinErrorDuration = 0 * time.Second

	// MinWarnDuration is the minimum duration before healthz evaluates a tracked item as warning
	MinWarnDuration = 0 * time.Second
)

// HealthConfig configures the thresholds of one HealthTracker
type HealthConfig struct {
	ErrorDuration      time.Duration `yaml:"error_duration"`
	WarnDuration       time.Duration `yaml:"warn_duration"`
	ErrorSequence      uint32        `yaml:"error_sequence"`
	WarnSequence       uint32        `yaml:"warn_sequence"`
	EvaluationInterval time.Duration `yaml:"interval"`
}

// DefaultHealthConfig warns after a few failed flush cycles and fails after
// a sustained outage.
var DefaultHealthConfig = HealthConfig{
	ErrorDuration:      5 * time.Minute,
	WarnDuration:       30 * time.Second,
	ErrorSequence:      50,
	WarnSequence:       5,
	EvaluationInterval: 5 * time.Second,
}

func (hc HealthConfig) Validated() HealthConfig {
	// Enforce MinEvaluationInterval
	if hc.EvaluationInterval < MinEvaluationInterval {
		hc.EvaluationInterval = MinEvaluationInterval
	}

	// Enforce MinErrorDuration
	if hc.ErrorDuration < MinErrorDuration {
		hc.ErrorDuration = MinErrorDuration
	}

	// Enforce MinWarnDuration
	if hc.WarnDuration < MinWarnDuration {
		hc.WarnDuration = MinWarnDuration
	}

	// A zero sequence threshold would always trigger
	if hc.ErrorSequence == 0 {
		hc.ErrorSequence = DefaultHealthConfig.ErrorSequence
	}
	if hc.WarnSequence == 0 {
		hc.WarnSequence = DefaultHealthConfig.WarnSequence
	}

	return hc
}
