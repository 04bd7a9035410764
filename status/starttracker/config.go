package starttracker

import (
	"time"
)

// MinEvaluationInterval is the shortest interval at which healthz polls
// the startup state
const MinEvaluationInterval = time.Second

// StartConfig is the health.startup section of the config file. Startup
// covers the websocket listener coming up, the first flush cycle and, with
// archiving enabled, the first stored capture.
type StartConfig struct {
	EvaluationInterval time.Duration `yaml:"interval"`
	// Startup still pending after WarnDuration is reported as a warning,
	// after ErrorDuration as an error.
	ErrorDuration  time.Duration `yaml:"error_duration"`
	WarnDuration   time.Duration `yaml:"warn_duration"`
	ReportHealthz  bool          `yaml:"report_healthz"`
	ReportMetadata bool          `yaml:"report_metadata"` // sets startupCompleted in the healthz metadata
}

// Validated returns a copy with the interval raised to the minimum and
// negative durations cleared. A warning threshold above the error threshold
// would never fire and is lowered to it.
func (sc StartConfig) Validated() StartConfig {
	sc.EvaluationInterval = max(sc.EvaluationInterval, MinEvaluationInterval)
	sc.ErrorDuration = max(sc.ErrorDuration, 0)
	sc.WarnDuration = min(max(sc.WarnDuration, 0), sc.ErrorDuration)
	return sc
}
