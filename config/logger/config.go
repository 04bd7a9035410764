package logger

import (
	"fmt"
	"slices"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/pflag"
)

var (
	Levels     = []string{"trace", "debug", "info", "warning", "error"}
	Formats    = []string{"human", "logfmt", "json"}
	Timestamps = []string{"short", "disable", "full"}
)

// Config is the log section of the meshstream config file. The per-frame
// and per-client messages of the streamer are only emitted at debug and
// trace level.
type Config struct {
	Level     string `yaml:"level"`     // One of Levels
	Format    string `yaml:"format"`    // One of Formats, human adds a scene/client prefix
	Timestamp string `yaml:"timestamp"` // One of Timestamps
}

// DefaultConfig is used when the config file has no log section
var DefaultConfig = Config{
	Level:     "info",
	Format:    "human",
	Timestamp: "short",
}

// FlagConfig holds the values of the --log-* flags. Empty fields were not
// set on the command line and do not override the config file.
var FlagConfig = Config{}

// RegisterFlags adds the --log-* flags to a cobra flag set
func RegisterFlags(fs *pflag.FlagSet) {
	fs.StringVar(&FlagConfig.Level, "log-level", "",
		"Log level "+options(DefaultConfig.Level, Levels))
	fs.StringVar(&FlagConfig.Format, "log-format", "",
		"Log format "+options(DefaultConfig.Format, Formats))
	fs.StringVar(&FlagConfig.Timestamp, "log-timestamp", "",
		"Log timestamp "+options(DefaultConfig.Timestamp, Timestamps))
}

// Check validates the log section
func (c Config) Check() error {
	if !slices.Contains(Levels, c.Level) {
		return fmt.Errorf("log.level: must be one of: %s", strings.Join(Levels, ", "))
	}
	if !slices.Contains(Formats, c.Format) {
		return fmt.Errorf("log.format: must be one of: %s", strings.Join(Formats, ", "))
	}
	if c.Timestamp != "" && !slices.Contains(Timestamps, c.Timestamp) {
		return fmt.Errorf("log.timestamp: must be one of: %s", strings.Join(Timestamps, ", "))
	}
	return nil
}

// Merge returns c with the non-empty fields of o applied on top
func (c Config) Merge(o Config) Config {
	if o.Level != "" {
		c.Level = o.Level
	}
	if o.Format != "" {
		c.Format = o.Format
	}
	if o.Timestamp != "" {
		c.Timestamp = o.Timestamp
	}
	return c
}

// Formatter returns the logrus formatter for a checked Config
func (c Config) Formatter() logrus.Formatter {
	text := &logrus.TextFormatter{
		DisableTimestamp: c.Timestamp == "disable",
		FullTimestamp:    c.Timestamp == "full",
	}
	switch c.Format {
	case "json":
		return &logrus.JSONFormatter{DisableTimestamp: text.DisableTimestamp}
	case "logfmt":
		text.DisableColors = true
		return text
	default:
		return &NamespaceFormatter{Parent: text}
	}
}

// Configure applies a checked Config to the standard logrus logger, which
// all meshstream components derive their loggers from.
func Configure(c Config) {
	logrus.SetFormatter(c.Formatter())
	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		logrus.Warnf("Ignoring invalid log level: %s", c.Level)
		return
	}
	logrus.SetLevel(level)
}

func options(def string, list []string) string {
	return fmt.Sprintf("(default: %s; options: %s)", def, strings.Join(list, ", "))
}
