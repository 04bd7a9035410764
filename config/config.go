// Package config implements the YAML config file parser
package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"cogentcore.org/core/math32"
	"github.com/c2h5oh/datasize"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v2"

	"github.com/meshstream/meshstream/config/logger"
	"github.com/meshstream/meshstream/frame"
	"github.com/meshstream/meshstream/geometry"
	"github.com/meshstream/meshstream/scene"
	"github.com/meshstream/meshstream/status/healthtracker"
	"github.com/meshstream/meshstream/status/starttracker"
	"github.com/meshstream/meshstream/stripe"
)

// DefaultFlushInterval is the default interval between two flush cycles
const DefaultFlushInterval = 200 * time.Millisecond

// DefaultWriteTimeout is the default timeout for sending one frame to a
// client. A client that cannot keep up within this time is disconnected,
// so that it does not delay the other clients.
const DefaultWriteTimeout = 10 * time.Second

// Config is the config root object
type Config struct {
	Instance  string        `yaml:"instance"` // Defaults to the hostname
	Scene     Scene         `yaml:"scene"`
	Stream    Stream        `yaml:"stream"`
	WebSocket WebSocket     `yaml:"websocket"`
	HTTP      HTTP          `yaml:"http"`
	Storage   Storage       `yaml:"storage"`
	Health    Health        `yaml:"health"`
	Demo      Demo          `yaml:"demo"`
	Log       logger.Config `yaml:"log"`

	// Set to current version by main
	Version string `yaml:"-"`
}

// Scene configures the scene Context
type Scene struct {
	Name        string `yaml:"name"`
	Bias        int    `yaml:"bias"`         // Index bias of the modeling engine, 0 or 1
	StripeLimit int    `yaml:"stripe_limit"` // Local vertices per stripe, 0 for the maximum
	Camera      Camera `yaml:"camera"`
}

// Camera is the initial camera sent to clients
type Camera struct {
	FOV    float32   `yaml:"fov"`
	Near   float32   `yaml:"near"`
	Far    float32   `yaml:"far"`
	Eye    []float32 `yaml:"eye"`
	Center []float32 `yaml:"center"`
	Up     []float32 `yaml:"up"`
}

// Stream configures the flush scheduler
type Stream struct {
	FlushInterval   time.Duration     `yaml:"flush_interval"`
	MaxFrameSize    datasize.ByteSize `yaml:"max_frame_size"`
	WriteTimeout    time.Duration     `yaml:"write_timeout"`
	SendConcurrency int               `yaml:"send_concurrency"` // Clients encoded in parallel
	ArchiveInterval time.Duration     `yaml:"archive_interval"` // 0 disables captures
	ArchiveKeep     int               `yaml:"archive_keep"`     // Own captures to keep, 0 keeps all
}

// WebSocket configures the client transport
type WebSocket struct {
	Address        string            `yaml:"address"` // Address like ":8500"
	Path           string            `yaml:"path"`
	Compression    bool              `yaml:"compression"`
	ReadLimit      datasize.ByteSize `yaml:"read_limit"`
	AllowedOrigins []string          `yaml:"allowed_origins"` // Empty allows all
}

// HTTP configures the HTTP server with Prometheus metrics and status page
type HTTP struct {
	Address string `yaml:"address"` // Address like ":8000"
}

// Storage configures the simpleblob backend for captures
type Storage struct {
	Type    string                 `yaml:"type"` // simpleblob backend, like "memory" or "fs"
	Options map[string]interface{} `yaml:"options"`
}

// Health configures the healthz trackers
type Health struct {
	Flush   healthtracker.HealthConfig `yaml:"flush"`
	Archive healthtracker.HealthConfig `yaml:"archive"`
	Startup starttracker.StartConfig   `yaml:"startup"`
}

// Demo configures the built-in demo scene of the serve command
type Demo struct {
	Enabled      bool          `yaml:"enabled"`
	GridSize     int           `yaml:"grid_size"` // Vertices along each side of the mesh
	CloudPoints  int           `yaml:"cloud_points"`
	LineSegments int           `yaml:"line_segments"`
	EndCapSize   float32       `yaml:"end_cap_size"`
	Interval     time.Duration `yaml:"interval"` // Animation step, 0 for a static scene
}

// Check validates a Config instance
func (c Config) Check() error {
	if err := c.Log.Check(); err != nil {
		return err
	}
	if c.Scene.Name == "" || strings.Contains(c.Scene.Name, "__") {
		return fmt.Errorf("scene.name: must be set and must not contain '__'")
	}
	if c.Scene.Bias != 0 && c.Scene.Bias != 1 {
		return fmt.Errorf("scene.bias: must be 0 or 1, got %d", c.Scene.Bias)
	}
	if c.Scene.StripeLimit < 0 || c.Scene.StripeLimit > stripe.MaxIndexRange {
		return fmt.Errorf("scene.stripe_limit: must be between 0 and %d", stripe.MaxIndexRange)
	}
	if c.Scene.StripeLimit > 0 && c.Scene.StripeLimit < 3 {
		return fmt.Errorf("scene.stripe_limit: must hold at least one triangle")
	}
	cam := c.Scene.Camera
	for name, v := range map[string][]float32{"eye": cam.Eye, "center": cam.Center, "up": cam.Up} {
		if v != nil && len(v) != 3 {
			return fmt.Errorf("scene.camera.%s: need 3 coordinates, got %d", name, len(v))
		}
	}
	if cam.Near < 0 || (cam.Far > 0 && cam.Far <= cam.Near) {
		return fmt.Errorf("scene.camera: invalid near/far planes")
	}
	if c.Stream.FlushInterval < 10*time.Millisecond {
		return fmt.Errorf("stream.flush_interval: too short interval")
	}
	// Arrays are split across records and names are bounded, so any
	// primitive can be sent at the smallest frame size with any stripe limit
	if c.Stream.MaxFrameSize < frame.MinFrameSize {
		return fmt.Errorf("stream.max_frame_size: must be at least %s", frame.MinFrameSize)
	}
	if c.Stream.WriteTimeout <= 0 {
		return fmt.Errorf("stream.write_timeout: must be positive")
	}
	if c.Stream.SendConcurrency < 1 {
		return fmt.Errorf("stream.send_concurrency: must be at least 1")
	}
	if c.Stream.ArchiveInterval < 0 || (c.Stream.ArchiveInterval > 0 && c.Stream.ArchiveInterval < time.Second) {
		return fmt.Errorf("stream.archive_interval: too short interval")
	}
	if c.Stream.ArchiveKeep < 0 {
		return fmt.Errorf("stream.archive_keep: must not be negative")
	}
	if c.Stream.ArchiveInterval > 0 && c.Storage.Type == "" {
		return fmt.Errorf("storage.type: required when stream.archive_interval is set")
	}
	if _, _, err := net.SplitHostPort(c.WebSocket.Address); err != nil {
		return fmt.Errorf("websocket.address: %v", err)
	}
	if !strings.HasPrefix(c.WebSocket.Path, "/") {
		return fmt.Errorf("websocket.path: must start with '/'")
	}
	if c.HTTP.Address != "" {
		if _, _, err := net.SplitHostPort(c.HTTP.Address); err != nil {
			return fmt.Errorf("http.address: %v", err)
		}
		if c.HTTP.Address == c.WebSocket.Address {
			return fmt.Errorf("http.address: same as websocket.address")
		}
	}
	if c.Demo.Enabled {
		if c.Demo.GridSize < 2 {
			return fmt.Errorf("demo.grid_size: must be at least 2")
		}
		if c.Demo.CloudPoints < 0 || c.Demo.LineSegments < 0 {
			return fmt.Errorf("demo: negative counts")
		}
	}
	return nil
}

// SceneCamera converts the camera config, using defaults for anything not
// set.
func (c Config) SceneCamera() scene.Camera {
	cam := scene.DefaultCamera()
	cc := c.Scene.Camera
	if cc.FOV > 0 {
		cam.FOV = cc.FOV
	}
	if cc.Near > 0 {
		cam.Near = cc.Near
	}
	if cc.Far > 0 {
		cam.Far = cc.Far
	}
	vec := func(dst *geometry.Vec3, v []float32) {
		if len(v) == 3 {
			*dst = math32.Vec3(v[0], v[1], v[2])
		}
	}
	vec(&cam.Eye, cc.Eye)
	vec(&cam.Center, cc.Center)
	vec(&cam.Up, cc.Up)
	return cam
}

// InstanceName returns the configured instance name or the hostname
func (c Config) InstanceName() string {
	if c.Instance != "" {
		return c.Instance
	}
	hostname, err := os.Hostname()
	if err != nil {
		return ""
	}
	return hostname
}

// String returns the config as a YAML string
func (c Config) String() string {
	y, err := yaml.Marshal(c)
	if err != nil {
		logrus.Panicf("YAML marshal of config failed: %v", err) // Should never happen
	}
	return string(y)
}

// LoadYAML loads config from YAML. Any set value overwrites any existing value,
// but omitted keys are untouched.
func (c *Config) LoadYAML(yamlContents []byte, expandEnv bool) error {
	if expandEnv {
		yamlContents = []byte(os.ExpandEnv(string(yamlContents)))
	}
	return yaml.UnmarshalStrict(yamlContents, c)
}

// LoadYAMLFile loads config from a YAML file. Any set value overwrites any existing value,
// but omitted keys are untouched.
func (c *Config) LoadYAMLFile(fpath string, expandEnv bool) error {
	contents, err := os.ReadFile(fpath)
	if err != nil {
		return errors.Wrap(err, "open yaml file")
	}
	return c.LoadYAML(contents, expandEnv)
}

// Default returns a Config with default settings
func Default() Config {
	return Config{
		Scene: Scene{
			Name: "default",
		},
		Stream: Stream{
			FlushInterval:   DefaultFlushInterval,
			MaxFrameSize:    frame.DefaultMaxFrameSize,
			WriteTimeout:    DefaultWriteTimeout,
			SendConcurrency: 8,
			ArchiveKeep:     10,
		},
		WebSocket: WebSocket{
			Address:   ":8500",
			Path:      "/stream",
			ReadLimit: 64 * datasize.KB,
		},
		Storage: Storage{
			Options: make(map[string]interface{}),
		},
		Health: Health{
			Flush:   healthtracker.DefaultHealthConfig,
			Archive: healthtracker.DefaultHealthConfig,
			Startup: starttracker.StartConfig{
				EvaluationInterval: 5 * time.Second,
				ErrorDuration:      time.Minute,
				WarnDuration:       10 * time.Second,
				ReportMetadata:     true,
			},
		},
		Demo: Demo{
			GridSize:     64,
			CloudPoints:  2000,
			LineSegments: 16,
			EndCapSize:   0.2,
			Interval:     time.Second,
		},
		Log: logger.DefaultConfig,
	}
}
