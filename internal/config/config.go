// Package config loads and validates the wayline YAML configuration.
//
// Two access surfaces are provided:
//   - typed structs (Config and friends) for module wiring
//   - a dotted-key Lookup over the raw document for open-ended processor
//     options, with explicit not-found / wrong-type failures
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Config is the complete daemon configuration.
type Config struct {
	InstanceID       string          `yaml:"instance_id"`
	ShutdownTimeoutS int             `yaml:"shutdown_timeout_s"` // graceful shutdown timeout in seconds (default: 5)
	Camera           CameraConfig    `yaml:"camera"`
	Audio            AudioConfig     `yaml:"audio"`
	Perception       PerceptionConfig `yaml:"perception"`
	Reasoning        ReasoningConfig `yaml:"reasoning"`
	MQTT             MQTTConfig      `yaml:"mqtt"`

	raw map[string]any // parsed document for Lookup
}

// CameraConfig selects and parameterizes the camera backend.
type CameraConfig struct {
	Backend      string  `yaml:"backend"` // v4l2, gstreamer, sim
	DeviceID     int     `yaml:"device_id"`
	Width        int     `yaml:"width"`
	Height       int     `yaml:"height"`
	TargetFPS    float64 `yaml:"target_fps"`
	GrabTimeoutMS int    `yaml:"grab_timeout_ms"` // bounded frame wait (default: 500)
}

// AudioConfig parameterizes the audio engine and its HAL backend.
type AudioConfig struct {
	Enabled      bool   `yaml:"enabled"`
	Backend      string `yaml:"backend"` // gstreamer, sim
	CaptureRate  int    `yaml:"capture_rate"`  // device sample rate
	PipelineRate int    `yaml:"pipeline_rate"` // rate delivered downstream (resampled)
	Channels     int    `yaml:"channels"`
	ChunkSamples int    `yaml:"chunk_samples"` // samples per capture chunk
	NoiseFilter  bool   `yaml:"noise_filter"`  // register the capture filter hook
}

// PerceptionConfig lists the models of the perception pipeline.
// A nil model disables its stage; the pipeline runs whatever is configured,
// in detector -> depth -> face order.
type PerceptionConfig struct {
	Runtime        string       `yaml:"runtime"` // inference backend name
	ObjectDetector *ModelConfig `yaml:"object_detector,omitempty"`
	DepthEstimator *ModelConfig `yaml:"depth_estimator,omitempty"`
	FaceRecognizer *ModelConfig `yaml:"face_recognizer,omitempty"`
}

// ModelConfig defines a single model.
type ModelConfig struct {
	ModelPath    string   `yaml:"model_path"`
	InputWidth   int      `yaml:"input_width"`
	InputHeight  int      `yaml:"input_height"`
	Confidence   float64  `yaml:"confidence"`
	IoUThreshold float64  `yaml:"iou_threshold"`
	ClassNames   []string `yaml:"class_names,omitempty"`
}

// ReasoningConfig parameterizes the interpreter module.
type ReasoningConfig struct {
	Enabled     bool   `yaml:"enabled"`
	ModelPath   string `yaml:"model_path"`
	ContextSize int    `yaml:"context_size"`
	Threads     int    `yaml:"threads"`
}

// MQTTConfig configures the optional scene emitter. An empty broker
// disables the module entirely.
type MQTTConfig struct {
	Broker     string `yaml:"broker"`
	SceneTopic string `yaml:"scene_topic"`
	HealthTopic string `yaml:"health_topic"`
	QoS        byte   `yaml:"qos"`
}

// Load reads, parses and validates a YAML configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse parses and validates configuration bytes.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse: %w", err)
	}

	var raw map[string]any
	if err := yaml.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("config: failed to parse raw document: %w", err)
	}
	cfg.raw = raw

	applyDefaults(&cfg)

	if err := Validate(&cfg); err != nil {
		return nil, fmt.Errorf("config: invalid configuration: %w", err)
	}
	return &cfg, nil
}

func applyDefaults(cfg *Config) {
	if cfg.ShutdownTimeoutS == 0 {
		cfg.ShutdownTimeoutS = 5
	}
	if cfg.Camera.Backend == "" {
		cfg.Camera.Backend = "v4l2"
	}
	if cfg.Camera.Width == 0 {
		cfg.Camera.Width = 640
	}
	if cfg.Camera.Height == 0 {
		cfg.Camera.Height = 480
	}
	if cfg.Camera.TargetFPS == 0 {
		cfg.Camera.TargetFPS = 5
	}
	if cfg.Camera.GrabTimeoutMS == 0 {
		cfg.Camera.GrabTimeoutMS = 500
	}
	if cfg.Audio.Backend == "" {
		cfg.Audio.Backend = "gstreamer"
	}
	if cfg.Audio.CaptureRate == 0 {
		cfg.Audio.CaptureRate = 48000
	}
	if cfg.Audio.PipelineRate == 0 {
		cfg.Audio.PipelineRate = 16000
	}
	if cfg.Audio.Channels == 0 {
		cfg.Audio.Channels = 1
	}
	if cfg.Audio.ChunkSamples == 0 {
		cfg.Audio.ChunkSamples = 4800 // 100ms at 48kHz
	}
	if cfg.Perception.Runtime == "" {
		cfg.Perception.Runtime = "onnx"
	}
	if cfg.MQTT.SceneTopic == "" {
		cfg.MQTT.SceneTopic = "wayline/scene"
	}
	if cfg.MQTT.HealthTopic == "" {
		cfg.MQTT.HealthTopic = "wayline/health"
	}
}
