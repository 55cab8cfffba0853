package config

import "fmt"

// Validate checks cross-field constraints after defaults are applied.
// Fail-fast: the first violation aborts loading.
func Validate(cfg *Config) error {
	switch cfg.Camera.Backend {
	case "v4l2", "gstreamer", "sim":
	default:
		return fmt.Errorf("camera.backend %q is not one of v4l2, gstreamer, sim", cfg.Camera.Backend)
	}

	if cfg.Camera.Width <= 0 || cfg.Camera.Height <= 0 {
		return fmt.Errorf("camera resolution %dx%d is invalid", cfg.Camera.Width, cfg.Camera.Height)
	}

	if cfg.Camera.TargetFPS < 0.1 || cfg.Camera.TargetFPS > 60 {
		return fmt.Errorf("camera.target_fps %.2f out of range (0.1-60)", cfg.Camera.TargetFPS)
	}

	if cfg.Audio.Enabled {
		switch cfg.Audio.Backend {
		case "gstreamer", "sim":
		default:
			return fmt.Errorf("audio.backend %q is not one of gstreamer, sim", cfg.Audio.Backend)
		}
		if cfg.Audio.Channels != 1 && cfg.Audio.Channels != 2 {
			return fmt.Errorf("audio.channels %d is invalid (1 or 2)", cfg.Audio.Channels)
		}
		if cfg.Audio.ChunkSamples <= 0 {
			return fmt.Errorf("audio.chunk_samples must be positive")
		}
	}

	for name, m := range map[string]*ModelConfig{
		"perception.object_detector": cfg.Perception.ObjectDetector,
		"perception.depth_estimator": cfg.Perception.DepthEstimator,
		"perception.face_recognizer": cfg.Perception.FaceRecognizer,
	} {
		if m == nil {
			continue
		}
		if m.ModelPath == "" {
			return fmt.Errorf("%s.model_path is required", name)
		}
		if m.InputWidth <= 0 || m.InputHeight <= 0 {
			return fmt.Errorf("%s input dimensions %dx%d are invalid", name, m.InputWidth, m.InputHeight)
		}
		if m.Confidence < 0 || m.Confidence > 1 {
			return fmt.Errorf("%s.confidence %.2f out of range [0,1]", name, m.Confidence)
		}
		if m.IoUThreshold < 0 || m.IoUThreshold > 1 {
			return fmt.Errorf("%s.iou_threshold %.2f out of range [0,1]", name, m.IoUThreshold)
		}
	}

	if cfg.Reasoning.Enabled && cfg.Reasoning.ModelPath == "" {
		return fmt.Errorf("reasoning.model_path is required when reasoning is enabled")
	}

	return nil
}
