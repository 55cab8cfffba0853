package perception

import (
	"fmt"

	"github.com/wayline-dev/wayline-wearable/internal/config"
	"github.com/wayline-dev/wayline-wearable/internal/inference"
	"github.com/wayline-dev/wayline-wearable/internal/types"
)

// detectorStage runs the object detection model and attaches decoded,
// NMS-filtered boxes to the scene.
type detectorStage struct {
	session inference.Session
	cfg     *config.ModelConfig
}

func newDetectorStage(session inference.Session, cfg *config.ModelConfig) *detectorStage {
	return &detectorStage{session: session, cfg: cfg}
}

func (s *detectorStage) Name() string { return "object-detector" }

func (s *detectorStage) Process(scene *types.SceneData) error {
	input, err := preprocessFrame(scene.Frame, s.cfg.InputWidth, s.cfg.InputHeight)
	if err != nil {
		return fmt.Errorf("%s: %w", s.Name(), err)
	}

	outputs, err := s.session.Run(input)
	if err != nil {
		return fmt.Errorf("%s: %w", s.Name(), err)
	}
	if len(outputs) == 0 {
		return fmt.Errorf("%s: model produced no outputs", s.Name())
	}

	out := outputs[0]
	stride := rowStride(out.Shape)
	if stride < 5 {
		return fmt.Errorf("%s: unexpected output shape %v", s.Name(), out.Shape)
	}

	boxes := decodeDetections(out.Data, stride, s.cfg.InputWidth, s.cfg.InputHeight,
		float32(s.cfg.Confidence), s.cfg.ClassNames)
	suppressOverlaps(boxes, float32(s.cfg.IoUThreshold))

	scene.Detections = boxes
	return nil
}

// rowStride is the innermost dimension of the detector output: the per-box
// attribute count.
func rowStride(shape []int) int {
	if len(shape) == 0 {
		return 0
	}
	return shape[len(shape)-1]
}
