package perception

import (
	"fmt"

	"github.com/wayline-dev/wayline-wearable/internal/config"
	"github.com/wayline-dev/wayline-wearable/internal/inference"
	"github.com/wayline-dev/wayline-wearable/internal/types"
)

// depthStage runs the monocular depth model and fuses a distance estimate
// into each surviving detection, sampled at the box center.
type depthStage struct {
	session inference.Session
	cfg     *config.ModelConfig
}

func newDepthStage(session inference.Session, cfg *config.ModelConfig) *depthStage {
	return &depthStage{session: session, cfg: cfg}
}

func (s *depthStage) Name() string { return "depth-estimator" }

func (s *depthStage) Process(scene *types.SceneData) error {
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
	w, h := depthDims(out.Shape)
	if w <= 0 || h <= 0 || len(out.Data) < w*h {
		return fmt.Errorf("%s: unexpected output shape %v", s.Name(), out.Shape)
	}

	depth := &types.DepthMap{Width: w, Height: h, Meters: out.Data[:w*h]}
	scene.Depth = depth

	for i := range scene.Detections {
		box := &scene.Detections[i]
		if box.Suppressed {
			continue
		}
		cx := int((box.X1 + box.X2) / 2 * float32(w))
		cy := int((box.Y1 + box.Y2) / 2 * float32(h))
		box.DistanceM = depth.At(cx, cy)
	}
	return nil
}

// depthDims extracts the H x W of the depth map from an output shape of the
// form [1 1 H W], [1 H W] or [H W].
func depthDims(shape []int) (w, h int) {
	if len(shape) < 2 {
		return 0, 0
	}
	return shape[len(shape)-1], shape[len(shape)-2]
}
