package perception

import (
	"fmt"

	"github.com/wayline-dev/wayline-wearable/internal/config"
	"github.com/wayline-dev/wayline-wearable/internal/hal"
	"github.com/wayline-dev/wayline-wearable/internal/inference"
	"github.com/wayline-dev/wayline-wearable/internal/types"
)

// FaceIndex resolves a face embedding to an enrolled identity. The index is
// an injected collaborator so recognition can run against any enrollment
// store without the stage knowing where identities live.
type FaceIndex interface {
	// Match returns the closest enrolled name and its similarity in [0,1].
	// ok is false when no enrollment clears the index's threshold.
	Match(embedding []float32) (name string, similarity float32, ok bool)
}

// faceStage runs the face embedding model on each person detection's crop
// and labels it through the index. Faces that match nothing are reported as
// "unknown".
type faceStage struct {
	session inference.Session
	cfg     *config.ModelConfig
	index   FaceIndex
}

func newFaceStage(session inference.Session, cfg *config.ModelConfig, index FaceIndex) *faceStage {
	return &faceStage{session: session, cfg: cfg, index: index}
}

func (s *faceStage) Name() string { return "face-recognizer" }

func (s *faceStage) Process(scene *types.SceneData) error {
	for i := range scene.Detections {
		box := &scene.Detections[i]
		if box.Suppressed || !isPersonClass(box) {
			continue
		}

		// Each detection embeds its own region; two people in one frame
		// must never share an embedding.
		crop, ok := cropRegion(scene.Frame, box)
		if !ok {
			continue // degenerate box, nothing to recognize
		}
		input, err := preprocessFrame(crop, s.cfg.InputWidth, s.cfg.InputHeight)
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

		match := types.FaceMatch{Name: "unknown", Box: *box}
		if s.index != nil {
			if name, sim, ok := s.index.Match(outputs[0].Data); ok {
				match.Name = name
				match.Similarity = sim
			}
		}
		scene.Faces = append(scene.Faces, match)
	}
	return nil
}

// cropRegion copies the box's pixel rectangle out of the frame. The copy is
// deliberate: the source may be a borrowed HAL buffer, and the crop must not
// alias it. Returns ok=false for boxes that clamp to an empty rectangle.
func cropRegion(frame *hal.Frame, box *types.BoundingBox) (*hal.Frame, bool) {
	x1 := clampInt(int(box.X1*float32(frame.Width)), 0, frame.Width)
	y1 := clampInt(int(box.Y1*float32(frame.Height)), 0, frame.Height)
	x2 := clampInt(int(box.X2*float32(frame.Width)+0.5), 0, frame.Width)
	y2 := clampInt(int(box.Y2*float32(frame.Height)+0.5), 0, frame.Height)

	w, h := x2-x1, y2-y1
	if w <= 0 || h <= 0 {
		return nil, false
	}

	data := make([]byte, w*h*3)
	for row := 0; row < h; row++ {
		srcOff := ((y1+row)*frame.Width + x1) * 3
		copy(data[row*w*3:(row+1)*w*3], frame.Data[srcOff:srcOff+w*3])
	}

	return &hal.Frame{
		Data:      data,
		Width:     w,
		Height:    h,
		Format:    frame.Format,
		SizeBytes: len(data),
		Timestamp: frame.Timestamp,
		TraceID:   frame.TraceID,
	}, true
}

func clampInt(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func isPersonClass(box *types.BoundingBox) bool {
	return box.ClassName == "person" || (box.ClassName == "" && box.ClassID == 0)
}
