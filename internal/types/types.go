// Package types holds the data model shared across the perception pipeline,
// reasoning, and publication layers.
package types

import (
	"time"

	"github.com/wayline-dev/wayline-wearable/internal/hal"
)

// BoundingBox is an axis-aligned detection box. Coordinates are normalized
// corners in [0,1] relative to the source frame: (X1,Y1) top-left, (X2,Y2)
// bottom-right.
type BoundingBox struct {
	X1 float32 `json:"x1"`
	Y1 float32 `json:"y1"`
	X2 float32 `json:"x2"`
	Y2 float32 `json:"y2"`

	// Score is the detector confidence in [0,1].
	Score float32 `json:"score"`
	// ClassID is the model's class index.
	ClassID int `json:"class_id"`
	// ClassName is the resolved label, empty if the model carries no labels.
	ClassName string `json:"class_name,omitempty"`

	// Suppressed marks the box as removed by non-maximum suppression.
	// Write-once: postprocessing sets it, later stages only read it.
	Suppressed bool `json:"-"`

	// DistanceM is the estimated distance to the object in meters, fused in
	// from the depth stage. Zero when no depth estimate exists.
	DistanceM float32 `json:"distance_m,omitempty"`
}

// Width returns the normalized box width.
func (b *BoundingBox) Width() float32 { return b.X2 - b.X1 }

// Height returns the normalized box height.
func (b *BoundingBox) Height() float32 { return b.Y2 - b.Y1 }

// Area returns the normalized box area, zero for degenerate boxes.
func (b *BoundingBox) Area() float32 {
	w, h := b.Width(), b.Height()
	if w <= 0 || h <= 0 {
		return 0
	}
	return w * h
}

// IoU computes intersection over union with another box. A zero-area union
// yields 0, never NaN.
func (b *BoundingBox) IoU(o *BoundingBox) float32 {
	ix1 := max32(b.X1, o.X1)
	iy1 := max32(b.Y1, o.Y1)
	ix2 := min32(b.X2, o.X2)
	iy2 := min32(b.Y2, o.Y2)

	iw, ih := ix2-ix1, iy2-iy1
	if iw <= 0 || ih <= 0 {
		return 0
	}
	inter := iw * ih
	union := b.Area() + o.Area() - inter
	if union <= 0 {
		return 0
	}
	return inter / union
}

// DepthMap is a dense per-pixel depth estimate in meters, row-major,
// typically at a lower resolution than the source frame.
type DepthMap struct {
	Width  int
	Height int
	Meters []float32
}

// At returns the depth at (x, y). Out-of-range coordinates return 0.
func (d *DepthMap) At(x, y int) float32 {
	if x < 0 || y < 0 || x >= d.Width || y >= d.Height {
		return 0
	}
	return d.Meters[y*d.Width+x]
}

// FaceMatch is one recognized (or unrecognized) face in a frame.
type FaceMatch struct {
	// Name is the enrolled identity, or "unknown".
	Name string `json:"name"`
	// Similarity is the embedding match score in [0,1].
	Similarity float32 `json:"similarity"`
	// Box locates the face in the frame.
	Box BoundingBox `json:"box"`
}

// SceneData is the per-frame working set threaded through the pipeline.
// Stages read what earlier stages wrote and append their own results.
//
// Frame is the HAL buffer for the current iteration. When the camera is a
// borrowed-mode device the pipeline owner releases it after the last stage;
// nothing retained past that point may reference Frame.Data.
type SceneData struct {
	Frame   *hal.Frame
	TraceID string

	// Valid is false when a stage failed; later stages are skipped and the
	// frame's results are not published.
	Valid bool

	Detections []BoundingBox
	Depth      *DepthMap
	Faces      []FaceMatch

	// Description is the reasoning layer's text rendering of the scene.
	Description string
}

// Scene is the frame-free snapshot published on the scene bus. It must never
// alias HAL buffers: everything here survives frame release.
type Scene struct {
	TraceID    string        `json:"trace_id"`
	CapturedAt time.Time     `json:"captured_at"`
	Detections []BoundingBox `json:"detections"`
	Faces      []FaceMatch   `json:"faces,omitempty"`

	// Description is optional narrative text for downstream voice output.
	Description string `json:"description,omitempty"`
}

// Snapshot copies the publishable results out of the working set, dropping
// the frame reference and suppressed boxes.
func (s *SceneData) Snapshot() *Scene {
	scene := &Scene{
		TraceID:     s.TraceID,
		Description: s.Description,
	}
	if s.Frame != nil {
		scene.CapturedAt = s.Frame.Timestamp
	}
	for _, d := range s.Detections {
		if !d.Suppressed {
			scene.Detections = append(scene.Detections, d)
		}
	}
	scene.Faces = append(scene.Faces, s.Faces...)
	return scene
}

func max32(a, b float32) float32 {
	if a > b {
		return a
	}
	return b
}

func min32(a, b float32) float32 {
	if a < b {
		return a
	}
	return b
}
