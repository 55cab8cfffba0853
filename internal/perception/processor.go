// Package perception turns raw camera frames into structured scene
// understanding: object detections, depth estimates, and face matches,
// produced by an ordered chain of processing stages.
package perception

import "github.com/wayline-dev/wayline-wearable/internal/types"

// Processor is one stage of the per-frame pipeline. Stages run in
// registration order on a single worker; each reads what earlier stages
// wrote on the scene and appends its own results.
type Processor interface {
	// Process mutates the scene in place. An error aborts the remaining
	// stages for this frame only; the pipeline continues with the next one.
	Process(scene *types.SceneData) error

	// Name identifies the stage in logs.
	Name() string
}
