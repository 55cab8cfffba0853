package perception

import (
	"log/slog"

	"github.com/wayline-dev/wayline-wearable/internal/types"
)

// Pipeline is the ordered stage chain applied to every frame.
//
// Failure policy is fail-fast per frame: the first stage error marks the
// scene invalid and skips the remaining stages, but never stops the
// pipeline — the next frame starts clean.
type Pipeline struct {
	stages []Processor
}

// NewPipeline builds a pipeline over the given stages, run in order.
func NewPipeline(stages ...Processor) *Pipeline {
	return &Pipeline{stages: stages}
}

// Stages returns the registered stage names in execution order.
func (p *Pipeline) Stages() []string {
	names := make([]string, len(p.stages))
	for i, s := range p.stages {
		names[i] = s.Name()
	}
	return names
}

// Run executes every stage on the scene. On a stage error the scene is
// marked invalid and the error is returned after logging; callers release
// the frame and move on.
func (p *Pipeline) Run(scene *types.SceneData) error {
	scene.Valid = true
	for _, stage := range p.stages {
		if err := stage.Process(scene); err != nil {
			scene.Valid = false
			slog.Warn("perception: stage failed, dropping frame",
				"stage", stage.Name(),
				"trace_id", scene.TraceID,
				"error", err,
			)
			return err
		}
	}
	return nil
}
