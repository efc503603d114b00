package services

import (
	"context"
	"fmt"

	"github.com/appdock/apphub-backend/internal/platform/logger"
)

// Step is one named stage of an orchestrated run. Steps execute
// strictly in order; a BestEffort step that fails is logged and
// skipped over, any other failure aborts the run.
type Step struct {
	Name       string
	BestEffort bool
	Run        func(ctx context.Context) error
}

// StepError carries the name of the step that aborted a run so
// callers can react to specific stages without string matching.
type StepError struct {
	Op   string
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("%s: step %q: %v", e.Op, e.Step, e.Err)
}

func (e *StepError) Unwrap() error { return e.Err }

type stepRunner struct {
	log *logger.Logger
}

func newStepRunner(log *logger.Logger) *stepRunner {
	return &stepRunner{log: log}
}

func (r *stepRunner) run(ctx context.Context, op string, steps []Step) error {
	for _, step := range steps {
		if err := ctx.Err(); err != nil {
			return &StepError{Op: op, Step: step.Name, Err: err}
		}
		err := step.Run(ctx)
		if err == nil {
			continue
		}
		if step.BestEffort {
			r.log.Warn("Best-effort step failed, continuing",
				"op", op,
				"step", step.Name,
				"error", err.Error(),
			)
			continue
		}
		return &StepError{Op: op, Step: step.Name, Err: err}
	}
	return nil
}
