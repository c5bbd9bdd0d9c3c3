package pipeline

import (
	"context"
	"fmt"
	"time"
)

// Logger provides structured logging for the executor.
type Logger interface {
	Debug(msg string, keysAndValues ...interface{})
	Info(msg string, keysAndValues ...interface{})
	Warn(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...interface{}) {}
func (noopLogger) Info(string, ...interface{})  {}
func (noopLogger) Warn(string, ...interface{})  {}
func (noopLogger) Error(string, ...interface{}) {}

// SinkFactory returns the status sink for a step of a run.
type SinkFactory func(runID, step string) Sink

// Executor runs steps strictly in order.
type Executor struct {
	steps  []Step
	logger Logger
	sinks  SinkFactory
	now    func() time.Time
}

// NewExecutor creates an executor for steps.
func NewExecutor(steps ...Step) *Executor {
	return &Executor{
		steps:  steps,
		logger: noopLogger{},
		now:    time.Now,
	}
}

// WithLogger sets the executor's logger.
func (e *Executor) WithLogger(logger Logger) *Executor {
	if logger != nil {
		e.logger = logger
	}
	return e
}

// WithSinks sets how each step's status sink is created.
func (e *Executor) WithSinks(f SinkFactory) *Executor {
	e.sinks = f
	return e
}

// Execute runs every step once, in order. A Skip or Proceed result moves on
// to the next step; a Fail result stops the run and is returned as a
// *StepError. Cancelling ctx stops the run before the next step starts.
func (e *Executor) Execute(ctx context.Context, run *Run) error {
	if run == nil {
		return fmt.Errorf("run is required")
	}
	run.Started = e.now()
	run.State = StateInProgress
	e.logger.Info("pipeline started", "run_id", run.ID, "steps", len(e.steps))

	for _, step := range e.steps {
		if err := ctx.Err(); err != nil {
			run.State = StateFailed
			e.logger.Warn("pipeline cancelled", "run_id", run.ID, "before", step.Name())
			return fmt.Errorf("pipeline cancelled before %s: %w", step.Name(), err)
		}

		run.sink = discardSink{}
		if e.sinks != nil {
			if s := e.sinks(run.ID, step.Name()); s != nil {
				run.sink = s
			}
		}

		start := e.now()
		res := step.Run(ctx, run)
		run.Steps = append(run.Steps, StepRecord{
			Name:     step.Name(),
			Outcome:  res.Outcome,
			Duration: e.now().Sub(start),
		})
		e.logger.Debug("step finished", "run_id", run.ID, "step", step.Name(), "outcome", res.Outcome.String())

		if res.Outcome == OutcomeFail {
			run.State = StateFailed
			e.logger.Error("pipeline failed", "run_id", run.ID, "step", step.Name(), "error", res.Err)
			return &StepError{Step: step.Name(), Err: res.Err}
		}
	}

	run.State = StateCompleted
	e.logger.Info("pipeline completed", "run_id", run.ID)
	return nil
}
