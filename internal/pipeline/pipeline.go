// Package pipeline runs build steps in order. Each step reports whether the
// pipeline should continue (Proceed), continue because the step's work was
// already done (Skip), or stop (Fail).
package pipeline

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Outcome is the verdict of one step.
type Outcome int

const (
	OutcomeProceed Outcome = iota
	OutcomeSkip
	OutcomeFail
)

func (o Outcome) String() string {
	switch o {
	case OutcomeProceed:
		return "proceed"
	case OutcomeSkip:
		return "skip"
	case OutcomeFail:
		return "fail"
	default:
		return fmt.Sprintf("outcome(%d)", int(o))
	}
}

// Result is returned by Step.Run. Err is set only for OutcomeFail.
type Result struct {
	Outcome Outcome
	Err     error
}

// Proceed reports that the step did its work.
func Proceed() Result { return Result{Outcome: OutcomeProceed} }

// Skip reports that the step had nothing to do.
func Skip() Result { return Result{Outcome: OutcomeSkip} }

// Fail stops the pipeline with err. A nil err is replaced with a generic one.
func Fail(err error) Result {
	if err == nil {
		err = errors.New("step failed")
	}
	return Result{Outcome: OutcomeFail, Err: err}
}

// Sink receives human-readable status from a step. Log lines are durable;
// Modify replaces the current progress line.
type Sink interface {
	Log(msg string)
	Modify(msg string)
}

// Step is one stage of a build.
type Step interface {
	Name() string
	Run(ctx context.Context, run *Run) Result
}

// State tracks a run.
type State string

const (
	StatePending    State = "pending"
	StateInProgress State = "in_progress"
	StateCompleted  State = "completed"
	StateFailed     State = "failed"
)

// StepRecord is what happened to one step of a run.
type StepRecord struct {
	Name     string
	Outcome  Outcome
	Duration time.Duration
}

// Run is a single execution of the pipeline.
type Run struct {
	ID      string
	Started time.Time
	State   State
	Steps   []StepRecord

	sink Sink
}

// NewRun creates a pending run with a fresh id.
func NewRun() *Run {
	return &Run{
		ID:    uuid.New().String(),
		State: StatePending,
		sink:  discardSink{},
	}
}

// Sink returns the status sink of the step currently executing.
func (r *Run) Sink() Sink {
	if r.sink == nil {
		return discardSink{}
	}
	return r.sink
}

type discardSink struct{}

func (discardSink) Log(string)    {}
func (discardSink) Modify(string) {}

// StepError reports the step that stopped a run.
type StepError struct {
	Step string
	Err  error
}

func (e *StepError) Error() string {
	return fmt.Sprintf("step %s: %v", e.Step, e.Err)
}

func (e *StepError) Unwrap() error {
	return e.Err
}
