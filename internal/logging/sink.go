package logging

import (
	"fmt"
	"io"
	"sync"

	"github.com/rs/zerolog"
)

// StepSink receives status lines from one pipeline step. Log lines are
// recorded at info, Modify lines at debug. When a terminal is attached,
// Modify lines also overwrite the current terminal line in place.
type StepSink struct {
	log  zerolog.Logger
	term io.Writer

	mu    sync.Mutex
	dirty bool // a Modify line is on screen without a newline
}

// NewStepSink creates a sink tagging each entry with step. term may be nil.
func NewStepSink(l zerolog.Logger, step string, term io.Writer) *StepSink {
	return &StepSink{
		log:  l.With().Str("step", step).Logger(),
		term: term,
	}
}

// Log records a durable status line.
func (s *StepSink) Log(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.term != nil && s.dirty {
		fmt.Fprint(s.term, "\n")
		s.dirty = false
	}
	s.log.Info().Msg(msg)
}

// Modify replaces the current progress line.
func (s *StepSink) Modify(msg string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.term != nil {
		fmt.Fprintf(s.term, "\r\x1b[K%s", msg)
		s.dirty = true
	}
	s.log.Debug().Msg(msg)
}

// Done ends any in-place progress line.
func (s *StepSink) Done() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.term != nil && s.dirty {
		fmt.Fprint(s.term, "\n")
		s.dirty = false
	}
}
