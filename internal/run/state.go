// Package run owns the process-wide run state: one pyramid upload at a time,
// its latest progress snapshot and its cancel flag.
package run

import (
	"errors"
	"fmt"
	"sync"

	"github.com/kiesman99/layouttiler/internal/pyramid"
)

const (
	StatusStarting   = "Starting..."
	StatusCancelling = "Cancelling..."
)

// ErrRunInProgress is returned when a run is started while another is active.
var ErrRunInProgress = errors.New("a run is already in progress")

// Update is the progress snapshot shared with pollers.
type Update = pyramid.Progress

// Phase is the lifecycle position of the current run.
type Phase string

const (
	Idle      Phase = "idle"
	Running   Phase = "running"
	Completed Phase = "completed"
	Cancelled Phase = "cancelled"
	Failed    Phase = "failed"
)

// Outcome is the terminal result of a run.
type Outcome struct {
	Message    string `json:"message"`
	LayoutPath string `json:"layout_path,omitempty"`
	MaxZoom    *int   `json:"max_zoom,omitempty"`
	Tiles      int    `json:"tiles,omitempty"`
	Bytes      int64  `json:"bytes,omitempty"`
}

// Status is what external readers see of the run state.
type Status struct {
	State    Phase    `json:"state"`
	Progress *Update  `json:"progress"`
	Result   *Outcome `json:"result,omitempty"`
}

// State guards progress and cancellation with one mutex. It implements
// pyramid.Reporter and pyramid.Canceller.
type State struct {
	mu        sync.Mutex
	phase     Phase
	progress  *Update
	cancelled bool
	outcome   *Outcome
}

// NewState returns an idle state with no progress.
func NewState() *State {
	return &State{phase: Idle}
}

// Report overwrites the progress snapshot.
func (s *State) Report(p Update) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.progress = &p
}

// Cancelled reports whether cancellation was requested for the current run.
func (s *State) Cancelled() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.cancelled
}

// Cancel sets the cancel flag and writes a "Cancelling..." snapshot.
func (s *State) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cancelled = true
	s.progress = &Update{Status: StatusCancelling}
}

// Progress returns the latest snapshot, or false if none was written yet.
func (s *State) Progress() (Update, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.progress == nil {
		return Update{}, false
	}
	return *s.progress, true
}

// Status returns a copy of the current state.
func (s *State) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()

	st := Status{State: s.phase}
	if s.progress != nil {
		p := *s.progress
		st.Progress = &p
	}
	if s.outcome != nil {
		o := *s.outcome
		st.Result = &o
	}
	return st
}

// Begin moves the state to Running, clearing any leftover cancel flag and
// outcome, and writes the "Starting..." snapshot.
func (s *State) Begin() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.phase == Running {
		return ErrRunInProgress
	}
	s.phase = Running
	s.cancelled = false
	s.outcome = nil
	s.progress = &Update{Status: StatusStarting}
	return nil
}

// Finish records the terminal phase for a run's result. The progress snapshot
// is left as the pipeline wrote it.
func (s *State) Finish(res *pyramid.Result, err error) Outcome {
	outcome := Outcome{}
	phase := Completed

	switch {
	case err == nil:
		maxZoom := res.MaxZoom
		outcome.Message = CompletionMessage(maxZoom)
		outcome.LayoutPath = res.LayoutPath
		outcome.MaxZoom = &maxZoom
		outcome.Tiles = res.Tiles
		outcome.Bytes = res.Bytes
	case errors.Is(err, pyramid.ErrCancelled):
		phase = Cancelled
		outcome.Message = err.Error()
	default:
		phase = Failed
		outcome.Message = err.Error()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.phase = phase
	s.outcome = &outcome
	return outcome
}

// CompletionMessage is the message of a successful run.
func CompletionMessage(maxZoom int) string {
	return fmt.Sprintf("Processing completed successfully! Max zoom level: %d", maxZoom)
}
