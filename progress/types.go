package progress

import (
	"time"
)

// Reporter is the interface for outputting aggregated progress.
//
// Report is called synchronously by the aggregator, once per consumed event
// and never concurrently for the same Progress. Implementations should return
// quickly since in-process reporters hold up the next update.
type Reporter interface {
	Report(state State)
}

// Event is a single "one unit of work completed" signal sent by a worker.
type Event struct {
	// Timestamp is when the worker reported the unit.
	Timestamp time.Time `json:"timestamp"`

	// Message is optional context from the worker (e.g., the task name).
	Message string `json:"message,omitempty"`
}

// Stage is the aggregator's position in its state machine.
//
// The only transition is StageWaiting -> StageComplete, and StageComplete is
// absorbing.
type Stage string

const (
	// StageWaiting means fewer than Total units have completed.
	StageWaiting Stage = "waiting"

	// StageComplete means every unit has completed.
	StageComplete Stage = "complete"
)

// TransportKind names the strategy that delivers events to the aggregator.
type TransportKind string

const (
	// TransportAuto selects TransportFile when a counter file was handed to
	// this process and TransportQueue otherwise.
	TransportAuto TransportKind = "auto"

	// TransportQueue delivers events over an in-process channel.
	TransportQueue TransportKind = "queue"

	// TransportFile delivers events through a durable counter file.
	TransportFile TransportKind = "file"
)

// State is a snapshot of aggregated progress.
type State struct {
	// Total is the number of units expected. It never changes.
	Total int `json:"total"`

	// Completed is the number of units accounted so far, in [0, Total].
	Completed int `json:"completed"`

	// StartTime is when the Progress was created.
	StartTime time.Time `json:"startTime"`

	// Timestamp is when this snapshot was taken.
	Timestamp time.Time `json:"timestamp"`

	// Message is the message selected for display.
	Message string `json:"message,omitempty"`

	Stage Stage `json:"stage"`
}

// Fraction returns Completed/Total.
func (s State) Fraction() float64 {
	if s.Total <= 0 {
		return 0
	}
	return float64(s.Completed) / float64(s.Total)
}

// Percent returns floor(100 * Completed / Total).
func (s State) Percent() int {
	if s.Total <= 0 {
		return 0
	}
	return 100 * s.Completed / s.Total
}

// Filled returns the number of filled cells of a bar barLength cells wide,
// floor(barLength * Completed / Total).
func (s State) Filled(barLength int) int {
	if s.Total <= 0 || barLength <= 0 {
		return 0
	}
	filled := barLength * s.Completed / s.Total
	if filled > barLength {
		filled = barLength
	}
	return filled
}

// Elapsed returns the time between StartTime and Timestamp.
func (s State) Elapsed() time.Duration {
	return s.Timestamp.Sub(s.StartTime)
}

// Remaining estimates the time left as elapsed * (1/fraction - 1).
//
// The estimate is undefined before the first unit completes; ok is false in
// that case.
func (s State) Remaining() (remaining time.Duration, ok bool) {
	fraction := s.Fraction()
	if fraction <= 0 {
		return 0, false
	}
	est := float64(s.Elapsed()) * (1/fraction - 1)
	if est < 0 {
		est = 0
	}
	return time.Duration(est), true
}

// IsComplete reports whether the state is terminal.
func (s State) IsComplete() bool {
	return s.Stage == StageComplete
}
