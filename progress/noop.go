package progress

// NoopReporter discards every state.
//
// It is the default reporter when New is called without WithReporters, so a
// Progress can be used purely as an accounting primitive.
type NoopReporter struct{}

// NewNoopReporter creates a new no-op reporter.
func NewNoopReporter() *NoopReporter {
	return &NoopReporter{}
}

// Report discards the state.
func (n *NoopReporter) Report(state State) {
	// Intentionally empty - no-op implementation
}
