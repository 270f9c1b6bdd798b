package reporter

import (
	"fmt"
	"io"
	"sync"

	"github.com/konveyor/progress-aggregator/progress"
)

// TextReporter writes every state as a timestamped line of text.
//
// It suits log files and CI output where in-place redraws are unreadable.
//
// Example output:
//
//	[17:06:14] Progress: 1/4 (25%) - resize-0001.png
//	[17:06:15] Progress: 2/4 (50%) - resize-0002.png
//	[17:06:15] Progress: 3/4 (75%)
//	[17:06:16] Complete: 4/4 (100%) - all images resized
type TextReporter struct {
	writer io.Writer
	mu     sync.Mutex
}

// NewTextReporter creates a new text reporter that writes to w.
//
// The writer can be os.Stdout, os.Stderr, a file, or any io.Writer. Each
// state is written as one line, so the output can be tailed or grepped.
//
// Example:
//
//	// Log file next to the run summary
//	f, _ := os.Create("progress.log")
//	defer f.Close()
//	prog, _ := progress.New(cfg,
//	    progress.WithReporters(reporter.NewTextReporter(f)),
//	)
func NewTextReporter(w io.Writer) *TextReporter {
	return &TextReporter{
		writer: w,
	}
}

// Report writes state as one line. It is safe for concurrent use.
func (t *TextReporter) Report(state progress.State) {
	t.mu.Lock()
	defer t.mu.Unlock()

	label := "Progress"
	if state.IsComplete() {
		label = "Complete"
	}
	output := fmt.Sprintf("[%s] %s: %d/%d (%d%%)",
		state.Timestamp.Format(timeLayout),
		label,
		state.Completed,
		state.Total,
		state.Percent())
	if state.Message != "" {
		output += " - " + state.Message
	}
	fmt.Fprintln(t.writer, output)
}
