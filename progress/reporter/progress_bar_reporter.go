package reporter

import (
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/konveyor/progress-aggregator/progress"
)

// ProgressBarReporter renders aggregated progress as a single bar line.
//
// Each state is formatted as
//
//	[date  ][message  ][Remaining hh:mm:ss  | Elapsed   hh:mm:ss  ]pct% [bar]
//
// where every bracketed field is optional:
//   - the date prefix is shown when Config.DisplayDate is set
//   - the message is padded to the widest message seen so far, so the bar
//     never moves left when a shorter message follows a longer one
//   - the remaining time is shown while waiting and the total elapsed time on
//     completion, when Config.DisplayRemainingTime is set
//
// The bar holds floor(BarLength * completed / total) markers followed by
// blanks.
//
// In overwrite mode the previous line is erased through an Eraser before the
// next one is written, and the final line is terminated with a newline. In
// append mode every state is written as its own line.
//
// Example output:
//
//	2024-01-01 12:00:03  rule-042   Remaining 00:00:07   30% [******              ]
type ProgressBarReporter struct {
	writer io.Writer
	mu     sync.Mutex

	marker      string
	barLength   int
	showTime    bool
	showDate    bool
	overwrite   bool
	eraser      Eraser
	lastLineLen int
	maxMsgWidth int
}

// ProgressBarOption configures a ProgressBarReporter.
type ProgressBarOption func(*ProgressBarReporter)

// WithEraser overrides the erase strategy detected from the writer.
func WithEraser(e Eraser) ProgressBarOption {
	return func(p *ProgressBarReporter) {
		p.eraser = e
	}
}

// NewProgressBarReporter creates a bar reporter writing to w with the display
// settings of cfg. The erase strategy is detected once from w.
//
// Example:
//
//	cfg := progress.DefaultConfig(100)
//	bar := reporter.NewProgressBarReporter(os.Stdout, cfg)
//	prog, _ := progress.New(cfg, progress.WithReporters(bar))
func NewProgressBarReporter(w io.Writer, cfg progress.Config, opts ...ProgressBarOption) *ProgressBarReporter {
	marker := cfg.Marker
	if marker == "" {
		marker = progress.DefaultMarker
	}
	p := &ProgressBarReporter{
		writer:    w,
		marker:    marker,
		barLength: cfg.BarLength,
		showTime:  cfg.DisplayRemainingTime,
		showDate:  cfg.DisplayDate,
		overwrite: cfg.Overwrite,
	}
	for _, opt := range opts {
		opt(p)
	}
	if p.eraser == nil {
		p.eraser = DetectEraser(w)
	}
	return p
}

// Report renders state. It is safe for concurrent use.
func (p *ProgressBarReporter) Report(state progress.State) {
	p.mu.Lock()
	defer p.mu.Unlock()

	line := p.buildLine(state)

	if !p.overwrite {
		fmt.Fprintln(p.writer, line)
		return
	}

	p.eraser.Erase(p.writer, p.lastLineLen)
	fmt.Fprint(p.writer, line)
	p.lastLineLen = displayWidth(line)

	// Keep the final line and leave the cursor on a fresh one.
	if state.IsComplete() {
		fmt.Fprint(p.writer, "\n")
		p.lastLineLen = 0
	}
}

func (p *ProgressBarReporter) buildLine(state progress.State) string {
	var b strings.Builder

	if p.showDate {
		b.WriteString(state.Timestamp.Format(dateLayout))
		b.WriteString("  ")
	}

	if w := displayWidth(state.Message); w > p.maxMsgWidth {
		p.maxMsgWidth = w
	}
	if p.maxMsgWidth > 0 {
		b.WriteString(padRight(state.Message, p.maxMsgWidth))
		b.WriteString("  ")
	}

	if p.showTime {
		if state.IsComplete() {
			fmt.Fprintf(&b, "%-9s %s  ", "Elapsed", formatDuration(state.Elapsed()))
		} else if remaining, ok := state.Remaining(); ok {
			fmt.Fprintf(&b, "%-9s %s  ", "Remaining", formatDuration(remaining))
		}
	}

	fmt.Fprintf(&b, "%3d%% ", state.Percent())

	filled := state.Filled(p.barLength)
	b.WriteString("[")
	b.WriteString(strings.Repeat(p.marker, filled))
	b.WriteString(strings.Repeat(" ", p.barLength-filled))
	b.WriteString("]")

	return b.String()
}

// MaxMessageWidth returns the widest message rendered so far.
func (p *ProgressBarReporter) MaxMessageWidth() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.maxMsgWidth
}
