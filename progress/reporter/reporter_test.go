package reporter

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/go-logr/logr/testr"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/konveyor/progress-aggregator/progress"
)

var testStart = time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)

func makeState(completed, total int, elapsed time.Duration, message string) progress.State {
	stage := progress.StageWaiting
	if completed == total {
		stage = progress.StageComplete
	}
	return progress.State{
		Total:     total,
		Completed: completed,
		StartTime: testStart,
		Timestamp: testStart.Add(elapsed),
		Message:   message,
		Stage:     stage,
	}
}

func plainConfig(total int) progress.Config {
	cfg := progress.DefaultConfig(total)
	cfg.DisplayDate = false
	cfg.DisplayRemainingTime = false
	cfg.Overwrite = false
	return cfg
}

// visibleLines interprets the control output the bar emits (\r, \b, \n and
// ESC[K) and returns the non-blank lines a terminal would show.
func visibleLines(out string) []string {
	lines := [][]rune{{}}
	col := 0
	rs := []rune(out)
	for i := 0; i < len(rs); i++ {
		cur := &lines[len(lines)-1]
		switch r := rs[i]; {
		case r == '\n':
			lines = append(lines, []rune{})
			col = 0
		case r == '\r':
			col = 0
		case r == '\b':
			if col > 0 {
				col--
			}
		case r == '\x1b' && i+2 < len(rs) && rs[i+1] == '[' && rs[i+2] == 'K':
			if col < len(*cur) {
				*cur = (*cur)[:col]
			}
			i += 2
		default:
			for len(*cur) < col {
				*cur = append(*cur, ' ')
			}
			if col < len(*cur) {
				(*cur)[col] = r
			} else {
				*cur = append(*cur, r)
			}
			col++
		}
	}
	visible := []string{}
	for _, l := range lines {
		if s := strings.TrimRight(string(l), " "); s != "" {
			visible = append(visible, s)
		}
	}
	return visible
}

func TestProgressBarReporterBarFill(t *testing.T) {
	var buf bytes.Buffer
	cfg := plainConfig(100)
	cfg.BarLength = 10
	reporter := NewProgressBarReporter(&buf, cfg)

	reporter.Report(makeState(30, 100, time.Second, ""))

	assert.Equal(t, " 30% [***       ]\n", buf.String())
}

func TestProgressBarReporterPercentages(t *testing.T) {
	tests := []struct {
		completed int
		total     int
		expected  string
	}{
		{1, 3, " 33% [******              ]"},
		{2, 3, " 66% [*************       ]"},
		{3, 3, "100% [********************]"},
		{1, 200, "  0% [                    ]"},
	}
	for _, tt := range tests {
		var buf bytes.Buffer
		reporter := NewProgressBarReporter(&buf, plainConfig(tt.total))
		reporter.Report(makeState(tt.completed, tt.total, time.Second, ""))
		assert.Equal(t, tt.expected+"\n", buf.String())
	}
}

func TestProgressBarReporterZeroBarLength(t *testing.T) {
	var buf bytes.Buffer
	cfg := plainConfig(4)
	cfg.BarLength = 0
	NewProgressBarReporter(&buf, cfg).Report(makeState(2, 4, time.Second, ""))
	assert.Equal(t, " 50% []\n", buf.String())
}

func TestProgressBarReporterCustomMarker(t *testing.T) {
	var buf bytes.Buffer
	cfg := plainConfig(2)
	cfg.Marker = "#"
	cfg.BarLength = 4
	NewProgressBarReporter(&buf, cfg).Report(makeState(1, 2, time.Second, ""))
	assert.Equal(t, " 50% [##  ]\n", buf.String())
}

func TestProgressBarReporterMessagePadding(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressBarReporter(&buf, plainConfig(10))

	long := "a-considerably-long-message"
	reporter.Report(makeState(1, 10, time.Second, long))
	reporter.Report(makeState(2, 10, time.Second, "short"))
	reporter.Report(makeState(3, 10, time.Second, ""))

	lines := strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n")
	require.Len(t, lines, 3)

	barStart := strings.Index(lines[0], "%") - 3
	for i, line := range lines {
		assert.Equal(t, barStart, strings.Index(line, "%")-3, "line %d: bar moved: %q", i, line)
	}
	assert.True(t, strings.HasPrefix(lines[1], "short"+strings.Repeat(" ", len(long)-len("short"))))
	assert.Equal(t, len(long), reporter.MaxMessageWidth())
}

func TestProgressBarReporterTimeFields(t *testing.T) {
	cfg := plainConfig(4)
	cfg.DisplayRemainingTime = true

	tests := []struct {
		name     string
		state    progress.State
		contains []string
		excludes []string
	}{
		{
			name:     "no progress yet",
			state:    makeState(0, 4, 5*time.Second, ""),
			excludes: []string{"Remaining", "Elapsed"},
		},
		{
			name:     "waiting",
			state:    makeState(1, 4, 10*time.Second, ""),
			contains: []string{"Remaining 00:00:30"},
			excludes: []string{"Elapsed"},
		},
		{
			name:     "complete",
			state:    makeState(4, 4, 10*time.Second, "done"),
			contains: []string{"Elapsed   00:00:10", "100%"},
			excludes: []string{"Remaining"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var buf bytes.Buffer
			NewProgressBarReporter(&buf, cfg).Report(tt.state)
			for _, s := range tt.contains {
				assert.Contains(t, buf.String(), s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, buf.String(), s)
			}
		})
	}
}

func TestProgressBarReporterDisplayDate(t *testing.T) {
	var buf bytes.Buffer
	cfg := plainConfig(2)
	cfg.DisplayDate = true
	NewProgressBarReporter(&buf, cfg).Report(makeState(1, 2, 3*time.Second, "x"))
	assert.True(t, strings.HasPrefix(buf.String(), "2024-01-01 12:00:03  x  "), buf.String())
}

func TestProgressBarReporterOverwriteKeepsOneLine(t *testing.T) {
	erasers := map[string]Eraser{
		"ansi":      ANSIEraser{},
		"backspace": BackspaceEraser{},
	}
	for name, eraser := range erasers {
		t.Run(name, func(t *testing.T) {
			var buf bytes.Buffer
			cfg := progress.DefaultConfig(5)
			cfg.DisplayDate = false
			reporter := NewProgressBarReporter(&buf, cfg, WithEraser(eraser))

			messages := []string{"first", "a much longer second message", "3", "fourth", "final"}
			for i, msg := range messages {
				reporter.Report(makeState(i+1, 5, time.Duration(i+1)*time.Second, msg))
				lines := visibleLines(buf.String())
				require.Len(t, lines, 1, "after update %d: %q", i+1, lines)
				assert.Contains(t, lines[0], msg)
			}
			assert.True(t, strings.HasSuffix(buf.String(), "\n"), "final line must be terminated")
			assert.Contains(t, visibleLines(buf.String())[0], "100%")
		})
	}
}

func TestProgressBarReporterAppendModeLinePerEvent(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressBarReporter(&buf, plainConfig(4), WithEraser(ANSIEraser{}))
	for i := 1; i <= 4; i++ {
		reporter.Report(makeState(i, 4, time.Second, ""))
	}
	assert.Len(t, visibleLines(buf.String()), 4)
	assert.NotContains(t, buf.String(), "\x1b", "append mode must never erase")
}

func TestProgressBarReporterConcurrency(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewProgressBarReporter(&buf, plainConfig(100))

	wg := sync.WaitGroup{}
	for i := 1; i <= 100; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			reporter.Report(makeState(n, 100, time.Second, "rule"))
		}(i)
	}
	wg.Wait()

	assert.Len(t, strings.Split(strings.TrimSuffix(buf.String(), "\n"), "\n"), 100)
}

func TestBackspaceEraser(t *testing.T) {
	var buf bytes.Buffer
	BackspaceEraser{}.Erase(&buf, 0)
	assert.Equal(t, "\r", buf.String())

	buf.Reset()
	BackspaceEraser{}.Erase(&buf, 3)
	assert.Equal(t, "\b\b\b   \b\b\b", buf.String())
}

func TestProgressBarReporterFirstLineReplacesForeignLine(t *testing.T) {
	erasers := map[string]Eraser{
		"ansi":      ANSIEraser{},
		"backspace": BackspaceEraser{},
	}
	for name, eraser := range erasers {
		t.Run(name, func(t *testing.T) {
			cfg := progress.DefaultConfig(10)
			cfg.DisplayDate = false
			cfg.DisplayRemainingTime = false

			// Another process left its line on the shared output.
			buf := bytes.NewBufferString("other-worker   30% [******              ]")
			NewProgressBarReporter(buf, cfg, WithEraser(eraser)).
				Report(makeState(4, 10, time.Second, "this-worker-process"))

			lines := visibleLines(buf.String())
			require.Len(t, lines, 1, "%q", lines)
			assert.True(t, strings.HasPrefix(lines[0], "this-worker-process"), lines[0])
			assert.NotContains(t, lines[0], "other-worker")
		})
	}
}

func TestDetectEraserNonTerminal(t *testing.T) {
	var buf bytes.Buffer
	assert.IsType(t, BackspaceEraser{}, DetectEraser(&buf))
}

func TestDisplayWidth(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{"", 0},
		{"abc", 3},
		{"日本", 4},
		{"ｈｉ", 4},
		{"é", 1},
		{"█", 1},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, displayWidth(tt.in), "displayWidth(%q)", tt.in)
	}
	assert.Equal(t, "日本  ", padRight("日本", 6))
}

func TestFormatDuration(t *testing.T) {
	tests := []struct {
		in   time.Duration
		want string
	}{
		{0, "00:00:00"},
		{1500 * time.Millisecond, "00:00:02"},
		{61 * time.Second, "00:01:01"},
		{3*time.Hour + 4*time.Minute + 5*time.Second, "03:04:05"},
		{-time.Second, "00:00:00"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, formatDuration(tt.in))
	}
}

func TestTextReporter(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewTextReporter(&buf)

	reporter.Report(makeState(3, 10, 3*time.Second, "rule-003"))
	reporter.Report(makeState(10, 10, 9*time.Second, "all done"))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Equal(t, "[12:00:03] Progress: 3/10 (30%) - rule-003", lines[0])
	assert.Equal(t, "[12:00:09] Complete: 10/10 (100%) - all done", lines[1])
}

func TestJSONReporter(t *testing.T) {
	var buf bytes.Buffer
	reporter := NewJSONReporter(&buf)

	reporter.Report(makeState(1, 4, 10*time.Second, "rule-001"))
	reporter.Report(makeState(4, 4, 20*time.Second, ""))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)

	var waiting map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &waiting))
	assert.Equal(t, "waiting", waiting["stage"])
	assert.Equal(t, float64(25), waiting["percent"])
	assert.Equal(t, "rule-001", waiting["message"])
	assert.Equal(t, float64(30), waiting["remainingSeconds"])

	var complete map[string]interface{}
	require.NoError(t, json.Unmarshal([]byte(lines[1]), &complete))
	assert.Equal(t, "complete", complete["stage"])
	_, hasRemaining := complete["remainingSeconds"]
	assert.False(t, hasRemaining, "remaining time is omitted on completion")
}

func TestChannelReporter(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reporter := NewChannelReporter(ctx)

	go reporter.Report(makeState(2, 5, time.Second, "rule"))

	select {
	case received := <-reporter.States():
		assert.Equal(t, 2, received.Completed)
		assert.Equal(t, "rule", received.Message)
	case <-time.After(time.Second):
		t.Fatal("Timeout waiting for state")
	}
}

func TestChannelReporterContextCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	reporter := NewChannelReporter(ctx)
	cancel()

	select {
	case _, ok := <-reporter.States():
		assert.False(t, ok, "expected channel to be closed")
	case <-time.After(time.Second):
		t.Fatal("channel was not closed after cancellation")
	}

	// Reporting after close must not panic.
	reporter.Report(makeState(1, 2, time.Second, ""))
}

func TestChannelReporterDroppedStates(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	reporter := NewChannelReporter(ctx, WithBufferSize(1), WithLogger(testr.New(t)))

	for i := 1; i <= 3; i++ {
		reporter.Report(makeState(i, 3, time.Second, ""))
	}
	assert.Equal(t, uint64(2), reporter.DroppedStates())
}

func TestThrottledReporter(t *testing.T) {
	var buf bytes.Buffer
	inner := NewTextReporter(&buf)
	throttled := NewThrottledReporter(inner, time.Hour)

	for i := 1; i <= 10; i++ {
		throttled.Report(makeState(i, 10, time.Second, ""))
	}

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2, "only first and complete states pass")
	assert.Contains(t, lines[0], "1/10")
	assert.Contains(t, lines[1], "Complete: 10/10")
}

func TestThrottledReporterIntervalElapsed(t *testing.T) {
	var buf bytes.Buffer
	throttled := NewThrottledReporter(NewTextReporter(&buf), time.Second)
	now := testStart
	throttled.now = func() time.Time { return now }

	throttled.Report(makeState(1, 10, 0, ""))
	now = now.Add(500 * time.Millisecond)
	throttled.Report(makeState(2, 10, 0, ""))
	now = now.Add(600 * time.Millisecond)
	throttled.Report(makeState(3, 10, 0, ""))

	lines := strings.Split(strings.TrimSpace(buf.String()), "\n")
	require.Len(t, lines, 2)
	assert.Contains(t, lines[1], "3/10")
}

func TestPrometheusReporter(t *testing.T) {
	reg := prometheus.NewRegistry()
	reporter, err := NewPrometheusReporter(reg)
	require.NoError(t, err)

	reporter.Report(makeState(1, 4, 10*time.Second, ""))
	assert.Equal(t, float64(4), testutil.ToFloat64(reporter.total))
	assert.Equal(t, float64(1), testutil.ToFloat64(reporter.completed))
	assert.Equal(t, float64(25), testutil.ToFloat64(reporter.percent))
	assert.Equal(t, float64(30), testutil.ToFloat64(reporter.remaining))
	assert.Equal(t, float64(0), testutil.ToFloat64(reporter.complete))

	reporter.Report(makeState(4, 4, 20*time.Second, ""))
	assert.Equal(t, float64(1), testutil.ToFloat64(reporter.complete))
	assert.Equal(t, float64(2), testutil.ToFloat64(reporter.updates))

	_, err = NewPrometheusReporter(reg)
	assert.Error(t, err, "registering twice against one registry must fail")
}

func TestProgressWithBarEndToEnd(t *testing.T) {
	var buf bytes.Buffer
	cfg := progress.DefaultConfig(5)
	cfg.Transport = progress.TransportQueue
	cfg.DisplayDate = false
	cfg.WaitMessage = "working"
	cfg.FinalMessage = "finished {{total}} tasks"
	bar := NewProgressBarReporter(&buf, cfg, WithEraser(BackspaceEraser{}))

	prog, err := progress.New(cfg, progress.WithReporters(bar))
	require.NoError(t, err)

	wg := sync.WaitGroup{}
	for i := 0; i < 5; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, prog.ReportProgress(""))
		}()
	}
	wg.Wait()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, prog.Wait(ctx))

	lines := visibleLines(buf.String())
	require.Len(t, lines, 1)
	assert.Contains(t, lines[0], "finished 5 tasks")
	assert.Contains(t, lines[0], "100% [********************]")
	assert.NotContains(t, lines[0], "Remaining")
}
