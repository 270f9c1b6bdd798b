package progress

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/cbroglie/mustache"
)

// EnvCounterFile names the environment variable through which a coordinator
// hands its durable counter file to worker processes.
const EnvCounterFile = "PROGRESS_COUNTER_FILE"

const (
	DefaultMarker    = "*"
	DefaultBarLength = 20
)

// Config holds the construction parameters of a Progress and of the reporters
// that render it.
//
// Use DefaultConfig to get the documented defaults; the zero value disables
// every boolean display option.
type Config struct {
	// Total is the number of units of work. Required, at least 1.
	Total int `yaml:"total" mapstructure:"total"`

	// WaitMessage is displayed while waiting when a worker reports no message.
	// It may use the {{completed}}, {{total}} and {{percent}} placeholders.
	WaitMessage string `yaml:"waitMessage,omitempty" mapstructure:"wait-message"`

	// FinalMessage is displayed once every unit has completed. It accepts the
	// same placeholders as WaitMessage.
	FinalMessage string `yaml:"finalMessage,omitempty" mapstructure:"final-message"`

	// Marker is the single character used for the filled part of the bar.
	Marker string `yaml:"marker,omitempty" mapstructure:"marker"`

	// BarLength is the number of cells between the bar brackets.
	BarLength int `yaml:"barLength" mapstructure:"bar-length"`

	// DisplayRemainingTime shows the estimated time left while waiting and the
	// total elapsed time on completion.
	DisplayRemainingTime bool `yaml:"displayRemainingTime" mapstructure:"display-remaining-time"`

	// DisplayDate prefixes each line with the current date and time.
	DisplayDate bool `yaml:"displayDate" mapstructure:"display-date"`

	// Overwrite redraws the previous line instead of appending a new one.
	Overwrite bool `yaml:"overwrite" mapstructure:"overwrite"`

	// Transport selects how events reach the aggregator. Empty means auto.
	Transport TransportKind `yaml:"transport,omitempty" mapstructure:"transport"`

	// CounterDir is where a new durable counter file is created. Empty means
	// os.TempDir().
	CounterDir string `yaml:"counterDir,omitempty" mapstructure:"counter-dir"`

	// CounterPath attaches to an existing durable counter file instead of
	// creating one.
	CounterPath string `yaml:"counterPath,omitempty" mapstructure:"counter-path"`
}

// DefaultConfig returns a Config for total units with every default applied.
func DefaultConfig(total int) Config {
	return Config{
		Total:                total,
		Marker:               DefaultMarker,
		BarLength:            DefaultBarLength,
		DisplayRemainingTime: true,
		DisplayDate:          true,
		Overwrite:            true,
		Transport:            TransportAuto,
	}
}

// Validate checks every construction parameter and returns an error wrapping
// ErrInvalidConfig describing the first problem found.
func (c Config) Validate() error {
	if c.Total < 1 {
		return fmt.Errorf("%w: total must be a positive integer, got %d", ErrInvalidConfig, c.Total)
	}
	if err := validateMarker(c.Marker); err != nil {
		return err
	}
	if c.BarLength < 0 {
		return fmt.Errorf("%w: bar length must not be negative, got %d", ErrInvalidConfig, c.BarLength)
	}
	switch c.Transport {
	case "", TransportAuto, TransportFile:
	case TransportQueue:
		if c.CounterPath != "" {
			return fmt.Errorf("%w: counter path %q requires the file transport", ErrInvalidConfig, c.CounterPath)
		}
	default:
		return fmt.Errorf("%w: unknown transport %q", ErrInvalidConfig, c.Transport)
	}
	if err := validateTemplate("wait message", c.WaitMessage); err != nil {
		return err
	}
	if err := validateTemplate("final message", c.FinalMessage); err != nil {
		return err
	}
	return nil
}

func validateTemplate(name, tmpl string) error {
	if !strings.Contains(tmpl, "{{") {
		return nil
	}
	if _, err := mustache.ParseString(tmpl); err != nil {
		return fmt.Errorf("%w: %s template: %v", ErrInvalidConfig, name, err)
	}
	return nil
}

func validateMarker(marker string) error {
	if utf8.RuneCountInString(marker) != 1 {
		return fmt.Errorf("%w: marker must be exactly one character, got %q", ErrInvalidConfig, marker)
	}
	r, _ := utf8.DecodeRuneInString(marker)
	if r == utf8.RuneError || !unicode.IsGraphic(r) || unicode.IsSpace(r) {
		return fmt.Errorf("%w: marker %q is not a printable character", ErrInvalidConfig, marker)
	}
	return nil
}

// ParseTotal parses a task count from text, rejecting non-integer and
// non-positive values.
func ParseTotal(s string) (int, error) {
	total, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0, fmt.Errorf("%w: total must be an integer, got %q", ErrInvalidConfig, s)
	}
	if total < 1 {
		return 0, fmt.Errorf("%w: total must be a positive integer, got %d", ErrInvalidConfig, total)
	}
	return total, nil
}
