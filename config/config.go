// Package config loads progress settings from defaults, an optional YAML
// file, PROGRESS_* environment variables and command line flags.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/konveyor/progress-aggregator/progress"
)

const (
	EnvPrefix = "PROGRESS"

	DefaultWorkers        = 4
	DefaultFormat         = "bar"
	DefaultTaskDuration   = 100 * time.Millisecond
	DefaultJaegerEndpoint = "http://localhost:14268/api/traces"
)

// Settings is the progress configuration plus the knobs of the command that
// drives it.
type Settings struct {
	Progress progress.Config `mapstructure:",squash"`

	// Tasks is the number of units this process runs. The coordinator runs
	// all of them; a worker process runs its share of Progress.Total.
	Tasks int `mapstructure:"tasks"`

	// Format selects the renderer: bar, text or json.
	Format string `mapstructure:"format"`
	// RenderInterval throttles rendering. Zero renders every update.
	RenderInterval time.Duration `mapstructure:"render-interval"`

	Workers        int           `mapstructure:"workers"`
	Processes      int           `mapstructure:"processes"`
	TaskDuration   time.Duration `mapstructure:"task-duration"`
	SummaryFile    string        `mapstructure:"summary-file"`
	MetricsFile    string        `mapstructure:"metrics-file"`
	Verbose        int           `mapstructure:"verbose"`
	EnableJaeger   bool          `mapstructure:"enable-jaeger"`
	JaegerEndpoint string        `mapstructure:"jaeger-endpoint"`
}

// Load builds Settings. Later sources win: defaults, the file at path (when
// not empty), environment, then flags the user changed.
//
// The total comes from the "total" key and falls back to "tasks"; either must
// be a positive integer.
func Load(path string, flags *pflag.FlagSet) (Settings, error) {
	v := viper.New()
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	// Bound explicitly so that IsSet sees the environment for these keys.
	for _, key := range []string{"total", "tasks"} {
		if err := v.BindEnv(key); err != nil {
			return Settings{}, fmt.Errorf("bind env %s: %w", key, err)
		}
	}

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Settings{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return Settings{}, fmt.Errorf("read config: %w", err)
		}
	}

	total, tasks, err := counts(v)
	if err != nil {
		return Settings{}, err
	}
	v.Set("total", total)
	v.Set("tasks", tasks)

	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return Settings{}, fmt.Errorf("unmarshal config: %w", err)
	}

	if err := s.Validate(); err != nil {
		return Settings{}, err
	}
	return s, nil
}

func counts(v *viper.Viper) (total, tasks int, err error) {
	switch {
	case v.IsSet("total"):
		total, err = progress.ParseTotal(v.GetString("total"))
	case v.IsSet("tasks"):
		total, err = progress.ParseTotal(v.GetString("tasks"))
	default:
		err = fmt.Errorf("%w: total is required", progress.ErrInvalidConfig)
	}
	if err != nil {
		return 0, 0, err
	}

	tasks = total
	if v.IsSet("tasks") {
		if tasks, err = progress.ParseTotal(v.GetString("tasks")); err != nil {
			return 0, 0, err
		}
	}
	return total, tasks, nil
}

func setDefaults(v *viper.Viper) {
	d := progress.DefaultConfig(0)
	v.SetDefault("wait-message", d.WaitMessage)
	v.SetDefault("final-message", d.FinalMessage)
	v.SetDefault("marker", d.Marker)
	v.SetDefault("bar-length", d.BarLength)
	v.SetDefault("display-remaining-time", d.DisplayRemainingTime)
	v.SetDefault("display-date", d.DisplayDate)
	v.SetDefault("overwrite", d.Overwrite)
	v.SetDefault("transport", string(d.Transport))
	v.SetDefault("counter-dir", d.CounterDir)
	v.SetDefault("counter-path", d.CounterPath)

	v.SetDefault("format", DefaultFormat)
	v.SetDefault("render-interval", "0s")
	v.SetDefault("workers", DefaultWorkers)
	v.SetDefault("processes", 0)
	v.SetDefault("task-duration", DefaultTaskDuration.String())
	v.SetDefault("summary-file", "")
	v.SetDefault("metrics-file", "")
	v.SetDefault("verbose", 0)
	v.SetDefault("enable-jaeger", false)
	v.SetDefault("jaeger-endpoint", DefaultJaegerEndpoint)
}

// Validate checks the progress configuration and the runtime settings.
func (s Settings) Validate() error {
	if err := s.Progress.Validate(); err != nil {
		return err
	}
	if s.Tasks < 1 || s.Tasks > s.Progress.Total {
		return fmt.Errorf("%w: tasks must be between 1 and total %d, got %d", progress.ErrInvalidConfig, s.Progress.Total, s.Tasks)
	}
	switch s.Format {
	case "bar", "text", "json":
	default:
		return fmt.Errorf("%w: unknown format %q", progress.ErrInvalidConfig, s.Format)
	}
	if s.RenderInterval < 0 {
		return fmt.Errorf("%w: render interval must not be negative, got %s", progress.ErrInvalidConfig, s.RenderInterval)
	}
	if s.Workers < 1 {
		return fmt.Errorf("%w: workers must be > 0, got %d", progress.ErrInvalidConfig, s.Workers)
	}
	if s.Processes < 0 {
		return fmt.Errorf("%w: processes must not be negative, got %d", progress.ErrInvalidConfig, s.Processes)
	}
	if s.Processes > s.Progress.Total {
		return fmt.Errorf("%w: processes must not exceed total %d, got %d", progress.ErrInvalidConfig, s.Progress.Total, s.Processes)
	}
	if s.TaskDuration < 0 {
		return fmt.Errorf("%w: task duration must not be negative, got %s", progress.ErrInvalidConfig, s.TaskDuration)
	}
	if s.EnableJaeger && s.JaegerEndpoint == "" {
		return fmt.Errorf("%w: jaeger endpoint must be set when jaeger is enabled", progress.ErrInvalidConfig)
	}
	return nil
}
