package progress

import (
	"errors"

	"github.com/konveyor/progress-aggregator/progress/counter"
)

var (
	// ErrInvalidConfig is returned by New and Config.Validate when a
	// construction parameter is out of range or malformed.
	ErrInvalidConfig = errors.New("invalid progress configuration")

	// ErrStorageUnavailable is returned when the durable counter cannot be
	// created, opened, locked or updated. It is fatal to the Progress.
	ErrStorageUnavailable = counter.ErrStorageUnavailable

	// ErrOverrun is returned when more units are reported than Config.Total.
	ErrOverrun = errors.New("progress overrun: more units reported than total")

	// ErrClosed is returned when reporting to a Progress that was torn down
	// before completing.
	ErrClosed = errors.New("progress already torn down")
)
