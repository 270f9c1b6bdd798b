package counter

import (
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
)

const (
	filePrefix = "progress-"
	fileSuffix = ".cnt"
)

// File is a durable Counter persisted as a plain-text integer. Every operation
// opens the file and holds an exclusive OS lock for the read-modify-write, so
// any number of processes may share one counter through its path.
type File struct {
	path string
}

// CreateFile creates a new uniquely named counter file in dir holding "0".
// An empty dir selects os.TempDir().
func CreateFile(dir string) (*File, error) {
	if dir == "" {
		dir = os.TempDir()
	}
	path := filepath.Join(dir, filePrefix+uuid.NewString()+fileSuffix)
	f, err := os.OpenFile(path, os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, fmt.Errorf("%w: create %s: %v", ErrStorageUnavailable, path, err)
	}
	defer f.Close()
	if _, err := f.WriteString("0"); err != nil {
		os.Remove(path)
		return nil, fmt.Errorf("%w: initialize %s: %v", ErrStorageUnavailable, path, err)
	}
	return &File{path: path}, nil
}

// OpenFile attaches to a counter file created by another context.
func OpenFile(path string) (*File, error) {
	if _, err := os.Stat(path); err != nil {
		return nil, fmt.Errorf("%w: open %s: %v", ErrStorageUnavailable, path, err)
	}
	return &File{path: path}, nil
}

// Path returns the location of the counter file.
func (c *File) Path() string {
	return c.path
}

func (c *File) IncrementAndRead() (int, error) {
	var next int
	err := c.withLock(func(f *os.File) error {
		current, err := readValue(f)
		if err != nil {
			return err
		}
		next = current + 1
		return writeValue(f, next)
	})
	if err != nil {
		return 0, err
	}
	return next, nil
}

func (c *File) Read() (int, error) {
	var value int
	err := c.withLock(func(f *os.File) error {
		v, err := readValue(f)
		value = v
		return err
	})
	if err != nil {
		return 0, err
	}
	return value, nil
}

// RemoveIfEqual deletes the counter file when its persisted value equals
// expected. A file that no longer exists is treated as already removed.
func (c *File) RemoveIfEqual(expected int) (bool, error) {
	var matched bool
	err := c.withLock(func(f *os.File) error {
		v, err := readValue(f)
		if err != nil {
			return err
		}
		matched = v == expected
		return nil
	})
	if errors.Is(err, fs.ErrNotExist) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	if !matched {
		return false, nil
	}
	// The lock is released before removal so windows can delete the file.
	if err := os.Remove(c.path); err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return false, nil
		}
		return false, fmt.Errorf("%w: remove %s: %v", ErrStorageUnavailable, c.path, err)
	}
	return true, nil
}

func (c *File) Close() error {
	return nil
}

// withLock opens the counter file, takes the exclusive lock and runs fn.
// Errors are wrapped with ErrStorageUnavailable; a missing file additionally
// matches fs.ErrNotExist.
func (c *File) withLock(fn func(f *os.File) error) error {
	f, err := os.OpenFile(c.path, os.O_RDWR, 0)
	if err != nil {
		return &storageError{op: "open", path: c.path, err: err}
	}
	defer f.Close()

	if err := lockFile(f); err != nil {
		return &storageError{op: "lock", path: c.path, err: err}
	}
	defer unlockFile(f)

	if err := fn(f); err != nil {
		var se *storageError
		if errors.As(err, &se) {
			return err
		}
		return &storageError{op: "update", path: c.path, err: err}
	}
	return nil
}

func readValue(f *os.File) (int, error) {
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return 0, err
	}
	b, err := io.ReadAll(f)
	if err != nil {
		return 0, err
	}
	v, err := strconv.Atoi(strings.TrimSpace(string(b)))
	if err != nil {
		return 0, fmt.Errorf("malformed counter value %q", string(b))
	}
	return v, nil
}

func writeValue(f *os.File, v int) error {
	if err := f.Truncate(0); err != nil {
		return err
	}
	if _, err := f.WriteAt([]byte(strconv.Itoa(v)), 0); err != nil {
		return err
	}
	return f.Sync()
}

// storageError matches both ErrStorageUnavailable and the underlying cause.
type storageError struct {
	op   string
	path string
	err  error
}

func (e *storageError) Error() string {
	return fmt.Sprintf("%s: %s %s: %v", ErrStorageUnavailable, e.op, e.path, e.err)
}

func (e *storageError) Is(target error) bool {
	return target == ErrStorageUnavailable
}

func (e *storageError) Unwrap() error {
	return e.err
}
