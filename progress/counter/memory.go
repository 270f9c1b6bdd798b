package counter

import "sync/atomic"

// Memory is an in-process Counter backed by an atomic integer.
type Memory struct {
	value atomic.Int64
}

// NewMemory returns a Memory counter starting at zero.
func NewMemory() *Memory {
	return &Memory{}
}

func (m *Memory) IncrementAndRead() (int, error) {
	return int(m.value.Add(1)), nil
}

func (m *Memory) Read() (int, error) {
	return int(m.value.Load()), nil
}

// RemoveIfEqual has nothing to release for an in-memory counter; it only
// reports whether the value matched.
func (m *Memory) RemoveIfEqual(expected int) (bool, error) {
	return int(m.value.Load()) == expected, nil
}

func (m *Memory) Close() error {
	return nil
}
