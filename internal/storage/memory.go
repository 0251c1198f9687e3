package storage

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

// Memory is an in-RAM Storage implementation mapping file name to byte
// slice, used by the WAL, sorted-table, compaction, dispatcher and engine
// tests so those runs are deterministic and leave no filesystem trace
// (spec §4.8, §9).
type Memory struct {
	mu    sync.RWMutex
	files map[string][]byte
}

// NewMemory creates an empty in-memory storage root.
func NewMemory() *Memory {
	return &Memory{files: make(map[string][]byte)}
}

func (m *Memory) List(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := make([]string, 0, len(m.files))
	for name := range m.files {
		names = append(names, name)
	}
	return names, nil
}

func (m *Memory) Create(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.files[name]; ok {
		return errors.Errorf("storage: %q already exists", name)
	}
	m.files[name] = []byte{}
	return nil
}

func (m *Memory) Append(ctx context.Context, name string, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.files[name] = append(m.files[name], data...)
	return nil
}

func (m *Memory) WriteAt(ctx context.Context, name string, offset int64, data []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf := m.files[name]
	need := offset + int64(len(data))
	if int64(len(buf)) < need {
		grown := make([]byte, need)
		copy(grown, buf)
		buf = grown
	}
	copy(buf[offset:], data)
	m.files[name] = buf
	return nil
}

func (m *Memory) ReadAt(ctx context.Context, name string, offset int64, size int) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	buf, ok := m.files[name]
	if !ok {
		return nil, errors.Errorf("storage: %q not found", name)
	}
	if offset < 0 || offset > int64(len(buf)) {
		return nil, errors.Errorf("storage: offset %d out of range for %q (len %d)", offset, name, len(buf))
	}
	end := offset + int64(size)
	if end > int64(len(buf)) {
		end = int64(len(buf))
	}
	out := make([]byte, end-offset)
	copy(out, buf[offset:end])
	return out, nil
}

func (m *Memory) Size(ctx context.Context, name string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	buf, ok := m.files[name]
	if !ok {
		return 0, errors.Errorf("storage: %q not found", name)
	}
	return int64(len(buf)), nil
}

// Fsync is a no-op for the in-memory backend (spec §4.8).
func (m *Memory) Fsync(ctx context.Context, name string) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.files[name]; !ok {
		return errors.Errorf("storage: %q not found", name)
	}
	return nil
}

func (m *Memory) Truncate(ctx context.Context, name string, size int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.files[name]
	if !ok {
		return errors.Errorf("storage: %q not found", name)
	}
	if int64(len(buf)) >= size {
		m.files[name] = buf[:size]
		return nil
	}
	grown := make([]byte, size)
	copy(grown, buf)
	m.files[name] = grown
	return nil
}

func (m *Memory) Delete(ctx context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.files, name)
	return nil
}

// Rename is a pointer swap for the in-memory backend (spec §4.8).
func (m *Memory) Rename(ctx context.Context, oldName, newName string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	buf, ok := m.files[oldName]
	if !ok {
		return errors.Errorf("storage: %q not found", oldName)
	}
	m.files[newName] = buf
	delete(m.files, oldName)
	return nil
}
