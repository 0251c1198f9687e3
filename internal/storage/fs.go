package storage

import (
	"bytes"
	"context"
	"os"
	"path/filepath"

	"github.com/natefinch/atomic"
	"github.com/pkg/errors"
)

// FS is a filesystem-backed Storage rooted at a single directory, grounded
// on mrsladoje-HundDB's block_manager (plain os.File seek/read/write),
// generalized to the Storage interface and with Rename implemented via
// github.com/natefinch/atomic.WriteFile so a committed file is never
// observed half-written — the same idiom calvinalkan-agent-task uses to
// commit its ticket and cache files.
type FS struct {
	dir string
}

// NewFS creates a filesystem storage rooted at dir, creating dir if it does
// not already exist.
func NewFS(dir string) (*FS, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, errors.Wrapf(err, "storage: create root %q", dir)
	}
	return &FS{dir: dir}, nil
}

func (f *FS) path(name string) string {
	return filepath.Join(f.dir, name)
}

func (f *FS) List(ctx context.Context) ([]string, error) {
	entries, err := os.ReadDir(f.dir)
	if err != nil {
		return nil, errors.Wrap(err, "storage: list")
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		names = append(names, e.Name())
	}
	return names, nil
}

func (f *FS) Create(ctx context.Context, name string) error {
	file, err := os.OpenFile(f.path(name), os.O_CREATE|os.O_EXCL|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "storage: create %q", name)
	}
	return file.Close()
}

func (f *FS) Append(ctx context.Context, name string, data []byte) error {
	file, err := os.OpenFile(f.path(name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return errors.Wrapf(err, "storage: open %q for append", name)
	}
	defer file.Close()
	if _, err := file.Write(data); err != nil {
		return errors.Wrapf(err, "storage: append %q", name)
	}
	return nil
}

func (f *FS) WriteAt(ctx context.Context, name string, offset int64, data []byte) error {
	file, err := os.OpenFile(f.path(name), os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "storage: open %q for write", name)
	}
	defer file.Close()
	if _, err := file.WriteAt(data, offset); err != nil {
		return errors.Wrapf(err, "storage: write %q at %d", name, offset)
	}
	return nil
}

func (f *FS) ReadAt(ctx context.Context, name string, offset int64, size int) ([]byte, error) {
	file, err := os.Open(f.path(name))
	if err != nil {
		return nil, errors.Wrapf(err, "storage: open %q for read", name)
	}
	defer file.Close()
	buf := make([]byte, size)
	n, err := file.ReadAt(buf, offset)
	if err != nil && n == 0 {
		return nil, errors.Wrapf(err, "storage: read %q at %d", name, offset)
	}
	return buf[:n], nil
}

func (f *FS) Size(ctx context.Context, name string) (int64, error) {
	info, err := os.Stat(f.path(name))
	if err != nil {
		return 0, errors.Wrapf(err, "storage: stat %q", name)
	}
	return info.Size(), nil
}

func (f *FS) Fsync(ctx context.Context, name string) error {
	file, err := os.OpenFile(f.path(name), os.O_WRONLY, 0o644)
	if err != nil {
		return errors.Wrapf(err, "storage: open %q for fsync", name)
	}
	defer file.Close()
	if err := file.Sync(); err != nil {
		return errors.Wrapf(err, "storage: fsync %q", name)
	}
	return nil
}

func (f *FS) Truncate(ctx context.Context, name string, size int64) error {
	if err := os.Truncate(f.path(name), size); err != nil {
		return errors.Wrapf(err, "storage: truncate %q", name)
	}
	return nil
}

func (f *FS) Delete(ctx context.Context, name string) error {
	if err := os.Remove(f.path(name)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "storage: delete %q", name)
	}
	return nil
}

// Rename atomically replaces newName with oldName's contents. It reads
// oldName in full and uses atomic.WriteFile to commit newName, which
// guarantees any concurrent reader of newName sees either the previous
// contents or the complete new contents, never a partial write.
func (f *FS) Rename(ctx context.Context, oldName, newName string) error {
	data, err := os.ReadFile(f.path(oldName))
	if err != nil {
		return errors.Wrapf(err, "storage: read %q for rename", oldName)
	}
	if err := atomic.WriteFile(f.path(newName), bytes.NewReader(data)); err != nil {
		return errors.Wrapf(err, "storage: commit %q", newName)
	}
	if err := os.Remove(f.path(oldName)); err != nil && !os.IsNotExist(err) {
		return errors.Wrapf(err, "storage: remove %q after rename", oldName)
	}
	return nil
}
