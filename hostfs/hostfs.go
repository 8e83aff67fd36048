// Package hostfs abstracts the handful of filesystem primitives the
// extractor and writer need, so the tar engine itself never imports
// os directly. The engine is built and tested exclusively against this
// interface; platform quirks live behind the two build-tagged files in
// this package.
package hostfs

import (
	"io"
	"io/fs"
	"os"
	"path/filepath"

	"github.com/go-errors/errors"
	"github.com/google/uuid"
)

// Info is the subset of file metadata the engine cares about.
type Info struct {
	Mode      fs.FileMode
	Size      int64
	IsDir     bool
	IsSymlink bool
	// Path is the path Info was looked up with, carried through so
	// IsExecutable can apply platform-specific heuristics that need more
	// than the raw mode bits (e.g. Windows' extension convention).
	Path string
}

// FS is the host filesystem capability surface required by the extractor,
// the writer's tree walker, and the copy-symlinks resolver.
type FS interface {
	// Lstat reports info about path without following a trailing symlink.
	Lstat(path string) (Info, error)
	// Stat reports info about path, following symlinks.
	Stat(path string) (Info, error)
	// ReadDir lists the (unsorted) names of path's direct children.
	ReadDir(path string) ([]string, error)
	// Mkdir creates path as a directory; path's parent must already exist.
	Mkdir(path string, mode fs.FileMode) error
	// MkdirAll creates path and every missing ancestor.
	MkdirAll(path string) error
	// Symlink creates path as a symlink pointing at target.
	Symlink(target, path string) error
	// Readlink returns the raw target string of the symlink at path.
	Readlink(path string) (string, error)
	// RemoveAll removes path and, if it is a directory, its contents.
	RemoveAll(path string) error
	// Open opens path for reading.
	Open(path string) (io.ReadCloser, error)
	// Create creates (or truncates) path for writing with the given mode.
	Create(path string, mode fs.FileMode) (io.WriteCloser, error)
	// Link creates a hard link at path pointing at the same inode as
	// existing. Extraction does not call it: hardlink entries are
	// materialized as byte copies of their target.
	Link(existing, path string) error
	// Chmod sets path's permission bits.
	Chmod(path string, mode fs.FileMode) error
	// CanSymlink probes whether symlinks can be created under root, used by
	// copy-symlinks "auto" detection.
	CanSymlink(root string) bool
	// IsExecutable reports whether info describes a file that should be
	// written with the owner-executable bit set.
	IsExecutable(info Info) bool
	// PropagatePermissions re-applies the permission bits in modes (keyed
	// by path) after extraction has finished. On POSIX hosts this is a
	// no-op: Chmod already took effect per file as it was written. On
	// Windows, a preceding copy-symlinks "copy" step can leave a file's
	// attributes reset, so this walks modes and reapplies them.
	PropagatePermissions(modes map[string]fs.FileMode) error
}

// Local is the FS implementation backed by the real operating system.
type Local struct{}

var _ FS = Local{}

func (Local) ReadDir(path string) ([]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrap(err)
	}
	defer f.Close()
	names, err := f.Readdirnames(-1)
	if err != nil {
		return nil, wrap(err)
	}
	return names, nil
}

func (Local) Mkdir(path string, mode fs.FileMode) error {
	return wrap(os.Mkdir(path, mode))
}

func (Local) MkdirAll(path string) error {
	return wrap(os.MkdirAll(path, 0o755))
}

func (Local) Symlink(target, path string) error {
	return wrap(os.Symlink(target, path))
}

func (Local) Readlink(path string) (string, error) {
	target, err := os.Readlink(path)
	if err != nil {
		return "", wrap(err)
	}
	return target, nil
}

func (Local) RemoveAll(path string) error {
	return wrap(os.RemoveAll(path))
}

func (Local) Open(path string) (io.ReadCloser, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, wrap(err)
	}
	return f, nil
}

func (Local) Create(path string, mode fs.FileMode) (io.WriteCloser, error) {
	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, mode)
	if err != nil {
		return nil, wrap(err)
	}
	return f, nil
}

func (Local) Link(existing, path string) error {
	return wrap(os.Link(existing, path))
}

func (Local) Chmod(path string, mode fs.FileMode) error {
	return wrap(os.Chmod(path, mode))
}

// CanSymlink probes symlink support by creating and immediately removing a
// throwaway symlink under root. The probe name is a fresh UUID so two
// concurrent extracts under the same root never collide on it.
func (Local) CanSymlink(root string) bool {
	probe := filepath.Join(root, ".ustar-symlink-probe-"+uuid.NewString())
	if err := os.Symlink("probe-target", probe); err != nil {
		return false
	}
	os.Remove(probe)
	return true
}

func wrap(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, 1)
}
