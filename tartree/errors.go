package tartree

import (
	"fmt"

	"github.com/go-errors/errors"
)

// wrapIO captures a stack trace around a low-level I/O failure, matching
// tarfmt's own error-wrapping convention at the boundary where an error is
// first observed.
func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, 1)
}

// RootEscapeError reports that a normalized entry path would resolve
// outside the extraction root — the defensive check behind the
// filesystem invariant, which ordinary inputs never trigger because the
// reader already rejects ".." components during normalization.
type RootEscapeError struct {
	Path string
	Root string
}

func (e *RootEscapeError) Error() string {
	return fmt.Sprintf("tartree: path %q escapes extraction root %q", e.Path, e.Root)
}

// BrokenSymlinkTargetError reports that the copy-symlinks resolver could
// not resolve a symlink chain to a concrete file or directory.
type BrokenSymlinkTargetError struct {
	Path   string
	Target string
}

func (e *BrokenSymlinkTargetError) Error() string {
	return fmt.Sprintf("tartree: symlink %q targets unresolvable path %q", e.Path, e.Target)
}

// NotASkeletonError reports that ReplaySkeleton's input stream never
// carried the skeleton marker record.
type NotASkeletonError struct{}

func (e *NotASkeletonError) Error() string {
	return "tartree: input is not a skeleton (missing marker)"
}

// ReplaySizeMismatchError reports that the file found on disk at replay
// time is shorter than the size recorded in the skeleton's header for
// that entry.
type ReplaySizeMismatchError struct {
	Path string
	Want int64
	Got  int64
}

func (e *ReplaySizeMismatchError) Error() string {
	return fmt.Sprintf("tartree: %q is %d bytes on disk, skeleton recorded %d", e.Path, e.Got, e.Want)
}
