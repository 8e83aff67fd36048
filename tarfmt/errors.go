package tarfmt

import (
	"fmt"

	"github.com/go-errors/errors"
)

// HeaderMalformedError reports a structural problem decoding a single
// fixed-width header field.
type HeaderMalformedError struct {
	Field string
	Cause string
}

func (e *HeaderMalformedError) Error() string {
	if e.Cause == "" {
		return fmt.Sprintf("tar: malformed header field %q", e.Field)
	}
	return fmt.Sprintf("tar: malformed header field %q: %s", e.Field, e.Cause)
}

// NotATarballError reports a version/magic/checksum mismatch at the start
// of a header block. The message hints that the stream may be
// compressed, matching the top-level driver's enrichment policy.
type NotATarballError struct {
	Reason string
}

func (e *NotATarballError) Error() string {
	return fmt.Sprintf("tar: not a ustar archive (%s); the stream may be compressed", e.Reason)
}

// InvalidHeaderError reports a violation of one of the Header invariants.
// Multiple violations accumulate into a single aggregated error.
type InvalidHeaderError struct {
	Path    string
	Reasons []string
}

func (e *InvalidHeaderError) Error() string {
	return fmt.Sprintf("tar: invalid header for %q: %v", e.Path, e.Reasons)
}

// UnsupportedEntryError reports a structurally valid ustar entry whose type
// this engine does not materialize (chardev, blockdev, fifo) under strict
// mode.
type UnsupportedEntryError struct {
	Path     string
	Typeflag byte
}

func (e *UnsupportedEntryError) Error() string {
	return fmt.Sprintf("tar: unsupported entry type %q for %q", string(e.Typeflag), e.Path)
}

// SymlinkAttackError reports that a path to be created has a prefix that is
// a previously declared symlink.
//
// SymlinkAttackError is a deferred error: the reader still hands back a
// valid Header so a predicate gets the chance to filter the entry out
// before the error is raised to the caller.
type SymlinkAttackError struct {
	Path   string
	Prefix string
}

func (e *SymlinkAttackError) Error() string {
	return fmt.Sprintf("tar: path %q would be extracted through symlink prefix %q", e.Path, e.Prefix)
}

func (e *SymlinkAttackError) deferredTarError() {}

// HardlinkUnknownTargetError reports a hardlink whose target was not
// previously seen in the stream as a plain file.
//
// HardlinkUnknownTargetError is a deferred error (see SymlinkAttackError).
type HardlinkUnknownTargetError struct {
	Path   string
	Target string
}

func (e *HardlinkUnknownTargetError) Error() string {
	return fmt.Sprintf("tar: hardlink %q targets unknown or non-file path %q", e.Path, e.Target)
}

func (e *HardlinkUnknownTargetError) deferredTarError() {}

// PortabilityError reports a Windows-unsafe path component encountered
// while writing in portable mode.
type PortabilityError struct {
	Path   string
	Reason string
}

func (e *PortabilityError) Error() string {
	return fmt.Sprintf("tar: path %q is not portable: %s", e.Path, e.Reason)
}

// PredicateMisuseError reports that a caller supplied both a predicate and
// a skeleton to the same operation, which the skeleton mechanism forbids
// because it must see every header unconditionally.
type PredicateMisuseError struct{}

func (e *PredicateMisuseError) Error() string {
	return "tar: predicate and skeleton must not be supplied together"
}

// CallbackProtocolError reports that a user-supplied callback advanced the
// stream by a number of bytes other than 0 (skip) or the full, padded data
// region.
type CallbackProtocolError struct {
	Path     string
	Expected int64
	Got      int64
}

func (e *CallbackProtocolError) Error() string {
	return fmt.Sprintf("tar: callback for %q read %d bytes of data, expected 0 or %d", e.Path, e.Got, e.Expected)
}

// deferredTarError marks an error kind that the reader reports alongside a
// valid Header rather than aborting the stream immediately.
type deferredTarError interface {
	error
	deferredTarError()
}

// IsDeferred reports whether err is a deferred error kind (SymlinkAttack or
// HardlinkUnknownTarget) that a predicate may still suppress.
func IsDeferred(err error) bool {
	_, ok := err.(deferredTarError)
	return ok
}

// wrapIO captures a stack trace around a low-level I/O failure so that the
// CLI can print a useful ErrorStack, wrapping errors at the boundary
// where they're first observed.
func wrapIO(err error) error {
	if err == nil {
		return nil
	}
	return errors.Wrap(err, 1)
}
