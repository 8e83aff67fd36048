package tartree

import (
	"io"
	"path/filepath"
	"sort"
	"strings"

	"github.com/msg555/ustar/hostfs"
	"github.com/msg555/ustar/tarfmt"
)

// CreateOptions configures Create.
type CreateOptions struct {
	Predicate func(*tarfmt.Header) bool
	// Skeleton, when set, drives the output byte-for-byte: Create
	// replays its header sequence and pulls file content from root instead
	// of walking root's own directory structure.
	Skeleton io.Reader
	Portable bool
	FS       hostfs.FS
}

// Create walks root's file tree (or, with a skeleton, replays its header
// sequence against root's content) and emits a canonical tarball to w.
func Create(root string, w io.Writer, opts CreateOptions) error {
	if opts.Predicate != nil && opts.Skeleton != nil {
		return &tarfmt.PredicateMisuseError{}
	}

	fsys := opts.FS
	if fsys == nil {
		fsys = hostfs.Local{}
	}

	if opts.Skeleton != nil {
		return ReplaySkeleton(opts.Skeleton, root, fsys, w)
	}

	writer := tarfmt.NewWriter(w)
	writer.SetPortable(opts.Portable)

	rootHeader := &tarfmt.Header{Path: "", Type: tarfmt.TypeDirectory, Mode: 0o755}
	if opts.Predicate == nil || opts.Predicate(rootHeader) {
		if err := writer.WriteHeader(rootHeader); err != nil {
			return err
		}
	}
	if err := writeDir(writer, fsys, root, "", opts.Predicate); err != nil {
		return err
	}
	return writer.Close()
}

// writeDir emits one header per direct child of sysDir, in lexicographic
// order, descending into subdirectories. A predicate only filters which
// headers actually reach the writer; it never prunes traversal, matching
// how the reader's own predicate works downstream.
func writeDir(writer *tarfmt.Writer, fsys hostfs.FS, sysDir, entryPrefix string, predicate func(*tarfmt.Header) bool) error {
	names, err := fsys.ReadDir(sysDir)
	if err != nil {
		return err
	}
	sort.Strings(names)

	for _, name := range names {
		sysChild := filepath.Join(sysDir, name)
		entryChild := name
		if entryPrefix != "" {
			entryChild = entryPrefix + "/" + name
		}

		info, err := fsys.Lstat(sysChild)
		if err != nil {
			return err
		}

		switch {
		case info.IsSymlink:
			target, err := fsys.Readlink(sysChild)
			if err != nil {
				return err
			}
			h := &tarfmt.Header{Path: entryChild, Type: tarfmt.TypeSymlink, Mode: 0o755, Link: target}
			if predicate == nil || predicate(h) {
				if err := writer.WriteHeader(h); err != nil {
					return err
				}
				if err := writer.FinishEntry(0); err != nil {
					return err
				}
			}

		case info.IsDir:
			h := &tarfmt.Header{Path: entryChild + "/", Type: tarfmt.TypeDirectory, Mode: 0o755}
			if predicate == nil || predicate(h) {
				if err := writer.WriteHeader(h); err != nil {
					return err
				}
			}
			if err := writeDir(writer, fsys, sysChild, strings.TrimSuffix(h.Path, "/"), predicate); err != nil {
				return err
			}

		default:
			mode := uint16(0o644)
			if fsys.IsExecutable(info) {
				mode = 0o755
			}
			h := &tarfmt.Header{Path: entryChild, Type: tarfmt.TypeFile, Mode: mode, Size: info.Size}
			if predicate != nil && !predicate(h) {
				continue
			}
			if err := writer.WriteHeader(h); err != nil {
				return err
			}
			if err := copyFileData(writer, fsys, sysChild, h.Size); err != nil {
				return err
			}
			if err := writer.FinishEntry(h.Size); err != nil {
				return err
			}
		}
	}
	return nil
}

func copyFileData(writer *tarfmt.Writer, fsys hostfs.FS, sysPath string, size int64) error {
	f, err := fsys.Open(sysPath)
	if err != nil {
		return err
	}
	defer f.Close()
	_, err = io.CopyN(writer, f, size)
	if err != nil && err != io.EOF {
		return wrapIO(err)
	}
	return nil
}
