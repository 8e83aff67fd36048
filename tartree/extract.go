package tartree

import (
	"io"
	"io/fs"
	"path/filepath"
	"strings"

	"github.com/msg555/ustar/hostfs"
	"github.com/msg555/ustar/tarfmt"
)

// CopySymlinksMode is the tri-state policy for how extract handles
// symlink entries.
type CopySymlinksMode int

const (
	// CopySymlinksAuto probes the target root: if it supports creating
	// symlinks, behaves like CopySymlinksOff; otherwise like
	// CopySymlinksOn.
	CopySymlinksAuto CopySymlinksMode = iota
	CopySymlinksOff
	CopySymlinksOn
)

// ExtractOptions configures Extract.
type ExtractOptions struct {
	Predicate      func(*tarfmt.Header) bool
	Skeleton       io.Writer
	CopySymlinks   CopySymlinksMode
	SetPermissions bool
	FS             hostfs.FS
}

// Extract applies a tarball's headers to a filesystem root, enforcing
// symlink-attack and root-containment safety throughout.
func Extract(r io.Reader, root string, opts ExtractOptions) (err error) {
	if opts.Predicate != nil && opts.Skeleton != nil {
		return &tarfmt.PredicateMisuseError{}
	}

	fsys := opts.FS
	if fsys == nil {
		fsys = hostfs.Local{}
	}

	rootExisted := true
	if _, statErr := fsys.Lstat(root); statErr != nil {
		rootExisted = false
		if mkErr := fsys.MkdirAll(root); mkErr != nil {
			return mkErr
		}
	}
	defer func() {
		if err != nil && !rootExisted {
			fsys.RemoveAll(root) //nolint:errcheck // best-effort cleanup of a root we created ourselves
		}
	}()

	reader := tarfmt.NewReader(r)
	if opts.Skeleton != nil {
		if err = tarfmt.WriteSkeletonMagic(opts.Skeleton); err != nil {
			return err
		}
		reader.SetTee(opts.Skeleton)
	}

	copySymlinks := opts.CopySymlinks == CopySymlinksOn
	if opts.CopySymlinks == CopySymlinksAuto {
		copySymlinks = !fsys.CanSymlink(root)
	}

	permModes := make(map[string]fs.FileMode)

	for {
		var h *tarfmt.Header
		h, err = reader.Next()
		if err == io.EOF {
			err = nil
			break
		}
		deferred := tarfmt.IsDeferred(err)
		if err != nil && !deferred {
			return err
		}
		if opts.Predicate != nil && !opts.Predicate(h) {
			err = nil
			continue
		}
		if deferred {
			return err
		}
		err = nil
		if err = extractEntry(fsys, root, h, reader, copySymlinks, opts.SetPermissions, permModes); err != nil {
			return err
		}
	}

	if copySymlinks {
		if err = resolveCopySymlinks(fsys, root, reader.KnownPaths(), opts.SetPermissions, permModes); err != nil {
			return err
		}
	}

	if opts.SetPermissions {
		if err = fsys.PropagatePermissions(permModes); err != nil {
			return err
		}
	}

	return nil
}

// systemPath resolves h.Path against root and verifies the result stays
// under root.
func systemPath(root, entryPath string) (string, error) {
	rel := strings.TrimSuffix(entryPath, "/")
	sysPath := filepath.Join(root, filepath.FromSlash(rel))
	normRoot := filepath.Clean(root)
	if sysPath != normRoot && !strings.HasPrefix(sysPath, normRoot+string(filepath.Separator)) {
		return "", &RootEscapeError{Path: entryPath, Root: root}
	}
	return sysPath, nil
}

func extractEntry(fsys hostfs.FS, root string, h *tarfmt.Header, data io.Reader, copySymlinks, setPerms bool, permModes map[string]fs.FileMode) error {
	sysPath, err := systemPath(root, h.Path)
	if err != nil {
		return err
	}
	if sysPath == filepath.Clean(root) && h.Type == tarfmt.TypeDirectory {
		return nil // the root directory entry itself; root already exists
	}

	parent := filepath.Dir(sysPath)
	if err := ensureDirPath(fsys, root, parent); err != nil {
		return err
	}

	if info, statErr := fsys.Lstat(sysPath); statErr == nil {
		if h.Type == tarfmt.TypeDirectory && info.IsDir {
			return nil
		}
		if err := fsys.RemoveAll(sysPath); err != nil {
			return err
		}
	}

	switch h.Type {
	case tarfmt.TypeDirectory:
		if err := fsys.Mkdir(sysPath, 0o755); err != nil {
			return err
		}
		return nil

	case tarfmt.TypeSymlink:
		if copySymlinks {
			return nil // deferred to the copy-symlinks resolver post-pass
		}
		return fsys.Symlink(h.Link, sysPath)

	case tarfmt.TypeHardlink:
		sourcePath, err := systemPath(root, h.Link)
		if err != nil {
			return err
		}
		if sourcePath == sysPath {
			return nil
		}
		if err := copyFile(fsys, sourcePath, sysPath, 0o644); err != nil {
			return err
		}
		return finishPermissions(fsys, sysPath, h.Mode, setPerms, permModes)

	case tarfmt.TypeFile:
		w, err := fsys.Create(sysPath, 0o644)
		if err != nil {
			return err
		}
		_, copyErr := io.CopyN(w, data, h.Size)
		closeErr := w.Close()
		if copyErr != nil && copyErr != io.EOF {
			return wrapIO(copyErr)
		}
		if closeErr != nil {
			return wrapIO(closeErr)
		}
		return finishPermissions(fsys, sysPath, h.Mode, setPerms, permModes)

	default:
		return &tarfmt.UnsupportedEntryError{Path: h.Path, Typeflag: h.OtherFlag}
	}
}

// ensureDirPath creates dir and every missing ancestor up to root,
// removing and recreating any non-directory found in its place.
func ensureDirPath(fsys hostfs.FS, root, dir string) error {
	normRoot := filepath.Clean(root)
	if dir == normRoot || dir == "." || dir == string(filepath.Separator) {
		return nil
	}
	if info, err := fsys.Lstat(dir); err == nil {
		if info.IsDir {
			return nil
		}
		if err := fsys.RemoveAll(dir); err != nil {
			return err
		}
	} else if err := ensureDirPath(fsys, root, filepath.Dir(dir)); err != nil {
		return err
	}
	if err := fsys.Mkdir(dir, 0o755); err != nil {
		if info, statErr := fsys.Lstat(dir); statErr == nil && info.IsDir {
			return nil
		}
		return err
	}
	return nil
}

func copyFile(fsys hostfs.FS, sourcePath, destPath string, mode fs.FileMode) error {
	src, err := fsys.Open(sourcePath)
	if err != nil {
		return err
	}
	defer src.Close()
	dst, err := fsys.Create(destPath, mode)
	if err != nil {
		return err
	}
	_, copyErr := io.Copy(dst, src)
	closeErr := dst.Close()
	if copyErr != nil {
		return wrapIO(copyErr)
	}
	return wrapIO(closeErr)
}

// finishPermissions applies the owner-executable mode formula when
// setPermissions is requested, and records the final mode so Windows can
// reapply it after the copy-symlinks pass runs.
func finishPermissions(fsys hostfs.FS, sysPath string, hdrMode uint16, setPerms bool, permModes map[string]fs.FileMode) error {
	if !setPerms {
		return nil
	}
	info, err := fsys.Lstat(sysPath)
	if err != nil {
		return err
	}
	cur := uint16(info.Mode.Perm())
	mode := hdrMode & cur
	if hdrMode&0o100 != 0 {
		mode |= 0o100 | ((cur & 0o444) >> 2)
	}
	finalMode := fs.FileMode(mode)
	if err := fsys.Chmod(sysPath, finalMode); err != nil {
		return err
	}
	permModes[sysPath] = finalMode
	return nil
}
