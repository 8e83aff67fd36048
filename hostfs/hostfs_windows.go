//go:build windows

package hostfs

import (
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

var windowsExecutableExt = map[string]bool{
	".exe": true, ".bat": true, ".cmd": true, ".com": true,
}

// Lstat reports info about path without following a trailing symlink.
func (Local) Lstat(path string) (Info, error) {
	fi, err := os.Lstat(path)
	if err != nil {
		return Info{}, wrap(err)
	}
	return toInfo(path, fi), nil
}

// Stat reports info about path, following symlinks.
func (Local) Stat(path string) (Info, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return Info{}, wrap(err)
	}
	return toInfo(path, fi), nil
}

func toInfo(path string, fi os.FileInfo) Info {
	return Info{
		Mode:      fi.Mode(),
		Size:      fi.Size(),
		IsDir:     fi.IsDir(),
		IsSymlink: fi.Mode()&fs.ModeSymlink != 0,
		Path:      path,
	}
}

// IsExecutable approximates the POSIX owner-executable bit using the
// Windows convention of marking executables by extension, since NTFS has
// no equivalent permission bit.
func (Local) IsExecutable(info Info) bool {
	return isExecutableName(info.Path)
}

// PropagatePermissions re-walks modes and reapplies each recorded mode
// with os.Chmod. This matters after the copy-symlinks resolver falls back
// to copying file content (instead of creating a real symlink): Windows
// can reset a copied file's read-only attribute, so extraction's earlier
// Chmod calls need to be redone once the whole tree is in place.
func (Local) PropagatePermissions(modes map[string]fs.FileMode) error {
	for path, mode := range modes {
		if err := os.Chmod(path, mode); err != nil {
			return wrap(err)
		}
	}
	return nil
}

// isExecutableName reports whether path's extension marks it executable
// under Windows' own association rules. IsExecutable uses it, which Create
// consults to pick the mode written into a file's header.
func isExecutableName(path string) bool {
	return windowsExecutableExt[strings.ToLower(filepath.Ext(path))]
}
