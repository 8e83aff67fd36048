//go:build !windows

package hostfs

import (
	"io/fs"

	"golang.org/x/sys/unix"
)

// Lstat reports info about path without following a trailing symlink,
// via a direct unix.Lstat syscall.
func (Local) Lstat(path string) (Info, error) {
	var st unix.Stat_t
	if err := unix.Lstat(path, &st); err != nil {
		return Info{}, wrap(err)
	}
	return statToInfo(path, &st), nil
}

// Stat reports info about path, following symlinks.
func (Local) Stat(path string) (Info, error) {
	var st unix.Stat_t
	if err := unix.Stat(path, &st); err != nil {
		return Info{}, wrap(err)
	}
	return statToInfo(path, &st), nil
}

// statToInfo converts a raw unix.Stat_t into Info: the low 9 permission
// bits pass through directly, the file-type bits in unix.S_IFMT map onto
// fs.FileMode's type bits.
func statToInfo(path string, st *unix.Stat_t) Info {
	mode := fs.FileMode(st.Mode & 0o777)
	isDir := false
	isSymlink := false
	switch st.Mode & unix.S_IFMT {
	case unix.S_IFDIR:
		mode |= fs.ModeDir
		isDir = true
	case unix.S_IFLNK:
		mode |= fs.ModeSymlink
		isSymlink = true
	case unix.S_IFIFO:
		mode |= fs.ModeNamedPipe
	case unix.S_IFSOCK:
		mode |= fs.ModeSocket
	case unix.S_IFCHR:
		mode |= fs.ModeDevice | fs.ModeCharDevice
	case unix.S_IFBLK:
		mode |= fs.ModeDevice
	}
	return Info{
		Mode:      mode,
		Size:      st.Size,
		IsDir:     isDir,
		IsSymlink: isSymlink,
		Path:      path,
	}
}

// IsExecutable reports the owner-executable bit, matching how POSIX hosts
// actually decide whether to run a file.
func (Local) IsExecutable(info Info) bool {
	return info.Mode&0o100 != 0
}

// PropagatePermissions is a no-op on POSIX hosts: Chmod already applied
// the final mode bits to each file as it was written.
func (Local) PropagatePermissions(modes map[string]fs.FileMode) error {
	return nil
}
