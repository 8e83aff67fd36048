package hostfs

import (
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLocalLstatDoesNotFollowSymlink(t *testing.T) {
	root := t.TempDir()
	target := filepath.Join(root, "target.txt")
	require.NoError(t, os.WriteFile(target, []byte("hello"), 0o644))
	link := filepath.Join(root, "link")
	require.NoError(t, os.Symlink("target.txt", link))

	var fsys Local
	info, err := fsys.Lstat(link)
	require.NoError(t, err)
	assert.True(t, info.IsSymlink)
	assert.False(t, info.IsDir)

	info, err = fsys.Stat(link)
	require.NoError(t, err)
	assert.False(t, info.IsSymlink, "Stat follows the symlink to the regular file underneath")
	assert.Equal(t, int64(5), info.Size)
}

func TestLocalReadDirListsChildren(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "a.txt"), nil, 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	var fsys Local
	names, err := fsys.ReadDir(root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"a.txt", "sub"}, names)
}

func TestLocalMkdirAllCreatesMissingAncestors(t *testing.T) {
	root := t.TempDir()
	var fsys Local
	require.NoError(t, fsys.MkdirAll(filepath.Join(root, "a", "b", "c")))

	info, err := os.Stat(filepath.Join(root, "a", "b", "c"))
	require.NoError(t, err)
	assert.True(t, info.IsDir())
}

func TestLocalCreateAndOpenRoundTrip(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f.txt")

	var fsys Local
	w, err := fsys.Create(path, 0o644)
	require.NoError(t, err)
	_, err = w.Write([]byte("content"))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	r, err := fsys.Open(path)
	require.NoError(t, err)
	defer r.Close()
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "content", string(data))
}

func TestLocalLinkCreatesHardlink(t *testing.T) {
	root := t.TempDir()
	existing := filepath.Join(root, "a.txt")
	require.NoError(t, os.WriteFile(existing, []byte("shared"), 0o644))

	var fsys Local
	linked := filepath.Join(root, "b.txt")
	require.NoError(t, fsys.Link(existing, linked))

	data, err := os.ReadFile(linked)
	require.NoError(t, err)
	assert.Equal(t, "shared", string(data))
}

func TestLocalCanSymlinkProbesAndCleansUp(t *testing.T) {
	root := t.TempDir()
	var fsys Local
	assert.True(t, fsys.CanSymlink(root))

	entries, err := os.ReadDir(root)
	require.NoError(t, err)
	assert.Empty(t, entries, "the probe symlink must not be left behind")
}

func TestLocalIsExecutableReflectsOwnerBit(t *testing.T) {
	root := t.TempDir()
	execPath := filepath.Join(root, "exe.sh")
	require.NoError(t, os.WriteFile(execPath, []byte("#!/bin/sh\n"), 0o755))
	plainPath := filepath.Join(root, "plain.txt")
	require.NoError(t, os.WriteFile(plainPath, []byte("data"), 0o644))

	var fsys Local
	execInfo, err := fsys.Lstat(execPath)
	require.NoError(t, err)
	assert.True(t, fsys.IsExecutable(execInfo))

	plainInfo, err := fsys.Lstat(plainPath)
	require.NoError(t, err)
	assert.False(t, fsys.IsExecutable(plainInfo))
}

func TestLocalChmodChangesPermissionBits(t *testing.T) {
	root := t.TempDir()
	path := filepath.Join(root, "f.txt")
	require.NoError(t, os.WriteFile(path, nil, 0o644))

	var fsys Local
	require.NoError(t, fsys.Chmod(path, 0o600))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())
}
