package tartree

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msg555/ustar/tarfmt"
)

func TestExtractCopySymlinksCyclicPairDroppedSilently(t *testing.T) {
	var buf bytes.Buffer
	w := tarfmt.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "a", Type: tarfmt.TypeSymlink, Mode: 0o755, Link: "b"}))
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "b", Type: tarfmt.TypeSymlink, Mode: 0o755, Link: "a"}))
	require.NoError(t, w.Close())

	root := t.TempDir()
	err := Extract(bytes.NewReader(buf.Bytes()), root, ExtractOptions{CopySymlinks: CopySymlinksOn})
	require.NoError(t, err, "a cyclic chain is dropped silently, not reported as an error")

	_, err = os.Lstat(filepath.Join(root, "a"))
	assert.True(t, os.IsNotExist(err), "a cyclic symlink must never be materialized")
	_, err = os.Lstat(filepath.Join(root, "b"))
	assert.True(t, os.IsNotExist(err))
}

// TestExtractCopySymlinksDescendantWaitsForAncestor exercises entry order
// "a/b" (a symlink) arriving before "a" (a symlink), which is legal per
// the reader's forward-only symlink-prefix check. Processing "a/b" first
// forces extractEntry to create root/a as a real directory via
// ensureDirPath; processing "a" next removes that directory again before
// copy-symlinks materialization runs. The destination-ordering fix must
// materialize "a" before attempting "a/b" so root/a exists when "a/b" is
// written under it.
func TestExtractCopySymlinksDescendantWaitsForAncestor(t *testing.T) {
	var buf bytes.Buffer
	w := tarfmt.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "real_target/", Type: tarfmt.TypeDirectory, Mode: 0o755}))
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "real_target/child.txt", Type: tarfmt.TypeFile, Mode: 0o644, Size: 11}))
	_, err := w.Write([]byte("from target"))
	require.NoError(t, err)
	require.NoError(t, w.FinishEntry(11))
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "standalone.txt", Type: tarfmt.TypeFile, Mode: 0o644, Size: 8}))
	_, err = w.Write([]byte("b target"))
	require.NoError(t, err)
	require.NoError(t, w.FinishEntry(8))
	// "a/b" (pointing at standalone.txt) is written before "a" itself.
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "a/b", Type: tarfmt.TypeSymlink, Mode: 0o755, Link: "../standalone.txt"}))
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "a", Type: tarfmt.TypeSymlink, Mode: 0o755, Link: "real_target"}))
	require.NoError(t, w.Close())

	root := t.TempDir()
	err = Extract(bytes.NewReader(buf.Bytes()), root, ExtractOptions{CopySymlinks: CopySymlinksOn})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "a", "child.txt"))
	require.NoError(t, err)
	assert.Equal(t, "from target", string(data))

	data, err = os.ReadFile(filepath.Join(root, "a", "b"))
	require.NoError(t, err)
	assert.Equal(t, "b target", string(data))
}

// TestExtractCopySymlinksChainedIntermediateSymlink exercises a multi-hop
// target where an intermediate path component is itself a symlink:
// "lib" -> "usr/lib", and the entry's own target is "lib/foo.so". A flat
// lookup of the literal joined string "lib/foo.so" never matches a known
// path; resolution must substitute "lib" with its own resolved chain
// before continuing to "foo.so".
func TestExtractCopySymlinksChainedIntermediateSymlink(t *testing.T) {
	var buf bytes.Buffer
	w := tarfmt.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "usr/", Type: tarfmt.TypeDirectory, Mode: 0o755}))
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "usr/lib/", Type: tarfmt.TypeDirectory, Mode: 0o755}))
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "usr/lib/foo.so", Type: tarfmt.TypeFile, Mode: 0o644, Size: 9}))
	_, err := w.Write([]byte("so bytes!"))
	require.NoError(t, err)
	require.NoError(t, w.FinishEntry(9))
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "lib", Type: tarfmt.TypeSymlink, Mode: 0o755, Link: "usr/lib"}))
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "link", Type: tarfmt.TypeSymlink, Mode: 0o755, Link: "lib/foo.so"}))
	require.NoError(t, w.Close())

	root := t.TempDir()
	err = Extract(bytes.NewReader(buf.Bytes()), root, ExtractOptions{CopySymlinks: CopySymlinksOn})
	require.NoError(t, err)

	data, err := os.ReadFile(filepath.Join(root, "link"))
	require.NoError(t, err, "the chain through the intermediate symlink \"lib\" must resolve to usr/lib/foo.so")
	assert.Equal(t, "so bytes!", string(data))
}
