package tartree

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msg555/ustar/tarfmt"
)

func TestRewriteCanonicalizesAndReportsSummary(t *testing.T) {
	var buf bytes.Buffer
	w := tarfmt.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "b/", Type: tarfmt.TypeDirectory, Mode: 0o755}))
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "b/file.txt", Type: tarfmt.TypeFile, Mode: 0o644, Size: 5}))
	_, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.FinishEntry(5))
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "a/", Type: tarfmt.TypeDirectory, Mode: 0o755}))
	require.NoError(t, w.Close())

	var out bytes.Buffer
	summary, err := Rewrite(bytes.NewReader(buf.Bytes()), &out, RewriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 3, summary.EntriesWritten)
	assert.Equal(t, int64(5), summary.BytesWritten)

	r := tarfmt.NewReader(bytes.NewReader(out.Bytes()))
	var paths []string
	for {
		h, err := r.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		paths = append(paths, h.Path)
		_, _ = io.Copy(io.Discard, r)
	}
	// The rewriter walks its in-memory tree in lexicographic order, so "a/"
	// precedes "b/" regardless of the original stream order.
	require.Equal(t, []string{"a/", "b/", "b/file.txt"}, paths)
}

func TestRewriteIsIdempotent(t *testing.T) {
	var buf bytes.Buffer
	w := tarfmt.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "x/y/z.txt", Type: tarfmt.TypeFile, Mode: 0o644, Size: 3}))
	_, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.FinishEntry(3))
	require.NoError(t, w.Close())

	var firstPass bytes.Buffer
	_, err = Rewrite(bytes.NewReader(buf.Bytes()), &firstPass, RewriteOptions{})
	require.NoError(t, err)

	var secondPass bytes.Buffer
	_, err = Rewrite(bytes.NewReader(firstPass.Bytes()), &secondPass, RewriteOptions{})
	require.NoError(t, err)

	assert.Equal(t, firstPass.Bytes(), secondPass.Bytes(), "rewriting canonical output again must be a byte-exact no-op")
}

func TestRewriteHardlinkBecomesIndependentFile(t *testing.T) {
	var buf bytes.Buffer
	w := tarfmt.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "orig.txt", Type: tarfmt.TypeFile, Mode: 0o644, Size: 4}))
	_, err := w.Write([]byte("data"))
	require.NoError(t, err)
	require.NoError(t, w.FinishEntry(4))
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "alias.txt", Type: tarfmt.TypeHardlink, Mode: 0o644, Link: "orig.txt"}))
	require.NoError(t, w.Close())

	var out bytes.Buffer
	summary, err := Rewrite(bytes.NewReader(buf.Bytes()), &out, RewriteOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, summary.EntriesWritten)
	assert.Equal(t, int64(8), summary.BytesWritten)

	r := tarfmt.NewReader(bytes.NewReader(out.Bytes()))
	h, err := r.Next()
	require.NoError(t, err)
	assert.Equal(t, "alias.txt", h.Path)
	assert.Equal(t, tarfmt.TypeFile, h.Type)
	data, err := io.ReadAll(r)
	require.NoError(t, err)
	assert.Equal(t, "data", string(data))
}

func TestRewritePredicateFilters(t *testing.T) {
	var buf bytes.Buffer
	w := tarfmt.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "keep.txt", Type: tarfmt.TypeFile, Mode: 0o644, Size: 0}))
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "drop.txt", Type: tarfmt.TypeFile, Mode: 0o644, Size: 0}))
	require.NoError(t, w.Close())

	var out bytes.Buffer
	summary, err := Rewrite(bytes.NewReader(buf.Bytes()), &out, RewriteOptions{
		Predicate: func(h *tarfmt.Header) bool { return h.Path != "drop.txt" },
	})
	require.NoError(t, err)
	assert.Equal(t, 1, summary.EntriesWritten)
}

func TestBufferIfNeededPassesThroughSeekable(t *testing.T) {
	src := bytes.NewReader([]byte("already seekable"))
	s, err := BufferIfNeeded(src)
	require.NoError(t, err)
	assert.Same(t, io.Reader(src), s)
}

func TestBufferIfNeededBuffersNonSeekable(t *testing.T) {
	s, err := BufferIfNeeded(io.NopCloser(bytes.NewReader([]byte("not directly seekable"))))
	require.NoError(t, err)
	_, err = s.Seek(0, io.SeekStart)
	require.NoError(t, err)
	data, err := io.ReadAll(s)
	require.NoError(t, err)
	assert.Equal(t, "not directly seekable", string(data))
}
