package tartree

import (
	"bytes"
	"io"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/msg555/ustar/tarfmt"
)

func TestListDeliversEveryEntry(t *testing.T) {
	var buf bytes.Buffer
	w := tarfmt.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "a.txt", Type: tarfmt.TypeFile, Mode: 0o644, Size: 3}))
	_, err := w.Write([]byte("abc"))
	require.NoError(t, err)
	require.NoError(t, w.FinishEntry(3))
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "dir/", Type: tarfmt.TypeDirectory, Mode: 0o755}))
	require.NoError(t, w.Close())

	var seen []string
	err = List(bytes.NewReader(buf.Bytes()), ListOptions{
		Callback: func(e ListEntry) error {
			seen = append(seen, e.Header.Path)
			return nil
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "dir/"}, seen)
}

func TestListCallbackMayLeaveDataUnread(t *testing.T) {
	var buf bytes.Buffer
	w := tarfmt.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "a.txt", Type: tarfmt.TypeFile, Mode: 0o644, Size: 5}))
	_, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	require.NoError(t, w.FinishEntry(5))
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "b.txt", Type: tarfmt.TypeFile, Mode: 0o644, Size: 0}))
	require.NoError(t, w.Close())

	var seen []string
	err = List(bytes.NewReader(buf.Bytes()), ListOptions{
		Callback: func(e ListEntry) error {
			seen = append(seen, e.Header.Path)
			return nil // not reading e.Data at all is the "consume 0 bytes" case
		},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"a.txt", "b.txt"}, seen)
}

func TestListCallbackProtocolViolation(t *testing.T) {
	var buf bytes.Buffer
	w := tarfmt.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "a.txt", Type: tarfmt.TypeFile, Mode: 0o644, Size: 10}))
	_, err := w.Write([]byte("0123456789"))
	require.NoError(t, err)
	require.NoError(t, w.FinishEntry(10))
	require.NoError(t, w.Close())

	err = List(bytes.NewReader(buf.Bytes()), ListOptions{
		Callback: func(e ListEntry) error {
			buf := make([]byte, 3)
			_, rerr := io.ReadFull(e.Data, buf)
			return rerr
		},
	})
	var protoErr *tarfmt.CallbackProtocolError
	require.ErrorAs(t, err, &protoErr)
}

func TestListRawSurfacesExtensionHeaders(t *testing.T) {
	var buf bytes.Buffer
	w := tarfmt.NewWriter(&buf)
	longPath := make([]byte, 0, 200)
	for i := 0; i < 40; i++ {
		longPath = append(longPath, []byte("segment/")...)
	}
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: string(longPath) + "file.txt", Type: tarfmt.TypeFile, Mode: 0o644, Size: 0}))
	require.NoError(t, w.Close())

	var rawTypes []byte
	err := List(bytes.NewReader(buf.Bytes()), ListOptions{
		Raw: true,
		Callback: func(e ListEntry) error {
			require.NotNil(t, e.Raw)
			rawTypes = append(rawTypes, e.Raw.Typeflag)
			return nil
		},
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(rawTypes), 2, "a long path forces a PAX extension header distinct from the standard header")
}

func TestListNonStrictReportsFinalErrorInCallback(t *testing.T) {
	var buf bytes.Buffer
	w := tarfmt.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "a.txt", Type: tarfmt.TypeFile, Mode: 0o644, Size: 0}))
	require.NoError(t, w.Close())
	corrupted := buf.Bytes()
	corrupted[0] ^= 0xFF

	var gotErr error
	err := List(bytes.NewReader(corrupted), ListOptions{
		Strict: false,
		Callback: func(e ListEntry) error {
			if e.Err != nil {
				gotErr = e.Err
			}
			return nil
		},
	})
	require.NoError(t, err, "List itself returns nil; the error is reported through the callback")
	assert.Error(t, gotErr)
}

func TestListStrictReturnsErrorDirectly(t *testing.T) {
	var buf bytes.Buffer
	w := tarfmt.NewWriter(&buf)
	require.NoError(t, w.WriteHeader(&tarfmt.Header{Path: "a.txt", Type: tarfmt.TypeFile, Mode: 0o644, Size: 0}))
	require.NoError(t, w.Close())
	corrupted := buf.Bytes()
	corrupted[0] ^= 0xFF

	err := List(bytes.NewReader(corrupted), ListOptions{
		Strict:   true,
		Callback: func(ListEntry) error { return nil },
	})
	assert.Error(t, err)
}
