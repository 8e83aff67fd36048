package tartree

import (
	"bytes"
	"io"
	"sort"
	"strings"

	"github.com/msg555/ustar/tarfmt"
)

type rwLeaf struct {
	header *tarfmt.Header
	offset int64 // valid when header.Type == TypeFile: byte offset of the data region in src
}

type rwNode struct {
	children map[string]*rwNode
	leaf     *rwLeaf
}

func newRWDir() *rwNode {
	return &rwNode{children: make(map[string]*rwNode)}
}

// RewriteOptions configures Rewrite.
type RewriteOptions struct {
	Predicate func(*tarfmt.Header) bool
	Portable  bool
}

// RewriteSummary reports what Rewrite actually wrote, mirroring the final
// status line import_tar.go prints after an import run.
type RewriteSummary struct {
	EntriesWritten int
	BytesWritten   int64
}

// seeker is the minimal capability Rewrite needs from its source: sequential
// reads plus the ability to seek back to a captured data-region offset.
type seeker interface {
	io.Reader
	io.Seeker
}

// Rewrite reads an arbitrary tarball without touching any filesystem and
// reemits it in this engine's canonical byte-exact form. src must be
// seekable; BufferIfNeeded gives callers a seekable view over a
// non-seekable source.
func Rewrite(src seeker, w io.Writer, opts RewriteOptions) (RewriteSummary, error) {
	reader := tarfmt.NewReader(src)
	root := newRWDir()
	fileRefs := make(map[string]*rwLeaf)
	rootHasHeader := false

	for {
		h, err := reader.Next()
		if err == io.EOF {
			break
		}
		deferred := tarfmt.IsDeferred(err)
		if err != nil && !deferred {
			return RewriteSummary{}, err
		}
		if opts.Predicate != nil && !opts.Predicate(h) {
			continue
		}
		if deferred {
			return RewriteSummary{}, err
		}

		key := strings.TrimSuffix(h.Path, "/")
		switch h.Type {
		case tarfmt.TypeDirectory:
			if h.Path == "" {
				rootHasHeader = true
				continue
			}
			ensureRWDir(root, h.Path)

		case tarfmt.TypeSymlink:
			leaf := &rwLeaf{header: h}
			insertRWLeaf(root, h.Path, leaf)
			fileRefs[key] = leaf

		case tarfmt.TypeFile:
			offset, err := src.Seek(0, io.SeekCurrent)
			if err != nil {
				return RewriteSummary{}, wrapIO(err)
			}
			leaf := &rwLeaf{header: h, offset: offset}
			insertRWLeaf(root, h.Path, leaf)
			fileRefs[key] = leaf

		case tarfmt.TypeHardlink:
			target, ok := fileRefs[strings.TrimSuffix(h.Link, "/")]
			if !ok {
				return RewriteSummary{}, &tarfmt.HardlinkUnknownTargetError{Path: h.Path, Target: h.Link}
			}
			cloned := *target.header
			cloned.Path = h.Path
			cloned.Type = tarfmt.TypeFile
			cloned.Link = ""
			leaf := &rwLeaf{header: &cloned, offset: target.offset}
			insertRWLeaf(root, h.Path, leaf)
			fileRefs[key] = leaf

		default:
			return RewriteSummary{}, &tarfmt.UnsupportedEntryError{Path: h.Path, Typeflag: h.OtherFlag}
		}
	}

	writer := tarfmt.NewWriter(w)
	writer.SetPortable(opts.Portable)

	summary := RewriteSummary{}
	if rootHasHeader {
		if err := writer.WriteHeader(&tarfmt.Header{Path: "", Type: tarfmt.TypeDirectory, Mode: 0o755}); err != nil {
			return RewriteSummary{}, err
		}
		summary.EntriesWritten++
	}
	if err := writeRWTree(writer, root, "", src, &summary); err != nil {
		return RewriteSummary{}, err
	}
	if err := writer.Close(); err != nil {
		return RewriteSummary{}, err
	}
	return summary, nil
}

func writeRWTree(writer *tarfmt.Writer, node *rwNode, prefix string, src seeker, summary *RewriteSummary) error {
	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		child := node.children[name]
		childPath := name
		if prefix != "" {
			childPath = prefix + "/" + name
		}
		if child.children != nil {
			if err := writer.WriteHeader(&tarfmt.Header{Path: childPath + "/", Type: tarfmt.TypeDirectory, Mode: 0o755}); err != nil {
				return err
			}
			summary.EntriesWritten++
			if err := writeRWTree(writer, child, childPath, src, summary); err != nil {
				return err
			}
			continue
		}

		hh := *child.leaf.header
		hh.Path = childPath
		if err := writer.WriteHeader(&hh); err != nil {
			return err
		}
		if hh.Type == tarfmt.TypeFile && hh.Size > 0 {
			if _, err := src.Seek(child.leaf.offset, io.SeekStart); err != nil {
				return wrapIO(err)
			}
			if _, err := io.CopyN(writer, src, hh.Size); err != nil {
				return wrapIO(err)
			}
		}
		if err := writer.FinishEntry(hh.Size); err != nil {
			return err
		}
		summary.EntriesWritten++
		summary.BytesWritten += hh.Size
	}
	return nil
}

func ensureRWDir(root *rwNode, p string) {
	for _, part := range splitClean(p) {
		child, ok := root.children[part]
		if !ok || child.children == nil {
			child = newRWDir()
			root.children[part] = child
		}
		root = child
	}
}

func insertRWLeaf(root *rwNode, p string, leaf *rwLeaf) {
	parts := splitClean(p)
	if len(parts) == 0 {
		return
	}
	for _, part := range parts[:len(parts)-1] {
		child, ok := root.children[part]
		if !ok || child.children == nil {
			child = newRWDir()
			root.children[part] = child
		}
		root = child
	}
	root.children[parts[len(parts)-1]] = &rwNode{leaf: leaf}
}

// BufferIfNeeded returns r unchanged if it already satisfies seeker;
// otherwise it buffers r fully into memory first.
func BufferIfNeeded(r io.Reader) (seeker, error) {
	if s, ok := r.(seeker); ok {
		return s, nil
	}
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, wrapIO(err)
	}
	return bytes.NewReader(data), nil
}
