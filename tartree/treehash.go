// Package tartree implements the higher-level tar operations — extraction,
// the copy-symlinks resolver, the git-compatible tree hasher, the
// canonicalizing rewriter, the skeleton mechanism, and list — on top of
// the tarfmt streaming engine.
package tartree

import (
	"crypto/sha1"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"hash"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/msg555/ustar/tarfmt"
)

// HashAlgo selects the git object hash function used by TreeHash.
type HashAlgo string

const (
	GitSHA1   HashAlgo = "git-sha1"
	GitSHA256 HashAlgo = "git-sha256"
)

func (a HashAlgo) newHash() (hash.Hash, error) {
	switch a {
	case GitSHA1:
		return sha1.New(), nil
	case GitSHA256:
		return sha256.New(), nil
	default:
		return nil, fmt.Errorf("tartree: unknown hash algorithm %q", a)
	}
}

// treeNode is one node of the in-memory tree the hasher mirrors the
// tarball into: either a directory (Children non-nil) or a leaf.
type treeNode struct {
	children map[string]*treeNode
	mode     string
	hash     []byte
}

func newDirNode() *treeNode {
	return &treeNode{children: make(map[string]*treeNode)}
}

// TreeHashOptions configures TreeHash.
type TreeHashOptions struct {
	Algo      HashAlgo
	SkipEmpty bool
	Predicate func(*tarfmt.Header) bool
}

// TreeHash streams r, mirrors its logical file tree into memory, and
// reduces it with git's blob/tree object hash rules.
func TreeHash(r io.Reader, opts TreeHashOptions) (string, error) {
	if opts.Algo == "" {
		opts.Algo = GitSHA1
	}
	reader := tarfmt.NewReader(r)
	root := newDirNode()
	hashesByPath := make(map[string][]byte)

	for {
		h, err := reader.Next()
		if err == io.EOF {
			break
		}
		deferred := tarfmt.IsDeferred(err)
		if err != nil && !deferred {
			return "", err
		}
		if opts.Predicate != nil && !opts.Predicate(h) {
			continue
		}
		if deferred {
			return "", err
		}

		switch h.Type {
		case tarfmt.TypeDirectory:
			ensureDir(root, h.Path)
		case tarfmt.TypeSymlink:
			digest, err := blobHash(opts.Algo, strings.NewReader(h.Link), int64(len(h.Link)))
			if err != nil {
				return "", err
			}
			insertLeaf(root, h.Path, "120000", digest)
			hashesByPath[strings.TrimSuffix(h.Path, "/")] = digest
		case tarfmt.TypeFile:
			digest, err := blobHash(opts.Algo, reader, h.Size)
			if err != nil {
				return "", err
			}
			mode := "100644"
			if h.Mode&0o100 != 0 {
				mode = "100755"
			}
			insertLeaf(root, h.Path, mode, digest)
			hashesByPath[strings.TrimSuffix(h.Path, "/")] = digest
		case tarfmt.TypeHardlink:
			digest, ok := hashesByPath[strings.TrimSuffix(h.Link, "/")]
			if !ok {
				return "", &tarfmt.HardlinkUnknownTargetError{Path: h.Path, Target: h.Link}
			}
			mode := "100644"
			if h.Mode&0o100 != 0 {
				mode = "100755"
			}
			insertLeaf(root, h.Path, mode, digest)
			hashesByPath[strings.TrimSuffix(h.Path, "/")] = digest
		default:
			// chardev/blockdev/fifo/other are not representable in a git
			// tree; tree_hash simply ignores them, matching the git
			// worktree's own behavior of never storing such entries.
		}
	}

	if opts.SkipEmpty {
		pruneEmpty(root)
	}

	digest, err := hashTree(opts.Algo, root)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(digest), nil
}

func ensureDir(root *treeNode, path string) {
	parts := splitClean(path)
	node := root
	for _, part := range parts {
		child, ok := node.children[part]
		if !ok || child.children == nil {
			child = newDirNode()
			node.children[part] = child
		}
		node = child
	}
}

func insertLeaf(root *treeNode, path, mode string, digest []byte) {
	parts := splitClean(path)
	if len(parts) == 0 {
		return
	}
	node := root
	for _, part := range parts[:len(parts)-1] {
		child, ok := node.children[part]
		if !ok || child.children == nil {
			child = newDirNode()
			node.children[part] = child
		}
		node = child
	}
	node.children[parts[len(parts)-1]] = &treeNode{mode: mode, hash: digest}
}

func splitClean(path string) []string {
	path = strings.Trim(path, "/")
	if path == "" {
		return nil
	}
	return strings.Split(path, "/")
}

// pruneEmpty removes directories that (recursively) contain no files or
// symlinks, reproducing git's refusal to track empty trees.
func pruneEmpty(node *treeNode) bool {
	if node.children == nil {
		return true // leaf always counts as non-empty content
	}
	any := false
	for name, child := range node.children {
		if child.children == nil {
			any = true
			continue
		}
		if pruneEmpty(child) {
			any = true
		} else {
			delete(node.children, name)
		}
	}
	return any
}

// hashTree computes the git tree-object hash of node, recursing into
// subdirectories first.
func hashTree(algo HashAlgo, node *treeNode) ([]byte, error) {
	names := make([]string, 0, len(node.children))
	for name := range node.children {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool {
		return treeSortKey(names[i], node.children[names[i]]) < treeSortKey(names[j], node.children[names[j]])
	})

	var body strings.Builder
	for _, name := range names {
		child := node.children[name]
		if child.children != nil {
			digest, err := hashTree(algo, child)
			if err != nil {
				return nil, err
			}
			body.WriteString("40000 ")
			body.WriteString(name)
			body.WriteByte(0)
			body.Write(digest)
		} else {
			body.WriteString(child.mode)
			body.WriteByte(' ')
			body.WriteString(name)
			body.WriteByte(0)
			body.Write(child.hash)
		}
	}

	return blobHash(algo, strings.NewReader(body.String()), int64(body.Len()), "tree")
}

// treeSortKey mirrors git's directory-entry sort order: a directory's name
// sorts as though it had a trailing "/".
func treeSortKey(name string, node *treeNode) string {
	if node.children != nil {
		return name + "/"
	}
	return name
}

// blobHash computes H(kind ++ " " ++ len ++ "\0" ++ data); kind
// defaults to "blob".
func blobHash(algo HashAlgo, data io.Reader, size int64, kind ...string) ([]byte, error) {
	k := "blob"
	if len(kind) > 0 {
		k = kind[0]
	}
	h, err := algo.newHash()
	if err != nil {
		return nil, err
	}
	fmt.Fprintf(h, "%s %s\x00", k, strconv.FormatInt(size, 10))
	n, err := io.Copy(h, data)
	if err != nil {
		return nil, err
	}
	if n != size {
		return nil, fmt.Errorf("tartree: expected %d bytes of content, read %d", size, n)
	}
	return h.Sum(nil), nil
}
