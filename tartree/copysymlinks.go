package tartree

import (
	"io/fs"
	"path"
	"path/filepath"
	"strings"

	"github.com/msg555/ustar/hostfs"
	"github.com/msg555/ustar/tarfmt"
)

type resolvedLink struct {
	entryPath string // normalized tar path of the symlink entry
	target    string // normalized tar path the chain resolves to
	kind      tarfmt.PathKind
}

// resolveCopySymlinks is the copy-symlinks post-pass: every symlink
// entry extract deferred gets resolved against the known-path map and,
// where that resolves to a concrete file or directory, materialized as a
// recursive copy instead of a real symlink.
func resolveCopySymlinks(fsys hostfs.FS, root string, known *tarfmt.KnownPaths, setPerms bool, permModes map[string]fs.FileMode) error {
	var pending []resolvedLink
	known.Each(func(p string, info tarfmt.PathInfo) {
		if info.Kind != tarfmt.PathSymlink {
			return
		}
		target, kind, ok := resolveSymlinkChain(known, p, make(map[string]bool))
		if !ok {
			return // broken, cyclic, or unsafe chain: leave path absent, no error
		}
		pending = append(pending, resolvedLink{entryPath: p, target: target, kind: kind})
	})

	for len(pending) > 0 {
		progressed := false
		for i, e := range pending {
			if isAncestorPending(e.entryPath, pending, i) {
				continue
			}
			srcPath, err := systemPath(root, e.target)
			if err != nil {
				pending = removeAt(pending, i)
				progressed = true
				break
			}
			dstPath, err := systemPath(root, e.entryPath)
			if err != nil {
				pending = removeAt(pending, i)
				progressed = true
				break
			}
			if err := copyRecursive(fsys, srcPath, dstPath, setPerms, permModes); err != nil {
				return err
			}
			pending = removeAt(pending, i)
			progressed = true
			break
		}
		if !progressed {
			break // every remaining link mutually prefixes another: a cycle, drop silently
		}
	}
	return nil
}

func removeAt(s []resolvedLink, i int) []resolvedLink {
	out := make([]resolvedLink, 0, len(s)-1)
	out = append(out, s[:i]...)
	out = append(out, s[i+1:]...)
	return out
}

// isAncestorPending reports whether some other pending link's destination
// is a strict ancestor directory of entryPath. extractEntry's forward-order
// pass can leave an ancestor directory removed and recreated as it juggles
// a real symlink entry against a descendant that needed it as a plain
// directory in the meantime (extract.go's ensureDirPath/RemoveAll dance);
// a descendant must wait until every pending ancestor is materialized
// before copyRecursive can trust the destination tree under it.
func isAncestorPending(entryPath string, pending []resolvedLink, skip int) bool {
	for j, other := range pending {
		if j == skip {
			continue
		}
		if strings.HasPrefix(entryPath, other.entryPath+"/") {
			return true
		}
	}
	return false
}

// resolveSymlinkChain resolves the known-path entry at p, chasing its
// target (and the target's target, and so on) if p is itself a symlink.
// Applies the rejection rules for absolute targets, root-escaping
// targets, and self-prefixing targets; non-directory targets written with
// a trailing "/" or "." are all treated as broken, same as an actual
// cycle.
func resolveSymlinkChain(known *tarfmt.KnownPaths, p string, visiting map[string]bool) (string, tarfmt.PathKind, bool) {
	if visiting[p] {
		return "", 0, false
	}
	visiting[p] = true

	info, ok := known.Lookup(p)
	if !ok {
		return "", 0, false
	}
	if info.Kind != tarfmt.PathSymlink {
		return p, info.Kind, true
	}

	target := info.Target
	if strings.HasPrefix(target, "/") {
		return "", 0, false
	}
	wantDir := strings.HasSuffix(target, "/") || target == "." || strings.HasSuffix(target, "/.")

	parent := path.Dir(p)
	if parent == "." {
		parent = ""
	}
	depth := 0
	for _, part := range strings.Split(parent+"/"+target, "/") {
		switch part {
		case "", ".":
		case "..":
			depth--
			if depth < 0 {
				return "", 0, false // root-escaping target
			}
		default:
			depth++
		}
	}
	joined := normalizeJoin(parent, target)
	if joined == p || strings.HasPrefix(p, joined+"/") {
		return "", 0, false // self-prefixing target
	}

	finalPath, kind, ok := resolveComponents(known, joined, visiting)
	if !ok {
		return "", 0, false
	}
	if wantDir && kind != tarfmt.PathDirectory {
		return "", 0, false
	}
	return finalPath, kind, true
}

// resolveComponents walks target one path component at a time, resolving
// each intermediate component that the known-path map records as a
// symlink before descending into the next — a target like "lib/foo.so"
// where "lib" is itself a symlink to "usr/lib" must land on
// "usr/lib/foo.so", not fail just because "lib/foo.so" was never a
// literal known path.
func resolveComponents(known *tarfmt.KnownPaths, target string, visiting map[string]bool) (string, tarfmt.PathKind, bool) {
	parts := splitNonEmpty(target)
	if len(parts) == 0 {
		return resolveSymlinkChain(known, "", visiting)
	}

	resolved := ""
	kind := tarfmt.PathDirectory
	for _, part := range parts {
		if kind != tarfmt.PathDirectory {
			return "", 0, false // can't descend through a non-directory component
		}
		next := part
		if resolved != "" {
			next = resolved + "/" + part
		}
		finalPath, k, ok := resolveSymlinkChain(known, next, visiting)
		if !ok {
			return "", 0, false
		}
		resolved, kind = finalPath, k
	}
	return resolved, kind, true
}

func splitNonEmpty(target string) []string {
	var parts []string
	for _, part := range strings.Split(target, "/") {
		if part != "" && part != "." {
			parts = append(parts, part)
		}
	}
	return parts
}

func normalizeJoin(parent, target string) string {
	joined := target
	if parent != "" {
		joined = parent + "/" + target
	}
	clean := path.Clean("/" + joined)
	clean = strings.TrimPrefix(clean, "/")
	if clean == "." {
		clean = ""
	}
	return clean
}

// copyRecursive copies src to dst, descending into directories, for
// copy-symlinks materialization.
func copyRecursive(fsys hostfs.FS, src, dst string, setPerms bool, permModes map[string]fs.FileMode) error {
	info, err := fsys.Stat(src)
	if err != nil {
		return err
	}
	if info.IsDir {
		if err := fsys.MkdirAll(dst); err != nil {
			return err
		}
		names, err := fsys.ReadDir(src)
		if err != nil {
			return err
		}
		for _, name := range names {
			if err := copyRecursive(fsys, filepath.Join(src, name), filepath.Join(dst, name), setPerms, permModes); err != nil {
				return err
			}
		}
		return nil
	}
	if err := copyFile(fsys, src, dst, info.Mode.Perm()); err != nil {
		return err
	}
	if setPerms {
		permModes[dst] = info.Mode.Perm()
	}
	return nil
}
