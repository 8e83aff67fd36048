package tartree

import (
	"io"

	"github.com/msg555/ustar/hostfs"
	"github.com/msg555/ustar/tarfmt"
)

// ReplaySkeleton reconstructs an original tarball from a skeleton produced
// by Extract's Skeleton option, pulling file content back from root. Each
// entry's header bytes (its standard block plus PAX/GNU extension blocks)
// are replayed verbatim and the zero-filled data regions are substituted
// with the real file content found on disk. PAX global headers, including
// any the original tarball carried, are not replayed, and the output always
// ends with two zero blocks, so bytes the original had after its first
// end-of-archive block are not reproduced.
func ReplaySkeleton(skeleton io.Reader, root string, fsys hostfs.FS, w io.Writer) error {
	if fsys == nil {
		fsys = hostfs.Local{}
	}

	reader := tarfmt.NewReader(skeleton)
	checkedMagic := false

	for {
		h, err := reader.Next()
		if err == io.EOF {
			break
		}
		if err != nil && !tarfmt.IsDeferred(err) {
			return err
		}

		if !checkedMagic {
			if !tarfmt.IsSkeletonMagic(reader.Globals()) {
				return &NotASkeletonError{}
			}
			checkedMagic = true
		}

		if _, werr := w.Write(reader.LastHeaderBytes()); werr != nil {
			return wrapIO(werr)
		}

		if tarfmt.IsDeferred(err) || h.Type != tarfmt.TypeFile || h.Size <= 0 {
			continue
		}
		if err := replayFileData(fsys, root, h, w); err != nil {
			return err
		}
	}

	if !checkedMagic {
		return &NotASkeletonError{}
	}

	var zeros [512]byte
	if _, err := w.Write(zeros[:]); err != nil {
		return wrapIO(err)
	}
	if _, err := w.Write(zeros[:]); err != nil {
		return wrapIO(err)
	}
	return nil
}

func replayFileData(fsys hostfs.FS, root string, h *tarfmt.Header, w io.Writer) error {
	sysPath, err := systemPath(root, h.Path)
	if err != nil {
		return err
	}
	src, err := fsys.Open(sysPath)
	if err != nil {
		return err
	}
	defer src.Close()

	n, err := io.CopyN(w, src, h.Size)
	if err == io.EOF {
		return &ReplaySizeMismatchError{Path: h.Path, Want: h.Size, Got: n}
	}
	if err != nil {
		return wrapIO(err)
	}

	pad := (512 - h.Size%512) % 512
	if pad > 0 {
		var zeros [512]byte
		if _, err := w.Write(zeros[:pad]); err != nil {
			return wrapIO(err)
		}
	}
	return nil
}
