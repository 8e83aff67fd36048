package tarfmt

import "io"

// RawEntry is one raw header block surfaced by NextRawEntry without PAX/GNU
// coalescing: a standard entry header, or an extension header (x/g/L/K) in
// its own right.
type RawEntry struct {
	// Typeflag is the raw typeflag byte of this block.
	Typeflag byte
	// Size is this block's own size field, before any PAX/GNU override is
	// applied to a later block.
	Size int64
	// HeaderBytes is the raw 512-byte block consumed to produce this entry.
	HeaderBytes []byte
}

// NextRawEntry reads the next header block as-is, without merging PAX/GNU
// extension headers into the standard header that follows them. Callers
// that need normalized Headers should use Next instead; NextRawEntry is
// for tooling that wants to see the wire bytes exactly as the stream
// presents them.
func (r *Reader) NextRawEntry() (*RawEntry, error) {
	if r.err != nil {
		return nil, r.err
	}
	if r.pendingSkip > 0 {
		if err := r.discard(r.pendingSkip); err != nil {
			r.err = err
			return nil, err
		}
		r.pendingSkip = 0
	}
	r.headerBuf.Reset()

	blk, err := r.readBlock()
	if err != nil {
		if err == io.EOF {
			r.err = io.EOF
			return nil, io.EOF
		}
		r.err = io.ErrUnexpectedEOF
		return nil, io.ErrUnexpectedEOF
	}
	if blk.isZero() {
		io.Copy(io.Discard, r.r) //nolint:errcheck // drain but report no more entries
		r.err = io.EOF
		return nil, io.EOF
	}
	if err := verifyMagic(blk); err != nil {
		r.err = err
		return nil, err
	}
	if err := blk.verifyChecksum(); err != nil {
		r.err = err
		return nil, err
	}

	typeflag := blk[typeflagOffset]
	size, err := parseSizeField("size", blk.field(sizeOffset, sizeSize))
	if err != nil {
		r.err = err
		return nil, err
	}

	r.curSize = size
	r.pendingSkip = roundUp512(size)

	return &RawEntry{
		Typeflag:    typeflag,
		Size:        size,
		HeaderBytes: r.LastHeaderBytes(),
	}, nil
}
