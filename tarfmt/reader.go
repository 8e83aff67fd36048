package tarfmt

import (
	"bytes"
	"io"
	"strconv"
)

// IOBufferSize is the default scratch-buffer size used when discarding
// unread data, chosen to benefit from transparent huge pages where
// available.
const IOBufferSize = 2 << 20 // 2 MiB

// Reader streams logical headers out of a ustar/PAX/GNU byte source.
//
// A Reader owns the known-path map and PAX globals map for the duration of
// one streaming pass: neither is safe to share across concurrent
// passes, matching the single-threaded, cooperative scheduling model this
// engine assumes throughout.
type Reader struct {
	r       io.Reader
	buf     []byte
	known   *KnownPaths
	globals map[string]string
	tee     io.Writer

	curSize     int64 // bytes of entry data not yet Read
	pendingSkip int64 // bytes (data + pad) not yet consumed from the stream
	done        bool
	err         error

	headerBuf bytes.Buffer // raw header bytes consumed for the entry Next() just returned
}

// NewReader returns a Reader that streams headers from r.
func NewReader(r io.Reader) *Reader {
	return &Reader{
		r:       r,
		buf:     make([]byte, IOBufferSize),
		known:   NewKnownPaths(),
		globals: make(map[string]string),
	}
}

// SetTee arms the skeleton mechanism: every raw header block Next
// consumes, including the final end-of-archive block, is copied to w
// verbatim, as are the data regions of PAX and GNU extension headers. Entry
// data regions are mirrored to w as zeros of the same length.
func (r *Reader) SetTee(w io.Writer) {
	r.tee = w
}

// PendingDataBytes reports how many bytes of the current entry's data
// region (including padding) have not yet been consumed via Read. List
// uses this immediately before and after its callback runs to enforce
// that the callback advanced the stream by exactly 0 or the full region.
func (r *Reader) PendingDataBytes() int64 {
	return r.pendingSkip
}

// KnownPaths returns the reader's running known-path map. Callers
// (e.g. the copy-symlinks resolver) may inspect it once the stream has
// been fully consumed.
func (r *Reader) KnownPaths() *KnownPaths {
	return r.known
}

// Globals returns the reader's running PAX global-header map,
// keyed by raw PAX key. Used by the skeleton mechanism to detect its
// marker record and by List's raw mode for introspection.
func (r *Reader) Globals() map[string]string {
	return r.globals
}

// LastHeaderBytes returns a copy of the raw header bytes (standard block
// plus any PAX/GNU extension blocks, excluding PAX global headers) that
// were consumed to produce the Header most recently returned by Next.
// Used by the skeleton replay path and List's raw-header-bytes callback.
func (r *Reader) LastHeaderBytes() []byte {
	return append([]byte(nil), r.headerBuf.Bytes()...)
}

// Read reads from the current entry's data region. It returns io.EOF once
// the region's data bytes have been delivered (none for a hardlink, even
// though its Header.Size reports the target's size); callers need not read to EOF before
// calling Next again, which discards whatever remains (the stricter
// all-or-nothing rule is enforced explicitly by the List callback path,
// not here).
func (r *Reader) Read(p []byte) (int, error) {
	if r.curSize <= 0 {
		return 0, io.EOF
	}
	if int64(len(p)) > r.curSize {
		p = p[:r.curSize]
	}
	n, err := io.ReadFull(r.r, p)
	r.curSize -= int64(n)
	r.pendingSkip -= int64(n)
	r.teeZeros(int64(n))
	if err != nil {
		return n, wrapIO(err)
	}
	return n, nil
}

func (r *Reader) discard(n int64) error {
	for n > 0 {
		chunk := n
		if chunk > int64(len(r.buf)) {
			chunk = int64(len(r.buf))
		}
		m, err := io.ReadFull(r.r, r.buf[:chunk])
		n -= int64(m)
		r.teeZeros(int64(m))
		if err != nil {
			return wrapIO(err)
		}
	}
	return nil
}

// teeZeros mirrors n bytes of a file entry's data region to the skeleton
// tee as zeros rather than the real content, so the skeleton stream stays
// a structurally valid, correctly-sized tarball.
func (r *Reader) teeZeros(n int64) {
	if r.tee == nil || n <= 0 {
		return
	}
	var zeros [blockSize]byte
	for n > 0 {
		chunk := n
		if chunk > blockSize {
			chunk = blockSize
		}
		r.tee.Write(zeros[:chunk]) //nolint:errcheck // best-effort mirror; real I/O errors surface via the primary reader/writer
		n -= chunk
	}
}

func (r *Reader) readBlock() (*rawBlock, error) {
	var blk rawBlock
	var err error
	if r.tee != nil {
		_, err = io.ReadFull(io.TeeReader(r.r, r.tee), blk[:])
	} else {
		_, err = io.ReadFull(r.r, blk[:])
	}
	r.headerBuf.Write(blk[:])
	return &blk, err
}

// readDataBuffered reads a header-metadata data region (PAX, GNU long
// name/link) fully into memory, trimming the 512-byte padding.
func (r *Reader) readDataBuffered(size int64) ([]byte, error) {
	padded := roundUp512(size)
	buf := make([]byte, padded)
	n, err := io.ReadFull(r.r, buf)
	if r.tee != nil {
		r.tee.Write(buf[:n])
	}
	r.headerBuf.Write(buf[:n])
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, wrapIO(err)
	}
	return buf[:size], nil
}

func verifyMagic(blk *rawBlock) error {
	magic := string(blk.field(magicOffset, magicSize))
	if magic != magicUSTAR && magic != magicUSTARSpace {
		return &NotATarballError{Reason: "unrecognized magic"}
	}
	version := blk.field(versionOffset, versionSize)
	for _, c := range version {
		if c != '0' && c != ' ' {
			return &NotATarballError{Reason: "unrecognized version"}
		}
	}
	return nil
}

func fieldString(b []byte) string {
	n := indexByte(b, 0)
	if n < 0 {
		n = len(b)
	}
	return string(b[:n])
}

// Next advances to the next logical entry, applying PAX/GNU extensions,
// path/link normalization, hardlink resolution, and symlink-prefix attack
// detection, in that order.
//
// Next returns io.EOF once the end-of-archive marker (or a clean end of
// stream) is reached. If the returned error satisfies IsDeferred, the
// returned Header is still valid: a predicate gets the chance to exclude
// the entry before the caller treats the error as fatal.
func (r *Reader) Next() (*Header, error) {
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

	var pendingPath, pendingLink string
	var havePath, haveLink bool
	paxOverrides := make(map[string]string)
	sawExtension := false

	for {
		blk, err := r.readBlock()
		if err != nil {
			if err == io.EOF && !sawExtension {
				r.err = io.EOF
				return nil, io.EOF
			}
			r.err = io.ErrUnexpectedEOF
			return nil, io.ErrUnexpectedEOF
		}

		if blk.isZero() {
			if sawExtension {
				r.err = &HeaderMalformedError{Field: "typeflag", Cause: "end-of-archive marker inside extension sequence"}
				return nil, r.err
			}
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
		switch typeflag {
		case flagPAXGlobal, flagPAXLocal:
			sawExtension = true
			size, err := parseSizeField("size", blk.field(sizeOffset, sizeSize))
			if err != nil {
				r.err = err
				return nil, err
			}
			data, err := r.readDataBuffered(size)
			if err != nil {
				r.err = err
				return nil, err
			}
			records, err := parsePAXRecords(data)
			if err != nil {
				r.err = err
				return nil, err
			}
			if typeflag == flagPAXGlobal {
				for k, v := range records {
					r.globals[k] = v
				}
				// A global header's own bytes never belong to the entry that
				// follows it: keep LastHeaderBytes scoped to that entry alone
				// (matters for the skeleton magic marker).
				r.headerBuf.Reset()
			} else {
				for k, v := range records {
					paxOverrides[k] = v
				}
			}
			continue

		case flagGNULongName, flagGNULongLink:
			sawExtension = true
			size, err := parseSizeField("size", blk.field(sizeOffset, sizeSize))
			if err != nil {
				r.err = err
				return nil, err
			}
			data, err := r.readDataBuffered(size)
			if err != nil {
				r.err = err
				return nil, err
			}
			value := fieldString(data)
			if typeflag == flagGNULongName {
				pendingPath, havePath = value, true
			} else {
				pendingLink, haveLink = value, true
			}
			continue

		default:
			h, deferredErr, err := r.buildHeader(blk, pendingPath, pendingLink, havePath, haveLink, paxOverrides)
			if err != nil {
				r.err = err
				return nil, err
			}
			return h, deferredErr
		}
	}
}

func (r *Reader) buildHeader(blk *rawBlock, pendingPath, pendingLink string, havePath, haveLink bool, paxOverrides map[string]string) (*Header, error, error) {
	name := fieldString(blk.field(nameOffset, nameSize))
	prefix := fieldString(blk.field(prefixOffset, prefixSize))
	if prefix != "" {
		name = prefix + "/" + name
	}
	link := fieldString(blk.field(linknameOffset, linknameSize))

	size, err := parseSizeField("size", blk.field(sizeOffset, sizeSize))
	if err != nil {
		return nil, nil, err
	}

	applyRecognized := func(records map[string]string) {
		if v, ok := records[paxKeyPath]; ok {
			name = v
		}
		if v, ok := records[paxKeyLinkpath]; ok {
			link = v
		}
		if v, ok := records[paxKeySize]; ok {
			if sz, err := strconv.ParseInt(v, 10, 64); err == nil {
				size = sz
			}
		}
	}
	applyRecognized(r.globals)
	applyRecognized(paxOverrides)
	if havePath {
		name = pendingPath
	}
	if haveLink {
		link = pendingLink
	}

	modeRaw, err := parseOctalField(blk.field(modeOffset, modeSize))
	if err != nil {
		return nil, nil, &HeaderMalformedError{Field: "mode", Cause: err.Error()}
	}
	if modeRaw < 0 || modeRaw > 0xFFFF {
		return nil, nil, &HeaderMalformedError{Field: "mode", Cause: "mode exceeds 16 bits"}
	}

	typeflag := blk[typeflagOffset]
	etype, other := entryTypeFromFlag(typeflag)

	h := &Header{
		Path:      normalizePath(name),
		Type:      etype,
		OtherFlag: other,
		Mode:      uint16(modeRaw),
		Size:      size,
		Link:      collapseSlashes(link),
	}

	if err := checkHeader(h); err != nil {
		return nil, nil, err
	}
	// The data region follows the size on the wire, before a hardlink's
	// Size is replaced with its target's below.
	r.curSize = h.Size
	r.pendingSkip = roundUp512(h.Size)
	if h.Type == TypeHardlink {
		// checkHeader has already rejected any ".." component, so it is
		// now safe to fold out "." components for known-path lookup.
		h.Link = normalizePath(h.Link)
	}

	var deferredErr error
	if h.Type == TypeHardlink {
		target := h.Link
		info, ok := r.known.Lookup(target)
		if !ok || info.Kind != PathFile {
			deferredErr = &HardlinkUnknownTargetError{Path: h.Path, Target: target}
		} else {
			h.Size = info.Size
		}
	}

	if prefix, ok := r.known.SymlinkPrefix(h.Path); ok && deferredErr == nil {
		deferredErr = &SymlinkAttackError{Path: h.Path, Prefix: prefix}
	}

	switch h.Type {
	case TypeDirectory:
		r.known.Record(h.Path, PathInfo{Kind: PathDirectory})
	case TypeSymlink:
		r.known.Record(h.Path, PathInfo{Kind: PathSymlink, Target: h.Link})
	case TypeFile:
		r.known.Record(h.Path, PathInfo{Kind: PathFile, Size: h.Size})
	case TypeHardlink:
		r.known.Record(h.Path, PathInfo{Kind: PathFile, Size: h.Size})
	default:
		r.known.Record(h.Path, PathInfo{Kind: PathOther})
	}

	return h, deferredErr, nil
}

func collapseSlashes(p string) string {
	out := make([]byte, 0, len(p))
	prevSlash := false
	for i := 0; i < len(p); i++ {
		c := p[i]
		if c == '\\' {
			c = '/'
		}
		if c == '/' && prevSlash {
			continue
		}
		prevSlash = c == '/'
		out = append(out, c)
	}
	return string(out)
}
