package tarfmt

import (
	"io"
)

// Writer emits a canonical ustar/PAX byte stream from a sequence of logical
// Headers. Every entry it writes uses the plain octal encoding where
// possible, falling back to PAX records only when a field genuinely
// doesn't fit — the definition of "canonical form" this engine targets.
type Writer struct {
	w        io.Writer
	err      error
	closed   bool
	tee      io.Writer
	portable bool
}

// NewWriter returns a Writer that emits a ustar/PAX stream to w.
func NewWriter(w io.Writer) *Writer {
	return &Writer{w: w}
}

// SetPortable arms the Windows portability check: every header's
// path is validated against Windows-illegal characters and reserved
// device names before it is encoded.
func (w *Writer) SetPortable(portable bool) {
	w.portable = portable
}

func (w *Writer) writeBlock(b []byte) error {
	if w.tee != nil {
		w.tee.Write(b) //nolint:errcheck // best-effort mirror for the skeleton mechanism
	}
	_, err := w.w.Write(b)
	if err != nil {
		return wrapIO(err)
	}
	return nil
}

// WriteHeader writes the header block(s) for one logical entry, including
// the PAX extended header its fields require, if any, and sets up the writer
// to accept exactly h.Size bytes of entry data via Write.
func (w *Writer) WriteHeader(h *Header) error {
	if w.err != nil {
		return w.err
	}
	if err := checkHeader(h); err != nil {
		w.err = err
		return err
	}
	if !h.Type.Writable() {
		return &UnsupportedEntryError{Path: h.Path, Typeflag: flagFromEntryType(h.Type, h.OtherFlag)}
	}
	if w.portable {
		if err := checkPortable(h.Path); err != nil {
			w.err = err
			return err
		}
	}

	plan, err := planPAX(h)
	if err != nil {
		w.err = err
		return err
	}

	if len(plan.records) > 0 {
		if err := w.writeExtensionHeader(h.Path, encodePAXRecords(plan.records)); err != nil {
			w.err = err
			return err
		}
	}

	var blk rawBlock
	// When the path moves to a PAX "path" record, the standard header's
	// name/prefix fields stay zeroed rather than carrying a truncated,
	// potentially misleading fallback.
	copy(blk.field(nameOffset, nameSize), plan.name)
	copy(blk.field(prefixOffset, prefixSize), plan.prefix)
	copy(blk.field(linknameOffset, linknameSize), plan.linkname)

	mode := normalizeMode(h.Type, h.Mode)
	if !formatOctalField(int64(mode), blk.field(modeOffset, modeSize)) {
		w.err = &HeaderMalformedError{Field: "mode", Cause: "mode does not fit in octal field"}
		return w.err
	}
	formatOctalField(0, blk.field(uidOffset, uidSize))
	formatOctalField(0, blk.field(gidOffset, gidSize))
	formatOctalField(0, blk.field(mtimeOffset, mtimeSize))

	if plan.useBinary {
		formatBinarySize(h.Size, blk.field(sizeOffset, sizeSize))
	} else if !formatOctalField(h.Size, blk.field(sizeOffset, sizeSize)) {
		w.err = &HeaderMalformedError{Field: "size", Cause: "size does not fit in octal field"}
		return w.err
	}

	blk[typeflagOffset] = flagFromEntryType(h.Type, h.OtherFlag)
	copy(blk.field(magicOffset, magicSize), magicUSTAR)
	copy(blk.field(versionOffset, versionSize), versionUSTAR)
	blk.setChecksum()

	if err := w.writeBlock(blk[:]); err != nil {
		w.err = err
		return err
	}
	return nil
}

// writeExtensionHeader writes one PAX local extended-header entry
// ("x" typeflag) immediately followed by its data block.
func (w *Writer) writeExtensionHeader(path string, data []byte) error {
	var blk rawBlock
	extName := paxExtensionName(path)
	copy(blk.field(nameOffset, nameSize), extName)
	formatOctalField(0o644, blk.field(modeOffset, modeSize))
	formatOctalField(0, blk.field(uidOffset, uidSize))
	formatOctalField(0, blk.field(gidOffset, gidSize))
	formatOctalField(0, blk.field(mtimeOffset, mtimeSize))
	if !formatOctalField(int64(len(data)), blk.field(sizeOffset, sizeSize)) {
		return &HeaderMalformedError{Field: "size", Cause: "pax extension data too large"}
	}
	blk[typeflagOffset] = flagPAXLocal
	copy(blk.field(magicOffset, magicSize), magicUSTAR)
	copy(blk.field(versionOffset, versionSize), versionUSTAR)
	blk.setChecksum()

	if err := w.writeBlock(blk[:]); err != nil {
		return err
	}
	return w.writeDataPadded(data)
}

// paxExtensionName mirrors the conventional PAXRecords.path of GNU/BSD tar
// implementations: "<dir>/PaxHeaders.0/<base>".
func paxExtensionName(p string) string {
	dir, base := splitPath(p)
	name := "PaxHeaders.0/" + base
	if dir != "" {
		name = dir + "/" + name
	}
	if len(name) > nameSize {
		name = name[len(name)-nameSize:]
	}
	return name
}

func splitPath(p string) (dir, base string) {
	i := len(p) - 1
	for i >= 0 && p[i] != '/' {
		i--
	}
	if i < 0 {
		return "", p
	}
	return p[:i], p[i+1:]
}

func (w *Writer) writeDataPadded(data []byte) error {
	if err := w.writeBlock(data); err != nil {
		return err
	}
	pad := roundUp512(int64(len(data))) - int64(len(data))
	if pad > 0 {
		var zeros [blockSize]byte
		if err := w.writeBlock(zeros[:pad]); err != nil {
			return err
		}
	}
	return nil
}

// Write streams entry content for the most recently written header. The
// caller must write exactly h.Size bytes across one or more calls before
// the next WriteHeader or Close.
func (w *Writer) Write(p []byte) (int, error) {
	if w.err != nil {
		return 0, w.err
	}
	if w.tee != nil {
		w.tee.Write(p) //nolint:errcheck
	}
	n, err := w.w.Write(p)
	if err != nil {
		w.err = wrapIO(err)
		return n, w.err
	}
	return n, nil
}

// FinishEntry pads the just-written entry data out to the next 512-byte
// boundary. Callers must invoke it after writing exactly h.Size bytes of
// content for a non-empty entry.
func (w *Writer) FinishEntry(size int64) error {
	pad := roundUp512(size) - size
	if pad <= 0 {
		return nil
	}
	var zeros [blockSize]byte
	return w.writeBlock(zeros[:pad])
}

// Close writes the two all-zero end-of-archive blocks. It does not
// close the underlying io.Writer.
func (w *Writer) Close() error {
	if w.closed {
		return w.err
	}
	w.closed = true
	if w.err != nil {
		return w.err
	}
	var zeros [blockSize]byte
	if err := w.writeBlock(zeros[:]); err != nil {
		w.err = err
		return err
	}
	if err := w.writeBlock(zeros[:]); err != nil {
		w.err = err
		return err
	}
	return nil
}
