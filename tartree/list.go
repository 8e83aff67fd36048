package tartree

import (
	"io"

	"github.com/msg555/ustar/tarfmt"
)

// ListEntry is what List's callback receives for one entry. Exactly one
// of Header/Raw is set, depending
// on ListOptions.Raw.
type ListEntry struct {
	// Header is the normalized entry (ListOptions.Raw == false).
	Header *tarfmt.Header
	// Raw is the uncoalesced block (ListOptions.Raw == true): a standard
	// entry header or a PAX/GNU extension header on its own.
	Raw *tarfmt.RawEntry
	// HeaderBytes is the raw header bytes (including any PAX/GNU extension
	// blocks) consumed to produce this entry, for tooling that wants to
	// inspect wire bytes the engine already normalized away.
	HeaderBytes []byte
	// Data lets the callback read this entry's data region. The callback
	// reads either none of the data or all of it; anything in between is
	// reported by List as a CallbackProtocolError.
	Data io.Reader
	// Err is set instead of Header/Raw when ListOptions.Strict is false and
	// a structural error terminated the stream early: the callback gets one
	// final notification instead of List simply returning the error. The
	// reader can't safely resume past an entry whose own size field may be
	// what's malformed, so "tolerated" here means "reported, not panicked
	// out on" rather than "skipped, and listing continues."
	Err error
}

// ListOptions configures List.
type ListOptions struct {
	// Raw, when true, surfaces every header block uncoalesced: PAX/GNU
	// extension headers are delivered to the callback as their own entries
	// instead of being merged into the standard header that follows.
	Raw bool
	// Strict, when true, makes any reader error abort the listing
	// immediately. When false, entries with a deferred error (symlink
	// attack, unknown hardlink target) are still listed, and any other
	// error ends the listing after one final callback carrying it in Err;
	// entries after that error are not listed.
	Strict bool
	// Callback is invoked once per entry in stream order. Returning an
	// error aborts the listing.
	Callback func(ListEntry) error
}

// List streams r's entries to opts.Callback without touching a filesystem.
// It enforces that the callback advances the data-region reader by
// exactly 0 or the full padded size; a violation is a CallbackProtocolError,
// since list is the one operation where a caller directly controls how
// much of the data region is consumed.
func List(r io.Reader, opts ListOptions) error {
	reader := tarfmt.NewReader(r)

	if opts.Raw {
		for {
			raw, err := reader.NextRawEntry()
			if err == io.EOF {
				return nil
			}
			if err != nil {
				if opts.Strict || opts.Callback == nil {
					return err
				}
				opts.Callback(ListEntry{Err: err}) //nolint:errcheck // one final notification; the stream is over either way
				return nil
			}
			if err := deliver(reader, opts.Callback, ListEntry{
				Raw:         raw,
				HeaderBytes: raw.HeaderBytes,
			}, ""); err != nil {
				return err
			}
		}
	}

	for {
		h, err := reader.Next()
		if err == io.EOF {
			return nil
		}
		deferred := tarfmt.IsDeferred(err)
		if err != nil && !deferred {
			if opts.Strict || opts.Callback == nil {
				return err
			}
			opts.Callback(ListEntry{Err: err}) //nolint:errcheck // one final notification; the reader can't safely resume past this
			return nil
		}
		if deferred && opts.Strict {
			return err
		}
		if err := deliver(reader, opts.Callback, ListEntry{
			Header:      h,
			HeaderBytes: reader.LastHeaderBytes(),
		}, h.Path); err != nil {
			return err
		}
	}
}

func deliver(reader *tarfmt.Reader, callback func(ListEntry) error, entry ListEntry, path string) error {
	if callback == nil {
		return nil
	}
	full := reader.PendingDataBytes()
	entry.Data = reader
	if err := callback(entry); err != nil {
		return err
	}
	remaining := reader.PendingDataBytes()
	consumed := full - remaining
	// Read stops at the end of the data and never consumes the zero padding
	// behind it, so a callback that read every data byte took the full region.
	_, dataErr := reader.Read(nil)
	allData := dataErr == io.EOF
	if consumed != 0 && consumed != full && !allData {
		return &tarfmt.CallbackProtocolError{Path: path, Expected: full, Got: consumed}
	}
	return nil
}
