// Package mapcodec implements Fury's chunk-framed map wire format
// (spec.md §4.5-§4.6): a single pass over a map's entries that groups
// runs of same-typed, non-null keys/values into chunks sharing a
// back-patched two-byte prelude (chunk size, header), closes the chunk and
// opens a new one when its keys or values stop being of one type, and
// gives up on chunking entirely (the "unchunked tail") once a single entry
// diverges on both sides at once.
package mapcodec

// Header is the six-bit flag byte that precedes every chunk's entries,
// back-patched once the chunk's contents (and therefore its null/
// homogeneity state) are fully known.
type Header byte

const (
	TrackingKeyRef   Header = 1 << 0
	KeyHasNull       Header = 1 << 1
	KeyNotSameType   Header = 1 << 2
	TrackingValueRef Header = 1 << 3
	ValueHasNull     Header = 1 << 4
	ValueNotSameType Header = 1 << 5
)

func (h Header) has(bit Header) bool { return h&bit != 0 }
