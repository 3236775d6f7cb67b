// Package fury is the top-level facade over the map codec, the
// MetaString codec, and their shared collaborators (reference
// resolver, class resolver, generics stack). It wires those pieces
// into one Fury instance per the policy in a Config, the way a
// recordio.Writer is built from a recordio.WriterOpts.
package fury

import "github.com/graildata/fury/metastring"

// Config is the immutable policy a Fury instance is built from.
// Mirrors recordio.WriterOpts' role: a small options struct consumed
// once at construction, not mutated afterward.
type Config struct {
	// TrackingRef is the global reference-tracking default passed to
	// the class resolver (spec.md §4.3).
	TrackingRef bool

	// RefTrackingExcludeTypes lists sample values whose concrete types
	// (reflect.TypeOf of each entry) opt out of TrackingRef regardless of
	// the global default.
	RefTrackingExcludeTypes []interface{}

	// MaxMapChunkEntries is not read by New or by the map codec: map
	// chunks are always capped at the wire format's 127 entries,
	// whatever this field holds.
	MaxMapChunkEntries int

	// SpecialChars overrides MetaString's LOWER_UPPER_DIGIT_SPECIAL
	// special character pair; the zero value uses
	// metastring.DefaultSpecialChars.
	SpecialChars metastring.SpecialChars

	// Compress, when non-nil, wraps the final encoded payload in a
	// compression envelope (see compress.go).
	Compress *CompressConfig
}

// CompressConfig configures the flate compression applied to a
// Fury.EncodeMapBytes payload, grounded on recordioflate.go in the
// teacher repo: a flate level (zero means flate.DefaultCompression),
// applied only when the encoded payload is at least Threshold bytes.
type CompressConfig struct {
	Level     int
	Threshold int
}

func (c Config) specialChars() metastring.SpecialChars {
	if c.SpecialChars == (metastring.SpecialChars{}) {
		return metastring.DefaultSpecialChars
	}
	return c.SpecialChars
}
