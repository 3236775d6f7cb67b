package fury

import (
	"reflect"

	"github.com/graildata/fury/buffer"
	"github.com/graildata/fury/classes"
	"github.com/graildata/fury/generic"
	"github.com/graildata/fury/mapcodec"
	"github.com/graildata/fury/metastring"
	"github.com/graildata/fury/refs"
)

// Fury wires one Config's policy to the resolvers and codecs a single
// serialization call needs. It is not safe for concurrent use (spec.md
// §5); concurrent callers should use a Pool, which hands each
// goroutine its own Fury built from the same Config/Classes.
type Fury struct {
	cfg      Config
	Classes  *classes.Resolver
	refs     *refs.Resolver
	generics *generic.Stack
	codec    *mapcodec.Codec
}

// New builds a Fury with its own class registry, pre-populated with
// classes.RegisterBuiltins and cfg.RefTrackingExcludeTypes.
func New(cfg Config) *Fury {
	cr := classes.NewResolver(cfg.TrackingRef)
	classes.RegisterBuiltins(cr)
	return newWithClasses(cfg, cr)
}

// newWithClasses builds a Fury sharing an already-populated class
// registry, used by Pool so every worker resolves the same class ids
// without re-registering builtins per goroutine.
func newWithClasses(cfg Config, classResolver *classes.Resolver) *Fury {
	for _, t := range cfg.RefTrackingExcludeTypes {
		classResolver.SetRefTrackingExcluded(reflect.TypeOf(t), true)
	}
	rr := refs.New()
	gs := generic.NewStack()
	return &Fury{
		cfg:      cfg,
		Classes:  classResolver,
		refs:     rr,
		generics: gs,
		codec:    mapcodec.New(rr, classResolver, gs),
	}
}

// Reset clears per-call state (the reference resolver) so this Fury
// can be reused for another independent top-level call without
// reallocating. It must not be called while reusing a Fury across
// nested/recursive calls within the same serialization.
func (f *Fury) Reset() {
	f.refs.Reset()
}

// MapOptions builds mapcodec.Options for a map with the given declared
// key/value types, applying this Fury's Config.TrackingRef policy
// combined with each type's own opt-out (classes.Resolver.NeedToWriteRef).
func (f *Fury) MapOptions(kt, vt generic.Type) mapcodec.Options {
	opts := mapcodec.Options{KeyType: kt, ValueType: vt}
	if kt.Concrete != nil {
		opts.TrackKeyRef = f.Classes.NeedToWriteRef(kt.Concrete)
	} else {
		opts.TrackKeyRef = f.cfg.TrackingRef
	}
	if vt.Concrete != nil {
		opts.TrackValueRef = f.Classes.NeedToWriteRef(vt.Concrete)
	} else {
		opts.TrackValueRef = f.cfg.TrackingRef
	}
	return opts
}

// EncodeMap writes m onto buf using the declared key/value types kt,
// vt (use generic.Dynamic() for a bare interface{}-typed map).
func (f *Fury) EncodeMap(buf *buffer.Buffer, m interface{}, kt, vt generic.Type) error {
	return f.codec.WriteMap(buf, m, f.MapOptions(kt, vt))
}

// DecodeMap reads a map of the given concrete Go map type from buf.
func (f *Fury) DecodeMap(buf *buffer.Buffer, mapType reflect.Type, kt, vt generic.Type) (interface{}, error) {
	return f.codec.ReadMap(buf, mapType, f.MapOptions(kt, vt))
}

// EncodeMetaString encodes s using this Fury's configured special
// characters.
func (f *Fury) EncodeMetaString(s string) (metastring.MetaString, error) {
	return metastring.Encode(s, f.cfg.specialChars())
}

// DecodeMetaString decodes payload (numBits significant bits packed with
// enc) back to its original string using this Fury's configured special
// characters.
func (f *Fury) DecodeMetaString(payload []byte, enc metastring.Encoding, numBits int) (string, error) {
	return metastring.Decode(payload, enc, numBits, f.cfg.specialChars())
}

// EncodeMapBytes is EncodeMap into a private buffer, returning the wire
// bytes with Config.Compress applied (see compress.go): the envelope a
// caller would hand to a transport or store on disk, as opposed to
// EncodeMap's in-place buffer append used when composing a larger message.
func (f *Fury) EncodeMapBytes(m interface{}, kt, vt generic.Type) ([]byte, error) {
	buf := buffer.New(64)
	if err := f.EncodeMap(buf, m, kt, vt); err != nil {
		return nil, err
	}
	return maybeCompress(f.cfg.Compress, buf.Bytes())
}

// DecodeMapBytes reverses EncodeMapBytes.
func (f *Fury) DecodeMapBytes(framed []byte, mapType reflect.Type, kt, vt generic.Type) (interface{}, error) {
	payload, err := decompress(framed)
	if err != nil {
		return nil, err
	}
	return f.DecodeMap(buffer.Wrap(payload), mapType, kt, vt)
}
