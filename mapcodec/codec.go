package mapcodec

import (
	"reflect"

	"github.com/graildata/fury/classes"
	"github.com/graildata/fury/ferrors"
	"github.com/graildata/fury/generic"
	"github.com/graildata/fury/refs"
)

// Options configures one WriteMap/ReadMap call. KeySerializer and
// ValueSerializer, when set, are one-shot per spec.md §4.5: the caller
// is expected to construct a fresh Options (or clear these fields)
// before recursing into a nested map field, so a user-supplied
// serializer never leaks into an unrelated call.
type Options struct {
	TrackKeyRef   bool
	TrackValueRef bool
	KeyType       generic.Type
	ValueType     generic.Type

	// KeySerializer/ValueSerializer, when non-nil, replace the
	// monomorphic path for that side regardless of KeyType/ValueType
	// (spec.md §4.5's "when user supplies keySer/valueSer"). The
	// matching WritesRef flag mirrors the serializer's own
	// WritesReferences, since a bare classes.Serializer carries no
	// such flag of its own.
	KeySerializer           classes.Serializer
	KeySerializerWritesRef  bool
	ValueSerializer         classes.Serializer
	ValueSerializerWritesRef bool
}

// Codec wires together the three collaborators a map write/read needs:
// the reference resolver, the class resolver, and the generics stack.
// A Codec holds no per-call state itself; all of that lives in the
// local chunkState built fresh by each WriteMap/ReadMap call, so one
// Codec can serialize nested maps by recursing directly.
type Codec struct {
	Refs     *refs.Resolver
	Classes  *classes.Resolver
	Generics *generic.Stack
}

// New returns a Codec over the given collaborators.
func New(r *refs.Resolver, c *classes.Resolver, g *generic.Stack) *Codec {
	return &Codec{Refs: r, Classes: c, Generics: g}
}

// isNilValue reports whether v is a nil interface, or an interface
// holding a typed nil (pointer, map, slice, chan, func, or interface) —
// the general notion of "this map key/value is absent" that a plain
// `v == nil` comparison misses for typed nils.
func isNilValue(v interface{}) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func, reflect.Interface:
		return rv.IsNil()
	default:
		return false
	}
}

// missingConstructor is returned when ReadMap is asked to build a map
// of an unspecified (nil) reflect.Type.
func missingConstructor() error {
	return ferrors.E(ferrors.MissingConstructor, "mapcodec: no map type given to construct")
}
