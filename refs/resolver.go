// Package refs implements Fury's reference-tracking resolver: the
// write-side identity-to-id map and read-side id-to-object array that let
// the map codec (and any future collection codec) avoid serializing the
// same referenced object twice.
//
// The three wire flags it emits — NULL, REF, NOT_NULL_VALUE — are shared
// by every codec that participates in reference tracking; mapcodec reads
// and writes them directly via the Flag constants below.
package refs

import (
	"reflect"

	"github.com/graildata/fury/buffer"
	"github.com/graildata/fury/ferrors"
)

// Flag is one of the three wire markers a tracked value is prefixed with.
type Flag byte

const (
	// Null marks a nil value; no payload follows.
	Null Flag = 0
	// Ref marks a previously-seen value; a varint referent id follows.
	Ref Flag = 1
	// NotNullValue marks a new, non-null value; its encoded payload
	// follows, and (on the write side) the value is recorded under a
	// fresh id for any later occurrence.
	NotNullValue Flag = 2
)

// Action classifies the result of TryPreserveRefID on the read side.
type Action int

const (
	// ActionNull means the wire held a Null flag; there is no payload and
	// no id to track.
	ActionNull Action = iota
	// ActionRef means the wire held a Ref flag; Object is the previously
	// decoded value referenced by Id, and the caller should not decode a
	// payload.
	ActionRef
	// ActionValue means the wire held a NotNullValue flag; the caller
	// must decode the payload and then call SetReadObject(Id, payload)
	// so later Ref occurrences resolve to it.
	ActionValue
)

// Resolver assigns and resolves reference ids for one serialization call.
// It is not safe for concurrent use; a Fury instance that serializes
// concurrently must give each goroutine its own Resolver (see fury.Pool).
type Resolver struct {
	// identity map for pointer-like kinds (Ptr, Map, Slice, Chan, Func),
	// keyed by their runtime address.
	writeIdentity map[uintptr]int
	// value map for everything else (keyed by ordinary Go equality —
	// there is no narrower notion of "identity" for e.g. strings/ints).
	writeValue map[interface{}]int
	nextWriteID int

	readObjects []interface{}
}

// New returns a Resolver ready to track references for a single
// serialization call.
func New() *Resolver {
	return &Resolver{
		writeIdentity: make(map[uintptr]int),
		writeValue:    make(map[interface{}]int),
	}
}

// Reset clears all per-call state so the Resolver can be reused for
// another serialization call without reallocating its maps/slices.
func (r *Resolver) Reset() {
	for k := range r.writeIdentity {
		delete(r.writeIdentity, k)
	}
	for k := range r.writeValue {
		delete(r.writeValue, k)
	}
	r.nextWriteID = 0
	r.readObjects = r.readObjects[:0]
}

// identityKey returns the key to track obj's write-side id under, and
// whether obj can be tracked at all (false for non-comparable value
// types, which are never tracked and always re-serialized in full).
func identityKey(obj interface{}) (ptrKey uintptr, valKey interface{}, isPtr, trackable bool) {
	v := reflect.ValueOf(obj)
	switch v.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Slice, reflect.Chan, reflect.Func:
		if v.IsNil() {
			return 0, nil, false, false
		}
		return v.Pointer(), nil, true, true
	default:
		// A non-comparable value type (e.g. a struct with slice fields)
		// cannot serve as a map key; fall back to "not trackable".
		if !v.Type().Comparable() {
			return 0, nil, false, false
		}
		return 0, obj, false, true
	}
}

// WriteNullFlag writes Null and returns true iff obj is nil. Otherwise it
// writes nothing and returns false, leaving the caller to decide what to
// write next (spec.md §4.2).
func (r *Resolver) WriteNullFlag(buf *buffer.Buffer, obj interface{}) bool {
	if obj == nil {
		buf.WriteByte(byte(Null))
		return true
	}
	return false
}

// WriteRefOrNull writes Null for a nil obj, Ref+id for an already-seen
// obj, or NotNullValue for a new obj (recording it under a fresh id so
// later occurrences can be written as Ref). It returns true iff the
// caller's payload write should be skipped (Null or Ref); false means the
// caller must now write obj's payload.
func (r *Resolver) WriteRefOrNull(buf *buffer.Buffer, obj interface{}) bool {
	if obj == nil {
		buf.WriteByte(byte(Null))
		return true
	}
	ptrKey, valKey, isPtr, trackable := identityKey(obj)
	if !trackable {
		buf.WriteByte(byte(NotNullValue))
		return false
	}
	if isPtr {
		if id, ok := r.writeIdentity[ptrKey]; ok {
			buf.WriteByte(byte(Ref))
			buf.WriteVarUint32Small7(uint32(id))
			return true
		}
		id := r.nextWriteID
		r.nextWriteID++
		r.writeIdentity[ptrKey] = id
		buf.WriteByte(byte(NotNullValue))
		return false
	}
	if id, ok := r.writeValue[valKey]; ok {
		buf.WriteByte(byte(Ref))
		buf.WriteVarUint32Small7(uint32(id))
		return true
	}
	id := r.nextWriteID
	r.nextWriteID++
	r.writeValue[valKey] = id
	buf.WriteByte(byte(NotNullValue))
	return false
}

// TryPreserveRefID reads the next reference flag from buf and reports
// which Action the caller must take. For ActionValue, the caller decodes
// the payload itself and must call SetReadObject(id, value) before
// returning, so that a later Ref to the same id resolves correctly.
func (r *Resolver) TryPreserveRefID(buf *buffer.Buffer) (action Action, id int, obj interface{}, err error) {
	flagByte, err := buf.ReadByte()
	if err != nil {
		return 0, 0, nil, err
	}
	switch Flag(flagByte) {
	case Null:
		return ActionNull, -1, nil, nil
	case Ref:
		refID, err := buf.ReadVarUint32Small7()
		if err != nil {
			return 0, 0, nil, err
		}
		if int(refID) >= len(r.readObjects) {
			return 0, 0, nil, ferrors.E(ferrors.ProtocolMismatch, "refs: ref id out of range")
		}
		return ActionRef, int(refID), r.readObjects[refID], nil
	case NotNullValue:
		id := len(r.readObjects)
		r.readObjects = append(r.readObjects, nil)
		return ActionValue, id, nil, nil
	default:
		return 0, 0, nil, ferrors.E(ferrors.ProtocolMismatch, "refs: bad flag byte")
	}
}

// SetReadObject binds a reference id to the value it was decoded as. It
// must be called exactly once for every ActionValue id returned by
// TryPreserveRefID.
func (r *Resolver) SetReadObject(id int, obj interface{}) {
	r.readObjects[id] = obj
}

// GetReadObject returns the value previously bound to id.
func (r *Resolver) GetReadObject(id int) interface{} {
	return r.readObjects[id]
}
