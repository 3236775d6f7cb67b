// Package classes implements the narrow slice of Fury's class registry
// that the map codec depends on: mapping a concrete Go type to a
// ClassInfo (wire class id + serializer), and the reverse mapping on
// read. Class ID *assignment* and any JIT/reflection-driven
// auto-registration are out of scope (spec.md §1); this package only
// resolves types that have already been told to it via Register.
package classes

import (
	"fmt"
	"reflect"
	"sync"

	"github.com/graildata/fury/buffer"
	"github.com/graildata/fury/ferrors"
)

// Serializer is the narrow interface the map codec needs from a per-type
// serializer: encode/decode of one value's payload, with no knowledge of
// class tags or reference flags (those are handled by the caller).
type Serializer interface {
	Write(buf *buffer.Buffer, v interface{}) error
	Read(buf *buffer.Buffer) (interface{}, error)
}

// ClassInfo is the resolver's answer for a concrete runtime type: its
// wire class id, the serializer that encodes/decodes it, and whether
// values of this type participate in reference tracking.
type ClassInfo struct {
	ClassID          uint32
	Serializer       Serializer
	WritesReferences bool
}

// CacheHolder is a single-slot memoization cache, passed by the caller
// into GetClassInfo/ReadClassInfo to short-circuit repeated lookups of
// the same runtime type (or class id) within one chunk. It is not safe
// for concurrent use; each loop that walks a homogeneous run of entries
// should own its own CacheHolder.
type CacheHolder struct {
	key  interface{}
	info *ClassInfo
}

func (h *CacheHolder) lookup(key interface{}) (*ClassInfo, bool) {
	if h.info != nil && h.key == key {
		return h.info, true
	}
	return nil, false
}

func (h *CacheHolder) store(key interface{}, info *ClassInfo) {
	h.key, h.info = key, info
}

// Resolver maps concrete types to ClassInfo and back. A Resolver is built
// once (typically alongside a fury.Fury) and is safe for concurrent
// lookups once its registrations are complete; Register itself takes a
// lock and is intended to run during setup, not on the hot path.
type Resolver struct {
	mu   sync.RWMutex
	byType map[reflect.Type]*ClassInfo
	byID   map[uint32]*ClassInfo

	trackingDefault bool
	noRefTypes      map[reflect.Type]bool

	regErr ferrors.Once
}

// NewResolver returns a Resolver with the given global reference-tracking
// default (spec.md §4.3's "global reference-tracking policy").
func NewResolver(trackingDefault bool) *Resolver {
	return &Resolver{
		byType:          make(map[reflect.Type]*ClassInfo),
		byID:            make(map[uint32]*ClassInfo),
		trackingDefault: trackingDefault,
		noRefTypes:      make(map[reflect.Type]bool),
	}
}

// Register binds a concrete type to a class id and serializer. classID
// must be unique within the Resolver; a conflicting registration is
// recorded (not panicked) and surfaced later via Err(), matching the
// teacher's errors.Once "record now, check later" convention.
func (r *Resolver) Register(t reflect.Type, classID uint32, ser Serializer, writesReferences bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.byID[classID]; ok {
		r.regErr.Set(ferrors.E(ferrors.Invalid, fmt.Sprintf("classes: class id %d already registered", classID)))
		return
	}
	info := &ClassInfo{ClassID: classID, Serializer: ser, WritesReferences: writesReferences}
	r.byType[t] = info
	r.byID[classID] = info
}

// SetRefTrackingExcluded opts t out of reference tracking regardless of
// the Resolver's global default (spec.md §4.3's "per-type opt-out").
func (r *Resolver) SetRefTrackingExcluded(t reflect.Type, excluded bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.noRefTypes[t] = excluded
}

// NeedToWriteRef reports whether values of type t should be reference
// tracked, combining the Resolver's global policy with any per-type
// opt-out.
func (r *Resolver) NeedToWriteRef(t reflect.Type) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if !r.trackingDefault {
		return false
	}
	return !r.noRefTypes[t]
}

// Err returns the first registration error recorded by Register, if any.
func (r *Resolver) Err() error {
	return r.regErr.Err()
}

// GetClassInfo resolves t to its ClassInfo, consulting and then
// populating holder to short-circuit the next call with the same t.
func (r *Resolver) GetClassInfo(t reflect.Type, holder *CacheHolder) (*ClassInfo, error) {
	if holder != nil {
		if info, ok := holder.lookup(t); ok {
			return info, nil
		}
	}
	r.mu.RLock()
	info, ok := r.byType[t]
	r.mu.RUnlock()
	if !ok {
		return nil, ferrors.E(ferrors.Invalid, "classes: unregistered type "+t.String())
	}
	if holder != nil {
		holder.store(t, info)
	}
	return info, nil
}

// WriteClass writes info's class tag: an opaque byte sequence (currently
// a Small7 varint of the class id) that ReadClassInfo can resolve back to
// the same ClassInfo.
func (r *Resolver) WriteClass(buf *buffer.Buffer, info *ClassInfo) {
	buf.WriteVarUint32Small7(info.ClassID)
}

// ReadClassInfo reads a class tag written by WriteClass and resolves it,
// consulting and then populating holder to short-circuit the next call
// for the same class id.
func (r *Resolver) ReadClassInfo(buf *buffer.Buffer, holder *CacheHolder) (*ClassInfo, error) {
	classID, err := buf.ReadVarUint32Small7()
	if err != nil {
		return nil, err
	}
	if holder != nil {
		if info, ok := holder.lookup(classID); ok {
			return info, nil
		}
	}
	r.mu.RLock()
	info, ok := r.byID[classID]
	r.mu.RUnlock()
	if !ok {
		return nil, ferrors.E(ferrors.ProtocolMismatch, fmt.Sprintf("classes: unknown class id %d", classID))
	}
	if holder != nil {
		holder.store(classID, info)
	}
	return info, nil
}

// TypeOf returns the concrete runtime type of v, or nil if v is nil. It
// is the standard way callers obtain the key GetClassInfo expects.
func TypeOf(v interface{}) reflect.Type {
	if v == nil {
		return nil
	}
	return reflect.TypeOf(v)
}
