package mapcodec

import (
	"reflect"

	"github.com/graildata/fury/buffer"
	"github.com/graildata/fury/classes"
	"github.com/graildata/fury/flog"
	"github.com/graildata/fury/generic"
	"github.com/graildata/fury/refs"
)

// sideState tracks one side's (key's or value's) progress through the
// chunk currently being written: the class established by its first
// non-null occurrence, whether any entry has been null, a single-slot
// class cache for the polymorphic path, and whether any entry actually
// took the reference-tracked write path. usedRef drives the chunk
// header's TrackingKeyRef/TrackingValueRef bits — those bits must
// reflect what finalizeChunk's entries actually wrote, not merely what
// the caller requested, because a type registered with
// WritesReferences=false (classes/builtins.go) never takes the ref
// path even when Options asks for tracking.
type sideState struct {
	class0  reflect.Type
	hasNull bool
	usedRef bool
	holder  classes.CacheHolder
}

// chunkState is the mutable, per-chunk-in-progress state the writer
// carries across entries. A fresh chunkState is built every time a
// chunk closes and a new one opens.
type chunkState struct {
	size          byte
	startOffset   int
	prevKeyIsNull bool
	key           sideState
	value         sideState
}

// WriteMap writes m (which must be a Go map value) onto buf per
// spec.md's chunk-framed wire format. m may be a reflect.Value of Kind
// Map or any interface{} wrapping one.
func (c *Codec) WriteMap(buf *buffer.Buffer, m interface{}, opts Options) error {
	mv := reflect.ValueOf(m)
	if rv, ok := m.(reflect.Value); ok {
		mv = rv
	}
	if mv.Kind() != reflect.Map {
		return missingConstructor()
	}
	buf.WriteVarUint32Small7(uint32(mv.Len()))

	state := &chunkState{}
	unchunked := false

	iter := mv.MapRange()
	for iter.Next() {
		key := iter.Key().Interface()
		val := iter.Value().Interface()

		if unchunked {
			if err := c.writeGenericEntry(buf, key, val); err != nil {
				return err
			}
			continue
		}

		keyIsNull := isNilValue(key)
		valIsNull := isNilValue(val)

		keyDiffers := !keyIsNull && state.key.class0 != nil &&
			!opts.KeyType.Monomorphic && opts.KeySerializer == nil && classes.TypeOf(key) != state.key.class0
		valDiffers := !valIsNull && state.value.class0 != nil && !opts.ValueType.Monomorphic &&
			opts.ValueSerializer == nil && classes.TypeOf(val) != state.value.class0

		if state.size > 0 && keyDiffers && valDiffers {
			// Heterogeneity escalation (spec.md §4.5 step 2): both sides
			// diverged from this chunk's class0 at once. Close the chunk
			// written so far, drop a 0-sized sentinel chunk, and abandon
			// chunking for the rest of the map.
			c.finalizeChunk(buf, state)
			flog.Debug.Printf("mapcodec: escalating to unchunked mode after %d entries", state.size)
			buf.WriteByte(0)
			unchunked = true
			if err := c.writeGenericEntry(buf, key, val); err != nil {
				return err
			}
			continue
		}

		nullBreak := state.size > 0 && ((keyIsNull) ||
			(state.prevKeyIsNull && !keyIsNull) ||
			(valIsNull && !state.value.hasNull))
		sizeBreak := state.size == 127

		if nullBreak || sizeBreak || keyDiffers || valDiffers {
			c.finalizeChunk(buf, state)
			state = &chunkState{}
		}

		if state.size == 0 {
			state.startOffset = buf.Reserve(2)
		}

		if err := c.writeKeySide(buf, key, keyIsNull, state, opts); err != nil {
			return err
		}
		if err := c.writeValueSide(buf, val, valIsNull, state, opts); err != nil {
			return err
		}

		state.prevKeyIsNull = keyIsNull
		state.size++
	}

	if state.size > 0 {
		c.finalizeChunk(buf, state)
	}
	return nil
}

func (c *Codec) finalizeChunk(buf *buffer.Buffer, state *chunkState) {
	var header Header
	if state.key.usedRef {
		header |= TrackingKeyRef
	}
	if state.value.usedRef {
		header |= TrackingValueRef
	}
	if state.key.hasNull {
		header |= KeyHasNull
	}
	if state.value.hasNull {
		header |= ValueHasNull
	}
	size := state.size
	buf.WriteAt(state.startOffset, func(b *buffer.Buffer) {
		b.WriteByte(size)
		b.WriteByte(byte(header))
	})
	flog.Debug.Printf("mapcodec: closed chunk size=%d header=%08b", size, header)
}

// writeKeySide writes one key. Every key emitted this way shares a
// single chunk-wide class (class0 established by the first non-null
// key); a key that would break that invariant forces the chunk to
// close before writeKeySide is ever called for it (see WriteMap), so
// by construction every key seen here either sets class0 or matches
// it, and KeyNotSameType is never produced by this writer (it remains
// in the wire format for a reader to honor if some other writer
// produces it — see DESIGN.md).
func (c *Codec) writeKeySide(buf *buffer.Buffer, key interface{}, isNull bool, state *chunkState, opts Options) error {
	if isNull {
		buf.WriteByte(byte(refs.Null))
		state.key.hasNull = true
		return nil
	}
	mono := opts.KeyType.Monomorphic || opts.KeySerializer != nil
	firstNonNull := state.key.class0 == nil

	if mono {
		ser, writesRef, err := c.resolveMono(opts.KeyType, opts.KeySerializer, opts.KeySerializerWritesRef)
		if err != nil {
			return err
		}
		state.key.class0 = reflect.TypeOf(key)
		if opts.TrackKeyRef && writesRef {
			state.key.usedRef = true
			if c.Refs.WriteRefOrNull(buf, key) {
				return nil
			}
		}
		return ser.Write(buf, key)
	}

	rt := classes.TypeOf(key)
	info, err := c.Classes.GetClassInfo(rt, &state.key.holder)
	if err != nil {
		return err
	}
	if firstNonNull {
		state.key.class0 = rt
	}
	if opts.TrackKeyRef && info.WritesReferences {
		state.key.usedRef = true
		if firstNonNull {
			c.Classes.WriteClass(buf, info)
		}
		if c.Refs.WriteRefOrNull(buf, key) {
			return nil
		}
		return info.Serializer.Write(buf, key)
	}
	if firstNonNull {
		c.Classes.WriteClass(buf, info)
	}
	return info.Serializer.Write(buf, key)
}

// writeValueSide mirrors writeKeySide, plus the VALUE_HAS_NULL quirk
// (spec.md §4.5 step 6): once a chunk has observed a null value, every
// later non-null value in that same chunk is prefixed with
// NOT_NULL_VALUE so the reader can tell it apart from a NULL entry
// even when reference tracking is off.
func (c *Codec) writeValueSide(buf *buffer.Buffer, val interface{}, isNull bool, state *chunkState, opts Options) error {
	if isNull {
		buf.WriteByte(byte(refs.Null))
		state.value.hasNull = true
		return nil
	}
	mono := opts.ValueType.Monomorphic || opts.ValueSerializer != nil
	firstNonNull := state.value.class0 == nil

	if mono {
		ser, writesRef, err := c.resolveMono(opts.ValueType, opts.ValueSerializer, opts.ValueSerializerWritesRef)
		if err != nil {
			return err
		}
		state.value.class0 = reflect.TypeOf(val)
		if opts.TrackValueRef && writesRef {
			state.value.usedRef = true
			if c.Refs.WriteRefOrNull(buf, val) {
				return nil
			}
			return ser.Write(buf, val)
		}
		if state.value.hasNull {
			buf.WriteByte(byte(refs.NotNullValue))
		}
		return ser.Write(buf, val)
	}

	rt := classes.TypeOf(val)
	info, err := c.Classes.GetClassInfo(rt, &state.value.holder)
	if err != nil {
		return err
	}
	if firstNonNull {
		state.value.class0 = rt
	}
	if opts.TrackValueRef && info.WritesReferences {
		state.value.usedRef = true
		if firstNonNull {
			c.Classes.WriteClass(buf, info)
		}
		if c.Refs.WriteRefOrNull(buf, val) {
			return nil
		}
		return info.Serializer.Write(buf, val)
	}
	if state.value.hasNull {
		buf.WriteByte(byte(refs.NotNullValue))
	}
	if firstNonNull {
		c.Classes.WriteClass(buf, info)
	}
	return info.Serializer.Write(buf, val)
}

// resolveMono resolves the serializer for a monomorphic declared type
// or a one-shot user-supplied serializer, the two cases in which a
// chunk's entries never carry a class tag at all.
func (c *Codec) resolveMono(gt generic.Type, userSer classes.Serializer, userSerWritesRef bool) (classes.Serializer, bool, error) {
	if userSer != nil {
		return userSer, userSerWritesRef, nil
	}
	info, err := c.Classes.GetClassInfo(gt.Concrete, nil)
	if err != nil {
		return nil, false, err
	}
	return info.Serializer, info.WritesReferences, nil
}

// writeGenericEntry writes one (key, value) pair in the unchunked-tail
// format: each side independently NULL, REF, or NOT_NULL_VALUE+ClassTag
// +payload (spec.md §6's GenericEntry), always through the reference
// resolver regardless of the call's tracking options, since an
// unchunked entry carries no chunk-wide homogeneity assumption to lean
// on.
func (c *Codec) writeGenericEntry(buf *buffer.Buffer, key, val interface{}) error {
	if err := c.writeGenericSide(buf, key); err != nil {
		return err
	}
	return c.writeGenericSide(buf, val)
}

func (c *Codec) writeGenericSide(buf *buffer.Buffer, v interface{}) error {
	if isNilValue(v) {
		buf.WriteByte(byte(refs.Null))
		return nil
	}
	if c.Refs.WriteRefOrNull(buf, v) {
		return nil
	}
	rt := classes.TypeOf(v)
	info, err := c.Classes.GetClassInfo(rt, nil)
	if err != nil {
		return err
	}
	c.Classes.WriteClass(buf, info)
	return info.Serializer.Write(buf, v)
}
