package mapcodec

import (
	"reflect"

	"github.com/graildata/fury/buffer"
	"github.com/graildata/fury/classes"
	"github.com/graildata/fury/ferrors"
	"github.com/graildata/fury/generic"
	"github.com/graildata/fury/refs"
)

// sideReadState mirrors sideState on the read side: a single-slot
// class cache, populated whenever a tag is actually read, used both to
// decide "is this the first non-null occurrence on this side" and to
// serve cached lookups for homogeneous chunks.
type sideReadState struct {
	holder classes.CacheHolder
	info   *classes.ClassInfo
}

// ReadMap reads a map written by WriteMap into a freshly constructed
// map of type mapType. mapType must be a non-nil reflect.Type of Kind
// Map; a nil mapType is MissingConstructor, matching spec.md §4.7 (no
// accessible constructor for the target container).
func (c *Codec) ReadMap(buf *buffer.Buffer, mapType reflect.Type, opts Options) (interface{}, error) {
	if mapType == nil || mapType.Kind() != reflect.Map {
		return nil, missingConstructor()
	}
	size, err := buf.ReadVarUint32Small7()
	if err != nil {
		return nil, err
	}
	out := reflect.MakeMapWithSize(mapType, int(size))
	remaining := int(size)

	for remaining > 0 {
		chunkSize, err := buf.ReadByte()
		if err != nil {
			return nil, err
		}
		if chunkSize == 0 {
			for ; remaining > 0; remaining-- {
				key, err := c.readGenericSide(buf)
				if err != nil {
					return nil, err
				}
				val, err := c.readGenericSide(buf)
				if err != nil {
					return nil, err
				}
				setMapEntry(out, key, val)
			}
			break
		}
		headerByte, err := buf.ReadByte()
		if err != nil {
			return nil, err
		}
		header := Header(headerByte)
		if int(chunkSize) > remaining {
			return nil, ferrors.E(ferrors.ProtocolMismatch, "mapcodec: chunk size exceeds remaining map size")
		}

		keyState := &sideReadState{}
		valState := &sideReadState{}
		for i := byte(0); i < chunkSize; i++ {
			key, err := c.readKeySide(buf, header, keyState, opts)
			if err != nil {
				return nil, err
			}
			val, err := c.readValueSide(buf, header, valState, opts)
			if err != nil {
				return nil, err
			}
			setMapEntry(out, key, val)
		}
		remaining -= int(chunkSize)
	}
	return out.Interface(), nil
}

func setMapEntry(m reflect.Value, key, val interface{}) {
	kv := reflect.New(m.Type().Key()).Elem()
	if key != nil {
		kv.Set(reflect.ValueOf(key))
	}
	vv := reflect.New(m.Type().Elem()).Elem()
	if val != nil {
		vv.Set(reflect.ValueOf(val))
	}
	m.SetMapIndex(kv, vv)
}

func (c *Codec) readKeySide(buf *buffer.Buffer, header Header, s *sideReadState, opts Options) (interface{}, error) {
	if header.has(KeyHasNull) {
		b, err := buf.ReadByte()
		if err != nil {
			return nil, err
		}
		if refs.Flag(b) != refs.Null {
			return nil, ferrors.E(ferrors.ProtocolMismatch, "mapcodec: expected NULL key flag")
		}
		return nil, nil
	}
	if header.has(TrackingKeyRef) {
		return c.readTrackedPayload(buf, s, header.has(KeyNotSameType), opts.KeyType, opts.KeySerializer)
	}
	return c.readUntrackedPayload(buf, s, header.has(KeyNotSameType), opts.KeyType, opts.KeySerializer)
}

func (c *Codec) readValueSide(buf *buffer.Buffer, header Header, s *sideReadState, opts Options) (interface{}, error) {
	if header.has(TrackingValueRef) {
		return c.readTrackedPayload(buf, s, header.has(ValueNotSameType), opts.ValueType, opts.ValueSerializer)
	}
	if header.has(ValueHasNull) {
		b, err := buf.ReadByte()
		if err != nil {
			return nil, err
		}
		if refs.Flag(b) == refs.Null {
			return nil, nil
		}
		if refs.Flag(b) != refs.NotNullValue {
			return nil, ferrors.E(ferrors.ProtocolMismatch, "mapcodec: bad value disambiguator flag")
		}
	}
	return c.readUntrackedPayload(buf, s, header.has(ValueNotSameType), opts.ValueType, opts.ValueSerializer)
}

// readTrackedPayload reads a REF/NULL/NOT_NULL_VALUE-guarded entry,
// used whenever this side's chunk has reference tracking on.
func (c *Codec) readTrackedPayload(buf *buffer.Buffer, s *sideReadState, notSameType bool, gt generic.Type, userSer classes.Serializer) (interface{}, error) {
	if !notSameType && s.info == nil && !gt.Monomorphic && userSer == nil {
		// Homogeneous chunk: the class tag precedes the reference flag of
		// this side's first non-null entry. A null entry before it is a
		// bare Null flag, which a tag for class id 0 would be mistaken for.
		if b, err := buf.PeekByte(); err == nil && refs.Flag(b) == refs.Null {
			buf.ReadByte()
			return nil, nil
		}
		info, err := c.Classes.ReadClassInfo(buf, &s.holder)
		if err != nil {
			return nil, err
		}
		s.info = info
	}
	action, id, obj, err := c.Refs.TryPreserveRefID(buf)
	if err != nil {
		return nil, err
	}
	switch action {
	case refs.ActionNull:
		return nil, nil
	case refs.ActionRef:
		return obj, nil
	case refs.ActionValue:
		val, err := c.readPayload(buf, s, notSameType, gt, userSer)
		if err != nil {
			return nil, err
		}
		c.Refs.SetReadObject(id, val)
		return val, nil
	default:
		return nil, ferrors.E(ferrors.ProtocolMismatch, "mapcodec: bad ref action")
	}
}

// readUntrackedPayload reads a bare class-tag(maybe)+payload entry,
// used whenever this side's chunk has reference tracking off and the
// null case (if any) has already been handled by the caller.
func (c *Codec) readUntrackedPayload(buf *buffer.Buffer, s *sideReadState, notSameType bool, gt generic.Type, userSer classes.Serializer) (interface{}, error) {
	return c.readPayload(buf, s, notSameType, gt, userSer)
}

// readPayload reads one value's payload, consulting the class tag only
// on the first non-null occurrence for this side (or on every
// occurrence when notSameType is set), mirroring the writer's tag
// placement.
func (c *Codec) readPayload(buf *buffer.Buffer, s *sideReadState, notSameType bool, gt generic.Type, userSer classes.Serializer) (interface{}, error) {
	mono := gt.Monomorphic || userSer != nil
	if mono {
		ser := userSer
		if ser == nil {
			info, err := c.Classes.GetClassInfo(gt.Concrete, nil)
			if err != nil {
				return nil, err
			}
			ser = info.Serializer
		}
		return ser.Read(buf)
	}
	first := s.info == nil
	if first || notSameType {
		info, err := c.Classes.ReadClassInfo(buf, &s.holder)
		if err != nil {
			return nil, err
		}
		s.info = info
	}
	return s.info.Serializer.Read(buf)
}

func (c *Codec) readGenericSide(buf *buffer.Buffer) (interface{}, error) {
	action, id, obj, err := c.Refs.TryPreserveRefID(buf)
	if err != nil {
		return nil, err
	}
	switch action {
	case refs.ActionNull:
		return nil, nil
	case refs.ActionRef:
		return obj, nil
	case refs.ActionValue:
		info, err := c.Classes.ReadClassInfo(buf, nil)
		if err != nil {
			return nil, err
		}
		val, err := info.Serializer.Read(buf)
		if err != nil {
			return nil, err
		}
		c.Refs.SetReadObject(id, val)
		return val, nil
	default:
		return nil, ferrors.E(ferrors.ProtocolMismatch, "mapcodec: bad ref action")
	}
}
