package classes

import (
	"reflect"

	"github.com/graildata/fury/buffer"
	"github.com/graildata/fury/ferrors"
)

// Builtin class ids. Stable across a process; arbitrary beyond that,
// since class id assignment policy is out of scope (spec.md §1).
const (
	ClassIDString  uint32 = 1
	ClassIDInt32   uint32 = 2
	ClassIDInt64   uint32 = 3
	ClassIDFloat64 uint32 = 4
	ClassIDBool    uint32 = 5
	ClassIDBytes   uint32 = 6
)

type stringSerializer struct{}

func (stringSerializer) Write(buf *buffer.Buffer, v interface{}) error {
	s := v.(string)
	buf.WriteVarUint32Small7(uint32(len(s)))
	buf.WriteBytes([]byte(s))
	return nil
}

func (stringSerializer) Read(buf *buffer.Buffer) (interface{}, error) {
	n, err := buf.ReadVarUint32Small7()
	if err != nil {
		return nil, err
	}
	p, err := buf.ReadBytes(int(n))
	if err != nil {
		return nil, err
	}
	return string(p), nil
}

type int32Serializer struct{}

func (int32Serializer) Write(buf *buffer.Buffer, v interface{}) error {
	buf.WriteInt32(v.(int32))
	return nil
}

func (int32Serializer) Read(buf *buffer.Buffer) (interface{}, error) {
	v, err := buf.ReadInt32()
	return v, err
}

type int64Serializer struct{}

func (int64Serializer) Write(buf *buffer.Buffer, v interface{}) error {
	buf.WriteInt64(v.(int64))
	return nil
}

func (int64Serializer) Read(buf *buffer.Buffer) (interface{}, error) {
	v, err := buf.ReadInt64()
	return v, err
}

type float64Serializer struct{}

func (float64Serializer) Write(buf *buffer.Buffer, v interface{}) error {
	buf.WriteFloat64(v.(float64))
	return nil
}

func (float64Serializer) Read(buf *buffer.Buffer) (interface{}, error) {
	v, err := buf.ReadFloat64()
	return v, err
}

type boolSerializer struct{}

func (boolSerializer) Write(buf *buffer.Buffer, v interface{}) error {
	b := byte(0)
	if v.(bool) {
		b = 1
	}
	buf.WriteByte(b)
	return nil
}

func (boolSerializer) Read(buf *buffer.Buffer) (interface{}, error) {
	b, err := buf.ReadByte()
	if err != nil {
		return nil, err
	}
	if b > 1 {
		return nil, ferrors.E(ferrors.ProtocolMismatch, "classes: bad bool byte")
	}
	return b == 1, nil
}

type bytesSerializer struct{}

func (bytesSerializer) Write(buf *buffer.Buffer, v interface{}) error {
	p := v.([]byte)
	buf.WriteVarUint32Small7(uint32(len(p)))
	buf.WriteBytes(p)
	return nil
}

func (bytesSerializer) Read(buf *buffer.Buffer) (interface{}, error) {
	n, err := buf.ReadVarUint32Small7()
	if err != nil {
		return nil, err
	}
	return buf.ReadBytes(int(n))
}

// RegisterBuiltins registers Fury's fixed set of primitive serializers:
// string, int32, int64, float64, bool, and []byte. string and []byte are
// registered with WritesReferences=true; the fixed-width int32, int64,
// float64 and bool are registered with WritesReferences=false, so they
// never take the reference-tracked write path.
func RegisterBuiltins(r *Resolver) {
	r.Register(reflect.TypeOf(""), ClassIDString, stringSerializer{}, true)
	r.Register(reflect.TypeOf(int32(0)), ClassIDInt32, int32Serializer{}, false)
	r.Register(reflect.TypeOf(int64(0)), ClassIDInt64, int64Serializer{}, false)
	r.Register(reflect.TypeOf(float64(0)), ClassIDFloat64, float64Serializer{}, false)
	r.Register(reflect.TypeOf(false), ClassIDBool, boolSerializer{}, false)
	r.Register(reflect.TypeOf([]byte(nil)), ClassIDBytes, bytesSerializer{}, true)
}
