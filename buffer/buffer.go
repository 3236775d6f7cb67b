// Copyright 2018 GRAIL, Inc. All rights reserved.
// Use of this source code is governed by the Apache-2.0
// license that can be found in the LICENSE file.

// Package buffer implements the byte-oriented cursor the Fury wire codec
// reads and writes through. It is a growable, in-memory byte sink/source
// with independent writer/reader cursors, little-endian fixed-width
// integer codecs, a 1-byte-fast-path small-varint codec, and positional
// (back-patching) writes.
//
// The back-patch technique — reserve N bytes by advancing the writer and
// remembering the pre-advance offset, then WriteAt that offset once the
// deferred value is known — is the same one the chunked recordio writer
// uses to fill in a chunk header after its payload size becomes known.
package buffer

import (
	"encoding/binary"
	"math"

	"github.com/graildata/fury/ferrors"
)

// Buffer is a growable byte buffer with independent writerIndex and
// readerIndex cursors. The zero value is ready to use.
type Buffer struct {
	data        []byte
	writerIndex int
	readerIndex int
}

// New returns a Buffer wrapping a fresh slice with the given initial
// capacity.
func New(capacity int) *Buffer {
	return &Buffer{data: make([]byte, 0, capacity)}
}

// Wrap returns a Buffer whose reader cursor starts at 0 and whose data is
// exactly b — used on the read path, where the full wire payload is
// already in memory.
func Wrap(b []byte) *Buffer {
	return &Buffer{data: b, writerIndex: len(b)}
}

// Bytes returns the written portion of the buffer, data[:writerIndex].
func (b *Buffer) Bytes() []byte {
	return b.data[:b.writerIndex]
}

// WriterIndex returns the current write cursor.
func (b *Buffer) WriterIndex() int {
	return b.writerIndex
}

// SetWriterIndex repositions the write cursor. Used to restore the cursor
// after a positional write during back-patching.
func (b *Buffer) SetWriterIndex(idx int) {
	b.writerIndex = idx
}

// ReaderIndex returns the current read cursor.
func (b *Buffer) ReaderIndex() int {
	return b.readerIndex
}

// SetReaderIndex repositions the read cursor.
func (b *Buffer) SetReaderIndex(idx int) {
	b.readerIndex = idx
}

// Remaining returns the number of unread bytes.
func (b *Buffer) Remaining() int {
	return b.writerIndex - b.readerIndex
}

func (b *Buffer) grow(n int) {
	need := b.writerIndex + n
	if need <= cap(b.data) {
		b.data = b.data[:need]
		b.writerIndex = need
		return
	}
	grown := make([]byte, need, 2*need+64)
	copy(grown, b.data[:b.writerIndex])
	b.data = grown
	b.writerIndex = need
}

// Reserve advances the writer by n bytes without filling them in, and
// returns the pre-advance index. The caller writes the deferred value
// later with WriteAt(offset, ...). This is how the chunk prelude
// (chunk-size, header) is reserved before the chunk's entry count is
// known.
func (b *Buffer) Reserve(n int) int {
	off := b.writerIndex
	b.grow(n)
	return off
}

// WriteAt temporarily repositions the writer to off, calls fn to write
// the deferred bytes, then restores the writer to its prior position.
// fn must write exactly as many bytes as were reserved at off.
func (b *Buffer) WriteAt(off int, fn func(*Buffer)) {
	saved := b.writerIndex
	b.writerIndex = off
	fn(b)
	b.writerIndex = saved
}

// WriteByte appends a single byte.
func (b *Buffer) WriteByte(v byte) {
	b.grow(1)
	b.data[b.writerIndex-1] = v
}

// ReadByte consumes and returns a single byte.
func (b *Buffer) ReadByte() (byte, error) {
	if b.Remaining() < 1 {
		return 0, ferrors.E(ferrors.Truncation, "buffer: ReadByte past end")
	}
	v := b.data[b.readerIndex]
	b.readerIndex++
	return v, nil
}

// PeekByte returns the next byte without consuming it.
func (b *Buffer) PeekByte() (byte, error) {
	if b.Remaining() < 1 {
		return 0, ferrors.E(ferrors.Truncation, "buffer: PeekByte past end")
	}
	return b.data[b.readerIndex], nil
}

// WriteBytes appends a raw byte slice.
func (b *Buffer) WriteBytes(p []byte) {
	b.grow(len(p))
	copy(b.data[b.writerIndex-len(p):], p)
}

// ReadBytes consumes and returns the next n bytes.
func (b *Buffer) ReadBytes(n int) ([]byte, error) {
	if b.Remaining() < n {
		return nil, ferrors.E(ferrors.Truncation, "buffer: ReadBytes past end")
	}
	v := b.data[b.readerIndex : b.readerIndex+n]
	b.readerIndex += n
	return v, nil
}

// WriteInt16 writes a little-endian int16.
func (b *Buffer) WriteInt16(v int16) {
	b.grow(2)
	binary.LittleEndian.PutUint16(b.data[b.writerIndex-2:], uint16(v))
}

// ReadInt16 reads a little-endian int16.
func (b *Buffer) ReadInt16() (int16, error) {
	p, err := b.ReadBytes(2)
	if err != nil {
		return 0, err
	}
	return int16(binary.LittleEndian.Uint16(p)), nil
}

// WriteInt32 writes a little-endian int32.
func (b *Buffer) WriteInt32(v int32) {
	b.grow(4)
	binary.LittleEndian.PutUint32(b.data[b.writerIndex-4:], uint32(v))
}

// ReadInt32 reads a little-endian int32.
func (b *Buffer) ReadInt32() (int32, error) {
	p, err := b.ReadBytes(4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(p)), nil
}

// WriteInt64 writes a little-endian int64.
func (b *Buffer) WriteInt64(v int64) {
	b.grow(8)
	binary.LittleEndian.PutUint64(b.data[b.writerIndex-8:], uint64(v))
}

// ReadInt64 reads a little-endian int64.
func (b *Buffer) ReadInt64() (int64, error) {
	p, err := b.ReadBytes(8)
	if err != nil {
		return 0, err
	}
	return int64(binary.LittleEndian.Uint64(p)), nil
}

// WriteFloat64 writes a little-endian IEEE754 float64.
func (b *Buffer) WriteFloat64(v float64) {
	b.WriteInt64(int64(math.Float64bits(v)))
}

// ReadFloat64 reads a little-endian IEEE754 float64.
func (b *Buffer) ReadFloat64() (float64, error) {
	v, err := b.ReadInt64()
	if err != nil {
		return 0, err
	}
	return math.Float64frombits(uint64(v)), nil
}

// WriteVarUint32Small7 writes v using a 1-byte fast path for v < 128, and a
// continuation-bit varint encoding otherwise (matching spec.md's
// WriteVarUint32Small7 contract: values below 128 cost exactly one byte).
func (b *Buffer) WriteVarUint32Small7(v uint32) {
	if v>>7 == 0 {
		b.WriteByte(byte(v))
		return
	}
	b.writeVarUint32Slow(v)
}

func (b *Buffer) writeVarUint32Slow(v uint32) {
	for v >= 0x80 {
		b.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	b.WriteByte(byte(v))
}

// ReadVarUint32Small7 reads a value written by WriteVarUint32Small7.
func (b *Buffer) ReadVarUint32Small7() (uint32, error) {
	first, err := b.ReadByte()
	if err != nil {
		return 0, err
	}
	if first&0x80 == 0 {
		return uint32(first), nil
	}
	v := uint32(first & 0x7f)
	shift := uint(7)
	for {
		next, err := b.ReadByte()
		if err != nil {
			return 0, err
		}
		v |= uint32(next&0x7f) << shift
		if next&0x80 == 0 {
			return v, nil
		}
		shift += 7
		if shift >= 35 {
			return 0, ferrors.E(ferrors.ProtocolMismatch, "buffer: varint too long")
		}
	}
}

// WriteVarUint36 writes a varint of at most 5 bytes: up to 4 bytes of 7
// data bits with a continuation bit, then a final byte whose 8 bits are all
// data, enough to cover the 36-bit range spec.md's "varint-36" codec names.
func (b *Buffer) WriteVarUint36(v uint64) {
	for i := 0; i < 4 && v >= 0x80; i++ {
		b.WriteByte(byte(v) | 0x80)
		v >>= 7
	}
	b.WriteByte(byte(v))
}

// ReadVarUint36 reads a value written by WriteVarUint36.
func (b *Buffer) ReadVarUint36() (uint64, error) {
	var v uint64
	var shift uint
	for i := 0; i < 5; i++ {
		next, err := b.ReadByte()
		if err != nil {
			return 0, err
		}
		if i == 4 {
			return v | uint64(next)<<shift, nil
		}
		v |= uint64(next&0x7f) << shift
		if next&0x80 == 0 {
			return v, nil
		}
		shift += 7
	}
	return 0, ferrors.E(ferrors.ProtocolMismatch, "buffer: varint-36 too long")
}
