package wire

import (
	"encoding/binary"
	"fmt"
	"math"

	"opendax/internal/daxerr"
)

// This file defines the per-opcode payload layouts the frame codec
// itself is silent on: spec.md §6 fixes the frame shape and the
// opcode table but leaves each opcode's payload an implementation
// detail. Layouts follow §6's stated wire conventions throughout:
// little-endian multi-byte integers, length-prefixed unterminated
// UTF-8 strings (u16 length here, since tag/CDT/member names are
// bounded well under 65535 bytes).

// HandleWire is the 24-byte on-wire form of store.Handle, used by
// every opcode that names a byte/bit window: READ, WRITE, MASK_WRITE,
// ATOMIC, EVENT_ADD.
type HandleWire struct {
	TagIndex     uint32
	ByteOffset   uint32
	BitOffset    uint32
	ElementCount uint32
	Type         uint32
	SizeBytes    uint32
}

const handleWireSize = 24

// PutHandle appends h's wire encoding to buf.
func PutHandle(buf []byte, h HandleWire) []byte {
	var b [handleWireSize]byte
	binary.LittleEndian.PutUint32(b[0:4], h.TagIndex)
	binary.LittleEndian.PutUint32(b[4:8], h.ByteOffset)
	binary.LittleEndian.PutUint32(b[8:12], h.BitOffset)
	binary.LittleEndian.PutUint32(b[12:16], h.ElementCount)
	binary.LittleEndian.PutUint32(b[16:20], h.Type)
	binary.LittleEndian.PutUint32(b[20:24], h.SizeBytes)
	return append(buf, b[:]...)
}

// GetHandle decodes a HandleWire from the front of buf, returning the
// unconsumed remainder.
func GetHandle(buf []byte) (HandleWire, []byte, error) {
	if len(buf) < handleWireSize {
		return HandleWire{}, nil, daxerr.New(daxerr.BadArg, "payload shorter than a handle")
	}
	h := HandleWire{
		TagIndex:     binary.LittleEndian.Uint32(buf[0:4]),
		ByteOffset:   binary.LittleEndian.Uint32(buf[4:8]),
		BitOffset:    binary.LittleEndian.Uint32(buf[8:12]),
		ElementCount: binary.LittleEndian.Uint32(buf[12:16]),
		Type:         binary.LittleEndian.Uint32(buf[16:20]),
		SizeBytes:    binary.LittleEndian.Uint32(buf[20:24]),
	}
	return h, buf[handleWireSize:], nil
}

// PutString appends s as a u16-length-prefixed UTF-8 string.
func PutString(buf []byte, s string) []byte {
	var l [2]byte
	binary.LittleEndian.PutUint16(l[:], uint16(len(s)))
	buf = append(buf, l[:]...)
	return append(buf, s...)
}

// GetString decodes a u16-length-prefixed string from the front of buf,
// returning the unconsumed remainder.
func GetString(buf []byte) (string, []byte, error) {
	if len(buf) < 2 {
		return "", nil, daxerr.New(daxerr.BadArg, "payload shorter than a string length prefix")
	}
	n := int(binary.LittleEndian.Uint16(buf[0:2]))
	buf = buf[2:]
	if len(buf) < n {
		return "", nil, daxerr.New(daxerr.BadArg, "payload shorter than its declared string length")
	}
	return string(buf[:n]), buf[n:], nil
}

// PutU32/GetU32 and friends round out the primitive field helpers used
// to build and parse fixed-width payload fields by hand, the way the
// teacher's format.go builds its header buffer field by field rather
// than through encoding/binary's struct (de)serialization.

func PutU16(buf []byte, v uint16) []byte {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	return append(buf, b[:]...)
}

func GetU16(buf []byte) (uint16, []byte, error) {
	if len(buf) < 2 {
		return 0, nil, daxerr.New(daxerr.BadArg, "payload shorter than a u16 field")
	}
	return binary.LittleEndian.Uint16(buf[0:2]), buf[2:], nil
}

func PutU32(buf []byte, v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return append(buf, b[:]...)
}

func GetU32(buf []byte) (uint32, []byte, error) {
	if len(buf) < 4 {
		return 0, nil, daxerr.New(daxerr.BadArg, "payload shorter than a u32 field")
	}
	return binary.LittleEndian.Uint32(buf[0:4]), buf[4:], nil
}

func PutU64(buf []byte, v uint64) []byte {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	return append(buf, b[:]...)
}

func GetU64(buf []byte) (uint64, []byte, error) {
	if len(buf) < 8 {
		return 0, nil, daxerr.New(daxerr.BadArg, "payload shorter than a u64 field")
	}
	return binary.LittleEndian.Uint64(buf[0:8]), buf[8:], nil
}

func PutF64(buf []byte, v float64) []byte {
	return PutU64(buf, math.Float64bits(v))
}

func GetF64(buf []byte) (float64, []byte, error) {
	bits, rest, err := GetU64(buf)
	if err != nil {
		return 0, nil, err
	}
	return math.Float64frombits(bits), rest, nil
}

// GetBytes takes exactly n bytes off the front of buf.
func GetBytes(buf []byte, n int) ([]byte, []byte, error) {
	if len(buf) < n {
		return nil, nil, daxerr.New(daxerr.BadArg, fmt.Sprintf("payload shorter than the requested %d bytes", n))
	}
	return buf[:n], buf[n:], nil
}
