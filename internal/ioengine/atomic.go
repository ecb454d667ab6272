package ioengine

import (
	"encoding/binary"
	"math"

	"opendax/internal/daxerr"
	"opendax/internal/store"
	"opendax/internal/types"
)

// AtomicKind names an atomic read-modify-write operator.
type AtomicKind int

const (
	OpNot AtomicKind = iota
	OpOr
	OpAnd
	OpNand
	OpNor
	OpXor
	OpAdd
	OpSub
	OpInc
	OpDec
)

func (k AtomicKind) isBitwise() bool {
	switch k {
	case OpNot, OpOr, OpAnd, OpNand, OpNor, OpXor:
		return true
	default:
		return false
	}
}

func (k AtomicKind) isArithmetic() bool {
	switch k {
	case OpAdd, OpSub, OpInc, OpDec:
		return true
	default:
		return false
	}
}

func (k AtomicKind) needsOperand() bool {
	switch k {
	case OpNot, OpInc, OpDec:
		return false
	default:
		return true
	}
}

// AtomicOp executes op against handle h's backing region, holding the
// tag's write lock so the update is indivisible with respect to reads and
// event dispatch. For BOOL ranges the operator applies bit-parallel over
// the selected bits; for integer ranges, per element; REAL/LREAL accept
// only arithmetic operators, returning BAD_TYPE for a bitwise one.
func (e *Engine) AtomicOp(h store.Handle, operand []byte, op AtomicKind) error {
	if op.needsOperand() && uint(len(operand)) != h.SizeBytes {
		return daxerr.New(daxerr.BadArg, "operand size does not match handle size")
	}
	if (h.Type == types.REAL || h.Type == types.LREAL) && op.isBitwise() {
		return daxerr.New(daxerr.BadType, "bitwise operators are not valid for REAL/LREAL")
	}

	if h.Type == types.BOOL && isBitAddressable(h) {
		return e.atomicBitwiseBits(h, operand, op)
	}

	return e.store.WithTagLock(h.TagIndex, true, func(meta store.TagMeta, data []byte, vr store.VirtualReadFunc, q store.Queue) error {
		if meta.Attrs.Has(store.AttrVirtual) {
			return daxerr.New(daxerr.Illegal, "virtual tags are read-only through this engine")
		}
		if meta.Attrs.Has(store.AttrQueue) {
			return daxerr.New(daxerr.Illegal, "atomic ops are not valid against a queue tag")
		}
		if h.ByteOffset+h.SizeBytes > uint(len(data)) {
			return daxerr.ErrTooBig
		}
		pre := e.snapshot(data)
		region := data[h.ByteOffset : h.ByteOffset+h.SizeBytes]

		if h.Type == types.BOOL {
			if err := applyBoolBitParallel(region, operand, op); err != nil {
				return err
			}
			e.notify(h.TagIndex, h.ByteOffset, h.SizeBytes, pre, data)
			return nil
		}

		elemBytes := e.store.Registry().SizeBytes(h.Type)
		if elemBytes == 0 {
			return daxerr.ErrBadType
		}
		for i := uint(0); i+elemBytes <= uint(len(region)); i += elemBytes {
			elem := region[i : i+elemBytes]
			var opnd []byte
			if op.needsOperand() {
				opnd = operand[i : i+elemBytes]
			}
			if err := applyElement(h.Type, elemBytes, elem, opnd, op); err != nil {
				return err
			}
		}
		e.notify(h.TagIndex, h.ByteOffset, h.SizeBytes, pre, data)
		return nil
	})
}

func (e *Engine) atomicBitwiseBits(h store.Handle, operand []byte, op AtomicKind) error {
	if !op.isBitwise() {
		return daxerr.New(daxerr.Illegal, "only bitwise operators apply to sub-byte BOOL ranges")
	}
	return e.store.WithTagLock(h.TagIndex, true, func(meta store.TagMeta, data []byte, vr store.VirtualReadFunc, q store.Queue) error {
		if meta.Attrs.Has(store.AttrVirtual) {
			return daxerr.New(daxerr.Illegal, "virtual tags are read-only through this engine")
		}
		if meta.Attrs.Has(store.AttrQueue) {
			return daxerr.New(daxerr.Illegal, "atomic ops are not valid against a queue tag")
		}
		pre := e.snapshot(data)
		for i := uint(0); i < h.ElementCount; i++ {
			bit := getBit(data, h.BitOffset+i)
			var opBit bool
			if op.needsOperand() {
				opBit = getBit(operand, i)
			}
			result := applyBoolOp(bit, opBit, op)
			setBitTo(data, h.BitOffset+i, result)
		}
		e.notify(h.TagIndex, h.ByteOffset, h.SizeBytes, pre, data)
		return nil
	})
}

func applyBoolBitParallel(region []byte, operand []byte, op AtomicKind) error {
	for i := range region {
		var opByte byte
		if op.needsOperand() && i < len(operand) {
			opByte = operand[i]
		}
		switch op {
		case OpNot:
			region[i] = ^region[i]
		case OpOr:
			region[i] |= opByte
		case OpAnd:
			region[i] &= opByte
		case OpNand:
			region[i] = ^(region[i] & opByte)
		case OpNor:
			region[i] = ^(region[i] | opByte)
		case OpXor:
			region[i] ^= opByte
		default:
			return daxerr.New(daxerr.Illegal, "arithmetic operators are not valid for BOOL")
		}
	}
	return nil
}

func applyBoolOp(bit, opBit bool, op AtomicKind) bool {
	switch op {
	case OpNot:
		return !bit
	case OpOr:
		return bit || opBit
	case OpAnd:
		return bit && opBit
	case OpNand:
		return !(bit && opBit)
	case OpNor:
		return !(bit || opBit)
	case OpXor:
		return bit != opBit
	default:
		return bit
	}
}

// applyElement applies op to one integer/real element in place. elem and
// opnd are in backing (little-endian) order.
func applyElement(typ types.ID, size uint, elem, opnd []byte, op AtomicKind) error {
	if typ == types.REAL || typ == types.LREAL {
		return applyFloatElement(typ, elem, opnd, op)
	}
	return applyIntElement(size, elem, opnd, op)
}

func applyIntElement(size uint, elem, opnd []byte, op AtomicKind) error {
	var v, o uint64
	switch size {
	case 1:
		v = uint64(elem[0])
		if opnd != nil {
			o = uint64(opnd[0])
		}
	case 2:
		v = uint64(binary.LittleEndian.Uint16(elem))
		if opnd != nil {
			o = uint64(binary.LittleEndian.Uint16(opnd))
		}
	case 4:
		v = uint64(binary.LittleEndian.Uint32(elem))
		if opnd != nil {
			o = uint64(binary.LittleEndian.Uint32(opnd))
		}
	case 8:
		v = binary.LittleEndian.Uint64(elem)
		if opnd != nil {
			o = binary.LittleEndian.Uint64(opnd)
		}
	default:
		return daxerr.ErrBadType
	}

	mask := uint64(1)<<(size*8) - 1
	if size == 8 {
		mask = ^uint64(0)
	}

	switch op {
	case OpNot:
		v = ^v & mask
	case OpOr:
		v = (v | o) & mask
	case OpAnd:
		v = (v & o) & mask
	case OpNand:
		v = ^(v & o) & mask
	case OpNor:
		v = ^(v | o) & mask
	case OpXor:
		v = (v ^ o) & mask
	case OpAdd:
		v = (v + o) & mask
	case OpSub:
		v = (v - o) & mask
	case OpInc:
		v = (v + 1) & mask
	case OpDec:
		v = (v - 1) & mask
	}

	switch size {
	case 1:
		elem[0] = byte(v)
	case 2:
		binary.LittleEndian.PutUint16(elem, uint16(v))
	case 4:
		binary.LittleEndian.PutUint32(elem, uint32(v))
	case 8:
		binary.LittleEndian.PutUint64(elem, v)
	}
	return nil
}

func applyFloatElement(typ types.ID, elem, opnd []byte, op AtomicKind) error {
	if !op.isArithmetic() {
		return daxerr.New(daxerr.BadType, "bitwise operators are not valid for REAL/LREAL")
	}

	if typ == types.REAL {
		v := math.Float32frombits(binary.LittleEndian.Uint32(elem))
		var o float32
		if opnd != nil {
			o = math.Float32frombits(binary.LittleEndian.Uint32(opnd))
		}
		switch op {
		case OpAdd:
			v += o
		case OpSub:
			v -= o
		case OpInc:
			v += 1
		case OpDec:
			v -= 1
		}
		binary.LittleEndian.PutUint32(elem, math.Float32bits(v))
		return nil
	}

	v := math.Float64frombits(binary.LittleEndian.Uint64(elem))
	var o float64
	if opnd != nil {
		o = math.Float64frombits(binary.LittleEndian.Uint64(opnd))
	}
	switch op {
	case OpAdd:
		v += o
	case OpSub:
		v -= o
	case OpInc:
		v += 1
	case OpDec:
		v -= 1
	}
	binary.LittleEndian.PutUint64(elem, math.Float64bits(v))
	return nil
}
