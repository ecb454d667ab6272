// Package ioengine implements the OpenDAX data I/O engine: byte- and
// bit-granular reads, writes, and masked writes of a tag's backing bytes,
// with per-element byte-swap between the on-wire little-endian backing
// format and host-native buffer order.
package ioengine

import (
	"opendax/internal/daxerr"
	"opendax/internal/store"
	"opendax/internal/types"
	"opendax/logger"
)

// Notifier is the subset of the event dispatcher the engine needs: told
// about every successful write while the tag's lock is still held, so
// event matching sees a value that cannot be overtaken by a concurrent
// write. Satisfied by *events.Dispatcher; kept as an interface here so
// ioengine does not import events (events does not import ioengine).
type Notifier interface {
	Dispatch(tagIndex uint32, writeOffset, writeSize uint, pre, post []byte)
}

// Engine executes read/write/mask/atomic operations against a Store's
// backing bytes, under that tag's lock.
type Engine struct {
	store    *store.Store
	notifier Notifier
}

// New creates an Engine bound to s.
func New(s *store.Store) *Engine {
	return &Engine{store: s}
}

// SetNotifier wires the event dispatcher that every successful write,
// mask-write, and atomic op reports to before releasing the tag's lock.
func (e *Engine) SetNotifier(n Notifier) { e.notifier = n }

// isBitAddressable reports whether h must go through the bit-copy path:
// BOOL data that either starts mid-byte or doesn't cover a whole number
// of bytes.
func isBitAddressable(h store.Handle) bool {
	if h.Type != types.BOOL {
		return false
	}
	return h.BitOffset != 0 || h.ElementCount%8 != 0
}

// Read copies handle h's current value into out, which must be exactly
// h.SizeBytes long. Multi-byte primitive elements are byte-swapped from
// the backing little-endian format to host-native order. A QUEUE tag
// has no addressable window: Read instead pops its oldest record.
func (e *Engine) Read(h store.Handle, out []byte) error {
	if uint(len(out)) != h.SizeBytes {
		return daxerr.New(daxerr.BadArg, "output buffer size does not match handle size")
	}

	meta, err := e.store.ByIndex(h.TagIndex)
	if err != nil {
		return err
	}
	if meta.Attrs.Has(store.AttrQueue) {
		return e.readQueue(h, out)
	}

	if isBitAddressable(h) {
		return e.store.WithTagLock(h.TagIndex, false, func(meta store.TagMeta, data []byte, vr store.VirtualReadFunc, q store.Queue) error {
			src := data
			if meta.Attrs.Has(store.AttrVirtual) {
				if vr == nil {
					return daxerr.New(daxerr.Illegal, "virtual tag has no registered read callback")
				}
				buf := make([]byte, meta.Size)
				if err := vr(meta, buf); err != nil {
					return err
				}
				src = buf
			}
			readBits(src, h.BitOffset, h.ElementCount, out)
			return nil
		})
	}

	return e.store.WithTagLock(h.TagIndex, false, func(meta store.TagMeta, data []byte, vr store.VirtualReadFunc, q store.Queue) error {
		src := data
		if meta.Attrs.Has(store.AttrVirtual) {
			if vr == nil {
				return daxerr.New(daxerr.Illegal, "virtual tag has no registered read callback")
			}
			buf := make([]byte, meta.Size)
			if err := vr(meta, buf); err != nil {
				return err
			}
			src = buf
		}
		if h.ByteOffset+h.SizeBytes > uint(len(src)) {
			return daxerr.ErrTooBig
		}
		copy(out, src[h.ByteOffset:h.ByteOffset+h.SizeBytes])
		types.SwapElements(e.store.Registry(), h.Type, h.ElementCount, out)
		return nil
	})
}

// Write copies in (host-native order, byte-swapped to wire order before
// storage) into handle h's backing region, then reports the write to the
// event dispatcher while the tag's lock is still held. A QUEUE tag has
// no addressable window: Write instead pushes a new record.
func (e *Engine) Write(h store.Handle, in []byte) error {
	if uint(len(in)) != h.SizeBytes {
		return daxerr.New(daxerr.BadArg, "input buffer size does not match handle size")
	}

	meta, err := e.store.ByIndex(h.TagIndex)
	if err != nil {
		return err
	}
	if meta.Attrs.Has(store.AttrQueue) {
		return e.writeQueue(h, in)
	}

	if isBitAddressable(h) {
		return e.store.WithTagLock(h.TagIndex, true, func(meta store.TagMeta, data []byte, vr store.VirtualReadFunc, q store.Queue) error {
			if meta.Attrs.Has(store.AttrVirtual) {
				return daxerr.New(daxerr.Illegal, "virtual tags are read-only through this engine")
			}
			pre := e.snapshot(data)
			writeBits(data, h.BitOffset, h.ElementCount, in)
			e.notify(h.TagIndex, h.ByteOffset, h.SizeBytes, pre, data)
			return nil
		})
	}

	wire := append([]byte(nil), in...)
	types.SwapElements(e.store.Registry(), h.Type, h.ElementCount, wire)

	return e.store.WithTagLock(h.TagIndex, true, func(meta store.TagMeta, data []byte, vr store.VirtualReadFunc, q store.Queue) error {
		if meta.Attrs.Has(store.AttrVirtual) {
			return daxerr.New(daxerr.Illegal, "virtual tags are read-only through this engine")
		}
		if h.ByteOffset+h.SizeBytes > uint(len(data)) {
			return daxerr.ErrTooBig
		}
		pre := e.snapshot(data)
		copy(data[h.ByteOffset:h.ByteOffset+h.SizeBytes], wire)
		logger.TraceIf("io", "write tag=%d offset=%d size=%d", h.TagIndex, h.ByteOffset, h.SizeBytes)
		e.notify(h.TagIndex, h.ByteOffset, h.SizeBytes, pre, data)
		return nil
	})
}

// readQueue pops the oldest record queued on a QUEUE tag into out. QUEUE
// tags are not window-addressable: h must request exactly one full
// record (meta.Size bytes at offset 0).
func (e *Engine) readQueue(h store.Handle, out []byte) error {
	if h.ByteOffset != 0 {
		return daxerr.New(daxerr.Illegal, "queue tags do not support windowed reads")
	}
	return e.store.WithTagLock(h.TagIndex, true, func(meta store.TagMeta, data []byte, vr store.VirtualReadFunc, q store.Queue) error {
		if uint(len(out)) != meta.Size {
			return daxerr.New(daxerr.BadArg, "queue read must request the tag's full record size")
		}
		rec, err := q.Pop()
		if err != nil {
			return err
		}
		copy(out, rec)
		types.SwapElements(e.store.Registry(), h.Type, h.ElementCount, out)
		logger.TraceIf("io", "queue pop tag=%d depth=%d", h.TagIndex, q.Len())
		return nil
	})
}

// writeQueue pushes in as a new record onto a QUEUE tag's FIFO, then
// reports the push to the event dispatcher as if it were a write to the
// whole tag (CHANGE/SET/RESET-style event kinds still see every push).
func (e *Engine) writeQueue(h store.Handle, in []byte) error {
	if h.ByteOffset != 0 {
		return daxerr.New(daxerr.Illegal, "queue tags do not support windowed writes")
	}

	wire := append([]byte(nil), in...)
	types.SwapElements(e.store.Registry(), h.Type, h.ElementCount, wire)

	return e.store.WithTagLock(h.TagIndex, true, func(meta store.TagMeta, data []byte, vr store.VirtualReadFunc, q store.Queue) error {
		if uint(len(in)) != meta.Size {
			return daxerr.New(daxerr.BadArg, "queue write must supply the tag's full record size")
		}
		if err := q.Push(wire); err != nil {
			return err
		}
		logger.TraceIf("io", "queue push tag=%d depth=%d", h.TagIndex, q.Len())
		e.notify(h.TagIndex, 0, meta.Size, nil, wire)
		return nil
	})
}

// MaskWrite applies data to handle h's backing region under mask: bits set
// in mask are replaced from data, bits clear in mask are preserved. The
// final backing byte equals (old &^ mask) | (data & mask).
func (e *Engine) MaskWrite(h store.Handle, data, mask []byte) error {
	if uint(len(data)) != h.SizeBytes || uint(len(mask)) != h.SizeBytes {
		return daxerr.New(daxerr.BadArg, "data/mask size does not match handle size")
	}

	if isBitAddressable(h) {
		return e.store.WithTagLock(h.TagIndex, true, func(meta store.TagMeta, backing []byte, vr store.VirtualReadFunc, q store.Queue) error {
			if meta.Attrs.Has(store.AttrVirtual) {
				return daxerr.New(daxerr.Illegal, "virtual tags are read-only through this engine")
			}
			if meta.Attrs.Has(store.AttrQueue) {
				return daxerr.New(daxerr.Illegal, "masked writes are not valid against a queue tag")
			}
			pre := e.snapshot(backing)
			if err := maskWriteBits(backing, h.BitOffset, h.ElementCount, data, mask); err != nil {
				return err
			}
			e.notify(h.TagIndex, h.ByteOffset, h.SizeBytes, pre, backing)
			return nil
		})
	}

	wireData := append([]byte(nil), data...)
	types.SwapElements(e.store.Registry(), h.Type, h.ElementCount, wireData)
	wireMask := append([]byte(nil), mask...)
	types.SwapElements(e.store.Registry(), h.Type, h.ElementCount, wireMask)

	return e.store.WithTagLock(h.TagIndex, true, func(meta store.TagMeta, backing []byte, vr store.VirtualReadFunc, q store.Queue) error {
		if meta.Attrs.Has(store.AttrVirtual) {
			return daxerr.New(daxerr.Illegal, "virtual tags are read-only through this engine")
		}
		if meta.Attrs.Has(store.AttrQueue) {
			return daxerr.New(daxerr.Illegal, "masked writes are not valid against a queue tag")
		}
		if h.ByteOffset+h.SizeBytes > uint(len(backing)) {
			return daxerr.ErrTooBig
		}
		pre := e.snapshot(backing)
		region := backing[h.ByteOffset : h.ByteOffset+h.SizeBytes]
		for i := range region {
			region[i] = (region[i] &^ wireMask[i]) | (wireData[i] & wireMask[i])
		}
		e.notify(h.TagIndex, h.ByteOffset, h.SizeBytes, pre, backing)
		return nil
	})
}

// snapshot copies a tag's full backing region so event matching can
// compare pre/post state after the mutation has been applied in place.
func (e *Engine) snapshot(data []byte) []byte {
	if e.notifier == nil {
		return nil
	}
	return append([]byte(nil), data...)
}

func (e *Engine) notify(tagIndex uint32, offset, size uint, pre, post []byte) {
	if e.notifier == nil {
		return
	}
	e.notifier.Dispatch(tagIndex, offset, size, pre, post)
}
