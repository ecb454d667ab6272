package server

import (
	"fmt"

	"opendax/internal/client"
	"opendax/internal/daxerr"
	"opendax/internal/events"
	"opendax/internal/ioengine"
	"opendax/internal/store"
	"opendax/internal/types"
	"opendax/internal/wire"
	"opendax/logger"
)

// dispatch routes one decoded request to its opcode handler and always
// returns a Response — handler errors are translated to a wire status
// rather than propagated, since a request-level failure never ends the
// session (only a transport-level read/write failure does).
//
// Open Question resolution (spec.md §9, Modbus-style opcode
// fall-through): each case below runs exactly one handler and falls out
// of the switch; there is no fallthrough between opcodes; an op any
// case doesn't recognize reaches the default NOT_IMPLEMENTED branch.
func (s *Server) dispatch(sess *client.Session, req wire.Request) wire.Response {
	var payload []byte
	var err error

	// tc is nil (every method a no-op) unless logger.EnableTracing(true)
	// has been called; StartSpan/EndSpan around the I/O-engine-backed
	// opcodes below is the granularity worth timing separately from
	// request decode/encode.
	tc := logger.StartTrace(req.Opcode.String())
	defer tc.EndTrace()

	switch req.Opcode {
	case wire.TagAdd:
		payload, err = s.handleTagAdd(req.Payload)
	case wire.TagDel:
		payload, err = s.handleTagDel(req.Payload)
	case wire.TagByIndex:
		payload, err = s.handleTagByIndex(req.Payload)
	case wire.TagByName:
		payload, err = s.handleTagByName(req.Payload)
	case wire.Read:
		tc.StartSpan("ioengine")
		payload, err = s.handleRead(req.Payload)
		tc.EndSpan("ioengine")
	case wire.Write:
		tc.StartSpan("ioengine")
		payload, err = s.handleWrite(req.Payload)
		tc.EndSpan("ioengine")
	case wire.MaskWrite:
		tc.StartSpan("ioengine")
		payload, err = s.handleMaskWrite(req.Payload)
		tc.EndSpan("ioengine")
	case wire.Atomic:
		tc.StartSpan("ioengine")
		payload, err = s.handleAtomic(req.Payload)
		tc.EndSpan("ioengine")
	case wire.CDTRegister:
		payload, err = s.handleCDTRegister(req.Payload)
	case wire.CDTGet:
		payload, err = s.handleCDTGet(req.Payload)
	case wire.EventAdd:
		payload, err = s.handleEventAdd(sess, req.Payload)
	case wire.EventDel:
		payload, err = s.handleEventDel(req.Payload)
	case wire.EventOptions:
		payload, err = s.handleEventOptions(req.Payload)
	case wire.ModRegister:
		payload, err = s.handleModRegister(req.Payload)
	case wire.ModSetRunning:
		payload, err = s.handleModSetRunning(req.Payload)
	default:
		err = daxerr.New(daxerr.NotImplemented, fmt.Sprintf("opcode %s not implemented", req.Opcode))
	}

	if err != nil {
		fr := logger.NewFrame(req.RequestID, req.Opcode.String())
		if daxerr.CodeOf(err) == daxerr.NotFound || daxerr.CodeOf(err) == daxerr.BadArg {
			logger.DebugFrame(fr, "%v", err)
		} else {
			logger.WarnFrame(fr, "%v", err)
		}
		return wire.Response{RequestID: req.RequestID, Status: daxerr.CodeOf(err)}
	}
	return wire.Response{RequestID: req.RequestID, Status: daxerr.OK, Payload: payload}
}

func toHandle(hw wire.HandleWire) store.Handle {
	return store.Handle{
		TagIndex:     hw.TagIndex,
		ByteOffset:   uint(hw.ByteOffset),
		BitOffset:    uint(hw.BitOffset),
		ElementCount: uint(hw.ElementCount),
		Type:         types.ID(hw.Type),
		SizeBytes:    uint(hw.SizeBytes),
	}
}

func fromHandle(h store.Handle) wire.HandleWire {
	return wire.HandleWire{
		TagIndex:     h.TagIndex,
		ByteOffset:   uint32(h.ByteOffset),
		BitOffset:    uint32(h.BitOffset),
		ElementCount: uint32(h.ElementCount),
		Type:         uint32(h.Type),
		SizeBytes:    uint32(h.SizeBytes),
	}
}

func encodeTagMeta(meta store.TagMeta) []byte {
	var buf []byte
	buf = wire.PutU32(buf, meta.Index)
	buf = wire.PutU32(buf, uint32(meta.Type))
	buf = wire.PutU32(buf, uint32(meta.Count))
	buf = wire.PutU16(buf, uint16(meta.Attrs))
	buf = wire.PutString(buf, meta.Name)
	return buf
}

func (s *Server) handleTagAdd(p []byte) ([]byte, error) {
	name, p, err := wire.GetString(p)
	if err != nil {
		return nil, err
	}
	typ, p, err := wire.GetU32(p)
	if err != nil {
		return nil, err
	}
	count, p, err := wire.GetU32(p)
	if err != nil {
		return nil, err
	}
	attrs, _, err := wire.GetU16(p)
	if err != nil {
		return nil, err
	}
	index, err := s.store.Add(name, types.ID(typ), uint(count), store.Attr(attrs))
	if err != nil {
		return nil, err
	}
	return wire.PutU32(nil, index), nil
}

func (s *Server) handleTagDel(p []byte) ([]byte, error) {
	index, _, err := wire.GetU32(p)
	if err != nil {
		return nil, err
	}
	return nil, s.store.Delete(index)
}

func (s *Server) handleTagByIndex(p []byte) ([]byte, error) {
	index, _, err := wire.GetU32(p)
	if err != nil {
		return nil, err
	}
	meta, err := s.store.ByIndex(index)
	if err != nil {
		return nil, err
	}
	return encodeTagMeta(meta), nil
}

func (s *Server) handleTagByName(p []byte) ([]byte, error) {
	name, _, err := wire.GetString(p)
	if err != nil {
		return nil, err
	}
	meta, err := s.store.ByName(name)
	if err != nil {
		return nil, err
	}
	return encodeTagMeta(meta), nil
}

func (s *Server) handleRead(p []byte) ([]byte, error) {
	hw, _, err := wire.GetHandle(p)
	if err != nil {
		return nil, err
	}
	h := toHandle(hw)
	out := make([]byte, h.SizeBytes)
	if err := s.engine.Read(h, out); err != nil {
		return nil, err
	}
	return out, nil
}

func (s *Server) handleWrite(p []byte) ([]byte, error) {
	hw, data, err := wire.GetHandle(p)
	if err != nil {
		return nil, err
	}
	h := toHandle(hw)
	return nil, s.engine.Write(h, data)
}

func (s *Server) handleMaskWrite(p []byte) ([]byte, error) {
	hw, p, err := wire.GetHandle(p)
	if err != nil {
		return nil, err
	}
	h := toHandle(hw)
	data, p, err := wire.GetBytes(p, int(h.SizeBytes))
	if err != nil {
		return nil, err
	}
	mask, _, err := wire.GetBytes(p, int(h.SizeBytes))
	if err != nil {
		return nil, err
	}
	return nil, s.engine.MaskWrite(h, data, mask)
}

func (s *Server) handleAtomic(p []byte) ([]byte, error) {
	hw, p, err := wire.GetHandle(p)
	if err != nil {
		return nil, err
	}
	h := toHandle(hw)
	opByte, operand, err := wire.GetBytes(p, 1)
	if err != nil {
		return nil, err
	}
	return nil, s.engine.AtomicOp(h, operand, ioengine.AtomicKind(opByte[0]))
}

func (s *Server) handleCDTRegister(p []byte) ([]byte, error) {
	name, p, err := wire.GetString(p)
	if err != nil {
		return nil, err
	}
	memberCount, p, err := wire.GetU16(p)
	if err != nil {
		return nil, err
	}
	members := make([]types.Member, 0, memberCount)
	for i := uint16(0); i < memberCount; i++ {
		var mName string
		mName, p, err = wire.GetString(p)
		if err != nil {
			return nil, err
		}
		var mType, mCount uint32
		mType, p, err = wire.GetU32(p)
		if err != nil {
			return nil, err
		}
		mCount, p, err = wire.GetU32(p)
		if err != nil {
			return nil, err
		}
		members = append(members, types.Member{Name: mName, Type: types.ID(mType), Count: uint(mCount)})
	}
	id, err := s.registry.RegisterCDT(name, members)
	if err != nil {
		return nil, err
	}
	return wire.PutU32(nil, uint32(id)), nil
}

func (s *Server) handleCDTGet(p []byte) ([]byte, error) {
	typ, _, err := wire.GetU32(p)
	if err != nil {
		return nil, err
	}
	id := types.ID(typ)
	if _, ok := s.registry.ByName(s.registry.NameOf(id)); !types.IsCustom(id) || !ok {
		return nil, daxerr.New(daxerr.NotFound, fmt.Sprintf("type %d is not a registered compound type", id))
	}
	n := s.registry.MemberCount(id)

	var buf []byte
	buf = wire.PutU16(buf, uint16(n))
	var encodeErr error
	s.registry.IterMembers(id, func(m types.Member, bitOffset uint) {
		if encodeErr != nil {
			return
		}
		buf = wire.PutString(buf, m.Name)
		buf = wire.PutU32(buf, uint32(m.Type))
		buf = wire.PutU32(buf, uint32(m.Count))
		buf = wire.PutU32(buf, uint32(bitOffset))
	})
	if encodeErr != nil {
		return nil, encodeErr
	}
	return buf, nil
}

func (s *Server) handleEventAdd(sess *client.Session, p []byte) ([]byte, error) {
	hw, p, err := wire.GetHandle(p)
	if err != nil {
		return nil, err
	}
	kindByte, p, err := wire.GetBytes(p, 1)
	if err != nil {
		return nil, err
	}
	threshold, p, err := wire.GetF64(p)
	if err != nil {
		return nil, err
	}
	deadband, p, err := wire.GetF64(p)
	if err != nil {
		return nil, err
	}
	optsByte, _, err := wire.GetBytes(p, 1)
	if err != nil {
		return nil, err
	}

	h := toHandle(hw)
	kind := events.Kind(kindByte[0])
	opts := events.Options(optsByte[0])
	id, err := s.events.Add(h, kind, threshold, deadband, opts, sess, nil)
	if err != nil {
		return nil, err
	}
	return wire.PutU64(nil, id), nil
}

func (s *Server) handleEventDel(p []byte) ([]byte, error) {
	id, _, err := wire.GetU64(p)
	if err != nil {
		return nil, err
	}
	return nil, s.events.Del(id)
}

func (s *Server) handleEventOptions(p []byte) ([]byte, error) {
	id, p, err := wire.GetU64(p)
	if err != nil {
		return nil, err
	}
	optsByte, _, err := wire.GetBytes(p, 1)
	if err != nil {
		return nil, err
	}
	return nil, s.events.Options(id, events.Options(optsByte[0]))
}

// statusTagName is the per-module running/stopped tag exposed to other
// clients per spec.md §6's "Exit / status" note.
func statusTagName(moduleName string) string {
	return "_status_" + moduleName
}

func (s *Server) handleModRegister(p []byte) ([]byte, error) {
	name, _, err := wire.GetString(p)
	if err != nil {
		return nil, err
	}
	index, err := s.store.Add(statusTagName(name), types.BOOL, 1, store.AttrSpecial)
	if err != nil {
		return nil, err
	}
	return wire.PutU32(nil, index), nil
}

func (s *Server) handleModSetRunning(p []byte) ([]byte, error) {
	name, p, err := wire.GetString(p)
	if err != nil {
		return nil, err
	}
	runningByte, _, err := wire.GetBytes(p, 1)
	if err != nil {
		return nil, err
	}
	h, err := s.store.ResolveHandle(statusTagName(name), 1)
	if err != nil {
		return nil, err
	}
	return nil, s.engine.Write(h, runningByte)
}
