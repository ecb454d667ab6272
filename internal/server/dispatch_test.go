package server

import (
	"testing"

	"opendax/config"
	"opendax/internal/client"
	"opendax/internal/daxerr"
	"opendax/internal/events"
	"opendax/internal/ioengine"
	"opendax/internal/store"
	"opendax/internal/types"
	"opendax/internal/wire"
)

func newTestServer(t *testing.T) *Server {
	t.Helper()
	reg := types.NewRegistry()
	st := store.New(reg, 16, 32)
	eng := ioengine.New(st)
	disp := events.New(reg)
	eng.SetNotifier(disp)
	return New(&config.Config{EventQueueDepth: 16}, reg, st, eng, disp)
}

func newTestSession(t *testing.T) *client.Session {
	t.Helper()
	return client.NewSession(16, func() {})
}

func mustOK(t *testing.T, resp wire.Response) wire.Response {
	t.Helper()
	if resp.Status != daxerr.OK {
		t.Fatalf("status = %v, want OK", resp.Status)
	}
	return resp
}

// TestDispatchTagLifecycle covers TAG_ADD, TAG_BY_NAME, TAG_BY_INDEX and
// TAG_DEL round-tripping tag metadata through the opcode handlers.
func TestDispatchTagLifecycle(t *testing.T) {
	s := newTestServer(t)
	sess := newTestSession(t)

	var addPayload []byte
	addPayload = wire.PutString(addPayload, "line1_speed")
	addPayload = wire.PutU32(addPayload, uint32(types.DINT))
	addPayload = wire.PutU32(addPayload, 1)
	addPayload = wire.PutU16(addPayload, 0)

	resp := mustOK(t, s.dispatch(sess, wire.Request{RequestID: 1, Opcode: wire.TagAdd, Payload: addPayload}))
	index, _, err := wire.GetU32(resp.Payload)
	if err != nil {
		t.Fatalf("GetU32: %v", err)
	}

	byName := mustOK(t, s.dispatch(sess, wire.Request{RequestID: 2, Opcode: wire.TagByName, Payload: wire.PutString(nil, "line1_speed")}))
	gotIndex, _, _ := wire.GetU32(byName.Payload)
	if gotIndex != index {
		t.Errorf("TagByName index = %d, want %d", gotIndex, index)
	}

	byIndex := mustOK(t, s.dispatch(sess, wire.Request{RequestID: 3, Opcode: wire.TagByIndex, Payload: wire.PutU32(nil, index)}))
	_, rest, _ := wire.GetU32(byIndex.Payload)
	typ, rest, _ := wire.GetU32(rest)
	if types.ID(typ) != types.DINT {
		t.Errorf("TagByIndex type = %v, want DINT", types.ID(typ))
	}
	_ = rest

	del := s.dispatch(sess, wire.Request{RequestID: 4, Opcode: wire.TagDel, Payload: wire.PutU32(nil, index)})
	if del.Status != daxerr.OK {
		t.Fatalf("TagDel status = %v, want OK", del.Status)
	}

	missing := s.dispatch(sess, wire.Request{RequestID: 5, Opcode: wire.TagByIndex, Payload: wire.PutU32(nil, index)})
	if missing.Status != daxerr.NotFound {
		t.Errorf("TagByIndex after delete = %v, want NOT_FOUND", missing.Status)
	}
}

// TestDispatchReadWriteRoundTrip covers READ/WRITE through a resolved
// handle end to end, scenario S2's byte-swap path included via the
// underlying ioengine.
func TestDispatchReadWriteRoundTrip(t *testing.T) {
	s := newTestServer(t)
	sess := newTestSession(t)

	var addPayload []byte
	addPayload = wire.PutString(addPayload, "counter")
	addPayload = wire.PutU32(addPayload, uint32(types.DINT))
	addPayload = wire.PutU32(addPayload, 1)
	addPayload = wire.PutU16(addPayload, 0)
	s.dispatch(sess, wire.Request{RequestID: 1, Opcode: wire.TagAdd, Payload: addPayload})

	h, err := s.store.ResolveHandle("counter", 1)
	if err != nil {
		t.Fatalf("ResolveHandle: %v", err)
	}
	hw := fromHandle(h)

	data := []byte{42, 0, 0, 0}
	writePayload := wire.PutHandle(nil, hw)
	writePayload = append(writePayload, data...)
	mustOK(t, s.dispatch(sess, wire.Request{RequestID: 2, Opcode: wire.Write, Payload: writePayload}))

	readResp := mustOK(t, s.dispatch(sess, wire.Request{RequestID: 3, Opcode: wire.Read, Payload: wire.PutHandle(nil, hw)}))
	if readResp.Payload[0] != 42 {
		t.Errorf("Read back = %v, want [42 0 0 0]", readResp.Payload)
	}
}

// TestDispatchUnknownOpcodeReportsNotImplemented exercises the default
// branch of the opcode switch.
func TestDispatchUnknownOpcodeReportsNotImplemented(t *testing.T) {
	s := newTestServer(t)
	sess := newTestSession(t)

	resp := s.dispatch(sess, wire.Request{RequestID: 1, Opcode: wire.Opcode(9999)})
	if resp.Status != daxerr.NotImplemented {
		t.Errorf("status = %v, want NOT_IMPLEMENTED", resp.Status)
	}
}

// TestDispatchModuleStatusTag covers MOD_REGISTER/MOD_SET_RUNNING's
// per-module status tag exposure (spec.md §6's "Exit/status" note).
func TestDispatchModuleStatusTag(t *testing.T) {
	s := newTestServer(t)
	sess := newTestSession(t)

	mustOK(t, s.dispatch(sess, wire.Request{RequestID: 1, Opcode: wire.ModRegister, Payload: wire.PutString(nil, "plc_sim")}))

	setPayload := wire.PutString(nil, "plc_sim")
	setPayload = append(setPayload, 1)
	mustOK(t, s.dispatch(sess, wire.Request{RequestID: 2, Opcode: wire.ModSetRunning, Payload: setPayload}))

	meta, err := s.store.ByName(statusTagName("plc_sim"))
	if err != nil {
		t.Fatalf("ByName: %v", err)
	}
	if meta.Type != types.BOOL {
		t.Errorf("status tag type = %v, want BOOL", meta.Type)
	}
	if !meta.Attrs.Has(store.AttrSpecial) {
		t.Errorf("status tag missing AttrSpecial")
	}

	readResp := mustOK(t, s.dispatch(sess, wire.Request{RequestID: 3, Opcode: wire.TagByName, Payload: wire.PutString(nil, statusTagName("plc_sim"))}))
	index, _, _ := wire.GetU32(readResp.Payload)
	h, err := s.store.ResolveHandle(statusTagName("plc_sim"), 1)
	if err != nil {
		t.Fatalf("ResolveHandle: %v", err)
	}
	out := make([]byte, h.SizeBytes)
	if err := s.engine.Read(h, out); err != nil {
		t.Fatalf("Read: %v", err)
	}
	if out[0] != 1 {
		t.Errorf("status tag value = %v, want [1] running", out)
	}
	_ = index
}

// TestDispatchEventAddDeliversNotification wires EVENT_ADD through to the
// session's notification channel on a subsequent WRITE.
func TestDispatchEventAddDeliversNotification(t *testing.T) {
	s := newTestServer(t)
	sess := newTestSession(t)

	var addPayload []byte
	addPayload = wire.PutString(addPayload, "setpoint")
	addPayload = wire.PutU32(addPayload, uint32(types.DINT))
	addPayload = wire.PutU32(addPayload, 1)
	addPayload = wire.PutU16(addPayload, 0)
	s.dispatch(sess, wire.Request{RequestID: 1, Opcode: wire.TagAdd, Payload: addPayload})

	h, _ := s.store.ResolveHandle("setpoint", 1)
	hw := fromHandle(h)

	var evPayload []byte
	evPayload = wire.PutHandle(evPayload, hw)
	evPayload = append(evPayload, byte(events.Write))
	evPayload = wire.PutF64(evPayload, 0)
	evPayload = wire.PutF64(evPayload, 0)
	evPayload = append(evPayload, 0)
	mustOK(t, s.dispatch(sess, wire.Request{RequestID: 2, Opcode: wire.EventAdd, Payload: evPayload}))

	writePayload := wire.PutHandle(nil, hw)
	writePayload = append(writePayload, 7, 0, 0, 0)
	mustOK(t, s.dispatch(sess, wire.Request{RequestID: 3, Opcode: wire.Write, Payload: writePayload}))

	select {
	case n := <-sess.Events():
		if n.TagIndex != hw.TagIndex {
			t.Errorf("notification tag index = %d, want %d", n.TagIndex, hw.TagIndex)
		}
	default:
		t.Fatalf("expected a queued notification after WRITE")
	}
}
