package wire_test

import (
	"bytes"
	"testing"

	"opendax/internal/daxerr"
	"opendax/internal/wire"
)

func TestRequestRoundTrip(t *testing.T) {
	want := wire.Request{RequestID: 7, Opcode: wire.Write, Payload: []byte{1, 2, 3, 4}}

	var buf bytes.Buffer
	if err := wire.WriteRequest(&buf, want); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}

	got, err := wire.ReadRequest(&buf)
	if err != nil {
		t.Fatalf("ReadRequest: %v", err)
	}
	if got.RequestID != want.RequestID || got.Opcode != want.Opcode || !bytes.Equal(got.Payload, want.Payload) {
		t.Errorf("ReadRequest() = %+v, want %+v", got, want)
	}
}

func TestResponseRoundTrip(t *testing.T) {
	want := wire.Response{RequestID: 9, Status: daxerr.BadArg, Payload: []byte("nope")}

	var buf bytes.Buffer
	if err := wire.WriteResponse(&buf, want); err != nil {
		t.Fatalf("WriteResponse: %v", err)
	}

	sf, err := wire.ReadServerFrame(&buf)
	if err != nil {
		t.Fatalf("ReadServerFrame: %v", err)
	}
	if sf.IsEvent {
		t.Fatalf("ReadServerFrame classified a response as an event")
	}
	if sf.Response.RequestID != want.RequestID || sf.Response.Status != want.Status || !bytes.Equal(sf.Response.Payload, want.Payload) {
		t.Errorf("ReadServerFrame().Response = %+v, want %+v", sf.Response, want)
	}
}

func TestEventFrameHasZeroRequestID(t *testing.T) {
	payload := []byte{0xAA, 0xBB}

	var buf bytes.Buffer
	if err := wire.WriteEvent(&buf, payload); err != nil {
		t.Fatalf("WriteEvent: %v", err)
	}

	sf, err := wire.ReadServerFrame(&buf)
	if err != nil {
		t.Fatalf("ReadServerFrame: %v", err)
	}
	if !sf.IsEvent {
		t.Fatalf("ReadServerFrame did not classify a request_id=0 frame as an event")
	}
	if !bytes.Equal(sf.Event.Payload, payload) {
		t.Errorf("event payload = %v, want %v", sf.Event.Payload, payload)
	}
}

func TestReadServerFrameRejectsNonEventOpcodeOnRequestIDZero(t *testing.T) {
	var buf bytes.Buffer
	if err := wire.WriteRequest(&buf, wire.Request{RequestID: 0, Opcode: wire.Read}); err != nil {
		t.Fatalf("WriteRequest: %v", err)
	}
	if _, err := wire.ReadServerFrame(&buf); err == nil {
		t.Errorf("ReadServerFrame accepted request_id=0 with a non-EVENT opcode")
	}
}

func TestReadRequestRejectsOversizedLength(t *testing.T) {
	var buf bytes.Buffer
	// A length field claiming far more than MaxPayloadSize should be
	// rejected before any attempt to allocate or read that much.
	oversized := []byte{0xFF, 0xFF, 0xFF, 0x7F}
	buf.Write(oversized)
	if _, err := wire.ReadRequest(&buf); err == nil {
		t.Errorf("ReadRequest accepted an oversized length field")
	}
}

func TestMultipleFramesOnOneStream(t *testing.T) {
	var buf bytes.Buffer
	first := wire.Request{RequestID: 1, Opcode: wire.TagByName, Payload: []byte("tag1")}
	second := wire.Request{RequestID: 2, Opcode: wire.TagByName, Payload: []byte("tag2")}
	if err := wire.WriteRequest(&buf, first); err != nil {
		t.Fatalf("WriteRequest(first): %v", err)
	}
	if err := wire.WriteRequest(&buf, second); err != nil {
		t.Fatalf("WriteRequest(second): %v", err)
	}

	got1, err := wire.ReadRequest(&buf)
	if err != nil {
		t.Fatalf("ReadRequest(first): %v", err)
	}
	got2, err := wire.ReadRequest(&buf)
	if err != nil {
		t.Fatalf("ReadRequest(second): %v", err)
	}
	if string(got1.Payload) != "tag1" || string(got2.Payload) != "tag2" {
		t.Errorf("frames decoded out of order: %q then %q", got1.Payload, got2.Payload)
	}
}
