package wire

import (
	"encoding/binary"
	"fmt"
	"io"

	"opendax/internal/daxerr"
)

// Per spec.md §6: a request frame is `{u32 length, u32 request_id, u16
// opcode, payload}`; a response frame is `{u32 length, u32 request_id,
// i32 status, payload}`. length covers everything after the length
// field itself, mirroring the teacher's fixed-header convention of a
// leading size field sized to the remainder of the record
// (`storage/binary/format.go`'s Header.FileSize/section-size fields),
// adapted here from a file header to a stream frame.
const (
	requestFixedSize  = 4 + 2 // request_id + opcode
	responseFixedSize = 4 + 4 // request_id + status

	// MaxPayloadSize bounds a single frame's payload so a corrupt or
	// hostile length field can't make a session allocate unbounded
	// memory before the real payload arrives.
	MaxPayloadSize = 64 * 1024 * 1024
)

// Request is one client->server call.
type Request struct {
	RequestID uint32
	Opcode    Opcode
	Payload   []byte
}

// Response is one server->client reply to a specific RequestID.
type Response struct {
	RequestID uint32
	Status    daxerr.Code
	Payload   []byte
}

// EventFrame is an unsolicited server->client notification. Per spec.md
// §6 it reuses the request layout (an opcode field, always Event) with
// RequestID fixed at 0 — no client request ever carries id 0, so the
// client's read loop uses RequestID==0 as the signal to decode the
// remainder as an EventFrame rather than a Response.
type EventFrame struct {
	Payload []byte
}

// WriteRequest encodes and writes a request frame.
func WriteRequest(w io.Writer, req Request) error {
	if len(req.Payload) > MaxPayloadSize {
		return daxerr.New(daxerr.TooBig, fmt.Sprintf("request payload %d bytes exceeds %d", len(req.Payload), MaxPayloadSize))
	}
	buf := make([]byte, 4+requestFixedSize+len(req.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(requestFixedSize+len(req.Payload)))
	binary.LittleEndian.PutUint32(buf[4:8], req.RequestID)
	binary.LittleEndian.PutUint16(buf[8:10], uint16(req.Opcode))
	copy(buf[10:], req.Payload)
	_, err := w.Write(buf)
	return err
}

// ReadRequest reads and decodes one request frame.
func ReadRequest(r io.Reader) (Request, error) {
	length, rest, err := readFrameBody(r)
	if err != nil {
		return Request{}, err
	}
	if length < requestFixedSize {
		return Request{}, daxerr.New(daxerr.BadArg, "request frame shorter than its fixed fields")
	}
	requestID := binary.LittleEndian.Uint32(rest[0:4])
	opcode := Opcode(binary.LittleEndian.Uint16(rest[4:6]))
	payload := rest[6:]
	return Request{RequestID: requestID, Opcode: opcode, Payload: payload}, nil
}

// WriteResponse encodes and writes a response frame.
func WriteResponse(w io.Writer, resp Response) error {
	if len(resp.Payload) > MaxPayloadSize {
		return daxerr.New(daxerr.TooBig, fmt.Sprintf("response payload %d bytes exceeds %d", len(resp.Payload), MaxPayloadSize))
	}
	buf := make([]byte, 4+responseFixedSize+len(resp.Payload))
	binary.LittleEndian.PutUint32(buf[0:4], uint32(responseFixedSize+len(resp.Payload)))
	binary.LittleEndian.PutUint32(buf[4:8], resp.RequestID)
	binary.LittleEndian.PutUint32(buf[8:12], uint32(int32(resp.Status)))
	copy(buf[12:], resp.Payload)
	_, err := w.Write(buf)
	return err
}

// WriteEvent encodes and writes an unsolicited EVENT frame.
func WriteEvent(w io.Writer, payload []byte) error {
	return WriteRequest(w, Request{RequestID: 0, Opcode: Event, Payload: payload})
}

// ServerFrame is whichever of Response or EventFrame the client's read
// loop just decoded off the wire.
type ServerFrame struct {
	IsEvent  bool
	Response Response
	Event    EventFrame
}

// ReadServerFrame reads one server->client frame and decodes it as an
// EventFrame when RequestID is 0, or as a Response otherwise.
func ReadServerFrame(r io.Reader) (ServerFrame, error) {
	length, rest, err := readFrameBody(r)
	if err != nil {
		return ServerFrame{}, err
	}
	if length < 4 {
		return ServerFrame{}, daxerr.New(daxerr.BadArg, "server frame shorter than its request id field")
	}
	requestID := binary.LittleEndian.Uint32(rest[0:4])
	if requestID == 0 {
		if length < requestFixedSize {
			return ServerFrame{}, daxerr.New(daxerr.BadArg, "event frame shorter than its fixed fields")
		}
		opcode := Opcode(binary.LittleEndian.Uint16(rest[4:6]))
		if opcode != Event {
			return ServerFrame{}, daxerr.New(daxerr.BadArg, fmt.Sprintf("frame with request_id 0 carries opcode %s, want EVENT", opcode))
		}
		return ServerFrame{IsEvent: true, Event: EventFrame{Payload: rest[6:]}}, nil
	}

	if length < responseFixedSize {
		return ServerFrame{}, daxerr.New(daxerr.BadArg, "response frame shorter than its fixed fields")
	}
	status := daxerr.Code(int32(binary.LittleEndian.Uint32(rest[4:8])))
	return ServerFrame{Response: Response{RequestID: requestID, Status: status, Payload: rest[8:]}}, nil
}

// readFrameBody reads the u32 length prefix and the length bytes that
// follow it, returning the decoded length and those bytes.
func readFrameBody(r io.Reader) (length uint32, body []byte, err error) {
	var lenBuf [4]byte
	if _, err := io.ReadFull(r, lenBuf[:]); err != nil {
		return 0, nil, err
	}
	length = binary.LittleEndian.Uint32(lenBuf[:])
	if length > MaxPayloadSize+responseFixedSize {
		return 0, nil, daxerr.New(daxerr.TooBig, fmt.Sprintf("frame length %d exceeds maximum", length))
	}
	body = make([]byte, length)
	if _, err := io.ReadFull(r, body); err != nil {
		return 0, nil, err
	}
	return length, body, nil
}
