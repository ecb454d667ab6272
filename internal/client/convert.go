package client

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"time"

	"opendax/internal/daxerr"
	"opendax/internal/types"
)

// timeLayout is OpenDAX's canonical TIME string form: milliseconds since
// the Unix epoch, rendered as UTC. Grounded on the teacher's time helper
// convention of one fixed layout constant rather than accepting caller-
// supplied formats.
const timeLayout = "2006-01-02T15:04:05.000"

// FormatTime renders a TIME value (milliseconds since the Unix epoch) in
// OpenDAX's canonical string form.
func FormatTime(millis int64) string {
	return time.UnixMilli(millis).UTC().Format(timeLayout)
}

// ParseTime parses OpenDAX's canonical TIME string form back to
// milliseconds since the Unix epoch.
func ParseTime(s string) (int64, error) {
	t, err := time.Parse(timeLayout, s)
	if err != nil {
		return 0, daxerr.New(daxerr.BadArg, fmt.Sprintf("malformed TIME value %q", s))
	}
	return t.UnixMilli(), nil
}

// FormatValue renders a single element of primitive type typ, held in
// host-native byte order in buf (as Engine.Read returns it), as a
// human-readable string.
func FormatValue(typ types.ID, buf []byte) (string, error) {
	if types.IsCustom(typ) {
		return "", daxerr.New(daxerr.BadType, "FormatValue does not accept a compound type")
	}
	switch typ {
	case types.BOOL:
		if len(buf) < 1 {
			return "", daxerr.New(daxerr.BadArg, "short BOOL buffer")
		}
		if buf[0]&1 != 0 {
			return "1", nil
		}
		return "0", nil
	case types.TIME:
		if len(buf) < 8 {
			return "", daxerr.New(daxerr.BadArg, "short TIME buffer")
		}
		return FormatTime(int64(binary.NativeEndian.Uint64(buf))), nil
	case types.REAL:
		if len(buf) < 4 {
			return "", daxerr.New(daxerr.BadArg, "short REAL buffer")
		}
		f := math.Float32frombits(binary.NativeEndian.Uint32(buf))
		return strconv.FormatFloat(float64(f), 'g', -1, 32), nil
	case types.LREAL:
		if len(buf) < 8 {
			return "", daxerr.New(daxerr.BadArg, "short LREAL buffer")
		}
		f := math.Float64frombits(binary.NativeEndian.Uint64(buf))
		return strconv.FormatFloat(f, 'g', -1, 64), nil
	}

	v, signed, err := decodeInt(typ, buf)
	if err != nil {
		return "", err
	}
	if signed {
		return strconv.FormatInt(int64(v), 10), nil
	}
	return strconv.FormatUint(v, 10), nil
}

// ParseValue parses s as a single element of primitive type typ, into
// host-native byte order. Per the protocol's string-to-value contract,
// a value outside typ's representable range is saturated to that
// range's extreme and the returned buffer holds the saturated value —
// ParseValue still also returns a non-nil daxerr.Overflow/Underflow
// error so the caller can surface the condition, but the buffer is
// valid and usable either way. A malformed string (not a number, not a
// recognized BOOL/TIME literal) returns a daxerr.BadArg error; the
// buffer is then nil for BOOL and TIME and zero-filled for the numeric
// types.
func ParseValue(typ types.ID, s string) ([]byte, error) {
	if types.IsCustom(typ) {
		return nil, daxerr.New(daxerr.BadType, "ParseValue does not accept a compound type")
	}
	switch typ {
	case types.BOOL:
		switch s {
		case "0", "false", "FALSE":
			return []byte{0}, nil
		case "1", "true", "TRUE":
			return []byte{1}, nil
		}
		return nil, daxerr.New(daxerr.BadArg, fmt.Sprintf("invalid BOOL value %q", s))
	case types.TIME:
		ms, err := ParseTime(s)
		if err != nil {
			return nil, err
		}
		buf := make([]byte, 8)
		binary.NativeEndian.PutUint64(buf, uint64(ms))
		return buf, nil
	case types.REAL:
		f, err := strconv.ParseFloat(s, 32)
		buf := make([]byte, 4)
		binary.NativeEndian.PutUint32(buf, math.Float32bits(float32(f)))
		if err != nil {
			return buf, rangeError(err, s, f < 0)
		}
		return buf, nil
	case types.LREAL:
		f, err := strconv.ParseFloat(s, 64)
		buf := make([]byte, 8)
		binary.NativeEndian.PutUint64(buf, math.Float64bits(f))
		if err != nil {
			return buf, rangeError(err, s, f < 0)
		}
		return buf, nil
	}
	return encodeInt(typ, s)
}

// decodeInt reads buf as typ's integer width, returning the value
// widened to uint64 (sign bit intact for signed types, caller converts)
// and whether typ is signed.
func decodeInt(typ types.ID, buf []byte) (value uint64, signed bool, err error) {
	width := intWidth(typ)
	if width == 0 {
		return 0, false, daxerr.New(daxerr.BadType, fmt.Sprintf("type %d is not an integer type", typ))
	}
	if len(buf) < width {
		return 0, false, daxerr.New(daxerr.BadArg, "buffer shorter than type width")
	}
	signed = isSignedInt(typ)
	switch width {
	case 1:
		value = uint64(buf[0])
	case 2:
		value = uint64(binary.NativeEndian.Uint16(buf))
	case 4:
		value = uint64(binary.NativeEndian.Uint32(buf))
	case 8:
		value = binary.NativeEndian.Uint64(buf)
	}
	if signed {
		switch width {
		case 1:
			value = uint64(int64(int8(value)))
		case 2:
			value = uint64(int64(int16(value)))
		case 4:
			value = uint64(int64(int32(value)))
		}
	}
	return value, signed, nil
}

// encodeInt parses s for typ's integer width. strconv.ParseInt/ParseUint
// already saturate v to the requested bitSize's extreme on ErrRange, so
// the buffer built from v is the saturated value the protocol's
// conversion contract calls for; encodeInt only adds the
// Overflow/Underflow classification on top.
func encodeInt(typ types.ID, s string) ([]byte, error) {
	width := intWidth(typ)
	if width == 0 {
		return nil, daxerr.New(daxerr.BadType, fmt.Sprintf("type %d is not an integer type", typ))
	}
	buf := make([]byte, width)

	if isSignedInt(typ) {
		v, err := strconv.ParseInt(s, 10, width*8)
		switch width {
		case 1:
			buf[0] = byte(int8(v))
		case 2:
			binary.NativeEndian.PutUint16(buf, uint16(int16(v)))
		case 4:
			binary.NativeEndian.PutUint32(buf, uint32(int32(v)))
		case 8:
			binary.NativeEndian.PutUint64(buf, uint64(v))
		}
		if err != nil {
			return buf, rangeError(err, s, v < 0)
		}
		return buf, nil
	}

	v, err := strconv.ParseUint(s, 10, width*8)
	switch width {
	case 1:
		buf[0] = byte(v)
	case 2:
		binary.NativeEndian.PutUint16(buf, uint16(v))
	case 4:
		binary.NativeEndian.PutUint32(buf, uint32(v))
	case 8:
		binary.NativeEndian.PutUint64(buf, v)
	}
	if err != nil {
		return buf, rangeError(err, s, false)
	}
	return buf, nil
}

// rangeError maps a strconv.ParseInt/ParseUint range failure to the
// protocol's OVERFLOW/UNDERFLOW status, distinguishing them by the sign
// of the value the caller attempted to encode.
func rangeError(err error, s string, negative bool) error {
	var numErr *strconv.NumError
	if ne, ok := err.(*strconv.NumError); ok {
		numErr = ne
	}
	if numErr != nil && numErr.Err == strconv.ErrRange {
		if negative {
			return daxerr.New(daxerr.Underflow, fmt.Sprintf("%q underflows this type's range", s))
		}
		return daxerr.New(daxerr.Overflow, fmt.Sprintf("%q overflows this type's range", s))
	}
	return daxerr.New(daxerr.BadArg, fmt.Sprintf("invalid integer value %q", s))
}

func intWidth(typ types.ID) int {
	switch typ {
	case types.BYTE, types.SINT, types.CHAR:
		return 1
	case types.WORD, types.UINT, types.INT:
		return 2
	case types.DWORD, types.UDINT, types.DINT:
		return 4
	case types.LWORD, types.ULINT, types.LINT:
		return 8
	default:
		return 0
	}
}

func isSignedInt(typ types.ID) bool {
	switch typ {
	case types.SINT, types.INT, types.DINT, types.LINT:
		return true
	default:
		return false
	}
}
