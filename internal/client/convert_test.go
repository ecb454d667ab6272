package client_test

import (
	"encoding/binary"
	"math"
	"testing"

	"opendax/internal/client"
	"opendax/internal/daxerr"
	"opendax/internal/types"
)

func TestFormatParseIntRoundTrip(t *testing.T) {
	tests := []struct {
		typ types.ID
		s   string
	}{
		{types.BYTE, "255"},
		{types.SINT, "-128"},
		{types.UINT, "65535"},
		{types.INT, "-32768"},
		{types.UDINT, "4294967295"},
		{types.DINT, "-2147483648"},
		{types.ULINT, "18446744073709551615"},
		{types.LINT, "-9223372036854775808"},
	}
	for _, tt := range tests {
		t.Run(tt.s, func(t *testing.T) {
			buf, err := client.ParseValue(tt.typ, tt.s)
			if err != nil {
				t.Fatalf("ParseValue(%v, %q): %v", tt.typ, tt.s, err)
			}
			got, err := client.FormatValue(tt.typ, buf)
			if err != nil {
				t.Fatalf("FormatValue: %v", err)
			}
			if got != tt.s {
				t.Errorf("round trip = %q, want %q", got, tt.s)
			}
		})
	}
}

// TestParseValueOverflowAndUnderflow checks the protocol's documented
// conversion contract: an out-of-range value still yields a usable,
// saturated buffer alongside the OVERFLOW/UNDERFLOW error.
func TestParseValueOverflowAndUnderflow(t *testing.T) {
	buf, err := client.ParseValue(types.UINT, "70000")
	if err == nil {
		t.Fatalf("ParseValue(UINT, 70000) did not report overflow")
	}
	if daxerr.CodeOf(err) != daxerr.Overflow {
		t.Errorf("code = %v, want OVERFLOW", daxerr.CodeOf(err))
	}
	if got := binary.NativeEndian.Uint16(buf); got != 65535 {
		t.Errorf("saturated buffer = %d, want 65535 (max UINT)", got)
	}

	buf, err = client.ParseValue(types.SINT, "-200")
	if err == nil {
		t.Fatalf("ParseValue(SINT, -200) did not report underflow")
	}
	if daxerr.CodeOf(err) != daxerr.Underflow {
		t.Errorf("code = %v, want UNDERFLOW", daxerr.CodeOf(err))
	}
	if got := int8(buf[0]); got != -128 {
		t.Errorf("saturated buffer = %d, want -128 (min SINT)", got)
	}

	if _, err := client.ParseValue(types.UDINT, "-1"); err == nil {
		t.Errorf("ParseValue(UDINT, -1) did not reject a negative value for an unsigned type")
	}
}

func TestParseFormatBool(t *testing.T) {
	buf, err := client.ParseValue(types.BOOL, "1")
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	if got, _ := client.FormatValue(types.BOOL, buf); got != "1" {
		t.Errorf("FormatValue = %q, want %q", got, "1")
	}
	if _, err := client.ParseValue(types.BOOL, "maybe"); err == nil {
		t.Errorf("ParseValue(BOOL, \"maybe\") did not report an error")
	}
}

func TestParseFormatReal(t *testing.T) {
	buf, err := client.ParseValue(types.REAL, "3.5")
	if err != nil {
		t.Fatalf("ParseValue: %v", err)
	}
	if got := math.Float32frombits(binary.NativeEndian.Uint32(buf)); got != 3.5 {
		t.Errorf("decoded REAL = %v, want 3.5", got)
	}
	if got, _ := client.FormatValue(types.REAL, buf); got != "3.5" {
		t.Errorf("FormatValue = %q, want %q", got, "3.5")
	}
}

func TestTimeCanonicalForm(t *testing.T) {
	const want = "2024-03-01T12:30:45.123"
	ms, err := client.ParseTime(want)
	if err != nil {
		t.Fatalf("ParseTime: %v", err)
	}
	if got := client.FormatTime(ms); got != want {
		t.Errorf("FormatTime(ParseTime(%q)) = %q, want %q", want, got, want)
	}
}

func TestParseTimeRejectsMalformedInput(t *testing.T) {
	if _, err := client.ParseTime("not-a-time"); err == nil {
		t.Errorf("ParseTime accepted malformed input")
	}
}

func TestFormatParseValueRejectCustomType(t *testing.T) {
	custom := types.CustomTypeBit | 1
	if _, err := client.FormatValue(custom, []byte{0, 0, 0, 0}); err == nil {
		t.Errorf("FormatValue accepted a compound type")
	}
	if _, err := client.ParseValue(custom, "0"); err == nil {
		t.Errorf("ParseValue accepted a compound type")
	}
}
