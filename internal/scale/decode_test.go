package scale

import (
	"strings"
	"testing"
)

func TestDecode(t *testing.T) {
	tests := []struct {
		name       string
		payload    []byte
		wantWeight int
		wantOK     bool
	}{
		{
			name:       "four byte payload",
			payload:    []byte{0, 0, 0x01, 0x2C},
			wantWeight: 300,
			wantOK:     true,
		},
		{
			name:       "negative with sign byte set",
			payload:    []byte{0, 0, 0x01, 0x2C, 0, 0, 0, 1},
			wantWeight: -300,
			wantOK:     true,
		},
		{
			name:       "sign byte other than one stays positive",
			payload:    []byte{0, 0, 0x01, 0x2C, 0, 0, 0, 2},
			wantWeight: 300,
			wantOK:     true,
		},
		{
			name:       "seven bytes has no sign byte",
			payload:    []byte{0, 0, 0x01, 0x2C, 0, 0, 0},
			wantWeight: 300,
			wantOK:     true,
		},
		{
			name:       "zero weight",
			payload:    []byte{0, 0, 0, 0, 0, 0, 0, 0},
			wantWeight: 0,
			wantOK:     true,
		},
		{
			name:       "max magnitude",
			payload:    []byte{0, 0, 0xFF, 0xFF},
			wantWeight: 65535,
			wantOK:     true,
		},
		{
			name:    "three bytes too short",
			payload: []byte{0, 0, 0x01},
			wantOK:  false,
		},
		{
			name:    "empty payload",
			payload: nil,
			wantOK:  false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			weight, _, ok := Decode(tt.payload)
			if ok != tt.wantOK {
				t.Fatalf("Decode() ok = %v, want %v", ok, tt.wantOK)
			}
			if ok && weight != tt.wantWeight {
				t.Errorf("Decode() weight = %d, want %d", weight, tt.wantWeight)
			}
		})
	}
}

func TestDecodeDetails(t *testing.T) {
	_, details, ok := Decode([]byte{0xAA, 0xBB, 0x01, 0x2C, 0, 0, 0, 1})
	if !ok {
		t.Fatal("Decode() ok = false, want true")
	}
	if details.RawHigh != 0x01 {
		t.Errorf("RawHigh = %#x, want 0x01", details.RawHigh)
	}
	if details.RawLow != 0x2C {
		t.Errorf("RawLow = %#x, want 0x2C", details.RawLow)
	}
	if details.SignFlag != 1 {
		t.Errorf("SignFlag = %d, want 1", details.SignFlag)
	}
}

func TestDecodeShortPayloadSignFlagZero(t *testing.T) {
	_, details, ok := Decode([]byte{0, 0, 0, 5})
	if !ok {
		t.Fatal("Decode() ok = false, want true")
	}
	if details.SignFlag != 0 {
		t.Errorf("SignFlag = %d, want 0 when payload has no sign byte", details.SignFlag)
	}
}

func TestFormatPayloadWithWeight(t *testing.T) {
	line := FormatPayload([]byte{0, 0, 0x01, 0x2C})

	if !strings.Contains(line, "HEX: 0000012c") {
		t.Errorf("FormatPayload() = %q, want hex dump 0000012c", line)
	}
	if !strings.Contains(line, "RAW: [0, 0, 1, 44]") {
		t.Errorf("FormatPayload() = %q, want raw list [0, 0, 1, 44]", line)
	}
	if !strings.Contains(line, "WEIGHT: 300") {
		t.Errorf("FormatPayload() = %q, want WEIGHT: 300", line)
	}
}

func TestFormatPayloadTooShortOmitsWeight(t *testing.T) {
	line := FormatPayload([]byte{0x01, 0x02})

	if !strings.Contains(line, "HEX: 0102") {
		t.Errorf("FormatPayload() = %q, want hex dump 0102", line)
	}
	if strings.Contains(line, "WEIGHT") {
		t.Errorf("FormatPayload() = %q, should omit WEIGHT for short payloads", line)
	}
}

func TestMatchesAdvertisedName(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"sencorfood", true},
		{"SencorFood Scale", true},
		{"SENCORFOOD-1234", true},
		{"kitchen thing", false},
		{"", false},
	}

	for _, tt := range tests {
		if got := MatchesAdvertisedName(tt.name); got != tt.want {
			t.Errorf("MatchesAdvertisedName(%q) = %v, want %v", tt.name, got, tt.want)
		}
	}
}
