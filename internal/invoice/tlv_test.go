package invoice

import (
	"strings"
	"testing"
)

func TestEncodeTLVRoundTrip(t *testing.T) {
	payload, err := EncodeTLV("Qayd Restaurant", "310000000000003", "2026-03-01T18:30:00Z", 11500, 1500)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}

	fields, err := DecodeTLV(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	want := map[byte]string{
		1: "Qayd Restaurant",
		2: "310000000000003",
		3: "2026-03-01T18:30:00Z",
		4: "115.00",
		5: "15.00",
	}
	for tag, value := range want {
		if fields[tag] != value {
			t.Fatalf("tag %d = %q, want %q", tag, fields[tag], value)
		}
	}
}

func TestEncodeTLVArabicSellerName(t *testing.T) {
	name := "مطعم قيد"
	payload, err := EncodeTLV(name, "310000000000003", "2026-03-01T18:30:00Z", 5000, 652)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	fields, err := DecodeTLV(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if fields[1] != name {
		t.Fatalf("seller name = %q, want %q", fields[1], name)
	}
	if fields[5] != "6.52" {
		t.Fatalf("vat total = %q, want 6.52", fields[5])
	}
}

func TestEncodeTLVDeterministic(t *testing.T) {
	a, err := EncodeTLV("Qayd", "300000000000003", "2026-01-01T00:00:00Z", 100, 13)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	b, _ := EncodeTLV("Qayd", "300000000000003", "2026-01-01T00:00:00Z", 100, 13)
	if a != b {
		t.Fatalf("same input produced different payloads")
	}
}

func TestEncodeTLVRejectsOversizedValue(t *testing.T) {
	_, err := EncodeTLV(strings.Repeat("x", 256), "310000000000003", "2026-01-01T00:00:00Z", 100, 15)
	if err == nil {
		t.Fatalf("expected error for 256 byte value")
	}

	// 255 bytes is still legal.
	if _, err := EncodeTLV(strings.Repeat("x", 255), "310000000000003", "2026-01-01T00:00:00Z", 100, 15); err != nil {
		t.Fatalf("255 byte value rejected: %v", err)
	}
}

func TestDecodeTLVTruncated(t *testing.T) {
	if _, err := DecodeTLV("AQU="); err == nil {
		t.Fatalf("expected error for truncated value")
	}
}
