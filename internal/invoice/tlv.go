// Package invoice resolves orders into stable invoice views and encodes
// the ZATCA simplified-tax-invoice QR payload.
package invoice

import (
	"encoding/base64"
	"fmt"
)

// ZATCA phase-1 simplified invoice tags.
const (
	tagSellerName = 1
	tagVATNumber  = 2
	tagTimestamp  = 3
	tagTotal      = 4
	tagVATTotal   = 5
)

// EncodeTLV builds the base64 TLV payload for a simplified tax invoice:
// five records in tag order 1..5, each one byte of tag, one byte of
// length, then the UTF-8 value bytes. Amounts are formatted with two
// decimals from cent values.
//
// The single-byte length caps every value at 255 UTF-8 bytes. A longer
// value is rejected rather than emitted with a wrapped length byte.
func EncodeTLV(sellerName, vatNumber, isoTimestamp string, totalCents, vatTotalCents int64) (string, error) {
	fields := []struct {
		tag   byte
		value string
	}{
		{tagSellerName, sellerName},
		{tagVATNumber, vatNumber},
		{tagTimestamp, isoTimestamp},
		{tagTotal, formatAmount(totalCents)},
		{tagVATTotal, formatAmount(vatTotalCents)},
	}

	var buf []byte
	for _, f := range fields {
		v := []byte(f.value)
		if len(v) > 255 {
			return "", fmt.Errorf("invoice: tlv tag %d value is %d bytes, max 255", f.tag, len(v))
		}
		buf = append(buf, f.tag, byte(len(v)))
		buf = append(buf, v...)
	}
	return base64.StdEncoding.EncodeToString(buf), nil
}

// DecodeTLV parses a base64 TLV payload back into tag/value pairs. Used
// by tests and diagnostic tooling; the wire producer is EncodeTLV.
func DecodeTLV(payload string) (map[byte]string, error) {
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, fmt.Errorf("invoice: decode tlv base64: %w", err)
	}
	out := make(map[byte]string)
	for i := 0; i < len(raw); {
		if i+2 > len(raw) {
			return nil, fmt.Errorf("invoice: truncated tlv header at byte %d", i)
		}
		tag, length := raw[i], int(raw[i+1])
		i += 2
		if i+length > len(raw) {
			return nil, fmt.Errorf("invoice: tlv tag %d value truncated", tag)
		}
		out[tag] = string(raw[i : i+length])
		i += length
	}
	return out, nil
}

func formatAmount(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
