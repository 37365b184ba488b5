package invoice

import (
	"encoding/base64"
	"fmt"

	"github.com/skip2/go-qrcode"
)

// QRImageBase64 renders the TLV payload as a PNG QR code and returns it
// base64 encoded for embedding in JSON responses and HTML documents.
func QRImageBase64(payload string, size int) (string, error) {
	if size <= 0 {
		size = 256
	}
	png, err := qrcode.Encode(payload, qrcode.Medium, size)
	if err != nil {
		return "", fmt.Errorf("invoice: render qr: %w", err)
	}
	return base64.StdEncoding.EncodeToString(png), nil
}
