package card

import (
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const (
	defaultQRSize = 200
	maxQRSize     = 1000
)

// QRCode renders a card's vCard payload as a PNG QR code, so a phone
// camera pointed at it saves the contact directly. size is the image
// side length in pixels; zero picks the default.
func QRCode(c *Card, size int) ([]byte, error) {
	if size <= 0 {
		size = defaultQRSize
	}
	if size > maxQRSize {
		size = maxQRSize
	}

	png, err := qrcode.Encode(VCard(c), qrcode.Medium, size)
	if err != nil {
		return nil, fmt.Errorf("encoding QR code: %w", err)
	}
	return png, nil
}
