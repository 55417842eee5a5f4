package utils

import (
	"bytes"
	"encoding/base64"
	"image/png"

	"github.com/skip2/go-qrcode"
)

// GenerateQRCode renders content as a PNG QR code of size x size pixels.
func GenerateQRCode(content string, size int) ([]byte, error) {
	qr, err := qrcode.New(content, qrcode.Medium)
	if err != nil {
		return nil, err
	}
	buf := new(bytes.Buffer)
	if err := png.Encode(buf, qr.Image(size)); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// QRCodeDataURI is GenerateQRCode as an inline image for JSON responses.
func QRCodeDataURI(content string, size int) (string, error) {
	raw, err := GenerateQRCode(content, size)
	if err != nil {
		return "", err
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(raw), nil
}
