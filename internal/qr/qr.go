// Package qr renders session tokens as scannable PNG images.
package qr

import (
	"encoding/base64"
	"fmt"

	qrcode "github.com/skip2/go-qrcode"
)

const DefaultSize = 256

// Encoder turns a string into an image data URL.
type Encoder struct {
	Size  int
	Level qrcode.RecoveryLevel
}

func NewEncoder() *Encoder {
	return &Encoder{Size: DefaultSize, Level: qrcode.Medium}
}

// EncodeDataURL returns "data:image/png;base64,..." for content.
func (e *Encoder) EncodeDataURL(content string) (string, error) {
	if content == "" {
		return "", fmt.Errorf("qr: empty content")
	}
	png, err := qrcode.Encode(content, e.Level, e.Size)
	if err != nil {
		return "", fmt.Errorf("qr: encode failed: %w", err)
	}
	return "data:image/png;base64," + base64.StdEncoding.EncodeToString(png), nil
}
