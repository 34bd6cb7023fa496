// Package qrcode renders PIX BR Code payloads as PNG images.
package qrcode

import (
	"bytes"
	"errors"
	"fmt"
	"strings"

	goqr "github.com/yeqown/go-qrcode/v2"
	"github.com/yeqown/go-qrcode/writer/standard"
)

// brCodePrefix is the EMV payload format indicator every PIX copy-and-paste code starts with.
const brCodePrefix = "000201"

// IsBRCode reports whether payload looks like a PIX copy-and-paste code rather
// than a URL or an already encoded image.
func IsBRCode(payload string) bool {
	return strings.HasPrefix(strings.TrimSpace(payload), brCodePrefix)
}

type bufferCloser struct {
	*bytes.Buffer
}

func (bufferCloser) Close() error { return nil }

// Render encodes payload as a PNG QR code.
func Render(payload string) ([]byte, error) {
	payload = strings.TrimSpace(payload)
	if payload == "" {
		return nil, errors.New("qr payload is required")
	}

	qrc, err := goqr.New(payload)
	if err != nil {
		return nil, fmt.Errorf("error creating QR code: %w", err)
	}

	buf := bufferCloser{Buffer: new(bytes.Buffer)}
	w := standard.NewWithWriter(buf,
		standard.WithBuiltinImageEncoder(standard.PNG_FORMAT),
		standard.WithQRWidth(8),
	)

	if err := qrc.Save(w); err != nil {
		return nil, fmt.Errorf("error saving QR code: %w", err)
	}

	return buf.Bytes(), nil
}
