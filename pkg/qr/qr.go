// Package qr renders login URLs as scannable codes.
package qr

import (
	"errors"
	"strings"

	qrcode "github.com/skip2/go-qrcode"
)

const DefaultImageSize = 256

var ErrEmptyContent = errors.New("qr content is empty")

// Renderer produces PNG and terminal-friendly renditions of a URL. The zero
// value is usable.
type Renderer struct {
	Size   int
	Invert bool // light-on-dark terminals and Discord code blocks
}

func (r Renderer) size() int {
	if r.Size <= 0 {
		return DefaultImageSize
	}
	return r.Size
}

// Image encodes url as a PNG.
func (r Renderer) Image(url string) ([]byte, error) {
	if strings.TrimSpace(url) == "" {
		return nil, ErrEmptyContent
	}
	return qrcode.Encode(url, qrcode.Medium, r.size())
}

// Text encodes url with Unicode half blocks, two modules per character row.
func (r Renderer) Text(url string) (string, error) {
	if strings.TrimSpace(url) == "" {
		return "", ErrEmptyContent
	}
	code, err := qrcode.New(url, qrcode.Low)
	if err != nil {
		return "", err
	}
	return code.ToSmallString(r.Invert), nil
}
