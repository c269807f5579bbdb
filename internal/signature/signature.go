// Package signature normalises customer signature captures and stores them.
package signature

import (
	"bytes"
	"encoding/base64"
	"errors"
	"fmt"
	"image"
	"strings"

	"github.com/disintegration/imaging"
)

// Signatures larger than this are scaled down to fit, keeping aspect ratio.
const (
	MaxWidth  = 600
	MaxHeight = 200
)

// MaxEncodedLen caps the base64 payload accepted from the portal.
const MaxEncodedLen = 2 << 20

var (
	ErrEmpty    = errors.New("signature: empty")
	ErrTooLarge = errors.New("signature: too large")
	ErrInvalid  = errors.New("signature: invalid image")
)

// ContentType is the content type of every normalised signature.
const ContentType = "image/png"

// Normalize accepts a base64 image, optionally wrapped in a data URL, and
// returns it re-encoded as a PNG no larger than MaxWidth x MaxHeight.
func Normalize(raw string) ([]byte, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, ErrEmpty
	}
	if strings.HasPrefix(raw, "data:") {
		i := strings.IndexByte(raw, ',')
		if i < 0 {
			return nil, fmt.Errorf("%w: malformed data URL", ErrInvalid)
		}
		raw = raw[i+1:]
	}
	if len(raw) > MaxEncodedLen {
		return nil, ErrTooLarge
	}

	data, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}
	img, err := imaging.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalid, err)
	}

	var out image.Image = img
	if b := img.Bounds(); b.Dx() > MaxWidth || b.Dy() > MaxHeight {
		out = imaging.Fit(img, MaxWidth, MaxHeight, imaging.Lanczos)
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, out, imaging.PNG); err != nil {
		return nil, fmt.Errorf("signature: encode: %w", err)
	}
	return buf.Bytes(), nil
}
