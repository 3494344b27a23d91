// Package thumbnail generates resized image derivatives for uploaded
// image records, consuming jobs from the thumbnail queue.
package thumbnail

import (
	"bytes"
	"fmt"
	"image"
	"io"

	"github.com/disintegration/imaging"
)

// Widths are the derivative widths generated per image.
var Widths = []int{500, 250, 100}

// DerivativeKey returns the blob key for a derivative of the original blob,
// e.g. <originalKey>_500. Writing the same derivative twice overwrites the
// same key, so regeneration is idempotent.
func DerivativeKey(originalKey string, width int) string {
	return fmt.Sprintf("%s_%d", originalKey, width)
}

// Resize decodes an image and re-encodes it scaled to the given width,
// preserving aspect ratio and the source format where possible.
func Resize(r io.Reader, width int) ([]byte, error) {
	img, format, err := image.Decode(r)
	if err != nil {
		return nil, fmt.Errorf("decode image: %w", err)
	}

	resized := imaging.Resize(img, width, 0, imaging.Lanczos)

	outFormat, err := imaging.FormatFromExtension(format)
	if err != nil {
		outFormat = imaging.PNG
	}

	var buf bytes.Buffer
	if err := imaging.Encode(&buf, resized, outFormat); err != nil {
		return nil, fmt.Errorf("encode thumbnail: %w", err)
	}
	return buf.Bytes(), nil
}
