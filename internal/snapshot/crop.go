package snapshot

import (
	"bytes"
	"fmt"
	"image"
	"image/png"
)

// Crop cuts the rectangle (x1,y1)-(x2,y2) out of the screenshot. Corners are
// clamped to the image; an empty area returns the full screenshot.
func (s Screenshot) Crop(x1, y1, x2, y2 int) (Screenshot, error) {
	img, err := png.Decode(bytes.NewReader(s))
	if err != nil {
		return nil, fmt.Errorf("decode screenshot: %w", err)
	}
	area := image.Rect(x1, y1, x2, y2).Canon().Intersect(img.Bounds())
	if area.Empty() {
		return s, nil
	}
	sub, ok := img.(interface {
		SubImage(r image.Rectangle) image.Image
	})
	if !ok {
		return nil, fmt.Errorf("crop: unsupported image type %T", img)
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, sub.SubImage(area)); err != nil {
		return nil, fmt.Errorf("encode crop: %w", err)
	}
	return Screenshot(buf.Bytes()), nil
}
