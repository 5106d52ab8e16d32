package snapshot

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testPNG(t *testing.T, w, h int) Screenshot {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, w, h))
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			img.Set(x, y, color.RGBA{R: uint8(x), G: uint8(y), A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return Screenshot(buf.Bytes())
}

func decodeSize(t *testing.T, s Screenshot) image.Rectangle {
	t.Helper()
	img, err := png.Decode(bytes.NewReader(s))
	require.NoError(t, err)
	return img.Bounds()
}

func TestCrop(t *testing.T) {
	shot := testPNG(t, 100, 80)

	tests := []struct {
		name           string
		x1, y1, x2, y2 int
		wantW, wantH   int
	}{
		{"inside", 10, 20, 40, 60, 30, 40},
		{"reversed corners", 40, 60, 10, 20, 30, 40},
		{"clamped to bounds", -10, -10, 500, 30, 100, 30},
		{"empty area keeps full page", 10, 10, 10, 50, 100, 80},
		{"outside keeps full page", 200, 200, 300, 300, 100, 80},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			crop, err := shot.Crop(tt.x1, tt.y1, tt.x2, tt.y2)
			require.NoError(t, err)
			b := decodeSize(t, crop)
			assert.Equal(t, tt.wantW, b.Dx())
			assert.Equal(t, tt.wantH, b.Dy())
		})
	}
}

func TestCropKeepsPixels(t *testing.T) {
	crop, err := testPNG(t, 100, 80).Crop(10, 20, 40, 60)
	require.NoError(t, err)
	img, err := png.Decode(bytes.NewReader(crop))
	require.NoError(t, err)
	b := img.Bounds()
	r, g, _, _ := img.At(b.Min.X, b.Min.Y).RGBA()
	assert.EqualValues(t, 10, r>>8)
	assert.EqualValues(t, 20, g>>8)
}

func TestCropRejectsNonPNG(t *testing.T) {
	_, err := Screenshot("not a png").Crop(0, 0, 10, 10)
	assert.Error(t, err)
}
