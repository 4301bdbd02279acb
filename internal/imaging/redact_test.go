package imaging

import (
	"bytes"
	"image"
	"image/color"
	"image/jpeg"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// testJPEG encodes a uniform white image
func testJPEG(t *testing.T, width, height int) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, width, height))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))
	return buf.Bytes()
}

func decodeJPEG(t *testing.T, data []byte) image.Image {
	t.Helper()
	img, err := jpeg.Decode(bytes.NewReader(data))
	require.NoError(t, err)
	return img
}

// luminance of the pixel at (x, y), 0..255
func luminance(img image.Image, x, y int) float64 {
	r, g, b, _ := img.At(x, y).RGBA()
	return 0.299*float64(r>>8) + 0.587*float64(g>>8) + 0.114*float64(b>>8)
}

func TestRedact_BlackoutCoversRegion(t *testing.T) {
	r := NewRedactor(RedactBlackout)
	src := testJPEG(t, 100, 100)

	out, err := r.Redact(src, []image.Rectangle{image.Rect(20, 20, 60, 60)})
	require.NoError(t, err)

	img := decodeJPEG(t, out)
	// Inside the region: near black despite JPEG artifacts
	assert.Less(t, luminance(img, 40, 40), 40.0)
	// Outside the region: still near white
	assert.Greater(t, luminance(img, 80, 80), 200.0)
}

func TestRedact_OverlappingRegionsAllCovered(t *testing.T) {
	r := NewRedactor(RedactBlackout)
	src := testJPEG(t, 100, 100)

	out, err := r.Redact(src, []image.Rectangle{
		image.Rect(10, 10, 50, 50),
		image.Rect(30, 30, 70, 70),
	})
	require.NoError(t, err)

	img := decodeJPEG(t, out)
	for _, pt := range []image.Point{{20, 20}, {40, 40}, {60, 60}} {
		assert.Less(t, luminance(img, pt.X, pt.Y), 40.0, "pixel %v must be covered", pt)
	}
}

func TestRedact_EmptyRegionsReturnsOriginal(t *testing.T) {
	r := NewRedactor(RedactBlackout)
	src := testJPEG(t, 50, 50)

	out, err := r.Redact(src, nil)
	require.NoError(t, err)
	// Byte-identical: no decode/re-encode cycle for clean frames
	assert.Equal(t, src, out)
}

func TestRedact_RegionOutsideBoundsIgnored(t *testing.T) {
	r := NewRedactor(RedactBlackout)
	src := testJPEG(t, 50, 50)

	out, err := r.Redact(src, []image.Rectangle{image.Rect(200, 200, 300, 300)})
	require.NoError(t, err)

	img := decodeJPEG(t, out)
	assert.Greater(t, luminance(img, 25, 25), 200.0)
}

func TestRedact_InvalidJPEGFailsClosed(t *testing.T) {
	r := NewRedactor(RedactBlackout)

	out, err := r.Redact([]byte("not a jpeg"), []image.Rectangle{image.Rect(0, 0, 10, 10)})
	require.Error(t, err)
	assert.Nil(t, out)
}

func TestRedact_BlurObscuresDetail(t *testing.T) {
	// A checkerboard region blurs into uniform gray
	img := image.NewRGBA(image.Rect(0, 0, 64, 64))
	for y := 0; y < 64; y++ {
		for x := 0; x < 64; x++ {
			if (x+y)%2 == 0 {
				img.SetRGBA(x, y, color.RGBA{255, 255, 255, 255})
			} else {
				img.SetRGBA(x, y, color.RGBA{0, 0, 0, 255})
			}
		}
	}
	var buf bytes.Buffer
	require.NoError(t, jpeg.Encode(&buf, img, &jpeg.Options{Quality: 95}))

	r := NewRedactor(RedactBlur)
	out, err := r.Redact(buf.Bytes(), []image.Rectangle{image.Rect(8, 8, 56, 56)})
	require.NoError(t, err)

	blurred := decodeJPEG(t, out)
	center := luminance(blurred, 32, 32)
	neighbor := luminance(blurred, 33, 32)
	// The checkerboard contrast is gone
	assert.InDelta(t, center, neighbor, 30.0)
}

func TestRedact_SecondPassIsPixelIdempotent(t *testing.T) {
	// Re-redacting an already-redacted image must not change the pixels
	// inside the region. Compared pixel-wise, not byte-wise: the second
	// pass re-encodes the JPEG.
	r := NewRedactor(RedactBlackout)
	src := testJPEG(t, 96, 96)
	region := image.Rect(16, 16, 80, 80)

	once, err := r.Redact(src, []image.Rectangle{region})
	require.NoError(t, err)
	twice, err := r.Redact(once, []image.Rectangle{region})
	require.NoError(t, err)

	first := decodeJPEG(t, once)
	second := decodeJPEG(t, twice)
	// Sample the region interior, away from block boundaries where
	// re-encoding artifacts concentrate
	for _, pt := range []image.Point{{32, 32}, {48, 48}, {48, 64}, {64, 32}} {
		assert.InDelta(t, luminance(first, pt.X, pt.Y), luminance(second, pt.X, pt.Y), 2.0, "pixel %v drifted between passes", pt)
		assert.Less(t, luminance(second, pt.X, pt.Y), 40.0, "pixel %v must stay covered", pt)
	}
	// Untouched pixels survive the extra encode cycle near-white
	assert.Greater(t, luminance(second, 88, 88), 200.0)
}

func TestNewRedactor_DefaultMode(t *testing.T) {
	r := NewRedactor("")
	assert.Equal(t, RedactBlackout, r.mode)
}
