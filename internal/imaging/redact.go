// Package imaging implements the image stages of the pipeline: privacy
// redaction and detection annotation. All functions take and return
// encoded JPEG bytes; pixel-space rectangles use a top-left origin,
// matching image.Rect.
package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
)

// RedactMode selects how sensitive regions are covered
type RedactMode string

const (
	// RedactBlackout composites an opaque black region (default)
	RedactBlackout RedactMode = "blackout"
	// RedactBlur composites a blurred copy of the region
	RedactBlur RedactMode = "blur"
)

const jpegQuality = 85

// Redactor covers sensitive regions of an image. Failure to decode or
// encode is returned as an error so the caller can fail closed — an
// unverified image must never leave the device.
type Redactor struct {
	mode       RedactMode
	blurRadius int
}

// NewRedactor creates a redactor. An empty mode defaults to blackout.
func NewRedactor(mode RedactMode) *Redactor {
	if mode == "" {
		mode = RedactBlackout
	}
	return &Redactor{mode: mode, blurRadius: 8}
}

// Redact returns a new image with every region rendered opaque (or
// blurred). Returns the original bytes untouched when regions is empty.
// Overlapping regions all end up fully covered: each pass writes source
// pixels with draw.Src, so ordering cannot expose earlier content, and
// redacting an already-redacted region is a no-op on the pixels.
func (r *Redactor) Redact(jpegData []byte, regions []image.Rectangle) ([]byte, error) {
	if len(regions) == 0 {
		return jpegData, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return nil, fmt.Errorf("decode frame for redaction: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	for _, region := range regions {
		region = region.Intersect(bounds)
		if region.Empty() {
			continue
		}
		switch r.mode {
		case RedactBlur:
			blurRegion(rgba, region, r.blurRadius)
		default:
			draw.Draw(rgba, region, image.NewUniform(color.Black), image.Point{}, draw.Src)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode redacted frame: %w", err)
	}
	return buf.Bytes(), nil
}

// blurRegion applies a box blur to a region in place. A box blur is
// sufficient here: the goal is making content unrecoverable, not
// aesthetics.
func blurRegion(img *image.RGBA, region image.Rectangle, radius int) {
	src := image.NewRGBA(region)
	draw.Draw(src, region, img, region.Min, draw.Src)

	for y := region.Min.Y; y < region.Max.Y; y++ {
		for x := region.Min.X; x < region.Max.X; x++ {
			var rSum, gSum, bSum, n uint32
			for dy := -radius; dy <= radius; dy++ {
				for dx := -radius; dx <= radius; dx++ {
					px, py := x+dx, y+dy
					if px < region.Min.X || px >= region.Max.X || py < region.Min.Y || py >= region.Max.Y {
						continue
					}
					c := src.RGBAAt(px, py)
					rSum += uint32(c.R)
					gSum += uint32(c.G)
					bSum += uint32(c.B)
					n++
				}
			}
			if n > 0 {
				img.SetRGBA(x, y, color.RGBA{
					R: uint8(rSum / n),
					G: uint8(gSum / n),
					B: uint8(bSum / n),
					A: 255,
				})
			}
		}
	}
}
