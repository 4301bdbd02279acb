package imaging

import (
	"bytes"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	"image/jpeg"
	"sort"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"
)

const outlineThickness = 3

// DefaultColors maps the site asset classes to their outline colors
var DefaultColors = map[string]color.RGBA{
	"container":     {255, 140, 0, 255}, // Orange
	"mobile_toilet": {0, 120, 255, 255}, // Blue
	"scaffolding":   {0, 200, 80, 255},  // Green
}

// fallbackColor is used for labels without a mapping
var fallbackColor = color.RGBA{255, 255, 0, 255} // Yellow

// Annotator draws labeled, color-coded outlines for target detections
type Annotator struct {
	colors map[string]color.RGBA
}

// NewAnnotator creates an annotator. A nil color map uses DefaultColors.
func NewAnnotator(colors map[string]color.RGBA) *Annotator {
	if colors == nil {
		colors = DefaultColors
	}
	return &Annotator{colors: colors}
}

// Annotate draws a stroked outline and label for every box. Returns the
// annotated image, or an error the caller may treat as non-fatal and
// deliver the input image instead.
func (a *Annotator) Annotate(jpegData []byte, boxesByLabel map[string][]image.Rectangle) ([]byte, error) {
	if len(boxesByLabel) == 0 {
		return jpegData, nil
	}

	img, err := jpeg.Decode(bytes.NewReader(jpegData))
	if err != nil {
		return nil, fmt.Errorf("decode frame for annotation: %w", err)
	}

	bounds := img.Bounds()
	rgba := image.NewRGBA(bounds)
	draw.Draw(rgba, bounds, img, bounds.Min, draw.Src)

	// Deterministic draw order across labels
	labels := make([]string, 0, len(boxesByLabel))
	for label := range boxesByLabel {
		labels = append(labels, label)
	}
	sort.Strings(labels)

	for _, label := range labels {
		c, ok := a.colors[label]
		if !ok {
			c = fallbackColor
		}
		for _, box := range boxesByLabel[label] {
			drawBox(rgba, box, c, outlineThickness)
			drawLabel(rgba, box.Min.X, box.Min.Y-5, label, c)
		}
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, rgba, &jpeg.Options{Quality: jpegQuality}); err != nil {
		return nil, fmt.Errorf("encode annotated frame: %w", err)
	}
	return buf.Bytes(), nil
}

// drawBox draws a rectangle outline on the image
func drawBox(img *image.RGBA, box image.Rectangle, c color.RGBA, thickness int) {
	bounds := img.Bounds()
	x, y := box.Min.X, box.Min.Y
	w, h := box.Dx(), box.Dy()

	for t := 0; t < thickness; t++ {
		// Top edge
		for i := x; i < x+w && i < bounds.Max.X; i++ {
			if y+t >= 0 && y+t < bounds.Max.Y && i >= 0 {
				img.SetRGBA(i, y+t, c)
			}
		}
		// Bottom edge
		for i := x; i < x+w && i < bounds.Max.X; i++ {
			if y+h-t >= 0 && y+h-t < bounds.Max.Y && i >= 0 {
				img.SetRGBA(i, y+h-t, c)
			}
		}
		// Left edge
		for j := y; j < y+h && j < bounds.Max.Y; j++ {
			if x+t >= 0 && x+t < bounds.Max.X && j >= 0 {
				img.SetRGBA(x+t, j, c)
			}
		}
		// Right edge
		for j := y; j < y+h && j < bounds.Max.Y; j++ {
			if x+w-t >= 0 && x+w-t < bounds.Max.X && j >= 0 {
				img.SetRGBA(x+w-t, j, c)
			}
		}
	}
}

// drawLabel draws text with a dark background strip
func drawLabel(img *image.RGBA, x, y int, label string, c color.RGBA) {
	if y < 10 {
		y = 10
	}
	if x < 0 {
		x = 0
	}

	bgColor := color.RGBA{0, 0, 0, 180}
	textWidth := len(label) * 7
	for dy := -2; dy < 12; dy++ {
		for dx := -2; dx < textWidth+2; dx++ {
			px, py := x+dx, y+dy
			if px >= 0 && px < img.Bounds().Max.X && py >= 0 && py < img.Bounds().Max.Y {
				img.SetRGBA(px, py, bgColor)
			}
		}
	}

	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(c),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y + 10)},
	}
	d.DrawString(label)
}
