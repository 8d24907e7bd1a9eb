package diff

import (
	"image"
	"image/color"

	"snapdiff/internal/imagebuf"
)

var (
	changedColor = color.RGBA{R: 255, A: 255}
	boundsColor  = color.RGBA{B: 255, A: 255}
)

// Render draws the visualization of r on top of a faded copy of current:
// differing pixels are red and the differing region is outlined in blue.
// On a dimension mismatch the whole current image is marked.
func (r Result) Render(current *imagebuf.Buffer) *imagebuf.Buffer {
	w, h := current.Width(), current.Height()
	out := imagebuf.New(w, h)

	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			if r.Differs(x, y) {
				out.Set(x, y, changedColor)
				continue
			}
			out.Set(x, y, faded(current.At(x, y)))
		}
	}

	if !r.DimensionMismatch && !r.Bounds.Empty() {
		outline(out, r.Bounds.Inset(-1), r)
	}
	return out
}

func faded(c color.RGBA) color.RGBA {
	lum := (299*int(c.R) + 587*int(c.G) + 114*int(c.B)) / 1000
	v := uint8(255 - (255-lum)/3)
	return color.RGBA{R: v, G: v, B: v, A: 255}
}

// outline draws the rectangle border, leaving differing pixels red.
func outline(out *imagebuf.Buffer, rect image.Rectangle, r Result) {
	plot := func(x, y int) {
		if !r.Differs(x, y) {
			out.Set(x, y, boundsColor)
		}
	}
	for x := rect.Min.X; x < rect.Max.X; x++ {
		plot(x, rect.Min.Y)
		plot(x, rect.Max.Y-1)
	}
	for y := rect.Min.Y; y < rect.Max.Y; y++ {
		plot(rect.Min.X, y)
		plot(rect.Max.X-1, y)
	}
}
