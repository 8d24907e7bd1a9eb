// Package imagebuf holds the in-memory raster used by the comparison code.
package imagebuf

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/color"
	"image/draw"
	_ "image/gif"
	_ "image/jpeg"
	"image/png"

	_ "golang.org/x/image/bmp"
	_ "golang.org/x/image/tiff"
	_ "golang.org/x/image/webp"
)

// Buffer is a width x height RGBA raster anchored at (0,0).
type Buffer struct {
	img *image.RGBA
}

// decoder is tried after the registered image formats fail.
type decoder func(data []byte) (image.Image, error)

var fallbackDecoders []decoder

// New returns a transparent buffer of the given size.
func New(width, height int) *Buffer {
	if width < 0 {
		width = 0
	}
	if height < 0 {
		height = 0
	}
	return &Buffer{img: image.NewRGBA(image.Rect(0, 0, width, height))}
}

// Filled returns a buffer painted with a single color.
func Filled(width, height int, c color.Color) *Buffer {
	b := New(width, height)
	draw.Draw(b.img, b.img.Bounds(), &image.Uniform{C: c}, image.Point{}, draw.Src)
	return b
}

// FromImage copies any image into a zero-origin RGBA buffer.
func FromImage(src image.Image) *Buffer {
	bounds := src.Bounds()
	b := New(bounds.Dx(), bounds.Dy())
	draw.Draw(b.img, b.img.Bounds(), src, bounds.Min, draw.Src)
	return b
}

// Decode reads encoded image bytes. PNG is the native format; any other
// registered format (and the optional fallbacks) is accepted.
func Decode(data []byte) (*Buffer, error) {
	if len(data) == 0 {
		return nil, errors.New("imagebuf: empty image data")
	}
	img, _, err := image.Decode(bytes.NewReader(data))
	if err == nil {
		return FromImage(img), nil
	}
	for _, dec := range fallbackDecoders {
		if img, ferr := dec(data); ferr == nil {
			return FromImage(img), nil
		}
	}
	return nil, fmt.Errorf("imagebuf: decode: %w", err)
}

// EncodePNG serialises the buffer as PNG.
func (b *Buffer) EncodePNG() ([]byte, error) {
	var out bytes.Buffer
	enc := png.Encoder{CompressionLevel: png.DefaultCompression}
	if err := enc.Encode(&out, b.img); err != nil {
		return nil, fmt.Errorf("imagebuf: encode png: %w", err)
	}
	return out.Bytes(), nil
}

func (b *Buffer) Width() int  { return b.img.Rect.Dx() }
func (b *Buffer) Height() int { return b.img.Rect.Dy() }

// Size returns width and height as a point.
func (b *Buffer) Size() image.Point { return image.Pt(b.Width(), b.Height()) }

// Pixels is the total pixel count.
func (b *Buffer) Pixels() int { return b.Width() * b.Height() }

// At returns the 8-bit RGBA value at (x,y). Out of range reads return zero.
func (b *Buffer) At(x, y int) color.RGBA {
	if !(image.Point{X: x, Y: y}).In(b.img.Rect) {
		return color.RGBA{}
	}
	i := b.img.PixOffset(x, y)
	p := b.img.Pix[i : i+4 : i+4]
	return color.RGBA{R: p[0], G: p[1], B: p[2], A: p[3]}
}

// Set writes a pixel; out of range writes are ignored.
func (b *Buffer) Set(x, y int, c color.RGBA) {
	b.img.SetRGBA(x, y, c)
}

// Fill paints the rectangle r (clipped to the buffer) with c.
func (b *Buffer) Fill(r image.Rectangle, c color.Color) {
	draw.Draw(b.img, r.Intersect(b.img.Rect), &image.Uniform{C: c}, image.Point{}, draw.Src)
}

// SameSize reports whether two buffers can be compared pixel by pixel.
func (b *Buffer) SameSize(o *Buffer) bool {
	return b.Width() == o.Width() && b.Height() == o.Height()
}

// Equal reports pixel-exact equality.
func (b *Buffer) Equal(o *Buffer) bool {
	if b == nil || o == nil {
		return b == o
	}
	return b.SameSize(o) && bytes.Equal(b.img.Pix, o.img.Pix)
}

// Clone returns a deep copy.
func (b *Buffer) Clone() *Buffer {
	c := New(b.Width(), b.Height())
	copy(c.img.Pix, b.img.Pix)
	return c
}

// Image exposes the underlying raster for encoders and drawing. Callers
// must not modify it unless they own the buffer.
func (b *Buffer) Image() *image.RGBA { return b.img }
