// Package diff decides whether two rasters are the same under a color
// distance limit and a differing-area limit, and renders what changed.
package diff

import (
	"image"
	"image/color"
	"math"

	"snapdiff/internal/imagebuf"
)

// MaxDistance is the largest possible distance between two RGBA pixels
// (every channel differing by 255).
var MaxDistance = math.Sqrt(4 * 255 * 255)

// Thresholds bound what still counts as "the same image".
type Thresholds struct {
	// ColorDistanceLimit is the largest per-pixel distance accepted.
	ColorDistanceLimit float64 `json:"color_distance_limit"`
	// AreaSizeLimit is the largest number of differing pixels accepted.
	AreaSizeLimit int `json:"area_size_limit"`
	// NoiseFloor: pixels at or below this distance are not counted as
	// differing at all (anti-aliasing tolerance).
	NoiseFloor float64 `json:"noise_floor"`
}

// Exact accepts no difference at all.
func Exact() Thresholds { return Thresholds{} }

// Normalize clamps negative values to zero.
func (t Thresholds) Normalize() Thresholds {
	if t.ColorDistanceLimit < 0 || math.IsNaN(t.ColorDistanceLimit) {
		t.ColorDistanceLimit = 0
	}
	if t.AreaSizeLimit < 0 {
		t.AreaSizeLimit = 0
	}
	if t.NoiseFloor < 0 || math.IsNaN(t.NoiseFloor) {
		t.NoiseFloor = 0
	}
	return t
}

// Result is the outcome of Compare.
type Result struct {
	Identical         bool
	DimensionMismatch bool
	MaxColorDistance  float64
	DiffArea          int
	// Bounds encloses every differing pixel; empty when none differ.
	Bounds image.Rectangle

	width, height int
	mask          []bool
}

// Different is the negation of Identical.
func (r Result) Different() bool { return !r.Identical }

// Compare never modifies a or b.
func Compare(a, b *imagebuf.Buffer, th Thresholds) Result {
	th = th.Normalize()

	if !a.SameSize(b) {
		w, h := b.Width(), b.Height()
		area := a.Pixels()
		if b.Pixels() > area {
			area = b.Pixels()
		}
		return Result{
			DimensionMismatch: true,
			MaxColorDistance:  MaxDistance,
			DiffArea:          area,
			Bounds:            image.Rect(0, 0, w, h),
			width:             w,
			height:            h,
		}
	}

	w, h := a.Width(), a.Height()
	res := Result{width: w, height: h}
	pa, pb := a.Image().Pix, b.Image().Pix
	strideA, strideB := a.Image().Stride, b.Image().Stride

	var maxSq int
	for y := 0; y < h; y++ {
		rowA := pa[y*strideA : y*strideA+w*4]
		rowB := pb[y*strideB : y*strideB+w*4]
		for x := 0; x < w; x++ {
			sq := distanceSq(rowA[x*4:x*4+4], rowB[x*4:x*4+4])
			if sq == 0 || float64(sq) <= th.NoiseFloor*th.NoiseFloor {
				continue
			}
			if res.mask == nil {
				res.mask = make([]bool, w*h)
			}
			res.mask[y*w+x] = true
			res.DiffArea++
			res.Bounds = res.Bounds.Union(image.Rect(x, y, x+1, y+1))
			if sq > maxSq {
				maxSq = sq
			}
		}
	}

	res.MaxColorDistance = math.Sqrt(float64(maxSq))
	res.Identical = res.MaxColorDistance <= th.ColorDistanceLimit && res.DiffArea <= th.AreaSizeLimit
	return res
}

// Distance is the Euclidean distance over the four 8-bit channels.
func Distance(p, q color.RGBA) float64 {
	return math.Sqrt(float64(distanceSq([]uint8{p.R, p.G, p.B, p.A}, []uint8{q.R, q.G, q.B, q.A})))
}

// distanceSq is exact integer arithmetic so results do not depend on
// floating point behaviour of the platform.
func distanceSq(p, q []uint8) int {
	var sum int
	for i := 0; i < 4; i++ {
		d := int(p[i]) - int(q[i])
		sum += d * d
	}
	return sum
}

// Differs reports whether the pixel at (x,y) was counted as differing.
func (r Result) Differs(x, y int) bool {
	if r.DimensionMismatch {
		return true
	}
	if r.mask == nil || x < 0 || y < 0 || x >= r.width || y >= r.height {
		return false
	}
	return r.mask[y*r.width+x]
}

// Round rounds a distance up to one decimal place, the precision used in
// every rendered message.
func Round(d float64) float64 {
	return math.Ceil(d*10-1e-9) / 10
}
