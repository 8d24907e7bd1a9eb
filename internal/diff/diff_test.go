package diff

import (
	"image"
	"image/color"
	"math"
	"testing"

	"snapdiff/internal/imagebuf"
)

var gray = color.RGBA{100, 100, 100, 255}

func TestCompareEqualContentIsIdenticalForAnyThresholds(t *testing.T) {
	a := imagebuf.Filled(100, 100, gray)
	b := imagebuf.Filled(100, 100, gray)

	for _, th := range []Thresholds{
		Exact(),
		{ColorDistanceLimit: 50, AreaSizeLimit: 10},
		{ColorDistanceLimit: -3, AreaSizeLimit: -1},
		{ColorDistanceLimit: math.MaxFloat64, AreaSizeLimit: math.MaxInt},
	} {
		res := Compare(a, b, th)
		if !res.Identical {
			t.Fatalf("thresholds %+v: expected identical", th)
		}
		if res.DiffArea != 0 || res.MaxColorDistance != 0 {
			t.Fatalf("thresholds %+v: expected zero diagnostics, got area=%d dist=%v", th, res.DiffArea, res.MaxColorDistance)
		}
		if !res.Bounds.Empty() {
			t.Fatalf("expected empty bounds, got %v", res.Bounds)
		}
	}
}

func TestCompareSinglePixelAgainstColorLimit(t *testing.T) {
	cases := []struct {
		name      string
		delta     uint8
		limit     float64
		different bool
	}{
		{"below limit", 20, 30, false},
		{"at limit", 30, 30, false},
		{"above limit", 31, 30, true},
		{"exact thresholds", 1, 0, true},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := imagebuf.Filled(10, 10, gray)
			b := a.Clone()
			b.Set(4, 7, color.RGBA{100 + tc.delta, 100, 100, 255})

			res := Compare(a, b, Thresholds{ColorDistanceLimit: tc.limit, AreaSizeLimit: 1})
			if res.Different() != tc.different {
				t.Fatalf("expected different=%v, got %+v", tc.different, res)
			}
			if res.DiffArea != 1 {
				t.Fatalf("expected area 1, got %d", res.DiffArea)
			}
			if res.MaxColorDistance != float64(tc.delta) {
				t.Fatalf("expected distance %d, got %v", tc.delta, res.MaxColorDistance)
			}
			if res.Bounds != image.Rect(4, 7, 5, 8) {
				t.Fatalf("unexpected bounds %v", res.Bounds)
			}
		})
	}
}

func TestCompareAreaLimitAloneFails(t *testing.T) {
	a := imagebuf.Filled(20, 20, gray)
	b := a.Clone()
	b.Fill(image.Rect(0, 0, 4, 4), color.RGBA{101, 100, 100, 255})

	res := Compare(a, b, Thresholds{ColorDistanceLimit: 10, AreaSizeLimit: 15})
	if res.Identical {
		t.Fatalf("16 differing pixels must exceed area limit 15")
	}
	res = Compare(a, b, Thresholds{ColorDistanceLimit: 10, AreaSizeLimit: 16})
	if !res.Identical {
		t.Fatalf("expected identical at area limit, got %+v", res)
	}
}

func TestCompareRedSquare(t *testing.T) {
	a := imagebuf.Filled(100, 100, gray)
	b := a.Clone()
	b.Fill(image.Rect(40, 40, 45, 45), color.RGBA{180, 100, 100, 255})

	res := Compare(a, b, Thresholds{ColorDistanceLimit: 50, AreaSizeLimit: 10})
	if !res.Different() {
		t.Fatalf("expected different")
	}
	if res.DiffArea != 25 {
		t.Fatalf("expected area 25, got %d", res.DiffArea)
	}
	if Round(res.MaxColorDistance) != 80.0 {
		t.Fatalf("expected distance 80.0, got %v", res.MaxColorDistance)
	}
	if res.Bounds != image.Rect(40, 40, 45, 45) {
		t.Fatalf("unexpected bounds %v", res.Bounds)
	}
}

func TestCompareDimensionMismatchIsAlwaysDifferent(t *testing.T) {
	a := imagebuf.Filled(100, 100, gray)
	b := imagebuf.Filled(100, 90, gray)

	res := Compare(a, b, Thresholds{ColorDistanceLimit: math.MaxFloat64, AreaSizeLimit: math.MaxInt})
	if res.Identical {
		t.Fatalf("dimension mismatch must never be identical")
	}
	if !res.DimensionMismatch {
		t.Fatalf("expected mismatch flag")
	}
	if res.DiffArea != 100*100 {
		t.Fatalf("expected area %d, got %d", 100*100, res.DiffArea)
	}
	if res.MaxColorDistance != MaxDistance {
		t.Fatalf("expected max distance, got %v", res.MaxColorDistance)
	}
}

func TestCompareNoiseFloorIgnoresSmallDistances(t *testing.T) {
	a := imagebuf.Filled(10, 10, gray)
	b := a.Clone()
	b.Set(1, 1, color.RGBA{103, 100, 100, 255})
	b.Set(2, 2, color.RGBA{140, 100, 100, 255})

	res := Compare(a, b, Thresholds{NoiseFloor: 5, ColorDistanceLimit: 100, AreaSizeLimit: 100})
	if res.DiffArea != 1 {
		t.Fatalf("expected only the large change to count, got %d", res.DiffArea)
	}
	if res.MaxColorDistance != 40 {
		t.Fatalf("expected 40, got %v", res.MaxColorDistance)
	}
}

func TestCompareDoesNotMutateInputs(t *testing.T) {
	a := imagebuf.Filled(10, 10, gray)
	b := a.Clone()
	b.Set(3, 3, color.RGBA{0, 0, 0, 255})
	ac, bc := a.Clone(), b.Clone()

	res := Compare(a, b, Exact())
	_ = res.Render(b)

	if !a.Equal(ac) || !b.Equal(bc) {
		t.Fatalf("inputs were modified")
	}
}

func TestDistance(t *testing.T) {
	if d := Distance(color.RGBA{0, 0, 0, 0}, color.RGBA{255, 255, 255, 255}); d != MaxDistance {
		t.Fatalf("expected %v, got %v", MaxDistance, d)
	}
	if d := Distance(color.RGBA{3, 4, 0, 0}, color.RGBA{}); d != 5 {
		t.Fatalf("expected 5, got %v", d)
	}
}

func TestRound(t *testing.T) {
	cases := map[float64]float64{
		0:     0,
		80:    80,
		12.31: 12.4,
		12.3:  12.3,
		509.9: 509.9,
	}
	for in, want := range cases {
		if got := Round(in); got != want {
			t.Errorf("Round(%v) = %v, want %v", in, got, want)
		}
	}
}

func TestRenderMarksDifferences(t *testing.T) {
	a := imagebuf.Filled(10, 10, gray)
	b := a.Clone()
	b.Fill(image.Rect(4, 4, 6, 6), color.RGBA{0, 0, 0, 255})

	res := Compare(a, b, Exact())
	out := res.Render(b)

	if out.At(4, 4) != changedColor {
		t.Fatalf("expected differing pixel to be red, got %v", out.At(4, 4))
	}
	if out.At(3, 3) != boundsColor {
		t.Fatalf("expected outline at (3,3), got %v", out.At(3, 3))
	}
	if c := out.At(0, 0); c.R != c.G || c.G != c.B {
		t.Fatalf("expected unchanged pixel to be grey, got %v", c)
	}
}

func TestRenderDimensionMismatchMarksEverything(t *testing.T) {
	a := imagebuf.Filled(4, 4, gray)
	b := imagebuf.Filled(5, 5, gray)
	out := Compare(a, b, Exact()).Render(b)
	if out.Width() != 5 || out.Height() != 5 {
		t.Fatalf("unexpected size %v", out.Size())
	}
	if out.At(4, 4) != changedColor {
		t.Fatalf("expected every pixel marked")
	}
}
