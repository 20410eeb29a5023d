package world

import (
	"math"
	"testing"
)

func approxVec2(a, b Vec2, tol float32) bool {
	return absF(a.X-b.X) <= tol && absF(a.Y-b.Y) <= tol
}

func TestEncodeDecodePNGRoundTrip(t *testing.T) {
	df := &DistanceField{
		Width: 4, Height: 2, Scale: 100,
		data: []Vec2{
			{}, // zero vector, alpha=0
			{X: 1, Y: 0},
			{X: 0, Y: 1},
			{X: -1, Y: 0},
			{X: 0, Y: -1},
			{X: 0.5, Y: 0.5},
			{X: 0.1, Y: 0.2}, // partial-alpha "fringe" cell, the case that exposed
			// the premultiplied/straight-alpha mismatch: every byte here must
			// round-trip through encode/decode without the encoder silently
			// darkening RGB for partial alpha.
			{X: -0.3, Y: 0.4},
		},
	}

	encoded, err := EncodePNG(df)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}

	got, err := DecodeDistanceFieldPNG(encoded, df.Scale)
	if err != nil {
		t.Fatalf("DecodeDistanceFieldPNG: %v", err)
	}
	if got.Width != df.Width || got.Height != df.Height {
		t.Fatalf("dims: got %dx%d, want %dx%d", got.Width, got.Height, df.Width, df.Height)
	}

	// 8-bit hue/magnitude quantization bounds the achievable precision;
	// anything beyond that is exact.
	const tol = 0.05
	for i, want := range df.data {
		gotV := got.data[i]
		if !approxVec2(gotV, want, tol) {
			t.Errorf("cell %d: got %+v, want %+v", i, gotV, want)
		}
	}
}

func TestDecodePNGZeroAlphaIsZeroVector(t *testing.T) {
	df := &DistanceField{Width: 1, Height: 1, Scale: 100, data: []Vec2{{}}}
	encoded, err := EncodePNG(df)
	if err != nil {
		t.Fatalf("EncodePNG: %v", err)
	}
	got, err := DecodeDistanceFieldPNG(encoded, df.Scale)
	if err != nil {
		t.Fatalf("DecodeDistanceFieldPNG: %v", err)
	}
	if got.data[0] != (Vec2{}) {
		t.Fatalf("expected zero vector for zero alpha, got %+v", got.data[0])
	}
}

func TestHueRGBRoundTrip(t *testing.T) {
	for deg := 0; deg < 360; deg += 15 {
		theta := float64(deg) * math.Pi / 180
		r, g, b := hueToRGB(theta)
		got := rgbToHue(r, g, b)

		// Pure grey (delta==0, e.g. theta that lands exactly on an RGB
		// primary boundary with equal channels) has no recoverable hue;
		// skip those degenerate cases.
		if r == g && g == b {
			continue
		}
		diff := math.Abs(got - theta)
		if diff > math.Pi {
			diff = 2*math.Pi - diff
		}
		if diff > 0.1 {
			t.Errorf("deg=%d: hueToRGB->rgbToHue got %.3f rad, want %.3f rad", deg, got, theta)
		}
	}
}
