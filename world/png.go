package world

import (
	"bytes"
	"image"
	"image/color"
	"image/png"
	"math"
)

// EncodePNG serialises df as an RGBA image: hue encodes angle, S=V=1,
// and alpha encodes magnitude*255 — this is the wire/cache format for
// collision maps. No example repo in the retrieved pack
// carries an HSV<->RGB conversion library (golang.org/x/image, the one
// color-adjacent dependency seen in the pack, is font-rendering only),
// so the conversion is implemented directly against stdlib image/color
// — see DESIGN.md for the stdlib-usage justification.
func EncodePNG(df *DistanceField) ([]byte, error) {
	// image.RGBA/color.RGBA is alpha-premultiplied, and image/png
	// un-premultiplies on write; r/g/b here are computed straight (not
	// premultiplied by a), so NRGBA/SetNRGBA is the encoding that round
	// trips them exactly.
	img := image.NewNRGBA(image.Rect(0, 0, df.Width, df.Height))
	for y := 0; y < df.Height; y++ {
		for x := 0; x < df.Width; x++ {
			v := df.data[y*df.Width+x]
			r, g, b := hueToRGB(math.Atan2(float64(v.Y), float64(v.X)))
			mag := v.Len()
			if mag > 1 {
				mag = 1
			}
			a := uint8(mag * 255)
			img.SetNRGBA(x, y, color.NRGBA{R: r, G: g, B: b, A: a})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeDistanceFieldPNG reverses EncodePNG: alpha=0 decodes to the zero
// vector, otherwise the vector is reconstructed from hue and
// alpha/255 magnitude.
func DecodeDistanceFieldPNG(data []byte, scale float32) (*DistanceField, error) {
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	bounds := img.Bounds()
	width, height := bounds.Dx(), bounds.Dy()
	df := &DistanceField{Width: width, Height: height, Scale: scale, data: make([]Vec2, width*height)}
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			r, g, b, a := img.At(bounds.Min.X+x, bounds.Min.Y+y).RGBA()
			alpha := float64(a>>8) / 255
			if alpha == 0 {
				continue
			}
			theta := rgbToHue(uint8(r>>8), uint8(g>>8), uint8(b>>8))
			df.data[y*width+x] = Vec2{
				X: float32(math.Cos(theta) * alpha),
				Y: float32(math.Sin(theta) * alpha),
			}
		}
	}
	return df, nil
}

// hueToRGB converts an angle in radians (S=V=1) to 8-bit RGB.
func hueToRGB(theta float64) (r, g, b uint8) {
	h := theta
	for h < 0 {
		h += 2 * math.Pi
	}
	for h >= 2*math.Pi {
		h -= 2 * math.Pi
	}
	hDeg := h * 180 / math.Pi / 60
	c := 1.0
	x := c * (1 - math.Abs(math.Mod(hDeg, 2)-1))
	var rf, gf, bf float64
	switch {
	case hDeg < 1:
		rf, gf, bf = c, x, 0
	case hDeg < 2:
		rf, gf, bf = x, c, 0
	case hDeg < 3:
		rf, gf, bf = 0, c, x
	case hDeg < 4:
		rf, gf, bf = 0, x, c
	case hDeg < 5:
		rf, gf, bf = x, 0, c
	default:
		rf, gf, bf = c, 0, x
	}
	return uint8(rf * 255), uint8(gf * 255), uint8(bf * 255)
}

// rgbToHue is the inverse of hueToRGB's hue computation, returning an
// angle in radians in [0, 2*pi).
func rgbToHue(r, g, b uint8) float64 {
	rf, gf, bf := float64(r)/255, float64(g)/255, float64(b)/255
	max := math.Max(rf, math.Max(gf, bf))
	min := math.Min(rf, math.Min(gf, bf))
	delta := max - min
	if delta == 0 {
		return 0
	}
	var hDeg float64
	switch max {
	case rf:
		hDeg = math.Mod((gf-bf)/delta, 6)
	case gf:
		hDeg = (bf-rf)/delta + 2
	default:
		hDeg = (rf-gf)/delta + 4
	}
	h := hDeg * 60 * math.Pi / 180
	if h < 0 {
		h += 2 * math.Pi
	}
	return h
}
