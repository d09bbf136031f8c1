package imaging

import (
	"image"
	"image/color"
	"testing"
)

// solidImage returns a w×h image filled with c.
func solidImage(w, h int, c color.Color) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	nc := color.NRGBAModel.Convert(c).(color.NRGBA)
	for i := 0; i < len(img.Pix); i += 4 {
		img.Pix[i], img.Pix[i+1], img.Pix[i+2], img.Pix[i+3] = nc.R, nc.G, nc.B, nc.A
	}
	return img
}

// patternImage has red, green, blue and white quadrants.
func patternImage(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			var c color.NRGBA
			switch {
			case x < w/2 && y < h/2:
				c = color.NRGBA{255, 0, 0, 255}
			case x >= w/2 && y < h/2:
				c = color.NRGBA{0, 255, 0, 255}
			case x < w/2:
				c = color.NRGBA{0, 0, 255, 255}
			default:
				c = color.NRGBA{255, 255, 255, 255}
			}
			img.SetNRGBA(x, y, c)
		}
	}
	return img
}

func newTestRegistry() *Registry {
	return NewRegistry(Resources{NoiseSeed: 42})
}

// apply runs one operation and fails the test on error.
func apply(t *testing.T, r *Registry, img image.Image, name string, params Params) *image.NRGBA {
	t.Helper()
	out, err := r.Apply(NewPicture(img), Op(name, params))
	if err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
	return out.Image()
}

func sameSize(a, b image.Image) bool {
	return a.Bounds().Dx() == b.Bounds().Dx() && a.Bounds().Dy() == b.Bounds().Dy()
}

func absInt(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
