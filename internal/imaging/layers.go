package imaging

import (
	"image"

	"github.com/anthonynsimon/bild/blend"
	"github.com/disintegration/imaging"
)

// Blend mixes top over base at the given opacity: base·(1-opacity) +
// top·opacity per channel. Both images must have the same size.
func Blend(base, top *image.NRGBA, opacity float64) *image.NRGBA {
	switch {
	case opacity <= 0:
		return imaging.Clone(base)
	case opacity >= 1:
		return imaging.Clone(top)
	}
	return imaging.Clone(blend.Opacity(base, top, opacity))
}

// FitLayer resizes img to w×h so it can join a layer stack.
func FitLayer(img image.Image, w, h int) *image.NRGBA {
	b := img.Bounds()
	if b.Dx() == w && b.Dy() == h {
		return imaging.Clone(img)
	}
	return imaging.Resize(img, w, h, imaging.Lanczos)
}

// MergeLayers folds layers into one image, blending each layer over the
// running result at opacity.
func MergeLayers(layers []*image.NRGBA, opacity float64) *image.NRGBA {
	if len(layers) == 0 {
		return nil
	}
	base := layers[0]
	for _, l := range layers[1:] {
		base = Blend(base, l, opacity)
	}
	return imaging.Clone(base)
}
