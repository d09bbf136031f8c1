package imaging

import (
	"image"
	"image/color"

	"github.com/anthonynsimon/bild/adjust"
	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"

	"github.com/ironsheep/image-studio/internal/imgerr"
)

func registerAdjustments(r *Registry) {
	factor := []ParamSpec{{Name: "factor", Type: "number", Description: "0.0 to 2.0, 1.0 leaves the image unchanged", Required: true}}

	for _, a := range []struct {
		name, desc string
		fn         func(*image.NRGBA, float64) *image.NRGBA
	}{
		{"brightness", "Scale every channel by factor.", Brightness},
		{"contrast", "Stretch channels away from the mean gray level by factor.", Contrast},
		{"saturation", "Blend between grayscale (0) and the image (1) by factor.", Saturation},
	} {
		fn := a.fn
		r.register(Operation{
			Name:        a.name,
			Description: a.desc,
			Params:      factor,
			prepare: func(d Descriptor) (Func, error) {
				f, err := d.Params.RequiredFloat("factor")
				if err != nil {
					return nil, err
				}
				if err := checkRange("factor", f, 0, 2); err != nil {
					return nil, err
				}
				return func(pic *Picture) (*image.NRGBA, error) {
					return fn(pic.Image(), f), nil
				}, nil
			},
		})
	}

	r.register(Operation{
		Name:        "hue",
		Description: "Rotate hue by factor of a half turn; wraps around.",
		Params:      []ParamSpec{{Name: "factor", Type: "number", Description: "-0.5 to 0.5", Required: true}},
		prepare: func(d Descriptor) (Func, error) {
			f, err := d.Params.RequiredFloat("factor")
			if err != nil {
				return nil, err
			}
			if err := checkRange("factor", f, -0.5, 0.5); err != nil {
				return nil, err
			}
			return func(pic *Picture) (*image.NRGBA, error) {
				return Hue(pic.Image(), f), nil
			}, nil
		},
	})

	r.simple("auto_enhance", "Contrast 1.2, brightness 1.1, then a light unsharp mask.", func(pic *Picture) (*image.NRGBA, error) {
		return AutoEnhance(pic.Image()), nil
	})
	r.simple("colorize", "Map gray levels onto a hue ramp.", func(pic *Picture) (*image.NRGBA, error) {
		return Colorize(pic.Image()), nil
	})

	r.register(Operation{
		Name:        "color_pop",
		Description: "Keep colors whose hue lies in [hue_min, hue_max] and desaturate the rest.",
		Params: []ParamSpec{
			{Name: "hue_min", Type: "integer", Description: "0 to 180 (half degrees)", Required: true},
			{Name: "hue_max", Type: "integer", Description: "0 to 180 (half degrees)", Required: true},
		},
		prepare: func(d Descriptor) (Func, error) {
			lo, err := d.Params.RequiredInt("hue_min")
			if err != nil {
				return nil, err
			}
			hi, err := d.Params.RequiredInt("hue_max")
			if err != nil {
				return nil, err
			}
			if err := checkRange("hue_min", float64(lo), 0, 180); err != nil {
				return nil, err
			}
			if err := checkRange("hue_max", float64(hi), 0, 180); err != nil {
				return nil, err
			}
			if lo > hi {
				return nil, imgerr.Invalid("hue_min %d must not exceed hue_max %d", lo, hi)
			}
			return func(pic *Picture) (*image.NRGBA, error) {
				return ColorPop(pic.Image(), lo, hi), nil
			}, nil
		},
	})
}

// luma is the ITU-R 601 luminance used for every grayscale conversion.
func luma(r, g, b uint8) float64 {
	return (299*float64(r) + 587*float64(g) + 114*float64(b)) / 1000
}

func clamp8(v float64) uint8 {
	switch {
	case v <= 0:
		return 0
	case v >= 255:
		return 255
	}
	return uint8(v + 0.5)
}

// Brightness multiplies every color channel by factor.
func Brightness(img *image.NRGBA, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8(float64(c.R) * factor),
			G: clamp8(float64(c.G) * factor),
			B: clamp8(float64(c.B) * factor),
			A: c.A,
		}
	})
}

// Contrast interpolates between the mean gray level (factor 0) and the image
// (factor 1); larger factors extrapolate.
func Contrast(img *image.NRGBA, factor float64) *image.NRGBA {
	var sum float64
	n := 0
	for y := 0; y < img.Rect.Dy(); y++ {
		row := img.Pix[y*img.Stride : y*img.Stride+img.Rect.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			sum += luma(row[i], row[i+1], row[i+2])
			n++
		}
	}
	mean := 0.0
	if n > 0 {
		mean = float64(int(sum/float64(n) + 0.5))
	}
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		return color.NRGBA{
			R: clamp8(mean + factor*(float64(c.R)-mean)),
			G: clamp8(mean + factor*(float64(c.G)-mean)),
			B: clamp8(mean + factor*(float64(c.B)-mean)),
			A: c.A,
		}
	})
}

// Saturation interpolates each pixel between its gray level (factor 0) and
// itself (factor 1).
func Saturation(img *image.NRGBA, factor float64) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		l := luma(c.R, c.G, c.B)
		return color.NRGBA{
			R: clamp8(l + factor*(float64(c.R)-l)),
			G: clamp8(l + factor*(float64(c.G)-l)),
			B: clamp8(l + factor*(float64(c.B)-l)),
			A: c.A,
		}
	})
}

// Hue rotates hue by factor×180 steps of the 0-180 half-degree scale.
func Hue(img *image.NRGBA, factor float64) *image.NRGBA {
	steps := int(factor * 180)
	if steps == 0 {
		return imaging.Clone(img)
	}
	return imaging.Clone(adjust.Hue(img, steps*2))
}

// AutoEnhance applies a fixed contrast, brightness and sharpening pass.
func AutoEnhance(img *image.NRGBA) *image.NRGBA {
	out := Contrast(img, 1.2)
	out = Brightness(out, 1.1)
	return imaging.Clone(effect.UnsharpMask(out, 1, 1.0))
}

// Colorize maps each gray level v to hue v/2 (half degrees) at full
// saturation and value v.
func Colorize(img *image.NRGBA) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		v := clamp8(luma(c.R, c.G, c.B))
		h := float64((int(v)/2)%180) * 2
		r, g, b := colorful.Hsv(h, 1, float64(v)/255).Clamped().RGB255()
		return color.NRGBA{R: r, G: g, B: b, A: c.A}
	})
}

// ColorPop keeps pixels whose hue (half degrees) is within [lo, hi] and whose
// saturation and value are at least 50/255; every other pixel turns gray.
func ColorPop(img *image.NRGBA, lo, hi int) *image.NRGBA {
	return imaging.AdjustFunc(img, func(c color.NRGBA) color.NRGBA {
		h, s, v := colorful.Color{R: float64(c.R) / 255, G: float64(c.G) / 255, B: float64(c.B) / 255}.Hsv()
		half := int(h / 2)
		if half >= lo && half <= hi && s*255 >= 50 && v*255 >= 50 {
			return c
		}
		l := clamp8(luma(c.R, c.G, c.B))
		return color.NRGBA{R: l, G: l, B: l, A: c.A}
	})
}
