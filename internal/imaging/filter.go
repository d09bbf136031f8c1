package imaging

import (
	"image"
	"math"
	"math/rand"
	"time"

	"github.com/anthonynsimon/bild/effect"
	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/imgerr"
	"github.com/ironsheep/image-studio/internal/vision"
)

var (
	sharpenKernel = []float32{
		0, -1, 0,
		-1, 5, -1,
		0, -1, 0,
	}
	embossKernel = []float32{
		-2, -1, 0,
		-1, 1, 1,
		0, 1, 2,
	}
)

func registerFilters(r *Registry) {
	r.simple("grayscale", "Convert to grayscale.", func(pic *Picture) (*image.NRGBA, error) {
		return imaging.Grayscale(pic.Image()), nil
	})
	r.simple("sepia", "Apply the classic sepia tone matrix.", func(pic *Picture) (*image.NRGBA, error) {
		return imaging.Clone(effect.Sepia(pic.Image())), nil
	})
	r.simple("sharpen", "Convolve with a 3x3 sharpening kernel.", func(pic *Picture) (*image.NRGBA, error) {
		return convolve(pic.Image(), sharpenKernel), nil
	})
	r.simple("emboss", "Convolve with a 3x3 emboss kernel.", func(pic *Picture) (*image.NRGBA, error) {
		return convolve(pic.Image(), embossKernel), nil
	})
	r.simple("edge_detection", "Canny edges (thresholds 100/200) as a white-on-black image.", func(pic *Picture) (*image.NRGBA, error) {
		return imaging.Clone(EdgeDetect(pic.Image(), 100, 200)), nil
	})

	r.register(Operation{
		Name:        "blur",
		Description: "Gaussian blur with the given sigma.",
		Params:      []ParamSpec{{Name: "radius", Type: "number", Description: "0 to 10", Required: true}},
		prepare: func(d Descriptor) (Func, error) {
			radius, err := d.Params.RequiredFloat("radius")
			if err != nil {
				return nil, err
			}
			if err := checkRange("radius", radius, 0, 10); err != nil {
				return nil, err
			}
			return func(pic *Picture) (*image.NRGBA, error) {
				return Blur(pic.Image(), radius), nil
			}, nil
		},
	})

	intensity := func(name, desc string, fn func(*image.NRGBA, float64) *image.NRGBA) {
		r.register(Operation{
			Name:        name,
			Description: desc,
			Params:      []ParamSpec{{Name: "intensity", Type: "number", Description: "0.0 to 1.0", Required: true}},
			prepare: func(d Descriptor) (Func, error) {
				v, err := d.Params.RequiredFloat("intensity")
				if err != nil {
					return nil, err
				}
				if err := checkRange("intensity", v, 0, 1); err != nil {
					return nil, err
				}
				return func(pic *Picture) (*image.NRGBA, error) {
					return fn(pic.Image(), v), nil
				}, nil
			},
		})
	}
	intensity("vignette", "Darken towards the edges.", Vignette)
	intensity("noise", "Add Gaussian noise with standard deviation intensity×255.", func(img *image.NRGBA, v float64) *image.NRGBA {
		seed := r.res.NoiseSeed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		return Noise(img, v, rand.New(rand.NewSource(seed)))
	})

	frameOp := func(name, desc string, fn func(*vision.Frame) (*vision.Frame, error)) {
		r.simple(name, desc, func(pic *Picture) (*image.NRGBA, error) {
			out, err := fn(pic.Frame())
			if err != nil {
				return nil, err
			}
			return out.NRGBA(), nil
		})
	}
	frameOp("hdr", "Detail enhancement for an HDR look.", func(f *vision.Frame) (*vision.Frame, error) {
		return vision.DetailEnhance(f, 12, 0.15)
	})
	frameOp("oil_painting", "Oil painting effect.", func(f *vision.Frame) (*vision.Frame, error) {
		return vision.OilPaint(f, 7, 1)
	})
	frameOp("watercolor", "Watercolor stylization.", func(f *vision.Frame) (*vision.Frame, error) {
		return vision.Stylize(f, 60, 0.6)
	})
	frameOp("sketch", "Grayscale pencil sketch.", func(f *vision.Frame) (*vision.Frame, error) {
		return vision.PencilSketch(f, 60, 0.07, 0.05)
	})
	frameOp("restore", "Remove noise and scratches (denoise strength 10).", func(f *vision.Frame) (*vision.Frame, error) {
		return vision.Denoise(f, 10)
	})

	r.simple("cartoon", "Flatten colors and outline edges.", func(pic *Picture) (*image.NRGBA, error) {
		return Cartoon(pic.Image()), nil
	})

	r.register(Operation{
		Name:        "denoise",
		Description: "Non-local means denoising.",
		Params:      []ParamSpec{{Name: "strength", Type: "integer", Description: "1 to 30", Default: 10}},
		prepare: func(d Descriptor) (Func, error) {
			s, err := d.Params.Int("strength", 10)
			if err != nil {
				return nil, err
			}
			if err := checkRange("strength", float64(s), 1, 30); err != nil {
				return nil, err
			}
			return func(pic *Picture) (*image.NRGBA, error) {
				out, err := vision.Denoise(pic.Frame(), float32(s))
				if err != nil {
					return nil, err
				}
				return out.NRGBA(), nil
			}, nil
		},
	})

	r.register(Operation{
		Name:        "super_resolution",
		Description: "Upscale with Lanczos resampling and sharpen.",
		Params:      []ParamSpec{{Name: "scale", Type: "integer", Description: "2, 3 or 4", Default: 2}},
		prepare: func(d Descriptor) (Func, error) {
			s, err := d.Params.Int("scale", 2)
			if err != nil {
				return nil, err
			}
			if s < 2 || s > 4 {
				return nil, imgerr.Invalid("scale %d must be 2, 3 or 4", s)
			}
			return func(pic *Picture) (*image.NRGBA, error) {
				if err := codec.CheckDimensions(pic.Width()*s, pic.Height()*s); err != nil {
					return nil, err
				}
				return SuperResolution(pic.Image(), s), nil
			}, nil
		},
	})
}

func convolve(img *image.NRGBA, kernel []float32) *image.NRGBA {
	g := gift.New(gift.Convolution(kernel, false, false, false, 0))
	dst := image.NewNRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}

// Blur applies a Gaussian blur with standard deviation sigma. Zero returns a
// copy.
func Blur(img *image.NRGBA, sigma float64) *image.NRGBA {
	if sigma <= 0 {
		return imaging.Clone(img)
	}
	g := gift.New(gift.GaussianBlur(float32(sigma)))
	dst := image.NewNRGBA(g.Bounds(img.Bounds()))
	g.Draw(dst, img)
	return dst
}

// Vignette darkens pixels by a separable Gaussian falloff whose sigma is a
// quarter of the shorter side. intensity 0 is a no-op; 1 takes the corners
// close to black.
func Vignette(img *image.NRGBA, intensity float64) *image.NRGBA {
	w, h := img.Rect.Dx(), img.Rect.Dy()
	k := math.Min(float64(w), float64(h)) / 2
	sigma := math.Max(k/2, 1)
	falloff := func(i, n int) float64 {
		if n <= 1 {
			return 1
		}
		d := (float64(i)/float64(n-1) - 0.5) * 2 * k
		return math.Exp(-d * d / (2 * sigma * sigma))
	}
	gx := make([]float64, w)
	for x := range gx {
		gx[x] = falloff(x, w)
	}

	out := imaging.Clone(img)
	for y := 0; y < h; y++ {
		gy := falloff(y, h)
		row := out.Pix[y*out.Stride:]
		for x := 0; x < w; x++ {
			m := 1 - intensity*(1-gx[x]*gy)
			i := x * 4
			row[i] = clamp8(float64(row[i]) * m)
			row[i+1] = clamp8(float64(row[i+1]) * m)
			row[i+2] = clamp8(float64(row[i+2]) * m)
		}
	}
	return out
}

// Noise adds independent Gaussian noise to every color channel.
func Noise(img *image.NRGBA, intensity float64, rng *rand.Rand) *image.NRGBA {
	out := imaging.Clone(img)
	sd := intensity * 255
	if sd == 0 {
		return out
	}
	for y := 0; y < out.Rect.Dy(); y++ {
		row := out.Pix[y*out.Stride : y*out.Stride+out.Rect.Dx()*4]
		for i := 0; i < len(row); i += 4 {
			row[i] = clamp8(float64(row[i]) + rng.NormFloat64()*sd)
			row[i+1] = clamp8(float64(row[i+1]) + rng.NormFloat64()*sd)
			row[i+2] = clamp8(float64(row[i+2]) + rng.NormFloat64()*sd)
		}
	}
	return out
}

// Cartoon smooths colors and keeps them only where an adaptive threshold of
// the median-filtered luminance marks a non-edge; edges turn black.
func Cartoon(img *image.NRGBA) *image.NRGBA {
	gray := image.NewGray(img.Bounds())
	gift.New(gift.Grayscale(), gift.Median(5, false)).Draw(gray, img)
	edges := adaptiveThreshold(gray, 9, 9)

	g := gift.New(gift.Median(9, true))
	smooth := image.NewNRGBA(g.Bounds(img.Bounds()))
	g.Draw(smooth, img)

	for y := 0; y < smooth.Rect.Dy(); y++ {
		for x := 0; x < smooth.Rect.Dx(); x++ {
			if edges.Pix[y*edges.Stride+x] == 0 {
				i := y*smooth.Stride + x*4
				smooth.Pix[i], smooth.Pix[i+1], smooth.Pix[i+2] = 0, 0, 0
			}
		}
	}
	return smooth
}

// adaptiveThreshold marks a pixel 255 when it exceeds the mean of its
// block×block neighbourhood minus c.
func adaptiveThreshold(gray *image.Gray, block int, c float64) *image.Gray {
	w, h := gray.Rect.Dx(), gray.Rect.Dy()
	// Summed-area table with a zero border row and column.
	sat := make([]float64, (w+1)*(h+1))
	for y := 0; y < h; y++ {
		var rowSum float64
		for x := 0; x < w; x++ {
			rowSum += float64(gray.Pix[y*gray.Stride+x])
			sat[(y+1)*(w+1)+x+1] = sat[y*(w+1)+x+1] + rowSum
		}
	}
	half := block / 2
	out := image.NewGray(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		y0, y1 := clamp(y-half, 0, h-1), clamp(y+half, 0, h-1)+1
		for x := 0; x < w; x++ {
			x0, x1 := clamp(x-half, 0, w-1), clamp(x+half, 0, w-1)+1
			sum := sat[y1*(w+1)+x1] - sat[y0*(w+1)+x1] - sat[y1*(w+1)+x0] + sat[y0*(w+1)+x0]
			mean := sum / float64((x1-x0)*(y1-y0))
			if float64(gray.Pix[y*gray.Stride+x]) > mean-c {
				out.Pix[y*out.Stride+x] = 255
			}
		}
	}
	return out
}

// SuperResolution upscales by scale with Lanczos and sharpens the result.
func SuperResolution(img *image.NRGBA, scale int) *image.NRGBA {
	up := imaging.Resize(img, img.Rect.Dx()*scale, img.Rect.Dy()*scale, imaging.Lanczos)
	return imaging.Clone(effect.UnsharpMask(up, 2, 1.5))
}
