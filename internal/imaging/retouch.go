package imaging

import (
	"image"

	"github.com/disintegration/gift"
	"github.com/disintegration/imaging"

	"github.com/ironsheep/image-studio/internal/imgerr"
	"github.com/ironsheep/image-studio/internal/vision"
)

const (
	backgroundInset      = 50
	backgroundIterations = 5
	inpaintRadius        = 3
	faceBlurSigma        = 30
)

func registerRetouch(r *Registry) {
	r.simple("remove_background", "Segment the subject from a border seed and make the background transparent.",
		func(pic *Picture) (*image.NRGBA, error) {
			w, h := pic.Width(), pic.Height()
			// Not image.Rect, which would swap the corners of a small image.
			rect := image.Rectangle{
				Min: image.Pt(backgroundInset, backgroundInset),
				Max: image.Pt(w-backgroundInset, h-backgroundInset),
			}
			mask, err := vision.Segment(pic.Frame(), rect, backgroundIterations)
			if err != nil {
				return nil, err
			}
			return cutOut(pic.Image(), mask), nil
		})

	r.register(Operation{
		Name:        "inpaint",
		Description: "Fill a circular region from its surroundings.",
		Params: []ParamSpec{
			{Name: "x", Type: "integer", Required: true},
			{Name: "y", Type: "integer", Required: true},
			{Name: "radius", Type: "integer", Required: true},
		},
		prepare: func(d Descriptor) (Func, error) {
			x, err := d.Params.RequiredInt("x")
			if err != nil {
				return nil, err
			}
			y, err := d.Params.RequiredInt("y")
			if err != nil {
				return nil, err
			}
			radius, err := d.Params.RequiredInt("radius")
			if err != nil {
				return nil, err
			}
			if radius <= 0 {
				return nil, imgerr.Invalid("radius must be positive, got %d", radius)
			}
			return func(pic *Picture) (*image.NRGBA, error) {
				if !image.Pt(x, y).In(pic.Bounds()) {
					return nil, imgerr.Invalid("point (%d,%d) outside image bounds", x, y)
				}
				mask := circleMask(pic.Bounds(), image.Pt(x, y), radius)
				out, err := vision.Inpaint(pic.Frame(), mask, inpaintRadius)
				if err != nil {
					return nil, err
				}
				return out.NRGBA(), nil
			}, nil
		},
	})

	r.register(Operation{
		Name:        "face_detection",
		Description: "Crop to the first detected face or blur every face.",
		Params:      []ParamSpec{{Name: "action", Type: "string", Description: "crop or blur", Default: "crop"}},
		prepare: func(d Descriptor) (Func, error) {
			action, err := d.Params.String("action", "crop")
			if err != nil {
				return nil, err
			}
			if err := checkOneOf("action", action, "crop", "blur"); err != nil {
				return nil, err
			}
			return func(pic *Picture) (*image.NRGBA, error) {
				faces, err := r.res.Faces.DetectFaces(pic.Frame())
				if err != nil {
					return nil, err
				}
				if action == "crop" {
					if len(faces) == 0 {
						return imaging.Clone(pic.Image()), nil
					}
					return imaging.Crop(pic.Image(), faces[0]), nil
				}
				return BlurRegions(pic.Image(), faces, faceBlurSigma), nil
			}, nil
		},
	})

	r.simple("red_eye", "Desaturate red pupils inside detected eyes.", func(pic *Picture) (*image.NRGBA, error) {
		f := pic.Frame()
		faces, err := r.res.Faces.DetectFaces(f)
		if err != nil {
			return nil, err
		}
		var eyes []image.Rectangle
		for _, face := range faces {
			found, err := r.res.Faces.DetectEyes(f, face)
			if err != nil {
				return nil, err
			}
			eyes = append(eyes, found...)
		}
		return RemoveRedEye(pic.Image(), eyes), nil
	})
}

// cutOut zeroes unselected pixels and uses the mask as alpha.
func cutOut(img *image.NRGBA, mask *vision.Mask) *image.NRGBA {
	out := imaging.Clone(img)
	for y := 0; y < out.Rect.Dy(); y++ {
		for x := 0; x < out.Rect.Dx(); x++ {
			if mask.Pix[y*mask.Stride+x] != 0 {
				out.Pix[y*out.Stride+x*4+3] = 255
				continue
			}
			i := y*out.Stride + x*4
			out.Pix[i], out.Pix[i+1], out.Pix[i+2], out.Pix[i+3] = 0, 0, 0, 0
		}
	}
	return out
}

func circleMask(b image.Rectangle, c image.Point, radius int) *vision.Mask {
	mask := image.NewGray(image.Rect(0, 0, b.Dx(), b.Dy()))
	r2 := radius * radius
	for y := maxInt(0, c.Y-radius); y <= c.Y+radius && y < b.Dy(); y++ {
		for x := maxInt(0, c.X-radius); x <= c.X+radius && x < b.Dx(); x++ {
			dx, dy := x-c.X, y-c.Y
			if dx*dx+dy*dy <= r2 {
				mask.Pix[y*mask.Stride+x] = 255
			}
		}
	}
	return mask
}

// BlurRegions applies a Gaussian blur of the given sigma inside each rect.
func BlurRegions(img *image.NRGBA, rects []image.Rectangle, sigma float32) *image.NRGBA {
	out := imaging.Clone(img)
	g := gift.New(gift.GaussianBlur(sigma))
	for _, r := range rects {
		r = r.Intersect(out.Bounds())
		if r.Empty() {
			continue
		}
		region := imaging.Crop(out, r)
		blurred := image.NewNRGBA(g.Bounds(region.Bounds()))
		g.Draw(blurred, region)
		out = imaging.Paste(out, blurred, r.Min)
	}
	return out
}

// RemoveRedEye replaces the red channel with green for strongly red pixels
// inside eyes: r > 150, r > g+20 and r > b+20.
func RemoveRedEye(img *image.NRGBA, eyes []image.Rectangle) *image.NRGBA {
	out := imaging.Clone(img)
	for _, e := range eyes {
		e = e.Intersect(out.Bounds())
		for y := e.Min.Y; y < e.Max.Y; y++ {
			for x := e.Min.X; x < e.Max.X; x++ {
				i := y*out.Stride + x*4
				r, g, b := int(out.Pix[i]), int(out.Pix[i+1]), int(out.Pix[i+2])
				if r > 150 && r > g+20 && r > b+20 {
					out.Pix[i] = out.Pix[i+1]
				}
			}
		}
	}
	return out
}
