package imaging

import (
	"image"
	"image/color"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/imgerr"
	"github.com/ironsheep/image-studio/internal/vision"
)

// Collage layouts are named rows x columns; values are {cols, rows}.
var collageLayouts = map[string][2]int{
	"2x2": {2, 2},
	"3x1": {1, 3},
	"1x3": {3, 1},
	"1x2": {2, 1},
	"2x1": {1, 2},
}

func registerGeometry(r *Registry) {
	r.register(Operation{
		Name:        "crop",
		Description: "Crop to a box, or to a named region such as top-left or center.",
		Params: []ParamSpec{
			{Name: "left", Type: "integer", Description: "left edge"},
			{Name: "top", Type: "integer", Description: "top edge"},
			{Name: "right", Type: "integer", Description: "right edge, exclusive"},
			{Name: "bottom", Type: "integer", Description: "bottom edge, exclusive"},
			{Name: "region", Type: "string", Description: "named region instead of a box"},
		},
		prepare: prepareCrop,
	})

	r.register(Operation{
		Name:        "resize",
		Description: "Resize to exact dimensions with Lanczos resampling.",
		Params: []ParamSpec{
			{Name: "width", Type: "integer", Required: true},
			{Name: "height", Type: "integer", Required: true},
		},
		prepare: func(d Descriptor) (Func, error) {
			w, err := d.Params.RequiredInt("width")
			if err != nil {
				return nil, err
			}
			h, err := d.Params.RequiredInt("height")
			if err != nil {
				return nil, err
			}
			if w <= 0 || h <= 0 {
				return nil, imgerr.Invalid("resize dimensions must be positive, got %dx%d", w, h)
			}
			if err := codec.CheckDimensions(w, h); err != nil {
				return nil, err
			}
			return func(pic *Picture) (*image.NRGBA, error) {
				return imaging.Resize(pic.Image(), w, h, imaging.Lanczos), nil
			}, nil
		},
	})

	r.register(Operation{
		Name:        "rotate",
		Description: "Rotate counter-clockwise by 90, 180 or 270 degrees.",
		Params:      []ParamSpec{{Name: "angle", Type: "integer", Description: "90, 180 or 270", Required: true}},
		prepare: func(d Descriptor) (Func, error) {
			angle, err := d.Params.RequiredInt("angle")
			if err != nil {
				return nil, err
			}
			var fn func(image.Image) *image.NRGBA
			switch angle {
			case 90:
				fn = imaging.Rotate90
			case 180:
				fn = imaging.Rotate180
			case 270:
				fn = imaging.Rotate270
			default:
				return nil, imgerr.Invalid("angle %d must be 90, 180 or 270", angle)
			}
			return func(pic *Picture) (*image.NRGBA, error) {
				return fn(pic.Image()), nil
			}, nil
		},
	})

	r.register(Operation{
		Name:        "flip",
		Description: "Mirror horizontally or vertically.",
		Params:      []ParamSpec{{Name: "direction", Type: "string", Description: "horizontal or vertical", Required: true}},
		prepare: func(d Descriptor) (Func, error) {
			dir, err := d.Params.String("direction", "")
			if err != nil {
				return nil, err
			}
			if err := checkOneOf("direction", dir, "horizontal", "vertical"); err != nil {
				return nil, err
			}
			return func(pic *Picture) (*image.NRGBA, error) {
				if dir == "horizontal" {
					return imaging.FlipH(pic.Image()), nil
				}
				return imaging.FlipV(pic.Image()), nil
			}, nil
		},
	})

	r.register(Operation{
		Name:        "add_border",
		Description: "Surround the image with a solid border.",
		Params: []ParamSpec{
			{Name: "width", Type: "integer", Required: true},
			{Name: "color", Type: "string", Default: "#ffffff"},
		},
		prepare: func(d Descriptor) (Func, error) {
			width, err := d.Params.RequiredInt("width")
			if err != nil {
				return nil, err
			}
			if width < 0 {
				return nil, imgerr.Invalid("border width %d must not be negative", width)
			}
			if err := codec.CheckDimensions(2*width+1, 2*width+1); err != nil {
				return nil, err
			}
			c, err := colorParam(d.Params, "color", "#ffffff")
			if err != nil {
				return nil, err
			}
			return func(pic *Picture) (*image.NRGBA, error) {
				if err := codec.CheckDimensions(pic.Width()+2*width, pic.Height()+2*width); err != nil {
					return nil, err
				}
				return AddBorder(pic.Image(), width, c), nil
			}, nil
		},
	})

	r.register(Operation{
		Name:        "perspective",
		Description: "Map four corner points (top-left, top-right, bottom-right, bottom-left) to a rectangle.",
		Params:      []ParamSpec{{Name: "points", Type: "array", Description: "four [x, y] pairs", Required: true}},
		prepare: func(d Descriptor) (Func, error) {
			pts, err := d.Params.Points("points")
			if err != nil {
				return nil, err
			}
			if len(pts) != 4 {
				return nil, imgerr.Invalid("perspective needs exactly 4 points, got %d", len(pts))
			}
			q := vision.Quad{pts[0], pts[1], pts[2], pts[3]}
			w, h := q.OutputSize()
			if w > 0 && h > 0 {
				if err := codec.CheckDimensions(w, h); err != nil {
					return nil, err
				}
			}
			return func(pic *Picture) (*image.NRGBA, error) {
				if w <= 0 || h <= 0 {
					return nil, imgerr.Transformf("perspective: degenerate quadrilateral")
				}
				out, err := vision.WarpPerspective(pic.Frame(), q, w, h)
				if err != nil {
					return nil, err
				}
				return out.NRGBA(), nil
			}, nil
		},
	})

	r.register(Operation{
		Name:        "stitch",
		Description: "Stitch the current image and the supplied images into a panorama.",
		Images:      true,
		prepare: func(d Descriptor) (Func, error) {
			if len(d.Images) < 1 {
				return nil, imgerr.Invalid("stitch needs at least 2 images")
			}
			extra := frames(d.Images)
			return func(pic *Picture) (*image.NRGBA, error) {
				all := append([]*vision.Frame{pic.Frame()}, extra...)
				out, err := vision.Stitch(all)
				if err != nil {
					return nil, err
				}
				return out.NRGBA(), nil
			}, nil
		},
	})

	r.register(Operation{
		Name:         "collage",
		Description:  "Replace the image with a grid of the supplied images.",
		Images:       true,
		ResetsLayers: true,
		Params:       []ParamSpec{{Name: "layout", Type: "string", Description: "2x2, 3x1, 1x3, 1x2 or 2x1", Default: "2x2"}},
		prepare: func(d Descriptor) (Func, error) {
			layout, err := d.Params.String("layout", "2x2")
			if err != nil {
				return nil, err
			}
			grid, ok := collageLayouts[layout]
			if !ok {
				return nil, imgerr.Invalid("unknown collage layout %q", layout)
			}
			if len(d.Images) == 0 {
				return nil, imgerr.Invalid("collage needs at least one image")
			}
			imgs := make([]*image.NRGBA, len(d.Images))
			for i, img := range d.Images {
				imgs[i] = imaging.Clone(img)
			}
			return func(*Picture) (*image.NRGBA, error) {
				return Collage(imgs, grid[0], grid[1]), nil
			}, nil
		},
	})
}

func prepareCrop(d Descriptor) (Func, error) {
	if d.Params.Has("region") {
		region, err := d.Params.String("region", "")
		if err != nil {
			return nil, err
		}
		if _, err := RegionRect(image.Rect(0, 0, 2, 2), region); err != nil {
			return nil, err
		}
		return func(pic *Picture) (*image.NRGBA, error) {
			box, err := RegionRect(pic.Bounds(), region)
			if err != nil {
				return nil, err
			}
			return Crop(pic.Image(), box)
		}, nil
	}

	var box [4]int
	for i, key := range []string{"left", "top", "right", "bottom"} {
		v, err := d.Params.RequiredInt(key)
		if err != nil {
			return nil, err
		}
		if v < 0 {
			return nil, imgerr.Invalid("%s %d must not be negative", key, v)
		}
		box[i] = v
	}
	rect := image.Rect(box[0], box[1], box[2], box[3])
	if box[2] <= box[0] || box[3] <= box[1] {
		return nil, imgerr.Invalid("invalid crop region: left must be < right, top must be < bottom")
	}
	return func(pic *Picture) (*image.NRGBA, error) {
		return Crop(pic.Image(), rect)
	}, nil
}

// Crop extracts a rectangular region. The region must lie inside the image.
func Crop(img *image.NRGBA, r image.Rectangle) (*image.NRGBA, error) {
	b := img.Bounds()
	if !r.In(b) {
		return nil, imgerr.Invalid("crop region (%d,%d)-(%d,%d) outside image bounds (%d,%d)-(%d,%d)",
			r.Min.X, r.Min.Y, r.Max.X, r.Max.Y, b.Min.X, b.Min.Y, b.Max.X, b.Max.Y)
	}
	return imaging.Crop(img, r), nil
}

// RegionRect resolves a named region of b.
func RegionRect(b image.Rectangle, region string) (image.Rectangle, error) {
	w, h := b.Dx(), b.Dy()
	midX, midY := w/2, h/2

	var x1, y1, x2, y2 int
	switch region {
	case "top-left":
		x1, y1, x2, y2 = 0, 0, midX, midY
	case "top-right":
		x1, y1, x2, y2 = midX, 0, w, midY
	case "bottom-left":
		x1, y1, x2, y2 = 0, midY, midX, h
	case "bottom-right":
		x1, y1, x2, y2 = midX, midY, w, h
	case "top-half":
		x1, y1, x2, y2 = 0, 0, w, midY
	case "bottom-half":
		x1, y1, x2, y2 = 0, midY, w, h
	case "left-half":
		x1, y1, x2, y2 = 0, 0, midX, h
	case "right-half":
		x1, y1, x2, y2 = midX, 0, w, h
	case "center":
		// Center 50% of the image
		qW, qH := w/4, h/4
		x1, y1, x2, y2 = qW, qH, w-qW, h-qH
	default:
		return image.Rectangle{}, imgerr.Invalid("unknown region: %s", region)
	}
	return image.Rect(x1, y1, x2, y2).Add(b.Min), nil
}

// AddBorder pads img by width pixels on every side.
func AddBorder(img *image.NRGBA, width int, c color.NRGBA) *image.NRGBA {
	if width == 0 {
		return imaging.Clone(img)
	}
	b := img.Bounds()
	dst := imaging.New(b.Dx()+2*width, b.Dy()+2*width, c)
	return imaging.Paste(dst, img, image.Pt(width, width))
}

// Collage resizes images to the largest width and height among them and
// places them row-major on a cols x rows grid over a white background.
// Images beyond the grid are ignored.
func Collage(imgs []*image.NRGBA, cols, rows int) *image.NRGBA {
	var cw, ch int
	for _, img := range imgs {
		cw = maxInt(cw, img.Rect.Dx())
		ch = maxInt(ch, img.Rect.Dy())
	}
	dst := imaging.New(cw*cols, ch*rows, color.White)
	for i, img := range imgs {
		if i >= cols*rows {
			break
		}
		cell := imaging.Resize(img, cw, ch, imaging.Lanczos)
		dst = imaging.Paste(dst, cell, image.Pt((i%cols)*cw, (i/cols)*ch))
	}
	return dst
}

func frames(imgs []image.Image) []*vision.Frame {
	out := make([]*vision.Frame, len(imgs))
	for i, img := range imgs {
		out[i] = vision.FrameFromNRGBA(imaging.Clone(img))
	}
	return out
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}
