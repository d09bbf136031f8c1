package imaging

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"os"
	"sync"
	"unicode/utf8"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/font/opentype"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/imgerr"
)

const (
	watermarkSize   = 50
	watermarkOffset = 10
	memeMargin      = 10
)

func registerText(r *Registry) {
	r.register(Operation{
		Name:        "add_text",
		Description: "Draw text with its top-left corner at (x, y).",
		Params: []ParamSpec{
			{Name: "text", Type: "string", Required: true},
			{Name: "x", Type: "integer", Default: 0},
			{Name: "y", Type: "integer", Default: 0},
			{Name: "font_size", Type: "number", Default: 20},
			{Name: "color", Type: "string", Default: "#000000"},
		},
		prepare: func(d Descriptor) (Func, error) {
			text, err := d.Params.String("text", "")
			if err != nil {
				return nil, err
			}
			if text == "" {
				return nil, imgerr.Invalid("text content required")
			}
			x, err := d.Params.Int("x", 0)
			if err != nil {
				return nil, err
			}
			y, err := d.Params.Int("y", 0)
			if err != nil {
				return nil, err
			}
			size, err := fontSizeParam(d.Params, 20)
			if err != nil {
				return nil, err
			}
			if err := checkTextExtent(text, size); err != nil {
				return nil, err
			}
			c, err := colorParam(d.Params, "color", "#000000")
			if err != nil {
				return nil, err
			}
			return func(pic *Picture) (*image.NRGBA, error) {
				out := imaging.Clone(pic.Image())
				r.fonts.draw(out, text, size, image.Pt(x, y), c)
				return out, nil
			}, nil
		},
	})

	r.register(Operation{
		Name:        "watermark",
		Description: "Composite translucent white text in the top-left corner.",
		Params: []ParamSpec{
			{Name: "text", Type: "string", Required: true},
			{Name: "opacity", Type: "number", Description: "0.0 to 1.0", Default: 0.5},
		},
		prepare: func(d Descriptor) (Func, error) {
			text, err := d.Params.String("text", "")
			if err != nil {
				return nil, err
			}
			if text == "" {
				return nil, imgerr.Invalid("watermark text required")
			}
			opacity, err := d.Params.Float("opacity", 0.5)
			if err != nil {
				return nil, err
			}
			if err := checkRange("opacity", opacity, 0, 1); err != nil {
				return nil, err
			}
			c := color.NRGBA{R: 255, G: 255, B: 255, A: uint8(255 * opacity)}
			return func(pic *Picture) (*image.NRGBA, error) {
				out := imaging.Clone(pic.Image())
				r.fonts.draw(out, text, watermarkSize, image.Pt(watermarkOffset, watermarkOffset), c)
				return out, nil
			}, nil
		},
	})

	r.register(Operation{
		Name:        "meme",
		Description: "Centered captions along the top and bottom edges.",
		Params: []ParamSpec{
			{Name: "top_text", Type: "string"},
			{Name: "bottom_text", Type: "string"},
			{Name: "font_size", Type: "number", Default: 50},
			{Name: "color", Type: "string", Default: "#FFFFFF"},
		},
		prepare: func(d Descriptor) (Func, error) {
			top, err := d.Params.String("top_text", "")
			if err != nil {
				return nil, err
			}
			bottom, err := d.Params.String("bottom_text", "")
			if err != nil {
				return nil, err
			}
			if top == "" && bottom == "" {
				return nil, imgerr.Invalid("at least one of top_text and bottom_text is required")
			}
			size, err := fontSizeParam(d.Params, 50)
			if err != nil {
				return nil, err
			}
			for _, caption := range []string{top, bottom} {
				if err := checkTextExtent(caption, size); err != nil {
					return nil, err
				}
			}
			c, err := colorParam(d.Params, "color", "#FFFFFF")
			if err != nil {
				return nil, err
			}
			return func(pic *Picture) (*image.NRGBA, error) {
				out := imaging.Clone(pic.Image())
				w, h := out.Rect.Dx(), out.Rect.Dy()
				if top != "" {
					m := r.fonts.render(top, size)
					r.fonts.composite(out, m, image.Pt((w-m.Bounds().Dx())/2, memeMargin), c)
				}
				if bottom != "" {
					m := r.fonts.render(bottom, size)
					r.fonts.composite(out, m, image.Pt((w-m.Bounds().Dx())/2, h-m.Bounds().Dy()-memeMargin), c)
				}
				return out, nil
			}, nil
		},
	})
}

func fontSizeParam(p Params, def float64) (float64, error) {
	size, err := p.Float("font_size", def)
	if err != nil {
		return 0, err
	}
	if size <= 0 {
		return 0, imgerr.Invalid("font size must be positive, got %v", size)
	}
	return size, nil
}

// checkTextExtent rejects text whose rendered mask would be over the pixel
// cap. Each glyph is budgeted one em wide and the line two ems tall.
func checkTextExtent(text string, size float64) error {
	n := utf8.RuneCountInString(text)
	if n == 0 {
		return nil
	}
	em := math.Ceil(size)
	if em*float64(n) > math.MaxInt32 || 2*em > math.MaxInt32 {
		return imgerr.Invalid("font size %v is too large for %d characters", size, n)
	}
	if err := codec.CheckDimensions(int(em)*n, 2*int(em)); err != nil {
		return errors.WithMessage(err, "rendered text")
	}
	return nil
}

// colorParam parses a #RRGGBB parameter into an opaque color.
func colorParam(p Params, key, def string) (color.NRGBA, error) {
	s, err := p.String(key, def)
	if err != nil {
		return color.NRGBA{}, err
	}
	c, err := colorful.Hex(s)
	if err != nil {
		return color.NRGBA{}, imgerr.Invalid("invalid color format %q", s)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{R: r, G: g, B: b, A: 255}, nil
}

// fontSource renders text with a TrueType font loaded once from disk, or
// with the built-in 7x13 bitmap font scaled to the requested size when no
// font file is configured or it cannot be parsed.
type fontSource struct {
	path string
	once sync.Once
	font *opentype.Font
}

func newFontSource(path string) *fontSource {
	return &fontSource{path: path}
}

func (s *fontSource) load() *opentype.Font {
	s.once.Do(func() {
		if s.path == "" {
			return
		}
		data, err := os.ReadFile(s.path)
		if err != nil {
			return
		}
		if f, err := opentype.Parse(data); err == nil {
			s.font = f
		}
	})
	return s.font
}

// render returns a mask of text whose bounds are the text's advance by its
// line height, with the origin at the top-left corner.
func (s *fontSource) render(text string, size float64) image.Image {
	if f := s.load(); f != nil {
		face, err := opentype.NewFace(f, &opentype.FaceOptions{Size: size, DPI: 72, Hinting: font.HintingFull})
		if err == nil {
			defer face.Close()
			return drawMask(face, text)
		}
	}

	m := drawMask(basicfont.Face7x13, text)
	scale := size / float64(basicfont.Face7x13.Height)
	w := int(math.Round(float64(m.Bounds().Dx()) * scale))
	h := int(math.Round(float64(m.Bounds().Dy()) * scale))
	if w < 1 || h < 1 {
		return image.NewAlpha(image.Rect(0, 0, 0, 0))
	}
	return imaging.Resize(m, w, h, imaging.NearestNeighbor)
}

func drawMask(face font.Face, text string) *image.Alpha {
	metrics := face.Metrics()
	w := font.MeasureString(face, text).Ceil()
	h := (metrics.Ascent + metrics.Descent).Ceil()
	mask := image.NewAlpha(image.Rect(0, 0, w, h))
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.Opaque,
		Face: face,
		Dot:  fixed.Point26_6{X: 0, Y: metrics.Ascent},
	}
	d.DrawString(text)
	return mask
}

// composite paints c through mask onto dst with its top-left corner at at.
func (s *fontSource) composite(dst *image.NRGBA, mask image.Image, at image.Point, c color.NRGBA) {
	mb := mask.Bounds()
	r := mb.Sub(mb.Min).Add(at)
	draw.DrawMask(dst, r, image.NewUniform(c), image.Point{}, mask, mb.Min, draw.Over)
}

func (s *fontSource) draw(dst *image.NRGBA, text string, size float64, at image.Point, c color.NRGBA) {
	s.composite(dst, s.render(text, size), at, c)
}
