// Package codec is the decode/encode boundary of image-studio.
//
// Decoding accepts JPEG, PNG, GIF, WEBP, BMP and TIFF and always yields a
// canonical *image.NRGBA with EXIF orientation already applied. Encoding
// writes any of those formats (WEBP through libwebp) and honors quality,
// PNG compression level, DPI, color mode and an optional resize.
//
// Encoders never write EXIF or other metadata, so every output is stripped
// regardless of Options.StripMetadata.
package codec

import (
	"bytes"
	"image"
	"image/color"
	"image/draw"
	"image/gif"
	"image/jpeg"
	"image/png"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/lucasb-eyer/go-colorful"
	"github.com/pkg/errors"
	"github.com/rwcarlsen/goexif/exif"
	"golang.org/x/image/bmp"
	"golang.org/x/image/tiff"
	_ "golang.org/x/image/webp" // Register WEBP decoder

	"github.com/ironsheep/image-studio/internal/imgerr"
)

// Format is an output container format.
type Format string

const (
	JPEG Format = "jpeg"
	PNG  Format = "png"
	WEBP Format = "webp"
	BMP  Format = "bmp"
	GIF  Format = "gif"
	TIFF Format = "tiff"
)

// Formats lists every supported format in display order.
var Formats = []Format{JPEG, PNG, WEBP, BMP, GIF, TIFF}

// ParseFormat accepts case-insensitive names plus the "jpg" and "tif" aliases.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "jpeg", "jpg":
		return JPEG, nil
	case "png":
		return PNG, nil
	case "webp":
		return WEBP, nil
	case "bmp":
		return BMP, nil
	case "gif":
		return GIF, nil
	case "tiff", "tif":
		return TIFF, nil
	}
	return "", imgerr.Invalid("format %q is not one of jpeg, png, webp, bmp, gif, tiff", s)
}

// MimeType returns the media type written for f.
func (f Format) MimeType() string {
	if f == "" {
		return "application/octet-stream"
	}
	return "image/" + string(f)
}

// Compressed reports whether encoded payloads are already entropy coded.
func (f Format) Compressed() bool {
	switch f {
	case JPEG, PNG, WEBP, GIF:
		return true
	}
	return false
}

// HasAlpha reports whether the container can carry transparency.
func (f Format) HasAlpha() bool {
	switch f {
	case PNG, WEBP, GIF, TIFF:
		return true
	}
	return false
}

// ColorMode selects the output pixel model. The zero value keeps the source
// model, flattening transparency only for formats without alpha.
type ColorMode string

const (
	ModeKeep ColorMode = ""
	ModeRGB  ColorMode = "RGB"
	ModeGray ColorMode = "L"
	ModeCMYK ColorMode = "CMYK"
)

// Options controls Encode.
type Options struct {
	Format         Format    `json:"format"`
	Quality        int       `json:"quality"`     // 1-100, JPEG and WEBP
	Compression    int       `json:"compression"` // 0-9, PNG and TIFF
	Lossless       bool      `json:"lossless"`    // WEBP only
	Width          int       `json:"width"`
	Height         int       `json:"height"`
	MaintainAspect bool      `json:"maintain_aspect"`
	ColorMode      ColorMode `json:"color_mode"`
	DPI            int       `json:"dpi"` // 0, 72, 150 or 300
	Background     string    `json:"background"`
	StripMetadata  bool      `json:"strip_metadata"`
}

// DefaultOptions returns PNG output at the defaults of the format converter.
func DefaultOptions() Options {
	return Options{
		Format:         PNG,
		Quality:        90,
		Compression:    6,
		MaintainAspect: true,
		DPI:            72,
		Background:     "#ffffff",
		StripMetadata:  true,
	}
}

// Validate checks every option against its allow-list.
func (o Options) Validate() error {
	if _, err := ParseFormat(string(o.Format)); err != nil {
		return err
	}
	if o.Quality < 1 || o.Quality > 100 {
		return imgerr.Invalid("quality %d must be between 1 and 100", o.Quality)
	}
	if o.Compression < 0 || o.Compression > 9 {
		return imgerr.Invalid("compression %d must be between 0 and 9", o.Compression)
	}
	if o.Width < 0 || o.Height < 0 {
		return imgerr.Invalid("width and height must not be negative")
	}
	if o.Width > 0 && o.Height > 0 {
		if err := CheckDimensions(o.Width, o.Height); err != nil {
			return err
		}
	}
	switch o.ColorMode {
	case ModeKeep, ModeRGB, ModeGray, ModeCMYK:
	default:
		return imgerr.Invalid("color mode %q must be RGB, L or CMYK", o.ColorMode)
	}
	switch o.DPI {
	case 0, 72, 150, 300:
	default:
		return imgerr.Invalid("dpi %d must be 72, 150 or 300", o.DPI)
	}
	if _, err := parseBackground(o.Background); err != nil {
		return err
	}
	return nil
}

// Decode reads any supported format into a canonical NRGBA buffer. Inputs
// whose header declares more than MaxPixels pixels are rejected.
func Decode(data []byte) (*image.NRGBA, Format, error) {
	if len(data) == 0 {
		return nil, "", imgerr.Decode(errors.New("empty input"))
	}
	if err := checkHeader(data); err != nil {
		return nil, "", err
	}
	img, name, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, "", imgerr.Decode(err)
	}
	format, _ := ParseFormat(name)
	if format == JPEG {
		img = applyOrientation(img, exifOrientation(data))
	}
	return imaging.Clone(img), format, nil
}

// exifOrientation returns the EXIF orientation tag, or 1 when absent.
func exifOrientation(data []byte) int {
	x, err := exif.Decode(bytes.NewReader(data))
	if err != nil {
		return 1
	}
	tag, err := x.Get(exif.Orientation)
	if err != nil {
		return 1
	}
	v, err := tag.Int(0)
	if err != nil {
		return 1
	}
	return v
}

func applyOrientation(img image.Image, orientation int) image.Image {
	switch orientation {
	case 2:
		return imaging.FlipH(img)
	case 3:
		return imaging.Rotate180(img)
	case 4:
		return imaging.FlipV(img)
	case 5:
		return imaging.Transpose(img)
	case 6:
		return imaging.Rotate270(img)
	case 7:
		return imaging.Transverse(img)
	case 8:
		return imaging.Rotate90(img)
	}
	return img
}

// Encode serializes img according to o.
func Encode(img image.Image, o Options) ([]byte, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	o.Format, _ = ParseFormat(string(o.Format))

	out, err := prepare(img, o)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	switch o.Format {
	case JPEG:
		if err := jpeg.Encode(&buf, out, &jpeg.Options{Quality: o.Quality}); err != nil {
			return nil, imgerr.Encode(err)
		}
		return withJFIFDensity(buf.Bytes(), o.DPI), nil
	case PNG:
		enc := png.Encoder{CompressionLevel: pngLevel(o.Compression)}
		if err := enc.Encode(&buf, out); err != nil {
			return nil, imgerr.Encode(err)
		}
		return withPHYs(buf.Bytes(), o.DPI), nil
	case WEBP:
		if err := encodeWebP(&buf, out, o.Quality, o.Lossless); err != nil {
			return nil, imgerr.Encode(err)
		}
	case BMP:
		if err := bmp.Encode(&buf, out); err != nil {
			return nil, imgerr.Encode(err)
		}
	case GIF:
		if err := gif.Encode(&buf, out, &gif.Options{NumColors: 256}); err != nil {
			return nil, imgerr.Encode(err)
		}
	case TIFF:
		opts := &tiff.Options{Compression: tiff.Deflate, Predictor: true}
		if o.Compression == 0 {
			opts = &tiff.Options{Compression: tiff.Uncompressed}
		}
		if err := tiff.Encode(&buf, out, opts); err != nil {
			return nil, imgerr.Encode(err)
		}
	}
	return buf.Bytes(), nil
}

// prepare applies resize, flattening and color mode conversion.
func prepare(img image.Image, o Options) (image.Image, error) {
	if o.ColorMode == ModeCMYK && o.Format != JPEG && o.Format != TIFF {
		return nil, imgerr.Encodef("%s cannot store CMYK pixels", o.Format)
	}

	switch {
	case o.Width > 0 && o.Height > 0 && o.MaintainAspect:
		img = imaging.Fit(img, o.Width, o.Height, imaging.Lanczos)
	case o.Width > 0 || o.Height > 0:
		if err := CheckDimensions(resizedSize(img.Bounds(), o.Width, o.Height)); err != nil {
			return nil, err
		}
		img = imaging.Resize(img, o.Width, o.Height, imaging.Lanczos)
	}

	flatten := o.ColorMode != ModeKeep || !o.Format.HasAlpha()
	if flatten {
		bg, _ := parseBackground(o.Background)
		canvas := imaging.New(img.Bounds().Dx(), img.Bounds().Dy(), bg)
		img = imaging.Overlay(canvas, img, image.Pt(0, 0), 1.0)
	}

	switch o.ColorMode {
	case ModeGray:
		gray := image.NewGray(img.Bounds())
		draw.Draw(gray, gray.Bounds(), img, img.Bounds().Min, draw.Src)
		return gray, nil
	case ModeCMYK:
		cmyk := image.NewCMYK(img.Bounds())
		draw.Draw(cmyk, cmyk.Bounds(), img, img.Bounds().Min, draw.Src)
		return cmyk, nil
	}
	return img, nil
}

func parseBackground(hex string) (color.NRGBA, error) {
	if hex == "" {
		return color.NRGBA{255, 255, 255, 255}, nil
	}
	c, err := colorful.Hex(hex)
	if err != nil {
		return color.NRGBA{}, imgerr.Invalid("background %q is not a hex color", hex)
	}
	r, g, b := c.RGB255()
	return color.NRGBA{r, g, b, 255}, nil
}

func pngLevel(compression int) png.CompressionLevel {
	switch {
	case compression == 0:
		return png.NoCompression
	case compression <= 3:
		return png.BestSpeed
	case compression <= 6:
		return png.DefaultCompression
	}
	return png.BestCompression
}
