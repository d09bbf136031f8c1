package imaging

import (
	"strings"

	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/imgerr"
)

// OutputOptions reads encoder options from p on top of def. Recognized keys
// are format, quality, compression, width, height, maintain_aspect,
// color_mode, dpi, background, lossless and strip_metadata. The result is
// validated.
func OutputOptions(p Params, def codec.Options) (codec.Options, error) {
	o := def
	var err error

	format, err := p.String("format", string(def.Format))
	if err != nil {
		return o, err
	}
	if o.Format, err = codec.ParseFormat(format); err != nil {
		return o, err
	}
	if o.Quality, err = p.Int("quality", def.Quality); err != nil {
		return o, err
	}
	if o.Compression, err = p.Int("compression", def.Compression); err != nil {
		return o, err
	}
	if o.Width, err = p.Int("width", def.Width); err != nil {
		return o, err
	}
	if o.Height, err = p.Int("height", def.Height); err != nil {
		return o, err
	}
	if o.MaintainAspect, err = p.Bool("maintain_aspect", def.MaintainAspect); err != nil {
		return o, err
	}
	mode, err := p.String("color_mode", string(def.ColorMode))
	if err != nil {
		return o, err
	}
	if o.ColorMode, err = parseColorMode(mode); err != nil {
		return o, err
	}
	if o.DPI, err = p.Int("dpi", def.DPI); err != nil {
		return o, err
	}
	if o.Background, err = p.String("background", def.Background); err != nil {
		return o, err
	}
	if o.Lossless, err = p.Bool("lossless", def.Lossless); err != nil {
		return o, err
	}
	if o.StripMetadata, err = p.Bool("strip_metadata", def.StripMetadata); err != nil {
		return o, err
	}
	return o, o.Validate()
}

func parseColorMode(s string) (codec.ColorMode, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "":
		return codec.ModeKeep, nil
	case "RGB":
		return codec.ModeRGB, nil
	case "L", "GRAY", "GRAYSCALE":
		return codec.ModeGray, nil
	case "CMYK":
		return codec.ModeCMYK, nil
	}
	return "", imgerr.Invalid("color_mode %q must be RGB, L or CMYK", s)
}

// CompressOptions reads compression search options from p on top of
// codec.DefaultCompressOptions. target_size_kb is required.
func CompressOptions(p Params) (codec.CompressOptions, error) {
	o := codec.DefaultCompressOptions()
	var err error

	if o.TargetKB, err = p.RequiredFloat("target_size_kb"); err != nil {
		return o, err
	}
	format, err := p.String("format", string(o.Format))
	if err != nil {
		return o, err
	}
	if o.Format, err = codec.ParseFormat(format); err != nil {
		return o, err
	}
	if o.Quality, err = p.Int("quality", o.Quality); err != nil {
		return o, err
	}
	if o.Compression, err = p.Int("compression", o.Compression); err != nil {
		return o, err
	}
	quant, err := p.String("quantization", string(o.Quantization))
	if err != nil {
		return o, err
	}
	o.Quantization = codec.Quantization(strings.ToLower(quant))
	if o.Lossless, err = p.Bool("lossless", o.Lossless); err != nil {
		return o, err
	}
	if o.Progressive, err = p.Bool("progressive", o.Progressive); err != nil {
		return o, err
	}
	if o.StripMetadata, err = p.Bool("strip_metadata", o.StripMetadata); err != nil {
		return o, err
	}
	return o, o.Validate()
}
