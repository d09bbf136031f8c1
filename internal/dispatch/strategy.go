package dispatch

import (
	"sort"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/ironsheep/image-studio/internal/imgerr"
)

// Weight is the execution class of an operation.
type Weight int

const (
	// Inline operations are cheap enough to run on the caller's goroutine.
	Inline Weight = iota
	// Light operations are short pixel transforms.
	Light
	// Heavy operations are CPU-bound for a long time (vision, OCR,
	// compression search).
	Heavy
)

func (w Weight) String() string {
	switch w {
	case Inline:
		return "inline"
	case Light:
		return "light"
	case Heavy:
		return "heavy"
	}
	return "unknown"
}

// Names of session-level operations that are not registry entries.
const (
	OpAddLayer     = "add_layer"
	OpMergeLayers  = "merge_layers"
	OpPalette      = "palette"
	OpExtractText  = "extract_text"
	OpCompress     = "compress"
	OpEstimateSize = "estimate_size"
	OpMaterialize  = "convert_format"
)

// Strategy maps every operation name to its execution class.
type Strategy map[string]Weight

// DefaultStrategy returns the built-in classification.
func DefaultStrategy() Strategy {
	s := Strategy{}
	for _, name := range []string{"rotate", "flip", OpAddLayer} {
		s[name] = Inline
	}
	for _, name := range []string{
		"brightness", "contrast", "saturation", "hue",
		"grayscale", "sepia", "blur", "sharpen", "edge_detection", "emboss",
		"vignette", "noise", "color_pop", "colorize",
		"crop", "resize", "add_border",
		"add_text", "watermark", "meme",
		OpMergeLayers, OpMaterialize,
	} {
		s[name] = Light
	}
	for _, name := range []string{
		"hdr", "cartoon", "oil_painting", "watercolor", "sketch",
		"denoise", "restore", "remove_background", "inpaint",
		"face_detection", "red_eye", "perspective", "stitch",
		"super_resolution", "auto_enhance", "collage",
		OpPalette, OpExtractText, OpCompress, OpEstimateSize,
	} {
		s[name] = Heavy
	}
	return s
}

// Classify returns the class of name. Names missing from the table are
// UnsupportedOperation.
func (s Strategy) Classify(name string) (Weight, error) {
	w, ok := s[name]
	if !ok {
		return 0, imgerr.Unsupported(name)
	}
	return w, nil
}

// Verify checks that every name has an entry. A gap is a configuration error
// and is reported at startup.
func (s Strategy) Verify(names []string) error {
	var result *multierror.Error
	sorted := append([]string(nil), names...)
	sort.Strings(sorted)
	for _, name := range sorted {
		if _, ok := s[name]; !ok {
			result = multierror.Append(result, errors.Errorf("operation %q has no execution strategy", name))
		}
	}
	return result.ErrorOrNil()
}
