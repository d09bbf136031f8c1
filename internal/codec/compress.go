package codec

import (
	"context"
	"image"
	"strings"

	"github.com/ironsheep/image-studio/internal/imgerr"
)

const (
	// QualityFloor is the lowest quality the compression search tries.
	QualityFloor = 10
	// QualityStep is how far quality drops between attempts.
	QualityStep = 5
)

// Quantization biases the starting quality of the compression search.
type Quantization string

const (
	QuantStandard Quantization = "standard"
	QuantHigh     Quantization = "high"
	QuantLow      Quantization = "low"
)

var quantAdjust = map[Quantization]int{
	QuantStandard: 0,
	QuantHigh:     10,
	QuantLow:      -10,
}

// CompressOptions controls the target-size search.
type CompressOptions struct {
	TargetKB     float64      `json:"target_size_kb"`
	Format       Format       `json:"format"` // jpeg, png or webp
	Quality      int          `json:"quality"`
	Compression  int          `json:"compression"`
	Quantization Quantization `json:"quantization"`
	Lossless     bool         `json:"lossless"`
	// Progressive is accepted for compatibility; the JPEG encoder writes
	// baseline files only.
	Progressive   bool `json:"progressive"`
	StripMetadata bool `json:"strip_metadata"`
}

// DefaultCompressOptions returns JPEG at quality 80 with no target set.
func DefaultCompressOptions() CompressOptions {
	return CompressOptions{
		Format:       JPEG,
		Quality:      80,
		Compression:  6,
		Quantization: QuantStandard,
	}
}

// Validate checks the search parameters.
func (o CompressOptions) Validate() error {
	if o.TargetKB <= 0 {
		return imgerr.Invalid("target size must be positive")
	}
	f, err := ParseFormat(string(o.Format))
	if err != nil {
		return err
	}
	if f != JPEG && f != PNG && f != WEBP {
		return imgerr.Invalid("format %s is not supported for compression", f)
	}
	if o.Quality < 1 || o.Quality > 100 {
		return imgerr.Invalid("quality %d must be between 1 and 100", o.Quality)
	}
	if o.Compression < 0 || o.Compression > 9 {
		return imgerr.Invalid("compression %d must be between 0 and 9", o.Compression)
	}
	if _, ok := quantAdjust[Quantization(strings.ToLower(string(o.Quantization)))]; !ok {
		return imgerr.Invalid("quantization %q must be standard, high or low", o.Quantization)
	}
	return nil
}

// StartQuality is the first quality tried: the requested quality shifted by
// the quantization bias, clamped to [QualityFloor, 100].
func (o CompressOptions) StartQuality() int {
	q := o.Quality + quantAdjust[Quantization(strings.ToLower(string(o.Quantization)))]
	if o.Lossless {
		q = 100
	}
	if q > 100 {
		q = 100
	}
	if q < QualityFloor {
		q = QualityFloor
	}
	return q
}

// Compressed is the outcome of a compression search.
type Compressed struct {
	Data      []byte  `json:"-"`
	Format    Format  `json:"format"`
	Quality   int     `json:"quality"`
	Attempts  int     `json:"attempts"`
	SizeKB    float64 `json:"size_kb"`
	MetTarget bool    `json:"met_target"`
}

// Compress re-encodes img at decreasing quality until the output fits
// TargetKB, the quality floor is reached, or the format is lossless (PNG or
// lossless WEBP stop after one attempt). When the floor is reached first the
// floor-quality encoding is returned even though it exceeds the target.
//
// ctx is checked between attempts.
func Compress(ctx context.Context, img image.Image, o CompressOptions) (*Compressed, error) {
	if err := o.Validate(); err != nil {
		return nil, err
	}
	format, _ := ParseFormat(string(o.Format))

	enc := Options{
		Format:      format,
		Compression: o.Compression,
		Lossless:    o.Lossless,
		ColorMode:   ModeRGB,
	}

	res := &Compressed{Format: format}
	for q := o.StartQuality(); ; q -= QualityStep {
		enc.Quality = q
		data, err := Encode(img, enc)
		if err != nil {
			return nil, err
		}
		res.Data = data
		res.Quality = q
		res.Attempts++
		res.SizeKB = float64(len(data)) / 1024
		res.MetTarget = res.SizeKB <= o.TargetKB

		if res.MetTarget || format == PNG || o.Lossless || q-QualityStep < QualityFloor {
			return res, nil
		}
		if err := ctx.Err(); err != nil {
			return nil, imgerr.Aborted("compress", err)
		}
	}
}

// EstimateSizeKB encodes img with o and reports the size without keeping the
// bytes.
func EstimateSizeKB(img image.Image, o Options) (float64, error) {
	data, err := Encode(img, o)
	if err != nil {
		return 0, err
	}
	return float64(len(data)) / 1024, nil
}
