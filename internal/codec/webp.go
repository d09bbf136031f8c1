package codec

import (
	"image"
	"io"

	"github.com/kolesa-team/go-webp/encoder"
	"github.com/kolesa-team/go-webp/webp"
)

// encodeWebP writes img through libwebp. Lossless output ignores quality.
func encodeWebP(w io.Writer, img image.Image, quality int, lossless bool) error {
	var (
		opts *encoder.Options
		err  error
	)
	if lossless {
		opts, err = encoder.NewLosslessEncoderOptions(encoder.PresetDefault, 6)
	} else {
		opts, err = encoder.NewLossyEncoderOptions(encoder.PresetDefault, float32(quality))
	}
	if err != nil {
		return err
	}
	return webp.Encode(w, img, opts)
}
