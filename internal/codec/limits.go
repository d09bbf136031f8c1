package codec

import (
	"bytes"
	"image"
	"sync/atomic"

	"github.com/pkg/errors"

	"github.com/ironsheep/image-studio/internal/imgerr"
)

// DefaultMaxPixels is the pixel cap used until SetMaxPixels is called.
const DefaultMaxPixels int64 = 100_000_000

var maxPixels = DefaultMaxPixels

// SetMaxPixels sets the largest width*height that Decode accepts and that
// operations may produce. Values below one restore the default.
func SetMaxPixels(n int64) {
	if n < 1 {
		n = DefaultMaxPixels
	}
	atomic.StoreInt64(&maxPixels, n)
}

// MaxPixels returns the current pixel cap.
func MaxPixels() int64 {
	return atomic.LoadInt64(&maxPixels)
}

// CheckDimensions reports an InvalidParameter failure when a w x h image
// would be empty or larger than the pixel cap.
func CheckDimensions(w, h int) error {
	if w <= 0 || h <= 0 {
		return imgerr.Invalid("dimensions %dx%d must be positive", w, h)
	}
	if limit := MaxPixels(); int64(w)*int64(h) > limit {
		return imgerr.Invalid("dimensions %dx%d exceed the limit of %d pixels", w, h, limit)
	}
	return nil
}

// checkHeader reads only the image header and rejects inputs whose declared
// size is over the cap, before any pixel buffer is allocated.
func checkHeader(data []byte) error {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(data))
	if err != nil {
		return imgerr.Decode(err)
	}
	if limit := MaxPixels(); int64(cfg.Width)*int64(cfg.Height) > limit {
		return imgerr.Decode(errors.Errorf("image is %dx%d, over the limit of %d pixels", cfg.Width, cfg.Height, limit))
	}
	return nil
}

// resizedSize is the size imaging.Resize produces for w x h, where a zero
// dimension follows the aspect ratio of b.
func resizedSize(b image.Rectangle, w, h int) (int, int) {
	sw, sh := b.Dx(), b.Dy()
	if sw == 0 || sh == 0 {
		return w, h
	}
	switch {
	case w == 0:
		w = int(float64(h)*float64(sw)/float64(sh) + 0.5)
	case h == 0:
		h = int(float64(w)*float64(sh)/float64(sw) + 0.5)
	}
	if w < 1 {
		w = 1
	}
	if h < 1 {
		h = 1
	}
	return w, h
}
