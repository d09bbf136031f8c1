package imaging

import (
	"image"
	"sync"

	"github.com/disintegration/imaging"

	"github.com/ironsheep/image-studio/internal/vision"
)

// Picture is one committed image state.
//
// The NRGBA buffer is the single source of truth. The BGR frame consumed by
// the vision routines is derived from it on first use and cached for the
// lifetime of the Picture; a new state is a new Picture, so the two encodings
// can never disagree.
//
// A Picture is immutable and safe for concurrent readers.
type Picture struct {
	img *image.NRGBA

	mu    sync.Mutex
	frame *vision.Frame
}

// NewPicture copies img into a canonical NRGBA buffer anchored at the origin.
func NewPicture(img image.Image) *Picture {
	return &Picture{img: imaging.Clone(img)}
}

// adopt wraps a freshly produced buffer without copying. The caller gives up
// ownership of img.
func adopt(img *image.NRGBA) *Picture {
	if img.Bounds().Min != (image.Point{}) {
		return NewPicture(img)
	}
	return &Picture{img: img}
}

// Image returns the canonical buffer. Callers must not modify it.
func (p *Picture) Image() *image.NRGBA {
	return p.img
}

// Frame returns the BGR encoding, deriving it on first call.
func (p *Picture) Frame() *vision.Frame {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.frame == nil {
		p.frame = vision.FrameFromNRGBA(p.img)
	}
	return p.frame
}

// FrameDerived reports whether the BGR encoding has been materialised.
func (p *Picture) FrameDerived() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.frame != nil
}

// Bounds returns the image rectangle.
func (p *Picture) Bounds() image.Rectangle {
	return p.img.Bounds()
}

// Width returns the image width in pixels.
func (p *Picture) Width() int { return p.img.Bounds().Dx() }

// Height returns the image height in pixels.
func (p *Picture) Height() int { return p.img.Bounds().Dy() }
