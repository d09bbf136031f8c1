// Package vision is the computer-vision boundary: foreground segmentation,
// inpainting, denoising, stylization, face and eye detection, perspective
// warping and panorama stitching.
//
// Every routine works on a [Frame], a packed 8-bit BGR raster. Two engines
// implement the routines:
//
//   - opencv (build tag "opencv"): gocv bindings, matching the classic
//     OpenCV algorithms (grabCut, Telea inpainting, fastNlMeans, Haar
//     cascades, Stitcher).
//   - native (default): pure Go approximations built on bild and gift. Face
//     and eye detection need trained cascades and report a TransformFailure
//     in this engine.
//
// Routines never modify their input frame.
package vision

import (
	"image"
	"math"
)

// Frame is a packed 8-bit BGR raster with no padding between rows.
type Frame struct {
	Pix    []byte
	Width  int
	Height int
}

// NewFrame allocates a black frame.
func NewFrame(w, h int) *Frame {
	return &Frame{Pix: make([]byte, w*h*3), Width: w, Height: h}
}

// FrameFromNRGBA converts an NRGBA image to BGR, discarding alpha.
func FrameFromNRGBA(img *image.NRGBA) *Frame {
	b := img.Bounds()
	f := NewFrame(b.Dx(), b.Dy())
	for y := 0; y < f.Height; y++ {
		src := img.Pix[y*img.Stride : y*img.Stride+f.Width*4]
		dst := f.Pix[y*f.Width*3 : (y+1)*f.Width*3]
		for x := 0; x < f.Width; x++ {
			dst[x*3+0] = src[x*4+2]
			dst[x*3+1] = src[x*4+1]
			dst[x*3+2] = src[x*4+0]
		}
	}
	return f
}

// NRGBA converts the frame back to an opaque NRGBA image.
func (f *Frame) NRGBA() *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, f.Width, f.Height))
	for i, j := 0, 0; i < len(f.Pix); i, j = i+3, j+4 {
		img.Pix[j+0] = f.Pix[i+2]
		img.Pix[j+1] = f.Pix[i+1]
		img.Pix[j+2] = f.Pix[i+0]
		img.Pix[j+3] = 255
	}
	return img
}

// Bounds returns the frame rectangle anchored at the origin.
func (f *Frame) Bounds() image.Rectangle {
	return image.Rect(0, 0, f.Width, f.Height)
}

// Clone returns a deep copy.
func (f *Frame) Clone() *Frame {
	c := &Frame{Pix: make([]byte, len(f.Pix)), Width: f.Width, Height: f.Height}
	copy(c.Pix, f.Pix)
	return c
}

// BGR returns the channels at (x, y).
func (f *Frame) BGR(x, y int) (b, g, r uint8) {
	i := (y*f.Width + x) * 3
	return f.Pix[i], f.Pix[i+1], f.Pix[i+2]
}

// SetBGR writes the channels at (x, y).
func (f *Frame) SetBGR(x, y int, b, g, r uint8) {
	i := (y*f.Width + x) * 3
	f.Pix[i], f.Pix[i+1], f.Pix[i+2] = b, g, r
}

// Cascades names the Haar cascade files used by face and eye detection.
type Cascades struct {
	Face string
	Eye  string
}

// Mask is a single-channel selection; non-zero means selected.
type Mask = image.Gray

// Quad is four corner points in top-left, top-right, bottom-right,
// bottom-left order.
type Quad [4]image.Point

// OutputSize is the rectangle a perspective correction of q maps onto: the
// longer of each pair of opposing edges.
func (q Quad) OutputSize() (w, h int) {
	w = maxInt(dist(q[0], q[1]), dist(q[2], q[3]))
	h = maxInt(dist(q[0], q[3]), dist(q[1], q[2]))
	return w, h
}

func dist(a, b image.Point) int {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return int(math.Sqrt(dx*dx + dy*dy))
}

func maxInt(a, b int) int {
	if a > b {
		return a
	}
	return b
}

func clampByte(v float64) uint8 {
	switch {
	case v < 0:
		return 0
	case v > 255:
		return 255
	}
	return uint8(v + 0.5)
}
