package vision

import (
	"image"
	"image/color"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestFrameRoundTrip(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 3, 2))
	img.SetNRGBA(0, 0, color.NRGBA{10, 20, 30, 255})
	img.SetNRGBA(2, 1, color.NRGBA{200, 100, 50, 255})

	f := FrameFromNRGBA(img)
	b, g, r := f.BGR(0, 0)
	assert.Equal(t, [3]uint8{30, 20, 10}, [3]uint8{b, g, r})

	back := f.NRGBA()
	assert.Equal(t, color.NRGBA{200, 100, 50, 255}, back.NRGBAAt(2, 1))
	assert.Equal(t, img.Bounds(), back.Bounds())
}

func TestFrameFromSubImage(t *testing.T) {
	img := image.NewNRGBA(image.Rect(0, 0, 4, 4))
	img.SetNRGBA(2, 2, color.NRGBA{1, 2, 3, 255})
	sub := img.SubImage(image.Rect(2, 2, 4, 4)).(*image.NRGBA)

	f := FrameFromNRGBA(sub)
	assert.Equal(t, 2, f.Width)
	b, g, r := f.BGR(0, 0)
	assert.Equal(t, [3]uint8{3, 2, 1}, [3]uint8{b, g, r})
}

func TestQuadOutputSize(t *testing.T) {
	q := Quad{{0, 0}, {100, 0}, {110, 50}, {0, 40}}
	w, h := q.OutputSize()
	assert.Equal(t, 110, w) // |p2-p3| is the longer horizontal edge
	assert.Equal(t, 50, h)  // |p1-p2| ≈ 50.99
}

func TestCloneIsDeep(t *testing.T) {
	f := NewFrame(2, 2)
	c := f.Clone()
	c.SetBGR(0, 0, 9, 9, 9)
	b, _, _ := f.BGR(0, 0)
	assert.Equal(t, uint8(0), b)
}
