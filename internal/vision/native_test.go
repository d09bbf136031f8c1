//go:build !opencv

package vision

import (
	"image"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-studio/internal/imgerr"
)

func solid(w, h int, b, g, r uint8) *Frame {
	f := NewFrame(w, h)
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			f.SetBGR(x, y, b, g, r)
		}
	}
	return f
}

func randomFrame(w, h int, seed int64) *Frame {
	f := NewFrame(w, h)
	rand.New(rand.NewSource(seed)).Read(f.Pix)
	return f
}

func crop(f *Frame, x0, x1 int) *Frame {
	out := NewFrame(x1-x0, f.Height)
	for y := 0; y < f.Height; y++ {
		for x := x0; x < x1; x++ {
			b, g, r := f.BGR(x, y)
			out.SetBGR(x-x0, y, b, g, r)
		}
	}
	return out
}

func TestSegmentSeparatesSubject(t *testing.T) {
	f := solid(120, 120, 200, 0, 0) // blue background
	for y := 40; y < 80; y++ {
		for x := 40; x < 80; x++ {
			f.SetBGR(x, y, 0, 0, 220) // red subject
		}
	}

	mask, err := Segment(f, image.Rect(20, 20, 100, 100), 5)
	require.NoError(t, err)

	assert.Equal(t, uint8(255), mask.GrayAt(60, 60).Y, "subject centre")
	assert.Equal(t, uint8(0), mask.GrayAt(25, 25).Y, "background inside rect")
	assert.Equal(t, uint8(0), mask.GrayAt(5, 5).Y, "outside rect")
}

func TestSegmentRejectsRectOutsideImage(t *testing.T) {
	_, err := Segment(solid(60, 60, 0, 0, 0), image.Rect(50, 50, -40, -40), 5)
	require.Error(t, err)
	assert.Equal(t, imgerr.KindTransformFailure, imgerr.KindOf(err))
}

func TestInpaintFillsHole(t *testing.T) {
	f := solid(30, 30, 10, 120, 240)
	for y := 12; y < 18; y++ {
		for x := 12; x < 18; x++ {
			f.SetBGR(x, y, 0, 0, 0)
		}
	}
	mask := image.NewGray(f.Bounds())
	for y := 12; y < 18; y++ {
		for x := 12; x < 18; x++ {
			mask.Pix[y*mask.Stride+x] = 255
		}
	}

	out, err := Inpaint(f, mask, 3)
	require.NoError(t, err)
	b, g, r := out.BGR(15, 15)
	assert.Equal(t, [3]uint8{10, 120, 240}, [3]uint8{b, g, r})

	// Input untouched.
	b, _, _ = f.BGR(15, 15)
	assert.Equal(t, uint8(0), b)
}

func TestWarpPerspectiveIdentity(t *testing.T) {
	f := randomFrame(20, 10, 1)
	q := Quad{{0, 0}, {19, 0}, {19, 9}, {0, 9}}
	out, err := WarpPerspective(f, q, 20, 10)
	require.NoError(t, err)
	assert.Equal(t, f.Pix, out.Pix)
}

func TestWarpPerspectiveDegenerate(t *testing.T) {
	f := randomFrame(20, 10, 1)
	q := Quad{{5, 5}, {5, 5}, {5, 5}, {5, 5}}
	_, err := WarpPerspective(f, q, 20, 10)
	assert.Error(t, err)
}

func TestStitchOverlappingHalves(t *testing.T) {
	full := randomFrame(200, 40, 42)
	left := crop(full, 0, 120)
	right := crop(full, 80, 200)

	pano, err := Stitch([]*Frame{left, right})
	require.NoError(t, err)
	assert.Equal(t, 200, pano.Width)
	assert.Equal(t, 40, pano.Height)
	assert.Equal(t, full.Pix, pano.Pix)
}

func TestStitchUnrelatedImagesFails(t *testing.T) {
	_, err := Stitch([]*Frame{randomFrame(100, 30, 1), randomFrame(100, 30, 2)})
	require.Error(t, err)
	assert.ErrorIs(t, err, imgerr.ErrStitchingFailed)
	assert.Equal(t, imgerr.KindTransformFailure, imgerr.KindOf(err))
}

func TestStitchNeedsTwoImages(t *testing.T) {
	_, err := Stitch([]*Frame{randomFrame(10, 10, 1)})
	assert.ErrorIs(t, err, imgerr.ErrStitchingFailed)
}

func TestFaceDetectionUnavailable(t *testing.T) {
	_, err := DetectFaces(randomFrame(10, 10, 1), Cascades{})
	assert.Equal(t, imgerr.KindTransformFailure, imgerr.KindOf(err))
}

func TestStylizersKeepDimensions(t *testing.T) {
	f := randomFrame(24, 16, 3)
	run := map[string]func() (*Frame, error){
		"denoise":  func() (*Frame, error) { return Denoise(f, 10) },
		"detail":   func() (*Frame, error) { return DetailEnhance(f, 12, 0.15) },
		"stylize":  func() (*Frame, error) { return Stylize(f, 60, 0.6) },
		"oil":      func() (*Frame, error) { return OilPaint(f, 7, 1) },
		"sketch":   func() (*Frame, error) { return PencilSketch(f, 60, 0.07, 0.05) },
	}
	for name, fn := range run {
		t.Run(name, func(t *testing.T) {
			out, err := fn()
			require.NoError(t, err)
			assert.Equal(t, f.Bounds(), out.Bounds())
			assert.Len(t, out.Pix, len(f.Pix))
		})
	}
}
