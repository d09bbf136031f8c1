package imaging

import (
	"bytes"
	"image"
	"image/color"
	"testing"

	"github.com/ironsheep/image-studio/internal/vision"
)

type fakeFaces struct {
	faces []image.Rectangle
	eyes  map[image.Rectangle][]image.Rectangle
	calls int
}

func (f *fakeFaces) DetectFaces(*vision.Frame) ([]image.Rectangle, error) {
	f.calls++
	return f.faces, nil
}

func (f *fakeFaces) DetectEyes(_ *vision.Frame, face image.Rectangle) ([]image.Rectangle, error) {
	return f.eyes[face], nil
}

func faceRegistry(d FaceDetector) *Registry {
	return NewRegistry(Resources{NoiseSeed: 42, Faces: d})
}

func TestDefaultFaceDetectorUsesCascades(t *testing.T) {
	c := vision.Cascades{Face: "face.xml", Eye: "eye.xml"}
	r := NewRegistry(Resources{Cascades: c})
	got, ok := r.res.Faces.(CascadeDetector)
	if !ok || got.Cascades != c {
		t.Errorf("default detector: got %#v", r.res.Faces)
	}
}

func TestFaceCropUsesFirstFace(t *testing.T) {
	det := &fakeFaces{faces: []image.Rectangle{image.Rect(20, 0, 40, 20), image.Rect(0, 20, 10, 30)}}
	img := patternImage(40, 40)
	out := apply(t, faceRegistry(det), img, "face_detection", Params{"action": "crop"})

	if det.calls != 1 {
		t.Errorf("detector called %d times, want 1", det.calls)
	}
	if out.Rect.Dx() != 20 || out.Rect.Dy() != 20 {
		t.Fatalf("got %v, want 20x20", out.Rect)
	}
	if c := out.NRGBAAt(5, 5); c != (color.NRGBA{0, 255, 0, 255}) {
		t.Errorf("crop came from the wrong face: %v", c)
	}
}

func TestFaceBlurTouchesEveryFace(t *testing.T) {
	// Each face straddles the boundary between two quadrant colors.
	faces := []image.Rectangle{image.Rect(30, 10, 50, 30), image.Rect(30, 50, 50, 70)}
	img := patternImage(80, 80)
	out := apply(t, faceRegistry(&fakeFaces{faces: faces}), img, "face_detection", Params{"action": "blur"})

	if !sameSize(out, img) {
		t.Fatalf("size changed: %v", out.Rect)
	}
	for _, at := range []image.Point{{39, 20}, {39, 60}} {
		if out.NRGBAAt(at.X, at.Y) == img.NRGBAAt(at.X, at.Y) {
			t.Errorf("face at %v left unblurred", at)
		}
	}
	if out.NRGBAAt(0, 0) != img.NRGBAAt(0, 0) || out.NRGBAAt(79, 79) != img.NRGBAAt(79, 79) {
		t.Error("pixels outside every face changed")
	}
}

func TestNoFacesLeavesImageUnchanged(t *testing.T) {
	img := patternImage(40, 40)
	for _, action := range []string{"crop", "blur"} {
		r := faceRegistry(&fakeFaces{})
		pic := NewPicture(img)
		out, err := r.Apply(pic, Op("face_detection", Params{"action": action}))
		if err != nil {
			t.Fatalf("%s: %v", action, err)
		}
		if !bytes.Equal(out.Image().Pix, img.Pix) || !sameSize(out.Image(), img) {
			t.Errorf("%s: image changed", action)
		}
		if out.Image() == pic.Image() {
			t.Errorf("%s: result shares the input buffer", action)
		}
	}
}

func TestRedEyeUsesDetectedEyes(t *testing.T) {
	face := image.Rect(0, 0, 20, 20)
	det := &fakeFaces{
		faces: []image.Rectangle{face},
		eyes:  map[image.Rectangle][]image.Rectangle{face: {image.Rect(2, 2, 8, 8)}},
	}
	img := solidImage(20, 20, color.NRGBA{200, 40, 50, 255})
	out := apply(t, faceRegistry(det), img, "red_eye", nil)

	if c := out.NRGBAAt(4, 4); c.R != 40 {
		t.Errorf("inside eye: red %d, want 40", c.R)
	}
	if c := out.NRGBAAt(15, 15); c.R != 200 {
		t.Errorf("outside eye: red %d, want 200", c.R)
	}
}
