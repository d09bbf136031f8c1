//go:build opencv

package vision

import (
	"image"

	"github.com/pkg/errors"
	"gocv.io/x/gocv"

	"github.com/ironsheep/image-studio/internal/imgerr"
)

// Engine names the active implementation.
const Engine = "opencv"

func toMat(f *Frame) (gocv.Mat, error) {
	m, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC3, f.Pix)
	if err != nil {
		return m, imgerr.Transform("opencv", err)
	}
	return m, nil
}

func fromMat(m gocv.Mat) (*Frame, error) {
	if m.Empty() {
		return nil, imgerr.Transformf("opencv returned an empty image")
	}
	if m.Channels() == 1 {
		bgr := gocv.NewMat()
		defer bgr.Close()
		gocv.CvtColor(m, &bgr, gocv.ColorGrayToBGR)
		return &Frame{Pix: bgr.ToBytes(), Width: bgr.Cols(), Height: bgr.Rows()}, nil
	}
	return &Frame{Pix: m.ToBytes(), Width: m.Cols(), Height: m.Rows()}, nil
}

// Segment runs grabCut seeded by rect. Definite and probable foreground are
// both selected.
func Segment(f *Frame, rect image.Rectangle, iterations int) (*Mask, error) {
	if rect.Empty() || !rect.In(f.Bounds()) {
		return nil, imgerr.Transformf("segmentation rectangle %v does not fit a %dx%d image", rect, f.Width, f.Height)
	}
	img, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	mask := gocv.NewMat()
	defer mask.Close()
	bgd := gocv.NewMat()
	defer bgd.Close()
	fgd := gocv.NewMat()
	defer fgd.Close()

	gocv.GrabCut(img, &mask, rect, &bgd, &fgd, iterations, gocv.GCInitWithRect)

	out := image.NewGray(f.Bounds())
	for i, v := range mask.ToBytes() {
		if v == 1 || v == 3 {
			out.Pix[i] = 255
		}
	}
	return out, nil
}

// Inpaint runs the Telea algorithm with the given neighbourhood radius.
func Inpaint(f *Frame, mask *Mask, radius int) (*Frame, error) {
	img, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	m, err := gocv.NewMatFromBytes(f.Height, f.Width, gocv.MatTypeCV8UC1, mask.Pix)
	if err != nil {
		return nil, imgerr.Transform("inpaint", err)
	}
	defer m.Close()

	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Inpaint(img, m, &dst, float32(radius), gocv.Telea)
	return fromMat(dst)
}

// Denoise runs fastNlMeansDenoisingColored with h = hColor = strength.
func Denoise(f *Frame, strength float32) (*Frame, error) {
	img, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	gocv.FastNlMeansDenoisingColoredWithParams(img, &dst, strength, strength, 7, 21)
	return fromMat(dst)
}

// DetailEnhance runs cv::detailEnhance.
func DetailEnhance(f *Frame, sigmaS, sigmaR float32) (*Frame, error) {
	img, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	gocv.DetailEnhance(img, &dst, sigmaS, sigmaR)
	return fromMat(dst)
}

// Stylize runs cv::stylization.
func Stylize(f *Frame, sigmaS, sigmaR float32) (*Frame, error) {
	img, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	dst := gocv.NewMat()
	defer dst.Close()
	gocv.Stylization(img, &dst, sigmaS, sigmaR)
	return fromMat(dst)
}

// OilPaint falls back to stylization; the xphoto module is not part of the
// core bindings.
func OilPaint(f *Frame, size, dynRatio int) (*Frame, error) {
	return Stylize(f, 60, 0.6)
}

// PencilSketch runs cv::pencilSketch and returns the grayscale sketch.
func PencilSketch(f *Frame, sigmaS, sigmaR, shade float32) (*Frame, error) {
	img, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	gray := gocv.NewMat()
	defer gray.Close()
	color := gocv.NewMat()
	defer color.Close()
	gocv.PencilSketch(img, &gray, &color, sigmaS, sigmaR, shade)
	return fromMat(gray)
}

// DetectFaces runs the face cascade over the whole frame.
func DetectFaces(f *Frame, c Cascades) ([]image.Rectangle, error) {
	return detect(f, c.Face, f.Bounds(), 1.3, 5)
}

// DetectEyes runs the eye cascade inside face.
func DetectEyes(f *Frame, c Cascades, face image.Rectangle) ([]image.Rectangle, error) {
	return detect(f, c.Eye, face.Intersect(f.Bounds()), 1.1, 3)
}

func detect(f *Frame, cascade string, roi image.Rectangle, scale float64, neighbours int) ([]image.Rectangle, error) {
	if cascade == "" {
		return nil, imgerr.Transformf("no cascade file configured")
	}
	classifier := gocv.NewCascadeClassifier()
	defer classifier.Close()
	if !classifier.Load(cascade) {
		return nil, imgerr.Transformf("cannot load cascade %s", cascade)
	}

	img, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()
	gray := gocv.NewMat()
	defer gray.Close()
	gocv.CvtColor(img, &gray, gocv.ColorBGRToGray)

	region := gray.Region(roi)
	defer region.Close()

	found := classifier.DetectMultiScaleWithParams(region, scale, neighbours, 0, image.Pt(0, 0), image.Pt(0, 0))
	for i := range found {
		found[i] = found[i].Add(roi.Min)
	}
	return found, nil
}

// WarpPerspective maps quad q onto a w×h rectangle.
func WarpPerspective(f *Frame, q Quad, w, h int) (*Frame, error) {
	if w <= 0 || h <= 0 {
		return nil, imgerr.Transformf("perspective output %dx%d is empty", w, h)
	}
	img, err := toMat(f)
	if err != nil {
		return nil, err
	}
	defer img.Close()

	src := gocv.NewPointVectorFromPoints(q[:])
	defer src.Close()
	dst := gocv.NewPointVectorFromPoints([]image.Point{{0, 0}, {w - 1, 0}, {w - 1, h - 1}, {0, h - 1}})
	defer dst.Close()

	m := gocv.GetPerspectiveTransform(src, dst)
	defer m.Close()

	out := gocv.NewMat()
	defer out.Close()
	gocv.WarpPerspective(img, &out, m, image.Pt(w, h))
	return fromMat(out)
}

// Stitch runs the OpenCV panorama stitcher.
func Stitch(frames []*Frame) (*Frame, error) {
	if len(frames) < 2 {
		return nil, errors.Wrap(imgerr.ErrStitchingFailed, "need at least two images")
	}
	mats := make([]gocv.Mat, 0, len(frames))
	defer func() {
		for _, m := range mats {
			m.Close()
		}
	}()
	for _, f := range frames {
		m, err := toMat(f)
		if err != nil {
			return nil, err
		}
		mats = append(mats, m)
	}

	st := gocv.NewStitcher(gocv.StitcherPanorama)
	defer st.Close()
	pano := gocv.NewMat()
	defer pano.Close()
	if status := st.Stitch(mats, &pano); status != gocv.StitcherOK {
		return nil, errors.Wrapf(imgerr.ErrStitchingFailed, "stitcher status %d", status)
	}
	return fromMat(pano)
}
