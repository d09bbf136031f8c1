package ocr

import (
	"image"
	"image/color"
	"image/draw"
	"os/exec"
	"strings"
	"testing"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/ironsheep/image-studio/internal/imgerr"
)

func requireTesseract(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("tesseract"); err != nil {
		t.Skip("Tesseract not available")
	}
}

// drawText draws text on an image using basicfont
func drawText(img *image.RGBA, x, y int, text string, col color.Color) {
	d := &font.Drawer{
		Dst:  img,
		Src:  image.NewUniform(col),
		Face: basicfont.Face7x13,
		Dot:  fixed.Point26_6{X: fixed.I(x), Y: fixed.I(y)},
	}
	d.DrawString(text)
}

// createImageWithText renders text with basicfont and scales it up by an
// integer factor so Tesseract can read it.
func createImageWithText(text string, scale int) *image.RGBA {
	width := len(text)*7 + 40
	height := 40

	small := image.NewRGBA(image.Rect(0, 0, width, height))
	draw.Draw(small, small.Bounds(), image.White, image.Point{}, draw.Src)
	drawText(small, 20, 25, text, color.Black)
	if scale == 1 {
		return small
	}

	img := image.NewRGBA(image.Rect(0, 0, width*scale, height*scale))
	for y := 0; y < height; y++ {
		for x := 0; x < width; x++ {
			c := small.At(x, y)
			for dy := 0; dy < scale; dy++ {
				for dx := 0; dx < scale; dx++ {
					img.Set(x*scale+dx, y*scale+dy, c)
				}
			}
		}
	}
	return img
}

func TestNewEngineDefaults(t *testing.T) {
	if got := NewEngine("", "").Language(); got != DefaultLanguage {
		t.Errorf("Language: got %q, want %q", got, DefaultLanguage)
	}
	if got := NewEngine("eng+deu", "").Language(); got != "eng+deu" {
		t.Errorf("Language: got %q, want eng+deu", got)
	}
}

func TestBoundsOffset(t *testing.T) {
	b := Bounds{X1: 10, Y1: 20, X2: 100, Y2: 80}.Offset(5, -5)
	if b != (Bounds{X1: 15, Y1: 15, X2: 105, Y2: 75}) {
		t.Errorf("got %+v", b)
	}
}

func TestExtractText(t *testing.T) {
	requireTesseract(t)

	result, err := NewEngine("eng", "").ExtractText(createImageWithText("HELLO WORLD", 4))
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if !strings.Contains(strings.ToUpper(result.Text), "HELLO") {
		t.Errorf("text %q does not contain HELLO", result.Text)
	}
	for _, r := range result.Regions {
		if r.Confidence < 0 || r.Confidence > 1 {
			t.Errorf("confidence %f outside 0-1", r.Confidence)
		}
	}
}

func TestExtractText_BlankImage(t *testing.T) {
	requireTesseract(t)

	img := image.NewRGBA(image.Rect(0, 0, 100, 50))
	draw.Draw(img, img.Bounds(), image.White, image.Point{}, draw.Src)
	result, err := NewEngine("eng", "").ExtractText(img)
	if err != nil {
		t.Fatalf("ExtractText failed: %v", err)
	}
	if result.Text != "" {
		t.Errorf("blank image produced %q", result.Text)
	}
}

func TestExtractText_UnknownLanguage(t *testing.T) {
	requireTesseract(t)

	_, err := NewEngine("invalid_language_code_xyz", "").ExtractText(createImageWithText("HELLO", 2))
	if err == nil {
		t.Skip("Tesseract accepted an unknown language")
	}
	if imgerr.KindOf(err) != imgerr.KindTransformFailure {
		t.Errorf("got %v, want transform failure", err)
	}
	if !strings.Contains(err.Error(), "tesseract OCR failed") {
		t.Errorf("message %q lacks the failure text", err.Error())
	}
}

func TestExtractTextFromRegion_CoordinateOffset(t *testing.T) {
	requireTesseract(t)

	text := createImageWithText("OFFSET", 3)
	canvas := image.NewRGBA(image.Rect(0, 0, text.Bounds().Dx()+100, text.Bounds().Dy()+100))
	draw.Draw(canvas, canvas.Bounds(), image.White, image.Point{}, draw.Src)
	draw.Draw(canvas, text.Bounds().Add(image.Pt(50, 50)), text, image.Point{}, draw.Src)

	result, err := NewEngine("eng", "").ExtractTextFromRegion(canvas, text.Bounds().Add(image.Pt(50, 50)))
	if err != nil {
		t.Fatalf("ExtractTextFromRegion failed: %v", err)
	}
	for _, region := range result.Regions {
		if region.Bounds.X1 < 50 || region.Bounds.Y1 < 50 {
			t.Errorf("region %+v not offset to original image coordinates", region.Bounds)
		}
	}
}

func TestExtractTextFromRegion_Outside(t *testing.T) {
	img := image.NewRGBA(image.Rect(0, 0, 10, 10))
	_, err := NewEngine("eng", "").ExtractTextFromRegion(img, image.Rect(20, 20, 30, 30))
	if imgerr.KindOf(err) != imgerr.KindInvalidParameter {
		t.Errorf("got %v, want invalid parameter", err)
	}
}

func TestDetectTextRegions_MinConfidence(t *testing.T) {
	requireTesseract(t)

	e := NewEngine("eng", "")
	img := createImageWithText("SOME TEXT HERE", 3)
	low, err := e.DetectTextRegions(img, 0.1)
	if err != nil {
		t.Fatalf("DetectTextRegions failed: %v", err)
	}
	high, err := e.DetectTextRegions(img, 0.99)
	if err != nil {
		t.Fatalf("DetectTextRegions failed: %v", err)
	}
	if len(high) > len(low) {
		t.Errorf("higher minConfidence gave more results: low=%d, high=%d", len(low), len(high))
	}
}
