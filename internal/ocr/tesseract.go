package ocr

import (
	"image"
	"strings"

	"github.com/disintegration/imaging"
	"github.com/otiai10/gosseract/v2"
	"github.com/pkg/errors"

	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/imgerr"
)

// DefaultLanguage is used when no language is configured.
const DefaultLanguage = "eng"

// Bounds represents a rectangular bounding box in pixel coordinates.
type Bounds struct {
	X1 int `json:"x1"` // Left edge
	Y1 int `json:"y1"` // Top edge
	X2 int `json:"x2"` // Right edge
	Y2 int `json:"y2"` // Bottom edge
}

func boundsOf(r image.Rectangle) Bounds {
	return Bounds{X1: r.Min.X, Y1: r.Min.Y, X2: r.Max.X, Y2: r.Max.Y}
}

// Offset shifts the box by (dx, dy).
func (b Bounds) Offset(dx, dy int) Bounds {
	return Bounds{X1: b.X1 + dx, Y1: b.Y1 + dy, X2: b.X2 + dx, Y2: b.Y2 + dy}
}

// TextRegion represents a word with its location and OCR confidence.
type TextRegion struct {
	// Text is the recognized text content.
	Text string `json:"text"`

	// Confidence is the OCR confidence score (0.0 to 1.0).
	Confidence float64 `json:"confidence"`

	// Bounds is the bounding box around this text in the image.
	Bounds Bounds `json:"bounds"`
}

// Result contains the text recognized in an image.
type Result struct {
	// Text is all recognized text, trimmed of surrounding whitespace.
	Text string `json:"text"`

	// Regions contains individual words with their bounding boxes and
	// confidence scores. May be empty even when Text is not.
	Regions []TextRegion `json:"regions"`
}

// Engine runs Tesseract with a fixed language and data directory.
type Engine struct {
	language       string
	tessdataPrefix string
}

// NewEngine returns an engine for language (DefaultLanguage when empty).
// tessdataPrefix may be empty to use Tesseract's built-in search path.
func NewEngine(language, tessdataPrefix string) *Engine {
	if language == "" {
		language = DefaultLanguage
	}
	return &Engine{language: language, tessdataPrefix: tessdataPrefix}
}

// Language returns the configured language codes.
func (e *Engine) Language() string {
	return e.language
}

func (e *Engine) client(img image.Image) (*gosseract.Client, error) {
	opts := codec.DefaultOptions()
	opts.Compression = 1
	data, err := codec.Encode(img, opts)
	if err != nil {
		return nil, err
	}

	client := gosseract.NewClient()
	if e.tessdataPrefix != "" {
		if err := client.SetTessdataPrefix(e.tessdataPrefix); err != nil {
			client.Close()
			return nil, errors.Wrap(err, "failed to set tessdata path")
		}
	}
	if err := client.SetLanguage(strings.Split(e.language, "+")...); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to set language")
	}
	if err := client.SetImageFromBytes(data); err != nil {
		client.Close()
		return nil, errors.Wrap(err, "failed to set image")
	}
	return client, nil
}

// ExtractText recognizes all text in img together with word boxes.
func (e *Engine) ExtractText(img image.Image) (*Result, error) {
	client, err := e.client(img)
	if err != nil {
		return nil, failed(err)
	}
	defer client.Close()

	text, err := client.Text()
	if err != nil {
		return nil, failed(err)
	}

	result := &Result{Text: strings.TrimSpace(text), Regions: []TextRegion{}}
	boxes, err := client.GetBoundingBoxes(gosseract.RIL_WORD)
	if err != nil {
		return result, nil
	}
	for _, box := range boxes {
		if strings.TrimSpace(box.Word) == "" {
			continue
		}
		result.Regions = append(result.Regions, TextRegion{
			Text:       box.Word,
			Confidence: box.Confidence / 100.0,
			Bounds:     boundsOf(box.Box),
		})
	}
	return result, nil
}

// ExtractTextFromRegion runs OCR on r only. Word boxes are reported in the
// coordinates of the full image.
func (e *Engine) ExtractTextFromRegion(img image.Image, r image.Rectangle) (*Result, error) {
	b := img.Bounds()
	r = r.Intersect(b)
	if r.Empty() {
		return nil, imgerr.Invalid("OCR region lies outside the image")
	}

	result, err := e.ExtractText(imaging.Crop(img, r))
	if err != nil {
		return nil, err
	}
	dx, dy := r.Min.X-b.Min.X, r.Min.Y-b.Min.Y
	for i := range result.Regions {
		result.Regions[i].Bounds = result.Regions[i].Bounds.Offset(dx, dy)
	}
	return result, nil
}

// TextRegionBox represents a detected text block without its content.
type TextRegionBox struct {
	Bounds     Bounds  `json:"bounds"`
	Confidence float64 `json:"confidence"`
}

// DetectTextRegions finds text blocks whose confidence is at least
// minConfidence (0.0 to 1.0).
func (e *Engine) DetectTextRegions(img image.Image, minConfidence float64) ([]TextRegionBox, error) {
	client, err := e.client(img)
	if err != nil {
		return nil, failed(err)
	}
	defer client.Close()

	boxes, err := client.GetBoundingBoxes(gosseract.RIL_BLOCK)
	if err != nil {
		return nil, failed(err)
	}
	regions := make([]TextRegionBox, 0, len(boxes))
	for _, box := range boxes {
		confidence := box.Confidence / 100.0
		if confidence < minConfidence {
			continue
		}
		regions = append(regions, TextRegionBox{Bounds: boundsOf(box.Box), Confidence: confidence})
	}
	return regions, nil
}

// Info describes the OCR subsystem.
type Info struct {
	Available bool   `json:"available"`
	Version   string `json:"version,omitempty"`
	Language  string `json:"language"`
	Tessdata  string `json:"tessdata,omitempty"`
}

// Info reports the linked Tesseract version.
func (e *Engine) Info() Info {
	client := gosseract.NewClient()
	defer client.Close()
	version := client.Version()
	return Info{
		Available: version != "",
		Version:   version,
		Language:  e.language,
		Tessdata:  e.tessdataPrefix,
	}
}

func failed(err error) error {
	if imgerr.KindOf(err) == imgerr.KindInvalidParameter {
		return err
	}
	return imgerr.Transform("ocr", errors.Wrap(err, "tesseract OCR failed"))
}
