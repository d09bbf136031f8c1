package imaging

import (
	"image/color"
	"math"
	"sort"
	"testing"

	"github.com/ironsheep/image-studio/internal/imgerr"
)

func TestExtractPalette(t *testing.T) {
	// 150×150 is sampled without resampling, so the four quadrant colors
	// survive exactly.
	swatches, err := ExtractPalette(patternImage(150, 150), 4)
	if err != nil {
		t.Fatalf("ExtractPalette failed: %v", err)
	}
	if len(swatches) != 4 {
		t.Fatalf("got %d swatches, want 4", len(swatches))
	}

	var hexes []string
	for _, s := range swatches {
		hexes = append(hexes, s.Hex)
		if math.Abs(s.Percentage-25) > 0.01 {
			t.Errorf("%s: percentage %.2f, want 25", s.Hex, s.Percentage)
		}
	}
	sort.Strings(hexes)
	want := []string{"#0000ff", "#00ff00", "#ff0000", "#ffffff"}
	for i := range want {
		if hexes[i] != want[i] {
			t.Fatalf("palette %v, want %v", hexes, want)
		}
	}
}

func TestExtractPalette_SingleColor(t *testing.T) {
	swatches, err := ExtractPalette(solidImage(30, 20, color.NRGBA{255, 128, 64, 255}), 1)
	if err != nil {
		t.Fatal(err)
	}
	s := swatches[0]
	if s.Hex != "#ff8040" || s.RGB != (RGBColor{255, 128, 64}) {
		t.Errorf("got %s %v, want #ff8040", s.Hex, s.RGB)
	}
	if s.HSL.H != 20 || s.HSL.S != 100 || s.HSL.L != 62 {
		t.Errorf("HSL: got %+v, want {20 100 62}", s.HSL)
	}
	if s.Percentage != 100 {
		t.Errorf("percentage %.2f, want 100", s.Percentage)
	}
}

func TestExtractPalette_SortedAndDeterministic(t *testing.T) {
	img := patternImage(60, 90)
	a, err := ExtractPalette(img, 3)
	if err != nil {
		t.Fatal(err)
	}
	b, _ := ExtractPalette(img, 3)
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("run differs at %d: %+v vs %+v", i, a[i], b[i])
		}
		if i > 0 && a[i-1].Percentage < a[i].Percentage {
			t.Errorf("not sorted by share at %d", i)
		}
	}
}

func TestExtractPalette_InvalidCount(t *testing.T) {
	_, err := ExtractPalette(solidImage(5, 5, color.White), 0)
	if imgerr.KindOf(err) != imgerr.KindInvalidParameter {
		t.Errorf("got %v, want invalid parameter", err)
	}
}
