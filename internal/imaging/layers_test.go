package imaging

import (
	"bytes"
	"image"
	"image/color"
	"testing"
)

func TestBlend(t *testing.T) {
	black := solidImage(4, 4, color.Black)
	white := solidImage(4, 4, color.White)

	if out := Blend(black, white, 0); !bytes.Equal(out.Pix, black.Pix) {
		t.Error("opacity 0 should keep the base")
	}
	if out := Blend(black, white, 1); !bytes.Equal(out.Pix, white.Pix) {
		t.Error("opacity 1 should yield the top layer")
	}
	mid := Blend(black, white, 0.5).NRGBAAt(1, 1)
	if absInt(int(mid.R)-128) > 1 || mid.A != 255 {
		t.Errorf("opacity 0.5: got %v, want about 128", mid)
	}
}

func TestMergeLayersSequential(t *testing.T) {
	layers := []*image.NRGBA{
		solidImage(4, 4, color.NRGBA{0, 0, 0, 255}),
		solidImage(4, 4, color.NRGBA{200, 200, 200, 255}),
		solidImage(4, 4, color.NRGBA{100, 100, 100, 255}),
	}
	// ((0·0.5 + 200·0.5)·0.5 + 100·0.5) = 100
	got := MergeLayers(layers, 0.5).NRGBAAt(0, 0)
	if absInt(int(got.R)-100) > 1 {
		t.Errorf("got %v, want about 100", got)
	}
	if top := MergeLayers(layers, 1); !bytes.Equal(top.Pix, layers[2].Pix) {
		t.Error("opacity 1 should yield the last layer")
	}
}

func TestFitLayer(t *testing.T) {
	out := FitLayer(solidImage(10, 30, color.White), 20, 20)
	if out.Rect.Dx() != 20 || out.Rect.Dy() != 20 {
		t.Errorf("got %v, want 20x20", out.Rect)
	}
}
