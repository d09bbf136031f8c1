package imaging

import (
	"testing"

	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/imgerr"
)

func TestOutputOptions(t *testing.T) {
	o, err := OutputOptions(Params{
		"format":     "JPG",
		"quality":    "70",
		"width":      320.0,
		"color_mode": "grayscale",
		"dpi":        300,
	}, codec.DefaultOptions())
	if err != nil {
		t.Fatalf("OutputOptions() error = %v", err)
	}
	if o.Format != codec.JPEG {
		t.Errorf("Format = %q, want jpeg", o.Format)
	}
	if o.Quality != 70 || o.Width != 320 || o.DPI != 300 {
		t.Errorf("got quality %d width %d dpi %d", o.Quality, o.Width, o.DPI)
	}
	if o.ColorMode != codec.ModeGray {
		t.Errorf("ColorMode = %q, want L", o.ColorMode)
	}
	if o.Compression != 6 {
		t.Errorf("Compression = %d, want default 6", o.Compression)
	}
}

func TestOutputOptionsRejects(t *testing.T) {
	tests := []struct {
		name   string
		params Params
	}{
		{"format", Params{"format": "psd"}},
		{"quality", Params{"quality": 0}},
		{"compression", Params{"compression": 10}},
		{"dpi", Params{"dpi": 96}},
		{"color mode", Params{"color_mode": "HSV"}},
		{"background", Params{"background": "white"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := OutputOptions(tt.params, codec.DefaultOptions())
			if imgerr.KindOf(err) != imgerr.KindInvalidParameter {
				t.Errorf("error = %v, want InvalidParameter", err)
			}
		})
	}
}

func TestCompressOptions(t *testing.T) {
	o, err := CompressOptions(Params{"target_size_kb": 50, "format": "webp", "quantization": "HIGH"})
	if err != nil {
		t.Fatalf("CompressOptions() error = %v", err)
	}
	if o.Format != codec.WEBP || o.TargetKB != 50 || o.Quantization != codec.QuantHigh {
		t.Errorf("unexpected options %+v", o)
	}

	for _, p := range []Params{
		{},
		{"target_size_kb": 0},
		{"target_size_kb": 10, "format": "gif"},
		{"target_size_kb": 10, "quantization": "extreme"},
	} {
		if _, err := CompressOptions(p); imgerr.KindOf(err) != imgerr.KindInvalidParameter {
			t.Errorf("CompressOptions(%v) error = %v, want InvalidParameter", p, err)
		}
	}
}
