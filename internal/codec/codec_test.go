package codec

import (
	"bytes"
	"context"
	"encoding/binary"
	"hash/crc32"
	"image"
	"image/color"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ironsheep/image-studio/internal/imgerr"
)

func gradient(w, h int) *image.NRGBA {
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	for y := 0; y < h; y++ {
		for x := 0; x < w; x++ {
			img.SetNRGBA(x, y, color.NRGBA{uint8(x * 255 / w), uint8(y * 255 / h), uint8((x + y) % 256), 255})
		}
	}
	return img
}

func noise(w, h int) *image.NRGBA {
	rng := rand.New(rand.NewSource(7))
	img := image.NewNRGBA(image.Rect(0, 0, w, h))
	rng.Read(img.Pix)
	for i := 3; i < len(img.Pix); i += 4 {
		img.Pix[i] = 255
	}
	return img
}

func TestPNGRoundTripIsLossless(t *testing.T) {
	src := gradient(64, 48)

	data, err := Encode(src, DefaultOptions())
	require.NoError(t, err)

	got, format, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, PNG, format)
	assert.Equal(t, src.Bounds(), got.Bounds())
	assert.Equal(t, src.Pix, got.Pix)
}

func TestLosslessRoundTrips(t *testing.T) {
	src := gradient(20, 10)
	for _, f := range []Format{BMP, TIFF} {
		t.Run(string(f), func(t *testing.T) {
			o := DefaultOptions()
			o.Format = f
			data, err := Encode(src, o)
			require.NoError(t, err)

			got, format, err := Decode(data)
			require.NoError(t, err)
			assert.Equal(t, f, format)
			assert.Equal(t, src.Pix, got.Pix)
		})
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	for _, data := range [][]byte{nil, []byte("definitely not an image")} {
		_, _, err := Decode(data)
		require.Error(t, err)
		assert.Equal(t, imgerr.KindDecodeFailure, imgerr.KindOf(err))
	}
}

// pngHeader returns a PNG signature and IHDR chunk declaring w x h RGBA
// pixels, with no image data after it.
func pngHeader(w, h uint32) []byte {
	ihdr := make([]byte, 13)
	binary.BigEndian.PutUint32(ihdr[0:], w)
	binary.BigEndian.PutUint32(ihdr[4:], h)
	ihdr[8] = 8 // bit depth
	ihdr[9] = 6 // truecolor with alpha
	chunk := append([]byte("IHDR"), ihdr...)

	var buf bytes.Buffer
	buf.WriteString("\x89PNG\r\n\x1a\n")
	binary.Write(&buf, binary.BigEndian, uint32(len(ihdr)))
	buf.Write(chunk)
	binary.Write(&buf, binary.BigEndian, crc32.ChecksumIEEE(chunk))
	return buf.Bytes()
}

func TestDecodeRejectsOversizedHeader(t *testing.T) {
	cfg, _, err := image.DecodeConfig(bytes.NewReader(pngHeader(20000, 20000)))
	require.NoError(t, err)
	require.Equal(t, 20000, cfg.Width)

	_, _, err = Decode(pngHeader(20000, 20000))
	require.Error(t, err)
	assert.Equal(t, imgerr.KindDecodeFailure, imgerr.KindOf(err))
	assert.Contains(t, err.Error(), "20000x20000")
}

func TestSetMaxPixels(t *testing.T) {
	t.Cleanup(func() { SetMaxPixels(DefaultMaxPixels) })

	small, err := Encode(gradient(10, 10), DefaultOptions())
	require.NoError(t, err)
	large, err := Encode(gradient(20, 20), DefaultOptions())
	require.NoError(t, err)

	SetMaxPixels(100)
	assert.Equal(t, int64(100), MaxPixels())
	_, _, err = Decode(small)
	assert.NoError(t, err)
	_, _, err = Decode(large)
	assert.Equal(t, imgerr.KindDecodeFailure, imgerr.KindOf(err))

	SetMaxPixels(0)
	assert.Equal(t, DefaultMaxPixels, MaxPixels())
	_, _, err = Decode(large)
	assert.NoError(t, err)
}

func TestCheckDimensions(t *testing.T) {
	assert.NoError(t, CheckDimensions(10000, 10000))
	for _, dims := range [][2]int{{10001, 10000}, {0, 5}, {5, -1}, {1 << 30, 1 << 30}} {
		err := CheckDimensions(dims[0], dims[1])
		assert.Equal(t, imgerr.KindInvalidParameter, imgerr.KindOf(err), "%v", dims)
	}
}

func TestEncodeRejectsOversizedResize(t *testing.T) {
	o := DefaultOptions()
	o.Width = 20000
	_, err := Encode(gradient(10, 10), o)
	assert.Equal(t, imgerr.KindInvalidParameter, imgerr.KindOf(err))

	o.Height = 20000
	assert.Equal(t, imgerr.KindInvalidParameter, imgerr.KindOf(o.Validate()))
}

func TestOptionsValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Options)
	}{
		{"format", func(o *Options) { o.Format = "heic" }},
		{"quality low", func(o *Options) { o.Quality = 0 }},
		{"quality high", func(o *Options) { o.Quality = 101 }},
		{"compression", func(o *Options) { o.Compression = 10 }},
		{"color mode", func(o *Options) { o.ColorMode = "YCbCr" }},
		{"dpi", func(o *Options) { o.DPI = 96 }},
		{"background", func(o *Options) { o.Background = "white" }},
		{"negative width", func(o *Options) { o.Width = -1 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := DefaultOptions()
			tt.mutate(&o)
			err := o.Validate()
			require.Error(t, err)
			assert.Equal(t, imgerr.KindInvalidParameter, imgerr.KindOf(err))
		})
	}
}

func TestCMYKOnlyForJPEGAndTIFF(t *testing.T) {
	o := DefaultOptions()
	o.ColorMode = ModeCMYK

	_, err := Encode(gradient(8, 8), o)
	require.Error(t, err)
	assert.Equal(t, imgerr.KindEncodeFailure, imgerr.KindOf(err))

	o.Format = JPEG
	data, err := Encode(gradient(8, 8), o)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
}

func TestGrayscaleMode(t *testing.T) {
	o := DefaultOptions()
	o.ColorMode = ModeGray
	data, err := Encode(gradient(16, 16), o)
	require.NoError(t, err)

	got, _, err := Decode(data)
	require.NoError(t, err)
	for i := 0; i < len(got.Pix); i += 4 {
		assert.Equal(t, got.Pix[i], got.Pix[i+1])
		assert.Equal(t, got.Pix[i+1], got.Pix[i+2])
	}
}

func TestResizeOptions(t *testing.T) {
	src := gradient(200, 100)

	o := DefaultOptions()
	o.Width, o.Height = 50, 50
	data, err := Encode(src, o)
	require.NoError(t, err)
	got, _, err := Decode(data)
	require.NoError(t, err)
	assert.Equal(t, 50, got.Bounds().Dx())
	assert.Equal(t, 25, got.Bounds().Dy())

	o.MaintainAspect = false
	data, err = Encode(src, o)
	require.NoError(t, err)
	got, _, err = Decode(data)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 50, 50), got.Bounds())
}

func TestAlphaFlattenedForJPEG(t *testing.T) {
	src := image.NewNRGBA(image.Rect(0, 0, 8, 8)) // fully transparent
	o := DefaultOptions()
	o.Format = JPEG
	o.Quality = 100
	o.Background = "#000000"
	data, err := Encode(src, o)
	require.NoError(t, err)

	got, _, err := Decode(data)
	require.NoError(t, err)
	c := got.NRGBAAt(4, 4)
	assert.LessOrEqual(t, c.R, uint8(8))
	assert.Equal(t, uint8(255), c.A)
}

func TestPNGDensityChunk(t *testing.T) {
	o := DefaultOptions()
	o.DPI = 300
	data, err := Encode(gradient(4, 4), o)
	require.NoError(t, err)

	idx := bytes.Index(data, []byte("pHYs"))
	require.Equal(t, 37, idx, "pHYs must follow IHDR")
	ppm := binary.BigEndian.Uint32(data[idx+4:])
	assert.Equal(t, uint32(11811), ppm)
	assert.Equal(t, byte(1), data[idx+12])

	// The chunk must not upset the decoder.
	_, _, err = Decode(data)
	assert.NoError(t, err)
}

func TestJPEGDensitySegment(t *testing.T) {
	o := DefaultOptions()
	o.Format = JPEG
	o.DPI = 150
	data, err := Encode(gradient(4, 4), o)
	require.NoError(t, err)

	require.Equal(t, []byte{0xFF, 0xD8, 0xFF, 0xE0}, data[:4])
	assert.Equal(t, "JFIF", string(data[6:10]))
	assert.Equal(t, byte(1), data[13])
	assert.Equal(t, uint16(150), binary.BigEndian.Uint16(data[14:16]))
	assert.Equal(t, uint16(150), binary.BigEndian.Uint16(data[16:18]))

	_, _, err = Decode(data)
	assert.NoError(t, err)
}

func TestApplyOrientation(t *testing.T) {
	src := gradient(6, 3)
	assert.Equal(t, src.Bounds(), applyOrientation(src, 1).Bounds())
	assert.Equal(t, image.Rect(0, 0, 3, 6), applyOrientation(src, 6).Bounds())
	assert.Equal(t, image.Rect(0, 0, 3, 6), applyOrientation(src, 8).Bounds())

	flipped := applyOrientation(src, 2).(*image.NRGBA)
	assert.Equal(t, src.NRGBAAt(0, 0), flipped.NRGBAAt(5, 0))
}

func TestCompressStopsAtFloor(t *testing.T) {
	o := DefaultCompressOptions()
	o.TargetKB = 0.01

	res, err := Compress(context.Background(), noise(96, 96), o)
	require.NoError(t, err)
	assert.Equal(t, QualityFloor, res.Quality)
	assert.Equal(t, (80-QualityFloor)/QualityStep+1, res.Attempts)
	assert.False(t, res.MetTarget)
	assert.Greater(t, res.SizeKB, o.TargetKB)
	assert.NotEmpty(t, res.Data)
}

func TestCompressMeetsGenerousTarget(t *testing.T) {
	o := DefaultCompressOptions()
	o.TargetKB = 10_000

	res, err := Compress(context.Background(), gradient(32, 32), o)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
	assert.Equal(t, 80, res.Quality)
	assert.True(t, res.MetTarget)
}

func TestCompressPNGSingleAttempt(t *testing.T) {
	o := DefaultCompressOptions()
	o.Format = PNG
	o.TargetKB = 0.01

	res, err := Compress(context.Background(), noise(32, 32), o)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Attempts)
}

func TestStartQuality(t *testing.T) {
	tests := []struct {
		quality int
		quant   Quantization
		want    int
	}{
		{80, QuantStandard, 80},
		{80, QuantHigh, 90},
		{95, QuantHigh, 100},
		{80, QuantLow, 70},
		{5, QuantStandard, QualityFloor},
		{15, QuantLow, QualityFloor},
	}
	for _, tt := range tests {
		o := CompressOptions{Quality: tt.quality, Quantization: tt.quant}
		assert.Equal(t, tt.want, o.StartQuality(), "%d/%s", tt.quality, tt.quant)
	}
}

func TestCompressValidate(t *testing.T) {
	bad := []CompressOptions{
		{TargetKB: 0, Format: JPEG, Quality: 80, Quantization: QuantStandard},
		{TargetKB: 10, Format: GIF, Quality: 80, Quantization: QuantStandard},
		{TargetKB: 10, Format: JPEG, Quality: 0, Quantization: QuantStandard},
		{TargetKB: 10, Format: JPEG, Quality: 80, Compression: 12, Quantization: QuantStandard},
		{TargetKB: 10, Format: JPEG, Quality: 80, Quantization: "extreme"},
	}
	for i, o := range bad {
		err := o.Validate()
		require.Error(t, err, "case %d", i)
		assert.Equal(t, imgerr.KindInvalidParameter, imgerr.KindOf(err))
	}
}

func TestCompressHonorsCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	o := DefaultCompressOptions()
	o.TargetKB = 0.01
	_, err := Compress(ctx, noise(32, 32), o)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, imgerr.KindTransformFailure, imgerr.KindOf(err))
}
