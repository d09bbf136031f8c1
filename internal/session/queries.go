package session

import (
	"context"

	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/dispatch"
	"github.com/ironsheep/image-studio/internal/imaging"
	"github.com/ironsheep/image-studio/internal/imgerr"
	"github.com/ironsheep/image-studio/internal/ocr"
)

// Materialize encodes the current image with opts on the caller's
// goroutine. The session is not modified.
func (s *Session) Materialize(opts codec.Options) ([]byte, error) {
	return codec.Encode(s.current().Image(), opts)
}

// MaterializeAsync is Materialize run on the light pool.
func (s *Session) MaterializeAsync(ctx context.Context, opts codec.Options) ([]byte, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}
	pic := s.current()
	return submit(ctx, s, dispatch.OpMaterialize, func() ([]byte, error) {
		return codec.Encode(pic.Image(), opts)
	})
}

// EstimateSize reports the size in KB the current image would have when
// encoded with opts.
func (s *Session) EstimateSize(ctx context.Context, opts codec.Options) (float64, error) {
	if err := opts.Validate(); err != nil {
		return 0, err
	}
	pic := s.current()
	return submit(ctx, s, dispatch.OpEstimateSize, func() (float64, error) {
		return codec.EstimateSizeKB(pic.Image(), opts)
	})
}

// Compress searches for an encoding that fits opts.TargetKB and commits
// the decoded result, so later operations see the compression artifacts.
// The encoded bytes are returned with the search statistics.
func (s *Session) Compress(ctx context.Context, opts codec.CompressOptions) (*codec.Compressed, error) {
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	base := s.pic
	type outcome struct {
		res *codec.Compressed
		pic *imaging.Picture
	}
	out, err := submit(ctx, s, dispatch.OpCompress, func() (outcome, error) {
		res, err := codec.Compress(ctx, base.Image(), opts)
		if err != nil {
			return outcome{}, err
		}
		img, _, err := codec.Decode(res.Data)
		if err != nil {
			return outcome{}, imgerr.Transform(dispatch.OpCompress, err)
		}
		return outcome{res: res, pic: imaging.NewPicture(img)}, nil
	})
	if err != nil {
		return nil, err
	}
	s.replaceTop(out.pic)
	s.log.WithField("op", dispatch.OpCompress).WithField("quality", out.res.Quality).Debug("operation committed")
	return out.res, nil
}

// Palette returns the k dominant colors of the current image.
func (s *Session) Palette(ctx context.Context, k int) ([]imaging.Swatch, error) {
	if k < 1 {
		return nil, imgerr.Invalid("num_colors %d must be at least 1", k)
	}
	pic := s.current()
	return submit(ctx, s, dispatch.OpPalette, func() ([]imaging.Swatch, error) {
		return imaging.ExtractPalette(pic.Image(), k)
	})
}

// ExtractText runs OCR over the current image.
func (s *Session) ExtractText(ctx context.Context) (*ocr.Result, error) {
	if s.ocr == nil {
		return nil, imgerr.Transformf("no OCR engine configured")
	}
	pic := s.current()
	return submit(ctx, s, dispatch.OpExtractText, func() (*ocr.Result, error) {
		return s.ocr.ExtractText(pic.Image())
	})
}
