package studio

import (
	"context"
	"os"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-studio/internal/batch"
	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/imaging"
	"github.com/ironsheep/image-studio/internal/imgerr"
	"github.com/ironsheep/image-studio/internal/joblog"
	"github.com/ironsheep/image-studio/internal/ocr"
)

// EditRequest is a complete editing request: a sequential chain, then an
// optional parallel fan-out whose results are merged back into one image.
type EditRequest struct {
	Steps    []imaging.Descriptor
	Branches []imaging.Descriptor
	// MergeOpacity blends the branch layers; nil means 1.0.
	MergeOpacity *float64
	// Output encodes the result. A zero Format keeps the source format.
	Output codec.Options
}

// EditResult is the encoded outcome of an EditRequest.
type EditResult struct {
	Data   []byte       `json:"-"`
	Format codec.Format `json:"format"`
	Width  int          `json:"width"`
	Height int          `json:"height"`
	Size   int          `json:"size_bytes"`
}

// Edit opens src, applies req and encodes the result.
func (s *Studio) Edit(ctx context.Context, src Source, req EditRequest) (*EditResult, error) {
	sess, err := s.Open(src)
	if err != nil {
		return nil, err
	}
	out := req.Output
	if out.Format == "" {
		format := sess.SourceFormat()
		out = codec.DefaultOptions()
		if format != "" {
			out.Format = format
		}
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	out.Format, _ = codec.ParseFormat(string(out.Format))

	log := s.log.WithFields(logrus.Fields{"session": sess.ID(), "steps": len(req.Steps), "branches": len(req.Branches)})

	if err := sess.ApplyChain(ctx, req.Steps...); err != nil {
		log.WithError(err).Debug("edit failed")
		return nil, err
	}
	if len(req.Branches) > 0 {
		if err := sess.ApplyBranches(ctx, req.Branches...); err != nil {
			log.WithError(err).Debug("branches failed")
			return nil, err
		}
		opacity := 1.0
		if req.MergeOpacity != nil {
			opacity = *req.MergeOpacity
		}
		if err := sess.MergeLayers(opacity); err != nil {
			return nil, err
		}
	}

	data, err := sess.MaterializeAsync(ctx, out)
	if err != nil {
		return nil, err
	}
	b := sess.Bounds()
	log.WithField("bytes", len(data)).Debug("edit finished")
	return &EditResult{Data: data, Format: out.Format, Width: b.Dx(), Height: b.Dy(), Size: len(data)}, nil
}

// Palette returns the k dominant colors of src.
func (s *Studio) Palette(ctx context.Context, src Source, k int) ([]imaging.Swatch, error) {
	sess, err := s.Open(src)
	if err != nil {
		return nil, err
	}
	return sess.Palette(ctx, k)
}

// ExtractText runs OCR over src.
func (s *Studio) ExtractText(ctx context.Context, src Source) (*ocr.Result, error) {
	sess, err := s.Open(src)
	if err != nil {
		return nil, err
	}
	return sess.ExtractText(ctx)
}

// Compress searches for an encoding of src that fits opts.TargetKB.
func (s *Studio) Compress(ctx context.Context, src Source, opts codec.CompressOptions) (*codec.Compressed, error) {
	sess, err := s.Open(src)
	if err != nil {
		return nil, err
	}
	return sess.Compress(ctx, opts)
}

// EstimateSize reports the size in KB src would have encoded with opts.
func (s *Studio) EstimateSize(ctx context.Context, src Source, opts codec.Options) (float64, error) {
	sess, err := s.Open(src)
	if err != nil {
		return 0, err
	}
	return sess.EstimateSize(ctx, opts)
}

// Batch applies req to every item. Unreadable files fail their own slot
// only, as a DecodeFailure on empty input.
func (s *Studio) Batch(ctx context.Context, req batch.Request, srcs []Source) (*batch.Job, error) {
	if err := s.batch.Validate(req); err != nil {
		return nil, err
	}
	items := make([]batch.Item, len(srcs))
	for i, src := range srcs {
		items[i] = batch.Item{Name: src.Name, Data: src.Data}
		if items[i].Name == "" {
			items[i].Name = src.Path
		}
		if len(src.Data) > 0 || src.Path == "" {
			continue
		}
		data, err := os.ReadFile(src.Path)
		if err != nil {
			s.log.WithFields(logrus.Fields{"index": i, "path": src.Path}).WithError(err).Warn("cannot read batch input")
			continue
		}
		items[i].Data = data
	}
	return s.batch.Run(ctx, req, items)
}

// ValidateBatch checks req without touching any image.
func (s *Studio) ValidateBatch(req batch.Request) error {
	return s.batch.Validate(req)
}

// RecentJobs lists the most recent batch jobs from the job log.
func (s *Studio) RecentJobs(ctx context.Context, limit int) ([]joblog.Entry, error) {
	if limit < 1 {
		return nil, imgerr.Invalid("limit %d must be at least 1", limit)
	}
	entries, err := s.recorder.Recent(ctx, limit)
	if err != nil {
		return nil, errors.WithMessage(err, "recent jobs")
	}
	return entries, nil
}
