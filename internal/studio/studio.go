// Package studio is the single entry into image-studio for the MCP server,
// the HTTP API and the CLI. It builds every component from configuration
// and exposes request-level operations; it holds no pixel logic itself.
// Every request runs through a fresh session.Session.
package studio

import (
	"context"
	"image"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-studio/internal/batch"
	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/config"
	"github.com/ironsheep/image-studio/internal/dispatch"
	"github.com/ironsheep/image-studio/internal/imaging"
	"github.com/ironsheep/image-studio/internal/imgerr"
	"github.com/ironsheep/image-studio/internal/joblog"
	"github.com/ironsheep/image-studio/internal/ocr"
	"github.com/ironsheep/image-studio/internal/session"
	"github.com/ironsheep/image-studio/internal/storage/s3store"
	"github.com/ironsheep/image-studio/internal/vision"
)

// Studio owns the registry, the dispatcher and the batch sinks.
type Studio struct {
	cfg      *config.Config
	log      logrus.FieldLogger
	reg      *imaging.Registry
	disp     *dispatch.Dispatcher
	ocr      *ocr.Engine
	recorder joblog.Recorder
	store    *s3store.Store
	batch    *batch.Coordinator
	cache    *imaging.ImageCache
}

// New builds a studio from cfg. The strategy table is checked against the
// registry before anything else starts, so a missing classification fails
// at startup rather than on the first request.
func New(ctx context.Context, cfg *config.Config, log logrus.FieldLogger) (*Studio, error) {
	codec.SetMaxPixels(cfg.Limits.MaxPixels)
	reg := imaging.NewRegistry(imaging.Resources{
		FontPath: cfg.Fonts.Path,
		Cascades: vision.Cascades{Face: cfg.Vision.FaceCascade, Eye: cfg.Vision.EyeCascade},
	})
	strategy := dispatch.DefaultStrategy()
	if err := strategy.Verify(reg.Names()); err != nil {
		return nil, errors.Wrap(err, "strategy table")
	}

	recorder, err := joblog.Open(ctx, cfg.JobLog)
	if err != nil {
		return nil, err
	}

	s := &Studio{
		cfg:      cfg,
		log:      log.WithField("component", "studio"),
		reg:      reg,
		ocr:      ocr.NewEngine(cfg.OCR.Language, cfg.OCR.TessdataPrefix),
		recorder: recorder,
		cache:    imaging.NewImageCache(),
	}

	batchOpts := []batch.Option{batch.WithRecorder(recorder), batch.WithLogger(log)}
	if cfg.Storage.Enabled {
		store, err := s3store.New(cfg.Storage)
		if err != nil {
			recorder.Close(ctx)
			return nil, err
		}
		if err := store.EnsureBucket(ctx); err != nil {
			recorder.Close(ctx)
			return nil, err
		}
		s.store = store
		batchOpts = append(batchOpts, batch.WithUploader(store))
	}

	s.disp = dispatch.New(cfg.Pools, strategy, log)
	s.batch = batch.NewCoordinator(s.disp, reg, batchOpts...)

	s.log.WithFields(logrus.Fields{
		"operations": len(reg.Names()),
		"vision":     vision.Engine,
		"max_pixels": codec.MaxPixels(),
		"joblog":     cfg.JobLog.Driver,
		"storage":    cfg.Storage.Enabled,
	}).Info("studio ready")
	return s, nil
}

// Config returns the configuration the studio was built from.
func (s *Studio) Config() *config.Config {
	return s.cfg
}

// Close drains the pools and closes the job log.
func (s *Studio) Close(ctx context.Context) error {
	var result *multierror.Error
	if err := s.disp.Close(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := s.recorder.Close(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

// Source is an input image, given either as encoded bytes or as a file
// path. Files are decoded once and cached for the life of the studio.
type Source struct {
	Path string
	Data []byte
	// Name labels the image in batch outcomes; it defaults to Path.
	Name string
}

// Bytes wraps encoded image data.
func Bytes(data []byte) Source { return Source{Data: data} }

// File refers to an image file.
func File(path string) Source { return Source{Path: path} }

// Open starts a session on src wired to the studio's registry, dispatcher
// and OCR engine.
func (s *Studio) Open(src Source) (*session.Session, error) {
	opts := []session.Option{
		session.WithRegistry(s.reg),
		session.WithDispatcher(s.disp),
		session.WithTextExtractor(s.ocr),
		session.WithLogger(s.log),
	}
	switch {
	case len(src.Data) > 0:
		return session.Open(src.Data, opts...)
	case src.Path != "":
		img, format, err := s.cache.LoadFormat(src.Path)
		if err != nil {
			return nil, err
		}
		return session.New(img, append(opts, session.WithSourceFormat(format))...), nil
	}
	return nil, imgerr.Invalid("an image path or image data is required")
}

// Image decodes src without starting a session. File images come from the
// cache and must not be modified.
func (s *Studio) Image(src Source) (*image.NRGBA, error) {
	switch {
	case len(src.Data) > 0:
		img, _, err := codec.Decode(src.Data)
		return img, err
	case src.Path != "":
		return s.cache.Load(src.Path)
	}
	return nil, imgerr.Invalid("an image path or image data is required")
}

// Info describes src without editing it.
func (s *Studio) Info(src Source) (*imaging.ImageInfo, error) {
	if src.Path != "" && len(src.Data) == 0 {
		return imaging.LoadImageInfo(s.cache, src.Path)
	}
	if len(src.Data) == 0 {
		return nil, imgerr.Invalid("an image path or image data is required")
	}
	img, format, err := codec.Decode(src.Data)
	if err != nil {
		return nil, err
	}
	return &imaging.ImageInfo{
		Width:         img.Bounds().Dx(),
		Height:        img.Bounds().Dy(),
		Format:        format,
		MimeType:      format.MimeType(),
		HasAlpha:      !img.Opaque(),
		FileSizeBytes: int64(len(src.Data)),
	}, nil
}

// Operations lists the session operations.
func (s *Studio) Operations() []*imaging.Operation {
	return s.reg.Operations()
}

// BatchOperations lists the operations accepted by Batch.
func (s *Studio) BatchOperations() []string {
	return batch.Operations()
}

// Stats reports pool occupancy.
func (s *Studio) Stats() dispatch.Stats {
	return s.disp.Stats()
}

// OCRInfo reports the OCR engine state.
func (s *Studio) OCRInfo() ocr.Info {
	return s.ocr.Info()
}

// Evict drops a cached file so the next request reads it again.
func (s *Studio) Evict(path string) {
	s.cache.Evict(path)
}
