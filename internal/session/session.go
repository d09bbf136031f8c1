// Package session holds the editing state for one request.
//
// A [Session] owns the current picture and its layer stack. Every mutating
// method follows the same contract: validate, compute, commit. Validation
// failures and transform failures leave the session exactly as it was; a
// successful operation replaces the current picture and the top layer
// together, so the last layer is always the current image.
//
// Operations on one session are serialized by a mutex. Reads of the current
// image take a separate lock that is held only while a commit swaps
// pointers, so queries never wait for an operation in flight. Different
// sessions share nothing and run concurrently, which is how the batch
// coordinator and concurrent requests get their parallelism.
package session

import (
	"context"
	"image"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/dispatch"
	"github.com/ironsheep/image-studio/internal/imaging"
	"github.com/ironsheep/image-studio/internal/imgerr"
	"github.com/ironsheep/image-studio/internal/logging"
	"github.com/ironsheep/image-studio/internal/ocr"
	"github.com/ironsheep/image-studio/internal/vision"
)

// TextExtractor recognizes text in an image.
type TextExtractor interface {
	ExtractText(img image.Image) (*ocr.Result, error)
}

var (
	defaultRegistryOnce sync.Once
	defaultRegistry     *imaging.Registry
)

// DefaultRegistry is the registry used by sessions created without
// WithRegistry. It has no font file and no cascades configured.
func DefaultRegistry() *imaging.Registry {
	defaultRegistryOnce.Do(func() {
		defaultRegistry = imaging.NewRegistry(imaging.Resources{})
	})
	return defaultRegistry
}

// Option configures a Session.
type Option func(*Session)

// WithRegistry selects the operation registry.
func WithRegistry(r *imaging.Registry) Option {
	return func(s *Session) { s.reg = r }
}

// WithDispatcher routes ApplyAsync and the heavy queries through d. Without
// a dispatcher every operation runs on the caller's goroutine.
func WithDispatcher(d *dispatch.Dispatcher) Option {
	return func(s *Session) { s.disp = d }
}

// WithTextExtractor enables ExtractText.
func WithTextExtractor(t TextExtractor) Option {
	return func(s *Session) { s.ocr = t }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(s *Session) { s.log = log }
}

// WithSourceFormat records the container the image was decoded from.
func WithSourceFormat(f codec.Format) Option {
	return func(s *Session) { s.source = f }
}

// WithID overrides the generated session ID.
func WithID(id string) Option {
	return func(s *Session) { s.id = id }
}

// Session is the mutable state of one editing request.
type Session struct {
	id     string
	reg    *imaging.Registry
	disp   *dispatch.Dispatcher
	ocr    TextExtractor
	log    logrus.FieldLogger
	source codec.Format

	// mu serializes operations. picMu guards pic and layers; writers hold
	// both, so code holding mu may read them without picMu.
	mu     sync.Mutex
	picMu  sync.RWMutex
	pic    *imaging.Picture
	layers []*imaging.Picture
}

// New starts a session on a copy of img.
func New(img image.Image, opts ...Option) *Session {
	s := &Session{id: uuid.NewString()}
	for _, opt := range opts {
		opt(s)
	}
	if s.reg == nil {
		s.reg = DefaultRegistry()
	}
	if s.log == nil {
		s.log = logging.Discard()
	}
	s.log = s.log.WithField("session", s.id)
	s.pic = imaging.NewPicture(img)
	s.layers = []*imaging.Picture{s.pic}
	return s
}

// Open decodes data and starts a session on it.
func Open(data []byte, opts ...Option) (*Session, error) {
	img, format, err := codec.Decode(data)
	if err != nil {
		return nil, err
	}
	s := New(img, opts...)
	s.source = format
	return s, nil
}

// ID returns the session identifier.
func (s *Session) ID() string {
	return s.id
}

// SourceFormat returns the format data was decoded from, or "" for
// sessions created from an image.
func (s *Session) SourceFormat() codec.Format {
	return s.source
}

// Image returns the current image. Callers must not modify it.
func (s *Session) Image() *image.NRGBA {
	return s.current().Image()
}

// Frame returns the BGR encoding of the current image.
func (s *Session) Frame() *vision.Frame {
	return s.current().Frame()
}

// Bounds returns the current image rectangle.
func (s *Session) Bounds() image.Rectangle {
	return s.current().Bounds()
}

// Snapshot returns an independent copy of the current image.
func (s *Session) Snapshot() *image.NRGBA {
	return imaging.NewPicture(s.current().Image()).Image()
}

// Layers returns the layer stack, bottom first. The images are shared with
// the session and must not be modified.
func (s *Session) Layers() []*image.NRGBA {
	s.picMu.RLock()
	defer s.picMu.RUnlock()
	out := make([]*image.NRGBA, len(s.layers))
	for i, l := range s.layers {
		out[i] = l.Image()
	}
	return out
}

func (s *Session) current() *imaging.Picture {
	s.picMu.RLock()
	defer s.picMu.RUnlock()
	return s.pic
}

// Apply validates and runs d on the caller's goroutine, then commits the
// result.
func (s *Session) Apply(d imaging.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.plan(d)
	if err != nil {
		return err
	}
	out, err := st.run()
	if err != nil {
		return err
	}
	st.commit(out)
	s.log.WithField("op", d.Name).Debug("operation committed")
	return nil
}

// ApplyAsync validates d, runs it in the execution context the strategy
// table assigns to it, and commits the result. Errors have the same kinds
// Apply would return. If ctx ends before the work finishes, the session is
// left unchanged.
func (s *Session) ApplyAsync(ctx context.Context, d imaging.Descriptor) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st, err := s.plan(d)
	if err != nil {
		return err
	}
	out, err := submit(ctx, s, d.Name, st.run)
	if err != nil {
		return err
	}
	st.commit(out)
	s.log.WithField("op", d.Name).Debug("operation committed")
	return nil
}

// AddLayer resizes img to the current size and pushes it; it becomes the
// current image.
func (s *Session) AddLayer(img image.Image) error {
	return s.Apply(imaging.Descriptor{Name: dispatch.OpAddLayer, Images: []image.Image{img}})
}

// MergeLayers blends the stack bottom-up at opacity and collapses it to
// the single result.
func (s *Session) MergeLayers(opacity float64) error {
	return s.Apply(imaging.Op(dispatch.OpMergeLayers, imaging.Params{"opacity": opacity}))
}

// step is a validated operation bound to the state it reads.
type step struct {
	run    func() (*imaging.Picture, error)
	commit func(out *imaging.Picture)
}

// plan validates d against the current state. s.mu must be held.
func (s *Session) plan(d imaging.Descriptor) (*step, error) {
	base := s.pic
	switch d.Name {
	case dispatch.OpAddLayer:
		if len(d.Images) != 1 || d.Images[0] == nil {
			return nil, imgerr.Invalid("add_layer takes exactly one image")
		}
		img := d.Images[0]
		return &step{
			run: func() (*imaging.Picture, error) {
				return imaging.NewPicture(imaging.FitLayer(img, base.Width(), base.Height())), nil
			},
			commit: s.push,
		}, nil

	case dispatch.OpMergeLayers:
		opacity, err := d.Params.Float("opacity", 1.0)
		if err != nil {
			return nil, err
		}
		if opacity < 0 || opacity > 1 {
			return nil, imgerr.Invalid("opacity %g must be between 0 and 1", opacity)
		}
		layers := make([]*image.NRGBA, len(s.layers))
		for i, l := range s.layers {
			layers[i] = l.Image()
		}
		return &step{
			run: func() (*imaging.Picture, error) {
				return imaging.NewPicture(imaging.MergeLayers(layers, opacity)), nil
			},
			commit: s.reset,
		}, nil
	}

	op, ok := s.reg.Lookup(d.Name)
	if !ok {
		return nil, imgerr.Unsupported(d.Name)
	}
	fn, err := s.reg.Prepare(d)
	if err != nil {
		return nil, err
	}
	commit := s.replaceTop
	if op.ResetsLayers {
		commit = s.reset
	}
	return &step{
		run:    func() (*imaging.Picture, error) { return fn.Run(d.Name, base) },
		commit: commit,
	}, nil
}

// replaceTop commits out as the current image and top layer.
func (s *Session) replaceTop(out *imaging.Picture) {
	s.picMu.Lock()
	defer s.picMu.Unlock()
	s.pic = out
	s.layers[len(s.layers)-1] = out
}

// push commits out as a new top layer.
func (s *Session) push(out *imaging.Picture) {
	s.picMu.Lock()
	defer s.picMu.Unlock()
	s.pic = out
	s.layers = append(s.layers, out)
}

// reset commits out as the only layer.
func (s *Session) reset(out *imaging.Picture) {
	s.picMu.Lock()
	defer s.picMu.Unlock()
	s.pic = out
	s.layers = []*imaging.Picture{out}
}

// submit runs fn through the dispatcher, or inline when the session has
// none. Panics surface as TransformFailure either way.
func submit[T any](ctx context.Context, s *Session, op string, fn func() (T, error)) (T, error) {
	if s.disp == nil {
		return dispatch.Submit(ctx, nil, dispatch.Inline, op, fn).Await(ctx)
	}
	return dispatch.SubmitOp(ctx, s.disp, op, fn).Await(ctx)
}
