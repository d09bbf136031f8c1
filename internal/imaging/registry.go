package imaging

import (
	"image"
	"sort"

	"github.com/ironsheep/image-studio/internal/imgerr"
	"github.com/ironsheep/image-studio/internal/vision"
)

// Func computes a new image from a committed picture. It must not modify
// the picture.
type Func func(pic *Picture) (*image.NRGBA, error)

// Run invokes f, converting panics and unclassified errors into
// TransformFailure.
func (f Func) Run(op string, pic *Picture) (out *Picture, err error) {
	defer func() {
		if v := recover(); v != nil {
			out, err = nil, imgerr.FromPanic(op, v)
		}
	}()
	img, err := f(pic)
	if err != nil {
		return nil, imgerr.Classify(op, err)
	}
	return adopt(img), nil
}

// Descriptor names an operation and carries its arguments. Images holds
// extra inputs for operations that combine several pictures.
type Descriptor struct {
	Name   string        `json:"name"`
	Params Params        `json:"params,omitempty"`
	Images []image.Image `json:"-"`
}

// Op is shorthand for a descriptor without extra images.
func Op(name string, params Params) Descriptor {
	return Descriptor{Name: name, Params: params}
}

// ParamSpec documents one parameter for operation listings.
type ParamSpec struct {
	Name        string      `json:"name"`
	Type        string      `json:"type"`
	Description string      `json:"description"`
	Default     interface{} `json:"default,omitempty"`
	Required    bool        `json:"required,omitempty"`
}

// Operation is one registry entry. prepare validates a descriptor and
// returns the closure that does the pixel work; it never touches pixels.
type Operation struct {
	Name        string      `json:"name"`
	Description string      `json:"description"`
	Params      []ParamSpec `json:"params"`
	Images      bool        `json:"images,omitempty"`
	// ResetsLayers marks operations whose result starts a new layer stack.
	ResetsLayers bool `json:"-"`

	prepare func(d Descriptor) (Func, error)
}

// Resources are the external files and detectors some operations depend on.
type Resources struct {
	FontPath string
	Cascades vision.Cascades
	// Faces overrides the cascade detector built from Cascades.
	Faces FaceDetector
	// NoiseSeed fixes the noise generator; zero seeds from the clock.
	NoiseSeed int64
}

// FaceDetector locates faces, and eyes inside a face, in frame coordinates.
type FaceDetector interface {
	DetectFaces(f *vision.Frame) ([]image.Rectangle, error)
	DetectEyes(f *vision.Frame, face image.Rectangle) ([]image.Rectangle, error)
}

// CascadeDetector is the FaceDetector backed by the vision engine's Haar
// cascades.
type CascadeDetector struct {
	Cascades vision.Cascades
}

func (d CascadeDetector) DetectFaces(f *vision.Frame) ([]image.Rectangle, error) {
	return vision.DetectFaces(f, d.Cascades)
}

func (d CascadeDetector) DetectEyes(f *vision.Frame, face image.Rectangle) ([]image.Rectangle, error) {
	return vision.DetectEyes(f, d.Cascades, face)
}

// Registry maps operation names to implementations.
type Registry struct {
	ops   map[string]*Operation
	res   Resources
	fonts *fontSource
}

// NewRegistry returns a registry holding every built-in operation.
func NewRegistry(res Resources) *Registry {
	r := &Registry{
		ops:   make(map[string]*Operation),
		res:   res,
		fonts: newFontSource(res.FontPath),
	}
	if r.res.Faces == nil {
		r.res.Faces = CascadeDetector{Cascades: res.Cascades}
	}
	registerAdjustments(r)
	registerFilters(r)
	registerGeometry(r)
	registerText(r)
	registerRetouch(r)
	return r
}

func (r *Registry) register(op Operation) {
	if _, dup := r.ops[op.Name]; dup {
		panic("imaging: duplicate operation " + op.Name)
	}
	o := op
	r.ops[op.Name] = &o
}

// Lookup returns the named operation.
func (r *Registry) Lookup(name string) (*Operation, bool) {
	op, ok := r.ops[name]
	return op, ok
}

// Names returns every registered name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.ops))
	for name := range r.ops {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Operations returns every entry sorted by name.
func (r *Registry) Operations() []*Operation {
	ops := make([]*Operation, 0, len(r.ops))
	for _, name := range r.Names() {
		ops = append(ops, r.ops[name])
	}
	return ops
}

// Prepare validates d and returns the work closure. Unknown names fail with
// UnsupportedOperation and bad parameters with InvalidParameter; in both
// cases no pixel work has happened.
func (r *Registry) Prepare(d Descriptor) (Func, error) {
	op, ok := r.ops[d.Name]
	if !ok {
		return nil, imgerr.Unsupported(d.Name)
	}
	if d.Params == nil {
		d.Params = Params{}
	}
	return op.prepare(d)
}

// Apply prepares and runs d against pic.
func (r *Registry) Apply(pic *Picture, d Descriptor) (*Picture, error) {
	fn, err := r.Prepare(d)
	if err != nil {
		return nil, err
	}
	return fn.Run(d.Name, pic)
}

// simple registers an operation that takes no parameters.
func (r *Registry) simple(name, desc string, fn func(pic *Picture) (*image.NRGBA, error)) {
	r.register(Operation{
		Name:        name,
		Description: desc,
		prepare: func(Descriptor) (Func, error) {
			return fn, nil
		},
	})
}
