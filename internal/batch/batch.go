// Package batch applies one operation to many images.
//
// Every item gets its own session and runs as an independent task on the
// heavy pool. A failing item never stops its siblings: its slot in the job
// records a structured failure instead of output bytes, and the job always
// has exactly one outcome per input, in input order.
package batch

import (
	"context"
	"fmt"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-studio/internal/codec"
	"github.com/ironsheep/image-studio/internal/dispatch"
	"github.com/ironsheep/image-studio/internal/imaging"
	"github.com/ironsheep/image-studio/internal/imgerr"
	"github.com/ironsheep/image-studio/internal/joblog"
	"github.com/ironsheep/image-studio/internal/logging"
	"github.com/ironsheep/image-studio/internal/session"
)

// OpFormat converts every item without transforming it.
const OpFormat = "format"

// allowed lists the batch operations with the defaults filled in for
// missing parameters.
var allowed = map[string]imaging.Params{
	"grayscale":        nil,
	"sepia":            nil,
	"blur":             {"radius": 2},
	"sharpen":          nil,
	"brightness":       {"factor": 1.0},
	"contrast":         {"factor": 1.0},
	"saturation":       {"factor": 1.0},
	"resize":           {"width": 800, "height": 600},
	"rotate":           {"angle": 90},
	"flip":             {"direction": "horizontal"},
	"auto_enhance":     nil,
	"colorize":         nil,
	"super_resolution": {"scale": 2},
	"restore":          nil,
}

// Operations returns every accepted batch operation name, sorted.
func Operations() []string {
	names := make([]string, 0, len(allowed)+1)
	for name := range allowed {
		names = append(names, name)
	}
	names = append(names, OpFormat)
	sort.Strings(names)
	return names
}

// DefaultOutput is the encoding used when a request does not choose one.
func DefaultOutput() codec.Options {
	o := codec.DefaultOptions()
	o.Format = codec.JPEG
	return o
}

// Item is one input image.
type Item struct {
	Name string
	Data []byte
}

// Request describes the work applied to every item.
type Request struct {
	Op     string
	Params imaging.Params
	// Output encodes each result. The zero value selects DefaultOutput.
	// For the format operation the encoding is read from Params instead.
	Output codec.Options
}

// Uploader stores finished outputs.
type Uploader interface {
	Put(ctx context.Context, key string, data []byte, contentType string) (string, error)
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRecorder records every finished job.
func WithRecorder(r joblog.Recorder) Option {
	return func(c *Coordinator) { c.recorder = r }
}

// WithUploader uploads every successful output under "<job id>/".
func WithUploader(u Uploader) Option {
	return func(c *Coordinator) { c.uploader = u }
}

// WithLogger sets the logger.
func WithLogger(log logrus.FieldLogger) Option {
	return func(c *Coordinator) { c.log = log }
}

// Coordinator runs batch jobs on a dispatcher's heavy pool.
type Coordinator struct {
	disp     *dispatch.Dispatcher
	reg      *imaging.Registry
	recorder joblog.Recorder
	uploader Uploader
	log      logrus.FieldLogger
}

// NewCoordinator returns a coordinator using d for execution and reg for
// the operations.
func NewCoordinator(d *dispatch.Dispatcher, reg *imaging.Registry, opts ...Option) *Coordinator {
	c := &Coordinator{disp: d, reg: reg}
	for _, opt := range opts {
		opt(c)
	}
	if c.reg == nil {
		c.reg = session.DefaultRegistry()
	}
	if c.recorder == nil {
		c.recorder = joblog.Nop{}
	}
	if c.log == nil {
		c.log = logging.Discard()
	}
	c.log = c.log.WithField("component", "batch")
	return c
}

// plan is a validated request.
type plan struct {
	op     string
	desc   *imaging.Descriptor
	params imaging.Params
	output codec.Options
}

func normalizeOp(name string) string {
	return strings.ReplaceAll(strings.ToLower(strings.TrimSpace(name)), "-", "_")
}

// Validate checks req without touching any image: unknown operations fail
// with UnsupportedOperation and bad parameters with InvalidParameter.
func (c *Coordinator) Validate(req Request) error {
	_, err := c.plan(req)
	return err
}

func (c *Coordinator) plan(req Request) (*plan, error) {
	op := normalizeOp(req.Op)

	if op == OpFormat {
		out, err := imaging.OutputOptions(req.Params, DefaultOutput())
		if err != nil {
			return nil, err
		}
		return &plan{op: op, params: req.Params, output: out}, nil
	}

	defaults, ok := allowed[op]
	if !ok {
		return nil, imgerr.Unsupported(req.Op)
	}
	params := imaging.Params{}
	for k, v := range defaults {
		params[k] = v
	}
	for k, v := range req.Params {
		params[k] = v
	}
	desc := imaging.Op(op, params)
	if _, err := c.reg.Prepare(desc); err != nil {
		return nil, err
	}

	out := req.Output
	if out.Format == "" {
		out = DefaultOutput()
	}
	if err := out.Validate(); err != nil {
		return nil, err
	}
	out.Format, _ = codec.ParseFormat(string(out.Format))
	return &plan{op: op, desc: &desc, params: params, output: out}, nil
}

// Run validates req, processes every item and returns the completed job.
// An error is returned only when the request itself is invalid; per-item
// failures are recorded in the job.
func (c *Coordinator) Run(ctx context.Context, req Request, items []Item) (*Job, error) {
	if len(items) == 0 {
		return nil, imgerr.Invalid("batch needs at least one image")
	}
	p, err := c.plan(req)
	if err != nil {
		return nil, err
	}

	job := newJob(p, items)
	log := c.log.WithFields(logrus.Fields{"job": job.ID, "op": p.op, "items": len(items)})
	log.Info("batch started")
	job.start()

	futures := make([]*dispatch.Future[[]byte], len(items))
	for i, item := range items {
		item := item
		futures[i] = dispatch.Submit(ctx, c.disp, dispatch.Heavy, p.op, func() ([]byte, error) {
			return c.process(item, p)
		})
	}

	for i, f := range futures {
		data, err := f.Await(ctx)
		if err != nil {
			failure := imgerr.NewFailure(i, err)
			job.Outcomes[i].Failure = failure
			log.WithFields(logrus.Fields{"index": i, "kind": failure.Kind}).Warn(failure.Message)
			continue
		}
		job.Outcomes[i].Output = data
		job.Outcomes[i].Size = len(data)
	}

	c.upload(ctx, job, log)
	job.finish()
	log.WithField("failed", job.Failed()).Info("batch completed")

	if err := c.recorder.Record(ctx, job.Entry()); err != nil {
		log.WithError(err).Warn("could not record batch job")
	}
	return job, nil
}

// process runs inside a heavy worker; the operation itself runs inline.
func (c *Coordinator) process(item Item, p *plan) ([]byte, error) {
	s, err := session.Open(item.Data, session.WithRegistry(c.reg), session.WithLogger(c.log))
	if err != nil {
		return nil, err
	}
	if p.desc != nil {
		if err := s.Apply(*p.desc); err != nil {
			return nil, err
		}
	}
	return s.Materialize(p.output)
}

func (c *Coordinator) upload(ctx context.Context, job *Job, log logrus.FieldLogger) {
	if c.uploader == nil {
		return
	}
	for i := range job.Outcomes {
		o := &job.Outcomes[i]
		if !o.OK() {
			continue
		}
		loc, err := c.uploader.Put(ctx, path.Join(job.ID, o.FileName(job.Output.Format)), o.Output, job.Output.Format.MimeType())
		if err != nil {
			log.WithField("index", i).WithError(err).Warn("upload failed")
			continue
		}
		o.Location = loc
	}
}

// State is the lifecycle of a job.
type State string

const (
	Pending   State = "pending"
	Running   State = "running"
	Completed State = "completed"
)

// Outcome is the result slot of one item: exactly one of Output and
// Failure is set.
type Outcome struct {
	Index    int             `json:"index"`
	Name     string          `json:"name,omitempty"`
	Output   []byte          `json:"-"`
	Size     int             `json:"size,omitempty"`
	Location string          `json:"location,omitempty"`
	Failure  *imgerr.Failure `json:"failure,omitempty"`
}

// OK reports whether the item succeeded.
func (o Outcome) OK() bool {
	return o.Failure == nil
}

// FileName is the archive and upload name of the output: the zero-padded
// index, the input name without its extension and the output extension.
func (o Outcome) FileName(f codec.Format) string {
	stem := strings.TrimSuffix(path.Base(strings.ReplaceAll(o.Name, "\\", "/")), path.Ext(o.Name))
	if stem == "" || stem == "." || stem == "/" {
		stem = "image"
	}
	return fmt.Sprintf("%03d-%s.%s", o.Index, stem, f)
}

// Job is one batch run.
type Job struct {
	ID        string         `json:"id"`
	Operation string         `json:"operation"`
	Params    imaging.Params `json:"params,omitempty"`
	Output    codec.Options  `json:"output"`
	Outcomes  []Outcome      `json:"outcomes"`

	mu         sync.Mutex
	state      State
	startedAt  time.Time
	finishedAt time.Time
}

func newJob(p *plan, items []Item) *Job {
	j := &Job{
		ID:        uuid.NewString(),
		Operation: p.op,
		Params:    p.params,
		Output:    p.output,
		Outcomes:  make([]Outcome, len(items)),
		state:     Pending,
	}
	for i, item := range items {
		j.Outcomes[i] = Outcome{Index: i, Name: item.Name}
	}
	return j
}

func (j *Job) start() {
	j.mu.Lock()
	j.state = Running
	j.startedAt = time.Now()
	j.mu.Unlock()
}

func (j *Job) finish() {
	j.mu.Lock()
	j.state = Completed
	j.finishedAt = time.Now()
	j.mu.Unlock()
}

// State returns the current lifecycle state.
func (j *Job) State() State {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.state
}

// Duration is the wall time from start to completion.
func (j *Job) Duration() time.Duration {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.finishedAt.Sub(j.startedAt)
}

// Succeeded counts items with output.
func (j *Job) Succeeded() int {
	n := 0
	for _, o := range j.Outcomes {
		if o.OK() {
			n++
		}
	}
	return n
}

// Failed counts items with a failure.
func (j *Job) Failed() int {
	return len(j.Outcomes) - j.Succeeded()
}

// Failures returns the failure records in index order.
func (j *Job) Failures() []imgerr.Failure {
	var out []imgerr.Failure
	for _, o := range j.Outcomes {
		if o.Failure != nil {
			out = append(out, *o.Failure)
		}
	}
	return out
}

// Entry summarizes the job for the job log.
func (j *Job) Entry() joblog.Entry {
	j.mu.Lock()
	started, finished := j.startedAt, j.finishedAt
	j.mu.Unlock()
	return joblog.Entry{
		JobID:      j.ID,
		Operation:  j.Operation,
		Params:     j.Params,
		Total:      len(j.Outcomes),
		Succeeded:  j.Succeeded(),
		Failures:   j.Failures(),
		StartedAt:  started,
		FinishedAt: finished,
	}
}
