// Package dispatch routes operations to execution contexts.
//
// A static [Strategy] table classifies every operation as Inline, Light or
// Heavy. Inline work runs on the caller's goroutine; Light and Heavy work is
// handed to one of two bounded pools owned by a [Dispatcher] and observed
// through a [Future]. Worker panics are recovered into TransformFailure, so
// a faulty operation never takes a pool down.
package dispatch

import (
	"context"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/sirupsen/logrus"

	"github.com/ironsheep/image-studio/internal/config"
	"github.com/ironsheep/image-studio/internal/imgerr"
)

// Dispatcher owns the light and heavy pools. It is created once per process
// and closed on shutdown.
type Dispatcher struct {
	strategy     Strategy
	light        *Pool
	heavy        *Pool
	heavyTimeout time.Duration
	log          logrus.FieldLogger
}

// Stats reports both pools.
type Stats struct {
	Light PoolStats `json:"light"`
	Heavy PoolStats `json:"heavy"`
}

// New builds a dispatcher sized from cfg.
func New(cfg config.Pools, strategy Strategy, log logrus.FieldLogger) *Dispatcher {
	log = log.WithField("component", "dispatch")
	d := &Dispatcher{
		strategy:     strategy,
		light:        NewPool("light", cfg.LightWorkers(), log),
		heavy:        NewPool("heavy", cfg.HeavyWorkers(), log),
		heavyTimeout: cfg.HeavyTimeout,
		log:          log,
	}
	log.WithFields(logrus.Fields{"light": d.light.Size(), "heavy": d.heavy.Size()}).Debug("pools started")
	return d
}

// Strategy returns the classification table.
func (d *Dispatcher) Strategy() Strategy {
	return d.strategy
}

// Classify looks name up in the strategy table.
func (d *Dispatcher) Classify(name string) (Weight, error) {
	return d.strategy.Classify(name)
}

// Stats reports pool occupancy.
func (d *Dispatcher) Stats() Stats {
	return Stats{Light: d.light.Stats(), Heavy: d.heavy.Stats()}
}

// Close stops both pools, draining in-flight work until ctx ends.
func (d *Dispatcher) Close(ctx context.Context) error {
	var result *multierror.Error
	if err := d.light.Close(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	if err := d.heavy.Close(ctx); err != nil {
		result = multierror.Append(result, err)
	}
	return result.ErrorOrNil()
}

func (d *Dispatcher) pool(w Weight) *Pool {
	if w == Heavy {
		return d.heavy
	}
	return d.light
}

// Future is the pending result of a submitted task.
type Future[T any] struct {
	op      string
	done    chan struct{}
	val     T
	err     error
	timeout time.Duration
}

func newFuture[T any](op string) *Future[T] {
	return &Future[T]{op: op, done: make(chan struct{})}
}

func (f *Future[T]) resolve(v T, err error) {
	f.val, f.err = v, err
	close(f.done)
}

// Done is closed once the result is available.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Await blocks until the task finishes or ctx ends. An abandoned task still
// runs to completion; its result is dropped. A context that ends first
// yields a TransformFailure wrapping the context error.
func (f *Future[T]) Await(ctx context.Context) (T, error) {
	if f.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, f.timeout)
		defer cancel()
	}
	select {
	case <-f.done:
		return f.val, f.err
	default:
	}
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, imgerr.Aborted(f.op, ctx.Err())
	}
}

// Submit runs fn according to weight and returns immediately. Inline work
// has already finished when Submit returns. op names the work in errors and
// logs.
func Submit[T any](ctx context.Context, d *Dispatcher, w Weight, op string, fn func() (T, error)) *Future[T] {
	f := newFuture[T](op)
	if w == Inline {
		f.resolve(run(op, fn))
		return f
	}
	if w == Heavy {
		f.timeout = d.heavyTimeout
	}

	err := d.pool(w).Go(ctx, func(err error) {
		if err != nil {
			var zero T
			f.resolve(zero, imgerr.Aborted(op, err))
			return
		}
		v, err := run(op, fn)
		if err != nil && !imgerr.IsClientError(err) {
			d.log.WithFields(logrus.Fields{"op": op, "weight": w.String()}).WithError(err).Debug("task failed")
		}
		f.resolve(v, err)
	})
	if err != nil {
		var zero T
		f.resolve(zero, imgerr.Aborted(op, err))
	}
	return f
}

// SubmitOp classifies op with the dispatcher's strategy and submits it.
func SubmitOp[T any](ctx context.Context, d *Dispatcher, op string, fn func() (T, error)) *Future[T] {
	w, err := d.Classify(op)
	if err != nil {
		f := newFuture[T](op)
		var zero T
		f.resolve(zero, err)
		return f
	}
	return Submit(ctx, d, w, op, fn)
}

// run calls fn, turning a panic into a TransformFailure.
func run[T any](op string, fn func() (T, error)) (v T, err error) {
	defer func() {
		if r := recover(); r != nil {
			var zero T
			v, err = zero, imgerr.FromPanic(op, r)
		}
	}()
	return fn()
}
