package dispatch

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/semaphore"
)

// ErrClosed is returned for work submitted after Close.
var ErrClosed = errors.New("dispatch: pool closed")

// Pool runs tasks on at most size goroutines at a time. Tasks beyond that
// wait for a slot; a task whose context ends while waiting never runs.
type Pool struct {
	name string
	size int
	sem  *semaphore.Weighted
	log  logrus.FieldLogger

	mu     sync.RWMutex
	closed bool
	wg     sync.WaitGroup

	running int64
	waiting int64
	done    int64
}

// PoolStats is a point-in-time view of a pool.
type PoolStats struct {
	Name      string `json:"name"`
	Size      int    `json:"size"`
	Running   int64  `json:"running"`
	Waiting   int64  `json:"waiting"`
	Completed int64  `json:"completed"`
}

// NewPool returns a pool with size slots (at least one).
func NewPool(name string, size int, log logrus.FieldLogger) *Pool {
	if size < 1 {
		size = 1
	}
	return &Pool{
		name: name,
		size: size,
		sem:  semaphore.NewWeighted(int64(size)),
		log:  log.WithField("pool", name),
	}
}

// Size returns the number of slots.
func (p *Pool) Size() int {
	return p.size
}

// Go schedules task and returns immediately. task receives nil once it holds
// a slot, or the context error if ctx ended first; either way it is called
// exactly once. Go fails only when the pool is closed.
func (p *Pool) Go(ctx context.Context, task func(err error)) error {
	p.mu.RLock()
	if p.closed {
		p.mu.RUnlock()
		return ErrClosed
	}
	p.wg.Add(1)
	p.mu.RUnlock()

	atomic.AddInt64(&p.waiting, 1)
	go func() {
		defer p.wg.Done()
		err := p.sem.Acquire(ctx, 1)
		atomic.AddInt64(&p.waiting, -1)
		if err != nil {
			task(err)
			return
		}
		atomic.AddInt64(&p.running, 1)
		defer func() {
			atomic.AddInt64(&p.running, -1)
			atomic.AddInt64(&p.done, 1)
			p.sem.Release(1)
		}()
		task(nil)
	}()
	return nil
}

// Stats reports current occupancy.
func (p *Pool) Stats() PoolStats {
	return PoolStats{
		Name:      p.name,
		Size:      p.size,
		Running:   atomic.LoadInt64(&p.running),
		Waiting:   atomic.LoadInt64(&p.waiting),
		Completed: atomic.LoadInt64(&p.done),
	}
}

// Close rejects new work and waits for queued and running tasks to finish,
// or for ctx to end.
func (p *Pool) Close(ctx context.Context) error {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()

	drained := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(drained)
	}()
	select {
	case <-drained:
		p.log.Debug("pool drained")
		return nil
	case <-ctx.Done():
		st := p.Stats()
		p.log.WithFields(logrus.Fields{"running": st.Running, "waiting": st.Waiting}).Warn("pool drain interrupted")
		return errors.Wrapf(ctx.Err(), "draining %s pool", p.name)
	}
}
