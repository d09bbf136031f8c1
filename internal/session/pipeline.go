package session

import (
	"context"
	"sync"

	"github.com/hashicorp/go-multierror"
	"github.com/pkg/errors"

	"github.com/ironsheep/image-studio/internal/dispatch"
	"github.com/ironsheep/image-studio/internal/imaging"
	"github.com/ironsheep/image-studio/internal/imgerr"
)

// ApplyChain runs descs in order, each on the result of the previous one.
// It stops at the first failure; steps committed before it stay committed.
func (s *Session) ApplyChain(ctx context.Context, descs ...imaging.Descriptor) error {
	for i, d := range descs {
		if err := s.ApplyAsync(ctx, d); err != nil {
			return errors.WithMessagef(err, "step %d (%s)", i, d.Name)
		}
	}
	return nil
}

// ApplyBranches runs every descriptor against the same current image in
// parallel. When all succeed each result is pushed as a layer, in argument
// order, and the last one becomes the current image; use MergeLayers to
// combine them. When any branch fails nothing is committed and the error
// lists every failed branch. Operations that manage the layer stack
// themselves (add_layer, merge_layers, collage) cannot run as branches.
func (s *Session) ApplyBranches(ctx context.Context, descs ...imaging.Descriptor) error {
	if len(descs) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	steps := make([]*step, len(descs))
	for i, d := range descs {
		if !s.branchable(d.Name) {
			return imgerr.Invalid("branch %d (%s): operation changes the layer stack and cannot run as a branch", i, d.Name)
		}
		st, err := s.plan(d)
		if err != nil {
			return errors.WithMessagef(err, "branch %d (%s)", i, d.Name)
		}
		steps[i] = st
	}

	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		failure *multierror.Error
	)
	results := make([]*imaging.Picture, len(descs))
	for i := range descs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			out, err := submit(ctx, s, descs[i].Name, steps[i].run)
			if err != nil {
				mu.Lock()
				failure = multierror.Append(failure, errors.WithMessagef(err, "branch %d (%s)", i, descs[i].Name))
				mu.Unlock()
				return
			}
			results[i] = out
		}(i)
	}
	wg.Wait()

	if err := failure.ErrorOrNil(); err != nil {
		return err
	}
	s.picMu.Lock()
	s.layers = append(s.layers, results...)
	s.pic = results[len(results)-1]
	s.picMu.Unlock()
	s.log.WithField("branches", len(descs)).Debug("branches committed")
	return nil
}

// branchable reports whether name commits by replacing the top layer.
func (s *Session) branchable(name string) bool {
	switch name {
	case dispatch.OpAddLayer, dispatch.OpMergeLayers:
		return false
	}
	op, ok := s.reg.Lookup(name)
	return !ok || !op.ResetsLayers
}
