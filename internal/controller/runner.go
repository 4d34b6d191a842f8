package controller

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Runner executes turns on a bounded worker pool while keeping turns for the
// same conversation strictly serialized.
type Runner struct {
	controller *Controller
	group      *errgroup.Group
	groupCtx   context.Context

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

// NewRunner builds a runner over the controller with at most workers
// concurrent turns.
func NewRunner(ctx context.Context, c *Controller, workers int) *Runner {
	g, gctx := errgroup.WithContext(ctx)
	if workers <= 0 {
		workers = 4
	}
	g.SetLimit(workers)
	return &Runner{
		controller: c,
		group:      g,
		groupCtx:   gctx,
		locks:      map[string]*sync.Mutex{},
	}
}

func (r *Runner) lockFor(conversationID string) *sync.Mutex {
	r.mu.Lock()
	defer r.mu.Unlock()
	l, ok := r.locks[conversationID]
	if !ok {
		l = &sync.Mutex{}
		r.locks[conversationID] = l
	}
	return l
}

// Submit schedules a turn. The done callback receives the turn outcome once
// it completes; turns for the same conversation never overlap.
func (r *Runner) Submit(in *TurnInput, done func(*TurnOutput, error)) {
	r.group.Go(func() error {
		l := r.lockFor(in.ConversationID)
		l.Lock()
		defer l.Unlock()
		out, err := r.controller.Turn(r.groupCtx, in)
		if done != nil {
			done(out, err)
		}
		return nil
	})
}

// Wait blocks until every submitted turn has finished.
func (r *Runner) Wait() error {
	return r.group.Wait()
}
