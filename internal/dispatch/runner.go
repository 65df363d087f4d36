package dispatch

import (
	"context"
	"errors"
	"sync"

	log "github.com/sirupsen/logrus"
)

var (
	// ErrRunnerClosed is returned by Start after Shutdown.
	ErrRunnerClosed = errors.New("runner is shutting down")
	ErrRunNotFound  = errors.New("run not found or already finished")
	ErrNotRunOwner  = errors.New("run belongs to another user")
)

type activeRun struct {
	owner  string
	cancel context.CancelFunc
}

// Runner executes runs in background goroutines and can cancel them.
type Runner struct {
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup

	mu     sync.Mutex
	active map[string]activeRun
	closed bool
}

// NewRunner creates a Runner whose runs live until they finish, are
// cancelled, or Shutdown is called.
func NewRunner() *Runner {
	ctx, cancel := context.WithCancel(context.Background())
	return &Runner{ctx: ctx, cancel: cancel, active: make(map[string]activeRun)}
}

// Start executes run in a new goroutine. done, when non-nil, receives the summary.
func (r *Runner) Start(run *Run, done func(Summary)) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return ErrRunnerClosed
	}

	ctx, cancel := context.WithCancel(r.ctx)
	r.active[run.ID] = activeRun{owner: run.Request.Actor.ID, cancel: cancel}
	r.wg.Add(1)

	go func() {
		defer r.wg.Done()
		defer func() {
			r.mu.Lock()
			delete(r.active, run.ID)
			r.mu.Unlock()
			cancel()
		}()
		defer func() {
			if rec := recover(); rec != nil {
				log.Errorf("Run %s panicked: %v", run.ID, rec)
			}
		}()

		summary := run.Execute(ctx)
		if done != nil {
			done(summary)
		}
	}()
	return nil
}

// Cancel stops the run with the given id on behalf of actorID. Only the
// actor who started a run may cancel it; an empty actorID cancels any run.
func (r *Runner) Cancel(id, actorID string) error {
	r.mu.Lock()
	run, ok := r.active[id]
	r.mu.Unlock()
	if !ok {
		return ErrRunNotFound
	}
	if actorID != "" && actorID != run.owner {
		return ErrNotRunOwner
	}
	log.Infof("Cancelling run %s", id)
	run.cancel()
	return nil
}

// Active returns the ids of runs still executing.
func (r *Runner) Active() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	ids := make([]string, 0, len(r.active))
	for id := range r.active {
		ids = append(ids, id)
	}
	return ids
}

// Shutdown refuses new runs, cancels the active ones and waits for them to
// wind down (including their audit and report) or for ctx to expire.
func (r *Runner) Shutdown(ctx context.Context) error {
	r.mu.Lock()
	r.closed = true
	r.mu.Unlock()
	r.cancel()

	finished := make(chan struct{})
	go func() {
		r.wg.Wait()
		close(finished)
	}()

	select {
	case <-finished:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
