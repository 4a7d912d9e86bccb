package utils

import (
	"context"
	"sync"

	goutils "go.viam.com/utils"
)

// StoppableWorkers is a set of goroutines sharing one context that is cancelled by Stop.
type StoppableWorkers struct {
	mu     sync.Mutex
	ctx    context.Context
	cancel context.CancelFunc
	active sync.WaitGroup
}

// NewStoppableWorkers starts each function in its own goroutine.
func NewStoppableWorkers(funcs ...func(context.Context)) *StoppableWorkers {
	ctx, cancel := context.WithCancel(context.Background())
	sw := &StoppableWorkers{ctx: ctx, cancel: cancel}
	sw.Add(funcs...)
	return sw
}

// Add starts more workers. It does nothing once Stop has been called.
func (sw *StoppableWorkers) Add(funcs ...func(context.Context)) {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	if sw.ctx.Err() != nil {
		return
	}
	sw.active.Add(len(funcs))
	for _, f := range funcs {
		f := f
		goutils.PanicCapturingGo(func() {
			defer sw.active.Done()
			f(sw.ctx)
		})
	}
}

// Stop cancels the workers' context and waits for all of them to return.
func (sw *StoppableWorkers) Stop() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	sw.cancel()
	sw.active.Wait()
}

// Context returns the context the workers watch.
func (sw *StoppableWorkers) Context() context.Context {
	return sw.ctx
}
