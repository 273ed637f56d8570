package main

import (
	"context"
	"sync"
)

// serverGroup runs the proxy's independent listeners (plaintext, TLS,
// control plane) concurrently and cancels the others the instant any one
// exits, the same shared-cancellation shape pkg/mediator uses to abort
// sibling GraphQL approvals on the first rejection.
type serverGroup struct {
	fns []func(context.Context) error
}

func newServerGroup(parent context.Context) (*serverGroup, context.Context) {
	return &serverGroup{}, parent
}

func (g *serverGroup) add(_ string, fn func(context.Context) error) {
	g.fns = append(g.fns, fn)
}

func (g *serverGroup) wait(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	errCh := make(chan error, len(g.fns))
	var wg sync.WaitGroup
	for _, fn := range g.fns {
		wg.Add(1)
		go func(fn func(context.Context) error) {
			defer wg.Done()
			errCh <- fn(ctx)
		}(fn)
	}

	go func() {
		wg.Wait()
		close(errCh)
	}()

	var firstErr error
	for err := range errCh {
		if err != nil && firstErr == nil {
			firstErr = err
		}
		cancel()
	}
	return firstErr
}
