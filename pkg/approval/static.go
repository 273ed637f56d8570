package approval

import (
	"context"
	"fmt"
	"sync"

	"github.com/safareli/http-proxy/pkg/model"
)

// StaticTransport is a scriptable, test-only Transport: canned decisions
// are registered by MethodLabel+PathOrDescription key, mirroring the
// teacher's endpoint-pattern-keyed mock HTTP client.
type StaticTransport struct {
	mu        sync.Mutex
	decisions map[string][]model.ApprovalDecision
	// Requests records every Request call in order, for assertions.
	Requests []Request
}

// NewStaticTransport returns an empty StaticTransport; register decisions
// with WithDecision before use.
func NewStaticTransport() *StaticTransport {
	return &StaticTransport{decisions: map[string][]model.ApprovalDecision{}}
}

func key(methodLabel, pathOrDescription string) string {
	return methodLabel + " " + pathOrDescription
}

// WithDecision queues decision to be returned the next time Request is
// called for methodLabel+pathOrDescription. Multiple queued decisions for
// the same key are returned in FIFO order across calls.
func (t *StaticTransport) WithDecision(methodLabel, pathOrDescription string, decision model.ApprovalDecision) *StaticTransport {
	t.mu.Lock()
	defer t.mu.Unlock()
	k := key(methodLabel, pathOrDescription)
	t.decisions[k] = append(t.decisions[k], decision)
	return t
}

// Request implements Transport.
func (t *StaticTransport) Request(ctx context.Context, req Request) (model.ApprovalDecision, error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	t.Requests = append(t.Requests, req)

	if err := ctx.Err(); err != nil {
		return model.ApprovalDecision{Kind: model.RejectOnce}, nil
	}

	k := key(req.MethodLabel, req.PathOrDescription)
	queue := t.decisions[k]
	if len(queue) == 0 {
		return model.ApprovalDecision{}, fmt.Errorf("static transport: no decision queued for %q", k)
	}
	t.decisions[k] = queue[1:]
	return queue[0], nil
}
