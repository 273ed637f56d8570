// Package approval defines the ApprovalTransport boundary contract (spec
// §6) and its reference implementations: an interactive CLI transport for
// real operation, and a scriptable static transport for tests.
package approval

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/safareli/http-proxy/pkg/model"
)

// Request describes one pending approval prompt.
type Request struct {
	// ID uniquely identifies this prompt so a transport can later withdraw
	// or amend it if the request is cancelled.
	ID uuid.UUID
	// Host is the upstream host the request targets.
	Host string
	// MethodLabel is the HTTP method for the HTTP sub-flow, or the literal
	// "GRAPHQL" for the GraphQL sub-flow.
	MethodLabel string
	// PathOrDescription is the path-with-query for HTTP, or a rendered
	// field description for GraphQL.
	PathOrDescription string
	// Options is the ordered list of pattern candidates to present,
	// most specific first.
	Options []model.PatternOption
}

// Transport is the ApprovalTransport boundary: it suspends the calling
// goroutine until an operator decides, the bound context is cancelled, or
// its own timeout elapses.
type Transport interface {
	// Request prompts for a decision on req. It must support many
	// concurrent outstanding requests, and must return reject-once when
	// ctx is cancelled or the transport's own timeout elapses.
	Request(ctx context.Context, req Request) (model.ApprovalDecision, error)
}

// ErrUnavailable is returned by a Transport (or observed by a caller with
// a nil Transport) when no approval transport is bound. Per spec §4.7, the
// mediation core maps this to a 403.
var ErrUnavailable = fmt.Errorf("approval transport unavailable")
