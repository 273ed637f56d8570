// Package mediator implements the Mediation Core: the per-request state
// machine spec §4.7 describes (Received → Classified → Decided →
// Forwarded|Rejected), dispatching to the HTTP or GraphQL sub-flow and
// reconciling parallel GraphQL field approvals with first-reject
// cancellation.
package mediator

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	proxyerrors "github.com/safareli/http-proxy/pkg/errors"
	"github.com/safareli/http-proxy/pkg/gqlnorm"
	"github.com/safareli/http-proxy/pkg/model"
	"github.com/safareli/http-proxy/pkg/observability/log"
	"github.com/safareli/http-proxy/pkg/observability/metrics"
	"github.com/safareli/http-proxy/pkg/openapiindex"
	"github.com/safareli/http-proxy/pkg/pattern"
	"github.com/safareli/http-proxy/pkg/policystore"
	"github.com/safareli/http-proxy/pkg/secretguard"
	"github.com/safareli/http-proxy/pkg/suggest"

	"github.com/safareli/http-proxy/pkg/approval"
)

// Request is the normalized inbound request the mediator classifies and
// decides on.
type Request struct {
	Host          string
	Method        string
	PathWithQuery string
	Headers       http.Header
	Body          []byte
}

// ForwardRequest is what the mediator hands back to the proxy core once a
// request is Decided→Forwarded: the (possibly rewritten) headers and body
// to send upstream.
type ForwardRequest struct {
	Headers http.Header
	Body    []byte
}

// Mediator wires the Policy Store, OpenAPI index, and approval transport
// together. It carries no mutable state of its own beyond what those
// collaborators own, per the "no global mutable singletons" design note —
// callers construct a Mediator with the collaborators it should use.
type Mediator struct {
	PolicyStore       *policystore.Store
	OpenAPIIndex      *openapiindex.Index
	ApprovalTransport approval.Transport
	Logger            log.Logger
	Metrics           metrics.Metrics
}

func (m *Mediator) logger() log.Logger {
	if m.Logger != nil {
		return m.Logger
	}
	return log.NewNoopLogger()
}

func (m *Mediator) metricsSink() metrics.Metrics {
	if m.Metrics != nil {
		return m.Metrics
	}
	return metrics.NewNoopMetrics()
}

// Mediate runs req through the full state machine and returns either a
// ForwardRequest (Decided→Forwarded) or an error from pkg/errors
// (Decided→Rejected; the error's StatusCode determines the response).
func (m *Mediator) Mediate(ctx context.Context, req Request) (*ForwardRequest, error) {
	start := time.Now()
	decision := "forwarded"
	defer func() {
		m.metricsSink().DistributionMs("mediation_latency", map[string]string{"decision": decision}, time.Since(start))
		m.metricsSink().Increment("requests_mediated", map[string]string{"decision": decision})
		m.logger().Info("mediation decision",
			log.String("host", req.Host),
			log.String("method", req.Method),
			log.String("path", stripQuery(req.PathWithQuery)),
			log.String("decision", decision),
		)
	}()

	secret := m.PolicyStore.FindSecretConfig(req.Host, req.Headers)
	if secret == nil {
		m.logger().Debug("no configured secret found, forwarding as-is", log.String("host", req.Host))
		return &ForwardRequest{Headers: stripHost(req.Headers), Body: req.Body}, nil
	}

	hostConfig := m.PolicyStore.HostConfig(req.Host)
	path := stripQuery(req.PathWithQuery)

	if isGraphQLEndpoint(hostConfig, path) {
		fwd, err := m.graphQLSubFlow(ctx, req, secret)
		if err != nil {
			decision = classifyErr(err)
		}
		return fwd, err
	}

	fwd, err := m.httpSubFlow(ctx, req, secret, hostConfig, path)
	if err != nil {
		decision = classifyErr(err)
	}
	return fwd, err
}

func classifyErr(err error) string {
	switch err.(type) {
	case *proxyerrors.PolicyRejectionError:
		return "rejected"
	case *proxyerrors.MalformedInputError:
		return "malformed"
	default:
		return "error"
	}
}

func isGraphQLEndpoint(cfg *model.HostConfig, path string) bool {
	if cfg == nil {
		return false
	}
	for _, ep := range cfg.GraphqlEndpoints {
		if ep == path {
			return true
		}
	}
	return false
}

// httpSubFlow implements spec §4.7's HTTP sub-flow.
func (m *Mediator) httpSubFlow(ctx context.Context, req Request, secret *model.SecretConfig, hostConfig *model.HostConfig, path string) (*ForwardRequest, error) {
	requestKey := pattern.FormatHTTPKey(req.Method, path)

	if p, diagnostics := m.PolicyStore.MatchingRejection(secret, requestKey); p != "" {
		m.logger().Info("permanent rejection matched", log.String("pattern", p))
		return nil, proxyerrors.NewPolicyRejectionError(fmt.Sprintf("request matches rejection pattern %q", p), fmt.Errorf("%s", requestKey))
	} else {
		m.logPatternDiagnostics(diagnostics)
	}

	if p, diagnostics := m.PolicyStore.MatchingGrant(secret, requestKey); p != "" {
		m.logPatternDiagnostics(diagnostics)
		m.logger().Info("permanent grant matched", log.String("pattern", p))
		return m.substituteAndForward(req, secret)
	} else {
		m.logPatternDiagnostics(diagnostics)
	}

	if m.ApprovalTransport == nil {
		return nil, proxyerrors.NewPolicyRejectionError("no approval transport bound", approval.ErrUnavailable)
	}

	var template *model.OpenAPIPath
	if hostConfig != nil && hostConfig.OpenAPISpec != nil && m.OpenAPIIndex != nil {
		t, ok, err := m.OpenAPIIndex.Lookup(ctx, req.Host, hostConfig.OpenAPISpec, req.Method, path)
		if err != nil {
			m.logger().Warn("openapi lookup failed", log.String("host", req.Host), log.Err(err))
		} else if ok {
			template = t
		}
	}

	options := suggest.HTTP(req.Method, req.PathWithQuery, template)
	decision, err := m.ApprovalTransport.Request(ctx, approval.Request{
		ID:                uuid.New(),
		Host:              req.Host,
		MethodLabel:       req.Method,
		PathOrDescription: req.PathWithQuery,
		Options:           options,
	})
	if err != nil {
		return nil, proxyerrors.NewPolicyRejectionError("approval transport error", err)
	}

	return m.applyDecision(ctx, req, secret, decision)
}

func (m *Mediator) applyDecision(ctx context.Context, req Request, secret *model.SecretConfig, decision model.ApprovalDecision) (*ForwardRequest, error) {
	switch decision.Kind {
	case model.AllowOnce:
		return m.substituteAndForward(req, secret)
	case model.AllowForever:
		if err := m.PolicyStore.AddGrant(ctx, secret, decision.Pattern); err != nil {
			return nil, proxyerrors.NewConfigurationError("persist grant", err)
		}
		m.logger().Info("approved forever", log.String("pattern", decision.Pattern))
		return m.substituteAndForward(req, secret)
	case model.RejectForever:
		if err := m.PolicyStore.AddRejection(ctx, secret, decision.Pattern); err != nil {
			return nil, proxyerrors.NewConfigurationError("persist rejection", err)
		}
		m.logger().Info("rejected forever", log.String("pattern", decision.Pattern))
		return nil, proxyerrors.NewPolicyRejectionError("operator rejected and persisted pattern", fmt.Errorf("%s", decision.Pattern))
	default: // RejectOnce, or any unrecognized kind treated as a rejection
		if decision.TimedOut {
			m.logger().Info("approval timeout", log.String("host", req.Host))
			return nil, proxyerrors.NewPolicyRejectionError("approval timeout", fmt.Errorf("decision=%s", decision.Kind))
		}
		return nil, proxyerrors.NewPolicyRejectionError("operator rejected", fmt.Errorf("decision=%s", decision.Kind))
	}
}

func (m *Mediator) substituteAndForward(req Request, secret *model.SecretConfig) (*ForwardRequest, error) {
	real, ok := m.PolicyStore.ResolveRealSecret(secret)
	if !ok {
		return nil, proxyerrors.NewConfigurationError("no real secret configured", fmt.Errorf("env var %q is unset", secret.SecretEnvVarName))
	}
	rewritten := secretguard.Rewrite(req.Headers, secret.FakeSecret, real)
	return &ForwardRequest{Headers: rewritten, Body: req.Body}, nil
}

// pendingField is one top-level GraphQL field still awaiting an approval
// decision.
type pendingField struct {
	OpType string
	Field  model.GraphQLField
}

// graphQLSubFlow implements spec §4.7's GraphQL sub-flow.
func (m *Mediator) graphQLSubFlow(ctx context.Context, req Request, secret *model.SecretConfig) (*ForwardRequest, error) {
	requests, err := m.parseGraphQL(req)
	if err != nil {
		return nil, proxyerrors.NewMalformedInputError("parse graphql request", err)
	}

	result, err := gqlnorm.Normalize(requests)
	if err != nil {
		return nil, proxyerrors.NewMalformedInputError("normalize graphql request", err)
	}

	all := make([]pendingField, 0, len(result.Queries)+len(result.Mutations))
	for _, f := range result.Queries {
		all = append(all, pendingField{OpType: "query", Field: f})
	}
	for _, f := range result.Mutations {
		all = append(all, pendingField{OpType: "mutation", Field: f})
	}

	for _, pf := range all {
		key := pattern.FormatGraphQLKey(pf.OpType, pf.Field)
		p, diagnostics := m.PolicyStore.MatchingRejection(secret, key)
		m.logPatternDiagnostics(diagnostics)
		if p != "" {
			m.logger().Info("permanent rejection matched", log.String("pattern", p))
			return nil, proxyerrors.NewPolicyRejectionError(fmt.Sprintf("field matches rejection pattern %q", p), fmt.Errorf("%s", key))
		}
	}

	var needsApproval []pendingField
	for _, pf := range all {
		key := pattern.FormatGraphQLKey(pf.OpType, pf.Field)
		p, diagnostics := m.PolicyStore.MatchingGrant(secret, key)
		m.logPatternDiagnostics(diagnostics)
		if p == "" {
			needsApproval = append(needsApproval, pf)
		}
	}

	if len(needsApproval) == 0 {
		return m.substituteAndForward(req, secret)
	}

	if m.ApprovalTransport == nil {
		return nil, proxyerrors.NewPolicyRejectionError("no approval transport bound", approval.ErrUnavailable)
	}

	m.metricsSink().Distribution("graphql_fields_requiring_approval", nil, float64(len(needsApproval)))
	results, rejectedIdx := m.graphqlParallelRound(ctx, req.Host, needsApproval)

	if rejectedIdx >= 0 {
		rejected := results[rejectedIdx]
		if rejected.Decision.Kind == model.RejectForever {
			if err := m.PolicyStore.AddRejection(ctx, secret, rejected.Decision.Pattern); err != nil {
				return nil, proxyerrors.NewConfigurationError("persist rejection", err)
			}
			m.logger().Info("rejected forever", log.String("pattern", rejected.Decision.Pattern))
		}
		message := fmt.Sprintf("graphql field %s %s rejected", rejected.OpType, rejected.Field.Name)
		if rejected.Decision.TimedOut {
			m.logger().Info("approval timeout", log.String("host", req.Host))
			message = fmt.Sprintf("graphql field %s %s approval timeout", rejected.OpType, rejected.Field.Name)
		}
		return nil, proxyerrors.NewPolicyRejectionError(
			message,
			fmt.Errorf("%s", pattern.FormatGraphQLKey(rejected.OpType, rejected.Field)),
		)
	}

	for _, r := range results {
		if r.Decision.Kind == model.AllowForever {
			if err := m.PolicyStore.AddGrant(ctx, secret, r.Decision.Pattern); err != nil {
				return nil, proxyerrors.NewConfigurationError("persist grant", err)
			}
			m.logger().Info("approved forever", log.String("pattern", r.Decision.Pattern))
		}
	}

	return m.substituteAndForward(req, secret)
}

func (m *Mediator) parseGraphQL(req Request) ([]gqlnorm.Request, error) {
	if req.Method == http.MethodGet {
		u, err := url.Parse(req.PathWithQuery)
		if err != nil {
			return nil, fmt.Errorf("parse query string: %w", err)
		}
		one, err := gqlnorm.ParseQueryParams(u.Query())
		if err != nil {
			return nil, err
		}
		return []gqlnorm.Request{one}, nil
	}
	return gqlnorm.ParseBody(req.Body)
}

// fieldResult pairs a pending field with the decision its approval request
// resolved to.
type fieldResult struct {
	OpType   string
	Field    model.GraphQLField
	Decision model.ApprovalDecision
}

// graphqlParallelRound issues one approval request per pending field
// concurrently. The first rejecting decision to arrive cancels every other
// outstanding request via roundCtx; it returns every field's result plus
// the index of the first rejection, or -1 if none rejected. Per the
// partial-grant-persistence design decision, callers must not commit any
// allow-forever grant from this round unless rejectedIdx is -1 — grants
// are buffered here and only surfaced to the caller once every sibling has
// resolved to a non-rejecting outcome.
func (m *Mediator) graphqlParallelRound(ctx context.Context, host string, pending []pendingField) ([]fieldResult, int) {
	roundCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	results := make([]fieldResult, len(pending))
	var mu sync.Mutex
	rejectedIdx := -1
	var wg sync.WaitGroup

	for i, pf := range pending {
		wg.Add(1)
		go func(i int, pf pendingField) {
			defer wg.Done()

			options := suggest.GraphQL(pf.OpType, pf.Field)
			description := strings.TrimPrefix(pattern.FormatGraphQLKey(pf.OpType, pf.Field), "GRAPHQL ")
			decision, err := m.ApprovalTransport.Request(roundCtx, approval.Request{
				ID:                uuid.New(),
				Host:              host,
				MethodLabel:       "GRAPHQL",
				PathOrDescription: description,
				Options:           options,
			})
			if err != nil {
				decision = model.ApprovalDecision{
					Kind:     model.RejectOnce,
					TimedOut: errors.Is(err, context.DeadlineExceeded),
				}
			}

			mu.Lock()
			results[i] = fieldResult{OpType: pf.OpType, Field: pf.Field, Decision: decision}
			if decision.IsRejection() && rejectedIdx == -1 {
				rejectedIdx = i
				cancel()
			}
			mu.Unlock()
		}(i, pf)
	}

	wg.Wait()
	return results, rejectedIdx
}

// logPatternDiagnostics surfaces pattern.Match errors (unsupported pattern
// variables, per spec §4.8) without aborting the scan that produced them.
func (m *Mediator) logPatternDiagnostics(diagnostics []error) {
	for _, err := range diagnostics {
		m.logger().Warn("pattern diagnostic", log.Err(err))
	}
}

func stripHost(headers http.Header) http.Header {
	out := make(http.Header, len(headers))
	for k, v := range headers {
		if strings.EqualFold(k, "Host") {
			continue
		}
		out[k] = v
	}
	return out
}

func stripQuery(pathWithQuery string) string {
	if i := strings.IndexByte(pathWithQuery, '?'); i >= 0 {
		return pathWithQuery[:i]
	}
	return pathWithQuery
}
