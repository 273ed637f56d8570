// Package suggest implements the Suggestion Engine: from an observed
// request (plus, for HTTP, a matched OpenAPI path template) it emits an
// ordered list of pattern candidates from most specific to catch-all,
// generalizing right-to-left on the theory that trailing identifiers
// (row IDs, run IDs) are the most variable part of a request shape.
package suggest

import (
	"fmt"
	"strings"

	"github.com/safareli/http-proxy/pkg/model"
	"github.com/safareli/http-proxy/pkg/pattern"
)

// HTTP builds the suggestion list for an HTTP request. template may be nil
// when the host has no OpenAPI document or no template matched the
// concrete path; in that case only the exact pattern and the catch-all are
// emitted.
func HTTP(method, concretePathWithQuery string, template *model.OpenAPIPath) []model.PatternOption {
	concretePath := stripQuery(concretePathWithQuery)

	seen := map[string]struct{}{}
	var options []model.PatternOption

	add := func(p, description string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		options = append(options, model.PatternOption{Pattern: p, Description: description})
	}

	add(pattern.FormatHTTPKey(method, concretePath), "exact request")

	if template != nil {
		// Split the same way the index splits templates (empty segments
		// discarded) so parameter positions line up with the concrete path.
		concreteSegments := splitSegments(concretePath)
		paramPositions := make([]int, 0, len(template.Segments))
		for i, seg := range template.Segments {
			if seg.IsParameter {
				paramPositions = append(paramPositions, i)
			}
		}

		for i := len(paramPositions) - 1; i >= 0; i-- {
			segments := append([]string(nil), concreteSegments...)
			for _, pos := range paramPositions[i:] {
				if pos < len(segments) {
					segments[pos] = "*"
				}
			}
			generalized := "/" + strings.Join(segments, "/")
			add(pattern.FormatHTTPKey(method, generalized), fmt.Sprintf("matches template %s with %d parameter(s) generalized", template.Template, len(paramPositions)-i))
		}
	}

	add(pattern.FormatHTTPKey(method, "*"), fmt.Sprintf("any %s request to this host", method))

	return options
}

// GraphQL builds the suggestion list for a single GraphQL field.
func GraphQL(opType string, field model.GraphQLField) []model.PatternOption {
	seen := map[string]struct{}{}
	var options []model.PatternOption

	add := func(p, description string) {
		if _, ok := seen[p]; ok {
			return
		}
		seen[p] = struct{}{}
		options = append(options, model.PatternOption{Pattern: p, Description: description})
	}

	add(pattern.FormatGraphQLKey(opType, field), "exact field and arguments")

	n := len(field.Args)
	for i := n - 1; i >= 0; i-- {
		generalized := model.GraphQLField{Name: field.Name, Args: make([]model.Arg, n)}
		copy(generalized.Args, field.Args)
		for j := i; j < n; j++ {
			generalized.Args[j] = model.Arg{Name: field.Args[j].Name, Value: pattern.Wildcard{}}
		}
		add(pattern.FormatGraphQLKey(opType, generalized), fmt.Sprintf("%s with %d argument(s) generalized", field.Name, n-i))
	}

	add(fmt.Sprintf("GRAPHQL %s *", opType), fmt.Sprintf("any %s operation to this host", opType))

	return options
}

func stripQuery(p string) string {
	if i := strings.IndexByte(p, '?'); i >= 0 {
		return p[:i]
	}
	return p
}

func splitSegments(p string) []string {
	parts := strings.Split(p, "/")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if part == "" {
			continue
		}
		out = append(out, part)
	}
	return out
}
