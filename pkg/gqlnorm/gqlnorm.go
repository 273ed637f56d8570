// Package gqlnorm normalizes a GraphQL request (or batch of requests) into
// a canonical, deduplicated list of top-level query and mutation fields
// with all variables substituted and all fragments inlined — the shape the
// pattern engine and suggestion engine operate on.
package gqlnorm

import (
	"encoding/json"
	"fmt"
	"net/url"

	"github.com/safareli/http-proxy/pkg/model"
	"github.com/safareli/http-proxy/pkg/pattern"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Request is one GraphQL operation request as received over HTTP, before
// parsing.
type Request struct {
	Query         string
	Variables     map[string]any
	OperationName string
}

// Result is the normalized, deduplicated output of a request or batch.
type Result struct {
	Queries   []model.GraphQLField
	Mutations []model.GraphQLField
}

// httpBody is the JSON shape of a single GraphQL-over-HTTP POST body.
type httpBody struct {
	Query         string         `json:"query"`
	Variables     map[string]any `json:"variables"`
	OperationName string         `json:"operationName"`
}

// ParseBody decodes a GraphQL POST body, which may be a single JSON object
// or a batch (JSON array of objects).
func ParseBody(body []byte) ([]Request, error) {
	trimmed := trimLeadingSpace(body)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var batch []httpBody
		if err := json.Unmarshal(body, &batch); err != nil {
			return nil, fmt.Errorf("decode graphql batch body: %w", err)
		}
		requests := make([]Request, len(batch))
		for i, b := range batch {
			requests[i] = Request{Query: b.Query, Variables: b.Variables, OperationName: b.OperationName}
		}
		return requests, nil
	}

	var single httpBody
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, fmt.Errorf("decode graphql body: %w", err)
	}
	return []Request{{Query: single.Query, Variables: single.Variables, OperationName: single.OperationName}}, nil
}

// ParseQueryParams builds a single Request from a GET request's query
// parameters: `query`, a JSON-encoded `variables`, and `operationName`.
func ParseQueryParams(values url.Values) (Request, error) {
	req := Request{
		Query:         values.Get("query"),
		OperationName: values.Get("operationName"),
	}
	if raw := values.Get("variables"); raw != "" {
		var vars map[string]any
		if err := json.Unmarshal([]byte(raw), &vars); err != nil {
			return Request{}, fmt.Errorf("decode graphql variables: %w", err)
		}
		req.Variables = vars
	}
	return req, nil
}

// Normalize runs every request in requests through normalizeOne, then
// concatenates and deduplicates the resulting fields, first-seen order
// preserved across the whole batch.
func Normalize(requests []Request) (*Result, error) {
	var allQueries, allMutations []model.GraphQLField
	for _, req := range requests {
		queries, mutations, err := normalizeOne(req)
		if err != nil {
			return nil, err
		}
		allQueries = append(allQueries, queries...)
		allMutations = append(allMutations, mutations...)
	}
	return &Result{
		Queries:   dedupFields(allQueries),
		Mutations: dedupFields(allMutations),
	}, nil
}

func normalizeOne(req Request) (queries, mutations []model.GraphQLField, err error) {
	doc, gqlErr := parser.ParseQuery(&ast.Source{Input: req.Query})
	if gqlErr != nil {
		return nil, nil, fmt.Errorf("parse graphql query: %w", gqlErr)
	}

	fragments := make(map[string]*ast.FragmentDefinition, len(doc.Fragments))
	for _, frag := range doc.Fragments {
		fragments[frag.Name] = frag
	}

	ops, err := selectOperations(doc, req.OperationName)
	if err != nil {
		return nil, nil, err
	}

	for _, op := range ops {
		fields, err := flattenFields(op.SelectionSet, fragments)
		if err != nil {
			return nil, nil, err
		}
		for _, field := range fields {
			gf, err := normalizeField(field, req.Variables)
			if err != nil {
				return nil, nil, err
			}
			if op.Operation == ast.Mutation {
				mutations = append(mutations, gf)
			} else {
				// Subscriptions are treated as queries per spec §4.2.5.
				queries = append(queries, gf)
			}
		}
	}
	return queries, mutations, nil
}

func selectOperations(doc *ast.QueryDocument, operationName string) ([]*ast.OperationDefinition, error) {
	if operationName != "" {
		var matched []*ast.OperationDefinition
		for _, op := range doc.Operations {
			if op.Name == operationName {
				matched = append(matched, op)
			}
		}
		if len(matched) == 0 {
			return nil, fmt.Errorf("operation %q not found in document", operationName)
		}
		return matched, nil
	}

	switch len(doc.Operations) {
	case 0:
		return nil, fmt.Errorf("document defines no operations")
	case 1:
		return doc.Operations, nil
	default:
		return nil, fmt.Errorf("operationName is required: document defines multiple operations")
	}
}

// flattenFields walks a selection set, recursively inlining fragment
// spreads and inline fragments, and returns only the resulting plain
// fields — spec §4.2.3/4 require every top-level selection to resolve to a
// field once fragments are inlined.
func flattenFields(selectionSet ast.SelectionSet, fragments map[string]*ast.FragmentDefinition) ([]*ast.Field, error) {
	var out []*ast.Field
	for _, sel := range selectionSet {
		switch s := sel.(type) {
		case *ast.Field:
			out = append(out, s)
		case *ast.FragmentSpread:
			def, ok := fragments[s.Name]
			if !ok {
				return nil, fmt.Errorf("unknown fragment %q", s.Name)
			}
			inner, err := flattenFields(def.SelectionSet, fragments)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		case *ast.InlineFragment:
			inner, err := flattenFields(s.SelectionSet, fragments)
			if err != nil {
				return nil, err
			}
			out = append(out, inner...)
		default:
			return nil, fmt.Errorf("unsupported selection type %T", sel)
		}
	}
	return out, nil
}

func normalizeField(field *ast.Field, variables map[string]any) (model.GraphQLField, error) {
	args := make([]model.Arg, len(field.Arguments))
	for i, arg := range field.Arguments {
		val, err := arg.Value.Value(variables)
		if err != nil {
			return model.GraphQLField{}, fmt.Errorf("evaluate argument %q: %w", arg.Name, err)
		}
		args[i] = model.Arg{Name: arg.Name, Value: normalizeNumbers(val)}
	}
	return model.GraphQLField{Name: field.Name, Args: args}, nil
}

// normalizeNumbers converts gqlparser's int64 IntValue results to float64
// so every JSON number is represented uniformly, recursing through lists
// and objects.
func normalizeNumbers(v any) any {
	switch vv := v.(type) {
	case int64:
		return float64(vv)
	case []any:
		out := make([]any, len(vv))
		for i, e := range vv {
			out[i] = normalizeNumbers(e)
		}
		return out
	case map[string]any:
		out := make(map[string]any, len(vv))
		for k, e := range vv {
			out[k] = normalizeNumbers(e)
		}
		return out
	default:
		return v
	}
}

// dedupFields deduplicates by canonical serialization, keeping first-seen
// order across the batch.
func dedupFields(fields []model.GraphQLField) []model.GraphQLField {
	seen := make(map[string]struct{}, len(fields))
	out := make([]model.GraphQLField, 0, len(fields))
	for _, f := range fields {
		key := pattern.FormatGraphQLKey("query", f)
		if _, ok := seen[key]; ok {
			continue
		}
		seen[key] = struct{}{}
		out = append(out, f)
	}
	return out
}

func trimLeadingSpace(b []byte) []byte {
	i := 0
	for i < len(b) && (b[i] == ' ' || b[i] == '\t' || b[i] == '\n' || b[i] == '\r') {
		i++
	}
	return b[i:]
}
