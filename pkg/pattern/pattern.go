// Package pattern implements the two-dialect pattern language used by the
// policy store's grant and rejection lists: HTTP patterns (`METHOD
// pathGlob|*`) and GraphQL patterns (`GRAPHQL query|mutation
// field-expression|*`). Match answers whether a stored pattern matches an
// observed request key.
package pattern

import (
	"fmt"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// graphqlMethodToken is the literal method token that routes a pattern or
// request key to the GraphQL dialect instead of the HTTP one.
const graphqlMethodToken = "GRAPHQL"

// anyVariableName is the only pattern variable name the value matcher
// accepts as a wildcard; any other `$name` is a pattern authoring error.
const anyVariableName = "ANY"

// Match reports whether pattern matches requestKey. Exact string equality
// is checked first as a fast path; everything else dispatches on the
// leading method token. An error is returned when a pattern's value AST
// references an unsupported variable (anything but $ANY) — the spec
// treats this as a diagnostic to surface, not a silent non-match — and
// also when a GraphQL pattern or key field expression cannot be parsed.
func Match(pattern, requestKey string) (bool, error) {
	if pattern == requestKey {
		return true, nil
	}

	patternMethod, patternRest, ok := splitFirstToken(pattern)
	if !ok {
		return false, nil
	}
	keyMethod, keyRest, ok := splitFirstToken(requestKey)
	if !ok {
		return false, nil
	}

	if patternMethod == graphqlMethodToken || keyMethod == graphqlMethodToken {
		if patternMethod != keyMethod {
			return false, nil
		}
		return matchGraphQL(patternRest, keyRest)
	}

	if patternMethod != keyMethod {
		return false, nil
	}
	return matchHTTPPath(patternRest, keyRest), nil
}

func matchHTTPPath(patternPath, keyPath string) bool {
	if patternPath == "*" {
		return true
	}

	patternSegments := strings.Split(patternPath, "/")
	keySegments := strings.Split(keyPath, "/")
	if len(patternSegments) != len(keySegments) {
		return false
	}
	for i, seg := range patternSegments {
		if seg == "*" {
			continue
		}
		if seg != keySegments[i] {
			return false
		}
	}
	return true
}

func matchGraphQL(patternRest, keyRest string) (bool, error) {
	patternOpType, patternFieldExpr, ok := splitFirstToken(patternRest)
	if !ok {
		return false, nil
	}
	keyOpType, keyFieldExpr, ok := splitFirstToken(keyRest)
	if !ok {
		return false, nil
	}
	if patternOpType != keyOpType {
		return false, nil
	}
	if patternFieldExpr == "*" {
		return true, nil
	}

	patternField, err := parseFieldExpr(patternFieldExpr)
	if err != nil {
		return false, fmt.Errorf("parse pattern field expression: %w", err)
	}
	keyField, err := parseFieldExpr(keyFieldExpr)
	if err != nil {
		return false, fmt.Errorf("parse request field expression: %w", err)
	}

	return matchField(patternField, keyField)
}

// parseFieldExpr parses a bare field expression such as
// `createPullRequest(input: {branch: "main", title: $ANY})` by wrapping it
// in an anonymous selection set so gqlparser's query parser can be reused
// without a full operation/schema context.
func parseFieldExpr(expr string) (*ast.Field, error) {
	doc, gqlErr := parser.ParseQuery(&ast.Source{Input: "{" + expr + "}"})
	if gqlErr != nil {
		return nil, gqlErr
	}
	if len(doc.Operations) != 1 || len(doc.Operations[0].SelectionSet) != 1 {
		return nil, fmt.Errorf("field expression must be exactly one field: %q", expr)
	}
	field, ok := doc.Operations[0].SelectionSet[0].(*ast.Field)
	if !ok {
		return nil, fmt.Errorf("field expression is not a plain field: %q", expr)
	}
	return field, nil
}

func matchField(patternField, requestField *ast.Field) (bool, error) {
	if patternField.Name != requestField.Name {
		return false, nil
	}
	if len(patternField.Arguments) != len(requestField.Arguments) {
		return false, nil
	}

	requestArgsByName := make(map[string]*ast.Argument, len(requestField.Arguments))
	for _, arg := range requestField.Arguments {
		requestArgsByName[arg.Name] = arg
	}

	for _, patternArg := range patternField.Arguments {
		requestArg, ok := requestArgsByName[patternArg.Name]
		if !ok {
			return false, nil
		}
		ok, err := matchValue(patternArg.Value, requestArg.Value)
		if err != nil {
			return false, err
		}
		if !ok {
			return false, nil
		}
	}
	return true, nil
}

// matchValue implements the value-AST matching rules from spec §4.1: $ANY
// is a wildcard, any other pattern variable is an error, and otherwise kind
// and value must agree (by literal source text for Int/Float, recursively
// for lists and objects).
func matchValue(patternVal, requestVal *ast.Value) (bool, error) {
	if patternVal.Kind == ast.Variable {
		if patternVal.Raw == anyVariableName {
			return true, nil
		}
		return false, fmt.Errorf("unsupported pattern variable $%s (only $%s is supported)", patternVal.Raw, anyVariableName)
	}

	if isNumericKind(patternVal.Kind) && isNumericKind(requestVal.Kind) {
		return patternVal.Raw == requestVal.Raw, nil
	}
	if patternVal.Kind != requestVal.Kind {
		return false, nil
	}

	switch patternVal.Kind {
	case ast.StringValue, ast.BlockValue, ast.BooleanValue, ast.EnumValue:
		return patternVal.Raw == requestVal.Raw, nil
	case ast.NullValue:
		return true, nil
	case ast.ListValue:
		if len(patternVal.Children) != len(requestVal.Children) {
			return false, nil
		}
		for i, child := range patternVal.Children {
			ok, err := matchValue(child.Value, requestVal.Children[i].Value)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	case ast.ObjectValue:
		if len(patternVal.Children) != len(requestVal.Children) {
			return false, nil
		}
		requestFields := make(map[string]*ast.Value, len(requestVal.Children))
		for _, child := range requestVal.Children {
			requestFields[child.Name] = child.Value
		}
		for _, child := range patternVal.Children {
			requestFieldVal, ok := requestFields[child.Name]
			if !ok {
				return false, nil
			}
			ok, err := matchValue(child.Value, requestFieldVal)
			if err != nil || !ok {
				return false, err
			}
		}
		return true, nil
	default:
		return false, fmt.Errorf("unsupported value kind %v", patternVal.Kind)
	}
}

func isNumericKind(k ast.ValueKind) bool {
	return k == ast.IntValue || k == ast.FloatValue
}

// splitFirstToken splits s on its first space into (token, rest). ok is
// false when s has no space at all (malformed pattern/key).
func splitFirstToken(s string) (token, rest string, ok bool) {
	idx := strings.IndexByte(s, ' ')
	if idx < 0 {
		return "", "", false
	}
	return s[:idx], s[idx+1:], true
}
