package pattern

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/safareli/http-proxy/pkg/model"
)

// Wildcard is the sentinel value an argument's Value may hold to request
// that FormatValue render it as the GraphQL pattern wildcard $ANY instead
// of a literal. It never appears in a normalized request's field — only in
// patterns built by the suggestion engine.
type Wildcard struct{}

// FormatHTTPKey renders the canonical HTTP request key / pattern head:
// `METHOD path`.
func FormatHTTPKey(method, path string) string {
	return method + " " + path
}

// FormatGraphQLKey renders the canonical GraphQL request key / pattern
// field expression: `GRAPHQL opType field(arg: value, ...)`, with no
// parens when the field has no arguments.
func FormatGraphQLKey(opType string, field model.GraphQLField) string {
	if len(field.Args) == 0 {
		return fmt.Sprintf("%s %s %s", graphqlMethodToken, opType, field.Name)
	}
	parts := make([]string, len(field.Args))
	for i, arg := range field.Args {
		parts[i] = arg.Name + ": " + FormatValue(arg.Value)
	}
	return fmt.Sprintf("%s %s %s(%s)", graphqlMethodToken, opType, field.Name, strings.Join(parts, ", "))
}

// FormatValue renders a JSONValue (or a Wildcard sentinel) as a GraphQL
// value literal, matching the syntax parseFieldExpr reads back.
func FormatValue(v model.JSONValue) string {
	switch vv := v.(type) {
	case Wildcard:
		return "$" + anyVariableName
	case nil:
		return "null"
	case bool:
		if vv {
			return "true"
		}
		return "false"
	case string:
		return strconv.Quote(vv)
	case float64:
		return formatNumber(vv)
	case int:
		return strconv.Itoa(vv)
	case []model.JSONValue:
		parts := make([]string, len(vv))
		for i, elem := range vv {
			parts[i] = FormatValue(elem)
		}
		return "[" + strings.Join(parts, ", ") + "]"
	case map[string]model.JSONValue:
		keys := make([]string, 0, len(vv))
		for k := range vv {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		parts := make([]string, len(keys))
		for i, k := range keys {
			parts[i] = k + ": " + FormatValue(vv[k])
		}
		return "{" + strings.Join(parts, ", ") + "}"
	default:
		return fmt.Sprintf("%v", vv)
	}
}

func formatNumber(f float64) string {
	if f == float64(int64(f)) {
		return strconv.FormatInt(int64(f), 10)
	}
	return strconv.FormatFloat(f, 'g', -1, 64)
}
