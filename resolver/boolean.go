package resolver

import (
	"strings"

	"github.com/hashicorp/hcl/v2"
	"github.com/hashicorp/hcl/v2/hclsyntax"
	"github.com/zclconf/go-cty/cty"
	"github.com/zclconf/go-cty/cty/gocty"

	"github.com/coreason/maco/types"
)

// EvaluateBoolean evaluates a boolean-valued condition expression such as
// "{{ analyze.score > 50 }}" against the node-output universe. Any failure
// (parse error, undefined reference, non-boolean result) yields false.
func EvaluateBoolean(expression string, outputs types.Data) bool {
	inner := strings.TrimSpace(expression)
	inner = strings.TrimPrefix(inner, "{{")
	inner = strings.TrimSuffix(inner, "}}")
	inner = strings.TrimSpace(inner)
	if inner == "" {
		return false
	}

	expr, diags := hclsyntax.ParseExpression([]byte(inner), "condition", hcl.InitialPos)
	if diags.HasErrors() {
		return false
	}

	val, diags := expr.Value(evalContext(outputs))
	if diags.HasErrors() {
		return false
	}
	if val.Type() != cty.Bool || val.IsNull() || !val.IsKnown() {
		return false
	}
	return val.True()
}

func evalContext(outputs types.Data) *hcl.EvalContext {
	vars := make(map[string]cty.Value, len(outputs))
	for id, output := range outputs {
		v, ok := toCty(output)
		if !ok {
			continue
		}
		vars[id] = v
	}
	return &hcl.EvalContext{Variables: vars}
}

// toCty converts an arbitrary node output into a cty value. Values with no
// cty representation are dropped from the condition universe, which makes
// references to them evaluate to false.
func toCty(v any) (cty.Value, bool) {
	switch val := v.(type) {
	case nil:
		return cty.NullVal(cty.DynamicPseudoType), true
	case bool:
		return cty.BoolVal(val), true
	case string:
		return cty.StringVal(val), true
	case int:
		return cty.NumberIntVal(int64(val)), true
	case int32:
		return cty.NumberIntVal(int64(val)), true
	case int64:
		return cty.NumberIntVal(val), true
	case float32:
		return cty.NumberFloatVal(float64(val)), true
	case float64:
		return cty.NumberFloatVal(val), true
	case types.Data:
		return mapToCty(val)
	case map[string]any:
		return mapToCty(val)
	case []any:
		return sliceToCty(val)
	case *types.AgentResponse:
		if val == nil {
			return cty.NullVal(cty.DynamicPseudoType), true
		}
		return mapToCty(map[string]any{"content": val.Content})
	}

	ty, err := gocty.ImpliedType(v)
	if err != nil {
		return cty.NilVal, false
	}
	ctyVal, err := gocty.ToCtyValue(v, ty)
	if err != nil {
		return cty.NilVal, false
	}
	return ctyVal, true
}

func mapToCty(m map[string]any) (cty.Value, bool) {
	if len(m) == 0 {
		return cty.EmptyObjectVal, true
	}
	attrs := make(map[string]cty.Value, len(m))
	for k, v := range m {
		cv, ok := toCty(v)
		if !ok {
			continue
		}
		attrs[k] = cv
	}
	if len(attrs) == 0 {
		return cty.EmptyObjectVal, true
	}
	return cty.ObjectVal(attrs), true
}

func sliceToCty(items []any) (cty.Value, bool) {
	if len(items) == 0 {
		return cty.EmptyTupleVal, true
	}
	vals := make([]cty.Value, 0, len(items))
	for _, item := range items {
		cv, ok := toCty(item)
		if !ok {
			return cty.NilVal, false
		}
		vals = append(vals, cv)
	}
	return cty.TupleVal(vals), true
}
