// Package resolver rewrites {{ node_id.path }} references inside node
// configuration against the outputs of previously completed nodes.
//
// Failure handling is deliberately asymmetric: a string template that cannot
// be resolved is left untouched so the broken reference stays visible, while
// a boolean condition that cannot be evaluated degrades to false so a routing
// decision never crashes the run.
package resolver

import (
	"reflect"
	"regexp"
	"strings"
	"unicode"

	"github.com/coreason/maco/types"
	"github.com/coreason/maco/utils"
)

var (
	templateRe = regexp.MustCompile(`\{\{\s*([\w\-]+(?:\.[\w\-]+)*)\s*\}\}`)
	exactRe    = regexp.MustCompile(`^\{\{\s*([\w\-]+(?:\.[\w\-]+)*)\s*\}\}$`)
)

// Resolve walks the config tree and rewrites every string value. The input
// config is not mutated.
func Resolve(config types.Data, outputs types.Data) types.Data {
	resolved := make(types.Data, len(config))
	for k, v := range config {
		resolved[k] = resolveValue(v, outputs)
	}
	return resolved
}

func resolveValue(val any, outputs types.Data) any {
	switch v := val.(type) {
	case string:
		return resolveString(v, outputs)
	case types.Data:
		return Resolve(v, outputs)
	case map[string]any:
		return map[string]any(Resolve(types.Data(v), outputs))
	case []any:
		items := make([]any, len(v))
		for i, item := range v {
			items[i] = resolveValue(item, outputs)
		}
		return items
	}
	return val
}

func resolveString(s string, outputs types.Data) any {
	// A string that is exactly one template resolves to the raw typed value,
	// so a tool argument can receive a structured object instead of its
	// string form.
	if m := exactRe.FindStringSubmatch(strings.TrimSpace(s)); m != nil {
		if v, ok := lookupPath(m[1], outputs); ok {
			return v
		}
		return s
	}

	return templateRe.ReplaceAllStringFunc(s, func(match string) string {
		path := templateRe.FindStringSubmatch(match)[1]
		v, ok := lookupPath(path, outputs)
		if !ok {
			return match
		}
		return utils.Stringify(v)
	})
}

// lookupPath traverses outputs along a dotted reference. The first segment
// names a node id; each further segment is a map key or, failing that, an
// exported field of the current value.
func lookupPath(ref string, outputs types.Data) (any, bool) {
	path := utils.ParseDotted(ref)
	root, ok := path.First()
	if !ok {
		return nil, false
	}
	current, exists := outputs[root]
	if !exists {
		return nil, false
	}

	for _, segment := range path.Next() {
		next, ok := traverse(current, segment)
		if !ok {
			return nil, false
		}
		current = next
	}
	return current, true
}

func traverse(current any, segment string) (any, bool) {
	if current == nil {
		return nil, false
	}

	switch m := current.(type) {
	case types.Data:
		v, exists := m[segment]
		return v, exists
	case map[string]any:
		v, exists := m[segment]
		return v, exists
	}

	rv := reflect.ValueOf(current)
	for rv.Kind() == reflect.Pointer {
		if rv.IsNil() {
			return nil, false
		}
		rv = rv.Elem()
	}

	switch rv.Kind() {
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, false
		}
		v := rv.MapIndex(reflect.ValueOf(segment))
		if !v.IsValid() {
			return nil, false
		}
		return v.Interface(), true

	case reflect.Struct:
		field := rv.FieldByName(segment)
		if !field.IsValid() {
			field = rv.FieldByName(exportedName(segment))
		}
		if !field.IsValid() || !field.CanInterface() {
			return nil, false
		}
		return field.Interface(), true
	}
	return nil, false
}

func exportedName(s string) string {
	if s == "" {
		return s
	}
	r := []rune(s)
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
