package store

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
)

// Filter operators.
const (
	OpEq  = "$eq"
	OpNe  = "$ne"
	OpIn  = "$in"
	OpGt  = "$gt"
	OpGte = "$gte"
	OpLt  = "$lt"
	OpLte = "$lte"
)

var knownOps = map[string]bool{
	OpEq: true, OpNe: true, OpIn: true,
	OpGt: true, OpGte: true, OpLt: true, OpLte: true,
}

// fieldPattern accepts plain and dotted field names. Backends interpolate
// field names into queries, so nothing else is allowed.
var fieldPattern = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*(\.[A-Za-z_][A-Za-z0-9_]*)*$`)

// Filter maps field names to a scalar (equality) or an operator object.
type Filter map[string]any

// Condition is one normalised field predicate.
type Condition struct {
	Field string
	Op    string
	// Value is a scalar, or []any for $in.
	Value any
}

// ValidField reports whether name may be used as a filter, sort or group field.
func ValidField(name string) bool {
	return fieldPattern.MatchString(name)
}

// Conditions validates f and flattens it into conditions sorted by field
// then operator, so backends build deterministic queries.
func (f Filter) Conditions() ([]Condition, error) {
	var out []Condition
	for field, raw := range f {
		if !ValidField(field) {
			return nil, fmt.Errorf("%w: field name %q", ErrInvalidQuery, field)
		}
		ops, isOps := asOperatorObject(raw)
		if !isOps {
			if !isScalar(raw) {
				return nil, fmt.Errorf("%w: field %q must compare against a scalar", ErrInvalidQuery, field)
			}
			out = append(out, Condition{Field: field, Op: OpEq, Value: raw})
			continue
		}
		for op, v := range ops {
			if !knownOps[op] {
				return nil, fmt.Errorf("%w: unsupported operator %q", ErrInvalidQuery, op)
			}
			if op == OpIn {
				list, ok := v.([]any)
				if !ok {
					return nil, fmt.Errorf("%w: %s on %q needs a list", ErrInvalidQuery, op, field)
				}
				for _, item := range list {
					if !isScalar(item) {
						return nil, fmt.Errorf("%w: %s on %q needs scalar items", ErrInvalidQuery, op, field)
					}
				}
				out = append(out, Condition{Field: field, Op: op, Value: list})
				continue
			}
			if !isScalar(v) {
				return nil, fmt.Errorf("%w: %s on %q needs a scalar", ErrInvalidQuery, op, field)
			}
			out = append(out, Condition{Field: field, Op: op, Value: v})
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Field != out[j].Field {
			return out[i].Field < out[j].Field
		}
		return out[i].Op < out[j].Op
	})
	return out, nil
}

// asOperatorObject returns raw as an operator map when every key starts with "$".
func asOperatorObject(raw any) (map[string]any, bool) {
	var m map[string]any
	switch v := raw.(type) {
	case Filter:
		m = v
	case map[string]any:
		m = v
	default:
		return nil, false
	}
	if len(m) == 0 {
		return nil, false
	}
	for k := range m {
		if !strings.HasPrefix(k, "$") {
			return nil, false
		}
	}
	return m, true
}

func isScalar(v any) bool {
	switch v.(type) {
	case nil, string, bool, float64, float32, int, int32, int64, uint, uint32, uint64:
		return true
	default:
		return false
	}
}

// Merge returns a new filter with the entries of f overlaid by override.
func (f Filter) Merge(override Filter) Filter {
	out := make(Filter, len(f)+len(override))
	for k, v := range f {
		out[k] = v
	}
	for k, v := range override {
		out[k] = v
	}
	return out
}

// Matches reports whether doc satisfies f. An invalid filter matches nothing.
func Matches(doc Document, f Filter) bool {
	conds, err := f.Conditions()
	if err != nil {
		return false
	}
	return matchConditions(doc, conds)
}

func matchConditions(doc Document, conds []Condition) bool {
	for _, c := range conds {
		v, present := Lookup(doc, c.Field)
		if !matchCondition(v, present, c) {
			return false
		}
	}
	return true
}

func matchCondition(v any, present bool, c Condition) bool {
	switch c.Op {
	case OpEq:
		if c.Value == nil {
			return !present || v == nil
		}
		return present && Equal(v, c.Value)
	case OpNe:
		if c.Value == nil {
			return present && v != nil
		}
		return !present || !Equal(v, c.Value)
	case OpIn:
		if !present {
			return false
		}
		for _, item := range c.Value.([]any) {
			if Equal(v, item) {
				return true
			}
		}
		return false
	}

	if !present || v == nil {
		return false
	}
	cmp, ok := Compare(v, c.Value)
	if !ok {
		return false
	}
	switch c.Op {
	case OpGt:
		return cmp > 0
	case OpGte:
		return cmp >= 0
	case OpLt:
		return cmp < 0
	case OpLte:
		return cmp <= 0
	}
	return false
}

// Lookup resolves a possibly dotted field path in doc.
func Lookup(doc Document, field string) (any, bool) {
	var cur any = map[string]any(doc)
	for _, part := range strings.Split(field, ".") {
		var m map[string]any
		switch v := cur.(type) {
		case map[string]any:
			m = v
		case Document:
			m = v
		default:
			return nil, false
		}
		next, ok := m[part]
		if !ok {
			return nil, false
		}
		cur = next
	}
	return cur, true
}

// Equal compares two scalars; numbers compare by value across types.
func Equal(a, b any) bool {
	if af, ok := toFloat(a); ok {
		bf, ok := toFloat(b)
		return ok && af == bf
	}
	return a == b
}

// Compare orders two scalars of the same kind. ok is false for
// incomparable kinds.
func Compare(a, b any) (cmp int, ok bool) {
	if af, aok := toFloat(a); aok {
		bf, bok := toFloat(b)
		if !bok {
			return 0, false
		}
		switch {
		case af < bf:
			return -1, true
		case af > bf:
			return 1, true
		}
		return 0, true
	}
	switch av := a.(type) {
	case string:
		bv, bok := b.(string)
		if !bok {
			return 0, false
		}
		return strings.Compare(av, bv), true
	case bool:
		bv, bok := b.(bool)
		if !bok {
			return 0, false
		}
		switch {
		case av == bv:
			return 0, true
		case !av:
			return -1, true
		}
		return 1, true
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	}
	return 0, false
}
