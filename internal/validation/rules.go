package validation

import (
	"encoding/json"
	"fmt"
	"slices"
	"sort"
	"strings"
	"unicode/utf8"
)

// Type is the JSON type a field must have.
type Type string

// Supported field types.
const (
	TypeAny    Type = ""
	TypeString Type = "string"
	TypeNumber Type = "number"
	TypeBool   Type = "boolean"
	TypeArray  Type = "array"
	TypeObject Type = "object"
)

// Rule names reported in violations.
const (
	RuleRequired  = "required"
	RuleType      = "type"
	RuleMinLength = "minLength"
	RuleMaxLength = "maxLength"
	RuleMin       = "min"
	RuleMax       = "max"
	RuleEnum      = "enum"
)

// FieldRule constrains one field when it is present. Bounds are inclusive
// and a nil bound is open on that side. Lengths count runes. A typed field
// never accepts null. OneOf, when set, lists the only accepted strings.
type FieldRule struct {
	Type   Type
	MinLen *int
	MaxLen *int
	Min    *float64
	Max    *float64
	OneOf  []string
}

// CollectionRules holds the rules for one collection.
type CollectionRules struct {
	// Required fields must be present and non-null on create.
	Required []string
	Fields   map[string]FieldRule
}

// Violation is one failed rule.
type Violation struct {
	Field   string `json:"field"`
	Rule    string `json:"rule"`
	Message string `json:"message"`
}

// Errors is the full list of violations for a payload.
type Errors []Violation

func (e Errors) Error() string {
	msgs := make([]string, len(e))
	for i, v := range e {
		msgs[i] = v.Message
	}
	return "validation failed: " + strings.Join(msgs, "; ")
}

// Invalid returns an Errors holding a single violation. The gateway uses it
// for request-shape problems that are not field rules.
func Invalid(field, rule, message string) Errors {
	return Errors{{Field: field, Rule: rule, Message: message}}
}

// RuleSet maps collections to their rules. It is immutable once built.
type RuleSet struct {
	collections map[string]CollectionRules
}

// NewRuleSet copies rules into a RuleSet.
func NewRuleSet(rules map[string]CollectionRules) *RuleSet {
	rs := &RuleSet{collections: make(map[string]CollectionRules, len(rules))}
	for name, cr := range rules {
		fields := make(map[string]FieldRule, len(cr.Fields))
		for f, r := range cr.Fields {
			fields[f] = r
		}
		for f, r := range fields {
			r.OneOf = append([]string(nil), r.OneOf...)
			fields[f] = r
		}
		rs.collections[name] = CollectionRules{
			Required: append([]string(nil), cr.Required...),
			Fields:   fields,
		}
	}
	return rs
}

// Validate checks payload against the collection's rules. On create every
// required field must be present; on update only the supplied fields are
// checked. It returns nil or an Errors value.
func (rs *RuleSet) Validate(collection string, payload map[string]any, isUpdate bool) error {
	cr, ok := rs.collections[collection]
	if !ok {
		return nil
	}

	var errs Errors
	reported := make(map[string]bool)
	if !isUpdate {
		for _, field := range cr.Required {
			if v, present := payload[field]; !present || v == nil {
				reported[field] = true
				errs = append(errs, Violation{
					Field:   field,
					Rule:    RuleRequired,
					Message: fmt.Sprintf("%s is required", field),
				})
			}
		}
	}

	names := make([]string, 0, len(cr.Fields))
	for name := range cr.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	for _, name := range names {
		v, present := payload[name]
		if !present || reported[name] {
			continue
		}
		errs = append(errs, checkField(name, v, cr.Fields[name])...)
	}

	if len(errs) == 0 {
		return nil
	}
	return errs
}

func checkField(name string, v any, rule FieldRule) Errors {
	if v == nil {
		if rule.Type == TypeAny {
			return nil
		}
		return Errors{{
			Field:   name,
			Rule:    RuleType,
			Message: fmt.Sprintf("%s must be of type %s, not null", name, rule.Type),
		}}
	}
	if rule.Type != TypeAny && typeOf(v) != rule.Type {
		return Errors{{
			Field:   name,
			Rule:    RuleType,
			Message: fmt.Sprintf("%s must be of type %s", name, rule.Type),
		}}
	}

	var errs Errors
	if s, ok := v.(string); ok {
		n := utf8.RuneCountInString(s)
		if rule.MinLen != nil && n < *rule.MinLen {
			errs = append(errs, Violation{
				Field:   name,
				Rule:    RuleMinLength,
				Message: fmt.Sprintf("%s must be at least %d characters", name, *rule.MinLen),
			})
		}
		if rule.MaxLen != nil && n > *rule.MaxLen {
			errs = append(errs, Violation{
				Field:   name,
				Rule:    RuleMaxLength,
				Message: fmt.Sprintf("%s must be at most %d characters", name, *rule.MaxLen),
			})
		}
		if len(rule.OneOf) > 0 && !slices.Contains(rule.OneOf, s) {
			errs = append(errs, Violation{
				Field:   name,
				Rule:    RuleEnum,
				Message: fmt.Sprintf("%s must be one of %s", name, strings.Join(rule.OneOf, ", ")),
			})
		}
	}

	if f, ok := toFloat(v); ok {
		if rule.Min != nil && f < *rule.Min {
			errs = append(errs, Violation{
				Field:   name,
				Rule:    RuleMin,
				Message: fmt.Sprintf("%s must be at least %g", name, *rule.Min),
			})
		}
		if rule.Max != nil && f > *rule.Max {
			errs = append(errs, Violation{
				Field:   name,
				Rule:    RuleMax,
				Message: fmt.Sprintf("%s must be at most %g", name, *rule.Max),
			})
		}
	}
	return errs
}

func typeOf(v any) Type {
	switch v.(type) {
	case string:
		return TypeString
	case bool:
		return TypeBool
	case []any, []string:
		return TypeArray
	case map[string]any:
		return TypeObject
	}
	if _, ok := toFloat(v); ok {
		return TypeNumber
	}
	return TypeAny
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
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// Len returns a pointer to n for FieldRule length bounds.
func Len(n int) *int { return &n }

// Num returns a pointer to f for FieldRule numeric bounds.
func Num(f float64) *float64 { return &f }
